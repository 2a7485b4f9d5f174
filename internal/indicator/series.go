package indicator

import (
	"math"
	"tradebridge/internal/models"
)

func nanSeries(n int) []float64 {
	out := make([]float64, n)
	for i := range out {
		out[i] = math.NaN()
	}
	return out
}

func field(bars []models.Bar, pick func(models.Bar) float64) []float64 {
	out := make([]float64, len(bars))
	for i, b := range bars {
		out[i] = pick(b)
	}
	return out
}

func closes(bars []models.Bar) []float64 {
	return field(bars, func(b models.Bar) float64 { return b.Close })
}

func typicalPrices(bars []models.Bar) []float64 {
	return field(bars, func(b models.Bar) float64 { return (b.High + b.Low + b.Close) / 3 })
}

// sma propagates NaN: any undefined input inside the window yields NaN.
func sma(values []float64, n int) []float64 {
	out := nanSeries(len(values))
	if n <= 0 {
		return out
	}
	for i := n - 1; i < len(values); i++ {
		sum := 0.0
		for _, v := range values[i-n+1 : i+1] {
			sum += v
		}
		out[i] = sum / float64(n)
	}
	return out
}

func wma(values []float64, n int) []float64 {
	out := nanSeries(len(values))
	if n <= 0 {
		return out
	}
	denom := float64(n*(n+1)) / 2
	for i := n - 1; i < len(values); i++ {
		sum := 0.0
		for j := 0; j < n; j++ {
			sum += values[i-n+1+j] * float64(j+1)
		}
		out[i] = sum / denom
	}
	return out
}

// ema seeds with the simple average of the first n defined values, so a
// series with leading NaN (macd line) can be smoothed again.
func ema(values []float64, n int) []float64 {
	out := nanSeries(len(values))
	if n <= 0 {
		return out
	}
	start := 0
	for start < len(values) && math.IsNaN(values[start]) {
		start++
	}
	if len(values)-start < n {
		return out
	}
	seed := 0.0
	for _, v := range values[start : start+n] {
		seed += v
	}
	out[start+n-1] = seed / float64(n)
	k := 2 / float64(n+1)
	for i := start + n; i < len(values); i++ {
		out[i] = values[i]*k + out[i-1]*(1-k)
	}
	return out
}

func stddev(values []float64, mean []float64, n int) []float64 {
	out := nanSeries(len(values))
	for i := n - 1; i < len(values); i++ {
		if math.IsNaN(mean[i]) {
			continue
		}
		acc := 0.0
		for _, v := range values[i-n+1 : i+1] {
			d := v - mean[i]
			acc += d * d
		}
		out[i] = math.Sqrt(acc / float64(n))
	}
	return out
}

func rsi(values []float64, n int) []float64 {
	out := nanSeries(len(values))
	if n <= 0 || len(values) <= n {
		return out
	}
	gain, loss := 0.0, 0.0
	for i := 1; i <= n; i++ {
		d := values[i] - values[i-1]
		if d > 0 {
			gain += d
		} else {
			loss -= d
		}
	}
	gain /= float64(n)
	loss /= float64(n)
	out[n] = rsiValue(gain, loss)
	for i := n + 1; i < len(values); i++ {
		d := values[i] - values[i-1]
		up, down := 0.0, 0.0
		if d > 0 {
			up = d
		} else {
			down = -d
		}
		gain = (gain*float64(n-1) + up) / float64(n)
		loss = (loss*float64(n-1) + down) / float64(n)
		out[i] = rsiValue(gain, loss)
	}
	return out
}

func rsiValue(gain, loss float64) float64 {
	if loss == 0 {
		if gain == 0 {
			return 50
		}
		return 100
	}
	return 100 - 100/(1+gain/loss)
}

func trueRange(bars []models.Bar) []float64 {
	out := make([]float64, len(bars))
	for i, b := range bars {
		if i == 0 {
			out[i] = b.High - b.Low
			continue
		}
		prev := bars[i-1].Close
		out[i] = math.Max(b.High-b.Low, math.Max(math.Abs(b.High-prev), math.Abs(b.Low-prev)))
	}
	return out
}

// wilder smooths from index n using the mean of values[1..n] as the seed.
func wilder(values []float64, n int) []float64 {
	out := nanSeries(len(values))
	if n <= 0 || len(values) <= n {
		return out
	}
	acc := 0.0
	for i := 1; i <= n; i++ {
		acc += values[i]
	}
	out[n] = acc / float64(n)
	for i := n + 1; i < len(values); i++ {
		out[i] = (out[i-1]*float64(n-1) + values[i]) / float64(n)
	}
	return out
}

func atr(bars []models.Bar, n int) []float64 {
	return wilder(trueRange(bars), n)
}

func adx(bars []models.Bar, n int) []float64 {
	size := len(bars)
	out := nanSeries(size)
	if n <= 0 || size < 2*n+1 {
		return out
	}
	plusDM := make([]float64, size)
	minusDM := make([]float64, size)
	for i := 1; i < size; i++ {
		up := bars[i].High - bars[i-1].High
		down := bars[i-1].Low - bars[i].Low
		if up > down && up > 0 {
			plusDM[i] = up
		}
		if down > up && down > 0 {
			minusDM[i] = down
		}
	}
	tr := wilder(trueRange(bars), n)
	pdm := wilder(plusDM, n)
	mdm := wilder(minusDM, n)

	dx := nanSeries(size)
	for i := n; i < size; i++ {
		if tr[i] == 0 {
			dx[i] = 0
			continue
		}
		pdi := 100 * pdm[i] / tr[i]
		mdi := 100 * mdm[i] / tr[i]
		if pdi+mdi == 0 {
			dx[i] = 0
			continue
		}
		dx[i] = 100 * math.Abs(pdi-mdi) / (pdi + mdi)
	}

	first := 2*n - 1
	acc := 0.0
	for i := n; i <= first; i++ {
		acc += dx[i]
	}
	out[first] = acc / float64(n)
	for i := first + 1; i < size; i++ {
		out[i] = (out[i-1]*float64(n-1) + dx[i]) / float64(n)
	}
	return out
}

func stochasticK(bars []models.Bar, n int) []float64 {
	out := nanSeries(len(bars))
	if n <= 0 {
		return out
	}
	for i := n - 1; i < len(bars); i++ {
		hh, ll := bars[i].High, bars[i].Low
		for _, b := range bars[i-n+1 : i+1] {
			hh = math.Max(hh, b.High)
			ll = math.Min(ll, b.Low)
		}
		if hh == ll {
			out[i] = 50
			continue
		}
		out[i] = 100 * (bars[i].Close - ll) / (hh - ll)
	}
	return out
}

func cci(bars []models.Bar, n int) []float64 {
	tp := typicalPrices(bars)
	mean := sma(tp, n)
	out := nanSeries(len(bars))
	for i := n - 1; i < len(bars) && n > 0; i++ {
		dev := 0.0
		for _, v := range tp[i-n+1 : i+1] {
			dev += math.Abs(v - mean[i])
		}
		dev /= float64(n)
		if dev == 0 {
			out[i] = 0
			continue
		}
		out[i] = (tp[i] - mean[i]) / (0.015 * dev)
	}
	return out
}

func roc(values []float64, n int) []float64 {
	out := nanSeries(len(values))
	if n <= 0 {
		return out
	}
	for i := n; i < len(values); i++ {
		if values[i-n] == 0 {
			continue
		}
		out[i] = (values[i] - values[i-n]) / values[i-n] * 100
	}
	return out
}

func subtract(a, b []float64) []float64 {
	out := make([]float64, len(a))
	for i := range a {
		out[i] = a[i] - b[i]
	}
	return out
}

func offset(base, dev []float64, k float64) []float64 {
	out := make([]float64, len(base))
	for i := range base {
		out[i] = base[i] + k*dev[i]
	}
	return out
}
