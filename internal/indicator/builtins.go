package indicator

import "tradebridge/internal/models"

const (
	macdFast   = 12
	macdSlow   = 26
	macdSignal = 9
	bandWidth  = 2.0
)

func raw(pick func(models.Bar) float64) Calculator {
	return func(bars []models.Bar, _ int) []float64 {
		return field(bars, pick)
	}
}

func onClose(fn func([]float64, int) []float64) Calculator {
	return func(bars []models.Bar, period int) []float64 {
		return fn(closes(bars), period)
	}
}

func macdLine(bars []models.Bar) []float64 {
	c := closes(bars)
	return subtract(ema(c, macdFast), ema(c, macdSlow))
}

func bollinger(k float64) Calculator {
	return func(bars []models.Bar, period int) []float64 {
		c := closes(bars)
		mid := sma(c, period)
		if k == 0 {
			return mid
		}
		return offset(mid, stddev(c, mid, period), k)
	}
}

func builtins() []Definition {
	closePrice := raw(func(b models.Bar) float64 { return b.Close })

	return []Definition{
		{Name: "price", Calc: closePrice},
		{Name: "close", Calc: closePrice},
		{Name: "open", Calc: raw(func(b models.Bar) float64 { return b.Open })},
		{Name: "high", Calc: raw(func(b models.Bar) float64 { return b.High })},
		{Name: "low", Calc: raw(func(b models.Bar) float64 { return b.Low })},
		{Name: "volume", Calc: raw(func(b models.Bar) float64 { return b.Volume })},

		{Name: "sma", DefaultPeriod: 20, Calc: onClose(sma)},
		{Name: "ema", DefaultPeriod: 20, Calc: onClose(ema)},
		{Name: "wma", DefaultPeriod: 20, Calc: onClose(wma)},
		{Name: "rsi", DefaultPeriod: 14, Calc: onClose(rsi)},
		{Name: "roc", DefaultPeriod: 12, Calc: onClose(roc)},

		{Name: "macd", Calc: func(bars []models.Bar, _ int) []float64 {
			return macdLine(bars)
		}},
		{Name: "macd_signal", Calc: func(bars []models.Bar, _ int) []float64 {
			return ema(macdLine(bars), macdSignal)
		}},
		{Name: "macd_hist", Calc: func(bars []models.Bar, _ int) []float64 {
			line := macdLine(bars)
			return subtract(line, ema(line, macdSignal))
		}},

		{Name: "atr", DefaultPeriod: 14, Calc: atr},
		{Name: "adx", DefaultPeriod: 14, Calc: adx},
		{Name: "cci", DefaultPeriod: 20, Calc: cci},

		{Name: "stochastic_k", DefaultPeriod: 14, Calc: stochasticK},
		{Name: "stochastic_d", DefaultPeriod: 3, Calc: func(bars []models.Bar, period int) []float64 {
			return sma(stochasticK(bars, 14), period)
		}},

		{Name: "bollinger_upper", DefaultPeriod: 20, Calc: bollinger(bandWidth)},
		{Name: "bollinger_mid", DefaultPeriod: 20, Calc: bollinger(0)},
		{Name: "bollinger_lower", DefaultPeriod: 20, Calc: bollinger(-bandWidth)},
	}
}
