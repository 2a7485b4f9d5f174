package sizing

import (
	"math"
	"tradebridge/internal/models"

	"github.com/moznion/go-optional"
)

// Stops turns the strategy's stop specs into prices around entry. A
// take-profit in rr_ratio mode needs a stop-loss to measure against.
func Stops(slSpec, tpSpec models.StopSpec, dir models.Direction, entry, atr float64, info models.SymbolInfo) (optional.Option[float64], optional.Option[float64]) {
	sl, tp := optional.None[float64](), optional.None[float64]()

	slDist := distance(slSpec, entry, atr, info, 0)
	if slDist > 0 {
		sl = optional.Some(info.Round(offset(entry, dir, -slDist)))
	}
	tpDist := distance(tpSpec, entry, atr, info, slDist)
	if tpDist > 0 {
		tp = optional.Some(info.Round(offset(entry, dir, tpDist)))
	}
	return sl, tp
}

func distance(spec models.StopSpec, entry, atr float64, info models.SymbolInfo, slDist float64) float64 {
	if spec.Value <= 0 {
		return 0
	}
	switch spec.Mode {
	case models.StopModePips:
		return spec.Value * info.Pip()
	case models.StopModeATR:
		if math.IsNaN(atr) {
			return 0
		}
		return spec.Value * atr
	case models.StopModePercent:
		return entry * spec.Value / 100
	case models.StopModeRR:
		return spec.Value * slDist
	}
	return 0
}

func offset(entry float64, dir models.Direction, dist float64) float64 {
	if dir == models.DirectionShort {
		return entry - dist
	}
	return entry + dist
}

// Trail computes the managed stop-loss for an open position: breakeven once
// the position is BreakevenPips in profit, and a trailing stop TrailingPips
// behind the closing price. The stop only ever tightens; ok is false when
// it would not move.
func Trail(rules models.ManageConfig, pos models.Position, tick models.PriceTick, info models.SymbolInfo) (float64, bool) {
	pip := info.Pip()
	if pip <= 0 || !rules.Enabled() {
		return 0, false
	}
	price := tick.EntryPrice(pos.Direction.Opposite())

	if pos.Direction == models.DirectionShort {
		best := math.Inf(1)
		if rules.BreakevenPips > 0 && pos.OpenPrice-price >= rules.BreakevenPips*pip {
			best = pos.OpenPrice
		}
		if rules.TrailingPips > 0 {
			best = math.Min(best, price+rules.TrailingPips*pip)
		}
		if math.IsInf(best, 1) {
			return 0, false
		}
		best = info.Round(best)
		if pos.StopLoss > 0 && best >= pos.StopLoss {
			return 0, false
		}
		return best, true
	}

	best := 0.0
	if rules.BreakevenPips > 0 && price-pos.OpenPrice >= rules.BreakevenPips*pip {
		best = pos.OpenPrice
	}
	if rules.TrailingPips > 0 {
		best = math.Max(best, price-rules.TrailingPips*pip)
	}
	best = info.Round(best)
	if best <= 0 || best <= pos.StopLoss {
		return 0, false
	}
	return best, true
}
