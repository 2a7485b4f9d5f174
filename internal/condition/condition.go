package condition

import (
	"math"
	"tradebridge/internal/indicator"
	"tradebridge/internal/models"
)

const (
	defaultTrendIndicator      = "ema_50"
	defaultOscillatorIndicator = "rsi_14"
	defaultOscillatorMidpoint  = 50
	equalTolerance             = 1e-9
)

// Input carries one indicator frame per timeframe. Conditions without an
// explicit timeframe read Primary.
type Input struct {
	Primary *indicator.Frame
	Frames  map[models.Timeframe]*indicator.Frame
}

func (in Input) frame(tf models.Timeframe) *indicator.Frame {
	if tf == "" {
		return in.Primary
	}
	if f, ok := in.Frames[tf]; ok {
		return f
	}
	return nil
}

type Result struct {
	Met        bool
	Passed     int
	Total      int
	Confidence float64
}

// Evaluate combines the condition set. An empty set is never met.
func Evaluate(set models.ConditionSet, in Input) Result {
	res := Result{Total: len(set.Conditions)}
	if res.Total == 0 {
		return res
	}
	for _, c := range set.Conditions {
		if Check(c, in) {
			res.Passed++
		}
	}
	res.Confidence = float64(res.Passed) / float64(res.Total)
	if set.Logic == models.LogicOr {
		res.Met = res.Passed > 0
	} else {
		res.Met = res.Passed == res.Total
	}
	return res
}

// Check never panics on missing data: an undefined operand makes the
// condition false.
func Check(c models.Condition, in Input) bool {
	f := in.frame(c.Timeframe)
	if f == nil {
		return false
	}
	left := f.Last(c.Indicator)
	if math.IsNaN(left) {
		return false
	}

	switch c.Operator {
	case models.OperatorInRange, models.OperatorOutsideRange:
		if len(c.Range) != 2 {
			return false
		}
		lo, hi := math.Min(c.Range[0], c.Range[1]), math.Max(c.Range[0], c.Range[1])
		inside := left >= lo && left <= hi
		if c.Operator == models.OperatorInRange {
			return inside
		}
		return !inside
	case models.OperatorCrossesAbove, models.OperatorCrossesBelow:
		prevLeft := f.Prev(c.Indicator)
		right, prevRight := c.Value, c.Value
		if c.Reference != "" {
			right, prevRight = f.Last(c.Reference), f.Prev(c.Reference)
		}
		if math.IsNaN(prevLeft) || math.IsNaN(right) || math.IsNaN(prevRight) {
			return false
		}
		if c.Operator == models.OperatorCrossesAbove {
			return prevLeft <= prevRight && left > right
		}
		return prevLeft >= prevRight && left < right
	}

	right := c.Value
	if c.Reference != "" {
		right = f.Last(c.Reference)
	}
	if math.IsNaN(right) {
		return false
	}

	switch c.Operator {
	case models.OperatorGreaterThan:
		return left > right
	case models.OperatorLessThan:
		return left < right
	case models.OperatorGreaterOrEqual:
		return left >= right
	case models.OperatorLessOrEqual:
		return left <= right
	case models.OperatorEqual:
		return math.Abs(left-right) <= equalTolerance*math.Max(1, math.Abs(right))
	}
	return false
}

// Decide picks the trade direction once entry conditions are met.
func Decide(rule models.DirectionRule, in Input) (models.Direction, bool) {
	switch rule.Mode {
	case models.DirectionModeFixed:
		return rule.Fixed, rule.Fixed.Valid()
	case models.DirectionModeOscillator:
		name, mid := rule.Indicator, float64(defaultOscillatorMidpoint)
		if name == "" {
			name = defaultOscillatorIndicator
		}
		// zero is a valid midpoint, e.g. for macd_hist
		if rule.Midpoint != nil {
			mid = *rule.Midpoint
		}
		v := in.Primary.Last(name)
		if math.IsNaN(v) {
			return "", false
		}
		if v < mid {
			return models.DirectionLong, true
		}
		return models.DirectionShort, true
	default:
		name := rule.Indicator
		if name == "" {
			name = defaultTrendIndicator
		}
		price, ref := in.Primary.Last("price"), in.Primary.Last(name)
		if math.IsNaN(price) || math.IsNaN(ref) {
			return "", false
		}
		if price >= ref {
			return models.DirectionLong, true
		}
		return models.DirectionShort, true
	}
}
