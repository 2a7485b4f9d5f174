package models

import (
	"fmt"
	"time"

	"github.com/go-playground/validator/v10"
)

type Logic string
type Operator string
type DirectionMode string
type StopMode string
type SizingMethod string

const (
	LogicAnd Logic = "AND"
	LogicOr  Logic = "OR"

	OperatorGreaterThan    Operator = "greater_than"
	OperatorLessThan       Operator = "less_than"
	OperatorGreaterOrEqual Operator = "greater_or_equal"
	OperatorLessOrEqual    Operator = "less_or_equal"
	OperatorEqual          Operator = "equal"
	OperatorInRange        Operator = "in_range"
	OperatorOutsideRange   Operator = "outside_range"
	OperatorCrossesAbove   Operator = "crosses_above"
	OperatorCrossesBelow   Operator = "crosses_below"

	DirectionModeTrend      DirectionMode = "trend"
	DirectionModeOscillator DirectionMode = "oscillator"
	DirectionModeFixed      DirectionMode = "fixed"

	StopModeNone    StopMode = ""
	StopModePips    StopMode = "pips"
	StopModeATR     StopMode = "atr"
	StopModePercent StopMode = "percent"
	StopModeRR      StopMode = "rr_ratio"

	SizingFixed       SizingMethod = "fixed"
	SizingPercentRisk SizingMethod = "percent_risk"
	SizingVolatility  SizingMethod = "volatility"
)

type Condition struct {
	Indicator string    `mapstructure:"indicator" json:"indicator" validate:"required"`
	Operator  Operator  `mapstructure:"operator" json:"operator" validate:"required,oneof=greater_than less_than greater_or_equal less_or_equal equal in_range outside_range crosses_above crosses_below"`
	Value     float64   `mapstructure:"value" json:"value,omitempty"`
	Range     []float64 `mapstructure:"range" json:"range,omitempty" validate:"omitempty,len=2"`
	Reference string    `mapstructure:"reference" json:"reference,omitempty"`
	Timeframe Timeframe `mapstructure:"timeframe" json:"timeframe,omitempty" validate:"omitempty,oneof=M1 M5 M15 M30 H1 H4 D1 W1 MN1"`
}

type ConditionSet struct {
	Logic      Logic       `mapstructure:"logic" json:"logic,omitempty" validate:"omitempty,oneof=AND OR"`
	Conditions []Condition `mapstructure:"conditions" json:"conditions,omitempty" validate:"dive"`
}

type DirectionRule struct {
	Mode      DirectionMode `mapstructure:"mode" json:"mode,omitempty" validate:"omitempty,oneof=trend oscillator fixed"`
	Fixed     Direction     `mapstructure:"fixed" json:"fixed,omitempty" validate:"omitempty,oneof=LONG SHORT"`
	Indicator string        `mapstructure:"indicator" json:"indicator,omitempty"`
	Midpoint  *float64      `mapstructure:"midpoint" json:"midpoint,omitempty"`
}

type StopSpec struct {
	Mode  StopMode `mapstructure:"mode" json:"mode,omitempty" validate:"omitempty,oneof=pips atr percent rr_ratio"`
	Value float64  `mapstructure:"value" json:"value,omitempty" validate:"gte=0"`
}

type RiskConfig struct {
	Sizing        SizingMethod `mapstructure:"sizing" json:"sizing" validate:"required,oneof=fixed percent_risk volatility"`
	FixedVolume   float64      `mapstructure:"fixed_volume" json:"fixedVolume,omitempty" validate:"required_if=Sizing fixed,gte=0"`
	RiskPercent   float64      `mapstructure:"risk_percent" json:"riskPercent,omitempty" validate:"gte=0,lte=100"`
	ATRMultiplier float64      `mapstructure:"atr_multiplier" json:"atrMultiplier,omitempty" validate:"gte=0"`
	MaxPositions  int          `mapstructure:"max_positions" json:"maxPositions,omitempty" validate:"gte=0"`
	MaxDailyLoss  float64      `mapstructure:"max_daily_loss" json:"maxDailyLoss,omitempty" validate:"gte=0"`
	MaxLotSize    float64      `mapstructure:"max_lot_size" json:"maxLotSize,omitempty" validate:"gte=0"`
	AllowMultiple bool         `mapstructure:"allow_multiple" json:"allowMultiple,omitempty"`
}

// ManageConfig moves the stop-loss of open positions. Both distances are in
// pips; zero disables the rule.
type ManageConfig struct {
	TrailingPips  float64 `mapstructure:"trailing_pips" json:"trailingPips,omitempty" validate:"gte=0"`
	BreakevenPips float64 `mapstructure:"breakeven_pips" json:"breakevenPips,omitempty" validate:"gte=0"`
}

func (m ManageConfig) Enabled() bool {
	return m.TrailingPips > 0 || m.BreakevenPips > 0
}

type Strategy struct {
	ID              string        `mapstructure:"id" json:"id" validate:"required"`
	Name            string        `mapstructure:"name" json:"name,omitempty"`
	Symbols         []string      `mapstructure:"symbols" json:"symbols" validate:"required,min=1,dive,required"`
	Timeframe       Timeframe     `mapstructure:"timeframe" json:"timeframe" validate:"required,oneof=M1 M5 M15 M30 H1 H4 D1 W1 MN1"`
	BarCount        int           `mapstructure:"bar_count" json:"barCount,omitempty" validate:"gte=0"`
	Entry           ConditionSet  `mapstructure:"entry" json:"entry"`
	Exit            ConditionSet  `mapstructure:"exit" json:"exit,omitempty"`
	Direction       DirectionRule `mapstructure:"direction" json:"direction,omitempty"`
	StopLoss        StopSpec      `mapstructure:"stop_loss" json:"stopLoss,omitempty"`
	TakeProfit      StopSpec      `mapstructure:"take_profit" json:"takeProfit,omitempty"`
	Manage          ManageConfig  `mapstructure:"manage" json:"manage,omitempty"`
	CooldownSeconds int           `mapstructure:"cooldown_seconds" json:"cooldownSeconds,omitempty" validate:"gte=0"`
	Risk            RiskConfig    `mapstructure:"risk" json:"risk"`
}

func (s Strategy) Cooldown() time.Duration {
	return time.Duration(s.CooldownSeconds) * time.Second
}

// Timeframes lists the strategy timeframe first, then every extra timeframe
// referenced by entry or exit conditions.
func (s Strategy) Timeframes() []Timeframe {
	seen := map[Timeframe]bool{s.Timeframe: true}
	out := []Timeframe{s.Timeframe}
	for _, set := range []ConditionSet{s.Entry, s.Exit} {
		for _, c := range set.Conditions {
			if c.Timeframe != "" && !seen[c.Timeframe] {
				seen[c.Timeframe] = true
				out = append(out, c.Timeframe)
			}
		}
	}
	return out
}

func (s Strategy) Validate() error {
	validate := validator.New()
	if err := validate.Struct(s); err != nil {
		return err
	}
	if s.Direction.Mode == DirectionModeFixed && !s.Direction.Fixed.Valid() {
		return fmt.Errorf("Стратегия %s: для режима fixed нужно направление LONG или SHORT.", s.ID)
	}
	for _, set := range []ConditionSet{s.Entry, s.Exit} {
		for _, c := range set.Conditions {
			if (c.Operator == OperatorInRange || c.Operator == OperatorOutsideRange) && len(c.Range) != 2 {
				return fmt.Errorf("Стратегия %s: условие %s %s требует диапазон из двух значений.", s.ID, c.Indicator, c.Operator)
			}
		}
	}
	return nil
}
