package condition

import (
	"testing"
	"time"
	"tradebridge/internal/indicator"
	"tradebridge/internal/models"

	"github.com/stretchr/testify/suite"
)

type ConditionTestSuite struct {
	suite.Suite
	reg *indicator.Registry
}

func TestConditionSuite(t *testing.T) {
	suite.Run(t, new(ConditionTestSuite))
}

func (suite *ConditionTestSuite) SetupTest() {
	suite.reg = indicator.Default()
}

func (suite *ConditionTestSuite) input(closes ...float64) Input {
	bars := make([]models.Bar, len(closes))
	for i, c := range closes {
		bars[i] = models.Bar{Time: time.Unix(int64(i)*60, 0), Open: c, High: c + 0.5, Low: c - 0.5, Close: c}
	}
	return Input{Primary: indicator.NewFrame(suite.reg, bars)}
}

func cond(ind string, op models.Operator, value float64) models.Condition {
	return models.Condition{Indicator: ind, Operator: op, Value: value}
}

func (suite *ConditionTestSuite) TestComparisons() {
	in := suite.input(1, 2, 3)
	suite.True(Check(cond("price", models.OperatorGreaterThan, 2), in))
	suite.False(Check(cond("price", models.OperatorLessThan, 3), in))
	suite.True(Check(cond("price", models.OperatorLessOrEqual, 3), in))
	suite.True(Check(cond("price", models.OperatorGreaterOrEqual, 3), in))
	suite.True(Check(cond("price", models.OperatorEqual, 3), in))
}

func (suite *ConditionTestSuite) TestRanges() {
	in := suite.input(1, 2, 3)
	suite.True(Check(models.Condition{Indicator: "price", Operator: models.OperatorInRange, Range: []float64{4, 2}}, in))
	suite.False(Check(models.Condition{Indicator: "price", Operator: models.OperatorOutsideRange, Range: []float64{2, 4}}, in))
	suite.False(Check(models.Condition{Indicator: "price", Operator: models.OperatorInRange}, in))
}

func (suite *ConditionTestSuite) TestCrossAgainstReference() {
	// sma_2 lags price: price crosses above after the dip
	in := suite.input(5, 4, 3, 6)
	c := models.Condition{Indicator: "price", Operator: models.OperatorCrossesAbove, Reference: "sma_2"}
	suite.True(Check(c, in))
	c.Operator = models.OperatorCrossesBelow
	suite.False(Check(c, in))
}

func (suite *ConditionTestSuite) TestCrossAgainstConstant() {
	in := suite.input(48, 52)
	suite.True(Check(cond("price", models.OperatorCrossesAbove, 50), in))
	suite.False(Check(cond("price", models.OperatorCrossesBelow, 50), in))
}

func (suite *ConditionTestSuite) TestMissingDataIsNoSignal() {
	in := suite.input(1, 2, 3)
	set := models.ConditionSet{Logic: models.LogicAnd, Conditions: []models.Condition{
		cond("price", models.OperatorGreaterThan, 0),
		cond("ema_50", models.OperatorGreaterThan, 0),
	}}
	res := Evaluate(set, in)
	suite.False(res.Met)
	suite.Equal(1, res.Passed)
	suite.InDelta(0.5, res.Confidence, 1e-9)

	suite.False(Check(cond("unknown_thing", models.OperatorGreaterThan, 0), in))
	suite.False(Check(models.Condition{Indicator: "price", Operator: models.OperatorGreaterThan, Timeframe: models.TimeframeH4}, in))
}

func (suite *ConditionTestSuite) TestOrLogic() {
	in := suite.input(1, 2, 3)
	set := models.ConditionSet{Logic: models.LogicOr, Conditions: []models.Condition{
		cond("price", models.OperatorLessThan, 0),
		cond("price", models.OperatorGreaterThan, 2),
	}}
	suite.True(Evaluate(set, in).Met)
	suite.False(Evaluate(models.ConditionSet{}, in).Met)
}

func (suite *ConditionTestSuite) TestTimeframeOverride() {
	in := suite.input(1, 2, 3)
	in.Frames = map[models.Timeframe]*indicator.Frame{models.TimeframeH1: suite.input(10, 20).Primary}
	c := models.Condition{Indicator: "price", Operator: models.OperatorGreaterThan, Value: 15, Timeframe: models.TimeframeH1}
	suite.True(Check(c, in))
}

func (suite *ConditionTestSuite) TestDecideTrend() {
	in := suite.input(1, 2, 3, 4)
	dir, ok := Decide(models.DirectionRule{Indicator: "sma_3"}, in)
	suite.True(ok)
	suite.Equal(models.DirectionLong, dir)

	in = suite.input(4, 3, 2, 1)
	dir, ok = Decide(models.DirectionRule{Indicator: "sma_3"}, in)
	suite.True(ok)
	suite.Equal(models.DirectionShort, dir)

	_, ok = Decide(models.DirectionRule{}, in)
	suite.False(ok)
}

func (suite *ConditionTestSuite) TestDecideOscillator() {
	falling := make([]float64, 20)
	for i := range falling {
		falling[i] = 100 - float64(i)
	}
	dir, ok := Decide(models.DirectionRule{Mode: models.DirectionModeOscillator}, suite.input(falling...))
	suite.True(ok)
	suite.Equal(models.DirectionLong, dir)

	fifty := 50.0
	dir, ok = Decide(models.DirectionRule{Mode: models.DirectionModeOscillator, Indicator: "price", Midpoint: &fifty}, suite.input(60))
	suite.True(ok)
	suite.Equal(models.DirectionShort, dir)
}

func (suite *ConditionTestSuite) TestOscillatorMidpointDefaultsWithExplicitIndicator() {
	falling := make([]float64, 20)
	for i := range falling {
		falling[i] = 100 - float64(i)
	}
	in := suite.input(falling...)
	dir, ok := Decide(models.DirectionRule{Mode: models.DirectionModeOscillator, Indicator: "rsi_14"}, in)
	suite.True(ok)
	suite.Equal(models.DirectionLong, dir)

	dir, ok = Decide(models.DirectionRule{Mode: models.DirectionModeOscillator, Indicator: "price"}, suite.input(10))
	suite.True(ok)
	suite.Equal(models.DirectionLong, dir)

	zero := 0.0
	dir, ok = Decide(models.DirectionRule{Mode: models.DirectionModeOscillator, Indicator: "price", Midpoint: &zero}, suite.input(10))
	suite.True(ok)
	suite.Equal(models.DirectionShort, dir)
}

func (suite *ConditionTestSuite) TestDecideFixed() {
	dir, ok := Decide(models.DirectionRule{Mode: models.DirectionModeFixed, Fixed: models.DirectionShort}, suite.input(1))
	suite.True(ok)
	suite.Equal(models.DirectionShort, dir)
}
