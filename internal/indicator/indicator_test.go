package indicator

import (
	"math"
	"testing"
	"time"
	"tradebridge/internal/errors"
	"tradebridge/internal/models"

	"github.com/stretchr/testify/suite"
)

type IndicatorTestSuite struct {
	suite.Suite
	reg *Registry
}

func TestIndicatorSuite(t *testing.T) {
	suite.Run(t, new(IndicatorTestSuite))
}

func (suite *IndicatorTestSuite) SetupTest() {
	suite.reg = Default()
}

func barsFromCloses(values ...float64) []models.Bar {
	start := time.Date(2026, 1, 5, 0, 0, 0, 0, time.UTC)
	bars := make([]models.Bar, len(values))
	for i, c := range values {
		bars[i] = models.Bar{
			Time:  start.Add(time.Duration(i) * 15 * time.Minute),
			Open:  c,
			High:  c + 1,
			Low:   c - 1,
			Close: c,
		}
	}
	return bars
}

func rising(n int) []models.Bar {
	values := make([]float64, n)
	for i := range values {
		values[i] = 100 + float64(i)
	}
	return barsFromCloses(values...)
}

func (suite *IndicatorTestSuite) TestSMA() {
	s, err := suite.reg.Compute("sma_3", barsFromCloses(1, 2, 3, 4, 5))
	suite.Require().NoError(err)
	suite.True(math.IsNaN(s[0]))
	suite.True(math.IsNaN(s[1]))
	suite.InDelta(2, s[2], 1e-9)
	suite.InDelta(4, s[4], 1e-9)
}

func (suite *IndicatorTestSuite) TestEMASeedsWithAverage() {
	s, err := suite.reg.Compute("ema_3", barsFromCloses(1, 2, 3, 4))
	suite.Require().NoError(err)
	suite.InDelta(2, s[2], 1e-9)
	suite.InDelta(3, s[3], 1e-9)
}

func (suite *IndicatorTestSuite) TestRSIBounds() {
	s, err := suite.reg.Compute("rsi", rising(30))
	suite.Require().NoError(err)
	suite.True(math.IsNaN(s[13]))
	suite.InDelta(100, Last(s), 1e-9)

	flat, err := suite.reg.Compute("rsi_5", barsFromCloses(5, 5, 5, 5, 5, 5, 5))
	suite.Require().NoError(err)
	suite.InDelta(50, Last(flat), 1e-9)
}

func (suite *IndicatorTestSuite) TestATRConstantRange() {
	s, err := suite.reg.Compute("atr_5", barsFromCloses(10, 10, 10, 10, 10, 10, 10))
	suite.Require().NoError(err)
	suite.True(math.IsNaN(s[4]))
	suite.InDelta(2, s[5], 1e-9)
	suite.InDelta(2, Last(s), 1e-9)
}

func (suite *IndicatorTestSuite) TestStochasticAtHigh() {
	s, err := suite.reg.Compute("stochastic_k_5", rising(10))
	suite.Require().NoError(err)
	// close sits one below the window high on every bar
	suite.InDelta(100*5.0/6.0, Last(s), 1e-9)
}

func (suite *IndicatorTestSuite) TestBollingerOrdering() {
	bars := barsFromCloses(1, 3, 2, 4, 3, 5, 4, 6, 5, 7, 6, 8, 7, 9, 8, 10, 9, 11, 10, 12, 11)
	f := NewFrame(suite.reg, bars)
	upper, mid, lower := f.Last("bollinger_upper"), f.Last("bollinger_mid"), f.Last("bollinger_lower")
	suite.Greater(upper, mid)
	suite.Greater(mid, lower)
	suite.InDelta(upper-mid, mid-lower, 1e-9)
}

func (suite *IndicatorTestSuite) TestMACDNeedsSlowWindow() {
	short, err := suite.reg.Compute("macd", rising(20))
	suite.Require().NoError(err)
	suite.True(math.IsNaN(Last(short)))

	long, err := suite.reg.Compute("macd_signal", rising(60))
	suite.Require().NoError(err)
	suite.False(math.IsNaN(Last(long)))
}

func (suite *IndicatorTestSuite) TestADXTrending() {
	s, err := suite.reg.Compute("adx", rising(60))
	suite.Require().NoError(err)
	suite.True(math.IsNaN(s[26]))
	suite.Greater(Last(s), 50.0)
}

func (suite *IndicatorTestSuite) TestInsufficientBarsYieldNaN() {
	bars := rising(10)
	for _, name := range []string{"sma_50", "ema_50", "rsi", "atr", "adx", "cci", "roc_20", "bollinger_upper", "stochastic_d"} {
		s, err := suite.reg.Compute(name, bars)
		suite.Require().NoError(err, name)
		suite.Len(s, 10, name)
		suite.True(math.IsNaN(Last(s)), name)
	}
}

func (suite *IndicatorTestSuite) TestResolveNames() {
	def, period, err := suite.reg.Resolve("EMA_50")
	suite.Require().NoError(err)
	suite.Equal("ema", def.Name)
	suite.Equal(50, period)

	def, period, err = suite.reg.Resolve("macd_signal")
	suite.Require().NoError(err)
	suite.Equal("macd_signal", def.Name)
	suite.Equal(0, period)

	_, _, err = suite.reg.Resolve("ichimoku")
	suite.True(errors.HasCode(err, errors.ErrCodeIndicatorNotFound))
}

func (suite *IndicatorTestSuite) TestRegisterCustom() {
	err := suite.reg.Register(Definition{Name: "spread", Calc: func(bars []models.Bar, _ int) []float64 {
		out := make([]float64, len(bars))
		for i, b := range bars {
			out[i] = b.High - b.Low
		}
		return out
	}})
	suite.Require().NoError(err)
	suite.InDelta(2, NewFrame(suite.reg, rising(3)).Last("spread"), 1e-9)

	err = suite.reg.Register(Definition{Name: "ema", Calc: atr})
	suite.True(errors.HasCode(err, errors.ErrCodeAlreadyRegistered))
	suite.Contains(suite.reg.Names(), "spread")
}

func (suite *IndicatorTestSuite) TestFrameUnknownIsNaN() {
	f := NewFrame(suite.reg, rising(5))
	suite.True(math.IsNaN(f.Last("nope")))
	suite.InDelta(104, f.Last("price"), 1e-9)
	suite.InDelta(103, f.Prev("close"), 1e-9)
}
