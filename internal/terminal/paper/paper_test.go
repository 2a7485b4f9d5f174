package paper

import (
	"testing"
	"time"
	"tradebridge/internal/errors"
	"tradebridge/internal/models"
	"tradebridge/internal/terminal/protocol"

	"github.com/stretchr/testify/suite"
)

type BrokerTestSuite struct {
	suite.Suite
	broker *Broker
	now    time.Time
}

func TestBrokerSuite(t *testing.T) {
	suite.Run(t, new(BrokerTestSuite))
}

func (s *BrokerTestSuite) SetupTest() {
	s.now = time.Date(2024, 5, 6, 10, 7, 30, 0, time.UTC)
	s.broker = NewBroker(DefaultCatalog(), 10000, "USD")
	s.broker.now = func() time.Time { return s.now }
	s.Require().NoError(s.broker.SetPrice("EURUSD", 1.1))
}

func (s *BrokerTestSuite) open(dir models.Direction, volume float64) models.Position {
	pos, err := s.broker.Open(protocol.OpenPositionParams{
		Symbol:    "EURUSD",
		Direction: dir,
		Volume:    volume,
		Tag:       models.Tag("trend", "EURUSD", dir),
	})
	s.Require().NoError(err)
	return pos
}

func (s *BrokerTestSuite) TestBarsHonorRequest() {
	bars, err := s.broker.Bars("EURUSD", models.TimeframeM15, 100)
	s.Require().NoError(err)
	s.Require().Len(bars, 100)

	s.Equal(time.Date(2024, 5, 6, 10, 0, 0, 0, time.UTC), bars[99].Time)
	s.Equal(15*time.Minute, bars[99].Time.Sub(bars[98].Time))
	s.InDelta(1.1, bars[99].Close, 0.00001)
	for _, bar := range bars {
		s.GreaterOrEqual(bar.High, bar.Low)
		s.GreaterOrEqual(bar.High, bar.Close)
		s.LessOrEqual(bar.Low, bar.Open)
	}

	again, err := s.broker.Bars("EURUSD", models.TimeframeM15, 100)
	s.Require().NoError(err)
	s.Equal(bars, again)

	h1, err := s.broker.Bars("EURUSD", models.TimeframeH1, 30)
	s.Require().NoError(err)
	s.Len(h1, 30)
	s.Equal(time.Hour, h1[29].Time.Sub(h1[28].Time))
}

func (s *BrokerTestSuite) TestBarsRejectUnknownSymbol() {
	_, err := s.broker.Bars("DOGEUSD", models.TimeframeM15, 10)
	s.True(errors.HasCode(err, errors.ErrCodeNotFound))

	_, err = s.broker.Bars("EURUSD", models.TimeframeM15, 0)
	s.True(errors.IsValidation(err))
}

func (s *BrokerTestSuite) TestProfitAndBalance() {
	pos := s.open(models.DirectionLong, 1)
	s.Equal("trend", pos.StrategyID)
	s.InDelta(1.10006, pos.OpenPrice, 1e-9)

	s.Require().NoError(s.broker.SetPrice("EURUSD", 1.101))
	positions := s.broker.Positions()
	s.Require().Len(positions, 1)
	s.InDelta(88.0, positions[0].Profit, 1e-9)

	acc := s.broker.Account()
	s.InDelta(10088.0, acc.Equity, 1e-9)
	s.InDelta(1000.0, acc.Margin, 1e-9)

	closed, err := s.broker.Close(pos.Ticket)
	s.Require().NoError(err)
	s.InDelta(88.0, closed.Profit, 1e-9)

	acc = s.broker.Account()
	s.InDelta(10088.0, acc.Balance, 1e-9)
	s.InDelta(88.0, acc.DailyPL, 1e-9)
	s.Empty(s.broker.Positions())

	_, err = s.broker.Close(pos.Ticket)
	s.True(errors.HasCode(err, errors.ErrCodeNotFound))
}

func (s *BrokerTestSuite) TestShortProfit() {
	pos := s.open(models.DirectionShort, 0.5)
	s.Require().NoError(s.broker.SetPrice("EURUSD", 1.099))

	closed, err := s.broker.Close(pos.Ticket)
	s.Require().NoError(err)
	s.InDelta(44.0, closed.Profit, 1e-9)
}

func (s *BrokerTestSuite) TestOpenValidatesVolumeAndMargin() {
	_, err := s.broker.Open(protocol.OpenPositionParams{Symbol: "EURUSD", Direction: models.DirectionLong, Volume: 0.001})
	s.True(errors.IsValidation(err))

	_, err = s.broker.Open(protocol.OpenPositionParams{Symbol: "EURUSD", Direction: models.DirectionLong, Volume: 50})
	s.True(errors.IsExecution(err))
}

func (s *BrokerTestSuite) TestStepClosesOnStopLoss() {
	sl := 1.0995
	pos, err := s.broker.Open(protocol.OpenPositionParams{Symbol: "EURUSD", Direction: models.DirectionLong, Volume: 0.1, StopLoss: &sl})
	s.Require().NoError(err)

	s.Require().NoError(s.broker.SetPrice("EURUSD", 1.09))
	s.broker.Step()

	s.Empty(s.broker.Positions())
	_, err = s.broker.Close(pos.Ticket)
	s.Error(err)
}

func (s *BrokerTestSuite) TestModify() {
	pos := s.open(models.DirectionLong, 0.1)
	tp := 1.2
	s.Require().NoError(s.broker.Modify(protocol.ModifyPositionParams{Ticket: pos.Ticket, TakeProfit: &tp}))
	s.Equal(1.2, s.broker.Positions()[0].TakeProfit)

	err := s.broker.Modify(protocol.ModifyPositionParams{Ticket: 1})
	s.True(errors.HasCode(err, errors.ErrCodeNotFound))
}

func (s *BrokerTestSuite) TestPricesSorted() {
	prices := s.broker.Prices()
	s.Require().Len(prices, len(DefaultCatalog().Instruments))
	for i := 1; i < len(prices); i++ {
		s.Less(prices[i-1].Symbol, prices[i].Symbol)
	}
}

func (s *BrokerTestSuite) TestParseCatalog() {
	c, err := ParseCatalog([]byte(`
instruments:
  - symbol: EURUSD
    point: 0.00001
    digits: 5
    volume_min: 0.01
    volume_max: 100
    volume_step: 0.01
    point_value: 1
    margin_per_lot: 1000
    price: 1.08
    spread_points: 10
`))
	s.Require().NoError(err)
	s.Require().Len(c.Instruments, 1)
	s.Equal("EURUSD", c.Instruments[0].Symbol)
	s.Equal(0.01, c.Instruments[0].VolumeStep)
	s.Equal(10.0, c.Instruments[0].SpreadPoints)

	_, err = ParseCatalog([]byte("instruments:\n  - symbol: X\n"))
	s.Error(err)
}

func (s *BrokerTestSuite) TestShippedCatalog() {
	c, err := LoadCatalog("../../../configs/symbols.yaml")
	s.Require().NoError(err)
	s.Require().NotEmpty(c.Instruments)
	s.Equal("EURUSD", c.Instruments[0].Symbol)
	s.Equal(5, c.Instruments[0].Digits)

	_, err = LoadCatalog("no-such-file.yaml")
	s.True(errors.HasCode(err, errors.ErrCodeInvalidConfiguration))
}
