package registry

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"
	bridgeerrors "tradebridge/internal/errors"
	"tradebridge/internal/logger"
	"tradebridge/internal/models"
	"tradebridge/internal/terminal/protocol"

	"github.com/stretchr/testify/suite"
)

type scriptedSource struct {
	mu    sync.Mutex
	steps []func() ([]models.Position, error)
	calls int
}

func (s *scriptedSource) push(positions []models.Position, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.steps = append(s.steps, func() ([]models.Position, error) { return positions, err })
}

func (s *scriptedSource) GetPositions(context.Context) ([]models.Position, error) {
	s.mu.Lock()
	step := s.steps[s.calls]
	s.calls++
	s.mu.Unlock()
	return step()
}

type recordingCloser struct {
	mu      sync.Mutex
	closed  []int64
	failing map[int64]bool
}

func (c *recordingCloser) ClosePosition(_ context.Context, ticket int64) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.closed = append(c.closed, ticket)
	if c.failing[ticket] {
		return errors.New("terminal rejected close")
	}
	return nil
}

type remoteCloser struct {
	recordingCloser
	calls   []string
	results []protocol.TicketResult
	err     error
}

func (c *remoteCloser) batch(name string) ([]protocol.TicketResult, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.calls = append(c.calls, name)
	return c.results, c.err
}

func (c *remoteCloser) CloseAll(context.Context) ([]protocol.TicketResult, error) {
	return c.batch("all")
}

func (c *remoteCloser) CloseByStrategy(_ context.Context, strategyID string) ([]protocol.TicketResult, error) {
	return c.batch("strategy:" + strategyID)
}

func (c *remoteCloser) CloseBySymbol(_ context.Context, symbol string) ([]protocol.TicketResult, error) {
	return c.batch("symbol:" + symbol)
}

func (c *remoteCloser) CloseProfitable(context.Context, float64) ([]protocol.TicketResult, error) {
	return c.batch("profitable")
}

func (c *remoteCloser) CloseLosing(context.Context, float64) ([]protocol.TicketResult, error) {
	return c.batch("losing")
}

type RegistryTestSuite struct {
	suite.Suite
	source *scriptedSource
	closer *recordingCloser
	reg    *Registry
	now    time.Time
}

func TestRegistrySuite(t *testing.T) {
	suite.Run(t, new(RegistryTestSuite))
}

func (suite *RegistryTestSuite) SetupTest() {
	suite.source = &scriptedSource{}
	suite.closer = &recordingCloser{failing: map[int64]bool{}}
	suite.reg = New(suite.source, suite.closer, logger.New(logger.Config{Output: logger.OutputDiscard}), Options{FailureThreshold: 3})
	suite.now = time.Date(2026, 10, 14, 9, 0, 0, 0, time.UTC)
	suite.reg.now = func() time.Time { return suite.now }
}

func pos(ticket int64, strategy, symbol string, profit float64, opened time.Time) models.Position {
	return models.Position{
		Ticket:    ticket,
		Symbol:    symbol,
		Direction: models.DirectionLong,
		Volume:    0.1,
		Profit:    profit,
		OpenTime:  opened,
		Tag:       models.Tag(strategy, symbol, models.DirectionLong),
	}
}

func (suite *RegistryTestSuite) drain() []Event {
	var out []Event
	for {
		select {
		case ev := <-suite.reg.Events():
			out = append(out, ev)
		default:
			return out
		}
	}
}

func (suite *RegistryTestSuite) TestReconcileMatchesSnapshot() {
	suite.source.push([]models.Position{
		pos(1, "s1", "EURUSD", 5, suite.now),
		pos(2, "s2", "GBPUSD", -2, suite.now),
	}, nil)
	suite.Require().NoError(suite.reg.Reconcile(context.Background()))

	suite.True(suite.reg.Trusted())
	suite.Equal(2, suite.reg.Count())
	p, ok := suite.reg.Get(1)
	suite.True(ok)
	suite.Equal("s1", p.StrategyID)
	suite.Len(suite.drain(), 2)
}

func (suite *RegistryTestSuite) TestDiffEvents() {
	suite.source.push([]models.Position{pos(1, "s1", "EURUSD", 5, suite.now), pos(2, "s1", "GBPUSD", 1, suite.now)}, nil)
	suite.source.push([]models.Position{pos(1, "s1", "EURUSD", 7, suite.now), pos(3, "s2", "USDJPY", 0, suite.now)}, nil)

	suite.Require().NoError(suite.reg.Reconcile(context.Background()))
	suite.drain()
	suite.Require().NoError(suite.reg.Reconcile(context.Background()))

	byType := map[EventType][]int64{}
	for _, ev := range suite.drain() {
		byType[ev.Type] = append(byType[ev.Type], ev.Position.Ticket)
	}
	suite.Equal([]int64{1}, byType[EventUpdated])
	suite.Equal([]int64{2}, byType[EventRemoved])
	suite.Equal([]int64{3}, byType[EventAdded])
}

func (suite *RegistryTestSuite) TestThreeFailuresResetThenRebuild() {
	suite.source.push([]models.Position{pos(1, "s1", "EURUSD", 5, suite.now)}, nil)
	down := errors.New("terminal unreachable")
	suite.source.push(nil, down)
	suite.source.push(nil, down)
	suite.source.push(nil, down)
	suite.source.push([]models.Position{pos(4, "s1", "EURUSD", 1, suite.now), pos(5, "s2", "XAUUSD", 2, suite.now)}, nil)

	ctx := context.Background()
	suite.Require().NoError(suite.reg.Reconcile(ctx))

	suite.Error(suite.reg.Reconcile(ctx))
	suite.Error(suite.reg.Reconcile(ctx))
	suite.Equal(1, suite.reg.Count())
	suite.True(suite.reg.Trusted())

	err := suite.reg.Reconcile(ctx)
	suite.True(bridgeerrors.IsDrift(err))
	suite.Equal(0, suite.reg.Count())
	suite.False(suite.reg.Trusted())
	suite.Empty(suite.reg.Snapshot())

	suite.Require().NoError(suite.reg.Reconcile(ctx))
	suite.True(suite.reg.Trusted())
	suite.Equal([]int64{4, 5}, tickets(suite.reg.Snapshot()))
}

func (suite *RegistryTestSuite) TestAbsorbedSurvivesOlderSnapshot() {
	started := suite.now
	suite.source.steps = append(suite.source.steps, func() ([]models.Position, error) {
		// the open reply lands while the snapshot request is in flight
		suite.now = started.Add(100 * time.Millisecond)
		suite.reg.Absorb(pos(9, "s1", "EURUSD", 0, suite.now))
		return nil, nil
	})
	suite.source.push(nil, nil)

	suite.Require().NoError(suite.reg.Reconcile(context.Background()))
	_, ok := suite.reg.Get(9)
	suite.True(ok)

	suite.now = started.Add(10 * time.Second)
	suite.Require().NoError(suite.reg.Reconcile(context.Background()))
	_, ok = suite.reg.Get(9)
	suite.False(ok)
}

func (suite *RegistryTestSuite) TestSnapshotIsCopy() {
	suite.source.push([]models.Position{pos(1, "s1", "EURUSD", 5, suite.now)}, nil)
	suite.Require().NoError(suite.reg.Reconcile(context.Background()))

	snap := suite.reg.Snapshot()
	snap[0].Profit = 999
	p, _ := suite.reg.Get(1)
	suite.Equal(5.0, p.Profit)
}

func (suite *RegistryTestSuite) TestQueries() {
	t0 := suite.now
	suite.source.push([]models.Position{
		pos(1, "s1", "EURUSD", 5, t0.Add(2*time.Minute)),
		pos(2, "s1", "GBPUSD", -2, t0),
		pos(3, "s2", "EURUSD", 8, t0.Add(time.Minute)),
		{Ticket: 4, Symbol: "XAUUSD", Profit: -10, OpenTime: t0.Add(3 * time.Minute), Tag: "manual"},
	}, nil)
	suite.Require().NoError(suite.reg.Reconcile(context.Background()))

	suite.Equal([]int64{1, 2}, tickets(suite.reg.ByStrategy("s1")))
	suite.Equal(2, suite.reg.CountByStrategy("s1"))
	suite.Equal([]int64{4}, tickets(suite.reg.ByStrategy("")))
	suite.Equal([]int64{1, 3}, tickets(suite.reg.BySymbol("EURUSD")))
	suite.Equal([]int64{3}, tickets(suite.reg.ByStrategySymbol("s2", "EURUSD")))
	suite.Equal([]int64{1, 3}, tickets(suite.reg.Profitable(0)))
	suite.Equal([]int64{4}, tickets(suite.reg.Losing(5)))
	suite.Equal([]int64{2, 3}, tickets(suite.reg.Oldest(2)))
	suite.Equal([]int64{4}, tickets(suite.reg.Newest(1)))
}

func (suite *RegistryTestSuite) TestCloseProfitableClosesOnlyWinners() {
	suite.source.push([]models.Position{
		pos(1, "s1", "EURUSD", 5, suite.now),
		pos(2, "s1", "GBPUSD", -2, suite.now),
		pos(3, "s2", "USDJPY", 8, suite.now),
	}, nil)
	suite.Require().NoError(suite.reg.Reconcile(context.Background()))
	suite.closer.failing[3] = true

	res := suite.reg.CloseProfitable(context.Background(), 0)

	suite.ElementsMatch([]int64{1, 3}, suite.closer.closed)
	suite.Require().Len(res.Results, 2)
	suite.Equal(int64(1), res.Results[0].Ticket)
	suite.NoError(res.Results[0].Err)
	suite.Equal(int64(3), res.Results[1].Ticket)
	suite.Error(res.Results[1].Err)
	suite.Equal(1, res.Succeeded())
	suite.Equal(1, res.Failed())

	_, ok := suite.reg.Get(1)
	suite.False(ok)
	_, ok = suite.reg.Get(3)
	suite.True(ok)
}

func (suite *RegistryTestSuite) TestCloseByStrategyAndCancelledContext() {
	suite.source.push([]models.Position{
		pos(1, "s1", "EURUSD", 5, suite.now),
		pos(2, "s1", "GBPUSD", -2, suite.now),
		pos(3, "s2", "USDJPY", 8, suite.now),
	}, nil)
	suite.Require().NoError(suite.reg.Reconcile(context.Background()))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	res := suite.reg.CloseByStrategy(ctx, "s1")
	suite.Len(res.Results, 2)
	suite.Equal(2, res.Failed())
	suite.Empty(suite.closer.closed)

	res = suite.reg.CloseAll(context.Background())
	suite.Equal(3, res.Succeeded())
	suite.Equal(0, suite.reg.Count())
}

func tickets(positions []models.Position) []int64 {
	out := make([]int64, 0, len(positions))
	for _, p := range positions {
		out = append(out, p.Ticket)
	}
	return out
}

func (suite *RegistryTestSuite) TestStaleSnapshotDoesNotResurrectClosedTicket() {
	suite.source.push([]models.Position{pos(1, "s1", "EURUSD", 5, suite.now), pos(2, "s1", "GBPUSD", 1, suite.now)}, nil)
	suite.Require().NoError(suite.reg.Reconcile(context.Background()))
	suite.drain()

	// the snapshot is taken before the close lands
	suite.source.mu.Lock()
	suite.source.steps = append(suite.source.steps, func() ([]models.Position, error) {
		suite.now = suite.now.Add(time.Second)
		suite.Equal(2, suite.reg.CloseByStrategy(context.Background(), "s1").Succeeded())
		return []models.Position{pos(1, "s1", "EURUSD", 5, suite.now), pos(2, "s1", "GBPUSD", 1, suite.now)}, nil
	})
	suite.source.mu.Unlock()
	suite.Require().NoError(suite.reg.Reconcile(context.Background()))

	suite.Equal(0, suite.reg.Count())
	removed := 0
	for _, ev := range suite.drain() {
		suite.NotEqual(EventAdded, ev.Type)
		if ev.Type == EventRemoved {
			removed++
		}
	}
	suite.Equal(2, removed)

	suite.now = suite.now.Add(time.Second)
	suite.source.push(nil, nil)
	suite.Require().NoError(suite.reg.Reconcile(context.Background()))
	suite.Empty(suite.drain())
}

func (suite *RegistryTestSuite) TestUntrustedBatchClosesRunOnTerminal() {
	remote := &remoteCloser{
		recordingCloser: recordingCloser{failing: map[int64]bool{}},
		results: []protocol.TicketResult{
			{Ticket: 9, OK: false, Message: "market closed"},
			{Ticket: 8, OK: true, Profit: 3},
		},
	}
	reg := New(suite.source, remote, logger.New(logger.Config{Output: logger.OutputDiscard}), Options{FailureThreshold: 1})
	suite.source.push([]models.Position{pos(8, "s1", "EURUSD", 3, suite.now)}, nil)
	suite.source.push(nil, errors.New("terminal down"))
	suite.Require().NoError(reg.Reconcile(context.Background()))
	suite.Error(reg.Reconcile(context.Background()))
	suite.Require().False(reg.Trusted())
	suite.Zero(reg.Count())

	res := reg.CloseAll(context.Background())
	suite.NoError(res.Err)
	suite.Require().Len(res.Results, 2)
	suite.Equal(int64(8), res.Results[0].Ticket)
	suite.NoError(res.Results[0].Err)
	suite.True(bridgeerrors.IsExecution(res.Results[1].Err))
	suite.Empty(remote.closed)

	reg.CloseByStrategy(context.Background(), "s1")
	reg.CloseBySymbol(context.Background(), "EURUSD")
	reg.CloseProfitable(context.Background(), 0)
	reg.CloseLosing(context.Background(), 0)
	suite.Equal([]string{"all", "strategy:s1", "symbol:EURUSD", "profitable", "losing"}, remote.calls)

	remote.err = bridgeerrors.New(bridgeerrors.ErrCodeConnectivity, "нет связи")
	res = reg.CloseAll(context.Background())
	suite.Error(res.Err)
	suite.Empty(res.Results)
}

func (suite *RegistryTestSuite) TestTrustedBatchClosesStayLocal() {
	remote := &remoteCloser{recordingCloser: recordingCloser{failing: map[int64]bool{}}}
	reg := New(suite.source, remote, logger.New(logger.Config{Output: logger.OutputDiscard}), Options{})
	suite.source.push([]models.Position{pos(8, "s1", "EURUSD", 3, suite.now)}, nil)
	suite.Require().NoError(reg.Reconcile(context.Background()))

	res := reg.CloseAll(context.Background())
	suite.Equal(1, res.Succeeded())
	suite.Equal([]int64{8}, remote.closed)
	suite.Empty(remote.calls)
}
