package monitor

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"
	"tradebridge/internal/errors"
	"tradebridge/internal/logger"
	"tradebridge/internal/models"
	"tradebridge/internal/registry"
	"tradebridge/internal/relay"
	"tradebridge/internal/sizing"

	"github.com/moznion/go-optional"
	"github.com/stretchr/testify/suite"
)

type quietMarket struct{}

func (quietMarket) GetBars(context.Context, string, models.Timeframe, int) ([]models.Bar, error) {
	return nil, errors.New(errors.ErrCodeNotConnected, "нет связи")
}

func (quietMarket) GetPrice(context.Context, string) (models.PriceTick, error) {
	return models.PriceTick{}, errors.New(errors.ErrCodeNotConnected, "нет связи")
}

func (quietMarket) GetAccount(context.Context) (models.Account, error) {
	return models.Account{}, errors.New(errors.ErrCodeNotConnected, "нет связи")
}

func (quietMarket) GetSymbolInfo(context.Context, string) (models.SymbolInfo, error) {
	return models.SymbolInfo{}, errors.New(errors.ErrCodeNotConnected, "нет связи")
}

type noPositions struct{}

func (noPositions) Snapshot() []models.Position { return nil }
func (noPositions) ByStrategySymbol(string, string) []models.Position { return nil }
func (noPositions) CountByStrategy(string) int { return 0 }
func (noPositions) Trusted() bool { return true }

type noExecutor struct{}

func (noExecutor) OpenPosition(context.Context, models.OrderRequest) (models.Position, error) {
	return models.Position{}, errors.New(errors.ErrCodeExecution, "не ожидалось")
}

func (noExecutor) ClosePosition(context.Context, int64) error {
	return nil
}

func (noExecutor) ModifyPosition(context.Context, int64, optional.Option[float64], optional.Option[float64]) error {
	return nil
}

// recorder captures the order of emergency-stop steps.
type recorder struct {
	mu     sync.Mutex
	steps  []string
	kill   bool
	result registry.BatchResult
}

func (r *recorder) add(step string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.steps = append(r.steps, step)
}

func (r *recorder) Steps() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.steps...)
}

func (r *recorder) CancelAll() int {
	r.add("cancel")
	return 2
}

func (r *recorder) SetKillSwitch(on bool) {
	r.mu.Lock()
	r.kill = on
	r.mu.Unlock()
	if on {
		r.add("kill_on")
	} else {
		r.add("kill_off")
	}
}

func (r *recorder) CloseAll(context.Context) registry.BatchResult {
	r.add("close_all")
	return r.result
}

func (r *recorder) CloseByStrategy(_ context.Context, strategyID string) registry.BatchResult {
	r.add("strategy:" + strategyID)
	return r.result
}

func (r *recorder) CloseBySymbol(_ context.Context, symbol string) registry.BatchResult {
	r.add("symbol:" + symbol)
	return r.result
}

func (r *recorder) CloseProfitable(_ context.Context, minProfit float64) registry.BatchResult {
	r.add(fmt.Sprintf("profitable:%g", minProfit))
	return r.result
}

func (r *recorder) CloseLosing(_ context.Context, maxLoss float64) registry.BatchResult {
	r.add(fmt.Sprintf("losing:%g", maxLoss))
	return r.result
}

func (r *recorder) CloseOldest(_ context.Context, n int) registry.BatchResult {
	r.add(fmt.Sprintf("oldest:%d", n))
	return r.result
}

func (r *recorder) CloseNewest(_ context.Context, n int) registry.BatchResult {
	r.add(fmt.Sprintf("newest:%d", n))
	return r.result
}

type SupervisorTestSuite struct {
	suite.Suite
	rec    *recorder
	sup    *Supervisor
	events chan Event
}

func TestSupervisorSuite(t *testing.T) {
	suite.Run(t, new(SupervisorTestSuite))
}

func (s *SupervisorTestSuite) SetupTest() {
	s.rec = &recorder{result: registry.BatchResult{Results: []registry.CloseResult{{Ticket: 1}, {Ticket: 2}}}}
	s.events = make(chan Event, 64)
	deps := Deps{
		Market:    quietMarket{},
		Executor:  noExecutor{},
		Positions: noPositions{},
		Safety:    gateFunc(pass),
		Sizer:     sizing.New(sizing.Default()),
		Events:    s.events,
		Log:       logger.New(logger.Config{Output: logger.OutputDiscard}),
	}
	s.sup = NewSupervisor(deps, Options{Interval: time.Hour}, s.rec, s.rec, logger.New(logger.Config{Output: logger.OutputDiscard}))
}

func (s *SupervisorTestSuite) strategy(id string) models.Strategy {
	return models.Strategy{
		ID:        id,
		Symbols:   []string{"EURUSD"},
		Timeframe: models.TimeframeH1,
		Entry: models.ConditionSet{
			Conditions: []models.Condition{{Indicator: "close", Operator: models.OperatorGreaterThan, Value: 0}},
		},
		Risk: models.RiskConfig{Sizing: models.SizingFixed, FixedVolume: 0.1},
	}
}

func (s *SupervisorTestSuite) TestStartStopAndReplace() {
	s.Require().NoError(s.sup.Start(s.strategy("b")))
	s.Require().NoError(s.sup.Start(s.strategy("a")))
	s.Require().NoError(s.sup.Start(s.strategy("a")))
	s.Equal([]string{"a", "b"}, s.sup.Strategies())
	s.Len(s.sup.States(), 2)

	s.True(s.sup.Stop("a"))
	s.False(s.sup.Stop("a"))
	s.Equal([]string{"b"}, s.sup.Strategies())
	s.Equal(1, s.sup.StopAll())
	s.Empty(s.sup.Strategies())
}

func (s *SupervisorTestSuite) TestStartRejectsInvalidStrategy() {
	bad := s.strategy("x")
	bad.Symbols = nil
	err := s.sup.Start(bad)
	s.Require().Error(err)
	s.True(errors.IsValidation(err))
	s.Empty(s.sup.Strategies())
}

func (s *SupervisorTestSuite) TestEmergencyStopOrder() {
	s.Require().NoError(s.sup.Start(s.strategy("a")))

	result := s.sup.EmergencyStop(context.Background(), "ручной стоп")

	s.Equal([]string{"cancel", "kill_on", "close_all"}, s.rec.Steps())
	s.Empty(s.sup.Strategies())
	s.Equal(2, result.Succeeded())

	var stop *Event
	for len(s.events) > 0 {
		ev := <-s.events
		if ev.Type == EventEmergencyStop {
			stop = &ev
		}
	}
	s.Require().NotNil(stop)
	s.Equal("ручной стоп", stop.Reason)
	s.NoError(stop.Err)

	s.sup.ClearKillSwitch()
	s.False(s.rec.kill)
}

func (s *SupervisorTestSuite) TestRunServesRelayCommands() {
	ctx, cancel := context.WithCancel(context.Background())
	src := relay.NewLocal(4)

	done := make(chan error, 1)
	go func() {
		done <- s.sup.Run(ctx, []models.Strategy{s.strategy("boot")}, src.Commands())
	}()

	s.Eventually(func() bool {
		return len(s.sup.Strategies()) == 1
	}, time.Second, 5*time.Millisecond)

	extra := s.strategy("extra")
	s.Require().NoError(src.Send(ctx, relay.Command{Type: relay.StartStrategy, Strategy: &extra}))
	s.Eventually(func() bool {
		return len(s.sup.Strategies()) == 2
	}, time.Second, 5*time.Millisecond)

	s.Require().NoError(src.Send(ctx, relay.Command{Type: relay.StopStrategy, StrategyID: "boot"}))
	s.Eventually(func() bool {
		ids := s.sup.Strategies()
		return len(ids) == 1 && ids[0] == "extra"
	}, time.Second, 5*time.Millisecond)

	s.Require().NoError(src.Send(ctx, relay.Command{Type: relay.EmergencyStop, Reason: "сигнал"}))
	s.Eventually(func() bool {
		return len(s.rec.Steps()) == 3
	}, time.Second, 5*time.Millisecond)
	s.Empty(s.sup.Strategies())

	cancel()
	select {
	case err := <-done:
		s.ErrorIs(err, context.Canceled)
	case <-time.After(time.Second):
		s.Fail("супервизор не остановился")
	}
}

func (s *SupervisorTestSuite) TestEmergencyStopReportsUnreachableTerminal() {
	s.rec.result = registry.BatchResult{Err: errors.New(errors.ErrCodeNotConnected, "нет связи")}

	result := s.sup.EmergencyStop(context.Background(), "обрыв")
	s.Error(result.Err)

	var stop *Event
	for len(s.events) > 0 {
		ev := <-s.events
		if ev.Type == EventEmergencyStop {
			stop = &ev
		}
	}
	s.Require().NotNil(stop)
	s.True(errors.HasCode(stop.Err, errors.ErrCodeNotConnected))
}

func (s *SupervisorTestSuite) TestBatchCloseCommands() {
	s.Require().NoError(s.sup.Start(s.strategy("a")))
	ctx := context.Background()

	s.sup.Handle(ctx, relay.Command{Type: relay.CloseByStrategy, StrategyID: "a"})
	s.sup.Handle(ctx, relay.Command{Type: relay.CloseBySymbol, Symbol: "EURUSD"})
	s.sup.Handle(ctx, relay.Command{Type: relay.CloseProfitable, MinProfit: 5})
	s.sup.Handle(ctx, relay.Command{Type: relay.CloseLosing, MaxLoss: 20})
	s.sup.Handle(ctx, relay.Command{Type: relay.CloseOldest, Count: 2})
	s.sup.Handle(ctx, relay.Command{Type: relay.CloseNewest, Count: 1})
	s.sup.Handle(ctx, relay.Command{Type: relay.CloseAll})

	s.Equal([]string{
		"strategy:a", "symbol:EURUSD", "profitable:5", "losing:20", "oldest:2", "newest:1", "close_all",
	}, s.rec.Steps())
	s.Equal([]string{"a"}, s.sup.Strategies())
	s.False(s.rec.kill)

	s.Error(s.sup.Liquidate(ctx, relay.Command{Type: relay.StopStrategy}).Err)
}
