package monitor

import (
	"context"
	"sort"
	"sync"
	"tradebridge/internal/errors"
	"tradebridge/internal/logger"
	"tradebridge/internal/models"
	"tradebridge/internal/registry"
	"tradebridge/internal/relay"

	"github.com/sirupsen/logrus"
)

// Dispatch is the part of the command dispatcher an emergency stop needs.
type Dispatch interface {
	CancelAll() int
	SetKillSwitch(on bool)
}

// Liquidator runs batch closes, normally the position registry.
type Liquidator interface {
	CloseAll(ctx context.Context) registry.BatchResult
	CloseByStrategy(ctx context.Context, strategyID string) registry.BatchResult
	CloseBySymbol(ctx context.Context, symbol string) registry.BatchResult
	CloseProfitable(ctx context.Context, minProfit float64) registry.BatchResult
	CloseLosing(ctx context.Context, maxLoss float64) registry.BatchResult
	CloseOldest(ctx context.Context, n int) registry.BatchResult
	CloseNewest(ctx context.Context, n int) registry.BatchResult
}

type handle struct {
	monitor *Monitor
	cancel  context.CancelFunc
	done    chan struct{}
}

// Supervisor owns the set of running monitors and reacts to operator
// commands, including the emergency stop.
type Supervisor struct {
	deps       Deps
	opts       Options
	dispatch   Dispatch
	liquidator Liquidator
	log        *logger.Logger

	mu      sync.Mutex
	running map[string]*handle
	root    context.Context
}

func NewSupervisor(deps Deps, opts Options, dispatch Dispatch, liquidator Liquidator, log *logger.Logger) *Supervisor {
	return &Supervisor{
		deps:       deps,
		opts:       opts,
		dispatch:   dispatch,
		liquidator: liquidator,
		log:        log,
		running:    make(map[string]*handle),
		root:       context.Background(),
	}
}

func (s *Supervisor) logEntry() *logrus.Entry {
	return s.log.WithComponent("supervisor")
}

// Start launches a monitor for the strategy, replacing a running one with
// the same id.
func (s *Supervisor) Start(strategy models.Strategy) error {
	if err := strategy.Validate(); err != nil {
		return errors.Wrapf(errors.ErrCodeInvalidParameter, err, "Стратегия %s не прошла проверку", strategy.ID)
	}
	s.Stop(strategy.ID)

	s.mu.Lock()
	defer s.mu.Unlock()

	ctx, cancel := context.WithCancel(s.root)
	h := &handle{
		monitor: New(strategy, s.deps, s.opts),
		cancel:  cancel,
		done:    make(chan struct{}),
	}
	s.running[strategy.ID] = h

	go func() {
		defer close(h.done)
		_ = h.monitor.Run(ctx)
	}()

	s.logEntry().WithField("strategy_id", strategy.ID).Info("Стратегия запущена.")
	return nil
}

// Stop halts one monitor and waits for its current tick to end.
func (s *Supervisor) Stop(id string) bool {
	s.mu.Lock()
	h, ok := s.running[id]
	if ok {
		delete(s.running, id)
	}
	s.mu.Unlock()

	if !ok {
		return false
	}
	h.cancel()
	<-h.done
	s.logEntry().WithField("strategy_id", id).Info("Стратегия остановлена.")
	return true
}

func (s *Supervisor) StopAll() int {
	s.mu.Lock()
	handles := s.running
	s.running = make(map[string]*handle)
	s.mu.Unlock()

	for _, h := range handles {
		h.cancel()
	}
	for _, h := range handles {
		<-h.done
	}
	return len(handles)
}

func (s *Supervisor) Strategies() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	ids := make([]string, 0, len(s.running))
	for id := range s.running {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

func (s *Supervisor) States() []State {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]State, 0, len(s.running))
	for _, h := range s.running {
		out = append(out, h.monitor.State())
	}
	sort.Slice(out, func(i, j int) bool { return out[i].StrategyID < out[j].StrategyID })
	return out
}

// EmergencyStop halts every monitor, cancels in-flight commands, engages
// the kill switch and closes every open position.
func (s *Supervisor) EmergencyStop(ctx context.Context, reason string) registry.BatchResult {
	entry := s.logEntry().WithField("reason", reason)
	entry.Error("Аварийный стоп.")

	halted := s.StopAll()
	cancelled := s.dispatch.CancelAll()
	s.dispatch.SetKillSwitch(true)
	result := s.liquidator.CloseAll(ctx)

	if result.Err != nil {
		entry = entry.WithError(result.Err)
	}
	entry.WithFields(logrus.Fields{
		"monitors":  halted,
		"cancelled": cancelled,
		"closed":    result.Succeeded(),
		"failed":    result.Failed(),
	}).Error("Аварийный стоп выполнен.")

	if s.deps.Events != nil {
		ev := Event{
			Type:   EventEmergencyStop,
			Reason: reason,
			Time:   s.deps.now(),
		}
		switch failed := result.Failed(); {
		case result.Err != nil:
			ev.Err = result.Err
		case failed > 0:
			ev.Err = errors.Newf(errors.ErrCodeExecution, "Не закрыто позиций: %d", failed)
		}
		select {
		case s.deps.Events <- ev:
		default:
		}
	}
	return result
}

func (s *Supervisor) ClearKillSwitch() {
	s.dispatch.SetKillSwitch(false)
	s.logEntry().Warn("Аварийный стоп снят.")
}

// Run starts the configured strategies and then serves operator commands
// until ctx is done. Monitors are stopped on return.
func (s *Supervisor) Run(ctx context.Context, strategies []models.Strategy, commands <-chan relay.Command) error {
	s.mu.Lock()
	s.root = ctx
	s.mu.Unlock()
	defer s.StopAll()

	for _, strategy := range strategies {
		if err := s.Start(strategy); err != nil {
			s.logEntry().WithError(err).Error("Не удалось запустить стратегию.")
		}
	}

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case cmd, ok := <-commands:
			if !ok {
				commands = nil
				continue
			}
			s.Handle(ctx, cmd)
		}
	}
}

func (s *Supervisor) Handle(ctx context.Context, cmd relay.Command) {
	switch cmd.Type {
	case relay.StartStrategy:
		if cmd.Strategy == nil {
			s.logEntry().Warn("START_STRATEGY без стратегии.")
			return
		}
		if err := s.Start(*cmd.Strategy); err != nil {
			s.logEntry().WithError(err).Warn("Не удалось запустить стратегию.")
		}
	case relay.StopStrategy:
		if !s.Stop(cmd.StrategyID) {
			s.logEntry().WithField("strategy_id", cmd.StrategyID).Warn("Стратегия не запущена.")
		}
	case relay.EmergencyStop:
		s.EmergencyStop(ctx, cmd.Reason)
	case relay.ClearKillSwitch:
		s.ClearKillSwitch()
	case relay.CloseAll, relay.CloseByStrategy, relay.CloseBySymbol, relay.CloseProfitable,
		relay.CloseLosing, relay.CloseOldest, relay.CloseNewest:
		s.Liquidate(ctx, cmd)
	default:
		s.logEntry().WithField("type", cmd.Type).Warn("Неизвестная управляющая команда.")
	}
}

// Liquidate runs an operator batch close. Monitors keep running; the closes
// go through the same path as an emergency stop.
func (s *Supervisor) Liquidate(ctx context.Context, cmd relay.Command) registry.BatchResult {
	var result registry.BatchResult
	switch cmd.Type {
	case relay.CloseAll:
		result = s.liquidator.CloseAll(ctx)
	case relay.CloseByStrategy:
		result = s.liquidator.CloseByStrategy(ctx, cmd.StrategyID)
	case relay.CloseBySymbol:
		result = s.liquidator.CloseBySymbol(ctx, cmd.Symbol)
	case relay.CloseProfitable:
		result = s.liquidator.CloseProfitable(ctx, cmd.MinProfit)
	case relay.CloseLosing:
		result = s.liquidator.CloseLosing(ctx, cmd.MaxLoss)
	case relay.CloseOldest:
		result = s.liquidator.CloseOldest(ctx, cmd.Count)
	case relay.CloseNewest:
		result = s.liquidator.CloseNewest(ctx, cmd.Count)
	default:
		result.Err = errors.Newf(errors.ErrCodeInvalidParameter, "Команда %s не является пакетным закрытием", cmd.Type)
	}

	entry := s.logEntry().WithFields(logrus.Fields{
		"type":   cmd.Type,
		"closed": result.Succeeded(),
		"failed": result.Failed(),
	})
	if result.Err != nil {
		entry.WithError(result.Err).Warn("Пакетное закрытие не выполнено.")
	} else {
		entry.Info("Пакетное закрытие по команде оператора.")
	}
	return result
}
