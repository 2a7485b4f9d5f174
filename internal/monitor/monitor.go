package monitor

import (
	"context"
	"sync"
	"time"
	"tradebridge/internal/condition"
	"tradebridge/internal/errors"
	"tradebridge/internal/indicator"
	"tradebridge/internal/models"
	"tradebridge/internal/safety"
	"tradebridge/internal/sizing"

	"github.com/moznion/go-optional"
	"github.com/sirupsen/logrus"
)

const (
	defaultInterval = 15 * time.Second
	defaultBarCount = 200
	atrIndicator    = "atr_14"
	checkSizing     = "sizing"
	checkRegistry   = "registry"
)

type Options struct {
	Interval time.Duration
	BarCount int
}

// Monitor runs one strategy on a fixed wall-clock interval, independent of
// the timeframe it trades.
type Monitor struct {
	strategy models.Strategy
	deps     Deps
	interval time.Duration
	barCount int

	mu    sync.Mutex
	state State
}

func New(strategy models.Strategy, deps Deps, opts Options) *Monitor {
	if opts.Interval <= 0 {
		opts.Interval = defaultInterval
	}
	barCount := strategy.BarCount
	if barCount <= 0 {
		barCount = opts.BarCount
	}
	if barCount <= 0 {
		barCount = defaultBarCount
	}
	if deps.Indicators == nil {
		deps.Indicators = indicator.Default()
	}
	return &Monitor{
		strategy: strategy,
		deps:     deps,
		interval: opts.Interval,
		barCount: barCount,
		state:    State{StrategyID: strategy.ID, Phase: PhaseIdle},
	}
}

func (m *Monitor) logEntry() *logrus.Entry {
	return m.deps.Log.WithComponent("monitor").WithField("strategy_id", m.strategy.ID)
}

func (m *Monitor) Strategy() models.Strategy {
	return m.strategy
}

func (m *Monitor) State() State {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

func (m *Monitor) update(fn func(s *State)) {
	m.mu.Lock()
	defer m.mu.Unlock()
	fn(&m.state)
}

func (m *Monitor) setPhase(p Phase) {
	m.update(func(s *State) { s.Phase = p })
}

// Run ticks immediately and then on every interval until ctx is done.
func (m *Monitor) Run(ctx context.Context) error {
	m.logEntry().WithField("interval", m.interval).Info("Монитор стратегии запущен.")
	m.Tick(ctx)

	ticker := time.NewTicker(m.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			m.setPhase(PhaseIdle)
			m.logEntry().Info("Монитор стратегии остановлен.")
			return ctx.Err()
		case <-ticker.C:
			m.Tick(ctx)
		}
	}
}

// Tick evaluates every symbol of the strategy once. A failure on one symbol
// is logged and does not stop the others.
func (m *Monitor) Tick(ctx context.Context) {
	now := m.deps.now()
	m.update(func(s *State) {
		s.LastTick = now
		s.OpenPositions = m.deps.Positions.CountByStrategy(m.strategy.ID)
	})

	for _, symbol := range m.strategy.Symbols {
		if ctx.Err() != nil {
			return
		}
		if err := m.safeEvaluate(ctx, symbol); err != nil {
			m.logEntry().WithError(err).WithField("symbol", symbol).Warn("Ошибка тика стратегии.")
			m.update(func(s *State) {
				s.Phase = PhaseIdle
				s.LastError = err.Error()
			})
			m.emit(Event{Type: EventFault, Symbol: symbol, Err: err})
		}
	}

	if m.cooling() {
		m.setPhase(PhaseCooldown)
	} else {
		m.setPhase(PhaseIdle)
	}
}

func (m *Monitor) safeEvaluate(ctx context.Context, symbol string) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = errors.Newf(errors.ErrCodeUnknown, "Паника при оценке %s: %v", symbol, r)
		}
	}()
	return m.evaluate(ctx, symbol)
}

// cooling reports whether the last signal is still within the cooldown.
func (m *Monitor) cooling() bool {
	cooldown := m.strategy.Cooldown()
	if cooldown <= 0 {
		return false
	}
	last := m.State().LastSignal
	return !last.IsZero() && m.deps.now().Sub(last) < cooldown
}

func (m *Monitor) evaluate(ctx context.Context, symbol string) error {
	hasExit := len(m.strategy.Exit.Conditions) > 0
	managed := m.strategy.Manage.Enabled()
	cooling := m.cooling()
	if cooling && !hasExit && !managed {
		m.setPhase(PhaseCooldown)
		return nil
	}
	m.setPhase(PhaseEvaluating)

	in, err := m.load(ctx, symbol)
	if err != nil {
		return err
	}

	if hasExit || managed {
		open := m.deps.Positions.ByStrategySymbol(m.strategy.ID, symbol)
		if hasExit && len(open) > 0 && condition.Evaluate(m.strategy.Exit, in).Met {
			m.exit(ctx, symbol, open)
			open = nil
		}
		if managed && len(open) > 0 {
			if err := m.manage(ctx, symbol, open); err != nil {
				return err
			}
		}
	}

	// exits and stop management keep running during cooldown, entries do not
	if cooling {
		m.setPhase(PhaseCooldown)
		return nil
	}

	res := condition.Evaluate(m.strategy.Entry, in)
	if !res.Met {
		m.setPhase(PhaseNoSignal)
		return nil
	}
	dir, ok := condition.Decide(m.strategy.Direction, in)
	if !ok {
		m.setPhase(PhaseNoSignal)
		return nil
	}

	now := m.deps.now()
	m.update(func(s *State) {
		s.Phase = PhaseSignalFound
		s.LastSignal = now
	})

	tick, err := m.deps.Market.GetPrice(ctx, symbol)
	if err != nil {
		return err
	}
	info, err := m.deps.Market.GetSymbolInfo(ctx, symbol)
	if err != nil {
		return err
	}

	signal := models.Signal{
		StrategyID: m.strategy.ID,
		Symbol:     symbol,
		Direction:  dir,
		Confidence: res.Confidence,
		Price:      tick.EntryPrice(dir),
		ATR:        in.Primary.Last(atrIndicator),
		Time:       now,
	}
	signal.StopLoss, signal.TakeProfit = sizing.Stops(m.strategy.StopLoss, m.strategy.TakeProfit, dir, signal.Price, signal.ATR, info)

	m.logEntry().WithFields(logrus.Fields{
		"symbol":     symbol,
		"direction":  dir,
		"price":      signal.Price,
		"confidence": signal.Confidence,
	}).Info("Найден сигнал.")
	m.emit(Event{Type: EventSignal, Symbol: symbol, Signal: &signal})

	return m.dispatch(ctx, signal, tick, info)
}

func (m *Monitor) dispatch(ctx context.Context, signal models.Signal, tick models.PriceTick, info models.SymbolInfo) error {
	m.setPhase(PhaseSafetyCheck)

	if !m.deps.Positions.Trusted() {
		m.logEntry().WithField("symbol", signal.Symbol).Warn("Реестр позиций не сверен, открытие запрещено.")
		m.emit(Event{
			Type:   EventRejected,
			Symbol: signal.Symbol,
			Signal: &signal,
			Check:  checkRegistry,
			Reason: errors.ErrRegistryUntrusted.Error(),
			Err:    errors.ErrRegistryUntrusted,
		})
		return nil
	}

	account, err := m.deps.Market.GetAccount(ctx)
	if err != nil {
		return err
	}

	decision, err := m.deps.Sizer.Size(sizing.Input{
		Risk:    m.strategy.Risk,
		Account: account,
		Symbol:  info,
		Signal:  signal,
	})
	if err != nil {
		if errors.IsValidation(err) {
			m.reject(signal, checkSizing, err.Error())
			return nil
		}
		return err
	}

	result := m.deps.Safety.Validate(safety.Request{
		Strategy:  m.strategy,
		Signal:    signal,
		Volume:    decision.Volume,
		Account:   account,
		Symbol:    info,
		Price:     tick,
		Positions: m.deps.Positions.Snapshot(),
	})
	if !result.Passed {
		m.reject(signal, result.Check, result.Reason)
		return nil
	}

	m.setPhase(PhaseDispatching)
	pos, err := m.deps.Executor.OpenPosition(ctx, models.OrderRequest{
		StrategyID: m.strategy.ID,
		Symbol:     signal.Symbol,
		Direction:  signal.Direction,
		Volume:     decision.Volume,
		StopLoss:   signal.StopLoss,
		TakeProfit: signal.TakeProfit,
	})
	if err != nil {
		m.logEntry().WithError(err).WithField("symbol", signal.Symbol).Error("Ордер не исполнен.")
		m.emit(Event{Type: EventFailed, Symbol: signal.Symbol, Signal: &signal, Err: err})
		return nil
	}

	m.update(func(s *State) { s.OpenPositions++ })
	m.emit(Event{Type: EventDispatched, Symbol: signal.Symbol, Signal: &signal, Position: &pos})
	return nil
}

func (m *Monitor) reject(signal models.Signal, check, reason string) {
	m.logEntry().WithFields(logrus.Fields{
		"symbol": signal.Symbol,
		"check":  check,
	}).Info("Сигнал отклонён: " + reason)
	m.emit(Event{Type: EventRejected, Symbol: signal.Symbol, Signal: &signal, Check: check, Reason: reason})
}

// load fetches bars for the strategy timeframe and every extra timeframe
// its conditions reference.
func (m *Monitor) load(ctx context.Context, symbol string) (condition.Input, error) {
	in := condition.Input{Frames: make(map[models.Timeframe]*indicator.Frame)}
	for _, tf := range m.strategy.Timeframes() {
		bars, err := m.deps.Market.GetBars(ctx, symbol, tf, m.barCount)
		if err != nil {
			return condition.Input{}, err
		}
		frame := indicator.NewFrame(m.deps.Indicators, bars)
		in.Frames[tf] = frame
		if tf == m.strategy.Timeframe {
			in.Primary = frame
		}
	}
	return in, nil
}

func (m *Monitor) exit(ctx context.Context, symbol string, open []models.Position) {
	for _, pos := range open {
		if err := m.deps.Executor.ClosePosition(ctx, pos.Ticket); err != nil {
			m.logEntry().WithError(err).WithField("ticket", pos.Ticket).Warn("Не удалось закрыть позицию по условию выхода.")
			continue
		}
		p := pos
		m.emit(Event{Type: EventExit, Symbol: symbol, Position: &p})
	}
}

// emit never blocks the tick.
func (m *Monitor) emit(ev Event) {
	if m.deps.Events == nil {
		return
	}
	ev.StrategyID = m.strategy.ID
	ev.Time = m.deps.now()
	select {
	case m.deps.Events <- ev:
	default:
		m.logEntry().WithField("event", ev.Type).Debug("Очередь событий монитора переполнена.")
	}
}

// manage moves stops of open positions per the strategy's manage rules.
func (m *Monitor) manage(ctx context.Context, symbol string, open []models.Position) error {
	tick, err := m.deps.Market.GetPrice(ctx, symbol)
	if err != nil {
		return err
	}
	info, err := m.deps.Market.GetSymbolInfo(ctx, symbol)
	if err != nil {
		return err
	}
	for _, pos := range open {
		sl, ok := sizing.Trail(m.strategy.Manage, pos, tick, info)
		if !ok {
			continue
		}
		entry := m.logEntry().WithFields(logrus.Fields{
			"ticket":    pos.Ticket,
			"stop_loss": sl,
		})
		if err := m.deps.Executor.ModifyPosition(ctx, pos.Ticket, optional.Some(sl), optional.None[float64]()); err != nil {
			entry.WithError(err).Warn("Не удалось передвинуть стоп-лосс.")
			continue
		}
		entry.Info("Стоп-лосс передвинут.")
		pos.StopLoss = sl
		m.emit(Event{Type: EventModified, Symbol: symbol, Position: &pos})
	}
	return nil
}
