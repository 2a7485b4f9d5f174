package registry

import (
	"context"
	"sync"
	"sync/atomic"
	"time"
	"tradebridge/internal/errors"
	"tradebridge/internal/logger"
	"tradebridge/internal/models"

	"github.com/sirupsen/logrus"
)

type Source interface {
	GetPositions(ctx context.Context) ([]models.Position, error)
}

type Closer interface {
	ClosePosition(ctx context.Context, ticket int64) error
}

type EventType string

const (
	EventAdded   EventType = "ADDED"
	EventRemoved EventType = "REMOVED"
	EventUpdated EventType = "UPDATED"
	EventReset   EventType = "RESET"
)

type Event struct {
	Type     EventType
	Position models.Position
	Time     time.Time
}

type Options struct {
	Interval         time.Duration
	FailureThreshold int
	EventBuffer      int
}

// view is immutable once published; writers build a new one and swap it in.
type view struct {
	positions map[int64]models.Position
	trusted   bool
	syncedAt  time.Time
}

// Registry is the local belief about open terminal positions. Reconcile
// replaces it wholesale; readers always see one complete view.
type Registry struct {
	source    Source
	closer    Closer
	remote    Remote
	log       *logger.Logger
	interval  time.Duration
	threshold int
	now       func() time.Time

	current atomic.Pointer[view]

	mu       sync.Mutex
	failures int
	absorbed map[int64]time.Time
	closed   map[int64]time.Time

	events chan Event
}

// New builds an empty, untrusted registry. When closer also implements Remote
// it serves batch closes while the registry is untrusted.
func New(source Source, closer Closer, log *logger.Logger, opts Options) *Registry {
	if opts.Interval <= 0 {
		opts.Interval = 5 * time.Second
	}
	if opts.FailureThreshold <= 0 {
		opts.FailureThreshold = 3
	}
	if opts.EventBuffer <= 0 {
		opts.EventBuffer = 256
	}
	r := &Registry{
		source:    source,
		closer:    closer,
		log:       log,
		interval:  opts.Interval,
		threshold: opts.FailureThreshold,
		now:       time.Now,
		absorbed:  make(map[int64]time.Time),
		closed:    make(map[int64]time.Time),
		events:    make(chan Event, opts.EventBuffer),
	}
	r.remote, _ = closer.(Remote)
	r.current.Store(&view{positions: map[int64]models.Position{}})
	return r
}

func (r *Registry) logEntry() *logrus.Entry {
	return r.log.WithComponent("registry")
}

func (r *Registry) Events() <-chan Event {
	return r.events
}

func (r *Registry) Run(ctx context.Context) error {
	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	for {
		if err := r.Reconcile(ctx); err != nil && ctx.Err() == nil {
			r.logEntry().WithError(err).Warn("Сверка позиций не удалась.")
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}

// Reconcile pulls the terminal position list and makes it the local view.
// Positions absorbed from open replies after the pull started are kept,
// and positions closed after it started stay closed, since the snapshot may
// predate both.
func (r *Registry) Reconcile(ctx context.Context) error {
	started := r.now()
	positions, err := r.source.GetPositions(ctx)

	r.mu.Lock()
	defer r.mu.Unlock()

	if err != nil {
		return r.failLocked(err)
	}

	prev := r.current.Load()
	if r.failures > 0 || !prev.trusted {
		r.logEntry().WithField("failures", r.failures).Info("Реестр позиций перестроен по снимку терминала.")
	}
	r.failures = 0

	next := make(map[int64]models.Position, len(positions))
	for _, p := range positions {
		if p.StrategyID == "" {
			p.StrategyID = models.OwnerFromTag(p.Tag)
		}
		next[p.Ticket] = p
	}
	for ticket, at := range r.closed {
		if at.Before(started) {
			delete(r.closed, ticket)
			continue
		}
		delete(next, ticket)
	}
	for ticket, at := range r.absorbed {
		if _, seen := next[ticket]; seen || at.Before(started) {
			delete(r.absorbed, ticket)
			continue
		}
		if p, ok := prev.positions[ticket]; ok {
			next[ticket] = p
		}
	}

	now := r.now()
	var events []Event
	for ticket, p := range next {
		old, ok := prev.positions[ticket]
		switch {
		case !ok:
			events = append(events, Event{Type: EventAdded, Position: p, Time: now})
		case changed(old, p):
			events = append(events, Event{Type: EventUpdated, Position: p, Time: now})
		}
	}
	for ticket, p := range prev.positions {
		if _, ok := next[ticket]; !ok {
			events = append(events, Event{Type: EventRemoved, Position: p, Time: now})
		}
	}

	r.current.Store(&view{positions: next, trusted: true, syncedAt: now})
	for _, ev := range events {
		r.emit(ev)
	}
	return nil
}

func (r *Registry) failLocked(cause error) error {
	r.failures++
	entry := r.logEntry().WithError(cause).WithField("failures", r.failures)
	if r.failures < r.threshold {
		entry.Warn("Не удалось получить позиции терминала.")
		return cause
	}

	prev := r.current.Load()
	if prev.trusted || len(prev.positions) > 0 {
		entry.Error("Реестр позиций сброшен: терминал недоступен для сверки.")
		r.current.Store(&view{positions: map[int64]models.Position{}})
		r.absorbed = make(map[int64]time.Time)
		r.closed = make(map[int64]time.Time)
		r.emit(Event{Type: EventReset, Time: r.now()})
	}
	return errors.Wrapf(errors.ErrCodeDrift, cause, "Сверка не удалась %d раз подряд", r.failures)
}

// Absorb records a position reported by an executed open command before the
// next reconciliation sees it.
func (r *Registry) Absorb(p models.Position) {
	if p.Ticket == 0 {
		return
	}
	if p.StrategyID == "" {
		p.StrategyID = models.OwnerFromTag(p.Tag)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	prev := r.current.Load()
	_, existed := prev.positions[p.Ticket]
	next := copyPositions(prev.positions)
	next[p.Ticket] = p
	r.absorbed[p.Ticket] = r.now()
	r.current.Store(&view{positions: next, trusted: prev.trusted, syncedAt: prev.syncedAt})
	if !existed {
		r.emit(Event{Type: EventAdded, Position: p, Time: r.now()})
	}
}

func (r *Registry) forget(ticket int64) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.closed[ticket] = r.now()
	prev := r.current.Load()
	p, ok := prev.positions[ticket]
	if !ok {
		return
	}
	next := copyPositions(prev.positions)
	delete(next, ticket)
	delete(r.absorbed, ticket)
	r.current.Store(&view{positions: next, trusted: prev.trusted, syncedAt: prev.syncedAt})
	r.emit(Event{Type: EventRemoved, Position: p, Time: r.now()})
}

func (r *Registry) emit(ev Event) {
	select {
	case r.events <- ev:
	default:
		r.logEntry().WithFields(logrus.Fields{
			"event":  ev.Type,
			"ticket": ev.Position.Ticket,
		}).Warn("Очередь событий реестра переполнена, событие пропущено.")
	}
}

func (r *Registry) Trusted() bool {
	return r.current.Load().trusted
}

func (r *Registry) SyncedAt() time.Time {
	return r.current.Load().syncedAt
}

func changed(a, b models.Position) bool {
	return a.Profit != b.Profit || a.Volume != b.Volume || a.StopLoss != b.StopLoss || a.TakeProfit != b.TakeProfit
}

func copyPositions(src map[int64]models.Position) map[int64]models.Position {
	out := make(map[int64]models.Position, len(src)+1)
	for k, v := range src {
		out[k] = v
	}
	return out
}
