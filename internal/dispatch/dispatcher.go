package dispatch

import (
	"context"
	"sync"
	"sync/atomic"
	"time"
	"tradebridge/internal/errors"
	"tradebridge/internal/logger"
	"tradebridge/internal/models"
	"tradebridge/internal/terminal/protocol"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

type Sender interface {
	Send(ctx context.Context, req protocol.Request) (protocol.Reply, error)
}

type Absorber interface {
	Absorb(p models.Position)
}

type Journal interface {
	Record(cmd Command)
}

type Options struct {
	QueueSize      int
	Timeout        time.Duration
	MaxRetries     int
	BackoffInitial time.Duration
	BackoffMax     time.Duration
	// DedupeRetention bounds duplicate detection: a finished command id is
	// forgotten after this long and a later Submit with the same id is sent
	// again. Pending commands are never forgotten. Defaults to 10 minutes.
	DedupeRetention time.Duration
}

type entry struct {
	cmd      Command
	ctx      context.Context
	cancel   context.CancelFunc
	done     chan struct{}
	finished time.Time
}

// Dispatcher owns every command from submission to a terminal status. A
// single worker feeds the command channel, so requests from concurrent
// callers never overlap on the wire.
type Dispatcher struct {
	sender Sender
	log    *logger.Logger
	opts   Options
	now    func() time.Time

	absorber Absorber
	journal  Journal

	queue   chan *entry
	stopped chan struct{}
	once    sync.Once

	mu      sync.Mutex
	entries map[string]*entry

	kill atomic.Bool
}

func New(sender Sender, log *logger.Logger, opts Options) *Dispatcher {
	if opts.QueueSize <= 0 {
		opts.QueueSize = 64
	}
	if opts.Timeout <= 0 {
		opts.Timeout = 5 * time.Second
	}
	if opts.BackoffInitial <= 0 {
		opts.BackoffInitial = 500 * time.Millisecond
	}
	if opts.BackoffMax < opts.BackoffInitial {
		opts.BackoffMax = opts.BackoffInitial
	}
	if opts.DedupeRetention <= 0 {
		opts.DedupeRetention = 10 * time.Minute
	}
	return &Dispatcher{
		sender:  sender,
		log:     log,
		opts:    opts,
		now:     time.Now,
		queue:   make(chan *entry, opts.QueueSize),
		stopped: make(chan struct{}),
		entries: make(map[string]*entry),
	}
}

// SetAbsorber wires the position registry; executed OPEN_POSITION replies
// are handed to it.
func (d *Dispatcher) SetAbsorber(a Absorber) {
	d.absorber = a
}

func (d *Dispatcher) SetJournal(j Journal) {
	d.journal = j
}

func (d *Dispatcher) logEntry(cmd Command) *logrus.Entry {
	return d.log.WithComponent("dispatcher").WithFields(logrus.Fields{
		"command_id": cmd.ID,
		"type":       cmd.Type,
	})
}

func (d *Dispatcher) SetKillSwitch(on bool) {
	d.kill.Store(on)
	d.log.WithComponent("dispatcher").WithField("kill_switch", on).Warn("Состояние аварийного стопа изменено.")
}

func (d *Dispatcher) KillSwitch() bool {
	return d.kill.Load()
}

// Submit enqueues the command and blocks until it reaches a terminal status.
// A reused id is never sent again: the caller gets the original outcome and
// ErrDuplicateCommand.
func (d *Dispatcher) Submit(ctx context.Context, cmd Command) (Command, error) {
	if !cmd.Type.Valid() {
		return cmd, errors.Newf(errors.ErrCodeUnknownCommand, "Неизвестный тип команды %q", cmd.Type)
	}
	if cmd.ID == "" {
		cmd.ID = uuid.NewString()
	}

	d.mu.Lock()
	d.sweepLocked()
	if prev, ok := d.entries[cmd.ID]; ok {
		d.mu.Unlock()
		d.logEntry(cmd).Warn("Повторная отправка команды отклонена.")
		select {
		case <-prev.done:
		case <-ctx.Done():
		}
		return d.snapshot(prev), errors.Wrap(errors.ErrCodeDuplicateCommand, "Команда уже принята", errors.ErrDuplicateCommand)
	}

	jobCtx, cancel := context.WithCancel(ctx)
	now := d.now()
	cmd.Status = StatusReceived
	cmd.Retries = 0
	cmd.Err = nil
	cmd.CreatedAt = now
	cmd.UpdatedAt = now
	e := &entry{cmd: cmd, ctx: jobCtx, cancel: cancel, done: make(chan struct{})}
	d.entries[cmd.ID] = e
	d.mu.Unlock()
	d.record(cmd)

	if cmd.Type == protocol.CommandOpenPosition && d.kill.Load() {
		d.finish(e, StatusFailed, protocol.Reply{}, errors.ErrKillSwitch)
		return d.result(e)
	}

	select {
	case d.queue <- e:
	case <-jobCtx.Done():
		d.finish(e, StatusCancelled, protocol.Reply{}, errors.Wrap(errors.ErrCodeCancelled, "Команда отменена до отправки", jobCtx.Err()))
	case <-d.stopped:
		d.finish(e, StatusFailed, protocol.Reply{}, errors.ErrQueueClosed)
	}

	select {
	case <-e.done:
	case <-jobCtx.Done():
		d.finish(e, StatusCancelled, protocol.Reply{}, errors.Wrap(errors.ErrCodeCancelled, "Ожидание ответа отменено", jobCtx.Err()))
	case <-d.stopped:
		d.finish(e, StatusFailed, protocol.Reply{}, errors.ErrQueueClosed)
	}
	return d.result(e)
}

// Run is the single consumer of the submission queue.
func (d *Dispatcher) Run(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			d.once.Do(func() { close(d.stopped) })
			d.drain()
			return ctx.Err()
		case e := <-d.queue:
			d.execute(e)
		}
	}
}

func (d *Dispatcher) drain() {
	for {
		select {
		case e := <-d.queue:
			d.finish(e, StatusFailed, protocol.Reply{}, errors.ErrQueueClosed)
		default:
			return
		}
	}
}

func (d *Dispatcher) execute(e *entry) {
	cmd := d.snapshot(e)
	if cmd.Status.Terminal() {
		return
	}
	if e.ctx.Err() != nil {
		d.finish(e, StatusCancelled, protocol.Reply{}, errors.Wrap(errors.ErrCodeCancelled, "Команда отменена в очереди", e.ctx.Err()))
		return
	}
	if cmd.Type == protocol.CommandOpenPosition && d.kill.Load() {
		d.finish(e, StatusFailed, protocol.Reply{}, errors.ErrKillSwitch)
		return
	}

	backoff := d.opts.BackoffInitial
	for attempt := 0; ; attempt++ {
		attemptCtx, cancel := context.WithTimeout(e.ctx, d.opts.Timeout)
		deadline, _ := attemptCtx.Deadline()
		d.update(e, func(c *Command) {
			c.Status = StatusExecuting
			c.Deadline = deadline
			c.Retries = attempt
		})

		req := protocol.Request{
			CommandType: cmd.Type,
			RequestID:   cmd.ID,
			Timestamp:   d.now().UnixMilli(),
			Parameters:  cmd.Payload,
		}
		reply, err := d.sender.Send(attemptCtx, req)
		timedOut := attemptCtx.Err() == context.DeadlineExceeded
		cancel()

		if err == nil {
			if replyErr := reply.Err(); replyErr != nil {
				d.logEntry(cmd).WithError(replyErr).Warn("Терминал отклонил команду.")
				d.finish(e, StatusFailed, reply, replyErr)
				return
			}
			d.finish(e, StatusExecuted, reply, nil)
			d.afterExecuted(cmd, reply)
			return
		}

		if e.ctx.Err() != nil {
			d.finish(e, StatusCancelled, protocol.Reply{}, errors.Wrap(errors.ErrCodeCancelled, "Команда отменена", err))
			return
		}
		if timedOut && !errors.HasCode(err, errors.ErrCodeTimeout) {
			err = errors.Wrap(errors.ErrCodeTimeout, "Истёк таймаут ответа", err)
		}
		if !errors.IsRetryable(err) || attempt >= d.opts.MaxRetries {
			d.logEntry(cmd).WithError(err).WithField("attempts", attempt+1).Error("Команда не выполнена.")
			d.finish(e, StatusFailed, protocol.Reply{}, err)
			return
		}

		d.logEntry(cmd).WithError(err).WithField("attempt", attempt+1).Warn("Ошибка, повторяем команду.")
		select {
		case <-e.ctx.Done():
			d.finish(e, StatusCancelled, protocol.Reply{}, errors.Wrap(errors.ErrCodeCancelled, "Команда отменена", e.ctx.Err()))
			return
		case <-time.After(backoff):
		}
		backoff = d.nextBackoff(backoff)
	}
}

func (d *Dispatcher) afterExecuted(cmd Command, reply protocol.Reply) {
	if cmd.Type != protocol.CommandOpenPosition || d.absorber == nil {
		return
	}
	var data protocol.OpenPositionData
	if err := reply.Decode(&data); err != nil {
		d.logEntry(cmd).WithError(err).Warn("Не удалось разобрать открытую позицию.")
		return
	}
	d.absorber.Absorb(data.Position)
}

func (d *Dispatcher) nextBackoff(current time.Duration) time.Duration {
	next := current * 2
	if next > d.opts.BackoffMax {
		return d.opts.BackoffMax
	}
	return next
}

func (d *Dispatcher) update(e *entry, fn func(c *Command)) {
	d.mu.Lock()
	if e.cmd.Status.Terminal() {
		d.mu.Unlock()
		return
	}
	fn(&e.cmd)
	e.cmd.UpdatedAt = d.now()
	cmd := e.cmd
	d.mu.Unlock()
	d.record(cmd)
}

// finish is idempotent; the first terminal status wins.
func (d *Dispatcher) finish(e *entry, status Status, reply protocol.Reply, err error) {
	d.mu.Lock()
	if e.cmd.Status.Terminal() {
		d.mu.Unlock()
		return
	}
	e.cmd.Status = status
	e.cmd.Reply = reply
	e.cmd.Err = err
	e.cmd.UpdatedAt = d.now()
	e.finished = e.cmd.UpdatedAt
	cmd := e.cmd
	d.mu.Unlock()

	e.cancel()
	close(e.done)
	d.record(cmd)
}

func (d *Dispatcher) record(cmd Command) {
	if d.journal != nil {
		d.journal.Record(cmd)
	}
}

func (d *Dispatcher) snapshot(e *entry) Command {
	d.mu.Lock()
	defer d.mu.Unlock()
	return e.cmd
}

func (d *Dispatcher) result(e *entry) (Command, error) {
	cmd := d.snapshot(e)
	return cmd, cmd.Err
}

func (d *Dispatcher) sweepLocked() {
	cutoff := d.now().Add(-d.opts.DedupeRetention)
	for id, e := range d.entries {
		if e.cmd.Status.Terminal() && e.finished.Before(cutoff) {
			delete(d.entries, id)
		}
	}
}

// CancelAll aborts every queued or in-flight command and reports how many
// were still pending.
func (d *Dispatcher) CancelAll() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	n := 0
	for _, e := range d.entries {
		if !e.cmd.Status.Terminal() {
			e.cancel()
			n++
		}
	}
	return n
}

func (d *Dispatcher) Get(id string) (Command, bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	e, ok := d.entries[id]
	if !ok {
		return Command{}, false
	}
	return e.cmd, true
}
