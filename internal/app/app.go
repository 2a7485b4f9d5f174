package app

import (
	"context"
	"sync"
	"tradebridge/internal/config"
	"tradebridge/internal/dispatch"
	"tradebridge/internal/errors"
	"tradebridge/internal/indicator"
	"tradebridge/internal/journal"
	"tradebridge/internal/logger"
	"tradebridge/internal/monitor"
	"tradebridge/internal/platform"
	"tradebridge/internal/registry"
	"tradebridge/internal/relay"
	"tradebridge/internal/safety"
	"tradebridge/internal/sizing"
	"tradebridge/internal/terminal"
	"tradebridge/internal/terminal/bridge"
	"tradebridge/internal/terminal/bridge/command"
	"tradebridge/internal/terminal/bridge/stream"

	"github.com/sirupsen/logrus"
)

const eventBuffer = 256

type Option func(a *App)

// WithReporter replaces the reporter built from the platform section.
func WithReporter(r platform.Reporter) Option {
	return func(a *App) { a.reporter = r }
}

// App is the bridge process: every component wired once, no globals.
type App struct {
	cfg *config.Config
	log *logger.Logger

	cache      *terminal.Cache
	conn       *command.Conn
	stream     *stream.Client
	dispatcher *dispatch.Dispatcher
	terminal   *bridge.Client
	registry   *registry.Registry
	safety     *safety.Validator
	supervisor *monitor.Supervisor
	reporter   platform.Reporter
	journal    *journal.Journal
	local      *relay.Local
	remote     *relay.Subscriber

	events chan monitor.Event
}

func New(cfg *config.Config, log *logger.Logger, opts ...Option) (*App, error) {
	a := &App{
		cfg:    cfg,
		log:    log,
		cache:  terminal.NewCache(),
		local:  relay.NewLocal(8),
		events: make(chan monitor.Event, eventBuffer),
	}
	for _, opt := range opts {
		opt(a)
	}

	a.conn = command.New(command.Options{
		URL:          cfg.Terminal.CommandURL,
		Token:        cfg.Terminal.AuthToken,
		ReconnectMin: cfg.Terminal.ReconnectMin,
		ReconnectMax: cfg.Terminal.ReconnectMax,
	}, log)
	a.stream = stream.New(stream.Options{
		URL:          cfg.Terminal.TelemetryURL,
		Token:        cfg.Terminal.AuthToken,
		ReconnectMin: cfg.Terminal.ReconnectMin,
		ReconnectMax: cfg.Terminal.ReconnectMax,
	}, a.cache, log)

	a.dispatcher = dispatch.New(a.conn, log, dispatch.Options{
		QueueSize:       cfg.Dispatcher.QueueSize,
		Timeout:         cfg.Dispatcher.Timeout,
		MaxRetries:      cfg.Dispatcher.MaxRetries,
		BackoffInitial:  cfg.Dispatcher.BackoffInitial,
		BackoffMax:      cfg.Dispatcher.BackoffMax,
		DedupeRetention: cfg.Dispatcher.DedupeRetention,
	})
	a.terminal = bridge.New(a.dispatcher, a.cache, log, bridge.Options{
		PriceMaxAge:     cfg.Terminal.PriceMaxAge,
		ProtocolVersion: cfg.Terminal.ProtocolVersion,
	})
	a.registry = registry.New(a.terminal, a.terminal, log, registry.Options{
		Interval:         cfg.Registry.Interval,
		FailureThreshold: cfg.Registry.FailureThreshold,
	})
	a.dispatcher.SetAbsorber(a.registry)
	a.safety = safety.New(cfg.Safety, a.dispatcher)

	deps := monitor.Deps{
		Market:     a.terminal,
		Executor:   a.terminal,
		Positions:  a.registry,
		Safety:     a.safety,
		Sizer:      sizing.New(sizing.Default()),
		Indicators: indicator.Default(),
		Events:     a.events,
		Log:        log,
	}
	a.supervisor = monitor.NewSupervisor(deps, monitor.Options{
		Interval: cfg.Monitor.TickInterval,
		BarCount: cfg.Monitor.BarCount,
	}, a.dispatcher, a.registry, log)

	if a.reporter == nil {
		a.reporter = newReporter(cfg.Platform, log)
	}

	if cfg.Journal.DSN != "" {
		j, err := journal.Open(cfg.Journal.DSN, journal.Options{Buffer: cfg.Journal.Buffer}, log)
		if err != nil {
			return nil, err
		}
		a.journal = j
		a.dispatcher.SetJournal(j)
	}

	if cfg.Relay.NATSURL != "" {
		sub, err := relay.Connect(cfg.Relay.NATSURL, cfg.Relay.Subject, log)
		if err != nil {
			a.closeJournal()
			return nil, err
		}
		a.remote = sub
	}

	return a, nil
}

func newReporter(cfg config.PlatformConfig, log *logger.Logger) platform.Reporter {
	if cfg.BaseURL == "" {
		log.WithComponent("app").Warn("Платформа не настроена, отчёты отключены.")
		return platform.Nop{}
	}
	return platform.NewClient(platform.Options{
		BaseURL:    cfg.BaseURL,
		APIKey:     cfg.APIKey,
		APISecret:  cfg.APISecret,
		ExecutorID: cfg.ExecutorID,
		Timeout:    cfg.Timeout,
	}, log)
}

func (a *App) logEntry() *logrus.Entry {
	return a.log.WithComponent("app")
}

// Start runs the bridge until ctx is done. Strategies from the config are
// started once the terminal answered the handshake (or the handshake gave
// up on connectivity; the transports keep redialing).
func (a *App) Start(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	var wg sync.WaitGroup
	run := func(name string, fn func(context.Context) error) {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := fn(ctx); err != nil && ctx.Err() == nil {
				a.logEntry().WithError(err).WithField("worker", name).Error("Компонент завершился с ошибкой.")
			}
		}()
	}

	run("dispatcher", a.dispatcher.Run)
	run("telemetry", a.stream.Run)
	if a.journal != nil {
		run("journal", a.journal.Run)
	}

	if err := a.handshake(ctx); err != nil {
		cancel()
		wg.Wait()
		a.shutdown()
		return err
	}

	// monitors refuse to open positions until the registry has been reconciled
	if err := a.registry.Reconcile(ctx); err != nil {
		a.logEntry().WithError(err).Warn("Первая сверка позиций не удалась, открытие позиций отложено.")
	}
	run("registry", a.registry.Run)
	run("events", a.forward)

	if a.remote != nil {
		if err := a.remote.Start(); err != nil {
			a.logEntry().WithError(err).Error("Управляющие команды из NATS недоступны.")
		}
	}

	err := a.supervisor.Run(ctx, a.cfg.Strategies, a.commands(ctx))
	cancel()
	wg.Wait()
	a.shutdown()

	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}

// handshake pings the terminal. A version mismatch is fatal; an unreachable
// terminal is not.
func (a *App) handshake(ctx context.Context) error {
	ping, err := a.terminal.Ping(ctx)
	switch {
	case err == nil:
		a.logEntry().WithField("version", ping.Version).Info("Терминал на связи.")
		return nil
	case errors.HasCode(err, errors.ErrCodeVersionMismatch):
		return err
	case ctx.Err() != nil:
		return ctx.Err()
	default:
		a.logEntry().WithError(err).Warn("Терминал не ответил на проверку связи, продолжаем с переподключением.")
		return nil
	}
}

// commands merges the in-process and NATS sources.
func (a *App) commands(ctx context.Context) <-chan relay.Command {
	if a.remote == nil {
		return a.local.Commands()
	}
	out := make(chan relay.Command)
	go func() {
		local, remote := a.local.Commands(), a.remote.Commands()
		for {
			var cmd relay.Command
			select {
			case <-ctx.Done():
				return
			case cmd = <-local:
			case cmd = <-remote:
			}
			select {
			case out <- cmd:
			case <-ctx.Done():
				return
			}
		}
	}()
	return out
}

// EmergencyStop queues an emergency stop on the supervisor.
func (a *App) EmergencyStop(ctx context.Context, reason string) error {
	return a.local.Send(ctx, relay.Command{Type: relay.EmergencyStop, Reason: reason})
}

func (a *App) Supervisor() *monitor.Supervisor {
	return a.supervisor
}

func (a *App) Registry() *registry.Registry {
	return a.registry
}

func (a *App) shutdown() {
	if err := a.conn.Close(); err != nil {
		a.logEntry().WithError(err).Debug("Командный канал закрыт с ошибкой.")
	}
	if a.remote != nil {
		if err := a.remote.Close(); err != nil {
			a.logEntry().WithError(err).Debug("Подписка NATS закрыта с ошибкой.")
		}
	}
	a.closeJournal()
	a.logEntry().Info("Мост остановлен.")
}

func (a *App) closeJournal() {
	if a.journal == nil {
		return
	}
	if err := a.journal.Close(); err != nil {
		a.logEntry().WithError(err).Warn("Журнал закрыт с ошибкой.")
	}
}
