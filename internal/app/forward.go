package app

import (
	"context"
	"tradebridge/internal/monitor"
	"tradebridge/internal/platform"
	"tradebridge/internal/registry"
	"tradebridge/internal/terminal/bridge/stream"
)

const (
	alertExecutionFailed = "execution_failed"
	alertEmergencyStop   = "emergency_stop"
	alertRegistryReset   = "registry_untrusted"
	alertTerminalLost    = "terminal_disconnected"
)

// forward fans component events out to the platform, the journal and the
// safety validator.
func (a *App) forward(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case ev := <-a.events:
			a.onMonitorEvent(ctx, ev)
		case ev := <-a.registry.Events():
			a.onRegistryEvent(ctx, ev)
		case ev := <-a.stream.Events():
			a.onStreamEvent(ctx, ev)
		}
	}
}

func (a *App) onMonitorEvent(ctx context.Context, ev monitor.Event) {
	var err error
	switch ev.Type {
	case monitor.EventDispatched:
		if ev.Position != nil {
			err = a.reporter.ReportTrade(ctx, platform.Opened(*ev.Position))
		}
	case monitor.EventFailed:
		err = a.reporter.ReportAlert(ctx, platform.Alert{
			Level:      platform.AlertWarning,
			Kind:       alertExecutionFailed,
			StrategyID: ev.StrategyID,
			Symbol:     ev.Symbol,
			Message:    errText(ev.Err),
			Time:       ev.Time,
		})
	case monitor.EventEmergencyStop:
		msg := ev.Reason
		if ev.Err != nil {
			msg += ": " + ev.Err.Error()
		}
		err = a.reporter.ReportAlert(ctx, platform.Alert{
			Level:   platform.AlertCritical,
			Kind:    alertEmergencyStop,
			Message: msg,
			Time:    ev.Time,
		})
	}
	if err != nil {
		a.logEntry().WithError(err).WithField("event", ev.Type).Warn("Не удалось отправить событие на платформу.")
	}
}

func (a *App) onRegistryEvent(ctx context.Context, ev registry.Event) {
	if a.journal != nil {
		a.journal.RecordPosition(ev)
	}

	var err error
	switch ev.Type {
	case registry.EventRemoved:
		err = a.reporter.ReportTradeClosed(ctx, platform.Closed(ev.Position, ev.Time))
	case registry.EventReset:
		err = a.reporter.ReportAlert(ctx, platform.Alert{
			Level:   platform.AlertCritical,
			Kind:    alertRegistryReset,
			Message: "Реестр позиций сброшен, терминал недоступен для сверки.",
			Time:    ev.Time,
		})
	}
	if err != nil {
		a.logEntry().WithError(err).WithField("event", ev.Type).Warn("Не удалось отправить событие реестра на платформу.")
	}
}

func (a *App) onStreamEvent(ctx context.Context, ev stream.Event) {
	switch ev.Type {
	case stream.EventTelemetry:
		if ev.Telemetry != nil {
			a.safety.ObserveEquity(ev.Telemetry.Account.Equity)
		}
	case stream.EventDisconnected:
		err := a.reporter.ReportAlert(ctx, platform.Alert{
			Level:   platform.AlertWarning,
			Kind:    alertTerminalLost,
			Message: errText(ev.Err),
			Time:    ev.Time,
		})
		if err != nil {
			a.logEntry().WithError(err).Warn("Не удалось сообщить о потере телеметрии.")
		}
	}
}

func errText(err error) string {
	if err == nil {
		return ""
	}
	return err.Error()
}
