package monitor

import (
	"time"
	"tradebridge/internal/models"
)

type Phase string

const (
	PhaseIdle        Phase = "IDLE"
	PhaseEvaluating  Phase = "EVALUATING"
	PhaseSignalFound Phase = "SIGNAL_FOUND"
	PhaseNoSignal    Phase = "NO_SIGNAL"
	PhaseSafetyCheck Phase = "SAFETY_CHECK"
	PhaseDispatching Phase = "DISPATCHING"
	PhaseCooldown    Phase = "COOLDOWN"
)

type State struct {
	StrategyID    string
	Phase         Phase
	LastSignal    time.Time
	LastTick      time.Time
	OpenPositions int
	LastError     string
}

type EventType string

const (
	EventSignal     EventType = "signal"
	EventRejected   EventType = "rejected"
	EventDispatched EventType = "dispatched"
	EventFailed     EventType = "failed"
	EventExit       EventType = "exit"
	EventModified   EventType = "modified"
	EventFault      EventType = "fault"

	EventEmergencyStop EventType = "emergency_stop"
)

// Event is what a monitor tells the outside world. Consumers read them from
// the channel passed in Deps.
type Event struct {
	Type       EventType
	StrategyID string
	Symbol     string
	Signal     *models.Signal
	Position   *models.Position
	Check      string
	Reason     string
	Err        error
	Time       time.Time
}
