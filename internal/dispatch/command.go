package dispatch

import (
	"encoding/json"
	"time"
	"tradebridge/internal/errors"
	"tradebridge/internal/terminal/protocol"
)

type Status string

const (
	StatusReceived  Status = "RECEIVED"
	StatusExecuting Status = "EXECUTING"
	StatusExecuted  Status = "EXECUTED"
	StatusFailed    Status = "FAILED"
	StatusCancelled Status = "CANCELLED"
)

func (s Status) Terminal() bool {
	return s == StatusExecuted || s == StatusFailed || s == StatusCancelled
}

// Command is one request on the command channel. The payload never changes
// after creation; status and bookkeeping belong to the dispatcher.
type Command struct {
	ID        string
	Type      protocol.CommandType
	Payload   json.RawMessage
	Status    Status
	Retries   int
	Deadline  time.Time
	Reply     protocol.Reply
	Err       error
	CreatedAt time.Time
	UpdatedAt time.Time
}

func NewCommand(commandType protocol.CommandType, params any) (Command, error) {
	cmd := Command{Type: commandType}
	if params != nil {
		raw, err := json.Marshal(params)
		if err != nil {
			return Command{}, errors.Wrapf(errors.ErrCodeInvalidParameter, err, "Не удалось сериализовать параметры %s", commandType)
		}
		cmd.Payload = raw
	}
	return cmd, nil
}
