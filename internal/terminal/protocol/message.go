package protocol

import (
	"encoding/json"
	"fmt"
	"time"
	"tradebridge/internal/errors"
)

type Status string
type ErrorCode string

const (
	StatusOK    Status = "OK"
	StatusError Status = "ERROR"

	CodeAuthFailed     ErrorCode = "AUTH_FAILED"
	CodeLockedOut      ErrorCode = "LOCKED_OUT"
	CodeInvalidRequest ErrorCode = "INVALID_REQUEST"
	CodeUnknownCommand ErrorCode = "UNKNOWN_COMMAND"
	CodeExecution      ErrorCode = "EXECUTION_FAILED"
	CodeNotFound       ErrorCode = "NOT_FOUND"
)

type Request struct {
	CommandType CommandType     `json:"commandType"`
	RequestID   string          `json:"requestId"`
	Timestamp   int64           `json:"timestamp"`
	Parameters  json.RawMessage `json:"parameters,omitempty"`
	AuthToken   string          `json:"authToken"`
}

type Reply struct {
	Status    Status          `json:"status"`
	RequestID string          `json:"requestId,omitempty"`
	Data      json.RawMessage `json:"data,omitempty"`
	Message   string          `json:"message,omitempty"`
	Code      ErrorCode       `json:"code,omitempty"`
}

func NewRequest(commandType CommandType, requestID string, params any) (Request, error) {
	req := Request{
		CommandType: commandType,
		RequestID:   requestID,
		Timestamp:   time.Now().UnixMilli(),
	}
	if params != nil {
		raw, err := json.Marshal(params)
		if err != nil {
			return Request{}, errors.Wrapf(errors.ErrCodeInvalidParameter, err, "Не удалось сериализовать параметры %s", commandType)
		}
		req.Parameters = raw
	}
	return req, nil
}

func (r Request) Decode(out any) error {
	if len(r.Parameters) == 0 {
		return errors.Newf(errors.ErrCodeInvalidParameter, "Команда %s без параметров", r.CommandType)
	}
	if err := json.Unmarshal(r.Parameters, out); err != nil {
		return errors.Wrapf(errors.ErrCodeInvalidParameter, err, "Некорректные параметры %s", r.CommandType)
	}
	return nil
}

func OK(requestID string, data any) (Reply, error) {
	reply := Reply{Status: StatusOK, RequestID: requestID}
	if data != nil {
		raw, err := json.Marshal(data)
		if err != nil {
			return Reply{}, fmt.Errorf("Не удалось сериализовать ответ: %w", err)
		}
		reply.Data = raw
	}
	return reply, nil
}

func Fail(requestID string, code ErrorCode, message string) Reply {
	return Reply{Status: StatusError, RequestID: requestID, Code: code, Message: message}
}

func (r Reply) Decode(out any) error {
	if len(r.Data) == 0 {
		return errors.New(errors.ErrCodeMalformedReply, "Ответ без данных")
	}
	if err := json.Unmarshal(r.Data, out); err != nil {
		return errors.Wrap(errors.ErrCodeMalformedReply, "Не удалось разобрать данные ответа", err)
	}
	return nil
}

// Err maps an ERROR reply onto the bridge error taxonomy. It returns nil
// for OK replies.
func (r Reply) Err() error {
	switch r.Status {
	case StatusOK:
		return nil
	case StatusError:
	default:
		return errors.Newf(errors.ErrCodeMalformedReply, "Неизвестный статус ответа %q", r.Status)
	}

	switch r.Code {
	case CodeAuthFailed:
		return errors.New(errors.ErrCodeAuthFailed, r.Message)
	case CodeLockedOut:
		return errors.Wrap(errors.ErrCodeLockedOut, r.Message, errors.ErrLockedOut)
	case CodeInvalidRequest:
		return errors.New(errors.ErrCodeInvalidParameter, r.Message)
	case CodeUnknownCommand:
		return errors.New(errors.ErrCodeUnknownCommand, r.Message)
	case CodeNotFound:
		return errors.New(errors.ErrCodeNotFound, r.Message)
	default:
		return errors.New(errors.ErrCodeExecution, r.Message)
	}
}
