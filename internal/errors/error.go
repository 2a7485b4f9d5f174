// Package errors holds the bridge error taxonomy.
//
// Codes are grouped by category:
//   - Connectivity (100-199): terminal unreachable, connection dropped
//   - Protocol (200-299): malformed or mismatched replies
//   - Auth (300-399): rejected token, lockout
//   - Validation (400-499): safety checks, bad parameters
//   - Execution (500-599): terminal rejected the command
//   - Reconciliation (600-699): registry drift
//   - Dispatch (700-799): timeouts, duplicates, cancellation, kill switch
//   - Config (800-899)
package errors

import (
	"errors"
	"fmt"
)

type Error struct {
	Code    ErrorCode
	Message string
	Cause   error
}

var (
	ErrDuplicateCommand  = New(ErrCodeDuplicateCommand, "Команда с таким id уже отправлялась.")
	ErrKillSwitch        = New(ErrCodeKillSwitch, "Включён аварийный стоп, новые ордера запрещены.")
	ErrPositionTooSmall  = New(ErrCodePositionTooSmall, "Позиция слишком мала.")
	ErrLockedOut         = New(ErrCodeLockedOut, "Доступ временно заблокирован.")
	ErrRegistryUntrusted = New(ErrCodeRegistryUntrusted, "Реестр позиций не синхронизирован с терминалом.")
	ErrQueueClosed       = New(ErrCodeQueueClosed, "Очередь команд остановлена.")
)

func New(code ErrorCode, message string) *Error {
	return &Error{Code: code, Message: message}
}

func Newf(code ErrorCode, format string, args ...any) *Error {
	return &Error{Code: code, Message: fmt.Sprintf(format, args...)}
}

func Wrap(code ErrorCode, message string, cause error) *Error {
	return &Error{Code: code, Message: message, Cause: cause}
}

func Wrapf(code ErrorCode, cause error, format string, args ...any) *Error {
	return &Error{Code: code, Message: fmt.Sprintf(format, args...), Cause: cause}
}

func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("[%d] %s: %v", e.Code, e.Message, e.Cause)
	}
	return fmt.Sprintf("[%d] %s", e.Code, e.Message)
}

func (e *Error) Unwrap() error {
	return e.Cause
}

// Is matches any *Error carrying the same code, so the package-level
// sentinels work with errors.Is regardless of message or cause.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return t.Code == e.Code
}

func Is(err, target error) bool {
	return errors.Is(err, target)
}

func As(err error, target any) bool {
	return errors.As(err, target)
}

func GetCode(err error) ErrorCode {
	var e *Error
	if errors.As(err, &e) {
		return e.Code
	}
	return ErrCodeUnknown
}

func HasCode(err error, code ErrorCode) bool {
	return GetCode(err) == code
}

func inCategory(err error, category int) bool {
	if err == nil {
		return false
	}
	return GetCode(err).category() == category
}

func IsConnectivity(err error) bool { return inCategory(err, 1) }
func IsProtocol(err error) bool     { return inCategory(err, 2) }
func IsAuth(err error) bool         { return inCategory(err, 3) }
func IsValidation(err error) bool   { return inCategory(err, 4) }
func IsExecution(err error) bool    { return inCategory(err, 5) }
func IsDrift(err error) bool        { return inCategory(err, 6) }

// IsRetryable reports whether the dispatcher may resend the command.
// Only transport failures qualify; anything the terminal answered is final.
func IsRetryable(err error) bool {
	return IsConnectivity(err) || HasCode(err, ErrCodeTimeout)
}
