package errors

type ErrorCode int

const (
	ErrCodeUnknown ErrorCode = 1

	// Connectivity (100-199)
	ErrCodeConnectivity ErrorCode = 100
	ErrCodeNotConnected ErrorCode = 101

	// Protocol (200-299)
	ErrCodeProtocol        ErrorCode = 200
	ErrCodeMalformedReply  ErrorCode = 201
	ErrCodeRequestMismatch ErrorCode = 202
	ErrCodeVersionMismatch ErrorCode = 203

	// Auth (300-399)
	ErrCodeAuthFailed ErrorCode = 300
	ErrCodeLockedOut  ErrorCode = 301

	// Validation (400-499)
	ErrCodeValidation        ErrorCode = 400
	ErrCodeInvalidParameter  ErrorCode = 401
	ErrCodePositionTooSmall  ErrorCode = 402
	ErrCodeIndicatorNotFound ErrorCode = 403
	ErrCodeAlreadyRegistered ErrorCode = 404

	// Execution (500-599)
	ErrCodeExecution      ErrorCode = 500
	ErrCodeNotFound       ErrorCode = 501
	ErrCodeUnknownCommand ErrorCode = 502

	// Reconciliation (600-699)
	ErrCodeDrift             ErrorCode = 600
	ErrCodeRegistryUntrusted ErrorCode = 601

	// Dispatch (700-799)
	ErrCodeTimeout          ErrorCode = 700
	ErrCodeDuplicateCommand ErrorCode = 701
	ErrCodeCancelled        ErrorCode = 702
	ErrCodeKillSwitch       ErrorCode = 703
	ErrCodeQueueClosed      ErrorCode = 704

	// Config (800-899)
	ErrCodeInvalidConfiguration ErrorCode = 800
)

func (c ErrorCode) category() int {
	return int(c) / 100
}
