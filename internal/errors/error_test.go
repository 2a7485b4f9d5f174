package errors

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/suite"
)

type ErrorTestSuite struct {
	suite.Suite
}

func TestErrorSuite(t *testing.T) {
	suite.Run(t, new(ErrorTestSuite))
}

func (suite *ErrorTestSuite) TestNewError() {
	err := New(ErrCodeInvalidParameter, "bad volume")
	suite.Equal(ErrCodeInvalidParameter, err.Code)
	suite.Equal("[401] bad volume", err.Error())
	suite.Nil(err.Cause)
}

func (suite *ErrorTestSuite) TestWrapfError() {
	cause := errors.New("dial tcp: refused")
	err := Wrapf(ErrCodeConnectivity, cause, "terminal %s", "ws://localhost")
	suite.Equal("[100] terminal ws://localhost: dial tcp: refused", err.Error())
	suite.True(Is(err, cause))
}

func (suite *ErrorTestSuite) TestSentinelMatchesByCode() {
	err := fmt.Errorf("open rejected: %w", Newf(ErrCodeKillSwitch, "strategy %s", "s1"))
	suite.True(Is(err, ErrKillSwitch))
	suite.False(Is(err, ErrDuplicateCommand))
}

func (suite *ErrorTestSuite) TestGetCode() {
	suite.Equal(ErrCodeUnknown, GetCode(errors.New("plain")))
	suite.Equal(ErrCodeLockedOut, GetCode(fmt.Errorf("x: %w", ErrLockedOut)))
	suite.True(HasCode(ErrPositionTooSmall, ErrCodePositionTooSmall))
}

func (suite *ErrorTestSuite) TestCategories() {
	suite.True(IsConnectivity(New(ErrCodeNotConnected, "")))
	suite.True(IsProtocol(New(ErrCodeRequestMismatch, "")))
	suite.True(IsAuth(ErrLockedOut))
	suite.True(IsValidation(ErrPositionTooSmall))
	suite.True(IsExecution(New(ErrCodeNotFound, "")))
	suite.True(IsDrift(ErrRegistryUntrusted))
	suite.False(IsConnectivity(nil))
}

func (suite *ErrorTestSuite) TestRetryable() {
	suite.True(IsRetryable(New(ErrCodeConnectivity, "")))
	suite.True(IsRetryable(New(ErrCodeTimeout, "")))
	suite.False(IsRetryable(New(ErrCodeExecution, "")))
	suite.False(IsRetryable(New(ErrCodeMalformedReply, "")))
	suite.False(IsRetryable(ErrLockedOut))
}
