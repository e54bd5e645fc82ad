package errors

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/require"
)

var (
	errTestPermanent = New("errors_test", 1, "test: permanent")
	errTestRetryable = NewRetryable("errors_test", 2, "test: retryable")
)

func TestCodedErrors(t *testing.T) {
	require := require.New(t)

	module, code := Code(errTestPermanent)
	require.Equal("errors_test", module)
	require.EqualValues(1, code)

	module, code = Code(nil)
	require.Equal("", module)
	require.EqualValues(CodeNoError, code)

	module, code = Code(fmt.Errorf("plain"))
	require.Equal(UnknownModule, module)
	require.EqualValues(1, code)

	wrapped := fmt.Errorf("outer: %w", WithContext(errTestRetryable, "height 10"))
	module, code = Code(wrapped)
	require.Equal("errors_test", module)
	require.EqualValues(2, code)
	require.Equal("height 10", Context(wrapped))
	require.True(Is(wrapped, errTestRetryable))

	require.Panics(func() { New("errors_test", 1, "duplicate") }, "duplicate registration")
	require.Panics(func() { New("errors_test", CodeNoError, "no error") }, "reserved code")
}

func TestFromCode(t *testing.T) {
	require := require.New(t)

	err := FromCode("errors_test", 1, errTestPermanent.Error())
	require.Equal(errTestPermanent, err)

	err = FromCode("errors_test", 2, "test: retryable: some context")
	require.True(Is(err, errTestRetryable))
	require.Equal("some context", Context(err))

	err = FromCode("errors_test", 99, "unregistered")
	require.Equal("unregistered", err.Error())
	module, code := Code(err)
	require.Equal("errors_test", module)
	require.EqualValues(99, code)
}

func TestIsRetryable(t *testing.T) {
	require := require.New(t)

	require.False(IsRetryable(nil))
	require.False(IsRetryable(fmt.Errorf("plain")))
	require.False(IsRetryable(errTestPermanent))
	require.True(IsRetryable(errTestRetryable))
	require.True(IsRetryable(fmt.Errorf("wrapped: %w", WithContext(errTestRetryable, "ctx"))))
}
