package errors

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestAppError_Error(t *testing.T) {
	tests := []struct {
		name     string
		err      *AppError
		expected string
	}{
		{
			name:     "without underlying error",
			err:      New(CodeStructural, "header too short"),
			expected: "[STRUCTURAL_ERROR] header too short",
		},
		{
			name:     "with underlying error",
			err:      Wrap(CodeAccess, "open failed", errors.New("permission denied")),
			expected: "[ACCESS_ERROR] open failed: permission denied",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, tt.err.Error())
		})
	}
}

func TestAppError_Unwrap(t *testing.T) {
	underlying := errors.New("underlying error")
	err := Plugin("module failed", underlying)

	assert.Equal(t, underlying, err.Unwrap())
}

func TestAppError_Is(t *testing.T) {
	err1 := New(CodeAccess, "error 1")
	err2 := New(CodeAccess, "error 2")
	err3 := New(CodeConfig, "error 3")

	assert.True(t, errors.Is(err1, err2))
	assert.False(t, errors.Is(err1, err3))
}

func TestCategory(t *testing.T) {
	tests := []struct {
		err      error
		expected string
	}{
		{Structural("short", nil), "StructuralError"},
		{Access("missing", nil), "AccessError"},
		{Plugin("boom", nil), "PluginError"},
		{Config("bad size", nil), "ConfigurationError"},
		{ErrTimeout, "TimeoutError"},
		{ErrUnsupported, "Unsupported"},
		{New("SOMETHING_NEW", "x"), "UnknownError"},
		{errors.New("plain"), "PluginError"},
	}

	for _, tt := range tests {
		t.Run(tt.expected, func(t *testing.T) {
			assert.Equal(t, tt.expected, GetCategory(tt.err))
		})
	}
}

func TestPredicates(t *testing.T) {
	wrapped := fmt.Errorf("setup: %w", Access("open dump", errors.New("no such file")))

	assert.True(t, IsAccessError(wrapped))
	assert.False(t, IsStructuralError(wrapped))
	assert.True(t, IsAccessError(ErrFileTooLarge))
	assert.True(t, IsStructuralError(Structural("elf", nil)))
	assert.True(t, IsPluginError(Plugin("x", nil)))
	assert.True(t, IsTimeoutError(Wrap(CodeTimeout, "slow", nil)))
	assert.True(t, IsConfigError(Config("bad", nil)))
	assert.False(t, IsConfigError(nil))
}

func TestGetErrorCode(t *testing.T) {
	assert.Equal(t, CodeConfig, GetErrorCode(Config("bad", nil)))
	assert.Equal(t, CodeUnknown, GetErrorCode(errors.New("plain")))
	assert.Equal(t, CodeUnknown, GetErrorCode(nil))
}

func TestGetErrorMessage(t *testing.T) {
	assert.Equal(t, "open dump: gone", GetErrorMessage(Access("open dump", errors.New("gone"))))
	assert.Equal(t, "short", GetErrorMessage(Structural("short", nil)))
	assert.Equal(t, "plain", GetErrorMessage(errors.New("plain")))
	assert.Equal(t, "", GetErrorMessage(nil))
}
