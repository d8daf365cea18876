// Package errors defines the error categories surfaced by a dump analysis run.
package errors

import (
	"errors"
	"fmt"
)

// Error codes for the application.
const (
	CodeUnknown     = "UNKNOWN_ERROR"
	CodeStructural  = "STRUCTURAL_ERROR"
	CodeAccess      = "ACCESS_ERROR"
	CodePlugin      = "PLUGIN_ERROR"
	CodeTimeout     = "TIMEOUT_ERROR"
	CodeConfig      = "CONFIG_ERROR"
	CodeUnsupported = "UNSUPPORTED_FORMAT"
	CodeStorage     = "STORAGE_ERROR"
	CodeDatabase    = "DATABASE_ERROR"
)

// categoryNames maps codes to the category names written into reports.
var categoryNames = map[string]string{
	CodeUnknown:     "UnknownError",
	CodeStructural:  "StructuralError",
	CodeAccess:      "AccessError",
	CodePlugin:      "PluginError",
	CodeTimeout:     "TimeoutError",
	CodeConfig:      "ConfigurationError",
	CodeUnsupported: "Unsupported",
	CodeStorage:     "StorageError",
	CodeDatabase:    "DatabaseError",
}

// AppError represents an application error with a code and message.
type AppError struct {
	Code    string
	Message string
	Err     error
}

// Error implements the error interface.
func (e *AppError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("[%s] %s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// Unwrap returns the underlying error.
func (e *AppError) Unwrap() error {
	return e.Err
}

// Is checks if the error matches the target.
func (e *AppError) Is(target error) bool {
	t, ok := target.(*AppError)
	if !ok {
		return false
	}
	return e.Code == t.Code
}

// Category returns the report-facing category name of the error.
func (e *AppError) Category() string {
	if name, ok := categoryNames[e.Code]; ok {
		return name
	}
	return categoryNames[CodeUnknown]
}

// New creates a new AppError.
func New(code string, message string) *AppError {
	return &AppError{
		Code:    code,
		Message: message,
	}
}

// Wrap wraps an existing error with an AppError.
func Wrap(code string, message string, err error) *AppError {
	return &AppError{
		Code:    code,
		Message: message,
		Err:     err,
	}
}

// Structural wraps err as a malformed-header error.
func Structural(message string, err error) *AppError {
	return Wrap(CodeStructural, message, err)
}

// Access wraps err as a file access error.
func Access(message string, err error) *AppError {
	return Wrap(CodeAccess, message, err)
}

// Plugin wraps err as a module failure.
func Plugin(message string, err error) *AppError {
	return Wrap(CodePlugin, message, err)
}

// Config wraps err as a configuration error.
func Config(message string, err error) *AppError {
	return Wrap(CodeConfig, message, err)
}

// Storage wraps err as a report storage failure.
func Storage(message string, err error) *AppError {
	return Wrap(CodeStorage, message, err)
}

// Database wraps err as a persistence failure.
func Database(message string, err error) *AppError {
	return Wrap(CodeDatabase, message, err)
}

// Common error instances.
var (
	ErrStructural   = New(CodeStructural, "malformed dump header")
	ErrAccess       = New(CodeAccess, "dump not accessible")
	ErrPlugin       = New(CodePlugin, "module failed")
	ErrTimeout      = New(CodeTimeout, "module timed out")
	ErrConfig       = New(CodeConfig, "configuration error")
	ErrUnsupported  = New(CodeUnsupported, "format not supported by module")
	ErrStorage      = New(CodeStorage, "storage error")
	ErrDatabase     = New(CodeDatabase, "database error")
	ErrFileTooLarge = New(CodeAccess, "dump file too large")
)

// IsStructuralError checks if the error is a malformed-header error.
func IsStructuralError(err error) bool {
	return errors.Is(err, ErrStructural)
}

// IsAccessError checks if the error is a file access error.
func IsAccessError(err error) bool {
	return errors.Is(err, ErrAccess)
}

// IsPluginError checks if the error is a module failure.
func IsPluginError(err error) bool {
	return errors.Is(err, ErrPlugin)
}

// IsTimeoutError checks if the error is a module timeout.
func IsTimeoutError(err error) bool {
	return errors.Is(err, ErrTimeout)
}

// IsConfigError checks if the error is a configuration error.
func IsConfigError(err error) bool {
	return errors.Is(err, ErrConfig)
}

// IsStorageError checks if the error is a report storage failure.
func IsStorageError(err error) bool {
	return errors.Is(err, ErrStorage)
}

// IsDatabaseError checks if the error is a persistence failure.
func IsDatabaseError(err error) bool {
	return errors.Is(err, ErrDatabase)
}

// GetErrorCode extracts the error code from an error.
func GetErrorCode(err error) string {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr.Code
	}
	return CodeUnknown
}

// GetCategory extracts the report category from an error.
// Errors that are not AppErrors are reported as plugin errors since they can
// only reach a report through a module boundary.
func GetCategory(err error) string {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr.Category()
	}
	return categoryNames[CodePlugin]
}

// GetErrorMessage extracts the error message from an error.
func GetErrorMessage(err error) string {
	var appErr *AppError
	if errors.As(err, &appErr) {
		if appErr.Err != nil {
			return appErr.Message + ": " + appErr.Err.Error()
		}
		return appErr.Message
	}
	if err != nil {
		return err.Error()
	}
	return ""
}
