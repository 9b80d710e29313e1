// Package errors provides the categorised errors reported by the stagecheck harness.
package errors

import (
	stderrors "errors"
	"fmt"
	"runtime"
)

// ErrorCategory represents different categories of errors
type ErrorCategory string

const (
	CategoryToolInvocation  ErrorCategory = "TOOL_INVOCATION"
	CategoryMissingExpected ErrorCategory = "MISSING_EXPECTED"
	CategoryMissingScratch  ErrorCategory = "MISSING_SCRATCH"
	CategoryCleanup         ErrorCategory = "CLEANUP"
	CategoryDiscovery       ErrorCategory = "DISCOVERY"
	CategoryConfig          ErrorCategory = "CONFIG"
)

// Category sentinels for use with errors.Is.
var (
	ErrToolInvocation  = &StandardError{Category: CategoryToolInvocation}
	ErrMissingExpected = &StandardError{Category: CategoryMissingExpected}
	ErrMissingScratch  = &StandardError{Category: CategoryMissingScratch}
	ErrCleanup         = &StandardError{Category: CategoryCleanup}
	ErrDiscovery       = &StandardError{Category: CategoryDiscovery}
	ErrConfig          = &StandardError{Category: CategoryConfig}
)

// StandardError provides a consistent error format
type StandardError struct {
	Category ErrorCategory
	Code     string
	Message  string
	Context  map[string]interface{}
	Caller   string
	Cause    error
}

// Error implements the error interface
func (e *StandardError) Error() string {
	msg := fmt.Sprintf("[%s:%s] %s", e.Category, e.Code, e.Message)
	if e.Cause != nil {
		msg += ": " + e.Cause.Error()
	}
	return msg
}

// Unwrap exposes the underlying cause.
func (e *StandardError) Unwrap() error { return e.Cause }

// Is matches any StandardError of the same category. A target carrying a
// Code must also match on Code.
func (e *StandardError) Is(target error) bool {
	t, ok := target.(*StandardError)
	if !ok {
		return false
	}
	if t.Category != e.Category {
		return false
	}
	return t.Code == "" || t.Code == e.Code
}

// NewStandardError creates a new standardized error
func NewStandardError(category ErrorCategory, code, message string, context map[string]interface{}) *StandardError {
	pc, _, _, ok := runtime.Caller(1)
	caller := "unknown"
	if ok {
		if fn := runtime.FuncForPC(pc); fn != nil {
			caller = fn.Name()
		}
	}

	return &StandardError{
		Category: category,
		Code:     code,
		Message:  message,
		Context:  context,
		Caller:   caller,
	}
}

// Wrap attaches cause to the error and returns it.
func (e *StandardError) Wrap(cause error) *StandardError {
	e.Cause = cause
	return e
}

// CategoryOf returns the category of the first StandardError in err's chain.
func CategoryOf(err error) (ErrorCategory, bool) {
	var se *StandardError
	if stderrors.As(err, &se) {
		return se.Category, true
	}
	return "", false
}

// Common error constructors

// ToolStartFailed reports that the external tool could not be started at all.
func ToolStartFailed(tool string, cause error) *StandardError {
	return NewStandardError(CategoryToolInvocation, "START_FAILED",
		fmt.Sprintf("cannot start tool %s", tool),
		map[string]interface{}{"tool": tool}).Wrap(cause)
}

// ToolExited reports a nonzero exit status of the external tool.
func ToolExited(tool string, code int, stderr string) *StandardError {
	return NewStandardError(CategoryToolInvocation, "NONZERO_EXIT",
		fmt.Sprintf("tool %s exited with status %d%s", tool, code, stderrSuffix(stderr)),
		map[string]interface{}{"tool": tool, "exit_code": code, "stderr": stderr})
}

// ToolKilled reports that the external tool was terminated by a signal.
func ToolKilled(tool string, signal string, stderr string) *StandardError {
	return NewStandardError(CategoryToolInvocation, "KILLED",
		fmt.Sprintf("tool %s killed by %s%s", tool, signal, stderrSuffix(stderr)),
		map[string]interface{}{"tool": tool, "signal": signal, "stderr": stderr})
}

// ToolTimedOut reports that the invocation exceeded its deadline.
func ToolTimedOut(tool string, cause error) *StandardError {
	return NewStandardError(CategoryToolInvocation, "TIMEOUT",
		fmt.Sprintf("tool %s did not finish in time", tool),
		map[string]interface{}{"tool": tool}).Wrap(cause)
}

// MissingExpected reports a fixture whose golden reference does not exist.
func MissingExpected(path string, cause error) *StandardError {
	return NewStandardError(CategoryMissingExpected, "FIXTURE_MISCONFIGURED",
		fmt.Sprintf("fixture misconfigured: cannot read expected output %s", path),
		map[string]interface{}{"path": path}).Wrap(cause)
}

// MissingScratch reports a scratch file that the tool did not produce.
func MissingScratch(path string, cause error) *StandardError {
	return NewStandardError(CategoryMissingScratch, "NOT_PRODUCED",
		fmt.Sprintf("tool produced no %s", path),
		map[string]interface{}{"path": path}).Wrap(cause)
}

// CleanupFailed reports a scratch file that could not be removed.
func CleanupFailed(path string, cause error) *StandardError {
	return NewStandardError(CategoryCleanup, "REMOVE_FAILED",
		fmt.Sprintf("cannot remove scratch file %s", path),
		map[string]interface{}{"path": path}).Wrap(cause)
}

// DiscoveryFailed reports that the fixture directory could not be listed.
func DiscoveryFailed(dir string, cause error) *StandardError {
	return NewStandardError(CategoryDiscovery, "LIST_FAILED",
		fmt.Sprintf("cannot list fixture directory %s", dir),
		map[string]interface{}{"dir": dir}).Wrap(cause)
}

// InvalidConfig reports a configuration problem.
func InvalidConfig(message string, cause error) *StandardError {
	return NewStandardError(CategoryConfig, "INVALID", message, nil).Wrap(cause)
}

func stderrSuffix(stderr string) string {
	if stderr == "" {
		return ""
	}
	const limit = 512
	if len(stderr) > limit {
		stderr = stderr[:limit] + "..."
	}
	return ": " + stderr
}
