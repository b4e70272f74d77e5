package cli

import (
	"errors"
	"fmt"

	"github.com/syntrixbase/indexsync/pkg/model"
)

// Exit codes.
const (
	ExitInSync  = 0 // nothing needed correcting
	ExitUpdated = 1 // at least one update or delete was attempted
	ExitFatal   = 2 // a source or the downstream could not be reached
	ExitConfig  = 3 // invalid configuration or usage
)

// ExitError carries the process exit code of a command.
type ExitError struct {
	Code    int
	Message string
	Err     error
}

func (e *ExitError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

func (e *ExitError) Unwrap() error {
	return e.Err
}

// WrapExitError wraps err with an exit code.
func WrapExitError(code int, message string, err error) *ExitError {
	return &ExitError{Code: code, Message: message, Err: err}
}

// GetExitCode maps a command error to an exit code. Errors that are not
// an ExitError come from cobra itself and are usage errors.
func GetExitCode(err error) int {
	if err == nil {
		return ExitInSync
	}
	var exitErr *ExitError
	if errors.As(err, &exitErr) {
		return exitErr.Code
	}
	return ExitConfig
}

// runError classifies an error returned by a run. Cancellation keeps the
// fatal exit code but is reported as an interruption, not a failure.
func runError(message string, err error) *ExitError {
	if model.IsCanceled(err) {
		return WrapExitError(ExitFatal, "interrupted", model.WrapError(err))
	}
	if errors.Is(err, model.ErrInvalidConfig) {
		return WrapExitError(ExitConfig, message, err)
	}
	return WrapExitError(ExitFatal, message, err)
}

// updatedError reports that corrective actions were attempted.
func updatedError() *ExitError {
	return &ExitError{Code: ExitUpdated, Message: "corrective actions attempted"}
}
