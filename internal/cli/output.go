package cli

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
)

// Exit codes for CLI commands.
const (
	ExitSuccess      = 0 // Successful execution
	ExitFailure      = 1 // Operation failed partway (sync aborted, verification failed, etc.)
	ExitCommandError = 2 // Command error (bad config, store cannot be opened, etc.)
	ExitStaleKey     = 3 // Another host registered a newer key
)

// ExitError represents an error with a specific exit code.
type ExitError struct {
	Code    int    // Exit code
	Message string // Error message
	Err     error  // Underlying error (optional)
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

// NewExitError creates a new ExitError with the given code and message.
func NewExitError(code int, message string) *ExitError {
	return &ExitError{Code: code, Message: message}
}

// WrapExitError wraps an existing error with an exit code.
func WrapExitError(code int, message string, err error) *ExitError {
	return &ExitError{Code: code, Message: message, Err: err}
}

// GetExitCode extracts the exit code from an error.
// Returns ExitFailure (1) if the error is not an ExitError.
func GetExitCode(err error) int {
	var exitErr *ExitError
	if errors.As(err, &exitErr) {
		return exitErr.Code
	}
	return ExitFailure
}

// OutputFormatter handles JSON vs text output for CLI commands.
type OutputFormatter struct {
	Format string
	Writer io.Writer
}

// CLIResponse is the standard JSON response format for CLI output.
type CLIResponse struct {
	Status string    `json:"status"`          // "ok" or "error"
	Data   any       `json:"data,omitempty"`  // success payload
	Error  *CLIError `json:"error,omitempty"` // error details
}

// CLIError is the error structure for CLI responses.
type CLIError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
	Details any    `json:"details,omitempty"`
}

// Success writes data as JSON, or calls text in text mode.
func (f *OutputFormatter) Success(data any, text func(io.Writer) error) error {
	if f.Format == "json" {
		return json.NewEncoder(f.Writer).Encode(CLIResponse{Status: "ok", Data: data})
	}
	return text(f.Writer)
}

// Error reports err along with whatever was completed before it. The returned
// error carries the exit code.
func (f *OutputFormatter) Error(err *ExitError, partial any, text func(io.Writer) error) error {
	if f.Format == "json" {
		if encErr := json.NewEncoder(f.Writer).Encode(CLIResponse{
			Status: "error",
			Error:  &CLIError{Code: err.Code, Message: err.Error(), Details: partial},
		}); encErr != nil {
			return encErr
		}
		return err
	}
	if text != nil {
		if werr := text(f.Writer); werr != nil {
			return werr
		}
	}
	return err
}
