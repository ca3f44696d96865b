// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// errors.go - Error handling shared by all CLI commands.
//
// Commands always return errors and never print-and-swallow them.
// Execute displays the error once and picks the exit code.

package cli

import (
	"errors"
	"fmt"
	"io"

	"github.com/Anthonyvijay10/GrealthAI/internal/client"
	"github.com/Anthonyvijay10/GrealthAI/internal/config"
	"github.com/Anthonyvijay10/GrealthAI/internal/exchange"
	"github.com/Anthonyvijay10/GrealthAI/internal/ollama"
	"github.com/Anthonyvijay10/GrealthAI/internal/session"
	"github.com/Anthonyvijay10/GrealthAI/internal/storage"
)

// =============================================================================
// EXIT CODES - Specific codes for different error categories
// =============================================================================

const (
	// ExitSuccess indicates successful execution
	ExitSuccess = 0
	// ExitGeneralError indicates a general/unknown error
	ExitGeneralError = 1
	// ExitUsageError indicates invalid command usage or arguments
	ExitUsageError = 2
	// ExitConfigError indicates configuration file or settings error
	ExitConfigError = 3
	// ExitAuthError indicates missing or rejected credentials
	ExitAuthError = 4
	// ExitNetworkError indicates the service or model could not be reached
	ExitNetworkError = 5
	// ExitNotFoundError indicates a resource was not found
	ExitNotFoundError = 7
	// ExitTimeoutError indicates an operation timed out
	ExitTimeoutError = 8
)

// =============================================================================
// ERROR TYPES FOR STRUCTURED ERROR HANDLING
// =============================================================================

// CommandError represents a CLI command error with context.
type CommandError struct {
	Command string // Command that failed (e.g., "history", "relay")
	Action  string // Action being performed (e.g., "show", "delete")
	Reason  string // Human-readable reason
	Err     error  // Underlying error (if any)
}

func (e *CommandError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s %s failed: %s: %v", e.Command, e.Action, e.Reason, e.Err)
	}
	return fmt.Sprintf("%s %s failed: %s", e.Command, e.Action, e.Reason)
}

func (e *CommandError) Unwrap() error {
	return e.Err
}

// ValidationError represents a validation failure for user input.
type ValidationError struct {
	Field   string
	Value   string
	Reason  string
	Example string // optional
}

func (e *ValidationError) Error() string {
	msg := fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
	if e.Value != "" {
		msg += fmt.Sprintf(" (got: %s)", e.Value)
	}
	if e.Example != "" {
		msg += fmt.Sprintf("\nExample: %s", e.Example)
	}
	return msg
}

// NotFoundError represents a resource not found error.
type NotFoundError struct {
	Resource string
	ID       string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s not found: %s", e.Resource, e.ID)
}

// NewCommandError creates a new command error.
func NewCommandError(command, action, reason string, err error) error {
	return &CommandError{Command: command, Action: action, Reason: reason, Err: err}
}

// NewValidationError creates a new validation error.
func NewValidationError(field, value, reason string) error {
	return &ValidationError{Field: field, Value: value, Reason: reason}
}

// =============================================================================
// ERROR DISPLAY
// =============================================================================

// DisplayError writes err for a human, or as a JSON object in jsonMode.
func DisplayError(w io.Writer, styles cliStyles, err error, jsonMode bool) {
	if err == nil {
		return
	}
	if jsonMode {
		resp := NewJSONErrorResponse("", err)
		resp.Data = map[string]any{"exit_code": GetExitCode(err)}
		resp.Write(w)
		return
	}
	fmt.Fprintf(w, "%s %s\n", styles.Error.Render("[ERROR]"), err.Error())
}

// GetExitCode determines the appropriate exit code for an error.
func GetExitCode(err error) int {
	if err == nil {
		return ExitSuccess
	}

	var validationErr *ValidationError
	var configErr config.ValidateErrors
	var notFound *NotFoundError
	switch {
	case errors.As(err, &validationErr):
		return ExitUsageError
	case errors.As(err, &configErr):
		return ExitConfigError
	case client.IsUnauthorized(err),
		errors.Is(err, session.ErrNoCredentials),
		errors.Is(err, exchange.ErrNotReady):
		return ExitAuthError
	case errors.Is(err, client.ErrTimeout),
		errors.Is(err, exchange.ErrStalled),
		ollama.IsTimeout(err):
		return ExitTimeoutError
	case errors.Is(err, client.ErrUnreachable),
		ollama.IsNotRunning(err):
		return ExitNetworkError
	case errors.As(err, &notFound),
		errors.Is(err, storage.ErrTranscriptNotFound),
		ollama.IsModelNotFound(err):
		return ExitNotFoundError
	}
	return ExitGeneralError
}
