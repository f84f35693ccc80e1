// Package tools provides the capability registry the agent dispatches
// through.
//
// This file defines the error types that shape the loop's behavior:
// validation and execution failures stay inside the loop as information
// for the oracle; anything else aborts the run.
package tools

import (
	"errors"
	"fmt"
)

// UnknownToolError is returned when a call targets a tool that is not
// present in the registry. The oracle proposed a capability that does
// not exist; feeding the error back usually corrects it.
type UnknownToolError struct {
	ToolName string
}

// Error implements the error interface.
func (e *UnknownToolError) Error() string {
	return fmt.Sprintf("tool %q is not available", e.ToolName)
}

// ValidationError reports arguments that failed the tool's schema.
// It is raised before any side effect — nothing was dispatched,
// nothing was audited.
type ValidationError struct {
	ToolName string
	Field    string
	Reason   string
}

// Error implements the error interface.
func (e *ValidationError) Error() string {
	if e.Field != "" {
		return fmt.Sprintf("invalid arguments for %s: %s: %s", e.ToolName, e.Field, e.Reason)
	}
	return fmt.Sprintf("invalid arguments for %s: %s", e.ToolName, e.Reason)
}

// ExecutionError wraps a domain-level rejection from the capability
// (unknown entity, not enough stock). The call was dispatched, failed
// for business reasons, and was audited; the oracle may explain it to
// the user or try a corrective action.
type ExecutionError struct {
	ToolName string
	Err      error
}

// Error implements the error interface.
func (e *ExecutionError) Error() string {
	return e.Err.Error()
}

// Unwrap exposes the underlying domain error.
func (e *ExecutionError) Unwrap() error {
	return e.Err
}

// IsRecoverable reports whether err should stay inside the decision
// loop as oracle-visible information rather than aborting the run.
func IsRecoverable(err error) bool {
	var unknown *UnknownToolError
	var validation *ValidationError
	var execution *ExecutionError
	return errors.As(err, &unknown) || errors.As(err, &validation) || errors.As(err, &execution)
}
