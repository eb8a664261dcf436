package tools

import (
	"errors"
	"fmt"
)

// Registry errors.
var (
	ErrToolNotFound          = errors.New("tool not found")
	ErrToolNameEmpty         = errors.New("tool name cannot be empty")
	ErrToolHandlerNil        = errors.New("tool handler cannot be nil")
	ErrToolAlreadyRegistered = errors.New("tool already registered")
)

// Dependency errors, returned as text to the model.
var (
	ErrNoInvoice     = errors.New("no invoice data yet, call fetch_invoice first")
	ErrMissingArg    = errors.New("missing argument")
	ErrNotConfigured = errors.New("not configured")
)

// PanicError is a recovered handler panic.
type PanicError struct {
	Value any
}

func (e *PanicError) Error() string {
	return fmt.Sprint(e.Value)
}
