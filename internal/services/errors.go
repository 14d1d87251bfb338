package services

import (
	"errors"
	"fmt"

	"ordersvc/internal/repositories"
)

var (
	// ErrItemsRequired rejects an order with no line items before any
	// database work starts.
	ErrItemsRequired = errors.New("order items are required")

	// ErrOrderNotFound covers both a missing order and one owned by someone
	// else; callers cannot tell the two apart.
	ErrOrderNotFound = errors.New("order not found or access denied")
)

// ValidationError identifies a malformed field. Index is the position of the
// offending line item, or -1 when the field is not part of an item.
type ValidationError struct {
	Index  int
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	if e.Index < 0 {
		return fmt.Sprintf("%s %s", e.Field, e.Reason)
	}
	return fmt.Sprintf("item %d: %s %s", e.Index, e.Field, e.Reason)
}

// Stage names the step of order creation that failed.
type Stage string

const (
	StageBegin           Stage = "begin"
	StageInsertHeader    Stage = "insert_header"
	StageResolveProducts Stage = "resolve_products"
	StageInsertItem      Stage = "insert_item"
	StageCommit          Stage = "commit"
)

// TransactionError reports a failure inside the order write transaction. The
// transaction has been rolled back and the connection released by the time
// the caller sees it. Index is only meaningful for StageInsertItem. Err is
// kept for logging only.
type TransactionError struct {
	Stage Stage
	Index int
	Kind  repositories.ErrorKind
	Err   error
}

// Retryable reports whether the failure was caused by the connection rather
// than by the data, so the same request may succeed if sent again.
func (e *TransactionError) Retryable() bool {
	return e.Kind == repositories.KindConnection
}

func (e *TransactionError) Error() string {
	if e.Stage == StageInsertItem {
		return fmt.Sprintf("create order: %s (item %d): %v", e.Stage, e.Index, e.Err)
	}
	return fmt.Sprintf("create order: %s: %v", e.Stage, e.Err)
}

func (e *TransactionError) Unwrap() error {
	return e.Err
}

// ResourceError reports that a database connection could not be obtained.
type ResourceError struct {
	Op  string
	Err error
}

func (e *ResourceError) Error() string {
	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

func (e *ResourceError) Unwrap() error {
	return e.Err
}
