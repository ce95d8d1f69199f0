package orders

import (
	"errors"
	"fmt"
	"strings"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

var (
	// ErrNotFound is returned by stores when a document does not exist.
	ErrNotFound = errors.New("not found")
	// ErrTransient marks failures that may succeed on retry.
	ErrTransient = errors.New("temporarily unavailable")
)

// ValidationError reports malformed input. Nothing has been persisted.
type ValidationError struct {
	Details []string
}

func (e *ValidationError) Error() string {
	if len(e.Details) == 0 {
		return "validation failed"
	}
	return "validation failed: " + strings.Join(e.Details, "; ")
}

// NotFoundError reports a missing product or order.
type NotFoundError struct {
	Resource string
	ID       primitive.ObjectID
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s %s not found", e.Resource, e.ID.Hex())
}

func (e *NotFoundError) Is(target error) bool {
	return target == ErrNotFound
}

type InsufficientStockError struct {
	ProductID primitive.ObjectID
	Product   string
	Available int
	Requested int
}

func (e *InsufficientStockError) Error() string {
	return fmt.Sprintf("Insufficient stock for %s. Available: %d, Requested: %d", e.Product, e.Available, e.Requested)
}

// TransientError wraps a store or timeout failure during placement.
type TransientError struct {
	Op  string
	Err error
}

func (e *TransientError) Error() string {
	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

func (e *TransientError) Unwrap() error {
	return e.Err
}

func (e *TransientError) Is(target error) bool {
	return target == ErrTransient
}

func transient(op string, err error) error {
	return &TransientError{Op: op, Err: err}
}
