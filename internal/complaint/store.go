// Package complaint defines the complaint book: a mapping from a customer's
// name to the address they registered a complaint for.
//
// Names are matched exactly and case-sensitively. Writing an existing name
// replaces its address.
package complaint

import (
	"context"
	"errors"
)

// ErrNotFound is returned by [Store.Address] when no complaint exists for the name.
var ErrNotFound = errors.New("complaint: not found")

// Store is the storage interface for complaint records.
// Implementations must be safe for concurrent use.
type Store interface {
	// Exists reports whether a complaint is stored under name.
	Exists(ctx context.Context, name string) (bool, error)

	// Put stores address under name, replacing any previous address.
	Put(ctx context.Context, name, address string) error

	// Address returns the address stored under name, or [ErrNotFound].
	Address(ctx context.Context, name string) (string, error)

	// Ping reports whether the backend is reachable.
	Ping(ctx context.Context) error

	// Close releases the backend.
	Close() error
}
