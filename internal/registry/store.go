// Package registry owns the model catalog: the Store capability that persists
// ModelRecords and the scanner that discovers weight files on disk.
package registry

import (
	"context"

	"ollamad/pkg/types"
)

// Store persists model records. List returns records in insertion order; Upsert
// keeps an existing record's position. Implementations wrap failures with
// apperr.RegistryFailure.
type Store interface {
	Get(ctx context.Context, id string) (types.Model, bool, error)
	List(ctx context.Context) ([]types.Model, error)
	Upsert(ctx context.Context, m types.Model) error
	Delete(ctx context.Context, id string) (bool, error)
	Close() error
}
