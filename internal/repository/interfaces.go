package repository

import (
	"context"
	"errors"

	"github.com/odpi/egeria-sub244/internal/domain"

	"github.com/google/uuid"
)

var (
	// ErrEntityNotFound is returned when no entity has the requested id.
	ErrEntityNotFound = errors.New("entity not found")
	// ErrVersionConflict is returned when an update carries a stale version.
	ErrVersionConflict = errors.New("entity version conflict")
)

// EntityRepository defines the interface for entity operations
type EntityRepository interface {
	Create(ctx context.Context, entity domain.EntityDetail) (domain.EntityDetail, error)
	GetByID(ctx context.Context, id uuid.UUID) (domain.EntityDetail, error)
	// GetByIDs returns the entities that exist, in no particular order.
	GetByIDs(ctx context.Context, ids []uuid.UUID) ([]domain.EntityDetail, error)
	// Update replaces type, properties and classifications. A non-zero
	// Version must match the stored version.
	Update(ctx context.Context, entity domain.EntityDetail) (domain.EntityDetail, error)
	Delete(ctx context.Context, id uuid.UUID) error

	// Find returns one page of matching entities and the total match count.
	Find(ctx context.Context, search domain.EntitySearch) ([]domain.EntityDetail, int, error)
	Count(ctx context.Context) (int64, error)
}
