package fieldmapping

import (
	"context"
	"errors"

	"github.com/google/uuid"
)

var ErrNotFound = errors.New("field mapping not found")

// Repository stores at most one Record per (concept, header hash). Save
// replaces the field mapping of an existing record with the same key.
type Repository interface {
	Save(ctx context.Context, rec *Record) error
	GetByConceptAndHash(ctx context.Context, conceptUUID, headerHash string) (*Record, error)
	GetByID(ctx context.Context, id uuid.UUID) (*Record, error)
	ListByConcept(ctx context.Context, conceptUUID string, limit, offset int) ([]*Record, int, error)
	List(ctx context.Context, limit, offset int) ([]*Record, int, error)
	Delete(ctx context.Context, id uuid.UUID) error
}
