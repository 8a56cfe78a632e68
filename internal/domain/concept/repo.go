package concept

import (
	"context"
	"errors"
)

var ErrNotFound = errors.New("concept not found")

// Repository provides read-only access to the concept catalog.
type Repository interface {
	GetByUUID(ctx context.Context, uuid string) (*Concept, error)
	Search(ctx context.Context, query string, limit int) ([]*Concept, error)
}
