package worksheet

import (
	"context"
	"errors"

	"github.com/google/uuid"
)

var ErrNotFound = errors.New("not found")

type WorksheetRepository interface {
	Create(ctx context.Context, ws *Worksheet) error
	GetByID(ctx context.Context, id uuid.UUID) (*Worksheet, error)
}

type ItemRepository interface {
	Create(ctx context.Context, item *Item) error
	GetByID(ctx context.Context, id uuid.UUID) (*Item, error)
	ListByWorksheet(ctx context.Context, worksheetID uuid.UUID) ([]*Item, error)
	SetResultFilled(ctx context.Context, id uuid.UUID, filled bool) error
}

type ResultRepository interface {
	Upsert(ctx context.Context, r *ItemResult) error
	ListByItem(ctx context.Context, itemID uuid.UUID) ([]*ItemResult, error)
}

// Transactor runs fn so that every repository call made with the context it
// receives commits or rolls back together.
type Transactor interface {
	InTx(ctx context.Context, fn func(ctx context.Context) error) error
}
