package resultimport

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"github.com/ehr/labimport/internal/domain/fieldmapping"
	"github.com/ehr/labimport/internal/domain/reconcile"
	"github.com/ehr/labimport/internal/domain/worksheet"
)

// WorksheetGateway is the part of the worksheet service an import needs;
// *worksheet.Service satisfies it.
type WorksheetGateway interface {
	ListPending(ctx context.Context, worksheetID uuid.UUID) ([]*worksheet.Item, error)
	ApplyResults(ctx context.Context, writes []worksheet.ResultWrite) error
}

// worksheetSink applies a reconciliation batch to worksheet results.
type worksheetSink struct {
	worksheets WorksheetGateway
}

func (s worksheetSink) Apply(ctx context.Context, updates []reconcile.FieldUpdate) error {
	writes := make([]worksheet.ResultWrite, 0, len(updates))
	for _, u := range updates {
		id, err := uuid.Parse(u.ItemID)
		if err != nil {
			return fmt.Errorf("invalid item id %q: %w", u.ItemID, err)
		}
		path := u.Path
		if path == reconcile.ResultFilledPath {
			path = worksheet.ResultFilledPath
		}
		writes = append(writes, worksheet.ResultWrite{ItemID: id, FieldPath: path, Value: u.Value})
	}
	return s.worksheets.ApplyResults(ctx, writes)
}

// pendingItems converts worksheet items for the reconciler. Items of the
// imported concept share field.
func pendingItems(items []*worksheet.Item, field fieldmapping.Field) []reconcile.PendingItem {
	out := make([]reconcile.PendingItem, 0, len(items))
	for _, it := range items {
		p := reconcile.PendingItem{
			ID:                    it.ID.String(),
			SampleAccessionNumber: it.SampleAccessionNumber,
			ConceptUUID:           it.ConceptUUID,
			CanEditResults:        it.CanEditResults,
		}
		if field != nil && it.ConceptUUID == field.Concept().UUID {
			p.Field = field
		}
		out = append(out, p)
	}
	return out
}
