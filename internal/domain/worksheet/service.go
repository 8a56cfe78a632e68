package worksheet

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/uuid"
)

type Service struct {
	worksheets WorksheetRepository
	items      ItemRepository
	results    ResultRepository
	tx         Transactor
}

func NewService(ws WorksheetRepository, items ItemRepository, results ResultRepository, tx Transactor) *Service {
	return &Service{worksheets: ws, items: items, results: results, tx: tx}
}

func (s *Service) CreateWorksheet(ctx context.Context, ws *Worksheet) error {
	ws.Name = strings.TrimSpace(ws.Name)
	if ws.Name == "" {
		return fmt.Errorf("name is required")
	}
	if ws.Status == "" {
		ws.Status = "open"
	}
	return s.worksheets.Create(ctx, ws)
}

func (s *Service) GetWorksheet(ctx context.Context, id uuid.UUID) (*Worksheet, error) {
	return s.worksheets.GetByID(ctx, id)
}

func (s *Service) AddItem(ctx context.Context, item *Item) error {
	if item.WorksheetID == uuid.Nil {
		return fmt.Errorf("worksheet_id is required")
	}
	item.SampleAccessionNumber = strings.TrimSpace(item.SampleAccessionNumber)
	if item.SampleAccessionNumber == "" {
		return fmt.Errorf("sample_accession_number is required")
	}
	if strings.TrimSpace(item.ConceptUUID) == "" {
		return fmt.Errorf("concept_uuid is required")
	}
	if item.Status == "" {
		item.Status = StatusPending
	}
	if !validItemStatuses[item.Status] {
		return fmt.Errorf("invalid status: %s", item.Status)
	}
	if _, err := s.worksheets.GetByID(ctx, item.WorksheetID); err != nil {
		return fmt.Errorf("worksheet %s: %w", item.WorksheetID, err)
	}
	return s.items.Create(ctx, item)
}

func (s *Service) ListItems(ctx context.Context, worksheetID uuid.UUID) ([]*Item, error) {
	return s.items.ListByWorksheet(ctx, worksheetID)
}

// ListPending returns the worksheet's items that still accept results.
func (s *Service) ListPending(ctx context.Context, worksheetID uuid.UUID) ([]*Item, error) {
	if _, err := s.worksheets.GetByID(ctx, worksheetID); err != nil {
		return nil, fmt.Errorf("worksheet %s: %w", worksheetID, err)
	}
	all, err := s.items.ListByWorksheet(ctx, worksheetID)
	if err != nil {
		return nil, err
	}
	var pending []*Item
	for _, it := range all {
		if it.IsPending() {
			pending = append(pending, it)
		}
	}
	return pending, nil
}

func (s *Service) ListResults(ctx context.Context, itemID uuid.UUID) ([]*ItemResult, error) {
	if _, err := s.items.GetByID(ctx, itemID); err != nil {
		return nil, err
	}
	return s.results.ListByItem(ctx, itemID)
}

// ApplyResults writes the whole batch in one transaction. A write to
// ResultFilledPath flags the item instead of storing a result row.
func (s *Service) ApplyResults(ctx context.Context, writes []ResultWrite) error {
	if len(writes) == 0 {
		return nil
	}
	return s.tx.InTx(ctx, func(ctx context.Context) error {
		for _, w := range writes {
			if w.FieldPath == ResultFilledPath {
				if err := s.items.SetResultFilled(ctx, w.ItemID, w.Value == "true"); err != nil {
					return fmt.Errorf("flag item %s: %w", w.ItemID, err)
				}
				continue
			}
			res := &ItemResult{ItemID: w.ItemID, FieldPath: w.FieldPath, Value: w.Value}
			if err := s.results.Upsert(ctx, res); err != nil {
				return fmt.Errorf("write %s for item %s: %w", w.FieldPath, w.ItemID, err)
			}
		}
		return nil
	})
}
