package worksheet

import (
	"time"

	"github.com/google/uuid"
)

const (
	StatusPending    = "pending"
	StatusInProgress = "in-progress"
	StatusCompleted  = "completed"
	StatusCancelled  = "cancelled"
)

// ResultFilledPath is the field path that toggles Item.ResultFilled instead
// of writing a result row.
const ResultFilledPath = "resultFilled"

var validItemStatuses = map[string]bool{
	StatusPending:    true,
	StatusInProgress: true,
	StatusCompleted:  true,
	StatusCancelled:  true,
}

// Worksheet maps to the worksheet table.
type Worksheet struct {
	ID        uuid.UUID `db:"id" json:"id"`
	Name      string    `db:"name" json:"name"`
	Status    string    `db:"status" json:"status"`
	CreatedBy *string   `db:"created_by" json:"created_by,omitempty"`
	CreatedAt time.Time `db:"created_at" json:"created_at"`
	UpdatedAt time.Time `db:"updated_at" json:"updated_at"`
}

// Item maps to the worksheet_item table: one test ordered on one sample.
type Item struct {
	ID                    uuid.UUID `db:"id" json:"id"`
	WorksheetID           uuid.UUID `db:"worksheet_id" json:"worksheet_id"`
	SampleAccessionNumber string    `db:"sample_accession_number" json:"sample_accession_number"`
	ConceptUUID           string    `db:"concept_uuid" json:"concept_uuid"`
	Status                string    `db:"status" json:"status"`
	CanEditResults        bool      `db:"can_edit_results" json:"can_edit_results"`
	ResultFilled          bool      `db:"result_filled" json:"result_filled"`
	CreatedAt             time.Time `db:"created_at" json:"created_at"`
	UpdatedAt             time.Time `db:"updated_at" json:"updated_at"`
}

// IsPending reports whether the item still accepts results.
func (i *Item) IsPending() bool {
	return i.Status == StatusPending || i.Status == StatusInProgress
}

// ItemResult maps to the worksheet_item_result table.
type ItemResult struct {
	ItemID    uuid.UUID `db:"item_id" json:"item_id"`
	FieldPath string    `db:"field_path" json:"field_path"`
	Value     string    `db:"value" json:"value"`
	UpdatedAt time.Time `db:"updated_at" json:"updated_at"`
}

// ResultWrite is one entry of a batch handed to ApplyResults.
type ResultWrite struct {
	ItemID    uuid.UUID
	FieldPath string
	Value     string
}
