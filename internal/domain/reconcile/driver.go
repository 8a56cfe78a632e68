// Package reconcile matches spreadsheet rows to pending tests by sample
// accession number and turns their cells into staged result writes.
package reconcile

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/ehr/labimport/internal/domain/fieldmapping"
	"github.com/ehr/labimport/internal/platform/spreadsheet"
)

// ResultFilledPath is the path of the marker staged for every updated item.
const ResultFilledPath = "resultFilled"

type State int

const (
	StateInit State = iota
	StateValidated
	StateScanned
	StateApplied
	StateAborted
)

func (s State) String() string {
	switch s {
	case StateValidated:
		return "validated"
	case StateScanned:
		return "scanned"
	case StateApplied:
		return "applied"
	case StateAborted:
		return "aborted"
	default:
		return "init"
	}
}

func (s State) MarshalText() ([]byte, error) { return []byte(s.String()), nil }

// PendingItem is a test awaiting a result. Field is the item's field tree;
// when nil the input's tree is used.
type PendingItem struct {
	ID                    string             `json:"id" yaml:"id"`
	SampleAccessionNumber string             `json:"sampleAccessionNumber" yaml:"sampleAccessionNumber"`
	ConceptUUID           string             `json:"conceptUuid" yaml:"conceptUuid"`
	CanEditResults        bool               `json:"canEditResults" yaml:"canEditResults"`
	Field                 fieldmapping.Field `json:"-" yaml:"-"`
}

// FieldUpdate is one staged write.
type FieldUpdate struct {
	ItemID string `json:"itemId"`
	Path   string `json:"path"`
	Value  string `json:"value"`
}

type Input struct {
	Field   fieldmapping.Field
	Mapping fieldmapping.FieldMapping
	Rows    [][]string
	Items   []PendingItem
}

// Sink applies a batch of staged updates atomically.
type Sink interface {
	Apply(ctx context.Context, updates []FieldUpdate) error
}

func normalize(id string) string {
	return strings.ToLower(strings.TrimSpace(id))
}

// Scan runs the pass up to staging. It performs no I/O.
func Scan(in Input) *Outcome {
	out := &Outcome{State: StateInit}
	abort := func(err error) *Outcome {
		out.State = StateAborted
		out.Err = err
		return out
	}

	var conceptUUID string
	if in.Mapping.Mapping != nil {
		conceptUUID = in.Mapping.Mapping.Concept
	}

	if len(in.Rows) == 0 {
		return abort(ErrNoData)
	}
	var eligible []PendingItem
	for _, it := range in.Items {
		if it.CanEditResults && it.ConceptUUID == conceptUUID {
			eligible = append(eligible, it)
		}
	}
	if len(eligible) == 0 {
		return abort(ErrNoPendingTests)
	}

	sampleCol, ok := spreadsheet.FindHeader(in.Mapping.Headers, strings.TrimSpace(in.Mapping.SampleID))
	if !ok || sampleCol.ColumnIndex < 0 || sampleCol.ColumnIndex >= len(in.Mapping.Headers) {
		return abort(ErrSampleIDNotFound)
	}
	idOf := func(row []string) string {
		if sampleCol.ColumnIndex >= len(row) {
			return ""
		}
		return row[sampleCol.ColumnIndex]
	}

	pending := make(map[string][]PendingItem, len(eligible))
	for _, it := range eligible {
		key := normalize(it.SampleAccessionNumber)
		pending[key] = append(pending[key], it)
	}
	out.State = StateValidated

	if err := findDuplicate(in.Rows, idOf); err != nil {
		return abort(err)
	}

	var matched [][]string
	for _, row := range in.Rows {
		if _, ok := pending[normalize(idOf(row))]; ok {
			matched = append(matched, row)
		}
	}
	if len(matched) == 0 {
		return abort(ErrNoMatchingSamples)
	}

	columns := make(map[string]int, len(in.Mapping.Headers))
	for _, h := range in.Mapping.Headers {
		// First match wins, as in spreadsheet.FindHeader.
		if _, ok := columns[h.Name]; !ok {
			columns[h.Name] = h.ColumnIndex
		}
	}

	for _, row := range matched {
		sampleID := strings.TrimSpace(idOf(row))
		items := pending[normalize(sampleID)]
		if len(items) == 0 {
			out.addDiagnostic(sampleID, MsgNotFound, false)
			continue
		}
		item := items[0]
		if len(items) > 1 || item.ConceptUUID != conceptUUID {
			out.addDiagnostic(sampleID, MsgConceptMismatch, false)
			continue
		}
		field := item.Field
		if field == nil {
			field = in.Field
		}

		staged := 0
		resolveRow(row, columns, item.ID, field, in.Mapping.Mapping, func(u FieldUpdate) {
			out.Updates = append(out.Updates, u)
			staged++
		})
		if staged == 0 {
			out.addDiagnostic(sampleID, MsgNotResolved, false)
			continue
		}
		out.Updates = append(out.Updates, FieldUpdate{ItemID: item.ID, Path: ResultFilledPath, Value: "true"})
		out.UpdatedCount++
		out.addDiagnostic(sampleID, MsgUpdated, true)
	}

	if len(out.Updates) == 0 {
		return abort(fmt.Errorf("%w: %s", ErrNoUpdates, out.joinDiagnostics()))
	}
	out.State = StateScanned
	return out
}

// findDuplicate reports the first id, in row order, that occurs more than
// once. Blank ids are ignored.
func findDuplicate(rows [][]string, idOf func([]string) string) error {
	counts := make(map[string]int, len(rows))
	for _, row := range rows {
		if key := normalize(idOf(row)); key != "" {
			counts[key]++
		}
	}
	for _, row := range rows {
		raw := strings.TrimSpace(idOf(row))
		if n := counts[normalize(raw)]; raw != "" && n > 1 {
			return &DuplicateSampleError{SampleID: raw, Count: n}
		}
	}
	return nil
}

// Reconciler runs a full pass and hands the staged batch to its sink once.
type Reconciler struct {
	sink Sink
}

func New(sink Sink) *Reconciler {
	return &Reconciler{sink: sink}
}

// Run scans in and applies the staged updates. The returned error is
// non-nil only when the sink fails; the outcome is then aborted and nothing
// was applied.
func (r *Reconciler) Run(ctx context.Context, in Input) (*Outcome, error) {
	out := Scan(in)
	if out.State != StateScanned {
		return out, nil
	}
	if err := r.sink.Apply(ctx, out.Updates); err != nil {
		out.State = StateAborted
		out.Err = fmt.Errorf("apply results: %w", err)
		out.UpdatedCount = 0
		out.Updates = nil
		return out, out.Err
	}
	out.State = StateApplied
	return out, nil
}

// IsFatal reports whether err is one of the batch-fatal abort reasons.
func IsFatal(err error) bool {
	var dup *DuplicateSampleError
	return errors.Is(err, ErrNoData) || errors.Is(err, ErrNoPendingTests) ||
		errors.Is(err, ErrSampleIDNotFound) || errors.Is(err, ErrNoMatchingSamples) ||
		errors.As(err, &dup)
}
