package reconcile

import (
	"errors"
	"fmt"
)

// Batch-fatal reasons. Any of these aborts the whole pass before a single
// update is staged.
var (
	ErrNoData            = errors.New("no data")
	ErrNoPendingTests    = errors.New("no pending tests")
	ErrSampleIDNotFound  = errors.New("sample id field not found")
	ErrNoMatchingSamples = errors.New("no matching samples")
	ErrNoUpdates         = errors.New("no results could be imported")
)

// DuplicateSampleError reports a sample id that occurs on more than one row.
type DuplicateSampleError struct {
	SampleID string
	Count    int
}

func (e *DuplicateSampleError) Error() string {
	return fmt.Sprintf("sample id %s has %d duplicate entries", e.SampleID, e.Count)
}

// Row-level diagnostic messages.
const (
	MsgNotFound        = "not found in pending results"
	MsgConceptMismatch = "concept mismatch or duplicate sample ids"
	MsgNotResolved     = "no values could be resolved"
	MsgUpdated         = "results updated"
)
