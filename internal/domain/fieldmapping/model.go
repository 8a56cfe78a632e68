package fieldmapping

import (
	"bytes"
	"encoding/json"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/ehr/labimport/internal/platform/spreadsheet"
)

// DoNotFill marks a leaf as out of scope, or an answer as never matching.
const DoNotFill = "DO_NOT_FILL"

// Scale is a decimal multiplier kept in its textual form so that an invalid
// value can be reported back to the operator verbatim. It accepts both JSON
// strings and JSON numbers.
type Scale string

func (s *Scale) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	if bytes.Equal(b, []byte("null")) {
		*s = ""
		return nil
	}
	if len(b) > 0 && b[0] == '"' {
		var str string
		if err := json.Unmarshal(b, &str); err != nil {
			return err
		}
		*s = Scale(str)
		return nil
	}
	*s = Scale(b)
	return nil
}

// ConceptMapping is the persisted configuration for one concept. At a leaf
// Value names a header (or DoNotFill); inside Answers it is a matching
// expression.
type ConceptMapping struct {
	Concept    string            `json:"concept" yaml:"concept"`
	Display    string            `json:"display" yaml:"display"`
	Value      string            `json:"value" yaml:"value"`
	Scale      Scale             `json:"scale,omitempty" yaml:"scale,omitempty"`
	SetMembers []*ConceptMapping `json:"setMembers,omitempty" yaml:"setMembers,omitempty"`
	Answers    []*ConceptMapping `json:"answers,omitempty" yaml:"answers,omitempty"`
}

// InScope reports whether the leaf should be filled during reconciliation.
func (m *ConceptMapping) InScope() bool {
	return m != nil && strings.TrimSpace(m.Value) != DoNotFill
}

// Member returns the set-member mapping for conceptUUID.
func (m *ConceptMapping) Member(conceptUUID string) *ConceptMapping {
	if m == nil {
		return nil
	}
	for _, sm := range m.SetMembers {
		if sm != nil && sm.Concept == conceptUUID {
			return sm
		}
	}
	return nil
}

// FieldMapping is everything needed to replay an import against a file with
// the same header shape.
type FieldMapping struct {
	Mapping   *ConceptMapping                `json:"mapping"`
	Headers   []spreadsheet.HeaderDescriptor `json:"headers"`
	Separator string                         `json:"separator"`
	Quote     string                         `json:"quote"`
	SampleID  string                         `json:"sampleId"`
}

// Record maps to the field_mapping table.
type Record struct {
	ID           uuid.UUID    `db:"id" json:"id"`
	ConceptUUID  string       `db:"concept_uuid" json:"conceptUuid"`
	HeaderHash   string       `db:"header_hash" json:"headerHash"`
	FieldMapping FieldMapping `db:"field_mapping" json:"fieldMapping"`
	CreatedBy    *string      `db:"created_by" json:"createdBy,omitempty"`
	CreatedAt    time.Time    `db:"created_at" json:"createdAt"`
	UpdatedAt    time.Time    `db:"updated_at" json:"updatedAt"`
}

// Index is a concept-uuid lookup over a mapping tree. The first occurrence of
// a uuid in depth-first order wins.
type Index map[string]*ConceptMapping

func NewIndex(root *ConceptMapping) Index {
	idx := Index{}
	var walk func(m *ConceptMapping)
	walk = func(m *ConceptMapping) {
		if m == nil {
			return
		}
		if _, ok := idx[m.Concept]; !ok && m.Concept != "" {
			idx[m.Concept] = m
		}
		for _, sm := range m.SetMembers {
			walk(sm)
		}
	}
	walk(root)
	return idx
}
