package fieldmapping

import (
	"fmt"
	"strings"

	"github.com/ehr/labimport/internal/platform/spreadsheet"
)

type ValidationError struct {
	Path    string `json:"path"`
	Concept string `json:"concept,omitempty"`
	Message string `json:"message"`
}

func (e ValidationError) Error() string {
	return e.Path + ": " + e.Message
}

// ValidationErrors collects every problem found in a mapping.
type ValidationErrors []ValidationError

func (v ValidationErrors) Error() string {
	msgs := make([]string, len(v))
	for i, e := range v {
		msgs[i] = e.Error()
	}
	return "invalid field mapping: " + strings.Join(msgs, "; ")
}

// Err returns v as an error, or nil when there are no problems.
func (v ValidationErrors) Err() error {
	if len(v) == 0 {
		return nil
	}
	return v
}

// Validate checks fm against the field tree it was built for.
func Validate(field Field, fm FieldMapping) ValidationErrors {
	var errs ValidationErrors
	add := func(path, concept, format string, args ...any) {
		errs = append(errs, ValidationError{Path: path, Concept: concept, Message: fmt.Sprintf(format, args...)})
	}

	sampleID := strings.TrimSpace(fm.SampleID)
	if sampleID == "" {
		add("sampleId", "", "sample id column is required")
	} else if _, ok := spreadsheet.FindHeader(fm.Headers, sampleID); !ok {
		add("sampleId", "", "column %q is not in the uploaded file", sampleID)
	}

	if field == nil {
		add("mapping", "", "test concept is required")
		return errs
	}
	if fm.Mapping == nil {
		add(field.ID(), field.Concept().UUID, "mapping is required")
		return errs
	}
	if fm.Mapping.Concept != field.Concept().UUID {
		add(field.ID(), field.Concept().UUID, "mapping is for concept %q", fm.Mapping.Concept)
		return errs
	}

	var check func(f Field, m *ConceptMapping)
	check = func(f Field, m *ConceptMapping) {
		c := f.Concept()
		if p, ok := f.(*PanelField); ok {
			for _, member := range p.Members {
				check(member, m.Member(member.Concept().UUID))
			}
			return
		}
		if m == nil {
			add(f.ID(), c.UUID, "%s: a column or %s is required", c.Display, DoNotFill)
			return
		}
		if !m.InScope() {
			return
		}
		col := strings.TrimSpace(m.Value)
		if col == "" {
			add(f.ID(), c.UUID, "%s: a column or %s is required", c.Display, DoNotFill)
		} else if _, ok := spreadsheet.FindHeader(fm.Headers, col); !ok {
			add(f.ID(), c.UUID, "%s: column %q is not in the uploaded file", c.Display, col)
		}

		switch t := f.(type) {
		case *NumericField:
			if strings.TrimSpace(string(m.Scale)) == "" {
				add(f.ID(), c.UUID, "%s: scale is required", c.Display)
			} else if _, ok := ParseNumber(string(m.Scale)); !ok {
				add(f.ID(), c.UUID, "%s: scale %q is not a number", c.Display, m.Scale)
			}
		case *CodedField:
			for _, a := range m.Answers {
				if a == nil || a.Value == "" {
					continue
				}
				if _, err := ParseExpression(a.Value); err != nil {
					add(t.ID()+"."+a.Concept, a.Concept, "%s: %v", displayOr(a), err)
				}
			}
		}
	}
	check(field, fm.Mapping)
	return errs
}

func displayOr(m *ConceptMapping) string {
	if m.Display != "" {
		return m.Display
	}
	return m.Concept
}
