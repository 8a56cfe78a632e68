package fieldmapping

import "github.com/ehr/labimport/internal/platform/spreadsheet"

// Seed builds the editable mapping tree for field. Every node is looked up
// in prior by concept uuid, so reordered set members or reordered spreadsheet
// columns still pick up the saved column, scale and answer expressions.
// Nodes without a prior entry start blank.
func Seed(field Field, prior *ConceptMapping) *ConceptMapping {
	if field == nil {
		return nil
	}
	return seed(field, NewIndex(prior))
}

func seed(f Field, idx Index) *ConceptMapping {
	c := f.Concept()
	m := &ConceptMapping{Concept: c.UUID, Display: c.Display}
	old := idx[c.UUID]

	switch t := f.(type) {
	case *PanelField:
		for _, member := range t.Members {
			m.SetMembers = append(m.SetMembers, seed(member, idx))
		}
		return m
	case *CodedField:
		var answers map[string]*ConceptMapping
		if old != nil {
			answers = make(map[string]*ConceptMapping, len(old.Answers))
			for _, a := range old.Answers {
				if a != nil {
					answers[a.Concept] = a
				}
			}
		}
		for _, opt := range t.Answers {
			am := &ConceptMapping{Concept: opt.Concept.UUID, Display: opt.Concept.Display}
			if prev, ok := answers[opt.Concept.UUID]; ok {
				am.Value = prev.Value
			}
			m.Answers = append(m.Answers, am)
		}
	}
	if old != nil {
		m.Value = old.Value
		if f.Kind() == KindNumeric {
			m.Scale = old.Scale
		}
	}
	return m
}

// ReuseSampleID returns the prior sample id column when headers still
// contain it.
func ReuseSampleID(prior *FieldMapping, headers []spreadsheet.HeaderDescriptor) string {
	if prior == nil || prior.SampleID == "" {
		return ""
	}
	if _, ok := spreadsheet.FindHeader(headers, prior.SampleID); !ok {
		return ""
	}
	return prior.SampleID
}
