package fieldmapping

import (
	"github.com/ehr/labimport/internal/domain/concept"
	"github.com/ehr/labimport/internal/platform/spreadsheet"
)

func ptr[T any](v T) *T { return &v }

var (
	positive = &concept.Concept{UUID: "ans-pos", Display: "Positive", Datatype: concept.DatatypeNA}
	negative = &concept.Concept{UUID: "ans-neg", Display: "Negative", Datatype: concept.DatatypeNA}
)

func glucoseConcept() *concept.Concept {
	return &concept.Concept{
		UUID: "glucose", Display: "Glucose", Datatype: concept.DatatypeNumeric,
		Units: ptr("mmol/L"), LowAbsolute: ptr(0.0), HiAbsolute: ptr(50.0),
	}
}

func hivConcept() *concept.Concept {
	return &concept.Concept{
		UUID: "hiv", Display: "HIV Rapid Test", Datatype: concept.DatatypeCoded,
		Answers: []*concept.Concept{positive, negative},
	}
}

func commentConcept() *concept.Concept {
	return &concept.Concept{UUID: "comment", Display: "Comment", Datatype: concept.DatatypeText}
}

// panelConcept is a chemistry panel with a numeric, a coded and a text member.
func panelConcept() *concept.Concept {
	return &concept.Concept{
		UUID: "chem", Display: "Chemistry Panel", Datatype: concept.DatatypeNA,
		SetMembers: []*concept.Concept{glucoseConcept(), hivConcept(), commentConcept()},
	}
}

func headers(names ...string) []spreadsheet.HeaderDescriptor {
	out := make([]spreadsheet.HeaderDescriptor, len(names))
	for i, n := range names {
		out[i] = spreadsheet.HeaderDescriptor{Name: n, ColumnIndex: i}
	}
	return out
}

func panelMapping() *ConceptMapping {
	return &ConceptMapping{
		Concept: "chem", Display: "Chemistry Panel",
		SetMembers: []*ConceptMapping{
			{Concept: "glucose", Display: "Glucose", Value: "GLU", Scale: "1"},
			{Concept: "hiv", Display: "HIV Rapid Test", Value: "HIV", Answers: []*ConceptMapping{
				{Concept: "ans-pos", Value: "POS"},
				{Concept: "ans-neg", Value: "<1"},
			}},
			{Concept: "comment", Display: "Comment", Value: DoNotFill},
		},
	}
}
