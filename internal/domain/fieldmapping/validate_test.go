package fieldmapping

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func validFieldMapping() FieldMapping {
	return FieldMapping{
		Mapping:  panelMapping(),
		Headers:  headers("Sample", "GLU", "HIV", "Note"),
		SampleID: "Sample",
	}
}

func TestValidate_OK(t *testing.T) {
	errs := Validate(BuildFieldTree(panelConcept()), validFieldMapping())
	assert.Empty(t, errs)
	assert.NoError(t, errs.Err())
}

func TestValidate_SampleID(t *testing.T) {
	field := BuildFieldTree(panelConcept())

	fm := validFieldMapping()
	fm.SampleID = ""
	errs := Validate(field, fm)
	require.Len(t, errs, 1)
	assert.Equal(t, "sampleId", errs[0].Path)

	fm.SampleID = "Accession"
	errs = Validate(field, fm)
	require.Len(t, errs, 1)
	assert.Contains(t, errs[0].Message, "Accession")
}

func TestValidate_CollectsEveryProblem(t *testing.T) {
	fm := validFieldMapping()
	fm.Mapping.SetMembers[0].Scale = "two"
	fm.Mapping.SetMembers[1].Value = ""
	fm.Mapping.SetMembers[1].Answers[1].Value = "60><50"
	fm.Mapping.SetMembers[2].Value = "Missing"

	errs := Validate(BuildFieldTree(panelConcept()), fm)
	paths := make([]string, len(errs))
	for i, e := range errs {
		paths[i] = e.Path
	}
	assert.ElementsMatch(t, []string{"chem.glucose", "chem.hiv", "chem.hiv.ans-neg", "chem.comment"}, paths)
	assert.True(t, strings.HasPrefix(errs.Error(), "invalid field mapping: "))
}

func TestValidate_NumericScaleRequired(t *testing.T) {
	fm := FieldMapping{
		Mapping:  &ConceptMapping{Concept: "glucose", Value: "GLU"},
		Headers:  headers("Sample", "GLU"),
		SampleID: "Sample",
	}
	errs := Validate(BuildFieldTree(glucoseConcept()), fm)
	require.Len(t, errs, 1)
	assert.Contains(t, errs[0].Message, "scale is required")

	fm.Mapping.Scale = "1e5000"
	require.Len(t, Validate(BuildFieldTree(glucoseConcept()), fm), 1)

	fm.Mapping.Scale = "0.001"
	assert.Empty(t, Validate(BuildFieldTree(glucoseConcept()), fm))
}

func TestValidate_OutOfScopeLeafSkipped(t *testing.T) {
	fm := FieldMapping{
		Mapping:  &ConceptMapping{Concept: "glucose", Value: DoNotFill},
		Headers:  headers("Sample"),
		SampleID: "Sample",
	}
	assert.Empty(t, Validate(BuildFieldTree(glucoseConcept()), fm))
}

func TestValidate_EmptyAnswerExpressionSkipped(t *testing.T) {
	fm := FieldMapping{
		Mapping: &ConceptMapping{Concept: "hiv", Value: "HIV", Answers: []*ConceptMapping{
			{Concept: "ans-pos", Value: ""},
			{Concept: "ans-neg", Value: DoNotFill},
		}},
		Headers:  headers("Sample", "HIV"),
		SampleID: "Sample",
	}
	assert.Empty(t, Validate(BuildFieldTree(hivConcept()), fm))
}

func TestValidate_MissingMemberMapping(t *testing.T) {
	fm := validFieldMapping()
	fm.Mapping.SetMembers = fm.Mapping.SetMembers[:2]
	errs := Validate(BuildFieldTree(panelConcept()), fm)
	require.Len(t, errs, 1)
	assert.Equal(t, "chem.comment", errs[0].Path)
}

func TestValidate_WrongRootConcept(t *testing.T) {
	fm := validFieldMapping()
	fm.Mapping.Concept = "other"
	errs := Validate(BuildFieldTree(panelConcept()), fm)
	require.Len(t, errs, 1)
	assert.Contains(t, errs[0].Message, "other")
}
