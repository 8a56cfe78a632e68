package fieldmapping

import (
	"encoding/json"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ehr/labimport/internal/domain/concept"
)

func TestSeed_Blank(t *testing.T) {
	m := Seed(BuildFieldTree(panelConcept()), nil)
	require.Len(t, m.SetMembers, 3)
	for _, sm := range m.SetMembers {
		assert.Empty(t, sm.Value)
		assert.Empty(t, sm.Scale)
	}
	require.Len(t, m.SetMembers[1].Answers, 2)
	assert.Equal(t, "ans-pos", m.SetMembers[1].Answers[0].Concept)
	assert.Equal(t, "Positive", m.SetMembers[1].Answers[0].Display)
}

func TestSeed_ReusesByConceptUUID(t *testing.T) {
	prior := panelMapping()
	// Saved in a different member order than the catalog declares today.
	prior.SetMembers[0], prior.SetMembers[2] = prior.SetMembers[2], prior.SetMembers[0]
	prior.SetMembers[1].Answers[0], prior.SetMembers[1].Answers[1] = prior.SetMembers[1].Answers[1], prior.SetMembers[1].Answers[0]

	got := Seed(BuildFieldTree(panelConcept()), prior)
	want := panelMapping()
	want.SetMembers[1].Answers[0].Display = "Positive"
	want.SetMembers[1].Answers[1].Display = "Negative"

	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("seeded mapping mismatch (-want +got):\n%s", diff)
	}
}

func TestSeed_UnmatchedNodesStartBlank(t *testing.T) {
	c := panelConcept()
	c.SetMembers = append(c.SetMembers, &concept.Concept{UUID: "hba1c", Display: "HbA1c", Datatype: concept.DatatypeNumeric})

	got := Seed(BuildFieldTree(c), panelMapping())
	require.Len(t, got.SetMembers, 4)
	assert.Equal(t, "GLU", got.SetMembers[0].Value)
	assert.Empty(t, got.SetMembers[3].Value)
	assert.Empty(t, got.SetMembers[3].Scale)
}

func TestReuseSampleID(t *testing.T) {
	prior := &FieldMapping{SampleID: "Sample"}
	assert.Equal(t, "Sample", ReuseSampleID(prior, headers("GLU", "Sample")))
	assert.Empty(t, ReuseSampleID(prior, headers("GLU", "Accession")))
	assert.Empty(t, ReuseSampleID(nil, headers("Sample")))
}

func TestScale_UnmarshalJSON(t *testing.T) {
	var m ConceptMapping
	require.NoError(t, json.Unmarshal([]byte(`{"concept":"glucose","value":"GLU","scale":0.5}`), &m))
	assert.Equal(t, Scale("0.5"), m.Scale)

	require.NoError(t, json.Unmarshal([]byte(`{"concept":"glucose","value":"GLU","scale":"2"}`), &m))
	assert.Equal(t, Scale("2"), m.Scale)

	require.NoError(t, json.Unmarshal([]byte(`{"concept":"glucose","value":"GLU","scale":null}`), &m))
	assert.Equal(t, Scale(""), m.Scale)
}

func TestNewIndex_FirstOccurrenceWins(t *testing.T) {
	root := &ConceptMapping{Concept: "p", SetMembers: []*ConceptMapping{
		{Concept: "a", Value: "first"},
		{Concept: "q", SetMembers: []*ConceptMapping{{Concept: "a", Value: "second"}}},
	}}
	idx := NewIndex(root)
	assert.Equal(t, "first", idx["a"].Value)
	assert.Len(t, idx, 3)
}
