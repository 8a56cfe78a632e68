package fieldmapping

import (
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ehr/labimport/internal/domain/concept"
)

func TestClassify(t *testing.T) {
	tests := []struct {
		name string
		c    *concept.Concept
		want Kind
	}{
		{"numeric", glucoseConcept(), KindNumeric},
		{"coded", hivConcept(), KindCoded},
		{"text", commentConcept(), KindText},
		{"panel", panelConcept(), KindPanel},
		{"coded with members is a panel", &concept.Concept{
			UUID: "x", Datatype: concept.DatatypeCoded,
			Answers: []*concept.Concept{positive}, SetMembers: []*concept.Concept{commentConcept()},
		}, KindPanel},
		{"n/a without members", &concept.Concept{UUID: "x", Datatype: concept.DatatypeNA}, KindText},
		{"unknown datatype", &concept.Concept{UUID: "x", Datatype: "Boolean"}, KindText},
		{"empty datatype", &concept.Concept{UUID: "x"}, KindText},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Classify(tt.c))
		})
	}
}

func TestBuildFieldTree_Panel(t *testing.T) {
	root := BuildFieldTree(panelConcept())
	panel, ok := root.(*PanelField)
	require.True(t, ok, "root should be a panel")
	require.Len(t, panel.Members, 3)

	num, ok := panel.Members[0].(*NumericField)
	require.True(t, ok)
	assert.Equal(t, "chem.glucose", num.ID())
	assert.Equal(t, 50.0, *num.Max)
	assert.True(t, num.AllowDecimals)

	coded, ok := panel.Members[1].(*CodedField)
	require.True(t, ok)
	require.Len(t, coded.Answers, 2)
	assert.Equal(t, "chem.hiv.ans-pos", coded.Answers[0].ID)
	assert.True(t, coded.IsLegalAnswer("ans-neg"))
	assert.False(t, coded.IsLegalAnswer("glucose"))

	_, ok = panel.Members[2].(*TextField)
	assert.True(t, ok)

	leaves := Leaves(root)
	assert.Len(t, leaves, 3)
}

func TestBuildFieldTree_Idempotent(t *testing.T) {
	c := panelConcept()
	first := View(BuildFieldTree(c))
	second := View(BuildFieldTree(c))
	if diff := cmp.Diff(first, second); diff != "" {
		t.Errorf("trees differ (-first +second):\n%s", diff)
	}
}

func TestBuildFieldTree_AllowDecimals(t *testing.T) {
	c := glucoseConcept()
	f := BuildFieldTree(c).(*NumericField)
	assert.True(t, f.AllowDecimals)

	c.AllowDecimal = ptr(false)
	f = BuildFieldTree(c).(*NumericField)
	assert.False(t, f.AllowDecimals)
}

func TestBuildFieldTree_Nil(t *testing.T) {
	assert.Nil(t, BuildFieldTree(nil))
	assert.Nil(t, View(nil))
}

func TestBuildFieldTree_CycleDegradesToText(t *testing.T) {
	loop := &concept.Concept{UUID: "loop", Display: "Loop"}
	loop.SetMembers = []*concept.Concept{loop}

	depth := 0
	var deepest Field
	Walk(BuildFieldTree(loop), func(f Field) {
		depth++
		deepest = f
	})
	assert.Equal(t, maxTreeDepth+1, depth)
	assert.Equal(t, KindText, deepest.Kind())
}

func TestView_Flags(t *testing.T) {
	v := View(BuildFieldTree(panelConcept()))
	assert.True(t, v.IsPanel)
	assert.False(t, v.IsCoded)
	require.Len(t, v.SetMembers, 3)

	glu := v.SetMembers[0]
	assert.True(t, glu.IsNumeric)
	assert.Equal(t, "mmol/L", *glu.Units)

	hiv := v.SetMembers[1]
	assert.True(t, hiv.IsCoded)
	require.Len(t, hiv.Answers, 2)
	assert.Equal(t, "Positive", hiv.Answers[0].Display)
}
