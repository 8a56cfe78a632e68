package fieldmapping

import "github.com/ehr/labimport/internal/domain/concept"

// Kind is the classification of a concept for result entry.
type Kind int

const (
	KindText Kind = iota
	KindNumeric
	KindCoded
	KindPanel
)

func (k Kind) String() string {
	switch k {
	case KindNumeric:
		return "numeric"
	case KindCoded:
		return "coded"
	case KindPanel:
		return "panel"
	default:
		return "text"
	}
}

// Field is one node of the typed value tree derived from a concept. The
// concrete type is exactly one of *NumericField, *TextField, *CodedField or
// *PanelField.
type Field interface {
	ID() string
	Concept() *concept.Concept
	Kind() Kind
	isField()
}

type node struct {
	id      string
	concept *concept.Concept
}

func (n node) ID() string                { return n.id }
func (n node) Concept() *concept.Concept { return n.concept }
func (n node) ConceptUUID() string       { return n.concept.UUID }
func (node) isField()                    {}

type NumericField struct {
	node
	Min           *float64
	Max           *float64
	AllowDecimals bool
}

func (*NumericField) Kind() Kind { return KindNumeric }

type TextField struct {
	node
}

func (*TextField) Kind() Kind { return KindText }

// AnswerOption is one possible coded answer. It exists so a mapping can
// attach a matching expression to it; it is never resolved on its own.
type AnswerOption struct {
	ID      string
	Concept *concept.Concept
}

type CodedField struct {
	node
	Answers []AnswerOption
}

func (*CodedField) Kind() Kind { return KindCoded }

// IsLegalAnswer reports whether uuid is one of the field's possible answers.
func (f *CodedField) IsLegalAnswer(uuid string) bool {
	for _, a := range f.Answers {
		if a.Concept.UUID == uuid {
			return true
		}
	}
	return false
}

type PanelField struct {
	node
	Members []Field
}

func (*PanelField) Kind() Kind { return KindPanel }

// Walk visits f and every descendant in depth-first declaration order.
// Coded answers are not visited.
func Walk(f Field, fn func(Field)) {
	if f == nil {
		return
	}
	fn(f)
	if p, ok := f.(*PanelField); ok {
		for _, m := range p.Members {
			Walk(m, fn)
		}
	}
}

// Leaves returns every non-panel field under f in declaration order.
func Leaves(f Field) []Field {
	var out []Field
	Walk(f, func(x Field) {
		if x.Kind() != KindPanel {
			out = append(out, x)
		}
	})
	return out
}

// FieldView is the JSON shape clients render forms from.
type FieldView struct {
	ID            string       `json:"id"`
	Concept       string       `json:"concept"`
	Display       string       `json:"display"`
	Kind          string       `json:"kind"`
	IsNumeric     bool         `json:"isNumeric"`
	IsText        bool         `json:"isText"`
	IsCoded       bool         `json:"isCoded"`
	IsPanel       bool         `json:"isPanel"`
	MinValue      *float64     `json:"minValue,omitempty"`
	MaxValue      *float64     `json:"maxValue,omitempty"`
	AllowDecimals bool         `json:"allowDecimals"`
	Units         *string      `json:"units,omitempty"`
	SetMembers    []*FieldView `json:"setMembers,omitempty"`
	Answers       []*FieldView `json:"answers,omitempty"`
}

func View(f Field) *FieldView {
	if f == nil {
		return nil
	}
	c := f.Concept()
	v := &FieldView{
		ID:            f.ID(),
		Concept:       c.UUID,
		Display:       c.Display,
		Kind:          f.Kind().String(),
		AllowDecimals: true,
		Units:         c.Units,
	}
	switch t := f.(type) {
	case *NumericField:
		v.IsNumeric = true
		v.MinValue, v.MaxValue, v.AllowDecimals = t.Min, t.Max, t.AllowDecimals
	case *TextField:
		v.IsText = true
	case *CodedField:
		v.IsCoded = true
		for _, a := range t.Answers {
			v.Answers = append(v.Answers, &FieldView{
				ID: a.ID, Concept: a.Concept.UUID, Display: a.Concept.Display,
				Kind: KindText.String(), IsText: true, AllowDecimals: true,
			})
		}
	case *PanelField:
		v.IsPanel = true
		for _, m := range t.Members {
			v.SetMembers = append(v.SetMembers, View(m))
		}
	}
	return v
}
