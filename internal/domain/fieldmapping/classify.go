package fieldmapping

import "github.com/ehr/labimport/internal/domain/concept"

// maxTreeDepth cuts pathological catalogs where a panel contains itself.
const maxTreeDepth = 64

// Classify derives the result kind of a concept. A concept with set members
// is a panel regardless of its datatype; anything that is neither a panel,
// coded nor numeric falls back to a fillable text field.
func Classify(c *concept.Concept) Kind {
	switch {
	case c.IsSet():
		return KindPanel
	case c.IsCoded():
		return KindCoded
	case c.IsNumeric():
		return KindNumeric
	default:
		return KindText
	}
}

// BuildFieldTree derives a fresh Field tree from c. It never fails: missing
// optional metadata degrades to permissive defaults.
func BuildFieldTree(c *concept.Concept) Field {
	if c == nil {
		return nil
	}
	return build(c, c.UUID, 0)
}

func build(c *concept.Concept, id string, depth int) Field {
	n := node{id: id, concept: c}
	kind := Classify(c)
	if kind == KindPanel && depth >= maxTreeDepth {
		kind = KindText
	}

	switch kind {
	case KindPanel:
		p := &PanelField{node: n}
		for _, m := range c.SetMembers {
			if m == nil {
				continue
			}
			p.Members = append(p.Members, build(m, id+"."+m.UUID, depth+1))
		}
		return p
	case KindCoded:
		f := &CodedField{node: n}
		for _, a := range c.Answers {
			if a == nil {
				continue
			}
			f.Answers = append(f.Answers, AnswerOption{ID: id + "." + a.UUID, Concept: a})
		}
		return f
	case KindNumeric:
		f := &NumericField{node: n, Min: c.LowAbsolute, Max: c.HiAbsolute, AllowDecimals: true}
		if c.AllowDecimal != nil {
			f.AllowDecimals = *c.AllowDecimal
		}
		return f
	default:
		return &TextField{node: n}
	}
}
