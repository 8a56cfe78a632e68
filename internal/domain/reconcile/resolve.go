package reconcile

import (
	"strings"

	"github.com/ehr/labimport/internal/domain/fieldmapping"
)

// Resolve turns one raw cell into the value to store for field, using the
// leaf's mapping. ok is false when the cell yields no value, in which case
// the leaf is left untouched. Panels never resolve directly.
func Resolve(raw string, field fieldmapping.Field, m *fieldmapping.ConceptMapping) (string, bool) {
	if m == nil || !m.InScope() {
		return "", false
	}
	switch f := field.(type) {
	case *fieldmapping.NumericField:
		return resolveNumeric(raw, m.Scale)
	case *fieldmapping.TextField:
		return raw, true
	case *fieldmapping.CodedField:
		return resolveCoded(raw, f, m.Answers)
	default:
		return "", false
	}
}

func resolveNumeric(raw string, scale fieldmapping.Scale) (string, bool) {
	v, ok := fieldmapping.ParseNumber(raw)
	if !ok {
		return "", false
	}
	s, ok := fieldmapping.ParseNumber(string(scale))
	if !ok {
		return "", false
	}
	return v.Mul(s).String(), true
}

// resolveCoded picks the first answer whose literal equals raw. Only when no
// literal matches, and raw is numeric, are thresholds tried, again first
// declared wins.
func resolveCoded(raw string, f *fieldmapping.CodedField, answers []*fieldmapping.ConceptMapping) (string, bool) {
	type candidate struct {
		concept string
		expr    fieldmapping.Expression
	}
	var thresholds []candidate

	for _, a := range answers {
		if a == nil || a.Value == "" {
			continue
		}
		expr, err := fieldmapping.ParseExpression(a.Value)
		if err != nil {
			continue
		}
		if expr.MatchLiteral(raw) {
			return a.Concept, true
		}
		if expr.IsThreshold() {
			thresholds = append(thresholds, candidate{concept: a.Concept, expr: expr})
		}
	}

	v, ok := fieldmapping.ParseNumber(raw)
	if !ok {
		return "", false
	}
	for _, c := range thresholds {
		if c.expr.MatchNumber(v) {
			if !f.IsLegalAnswer(c.concept) {
				return "", false
			}
			return c.concept, true
		}
	}
	return "", false
}

// resolveRow stages every in-scope leaf under field for one row. Panel
// members are paired with their mapping by concept uuid.
func resolveRow(row []string, headers map[string]int, itemID string, field fieldmapping.Field, m *fieldmapping.ConceptMapping, stage func(FieldUpdate)) {
	if field == nil || m == nil {
		return
	}
	if p, ok := field.(*fieldmapping.PanelField); ok {
		for _, member := range p.Members {
			resolveRow(row, headers, itemID, member, m.Member(member.Concept().UUID), stage)
		}
		return
	}
	if !m.InScope() {
		return
	}
	col, ok := headers[strings.TrimSpace(m.Value)]
	if !ok || col >= len(row) {
		return
	}
	if v, ok := Resolve(row[col], field, m); ok {
		stage(FieldUpdate{ItemID: itemID, Path: field.ID(), Value: v})
	}
}
