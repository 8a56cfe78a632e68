package fieldmapping

import (
	"errors"
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
)

var ErrInvalidExpression = errors.New("invalid matching expression")

// Numbers longer than maxNumberLen or with an exponent beyond
// ±maxNumberScale are not numbers.
const (
	maxNumberLen   = 64
	maxNumberScale = 1000
)

type ExprKind int

const (
	ExprNever ExprKind = iota
	ExprLiteral
	ExprGreater
	ExprLess
	ExprRange
)

// Expression is a parsed coded-answer matching expression:
//
//	DO_NOT_FILL   never matches
//	text          V == text, case-sensitive
//	>T            V > T
//	<T            V < T
//	low><high     low < V < high
type Expression struct {
	Kind    ExprKind
	Literal string
	Low     decimal.Decimal
	High    decimal.Decimal
}

// ParseExpression parses s. A range whose low bound is not below its high
// bound is rejected.
func ParseExpression(s string) (Expression, error) {
	if strings.TrimSpace(s) == DoNotFill {
		return Expression{Kind: ExprNever}, nil
	}
	if !strings.ContainsAny(s, "<>") {
		return Expression{Kind: ExprLiteral, Literal: s}, nil
	}

	if rest, ok := strings.CutPrefix(s, ">"); ok {
		if t, err := parseNumber(rest); err == nil {
			return Expression{Kind: ExprGreater, Low: t}, nil
		}
	}
	if rest, ok := strings.CutPrefix(s, "<"); ok {
		if t, err := parseNumber(rest); err == nil {
			return Expression{Kind: ExprLess, High: t}, nil
		}
	}

	if i := strings.Index(s, "><"); i > 0 && i+2 < len(s) {
		parts := strings.Split(s, "><")
		if len(parts) != 2 {
			return Expression{}, fmt.Errorf("%w: %q has more than two range bounds", ErrInvalidExpression, s)
		}
		low, err := parseNumber(parts[0])
		if err != nil {
			return Expression{}, fmt.Errorf("%w: %q: low bound is not a number", ErrInvalidExpression, s)
		}
		high, err := parseNumber(parts[1])
		if err != nil {
			return Expression{}, fmt.Errorf("%w: %q: high bound is not a number", ErrInvalidExpression, s)
		}
		if !low.LessThan(high) {
			return Expression{}, fmt.Errorf("%w: %q: low bound must be less than high bound", ErrInvalidExpression, s)
		}
		return Expression{Kind: ExprRange, Low: low, High: high}, nil
	}

	return Expression{}, fmt.Errorf("%w: %q", ErrInvalidExpression, s)
}

// IsThreshold reports whether the expression compares numerically.
func (e Expression) IsThreshold() bool {
	return e.Kind == ExprGreater || e.Kind == ExprLess || e.Kind == ExprRange
}

// MatchLiteral reports an exact match of a literal expression.
func (e Expression) MatchLiteral(v string) bool {
	return e.Kind == ExprLiteral && e.Literal == v
}

// MatchNumber evaluates a threshold expression against v.
func (e Expression) MatchNumber(v decimal.Decimal) bool {
	switch e.Kind {
	case ExprGreater:
		return v.GreaterThan(e.Low)
	case ExprLess:
		return v.LessThan(e.High)
	case ExprRange:
		return v.GreaterThan(e.Low) && v.LessThan(e.High)
	default:
		return false
	}
}

func parseNumber(s string) (decimal.Decimal, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return decimal.Zero, errors.New("empty number")
	}
	if len(s) > maxNumberLen {
		return decimal.Zero, fmt.Errorf("number longer than %d characters", maxNumberLen)
	}
	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Zero, err
	}
	if exp := d.Exponent(); exp > maxNumberScale || exp < -maxNumberScale {
		return decimal.Zero, fmt.Errorf("number %q out of range", s)
	}
	return d, nil
}

// ParseNumber parses a raw cell as a decimal number, ignoring surrounding
// whitespace.
func ParseNumber(s string) (decimal.Decimal, bool) {
	d, err := parseNumber(s)
	return d, err == nil
}
