package answer

import (
	"strings"
)

// Kind discriminates the two answer shapes a problem can declare.
type Kind int

const (
	KindScalar   Kind = iota // Single free-form value
	KindFraction             // Numerator / denominator pair
)

func (k Kind) String() string {
	switch k {
	case KindFraction:
		return "fraction"
	default:
		return "scalar"
	}
}

// fractionSeparator joins numerator and denominator on the wire.
const fractionSeparator = "/"

// KindForSubcategory maps a problem's declared subcategory tag to the answer
// shape it expects. Any subcategory naming fractions takes a structured
// fraction answer; everything else is scalar.
func KindForSubcategory(subcategory string) Kind {
	if strings.Contains(strings.ToLower(subcategory), "fraction") {
		return KindFraction
	}
	return KindScalar
}

// Answer is a learner's in-progress answer to one problem. Exactly one of
// Value (scalar) or Numerator/Denominator (fraction) is meaningful, selected
// by Kind.
type Answer struct {
	Kind        Kind
	Value       string
	Numerator   string
	Denominator string
}

// Scalar builds a scalar answer.
func Scalar(v string) Answer {
	return Answer{Kind: KindScalar, Value: v}
}

// Fraction builds a fraction answer.
func Fraction(numerator, denominator string) Answer {
	return Answer{Kind: KindFraction, Numerator: numerator, Denominator: denominator}
}

// Empty returns the zero answer for the given kind.
func Empty(kind Kind) Answer {
	return Answer{Kind: kind}
}

// IsComplete reports whether every required part is non-empty after trimming.
func (a Answer) IsComplete() bool {
	_, ok := Normalize(a)
	return ok
}

// IsBlank reports whether no part has any content.
func (a Answer) IsBlank() bool {
	if a.Kind == KindFraction {
		return strings.TrimSpace(a.Numerator) == "" && strings.TrimSpace(a.Denominator) == ""
	}
	return strings.TrimSpace(a.Value) == ""
}

// Normalize converts an answer into its persisted wire form.
//
// Scalar answers are trimmed. Fraction answers become "numerator/denominator"
// from the trimmed parts. The second return value is false when the answer is
// incomplete and must not be saved: an empty scalar, a fraction missing either
// part, or a fraction part that itself contains the separator (it could not be
// split back apart).
func Normalize(a Answer) (string, bool) {
	switch a.Kind {
	case KindFraction:
		num := strings.TrimSpace(a.Numerator)
		den := strings.TrimSpace(a.Denominator)
		if num == "" || den == "" {
			return "", false
		}
		if strings.Contains(num, fractionSeparator) || strings.Contains(den, fractionSeparator) {
			return "", false
		}
		return num + fractionSeparator + den, true
	default:
		v := strings.TrimSpace(a.Value)
		if v == "" {
			return "", false
		}
		return v, true
	}
}

// Denormalize rebuilds an answer of the given kind from a previously saved
// wire value. It never fails: a fraction value that is missing the separator
// or has the wrong number of parts recovers as an empty fraction, since saved
// data may be partial.
func Denormalize(kind Kind, wire string) Answer {
	if kind != KindFraction {
		return Scalar(strings.TrimSpace(wire))
	}

	parts := strings.Split(wire, fractionSeparator)
	if len(parts) != 2 {
		return Empty(KindFraction)
	}
	return Fraction(strings.TrimSpace(parts[0]), strings.TrimSpace(parts[1]))
}

// Canonical returns the answer with every part trimmed. Normalize followed by
// Denormalize yields Canonical(a) for any complete answer.
func (a Answer) Canonical() Answer {
	if a.Kind == KindFraction {
		return Fraction(strings.TrimSpace(a.Numerator), strings.TrimSpace(a.Denominator))
	}
	return Scalar(strings.TrimSpace(a.Value))
}
