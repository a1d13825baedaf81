package session

import (
	"strings"

	"github.com/abhisek/mathdrill/internal/answer"
	"github.com/abhisek/mathdrill/internal/delivery"
)

// Part names one input of an answer: the single value of a scalar answer, or
// one half of a fraction.
type Part int

const (
	PartValue Part = iota
	PartNumerator
	PartDenominator
)

// FieldRef addresses one input on the page.
type FieldRef struct {
	Sequence int
	Part     Part
}

// Fields lists every input on the page in focus order: problems in server
// order, numerator before denominator.
func Fields(problems []delivery.Problem) []FieldRef {
	out := make([]FieldRef, 0, len(problems))
	for _, p := range problems {
		if p.AnswerKind() == answer.KindFraction {
			out = append(out,
				FieldRef{Sequence: p.SequenceNumber, Part: PartNumerator},
				FieldRef{Sequence: p.SequenceNumber, Part: PartDenominator},
			)
			continue
		}
		out = append(out, FieldRef{Sequence: p.SequenceNumber, Part: PartValue})
	}
	return out
}

// NextFocusableField returns the input after cur. An unknown cur yields the
// first input; the last input has no successor.
func NextFocusableField(problems []delivery.Problem, cur FieldRef) (FieldRef, bool) {
	fields := Fields(problems)
	if len(fields) == 0 {
		return FieldRef{}, false
	}
	i := indexOf(fields, cur)
	if i < 0 {
		return fields[0], true
	}
	if i+1 >= len(fields) {
		return FieldRef{}, false
	}
	return fields[i+1], true
}

// PrevFocusableField returns the input before cur. An unknown cur yields the
// last input; the first input has no predecessor.
func PrevFocusableField(problems []delivery.Problem, cur FieldRef) (FieldRef, bool) {
	fields := Fields(problems)
	if len(fields) == 0 {
		return FieldRef{}, false
	}
	i := indexOf(fields, cur)
	if i < 0 {
		return fields[len(fields)-1], true
	}
	if i == 0 {
		return FieldRef{}, false
	}
	return fields[i-1], true
}

// FirstIncompleteField returns the first input whose content is empty.
func FirstIncompleteField(problems []delivery.Problem, answers map[int]answer.Answer) (FieldRef, bool) {
	for _, f := range Fields(problems) {
		a, ok := answers[f.Sequence]
		if !ok {
			return f, true
		}
		if strings.TrimSpace(PartText(a, f.Part)) == "" {
			return f, true
		}
	}
	return FieldRef{}, false
}

// WithPart returns a with the text of one input replaced.
func WithPart(a answer.Answer, p Part, v string) answer.Answer {
	switch p {
	case PartNumerator:
		a.Numerator = v
	case PartDenominator:
		a.Denominator = v
	default:
		a.Value = v
	}
	return a
}

// PartText returns the text of one input of a.
func PartText(a answer.Answer, p Part) string {
	switch p {
	case PartNumerator:
		return a.Numerator
	case PartDenominator:
		return a.Denominator
	default:
		return a.Value
	}
}

func indexOf(fields []FieldRef, f FieldRef) int {
	for i, x := range fields {
		if x == f {
			return i
		}
	}
	return -1
}
