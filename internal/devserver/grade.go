package devserver

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/abhisek/mathdrill/internal/answer"
	"github.com/abhisek/mathdrill/internal/delivery"
)

// isCorrect compares a saved wire answer against the expected one.
//
// Fractions are compared by value, so "2/4" matches "1/2". Scalars that parse
// as numbers are compared numerically ("3.50" matches "3.5", "007" matches
// "7"); anything else is compared case-insensitively.
func isCorrect(kind answer.Kind, given, want string) bool {
	given = strings.TrimSpace(given)
	if given == "" {
		return false
	}

	if kind == answer.KindFraction {
		g, err := reduceFraction(given)
		if err != nil {
			return false
		}
		w, err := reduceFraction(want)
		if err != nil {
			return false
		}
		return g == w
	}

	gf, gerr := strconv.ParseFloat(given, 64)
	wf, werr := strconv.ParseFloat(strings.TrimSpace(want), 64)
	if gerr == nil && werr == nil {
		return gf == wf
	}
	return strings.EqualFold(given, strings.TrimSpace(want))
}

// reduceFraction parses "a/b" and returns it in lowest terms with the sign on
// the numerator.
func reduceFraction(s string) (string, error) {
	parts := strings.SplitN(s, "/", 2)
	if len(parts) != 2 {
		return "", fmt.Errorf("invalid fraction format: %q", s)
	}
	num, err := strconv.ParseInt(strings.TrimSpace(parts[0]), 10, 64)
	if err != nil {
		return "", fmt.Errorf("invalid numerator: %w", err)
	}
	den, err := strconv.ParseInt(strings.TrimSpace(parts[1]), 10, 64)
	if err != nil {
		return "", fmt.Errorf("invalid denominator: %w", err)
	}
	if den == 0 {
		return "", fmt.Errorf("zero denominator")
	}
	if den < 0 {
		num, den = -num, -den
	}
	g := gcd(abs(num), den)
	if g == 0 {
		g = 1
	}
	return fmt.Sprintf("%d/%d", num/g, den/g), nil
}

func gcd(a, b int64) int64 {
	for b != 0 {
		a, b = b, a%b
	}
	return a
}

func abs(n int64) int64 {
	if n < 0 {
		return -n
	}
	return n
}

// scoreOf totals correctness across results.
func scoreOf(results []delivery.ProblemResult) delivery.Score {
	s := delivery.Score{Total: len(results)}
	for _, r := range results {
		if r.IsCorrect {
			s.Correct++
		}
	}
	if s.Total > 0 {
		s.Percentage = float64(s.Correct) * 100 / float64(s.Total)
	}
	return s
}

// celebrationFor picks the results banner for a score.
func celebrationFor(s delivery.Score) delivery.Celebration {
	switch {
	case s.Total == 0:
		return delivery.Celebration{Level: "none", Title: "No problems", Message: "This session had nothing to grade."}
	case s.Percentage >= 90:
		return delivery.Celebration{Level: "gold", Title: "Outstanding!", Message: fmt.Sprintf("%d of %d correct.", s.Correct, s.Total)}
	case s.Percentage >= 70:
		return delivery.Celebration{Level: "silver", Title: "Great work!", Message: fmt.Sprintf("%d of %d correct.", s.Correct, s.Total)}
	case s.Percentage >= 50:
		return delivery.Celebration{Level: "bronze", Title: "Good effort", Message: fmt.Sprintf("%d of %d correct. Keep practicing.", s.Correct, s.Total)}
	default:
		return delivery.Celebration{Level: "keep-going", Title: "Keep going", Message: fmt.Sprintf("%d of %d correct. Review and try again.", s.Correct, s.Total)}
	}
}
