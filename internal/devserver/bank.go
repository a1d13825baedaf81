package devserver

import (
	"github.com/abhisek/mathdrill/internal/delivery"
)

// bankItem is one problem in the fixed bank, with its expected answer.
type bankItem struct {
	Question    string
	Subcategory string
	Difficulty  string
	Level       int
	Answer      string
}

// bank is cycled through to fill pages. Fraction subcategories expect a
// "numerator/denominator" wire answer; everything else is scalar.
var bank = []bankItem{
	{Question: "What is 7 + 8?", Subcategory: "addition", Difficulty: "easy", Level: 1, Answer: "15"},
	{Question: "What is 1/4 + 1/4?", Subcategory: "fraction_addition", Difficulty: "easy", Level: 1, Answer: "1/2"},
	{Question: "What is 63 - 27?", Subcategory: "subtraction", Difficulty: "easy", Level: 1, Answer: "36"},
	{Question: "What is 6 x 7?", Subcategory: "multiplication", Difficulty: "easy", Level: 1, Answer: "42"},
	{Question: "What is 3/5 - 1/5?", Subcategory: "fraction_subtraction", Difficulty: "medium", Level: 2, Answer: "2/5"},
	{Question: "What is 144 / 12?", Subcategory: "division", Difficulty: "medium", Level: 2, Answer: "12"},
	{Question: "What is 2.5 + 1.25?", Subcategory: "decimal_addition", Difficulty: "medium", Level: 2, Answer: "3.75"},
	{Question: "Write 0.75 as a fraction.", Subcategory: "fraction_conversion", Difficulty: "medium", Level: 2, Answer: "3/4"},
	{Question: "What is 25% of 80?", Subcategory: "percentages", Difficulty: "medium", Level: 3, Answer: "20"},
	{Question: "What is 2/3 x 3/4?", Subcategory: "fraction_multiplication", Difficulty: "hard", Level: 3, Answer: "1/2"},
	{Question: "What is 9 squared?", Subcategory: "exponents", Difficulty: "medium", Level: 3, Answer: "81"},
	{Question: "What is 1/2 / 1/4?", Subcategory: "fraction_division", Difficulty: "hard", Level: 4, Answer: "2/1"},
	{Question: "Round 3.456 to one decimal place.", Subcategory: "rounding", Difficulty: "easy", Level: 2, Answer: "3.5"},
	{Question: "What is the next prime after 13?", Subcategory: "primes", Difficulty: "medium", Level: 3, Answer: "17"},
	{Question: "Simplify 6/8.", Subcategory: "fraction_simplification", Difficulty: "easy", Level: 2, Answer: "3/4"},
	{Question: "What is 1000 - 1?", Subcategory: "subtraction", Difficulty: "easy", Level: 1, Answer: "999"},
}

// bankAt returns the bank item for the given page and sequence number.
func bankAt(page, seq, perPage int) bankItem {
	idx := ((page-1)*perPage + (seq - 1)) % len(bank)
	return bank[idx]
}

// buildPage lays out the problems for one page.
func buildPage(page, perPage int) []delivery.Problem {
	problems := make([]delivery.Problem, perPage)
	for i := range problems {
		seq := i + 1
		item := bankAt(page, seq, perPage)
		problems[i] = delivery.Problem{
			SequenceNumber:  seq,
			Question:        item.Question,
			Subcategory:     item.Subcategory,
			Difficulty:      item.Difficulty,
			DifficultyLevel: item.Level,
		}
	}
	return problems
}
