package app

import (
	"strings"

	"trivia-quiz-service/internal/domain"
)

var punctuation = strings.NewReplacer(
	".", "", ",", "", "/", "", "#", "", "!", "", "$", "", "%", "", "^", "",
	"&", "", "*", "", ";", "", ":", "", "{", "", "}", "", "=", "", "-", "",
	"_", "", "`", "", "~", "", "(", "", ")", "",
)

// Normalize strips the guess punctuation set and lower-cases the rest.
// Whitespace and every other rune are kept as is.
func Normalize(text string) string {
	return strings.ToLower(punctuation.Replace(text))
}

// IsCorrect reports whether every whitespace separated token of the expected
// answer occurs somewhere in the normalized guess. Tokens may appear in any
// order and inside longer words.
func IsCorrect(guess, expected string) bool {
	normalized := Normalize(guess)
	for _, token := range strings.Fields(strings.ToLower(expected)) {
		if !strings.Contains(normalized, token) {
			return false
		}
	}
	return true
}

// Evaluate checks a guess against a question's expected answer.
func Evaluate(guess string, question domain.Question) (bool, error) {
	if question.Answer == nil {
		return false, domain.ErrMissingAnswer
	}
	return IsCorrect(guess, *question.Answer), nil
}
