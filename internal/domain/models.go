package domain

import "strconv"

// Category groups questions in the question bank.
type Category struct {
	ID   int64  `json:"id" yaml:"id"`
	Name string `json:"name" yaml:"name"`
}

// Question is a free-text trivia question. Answer is nil when the bank holds no
// expected answer for it, which the session treats as a data integrity failure.
type Question struct {
	ID         int64   `json:"id" yaml:"id"`
	Text       string  `json:"question" yaml:"question"`
	Answer     *string `json:"answer" yaml:"answer"`
	Difficulty int     `json:"difficulty" yaml:"difficulty"`
	CategoryID int64   `json:"category" yaml:"category"`
	Rating     int     `json:"rating" yaml:"rating"`
}

// Player is a named profile with a cumulative score across sessions.
type Player struct {
	ID       int64  `json:"id" yaml:"id"`
	Username string `json:"username" yaml:"username"`
	Score    int    `json:"score" yaml:"score"`
}

// LeaderboardEntry is a player ranked by cumulative score.
type LeaderboardEntry struct {
	PlayerID int64  `json:"playerId"`
	Username string `json:"username"`
	Score    int    `json:"score"`
}

// QuestionQuery selects a page of the question listing. Search matches
// question text case-insensitively.
type QuestionQuery struct {
	Category CategoryFilter
	Search   string
	Offset   int
	Limit    int
}

// CategoryFilter selects which questions a session draws from.
// The zero value means every category.
type CategoryFilter struct {
	CategoryID int64
}

// AllCategories is the unconstrained filter.
var AllCategories = CategoryFilter{}

// ForCategory constrains a session to a single category.
func ForCategory(id int64) CategoryFilter {
	return CategoryFilter{CategoryID: id}
}

// All reports whether the filter is unconstrained.
func (f CategoryFilter) All() bool {
	return f.CategoryID == 0
}

// Matches reports whether a question in categoryID passes the filter.
func (f CategoryFilter) Matches(categoryID int64) bool {
	return f.All() || f.CategoryID == categoryID
}

func (f CategoryFilter) String() string {
	if f.All() {
		return "all"
	}
	return "category:" + strconv.FormatInt(f.CategoryID, 10)
}
