package memory

import (
	"context"
	"math/rand"
	"slices"
	"strings"
	"sync"
	"time"

	"trivia-quiz-service/internal/domain"
)

// QuestionBank is a question bank backed by in-memory slices (useful for tests/demos).
type QuestionBank struct {
	mu         sync.RWMutex
	categories []domain.Category
	questions  []domain.Question
	nextID     int64

	rndMu sync.Mutex
	rnd   *rand.Rand
}

func NewQuestionBank(categories []domain.Category, questions []domain.Question) *QuestionBank {
	b := &QuestionBank{
		categories: slices.Clone(categories),
		questions:  slices.Clone(questions),
		rnd:        rand.New(rand.NewSource(time.Now().UnixNano())),
	}
	slices.SortFunc(b.categories, func(a, c domain.Category) int { return compareIDs(a.ID, c.ID) })
	slices.SortFunc(b.questions, func(a, c domain.Question) int { return compareIDs(a.ID, c.ID) })
	for _, q := range b.questions {
		b.nextID = max(b.nextID, q.ID)
	}
	return b
}

// FetchNextQuestion picks a random question matching filter that is not in excluded.
func (b *QuestionBank) FetchNextQuestion(ctx context.Context, excluded []int64, filter domain.CategoryFilter) (domain.Question, bool, error) {
	if err := ctx.Err(); err != nil {
		return domain.Question{}, false, err
	}

	b.mu.RLock()
	candidates := make([]domain.Question, 0, len(b.questions))
	for _, q := range b.questions {
		if filter.Matches(q.CategoryID) && !slices.Contains(excluded, q.ID) {
			candidates = append(candidates, q)
		}
	}
	b.mu.RUnlock()
	if len(candidates) == 0 {
		return domain.Question{}, false, nil
	}

	b.rndMu.Lock()
	i := b.rnd.Intn(len(candidates))
	b.rndMu.Unlock()
	return candidates[i], true, nil
}

func (b *QuestionBank) ListQuestions(_ context.Context, query domain.QuestionQuery) ([]domain.Question, int, error) {
	search := strings.ToLower(query.Search)

	b.mu.RLock()
	defer b.mu.RUnlock()

	matched := make([]domain.Question, 0, len(b.questions))
	for _, q := range b.questions {
		if !query.Category.Matches(q.CategoryID) {
			continue
		}
		if search != "" && !strings.Contains(strings.ToLower(q.Text), search) {
			continue
		}
		matched = append(matched, q)
	}
	total := len(matched)
	if query.Offset >= total {
		return []domain.Question{}, total, nil
	}
	end := total
	if query.Limit > 0 {
		end = min(query.Offset+query.Limit, total)
	}
	return matched[query.Offset:end], total, nil
}

// CreateQuestion appends q with the next free id.
func (b *QuestionBank) CreateQuestion(_ context.Context, q domain.Question) (domain.Question, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if !slices.ContainsFunc(b.categories, func(c domain.Category) bool { return c.ID == q.CategoryID }) {
		return domain.Question{}, domain.ErrCategoryNotFound
	}
	b.nextID++
	q.ID = b.nextID
	b.questions = append(b.questions, q)
	return q, nil
}

func (b *QuestionBank) DeleteQuestion(_ context.Context, questionID int64) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	i := slices.IndexFunc(b.questions, func(q domain.Question) bool { return q.ID == questionID })
	if i < 0 {
		return domain.ErrQuestionNotFound
	}
	b.questions = slices.Delete(b.questions, i, i+1)
	return nil
}

// RateQuestion replaces the rating of a stored question.
func (b *QuestionBank) RateQuestion(_ context.Context, questionID int64, rating int) (domain.Question, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	i := slices.IndexFunc(b.questions, func(q domain.Question) bool { return q.ID == questionID })
	if i < 0 {
		return domain.Question{}, domain.ErrQuestionNotFound
	}
	b.questions[i].Rating = rating
	return b.questions[i], nil
}

// CreateCategory appends a category after the highest id. Names are unique regardless of case.
func (b *QuestionBank) CreateCategory(_ context.Context, name string) (domain.Category, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	var id int64
	for _, c := range b.categories {
		if strings.EqualFold(c.Name, name) {
			return domain.Category{}, domain.ErrCategoryExists
		}
		id = max(id, c.ID)
	}
	c := domain.Category{ID: id + 1, Name: name}
	b.categories = append(b.categories, c)
	return c, nil
}

// LoadCategories implements CategoryLoader.
func (b *QuestionBank) LoadCategories(_ context.Context) ([]domain.Category, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return slices.Clone(b.categories), nil
}

func compareIDs(a, b int64) int {
	switch {
	case a < b:
		return -1
	case a > b:
		return 1
	}
	return 0
}
