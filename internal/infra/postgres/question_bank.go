package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgconn"
	"github.com/jackc/pgx/v4"
	"github.com/jackc/pgx/v4/pgxpool"

	"trivia-quiz-service/internal/domain"
)

// QuestionBank reads categories and questions from Postgres.
type QuestionBank struct {
	pool *pgxpool.Pool
}

func NewQuestionBank(pool *pgxpool.Pool) *QuestionBank {
	return &QuestionBank{pool: pool}
}

const questionColumns = `id, question, answer, difficulty, category_id, rating`

// FetchNextQuestion picks a random question matching filter whose id is not in excluded.
func (b *QuestionBank) FetchNextQuestion(ctx context.Context, excluded []int64, filter domain.CategoryFilter) (domain.Question, bool, error) {
	if excluded == nil {
		excluded = []int64{}
	}
	row := b.pool.QueryRow(ctx, `
		SELECT `+questionColumns+`
		FROM questions
		WHERE id <> ALL($1::bigint[])
		  AND ($2::bigint = 0 OR category_id = $2)
		ORDER BY random()
		LIMIT 1`, excluded, filter.CategoryID)

	q, err := scanQuestion(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.Question{}, false, nil
	}
	if err != nil {
		return domain.Question{}, false, fmt.Errorf("fetch next question: %w", err)
	}
	return q, true, nil
}

func (b *QuestionBank) ListQuestions(ctx context.Context, query domain.QuestionQuery) ([]domain.Question, int, error) {
	const where = `WHERE ($1::bigint = 0 OR category_id = $1) AND ($2 = '' OR question ILIKE '%' || $2 || '%')`

	var total int
	err := b.pool.QueryRow(ctx, `SELECT count(*) FROM questions `+where,
		query.Category.CategoryID, query.Search).Scan(&total)
	if err != nil {
		return nil, 0, fmt.Errorf("count questions: %w", err)
	}

	limit := any(nil)
	if query.Limit > 0 {
		limit = query.Limit
	}
	rows, err := b.pool.Query(ctx, `
		SELECT `+questionColumns+`
		FROM questions `+where+`
		ORDER BY id
		OFFSET $3 LIMIT $4`, query.Category.CategoryID, query.Search, query.Offset, limit)
	if err != nil {
		return nil, 0, fmt.Errorf("list questions: %w", err)
	}
	defer rows.Close()

	questions := []domain.Question{}
	for rows.Next() {
		q, err := scanQuestion(rows)
		if err != nil {
			return nil, 0, fmt.Errorf("scan question: %w", err)
		}
		questions = append(questions, q)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, fmt.Errorf("list questions: %w", err)
	}
	return questions, total, nil
}

func (b *QuestionBank) CreateQuestion(ctx context.Context, q domain.Question) (domain.Question, error) {
	err := b.pool.QueryRow(ctx, `
		INSERT INTO questions (question, answer, difficulty, category_id, rating)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING id`, q.Text, q.Answer, q.Difficulty, q.CategoryID, q.Rating).Scan(&q.ID)
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch pgErr.Code {
		case foreignKeyViolation:
			return domain.Question{}, domain.ErrCategoryNotFound
		case checkViolation:
			return domain.Question{}, fmt.Errorf("%w: %s", domain.ErrInvalidQuestion, pgErr.ConstraintName)
		}
	}
	if err != nil {
		return domain.Question{}, fmt.Errorf("create question: %w", err)
	}
	return q, nil
}

func (b *QuestionBank) DeleteQuestion(ctx context.Context, questionID int64) error {
	tag, err := b.pool.Exec(ctx, `DELETE FROM questions WHERE id = $1`, questionID)
	if err != nil {
		return fmt.Errorf("delete question: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrQuestionNotFound
	}
	return nil
}

func (b *QuestionBank) RateQuestion(ctx context.Context, questionID int64, rating int) (domain.Question, error) {
	row := b.pool.QueryRow(ctx, `
		UPDATE questions SET rating = $2
		WHERE id = $1
		RETURNING `+questionColumns, questionID, rating)
	q, err := scanQuestion(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.Question{}, domain.ErrQuestionNotFound
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == checkViolation {
		return domain.Question{}, fmt.Errorf("%w: %s", domain.ErrInvalidQuestion, pgErr.ConstraintName)
	}
	if err != nil {
		return domain.Question{}, fmt.Errorf("rate question: %w", err)
	}
	return q, nil
}

// CreateCategory inserts a category with the next id from categories_id_seq.
func (b *QuestionBank) CreateCategory(ctx context.Context, name string) (domain.Category, error) {
	c := domain.Category{Name: name}
	err := b.pool.QueryRow(ctx, `INSERT INTO categories (name) VALUES ($1) RETURNING id`, name).Scan(&c.ID)
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
		return domain.Category{}, domain.ErrCategoryExists
	}
	if err != nil {
		return domain.Category{}, fmt.Errorf("create category: %w", err)
	}
	return c, nil
}

// LoadCategories reads the whole catalog ordered by id.
func (b *QuestionBank) LoadCategories(ctx context.Context) ([]domain.Category, error) {
	rows, err := b.pool.Query(ctx, `SELECT id, name FROM categories ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("load categories: %w", err)
	}
	defer rows.Close()

	categories := []domain.Category{}
	for rows.Next() {
		var c domain.Category
		if err := rows.Scan(&c.ID, &c.Name); err != nil {
			return nil, fmt.Errorf("scan category: %w", err)
		}
		categories = append(categories, c)
	}
	return categories, rows.Err()
}

// Import upserts categories and questions in a single transaction.
func (b *QuestionBank) Import(ctx context.Context, categories []domain.Category, questions []domain.Question) error {
	return b.pool.BeginFunc(ctx, func(tx pgx.Tx) error {
		for _, c := range categories {
			_, err := tx.Exec(ctx, `
				INSERT INTO categories (id, name) VALUES ($1, $2)
				ON CONFLICT (id) DO UPDATE SET name = EXCLUDED.name`, c.ID, c.Name)
			if err != nil {
				return fmt.Errorf("upsert category %d: %w", c.ID, err)
			}
		}
		for _, q := range questions {
			_, err := tx.Exec(ctx, `
				INSERT INTO questions (`+questionColumns+`) VALUES ($1, $2, $3, $4, $5, $6)
				ON CONFLICT (id) DO UPDATE SET
					question = EXCLUDED.question,
					answer = EXCLUDED.answer,
					difficulty = EXCLUDED.difficulty,
					category_id = EXCLUDED.category_id,
					rating = EXCLUDED.rating`,
				q.ID, q.Text, q.Answer, q.Difficulty, q.CategoryID, q.Rating)
			if err != nil {
				return fmt.Errorf("upsert question %d: %w", q.ID, err)
			}
		}
		if _, err := tx.Exec(ctx, `SELECT setval('categories_id_seq', COALESCE(max(id), 0) + 1, false) FROM categories`); err != nil {
			return fmt.Errorf("sync category ids: %w", err)
		}
		_, err := tx.Exec(ctx, `SELECT setval(pg_get_serial_sequence('questions', 'id'), COALESCE(max(id), 1)) FROM questions`)
		return err
	})
}

func scanQuestion(row pgx.Row) (domain.Question, error) {
	var q domain.Question
	err := row.Scan(&q.ID, &q.Text, &q.Answer, &q.Difficulty, &q.CategoryID, &q.Rating)
	return q, err
}
