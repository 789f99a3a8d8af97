package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"strings"

	"github.com/google/uuid"

	"trivia-quiz-service/internal/domain"
)

// QuestionsPerPage is the page size of the question listing.
const QuestionsPerPage = 10

// SessionRepository abstracts where live quiz sessions are kept (in-memory, Redis, etc).
type SessionRepository interface {
	Put(session *Session)
	Get(sessionID string) (*Session, bool)
	Delete(sessionID string)
}

// QuestionBank is the question store as seen by the service.
type QuestionBank interface {
	QuestionSupplier
	// ListQuestions returns one page of questions matching query and the total match count.
	ListQuestions(ctx context.Context, query domain.QuestionQuery) ([]domain.Question, int, error)
	CreateQuestion(ctx context.Context, q domain.Question) (domain.Question, error)
	DeleteQuestion(ctx context.Context, questionID int64) error
	RateQuestion(ctx context.Context, questionID int64, rating int) (domain.Question, error)
	CreateCategory(ctx context.Context, name string) (domain.Category, error)
}

// CategoryRepository loads the category catalog (from cache/backing store).
type CategoryRepository interface {
	ListCategories(ctx context.Context) ([]domain.Category, error)
	// Invalidate drops the cached catalog so the next listing reloads it.
	Invalidate(ctx context.Context) error
}

// PlayerDirectory manages player profiles.
type PlayerDirectory interface {
	ListPlayers(ctx context.Context) ([]domain.Player, error)
	GetPlayer(ctx context.Context, playerID int64) (domain.Player, error)
	CreatePlayer(ctx context.Context, username string) (domain.Player, error)
}

// Leaderboard ranks players by cumulative score.
type Leaderboard interface {
	Top(ctx context.Context, limit int) ([]domain.LeaderboardEntry, error)
}

// Observer is told about evaluated guesses and finished sessions.
type Observer interface {
	GuessEvaluated(correct bool)
	SessionFinished(reason FinishReason, correct int)
}

// Config wires the service to its collaborators. Observer and NewID are optional.
type Config struct {
	Sessions    SessionRepository
	Questions   QuestionBank
	Scores      ScoreRecorder
	Categories  CategoryRepository
	Players     PlayerDirectory
	Leaderboard Leaderboard
	Observer    Observer
	NewID       func() string
}

// QuizService contains the quiz use cases.
type QuizService struct {
	sessions    SessionRepository
	questions   QuestionBank
	scores      ScoreRecorder
	categories  CategoryRepository
	players     PlayerDirectory
	leaderboard Leaderboard
	observer    Observer
	newID       func() string
}

func NewQuizService(c Config) *QuizService {
	s := &QuizService{
		sessions:    c.Sessions,
		questions:   c.Questions,
		scores:      c.Scores,
		categories:  c.Categories,
		players:     c.Players,
		leaderboard: c.Leaderboard,
		observer:    c.Observer,
		newID:       c.NewID,
	}
	if s.newID == nil {
		s.newID = newSessionID
	}
	return s
}

func newSessionID() string {
	id, err := uuid.NewV7()
	if err != nil {
		return uuid.NewString()
	}
	return id.String()
}

// Start opens a new session waiting for a player.
func (s *QuizService) Start(_ context.Context) View {
	session := NewSession(s.newID(), s.questions, s.scores)
	s.sessions.Put(session)
	return session.View()
}

// View returns the current snapshot of a session.
func (s *QuizService) View(_ context.Context, sessionID string) (View, error) {
	session, ok := s.sessions.Get(sessionID)
	if !ok {
		return View{}, domain.ErrSessionNotFound
	}
	return session.View(), nil
}

// SelectPlayer binds a session to an existing player.
func (s *QuizService) SelectPlayer(ctx context.Context, sessionID string, playerID int64) (View, error) {
	session, ok := s.sessions.Get(sessionID)
	if !ok {
		return View{}, domain.ErrSessionNotFound
	}
	player, err := s.players.GetPlayer(ctx, playerID)
	if err != nil {
		if errors.Is(err, domain.ErrPlayerNotFound) {
			return session.View(), err
		}
		return session.View(), domain.Transient("get player", err)
	}
	return session.SelectPlayer(player.ID)
}

// SelectCategory fixes the session's category filter and loads the first question.
func (s *QuizService) SelectCategory(ctx context.Context, sessionID string, filter domain.CategoryFilter) (View, error) {
	session, ok := s.sessions.Get(sessionID)
	if !ok {
		return View{}, domain.ErrSessionNotFound
	}
	if err := s.checkCategory(ctx, filter); err != nil {
		return session.View(), err
	}
	return s.observeFinish(session.SelectCategory(ctx, filter))
}

func (s *QuizService) checkCategory(ctx context.Context, filter domain.CategoryFilter) error {
	if filter.All() {
		return nil
	}
	categories, err := s.categories.ListCategories(ctx)
	if err != nil {
		return domain.Transient("list categories", err)
	}
	if !slices.ContainsFunc(categories, func(c domain.Category) bool { return c.ID == filter.CategoryID }) {
		return fmt.Errorf("%w: %d", domain.ErrCategoryNotFound, filter.CategoryID)
	}
	return nil
}

// SubmitGuess evaluates a guess for the session's current question.
func (s *QuizService) SubmitGuess(_ context.Context, sessionID, guess string) (View, error) {
	session, ok := s.sessions.Get(sessionID)
	if !ok {
		return View{}, domain.ErrSessionNotFound
	}
	v, err := session.SubmitGuess(guess)
	if err == nil && s.observer != nil && v.WasCorrect != nil {
		s.observer.GuessEvaluated(*v.WasCorrect)
	}
	return v, err
}

// RequestNext advances a session past a shown result.
func (s *QuizService) RequestNext(ctx context.Context, sessionID string) (View, error) {
	session, ok := s.sessions.Get(sessionID)
	if !ok {
		return View{}, domain.ErrSessionNotFound
	}
	return s.observeFinish(session.RequestNext(ctx))
}

// Restart resets a session to player selection.
func (s *QuizService) Restart(_ context.Context, sessionID string) (View, error) {
	session, ok := s.sessions.Get(sessionID)
	if !ok {
		return View{}, domain.ErrSessionNotFound
	}
	return session.Restart(), nil
}

// End discards a session, e.g. when its client goes away.
func (s *QuizService) End(_ context.Context, sessionID string) {
	s.sessions.Delete(sessionID)
}

// Categories lists the catalog.
func (s *QuizService) Categories(ctx context.Context) ([]domain.Category, error) {
	return s.categories.ListCategories(ctx)
}

// Players lists player profiles.
func (s *QuizService) Players(ctx context.Context) ([]domain.Player, error) {
	return s.players.ListPlayers(ctx)
}

// CreatePlayer registers a new player profile with a zero score.
func (s *QuizService) CreatePlayer(ctx context.Context, username string) (domain.Player, error) {
	username = strings.TrimSpace(username)
	if username == "" {
		return domain.Player{}, domain.ErrInvalidUsername
	}
	return s.players.CreatePlayer(ctx, username)
}

// QuestionPage is one page of the question listing.
type QuestionPage struct {
	Questions []domain.Question `json:"questions"`
	Total     int               `json:"totalQuestions"`
	Page      int               `json:"page"`
}

// Questions lists questions matching filter and search, QuestionsPerPage at a time. Pages start at 1.
func (s *QuizService) Questions(ctx context.Context, filter domain.CategoryFilter, search string, page int) (QuestionPage, error) {
	if page < 1 {
		page = 1
	}
	if err := s.checkCategory(ctx, filter); err != nil {
		return QuestionPage{}, err
	}
	questions, total, err := s.questions.ListQuestions(ctx, domain.QuestionQuery{
		Category: filter,
		Search:   strings.TrimSpace(search),
		Offset:   (page - 1) * QuestionsPerPage,
		Limit:    QuestionsPerPage,
	})
	if err != nil {
		return QuestionPage{}, err
	}
	return QuestionPage{Questions: questions, Total: total, Page: page}, nil
}

// CreateQuestion adds a question to the bank. Text and answer are required.
func (s *QuizService) CreateQuestion(ctx context.Context, q domain.Question) (domain.Question, error) {
	q.Text = strings.TrimSpace(q.Text)
	if q.Text == "" || q.Answer == nil || strings.TrimSpace(*q.Answer) == "" {
		return domain.Question{}, fmt.Errorf("%w: question and answer must not be empty", domain.ErrInvalidQuestion)
	}
	if q.Difficulty == 0 {
		q.Difficulty = 1
	}
	if q.Rating == 0 {
		q.Rating = 3
	}
	if q.Difficulty < 1 || q.Difficulty > 5 {
		return domain.Question{}, fmt.Errorf("%w: difficulty must be between 1 and 5", domain.ErrInvalidQuestion)
	}
	if err := checkRating(q.Rating); err != nil {
		return domain.Question{}, err
	}
	return s.questions.CreateQuestion(ctx, q)
}

// RateQuestion replaces a question's rating.
func (s *QuizService) RateQuestion(ctx context.Context, questionID int64, rating int) (domain.Question, error) {
	if err := checkRating(rating); err != nil {
		return domain.Question{}, err
	}
	return s.questions.RateQuestion(ctx, questionID, rating)
}

func checkRating(rating int) error {
	if rating < 1 || rating > 5 {
		return fmt.Errorf("%w: rating must be between 1 and 5", domain.ErrInvalidQuestion)
	}
	return nil
}

// CreateCategory adds a category and drops the cached catalog so sessions can pick it at once.
func (s *QuizService) CreateCategory(ctx context.Context, name string) (domain.Category, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return domain.Category{}, domain.ErrInvalidCategory
	}
	category, err := s.questions.CreateCategory(ctx, name)
	if err != nil {
		return domain.Category{}, err
	}
	if err := s.categories.Invalidate(ctx); err != nil {
		slog.WarnContext(ctx, "invalidate category cache failed", "category_id", category.ID, "error", err)
	}
	return category, nil
}

// DeleteQuestion removes a question from the bank. Sessions that already hold it are unaffected.
func (s *QuizService) DeleteQuestion(ctx context.Context, questionID int64) error {
	return s.questions.DeleteQuestion(ctx, questionID)
}

// Leaderboard returns the best players by cumulative score.
func (s *QuizService) Leaderboard(ctx context.Context, limit int) ([]domain.LeaderboardEntry, error) {
	if limit <= 0 {
		limit = 10
	}
	return s.leaderboard.Top(ctx, limit)
}

func (s *QuizService) observeFinish(v View, err error) (View, error) {
	if err == nil && s.observer != nil && v.Phase == PhaseFinished {
		s.observer.SessionFinished(v.FinishReason, v.Correct)
	}
	return v, err
}
