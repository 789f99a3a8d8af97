package app

import (
	"context"
	"fmt"
	"slices"
	"sync"
	"time"

	"trivia-quiz-service/internal/domain"
)

// MaxRounds is the number of questions asked in one session.
const MaxRounds = 5

// QuestionSupplier hands out questions a session has not seen yet.
type QuestionSupplier interface {
	// FetchNextQuestion returns found=false once no question outside excluded matches the filter.
	FetchNextQuestion(ctx context.Context, excluded []int64, filter domain.CategoryFilter) (domain.Question, bool, error)
}

// ScoreRecorder adds a finished session's correct count to a player's cumulative score
// and returns the new total.
type ScoreRecorder interface {
	RecordSessionScore(ctx context.Context, playerID int64, correct int) (int, error)
}

// Phase is the step a session is in.
type Phase int

const (
	PhaseSelectingPlayer Phase = iota
	PhaseSelectingCategory
	PhaseAwaitingGuess
	PhaseShowingResult
	PhaseFinished
)

var phaseNames = [...]string{
	PhaseSelectingPlayer:   "selecting_player",
	PhaseSelectingCategory: "selecting_category",
	PhaseAwaitingGuess:     "awaiting_guess",
	PhaseShowingResult:     "showing_result",
	PhaseFinished:          "finished",
}

func (p Phase) String() string {
	if p < 0 || int(p) >= len(phaseNames) {
		return fmt.Sprintf("phase(%d)", int(p))
	}
	return phaseNames[p]
}

func (p Phase) MarshalText() ([]byte, error) {
	return []byte(p.String()), nil
}

// FinishReason tells why a session ended.
type FinishReason string

const (
	FinishRoundLimit FinishReason = "round_limit"
	FinishExhausted  FinishReason = "exhausted"
)

// state is one variant per phase; only the variants that own a question carry one.
type state interface {
	phase() Phase
}

type selectingPlayer struct{}

type selectingCategory struct {
	player int64
}

type awaitingGuess struct {
	player   int64
	filter   domain.CategoryFilter
	question domain.Question
}

type showingResult struct {
	player   int64
	filter   domain.CategoryFilter
	question domain.Question
	guess    string
	correct  bool
}

type finished struct {
	player     int64
	filter     domain.CategoryFilter
	reason     FinishReason
	cumulative int
}

func (selectingPlayer) phase() Phase   { return PhaseSelectingPlayer }
func (selectingCategory) phase() Phase { return PhaseSelectingCategory }
func (awaitingGuess) phase() Phase     { return PhaseAwaitingGuess }
func (showingResult) phase() Phase     { return PhaseShowingResult }
func (finished) phase() Phase          { return PhaseFinished }

// Session is a single player's quiz. All mutations happen under mu; calls to the
// supplier and recorder run without it and are applied only if the session
// generation did not move in the meantime.
type Session struct {
	id        string
	supplier  QuestionSupplier
	recorder  ScoreRecorder
	createdAt time.Time
	now       func() time.Time

	mu         sync.Mutex
	generation uint64
	inFlight   bool
	state      state
	seen       []int64
	correct    int
	updatedAt  time.Time
}

// NewSession creates a session waiting for a player.
func NewSession(id string, supplier QuestionSupplier, recorder ScoreRecorder) *Session {
	return newSessionWithClock(id, supplier, recorder, time.Now)
}

// newSessionWithClock allows deterministic timestamps in tests.
func newSessionWithClock(id string, supplier QuestionSupplier, recorder ScoreRecorder, now func() time.Time) *Session {
	created := now()
	return &Session{
		id:        id,
		supplier:  supplier,
		recorder:  recorder,
		createdAt: created,
		now:       now,
		state:     selectingPlayer{},
		updatedAt: created,
	}
}

// ID returns the session identifier.
func (s *Session) ID() string {
	return s.id
}

// View returns a snapshot of the session. It has no side effects and may be called any number of times.
func (s *Session) View() View {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.viewLocked()
}

// SelectPlayer binds the session to a player.
func (s *Session) SelectPlayer(playerID int64) (View, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.checkLocked(PhaseSelectingPlayer, "select player"); err != nil {
		return s.viewLocked(), err
	}
	s.setLocked(selectingCategory{player: playerID})
	return s.viewLocked(), nil
}

// SelectCategory fixes the category filter for the rest of the session and loads the first round.
func (s *Session) SelectCategory(ctx context.Context, filter domain.CategoryFilter) (View, error) {
	s.mu.Lock()
	if err := s.checkLocked(PhaseSelectingCategory, "select category"); err != nil {
		v := s.viewLocked()
		s.mu.Unlock()
		return v, err
	}
	req := s.beginLocked(s.state.(selectingCategory).player, filter)
	s.mu.Unlock()

	return s.complete(req, s.advance(ctx, req))
}

// SubmitGuess evaluates a guess for the current question.
func (s *Session) SubmitGuess(guess string) (View, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.checkLocked(PhaseAwaitingGuess, "submit guess"); err != nil {
		return s.viewLocked(), err
	}
	st := s.state.(awaitingGuess)
	correct, err := Evaluate(guess, st.question)
	if err != nil {
		return s.viewLocked(), fmt.Errorf("question %d: %w", st.question.ID, err)
	}
	if correct {
		s.correct++
	}
	s.setLocked(showingResult{
		player:   st.player,
		filter:   st.filter,
		question: st.question,
		guess:    guess,
		correct:  correct,
	})
	return s.viewLocked(), nil
}

// RequestNext moves past a shown result, either to the next round or to the end of the session.
func (s *Session) RequestNext(ctx context.Context) (View, error) {
	s.mu.Lock()
	if err := s.checkLocked(PhaseShowingResult, "request next question"); err != nil {
		v := s.viewLocked()
		s.mu.Unlock()
		return v, err
	}
	st := s.state.(showingResult)
	req := s.beginLocked(st.player, st.filter)
	s.mu.Unlock()

	return s.complete(req, s.advance(ctx, req))
}

// Restart discards all round data and starts over at player selection. Responses
// to calls issued before the restart are dropped.
func (s *Session) Restart() View {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.generation++
	s.inFlight = false
	s.seen = nil
	s.correct = 0
	s.setLocked(selectingPlayer{})
	return s.viewLocked()
}

func (s *Session) checkLocked(want Phase, action string) error {
	if s.inFlight {
		return domain.ErrActionInFlight
	}
	if got := s.state.phase(); got != want {
		return fmt.Errorf("%w: cannot %s while %s", domain.ErrInvalidPhase, action, got)
	}
	return nil
}

func (s *Session) setLocked(st state) {
	s.state = st
	s.updatedAt = s.now()
}

type roundRequest struct {
	generation uint64
	player     int64
	filter     domain.CategoryFilter
	seen       []int64
	correct    int
}

type roundResult struct {
	question   domain.Question
	finished   bool
	reason     FinishReason
	cumulative int
	err        error
}

func (s *Session) beginLocked(player int64, filter domain.CategoryFilter) roundRequest {
	s.inFlight = true
	return roundRequest{
		generation: s.generation,
		player:     player,
		filter:     filter,
		seen:       slices.Clone(s.seen),
		correct:    s.correct,
	}
}

// advance runs the external calls of a round transition. It never touches session state.
func (s *Session) advance(ctx context.Context, req roundRequest) roundResult {
	if len(req.seen) >= MaxRounds {
		return s.finalize(ctx, req, FinishRoundLimit)
	}

	q, found, err := s.supplier.FetchNextQuestion(ctx, req.seen, req.filter)
	if err != nil {
		return roundResult{err: domain.Transient("fetch next question", err)}
	}
	if !found {
		return s.finalize(ctx, req, FinishExhausted)
	}
	if q.Answer == nil {
		return roundResult{err: fmt.Errorf("question %d: %w", q.ID, domain.ErrMissingAnswer)}
	}
	if slices.Contains(req.seen, q.ID) {
		return roundResult{err: fmt.Errorf("question %d: %w", q.ID, domain.ErrRepeatedQuestion)}
	}
	return roundResult{question: q}
}

func (s *Session) finalize(ctx context.Context, req roundRequest, reason FinishReason) roundResult {
	total, err := s.recorder.RecordSessionScore(ctx, req.player, req.correct)
	if err != nil {
		return roundResult{err: domain.Transient("record session score", err)}
	}
	return roundResult{finished: true, reason: reason, cumulative: total}
}

// complete applies a round result unless the session was restarted while it was pending.
func (s *Session) complete(req roundRequest, res roundResult) (View, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if req.generation != s.generation {
		return s.viewLocked(), domain.ErrStaleResponse
	}
	s.inFlight = false
	if res.err != nil {
		return s.viewLocked(), res.err
	}

	if res.finished {
		s.setLocked(finished{
			player:     req.player,
			filter:     req.filter,
			reason:     res.reason,
			cumulative: res.cumulative,
		})
		return s.viewLocked(), nil
	}

	s.seen = append(s.seen, res.question.ID)
	s.setLocked(awaitingGuess{
		player:   req.player,
		filter:   req.filter,
		question: res.question,
	})
	return s.viewLocked(), nil
}
