package app

import (
	"context"
	"errors"
	"slices"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"trivia-quiz-service/internal/domain"
)

type supplierCall struct {
	excluded []int64
	filter   domain.CategoryFilter
}

// scriptedSupplier hands out its questions in order and reports exhaustion afterwards.
type scriptedSupplier struct {
	mu        sync.Mutex
	questions []domain.Question
	errs      []error
	calls     []supplierCall
}

func (s *scriptedSupplier) FetchNextQuestion(_ context.Context, excluded []int64, filter domain.CategoryFilter) (domain.Question, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.calls = append(s.calls, supplierCall{excluded: slices.Clone(excluded), filter: filter})
	if len(s.errs) > 0 {
		err := s.errs[0]
		s.errs = s.errs[1:]
		if err != nil {
			return domain.Question{}, false, err
		}
	}
	if len(s.questions) == 0 {
		return domain.Question{}, false, nil
	}
	q := s.questions[0]
	s.questions = s.questions[1:]
	return q, true, nil
}

type recordCall struct {
	player  int64
	correct int
}

type fakeRecorder struct {
	mu    sync.Mutex
	total int
	errs  []error
	calls []recordCall
}

func (r *fakeRecorder) RecordSessionScore(_ context.Context, playerID int64, correct int) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.calls = append(r.calls, recordCall{player: playerID, correct: correct})
	if len(r.errs) > 0 {
		err := r.errs[0]
		r.errs = r.errs[1:]
		if err != nil {
			return 0, err
		}
	}
	r.total += correct
	return r.total, nil
}

func question(id int64, answer string) domain.Question {
	return domain.Question{ID: id, Text: "question", Answer: &answer, Difficulty: 1, CategoryID: 1, Rating: 3}
}

func fiveQuestions() []domain.Question {
	return []domain.Question{
		question(1, "one"), question(2, "two"), question(3, "three"), question(4, "four"), question(5, "five"),
		question(6, "six"),
	}
}

func newTestSession(supplier QuestionSupplier, recorder ScoreRecorder) *Session {
	now := time.Date(2024, 11, 22, 10, 0, 0, 0, time.UTC)
	return newSessionWithClock("s-1", supplier, recorder, func() time.Time {
		now = now.Add(time.Second)
		return now
	})
}

// requireConsistent checks the invariants every view must satisfy.
func requireConsistent(t *testing.T, v View) {
	t.Helper()
	require.Equal(t, len(v.SeenQuestionIDs), v.Round)
	require.LessOrEqual(t, v.Round, MaxRounds)
	require.LessOrEqual(t, v.Correct, v.Round)
	switch v.Phase {
	case PhaseAwaitingGuess:
		require.NotNil(t, v.Question)
		require.Empty(t, v.Answer)
		require.Nil(t, v.WasCorrect)
	case PhaseShowingResult:
		require.NotNil(t, v.Question)
		require.NotNil(t, v.WasCorrect)
	default:
		require.Nil(t, v.Question)
	}
}

func TestSession_PlaysFiveRounds(t *testing.T) {
	supplier := &scriptedSupplier{questions: fiveQuestions()}
	recorder := &fakeRecorder{total: 10}
	s := newTestSession(supplier, recorder)
	ctx := context.Background()

	v, err := s.SelectPlayer(1)
	require.NoError(t, err)
	require.Equal(t, PhaseSelectingCategory, v.Phase)

	v, err = s.SelectCategory(ctx, domain.AllCategories)
	require.NoError(t, err)
	requireConsistent(t, v)

	guesses := []string{"one", "nope", "Three!", "nope", "it is five"}
	for round := 1; round <= MaxRounds; round++ {
		require.Equal(t, PhaseAwaitingGuess, v.Phase)
		require.Equal(t, round, v.Round)
		require.EqualValues(t, round, v.Question.ID)

		v, err = s.SubmitGuess(guesses[round-1])
		require.NoError(t, err)
		requireConsistent(t, v)
		require.Equal(t, PhaseShowingResult, v.Phase)

		v, err = s.RequestNext(ctx)
		require.NoError(t, err)
		requireConsistent(t, v)
	}

	require.Equal(t, PhaseFinished, v.Phase)
	require.Equal(t, FinishRoundLimit, v.FinishReason)
	require.Equal(t, 3, v.Correct)
	require.Equal(t, 13, *v.CumulativeScore)

	require.Len(t, supplier.calls, MaxRounds)
	for i, call := range supplier.calls {
		want := []int64{}
		for id := int64(1); id <= int64(i); id++ {
			want = append(want, id)
		}
		assert.ElementsMatch(t, want, call.excluded, "call %d", i)
		assert.Equal(t, domain.AllCategories, call.filter)
	}
	require.Equal(t, []recordCall{{player: 1, correct: 3}}, recorder.calls)

	// Rendering the finished session again must not record twice.
	for i := 0; i < 3; i++ {
		_ = s.View()
	}
	_, err = s.RequestNext(ctx)
	require.ErrorIs(t, err, domain.ErrInvalidPhase)
	require.Len(t, recorder.calls, 1)
}

func TestSession_ExhaustedOnThirdCall(t *testing.T) {
	supplier := &scriptedSupplier{questions: fiveQuestions()[:2]}
	recorder := &fakeRecorder{}
	s := newTestSession(supplier, recorder)
	ctx := context.Background()

	_, _ = s.SelectPlayer(7)
	v, err := s.SelectCategory(ctx, domain.ForCategory(1))
	require.NoError(t, err)

	v, _ = s.SubmitGuess("one")
	v, err = s.RequestNext(ctx)
	require.NoError(t, err)
	v, _ = s.SubmitGuess("wrong")
	v, err = s.RequestNext(ctx)
	require.NoError(t, err)
	requireConsistent(t, v)

	require.Equal(t, PhaseFinished, v.Phase)
	require.Equal(t, FinishExhausted, v.FinishReason)
	require.Equal(t, 2, v.Round)
	require.Equal(t, []recordCall{{player: 7, correct: 1}}, recorder.calls)
	require.Len(t, supplier.calls, 3)
}

func TestSession_ExhaustedImmediately(t *testing.T) {
	recorder := &fakeRecorder{total: 4}
	s := newTestSession(&scriptedSupplier{}, recorder)

	_, _ = s.SelectPlayer(2)
	v, err := s.SelectCategory(context.Background(), domain.ForCategory(9))
	require.NoError(t, err)
	requireConsistent(t, v)

	require.Equal(t, PhaseFinished, v.Phase)
	require.Equal(t, 0, v.Round)
	require.Equal(t, 4, *v.CumulativeScore)
	require.Equal(t, []recordCall{{player: 2, correct: 0}}, recorder.calls)
}

func TestSession_CategoryFilterIsFixed(t *testing.T) {
	supplier := &scriptedSupplier{questions: fiveQuestions()}
	s := newTestSession(supplier, &fakeRecorder{})
	ctx := context.Background()

	_, _ = s.SelectPlayer(1)
	_, err := s.SelectCategory(ctx, domain.ForCategory(3))
	require.NoError(t, err)
	_, err = s.SelectCategory(ctx, domain.ForCategory(4))
	require.ErrorIs(t, err, domain.ErrInvalidPhase)

	_, _ = s.SubmitGuess("x")
	_, _ = s.RequestNext(ctx)

	require.Len(t, supplier.calls, 2)
	assert.Equal(t, domain.ForCategory(3), supplier.calls[0].filter)
	assert.Equal(t, supplier.calls[0].filter, supplier.calls[1].filter)
}

func TestSession_RejectsActionsOutOfPhase(t *testing.T) {
	s := newTestSession(&scriptedSupplier{questions: fiveQuestions()}, &fakeRecorder{})
	ctx := context.Background()

	_, err := s.SubmitGuess("x")
	require.ErrorIs(t, err, domain.ErrInvalidPhase)
	_, err = s.RequestNext(ctx)
	require.ErrorIs(t, err, domain.ErrDataIntegrity)
	_, err = s.SelectCategory(ctx, domain.AllCategories)
	require.ErrorIs(t, err, domain.ErrInvalidPhase)

	_, _ = s.SelectPlayer(1)
	_, err = s.SelectPlayer(2)
	require.ErrorIs(t, err, domain.ErrInvalidPhase)

	_, _ = s.SelectCategory(ctx, domain.AllCategories)
	v, err := s.SubmitGuess("one")
	require.NoError(t, err)

	// A second guess for the same question is rejected and leaves the result untouched.
	again, err := s.SubmitGuess("two")
	require.ErrorIs(t, err, domain.ErrInvalidPhase)
	require.Equal(t, v.Correct, again.Correct)
	require.Equal(t, "one", again.Guess)
}

func TestSession_SupplierFailureLeavesStateUnchanged(t *testing.T) {
	boom := errors.New("connection reset")
	supplier := &scriptedSupplier{questions: fiveQuestions(), errs: []error{nil, boom}}
	s := newTestSession(supplier, &fakeRecorder{})
	ctx := context.Background()

	_, _ = s.SelectPlayer(1)
	_, _ = s.SelectCategory(ctx, domain.AllCategories)
	before, _ := s.SubmitGuess("one")

	v, err := s.RequestNext(ctx)
	require.ErrorIs(t, err, domain.ErrTransient)
	require.ErrorIs(t, err, boom)
	var transient *domain.TransientError
	require.ErrorAs(t, err, &transient)
	require.Equal(t, "fetch next question", transient.Op)

	require.Equal(t, before.Phase, v.Phase)
	require.Equal(t, before.Round, v.Round)
	require.Equal(t, before.SeenQuestionIDs, v.SeenQuestionIDs)

	v, err = s.RequestNext(ctx)
	require.NoError(t, err)
	requireConsistent(t, v)
	require.Equal(t, 2, v.Round)
}

func TestSession_RecorderFailureIsRetried(t *testing.T) {
	boom := errors.New("timeout")
	recorder := &fakeRecorder{errs: []error{boom}}
	s := newTestSession(&scriptedSupplier{questions: fiveQuestions()[:1]}, recorder)
	ctx := context.Background()

	_, _ = s.SelectPlayer(1)
	_, _ = s.SelectCategory(ctx, domain.AllCategories)
	_, _ = s.SubmitGuess("one")

	v, err := s.RequestNext(ctx)
	require.ErrorIs(t, err, domain.ErrTransient)
	require.Equal(t, PhaseShowingResult, v.Phase)
	require.Nil(t, v.CumulativeScore)

	v, err = s.RequestNext(ctx)
	require.NoError(t, err)
	require.Equal(t, PhaseFinished, v.Phase)
	require.Equal(t, 1, *v.CumulativeScore)
	require.Len(t, recorder.calls, 2)
}

func TestSession_RejectsInvalidQuestions(t *testing.T) {
	tests := map[string]struct {
		questions []domain.Question
		want      error
	}{
		"missing answer": {
			questions: []domain.Question{{ID: 1, Text: "no answer"}},
			want:      domain.ErrMissingAnswer,
		},
		"repeated question": {
			questions: []domain.Question{question(1, "one"), question(1, "one")},
			want:      domain.ErrRepeatedQuestion,
		},
	}

	for name, tt := range tests {
		t.Run(name, func(t *testing.T) {
			s := newTestSession(&scriptedSupplier{questions: tt.questions}, &fakeRecorder{})
			ctx := context.Background()
			_, _ = s.SelectPlayer(1)

			v, err := s.SelectCategory(ctx, domain.AllCategories)
			if errors.Is(tt.want, domain.ErrRepeatedQuestion) {
				require.NoError(t, err)
				_, _ = s.SubmitGuess("one")
				v, err = s.RequestNext(ctx)
			}
			require.ErrorIs(t, err, tt.want)
			require.ErrorIs(t, err, domain.ErrDataIntegrity)
			requireConsistent(t, v)
		})
	}
}

// gatedSupplier blocks every call until release is closed.
type gatedSupplier struct {
	started chan struct{}
	release chan struct{}
}

func (g *gatedSupplier) FetchNextQuestion(ctx context.Context, _ []int64, _ domain.CategoryFilter) (domain.Question, bool, error) {
	g.started <- struct{}{}
	select {
	case <-g.release:
		return question(1, "one"), true, nil
	case <-ctx.Done():
		return domain.Question{}, false, ctx.Err()
	}
}

func TestSession_RejectsActionWhileInFlight(t *testing.T) {
	supplier := &gatedSupplier{started: make(chan struct{}, 1), release: make(chan struct{})}
	s := newTestSession(supplier, &fakeRecorder{})
	_, _ = s.SelectPlayer(1)

	done := make(chan error, 1)
	go func() {
		_, err := s.SelectCategory(context.Background(), domain.AllCategories)
		done <- err
	}()
	<-supplier.started

	_, err := s.SelectCategory(context.Background(), domain.AllCategories)
	require.ErrorIs(t, err, domain.ErrActionInFlight)
	_, err = s.SubmitGuess("one")
	require.ErrorIs(t, err, domain.ErrActionInFlight)

	close(supplier.release)
	require.NoError(t, <-done)
	require.Equal(t, PhaseAwaitingGuess, s.View().Phase)
}

func TestSession_DropsResponseAfterRestart(t *testing.T) {
	supplier := &gatedSupplier{started: make(chan struct{}, 1), release: make(chan struct{})}
	s := newTestSession(supplier, &fakeRecorder{})
	_, _ = s.SelectPlayer(1)

	done := make(chan error, 1)
	go func() {
		_, err := s.SelectCategory(context.Background(), domain.AllCategories)
		done <- err
	}()
	<-supplier.started

	restarted := s.Restart()
	require.Equal(t, PhaseSelectingPlayer, restarted.Phase)
	require.EqualValues(t, 1, restarted.Generation)

	// The new generation accepts actions while the old call is still pending.
	v, err := s.SelectPlayer(2)
	require.NoError(t, err)
	require.Equal(t, PhaseSelectingCategory, v.Phase)

	close(supplier.release)
	require.ErrorIs(t, <-done, domain.ErrStaleResponse)

	v = s.View()
	requireConsistent(t, v)
	require.Equal(t, PhaseSelectingCategory, v.Phase)
	require.EqualValues(t, 2, v.PlayerID)
	require.Empty(t, v.SeenQuestionIDs)
}

func TestSession_RestartAfterFinish(t *testing.T) {
	s := newTestSession(&scriptedSupplier{questions: fiveQuestions()[:1]}, &fakeRecorder{})
	ctx := context.Background()

	_, _ = s.SelectPlayer(1)
	_, _ = s.SelectCategory(ctx, domain.AllCategories)
	_, _ = s.SubmitGuess("one")
	v, _ := s.RequestNext(ctx)
	require.Equal(t, PhaseFinished, v.Phase)

	v = s.Restart()
	requireConsistent(t, v)
	require.Equal(t, PhaseSelectingPlayer, v.Phase)
	require.Empty(t, v.SeenQuestionIDs)
	require.Zero(t, v.Round)
	require.Zero(t, v.Correct)
	require.Zero(t, v.PlayerID)
	require.Nil(t, v.CumulativeScore)
	require.Empty(t, v.FinishReason)
	require.True(t, v.UpdatedAt.After(v.StartedAt))
}
