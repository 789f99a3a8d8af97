package app

import (
	"slices"
	"time"

	"trivia-quiz-service/internal/domain"
)

// View is a read-only snapshot of a session, shaped for clients.
type View struct {
	SessionID       string        `json:"sessionId"`
	Generation      uint64        `json:"generation"`
	Phase           Phase         `json:"phase"`
	PlayerID        int64         `json:"playerId,omitempty"`
	CategoryID      *int64        `json:"categoryId,omitempty"` // 0 means every category
	Round           int           `json:"round"`
	MaxRounds       int           `json:"maxRounds"`
	Correct         int           `json:"correct"`
	SeenQuestionIDs []int64       `json:"seenQuestionIds"`
	Question        *QuestionView `json:"question,omitempty"`
	Guess           string        `json:"guess,omitempty"`
	WasCorrect      *bool         `json:"wasCorrect,omitempty"`
	Answer          string        `json:"answer,omitempty"`
	FinishReason    FinishReason  `json:"finishReason,omitempty"`
	CumulativeScore *int          `json:"cumulativeScore,omitempty"`
	StartedAt       time.Time     `json:"startedAt"`
	UpdatedAt       time.Time     `json:"updatedAt"`
}

// QuestionView hides the expected answer.
type QuestionView struct {
	ID         int64  `json:"id"`
	Text       string `json:"question"`
	Difficulty int    `json:"difficulty"`
	CategoryID int64  `json:"category"`
	Rating     int    `json:"rating"`
}

func (s *Session) viewLocked() View {
	v := View{
		SessionID:       s.id,
		Generation:      s.generation,
		Phase:           s.state.phase(),
		Round:           len(s.seen),
		MaxRounds:       MaxRounds,
		Correct:         s.correct,
		SeenQuestionIDs: slices.Clone(s.seen),
		StartedAt:       s.createdAt,
		UpdatedAt:       s.updatedAt,
	}
	if v.SeenQuestionIDs == nil {
		v.SeenQuestionIDs = []int64{}
	}

	switch st := s.state.(type) {
	case selectingPlayer:
	case selectingCategory:
		v.PlayerID = st.player
	case awaitingGuess:
		v.PlayerID = st.player
		v.CategoryID = ptr(st.filter.CategoryID)
		v.Question = questionView(st.question)
	case showingResult:
		v.PlayerID = st.player
		v.CategoryID = ptr(st.filter.CategoryID)
		v.Question = questionView(st.question)
		v.Guess = st.guess
		v.WasCorrect = ptr(st.correct)
		if st.question.Answer != nil {
			v.Answer = *st.question.Answer
		}
	case finished:
		v.PlayerID = st.player
		v.CategoryID = ptr(st.filter.CategoryID)
		v.FinishReason = st.reason
		v.CumulativeScore = ptr(st.cumulative)
	}
	return v
}

func questionView(q domain.Question) *QuestionView {
	return &QuestionView{
		ID:         q.ID,
		Text:       q.Text,
		Difficulty: q.Difficulty,
		CategoryID: q.CategoryID,
		Rating:     q.Rating,
	}
}

func ptr[T any](v T) *T {
	return &v
}
