package telemetry

import (
	"context"
	"log/slog"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"trivia-quiz-service/internal/app"
)

// QuizMetrics counts quiz outcomes. It implements app.Observer.
type QuizMetrics struct {
	guesses  *prometheus.CounterVec
	finished *prometheus.CounterVec
	correct  prometheus.Histogram
}

func NewQuizMetrics(reg prometheus.Registerer) *QuizMetrics {
	m := &QuizMetrics{
		guesses: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "trivia",
			Name:      "guesses_total",
			Help:      "Evaluated guesses by outcome.",
		}, []string{"outcome"}),
		finished: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "trivia",
			Name:      "sessions_finished_total",
			Help:      "Finished quiz sessions by reason.",
		}, []string{"reason"}),
		correct: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "trivia",
			Name:      "session_correct_answers",
			Help:      "Correct answers per finished session.",
			Buckets:   prometheus.LinearBuckets(0, 1, app.MaxRounds+1),
		}),
	}
	reg.MustRegister(m.guesses, m.finished, m.correct)
	return m
}

func (m *QuizMetrics) GuessEvaluated(correct bool) {
	outcome := "wrong"
	if correct {
		outcome = "correct"
	}
	m.guesses.WithLabelValues(outcome).Inc()
}

func (m *QuizMetrics) SessionFinished(reason app.FinishReason, correct int) {
	m.finished.WithLabelValues(string(reason)).Inc()
	m.correct.Observe(float64(correct))
}

// RegisterLiveSessions exposes the number of live quiz sessions as a gauge.
// A failed count is reported as zero.
func RegisterLiveSessions(reg prometheus.Registerer, count func(ctx context.Context) (int, error)) {
	reg.MustRegister(prometheus.NewGaugeFunc(prometheus.GaugeOpts{
		Namespace: "trivia",
		Name:      "live_sessions",
		Help:      "Quiz sessions currently held by the service.",
	}, func() float64 {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		n, err := count(ctx)
		if err != nil {
			slog.Warn("count live sessions", "error", err)
			return 0
		}
		return float64(n)
	}))
}
