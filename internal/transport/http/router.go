package http

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"trivia-quiz-service/internal/app"
)

// RouterConfig wires the HTTP surface. Gatherer is optional; /metrics is not mounted without it.
// SessionKeepAlive is how often websocket connections touch their session.
type RouterConfig struct {
	Service          *app.QuizService
	Gatherer         prometheus.Gatherer
	SessionKeepAlive time.Duration
}

// NewRouter builds the chi router serving the REST API, the websocket endpoint and health checks.
func NewRouter(c RouterConfig) http.Handler {
	api := &apiHandler{service: c.Service}
	ws := NewWSHandler(c.Service, c.SessionKeepAlive)

	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(loggingMiddleware)
	r.Use(middleware.Recoverer)

	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: []string{"*"},
		AllowedMethods: []string{"GET", "POST", "PATCH", "DELETE", "OPTIONS"},
		AllowedHeaders: []string{"Accept", "Content-Type", "X-Request-ID"},
		ExposedHeaders: []string{"X-Request-ID"},
		MaxAge:         300,
	}))

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("ok"))
	})
	if c.Gatherer != nil {
		r.Handle("/metrics", promhttp.HandlerFor(c.Gatherer, promhttp.HandlerOpts{}))
	}
	r.Get("/ws", ws.ServeWS)

	r.Route("/api/v1", func(r chi.Router) {
		r.Use(middleware.Timeout(30 * time.Second))

		r.Route("/categories", func(r chi.Router) {
			r.Get("/", api.listCategories)
			r.Post("/", api.createCategory)
			r.Get("/{id}/questions", api.listCategoryQuestions)
		})

		r.Route("/questions", func(r chi.Router) {
			r.Get("/", api.listQuestions)
			r.Post("/", api.createQuestion)
			r.Patch("/{id}", api.rateQuestion)
			r.Delete("/{id}", api.deleteQuestion)
		})

		r.Route("/players", func(r chi.Router) {
			r.Get("/", api.listPlayers)
			r.Post("/", api.createPlayer)
		})

		r.Get("/leaderboard", api.leaderboard)
	})

	return r
}

func loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)

		defer func() {
			slog.Info("http request",
				"method", r.Method,
				"path", r.URL.Path,
				"status", ww.Status(),
				"bytes", ww.BytesWritten(),
				"duration_ms", time.Since(start).Milliseconds(),
				"request_id", middleware.GetReqID(r.Context()),
			)
		}()

		next.ServeHTTP(ww, r)
	})
}
