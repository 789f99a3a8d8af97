package cli

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"time"

	"github.com/jackc/pgx/v4/pgxpool"
	goredis "github.com/redis/go-redis/v9"

	"trivia-quiz-service/internal/app"
	"trivia-quiz-service/internal/config"
	"trivia-quiz-service/internal/domain"
	"trivia-quiz-service/internal/infra/memory"
	pgstore "trivia-quiz-service/internal/infra/postgres"
	redisstore "trivia-quiz-service/internal/infra/redis"
	"trivia-quiz-service/internal/seed"
	"trivia-quiz-service/internal/telemetry"
)

type questionStore interface {
	app.QuestionBank
	LoadCategories(ctx context.Context) ([]domain.Category, error)
}

type sessionStore interface {
	app.SessionRepository
	Live(ctx context.Context) (int, error)
}

type playerStore interface {
	app.PlayerDirectory
	app.ScoreRecorder
	app.Leaderboard
}

// stores are the collaborators of the quiz service, picked from config:
// Postgres when postgres.url is set (in-memory seeded from quiz.seed otherwise),
// Redis caching and leaderboard when redis.addr is set.
type stores struct {
	sessions   sessionStore
	questions  questionStore
	categories app.CategoryRepository
	players    playerStore
	closers    []func()
}

func (s *stores) Close() {
	for i := len(s.closers) - 1; i >= 0; i-- {
		s.closers[i]()
	}
}

func (s *stores) serviceConfig() app.Config {
	return app.Config{
		Sessions:    s.sessions,
		Questions:   s.questions,
		Scores:      s.players,
		Categories:  s.categories,
		Players:     s.players,
		Leaderboard: s.players,
	}
}

func openStores(ctx context.Context, cfg config.Config) (*stores, error) {
	s := &stores{}

	if cfg.Postgres.URL != "" {
		if err := runMigrationsWithConfig(ctx, cfg); err != nil {
			return nil, err
		}
		pool, err := pgxpool.Connect(ctx, cfg.Postgres.URL)
		if err != nil {
			return nil, fmt.Errorf("connect postgres: %w", err)
		}
		s.closers = append(s.closers, pool.Close)
		s.questions = pgstore.NewQuestionBank(pool)
		s.players = pgstore.NewPlayerStore(pool)
	} else {
		bank, err := loadSeed(cfg.Quiz.Seed)
		if err != nil {
			return nil, err
		}
		s.questions = memory.NewQuestionBank(bank.Categories, bank.Questions)
		s.players = memory.NewPlayerStore(bank.Players...)
	}

	catalogTTL := config.TTLDuration(cfg.Catalog.TTL, 10*time.Minute)
	if cfg.Redis.Addr == "" {
		s.sessions = memory.NewSessionStore()
		s.categories = memory.NewCategoryRepository(s.questions, catalogTTL)
		return s, nil
	}

	client := goredis.NewClient(&goredis.Options{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})
	s.closers = append(s.closers, func() { _ = client.Close() })
	if err := telemetry.MonitorRedis(client); err != nil {
		s.Close()
		return nil, err
	}

	redisTTL := config.TTLDuration(cfg.Redis.TTL, 10*time.Minute)
	s.sessions = redisstore.NewSessionStore(client, cfg.Redis.Prefix, redisTTL)
	s.categories = redisstore.NewCategoryRepository(client, s.questions, cfg.Redis.Prefix, catalogTTL)

	leaderboard := redisstore.NewLeaderboard(client, s.players, cfg.Redis.Prefix)
	if err := leaderboard.Warm(ctx); err != nil {
		s.Close()
		return nil, err
	}
	s.players = leaderboard
	return s, nil
}

func loadSeed(path string) (seed.Bank, error) {
	if path == "" {
		return seed.Bank{}, nil
	}
	bank, err := seed.Load(path)
	if errors.Is(err, fs.ErrNotExist) {
		slog.Warn("seed file not found, starting with an empty question bank", "path", path)
		return seed.Bank{}, nil
	}
	return bank, err
}
