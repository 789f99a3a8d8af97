package integration

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/jackc/pgx/v4/pgxpool"
	goredis "github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"
	tc "github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/pgdialect"
	"github.com/uptrace/bun/driver/pgdriver"
	"github.com/uptrace/bun/migrate"

	"trivia-quiz-service/internal/app"
	"trivia-quiz-service/internal/domain"
	pgstore "trivia-quiz-service/internal/infra/postgres"
	pgmigrations "trivia-quiz-service/internal/infra/postgres/migrations"
	infraredis "trivia-quiz-service/internal/infra/redis"
)

func TestQuizSessionEndToEnd(t *testing.T) {
	ctx := context.Background()
	requireDocker(t)

	pgURL, pgCleanup := startPostgres(t, ctx)
	defer pgCleanup()
	redisURL, redisCleanup := startRedis(t, ctx)
	defer redisCleanup()

	migrateDB(t, ctx, pgURL)

	pool, err := pgxpool.Connect(ctx, pgURL)
	require.NoError(t, err)
	defer pool.Close()

	bank := pgstore.NewQuestionBank(pool)
	categories, questions := sampleBank()
	require.NoError(t, bank.Import(ctx, categories, questions))

	players := pgstore.NewPlayerStore(pool)
	ada, err := players.CreatePlayer(ctx, "ada")
	require.NoError(t, err)
	_, err = players.CreatePlayer(ctx, "ADA")
	require.ErrorIs(t, err, domain.ErrUsernameTaken)

	redisClient, err := redisClientFromURL(redisURL)
	require.NoError(t, err)
	defer redisClient.Close()

	leaderboard := infraredis.NewLeaderboard(redisClient, players, "it")
	require.NoError(t, leaderboard.Warm(ctx))

	service := app.NewQuizService(app.Config{
		Sessions:    infraredis.NewSessionStore(redisClient, "it", 5*time.Minute),
		Questions:   bank,
		Scores:      leaderboard,
		Categories:  infraredis.NewCategoryRepository(redisClient, bank, "it", 5*time.Minute),
		Players:     leaderboard,
		Leaderboard: leaderboard,
	})

	v := service.Start(ctx)
	_, err = service.SelectPlayer(ctx, v.SessionID, ada.ID)
	require.NoError(t, err)

	// Category 2 holds three questions, so the fourth request exhausts the bank.
	v, err = service.SelectCategory(ctx, v.SessionID, domain.ForCategory(2))
	require.NoError(t, err)
	seen := map[int64]bool{}
	for v.Phase == app.PhaseAwaitingGuess {
		require.EqualValues(t, 2, v.Question.CategoryID)
		require.False(t, seen[v.Question.ID], "question %d repeated", v.Question.ID)
		seen[v.Question.ID] = true

		v, err = service.SubmitGuess(ctx, v.SessionID, fmt.Sprintf("answer %d", v.Question.ID))
		require.NoError(t, err)
		v, err = service.RequestNext(ctx, v.SessionID)
		require.NoError(t, err)
	}
	require.Equal(t, app.PhaseFinished, v.Phase)
	require.Equal(t, app.FinishExhausted, v.FinishReason)
	require.Equal(t, 3, v.Round)
	require.Equal(t, 3, *v.CumulativeScore)

	stored, err := players.GetPlayer(ctx, ada.ID)
	require.NoError(t, err)
	require.Equal(t, 3, stored.Score)

	top, err := service.Leaderboard(ctx, 5)
	require.NoError(t, err)
	require.Equal(t, []domain.LeaderboardEntry{{PlayerID: ada.ID, Username: "ada", Score: 3}}, top)

	page, err := service.Questions(ctx, domain.AllCategories, "", 2)
	require.NoError(t, err)
	require.Equal(t, 12, page.Total)
	require.Len(t, page.Questions, 2)

	answer := "Nile"
	created, err := service.CreateQuestion(ctx, domain.Question{Text: "Longest river?", Answer: &answer, CategoryID: 1})
	require.NoError(t, err)
	require.Greater(t, created.ID, int64(12))
	_, err = service.CreateQuestion(ctx, domain.Question{Text: "Orphan?", Answer: &answer, CategoryID: 99})
	require.ErrorIs(t, err, domain.ErrCategoryNotFound)
	require.NoError(t, service.DeleteQuestion(ctx, created.ID))
	require.ErrorIs(t, service.DeleteQuestion(ctx, created.ID), domain.ErrQuestionNotFound)

	rated, err := service.RateQuestion(ctx, 1, 5)
	require.NoError(t, err)
	require.Equal(t, 5, rated.Rating)
	_, err = bank.RateQuestion(ctx, 1, 9)
	require.ErrorIs(t, err, domain.ErrInvalidQuestion)
	_, err = bank.CreateQuestion(ctx, domain.Question{Text: "Hard?", Answer: &answer, CategoryID: 1, Difficulty: 9, Rating: 3})
	require.ErrorIs(t, err, domain.ErrInvalidQuestion)

	// The catalog is cached in Redis by now; a new category is playable at once.
	music, err := service.CreateCategory(ctx, "Music")
	require.NoError(t, err)
	require.EqualValues(t, 3, music.ID)
	_, err = service.CreateCategory(ctx, "music")
	require.ErrorIs(t, err, domain.ErrCategoryExists)
	_, err = service.CreateQuestion(ctx, domain.Question{Text: "Who wrote the Goldberg Variations?", Answer: &answer, CategoryID: music.ID})
	require.NoError(t, err)

	v = service.Start(ctx)
	_, err = service.SelectPlayer(ctx, v.SessionID, ada.ID)
	require.NoError(t, err)
	v, err = service.SelectCategory(ctx, v.SessionID, domain.ForCategory(music.ID))
	require.NoError(t, err)
	require.Equal(t, app.PhaseAwaitingGuess, v.Phase)
}

// sampleBank has nine questions in category 1 and three in category 2.
// Every question's answer is "answer <id>".
func sampleBank() ([]domain.Category, []domain.Question) {
	categories := []domain.Category{{ID: 1, Name: "General"}, {ID: 2, Name: "Art"}}
	var questions []domain.Question
	for id := int64(1); id <= 12; id++ {
		answer := fmt.Sprintf("answer %d", id)
		category := int64(1)
		if id > 9 {
			category = 2
		}
		questions = append(questions, domain.Question{
			ID:         id,
			Text:       fmt.Sprintf("question %d", id),
			Answer:     &answer,
			Difficulty: 1,
			CategoryID: category,
			Rating:     3,
		})
	}
	return categories, questions
}

func migrateDB(t *testing.T, ctx context.Context, dsn string) {
	t.Helper()
	sqldb := sql.OpenDB(pgdriver.NewConnector(pgdriver.WithDSN(dsn)))
	db := bun.NewDB(sqldb, pgdialect.New())
	defer db.Close()

	migrator := migrate.NewMigrator(db, pgmigrations.Migrations)
	require.NoError(t, migrator.Init(ctx))
	_, err := migrator.Migrate(ctx)
	require.NoError(t, err)
}

func startPostgres(t *testing.T, ctx context.Context) (string, func()) {
	t.Helper()
	req := tc.ContainerRequest{
		Image:        "postgres:15-alpine",
		Env:          map[string]string{"POSTGRES_USER": "quiz", "POSTGRES_PASSWORD": "quizpass", "POSTGRES_DB": "quizdb"},
		ExposedPorts: []string{"5432/tcp"},
		WaitingFor: wait.ForLog("database system is ready to accept connections").
			WithOccurrence(2).
			WithStartupTimeout(60 * time.Second),
	}
	container, err := tc.GenericContainer(ctx, tc.GenericContainerRequest{
		ContainerRequest: req,
		Started:          true,
	})
	if err != nil {
		if strings.Contains(err.Error(), "Cannot connect to the Docker daemon") {
			t.Skipf("docker not available: %v", err)
		}
		t.Fatalf("start postgres: %v", err)
	}
	host, err := container.Host(ctx)
	if err != nil {
		t.Fatalf("host: %v", err)
	}
	port, err := container.MappedPort(ctx, "5432/tcp")
	if err != nil {
		t.Fatalf("port: %v", err)
	}
	dsn := fmt.Sprintf("postgres://quiz:quizpass@%s:%s/quizdb?sslmode=disable", host, port.Port())
	return dsn, func() {
		_ = container.Terminate(ctx)
	}
}

func startRedis(t *testing.T, ctx context.Context) (string, func()) {
	t.Helper()
	req := tc.ContainerRequest{
		Image:        "redis:7-alpine",
		ExposedPorts: []string{"6379/tcp"},
		WaitingFor:   wait.ForListeningPort("6379/tcp").WithStartupTimeout(30 * time.Second),
	}
	container, err := tc.GenericContainer(ctx, tc.GenericContainerRequest{
		ContainerRequest: req,
		Started:          true,
	})
	if err != nil {
		if strings.Contains(err.Error(), "Cannot connect to the Docker daemon") {
			t.Skipf("docker not available: %v", err)
		}
		t.Fatalf("start redis: %v", err)
	}
	host, err := container.Host(ctx)
	if err != nil {
		t.Fatalf("redis host: %v", err)
	}
	port, err := container.MappedPort(ctx, "6379/tcp")
	if err != nil {
		t.Fatalf("redis port: %v", err)
	}
	url := fmt.Sprintf("redis://%s:%s", host, port.Port())
	return url, func() {
		_ = container.Terminate(ctx)
	}
}

func redisClientFromURL(url string) (*goredis.Client, error) {
	opts, err := goredis.ParseURL(url)
	if err != nil {
		return nil, err
	}
	return goredis.NewClient(&goredis.Options{
		Addr:     opts.Addr,
		Password: opts.Password,
		DB:       opts.DB,
	}), nil
}

func requireDocker(t *testing.T) {
	t.Helper()
	if _, err := tc.NewDockerProvider(); err != nil {
		t.Skipf("docker not available: %v", err)
	}
}
