package redis

import (
	"context"
	"errors"
	"testing"
	"time"

	miniredis "github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"

	"trivia-quiz-service/internal/domain"
	"trivia-quiz-service/internal/infra/memory"
)

func TestCategoryRepositoryCachesInRedis(t *testing.T) {
	mr, client := newRedis(t)

	loader := &countingLoader{CategoryLoader: memory.NewQuestionBank(sampleCategories(), nil)}
	repo := NewCategoryRepository(client, loader, "trivia", time.Minute)

	got, err := repo.ListCategories(context.Background())
	require.NoError(t, err)
	require.Equal(t, sampleCategories(), got)
	require.Equal(t, 1, loader.calls)
	require.True(t, mr.Exists("trivia:categories"))

	// Second call should hit cache, loader not incremented.
	got, err = repo.ListCategories(context.Background())
	require.NoError(t, err)
	require.Equal(t, sampleCategories(), got)
	require.Equal(t, 1, loader.calls)

	mr.FastForward(2 * time.Minute)
	_, err = repo.ListCategories(context.Background())
	require.NoError(t, err)
	require.Equal(t, 2, loader.calls)
}

func TestCategoryRepositoryInvalidateDropsHash(t *testing.T) {
	mr, client := newRedis(t)
	ctx := context.Background()

	bank := memory.NewQuestionBank(sampleCategories(), nil)
	loader := &countingLoader{CategoryLoader: bank}
	repo := NewCategoryRepository(client, loader, "trivia", time.Minute)

	_, err := repo.ListCategories(ctx)
	require.NoError(t, err)
	created, err := bank.CreateCategory(ctx, "Music")
	require.NoError(t, err)

	require.NoError(t, repo.Invalidate(ctx))
	require.False(t, mr.Exists("trivia:categories"))

	got, err := repo.ListCategories(ctx)
	require.NoError(t, err)
	require.Contains(t, got, created)
	require.Equal(t, 2, loader.calls)
	require.Equal(t, created.Name, mr.HGet("trivia:categories", "11"))
}

func TestCategoryRepositoryPropagatesLoaderError(t *testing.T) {
	_, client := newRedis(t)

	boom := errors.New("db down")
	repo := NewCategoryRepository(client, &countingLoader{err: boom}, "trivia", time.Minute)

	_, err := repo.ListCategories(context.Background())
	require.ErrorIs(t, err, boom)
}

type countingLoader struct {
	CategoryLoader
	calls int
	err   error
}

func (l *countingLoader) LoadCategories(ctx context.Context) ([]domain.Category, error) {
	l.calls++
	if l.err != nil {
		return nil, l.err
	}
	return l.CategoryLoader.LoadCategories(ctx)
}

func sampleCategories() []domain.Category {
	return []domain.Category{
		{ID: 1, Name: "History"},
		{ID: 2, Name: "Science"},
		{ID: 10, Name: "Sports"},
	}
}

func newRedis(t *testing.T) (*miniredis.Miniredis, *redis.Client) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return mr, client
}
