package redis

import (
	"context"
	"fmt"
	"log/slog"
	"math/rand"
	"slices"
	"strconv"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
	"golang.org/x/sync/singleflight"

	"trivia-quiz-service/internal/domain"
)

// CategoryLoader fetches the category catalog from a backing store (e.g., Postgres).
type CategoryLoader interface {
	LoadCategories(ctx context.Context) ([]domain.Category, error)
}

// CategoryRepository caches the catalog in Redis and falls back to a loader on cache miss.
// Categories are stored as: HSET {prefix}:categories {categoryID} {name}
type CategoryRepository struct {
	client redis.UniversalClient
	loader CategoryLoader
	ttl    time.Duration
	prefix string
	sf     singleflight.Group

	mu      sync.Mutex
	rnd     *rand.Rand
	version uint64
}

func NewCategoryRepository(client redis.UniversalClient, loader CategoryLoader, prefix string, ttl time.Duration) *CategoryRepository {
	return &CategoryRepository{
		client: client,
		loader: loader,
		ttl:    ttl,
		prefix: prefix,
		rnd:    rand.New(rand.NewSource(time.Now().UnixNano())),
	}
}

func (r *CategoryRepository) ListCategories(ctx context.Context) ([]domain.Category, error) {
	if categories, ok := r.cached(ctx); ok {
		return categories, nil
	}

	result, err, _ := r.sf.Do(r.key(), func() (interface{}, error) {
		// Re-check cache in case another caller filled it.
		if categories, ok := r.cached(ctx); ok {
			return categories, nil
		}

		r.mu.Lock()
		version := r.version
		r.mu.Unlock()

		categories, err := r.loader.LoadCategories(ctx)
		if err != nil {
			return nil, err
		}
		if len(categories) == 0 {
			return categories, nil
		}

		fields := make(map[string]interface{}, len(categories))
		for _, c := range categories {
			fields[strconv.FormatInt(c.ID, 10)] = c.Name
		}

		r.mu.Lock()
		defer r.mu.Unlock()
		// a load that raced with Invalidate may predate the change
		if r.version != version {
			return categories, nil
		}
		pipe := r.client.TxPipeline()
		pipe.Del(ctx, r.key())
		pipe.HSet(ctx, r.key(), fields)
		if ttl := r.ttlWithJitter(); ttl > 0 {
			pipe.Expire(ctx, r.key(), ttl)
		}
		if _, err := pipe.Exec(ctx); err != nil {
			slog.WarnContext(ctx, "redis: cache categories failed", "error", err)
		}
		return categories, nil
	})
	if err != nil {
		return nil, err
	}
	return result.([]domain.Category), nil
}

// Invalidate deletes the cached catalog.
func (r *CategoryRepository) Invalidate(ctx context.Context) error {
	r.mu.Lock()
	r.version++
	r.mu.Unlock()
	r.sf.Forget(r.key())
	if err := r.client.Del(ctx, r.key()).Err(); err != nil {
		return fmt.Errorf("invalidate categories: %w", err)
	}
	return nil
}

func (r *CategoryRepository) cached(ctx context.Context) ([]domain.Category, bool) {
	fields, err := r.client.HGetAll(ctx, r.key()).Result()
	if err != nil || len(fields) == 0 {
		return nil, false
	}
	categories := make([]domain.Category, 0, len(fields))
	for rawID, name := range fields {
		id, err := strconv.ParseInt(rawID, 10, 64)
		if err != nil {
			return nil, false
		}
		categories = append(categories, domain.Category{ID: id, Name: name})
	}
	slices.SortFunc(categories, func(a, b domain.Category) int {
		switch {
		case a.ID < b.ID:
			return -1
		case a.ID > b.ID:
			return 1
		}
		return 0
	})
	return categories, true
}

func (r *CategoryRepository) key() string {
	return r.prefix + ":categories"
}

func (r *CategoryRepository) ttlWithJitter() time.Duration {
	if r.ttl <= 0 {
		return 0
	}
	// callers hold mu
	jitterMax := int64(r.ttl) / 10
	return r.ttl + time.Duration(r.rnd.Int63n(jitterMax+1))
}
