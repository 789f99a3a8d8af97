package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgconn"
	"github.com/jackc/pgx/v4"
	"github.com/jackc/pgx/v4/pgxpool"

	"trivia-quiz-service/internal/domain"
)

const (
	uniqueViolation     = "23505"
	foreignKeyViolation = "23503"
	checkViolation      = "23514"
)

// PlayerStore keeps player profiles and cumulative scores in Postgres.
type PlayerStore struct {
	pool *pgxpool.Pool
}

func NewPlayerStore(pool *pgxpool.Pool) *PlayerStore {
	return &PlayerStore{pool: pool}
}

func (s *PlayerStore) ListPlayers(ctx context.Context) ([]domain.Player, error) {
	rows, err := s.pool.Query(ctx, `SELECT id, username, score FROM players ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("list players: %w", err)
	}
	defer rows.Close()

	players := []domain.Player{}
	for rows.Next() {
		var p domain.Player
		if err := rows.Scan(&p.ID, &p.Username, &p.Score); err != nil {
			return nil, fmt.Errorf("scan player: %w", err)
		}
		players = append(players, p)
	}
	return players, rows.Err()
}

func (s *PlayerStore) GetPlayer(ctx context.Context, playerID int64) (domain.Player, error) {
	var p domain.Player
	err := s.pool.QueryRow(ctx, `SELECT id, username, score FROM players WHERE id = $1`, playerID).
		Scan(&p.ID, &p.Username, &p.Score)
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.Player{}, domain.ErrPlayerNotFound
	}
	if err != nil {
		return domain.Player{}, fmt.Errorf("get player: %w", err)
	}
	return p, nil
}

func (s *PlayerStore) CreatePlayer(ctx context.Context, username string) (domain.Player, error) {
	p := domain.Player{Username: username}
	err := s.pool.QueryRow(ctx, `INSERT INTO players (username) VALUES ($1) RETURNING id, score`, username).
		Scan(&p.ID, &p.Score)
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
		return domain.Player{}, domain.ErrUsernameTaken
	}
	if err != nil {
		return domain.Player{}, fmt.Errorf("create player: %w", err)
	}
	return p, nil
}

// RecordSessionScore adds correct to the player's score atomically and returns the new total.
func (s *PlayerStore) RecordSessionScore(ctx context.Context, playerID int64, correct int) (int, error) {
	var total int
	err := s.pool.QueryRow(ctx, `UPDATE players SET score = score + $2 WHERE id = $1 RETURNING score`, playerID, correct).
		Scan(&total)
	if errors.Is(err, pgx.ErrNoRows) {
		return 0, domain.ErrPlayerNotFound
	}
	if err != nil {
		return 0, fmt.Errorf("record session score: %w", err)
	}
	return total, nil
}

func (s *PlayerStore) Top(ctx context.Context, limit int) ([]domain.LeaderboardEntry, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT id, username, score FROM players
		ORDER BY score DESC, username COLLATE "C"
		LIMIT $1`, limit)
	if err != nil {
		return nil, fmt.Errorf("top players: %w", err)
	}
	defer rows.Close()

	entries := []domain.LeaderboardEntry{}
	for rows.Next() {
		var e domain.LeaderboardEntry
		if err := rows.Scan(&e.PlayerID, &e.Username, &e.Score); err != nil {
			return nil, fmt.Errorf("scan player: %w", err)
		}
		entries = append(entries, e)
	}
	return entries, rows.Err()
}
