package memory

import (
	"context"
	"slices"
	"strings"
	"sync"

	"trivia-quiz-service/internal/domain"
)

// PlayerStore keeps player profiles and their cumulative scores in memory.
type PlayerStore struct {
	mu      sync.RWMutex
	nextID  int64
	players map[int64]*domain.Player
}

func NewPlayerStore(seed ...domain.Player) *PlayerStore {
	s := &PlayerStore{players: make(map[int64]*domain.Player, len(seed))}
	for _, p := range seed {
		p := p
		s.players[p.ID] = &p
		s.nextID = max(s.nextID, p.ID)
	}
	return s
}

func (s *PlayerStore) ListPlayers(_ context.Context) ([]domain.Player, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	players := make([]domain.Player, 0, len(s.players))
	for _, p := range s.players {
		players = append(players, *p)
	}
	slices.SortFunc(players, func(a, b domain.Player) int { return compareIDs(a.ID, b.ID) })
	return players, nil
}

func (s *PlayerStore) GetPlayer(_ context.Context, playerID int64) (domain.Player, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	p, ok := s.players[playerID]
	if !ok {
		return domain.Player{}, domain.ErrPlayerNotFound
	}
	return *p, nil
}

func (s *PlayerStore) CreatePlayer(_ context.Context, username string) (domain.Player, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, p := range s.players {
		if strings.EqualFold(p.Username, username) {
			return domain.Player{}, domain.ErrUsernameTaken
		}
	}
	s.nextID++
	p := &domain.Player{ID: s.nextID, Username: username}
	s.players[p.ID] = p
	return *p, nil
}

// RecordSessionScore implements app.ScoreRecorder.
func (s *PlayerStore) RecordSessionScore(_ context.Context, playerID int64, correct int) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	p, ok := s.players[playerID]
	if !ok {
		return 0, domain.ErrPlayerNotFound
	}
	p.Score += correct
	return p.Score, nil
}

// Top ranks players by score, ties broken by username.
func (s *PlayerStore) Top(ctx context.Context, limit int) ([]domain.LeaderboardEntry, error) {
	players, err := s.ListPlayers(ctx)
	if err != nil {
		return nil, err
	}
	slices.SortStableFunc(players, func(a, b domain.Player) int {
		if a.Score != b.Score {
			return b.Score - a.Score
		}
		return strings.Compare(a.Username, b.Username)
	})
	if limit > 0 && len(players) > limit {
		players = players[:limit]
	}
	entries := make([]domain.LeaderboardEntry, 0, len(players))
	for _, p := range players {
		entries = append(entries, domain.LeaderboardEntry{PlayerID: p.ID, Username: p.Username, Score: p.Score})
	}
	return entries, nil
}
