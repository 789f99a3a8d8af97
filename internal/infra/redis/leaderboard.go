package redis

import (
	"context"
	"fmt"
	"log/slog"
	"slices"
	"strconv"
	"strings"

	"github.com/redis/go-redis/v9"

	"trivia-quiz-service/internal/app"
	"trivia-quiz-service/internal/domain"
)

// PlayerSource is the store of record the leaderboard mirrors.
type PlayerSource interface {
	app.PlayerDirectory
	app.ScoreRecorder
}

// Leaderboard wraps the player store of record and mirrors every player's
// cumulative score into a sorted set.
//
//	ZADD {prefix}:leaderboard {score} {playerID}
//	HSET {prefix}:usernames {playerID} {username}
type Leaderboard struct {
	client  redis.UniversalClient
	players PlayerSource
	prefix  string
}

func NewLeaderboard(client redis.UniversalClient, players PlayerSource, prefix string) *Leaderboard {
	return &Leaderboard{client: client, players: players, prefix: prefix}
}

func (l *Leaderboard) ListPlayers(ctx context.Context) ([]domain.Player, error) {
	return l.players.ListPlayers(ctx)
}

func (l *Leaderboard) GetPlayer(ctx context.Context, playerID int64) (domain.Player, error) {
	return l.players.GetPlayer(ctx, playerID)
}

func (l *Leaderboard) CreatePlayer(ctx context.Context, username string) (domain.Player, error) {
	player, err := l.players.CreatePlayer(ctx, username)
	if err != nil {
		return domain.Player{}, err
	}
	if err := l.put(ctx, player, true); err != nil {
		slog.WarnContext(ctx, "leaderboard: add player failed", "player_id", player.ID, "error", err)
	}
	return player, nil
}

// RecordSessionScore records through the store of record and then updates the mirror.
// A failed mirror update is logged; the recorded total is still returned.
// Totals only grow, so a mirror write never lowers a member's score: of two
// sessions finishing together, the later total wins whatever order they land in.
func (l *Leaderboard) RecordSessionScore(ctx context.Context, playerID int64, correct int) (int, error) {
	total, err := l.players.RecordSessionScore(ctx, playerID, correct)
	if err != nil {
		return 0, err
	}

	player, err := l.players.GetPlayer(ctx, playerID)
	if err != nil {
		slog.WarnContext(ctx, "leaderboard: lookup player failed", "player_id", playerID, "error", err)
		return total, nil
	}
	player.Score = total
	if err := l.put(ctx, player, true); err != nil {
		slog.WarnContext(ctx, "leaderboard: update failed", "player_id", playerID, "error", err)
	}
	return total, nil
}

// Warm copies every player from the store of record into the sorted set,
// overwriting whatever the set held.
func (l *Leaderboard) Warm(ctx context.Context) error {
	players, err := l.players.ListPlayers(ctx)
	if err != nil {
		return fmt.Errorf("warm leaderboard: %w", err)
	}
	for _, p := range players {
		if err := l.put(ctx, p, false); err != nil {
			return fmt.Errorf("warm leaderboard: %w", err)
		}
	}
	return nil
}

// Top returns the best players, highest score first and ties by username.
// Every member tied with the last ranked one is read so the cut falls the
// same way as in the store of record.
func (l *Leaderboard) Top(ctx context.Context, limit int) ([]domain.LeaderboardEntry, error) {
	stop := int64(-1)
	if limit > 0 {
		stop = int64(limit) - 1
	}
	res, err := l.client.ZRevRangeWithScores(ctx, l.scoresKey(), 0, stop).Result()
	if err != nil {
		return nil, fmt.Errorf("get leaderboard: %w", err)
	}
	if len(res) == 0 {
		return []domain.LeaderboardEntry{}, nil
	}

	if limit > 0 && len(res) == limit {
		last := res[len(res)-1].Score
		bound := strconv.FormatFloat(last, 'f', -1, 64)
		tied, err := l.client.ZRevRangeByScoreWithScores(ctx, l.scoresKey(), &redis.ZRangeBy{Min: bound, Max: bound}).Result()
		if err != nil {
			return nil, fmt.Errorf("get leaderboard ties: %w", err)
		}
		res = slices.DeleteFunc(res, func(z redis.Z) bool { return z.Score == last })
		res = append(res, tied...)
	}

	ids := make([]string, 0, len(res))
	for _, z := range res {
		ids = append(ids, z.Member.(string))
	}
	names, err := l.client.HMGet(ctx, l.usernamesKey(), ids...).Result()
	if err != nil {
		return nil, fmt.Errorf("get leaderboard usernames: %w", err)
	}

	entries := make([]domain.LeaderboardEntry, 0, len(res))
	for i, z := range res {
		id, err := strconv.ParseInt(ids[i], 10, 64)
		if err != nil {
			return nil, fmt.Errorf("leaderboard member %q: %w", ids[i], err)
		}
		username, _ := names[i].(string)
		entries = append(entries, domain.LeaderboardEntry{
			PlayerID: id,
			Username: username,
			Score:    int(z.Score),
		})
	}
	slices.SortStableFunc(entries, func(a, b domain.LeaderboardEntry) int {
		if a.Score != b.Score {
			return b.Score - a.Score
		}
		return strings.Compare(a.Username, b.Username)
	})
	if limit > 0 && len(entries) > limit {
		entries = entries[:limit]
	}
	return entries, nil
}

// put writes p's score and username. With onlyHigher the score is stored
// only when it exceeds the current one (ZADD GT).
func (l *Leaderboard) put(ctx context.Context, p domain.Player, onlyHigher bool) error {
	member := strconv.FormatInt(p.ID, 10)
	pipe := l.client.TxPipeline()
	pipe.ZAddArgs(ctx, l.scoresKey(), redis.ZAddArgs{
		GT:      onlyHigher,
		Members: []redis.Z{{Score: float64(p.Score), Member: member}},
	})
	pipe.HSet(ctx, l.usernamesKey(), member, p.Username)
	_, err := pipe.Exec(ctx)
	return err
}

func (l *Leaderboard) scoresKey() string {
	return l.prefix + ":leaderboard"
}

func (l *Leaderboard) usernamesKey() string {
	return l.prefix + ":usernames"
}
