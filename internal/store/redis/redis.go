// Package redis keeps tallies, a points leaderboard and recent results in
// Redis.
package redis

import (
	"context"
	"errors"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/vmihailenco/msgpack/v5"

	"github.com/HoudaChairi/Ft-transcendence/internal/store"
)

const (
	leaderboardKey = "pong:leaderboard"
	matchesKey     = "pong:matches"
)

func statsKey(playerID string) string  { return "pong:stats:" + playerID }
func avatarKey(playerID string) string { return "pong:avatar:" + playerID }

// Config tunes the client and how much history is kept
type Config struct {
	URL          string
	PoolSize     int
	MinIdleConns int
	HistoryLimit int64
}

func DefaultConfig() Config {
	return Config{
		URL:          "redis://localhost:6379",
		PoolSize:     10,
		MinIdleConns: 2,
		HistoryLimit: 1000,
	}
}

// Storage is a Redis-backed store.Store
type Storage struct {
	client *redis.Client
	cfg    Config
}

// New connects to cfg.URL and verifies the connection
func New(cfg Config) (*Storage, error) {
	opts, err := redis.ParseURL(cfg.URL)
	if err != nil {
		return nil, err
	}
	opts.PoolSize = cfg.PoolSize
	opts.MinIdleConns = cfg.MinIdleConns
	client := redis.NewClient(opts)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, err
	}
	return NewWithClient(client, cfg), nil
}

// NewWithClient wraps an existing client
func NewWithClient(client *redis.Client, cfg Config) *Storage {
	if cfg.HistoryLimit <= 0 {
		cfg.HistoryLimit = DefaultConfig().HistoryLimit
	}
	return &Storage{client: client, cfg: cfg}
}

func (s *Storage) Close() error {
	return s.client.Close()
}

var _ store.Store = (*Storage)(nil)

// PersistMatchResult updates both tallies, the leaderboard and the recent
// results list in one MULTI/EXEC.
func (s *Storage) PersistMatchResult(ctx context.Context, r store.MatchResult) error {
	data, err := msgpack.Marshal(r)
	if err != nil {
		return err
	}
	_, err = s.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		for _, id := range []string{r.Player1, r.Player2} {
			key := statsKey(id)
			points := store.PointsLoss
			if id == r.Winner {
				points = store.PointsWin
				pipe.HIncrBy(ctx, key, "wins", 1)
			} else {
				pipe.HIncrBy(ctx, key, "losses", 1)
			}
			pipe.HIncrBy(ctx, key, "games", 1)
			pipe.HIncrBy(ctx, key, "goals_for", int64(r.GoalsFor(id)))
			pipe.HIncrBy(ctx, key, "goals_against", int64(r.GoalsAgainst(id)))
			pipe.HIncrBy(ctx, key, "points", int64(points))
			pipe.ZIncrBy(ctx, leaderboardKey, float64(points), id)
		}
		pipe.LPush(ctx, matchesKey, data)
		pipe.LTrim(ctx, matchesKey, 0, s.cfg.HistoryLimit-1)
		return nil
	})
	return err
}

func (s *Storage) ResolveAvatar(ctx context.Context, playerID string) (string, error) {
	url, err := s.client.Get(ctx, avatarKey(playerID)).Result()
	if errors.Is(err, redis.Nil) {
		return "", store.ErrNotFound
	}
	return url, err
}

func (s *Storage) SetAvatar(ctx context.Context, playerID, url string) error {
	return s.client.Set(ctx, avatarKey(playerID), url, 0).Err()
}

func (s *Storage) Tally(ctx context.Context, playerID string) (store.Tally, error) {
	fields, err := s.client.HGetAll(ctx, statsKey(playerID)).Result()
	if err != nil {
		return store.Tally{}, err
	}
	if len(fields) == 0 {
		return store.Tally{}, store.ErrNotFound
	}
	return tallyFrom(playerID, fields)
}

// Leaderboard reads the top of the points set. A limit of zero or less
// returns everyone. The set only orders by points, so every member tied
// with the last place is read and ranked before the cut.
func (s *Storage) Leaderboard(ctx context.Context, limit int) ([]store.Tally, error) {
	ids, err := s.leaders(ctx, limit)
	if err != nil {
		return nil, err
	}

	cmds := make([]*redis.MapStringStringCmd, len(ids))
	_, err = s.client.Pipelined(ctx, func(pipe redis.Pipeliner) error {
		for i, id := range ids {
			cmds[i] = pipe.HGetAll(ctx, statsKey(id))
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	out := make([]store.Tally, 0, len(ids))
	for i, id := range ids {
		t, err := tallyFrom(id, cmds[i].Val())
		if err != nil {
			return nil, err
		}
		out = append(out, t)
	}
	store.Rank(out)
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (s *Storage) leaders(ctx context.Context, limit int) ([]string, error) {
	if limit <= 0 {
		return s.client.ZRevRange(ctx, leaderboardKey, 0, -1).Result()
	}
	top, err := s.client.ZRevRangeWithScores(ctx, leaderboardKey, int64(limit)-1, int64(limit)-1).Result()
	if err != nil {
		return nil, err
	}
	if len(top) == 0 {
		return s.client.ZRevRange(ctx, leaderboardKey, 0, -1).Result()
	}
	return s.client.ZRevRangeByScore(ctx, leaderboardKey, &redis.ZRangeBy{
		Min: strconv.FormatFloat(top[0].Score, 'f', -1, 64),
		Max: "+inf",
	}).Result()
}

// Recent returns up to n of the latest results, newest first
func (s *Storage) Recent(ctx context.Context, n int64) ([]store.MatchResult, error) {
	raw, err := s.client.LRange(ctx, matchesKey, 0, n-1).Result()
	if err != nil {
		return nil, err
	}
	out := make([]store.MatchResult, 0, len(raw))
	for _, b := range raw {
		var r store.MatchResult
		if err := msgpack.Unmarshal([]byte(b), &r); err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, nil
}

func tallyFrom(playerID string, fields map[string]string) (store.Tally, error) {
	t := store.Tally{PlayerID: playerID}
	for name, dst := range map[string]*int{
		"wins":          &t.Wins,
		"losses":        &t.Losses,
		"games":         &t.Games,
		"goals_for":     &t.GoalsFor,
		"goals_against": &t.GoalsAgainst,
		"points":        &t.Points,
	} {
		v, ok := fields[name]
		if !ok {
			continue
		}
		n, err := strconv.Atoi(v)
		if err != nil {
			return store.Tally{}, err
		}
		*dst = n
	}
	return t, nil
}
