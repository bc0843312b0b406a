package redis

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/suite"

	"github.com/HoudaChairi/Ft-transcendence/internal/store"
)

type StorageSuite struct {
	suite.Suite
	mini    *miniredis.Miniredis
	storage *Storage
	ctx     context.Context
}

func TestStorageSuite(t *testing.T) {
	suite.Run(t, new(StorageSuite))
}

func (s *StorageSuite) SetupTest() {
	s.mini = miniredis.RunT(s.T())
	client := redis.NewClient(&redis.Options{Addr: s.mini.Addr()})
	cfg := DefaultConfig()
	cfg.HistoryLimit = 3
	s.storage = NewWithClient(client, cfg)
	s.ctx = context.Background()
}

func (s *StorageSuite) TearDownTest() {
	_ = s.storage.Close()
}

func (s *StorageSuite) persist(rs ...store.MatchResult) {
	for _, r := range rs {
		s.Require().NoError(s.storage.PersistMatchResult(s.ctx, r))
	}
}

func (s *StorageSuite) TestTallies() {
	rs := []store.MatchResult{
		{SessionID: "1", Player1: "alice", Player2: "bob", Winner: "alice", ScoreLeft: 10, ScoreRight: 6},
		{SessionID: "2", Player1: "bob", Player2: "alice", Winner: "bob", Reason: "disconnect", ScoreLeft: 2, ScoreRight: 1},
	}
	s.persist(rs...)

	want := store.Tally{PlayerID: "alice"}
	for _, r := range rs {
		want = want.Apply(r)
	}
	got, err := s.storage.Tally(s.ctx, "alice")
	s.Require().NoError(err)
	s.Equal(want, got)

	_, err = s.storage.Tally(s.ctx, "ghost")
	s.ErrorIs(err, store.ErrNotFound)
}

func (s *StorageSuite) TestLeaderboard() {
	s.persist(
		store.MatchResult{SessionID: "1", Player1: "a", Player2: "b", Winner: "a"},
		store.MatchResult{SessionID: "2", Player1: "a", Player2: "c", Winner: "a"},
		store.MatchResult{SessionID: "3", Player1: "c", Player2: "b", Winner: "c"},
	)

	score, err := s.mini.ZScore(leaderboardKey, "a")
	s.Require().NoError(err)
	s.Equal(float64(2*store.PointsWin), score)

	top, err := s.storage.Leaderboard(s.ctx, 2)
	s.Require().NoError(err)
	s.Require().Len(top, 2)
	s.Equal("a", top[0].PlayerID)
	s.Equal(2, top[0].Wins)
	s.Equal("c", top[1].PlayerID)

	all, err := s.storage.Leaderboard(s.ctx, 0)
	s.Require().NoError(err)
	s.Len(all, 3)
}

func (s *StorageSuite) TestLeaderboardBreaksTiesByID() {
	s.persist(
		store.MatchResult{SessionID: "1", Player1: "a", Player2: "x", Winner: "a"},
		store.MatchResult{SessionID: "2", Player1: "b", Player2: "y", Winner: "b"},
	)

	top, err := s.storage.Leaderboard(s.ctx, 1)
	s.Require().NoError(err)
	s.Require().Len(top, 1)
	s.Equal("a", top[0].PlayerID)

	top, err = s.storage.Leaderboard(s.ctx, 3)
	s.Require().NoError(err)
	s.Require().Len(top, 3)
	s.Equal([]string{"a", "b", "x"}, []string{top[0].PlayerID, top[1].PlayerID, top[2].PlayerID})

	top, err = s.storage.Leaderboard(s.ctx, 10)
	s.Require().NoError(err)
	s.Len(top, 4)
}

func (s *StorageSuite) TestRecentIsTrimmed() {
	ended := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	for _, id := range []string{"1", "2", "3", "4"} {
		s.persist(store.MatchResult{SessionID: id, Player1: "a", Player2: "b", Winner: "b", EndedAt: ended})
	}
	recent, err := s.storage.Recent(s.ctx, 10)
	s.Require().NoError(err)
	s.Require().Len(recent, 3)
	s.Equal("4", recent[0].SessionID)
	s.Equal("2", recent[2].SessionID)
	s.True(ended.Equal(recent[0].EndedAt))
}

func (s *StorageSuite) TestAvatars() {
	_, err := s.storage.ResolveAvatar(s.ctx, "alice")
	s.ErrorIs(err, store.ErrNotFound)

	s.Require().NoError(s.storage.SetAvatar(s.ctx, "alice", "https://cdn.example/a.png"))
	url, err := s.storage.ResolveAvatar(s.ctx, "alice")
	s.Require().NoError(err)
	s.Equal("https://cdn.example/a.png", url)
}

func (s *StorageSuite) TestNewRejectsBadURL() {
	_, err := New(Config{URL: "not a url"})
	s.Error(err)

	st, err := New(Config{URL: "redis://" + s.mini.Addr()})
	s.Require().NoError(err)
	s.NoError(st.Close())
}
