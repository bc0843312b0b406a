package sqlite

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/HoudaChairi/Ft-transcendence/internal/store"
)

func openTestDB(t *testing.T) *DB {
	t.Helper()
	db, err := Open(filepath.Join(t.TempDir(), "pong.db"))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return db
}

func TestPersistMatchResult(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()
	ended := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	require.NoError(t, db.PersistMatchResult(ctx, store.MatchResult{
		SessionID: "s1", Player1: "alice", Player2: "bob", Winner: "alice",
		Reason: "score", ScoreLeft: 10, ScoreRight: 7, EndedAt: ended,
	}))
	require.NoError(t, db.PersistMatchResult(ctx, store.MatchResult{
		SessionID: "s2", Player1: "bob", Player2: "alice", Winner: "bob",
		Reason: "disconnect", ScoreLeft: 1, ScoreRight: 0,
		TournamentID: "t1", MatchID: "t1_semi1", EndedAt: ended.Add(time.Minute),
	}))

	alice, err := db.Tally(ctx, "alice")
	require.NoError(t, err)
	assert.Equal(t, store.Tally{
		PlayerID: "alice", Wins: 1, Losses: 1, Games: 2,
		GoalsFor: 10, GoalsAgainst: 8, Points: store.PointsWin + store.PointsLoss,
	}, alice)

	hist, err := db.History(ctx, "alice", 10)
	require.NoError(t, err)
	require.Len(t, hist, 2)
	assert.Equal(t, "s2", hist[0].SessionID, "newest first")
	assert.Equal(t, "t1_semi1", hist[0].MatchID)
	assert.WithinDuration(t, ended.Add(time.Minute), hist[0].EndedAt, time.Second)
}

func TestTallyMatchesMemoryFold(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()
	results := []store.MatchResult{
		{SessionID: "1", Player1: "a", Player2: "b", Winner: "b", ScoreLeft: 3, ScoreRight: 10},
		{SessionID: "2", Player1: "c", Player2: "a", Winner: "a", ScoreLeft: 9, ScoreRight: 10},
		{SessionID: "3", Player1: "a", Player2: "b", Winner: "a", ScoreLeft: 10, ScoreRight: 0},
	}
	want := store.Tally{PlayerID: "a"}
	for _, r := range results {
		require.NoError(t, db.PersistMatchResult(ctx, r))
		want = want.Apply(r)
	}
	got, err := db.Tally(ctx, "a")
	require.NoError(t, err)
	assert.Equal(t, want, got)
}

func TestAvatarAndMissingPlayers(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()

	_, err := db.ResolveAvatar(ctx, "ghost")
	assert.ErrorIs(t, err, store.ErrNotFound)
	_, err = db.Tally(ctx, "ghost")
	assert.ErrorIs(t, err, store.ErrNotFound)

	require.NoError(t, db.SetAvatar(ctx, "alice", "https://cdn.example/a.png"))
	url, err := db.ResolveAvatar(ctx, "alice")
	require.NoError(t, err)
	assert.Equal(t, "https://cdn.example/a.png", url)

	_, err = db.Tally(ctx, "alice")
	assert.ErrorIs(t, err, store.ErrNotFound, "an avatar alone is not a record")

	require.NoError(t, db.PersistMatchResult(ctx, store.MatchResult{
		SessionID: "s", Player1: "alice", Player2: "bob", Winner: "alice",
	}))
	url, err = db.ResolveAvatar(ctx, "alice")
	require.NoError(t, err)
	assert.Equal(t, "https://cdn.example/a.png", url, "tally upsert keeps the avatar")
}

func TestLeaderboard(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()
	for i, r := range []store.MatchResult{
		{Player1: "a", Player2: "b", Winner: "a"},
		{Player1: "a", Player2: "c", Winner: "a"},
		{Player1: "c", Player2: "b", Winner: "c"},
	} {
		r.SessionID = string(rune('0' + i))
		require.NoError(t, db.PersistMatchResult(ctx, r))
	}

	top, err := db.Leaderboard(ctx, 2)
	require.NoError(t, err)
	require.Len(t, top, 2)
	assert.Equal(t, "a", top[0].PlayerID)
	assert.Equal(t, "c", top[1].PlayerID)

	all, err := db.Leaderboard(ctx, 0)
	require.NoError(t, err)
	require.Len(t, all, 3)
	assert.Equal(t, "b", all[2].PlayerID)
}

func TestReopenKeepsData(t *testing.T) {
	path := filepath.Join(t.TempDir(), "pong.db")
	db, err := Open(path)
	require.NoError(t, err)
	require.NoError(t, db.PersistMatchResult(context.Background(), store.MatchResult{
		SessionID: "s", Player1: "a", Player2: "b", Winner: "b",
	}))
	require.NoError(t, db.Close())

	db, err = Open(path)
	require.NoError(t, err)
	defer db.Close()
	tb, err := db.Tally(context.Background(), "b")
	require.NoError(t, err)
	assert.Equal(t, 1, tb.Wins)
}
