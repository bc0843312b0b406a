package store

import (
	"cmp"
	"context"
	"errors"
	"slices"
	"time"
)

// ErrNotFound is returned by lookups that have no record
var ErrNotFound = errors.New("not found")

// Tally points
const (
	PointsWin  = 3
	PointsLoss = -1
)

// MatchResult is the outcome of one ended session
type MatchResult struct {
	SessionID    string
	Player1      string // left side
	Player2      string // right side
	Winner       string
	Reason       string
	ScoreLeft    int
	ScoreRight   int
	TournamentID string
	MatchID      string
	EndedAt      time.Time
}

// Loser returns the participant who did not win
func (r MatchResult) Loser() string {
	if r.Winner == r.Player1 {
		return r.Player2
	}
	return r.Player1
}

// GoalsFor returns the goals scored by player
func (r MatchResult) GoalsFor(player string) int {
	if player == r.Player1 {
		return r.ScoreLeft
	}
	return r.ScoreRight
}

// GoalsAgainst returns the goals conceded by player
func (r MatchResult) GoalsAgainst(player string) int {
	if player == r.Player1 {
		return r.ScoreRight
	}
	return r.ScoreLeft
}

// Tally is a player's cumulative record
type Tally struct {
	PlayerID     string
	Wins         int
	Losses       int
	Games        int
	GoalsFor     int
	GoalsAgainst int
	Points       int
}

// Apply folds one result into the tally for t.PlayerID
func (t Tally) Apply(r MatchResult) Tally {
	t.Games++
	t.GoalsFor += r.GoalsFor(t.PlayerID)
	t.GoalsAgainst += r.GoalsAgainst(t.PlayerID)
	if r.Winner == t.PlayerID {
		t.Wins++
		t.Points += PointsWin
	} else {
		t.Losses++
		t.Points += PointsLoss
	}
	return t
}

// Rank orders tallies by points, then wins, then player id
func Rank(ts []Tally) {
	slices.SortFunc(ts, func(a, b Tally) int {
		if c := cmp.Compare(b.Points, a.Points); c != 0 {
			return c
		}
		if c := cmp.Compare(b.Wins, a.Wins); c != 0 {
			return c
		}
		return cmp.Compare(a.PlayerID, b.PlayerID)
	})
}

// ResultSink persists finished matches and updates tallies
type ResultSink interface {
	PersistMatchResult(ctx context.Context, r MatchResult) error
}

// AvatarResolver looks up a player's avatar URL
type AvatarResolver interface {
	ResolveAvatar(ctx context.Context, playerID string) (string, error)
}

// Store is a complete backend
type Store interface {
	ResultSink
	AvatarResolver
	SetAvatar(ctx context.Context, playerID, url string) error
	Tally(ctx context.Context, playerID string) (Tally, error)
	Leaderboard(ctx context.Context, limit int) ([]Tally, error)
	Close() error
}
