package tournament

import (
	"errors"
	"slices"
	"time"

	"github.com/HoudaChairi/Ft-transcendence/internal/protocol"
)

var (
	ErrBadGroup         = errors.New("a bracket needs exactly 4 distinct players")
	ErrStopped          = errors.New("coordinator stopped")
	ErrBracketNotFound  = errors.New("bracket not found")
	errMatchNotFound    = errors.New("match not in bracket")
	errAlreadyCompleted = errors.New("match already completed")
	errNotInMatch       = errors.New("winner did not play this match")
)

// Size is the number of players in a bracket
const Size = 4

// Phase is a bracket's stage. Phases only ever move forward.
type Phase string

const (
	Waiting    Phase = "waiting"
	Semifinals Phase = "semifinals"
	Finals     Phase = "finals"
	Completed  Phase = "completed"
)

var phaseOrder = []Phase{Waiting, Semifinals, Finals, Completed}

// Rank is the position of p in the phase sequence
func (p Phase) Rank() int {
	return slices.Index(phaseOrder, p)
}

// Match is one game of a bracket. Winner and Completed are set together.
type Match struct {
	ID        string
	Player1   string
	Player2   string
	Winner    string
	Completed bool
}

// Bracket is a four-player single-elimination tournament
type Bracket struct {
	ID          string
	Players     []string
	Phase       Phase
	Matches     map[string]*Match
	Current     []string // ids of the matches in the running round
	Winner      string
	CreatedAt   time.Time
	CompletedAt time.Time
}

func semi1ID(id string) string  { return id + "_semi1" }
func semi2ID(id string) string  { return id + "_semi2" }
func finalsID(id string) string { return id + "_finals" }

func newBracket(id string, seeded []string, now time.Time) *Bracket {
	return &Bracket{
		ID:        id,
		Players:   slices.Clone(seeded),
		Phase:     Waiting,
		Matches:   make(map[string]*Match, 3),
		CreatedAt: now,
	}
}

// begin opens the semifinals, pairing seeds 0-1 and 2-3
func (b *Bracket) begin() []*Match {
	if b.Phase != Waiting {
		return nil
	}
	semis := []*Match{
		{ID: semi1ID(b.ID), Player1: b.Players[0], Player2: b.Players[1]},
		{ID: semi2ID(b.ID), Player1: b.Players[2], Player2: b.Players[3]},
	}
	b.addRound(Semifinals, semis...)
	return semis
}

func (b *Bracket) addRound(phase Phase, matches ...*Match) {
	b.Current = b.Current[:0]
	for _, m := range matches {
		b.Matches[m.ID] = m
		b.Current = append(b.Current, m.ID)
	}
	b.Phase = phase
}

// record marks a match won. It refuses duplicates and strangers.
func (b *Bracket) record(matchID, winner string) error {
	m, ok := b.Matches[matchID]
	if !ok {
		return errMatchNotFound
	}
	if m.Completed {
		return errAlreadyCompleted
	}
	if winner != m.Player1 && winner != m.Player2 {
		return errNotInMatch
	}
	m.Winner = winner
	m.Completed = true
	return nil
}

// roundDone reports whether every match of the current round is complete
func (b *Bracket) roundDone() bool {
	for _, id := range b.Current {
		if !b.Matches[id].Completed {
			return false
		}
	}
	return len(b.Current) > 0
}

// advance moves a finished round forward and returns the match to
// spawn next, if any.
func (b *Bracket) advance(now time.Time) *Match {
	if !b.roundDone() {
		return nil
	}
	switch b.Phase {
	case Semifinals:
		final := &Match{
			ID:      finalsID(b.ID),
			Player1: b.Matches[semi1ID(b.ID)].Winner,
			Player2: b.Matches[semi2ID(b.ID)].Winner,
		}
		b.addRound(Finals, final)
		return final
	case Finals:
		b.Phase = Completed
		b.Winner = b.Matches[finalsID(b.ID)].Winner
		b.CompletedAt = now
	}
	return nil
}

// clone returns a deep copy safe to hand outside the coordinator
func (b *Bracket) clone() Bracket {
	c := *b
	c.Players = slices.Clone(b.Players)
	c.Current = slices.Clone(b.Current)
	c.Matches = make(map[string]*Match, len(b.Matches))
	for id, m := range b.Matches {
		mm := *m
		c.Matches[id] = &mm
	}
	return c
}

// orderedMatches lists matches semifinals first
func (b *Bracket) orderedMatches() []*Match {
	out := make([]*Match, 0, len(b.Matches))
	for _, id := range []string{semi1ID(b.ID), semi2ID(b.ID), finalsID(b.ID)} {
		if m, ok := b.Matches[id]; ok {
			out = append(out, m)
		}
	}
	return out
}

func (b *Bracket) updateMessage() protocol.BracketUpdate {
	u := protocol.BracketUpdate{
		Type:         protocol.MsgBracketUpdate,
		TournamentID: b.ID,
		Phase:        string(b.Phase),
		Players:      slices.Clone(b.Players),
	}
	for _, m := range b.orderedMatches() {
		u.Matches = append(u.Matches, protocol.BracketMatch{
			MatchID:   m.ID,
			Player1:   m.Player1,
			Player2:   m.Player2,
			Winner:    m.Winner,
			Completed: m.Completed,
		})
	}
	return u
}

func validGroup(players []string) bool {
	if len(players) != Size {
		return false
	}
	seen := make(map[string]bool, Size)
	for _, p := range players {
		if p == "" || seen[p] {
			return false
		}
		seen[p] = true
	}
	return true
}
