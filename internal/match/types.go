package match

import (
	"errors"
	"math/rand/v2"

	"github.com/HoudaChairi/Ft-transcendence/internal/protocol"
	"github.com/HoudaChairi/Ft-transcendence/internal/store"
)

var (
	ErrNotParticipant = errors.New("player is not a participant")
	ErrSamePlayer     = errors.New("a player cannot play against themselves")
)

// Phase is the lifecycle stage of a session
type Phase int

const (
	Pending Phase = iota
	Running
	Ended
)

func (p Phase) String() string {
	switch p {
	case Pending:
		return "pending"
	case Running:
		return "running"
	case Ended:
		return "ended"
	}
	return "unknown"
}

// Roles. player1 defends the left goal and owns the left score.
const (
	RolePlayer1 = "player1"
	RolePlayer2 = "player2"
)

// Player is a participant reference
type Player struct {
	ID     string
	Avatar string
}

// Subscriber receives broadcasts. Send must not block.
type Subscriber interface {
	Send(protocol.Message)
}

// ResultRecorder takes finished results. Record must not block.
type ResultRecorder interface {
	Record(store.MatchResult)
}

// Reporter receives tournament match outcomes
type Reporter interface {
	ReportMatchResult(tournamentID, matchID, winner string)
}

// Link ties a session to a bracket match
type Link struct {
	TournamentID string
	MatchID      string
	Reporter     Reporter
}

// Random is the source for serve directions
type Random interface {
	Float64() float64
}

type globalRandom struct{}

func (globalRandom) Float64() float64 { return rand.Float64() }

// DefaultRandom returns a goroutine-safe random source
func DefaultRandom() Random { return globalRandom{} }
