package protocol

import (
	"encoding/json"
	"errors"
	"fmt"
)

var (
	// ErrMalformed is returned for input that cannot be parsed into any request
	ErrMalformed = errors.New("malformed message")
	// ErrUnknownType is returned for a well-formed message with an unrecognized tag
	ErrUnknownType = errors.New("unknown message type")
	// ErrInvalidInput is returned for a recognized request carrying values
	// outside the allowed set. Callers ignore these silently.
	ErrInvalidInput = errors.New("invalid input")
)

// Client -> Server request tags
const (
	ReqIdentify        = "identify"
	ReqInvite          = "invite"
	ReqInviteResponse  = "invite_response"
	ReqJoinTournament  = "join_tournament"
	ReqJoinQueue       = "join_queue"
	ReqLeaveQueue      = "leave_queue"
	ReqLeaveTournament = "leave_tournament"
	ReqPing            = "ping"

	ActionMove     = "move"
	ActionStop     = "stop"
	actionStopMove = "stop_move"
)

// Direction is the movement state of a paddle
type Direction int

const (
	Stationary Direction = 0
	Up         Direction = 1
	Down       Direction = -1
)

func (d Direction) String() string {
	switch d {
	case Up:
		return "up"
	case Down:
		return "down"
	default:
		return "stationary"
	}
}

// MarshalJSON encodes the direction as its wire name
func (d Direction) MarshalJSON() ([]byte, error) {
	return json.Marshal(d.String())
}

// InviteAnswer is the recipient's decision on an invite
type InviteAnswer string

const (
	Accept  InviteAnswer = "accept"
	Decline InviteAnswer = "decline"
)

// Link identifies a tournament match a connection wants to resume
type Link struct {
	TournamentID string `json:"tournamentId"`
	MatchID      string `json:"matchId"`
}

// Request is one decoded client message. The concrete types below are
// the only implementations.
type Request interface {
	requestTag() string
}

// Identify binds the connection to a player
type Identify struct {
	PlayerID       string `json:"playerId"`
	Avatar         string `json:"avatar,omitempty"`
	Token          string `json:"token,omitempty"`
	Encoding       string `json:"encoding,omitempty"` // "json" (default) or "msgpack"
	TournamentLink *Link  `json:"tournamentLink,omitempty"`
}

// Move starts paddle movement
type Move struct {
	Direction Direction
}

// Stop halts paddle movement
type Stop struct{}

// Invite challenges another player
type Invite struct {
	Recipient string `json:"recipient"`
}

// InviteResponse answers an invite addressed to this player
type InviteResponse struct {
	InviteID string       `json:"inviteId"`
	Response InviteAnswer `json:"response"`
}

// JoinTournament enters the tournament waiting queue
type JoinTournament struct {
	PlayerID string `json:"playerId"`
}

// JoinQueue enters the casual waiting queue
type JoinQueue struct{}

// LeaveQueue leaves the casual waiting queue
type LeaveQueue struct{}

// LeaveTournament leaves the tournament waiting queue
type LeaveTournament struct{}

// Ping asks for a pong
type Ping struct{}

func (Identify) requestTag() string        { return ReqIdentify }
func (Move) requestTag() string            { return ActionMove }
func (Stop) requestTag() string            { return ActionStop }
func (Invite) requestTag() string          { return ReqInvite }
func (InviteResponse) requestTag() string  { return ReqInviteResponse }
func (JoinTournament) requestTag() string  { return ReqJoinTournament }
func (JoinQueue) requestTag() string       { return ReqJoinQueue }
func (LeaveQueue) requestTag() string      { return ReqLeaveQueue }
func (LeaveTournament) requestTag() string { return ReqLeaveTournament }
func (Ping) requestTag() string            { return ReqPing }

// Tag returns the wire tag of a request
func Tag(r Request) string {
	return r.requestTag()
}

// probe reads just the discriminating fields
type probe struct {
	Type      string `json:"type"`
	Action    string `json:"action"`
	PlayerID  string `json:"playerId"`
	Direction string `json:"direction"`
}

// Decode parses one client message. A "type" tag wins over an "action"
// tag; a message with neither but a playerId is an identify.
func Decode(raw []byte) (Request, error) {
	var p probe
	if err := json.Unmarshal(raw, &p); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformed, err)
	}

	switch {
	case p.Type != "":
		return decodeTyped(p.Type, raw)
	case p.Action != "":
		return decodeAction(p)
	case p.PlayerID != "":
		return decodeInto[Identify](raw)
	}
	return nil, ErrMalformed
}

func decodeTyped(tag string, raw []byte) (Request, error) {
	switch tag {
	case ReqIdentify:
		req, err := decodeInto[Identify](raw)
		if err == nil && req.(Identify).PlayerID == "" {
			return nil, fmt.Errorf("%w: identify without playerId", ErrMalformed)
		}
		return req, err
	case ReqInvite:
		req, err := decodeInto[Invite](raw)
		if err == nil && req.(Invite).Recipient == "" {
			return nil, fmt.Errorf("%w: invite without recipient", ErrMalformed)
		}
		return req, err
	case ReqInviteResponse:
		req, err := decodeInto[InviteResponse](raw)
		if err != nil {
			return nil, err
		}
		ir := req.(InviteResponse)
		if ir.InviteID == "" {
			return nil, fmt.Errorf("%w: invite_response without inviteId", ErrMalformed)
		}
		if ir.Response != Accept && ir.Response != Decline {
			return nil, fmt.Errorf("%w: response %q", ErrInvalidInput, ir.Response)
		}
		return ir, nil
	case ReqJoinTournament:
		return decodeInto[JoinTournament](raw)
	case ReqJoinQueue:
		return JoinQueue{}, nil
	case ReqLeaveQueue:
		return LeaveQueue{}, nil
	case ReqLeaveTournament:
		return LeaveTournament{}, nil
	case ReqPing:
		return Ping{}, nil
	}
	return nil, fmt.Errorf("%w: %q", ErrUnknownType, tag)
}

func decodeAction(p probe) (Request, error) {
	switch p.Action {
	case ActionMove:
		switch p.Direction {
		case "up":
			return Move{Direction: Up}, nil
		case "down":
			return Move{Direction: Down}, nil
		}
		return nil, fmt.Errorf("%w: direction %q", ErrInvalidInput, p.Direction)
	case ActionStop, actionStopMove:
		return Stop{}, nil
	}
	return nil, fmt.Errorf("%w: action %q", ErrUnknownType, p.Action)
}

func decodeInto[T Request](raw []byte) (Request, error) {
	var v T
	if err := json.Unmarshal(raw, &v); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	return v, nil
}
