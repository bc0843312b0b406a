package protocol

import "github.com/HoudaChairi/Ft-transcendence/internal/geom"

// Server -> Client message types
const (
	MsgGameStart          = "game_start"
	MsgUpdate             = "update"
	MsgGameEnd            = "game_end"
	MsgMatchReady         = "match_ready"
	MsgTournamentComplete = "tournament_complete"
	MsgBracketUpdate      = "bracket_update"
	MsgError              = "error"
	MsgIdentified         = "identified"
	MsgQueued             = "queued"
	MsgInvite             = "invite"
	MsgInviteSent         = "invite_sent"
	MsgInviteCancelled    = "invite_cancelled"
	MsgPong               = "pong"
)

// End reasons carried by game_end
const (
	ReasonScore         = "score"
	ReasonDisconnect    = "disconnect"
	ReasonInternalError = "internal_error"
)

// Message is any server message. Every message carries its type tag.
type Message interface {
	MessageType() string
}

// PlayerInfo describes one participant
type PlayerInfo struct {
	ID     string `json:"id" msgpack:"id"`
	Avatar string `json:"avatar,omitempty" msgpack:"avatar,omitempty"`
}

// Players maps roles to participants
type Players struct {
	Player1 PlayerInfo `json:"player1" msgpack:"player1"`
	Player2 PlayerInfo `json:"player2" msgpack:"player2"`
}

// GameStart is sent once both participants are connected and the
// pre-game delay has elapsed
type GameStart struct {
	Type         string  `json:"type" msgpack:"type"`
	SessionID    string  `json:"sessionId" msgpack:"sessionId"`
	Players      Players `json:"players" msgpack:"players"`
	Tournament   bool    `json:"tournament" msgpack:"tournament"`
	TournamentID string  `json:"tournamentId,omitempty" msgpack:"tournamentId,omitempty"`
	MatchID      string  `json:"matchId,omitempty" msgpack:"matchId,omitempty"`
}

// PaddlePosition is one paddle in an update
type PaddlePosition struct {
	PlayerID  string       `json:"playerId" msgpack:"playerId"`
	Role      string       `json:"role" msgpack:"role"`
	Position  geom.Vector3 `json:"position" msgpack:"position"`
	Direction Direction    `json:"direction" msgpack:"direction"`
}

// Update is the per-tick authoritative state
type Update struct {
	Type            string              `json:"type" msgpack:"type"`
	Tick            uint64              `json:"tick" msgpack:"tick"`
	PaddlePositions []PaddlePosition    `json:"paddlePositions" msgpack:"paddlePositions"`
	BallPosition    geom.Vector3        `json:"ballPosition" msgpack:"ballPosition"`
	BallDirection   geom.Vector3        `json:"ballDirection" msgpack:"ballDirection"`
	ScoreLeft       int                 `json:"scoreLeft" msgpack:"scoreLeft"`
	ScoreRight      int                 `json:"scoreRight" msgpack:"scoreRight"`
	PaddleBoxes     map[string]geom.Box `json:"paddleBoxes" msgpack:"paddleBoxes"`
}

// GameEnd is the terminal broadcast of a session
type GameEnd struct {
	Type       string `json:"type" msgpack:"type"`
	SessionID  string `json:"sessionId" msgpack:"sessionId"`
	Winner     string `json:"winner,omitempty" msgpack:"winner,omitempty"`
	Reason     string `json:"reason" msgpack:"reason"`
	ScoreLeft  int    `json:"scoreLeft" msgpack:"scoreLeft"`
	ScoreRight int    `json:"scoreRight" msgpack:"scoreRight"`
}

// MatchReady tells a bracket player their next match exists
type MatchReady struct {
	Type         string `json:"type" msgpack:"type"`
	Opponent     string `json:"opponent" msgpack:"opponent"`
	TournamentID string `json:"tournamentId" msgpack:"tournamentId"`
	MatchID      string `json:"matchId" msgpack:"matchId"`
}

// TournamentComplete announces the bracket winner
type TournamentComplete struct {
	Type         string `json:"type" msgpack:"type"`
	TournamentID string `json:"tournamentId" msgpack:"tournamentId"`
	Winner       string `json:"winner" msgpack:"winner"`
}

// BracketMatch is one match as seen in a bracket_update
type BracketMatch struct {
	MatchID   string `json:"matchId" msgpack:"matchId"`
	Player1   string `json:"player1" msgpack:"player1"`
	Player2   string `json:"player2" msgpack:"player2"`
	Winner    string `json:"winner,omitempty" msgpack:"winner,omitempty"`
	Completed bool   `json:"completed" msgpack:"completed"`
}

// BracketUpdate carries the full bracket after every change
type BracketUpdate struct {
	Type         string         `json:"type" msgpack:"type"`
	TournamentID string         `json:"tournamentId" msgpack:"tournamentId"`
	Phase        string         `json:"phase" msgpack:"phase"`
	Players      []string       `json:"players" msgpack:"players"`
	Matches      []BracketMatch `json:"matches" msgpack:"matches"`
}

// Error reports a rejected request
type Error struct {
	Type    string `json:"type" msgpack:"type"`
	Message string `json:"message" msgpack:"message"`
}

// Identified acknowledges an identify
type Identified struct {
	Type     string `json:"type" msgpack:"type"`
	PlayerID string `json:"playerId" msgpack:"playerId"`
}

// Queued acknowledges a queue join
type Queued struct {
	Type     string `json:"type" msgpack:"type"`
	Mode     string `json:"mode" msgpack:"mode"`
	Position int    `json:"position" msgpack:"position"`
}

// InviteNotice is delivered to the recipient of an invite
type InviteNotice struct {
	Type     string `json:"type" msgpack:"type"`
	InviteID string `json:"inviteId" msgpack:"inviteId"`
	Sender   string `json:"sender" msgpack:"sender"`
}

// InviteSent acknowledges an invite to its sender
type InviteSent struct {
	Type      string `json:"type" msgpack:"type"`
	InviteID  string `json:"inviteId" msgpack:"inviteId"`
	Recipient string `json:"recipient" msgpack:"recipient"`
}

// InviteCancelled tells both parties an invite is gone
type InviteCancelled struct {
	Type     string `json:"type" msgpack:"type"`
	InviteID string `json:"inviteId" msgpack:"inviteId"`
	Reason   string `json:"reason" msgpack:"reason"`
}

// Pong answers a ping
type Pong struct {
	Type string `json:"type" msgpack:"type"`
}

func (m GameStart) MessageType() string          { return MsgGameStart }
func (m Update) MessageType() string             { return MsgUpdate }
func (m GameEnd) MessageType() string            { return MsgGameEnd }
func (m MatchReady) MessageType() string         { return MsgMatchReady }
func (m TournamentComplete) MessageType() string { return MsgTournamentComplete }
func (m BracketUpdate) MessageType() string      { return MsgBracketUpdate }
func (m Error) MessageType() string              { return MsgError }
func (m Identified) MessageType() string         { return MsgIdentified }
func (m Queued) MessageType() string             { return MsgQueued }
func (m InviteNotice) MessageType() string       { return MsgInvite }
func (m InviteSent) MessageType() string         { return MsgInviteSent }
func (m InviteCancelled) MessageType() string    { return MsgInviteCancelled }
func (m Pong) MessageType() string               { return MsgPong }

// NewError builds an error message
func NewError(msg string) Error {
	return Error{Type: MsgError, Message: msg}
}
