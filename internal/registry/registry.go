package registry

import (
	"errors"
	"sync"

	"github.com/HoudaChairi/Ft-transcendence/internal/match"
	"github.com/HoudaChairi/Ft-transcendence/internal/protocol"
)

var ErrPlayerBusy = errors.New("player already in a session")

// Conn is a player's live connection. Send must not block.
type Conn interface {
	Send(protocol.Message)
}

// pairKey is an unordered pair of player ids
type pairKey struct{ a, b string }

func pairOf(x, y string) pairKey {
	if x > y {
		x, y = y, x
	}
	return pairKey{x, y}
}

// Stats is a point-in-time count of registry contents
type Stats struct {
	Connections  int
	Sessions     int
	InTournament int
}

// Registry maps players to their connection, session and tournament.
// It holds lookup references only; sessions own their own state.
type Registry struct {
	mu          sync.RWMutex
	conns       map[string]Conn
	byPlayer    map[string]*match.Engine
	byPair      map[pairKey]*match.Engine
	sessions    map[string]*match.Engine
	tournaments map[string]string
}

// New creates an empty registry
func New() *Registry {
	return &Registry{
		conns:       make(map[string]Conn),
		byPlayer:    make(map[string]*match.Engine),
		byPair:      make(map[pairKey]*match.Engine),
		sessions:    make(map[string]*match.Engine),
		tournaments: make(map[string]string),
	}
}

// Bind makes conn the player's connection and returns the one it replaced
func (r *Registry) Bind(player string, conn Conn) (Conn, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	prev, ok := r.conns[player]
	r.conns[player] = conn
	return prev, ok && prev != conn
}

// Unbind removes the player's connection if it is still conn. It
// reports whether the binding was removed.
func (r *Registry) Unbind(player string, conn Conn) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if cur, ok := r.conns[player]; ok && cur == conn {
		delete(r.conns, player)
		return true
	}
	return false
}

// Conn returns the player's connection
func (r *Registry) Conn(player string) (Conn, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	c, ok := r.conns[player]
	return c, ok
}

// Online reports whether the player has a connection
func (r *Registry) Online(player string) bool {
	_, ok := r.Conn(player)
	return ok
}

// Send delivers m to the player if connected
func (r *Registry) Send(player string, m protocol.Message) bool {
	c, ok := r.Conn(player)
	if !ok {
		return false
	}
	c.Send(m)
	return true
}

// AddSession indexes e under its id, its pair and both players. It
// fails if either player is already in a session.
func (r *Registry) AddSession(e *match.Engine) error {
	players := e.Players()
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, p := range players {
		if _, busy := r.byPlayer[p.ID]; busy {
			return ErrPlayerBusy
		}
	}
	r.sessions[e.ID()] = e
	r.byPair[pairOf(players[0].ID, players[1].ID)] = e
	for _, p := range players {
		r.byPlayer[p.ID] = e
	}
	return nil
}

// RemoveSession drops every index entry that still points at e
func (r *Registry) RemoveSession(e *match.Engine) {
	players := e.Players()
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.sessions[e.ID()] == e {
		delete(r.sessions, e.ID())
	}
	key := pairOf(players[0].ID, players[1].ID)
	if r.byPair[key] == e {
		delete(r.byPair, key)
	}
	for _, p := range players {
		if r.byPlayer[p.ID] == e {
			delete(r.byPlayer, p.ID)
		}
	}
}

// SessionFor returns the player's active session
func (r *Registry) SessionFor(player string) (*match.Engine, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	e, ok := r.byPlayer[player]
	return e, ok
}

// SessionForPair returns the session between two players, in either order
func (r *Registry) SessionForPair(a, b string) (*match.Engine, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	e, ok := r.byPair[pairOf(a, b)]
	return e, ok
}

// Session returns a session by id
func (r *Registry) Session(id string) (*match.Engine, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	e, ok := r.sessions[id]
	return e, ok
}

// Sessions returns every indexed session
func (r *Registry) Sessions() []*match.Engine {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]*match.Engine, 0, len(r.sessions))
	for _, e := range r.sessions {
		out = append(out, e)
	}
	return out
}

// SetTournament records the player's bracket
func (r *Registry) SetTournament(player, bracketID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.tournaments[player] = bracketID
}

// ClearTournament forgets the player's bracket if it is still bracketID
func (r *Registry) ClearTournament(player, bracketID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.tournaments[player] == bracketID {
		delete(r.tournaments, player)
	}
}

// Tournament returns the player's bracket id
func (r *Registry) Tournament(player string) (string, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	id, ok := r.tournaments[player]
	return id, ok
}

// Stats counts registry contents
func (r *Registry) Stats() Stats {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return Stats{
		Connections:  len(r.conns),
		Sessions:     len(r.sessions),
		InTournament: len(r.tournaments),
	}
}
