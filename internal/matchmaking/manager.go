package matchmaking

import (
	"context"
	"errors"
	"log/slog"
	"slices"
	"sync"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"

	"github.com/HoudaChairi/Ft-transcendence/internal/config"
	"github.com/HoudaChairi/Ft-transcendence/internal/match"
	"github.com/HoudaChairi/Ft-transcendence/internal/registry"
	"github.com/HoudaChairi/Ft-transcendence/internal/store"
)

var (
	ErrAlreadyQueued    = errors.New("already waiting in another queue")
	ErrInSession        = errors.New("player already in a session")
	ErrInTournament     = errors.New("player already in a tournament")
	ErrRecipientOffline = errors.New("recipient is not connected")
	ErrSelfInvite       = errors.New("cannot invite yourself")
	ErrInviteNotFound   = errors.New("invite not found")
)

// Mode selects a waiting queue
type Mode string

const (
	Casual     Mode = "casual"
	Tournament Mode = "tournament"
)

// BracketFormer turns a full tournament group into a bracket
type BracketFormer interface {
	FormBracket(players []string) (string, error)
}

// Options configures a Manager. Zero values get defaults.
type Options struct {
	Game      config.Game
	GroupSize int
	Clock     clockwork.Clock
	Rand      match.Random
	Results   match.ResultRecorder
	Logger    *slog.Logger
}

// Stats is a point-in-time count of waiting players and invites
type Stats struct {
	Casual         int
	Tournament     int
	PendingInvites int
}

// Manager pairs waiting players into sessions. Its lock is always taken
// before the registry's.
type Manager struct {
	reg     *registry.Registry
	cfg     config.Game
	group   int
	clock   clockwork.Clock
	rand    match.Random
	results match.ResultRecorder
	logger  *slog.Logger

	ctx    context.Context
	cancel context.CancelFunc

	mu       sync.Mutex
	closed   bool
	bracket  BracketFormer
	queues   map[Mode][]string
	invites  map[string]*Invite
	bySender map[string]string
	avatars  map[string]string
}

// New creates a Manager over reg
func New(reg *registry.Registry, opts Options) *Manager {
	if opts.Game == (config.Game{}) {
		opts.Game = config.DefaultGame()
	}
	if opts.GroupSize == 0 {
		opts.GroupSize = 4
	}
	if opts.Clock == nil {
		opts.Clock = clockwork.NewRealClock()
	}
	if opts.Rand == nil {
		opts.Rand = match.DefaultRandom()
	}
	if opts.Logger == nil {
		opts.Logger = slog.New(slog.DiscardHandler)
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Manager{
		reg:      reg,
		cfg:      opts.Game,
		group:    opts.GroupSize,
		clock:    opts.Clock,
		rand:     opts.Rand,
		results:  opts.Results,
		logger:   opts.Logger.With(slog.String("component", "matchmaking")),
		ctx:      ctx,
		cancel:   cancel,
		queues:   map[Mode][]string{Casual: nil, Tournament: nil},
		invites:  make(map[string]*Invite),
		bySender: make(map[string]string),
		avatars:  make(map[string]string),
	}
}

// SetBracketFormer wires the tournament coordinator
func (m *Manager) SetBracketFormer(b BracketFormer) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.bracket = b
}

// Close abandons every session started by this manager: their loops stop
// and no result is recorded. Disconnects after Close forfeit nothing.
func (m *Manager) Close() {
	m.mu.Lock()
	m.closed = true
	m.mu.Unlock()
	m.cancel()
}

// SetAvatar caches a player's avatar for the sessions they join
func (m *Manager) SetAvatar(player, url string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if url == "" {
		delete(m.avatars, player)
		return
	}
	m.avatars[player] = url
}

// JoinQueue puts player at the back of a waiting queue and returns their
// position. Joining the queue one is already in is a no-op. When the
// casual queue holds two players they are paired; when the tournament
// queue holds a full group a bracket is formed.
func (m *Manager) JoinQueue(player string, mode Mode) (int, error) {
	m.mu.Lock()

	if pos := slices.Index(m.queues[mode], player); pos >= 0 {
		m.mu.Unlock()
		return pos + 1, nil
	}
	if err := m.checkFreeLocked(player); err != nil {
		m.mu.Unlock()
		return 0, err
	}

	m.queues[mode] = append(m.queues[mode], player)
	pos := len(m.queues[mode])
	m.logger.Info("player queued", slog.String("player", player), slog.String("mode", string(mode)))

	var group []string
	switch {
	case mode == Casual && len(m.queues[Casual]) >= 2:
		q := m.queues[Casual]
		a, b := q[0], q[1]
		m.queues[Casual] = q[2:]
		if _, err := m.createLocked(a, b, nil); err != nil {
			m.logger.Error("casual pairing failed", slog.Any("error", err))
		}
	case mode == Tournament && len(m.queues[Tournament]) >= m.group:
		q := m.queues[Tournament]
		group = slices.Clone(q[:m.group])
		m.queues[Tournament] = q[m.group:]
	}
	former := m.bracket
	m.mu.Unlock()

	if group != nil {
		if former == nil {
			m.logger.Error("tournament group formed with no coordinator")
			return pos, nil
		}
		if _, err := former.FormBracket(group); err != nil {
			m.logger.Error("bracket formation failed", slog.Any("error", err))
		}
	}
	return pos, nil
}

// LeaveQueue removes player from every queue and withdraws their invites
func (m *Manager) LeaveQueue(player string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.dequeueLocked(player)
	m.cancelInvitesLocked(player, "cancelled")
}

// LeaveTournamentQueue removes player from the tournament queue only
func (m *Manager) LeaveTournamentQueue(player string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.queues[Tournament] = slices.DeleteFunc(m.queues[Tournament], func(p string) bool { return p == player })
}

// Disconnect removes every trace of player: queue membership, invites in
// either direction, and their active session, which is forfeited unless
// the manager is closed.
func (m *Manager) Disconnect(player string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.dequeueLocked(player)
	m.cancelInvitesLocked(player, "disconnect")
	delete(m.avatars, player)
	if m.closed {
		return
	}
	if e, ok := m.reg.SessionFor(player); ok {
		e.Disconnect(player)
	}
}

// CreateMatch starts a session between p1 (left) and p2 (right). A
// second call for the same pair while their session is live returns the
// existing session.
func (m *Manager) CreateMatch(p1, p2 string, link *match.Link) (*match.Engine, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.createLocked(p1, p2, link)
}

// Stats counts waiting players and pending invites
func (m *Manager) Stats() Stats {
	m.mu.Lock()
	defer m.mu.Unlock()
	return Stats{
		Casual:         len(m.queues[Casual]),
		Tournament:     len(m.queues[Tournament]),
		PendingInvites: len(m.invites),
	}
}

// Queue returns a copy of a waiting queue in arrival order
func (m *Manager) Queue(mode Mode) []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return slices.Clone(m.queues[mode])
}

// checkFreeLocked rejects a player who is playing, still belongs to a
// bracket that has not completed, or is already waiting.
func (m *Manager) checkFreeLocked(player string) error {
	if e, ok := m.reg.SessionFor(player); ok && e.Phase() != match.Ended {
		return ErrInSession
	}
	if _, ok := m.reg.Tournament(player); ok {
		return ErrInTournament
	}
	for _, q := range m.queues {
		if slices.Contains(q, player) {
			return ErrAlreadyQueued
		}
	}
	return nil
}

func (m *Manager) dequeueLocked(player string) {
	for mode, q := range m.queues {
		m.queues[mode] = slices.DeleteFunc(q, func(p string) bool { return p == player })
	}
}

func (m *Manager) createLocked(p1, p2 string, link *match.Link) (*match.Engine, error) {
	if e, ok := m.reg.SessionForPair(p1, p2); ok {
		if e.Phase() != match.Ended {
			return e, nil
		}
		m.reg.RemoveSession(e)
	}
	for _, p := range []string{p1, p2} {
		if e, ok := m.reg.SessionFor(p); ok {
			if e.Phase() != match.Ended {
				return nil, ErrInSession
			}
			m.reg.RemoveSession(e)
		}
	}

	var e *match.Engine
	e, err := match.New(uuid.NewString(),
		match.Player{ID: p1, Avatar: m.avatars[p1]},
		match.Player{ID: p2, Avatar: m.avatars[p2]},
		match.Options{
			Game:    m.cfg,
			Clock:   m.clock,
			Rand:    m.rand,
			Results: m.results,
			Link:    link,
			OnEnd:   func(store.MatchResult) { m.reg.RemoveSession(e) },
			Logger:  m.logger,
		})
	if err != nil {
		return nil, err
	}
	if err := m.reg.AddSession(e); err != nil {
		return nil, err
	}

	// Both players stop waiting and drop their invites the moment they
	// are paired.
	for _, p := range []string{p1, p2} {
		m.dequeueLocked(p)
		m.cancelInvitesLocked(p, "paired")
	}

	var offline []string
	for _, p := range []string{p1, p2} {
		conn, ok := m.reg.Conn(p)
		if !ok {
			offline = append(offline, p)
			continue
		}
		_ = e.Attach(p, conn)
	}

	attrs := []any{
		slog.String("session", e.ID()),
		slog.String("player1", p1),
		slog.String("player2", p2),
	}
	if link != nil {
		attrs = append(attrs, slog.String("tournament", link.TournamentID), slog.String("match", link.MatchID))
	}
	m.logger.Info("session created", attrs...)

	go e.Run(m.ctx)

	// An absent participant forfeits at once so brackets never stall
	// waiting on them.
	for _, p := range offline {
		m.logger.Info("participant offline at creation, forfeiting", slog.String("player", p))
		e.Disconnect(p)
	}
	return e, nil
}
