package match

import (
	"log/slog"
	"math"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"

	"github.com/HoudaChairi/Ft-transcendence/internal/config"
	"github.com/HoudaChairi/Ft-transcendence/internal/geom"
	"github.com/HoudaChairi/Ft-transcendence/internal/protocol"
	"github.com/HoudaChairi/Ft-transcendence/internal/store"
)

// Options configures an Engine. Zero values get defaults.
type Options struct {
	Game    config.Game
	Clock   clockwork.Clock
	Rand    Random
	Results ResultRecorder
	Link    *Link
	// OnEnd runs once, after the terminal broadcast, outside the session lock
	OnEnd  func(store.MatchResult)
	Logger *slog.Logger
}

// Engine owns one session's authoritative state and its tick loop
type Engine struct {
	id      string
	cfg     config.Game
	clock   clockwork.Clock
	rand    Random
	results ResultRecorder
	link    *Link
	onEnd   func(store.MatchResult)
	logger  *slog.Logger

	mu         sync.Mutex
	players    [2]Player
	paddles    [2]*Paddle
	ball       Ball
	scoreLeft  int
	scoreRight int
	phase      Phase
	lastTick   time.Time
	tick       uint64
	subs       map[string]Subscriber
	ready      chan struct{} // closed once both participants are attached
	isReady    bool
	done       chan struct{} // closed on entering Ended
	result     *store.MatchResult
}

// New creates a pending session for p1 (left) and p2 (right)
func New(id string, p1, p2 Player, opts Options) (*Engine, error) {
	if p1.ID == p2.ID {
		return nil, ErrSamePlayer
	}
	if opts.Game == (config.Game{}) {
		opts.Game = config.DefaultGame()
	}
	if opts.Clock == nil {
		opts.Clock = clockwork.NewRealClock()
	}
	if opts.Rand == nil {
		opts.Rand = DefaultRandom()
	}
	if opts.Logger == nil {
		opts.Logger = slog.New(slog.DiscardHandler)
	}
	g := opts.Game
	e := &Engine{
		id:      id,
		cfg:     g,
		clock:   opts.Clock,
		rand:    opts.Rand,
		results: opts.Results,
		link:    opts.Link,
		onEnd:   opts.OnEnd,
		logger: opts.Logger.With(
			slog.String("component", "match"),
			slog.String("session", id)),
		players: [2]Player{p1, p2},
		paddles: [2]*Paddle{
			newPaddle(p1.ID, RolePlayer1, -g.PaddleX, g),
			newPaddle(p2.ID, RolePlayer2, g.PaddleX, g),
		},
		subs:  make(map[string]Subscriber),
		ready: make(chan struct{}),
		done:  make(chan struct{}),
	}
	e.ball.Velocity = Serve(e.rand, g.MinDir, g.ServeSpeed())
	return e, nil
}

// ID returns the session id
func (e *Engine) ID() string { return e.id }

// Players returns the participants in role order
func (e *Engine) Players() [2]Player { return e.players }

// Link returns the tournament link, or nil for casual sessions
func (e *Engine) Link() *Link { return e.link }

// Done is closed when the session ends
func (e *Engine) Done() <-chan struct{} { return e.done }

// Has reports whether player participates in this session
func (e *Engine) Has(player string) bool {
	return e.index(player) >= 0
}

func (e *Engine) index(player string) int {
	for i, p := range e.players {
		if p.ID == player {
			return i
		}
	}
	return -1
}

func (e *Engine) opponent(player string) string {
	if e.players[0].ID == player {
		return e.players[1].ID
	}
	return e.players[0].ID
}

// Phase returns the current lifecycle stage
func (e *Engine) Phase() Phase {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.phase
}

// Result returns the outcome once the session has ended
func (e *Engine) Result() (store.MatchResult, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.result == nil {
		return store.MatchResult{}, false
	}
	return *e.result, true
}

// Attach subscribes a participant's connection to broadcasts. A second
// attach for the same player replaces the first. Once both participants
// are attached the run loop may start the game.
func (e *Engine) Attach(player string, sub Subscriber) error {
	if !e.Has(player) {
		return ErrNotParticipant
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	e.subs[player] = sub
	if !e.isReady && len(e.subs) == len(e.players) {
		e.isReady = true
		close(e.ready)
	}
	if e.phase == Running {
		sub.Send(e.startMessageLocked())
	}
	return nil
}

// Detach removes sub if it is still the player's current subscriber
func (e *Engine) Detach(player string, sub Subscriber) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if cur, ok := e.subs[player]; ok && cur == sub {
		delete(e.subs, player)
	}
}

// ApplyInput sets a paddle's direction. Movement happens on the next
// tick. Input from non-participants or outside Running is ignored.
func (e *Engine) ApplyInput(player string, dir protocol.Direction) {
	i := e.index(player)
	if i < 0 {
		return
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.phase != Running {
		return
	}
	e.paddles[i].Direction = dir
}

// Disconnect forfeits the session for player. It is a no-op for
// non-participants and for sessions that have already ended.
func (e *Engine) Disconnect(player string) {
	if !e.Has(player) {
		return
	}
	e.locked(func() func() {
		if e.phase == Ended {
			return nil
		}
		delete(e.subs, player)
		return e.endLocked(e.opponent(player), protocol.ReasonDisconnect)
	})
}

// Start moves a pending session to Running, serves and broadcasts
// game_start. It reports false if the session was not pending.
func (e *Engine) Start() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.phase != Pending {
		return false
	}
	e.phase = Running
	e.lastTick = e.clock.Now()
	e.ball = Ball{Velocity: Serve(e.rand, e.cfg.MinDir, e.cfg.ServeSpeed())}
	e.broadcastLocked(e.startMessageLocked())
	e.logger.Info("session started",
		slog.String("player1", e.players[0].ID),
		slog.String("player2", e.players[1].ID))
	return true
}

// Tick advances the simulation to now. It reports whether the session
// is still running afterwards.
func (e *Engine) Tick(now time.Time) bool {
	running := false
	e.locked(func() func() {
		if e.phase != Running {
			return nil
		}
		dt := math.Max(now.Sub(e.lastTick).Seconds(), 0)
		e.lastTick = now
		e.tick++

		for _, p := range e.paddles {
			if !p.integrate(dt, e.cfg) {
				e.logger.Warn("paddle move rejected", slog.String("player", p.Player))
			}
		}
		if winner, over := e.advanceBall(dt); over {
			return e.endLocked(winner, protocol.ReasonScore)
		}
		e.broadcastLocked(e.updateLocked())
		running = true
		return nil
	})
	return running
}

// fail ends the session after an internal fault without a winner
func (e *Engine) fail() {
	e.locked(func() func() {
		if e.phase == Ended {
			return nil
		}
		return e.endLocked("", protocol.ReasonInternalError)
	})
}

// advanceBall integrates the ball over dt and resolves walls, paddles
// and goals. It returns the winner once a side reaches the win score.
func (e *Engine) advanceBall(dt float64) (string, bool) {
	b := &e.ball
	prev := b.Position
	next := prev.Add(b.Velocity.Scale(dt))

	if limit := e.cfg.CourtHalfHeight; math.Abs(next.Y) >= limit {
		b.Velocity.Y = -math.Copysign(math.Abs(b.Velocity.Y), next.Y)
		next.Y = math.Copysign(limit, next.Y)
	}

	for _, p := range e.paddles {
		if y, ok := hitPaddle(p, prev, next, b.Velocity); ok {
			bounce(b, p, y, e.cfg)
			return "", false
		}
	}

	if math.Abs(next.X) < e.cfg.CourtHalfWidth {
		b.Position = next
		return "", false
	}

	if next.X > 0 {
		e.scoreLeft++
	} else {
		e.scoreRight++
	}
	e.ball = Ball{Velocity: Serve(e.rand, e.cfg.MinDir, e.cfg.ServeSpeed())}

	switch {
	case e.scoreLeft >= e.cfg.WinScore:
		return e.players[0].ID, true
	case e.scoreRight >= e.cfg.WinScore:
		return e.players[1].ID, true
	}
	return "", false
}

// endLocked moves the session to Ended and sends the terminal broadcast.
// The returned func persists, reports and runs OnEnd; callers run it
// after releasing the lock.
func (e *Engine) endLocked(winner, reason string) func() {
	e.phase = Ended
	res := store.MatchResult{
		SessionID:  e.id,
		Player1:    e.players[0].ID,
		Player2:    e.players[1].ID,
		Winner:     winner,
		Reason:     reason,
		ScoreLeft:  e.scoreLeft,
		ScoreRight: e.scoreRight,
		EndedAt:    e.clock.Now(),
	}
	if e.link != nil {
		res.TournamentID = e.link.TournamentID
		res.MatchID = e.link.MatchID
	}
	e.result = &res

	if reason != protocol.ReasonInternalError {
		e.broadcastLocked(e.updateLocked())
	}
	e.broadcastLocked(protocol.GameEnd{
		Type:       protocol.MsgGameEnd,
		SessionID:  e.id,
		Winner:     winner,
		Reason:     reason,
		ScoreLeft:  e.scoreLeft,
		ScoreRight: e.scoreRight,
	})
	close(e.done)

	e.logger.Info("session ended",
		slog.String("winner", winner),
		slog.String("reason", reason),
		slog.Int("score_left", e.scoreLeft),
		slog.Int("score_right", e.scoreRight))

	return func() {
		if reason != protocol.ReasonInternalError {
			if e.results != nil {
				e.results.Record(res)
			}
			if e.link != nil && e.link.Reporter != nil {
				e.link.Reporter.ReportMatchResult(e.link.TournamentID, e.link.MatchID, winner)
			}
		}
		if e.onEnd != nil {
			e.onEnd(res)
		}
	}
}

// locked runs fn under the session lock, then runs whatever fn returned
// with the lock released. A panic in fn still releases the lock.
func (e *Engine) locked(fn func() func()) {
	var after func()
	func() {
		e.mu.Lock()
		defer e.mu.Unlock()
		after = fn()
	}()
	if after != nil {
		after()
	}
}

func (e *Engine) broadcastLocked(m protocol.Message) {
	for _, sub := range e.subs {
		sub.Send(m)
	}
}

func (e *Engine) startMessageLocked() protocol.GameStart {
	m := protocol.GameStart{
		Type:      protocol.MsgGameStart,
		SessionID: e.id,
		Players: protocol.Players{
			Player1: protocol.PlayerInfo{ID: e.players[0].ID, Avatar: e.players[0].Avatar},
			Player2: protocol.PlayerInfo{ID: e.players[1].ID, Avatar: e.players[1].Avatar},
		},
	}
	if e.link != nil {
		m.Tournament = true
		m.TournamentID = e.link.TournamentID
		m.MatchID = e.link.MatchID
	}
	return m
}

func (e *Engine) updateLocked() protocol.Update {
	u := protocol.Update{
		Type:            protocol.MsgUpdate,
		Tick:            e.tick,
		PaddlePositions: make([]protocol.PaddlePosition, 0, len(e.paddles)),
		BallPosition:    e.ball.Position,
		BallDirection:   e.ball.Velocity,
		ScoreLeft:       e.scoreLeft,
		ScoreRight:      e.scoreRight,
		PaddleBoxes:     make(map[string]geom.Box, len(e.paddles)),
	}
	for _, p := range e.paddles {
		u.PaddlePositions = append(u.PaddlePositions, protocol.PaddlePosition{
			PlayerID:  p.Player,
			Role:      p.Role,
			Position:  p.Position,
			Direction: p.Direction,
		})
		u.PaddleBoxes[p.Role] = p.Box
	}
	return u
}

// State is a point-in-time copy of a session
type State struct {
	ID         string
	Phase      Phase
	Players    [2]Player
	Paddles    [2]Paddle
	Ball       Ball
	ScoreLeft  int
	ScoreRight int
	Tick       uint64
	Attached   int
}

// Snapshot copies the current state
func (e *Engine) Snapshot() State {
	e.mu.Lock()
	defer e.mu.Unlock()
	return State{
		ID:         e.id,
		Phase:      e.phase,
		Players:    e.players,
		Paddles:    [2]Paddle{*e.paddles[0], *e.paddles[1]},
		Ball:       e.ball,
		ScoreLeft:  e.scoreLeft,
		ScoreRight: e.scoreRight,
		Tick:       e.tick,
		Attached:   len(e.subs),
	}
}
