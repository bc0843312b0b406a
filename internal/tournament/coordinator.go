package tournament

import (
	"context"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"

	"github.com/HoudaChairi/Ft-transcendence/internal/match"
	"github.com/HoudaChairi/Ft-transcendence/internal/protocol"
)

// MatchCreator spawns the session for one bracket match
type MatchCreator interface {
	CreateMatch(p1, p2 string, link *match.Link) (*match.Engine, error)
}

// Membership tracks which bracket a player belongs to and reaches them
type Membership interface {
	SetTournament(player, bracketID string)
	ClearTournament(player, bracketID string)
	Send(player string, m protocol.Message) bool
}

// Options configures a Coordinator. Zero values get defaults.
type Options struct {
	Seeder    Seeder
	Clock     clockwork.Clock
	Logger    *slog.Logger
	InboxSize int
	// OnPhase observes every phase a bracket enters, in order
	OnPhase func(bracketID string, phase Phase)
}

// Stats counts brackets by phase
type Stats struct {
	Active    int
	Completed int
}

// Coordinator owns every bracket. All bracket state lives on the Run
// goroutine; everything else talks to it through the inbox.
type Coordinator struct {
	Inbox chan any

	matches MatchCreator
	members Membership
	seeder  Seeder
	clock   clockwork.Clock
	logger  *slog.Logger
	onPhase func(string, Phase)

	brackets map[string]*Bracket
	stopped  chan struct{}
}

type form struct {
	Players []string
	Reply   chan<- formResult
}

type formResult struct {
	ID  string
	Err error
}

type report struct {
	TournamentID string
	MatchID      string
	Winner       string
}

type snapshot struct {
	ID    string
	Reply chan<- snapshotResult
}

type snapshotResult struct {
	Bracket Bracket
	OK      bool
}

type list struct {
	Reply chan<- []Bracket
}

type prune struct {
	OlderThan time.Duration
	Reply     chan<- int
}

type stats struct {
	Reply chan<- Stats
}

// New creates a Coordinator. Call Run to start it.
func New(matches MatchCreator, members Membership, opts Options) *Coordinator {
	if opts.Seeder == nil {
		opts.Seeder = ArrivalSeeder{}
	}
	if opts.Clock == nil {
		opts.Clock = clockwork.NewRealClock()
	}
	if opts.Logger == nil {
		opts.Logger = slog.New(slog.DiscardHandler)
	}
	if opts.InboxSize <= 0 {
		opts.InboxSize = 256
	}
	return &Coordinator{
		Inbox:    make(chan any, opts.InboxSize),
		matches:  matches,
		members:  members,
		seeder:   opts.Seeder,
		clock:    opts.Clock,
		logger:   opts.Logger.With(slog.String("component", "tournament")),
		onPhase:  opts.OnPhase,
		brackets: make(map[string]*Bracket),
		stopped:  make(chan struct{}),
	}
}

// Run processes commands until ctx is cancelled
func (c *Coordinator) Run(ctx context.Context) {
	defer close(c.stopped)
	for {
		select {
		case <-ctx.Done():
			return
		case cmd := <-c.Inbox:
			c.handleCommand(cmd)
		}
	}
}

// FormBracket seeds players into a new bracket and starts its semifinals
func (c *Coordinator) FormBracket(players []string) (string, error) {
	reply := make(chan formResult, 1)
	if !c.send(form{Players: players, Reply: reply}) {
		return "", ErrStopped
	}
	select {
	case r := <-reply:
		return r.ID, r.Err
	case <-c.stopped:
		return "", ErrStopped
	}
}

// ReportMatchResult records a bracket match outcome. It never blocks:
// sessions call it while holding other locks, and the coordinator's own
// goroutine can trigger it through an immediate forfeit.
func (c *Coordinator) ReportMatchResult(tournamentID, matchID, winner string) {
	cmd := report{TournamentID: tournamentID, MatchID: matchID, Winner: winner}
	select {
	case c.Inbox <- cmd:
	default:
		go c.send(cmd)
	}
}

// Snapshot returns a copy of one bracket
func (c *Coordinator) Snapshot(id string) (Bracket, bool) {
	reply := make(chan snapshotResult, 1)
	if !c.send(snapshot{ID: id, Reply: reply}) {
		return Bracket{}, false
	}
	select {
	case r := <-reply:
		return r.Bracket, r.OK
	case <-c.stopped:
		return Bracket{}, false
	}
}

// Brackets returns copies of every known bracket
func (c *Coordinator) Brackets() []Bracket {
	reply := make(chan []Bracket, 1)
	if !c.send(list{Reply: reply}) {
		return nil
	}
	select {
	case r := <-reply:
		return r
	case <-c.stopped:
		return nil
	}
}

// PruneCompleted forgets brackets completed more than olderThan ago and
// returns how many were dropped.
func (c *Coordinator) PruneCompleted(olderThan time.Duration) int {
	reply := make(chan int, 1)
	if !c.send(prune{OlderThan: olderThan, Reply: reply}) {
		return 0
	}
	select {
	case n := <-reply:
		return n
	case <-c.stopped:
		return 0
	}
}

// Stats counts active and completed brackets
func (c *Coordinator) Stats() Stats {
	reply := make(chan Stats, 1)
	if !c.send(stats{Reply: reply}) {
		return Stats{}
	}
	select {
	case s := <-reply:
		return s
	case <-c.stopped:
		return Stats{}
	}
}

func (c *Coordinator) send(cmd any) bool {
	select {
	case c.Inbox <- cmd:
		return true
	case <-c.stopped:
		return false
	}
}

func (c *Coordinator) handleCommand(cmd any) {
	switch cmd := cmd.(type) {
	case form:
		id, err := c.handleForm(cmd.Players)
		cmd.Reply <- formResult{ID: id, Err: err}
	case report:
		c.handleReport(cmd)
	case snapshot:
		b, ok := c.brackets[cmd.ID]
		if !ok {
			cmd.Reply <- snapshotResult{}
			return
		}
		cmd.Reply <- snapshotResult{Bracket: b.clone(), OK: true}
	case list:
		out := make([]Bracket, 0, len(c.brackets))
		for _, b := range c.brackets {
			out = append(out, b.clone())
		}
		cmd.Reply <- out
	case prune:
		cmd.Reply <- c.handlePrune(cmd.OlderThan)
	case stats:
		var s Stats
		for _, b := range c.brackets {
			if b.Phase == Completed {
				s.Completed++
			} else {
				s.Active++
			}
		}
		cmd.Reply <- s
	default:
		c.logger.Warn("unknown command", slog.Any("command", cmd))
	}
}

func (c *Coordinator) handleForm(players []string) (string, error) {
	if !validGroup(players) {
		return "", ErrBadGroup
	}
	id := uuid.NewString()
	b := newBracket(id, c.seeder.Seed(players), c.clock.Now())
	c.brackets[id] = b
	for _, p := range b.Players {
		c.members.SetTournament(p, id)
	}
	c.logger.Info("bracket formed", slog.String("tournament", id), slog.Any("players", b.Players))
	c.enter(b)

	semis := b.begin()
	c.enter(b)
	c.broadcast(b, b.updateMessage())
	for _, m := range semis {
		c.spawn(b, m)
	}
	return id, nil
}

func (c *Coordinator) handleReport(r report) {
	b, ok := c.brackets[r.TournamentID]
	if !ok {
		c.logger.Warn("result for unknown bracket", slog.String("tournament", r.TournamentID))
		return
	}
	if err := b.record(r.MatchID, r.Winner); err != nil {
		// Duplicate reports land here and are ignored.
		c.logger.Debug("result ignored",
			slog.String("tournament", r.TournamentID),
			slog.String("match", r.MatchID),
			slog.Any("error", err))
		return
	}
	c.logger.Info("bracket match decided",
		slog.String("tournament", b.ID),
		slog.String("match", r.MatchID),
		slog.String("winner", r.Winner))

	before := b.Phase
	next := b.advance(c.clock.Now())
	if b.Phase != before {
		c.enter(b)
	}
	c.broadcast(b, b.updateMessage())

	if next != nil {
		c.spawn(b, next)
	}
	if b.Phase == Completed && before != Completed {
		c.complete(b)
	}
}

func (c *Coordinator) complete(b *Bracket) {
	c.broadcast(b, protocol.TournamentComplete{
		Type:         protocol.MsgTournamentComplete,
		TournamentID: b.ID,
		Winner:       b.Winner,
	})
	for _, p := range b.Players {
		c.members.ClearTournament(p, b.ID)
	}
	c.logger.Info("tournament complete", slog.String("tournament", b.ID), slog.String("winner", b.Winner))
}

// spawn starts the session for m. A match that cannot be created goes to
// player1 so the bracket keeps moving.
func (c *Coordinator) spawn(b *Bracket, m *Match) {
	for _, pair := range [][2]string{{m.Player1, m.Player2}, {m.Player2, m.Player1}} {
		c.members.Send(pair[0], protocol.MatchReady{
			Type:         protocol.MsgMatchReady,
			Opponent:     pair[1],
			TournamentID: b.ID,
			MatchID:      m.ID,
		})
	}
	link := &match.Link{TournamentID: b.ID, MatchID: m.ID, Reporter: c}
	if _, err := c.matches.CreateMatch(m.Player1, m.Player2, link); err != nil {
		c.logger.Error("bracket match could not start, awarding to player1",
			slog.String("tournament", b.ID),
			slog.String("match", m.ID),
			slog.Any("error", err))
		c.ReportMatchResult(b.ID, m.ID, m.Player1)
	}
}

func (c *Coordinator) handlePrune(olderThan time.Duration) int {
	cutoff := c.clock.Now().Add(-olderThan)
	n := 0
	for id, b := range c.brackets {
		if b.Phase == Completed && !b.CompletedAt.After(cutoff) {
			delete(c.brackets, id)
			n++
		}
	}
	if n > 0 {
		c.logger.Info("pruned brackets", slog.Int("count", n))
	}
	return n
}

func (c *Coordinator) enter(b *Bracket) {
	if c.onPhase != nil {
		c.onPhase(b.ID, b.Phase)
	}
}

func (c *Coordinator) broadcast(b *Bracket, m protocol.Message) {
	for _, p := range b.Players {
		c.members.Send(p, m)
	}
}
