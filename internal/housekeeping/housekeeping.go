// Package housekeeping runs the periodic server chores: a stats log line
// and pruning of finished brackets.
package housekeeping

import (
	"log/slog"
	"time"

	"github.com/go-co-op/gocron/v2"
	"github.com/jonboulle/clockwork"

	"github.com/HoudaChairi/Ft-transcendence/internal/matchmaking"
	"github.com/HoudaChairi/Ft-transcendence/internal/registry"
	"github.com/HoudaChairi/Ft-transcendence/internal/store"
	"github.com/HoudaChairi/Ft-transcendence/internal/tournament"
)

// Sources are the components whose counters are reported. Nil fields are
// skipped.
type Sources struct {
	Registry    interface{ Stats() registry.Stats }
	Matchmaking interface{ Stats() matchmaking.Stats }
	Tournaments interface {
		Stats() tournament.Stats
		PruneCompleted(olderThan time.Duration) int
	}
	Recorder interface{ Stats() store.RecorderStats }
}

// Options sets job cadence. Zero values get defaults.
type Options struct {
	MetricsEvery time.Duration
	PruneEvery   time.Duration
	Retention    time.Duration
	Clock        clockwork.Clock
	Logger       *slog.Logger
}

// Report is one sample of every counter
type Report struct {
	Registry    registry.Stats
	Matchmaking matchmaking.Stats
	Tournaments tournament.Stats
	Recorder    store.RecorderStats
}

// Service owns the scheduler
type Service struct {
	src       Sources
	retention time.Duration
	sched     gocron.Scheduler
	logger    *slog.Logger

	observe func(Report)
}

// New registers the jobs. Call Start to begin running them.
func New(src Sources, opts Options) (*Service, error) {
	if opts.MetricsEvery <= 0 {
		opts.MetricsEvery = 30 * time.Second
	}
	if opts.PruneEvery <= 0 {
		opts.PruneEvery = time.Minute
	}
	if opts.Retention <= 0 {
		opts.Retention = 10 * time.Minute
	}
	if opts.Clock == nil {
		opts.Clock = clockwork.NewRealClock()
	}
	if opts.Logger == nil {
		opts.Logger = slog.New(slog.DiscardHandler)
	}

	sched, err := gocron.NewScheduler(gocron.WithClock(opts.Clock))
	if err != nil {
		return nil, err
	}
	s := &Service{
		src:       src,
		retention: opts.Retention,
		sched:     sched,
		logger:    opts.Logger.With(slog.String("component", "housekeeping")),
	}

	jobs := []struct {
		name  string
		every time.Duration
		fn    func()
	}{
		{"metrics", opts.MetricsEvery, s.LogMetrics},
		{"prune-brackets", opts.PruneEvery, func() { s.Prune() }},
	}
	for _, j := range jobs {
		_, err := sched.NewJob(
			gocron.DurationJob(j.every),
			gocron.NewTask(j.fn),
			gocron.WithName(j.name),
			gocron.WithSingletonMode(gocron.LimitModeReschedule),
		)
		if err != nil {
			_ = sched.Shutdown()
			return nil, err
		}
	}
	return s, nil
}

func (s *Service) Start() {
	s.sched.Start()
}

// Shutdown stops the scheduler and waits for running jobs
func (s *Service) Shutdown() error {
	return s.sched.Shutdown()
}

// Sample reads every configured counter
func (s *Service) Sample() Report {
	var r Report
	if s.src.Registry != nil {
		r.Registry = s.src.Registry.Stats()
	}
	if s.src.Matchmaking != nil {
		r.Matchmaking = s.src.Matchmaking.Stats()
	}
	if s.src.Tournaments != nil {
		r.Tournaments = s.src.Tournaments.Stats()
	}
	if s.src.Recorder != nil {
		r.Recorder = s.src.Recorder.Stats()
	}
	return r
}

func (s *Service) LogMetrics() {
	r := s.Sample()
	s.logger.Info("server stats",
		slog.Group("registry",
			slog.Int("connections", r.Registry.Connections),
			slog.Int("sessions", r.Registry.Sessions),
			slog.Int("in_tournament", r.Registry.InTournament)),
		slog.Group("queues",
			slog.Int("casual", r.Matchmaking.Casual),
			slog.Int("tournament", r.Matchmaking.Tournament),
			slog.Int("invites", r.Matchmaking.PendingInvites)),
		slog.Group("brackets",
			slog.Int("active", r.Tournaments.Active),
			slog.Int("completed", r.Tournaments.Completed)),
		slog.Group("results",
			slog.Int64("written", r.Recorder.Written),
			slog.Int64("failed", r.Recorder.Failed),
			slog.Int64("dropped", r.Recorder.Dropped),
			slog.Int("pending", r.Recorder.Pending)))
	if s.observe != nil {
		s.observe(r)
	}
}

// Prune drops brackets completed longer ago than the retention window
func (s *Service) Prune() int {
	if s.src.Tournaments == nil {
		return 0
	}
	return s.src.Tournaments.PruneCompleted(s.retention)
}
