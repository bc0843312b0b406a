package store

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/jonboulle/clockwork"
)

const (
	recorderQueueSize    = 1024
	recorderAttempts     = 3
	recorderBackoff      = 200 * time.Millisecond
	recorderWriteTimeout = 5 * time.Second
)

// RecorderStats counts what the recorder has done so far
type RecorderStats struct {
	Written int64
	Failed  int64
	Dropped int64
	Pending int
}

// RecorderOption configures a Recorder
type RecorderOption func(*Recorder)

// WithBackoff sets the initial retry delay
func WithBackoff(d time.Duration) RecorderOption {
	return func(r *Recorder) { r.backoff = d }
}

// WithQueueSize sets the number of results that may wait for the writer
func WithQueueSize(n int) RecorderOption {
	return func(r *Recorder) { r.queue = make(chan MatchResult, n) }
}

// Recorder persists match results on a background writer so the tick
// loop that produced them never waits on storage.
type Recorder struct {
	sink    ResultSink
	clock   clockwork.Clock
	logger  *slog.Logger
	backoff time.Duration

	queue chan MatchResult
	stop  chan struct{}
	once  sync.Once
	wg    sync.WaitGroup

	written atomic.Int64
	failed  atomic.Int64
	dropped atomic.Int64
}

// NewRecorder starts the background writer
func NewRecorder(sink ResultSink, clock clockwork.Clock, logger *slog.Logger, opts ...RecorderOption) *Recorder {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	r := &Recorder{
		sink:    sink,
		clock:   clock,
		logger:  logger.With(slog.String("component", "recorder")),
		backoff: recorderBackoff,
		queue:   make(chan MatchResult, recorderQueueSize),
		stop:    make(chan struct{}),
	}
	for _, opt := range opts {
		opt(r)
	}
	r.wg.Add(1)
	go r.writer()
	return r
}

// Record enqueues a result. It never blocks; when the queue is full the
// result is dropped and logged.
func (r *Recorder) Record(res MatchResult) {
	select {
	case <-r.stop:
		r.dropped.Add(1)
		r.logger.Warn("recorder closed, dropping result", slog.String("session", res.SessionID))
		return
	default:
	}
	select {
	case r.queue <- res:
	default:
		r.dropped.Add(1)
		r.logger.Warn("result queue full, dropping result", slog.String("session", res.SessionID))
	}
}

// Stats returns the current counters
func (r *Recorder) Stats() RecorderStats {
	return RecorderStats{
		Written: r.written.Load(),
		Failed:  r.failed.Load(),
		Dropped: r.dropped.Load(),
		Pending: len(r.queue),
	}
}

// Close stops accepting results and waits for queued ones to be written
func (r *Recorder) Close() {
	r.once.Do(func() { close(r.stop) })
	r.wg.Wait()
}

func (r *Recorder) writer() {
	defer r.wg.Done()
	for {
		select {
		case res := <-r.queue:
			r.persist(res)
		case <-r.stop:
			for {
				select {
				case res := <-r.queue:
					r.persist(res)
				default:
					return
				}
			}
		}
	}
}

func (r *Recorder) persist(res MatchResult) {
	delay := r.backoff
	var err error
	for attempt := 1; attempt <= recorderAttempts; attempt++ {
		ctx, cancel := context.WithTimeout(context.Background(), recorderWriteTimeout)
		err = r.sink.PersistMatchResult(ctx, res)
		cancel()
		if err == nil {
			r.written.Add(1)
			return
		}
		if attempt < recorderAttempts {
			r.logger.Warn("persist failed, retrying",
				slog.String("session", res.SessionID),
				slog.Int("attempt", attempt),
				slog.Any("error", err))
			<-r.clock.After(delay)
			delay *= 2
		}
	}
	r.failed.Add(1)
	r.logger.Error("persist failed, giving up",
		slog.String("session", res.SessionID),
		slog.String("winner", res.Winner),
		slog.Any("error", err))
}
