// Package scheduler runs deadline-driven work off a persistent queue.
//
// A Source exposes the earliest pending item; the scheduler sleeps until
// its deadline, fires it, and asks again. Writers that may have created
// an earlier deadline call Arm to interrupt the sleep. The loop re-reads
// the source on every wake, so a spurious Arm is harmless.
package scheduler

import (
	"context"
	"sync"
	"time"

	logx "github.com/Azelphur/Monord/pkg/logx"
)

// Item is one unit of pending work.
type Item struct {
	ID int64
	At time.Time
}

// Source is the persistent queue behind a scheduler.
type Source interface {
	// Next returns the item with the earliest deadline, or nil when the
	// queue is empty.
	Next(ctx context.Context) (*Item, error)
	// Fire processes an item whose deadline has passed. Fire must make the
	// item stop appearing in Next, otherwise the loop will fire it again.
	Fire(ctx context.Context, item Item) error
}

type Config struct {
	// Poll caps how long the loop sleeps before re-reading the source.
	Poll time.Duration
	// Retry is the backoff after a Next or Fire error.
	Retry time.Duration
}

// Scheduler drives a single Source. Safe for concurrent use.
type Scheduler struct {
	mu sync.Mutex

	name string
	src  Source
	cfg  Config
	log  logx.Logger

	wakeCh   chan struct{} // buffered(1): single-flight arm
	stopCh   chan struct{}
	stopDone chan struct{}
}

func New(name string, src Source, cfg Config, log logx.Logger) *Scheduler {
	if log.IsZero() {
		log = logx.Nop()
	}
	if cfg.Poll <= 0 {
		cfg.Poll = time.Second
	}
	if cfg.Retry <= 0 {
		cfg.Retry = 5 * time.Second
	}
	return &Scheduler{
		name:   name,
		src:    src,
		cfg:    cfg,
		log:    log.With(logx.String("sched", name)),
		wakeCh: make(chan struct{}, 1),
	}
}

// Arm wakes the loop so it re-reads the source. Non-blocking; concurrent
// calls collapse into one wake.
func (s *Scheduler) Arm() {
	select {
	case s.wakeCh <- struct{}{}:
	default:
	}
}

// Start is idempotent while running.
func (s *Scheduler) Start(ctx context.Context) {
	if ctx == nil {
		ctx = context.Background()
	}
	s.mu.Lock()
	if s.stopCh != nil {
		s.mu.Unlock()
		return
	}
	s.stopCh = make(chan struct{})
	s.stopDone = make(chan struct{})
	stopCh, stopDone := s.stopCh, s.stopDone
	s.mu.Unlock()

	go func() {
		defer close(stopDone)
		s.run(ctx, stopCh)
	}()
}

// Stop halts the loop and waits until it has exited or ctx expires.
func (s *Scheduler) Stop(ctx context.Context) {
	if ctx == nil {
		ctx = context.Background()
	}
	s.mu.Lock()
	stopCh, stopDone := s.stopCh, s.stopDone
	s.stopCh, s.stopDone = nil, nil
	s.mu.Unlock()
	if stopCh == nil {
		return
	}
	close(stopCh)
	select {
	case <-stopDone:
	case <-ctx.Done():
	}
}

func (s *Scheduler) run(ctx context.Context, stopCh <-chan struct{}) {
	for {
		// fast-exit so stop wins over pending work
		select {
		case <-ctx.Done():
			return
		case <-stopCh:
			return
		default:
		}

		item, err := s.src.Next(ctx)
		if err != nil {
			s.log.Warn("scheduler next failed", logx.Any("err", err))
			if !s.sleep(ctx, stopCh, s.cfg.Retry) {
				return
			}
			continue
		}

		if item == nil {
			// Queue drained. Park until something arms us.
			select {
			case <-ctx.Done():
				return
			case <-stopCh:
				return
			case <-s.wakeCh:
			}
			continue
		}

		if wait := time.Until(item.At); wait > 0 {
			if wait > s.cfg.Poll {
				wait = s.cfg.Poll
			}
			if !s.sleep(ctx, stopCh, wait) {
				return
			}
			// Re-read: an Arm during the sleep may have surfaced an
			// earlier deadline.
			continue
		}

		if err := s.src.Fire(ctx, *item); err != nil {
			s.log.Warn("scheduler fire failed", logx.Int64("id", item.ID), logx.Any("err", err))
			if !s.sleep(ctx, stopCh, s.cfg.Retry) {
				return
			}
		}
	}
}

// sleep waits up to d, returning early on an Arm. False means stop.
func (s *Scheduler) sleep(ctx context.Context, stopCh <-chan struct{}, d time.Duration) bool {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-stopCh:
		return false
	case <-s.wakeCh:
		return true
	case <-t.C:
		return true
	}
}
