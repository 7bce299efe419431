package calsync

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
)

// ErrSchedulerStopped is returned by RunNow after Stop.
var ErrSchedulerStopped = errors.New("scheduler stopped")

// Syncer runs one sync cycle.
type Syncer interface {
	PerformSync(ctx context.Context, trigger Trigger) (CycleReport, error)
}

// Outcome is the result of a cycle run by the Scheduler.
type Outcome struct {
	Trigger Trigger
	Report  CycleReport
	Err     error
}

type request struct {
	trigger Trigger
	reply   chan Outcome
}

// Scheduler drives cycles from a cron timer, an initial delayed run and
// manual triggers. All of them go through one consumer goroutine over an
// unbuffered channel: a trigger that arrives while a cycle runs is dropped,
// never queued.
type Scheduler struct {
	syncer       Syncer
	cron         *cron.Cron
	initialDelay time.Duration

	requests chan request
	done     chan struct{}
	wg       sync.WaitGroup

	mu        sync.Mutex
	observers []func(Outcome)
	started   bool
	stopOnce  sync.Once
}

// NewScheduler creates a Scheduler running syncer on the cron spec in loc.
// A negative initialDelay disables the initial run.
func NewScheduler(syncer Syncer, spec string, initialDelay time.Duration, loc *time.Location) (*Scheduler, error) {
	if loc == nil {
		loc = time.UTC
	}
	s := &Scheduler{
		syncer:       syncer,
		initialDelay: initialDelay,
		requests:     make(chan request),
		done:         make(chan struct{}),
		cron:         cron.New(cron.WithLocation(loc), cron.WithLogger(cron.PrintfLogger(log.Default()))),
	}
	if _, err := s.cron.AddFunc(spec, func() {
		if !s.Trigger(TriggerScheduled) {
			log.Printf("Scheduled sync skipped: a cycle is already running")
		}
	}); err != nil {
		return nil, fmt.Errorf("failed to parse sync schedule %q: %w", spec, err)
	}
	return s, nil
}

// OnOutcome registers fn to receive every cycle outcome. It is called from
// the consumer goroutine.
func (s *Scheduler) OnOutcome(fn func(Outcome)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.observers = append(s.observers, fn)
}

// Start launches the consumer, the initial run and the cron timer. Cycles
// run with ctx; cancelling it stops the consumer like Stop does.
func (s *Scheduler) Start(ctx context.Context) {
	s.mu.Lock()
	if s.started {
		s.mu.Unlock()
		return
	}
	s.started = true
	s.mu.Unlock()

	var initial <-chan time.Time
	if s.initialDelay >= 0 {
		t := time.NewTimer(s.initialDelay)
		initial = t.C
	}

	s.wg.Add(1)
	go s.consume(ctx, initial)
	s.cron.Start()
}

func (s *Scheduler) consume(ctx context.Context, initial <-chan time.Time) {
	defer s.wg.Done()
	for {
		select {
		case <-ctx.Done():
			return
		case <-s.done:
			return
		case <-initial:
			initial = nil
			s.run(ctx, request{trigger: TriggerInitial})
		case req := <-s.requests:
			s.run(ctx, req)
		}
	}
}

func (s *Scheduler) run(ctx context.Context, req request) {
	report, err := s.syncer.PerformSync(ctx, req.trigger)
	out := Outcome{Trigger: req.trigger, Report: report, Err: err}
	if err != nil {
		log.Printf("Sync cycle (%s) failed: %v", req.trigger, err)
	}

	s.mu.Lock()
	observers := append([]func(Outcome){}, s.observers...)
	s.mu.Unlock()
	for _, fn := range observers {
		fn(out)
	}

	if req.reply != nil {
		req.reply <- out
	}
}

// Trigger asks for a cycle without waiting for it. It returns false when
// the consumer is busy or stopped, in which case nothing happens.
func (s *Scheduler) Trigger(trigger Trigger) bool {
	return s.offer(request{trigger: trigger})
}

// RunNow runs a manual cycle and waits for its outcome. It returns
// ErrSyncInProgress when a cycle is already running.
func (s *Scheduler) RunNow(ctx context.Context) (CycleReport, error) {
	select {
	case <-s.done:
		return CycleReport{}, ErrSchedulerStopped
	default:
	}

	reply := make(chan Outcome, 1)
	if !s.offer(request{trigger: TriggerManual, reply: reply}) {
		return CycleReport{}, ErrSyncInProgress
	}
	select {
	case out := <-reply:
		return out.Report, out.Err
	case <-ctx.Done():
		return CycleReport{}, ctx.Err()
	}
}

func (s *Scheduler) offer(req request) bool {
	select {
	case s.requests <- req:
		return true
	default:
		return false
	}
}

// Stop halts future ticks and waits for a running cycle to finish. A cycle
// in flight is never interrupted.
func (s *Scheduler) Stop() {
	s.stopOnce.Do(func() {
		<-s.cron.Stop().Done()
		close(s.done)
	})
	s.wg.Wait()
}
