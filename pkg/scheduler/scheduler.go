// Package scheduler runs named tasks on independent fixed periods and stops
// them together. A stop request is observed between units of work: a task
// already running finishes its unit unless the grace period runs out, after
// which its context is cancelled.
package scheduler

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/alim08/coingraph/pkg/logger"
	"github.com/alim08/coingraph/pkg/metrics"
	"go.uber.org/zap"
)

// State is the lifecycle position of the scheduler or of one task.
type State int32

const (
	StateStopped State = iota
	StateRunning
	StateStopping
)

func (s State) String() string {
	switch s {
	case StateStopped:
		return "stopped"
	case StateRunning:
		return "running"
	case StateStopping:
		return "stopping"
	default:
		return fmt.Sprintf("state(%d)", int32(s))
	}
}

var (
	ErrAlreadyStarted = errors.New("scheduler: already started")
	ErrGraceExceeded  = errors.New("scheduler: tasks did not stop within grace period")
)

// DefaultGrace bounds how long Stop waits before cancelling running work.
const DefaultGrace = 10 * time.Second

// Task is one periodic unit of work. Run is called, then the task sleeps
// Interval, until the scheduler stops.
type Task struct {
	Name         string
	Interval     time.Duration
	InitialDelay time.Duration
	Run          func(ctx context.Context) error
}

type Scheduler struct {
	tasks []Task
	grace time.Duration

	state  atomic.Int32
	states map[string]*atomic.Int32

	stopCh   chan struct{}
	stopOnce sync.Once
	cancel   context.CancelFunc
	wg       sync.WaitGroup
	done     chan struct{}
}

// New prepares a scheduler; nothing runs until Start.
func New(grace time.Duration, tasks ...Task) *Scheduler {
	if grace <= 0 {
		grace = DefaultGrace
	}
	s := &Scheduler{
		tasks:  tasks,
		grace:  grace,
		states: make(map[string]*atomic.Int32, len(tasks)),
		stopCh: make(chan struct{}),
		done:   make(chan struct{}),
	}
	for _, t := range tasks {
		s.states[t.Name] = new(atomic.Int32)
	}
	return s
}

// Start launches every task in its own goroutine and returns immediately.
// Cancelling ctx behaves like Stop without the grace deadline; work contexts
// keep ctx's values but are only cancelled by Stop.
func (s *Scheduler) Start(ctx context.Context) error {
	if err := s.validate(); err != nil {
		return err
	}
	if !s.state.CompareAndSwap(int32(StateStopped), int32(StateRunning)) {
		return ErrAlreadyStarted
	}

	workCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	s.cancel = cancel

	for _, t := range s.tasks {
		st := s.states[t.Name]
		st.Store(int32(StateRunning))
		s.wg.Add(1)
		go s.loop(workCtx, t, st)
	}

	go func() {
		select {
		case <-ctx.Done():
			s.signalStop()
		case <-s.stopCh:
		}
	}()

	go func() {
		s.wg.Wait()
		cancel()
		s.state.Store(int32(StateStopped))
		close(s.done)
	}()

	logger.Log.Info("scheduler started", zap.Int("tasks", len(s.tasks)))
	return nil
}

// Stop sets the shutdown flag once and waits for every task to exit. If the
// grace period passes first, running work is cancelled and ErrGraceExceeded
// is returned; Wait still reports when the stragglers are gone.
func (s *Scheduler) Stop() error {
	if State(s.state.Load()) == StateStopped && s.cancel == nil {
		return nil
	}
	s.signalStop()

	timer := time.NewTimer(s.grace)
	defer timer.Stop()
	select {
	case <-s.done:
		logger.Log.Info("scheduler stopped")
		return nil
	case <-timer.C:
		logger.Log.Warn("grace period exceeded, cancelling running tasks",
			zap.Duration("grace", s.grace),
			zap.Strings("running", s.busy()))
		s.cancel()
		return ErrGraceExceeded
	}
}

// Wait blocks until every task has exited.
func (s *Scheduler) Wait() {
	<-s.done
}

// Done is closed once every task has exited.
func (s *Scheduler) Done() <-chan struct{} {
	return s.done
}

func (s *Scheduler) State() State {
	return State(s.state.Load())
}

// TaskState reports one task's state; unknown names are StateStopped.
func (s *Scheduler) TaskState(name string) State {
	st, ok := s.states[name]
	if !ok {
		return StateStopped
	}
	return State(st.Load())
}

// States snapshots every task's state by name.
func (s *Scheduler) States() map[string]State {
	out := make(map[string]State, len(s.states))
	for name, st := range s.states {
		out[name] = State(st.Load())
	}
	return out
}

func (s *Scheduler) validate() error {
	seen := make(map[string]struct{}, len(s.tasks))
	for _, t := range s.tasks {
		if t.Name == "" {
			return errors.New("scheduler: task name is required")
		}
		if _, dup := seen[t.Name]; dup {
			return fmt.Errorf("scheduler: duplicate task %q", t.Name)
		}
		seen[t.Name] = struct{}{}
		if t.Run == nil {
			return fmt.Errorf("scheduler: task %q has no Run func", t.Name)
		}
		if t.Interval <= 0 {
			return fmt.Errorf("scheduler: task %q interval must be positive", t.Name)
		}
	}
	return nil
}

func (s *Scheduler) signalStop() {
	s.stopOnce.Do(func() {
		if !s.state.CompareAndSwap(int32(StateRunning), int32(StateStopping)) {
			return
		}
		for _, st := range s.states {
			st.CompareAndSwap(int32(StateRunning), int32(StateStopping))
		}
		close(s.stopCh)
	})
}

func (s *Scheduler) busy() []string {
	var names []string
	for name, st := range s.states {
		if State(st.Load()) != StateStopped {
			names = append(names, name)
		}
	}
	return names
}

func (s *Scheduler) loop(ctx context.Context, t Task, st *atomic.Int32) {
	defer s.wg.Done()
	defer st.Store(int32(StateStopped))

	if t.InitialDelay > 0 && !s.sleep(t.InitialDelay) {
		return
	}
	for {
		select {
		case <-s.stopCh:
			return
		default:
		}
		s.runOnce(ctx, t)
		if !s.sleep(t.Interval) {
			return
		}
	}
}

// sleep waits d and reports false if a stop arrived first.
func (s *Scheduler) sleep(d time.Duration) bool {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-s.stopCh:
		return false
	case <-timer.C:
		return true
	}
}

func (s *Scheduler) runOnce(ctx context.Context, t Task) {
	start := time.Now()
	var err error
	func() {
		defer func() {
			if r := recover(); r != nil {
				err = fmt.Errorf("panic: %v", r)
			}
		}()
		err = t.Run(ctx)
	}()

	metrics.TaskRuns.WithLabelValues(t.Name, metrics.Status(err)).Inc()
	metrics.TaskDuration.WithLabelValues(t.Name).Observe(time.Since(start).Seconds())
	if err != nil {
		logger.Log.Error("task run failed", zap.String("task", t.Name), zap.Error(err))
	}
}
