// Package sweep steps a set of servos across their range on a fixed cadence.
package sweep

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"servo-sweep/internal/pca9685"
	"servo-sweep/internal/servo"
)

var afterFn = time.After

// ErrNotIdle is returned by Start on a scheduler that already ran.
var ErrNotIdle = errors.New("sweep: scheduler already started")

// Controller applies specs to hardware. The scheduler owns it for the
// session and closes it exactly once. *pca9685.Controller satisfies it.
type Controller interface {
	ApplySpec(spec pca9685.PulseSource) error
	Close() error
}

// State is the scheduler lifecycle position.
type State int32

const (
	Idle State = iota
	Running
	Stopped
)

func (s State) String() string {
	switch s {
	case Idle:
		return "idle"
	case Running:
		return "running"
	case Stopped:
		return "stopped"
	}
	return fmt.Sprintf("State(%d)", int32(s))
}

type Config struct {
	// Step is added to every angle after each successful tick.
	Step float64
	// Delay separates the end of one tick from the start of the next.
	Delay time.Duration

	Logger logrus.FieldLogger
}

// ChannelState is one channel as of the last completed tick.
type ChannelState struct {
	Channel    int
	AppliedDeg float64
	NextDeg    float64
}

// Snapshot is a copy of the scheduler's progress, safe to read while it runs.
type Snapshot struct {
	State     State
	Ticks     uint64
	Channels  []ChannelState
	LastError string
	UpdatedAt time.Time
}

// Scheduler moves through Idle -> Running -> Stopped. Stopped is terminal;
// a new session needs a new Scheduler and a freshly opened controller.
type Scheduler struct {
	cfg   Config
	ctrl  Controller
	specs []*servo.Spec
	log   logrus.FieldLogger

	mu      sync.RWMutex
	state   State
	started bool
	snap    Snapshot
	err     error

	stopOnce sync.Once
	stopCh   chan struct{}

	doneOnce sync.Once
	done     chan struct{}

	closeOnce sync.Once
	closeErr  error
}

// New registers specs in application order. Every spec must be calibrated.
func New(ctrl Controller, specs []*servo.Spec, cfg Config) (*Scheduler, error) {
	if ctrl == nil {
		return nil, fmt.Errorf("sweep: controller is nil")
	}
	if len(specs) == 0 {
		return nil, fmt.Errorf("%w: no servos registered", servo.ErrConfiguration)
	}
	for i, sp := range specs {
		if sp == nil {
			return nil, fmt.Errorf("%w: spec %d is nil", servo.ErrConfiguration, i)
		}
		if !sp.Ready() {
			return nil, fmt.Errorf("%w: channel %d is not calibrated", servo.ErrConfiguration, sp.Channel())
		}
	}
	if !(cfg.Step > 0) || math.IsInf(cfg.Step, 0) {
		return nil, fmt.Errorf("%w: step %g deg must be > 0", servo.ErrConfiguration, cfg.Step)
	}
	if cfg.Delay <= 0 {
		return nil, fmt.Errorf("%w: delay %s must be > 0", servo.ErrConfiguration, cfg.Delay)
	}
	if cfg.Logger == nil {
		cfg.Logger = logrus.StandardLogger()
	}

	s := &Scheduler{
		cfg:    cfg,
		ctrl:   ctrl,
		specs:  append([]*servo.Spec(nil), specs...),
		log:    cfg.Logger,
		stopCh: make(chan struct{}),
		done:   make(chan struct{}),
	}
	s.snap.Channels = make([]ChannelState, len(s.specs))
	for i, sp := range s.specs {
		s.snap.Channels[i] = ChannelState{Channel: sp.Channel(), NextDeg: sp.Angle()}
	}
	return s, nil
}

// Start runs the first tick immediately on the loop goroutine and returns.
// The loop ends on Stop, on ctx cancellation, or on the first failed tick.
func (s *Scheduler) Start(ctx context.Context) error {
	s.mu.Lock()
	if s.state != Idle {
		s.mu.Unlock()
		return ErrNotIdle
	}
	s.state = Running
	s.started = true
	s.snap.State = Running
	s.mu.Unlock()

	go s.run(ctx)
	return nil
}

func (s *Scheduler) run(ctx context.Context) {
	defer s.finish()

	for tick := uint64(1); ; tick++ {
		select {
		case <-s.stopCh:
			return
		case <-ctx.Done():
			s.log.Debug("sweep: context canceled")
			return
		default:
		}

		if err := s.tick(tick); err != nil {
			s.fail(err)
			return
		}

		select {
		case <-s.stopCh:
			return
		case <-ctx.Done():
			s.log.Debug("sweep: context canceled")
			return
		case <-afterFn(s.cfg.Delay):
		}
	}
}

// tick applies every spec in order and, only if all succeeded, advances
// every angle. A failure leaves earlier channels where they were moved.
func (s *Scheduler) tick(n uint64) error {
	applied := make([]float64, len(s.specs))
	for i, sp := range s.specs {
		applied[i] = sp.Angle()
		if err := s.ctrl.ApplySpec(sp); err != nil {
			return fmt.Errorf("sweep: tick %d channel %d: %w", n, sp.Channel(), err)
		}
	}
	for _, sp := range s.specs {
		sp.IncrementAngle(s.cfg.Step)
	}

	s.mu.Lock()
	s.snap.Ticks = n
	for i, sp := range s.specs {
		s.snap.Channels[i] = ChannelState{Channel: sp.Channel(), AppliedDeg: applied[i], NextDeg: sp.Angle()}
	}
	s.snap.UpdatedAt = time.Now().UTC()
	channels := append([]ChannelState(nil), s.snap.Channels...)
	s.mu.Unlock()

	s.log.WithFields(logrus.Fields{
		"tick":     n,
		"channels": channels,
	}).Debug("sweep: tick applied")
	return nil
}

func (s *Scheduler) fail(err error) {
	s.mu.Lock()
	s.err = err
	s.state = Stopped
	s.snap.State = Stopped
	s.snap.LastError = err.Error()
	s.snap.UpdatedAt = time.Now().UTC()
	s.mu.Unlock()

	kind := "configuration"
	if pca9685.IsDeviceError(err) {
		kind = "device"
	}
	s.log.WithError(err).WithField("kind", kind).Error("sweep: stopped on failed tick")
}

func (s *Scheduler) finish() {
	s.mu.Lock()
	s.state = Stopped
	s.snap.State = Stopped
	s.mu.Unlock()

	if err := s.closeController(); err != nil {
		s.log.WithError(err).Warn("sweep: controller close failed")
	}
	s.doneOnce.Do(func() { close(s.done) })
}

// closeController returns the close error to the first caller only.
func (s *Scheduler) closeController() error {
	var err error
	s.closeOnce.Do(func() {
		s.closeErr = s.ctrl.Close()
		err = s.closeErr
	})
	return err
}

// Stop cancels any pending tick, waits for a running tick to finish and
// closes the controller. After Stop returns no further tick fires. Stop is
// idempotent and safe to call from any goroutine.
func (s *Scheduler) Stop() {
	s.stopOnce.Do(func() { close(s.stopCh) })

	s.mu.Lock()
	started := s.started
	s.state = Stopped
	s.snap.State = Stopped
	s.mu.Unlock()

	if !started {
		if err := s.closeController(); err != nil {
			s.log.WithError(err).Warn("sweep: controller close failed")
		}
		s.doneOnce.Do(func() { close(s.done) })
	}
	<-s.done
}

// Done is closed once the loop has exited and the controller is closed.
func (s *Scheduler) Done() <-chan struct{} { return s.done }

// Wait blocks until Done and returns Err.
func (s *Scheduler) Wait() error {
	<-s.done
	return s.Err()
}

// Err is the error that stopped the loop, or nil after a clean stop.
func (s *Scheduler) Err() error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.err
}

// CloseErr is the error, if any, from closing the controller.
func (s *Scheduler) CloseErr() error {
	select {
	case <-s.done:
	default:
		return nil
	}
	return s.closeErr
}

// State reports the current lifecycle state.
func (s *Scheduler) State() State {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.state
}

// Snapshot returns the tick count, per-channel angles and last error.
func (s *Scheduler) Snapshot() Snapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()
	snap := s.snap
	snap.State = s.state
	snap.Channels = append([]ChannelState(nil), s.snap.Channels...)
	return snap
}
