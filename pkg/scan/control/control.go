// Package control provides the in-memory run state shared by every worker of
// a fuzzing run: running, paused or stopped.
package control

import (
	"context"
	"os"
	"os/signal"
	"sync"

	"github.com/rs/zerolog/log"
)

// State represents the current state of a run
type State int

const (
	StateRunning State = iota
	StatePaused
	StateStopped
)

// String returns the string representation of the state
func (s State) String() string {
	switch s {
	case StateRunning:
		return "running"
	case StatePaused:
		return "paused"
	case StateStopped:
		return "stopped"
	default:
		return "unknown"
	}
}

// RunControl is the global stop and pause switch of a run. It is safe for
// concurrent use by multiple goroutines.
type RunControl struct {
	state  State
	reason string
	mu     sync.Mutex

	// pauseCond is used to block workers when paused
	pauseCond *sync.Cond

	// ctx is cancelled when the run is stopped
	ctx     context.Context
	cancel  context.CancelFunc
	unwatch func() bool
}

// New creates a running control that stops when parent is done.
func New(parent context.Context) *RunControl {
	if parent == nil {
		parent = context.Background()
	}
	ctx, cancel := context.WithCancel(parent)
	rc := &RunControl{
		state:  StateRunning,
		ctx:    ctx,
		cancel: cancel,
	}
	rc.pauseCond = sync.NewCond(&rc.mu)
	rc.unwatch = context.AfterFunc(ctx, func() {
		rc.Stop("context done")
	})
	return rc
}

// Close releases the context without marking the run as stopped.
func (rc *RunControl) Close() {
	rc.unwatch()
	rc.cancel()
}

// Context is cancelled once the run is stopped.
func (rc *RunControl) Context() context.Context {
	return rc.ctx
}

func (rc *RunControl) State() State {
	rc.mu.Lock()
	defer rc.mu.Unlock()
	return rc.state
}

// Reason returns why the run was stopped, empty while it is not.
func (rc *RunControl) Reason() string {
	rc.mu.Lock()
	defer rc.mu.Unlock()
	return rc.reason
}

// Pause makes workers wait at their next checkpoint.
func (rc *RunControl) Pause() {
	rc.mu.Lock()
	defer rc.mu.Unlock()
	if rc.state != StateRunning {
		return
	}
	rc.state = StatePaused
	log.Info().Msg("Run paused")
}

// Resume unblocks paused workers.
func (rc *RunControl) Resume() {
	rc.mu.Lock()
	defer rc.mu.Unlock()
	if rc.state == StateStopped {
		return
	}
	if rc.state == StatePaused {
		rc.state = StateRunning
		rc.pauseCond.Broadcast()
		log.Info().Msg("Run resumed")
	}
}

// Stop ends the run. Only the first reason is kept.
func (rc *RunControl) Stop(reason string) {
	rc.mu.Lock()
	if rc.state == StateStopped {
		rc.mu.Unlock()
		return
	}
	rc.state = StateStopped
	rc.reason = reason
	rc.pauseCond.Broadcast()
	rc.mu.Unlock()

	rc.cancel()
	log.Info().Str("reason", reason).Msg("Stopping run")
}

func (rc *RunControl) IsStopped() bool {
	return rc.State() == StateStopped
}

// Checkpoint blocks while the run is paused and reports whether work should
// continue. Workers call it between iterations, never in the middle of a
// request.
func (rc *RunControl) Checkpoint(ctx context.Context) bool {
	if ctx.Err() != nil {
		return false
	}

	rc.mu.Lock()
	defer rc.mu.Unlock()

	if rc.state == StatePaused {
		done := make(chan struct{})
		defer close(done)
		go func() {
			select {
			case <-ctx.Done():
				// Taking the lock guarantees the waiter is parked in Wait.
				rc.mu.Lock()
				rc.pauseCond.Broadcast()
				rc.mu.Unlock()
			case <-done:
			}
		}()
		for rc.state == StatePaused && ctx.Err() == nil {
			rc.pauseCond.Wait()
		}
	}

	return rc.state == StateRunning && ctx.Err() == nil
}

// StopOnSignal stops the run on the first of signals. The returned function
// stops listening.
func (rc *RunControl) StopOnSignal(signals ...os.Signal) func() {
	ch := make(chan os.Signal, 1)
	signal.Notify(ch, signals...)
	done := make(chan struct{})
	go func() {
		select {
		case sig := <-ch:
			rc.Stop("received " + sig.String())
		case <-done:
		}
	}()
	var once sync.Once
	return func() {
		once.Do(func() {
			signal.Stop(ch)
			close(done)
		})
	}
}

// PauseOnSignals pauses the run whenever pause arrives and resumes it on
// resume. The returned function stops listening.
func (rc *RunControl) PauseOnSignals(pause, resume os.Signal) func() {
	ch := make(chan os.Signal, 2)
	signal.Notify(ch, pause, resume)
	done := make(chan struct{})
	go func() {
		for {
			select {
			case sig := <-ch:
				if sig == pause {
					rc.Pause()
				} else {
					rc.Resume()
				}
			case <-rc.ctx.Done():
				return
			case <-done:
				return
			}
		}
	}()
	var once sync.Once
	return func() {
		once.Do(func() {
			signal.Stop(ch)
			close(done)
		})
	}
}
