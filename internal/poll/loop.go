// Package poll provides the shared run loop for background workers.
// Both the scoring pipeline and the outbox dispatcher are ticks of a
// Loop: wait out a warmup, then run a pass per interval until stopped.
package poll

import (
	"context"
	"log"
	"time"
)

// Pass is one unit of background work. A returned error is logged and
// followed by the cooldown delay instead of the normal interval.
type Pass func(ctx context.Context) error

// Loop runs a Pass on a fixed cadence until stopped.
type Loop struct {
	Name     string
	Warmup   time.Duration
	Interval time.Duration
	Cooldown time.Duration
	Run      Pass

	stopCh chan struct{}
	doneCh chan struct{}
}

// Start launches the loop goroutine. It returns immediately.
func (l *Loop) Start() {
	l.stopCh = make(chan struct{})
	l.doneCh = make(chan struct{})

	go func() {
		defer close(l.doneCh)

		if l.Warmup > 0 {
			select {
			case <-time.After(l.Warmup):
			case <-l.stopCh:
				return
			}
		}

		for {
			delay := l.Interval
			if err := l.runOnce(); err != nil {
				log.Printf("%s pass failed: %v", l.Name, err)
				if l.Cooldown > 0 {
					delay = l.Cooldown
				}
			}

			select {
			case <-time.After(delay):
			case <-l.stopCh:
				return
			}
		}
	}()
}

// runOnce runs a single pass with a context that is cancelled if the
// loop is stopped mid-pass.
func (l *Loop) runOnce() error {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	go func() {
		select {
		case <-l.stopCh:
			cancel()
		case <-ctx.Done():
		}
	}()

	return l.Run(ctx)
}

// Stop signals the loop and waits for the current pass to finish, up
// to the given timeout.
func (l *Loop) Stop(timeout time.Duration) {
	if l.stopCh == nil {
		return
	}
	close(l.stopCh)

	select {
	case <-l.doneCh:
	case <-time.After(timeout):
		log.Printf("%s loop did not stop within %s", l.Name, timeout)
	}
}
