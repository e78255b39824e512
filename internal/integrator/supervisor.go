package integrator

import (
	"context"
	"io"
	"time"

	"github.com/snode/goqtt/internal/dispatcher"
	"github.com/snode/goqtt/internal/logger"
	"github.com/snode/goqtt/internal/mapping"
)

// DefaultRedialDelay is the fixed delay between reconnect attempts,
// mirroring the pack's auto-reconnect example shape (fixed-delay redial
// loop living outside the dispatcher, not a backoff policy inside it).
const DefaultRedialDelay = 5 * time.Second

// Dial opens a fresh transport connection to the broker the integrator
// bridges to.
type Dial func(ctx context.Context) (io.ReadWriteCloser, error)

// Supervisor redials Dial with a fixed delay whenever the dispatcher's run
// loop ends, so the integrator keeps bridging across transient broker or
// network outages.
type Supervisor struct {
	Dial  Dial
	Doc   *mapping.Document
	Log   *logger.Logger
	Delay time.Duration
}

// Run blocks until ctx is cancelled, reconnecting and redriving a
// ClientRole each time the connection ends.
func (s *Supervisor) Run(ctx context.Context) error {
	delay := s.Delay
	if delay <= 0 {
		delay = DefaultRedialDelay
	}

	for {
		if ctx.Err() != nil {
			return nil
		}

		conn, err := s.Dial(ctx)
		if err != nil {
			if s.Log != nil {
				s.Log.LogError(err, "integrator: dial failed")
			}
			if !sleepOrDone(ctx, delay) {
				return nil
			}
			continue
		}

		role := &ClientRole{Doc: s.Doc, Log: s.Log}
		d := dispatcher.New(conn, role)
		runErr := d.Run(ctx)
		_ = conn.Close()

		if runErr != nil && s.Log != nil {
			s.Log.LogError(runErr, "integrator: connection ended")
		}

		if ctx.Err() != nil {
			return nil
		}
		if !sleepOrDone(ctx, delay) {
			return nil
		}
	}
}

// sleepOrDone waits for delay, returning false if ctx is cancelled first.
func sleepOrDone(ctx context.Context, delay time.Duration) bool {
	t := time.NewTimer(delay)
	defer t.Stop()
	select {
	case <-t.C:
		return true
	case <-ctx.Done():
		return false
	}
}
