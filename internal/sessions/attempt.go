package sessions

import (
	"context"
	"sync"
	"time"

	"github.com/wagate/gateway/internal/client"
	"github.com/wagate/gateway/internal/models"
)

// attempt is one initialization of a session: a client instance, its event
// queue and the outcome that start callers wait on.
type attempt struct {
	number uint64
	events chan client.Event

	done     chan struct{}
	stopOnce sync.Once

	settled    chan struct{}
	settleOnce sync.Once
	state      models.SessionState
	err        error
}

func newAttempt(number uint64, buffer int) *attempt {
	if buffer <= 0 {
		buffer = 16
	}
	return &attempt{
		number:  number,
		events:  make(chan client.Event, buffer),
		done:    make(chan struct{}),
		settled: make(chan struct{}),
	}
}

// sink is handed to the client factory. Events arriving after the attempt
// was torn down are dropped.
func (a *attempt) sink(ev client.Event) {
	select {
	case <-a.done:
		return
	default:
	}

	select {
	case a.events <- ev:
	case <-a.done:
	}
}

func (a *attempt) stop() {
	a.stopOnce.Do(func() { close(a.done) })
}

func (a *attempt) stopped() bool {
	select {
	case <-a.done:
		return true
	default:
		return false
	}
}

// settle records the first outcome of the attempt: Ready or a failure.
func (a *attempt) settle(state models.SessionState, err error) {
	a.settleOnce.Do(func() {
		a.state = state
		a.err = err
		close(a.settled)
	})
}

func (a *attempt) wait(ctx context.Context, timeout time.Duration) (models.SessionState, error) {
	var deadline <-chan time.Time
	if timeout > 0 {
		timer := time.NewTimer(timeout)
		defer timer.Stop()
		deadline = timer.C
	}

	select {
	case <-a.settled:
		return a.state, a.err
	case <-deadline:
		return "", models.ErrStartTimeout
	case <-ctx.Done():
		return "", ctx.Err()
	}
}
