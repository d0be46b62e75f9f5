// Package race guarantees exactly one settlement per generation call when a
// completion callback competes with an optional per-step timeout.
package race

import (
	"context"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/promptline/promptline/pkg/models"
)

// Settlement is the single outcome of one step's generation call. Err is set
// for failures and timeouts; Text, Usage and FinishReason are set on success.
type Settlement struct {
	Text         string
	Usage        models.Usage
	FinishReason models.FinishReason
	Err          error
}

// Handle is a single-assignment result cell. The generation callback and the
// timeout timer race to settle it; whichever loses becomes a no-op. A handle
// is armed once per step and never reused.
type Handle struct {
	settled atomic.Bool
	done    chan Settlement
	timer   *time.Timer
}

// NewHandle arms a handle. If timeout is positive, a timer is started that
// settles the handle as a timeout failure unless the callback got there
// first.
func NewHandle(timeout time.Duration) *Handle {
	h := &Handle{done: make(chan Settlement, 1)}

	if timeout > 0 {
		h.timer = time.AfterFunc(timeout, func() {
			h.settle(Settlement{
				Err: fmt.Errorf("generation timed out after %s", timeout),
			})
		})
	}

	return h
}

// Settle records a successful completion. It reports whether this call won
// the race; a false return means the handle was already settled and the
// result is discarded.
func (h *Handle) Settle(text string, usage models.Usage, finishReason models.FinishReason) bool {
	return h.settle(Settlement{Text: text, Usage: usage, FinishReason: finishReason})
}

// Fail records a failed completion. Like Settle, it is a no-op if the handle
// is already settled.
func (h *Handle) Fail(err error) bool {
	return h.settle(Settlement{Err: err})
}

// Settled reports whether the handle has been settled by any path.
func (h *Handle) Settled() bool {
	return h.settled.Load()
}

// Await blocks until the handle settles or ctx is done. Exactly one
// settlement is ever delivered.
func (h *Handle) Await(ctx context.Context) (Settlement, error) {
	select {
	case settlement := <-h.done:
		return settlement, nil
	case <-ctx.Done():
		// Mark the handle settled so a late callback is dropped.
		h.settle(Settlement{Err: ctx.Err()})

		return Settlement{Err: ctx.Err()}, ctx.Err()
	}
}

func (h *Handle) settle(s Settlement) bool {
	if !h.settled.CompareAndSwap(false, true) {
		return false
	}

	if h.timer != nil {
		h.timer.Stop()
	}

	h.done <- s

	return true
}
