// Package generation defines the contract for the LLM provider invoked by
// the step runner. The runner treats the provider as authoritative for step
// success, failure and text content.
package generation

import (
	"context"

	"github.com/promptline/promptline/pkg/models"
)

// Request is one outbound generation call: the retained conversation, the
// new resolved user message appended by the runner, an optional system
// preamble, enabled tools and the model reference.
type Request struct {
	Conversation   []models.ChatMessage
	SystemPreamble string
	Tools          []models.Tool
	Model          string
}

// Completion is the single terminal payload of a generation call.
type Completion struct {
	Text         string
	Usage        models.Usage
	FinishReason models.FinishReason
}

// Result is delivered exactly once per handle: a completion or an error,
// never both.
type Result struct {
	Completion Completion
	Err        error
}

// Handle exposes a generation call's single completion and, separately, a
// usage-accounting future.
type Handle struct {
	done  chan Result
	usage chan models.Usage
}

// NewHandle creates an unfulfilled handle. Providers call Complete or Fail
// exactly once.
func NewHandle() *Handle {
	return &Handle{
		done:  make(chan Result, 1),
		usage: make(chan models.Usage, 1),
	}
}

// Complete fulfills the handle with a successful completion and resolves the
// usage future.
func (h *Handle) Complete(completion Completion) {
	h.usage <- completion.Usage
	h.done <- Result{Completion: completion}
}

// Fail fulfills the handle with an error. The usage future resolves to zero.
func (h *Handle) Fail(err error) {
	h.usage <- models.Usage{}
	h.done <- Result{Err: err}
}

// Done returns the channel delivering the handle's single result.
func (h *Handle) Done() <-chan Result {
	return h.done
}

// Usage returns the usage-accounting future.
func (h *Handle) Usage() <-chan models.Usage {
	return h.usage
}

// Client is the generation provider consumed by the runner. Stream starts
// the call and returns immediately; the handle delivers the outcome.
type Client interface {
	Stream(ctx context.Context, req Request) (*Handle, error)
}
