// Package dialog lets a running tool suspend its plan until a user supplies
// an out-of-band answer over the notification channel.
package dialog

import (
	"context"
	"log/slog"
	"sync"

	"github.com/google/uuid"

	"github.com/jervis-ai/jervis/pkg/events"
)

// Outcome is the terminal result of one dialog exchange.
type Outcome struct {
	Answer    string
	Accepted  bool
	Cancelled bool
}

// Coordinator tracks open dialogs by id and completes them when the matching
// response or close event arrives on the bus.
type Coordinator struct {
	bus *events.Bus

	mu      sync.Mutex
	pending map[string]chan Outcome
}

// NewCoordinator creates a coordinator and subscribes it to inbound dialog
// events on the bus.
func NewCoordinator(bus *events.Bus) *Coordinator {
	c := &Coordinator{
		bus:     bus,
		pending: make(map[string]chan Outcome),
	}
	bus.Subscribe(c.handleEvent)
	return c
}

// RequestDialog registers a new dialog, publishes the question to the user,
// and returns the dialog id to await on.
func (c *Coordinator) RequestDialog(ctx context.Context, correlationID, question string) string {
	dialogID := uuid.NewString()

	c.mu.Lock()
	c.pending[dialogID] = make(chan Outcome, 1)
	c.mu.Unlock()

	c.bus.Publish(ctx, events.UserDialogRequestEvent{
		Type:          events.TypeUserDialogRequest,
		DialogID:      dialogID,
		CorrelationID: correlationID,
		Question:      question,
	})
	slog.Info("Dialog requested", "dialog_id", dialogID, "correlation_id", correlationID)
	return dialogID
}

// Await blocks until the dialog is resolved, closed, or the enclosing plan is
// cancelled. Plan cancellation surfaces as a cancelled outcome, not an error.
func (c *Coordinator) Await(ctx context.Context, dialogID string) Outcome {
	c.mu.Lock()
	ch, ok := c.pending[dialogID]
	c.mu.Unlock()
	if !ok {
		return Outcome{Cancelled: true}
	}

	select {
	case outcome := <-ch:
		c.remove(dialogID)
		return outcome
	case <-ctx.Done():
		c.remove(dialogID)
		slog.Info("Dialog cancelled with its plan", "dialog_id", dialogID)
		return Outcome{Cancelled: true}
	}
}

// Resolve completes an open dialog with the user's answer. Returns false when
// the dialog is unknown or already completed.
func (c *Coordinator) Resolve(dialogID, answer string, accepted bool) bool {
	return c.complete(dialogID, Outcome{Answer: answer, Accepted: accepted})
}

// Close cancels an open dialog without an answer.
func (c *Coordinator) Close(dialogID string) bool {
	return c.complete(dialogID, Outcome{Cancelled: true})
}

// OpenDialogs returns the number of dialogs still awaiting an answer.
func (c *Coordinator) OpenDialogs() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.pending)
}

func (c *Coordinator) handleEvent(_ context.Context, event events.Event) {
	switch ev := event.(type) {
	case events.UserDialogResponseEvent:
		if !c.Resolve(ev.DialogID, ev.Answer, ev.Accepted) {
			slog.Warn("Response for unknown dialog", "dialog_id", ev.DialogID)
		}
	case events.UserDialogCloseEvent:
		if !c.Close(ev.DialogID) {
			slog.Warn("Close for unknown dialog", "dialog_id", ev.DialogID)
		}
	}
}

func (c *Coordinator) complete(dialogID string, outcome Outcome) bool {
	c.mu.Lock()
	ch, ok := c.pending[dialogID]
	if ok {
		delete(c.pending, dialogID)
	}
	c.mu.Unlock()
	if !ok {
		return false
	}
	ch <- outcome
	return true
}

func (c *Coordinator) remove(dialogID string) {
	c.mu.Lock()
	delete(c.pending, dialogID)
	c.mu.Unlock()
}
