// Package events is the in-process notification bus plus the typed event
// payloads delivered to WebSocket subscribers on the NOTIFICATIONS channel.
package events

import (
	"time"

	"github.com/jervis-ai/jervis/pkg/models"
)

// ChannelNotifications is the broadcast channel WebSocket clients subscribe to.
const ChannelNotifications = "NOTIFICATIONS"

// EventType discriminates event payloads on the wire.
type EventType string

// Outbound and inbound event types.
const (
	TypeStepCompletion     EventType = "STEP_COMPLETION"
	TypePlanStatusChange   EventType = "PLAN_STATUS_CHANGE"
	TypeUserTaskCreated    EventType = "USER_TASK_CREATED"
	TypeUserTaskCancelled  EventType = "USER_TASK_CANCELLED"
	TypeAgentResponse      EventType = "AGENT_RESPONSE"
	TypeUserDialogRequest  EventType = "USER_DIALOG_REQUEST"
	TypeUserDialogResponse EventType = "USER_DIALOG_RESPONSE"
	TypeUserDialogClose    EventType = "USER_DIALOG_CLOSE"
)

// Event is implemented by every payload published on the bus.
type Event interface {
	EventType() EventType
}

// Ids are carried as hex strings, never raw byte arrays, so payloads survive
// cross-process serialization.

// StepCompletionEvent is published when a plan step reaches DONE or FAILED.
type StepCompletionEvent struct {
	Type      EventType `json:"type"`
	PlanID    string    `json:"planId"`
	StepID    string    `json:"stepId"`
	Order     int       `json:"order"`
	ToolName  string    `json:"toolName"`
	Success   bool      `json:"success"`
	Summary   string    `json:"summary,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

// EventType implements Event.
func (e StepCompletionEvent) EventType() EventType { return TypeStepCompletion }

// NewStepCompletion builds a StepCompletionEvent from a finished step.
func NewStepCompletion(planID models.PlanID, step *models.PlanStep) StepCompletionEvent {
	ev := StepCompletionEvent{
		Type:      TypeStepCompletion,
		PlanID:    planID.Hex(),
		StepID:    step.ID.Hex(),
		Order:     step.Order,
		ToolName:  step.ToolName,
		Timestamp: time.Now().UTC(),
	}
	if step.ToolResult != nil {
		ev.Success = step.ToolResult.Success
		ev.Summary = step.ToolResult.Summary
	}
	return ev
}

// PlanStatusChangeEvent is published on every plan status transition.
type PlanStatusChangeEvent struct {
	Type      EventType         `json:"type"`
	PlanID    string            `json:"planId"`
	ContextID string            `json:"contextId"`
	From      models.PlanStatus `json:"from"`
	To        models.PlanStatus `json:"to"`
	Message   string            `json:"message,omitempty"`
	Timestamp time.Time         `json:"timestamp"`
}

// EventType implements Event.
func (e PlanStatusChangeEvent) EventType() EventType { return TypePlanStatusChange }

// NewPlanStatusChange builds a PlanStatusChangeEvent.
func NewPlanStatusChange(plan *models.Plan, from, to models.PlanStatus, message string) PlanStatusChangeEvent {
	return PlanStatusChangeEvent{
		Type:      TypePlanStatusChange,
		PlanID:    plan.ID.Hex(),
		ContextID: plan.ContextID.Hex(),
		From:      from,
		To:        to,
		Message:   message,
		Timestamp: time.Now().UTC(),
	}
}

// UserTaskCreatedEvent is published when a user submits a new task.
type UserTaskCreatedEvent struct {
	Type      EventType `json:"type"`
	ContextID string    `json:"contextId"`
	PlanID    string    `json:"planId"`
	Question  string    `json:"question"`
	Timestamp time.Time `json:"timestamp"`
}

// EventType implements Event.
func (e UserTaskCreatedEvent) EventType() EventType { return TypeUserTaskCreated }

// UserTaskCancelledEvent is published when a task is cancelled by the user.
type UserTaskCancelledEvent struct {
	Type      EventType `json:"type"`
	ContextID string    `json:"contextId"`
	PlanID    string    `json:"planId"`
	Timestamp time.Time `json:"timestamp"`
}

// EventType implements Event.
func (e UserTaskCancelledEvent) EventType() EventType { return TypeUserTaskCancelled }

// AgentResponseEvent carries the finalizer's user-visible answer.
type AgentResponseEvent struct {
	Type      EventType `json:"type"`
	ContextID string    `json:"contextId"`
	PlanID    string    `json:"planId"`
	Answer    string    `json:"answer"`
	Timestamp time.Time `json:"timestamp"`
}

// EventType implements Event.
func (e AgentResponseEvent) EventType() EventType { return TypeAgentResponse }

// UserDialogRequestEvent asks the user a question mid-plan.
type UserDialogRequestEvent struct {
	Type          EventType `json:"type"`
	DialogID      string    `json:"dialogId"`
	CorrelationID string    `json:"correlationId"`
	Question      string    `json:"question"`
	Timestamp     time.Time `json:"timestamp"`
}

// EventType implements Event.
func (e UserDialogRequestEvent) EventType() EventType { return TypeUserDialogRequest }

// UserDialogResponseEvent is the inbound answer to a dialog request.
type UserDialogResponseEvent struct {
	Type          EventType `json:"type"`
	DialogID      string    `json:"dialogId"`
	CorrelationID string    `json:"correlationId,omitempty"`
	Answer        string    `json:"answer"`
	Accepted      bool      `json:"accepted"`
	Timestamp     time.Time `json:"timestamp"`
}

// EventType implements Event.
func (e UserDialogResponseEvent) EventType() EventType { return TypeUserDialogResponse }

// UserDialogCloseEvent is the inbound cancellation of a dialog request.
type UserDialogCloseEvent struct {
	Type      EventType `json:"type"`
	DialogID  string    `json:"dialogId"`
	Timestamp time.Time `json:"timestamp"`
}

// EventType implements Event.
func (e UserDialogCloseEvent) EventType() EventType { return TypeUserDialogClose }
