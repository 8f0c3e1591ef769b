package models

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// ErrBlankTitle indicates a requirement submitted without a title.
var ErrBlankTitle = errors.New("requirement title must not be blank")

// Priority ranks a user requirement.
type Priority string

// Requirement priorities.
const (
	PriorityLow    Priority = "LOW"
	PriorityMedium Priority = "MEDIUM"
	PriorityHigh   Priority = "HIGH"
	PriorityUrgent Priority = "URGENT"
)

// IsValid reports whether the priority is one of the defined values.
func (p Priority) IsValid() bool {
	switch p {
	case PriorityLow, PriorityMedium, PriorityHigh, PriorityUrgent:
		return true
	}
	return false
}

// UserRequirement is a captured piece of work a user asked for.
type UserRequirement struct {
	ID          TaskID     `bson:"_id" json:"id"`
	ClientID    ClientID   `bson:"clientId" json:"clientId"`
	ProjectID   *ProjectID `bson:"projectId,omitempty" json:"projectId,omitempty"`
	Title       string     `bson:"title" json:"title"`
	Description string     `bson:"description,omitempty" json:"description,omitempty"`
	Keywords    []string   `bson:"keywords,omitempty" json:"keywords,omitempty"`
	Priority    Priority   `bson:"priority" json:"priority"`
	CreatedAt   time.Time  `bson:"createdAt" json:"createdAt"`
	UpdatedAt   time.Time  `bson:"updatedAt" json:"updatedAt"`
}

// Validate checks the requirement fields before persistence.
func (r *UserRequirement) Validate() error {
	if strings.TrimSpace(r.Title) == "" {
		return ErrBlankTitle
	}
	if !r.Priority.IsValid() {
		return fmt.Errorf("invalid priority %q", r.Priority)
	}
	return nil
}
