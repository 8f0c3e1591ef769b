package models

import (
	"fmt"
	"sort"
	"strings"
	"time"
)

// PlanStatus is the lifecycle state of a plan.
type PlanStatus string

// Plan lifecycle states.
const (
	PlanStatusCreated   PlanStatus = "CREATED"
	PlanStatusRunning   PlanStatus = "RUNNING"
	PlanStatusCompleted PlanStatus = "COMPLETED"
	PlanStatusFinalized PlanStatus = "FINALIZED"
	PlanStatusFailed    PlanStatus = "FAILED"
)

// IsTerminal reports whether no further execution happens on the plan.
func (s PlanStatus) IsTerminal() bool {
	return s == PlanStatusFinalized || s == PlanStatusFailed
}

// StepStatus is the lifecycle state of a single plan step.
type StepStatus string

// Step lifecycle states.
const (
	StepStatusPending StepStatus = "PENDING"
	StepStatusRunning StepStatus = "RUNNING"
	StepStatusDone    StepStatus = "DONE"
	StepStatusFailed  StepStatus = "FAILED"
)

// ToolResult is the single contract every tool produces.
type ToolResult struct {
	ToolName     string `bson:"toolName" json:"toolName"`
	Success      bool   `bson:"success" json:"success"`
	Summary      string `bson:"summary" json:"summary"`
	Content      string `bson:"content,omitempty" json:"content,omitempty"`
	ErrorMessage string `bson:"errorMessage,omitempty" json:"errorMessage,omitempty"`
}

// SuccessResult builds a successful ToolResult.
func SuccessResult(toolName, summary, content string) ToolResult {
	return ToolResult{ToolName: toolName, Success: true, Summary: summary, Content: content}
}

// FailureResult builds a failed ToolResult.
func FailureResult(toolName, errMsg string) ToolResult {
	return ToolResult{ToolName: toolName, Success: false, Summary: "failed: " + errMsg, ErrorMessage: errMsg}
}

// PlanStep is one node of a plan's DAG, bound to exactly one tool.
type PlanStep struct {
	ID        StepID    `bson:"_id" json:"id"`
	PlanID    PlanID    `bson:"planId" json:"planId"`
	ContextID ContextID `bson:"contextId" json:"contextId"`
	// Order is 1-based and unique within the plan.
	Order           int    `bson:"order" json:"order"`
	ToolName        string `bson:"toolName" json:"toolName"`
	StepInstruction string `bson:"stepInstruction" json:"stepInstruction"`
	// DependsOn refers to the Order values of earlier steps.
	DependsOn  []int       `bson:"dependsOn,omitempty" json:"dependsOn,omitempty"`
	StepGroup  string      `bson:"stepGroup,omitempty" json:"stepGroup,omitempty"`
	Status     StepStatus  `bson:"status" json:"status"`
	ToolResult *ToolResult `bson:"toolResult,omitempty" json:"toolResult,omitempty"`
}

// Plan is a DAG of tool invocations produced to satisfy a user task.
// Steps are append-only within an execution; completed steps are never
// mutated by re-planning.
type Plan struct {
	ID               PlanID     `bson:"_id" json:"id"`
	ContextID        ContextID  `bson:"contextId" json:"contextId"`
	ClientID         ClientID   `bson:"clientId" json:"clientId"`
	ProjectID        *ProjectID `bson:"projectId,omitempty" json:"projectId,omitempty"`
	OriginalQuestion string     `bson:"originalQuestion" json:"originalQuestion"`
	EnglishQuestion  string     `bson:"englishQuestion" json:"englishQuestion"`
	Status           PlanStatus `bson:"status" json:"status"`
	Steps            []PlanStep `bson:"steps" json:"steps"`
	ContextSummary   string     `bson:"contextSummary,omitempty" json:"contextSummary,omitempty"`
	FinalAnswer      string     `bson:"finalAnswer,omitempty" json:"finalAnswer,omitempty"`
	Quick            bool       `bson:"quick,omitempty" json:"quick,omitempty"`
	CreatedAt        time.Time  `bson:"createdAt" json:"createdAt"`
	UpdatedAt        time.Time  `bson:"updatedAt" json:"updatedAt"`
}

// StepByOrder returns the step with the given order, or nil.
func (p *Plan) StepByOrder(order int) *PlanStep {
	for i := range p.Steps {
		if p.Steps[i].Order == order {
			return &p.Steps[i]
		}
	}
	return nil
}

// MaxOrder returns the highest step order in the plan (0 when empty).
func (p *Plan) MaxOrder() int {
	max := 0
	for i := range p.Steps {
		if p.Steps[i].Order > max {
			max = p.Steps[i].Order
		}
	}
	return max
}

// AppendSteps returns a copy of the plan with the new steps appended after
// the existing ones. Incoming steps are renumbered to max(order)+i+1; their
// DependsOn values are kept as-is (they must already reference final orders).
func (p *Plan) AppendSteps(steps []PlanStep) *Plan {
	out := p.clone()
	base := out.MaxOrder()
	for i, step := range steps {
		step.PlanID = out.ID
		step.ContextID = out.ContextID
		step.Order = base + i + 1
		if step.Status == "" {
			step.Status = StepStatusPending
		}
		out.Steps = append(out.Steps, step)
	}
	out.UpdatedAt = time.Now().UTC()
	return out
}

// PrependSteps returns a copy of the plan with the new steps inserted before
// the existing ones. Existing steps (and their DependsOn references) are
// shifted by the inserted count so the order range stays contiguous.
func (p *Plan) PrependSteps(steps []PlanStep) *Plan {
	out := p.clone()
	shift := len(steps)
	for i := range out.Steps {
		out.Steps[i].Order += shift
		for j := range out.Steps[i].DependsOn {
			out.Steps[i].DependsOn[j] += shift
		}
	}
	prepended := make([]PlanStep, 0, shift+len(out.Steps))
	for i, step := range steps {
		step.PlanID = out.ID
		step.ContextID = out.ContextID
		step.Order = i + 1
		if step.Status == "" {
			step.Status = StepStatusPending
		}
		prepended = append(prepended, step)
	}
	out.Steps = append(prepended, out.Steps...)
	out.UpdatedAt = time.Now().UTC()
	return out
}

// AppendNewStep appends a single step built from a tool name and instruction.
func (p *Plan) AppendNewStep(toolName, instruction string) *Plan {
	return p.AppendSteps([]PlanStep{newStep(toolName, instruction)})
}

// PrependNewStep prepends a single step built from a tool name and instruction.
func (p *Plan) PrependNewStep(toolName, instruction string) *Plan {
	return p.PrependSteps([]PlanStep{newStep(toolName, instruction)})
}

func newStep(toolName, instruction string) PlanStep {
	return PlanStep{
		ID:              NewStepID(),
		ToolName:        toolName,
		StepInstruction: instruction,
		Status:          StepStatusPending,
	}
}

// ReadySteps returns PENDING steps whose dependencies are all DONE.
func (p *Plan) ReadySteps() []*PlanStep {
	var ready []*PlanStep
	for i := range p.Steps {
		step := &p.Steps[i]
		if step.Status != StepStatusPending {
			continue
		}
		ok := true
		for _, dep := range step.DependsOn {
			depStep := p.StepByOrder(dep)
			if depStep == nil || depStep.Status != StepStatusDone {
				ok = false
				break
			}
		}
		if ok {
			ready = append(ready, step)
		}
	}
	return ready
}

// AllStepsDone reports whether every step reached DONE.
func (p *Plan) AllStepsDone() bool {
	if len(p.Steps) == 0 {
		return false
	}
	for i := range p.Steps {
		if p.Steps[i].Status != StepStatusDone {
			return false
		}
	}
	return true
}

// ValidateOrders checks that step orders form the contiguous range [1..N]
// and that every DependsOn reference points at a lower order.
func (p *Plan) ValidateOrders() error {
	seen := make(map[int]bool, len(p.Steps))
	for i := range p.Steps {
		order := p.Steps[i].Order
		if order < 1 || order > len(p.Steps) {
			return fmt.Errorf("step order %d outside range [1..%d]", order, len(p.Steps))
		}
		if seen[order] {
			return fmt.Errorf("duplicate step order %d", order)
		}
		seen[order] = true
		for _, dep := range p.Steps[i].DependsOn {
			if dep >= order {
				return fmt.Errorf("step %d depends on %d which is not an earlier step", order, dep)
			}
		}
	}
	return nil
}

// Orders returns the step order values in slice position order.
func (p *Plan) Orders() []int {
	orders := make([]int, len(p.Steps))
	for i := range p.Steps {
		orders[i] = p.Steps[i].Order
	}
	return orders
}

func (p *Plan) clone() *Plan {
	out := *p
	out.Steps = make([]PlanStep, len(p.Steps))
	copy(out.Steps, p.Steps)
	for i := range out.Steps {
		if len(p.Steps[i].DependsOn) > 0 {
			out.Steps[i].DependsOn = append([]int(nil), p.Steps[i].DependsOn...)
		}
	}
	return &out
}

// TaskContext is the user-facing envelope grouping one or more plans.
type TaskContext struct {
	ID             ContextID  `bson:"_id" json:"id"`
	ClientID       ClientID   `bson:"clientId" json:"clientId"`
	ProjectID      *ProjectID `bson:"projectId,omitempty" json:"projectId,omitempty"`
	Name           string     `bson:"name" json:"name"`
	ContextSummary string     `bson:"contextSummary,omitempty" json:"contextSummary,omitempty"`
	// Quick forces the fast model tier for every LLM call in the context.
	Quick     bool      `bson:"quick" json:"quick"`
	CreatedAt time.Time `bson:"createdAt" json:"createdAt"`
	UpdatedAt time.Time `bson:"updatedAt" json:"updatedAt"`
}

// RenderParameters formats tool parameters for inclusion in a step
// instruction, one "key: value" line per parameter in sorted order.
func RenderParameters(params map[string]string) string {
	if len(params) == 0 {
		return ""
	}
	keys := make([]string, 0, len(params))
	for k := range params {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	var b strings.Builder
	for _, k := range keys {
		b.WriteString(k)
		b.WriteString(": ")
		b.WriteString(params[k])
		b.WriteString("\n")
	}
	return strings.TrimRight(b.String(), "\n")
}
