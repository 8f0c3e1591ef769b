// Package tools defines the tool contract the planner schedules against and
// the built-in tools: RAG search, analysis reasoning, dynamic planning,
// recovery reasoning, requirement capture, and user dialogs.
package tools

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/jervis-ai/jervis/pkg/models"
)

// Canonical tool names.
const (
	NameRAGSearch         = "RAG_SEARCH_TOOL"
	NameAnalysisReasoning = "ANALYSIS_REASONING_TOOL"
	NamePlanner           = "PLANNER_TOOL"
	NameRecoveryReasoning = "RECOVERY_REASONING_TOOL"
	NameUserRequirement   = "USER_REQUIREMENT_TOOL"
	NameUserDialog        = "USER_DIALOG_TOOL"
)

// FallbackToolName receives steps whose proposed tool cannot be resolved.
const FallbackToolName = NameAnalysisReasoning

var (
	// ErrToolNotFound indicates a lookup for an unregistered tool.
	ErrToolNotFound = errors.New("tool not found")

	// ErrBlankDescription indicates a tool registered without a planner
	// description.
	ErrBlankDescription = errors.New("tool has a blank planner description")
)

// Tool is a named capability the planner may invoke. Implementations must be
// idempotent when invoked with identical parameters within a single plan.
type Tool interface {
	Name() string
	Aliases() []string
	PlannerDescription() string
	Execute(ctx context.Context, plan *models.Plan, taskDescription string) models.ToolResult
}

// StepProducer marks tools whose successful result content is a list of
// follow-up steps the executor ingests (dynamic re-planning).
type StepProducer interface {
	ProducesSteps() bool
}

// ProducesSteps reports whether a tool's output feeds re-planning.
func ProducesSteps(tool Tool) bool {
	p, ok := tool.(StepProducer)
	return ok && p.ProducesSteps()
}

// Registry holds the tools by canonical name and alias. It is initialized
// once at startup and read-only afterwards.
type Registry struct {
	order   []Tool
	byName  map[string]Tool
	byAlias map[string]Tool
}

// NewRegistry validates and indexes the tools.
func NewRegistry(tools ...Tool) (*Registry, error) {
	reg := &Registry{
		byName:  make(map[string]Tool, len(tools)),
		byAlias: make(map[string]Tool),
	}
	for _, tool := range tools {
		name := strings.ToUpper(tool.Name())
		if strings.TrimSpace(tool.PlannerDescription()) == "" {
			return nil, fmt.Errorf("%w: %s", ErrBlankDescription, tool.Name())
		}
		if _, dup := reg.byName[name]; dup {
			return nil, fmt.Errorf("duplicate tool name %s", tool.Name())
		}
		reg.byName[name] = tool
		reg.order = append(reg.order, tool)
		for _, alias := range tool.Aliases() {
			reg.byAlias[strings.ToUpper(alias)] = tool
		}
	}
	return reg, nil
}

// ByName returns the tool registered under the (case-insensitive) name.
func (r *Registry) ByName(name string) (Tool, error) {
	if tool, ok := r.byName[strings.ToUpper(name)]; ok {
		return tool, nil
	}
	return nil, fmt.Errorf("%w: %s", ErrToolNotFound, name)
}

// GetAllTools returns the tools in registration order.
func (r *Registry) GetAllTools() []Tool {
	return append([]Tool(nil), r.order...)
}

// PlannerDescriptions returns the newline-joined descriptions fed to the
// planner prompt.
func (r *Registry) PlannerDescriptions() string {
	lines := make([]string, 0, len(r.order))
	for _, tool := range r.order {
		lines = append(lines, tool.Name()+": "+tool.PlannerDescription())
	}
	return strings.Join(lines, "\n")
}

// ResolveName maps a model-proposed tool name onto a registered one: exact
// case-insensitive match, then alias match, then the reasoning fallback.
func (r *Registry) ResolveName(name string) string {
	upper := strings.ToUpper(strings.TrimSpace(name))
	if tool, ok := r.byName[upper]; ok {
		return tool.Name()
	}
	if tool, ok := r.byAlias[upper]; ok {
		return tool.Name()
	}
	return FallbackToolName
}
