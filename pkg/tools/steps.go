package tools

import (
	"encoding/json"
	"fmt"

	"github.com/jervis-ai/jervis/pkg/models"
)

// ProposedStep is the wire form of a follow-up step emitted by a
// step-producing tool. DependsOn values are 1-based positions within the
// proposed batch, not plan orders.
type ProposedStep struct {
	ToolName        string `json:"toolName"`
	StepInstruction string `json:"stepInstruction"`
	DependsOn       []int  `json:"dependsOn,omitempty"`
}

// EncodeSteps serializes plan steps into ToolResult content. The steps must
// be numbered 1..N with dependencies inside that range, which is what a plan
// built from scratch yields.
func EncodeSteps(steps []models.PlanStep) (string, error) {
	proposed := make([]ProposedStep, 0, len(steps))
	for _, step := range steps {
		proposed = append(proposed, ProposedStep{
			ToolName:        step.ToolName,
			StepInstruction: step.StepInstruction,
			DependsOn:       step.DependsOn,
		})
	}
	raw, err := json.Marshal(proposed)
	if err != nil {
		return "", fmt.Errorf("encoding proposed steps: %w", err)
	}
	return string(raw), nil
}

// IngestSteps decodes proposed steps from tool result content and appends
// them to the plan, remapping batch-relative dependencies onto the plan's
// final order numbers.
func IngestSteps(plan *models.Plan, content string) (*models.Plan, error) {
	var proposed []ProposedStep
	if err := json.Unmarshal([]byte(content), &proposed); err != nil {
		return nil, fmt.Errorf("decoding proposed steps: %w", err)
	}

	base := plan.MaxOrder()
	steps := make([]models.PlanStep, 0, len(proposed))
	for i, p := range proposed {
		var deps []int
		for _, dep := range p.DependsOn {
			if dep < 1 || dep > len(proposed) {
				return nil, fmt.Errorf("proposed step %d depends on %d outside the batch", i+1, dep)
			}
			deps = append(deps, base+dep)
		}
		steps = append(steps, models.PlanStep{
			ID:              models.NewStepID(),
			ToolName:        p.ToolName,
			StepInstruction: p.StepInstruction,
			DependsOn:       deps,
			Status:          models.StepStatusPending,
		})
	}
	return plan.AppendSteps(steps), nil
}
