// Package executor claims queued plans and drives their step DAGs to
// completion: ready steps run concurrently up to the configured parallelism,
// step-producing tools extend the plan mid-flight, failures trigger recovery
// planning, and finished plans are finalized into a user-facing answer.
package executor

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/rand"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/jervis-ai/jervis/pkg/config"
	"github.com/jervis-ai/jervis/pkg/events"
	"github.com/jervis-ai/jervis/pkg/llm"
	"github.com/jervis-ai/jervis/pkg/models"
	"github.com/jervis-ai/jervis/pkg/tools"
)

// ErrNoRunnableSteps indicates a plan with pending steps none of which can
// ever become ready.
var ErrNoRunnableSteps = errors.New("plan has no runnable steps")

// PlanQueue is the slice of the plan store the executor needs. Satisfied by
// *database.PlanStore.
type PlanQueue interface {
	// ClaimNext atomically moves the oldest CREATED plan to RUNNING and
	// returns it, or (nil, nil) when the queue is empty.
	ClaimNext(ctx context.Context) (*models.Plan, error)
	Save(ctx context.Context, plan *models.Plan) error
	RecoverOrphans(ctx context.Context, cutoff time.Time) (int64, error)
}

// ToolSet resolves and returns tools. Satisfied by *tools.Registry.
type ToolSet interface {
	ByName(name string) (tools.Tool, error)
	ResolveName(name string) string
}

// StepPlanner plans initial and recovery steps. Satisfied by *planner.Planner.
type StepPlanner interface {
	CreatePlan(ctx context.Context, plan *models.Plan) (*models.Plan, error)
	PlanRecovery(ctx context.Context, plan *models.Plan, failedStep *models.PlanStep, failure string) ([]models.PlanStep, error)
}

// Executor is the plan worker pool.
type Executor struct {
	queue    PlanQueue
	registry ToolSet
	planner  StepPlanner
	gateway  *llm.Gateway
	bus      *events.Bus
	cfg      *config.ExecutorConfig

	mu      sync.Mutex
	running map[string]context.CancelFunc

	cancel   context.CancelFunc
	stopOnce sync.Once
	wg       sync.WaitGroup
}

// New wires the executor from its collaborators.
func New(queue PlanQueue, registry ToolSet, stepPlanner StepPlanner, gateway *llm.Gateway, bus *events.Bus, cfg *config.ExecutorConfig) *Executor {
	return &Executor{
		queue:    queue,
		registry: registry,
		planner:  stepPlanner,
		gateway:  gateway,
		bus:      bus,
		cfg:      cfg,
		running:  make(map[string]context.CancelFunc),
	}
}

// Start requeues orphaned plans, subscribes to cancellation events, and
// launches the claiming workers. It does not block.
func (e *Executor) Start(ctx context.Context) error {
	ctx, e.cancel = context.WithCancel(ctx)

	cutoff := time.Now().Add(-e.cfg.PlanTimeout)
	requeued, err := e.queue.RecoverOrphans(ctx, cutoff)
	if err != nil {
		return fmt.Errorf("recovering orphaned plans: %w", err)
	}
	if requeued > 0 {
		slog.Info("Requeued orphaned plans", "count", requeued)
	}

	e.bus.Subscribe(func(_ context.Context, event events.Event) {
		if cancelled, ok := event.(events.UserTaskCancelledEvent); ok {
			e.cancelPlan(cancelled.PlanID)
		}
	})

	for i := 0; i < e.cfg.WorkerCount; i++ {
		e.wg.Add(1)
		go e.worker(ctx, i)
	}
	slog.Info("Executor started", "workers", e.cfg.WorkerCount, "step_parallelism", e.cfg.StepParallelism)
	return nil
}

// Stop cancels the workers and waits for active plans, bounded by the
// graceful shutdown timeout.
func (e *Executor) Stop() {
	e.stopOnce.Do(func() {
		if e.cancel != nil {
			e.cancel()
		}
		done := make(chan struct{})
		go func() {
			e.wg.Wait()
			close(done)
		}()
		select {
		case <-done:
		case <-time.After(e.cfg.GracefulShutdownTimeout):
			slog.Warn("Executor shutdown timed out with plans still active")
		}
	})
}

func (e *Executor) worker(ctx context.Context, id int) {
	defer e.wg.Done()
	for {
		plan, err := e.queue.ClaimNext(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			slog.Error("Claiming next plan failed", "worker", id, "error", err)
		} else if plan != nil {
			e.runPlan(ctx, plan)
			continue
		}
		select {
		case <-ctx.Done():
			return
		case <-time.After(e.pollDelay()):
		}
	}
}

// pollDelay spreads the claim polls so workers do not stampede the store.
func (e *Executor) pollDelay() time.Duration {
	delay := e.cfg.PollInterval
	if e.cfg.PollIntervalJitter > 0 {
		delay += time.Duration(rand.Int63n(int64(e.cfg.PollIntervalJitter)))
	}
	return delay
}

// runPlan owns the claimed plan until it reaches a terminal status. All plan
// mutation happens on this goroutine; step tools only read the plan.
func (e *Executor) runPlan(ctx context.Context, plan *models.Plan) {
	planCtx, cancel := context.WithTimeout(ctx, e.cfg.PlanTimeout)
	defer cancel()
	e.track(plan.ID.Hex(), cancel)
	defer e.untrack(plan.ID.Hex())

	e.bus.Publish(ctx, events.NewPlanStatusChange(plan, models.PlanStatusCreated, models.PlanStatusRunning, ""))
	slog.Info("Plan execution started", "plan_id", plan.ID.Hex(), "steps", len(plan.Steps))

	if len(plan.Steps) == 0 {
		planned, err := e.planner.CreatePlan(planCtx, plan)
		if err != nil {
			e.failPlan(ctx, plan, fmt.Sprintf("planning failed: %v", err))
			return
		}
		plan = planned
		if err := e.queue.Save(ctx, plan); err != nil {
			slog.Error("Saving planned steps failed", "plan_id", plan.ID.Hex(), "error", err)
			return
		}
	}

	recoveries := 0
	for {
		if planCtx.Err() != nil {
			e.failPlan(ctx, plan, planFailureReason(planCtx))
			return
		}
		if plan.AllStepsDone() {
			e.finalize(ctx, plan)
			return
		}

		ready := plan.ReadySteps()
		if len(ready) == 0 {
			e.failPlan(ctx, plan, ErrNoRunnableSteps.Error())
			return
		}
		if max := e.cfg.StepParallelism; max > 0 && len(ready) > max {
			ready = ready[:max]
		}

		failed := e.runWave(planCtx, plan, ready)
		var err error
		plan, recoveries, err = e.afterWave(planCtx, plan, failed, recoveries)
		if err != nil {
			e.failPlan(ctx, plan, err.Error())
			return
		}
		if err := e.queue.Save(ctx, plan); err != nil {
			slog.Error("Saving plan progress failed", "plan_id", plan.ID.Hex(), "error", err)
			return
		}
	}
}

// runWave executes the ready steps concurrently and applies their results.
// It returns the steps that failed.
func (e *Executor) runWave(ctx context.Context, plan *models.Plan, wave []*models.PlanStep) []*models.PlanStep {
	for _, step := range wave {
		step.Status = models.StepStatusRunning
	}

	results := make([]models.ToolResult, len(wave))
	var group errgroup.Group
	for i, step := range wave {
		group.Go(func() error {
			results[i] = e.executeStep(ctx, plan, step)
			return nil
		})
	}
	_ = group.Wait()

	var failed []*models.PlanStep
	for i, step := range wave {
		result := results[i]
		step.ToolResult = &result
		if result.Success {
			step.Status = models.StepStatusDone
		} else {
			step.Status = models.StepStatusFailed
			failed = append(failed, step)
		}
		e.bus.Publish(ctx, events.NewStepCompletion(plan.ID, step))
		slog.Info("Step finished", "plan_id", plan.ID.Hex(), "order", step.Order,
			"tool", step.ToolName, "success", result.Success)
	}
	return failed
}

// afterWave ingests any produced steps and plans recovery for the first
// failure, tracking the consecutive-recovery budget.
func (e *Executor) afterWave(ctx context.Context, plan *models.Plan, failed []*models.PlanStep, recoveries int) (*models.Plan, int, error) {
	for i := range plan.Steps {
		step := &plan.Steps[i]
		if step.Status != models.StepStatusDone || step.ToolResult == nil {
			continue
		}
		tool, err := e.registry.ByName(step.ToolName)
		if err != nil || !tools.ProducesSteps(tool) || step.ToolResult.Content == "" {
			continue
		}
		extended, err := tools.IngestSteps(plan, step.ToolResult.Content)
		if err != nil {
			return plan, recoveries, fmt.Errorf("ingesting steps produced by %s: %w", step.ToolName, err)
		}
		// Clearing the content marks the batch as ingested.
		extended.StepByOrder(step.Order).ToolResult.Content = ""
		slog.Info("Plan extended by step-producing tool", "plan_id", plan.ID.Hex(),
			"tool", step.ToolName, "total_steps", len(extended.Steps))
		plan = extended
	}

	if len(failed) == 0 {
		return plan, 0, nil
	}

	recoveries++
	if recoveries > e.cfg.MaxRecoveryAttempts {
		return plan, recoveries, fmt.Errorf("recovery budget exhausted after %d attempts: %s",
			e.cfg.MaxRecoveryAttempts, failed[0].ToolResult.ErrorMessage)
	}

	failedStep := failed[0]
	recovery, err := e.planner.PlanRecovery(ctx, plan, failedStep, failedStep.ToolResult.ErrorMessage)
	if err != nil {
		return plan, recoveries, fmt.Errorf("recovery planning failed: %w", err)
	}
	slog.Warn("Step failed, inserting recovery steps", "plan_id", plan.ID.Hex(),
		"order", failedStep.Order, "recovery_steps", len(recovery), "attempt", recoveries)

	failedID := failedStep.ID
	plan = plan.PrependSteps(recovery)
	// The retried step must wait for every recovery step, so the recovery
	// orders (1..len after prepending) join its dependencies. Without them
	// the retried step's original deps are already DONE and it would run in
	// the same wave as the recovery it depends on.
	recoveryOrders := make([]int, len(recovery))
	for i := range recovery {
		recoveryOrders[i] = i + 1
	}
	for i := range plan.Steps {
		if plan.Steps[i].ID == failedID {
			plan.Steps[i].Status = models.StepStatusPending
			plan.Steps[i].DependsOn = append(plan.Steps[i].DependsOn, recoveryOrders...)
			break
		}
	}
	return plan, recoveries, nil
}

func (e *Executor) executeStep(ctx context.Context, plan *models.Plan, step *models.PlanStep) models.ToolResult {
	tool, err := e.registry.ByName(step.ToolName)
	if err != nil {
		tool, err = e.registry.ByName(e.registry.ResolveName(step.ToolName))
		if err != nil {
			return models.FailureResult(step.ToolName, err.Error())
		}
	}
	return tool.Execute(ctx, plan, step.StepInstruction)
}

type finalizerOutput struct {
	Answer string `json:"answer"`
}

// finalize synthesizes the final answer from the step results and moves the
// plan through COMPLETED to FINALIZED.
func (e *Executor) finalize(ctx context.Context, plan *models.Plan) {
	plan.Status = models.PlanStatusCompleted
	if err := e.queue.Save(ctx, plan); err != nil {
		slog.Error("Saving completed plan failed", "plan_id", plan.ID.Hex(), "error", err)
		return
	}
	e.bus.Publish(ctx, events.NewPlanStatusChange(plan, models.PlanStatusRunning, models.PlanStatusCompleted, ""))

	resp, err := llm.Call[finalizerOutput](ctx, e.gateway, llm.Request{
		PromptType: config.PromptFinalizer,
		Values: map[string]string{
			"question":    plan.EnglishQuestion,
			"stepResults": renderStepResults(plan),
		},
		Quick:         plan.Quick,
		CorrelationID: plan.ID.Hex(),
	})
	if err != nil {
		e.failPlan(ctx, plan, fmt.Sprintf("finalization failed: %v", err))
		return
	}

	from := plan.Status
	plan.FinalAnswer = resp.Result.Answer
	plan.Status = models.PlanStatusFinalized
	if err := e.queue.Save(ctx, plan); err != nil {
		slog.Error("Saving finalized plan failed", "plan_id", plan.ID.Hex(), "error", err)
		return
	}
	e.bus.Publish(ctx, events.NewPlanStatusChange(plan, from, models.PlanStatusFinalized, ""))
	e.bus.Publish(ctx, events.AgentResponseEvent{
		Type:      events.TypeAgentResponse,
		ContextID: plan.ContextID.Hex(),
		PlanID:    plan.ID.Hex(),
		Answer:    plan.FinalAnswer,
		Timestamp: time.Now().UTC(),
	})
	slog.Info("Plan finalized", "plan_id", plan.ID.Hex(), "model", resp.ModelUsed)
}

func (e *Executor) failPlan(ctx context.Context, plan *models.Plan, reason string) {
	from := plan.Status
	plan.Status = models.PlanStatusFailed
	if err := e.queue.Save(ctx, plan); err != nil {
		slog.Error("Saving failed plan failed", "plan_id", plan.ID.Hex(), "error", err)
	}
	e.bus.Publish(ctx, events.NewPlanStatusChange(plan, from, models.PlanStatusFailed, reason))
	slog.Warn("Plan failed", "plan_id", plan.ID.Hex(), "reason", reason)
}

func (e *Executor) track(planID string, cancel context.CancelFunc) {
	e.mu.Lock()
	e.running[planID] = cancel
	e.mu.Unlock()
}

func (e *Executor) untrack(planID string) {
	e.mu.Lock()
	delete(e.running, planID)
	e.mu.Unlock()
}

func (e *Executor) cancelPlan(planID string) {
	e.mu.Lock()
	cancel, ok := e.running[planID]
	e.mu.Unlock()
	if ok {
		slog.Info("Cancelling running plan", "plan_id", planID)
		cancel()
	}
}

// ActivePlans returns the number of plans currently executing.
func (e *Executor) ActivePlans() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return len(e.running)
}

func planFailureReason(ctx context.Context) string {
	if errors.Is(ctx.Err(), context.DeadlineExceeded) {
		return "plan timed out"
	}
	return "plan cancelled"
}

func renderStepResults(plan *models.Plan) string {
	var b strings.Builder
	for i := range plan.Steps {
		step := &plan.Steps[i]
		if step.ToolResult == nil {
			continue
		}
		fmt.Fprintf(&b, "Step %d (%s): %s\n", step.Order, step.ToolName, step.ToolResult.Summary)
		if step.ToolResult.Content != "" {
			b.WriteString(step.ToolResult.Content)
			b.WriteString("\n")
		}
	}
	return strings.TrimRight(b.String(), "\n")
}
