package core

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"
	"sync"
	"time"

	"github.com/mohammad-safakhou/webscout/internal/agent/telemetry"
	"github.com/mohammad-safakhou/webscout/internal/session"
)

var (
	// ErrAlreadyRunning is returned when Start is re-entered while the loop runs.
	ErrAlreadyRunning = errors.New("exploration already running")
	// ErrNotRunning is returned when Pause is called outside the running state.
	ErrNotRunning = errors.New("exploration not running")
	// ErrNotPaused is returned when Resume is called outside the paused state.
	ErrNotPaused = errors.New("exploration not paused")
	// ErrFinished is returned when Start is called on a terminal session.
	ErrFinished = errors.New("exploration already finished")
)

// defaultExtractionSelectors are probed when a step does not name its own.
var defaultExtractionSelectors = []string{"h1", "h2", "a", "table", "li"}

// Orchestrator owns one session and drives its exploration loop. Control
// transitions (start/pause/resume/stop) share one mutex so they are
// linearizable; capability calls run outside the critical section.
type Orchestrator struct {
	sess        *session.Session
	planner     Planner
	actuator    Actuator
	analyzer    Analyzer
	tele        *telemetry.Telemetry
	logger      *log.Logger
	stepTimeout time.Duration

	mu          sync.Mutex
	running     bool
	teleStarted bool  // session counted in telemetry, survives pause/resume
	plan        *Plan // cached across pause/resume, never regenerated
	completed   []int
	loopCount   int
	outcomes    []StepOutcome
	lastPage    ContentPayload
}

// NewOrchestrator wires one orchestrator to its session and capabilities.
func NewOrchestrator(sess *session.Session, planner Planner, actuator Actuator, analyzer Analyzer, tele *telemetry.Telemetry, logger *log.Logger, stepTimeout time.Duration) (*Orchestrator, error) {
	if sess == nil {
		return nil, fmt.Errorf("session is nil")
	}
	if planner == nil || actuator == nil || analyzer == nil {
		return nil, fmt.Errorf("planner, actuator and analyzer are required")
	}
	if logger == nil {
		logger = log.New(log.Writer(), "[ORCH] ", log.LstdFlags)
	}
	return &Orchestrator{
		sess:        sess,
		planner:     planner,
		actuator:    actuator,
		analyzer:    analyzer,
		tele:        tele,
		logger:      logger,
		stepTimeout: stepTimeout,
	}, nil
}

// Session returns the owned session.
func (o *Orchestrator) Session() *session.Session { return o.sess }

// Start runs the exploration loop until completion, pause or stop. It is
// synchronous; callers wanting fire-and-forget run it on a worker.
func (o *Orchestrator) Start(ctx context.Context) error {
	o.mu.Lock()
	if o.running {
		o.mu.Unlock()
		return ErrAlreadyRunning
	}
	if o.sess.CurrentStatus().Terminal() {
		o.mu.Unlock()
		return ErrFinished
	}
	o.running = true
	first := !o.teleStarted
	o.teleStarted = true
	o.mu.Unlock()

	o.sess.SetStatus(session.StatusRunning)
	o.sess.SetAgentState(session.RoleCoordinator, "running", "driving exploration loop", "")
	if first {
		o.tele.SessionStarted()
		o.sess.AppendLog(session.ActionLog{
			Kind:        session.ActionPlanCreation,
			Description: "exploration session started",
			Details: map[string]interface{}{
				"session_id": o.sess.ID,
				"url":        o.sess.TargetURL,
				"objectives": o.sess.Objectives,
			},
		})
	}
	o.logger.Printf("session %s: loop starting (target=%s)", o.sess.ID, o.sess.TargetURL)

	defer func() {
		o.actuator.Release()
		// One logical exploration is counted once, however many times the
		// loop pauses and resumes.
		if status := o.sess.CurrentStatus(); status.Terminal() {
			o.tele.SessionFinished(string(status))
		}
	}()

	plan, err := o.ensurePlan(ctx)
	if err != nil {
		o.sess.AppendLog(session.ActionLog{
			Kind:        session.ActionError,
			Description: "plan creation failed",
			Error:       err.Error(),
		})
		o.sess.SetStatus(session.StatusFailed)
		o.setRunning(false)
		return fmt.Errorf("create plan: %w", err)
	}

	for {
		o.mu.Lock()
		if !o.running {
			o.mu.Unlock()
			break
		}
		if o.loopCount >= o.sess.MaxIterations || o.loopCount >= len(plan.Steps) {
			o.mu.Unlock()
			break
		}
		o.loopCount++
		loop := o.loopCount
		completed := append([]int(nil), o.completed...)
		o.mu.Unlock()

		step, ok := NextEligibleStep(plan, completed)
		if !ok {
			if len(completed) < len(plan.Steps) {
				o.sess.AppendLog(session.ActionLog{
					Kind:        session.ActionError,
					Description: "waiting: no eligible step, pending dependencies unsatisfiable",
					Details:     map[string]interface{}{"completed": completed, "total": len(plan.Steps)},
				})
				o.logger.Printf("session %s: no eligible step, halting", o.sess.ID)
			}
			break
		}

		started := time.Now()
		outcome := o.dispatch(ctx, step)
		outcome.Duration = time.Since(started)
		o.tele.ObserveStep(string(step.Kind), outcome.Role, outcome.Duration)

		o.mu.Lock()
		o.completed = append(o.completed, step.ID)
		o.outcomes = append(o.outcomes, outcome)
		done := len(o.completed)
		doneSteps := append([]int(nil), o.completed...)
		o.mu.Unlock()

		o.sess.UpdateProgress(done, len(plan.Steps))
		o.sess.AppendLog(session.ActionLog{
			Kind:        session.ActionAnalysis,
			Description: fmt.Sprintf("iteration %d completed", loop),
			Details: map[string]interface{}{
				"step_id":         step.ID,
				"step_kind":       string(step.Kind),
				"duration_ms":     outcome.Duration.Milliseconds(),
				"completed_steps": doneSteps,
			},
		})
	}

	switch o.sess.CurrentStatus() {
	case session.StatusPaused:
		o.logger.Printf("session %s: paused at step %d", o.sess.ID, len(o.snapshotCompleted()))
		return nil
	case session.StatusCancelled:
		o.logger.Printf("session %s: cancelled", o.sess.ID)
		return nil
	}

	o.synthesize(ctx)
	o.sess.SetStatus(session.StatusCompleted)
	o.sess.SetAgentState(session.RoleCoordinator, "idle", "", "")
	o.setRunning(false)
	o.logger.Printf("session %s: completed (%d/%d steps)", o.sess.ID, len(o.snapshotCompleted()), o.totalSteps())
	return nil
}

// ensurePlan creates the plan on first start and reuses the cached one on
// resume so already-completed work is never duplicated.
func (o *Orchestrator) ensurePlan(ctx context.Context) (*Plan, error) {
	o.mu.Lock()
	if o.plan != nil {
		plan := o.plan
		o.mu.Unlock()
		return plan, nil
	}
	o.mu.Unlock()

	plan, err := o.planner.CreatePlan(ctx, o.sess.TargetURL, o.sess.Objectives)
	if err != nil {
		return nil, err
	}
	plan.SessionID = o.sess.ID

	o.mu.Lock()
	o.plan = plan
	o.mu.Unlock()

	descriptions := make([]string, 0, len(plan.Steps))
	for _, s := range plan.Steps {
		descriptions = append(descriptions, fmt.Sprintf("%d. [%s] %s", s.ID, s.Kind, s.Description))
	}
	o.sess.AppendLog(session.ActionLog{
		Role:        session.RoleCoordinator,
		Kind:        session.ActionPlanCreation,
		Description: fmt.Sprintf("created exploration plan with %d steps", len(plan.Steps)),
		Result:      strings.Join(descriptions, "\n"),
	})
	o.sess.UpdateProgress(0, len(plan.Steps))
	return plan, nil
}

// NextEligibleStep picks, among steps not yet completed, the first by id
// order whose dependencies are all in the completed set. Deterministic:
// identical plan and completed set always yield the same step.
func NextEligibleStep(plan *Plan, completed []int) (Step, bool) {
	done := make(map[int]bool, len(completed))
	for _, id := range completed {
		done[id] = true
	}
	for _, step := range plan.Steps {
		if done[step.ID] {
			continue
		}
		eligible := true
		for _, dep := range step.DependsOn {
			if !done[dep] {
				eligible = false
				break
			}
		}
		if eligible {
			return step, true
		}
	}
	return Step{}, false
}

// dispatch routes one step to its capability. A capability failure degrades
// the step into an error log entry; the loop continues.
func (o *Orchestrator) dispatch(ctx context.Context, step Step) StepOutcome {
	if o.stepTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, o.stepTimeout)
		defer cancel()
	}

	var outcome StepOutcome
	switch step.Kind {
	case StepNavigation:
		outcome = o.runNavigation(ctx, step)
	case StepInteraction:
		outcome = o.runInteraction(ctx, step)
	case StepExtraction:
		outcome = o.runExtraction(ctx, step)
	case StepAnalysis:
		outcome = o.runAnalysis(ctx, step)
	default:
		outcome = o.runGenericProbe(ctx, step)
	}
	outcome.StepID = step.ID
	outcome.Kind = step.Kind

	if outcome.Error != "" {
		o.sess.AppendLog(session.ActionLog{
			Role:        outcome.Role,
			Kind:        session.ActionError,
			Description: fmt.Sprintf("step %d (%s) failed", step.ID, step.Kind),
			Error:       outcome.Error,
		})
	}
	return outcome
}

func (o *Orchestrator) runNavigation(ctx context.Context, step Step) StepOutcome {
	outcome := StepOutcome{Role: session.RoleActuator}
	o.sess.SetAgentState(session.RoleActuator, "working", step.Description, "")

	target := o.sess.TargetURL
	res, err := o.actuator.Navigate(ctx, target)
	if err != nil {
		outcome.Error = err.Error()
		return outcome
	}
	if !res.Success {
		outcome.Error = res.Error
		return outcome
	}

	o.mu.Lock()
	o.lastPage = ContentPayload{URL: res.URL, Title: res.Title, Text: res.Text}
	o.mu.Unlock()
	o.sess.SetAgentContext(session.RoleActuator, "current_url", res.URL)

	o.sess.AppendLog(session.ActionLog{
		Role:        session.RoleActuator,
		Kind:        session.ActionNavigation,
		Description: step.Description,
		Result:      fmt.Sprintf("loaded %q (%s)", res.Title, res.URL),
	})
	outcome.Summary = fmt.Sprintf("navigated to %s", res.URL)

	if o.sess.EnableScreenshots {
		o.captureScreenshot(ctx)
	}
	return outcome
}

func (o *Orchestrator) runInteraction(ctx context.Context, step Step) StepOutcome {
	outcome := StepOutcome{Role: session.RoleActuator}
	o.sess.SetAgentState(session.RoleActuator, "working", step.Description, "")

	res, err := o.actuator.Query(ctx, "form, input, button")
	if err != nil {
		outcome.Error = err.Error()
		return outcome
	}
	if !res.Success {
		outcome.Error = res.Error
		return outcome
	}
	o.sess.AppendLog(session.ActionLog{
		Role:        session.RoleActuator,
		Kind:        session.ActionDOMQuery,
		Description: step.Description,
		Result:      fmt.Sprintf("found %d interactive elements", len(res.Elements)),
	})
	outcome.Summary = fmt.Sprintf("inspected %d interactive elements", len(res.Elements))
	return outcome
}

func (o *Orchestrator) runExtraction(ctx context.Context, step Step) StepOutcome {
	outcome := StepOutcome{Role: session.RoleAnalyst}
	o.sess.SetAgentState(session.RoleAnalyst, "working", step.Description, "")

	res, err := o.actuator.Extract(ctx, defaultExtractionSelectors)
	if err != nil {
		outcome.Error = err.Error()
		return outcome
	}
	if !res.Success {
		outcome.Error = res.Error
		return outcome
	}
	total := 0
	details := make(map[string]interface{}, len(res.Data))
	for sel, values := range res.Data {
		total += len(values)
		details[sel] = len(values)
	}
	o.sess.AppendLog(session.ActionLog{
		Role:        session.RoleAnalyst,
		Kind:        session.ActionExtraction,
		Description: step.Description,
		Result:      fmt.Sprintf("extracted %d values across %d selectors", total, len(res.Data)),
		Details:     details,
	})
	outcome.Summary = fmt.Sprintf("extracted %d values", total)
	return outcome
}

func (o *Orchestrator) runAnalysis(ctx context.Context, step Step) StepOutcome {
	outcome := StepOutcome{Role: session.RoleAnalyst}
	o.sess.SetAgentState(session.RoleAnalyst, "working", step.Description, "")

	o.mu.Lock()
	payload := o.lastPage
	o.mu.Unlock()
	if payload.URL == "" {
		payload = ContentPayload{URL: o.sess.TargetURL}
	}

	res, err := o.analyzer.AnalyzeContent(ctx, payload)
	if err != nil {
		outcome.Error = err.Error()
		return outcome
	}
	o.sess.SetAgentState(session.RoleAnalyst, "idle", "", res.Summary)
	o.sess.AppendLog(session.ActionLog{
		Role:        session.RoleAnalyst,
		Kind:        session.ActionAnalysis,
		Description: step.Description,
		Result:      res.Summary,
		Details: map[string]interface{}{
			"content_type":    res.ContentType,
			"insights":        res.Insights,
			"recommendations": res.Recommendations,
		},
	})
	outcome.Summary = res.Summary
	return outcome
}

func (o *Orchestrator) runGenericProbe(ctx context.Context, step Step) StepOutcome {
	outcome := StepOutcome{Role: session.RoleActuator}
	o.sess.SetAgentState(session.RoleActuator, "working", step.Description, "")

	res, err := o.actuator.Query(ctx, "body")
	if err != nil {
		outcome.Error = err.Error()
		return outcome
	}
	if !res.Success {
		outcome.Error = res.Error
		return outcome
	}
	o.sess.AppendLog(session.ActionLog{
		Role:        session.RoleActuator,
		Kind:        session.ActionDOMQuery,
		Description: step.Description,
		Result:      fmt.Sprintf("probed page body, %d elements", len(res.Elements)),
	})
	outcome.Summary = "generic capability probe"
	return outcome
}

func (o *Orchestrator) captureScreenshot(ctx context.Context) {
	shot, err := o.actuator.Screenshot(ctx)
	if err != nil {
		o.sess.AppendLog(session.ActionLog{
			Role:        session.RoleActuator,
			Kind:        session.ActionError,
			Description: "screenshot capture failed",
			Error:       err.Error(),
		})
		return
	}
	if shot == nil {
		return
	}
	if analysis, err := o.analyzer.AnalyzeScreenshot(ctx, *shot); err == nil {
		shot.Observations = append(shot.Observations, analysis.Observations...)
	}
	recorded := o.sess.AppendScreenshot(*shot)
	o.sess.AppendLog(session.ActionLog{
		Role:        session.RoleActuator,
		Kind:        session.ActionScreenshot,
		Description: "captured screenshot",
		Result:      recorded.StoragePath,
	})
}

// synthesize invokes the analyzer once after the loop to assemble the final
// report. Failures degrade to an error log entry.
func (o *Orchestrator) synthesize(ctx context.Context) {
	o.mu.Lock()
	outcomes := append([]StepOutcome(nil), o.outcomes...)
	o.mu.Unlock()

	res, err := o.analyzer.Synthesize(ctx, outcomes)
	if err != nil {
		o.sess.AppendLog(session.ActionLog{
			Role:        session.RoleAnalyst,
			Kind:        session.ActionError,
			Description: "final synthesis failed",
			Error:       err.Error(),
		})
		return
	}
	o.sess.AppendLog(session.ActionLog{
		Role:        session.RoleAnalyst,
		Kind:        session.ActionAnalysis,
		Description: "final synthesis",
		Result:      res.Summary,
		Details: map[string]interface{}{
			"key_findings": res.KeyFindings,
			"confidence":   res.Confidence,
		},
	})
}

// Pause halts the loop after the in-flight step and keeps all loop state.
func (o *Orchestrator) Pause() error {
	o.mu.Lock()
	defer o.mu.Unlock()
	if !o.running {
		return ErrNotRunning
	}
	o.running = false
	o.sess.SetStatus(session.StatusPaused)
	return nil
}

// Resume re-enters the loop from where the completed set left off.
func (o *Orchestrator) Resume(ctx context.Context) error {
	if o.sess.CurrentStatus() != session.StatusPaused {
		return ErrNotPaused
	}
	return o.Start(ctx)
}

// Stop cancels the session. Terminal and idempotent; in-flight capability
// calls finish, the loop exits on its next check.
func (o *Orchestrator) Stop() {
	o.mu.Lock()
	o.running = false
	o.mu.Unlock()
	o.sess.SetStatus(session.StatusCancelled)
	o.actuator.Release()
}

// StatusSnapshot is the read-only view served while the loop runs.
type StatusSnapshot struct {
	SessionID      string                          `json:"session_id"`
	Status         session.Status                  `json:"status"`
	CurrentStep    int                             `json:"current_step"`
	TotalSteps     int                             `json:"total_steps"`
	Progress       float64                         `json:"progress_percentage"`
	LoopCount      int                             `json:"loop_count"`
	CompletedSteps []int                           `json:"completed_steps"`
	LogCount       int                             `json:"log_count"`
	Screenshots    int                             `json:"screenshot_count"`
	Agents         map[string]*session.AgentState  `json:"agent_states"`
}

// Status returns a point-in-time snapshot; safe concurrently with the loop.
func (o *Orchestrator) Status() StatusSnapshot {
	snap := o.sess.Snapshot()
	o.mu.Lock()
	completed := append([]int(nil), o.completed...)
	loopCount := o.loopCount
	o.mu.Unlock()
	return StatusSnapshot{
		SessionID:      snap.ID,
		Status:         snap.Status,
		CurrentStep:    snap.CurrentStep,
		TotalSteps:     snap.TotalSteps,
		Progress:       snap.Progress,
		LoopCount:      loopCount,
		CompletedSteps: completed,
		LogCount:       len(snap.Logs),
		Screenshots:    len(snap.Screenshots),
		Agents:         snap.Agents,
	}
}

func (o *Orchestrator) setRunning(v bool) {
	o.mu.Lock()
	o.running = v
	o.mu.Unlock()
}

func (o *Orchestrator) snapshotCompleted() []int {
	o.mu.Lock()
	defer o.mu.Unlock()
	return append([]int(nil), o.completed...)
}

func (o *Orchestrator) totalSteps() int {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.plan == nil {
		return 0
	}
	return len(o.plan.Steps)
}
