package core

import (
	"context"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/mohammad-safakhou/webscout/models"
	"github.com/mohammad-safakhou/webscout/provider"
)

// BasicPlanner derives a plan from the objectives text with keyword
// heuristics. It is fully deterministic and needs no external dependency.
type BasicPlanner struct{}

// NewBasicPlanner creates the deterministic planner.
func NewBasicPlanner() *BasicPlanner { return &BasicPlanner{} }

// CreatePlan builds the fixed-shape plan: navigate first, analyze the page,
// then objective-driven extraction/interaction/pagination steps, and a final
// analysis step depending on everything before it.
func (p *BasicPlanner) CreatePlan(ctx context.Context, targetURL, objectives string) (*Plan, error) {
	if strings.TrimSpace(targetURL) == "" {
		return nil, fmt.Errorf("target url is empty")
	}
	lower := strings.ToLower(objectives)

	steps := []Step{
		{ID: 1, Kind: StepNavigation, Description: "Navigate to target page " + targetURL, Priority: "high"},
		{ID: 2, Kind: StepAnalysis, Description: "Analyze page structure and content", Priority: "high", DependsOn: []int{1}},
	}
	next := 3
	if containsAny(lower, "extract", "scrape", "collect") {
		steps = append(steps, Step{ID: next, Kind: StepExtraction, Description: "Extract the requested data from the page", Priority: "high", DependsOn: []int{2}})
		next++
	}
	if containsAny(lower, "form", "input", "submit") {
		steps = append(steps, Step{ID: next, Kind: StepInteraction, Description: "Interact with page forms and inputs", Priority: "medium", DependsOn: []int{2}})
		next++
	}
	if containsAny(lower, "scroll", "paginate", "pagination", "load more") {
		steps = append(steps, Step{ID: next, Kind: StepNavigation, Description: "Scroll and paginate to load additional content", Priority: "medium", DependsOn: []int{2}})
		next++
	}

	// Final synthesis-oriented analysis depends on every prior step.
	deps := make([]int, 0, next-1)
	for i := 1; i < next; i++ {
		deps = append(deps, i)
	}
	steps = append(steps, Step{ID: next, Kind: StepAnalysis, Description: "Review collected results against the objectives", Priority: "medium", DependsOn: deps})

	return &Plan{TargetURL: targetURL, Steps: steps, CreatedAt: time.Now()}, nil
}

// RefinePlan appends a generic follow-up step derived from the feedback.
func (p *BasicPlanner) RefinePlan(ctx context.Context, plan *Plan, feedback string) (*Plan, error) {
	if plan == nil {
		return nil, fmt.Errorf("plan is nil")
	}
	id := len(plan.Steps) + 1
	plan.Steps = append(plan.Steps, Step{
		ID:          id,
		Kind:        StepGeneric,
		Description: "Follow up: " + strings.TrimSpace(feedback),
		Priority:    "low",
	})
	return plan, nil
}

func containsAny(s string, subs ...string) bool {
	for _, sub := range subs {
		if strings.Contains(s, sub) {
			return true
		}
	}
	return false
}

// AIPlanner wraps a basic planner with LLM enhancement. The enhanced plan is
// merged over the heuristic one; any provider failure leaves the heuristic
// plan untouched, so a dead LLM never fails a session.
type AIPlanner struct {
	base     *BasicPlanner
	provider provider.Provider
	logger   *log.Logger
}

// NewAIPlanner composes the decorator. Selection happens at construction
// time; callers without a provider simply use the basic planner.
func NewAIPlanner(base *BasicPlanner, prov provider.Provider, logger *log.Logger) *AIPlanner {
	if logger == nil {
		logger = log.New(log.Writer(), "[PLANNER] ", log.LstdFlags)
	}
	return &AIPlanner{base: base, provider: prov, logger: logger}
}

func (p *AIPlanner) CreatePlan(ctx context.Context, targetURL, objectives string) (*Plan, error) {
	plan, err := p.base.CreatePlan(ctx, targetURL, objectives)
	if err != nil {
		return nil, err
	}
	proposed := make([]models.PlanStep, 0, len(plan.Steps))
	for _, s := range plan.Steps {
		proposed = append(proposed, models.PlanStep{
			Kind: string(s.Kind), Description: s.Description, Priority: s.Priority, DependsOn: s.DependsOn,
		})
	}
	enhanced, err := p.provider.EnhancePlan(ctx, targetURL, objectives, proposed)
	if err != nil {
		p.logger.Printf("plan enhancement failed, keeping heuristic plan: %v", err)
		return plan, nil
	}
	merged := mergeEnhancedSteps(plan.Steps, enhanced)
	if len(merged) == 0 {
		return plan, nil
	}
	plan.Steps = merged
	return plan, nil
}

func (p *AIPlanner) RefinePlan(ctx context.Context, plan *Plan, feedback string) (*Plan, error) {
	return p.base.RefinePlan(ctx, plan, feedback)
}

// mergeEnhancedSteps keeps the heuristic plan as the backbone and accepts the
// enhanced list only when it is well formed: valid kinds, non-empty
// descriptions, dependencies referring to earlier steps. IDs are reassigned
// sequentially so the eligibility policy stays order-stable.
func mergeEnhancedSteps(base []Step, enhanced []models.PlanStep) []Step {
	if len(enhanced) == 0 {
		return base
	}
	out := make([]Step, 0, len(enhanced))
	for i, es := range enhanced {
		kind := StepKind(es.Kind)
		switch kind {
		case StepNavigation, StepAnalysis, StepExtraction, StepInteraction, StepGeneric:
		default:
			return base
		}
		if strings.TrimSpace(es.Description) == "" {
			return base
		}
		id := i + 1
		for _, dep := range es.DependsOn {
			if dep < 1 || dep >= id {
				return base
			}
		}
		priority := es.Priority
		if priority == "" {
			priority = "medium"
		}
		out = append(out, Step{ID: id, Kind: kind, Description: es.Description, Priority: priority, DependsOn: es.DependsOn})
	}
	return out
}
