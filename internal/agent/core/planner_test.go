package core

import (
	"context"
	"errors"
	"reflect"
	"testing"

	"github.com/mohammad-safakhou/webscout/models"
)

func TestCreatePlanDeterministic(t *testing.T) {
	p := NewBasicPlanner()
	first, err := p.CreatePlan(context.Background(), "https://example.com", "extract product prices")
	if err != nil {
		t.Fatalf("CreatePlan: %v", err)
	}
	second, err := p.CreatePlan(context.Background(), "https://example.com", "extract product prices")
	if err != nil {
		t.Fatalf("CreatePlan: %v", err)
	}
	if !reflect.DeepEqual(first.Steps, second.Steps) {
		t.Fatalf("identical inputs produced different plans:\n%v\n%v", first.Steps, second.Steps)
	}
}

func TestCreatePlanShape(t *testing.T) {
	p := NewBasicPlanner()
	plan, err := p.CreatePlan(context.Background(), "https://example.com/shop", "extract prices, submit the search form, paginate all results")
	if err != nil {
		t.Fatalf("CreatePlan: %v", err)
	}

	if plan.Steps[0].Kind != StepNavigation {
		t.Fatalf("first step kind = %s, want navigation", plan.Steps[0].Kind)
	}
	if plan.Steps[1].Kind != StepAnalysis || !reflect.DeepEqual(plan.Steps[1].DependsOn, []int{1}) {
		t.Fatalf("second step = %+v, want analysis depending on step 1", plan.Steps[1])
	}

	kinds := map[StepKind]int{}
	for _, s := range plan.Steps {
		kinds[s.Kind]++
	}
	if kinds[StepExtraction] != 1 {
		t.Fatalf("objectives mention extract but plan has %d extraction steps", kinds[StepExtraction])
	}
	if kinds[StepInteraction] != 1 {
		t.Fatalf("objectives mention a form but plan has %d interaction steps", kinds[StepInteraction])
	}
	if kinds[StepNavigation] != 2 {
		t.Fatalf("objectives mention pagination but plan has %d navigation steps", kinds[StepNavigation])
	}

	// IDs are sequential and the final step depends on everything before it.
	for i, s := range plan.Steps {
		if s.ID != i+1 {
			t.Fatalf("step %d has id %d", i, s.ID)
		}
	}
	last := plan.Steps[len(plan.Steps)-1]
	if last.Kind != StepAnalysis || len(last.DependsOn) != len(plan.Steps)-1 {
		t.Fatalf("final step = %+v, want analysis depending on all prior steps", last)
	}
}

func TestCreatePlanRejectsEmptyURL(t *testing.T) {
	if _, err := NewBasicPlanner().CreatePlan(context.Background(), "  ", "anything"); err == nil {
		t.Fatal("expected error for empty target url")
	}
}

func TestRefinePlanAppendsOnly(t *testing.T) {
	p := NewBasicPlanner()
	plan, err := p.CreatePlan(context.Background(), "https://example.com", "")
	if err != nil {
		t.Fatalf("CreatePlan: %v", err)
	}
	before := len(plan.Steps)

	refined, err := p.RefinePlan(context.Background(), plan, "check the footer links")
	if err != nil {
		t.Fatalf("RefinePlan: %v", err)
	}
	if len(refined.Steps) != before+1 {
		t.Fatalf("refined plan has %d steps, want %d", len(refined.Steps), before+1)
	}
	added := refined.Steps[len(refined.Steps)-1]
	if added.Kind != StepGeneric || added.ID != before+1 {
		t.Fatalf("appended step = %+v", added)
	}
}

// planProvider fakes only the EnhancePlan path; other methods are unused here.
type planProvider struct {
	steps []models.PlanStep
	err   error
}

func (p *planProvider) EnhancePlan(ctx context.Context, targetURL, objectives string, steps []models.PlanStep) ([]models.PlanStep, error) {
	return p.steps, p.err
}
func (p *planProvider) AnalyzeContent(ctx context.Context, url, text string) (string, []string, error) {
	return "", nil, errors.New("not implemented")
}
func (p *planProvider) GenerateCode(ctx context.Context, specification string) (string, error) {
	return "", errors.New("not implemented")
}
func (p *planProvider) RefineCode(ctx context.Context, specification, code, failure string) (string, error) {
	return "", errors.New("not implemented")
}
func (p *planProvider) Chat(ctx context.Context, history []models.ChatTurn, message string) (string, error) {
	return "", errors.New("not implemented")
}

func TestAIPlannerKeepsHeuristicPlanOnProviderError(t *testing.T) {
	base := NewBasicPlanner()
	want, _ := base.CreatePlan(context.Background(), "https://example.com", "extract tables")

	ai := NewAIPlanner(base, &planProvider{err: errors.New("model unavailable")}, nil)
	got, err := ai.CreatePlan(context.Background(), "https://example.com", "extract tables")
	if err != nil {
		t.Fatalf("CreatePlan: %v", err)
	}
	if !reflect.DeepEqual(got.Steps, want.Steps) {
		t.Fatal("provider failure did not fall back to the heuristic plan")
	}
}

func TestAIPlannerRejectsMalformedEnhancement(t *testing.T) {
	cases := []struct {
		name  string
		steps []models.PlanStep
	}{
		{"unknown kind", []models.PlanStep{{Kind: "teleport", Description: "x"}}},
		{"empty description", []models.PlanStep{{Kind: "navigation", Description: "  "}}},
		{"forward dependency", []models.PlanStep{
			{Kind: "navigation", Description: "go", DependsOn: []int{2}},
			{Kind: "analysis", Description: "look"},
		}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			base := NewBasicPlanner()
			want, _ := base.CreatePlan(context.Background(), "https://example.com", "")
			ai := NewAIPlanner(base, &planProvider{steps: tc.steps}, nil)
			got, err := ai.CreatePlan(context.Background(), "https://example.com", "")
			if err != nil {
				t.Fatalf("CreatePlan: %v", err)
			}
			if !reflect.DeepEqual(got.Steps, want.Steps) {
				t.Fatal("malformed enhancement was accepted")
			}
		})
	}
}

func TestAIPlannerAcceptsWellFormedEnhancement(t *testing.T) {
	enhanced := []models.PlanStep{
		{Kind: "navigation", Description: "open the category page"},
		{Kind: "extraction", Description: "pull product rows", DependsOn: []int{1}},
		{Kind: "analysis", Description: "review rows", DependsOn: []int{1, 2}},
	}
	ai := NewAIPlanner(NewBasicPlanner(), &planProvider{steps: enhanced}, nil)
	got, err := ai.CreatePlan(context.Background(), "https://example.com", "")
	if err != nil {
		t.Fatalf("CreatePlan: %v", err)
	}
	if len(got.Steps) != 3 {
		t.Fatalf("enhanced plan has %d steps, want 3", len(got.Steps))
	}
	for i, s := range got.Steps {
		if s.ID != i+1 {
			t.Fatalf("step %d id = %d, want %d", i, s.ID, i+1)
		}
	}
	if got.Steps[1].Kind != StepExtraction || got.Steps[1].Priority != "medium" {
		t.Fatalf("step 2 = %+v, want extraction with default priority", got.Steps[1])
	}
}
