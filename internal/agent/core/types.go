package core

import (
	"context"
	"time"

	"github.com/mohammad-safakhou/webscout/internal/session"
)

// StepKind classifies one unit of planned work.
type StepKind string

const (
	StepNavigation  StepKind = "navigation"
	StepAnalysis    StepKind = "analysis"
	StepExtraction  StepKind = "extraction"
	StepInteraction StepKind = "interaction"
	StepGeneric     StepKind = "generic"
)

// Step is one planned unit of work. IDs are sequential and 1-based;
// DependsOn lists step ids that must be completed before this step is
// eligible.
type Step struct {
	ID          int      `json:"id"`
	Kind        StepKind `json:"kind"`
	Description string   `json:"description"`
	Priority    string   `json:"priority"`
	DependsOn   []int    `json:"depends_on,omitempty"`
}

// Plan is the ordered step list for one session. Plans are generated once at
// session start; refinement appends steps, never mutates existing ones.
type Plan struct {
	SessionID string    `json:"session_id"`
	TargetURL string    `json:"target_url"`
	Steps     []Step    `json:"steps"`
	CreatedAt time.Time `json:"created_at"`
}

// NavigationResult is the typed outcome of an Actuator.Navigate call.
type NavigationResult struct {
	Success bool   `json:"success"`
	URL     string `json:"url"`
	Title   string `json:"title,omitempty"`
	Text    string `json:"text,omitempty"` // readable page text, truncated
	Error   string `json:"error,omitempty"`
}

// Element is a single matched DOM node.
type Element struct {
	Tag  string `json:"tag"`
	Text string `json:"text,omitempty"`
	Attr string `json:"attr,omitempty"`
}

// QueryResult is the typed outcome of an Actuator.Query call.
type QueryResult struct {
	Success  bool      `json:"success"`
	Selector string    `json:"selector"`
	Elements []Element `json:"elements,omitempty"`
	Error    string    `json:"error,omitempty"`
}

// ExtractionResult is the typed outcome of an Actuator.Extract call.
type ExtractionResult struct {
	Success bool                `json:"success"`
	Data    map[string][]string `json:"data,omitempty"` // selector -> matched texts
	Error   string              `json:"error,omitempty"`
}

// ContentPayload is what the Analyzer receives for content analysis.
type ContentPayload struct {
	URL   string `json:"url"`
	Title string `json:"title,omitempty"`
	Text  string `json:"text"`
}

// ContentAnalysis is the typed outcome of Analyzer.AnalyzeContent.
type ContentAnalysis struct {
	ContentType     string   `json:"content_type"`
	Summary         string   `json:"summary"`
	Insights        []string `json:"insights,omitempty"`
	Recommendations []string `json:"recommendations,omitempty"`
}

// ScreenshotAnalysis is the typed outcome of Analyzer.AnalyzeScreenshot.
type ScreenshotAnalysis struct {
	Observations []string `json:"observations,omitempty"`
}

// SynthesisResult is the final report assembled after the loop finishes.
type SynthesisResult struct {
	Summary     string   `json:"summary"`
	KeyFindings []string `json:"key_findings,omitempty"`
	Confidence  float64  `json:"confidence"`
}

// StepOutcome records one dispatched step for synthesis and status reporting.
type StepOutcome struct {
	StepID   int           `json:"step_id"`
	Kind     StepKind      `json:"kind"`
	Role     string        `json:"role"`
	Summary  string        `json:"summary"`
	Error    string        `json:"error,omitempty"`
	Duration time.Duration `json:"duration"`
}

// Planner produces and refines step plans for a target page.
type Planner interface {
	// CreatePlan derives an ordered step list from the target and objectives.
	// Fails fast with an error when no plan can be produced.
	CreatePlan(ctx context.Context, targetURL, objectives string) (*Plan, error)

	// RefinePlan appends follow-up steps based on feedback. Existing steps
	// are never mutated.
	RefinePlan(ctx context.Context, plan *Plan, feedback string) (*Plan, error)
}

// Actuator drives the page: navigation, DOM queries, screenshots, extraction.
type Actuator interface {
	Navigate(ctx context.Context, url string) (NavigationResult, error)
	Query(ctx context.Context, selector string) (QueryResult, error)
	Screenshot(ctx context.Context) (*session.Screenshot, error)
	Extract(ctx context.Context, selectors []string) (ExtractionResult, error)

	// Release tears down browser resources. Idempotent; called on every
	// orchestrator exit path.
	Release()
}

// Analyzer summarizes content, screenshots and accumulated findings.
type Analyzer interface {
	AnalyzeContent(ctx context.Context, payload ContentPayload) (ContentAnalysis, error)
	AnalyzeScreenshot(ctx context.Context, shot session.Screenshot) (ScreenshotAnalysis, error)
	Synthesize(ctx context.Context, outcomes []StepOutcome) (SynthesisResult, error)
}
