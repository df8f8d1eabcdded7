package core

import (
	"context"
	"log"

	"github.com/mohammad-safakhou/webscout/internal/session"
	"github.com/mohammad-safakhou/webscout/provider"
)

// AIAnalyzer enriches the basic analyzer's results with LLM output. Provider
// failures leave the basic result untouched; an unreachable LLM never fails
// a step.
type AIAnalyzer struct {
	base     *BasicAnalyzer
	provider provider.Provider
	logger   *log.Logger
}

// NewAIAnalyzer composes the decorator at construction time.
func NewAIAnalyzer(base *BasicAnalyzer, prov provider.Provider, logger *log.Logger) *AIAnalyzer {
	if logger == nil {
		logger = log.New(log.Writer(), "[ANALYST] ", log.LstdFlags)
	}
	return &AIAnalyzer{base: base, provider: prov, logger: logger}
}

func (a *AIAnalyzer) AnalyzeContent(ctx context.Context, payload ContentPayload) (ContentAnalysis, error) {
	result, err := a.base.AnalyzeContent(ctx, payload)
	if err != nil {
		return result, err
	}
	summary, insights, perr := a.provider.AnalyzeContent(ctx, payload.URL, payload.Text)
	if perr != nil {
		a.logger.Printf("ai analysis failed, keeping heuristic result: %v", perr)
		return result, nil
	}
	if summary != "" {
		result.Summary = summary
	}
	result.Insights = append(result.Insights, insights...)
	return result, nil
}

func (a *AIAnalyzer) AnalyzeScreenshot(ctx context.Context, shot session.Screenshot) (ScreenshotAnalysis, error) {
	return a.base.AnalyzeScreenshot(ctx, shot)
}

func (a *AIAnalyzer) Synthesize(ctx context.Context, outcomes []StepOutcome) (SynthesisResult, error) {
	return a.base.Synthesize(ctx, outcomes)
}
