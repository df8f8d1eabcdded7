package core

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/uuid"

	"github.com/mohammad-safakhou/webscout/internal/findings"
	"github.com/mohammad-safakhou/webscout/internal/session"
)

// BasicAnalyzer classifies and summarizes page content with keyword
// heuristics. Collected text is also pushed into the session's findings
// index so later steps and the search API can query it.
type BasicAnalyzer struct {
	index *findings.Index
}

// NewBasicAnalyzer creates the deterministic analyzer. The index is optional.
func NewBasicAnalyzer(index *findings.Index) *BasicAnalyzer {
	return &BasicAnalyzer{index: index}
}

func (a *BasicAnalyzer) AnalyzeContent(ctx context.Context, payload ContentPayload) (ContentAnalysis, error) {
	text := strings.TrimSpace(payload.Text)
	if text == "" {
		return ContentAnalysis{ContentType: "empty", Summary: "No readable content found on the page."}, nil
	}

	if a.index != nil {
		chunk := findings.Chunk{DocID: uuid.NewString(), URL: payload.URL, Title: payload.Title, Text: text}
		if err := a.index.Add(chunk); err != nil {
			return ContentAnalysis{}, fmt.Errorf("index content: %w", err)
		}
	}

	lower := strings.ToLower(text)
	contentType := classifyContent(lower)

	var insights []string
	if strings.Contains(lower, "table") || strings.Contains(lower, "|") {
		insights = append(insights, "page appears to contain tabular data")
	}
	if strings.Contains(lower, "login") || strings.Contains(lower, "sign in") {
		insights = append(insights, "page may require authentication")
	}
	if strings.Contains(lower, "next page") || strings.Contains(lower, "load more") {
		insights = append(insights, "page appears to be paginated")
	}
	words := len(strings.Fields(text))
	insights = append(insights, fmt.Sprintf("page contains roughly %d words of readable text", words))

	recommendations := []string{"extract structured elements with CSS selectors"}
	if contentType == "listing" {
		recommendations = append(recommendations, "iterate over repeated item blocks")
	}

	return ContentAnalysis{
		ContentType:     contentType,
		Summary:         summarize(text),
		Insights:        insights,
		Recommendations: recommendations,
	}, nil
}

func (a *BasicAnalyzer) AnalyzeScreenshot(ctx context.Context, shot session.Screenshot) (ScreenshotAnalysis, error) {
	obs := []string{fmt.Sprintf("captured %s", shot.URL)}
	if shot.Title != "" {
		obs = append(obs, "page title: "+shot.Title)
	}
	if shot.DOMSummary != "" {
		obs = append(obs, summarize(shot.DOMSummary))
	}
	return ScreenshotAnalysis{Observations: obs}, nil
}

func (a *BasicAnalyzer) Synthesize(ctx context.Context, outcomes []StepOutcome) (SynthesisResult, error) {
	var findingsList []string
	failed := 0
	for _, o := range outcomes {
		if o.Error != "" {
			failed++
			findingsList = append(findingsList, fmt.Sprintf("step %d (%s) failed: %s", o.StepID, o.Kind, o.Error))
			continue
		}
		if o.Summary != "" {
			findingsList = append(findingsList, fmt.Sprintf("step %d (%s): %s", o.StepID, o.Kind, o.Summary))
		}
	}
	total := len(outcomes)
	confidence := 0.0
	if total > 0 {
		confidence = float64(total-failed) / float64(total)
	}
	summary := fmt.Sprintf("Executed %d steps, %d succeeded, %d failed.", total, total-failed, failed)
	if a.index != nil && a.index.Len() > 0 {
		summary += fmt.Sprintf(" Collected %d content chunks.", a.index.Len())
	}
	return SynthesisResult{Summary: summary, KeyFindings: findingsList, Confidence: confidence}, nil
}

func classifyContent(lower string) string {
	switch {
	case strings.Contains(lower, "add to cart") || strings.Contains(lower, "price"):
		return "commerce"
	case strings.Contains(lower, "published") || strings.Contains(lower, "author"):
		return "article"
	case strings.Count(lower, "\n") > 30:
		return "listing"
	default:
		return "general"
	}
}

func summarize(text string) string {
	text = strings.Join(strings.Fields(text), " ")
	if len(text) <= 280 {
		return text
	}
	return text[:280] + "…"
}
