package core

import (
	"context"
	"fmt"
	"strings"

	"github.com/mohammad-safakhou/webscout/internal/session"
)

// SimulatedActuator is the no-browser implementation. It answers every call
// with deterministic synthetic results, which keeps the orchestration loop
// runnable in environments without Chrome and backs the test suite.
type SimulatedActuator struct {
	currentURL   string
	currentTitle string
	released     bool
}

// NewSimulatedActuator creates the deterministic actuator.
func NewSimulatedActuator() *SimulatedActuator { return &SimulatedActuator{} }

func (a *SimulatedActuator) Navigate(ctx context.Context, url string) (NavigationResult, error) {
	if strings.TrimSpace(url) == "" {
		return NavigationResult{Success: false, Error: "invalid url"}, nil
	}
	a.currentURL = url
	a.currentTitle = "Simulated page at " + url
	return NavigationResult{
		Success: true,
		URL:     url,
		Title:   a.currentTitle,
		Text:    fmt.Sprintf("Simulated content for %s. The page contains a heading, a table and several links.", url),
	}, nil
}

func (a *SimulatedActuator) Query(ctx context.Context, selector string) (QueryResult, error) {
	if a.currentURL == "" {
		return QueryResult{Success: false, Selector: selector, Error: "no page loaded"}, nil
	}
	return QueryResult{
		Success:  true,
		Selector: selector,
		Elements: []Element{{Tag: "div", Text: "simulated match for " + selector}},
	}, nil
}

func (a *SimulatedActuator) Screenshot(ctx context.Context) (*session.Screenshot, error) {
	if a.currentURL == "" {
		return nil, nil
	}
	return &session.Screenshot{
		URL:          a.currentURL,
		Title:        a.currentTitle,
		Width:        1280,
		Height:       800,
		Observations: []string{"simulated capture"},
	}, nil
}

func (a *SimulatedActuator) Extract(ctx context.Context, selectors []string) (ExtractionResult, error) {
	if a.currentURL == "" {
		return ExtractionResult{Success: false, Error: "no page loaded"}, nil
	}
	data := make(map[string][]string, len(selectors))
	for _, sel := range selectors {
		data[sel] = []string{"simulated value for " + sel}
	}
	return ExtractionResult{Success: true, Data: data}, nil
}

func (a *SimulatedActuator) Release() { a.released = true }

// Released reports whether Release has been called at least once.
func (a *SimulatedActuator) Released() bool { return a.released }
