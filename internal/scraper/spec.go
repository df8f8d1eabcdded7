package scraper

import (
	"fmt"
	"sort"
	"strings"

	"github.com/mohammad-safakhou/webscout/internal/session"
)

// BuildSpecification derives a scraper specification from a session
// snapshot: the target, the objectives, an action-kind histogram, the
// analysis results collected during exploration and the extraction hints.
// The projection is deterministic for a given snapshot.
func BuildSpecification(snap session.Session) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Build a scraper for %s\n", snap.TargetURL)
	if strings.TrimSpace(snap.Objectives) != "" {
		fmt.Fprintf(&b, "Objectives: %s\n", snap.Objectives)
	}
	b.WriteString("\nExploration evidence:\n")

	histogram := map[session.ActionKind]int{}
	for _, entry := range snap.Logs {
		histogram[entry.Kind]++
	}
	kinds := make([]string, 0, len(histogram))
	for k := range histogram {
		kinds = append(kinds, string(k))
	}
	sort.Strings(kinds)
	for _, k := range kinds {
		fmt.Fprintf(&b, "- %d %s actions\n", histogram[session.ActionKind(k)], k)
	}
	fmt.Fprintf(&b, "- %d screenshots captured\n", len(snap.Screenshots))

	var analyses []string
	var extractions []string
	for _, entry := range snap.Logs {
		switch entry.Kind {
		case session.ActionAnalysis:
			if entry.Result != "" {
				analyses = append(analyses, entry.Result)
			}
		case session.ActionExtraction:
			if entry.Result != "" {
				extractions = append(extractions, entry.Result)
			}
		}
	}
	if len(analyses) > 0 {
		b.WriteString("\nAnalysis findings:\n")
		for _, a := range analyses {
			fmt.Fprintf(&b, "- %s\n", truncate(a, 300))
		}
	}
	if len(extractions) > 0 {
		b.WriteString("\nExtraction hints:\n")
		for _, e := range extractions {
			fmt.Fprintf(&b, "- %s\n", truncate(e, 300))
		}
	}

	b.WriteString("\nRequirements:\n")
	b.WriteString("- Fetch the target page and extract the data described by the objectives.\n")
	b.WriteString("- Print exactly one JSON object to stdout.\n")
	b.WriteString("- The JSON object must include a \"url\" field with the scraped page URL.\n")
	return b.String()
}

func truncate(s string, max int) string {
	s = strings.Join(strings.Fields(s), " ")
	if len(s) <= max {
		return s
	}
	return s[:max] + "…"
}
