// Package approval layers the gated delivery state machine on top of a
// completed exploration session.
package approval

import (
	"fmt"
	"sort"
	"strings"

	"github.com/mohammad-safakhou/webscout/internal/session"
)

// gateOrder is the fixed sequence of gate kinds.
var gateOrder = []session.GateKind{
	session.GateExplorationSummary,
	session.GateCodeGeneration,
	session.GateFinalDelivery,
}

// CheckSequencing reports whether a gate of the required kind may proceed.
// Pure function over the gate list, re-evaluated on every call: every
// prior-kind gate must exist and its latest instance must be approved, so a
// later rejection retroactively blocks forward progress.
func CheckSequencing(snap session.Session, required session.GateKind) (string, bool) {
	for _, kind := range gateOrder {
		if kind == required {
			return "", true
		}
		latest, ok := latestGate(snap, kind)
		if !ok {
			return fmt.Sprintf("gate %s has not been created yet", kind), false
		}
		if latest.Status != session.GateApproved {
			return fmt.Sprintf("gate %s is %s, approval required", kind, latest.Status), false
		}
	}
	return fmt.Sprintf("unknown gate kind %s", required), false
}

func latestGate(snap session.Session, kind session.GateKind) (session.ApprovalGate, bool) {
	for i := len(snap.Gates) - 1; i >= 0; i-- {
		if snap.Gates[i].Kind == kind {
			return snap.Gates[i], true
		}
	}
	return session.ApprovalGate{}, false
}

// RenderSummary builds the human-facing gate summary deterministically from
// session and artifact state. Pure projection, no side effects.
func RenderSummary(snap session.Session, kind session.GateKind) string {
	var b strings.Builder
	switch kind {
	case session.GateExplorationSummary:
		fmt.Fprintf(&b, "Exploration of %s finished with status %s.\n", snap.TargetURL, snap.Status)
		fmt.Fprintf(&b, "Steps: %d/%d (%.0f%%).\n", snap.CurrentStep, snap.TotalSteps, snap.Progress)
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

	case session.GateCodeGeneration:
		if snap.CurrentArtifact >= 0 && snap.CurrentArtifact < len(snap.Artifacts) {
			artifact := snap.Artifacts[snap.CurrentArtifact]
			fmt.Fprintf(&b, "Scraper v%d is %s after %d iterations.\n", artifact.Version, artifact.Status, artifact.IterationCount)
			if n := len(artifact.TestResults); n > 0 {
				last := artifact.TestResults[n-1]
				fmt.Fprintf(&b, "Last test: %s (%d passed, %d failed assertions).\n", last.Status, last.AssertionsPassed, last.AssertionsFailed)
			}
			fmt.Fprintf(&b, "Code preview:\n%s\n", codePreview(artifact.Code))
		} else {
			b.WriteString("No scraper artifact generated yet.\n")
		}

	case session.GateFinalDelivery:
		fmt.Fprintf(&b, "Deliver scraper package for %s.\n", snap.TargetURL)
		if snap.CurrentArtifact >= 0 && snap.CurrentArtifact < len(snap.Artifacts) {
			artifact := snap.Artifacts[snap.CurrentArtifact]
			fmt.Fprintf(&b, "Final version: v%d, last test %s.\n", artifact.Version, artifact.LastTestStatus)
		}
	}
	return b.String()
}

func codePreview(code string) string {
	lines := strings.Split(code, "\n")
	if len(lines) > 15 {
		lines = lines[:15]
		lines = append(lines, "...")
	}
	return strings.Join(lines, "\n")
}
