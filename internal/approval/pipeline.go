package approval

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/mohammad-safakhou/webscout/internal/agent/telemetry"
	"github.com/mohammad-safakhou/webscout/internal/scraper"
	"github.com/mohammad-safakhou/webscout/internal/session"
)

var (
	// ErrNotEligible wraps a sequencing rejection; the reason names the gate.
	ErrNotEligible = errors.New("gate sequencing not satisfied")
	// ErrGateNotPending is returned when deciding an already-decided gate.
	ErrGateNotPending = errors.New("gate already decided")
	// ErrNoArtifact is returned when an operation needs a generated scraper.
	ErrNoArtifact = errors.New("no scraper artifact for session")
)

// Pipeline drives the gated delivery flow: summary gate, generate/test/
// refine against the iteration budget, code gate, delivery gate, package.
type Pipeline struct {
	store         *session.Store
	generator     *scraper.Generator
	tester        *scraper.Tester
	tele          *telemetry.Telemetry
	logger        *log.Logger
	maxIterations int

	mu      sync.Mutex
	history map[string][]string // artifact id -> code per version
}

// NewPipeline wires the delivery pipeline.
func NewPipeline(store *session.Store, generator *scraper.Generator, tester *scraper.Tester, tele *telemetry.Telemetry, logger *log.Logger, maxIterations int) *Pipeline {
	if logger == nil {
		logger = log.New(log.Writer(), "[PIPELINE] ", log.LstdFlags)
	}
	if maxIterations <= 0 {
		maxIterations = 5
	}
	return &Pipeline{
		store:         store,
		generator:     generator,
		tester:        tester,
		tele:          tele,
		logger:        logger,
		maxIterations: maxIterations,
		history:       make(map[string][]string),
	}
}

// RequestGate creates a pending gate of the given kind once sequencing
// allows it. The exploration summary gate additionally requires a finished
// exploration.
func (p *Pipeline) RequestGate(sessionID string, kind session.GateKind) (session.ApprovalGate, error) {
	sess, err := p.store.Get(sessionID)
	if err != nil {
		return session.ApprovalGate{}, err
	}
	snap := sess.Snapshot()
	if kind == session.GateExplorationSummary && snap.Status != session.StatusCompleted {
		return session.ApprovalGate{}, fmt.Errorf("%w: exploration is %s, not completed", ErrNotEligible, snap.Status)
	}
	if reason, ok := CheckSequencing(snap, kind); !ok {
		return session.ApprovalGate{}, fmt.Errorf("%w: %s", ErrNotEligible, reason)
	}
	gate := sess.AppendGate(session.ApprovalGate{
		Kind:    kind,
		Status:  session.GatePending,
		Summary: RenderSummary(snap, kind),
	})
	p.store.Persist(sessionID)
	p.logger.Printf("session %s: gate %s requested (%s)", sessionID, kind, gate.ID)
	return gate, nil
}

// Decide applies an approval or rejection to a pending gate.
func (p *Pipeline) Decide(sessionID, gateID string, approve bool, by, feedback string) (session.ApprovalGate, error) {
	sess, err := p.store.Get(sessionID)
	if err != nil {
		return session.ApprovalGate{}, err
	}
	snap := sess.Snapshot()
	var target *session.ApprovalGate
	for i := range snap.Gates {
		if snap.Gates[i].ID == gateID {
			target = &snap.Gates[i]
			break
		}
	}
	if target == nil {
		return session.ApprovalGate{}, fmt.Errorf("gate %s not found", gateID)
	}
	if target.Status != session.GatePending {
		return session.ApprovalGate{}, fmt.Errorf("%w: gate %s is %s", ErrGateNotPending, gateID, target.Status)
	}
	status := session.GateRejected
	if approve {
		status = session.GateApproved
	}
	sess.DecideGate(gateID, status, by, feedback)
	p.tele.GateDecided(string(target.Kind), string(status))
	p.store.Persist(sessionID)
	p.logger.Printf("session %s: gate %s %s by %s", sessionID, target.Kind, status, by)

	decided := *target
	decided.Status = status
	decided.Feedback = feedback
	decided.ApprovedBy = by
	return decided, nil
}

// GenerateAndTest runs the refinement loop: generate the first version, then
// test and refine until a test passes or the iteration budget is exhausted,
// in which case the artifact is forced to failed. Refinement preserves the
// artifact identity and full test history.
func (p *Pipeline) GenerateAndTest(ctx context.Context, sessionID string, assertions []scraper.Assertion) (session.GeneratedArtifact, error) {
	sess, err := p.store.Get(sessionID)
	if err != nil {
		return session.GeneratedArtifact{}, err
	}
	snap := sess.Snapshot()
	if reason, ok := CheckSequencing(snap, session.GateCodeGeneration); !ok {
		return session.GeneratedArtifact{}, fmt.Errorf("%w: %s", ErrNotEligible, reason)
	}

	specification := scraper.BuildSpecification(snap)
	artifact := p.generator.Generate(ctx, snap, specification)
	sess.AppendArtifact(artifact)
	p.recordVersion(artifact)
	p.store.Persist(sessionID)
	if artifact.Status == session.ArtifactFailed {
		return artifact, nil
	}

	for i := 0; i < p.maxIterations; i++ {
		artifact.Status = session.ArtifactTesting
		artifact.IterationCount = i + 1
		sess.ReplaceArtifact(artifact)

		result := p.tester.Test(ctx, artifact, assertions)
		artifact.AddTestResult(result)
		p.tele.TestRun(string(result.Status))
		sess.ReplaceArtifact(artifact)
		p.store.Persist(sessionID)

		if result.Status == session.TestPassed {
			artifact.Status = session.ArtifactCompleted
			break
		}
		if i < p.maxIterations-1 {
			p.tele.Refined()
			p.generator.Refine(ctx, &artifact, snap, result)
			p.recordVersion(artifact)
			if artifact.Status == session.ArtifactFailed {
				break
			}
		} else {
			// Budget exhausted without a passing test.
			artifact.Status = session.ArtifactFailed
		}
	}

	sess.ReplaceArtifact(artifact)
	p.store.Persist(sessionID)
	p.logger.Printf("session %s: scraper v%d finished %s after %d iterations", sessionID, artifact.Version, artifact.Status, artifact.IterationCount)

	if artifact.Status == session.ArtifactCompleted {
		snap = sess.Snapshot()
		sess.AppendGate(session.ApprovalGate{
			Kind:    session.GateCodeGeneration,
			Status:  session.GatePending,
			Summary: RenderSummary(snap, session.GateCodeGeneration),
		})
		p.store.Persist(sessionID)
	}
	return artifact, nil
}

// TestCurrent re-runs the test suite against the current artifact without
// refinement. Used by the standalone test endpoint.
func (p *Pipeline) TestCurrent(ctx context.Context, sessionID string, assertions []scraper.Assertion) (session.TestResult, error) {
	sess, err := p.store.Get(sessionID)
	if err != nil {
		return session.TestResult{}, err
	}
	artifact, ok := sess.Artifact()
	if !ok {
		return session.TestResult{}, ErrNoArtifact
	}
	result := p.tester.Test(ctx, artifact, assertions)
	artifact.AddTestResult(result)
	sess.ReplaceArtifact(artifact)
	p.tele.TestRun(string(result.Status))
	p.store.Persist(sessionID)
	return result, nil
}

// Deliver creates the final delivery gate once the code gate is approved.
func (p *Pipeline) Deliver(sessionID string) (session.ApprovalGate, error) {
	return p.RequestGate(sessionID, session.GateFinalDelivery)
}

// Package builds the deliverable once the final delivery gate is approved.
func (p *Pipeline) Package(sessionID string) (scraper.PackageDescriptor, []byte, error) {
	sess, err := p.store.Get(sessionID)
	if err != nil {
		return scraper.PackageDescriptor{}, nil, err
	}
	snap := sess.Snapshot()
	latest, ok := latestGate(snap, session.GateFinalDelivery)
	if !ok || latest.Status != session.GateApproved {
		return scraper.PackageDescriptor{}, nil, fmt.Errorf("%w: final delivery gate not approved", ErrNotEligible)
	}
	artifact, ok := sess.Artifact()
	if !ok {
		return scraper.PackageDescriptor{}, nil, ErrNoArtifact
	}
	return scraper.BuildPackage(snap, artifact)
}

// Diffs reports per-version change summaries for the session's artifact.
func (p *Pipeline) Diffs(sessionID string) ([]scraper.VersionDiff, error) {
	sess, err := p.store.Get(sessionID)
	if err != nil {
		return nil, err
	}
	artifact, ok := sess.Artifact()
	if !ok {
		return nil, ErrNoArtifact
	}
	p.mu.Lock()
	versions := append([]string(nil), p.history[artifact.ID]...)
	p.mu.Unlock()

	diffs := make([]scraper.VersionDiff, 0, len(versions))
	prev := ""
	for i, code := range versions {
		diffs = append(diffs, scraper.DiffVersions(i+1, prev, code, time.Now()))
		prev = code
	}
	return diffs, nil
}

func (p *Pipeline) recordVersion(artifact session.GeneratedArtifact) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.history[artifact.ID] = append(p.history[artifact.ID], artifact.Code)
}
