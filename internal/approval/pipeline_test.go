package approval

import (
	"context"
	"errors"
	"os/exec"
	"testing"
	"time"

	"github.com/mohammad-safakhou/webscout/internal/scraper"
	"github.com/mohammad-safakhou/webscout/internal/session"
	"github.com/mohammad-safakhou/webscout/models"
)

// codeProvider returns fixed scraper code for generation and refinement.
type codeProvider struct {
	code string
}

func (p *codeProvider) EnhancePlan(ctx context.Context, targetURL, objectives string, steps []models.PlanStep) ([]models.PlanStep, error) {
	return nil, errors.New("not implemented")
}
func (p *codeProvider) AnalyzeContent(ctx context.Context, url, text string) (string, []string, error) {
	return "", nil, errors.New("not implemented")
}
func (p *codeProvider) GenerateCode(ctx context.Context, specification string) (string, error) {
	return p.code, nil
}
func (p *codeProvider) RefineCode(ctx context.Context, specification, code, failure string) (string, error) {
	return p.code, nil
}
func (p *codeProvider) Chat(ctx context.Context, history []models.ChatTurn, message string) (string, error) {
	return "", errors.New("not implemented")
}

const passingScript = `import json
print(json.dumps({"url": "https://example.com", "items": [1, 2, 3]}))
`

const crashingScript = `import sys
sys.exit(3)
`

func requirePython(t *testing.T) {
	t.Helper()
	if _, err := exec.LookPath("python3"); err != nil {
		t.Skip("python3 not available")
	}
}

func newTestPipeline(t *testing.T, code string, maxIterations int) (*Pipeline, *session.Store) {
	t.Helper()
	store := session.NewStore(nil, nil)
	generator := scraper.NewGenerator(&codeProvider{code: code}, nil)
	tester, err := scraper.NewTester(scraper.Limits{Timeout: 30 * time.Second, Interpreter: "python3"}, nil)
	if err != nil {
		t.Fatalf("NewTester: %v", err)
	}
	return NewPipeline(store, generator, tester, nil, nil, maxIterations), store
}

func newCompletedSession(store *session.Store) *session.Session {
	sess := session.New("https://example.com", "extract prices", 5, false)
	store.Create(sess)
	sess.SetStatus(session.StatusRunning)
	sess.AppendLog(session.ActionLog{Kind: session.ActionNavigation, Description: "navigate"})
	sess.UpdateProgress(3, 3)
	sess.SetStatus(session.StatusCompleted)
	return sess
}

func approveGate(t *testing.T, p *Pipeline, sessionID, gateID string) {
	t.Helper()
	if _, err := p.Decide(sessionID, gateID, true, "alice", ""); err != nil {
		t.Fatalf("approve gate %s: %v", gateID, err)
	}
}

func TestRequestGateRequiresCompletedExploration(t *testing.T) {
	p, store := newTestPipeline(t, passingScript, 3)
	sess := session.New("https://example.com", "", 5, false)
	store.Create(sess)
	sess.SetStatus(session.StatusRunning)

	if _, err := p.RequestGate(sess.ID, session.GateExplorationSummary); !errors.Is(err, ErrNotEligible) {
		t.Fatalf("summary gate on running session = %v, want ErrNotEligible", err)
	}
}

func TestDecideRejectsDoubleDecision(t *testing.T) {
	p, store := newTestPipeline(t, passingScript, 3)
	sess := newCompletedSession(store)

	gate, err := p.RequestGate(sess.ID, session.GateExplorationSummary)
	if err != nil {
		t.Fatalf("RequestGate: %v", err)
	}
	if _, err := p.Decide(sess.ID, gate.ID, false, "alice", "redo it"); err != nil {
		t.Fatalf("Decide: %v", err)
	}
	if _, err := p.Decide(sess.ID, gate.ID, true, "bob", ""); !errors.Is(err, ErrGateNotPending) {
		t.Fatalf("second decision = %v, want ErrGateNotPending", err)
	}
}

func TestGenerateBlockedWithoutApproval(t *testing.T) {
	p, store := newTestPipeline(t, passingScript, 3)
	sess := newCompletedSession(store)

	if _, err := p.GenerateAndTest(context.Background(), sess.ID, nil); !errors.Is(err, ErrNotEligible) {
		t.Fatalf("generate without summary approval = %v, want ErrNotEligible", err)
	}

	gate, err := p.RequestGate(sess.ID, session.GateExplorationSummary)
	if err != nil {
		t.Fatalf("RequestGate: %v", err)
	}
	if _, err := p.Decide(sess.ID, gate.ID, false, "alice", "not enough data"); err != nil {
		t.Fatalf("Decide: %v", err)
	}
	if _, err := p.GenerateAndTest(context.Background(), sess.ID, nil); !errors.Is(err, ErrNotEligible) {
		t.Fatalf("generate after rejection = %v, want ErrNotEligible", err)
	}
}

func TestPipelineHappyPath(t *testing.T) {
	requirePython(t)
	p, store := newTestPipeline(t, passingScript, 3)
	sess := newCompletedSession(store)

	gate, err := p.RequestGate(sess.ID, session.GateExplorationSummary)
	if err != nil {
		t.Fatalf("RequestGate: %v", err)
	}
	approveGate(t, p, sess.ID, gate.ID)

	artifact, err := p.GenerateAndTest(context.Background(), sess.ID, nil)
	if err != nil {
		t.Fatalf("GenerateAndTest: %v", err)
	}
	if artifact.Status != session.ArtifactCompleted {
		t.Fatalf("artifact status = %s, want completed", artifact.Status)
	}
	if artifact.IterationCount != 1 || len(artifact.TestResults) != 1 {
		t.Fatalf("iterations = %d, tests = %d, want 1/1", artifact.IterationCount, len(artifact.TestResults))
	}
	if artifact.LastTestStatus != session.TestPassed {
		t.Fatalf("last test = %s, want passed", artifact.LastTestStatus)
	}

	// A pending code gate is created on success.
	codeGates := sess.GatesOfKind(session.GateCodeGeneration)
	if len(codeGates) != 1 || codeGates[0].Status != session.GatePending {
		t.Fatalf("code gates = %+v, want one pending", codeGates)
	}
	approveGate(t, p, sess.ID, codeGates[0].ID)

	// Delivery gate, then packaging only after its approval.
	delivery, err := p.Deliver(sess.ID)
	if err != nil {
		t.Fatalf("Deliver: %v", err)
	}
	if _, _, err := p.Package(sess.ID); !errors.Is(err, ErrNotEligible) {
		t.Fatalf("Package before delivery approval = %v, want ErrNotEligible", err)
	}
	approveGate(t, p, sess.ID, delivery.ID)

	descriptor, payload, err := p.Package(sess.ID)
	if err != nil {
		t.Fatalf("Package: %v", err)
	}
	if len(payload) == 0 || descriptor.FileName == "" {
		t.Fatalf("empty package: descriptor=%+v payload=%d bytes", descriptor, len(payload))
	}

	diffs, err := p.Diffs(sess.ID)
	if err != nil {
		t.Fatalf("Diffs: %v", err)
	}
	if len(diffs) != 1 {
		t.Fatalf("diffs = %d versions, want 1", len(diffs))
	}
}

func TestBudgetExhaustionFailsArtifact(t *testing.T) {
	requirePython(t)
	const budget = 3
	p, store := newTestPipeline(t, crashingScript, budget)
	sess := newCompletedSession(store)

	gate, err := p.RequestGate(sess.ID, session.GateExplorationSummary)
	if err != nil {
		t.Fatalf("RequestGate: %v", err)
	}
	approveGate(t, p, sess.ID, gate.ID)

	artifact, err := p.GenerateAndTest(context.Background(), sess.ID, nil)
	if err != nil {
		t.Fatalf("GenerateAndTest: %v", err)
	}
	if artifact.Status != session.ArtifactFailed {
		t.Fatalf("artifact status = %s, want failed", artifact.Status)
	}
	if artifact.IterationCount != budget {
		t.Fatalf("iteration count = %d, want %d", artifact.IterationCount, budget)
	}
	if len(artifact.TestResults) != budget {
		t.Fatalf("test results = %d, want %d", len(artifact.TestResults), budget)
	}
	// Refinement preserved identity and only moved the version forward.
	if artifact.Version != budget {
		t.Fatalf("version = %d, want %d", artifact.Version, budget)
	}

	// No code gate is created for a failed artifact.
	if gates := sess.GatesOfKind(session.GateCodeGeneration); len(gates) != 0 {
		t.Fatalf("code gates = %d, want 0", len(gates))
	}
}

func TestTestCurrentWithoutArtifact(t *testing.T) {
	p, store := newTestPipeline(t, passingScript, 3)
	sess := newCompletedSession(store)
	if _, err := p.TestCurrent(context.Background(), sess.ID, nil); !errors.Is(err, ErrNoArtifact) {
		t.Fatalf("TestCurrent without artifact = %v, want ErrNoArtifact", err)
	}
}
