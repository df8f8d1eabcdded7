package scraper

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log"
	"os"
	"os/exec"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/mohammad-safakhou/webscout/internal/session"
)

// Limits bounds one subprocess test run.
type Limits struct {
	Timeout        time.Duration
	Interpreter    string
	MaxOutputBytes int
}

// Validate applies defaults and rejects unusable limits.
func (l *Limits) Validate() error {
	if l.Timeout <= 0 {
		l.Timeout = 30 * time.Second
	}
	if l.Interpreter == "" {
		l.Interpreter = "python3"
	}
	if l.MaxOutputBytes <= 0 {
		l.MaxOutputBytes = 1 << 20
	}
	return nil
}

// Tester runs one generated artifact in an isolated subprocess and checks
// its stdout against an assertion list.
type Tester struct {
	limits Limits
	logger *log.Logger
}

// NewTester builds a tester with validated limits.
func NewTester(limits Limits, logger *log.Logger) (*Tester, error) {
	if err := limits.Validate(); err != nil {
		return nil, err
	}
	if logger == nil {
		logger = log.New(log.Writer(), "[TESTER] ", log.LstdFlags)
	}
	return &Tester{limits: limits, logger: logger}, nil
}

// Test materializes the artifact code to a temp file, runs it with a hard
// timeout, parses stdout as JSON and evaluates the assertions. Subprocess
// failures (timeout, crash, unparseable output) yield status error;
// assertion failures yield status failed. The temp file is removed on every
// exit path.
func (t *Tester) Test(ctx context.Context, artifact session.GeneratedArtifact, assertions []Assertion) session.TestResult {
	result := session.TestResult{
		ID:        uuid.NewString(),
		Timestamp: time.Now(),
		Status:    session.TestRunning,
	}
	if len(assertions) == 0 {
		assertions = DefaultAssertions()
	}

	tmp, err := os.CreateTemp("", "webscout-scraper-*.py")
	if err != nil {
		result.Status = session.TestError
		result.ErrorMessage = fmt.Sprintf("create temp file: %v", err)
		return result
	}
	path := tmp.Name()
	defer os.Remove(path)

	if _, err := tmp.WriteString(artifact.Code); err != nil {
		tmp.Close()
		result.Status = session.TestError
		result.ErrorMessage = fmt.Sprintf("write temp file: %v", err)
		return result
	}
	if err := tmp.Close(); err != nil {
		result.Status = session.TestError
		result.ErrorMessage = fmt.Sprintf("close temp file: %v", err)
		return result
	}

	runCtx, cancel := context.WithTimeout(ctx, t.limits.Timeout)
	defer cancel()

	var stdout, stderr bytes.Buffer
	cmd := exec.CommandContext(runCtx, t.limits.Interpreter, path)
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	started := time.Now()
	runErr := cmd.Run()
	result.ExecutionTimeMS = time.Since(started).Milliseconds()
	result.ConsoleOutput = consoleLines(stderr.String(), t.limits.MaxOutputBytes)

	if runCtx.Err() == context.DeadlineExceeded {
		result.Status = session.TestError
		result.ErrorMessage = fmt.Sprintf("execution timed out after %s, process killed", t.limits.Timeout)
		return result
	}
	if runErr != nil {
		result.Status = session.TestError
		result.ErrorMessage = fmt.Sprintf("scraper exited with error: %v", runErr)
		result.StackTrace = truncate(stderr.String(), t.limits.MaxOutputBytes)
		return result
	}

	raw := strings.TrimSpace(stdout.String())
	if len(raw) > t.limits.MaxOutputBytes {
		raw = raw[:t.limits.MaxOutputBytes]
	}
	var output interface{}
	if err := json.Unmarshal([]byte(raw), &output); err != nil {
		result.Status = session.TestError
		result.ErrorMessage = fmt.Sprintf("stdout is not valid JSON: %v", err)
		result.ExtractedOutput = truncate(raw, 2000)
		return result
	}
	result.ExtractedOutput = output

	details, passed, failed := EvaluateAssertions(output, assertions)
	result.AssertionDetails = details
	result.AssertionsPassed = passed
	result.AssertionsFailed = failed
	if failed > 0 {
		result.Status = session.TestFailed
	} else {
		result.Status = session.TestPassed
	}
	return result
}

func consoleLines(s string, max int) []string {
	if len(s) > max {
		s = s[:max]
	}
	s = strings.TrimSpace(s)
	if s == "" {
		return nil
	}
	return strings.Split(s, "\n")
}
