package session

import (
	"encoding/json"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Status is the lifecycle state of an exploration session.
type Status string

const (
	StatusCreated   Status = "created"
	StatusRunning   Status = "running"
	StatusPaused    Status = "paused"
	StatusCompleted Status = "completed"
	StatusFailed    Status = "failed"
	StatusCancelled Status = "cancelled"
)

// Terminal reports whether the status ends the session lifecycle.
func (s Status) Terminal() bool {
	return s == StatusCompleted || s == StatusFailed || s == StatusCancelled
}

// ActionKind classifies a log entry.
type ActionKind string

const (
	ActionPlanCreation ActionKind = "plan_creation"
	ActionNavigation   ActionKind = "navigation"
	ActionDOMQuery     ActionKind = "dom_query"
	ActionScreenshot   ActionKind = "screenshot"
	ActionAnalysis     ActionKind = "analysis"
	ActionExtraction   ActionKind = "extraction"
	ActionError        ActionKind = "error"
	ActionUserInput    ActionKind = "user_input"
)

// Agent roles used for AgentState records and log attribution.
const (
	RoleCoordinator = "coordinator"
	RoleActuator    = "actuator"
	RoleAnalyst     = "analyst"
)

// ActionLog is immutable once appended to a session.
type ActionLog struct {
	ID          string                 `json:"id"`
	Timestamp   time.Time              `json:"timestamp"`
	Role        string                 `json:"role,omitempty"` // empty for orchestrator-level events
	Kind        ActionKind             `json:"action_kind"`
	Description string                 `json:"description"`
	Reasoning   string                 `json:"reasoning,omitempty"`
	Result      string                 `json:"result,omitempty"`
	Error       string                 `json:"error,omitempty"`
	Details     map[string]interface{} `json:"details,omitempty"`
}

// Screenshot records one captured page image and its derived observations.
type Screenshot struct {
	ID           string    `json:"id"`
	Timestamp    time.Time `json:"timestamp"`
	URL          string    `json:"url"`
	Title        string    `json:"title"`
	Width        int       `json:"width,omitempty"`
	Height       int       `json:"height,omitempty"`
	StoragePath  string    `json:"storage_path,omitempty"`
	Observations []string  `json:"observations,omitempty"`
	DOMSummary   string    `json:"dom_summary,omitempty"`
}

// ChatMessage is one turn of the user-facing conversation about a session.
type ChatMessage struct {
	ID        string    `json:"id"`
	Timestamp time.Time `json:"timestamp"`
	Role      string    `json:"role"` // user or assistant
	Content   string    `json:"content"`
}

// AgentState is the per-role scratch record mutated by its owning role.
type AgentState struct {
	Status        string            `json:"status"`
	CurrentTask   string            `json:"current_task,omitempty"`
	LastReasoning string            `json:"last_reasoning,omitempty"`
	Context       map[string]string `json:"context,omitempty"`
}

// GateKind identifies an approval checkpoint in the delivery pipeline.
type GateKind string

const (
	GateExplorationSummary GateKind = "exploration_summary"
	GateCodeGeneration     GateKind = "code_generation"
	GateFinalDelivery      GateKind = "final_delivery"
)

// GateStatus is the decision state of an approval gate.
type GateStatus string

const (
	GatePending  GateStatus = "pending"
	GateApproved GateStatus = "approved"
	GateRejected GateStatus = "rejected"
	GateSkipped  GateStatus = "skipped"
)

// ApprovalGate is a checkpoint requiring an explicit decision before the
// delivery pipeline advances.
type ApprovalGate struct {
	ID         string     `json:"id"`
	Kind       GateKind   `json:"kind"`
	Status     GateStatus `json:"status"`
	Summary    string     `json:"summary"`
	Feedback   string     `json:"feedback,omitempty"`
	ApprovedBy string     `json:"approved_by,omitempty"`
	ApprovedAt *time.Time `json:"approved_at,omitempty"`
	CreatedAt  time.Time  `json:"created_at"`
}

// ArtifactStatus is the lifecycle state of a generated scraper.
type ArtifactStatus string

const (
	ArtifactNotStarted ArtifactStatus = "not_started"
	ArtifactInProgress ArtifactStatus = "in_progress"
	ArtifactTesting    ArtifactStatus = "testing"
	ArtifactCompleted  ArtifactStatus = "completed"
	ArtifactFailed     ArtifactStatus = "failed"
)

// TestStatus classifies one test run of an artifact.
type TestStatus string

const (
	TestNotRun  TestStatus = "not_run"
	TestRunning TestStatus = "running"
	TestPassed  TestStatus = "passed"
	TestFailed  TestStatus = "failed"
	TestError   TestStatus = "error"
)

// AssertionDetail is the outcome of a single assertion within a test run.
type AssertionDetail struct {
	Kind        string `json:"kind"`
	Description string `json:"description"`
	Passed      bool   `json:"passed"`
	Message     string `json:"message,omitempty"`
}

// TestResult captures one subprocess run of a generated scraper.
type TestResult struct {
	ID               string            `json:"id"`
	Timestamp        time.Time         `json:"timestamp"`
	Status           TestStatus        `json:"status"`
	ExecutionTimeMS  int64             `json:"execution_time_ms,omitempty"`
	ErrorMessage     string            `json:"error_message,omitempty"`
	StackTrace       string            `json:"stack_trace,omitempty"`
	AssertionsPassed int               `json:"assertions_passed"`
	AssertionsFailed int               `json:"assertions_failed"`
	AssertionDetails []AssertionDetail `json:"assertion_details,omitempty"`
	ExtractedOutput  interface{}       `json:"extracted_output,omitempty"`
	ConsoleOutput    []string          `json:"console_output,omitempty"`
}

// GeneratedArtifact is a scraper produced and iteratively refined for a session.
type GeneratedArtifact struct {
	ID             string         `json:"id"`
	SessionID      string         `json:"session_id"`
	Version        int            `json:"version"`
	Status         ArtifactStatus `json:"status"`
	Specification  string         `json:"specification"`
	Code           string         `json:"code"`
	IterationCount int            `json:"iteration_count"`
	TestResults    []TestResult   `json:"test_results,omitempty"`
	LastTestStatus TestStatus     `json:"last_test_status"`
	CreatedAt      time.Time      `json:"created_at"`
	UpdatedAt      time.Time      `json:"updated_at"`
}

// AddTestResult appends a run outcome and tracks the latest status.
func (a *GeneratedArtifact) AddTestResult(r TestResult) {
	a.TestResults = append(a.TestResults, r)
	a.LastTestStatus = r.Status
	a.UpdatedAt = time.Now()
}

// Session is the mutable record of one exploration. All mutators preserve
// the lifecycle invariants: StartedAt is set once on first entry to running,
// CompletedAt once on first terminal status, and UpdatedAt is bumped on every
// append.
type Session struct {
	mu sync.RWMutex

	ID                string                 `json:"id"`
	TargetURL         string                 `json:"target_url"`
	Objectives        string                 `json:"objectives"`
	Status            Status                 `json:"status"`
	CreatedAt         time.Time              `json:"created_at"`
	UpdatedAt         time.Time              `json:"updated_at"`
	StartedAt         *time.Time             `json:"started_at,omitempty"`
	CompletedAt       *time.Time             `json:"completed_at,omitempty"`
	CurrentStep       int                    `json:"current_step"`
	TotalSteps        int                    `json:"total_steps"`
	Progress          float64                `json:"progress_percentage"`
	MaxIterations     int                    `json:"max_iterations"`
	EnableScreenshots bool                   `json:"enable_screenshots"`
	Logs              []ActionLog            `json:"action_logs"`
	Screenshots       []Screenshot           `json:"screenshots"`
	Chat              []ChatMessage          `json:"chat_messages"`
	Agents            map[string]*AgentState `json:"agent_states"`
	Gates             []ApprovalGate         `json:"approval_gates"`
	Artifacts         []GeneratedArtifact    `json:"artifacts"`
	CurrentArtifact   int                    `json:"current_artifact"` // index into Artifacts, -1 when none
}

// New creates an empty session for the given target.
func New(targetURL, objectives string, maxIterations int, enableScreenshots bool) *Session {
	now := time.Now()
	return &Session{
		ID:                uuid.NewString(),
		TargetURL:         targetURL,
		Objectives:        objectives,
		Status:            StatusCreated,
		CreatedAt:         now,
		UpdatedAt:         now,
		MaxIterations:     maxIterations,
		EnableScreenshots: enableScreenshots,
		Agents: map[string]*AgentState{
			RoleCoordinator: {Status: "idle", Context: map[string]string{}},
			RoleActuator:    {Status: "idle", Context: map[string]string{}},
			RoleAnalyst:     {Status: "idle", Context: map[string]string{}},
		},
		CurrentArtifact: -1,
	}
}

// SetStatus applies a lifecycle transition. Terminal statuses are sticky:
// once completed/failed/cancelled the status no longer changes, so stopping
// an already-finished session is a no-op.
func (s *Session) SetStatus(next Status) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.Status.Terminal() {
		return
	}
	now := time.Now()
	if next == StatusRunning && s.StartedAt == nil {
		t := now
		s.StartedAt = &t
	}
	if next.Terminal() && s.CompletedAt == nil {
		t := now
		s.CompletedAt = &t
	}
	s.Status = next
	s.UpdatedAt = now
}

// CurrentStatus returns the status under the read lock.
func (s *Session) CurrentStatus() Status {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.Status
}

// UpdateProgress recomputes the derived progress percentage.
func (s *Session) UpdateProgress(current, total int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.CurrentStep = current
	s.TotalSteps = total
	if total <= 0 {
		s.Progress = 0
	} else {
		s.Progress = float64(current) / float64(total) * 100
	}
	s.UpdatedAt = time.Now()
}

// AppendLog records an action. The entry's ID and timestamp are assigned here
// when unset so callers can pass literals.
func (s *Session) AppendLog(entry ActionLog) ActionLog {
	s.mu.Lock()
	defer s.mu.Unlock()
	if entry.ID == "" {
		entry.ID = uuid.NewString()
	}
	if entry.Timestamp.IsZero() {
		entry.Timestamp = time.Now()
	}
	s.Logs = append(s.Logs, entry)
	s.UpdatedAt = time.Now()
	return entry
}

// AppendScreenshot records a captured screenshot.
func (s *Session) AppendScreenshot(shot Screenshot) Screenshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	if shot.ID == "" {
		shot.ID = uuid.NewString()
	}
	if shot.Timestamp.IsZero() {
		shot.Timestamp = time.Now()
	}
	s.Screenshots = append(s.Screenshots, shot)
	s.UpdatedAt = time.Now()
	return shot
}

// AppendChat records one conversation turn.
func (s *Session) AppendChat(role, content string) ChatMessage {
	s.mu.Lock()
	defer s.mu.Unlock()
	msg := ChatMessage{ID: uuid.NewString(), Timestamp: time.Now(), Role: role, Content: content}
	s.Chat = append(s.Chat, msg)
	s.UpdatedAt = time.Now()
	return msg
}

// SetAgentState updates the record owned by one role.
func (s *Session) SetAgentState(role, status, task, reasoning string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	st, ok := s.Agents[role]
	if !ok {
		st = &AgentState{Context: map[string]string{}}
		s.Agents[role] = st
	}
	st.Status = status
	st.CurrentTask = task
	if reasoning != "" {
		st.LastReasoning = reasoning
	}
	s.UpdatedAt = time.Now()
}

// SetAgentContext writes one key into a role's scratch space.
func (s *Session) SetAgentContext(role, key, value string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	st, ok := s.Agents[role]
	if !ok {
		st = &AgentState{Context: map[string]string{}}
		s.Agents[role] = st
	}
	if st.Context == nil {
		st.Context = map[string]string{}
	}
	st.Context[key] = value
	s.UpdatedAt = time.Now()
}

// AppendGate records a new approval gate.
func (s *Session) AppendGate(gate ApprovalGate) ApprovalGate {
	s.mu.Lock()
	defer s.mu.Unlock()
	if gate.ID == "" {
		gate.ID = uuid.NewString()
	}
	if gate.CreatedAt.IsZero() {
		gate.CreatedAt = time.Now()
	}
	if gate.Status == "" {
		gate.Status = GatePending
	}
	s.Gates = append(s.Gates, gate)
	s.UpdatedAt = time.Now()
	return gate
}

// DecideGate applies an approval decision to the identified gate.
func (s *Session) DecideGate(gateID string, status GateStatus, by, feedback string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i := range s.Gates {
		if s.Gates[i].ID != gateID {
			continue
		}
		now := time.Now()
		s.Gates[i].Status = status
		s.Gates[i].Feedback = feedback
		s.Gates[i].ApprovedBy = by
		s.Gates[i].ApprovedAt = &now
		s.UpdatedAt = now
		return true
	}
	return false
}

// GatesOfKind returns all gates of one kind in append order.
func (s *Session) GatesOfKind(kind GateKind) []ApprovalGate {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []ApprovalGate
	for _, g := range s.Gates {
		if g.Kind == kind {
			out = append(out, g)
		}
	}
	return out
}

// AppendArtifact records a generated scraper and points CurrentArtifact at it.
func (s *Session) AppendArtifact(a GeneratedArtifact) GeneratedArtifact {
	s.mu.Lock()
	defer s.mu.Unlock()
	if a.ID == "" {
		a.ID = uuid.NewString()
	}
	if a.CreatedAt.IsZero() {
		a.CreatedAt = time.Now()
	}
	a.SessionID = s.ID
	s.Artifacts = append(s.Artifacts, a)
	s.CurrentArtifact = len(s.Artifacts) - 1
	s.UpdatedAt = time.Now()
	return a
}

// ReplaceArtifact overwrites the stored artifact with the same ID. The
// refinement loop mutates its own copy and writes it back here; matching on
// ID keeps a concurrent generation from clobbering another artifact.
func (s *Session) ReplaceArtifact(a GeneratedArtifact) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i := range s.Artifacts {
		if s.Artifacts[i].ID == a.ID {
			s.Artifacts[i] = a
			s.UpdatedAt = time.Now()
			return true
		}
	}
	return false
}

// Artifact returns a copy of the current artifact, if any.
func (s *Session) Artifact() (GeneratedArtifact, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.CurrentArtifact < 0 || s.CurrentArtifact >= len(s.Artifacts) {
		return GeneratedArtifact{}, false
	}
	return copyArtifact(s.Artifacts[s.CurrentArtifact]), true
}

// Snapshot returns a deep copy safe to serialize while the session mutates.
func (s *Session) Snapshot() Session {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := Session{
		ID:                s.ID,
		TargetURL:         s.TargetURL,
		Objectives:        s.Objectives,
		Status:            s.Status,
		CreatedAt:         s.CreatedAt,
		UpdatedAt:         s.UpdatedAt,
		CurrentStep:       s.CurrentStep,
		TotalSteps:        s.TotalSteps,
		Progress:          s.Progress,
		MaxIterations:     s.MaxIterations,
		EnableScreenshots: s.EnableScreenshots,
		CurrentArtifact:   s.CurrentArtifact,
	}
	if s.StartedAt != nil {
		t := *s.StartedAt
		out.StartedAt = &t
	}
	if s.CompletedAt != nil {
		t := *s.CompletedAt
		out.CompletedAt = &t
	}
	out.Logs = append([]ActionLog(nil), s.Logs...)
	out.Screenshots = append([]Screenshot(nil), s.Screenshots...)
	out.Chat = append([]ChatMessage(nil), s.Chat...)
	out.Gates = append([]ApprovalGate(nil), s.Gates...)
	out.Artifacts = make([]GeneratedArtifact, 0, len(s.Artifacts))
	for _, a := range s.Artifacts {
		out.Artifacts = append(out.Artifacts, copyArtifact(a))
	}
	out.Agents = make(map[string]*AgentState, len(s.Agents))
	for role, st := range s.Agents {
		cp := *st
		cp.Context = make(map[string]string, len(st.Context))
		for k, v := range st.Context {
			cp.Context[k] = v
		}
		out.Agents[role] = &cp
	}
	return out
}

func copyArtifact(a GeneratedArtifact) GeneratedArtifact {
	cp := a
	cp.TestResults = make([]TestResult, 0, len(a.TestResults))
	for _, r := range a.TestResults {
		rc := r
		rc.AssertionDetails = append([]AssertionDetail(nil), r.AssertionDetails...)
		rc.ConsoleOutput = append([]string(nil), r.ConsoleOutput...)
		cp.TestResults = append(cp.TestResults, rc)
	}
	return cp
}

// MarshalJSON serializes a consistent snapshot of the session.
func (s *Session) MarshalJSON() ([]byte, error) {
	snap := s.Snapshot()
	type alias Session
	return json.Marshal((*alias)(&snap))
}

// UnmarshalJSON restores a session from its serialized form.
func (s *Session) UnmarshalJSON(data []byte) error {
	type alias Session
	return json.Unmarshal(data, (*alias)(s))
}
