package server

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync"

	"github.com/labstack/echo/v4"

	"github.com/mohammad-safakhou/webscout/config"
	"github.com/mohammad-safakhou/webscout/internal/agent/core"
	"github.com/mohammad-safakhou/webscout/internal/agent/telemetry"
	"github.com/mohammad-safakhou/webscout/internal/findings"
	"github.com/mohammad-safakhou/webscout/internal/session"
	"github.com/mohammad-safakhou/webscout/models"
	"github.com/mohammad-safakhou/webscout/provider"
)

// SessionsHandler serves the session lifecycle endpoints and owns the
// per-session findings index used by the analyzer and the search endpoint.
type SessionsHandler struct {
	cfg    *config.Config
	store  *session.Store
	tele   *telemetry.Telemetry
	prov   provider.Provider
	pool   *WorkerPool
	logger *log.Logger

	mu      sync.Mutex
	indexes map[string]*findings.Index
}

// NewSessionsHandler wires the session endpoints. prov may be nil when no
// LLM backend is configured.
func NewSessionsHandler(cfg *config.Config, store *session.Store, tele *telemetry.Telemetry, prov provider.Provider, pool *WorkerPool) *SessionsHandler {
	return &SessionsHandler{
		cfg:     cfg,
		store:   store,
		tele:    tele,
		prov:    prov,
		pool:    pool,
		logger:  log.New(log.Writer(), "[SESSIONS] ", log.LstdFlags),
		indexes: make(map[string]*findings.Index),
	}
}

// Register mounts the session routes on the given group.
func (h *SessionsHandler) Register(g *echo.Group) {
	g.POST("", h.create)
	g.GET("", h.list)
	g.GET("/:id", h.get)
	g.DELETE("/:id", h.remove)
	g.POST("/:id/start", h.start)
	g.POST("/:id/pause", h.pause)
	g.POST("/:id/resume", h.resume)
	g.POST("/:id/stop", h.stop)
	g.GET("/:id/status", h.status)
	g.GET("/:id/logs", h.logs)
	g.GET("/:id/screenshots", h.screenshots)
	g.GET("/:id/chat", h.chatHistory)
	g.POST("/:id/chat", h.chat)
	g.GET("/:id/search", h.search)
}

func (h *SessionsHandler) create(c echo.Context) error {
	var req CreateSessionRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	if strings.TrimSpace(req.TargetURL) == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "target_url is required")
	}
	parsed, err := url.Parse(req.TargetURL)
	if err != nil || parsed.Scheme == "" || parsed.Host == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "target_url must be an absolute URL")
	}

	maxIter := req.MaxIterations
	if maxIter <= 0 {
		maxIter = h.cfg.Exploration.MaxIterations
	}
	screenshots := h.cfg.Exploration.EnableScreenshots
	if req.EnableScreenshots != nil {
		screenshots = *req.EnableScreenshots
	}

	sess := session.New(req.TargetURL, req.Objectives, maxIter, screenshots)
	h.store.Create(sess)
	h.logger.Printf("created session %s for %s", sess.ID, sess.TargetURL)
	return c.JSON(http.StatusCreated, sess.Snapshot())
}

func (h *SessionsHandler) list(c echo.Context) error {
	return c.JSON(http.StatusOK, h.store.List())
}

func (h *SessionsHandler) get(c echo.Context) error {
	sess, err := h.store.Get(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusNotFound, "session not found")
	}
	return c.JSON(http.StatusOK, sess.Snapshot())
}

func (h *SessionsHandler) remove(c echo.Context) error {
	id := c.Param("id")
	if err := h.store.Delete(id); err != nil {
		return echo.NewHTTPError(http.StatusNotFound, "session not found")
	}
	h.dropIndex(id)
	return c.NoContent(http.StatusNoContent)
}

func (h *SessionsHandler) start(c echo.Context) error {
	id := c.Param("id")
	sess, err := h.store.Get(id)
	if err != nil {
		return echo.NewHTTPError(http.StatusNotFound, "session not found")
	}
	status := sess.CurrentStatus()
	if status.Terminal() {
		return echo.NewHTTPError(http.StatusConflict, "session already finished")
	}
	// A session with a live runner is never restarted; a stale running
	// status with no runner (after a crash) may be started again.
	if _, attached := h.store.Orchestrator(id); attached {
		if status == session.StatusPaused {
			return echo.NewHTTPError(http.StatusConflict, "session is paused, use resume")
		}
		return echo.NewHTTPError(http.StatusConflict, "exploration already in progress")
	}
	orch, err := h.buildOrchestrator(sess)
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, fmt.Sprintf("build orchestrator: %v", err))
	}
	if err := h.store.AttachOrchestrator(id, orch); err != nil {
		return echo.NewHTTPError(http.StatusNotFound, "session not found")
	}
	h.pool.Go(func() {
		if err := orch.Start(context.Background()); err != nil {
			h.logger.Printf("session %s exploration: %v", id, err)
		}
		h.store.Persist(id)
	})
	return c.JSON(http.StatusAccepted, AcceptedResponse{SessionID: id, Status: "starting"})
}

func (h *SessionsHandler) pause(c echo.Context) error {
	orch, err := h.runner(c.Param("id"))
	if err != nil {
		return err
	}
	if err := orch.Pause(); err != nil {
		return echo.NewHTTPError(http.StatusConflict, err.Error())
	}
	h.store.Persist(c.Param("id"))
	return c.JSON(http.StatusOK, AcceptedResponse{SessionID: c.Param("id"), Status: "paused"})
}

func (h *SessionsHandler) resume(c echo.Context) error {
	id := c.Param("id")
	orch, err := h.runner(id)
	if err != nil {
		return err
	}
	sess, err := h.store.Get(id)
	if err != nil {
		return echo.NewHTTPError(http.StatusNotFound, "session not found")
	}
	if sess.CurrentStatus() != session.StatusPaused {
		return echo.NewHTTPError(http.StatusConflict, "session is not paused")
	}
	h.pool.Go(func() {
		if err := orch.Resume(context.Background()); err != nil {
			h.logger.Printf("session %s resume: %v", id, err)
		}
		h.store.Persist(id)
	})
	return c.JSON(http.StatusAccepted, AcceptedResponse{SessionID: id, Status: "resuming"})
}

func (h *SessionsHandler) stop(c echo.Context) error {
	id := c.Param("id")
	orch, err := h.runner(id)
	if err != nil {
		return err
	}
	orch.Stop()
	h.store.Persist(id)
	return c.JSON(http.StatusOK, AcceptedResponse{SessionID: id, Status: "stopping"})
}

func (h *SessionsHandler) status(c echo.Context) error {
	id := c.Param("id")
	if r, ok := h.store.Orchestrator(id); ok {
		if orch, ok := r.(*core.Orchestrator); ok {
			return c.JSON(http.StatusOK, orch.Status())
		}
	}
	sess, err := h.store.Get(id)
	if err != nil {
		return echo.NewHTTPError(http.StatusNotFound, "session not found")
	}
	snap := sess.Snapshot()
	return c.JSON(http.StatusOK, core.StatusSnapshot{
		SessionID:      snap.ID,
		Status:         snap.Status,
		CurrentStep:    snap.CurrentStep,
		TotalSteps:     snap.TotalSteps,
		Progress:       snap.Progress,
		LogCount:       len(snap.Logs),
		Screenshots:    len(snap.Screenshots),
		Agents:         snap.Agents,
		CompletedSteps: []int{},
	})
}

func (h *SessionsHandler) logs(c echo.Context) error {
	sess, err := h.store.Get(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusNotFound, "session not found")
	}
	snap := sess.Snapshot()
	logs := snap.Logs
	if logs == nil {
		logs = []session.ActionLog{}
	}
	return c.JSON(http.StatusOK, logs)
}

func (h *SessionsHandler) screenshots(c echo.Context) error {
	sess, err := h.store.Get(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusNotFound, "session not found")
	}
	snap := sess.Snapshot()
	shots := snap.Screenshots
	if shots == nil {
		shots = []session.Screenshot{}
	}
	return c.JSON(http.StatusOK, shots)
}

func (h *SessionsHandler) chatHistory(c echo.Context) error {
	sess, err := h.store.Get(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusNotFound, "session not found")
	}
	snap := sess.Snapshot()
	msgs := snap.Chat
	if msgs == nil {
		msgs = []session.ChatMessage{}
	}
	return c.JSON(http.StatusOK, msgs)
}

func (h *SessionsHandler) chat(c echo.Context) error {
	id := c.Param("id")
	sess, err := h.store.Get(id)
	if err != nil {
		return echo.NewHTTPError(http.StatusNotFound, "session not found")
	}
	var req ChatRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	if strings.TrimSpace(req.Message) == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "message is required")
	}

	snap := sess.Snapshot()
	sess.AppendChat("user", req.Message)
	sess.AppendLog(session.ActionLog{
		Kind:        session.ActionUserInput,
		Description: "chat message received",
		Result:      req.Message,
	})

	answer := h.answer(c.Request().Context(), snap, req.Message)
	reply := sess.AppendChat("assistant", answer)
	h.store.Persist(id)
	return c.JSON(http.StatusOK, reply)
}

// answer consults the LLM when one is configured and otherwise falls back to
// a deterministic digest of the session state.
func (h *SessionsHandler) answer(ctx context.Context, snap session.Session, message string) string {
	if h.prov != nil {
		history := make([]models.ChatTurn, 0, len(snap.Chat))
		for _, m := range snap.Chat {
			history = append(history, models.ChatTurn{Role: m.Role, Content: m.Content})
		}
		if reply, err := h.prov.Chat(ctx, history, message); err == nil && strings.TrimSpace(reply) != "" {
			return reply
		} else if err != nil {
			h.logger.Printf("session %s chat provider: %v", snap.ID, err)
		}
	}
	return fmt.Sprintf("Session %s targets %s and is %s. %d actions logged, %d screenshots, progress %.0f%%.",
		snap.ID, snap.TargetURL, snap.Status, len(snap.Logs), len(snap.Screenshots), snap.Progress)
}

func (h *SessionsHandler) search(c echo.Context) error {
	id := c.Param("id")
	if _, err := h.store.Get(id); err != nil {
		return echo.NewHTTPError(http.StatusNotFound, "session not found")
	}
	q := strings.TrimSpace(c.QueryParam("q"))
	if q == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "q is required")
	}
	k := 10
	if raw := c.QueryParam("k"); raw != "" {
		if n, err := strconv.Atoi(raw); err == nil && n > 0 {
			k = n
		}
	}
	h.mu.Lock()
	ix := h.indexes[id]
	h.mu.Unlock()
	if ix == nil {
		return c.JSON(http.StatusOK, []findings.Hit{})
	}
	hits, err := ix.Search(q, k)
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, fmt.Sprintf("search: %v", err))
	}
	if hits == nil {
		hits = []findings.Hit{}
	}
	return c.JSON(http.StatusOK, hits)
}

// buildOrchestrator assembles the capability stack for one session. Each
// session gets its own findings index; restarting reuses it so search keeps
// working across pause/resume cycles.
func (h *SessionsHandler) buildOrchestrator(sess *session.Session) (*core.Orchestrator, error) {
	ix, err := h.index(sess.ID)
	if err != nil {
		return nil, err
	}

	var planner core.Planner = core.NewBasicPlanner()
	basicAnalyzer := core.NewBasicAnalyzer(ix)
	var analyzer core.Analyzer = basicAnalyzer
	if h.prov != nil {
		planner = core.NewAIPlanner(core.NewBasicPlanner(), h.prov, nil)
		analyzer = core.NewAIAnalyzer(basicAnalyzer, h.prov, nil)
	}

	var actuator core.Actuator
	if h.cfg.Browser.Enabled {
		actuator = core.NewBrowserActuator(h.cfg.Browser)
	} else {
		actuator = core.NewSimulatedActuator()
	}

	return core.NewOrchestrator(sess, planner, actuator, analyzer, h.tele, nil, h.cfg.Exploration.StepTimeout)
}

func (h *SessionsHandler) index(id string) (*findings.Index, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if ix, ok := h.indexes[id]; ok {
		return ix, nil
	}
	ix, err := findings.NewIndex()
	if err != nil {
		return nil, fmt.Errorf("findings index: %w", err)
	}
	h.indexes[id] = ix
	return ix, nil
}

func (h *SessionsHandler) dropIndex(id string) {
	h.mu.Lock()
	ix := h.indexes[id]
	delete(h.indexes, id)
	h.mu.Unlock()
	if ix != nil {
		if err := ix.Close(); err != nil {
			h.logger.Printf("close findings index for %s: %v", id, err)
		}
	}
}

func (h *SessionsHandler) runner(id string) (*core.Orchestrator, error) {
	r, ok := h.store.Orchestrator(id)
	if !ok {
		if _, err := h.store.Get(id); err != nil {
			return nil, echo.NewHTTPError(http.StatusNotFound, "session not found")
		}
		return nil, echo.NewHTTPError(http.StatusConflict, "session has no active orchestrator")
	}
	orch, ok := r.(*core.Orchestrator)
	if !ok {
		return nil, echo.NewHTTPError(http.StatusConflict, "session has no active orchestrator")
	}
	return orch, nil
}
