package server

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/mohammad-safakhou/webscout/internal/approval"
	"github.com/mohammad-safakhou/webscout/internal/archive"
	"github.com/mohammad-safakhou/webscout/internal/session"
)

// PipelineHandler serves the approval-gated delivery endpoints.
type PipelineHandler struct {
	store    *session.Store
	pipeline *approval.Pipeline
	arch     *archive.Store
	pool     *WorkerPool
	logger   *log.Logger
}

// NewPipelineHandler wires the pipeline endpoints. arch may be nil when the
// archive database is not configured; packaging still works, archival is
// skipped.
func NewPipelineHandler(store *session.Store, pipeline *approval.Pipeline, arch *archive.Store, pool *WorkerPool) *PipelineHandler {
	return &PipelineHandler{
		store:    store,
		pipeline: pipeline,
		arch:     arch,
		pool:     pool,
		logger:   log.New(log.Writer(), "[PIPELINE] ", log.LstdFlags),
	}
}

// Register mounts the pipeline routes on the sessions group.
func (h *PipelineHandler) Register(g *echo.Group) {
	g.POST("/:id/pipeline/summary", h.requestSummary)
	g.GET("/:id/pipeline/gates", h.gates)
	g.POST("/:id/pipeline/gates/:gateID/decision", h.decide)
	g.POST("/:id/pipeline/generate", h.generate)
	g.GET("/:id/pipeline/artifact", h.artifact)
	g.POST("/:id/pipeline/test", h.test)
	g.GET("/:id/pipeline/diffs", h.diffs)
	g.POST("/:id/pipeline/deliver", h.deliver)
	g.GET("/:id/pipeline/package", h.pkg)
}

func (h *PipelineHandler) requestSummary(c echo.Context) error {
	gate, err := h.pipeline.RequestGate(c.Param("id"), session.GateExplorationSummary)
	if err != nil {
		return pipelineError(err)
	}
	return c.JSON(http.StatusCreated, gate)
}

func (h *PipelineHandler) gates(c echo.Context) error {
	sess, err := h.store.Get(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusNotFound, "session not found")
	}
	snap := sess.Snapshot()
	gates := snap.Gates
	if gates == nil {
		gates = []session.ApprovalGate{}
	}
	return c.JSON(http.StatusOK, gates)
}

func (h *PipelineHandler) decide(c echo.Context) error {
	var req GateDecisionRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	if req.By == "" {
		req.By = userID(c)
	}
	gate, err := h.pipeline.Decide(c.Param("id"), c.Param("gateID"), req.Approve, req.By, req.Feedback)
	if err != nil {
		return pipelineError(err)
	}
	return c.JSON(http.StatusOK, gate)
}

func (h *PipelineHandler) generate(c echo.Context) error {
	id := c.Param("id")
	var req GenerateRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	sess, err := h.store.Get(id)
	if err != nil {
		return echo.NewHTTPError(http.StatusNotFound, "session not found")
	}
	if reason, ok := approval.CheckSequencing(sess.Snapshot(), session.GateCodeGeneration); !ok {
		return echo.NewHTTPError(http.StatusConflict, reason)
	}
	h.pool.Go(func() {
		if _, err := h.pipeline.GenerateAndTest(context.Background(), id, req.Assertions); err != nil {
			h.logger.Printf("session %s generate: %v", id, err)
		}
	})
	return c.JSON(http.StatusAccepted, AcceptedResponse{SessionID: id, Status: "generating"})
}

func (h *PipelineHandler) artifact(c echo.Context) error {
	sess, err := h.store.Get(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusNotFound, "session not found")
	}
	artifact, ok := sess.Artifact()
	if !ok {
		return echo.NewHTTPError(http.StatusNotFound, "no scraper artifact for session")
	}
	return c.JSON(http.StatusOK, artifact)
}

func (h *PipelineHandler) test(c echo.Context) error {
	var req TestRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	result, err := h.pipeline.TestCurrent(c.Request().Context(), c.Param("id"), req.Assertions)
	if err != nil {
		return pipelineError(err)
	}
	return c.JSON(http.StatusOK, result)
}

func (h *PipelineHandler) diffs(c echo.Context) error {
	diffs, err := h.pipeline.Diffs(c.Param("id"))
	if err != nil {
		return pipelineError(err)
	}
	return c.JSON(http.StatusOK, diffs)
}

func (h *PipelineHandler) deliver(c echo.Context) error {
	gate, err := h.pipeline.Deliver(c.Param("id"))
	if err != nil {
		return pipelineError(err)
	}
	return c.JSON(http.StatusCreated, gate)
}

func (h *PipelineHandler) pkg(c echo.Context) error {
	id := c.Param("id")
	descriptor, payload, err := h.pipeline.Package(id)
	if err != nil {
		return pipelineError(err)
	}

	if h.arch != nil {
		ctx := c.Request().Context()
		if err := h.arch.SavePackage(ctx, id, descriptor.FileName, descriptor, payload); err != nil {
			h.logger.Printf("archive package for session %s: %v", id, err)
		}
		if sess, err := h.store.Get(id); err == nil {
			if err := h.arch.ArchiveSession(ctx, sess.Snapshot()); err != nil {
				h.logger.Printf("archive session %s: %v", id, err)
			}
		}
	}

	c.Response().Header().Set(echo.HeaderContentDisposition,
		fmt.Sprintf(`attachment; filename=%q`, descriptor.FileName))
	return c.Blob(http.StatusOK, "application/zip", payload)
}

func userID(c echo.Context) string {
	if v, ok := c.Get("user_id").(string); ok && v != "" {
		return v
	}
	return "operator"
}

func pipelineError(err error) error {
	switch {
	case errors.Is(err, session.ErrNotFound):
		return echo.NewHTTPError(http.StatusNotFound, "session not found")
	case errors.Is(err, approval.ErrNotEligible):
		return echo.NewHTTPError(http.StatusConflict, err.Error())
	case errors.Is(err, approval.ErrGateNotPending):
		return echo.NewHTTPError(http.StatusConflict, err.Error())
	case errors.Is(err, approval.ErrNoArtifact):
		return echo.NewHTTPError(http.StatusNotFound, err.Error())
	default:
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
}
