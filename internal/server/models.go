package server

import "github.com/mohammad-safakhou/webscout/internal/scraper"

// HTTPError is the unified error response body.
type HTTPError struct {
	Error string `json:"error"`
}

// AuthSignupRequest is the signup payload.
type AuthSignupRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

// AuthLoginRequest is the login payload.
type AuthLoginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

// TokenResponse carries the issued JWT.
type TokenResponse struct {
	Token string `json:"token"`
}

// CreateSessionRequest is the session creation payload.
type CreateSessionRequest struct {
	TargetURL         string `json:"target_url"`
	Objectives        string `json:"objectives"`
	MaxIterations     int    `json:"max_iterations,omitempty"`
	EnableScreenshots *bool  `json:"enable_screenshots,omitempty"`
}

// ChatRequest appends one user message to a session conversation.
type ChatRequest struct {
	Message string `json:"message"`
}

// GateDecisionRequest decides a pending approval gate.
type GateDecisionRequest struct {
	Approve  bool   `json:"approve"`
	By       string `json:"by"`
	Feedback string `json:"feedback,omitempty"`
}

// GenerateRequest starts the generate/test/refine pipeline.
type GenerateRequest struct {
	Assertions []scraper.Assertion `json:"assertions,omitempty"`
}

// TestRequest re-runs the current artifact's tests.
type TestRequest struct {
	Assertions []scraper.Assertion `json:"assertions,omitempty"`
}

// AcceptedResponse acknowledges a background operation.
type AcceptedResponse struct {
	SessionID string `json:"session_id"`
	Status    string `json:"status"`
}
