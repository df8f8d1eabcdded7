// Package models holds the small shared shapes exchanged with LLM providers.
package models

// PlanStep mirrors one planned step for enhancement round-trips.
type PlanStep struct {
	Kind        string `json:"kind"`
	Description string `json:"description"`
	Priority    string `json:"priority"`
	DependsOn   []int  `json:"depends_on,omitempty"`
}

// ChatTurn is one prior message of a session conversation.
type ChatTurn struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}
