package openai_provider

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/mohammad-safakhou/webscout/models"
)

const openaiAPIURL = "https://api.openai.com/v1/chat/completions"

// client implements the provider interface using OpenAI's API
type client struct {
	apiKey      string
	model       string
	temperature float64
	maxTokens   int
	httpClient  *http.Client
}

// Message represents a message in a conversation
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// request represents a request to the OpenAI API
type request struct {
	Model       string    `json:"model"`
	Messages    []Message `json:"messages"`
	Temperature float64   `json:"temperature"`
	MaxTokens   int       `json:"max_tokens,omitempty"`
}

// response represents a response from the OpenAI API
type response struct {
	Choices []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
	} `json:"choices"`
}

// NewOpenAIClient creates a new OpenAI client
func NewOpenAIClient(apiKey, model string, temperature float64, maxTokens int, timeout time.Duration) *client {
	return &client{
		apiKey:      apiKey,
		model:       model,
		temperature: temperature,
		maxTokens:   maxTokens,
		httpClient:  &http.Client{Timeout: timeout},
	}
}

func (c *client) complete(ctx context.Context, msgs []Message) (string, error) {
	body := request{
		Model:       c.model,
		Messages:    msgs,
		Temperature: c.temperature,
		MaxTokens:   c.maxTokens,
	}
	jsonData, err := json.Marshal(body)
	if err != nil {
		return "", fmt.Errorf("failed to marshal request: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, "POST", openaiAPIURL, bytes.NewBuffer(jsonData))
	if err != nil {
		return "", fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.apiKey)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("failed to send request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("API returned status: %d", resp.StatusCode)
	}
	var out response
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return "", fmt.Errorf("failed to parse response: %w", err)
	}
	if len(out.Choices) == 0 {
		return "", fmt.Errorf("empty completion response")
	}
	return out.Choices[0].Message.Content, nil
}

// stripFences removes a markdown code fence wrapper if present.
func stripFences(s string) string {
	s = strings.TrimSpace(s)
	if !strings.HasPrefix(s, "```") {
		return s
	}
	s = strings.TrimPrefix(s, "```")
	if i := strings.Index(s, "\n"); i >= 0 {
		s = s[i+1:]
	}
	s = strings.TrimSuffix(strings.TrimSpace(s), "```")
	return strings.TrimSpace(s)
}

// EnhancePlan asks the model to improve a heuristic step list.
func (c *client) EnhancePlan(ctx context.Context, targetURL, objectives string, steps []models.PlanStep) ([]models.PlanStep, error) {
	current, err := json.Marshal(steps)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal steps: %w", err)
	}
	system := `You improve exploration plans for web pages. Respond ONLY with a JSON array of steps, each {"kind","description","priority","depends_on"}. Allowed kinds: navigation, analysis, extraction, interaction, generic. Keep the list short and ordered. Do not include any other text.`
	user := fmt.Sprintf("TARGET URL: %s\nOBJECTIVES: %s\nCURRENT PLAN:\n%s", targetURL, objectives, string(current))
	raw, err := c.complete(ctx, []Message{{Role: "system", Content: system}, {Role: "user", Content: user}})
	if err != nil {
		return nil, err
	}
	var out []models.PlanStep
	if err := json.Unmarshal([]byte(stripFences(raw)), &out); err != nil {
		return nil, fmt.Errorf("failed to parse plan response: %w", err)
	}
	return out, nil
}

// AnalyzeContent summarizes page text and extracts insights.
func (c *client) AnalyzeContent(ctx context.Context, url, text string) (string, []string, error) {
	if len(text) > 12000 {
		text = text[:12000]
	}
	system := `You analyze web page content. Respond ONLY with JSON: {"summary": "...", "insights": ["..."]}. Do not include any other text.`
	user := fmt.Sprintf("URL: %s\nCONTENT:\n%s", url, text)
	raw, err := c.complete(ctx, []Message{{Role: "system", Content: system}, {Role: "user", Content: user}})
	if err != nil {
		return "", nil, err
	}
	var out struct {
		Summary  string   `json:"summary"`
		Insights []string `json:"insights"`
	}
	if err := json.Unmarshal([]byte(stripFences(raw)), &out); err != nil {
		return "", nil, fmt.Errorf("failed to parse analysis response: %w", err)
	}
	return out.Summary, out.Insights, nil
}

// GenerateCode produces a standalone scraper script for the specification.
func (c *client) GenerateCode(ctx context.Context, specification string) (string, error) {
	system := `You write standalone Python 3 scraper scripts. The script must print exactly one JSON object to stdout containing the scraped data, including a "url" field. Use only the standard library plus urllib. Respond ONLY with the code, no explanations.`
	raw, err := c.complete(ctx, []Message{{Role: "system", Content: system}, {Role: "user", Content: specification}})
	if err != nil {
		return "", err
	}
	return stripFences(raw), nil
}

// RefineCode fixes a previous scraper version given its failure output.
func (c *client) RefineCode(ctx context.Context, specification, code, failure string) (string, error) {
	system := `You fix Python 3 scraper scripts. The script must print exactly one JSON object to stdout containing the scraped data, including a "url" field. Respond ONLY with the corrected code, no explanations.`
	user := fmt.Sprintf("SPECIFICATION:\n%s\n\nCURRENT CODE:\n%s\n\nFAILURE:\n%s", specification, code, failure)
	raw, err := c.complete(ctx, []Message{{Role: "system", Content: system}, {Role: "user", Content: user}})
	if err != nil {
		return "", err
	}
	return stripFences(raw), nil
}

// Chat answers a user question about an exploration session.
func (c *client) Chat(ctx context.Context, history []models.ChatTurn, message string) (string, error) {
	msgs := []Message{{Role: "system", Content: "You are a helpful assistant explaining the progress and findings of a web exploration session. Be concise and conversational."}}
	for _, turn := range history {
		role := turn.Role
		if role != "user" && role != "assistant" {
			role = "user"
		}
		msgs = append(msgs, Message{Role: role, Content: turn.Content})
	}
	msgs = append(msgs, Message{Role: "user", Content: message})
	return c.complete(ctx, msgs)
}
