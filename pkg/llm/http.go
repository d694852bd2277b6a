package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/castellan/castellan/pkg/models"
)

const systemPrompt = `You are a Windows security analyst. Given an event log record and similar recent events, respond with exactly one JSON object and nothing else:
{"event_type": one of [AuthenticationSuccess, AuthenticationFailure, PrivilegeEscalation, ProcessCreation, NetworkConnection, AccountManagement, PolicyChange, ServiceInstallation, ScheduledTask, PowerShellExecution, Other],
 "risk_level": one of [low, medium, high, critical],
 "confidence": integer 0-100,
 "summary": short analyst summary,
 "mitre_techniques": list of MITRE ATT&CK technique IDs,
 "recommended_actions": list of short imperative actions}`

// HTTPClient calls an OpenAI-compatible chat-completions endpoint and
// parses the single JSON object the prompt demands. Every request is
// bounded by the configured timeout.
type HTTPClient struct {
	endpoint string
	model    string
	apiKey   string
	client   *http.Client
}

// NewHTTPClient creates a client. apiKey may be empty for local servers.
func NewHTTPClient(endpoint, model, apiKey string, timeout time.Duration) *HTTPClient {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &HTTPClient{
		endpoint: endpoint,
		model:    model,
		apiKey:   apiKey,
		client:   &http.Client{Timeout: timeout},
	}
}

type chatRequest struct {
	Model       string        `json:"model"`
	Messages    []chatMessage `json:"messages"`
	Temperature float64       `json:"temperature"`
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatResponse struct {
	Choices []struct {
		Message chatMessage `json:"message"`
	} `json:"choices"`
}

// Analyze sends the event and neighbor context and parses the verdict.
// Timeout, transport error, non-2xx status, and malformed JSON all wrap
// ErrLLMUnavailable.
func (c *HTTPClient) Analyze(ctx context.Context, event models.LogEvent, neighbors []models.LogEvent) (*Verdict, error) {
	body, err := json.Marshal(chatRequest{
		Model: c.model,
		Messages: []chatMessage{
			{Role: "system", Content: systemPrompt},
			{Role: "user", Content: buildUserPrompt(event, neighbors)},
		},
	})
	if err != nil {
		return nil, fmt.Errorf("%w: encoding request: %v", ErrLLMUnavailable, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("%w: building request: %v", ErrLLMUnavailable, err)
	}
	req.Header.Set("Content-Type", "application/json")
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrLLMUnavailable, err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, fmt.Errorf("%w: status %d", ErrLLMUnavailable, resp.StatusCode)
	}

	var decoded chatResponse
	if err := json.NewDecoder(resp.Body).Decode(&decoded); err != nil {
		return nil, fmt.Errorf("%w: decoding response: %v", ErrLLMUnavailable, err)
	}
	if len(decoded.Choices) == 0 {
		return nil, fmt.Errorf("%w: empty response", ErrLLMUnavailable)
	}

	verdict, err := parseVerdict(decoded.Choices[0].Message.Content)
	if err != nil {
		return nil, err
	}
	return verdict, nil
}

// parseVerdict extracts the JSON object from the completion text. Models
// sometimes wrap the object in prose or code fences; everything outside
// the outermost braces is ignored.
func parseVerdict(content string) (*Verdict, error) {
	start := strings.Index(content, "{")
	end := strings.LastIndex(content, "}")
	if start < 0 || end <= start {
		return nil, fmt.Errorf("%w: no JSON object in response", ErrLLMUnavailable)
	}

	var v Verdict
	if err := json.Unmarshal([]byte(content[start:end+1]), &v); err != nil {
		return nil, fmt.Errorf("%w: malformed verdict JSON: %v", ErrLLMUnavailable, err)
	}
	if !v.Valid() {
		return nil, fmt.Errorf("%w: verdict failed validation", ErrLLMUnavailable)
	}
	return &v, nil
}

func buildUserPrompt(event models.LogEvent, neighbors []models.LogEvent) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Event:\nhost=%s channel=%s event_id=%d level=%s user=%s time=%s\n%s\n",
		event.Host, event.Channel, event.EventID, event.Level, event.User,
		event.Timestamp.Format(time.RFC3339), event.Message)

	if len(neighbors) > 0 {
		b.WriteString("\nSimilar recent events:\n")
		for i, n := range neighbors {
			fmt.Fprintf(&b, "%d. host=%s channel=%s event_id=%d time=%s: %s\n",
				i+1, n.Host, n.Channel, n.EventID, n.Timestamp.Format(time.RFC3339),
				truncate(n.Message, 200))
		}
	}
	return b.String()
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
