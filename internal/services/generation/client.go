package generation

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"reelsmith/internal/config"
	"reelsmith/internal/services"
)

// Task identifies which generation workflow a submission targets.
type Task string

const (
	TaskParse Task = "parse"
	TaskImage Task = "image"
	TaskVideo Task = "video"
)

// SubmitRequest describes one generation submission. TargetID is the record
// whose completion callback the gateway will eventually address (variant id,
// shot id, or project id for parse).
type SubmitRequest struct {
	Task              Task   `json:"task"`
	ProjectID         string `json:"project_id"`
	TargetID          string `json:"target_id"`
	Model             string `json:"model,omitempty"`
	Prompt            string `json:"prompt,omitempty"`
	SourceText        string `json:"source_text,omitempty"`
	ReferenceImageURL string `json:"reference_image_url,omitempty"`
	CallbackURL       string `json:"callback_url,omitempty"`
}

// SubmitResponse is the gateway's synchronous answer. A non-empty ResultURL
// means the gateway completed inline; otherwise the result arrives later via
// the callback address.
type SubmitResponse struct {
	Accepted  bool   `json:"accepted"`
	JobID     string `json:"job_id"`
	ResultURL string `json:"result_url"`
	Message   string `json:"error"`
}

// Gateway is the submission surface the engines depend on.
type Gateway interface {
	Submit(ctx context.Context, req SubmitRequest) (SubmitResponse, error)
}

// HTTPDoer describes the HTTP client used by the gateway client.
type HTTPDoer interface {
	Do(req *http.Request) (*http.Response, error)
}

// Client talks to the external generation gateway over HTTP.
type Client struct {
	baseURL string
	apiKey  string
	client  HTTPDoer
}

// NewClient constructs a gateway client from configuration.
func NewClient(cfg *config.Config) *Client {
	timeout := time.Duration(cfg.Generation.TimeoutSeconds) * time.Second
	return &Client{
		baseURL: strings.TrimRight(cfg.Generation.BaseURL, "/"),
		apiKey:  cfg.Generation.APIKey,
		client:  &http.Client{Timeout: timeout},
	}
}

// NewClientWithDoer constructs a gateway client with an injected HTTP client.
func NewClientWithDoer(baseURL, apiKey string, doer HTTPDoer) *Client {
	return &Client{
		baseURL: strings.TrimRight(strings.TrimSpace(baseURL), "/"),
		apiKey:  strings.TrimSpace(apiKey),
		client:  doer,
	}
}

// Submit posts a generation request. A non-2xx gateway response is reported as
// an external-service error; the caller records it on the owning entity.
func (c *Client) Submit(ctx context.Context, req SubmitRequest) (SubmitResponse, error) {
	if c.baseURL == "" {
		return SubmitResponse{}, services.Wrap(services.ErrConfiguration, "generation", "submit", "gateway base URL not configured", nil)
	}

	body, err := json.Marshal(req)
	if err != nil {
		return SubmitResponse{}, fmt.Errorf("marshal submit request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/v1/generations", bytes.NewReader(body))
	if err != nil {
		return SubmitResponse{}, fmt.Errorf("build submit request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	if c.apiKey != "" {
		httpReq.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	resp, err := c.client.Do(httpReq)
	if err != nil {
		return SubmitResponse{}, services.Wrap(services.ErrExternal, "generation", "submit", "gateway unreachable", err)
	}
	defer resp.Body.Close()

	payload, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return SubmitResponse{}, services.Wrap(services.ErrExternal, "generation", "submit", "read gateway response", err)
	}

	if resp.StatusCode >= http.StatusMultipleChoices {
		detail := strings.TrimSpace(string(payload))
		if len(detail) > 200 {
			detail = detail[:200]
		}
		return SubmitResponse{}, services.Wrap(services.ErrExternal, "generation", "submit",
			fmt.Sprintf("gateway returned %d: %s", resp.StatusCode, detail), nil)
	}

	var decoded SubmitResponse
	if err := json.Unmarshal(payload, &decoded); err != nil {
		return SubmitResponse{}, services.Wrap(services.ErrExternal, "generation", "submit", "decode gateway response", err)
	}
	if !decoded.Accepted && decoded.Message != "" {
		return decoded, services.Wrap(services.ErrExternal, "generation", "submit", decoded.Message, nil)
	}
	return decoded, nil
}
