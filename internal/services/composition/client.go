package composition

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

// Segment is one ordered video segment in a composition request. Duration is
// advisory; the gateway probes the actual media and 0 is permitted.
type Segment struct {
	URL      string  `json:"url"`
	Duration float64 `json:"duration"`
}

// ComposeRequest asks the gateway to concatenate ordered segments into one
// output artifact.
type ComposeRequest struct {
	ProjectID   string    `json:"projectId"`
	Title       string    `json:"title"`
	Description string    `json:"description"`
	Videos      []Segment `json:"videos"`
}

// ComposeResponse is the gateway's answer.
type ComposeResponse struct {
	Success      bool   `json:"success"`
	VideoURL     string `json:"videoUrl"`
	PublishedURL string `json:"publishedUrl"`
	PublishedID  string `json:"publishedId"`
	Error        string `json:"error"`
}

// Gateway is the composition surface the assembler depends on.
type Gateway interface {
	Compose(ctx context.Context, req ComposeRequest) (ComposeResponse, error)
}

// HTTPDoer describes the HTTP client used by the composition client.
type HTTPDoer interface {
	Do(req *http.Request) (*http.Response, error)
}

// Client talks to the external composition gateway over HTTP.
type Client struct {
	baseURL string
	apiKey  string
	client  HTTPDoer
}

// NewClient constructs a composition client from configuration.
func NewClient(cfg *config.Config) *Client {
	timeout := time.Duration(cfg.Composition.TimeoutSeconds) * time.Second
	return &Client{
		baseURL: strings.TrimRight(cfg.Composition.BaseURL, "/"),
		apiKey:  cfg.Composition.APIKey,
		client:  &http.Client{Timeout: timeout},
	}
}

// NewClientWithDoer constructs a composition client with an injected HTTP client.
func NewClientWithDoer(baseURL, apiKey string, doer HTTPDoer) *Client {
	return &Client{
		baseURL: strings.TrimRight(strings.TrimSpace(baseURL), "/"),
		apiKey:  strings.TrimSpace(apiKey),
		client:  doer,
	}
}

// Compose posts the ordered segment list and waits for the composed result.
func (c *Client) Compose(ctx context.Context, req ComposeRequest) (ComposeResponse, error) {
	if c.baseURL == "" {
		return ComposeResponse{}, services.Wrap(services.ErrConfiguration, "composition", "compose", "gateway base URL not configured", nil)
	}
	if len(req.Videos) == 0 {
		return ComposeResponse{}, services.Wrap(services.ErrPrecondition, "composition", "compose", "no segments provided", nil)
	}

	body, err := json.Marshal(req)
	if err != nil {
		return ComposeResponse{}, fmt.Errorf("marshal compose request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/v1/compositions", bytes.NewReader(body))
	if err != nil {
		return ComposeResponse{}, fmt.Errorf("build compose request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	if c.apiKey != "" {
		httpReq.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	resp, err := c.client.Do(httpReq)
	if err != nil {
		return ComposeResponse{}, services.Wrap(services.ErrExternal, "composition", "compose", "gateway unreachable", err)
	}
	defer resp.Body.Close()

	payload, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return ComposeResponse{}, services.Wrap(services.ErrExternal, "composition", "compose", "read gateway response", err)
	}

	if resp.StatusCode >= http.StatusMultipleChoices {
		detail := strings.TrimSpace(string(payload))
		if len(detail) > 200 {
			detail = detail[:200]
		}
		return ComposeResponse{}, services.Wrap(services.ErrExternal, "composition", "compose",
			fmt.Sprintf("gateway returned %d: %s", resp.StatusCode, detail), nil)
	}

	var decoded ComposeResponse
	if err := json.Unmarshal(payload, &decoded); err != nil {
		return ComposeResponse{}, services.Wrap(services.ErrExternal, "composition", "compose", "decode gateway response", err)
	}
	return decoded, nil
}
