package main

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"reelsmith/internal/api"
)

// apiClient is a thin HTTP client over the daemon API.
type apiClient struct {
	base  string
	token string
	http  *http.Client
}

func newAPIClient(base, token string) *apiClient {
	return &apiClient{
		base:  strings.TrimRight(base, "/"),
		token: token,
		http:  &http.Client{Timeout: 5 * time.Minute},
	}
}

func (c *apiClient) Status(ctx context.Context) (api.DaemonStatus, error) {
	var out api.DaemonStatus
	err := c.do(ctx, http.MethodGet, "/api/status", nil, &out)
	return out, err
}

func (c *apiClient) ListProjects(ctx context.Context, includeFailed bool) ([]api.Project, error) {
	path := "/api/projects"
	if includeFailed {
		path += "?include_failed=1"
	}
	var out api.ProjectListResponse
	if err := c.do(ctx, http.MethodGet, path, nil, &out); err != nil {
		return nil, err
	}
	return out.Projects, nil
}

func (c *apiClient) Project(ctx context.Context, id string) (api.ProjectDetail, error) {
	var out api.ProjectDetail
	err := c.do(ctx, http.MethodGet, "/api/projects/"+url.PathEscape(id), nil, &out)
	return out, err
}

func (c *apiClient) CreateProject(ctx context.Context, req api.CreateProjectRequest) (api.Project, error) {
	var out api.Project
	err := c.do(ctx, http.MethodPost, "/api/projects", req, &out)
	return out, err
}

func (c *apiClient) DeleteProject(ctx context.Context, id string) error {
	return c.do(ctx, http.MethodDelete, "/api/projects/"+url.PathEscape(id), nil, nil)
}

func (c *apiClient) SkipBibleImages(ctx context.Context, projectID string) error {
	return c.do(ctx, http.MethodPost, "/api/projects/"+url.PathEscape(projectID)+"/skip-bible-images", nil, nil)
}

func (c *apiClient) Sweep(ctx context.Context, projectID string) (api.SweepResponse, error) {
	var out api.SweepResponse
	err := c.do(ctx, http.MethodPost, "/api/projects/"+url.PathEscape(projectID)+"/sweep", nil, &out)
	return out, err
}

func (c *apiClient) AssemblyOrder(ctx context.Context, projectID string) ([]api.Segment, error) {
	var out api.SegmentListResponse
	if err := c.do(ctx, http.MethodGet, "/api/projects/"+url.PathEscape(projectID)+"/assembly/order", nil, &out); err != nil {
		return nil, err
	}
	return out.Segments, nil
}

func (c *apiClient) Assemble(ctx context.Context, projectID string, req api.AssembleRequest, retry bool) (api.Reel, error) {
	path := "/api/projects/" + url.PathEscape(projectID) + "/assembly"
	if retry {
		path += "/retry"
	}
	var out api.Reel
	err := c.do(ctx, http.MethodPost, path, req, &out)
	return out, err
}

func (c *apiClient) ApproveAsset(ctx context.Context, assetID string) error {
	return c.do(ctx, http.MethodPost, "/api/assets/"+url.PathEscape(assetID)+"/approve", nil, nil)
}

func (c *apiClient) UnapproveAsset(ctx context.Context, assetID string) error {
	return c.do(ctx, http.MethodPost, "/api/assets/"+url.PathEscape(assetID)+"/unapprove", nil, nil)
}

func (c *apiClient) Variants(ctx context.Context, parentID, shotType string) ([]api.Variant, error) {
	query := url.Values{"parent_id": {parentID}}
	if shotType != "" {
		query.Set("shot_type", shotType)
	}
	var out api.VariantListResponse
	if err := c.do(ctx, http.MethodGet, "/api/variants?"+query.Encode(), nil, &out); err != nil {
		return nil, err
	}
	return out.Variants, nil
}

func (c *apiClient) GenerateVariants(ctx context.Context, req api.GenerateVariantsRequest) ([]api.Variant, error) {
	var out api.VariantListResponse
	if err := c.do(ctx, http.MethodPost, "/api/variants", req, &out); err != nil {
		return nil, err
	}
	return out.Variants, nil
}

func (c *apiClient) SelectVariant(ctx context.Context, id string) (api.Variant, error) {
	var out api.Variant
	err := c.do(ctx, http.MethodPost, "/api/variants/"+url.PathEscape(id)+"/select", nil, &out)
	return out, err
}

func (c *apiClient) RegenerateVariant(ctx context.Context, id, prompt string) (api.Variant, error) {
	var out api.Variant
	err := c.do(ctx, http.MethodPost, "/api/variants/"+url.PathEscape(id)+"/regenerate", api.RegenerateVariantRequest{Prompt: prompt}, &out)
	return out, err
}

func (c *apiClient) DeleteVariant(ctx context.Context, id string) error {
	return c.do(ctx, http.MethodDelete, "/api/variants/"+url.PathEscape(id), nil, nil)
}

func (c *apiClient) FixDuplicates(ctx context.Context, parentID, shotType string) (int, error) {
	query := url.Values{"parent_id": {parentID}}
	if shotType != "" {
		query.Set("shot_type", shotType)
	}
	var out map[string]int
	if err := c.do(ctx, http.MethodPost, "/api/variants/fix-duplicates?"+query.Encode(), nil, &out); err != nil {
		return 0, err
	}
	return out["repaired"], nil
}

func (c *apiClient) ApproveScene(ctx context.Context, sceneID string) error {
	return c.do(ctx, http.MethodPost, "/api/scenes/"+url.PathEscape(sceneID)+"/approve", nil, nil)
}

func (c *apiClient) RejectScene(ctx context.Context, sceneID string) error {
	return c.do(ctx, http.MethodPost, "/api/scenes/"+url.PathEscape(sceneID)+"/reject", nil, nil)
}

func (c *apiClient) RequestVideo(ctx context.Context, sceneID, sourceVariantID string) (api.VideoDecision, error) {
	var out api.VideoDecision
	err := c.do(ctx, http.MethodPost, "/api/videos", api.VideoRequest{SceneID: sceneID, SourceVariantID: sourceVariantID}, &out)
	return out, err
}

func (c *apiClient) CancelShot(ctx context.Context, shotID string) error {
	return c.do(ctx, http.MethodPost, "/api/shots/"+url.PathEscape(shotID)+"/cancel", nil, nil)
}

func (c *apiClient) RegenerateShot(ctx context.Context, shotID string) (api.VideoDecision, error) {
	var out api.VideoDecision
	err := c.do(ctx, http.MethodPost, "/api/shots/"+url.PathEscape(shotID)+"/regenerate", nil, &out)
	return out, err
}

func (c *apiClient) Models(ctx context.Context, kind string) ([]api.Model, error) {
	path := "/api/models"
	if kind != "" {
		path += "?kind=" + url.QueryEscape(kind)
	}
	var out api.ModelListResponse
	if err := c.do(ctx, http.MethodGet, path, nil, &out); err != nil {
		return nil, err
	}
	return out.Models, nil
}

func (c *apiClient) TestNotification(ctx context.Context) error {
	return c.do(ctx, http.MethodPost, "/api/notifications/test", nil, nil)
}

func (c *apiClient) do(ctx context.Context, method, path string, body, out any) error {
	var reader io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("encode request: %w", err)
		}
		reader = bytes.NewReader(raw)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.base+path, reader)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("connect to daemon at %s: %w (is reelsmithd running?)", c.base, err)
	}
	defer resp.Body.Close()

	payload, err := io.ReadAll(io.LimitReader(resp.Body, 8<<20))
	if err != nil {
		return fmt.Errorf("read response: %w", err)
	}

	if resp.StatusCode >= http.StatusMultipleChoices {
		var apiErr api.ErrorResponse
		if json.Unmarshal(payload, &apiErr) == nil && apiErr.Error != "" {
			return fmt.Errorf("%s", apiErr.Error)
		}
		return fmt.Errorf("daemon returned %s", resp.Status)
	}

	if out == nil || len(payload) == 0 {
		return nil
	}
	if err := json.Unmarshal(payload, out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}
