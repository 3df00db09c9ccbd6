package testsupport

import (
	"context"
	"fmt"
	"io"
	"sync"

	"reelsmith/internal/services/composition"
	"reelsmith/internal/services/generation"
)

// FakeGenerationGateway records submissions and returns scripted responses.
type FakeGenerationGateway struct {
	mu       sync.Mutex
	Requests []generation.SubmitRequest
	// Response is returned for every submission unless Fail is set.
	Response generation.SubmitResponse
	Fail     error
	// FailFor marks specific models whose submission should error.
	FailFor map[string]error
}

func (g *FakeGenerationGateway) Submit(_ context.Context, req generation.SubmitRequest) (generation.SubmitResponse, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.Requests = append(g.Requests, req)
	if g.Fail != nil {
		return generation.SubmitResponse{}, g.Fail
	}
	if err, ok := g.FailFor[req.Model]; ok && err != nil {
		return generation.SubmitResponse{}, err
	}
	resp := g.Response
	if !resp.Accepted {
		resp.Accepted = true
	}
	return resp, nil
}

// Submitted returns a snapshot of all submissions so far.
func (g *FakeGenerationGateway) Submitted() []generation.SubmitRequest {
	g.mu.Lock()
	defer g.mu.Unlock()
	out := make([]generation.SubmitRequest, len(g.Requests))
	copy(out, g.Requests)
	return out
}

// FakeCompositionGateway records compose calls and returns a scripted response.
type FakeCompositionGateway struct {
	mu       sync.Mutex
	Requests []composition.ComposeRequest
	Response composition.ComposeResponse
	Fail     error
}

func (g *FakeCompositionGateway) Compose(_ context.Context, req composition.ComposeRequest) (composition.ComposeResponse, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.Requests = append(g.Requests, req)
	if g.Fail != nil {
		return composition.ComposeResponse{}, g.Fail
	}
	return g.Response, nil
}

// MemoryBlobStore keeps uploads in memory and rewrites transient URLs to a
// stable fake permanent form.
type MemoryBlobStore struct {
	mu      sync.Mutex
	Objects map[string]string
	// RehostErr forces Rehost to fail, exercising partial degradation.
	RehostErr error
}

func NewMemoryBlobStore() *MemoryBlobStore {
	return &MemoryBlobStore{Objects: make(map[string]string)}
}

func (m *MemoryBlobStore) Enabled() bool { return true }

func (m *MemoryBlobStore) Upload(_ context.Context, reader io.Reader, object string, _ int64) (string, error) {
	data, err := io.ReadAll(reader)
	if err != nil {
		return "", err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Objects[object] = string(data)
	return "https://blobs.test/" + object, nil
}

func (m *MemoryBlobStore) Rehost(_ context.Context, transientURL, object string) (string, error) {
	if m.RehostErr != nil {
		return "", m.RehostErr
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Objects[object] = fmt.Sprintf("rehosted from %s", transientURL)
	return "https://blobs.test/" + object, nil
}
