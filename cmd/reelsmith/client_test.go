package main

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"reelsmith/internal/api"
)

func TestClientSendsBearerToken(t *testing.T) {
	var gotAuth string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		if r.URL.Path != "/api/status" {
			t.Errorf("unexpected path %q", r.URL.Path)
		}
		_ = json.NewEncoder(w).Encode(api.DaemonStatus{Running: true, PID: 42})
	}))
	defer server.Close()

	client := newAPIClient(server.URL, "secret")
	status, err := client.Status(context.Background())
	if err != nil {
		t.Fatalf("Status: %v", err)
	}
	if gotAuth != "Bearer secret" {
		t.Fatalf("Authorization header = %q", gotAuth)
	}
	if !status.Running || status.PID != 42 {
		t.Fatalf("unexpected status %+v", status)
	}
}

func TestClientSurfacesDaemonError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
		_ = json.NewEncoder(w).Encode(api.ErrorResponse{Error: "project not found"})
	}))
	defer server.Close()

	client := newAPIClient(server.URL, "")
	_, err := client.Project(context.Background(), "missing")
	if err == nil {
		t.Fatal("expected error")
	}
	if err.Error() != "project not found" {
		t.Fatalf("error = %q", err.Error())
	}
}

func TestClientRequestVideoDecision(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost || r.URL.Path != "/api/videos" {
			t.Errorf("unexpected %s %s", r.Method, r.URL.Path)
		}
		var req api.VideoRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Errorf("decode request: %v", err)
		}
		if req.SceneID != "scene-1" {
			t.Errorf("sceneId = %q", req.SceneID)
		}
		w.WriteHeader(http.StatusAccepted)
		_ = json.NewEncoder(w).Encode(api.VideoDecision{State: "queued", Queued: true})
	}))
	defer server.Close()

	client := newAPIClient(server.URL, "")
	decision, err := client.RequestVideo(context.Background(), "scene-1", "")
	if err != nil {
		t.Fatalf("RequestVideo: %v", err)
	}
	if !decision.Queued || decision.State != "queued" {
		t.Fatalf("unexpected decision %+v", decision)
	}
}

func TestClientConnectionErrorMentionsDaemon(t *testing.T) {
	client := newAPIClient("http://127.0.0.1:1", "")
	err := client.TestNotification(context.Background())
	if err == nil {
		t.Fatal("expected connection error")
	}
	if !strings.Contains(err.Error(), "is reelsmithd running?") {
		t.Fatalf("error = %q", err.Error())
	}
}
