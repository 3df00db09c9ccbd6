package generation_test

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"reelsmith/internal/services"
	"reelsmith/internal/services/generation"
)

func TestSubmitDecodesSynchronousResult(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v1/generations" {
			t.Errorf("unexpected path %q", r.URL.Path)
		}
		if got := r.Header.Get("Authorization"); got != "Bearer secret" {
			t.Errorf("unexpected auth header %q", got)
		}
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"accepted":true,"job_id":"job-1","result_url":"https://cdn.example.com/x.png"}`))
	}))
	defer server.Close()

	client := generation.NewClientWithDoer(server.URL, "secret", server.Client())
	resp, err := client.Submit(context.Background(), generation.SubmitRequest{
		Task:     generation.TaskImage,
		TargetID: "variant-1",
		Model:    "flux-pro",
	})
	if err != nil {
		t.Fatalf("Submit: %v", err)
	}
	if !resp.Accepted || resp.JobID != "job-1" || resp.ResultURL == "" {
		t.Fatalf("unexpected response: %+v", resp)
	}
}

func TestSubmitMapsNonSuccessToExternalError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "capacity exhausted", http.StatusServiceUnavailable)
	}))
	defer server.Close()

	client := generation.NewClientWithDoer(server.URL, "", server.Client())
	_, err := client.Submit(context.Background(), generation.SubmitRequest{Task: generation.TaskVideo})
	if !errors.Is(err, services.ErrExternal) {
		t.Fatalf("expected ErrExternal, got %v", err)
	}
}

func TestSubmitRejectionCarriesGatewayMessage(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"accepted":false,"error":"unknown model"}`))
	}))
	defer server.Close()

	client := generation.NewClientWithDoer(server.URL, "", server.Client())
	_, err := client.Submit(context.Background(), generation.SubmitRequest{Task: generation.TaskImage, Model: "nope"})
	if !errors.Is(err, services.ErrExternal) {
		t.Fatalf("expected ErrExternal, got %v", err)
	}
}

func TestSubmitRequiresBaseURL(t *testing.T) {
	client := generation.NewClientWithDoer("", "", http.DefaultClient)
	_, err := client.Submit(context.Background(), generation.SubmitRequest{})
	if !errors.Is(err, services.ErrConfiguration) {
		t.Fatalf("expected ErrConfiguration, got %v", err)
	}
}
