package daemon

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"reelsmith/internal/admission"
	"reelsmith/internal/api"
	"reelsmith/internal/assembly"
	"reelsmith/internal/catalog"
	"reelsmith/internal/events"
	"reelsmith/internal/lifecycle"
	"reelsmith/internal/records"
	"reelsmith/internal/tasks"
	"reelsmith/internal/testsupport"
	"reelsmith/internal/variants"
	"reelsmith/internal/webhook"
)

type testEnv struct {
	daemon  *Daemon
	store   *records.Store
	hub     *events.Hub
	gateway *testsupport.FakeGenerationGateway
	server  *httptest.Server
}

func newTestEnv(t *testing.T, token string) *testEnv {
	t.Helper()
	cfg := testsupport.NewConfig(t, testsupport.WithAdmissionCap(1))
	store := testsupport.MustOpenStore(t, cfg)
	hub := events.NewHub(128)
	gateway := &testsupport.FakeGenerationGateway{}
	compGateway := &testsupport.FakeCompositionGateway{}
	blobs := testsupport.NewMemoryBlobStore()
	models := catalog.Builtin()
	runner := tasks.NewRunner(context.Background(), hub, nil)

	engine := variants.NewEngine(cfg, store, blobs, gateway, models, hub, nil)
	manager := lifecycle.NewManager(cfg, store, gateway, engine, runner, models, hub, nil, nil)
	engine.SetAdvancer(manager)
	queue := admission.NewQueue(cfg, store, blobs, gateway, hub, nil, nil)
	manager.SetSweeper(queue)
	orderer := assembly.NewOrderer(cfg, store, compGateway, blobs, hub, nil, nil)
	dispatcher := webhook.NewDispatcher(store, engine, queue, manager, nil)

	d, err := New(cfg, Components{
		Store:      store,
		Hub:        hub,
		Runner:     runner,
		Catalog:    models,
		Variants:   engine,
		Lifecycle:  manager,
		Admission:  queue,
		Assembly:   orderer,
		Dispatcher: dispatcher,
	}, nil)
	if err != nil {
		t.Fatalf("daemon.New: %v", err)
	}

	srv := &apiServer{daemon: d}
	server := httptest.NewServer(srv.routes(token))
	t.Cleanup(server.Close)
	return &testEnv{daemon: d, store: store, hub: hub, gateway: gateway, server: server}
}

func (e *testEnv) do(t *testing.T, method, path string, body any) *http.Response {
	t.Helper()
	var payload *bytes.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("marshal request: %v", err)
		}
		payload = bytes.NewReader(raw)
	} else {
		payload = bytes.NewReader(nil)
	}
	req, err := http.NewRequest(method, e.server.URL+path, payload)
	if err != nil {
		t.Fatalf("build request: %v", err)
	}
	resp, err := e.server.Client().Do(req)
	if err != nil {
		t.Fatalf("%s %s: %v", method, path, err)
	}
	return resp
}

func decodeBody[T any](t *testing.T, resp *http.Response) T {
	t.Helper()
	defer resp.Body.Close()
	var out T
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	return out
}

func TestStatusEndpointReportsHealth(t *testing.T) {
	env := newTestEnv(t, "")
	testsupport.NewProject(t, env.store, "Health Check")

	resp := env.do(t, http.MethodGet, "/api/status", nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d", resp.StatusCode)
	}
	status := decodeBody[api.DaemonStatus](t, resp)
	if !status.Database.Readable || status.Database.Projects != 1 {
		t.Fatalf("database health = %+v", status.Database)
	}
}

func TestProjectCreateSubmitsParse(t *testing.T) {
	env := newTestEnv(t, "")

	resp := env.do(t, http.MethodPost, "/api/projects", api.CreateProjectRequest{
		Title:      "Night Harbor",
		SourceText: "INT. DOCK - NIGHT",
	})
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("status = %d", resp.StatusCode)
	}
	project := decodeBody[api.Project](t, resp)
	if project.Status != "parsing" {
		t.Fatalf("project status = %q", project.Status)
	}
	if len(env.gateway.Submitted()) != 1 {
		t.Fatalf("expected one parse submission")
	}
}

func TestBearerTokenProtectsAPIButNotCallbacks(t *testing.T) {
	env := newTestEnv(t, "secret")

	resp := env.do(t, http.MethodGet, "/api/projects", nil)
	if resp.StatusCode != http.StatusUnauthorized {
		t.Fatalf("unauthenticated list status = %d", resp.StatusCode)
	}
	resp.Body.Close()

	req, _ := http.NewRequest(http.MethodGet, env.server.URL+"/api/projects", nil)
	req.Header.Set("Authorization", "Bearer secret")
	authed, err := env.server.Client().Do(req)
	if err != nil {
		t.Fatalf("authed request: %v", err)
	}
	if authed.StatusCode != http.StatusOK {
		t.Fatalf("authenticated list status = %d", authed.StatusCode)
	}
	authed.Body.Close()

	// Callbacks must stay reachable for the external workflows.
	resp = env.do(t, http.MethodPost, "/api/callbacks/generation", map[string]string{})
	if resp.StatusCode == http.StatusUnauthorized {
		t.Fatal("callback endpoint must not require the bearer token")
	}
	resp.Body.Close()
}

func TestGenerationCallbackAppliesCompletion(t *testing.T) {
	env := newTestEnv(t, "")
	ctx := context.Background()

	project := testsupport.NewProject(t, env.store, "Callback")
	asset, err := env.store.NewAsset(ctx, project.ID, records.AssetCharacter, "Mara", "deckhand")
	if err != nil {
		t.Fatalf("NewAsset: %v", err)
	}
	variant := testsupport.NewVariant(t, env.store, &records.Variant{
		ProjectID:  project.ID,
		ParentKind: records.ParentCharacter,
		ParentID:   asset.ID,
		Model:      "flux-pro",
		Status:     records.VariantGenerating,
	})

	resp := env.do(t, http.MethodPost, "/api/callbacks/generation", map[string]string{
		"variantId": variant.ID,
		"status":    "ready",
		"imageUrl":  "https://results.test/img.png",
	})
	if resp.StatusCode != http.StatusNoContent {
		t.Fatalf("callback status = %d", resp.StatusCode)
	}
	resp.Body.Close()

	updated, err := env.store.GetVariant(ctx, variant.ID)
	if err != nil {
		t.Fatalf("GetVariant: %v", err)
	}
	if updated.Status != records.VariantReady {
		t.Fatalf("variant status = %q, want ready", updated.Status)
	}
}

func TestGenerationCallbackFallsBackToQueryVariantID(t *testing.T) {
	env := newTestEnv(t, "")
	ctx := context.Background()

	project := testsupport.NewProject(t, env.store, "Callback URL")
	asset, err := env.store.NewAsset(ctx, project.ID, records.AssetCharacter, "Joss", "navigator")
	if err != nil {
		t.Fatalf("NewAsset: %v", err)
	}
	variant := testsupport.NewVariant(t, env.store, &records.Variant{
		ProjectID:  project.ID,
		ParentKind: records.ParentCharacter,
		ParentID:   asset.ID,
		Model:      "flux-pro",
		Status:     records.VariantGenerating,
	})

	// The same address submit hands the gateway, with no id in the body.
	resp := env.do(t, http.MethodPost, "/api/callbacks/generation?variant_id="+variant.ID, map[string]string{
		"status":   "ready",
		"imageUrl": "https://results.test/img.png",
	})
	if resp.StatusCode != http.StatusNoContent {
		t.Fatalf("callback status = %d", resp.StatusCode)
	}
	resp.Body.Close()

	updated, err := env.store.GetVariant(ctx, variant.ID)
	if err != nil {
		t.Fatalf("GetVariant: %v", err)
	}
	if updated.Status != records.VariantReady {
		t.Fatalf("variant status = %q, want ready", updated.Status)
	}
}

func TestVideoRequestQueuesOverCap(t *testing.T) {
	env := newTestEnv(t, "")
	ctx := context.Background()
	project := testsupport.NewProject(t, env.store, "Capped")

	var sceneIDs []string
	for i := 1; i <= 2; i++ {
		scene := testsupport.NewScene(t, env.store, project.ID, i)
		variant := testsupport.NewVariant(t, env.store, &records.Variant{
			ProjectID:  project.ID,
			ParentKind: records.ParentSceneImage,
			ParentID:   scene.ID,
			Model:      "flux-pro",
			Status:     records.VariantReady,
			ImageURL:   "https://img.test/scene.png",
		})
		if _, err := env.store.SelectVariant(ctx, variant.ID); err != nil {
			t.Fatalf("SelectVariant: %v", err)
		}
		sceneIDs = append(sceneIDs, scene.ID)
	}

	resp := env.do(t, http.MethodPost, "/api/videos", api.VideoRequest{SceneID: sceneIDs[0]})
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("first request status = %d", resp.StatusCode)
	}
	first := decodeBody[api.VideoDecision](t, resp)
	if first.Shot == nil || first.Queued {
		t.Fatalf("first decision = %+v", first)
	}

	resp = env.do(t, http.MethodPost, "/api/videos", api.VideoRequest{SceneID: sceneIDs[1]})
	if resp.StatusCode != http.StatusAccepted {
		t.Fatalf("capped request status = %d", resp.StatusCode)
	}
	second := decodeBody[api.VideoDecision](t, resp)
	if !second.Queued || second.Shot != nil {
		t.Fatalf("capped decision = %+v", second)
	}
}

func TestUnknownSceneApprovalMapsToNotFound(t *testing.T) {
	env := newTestEnv(t, "")

	resp := env.do(t, http.MethodPost, "/api/scenes/00000000-0000-0000-0000-000000000000/approve", nil)
	if resp.StatusCode != http.StatusNotFound {
		t.Fatalf("status = %d, want 404", resp.StatusCode)
	}
	resp.Body.Close()
}

func TestEventsWebsocketStreamsPublishedEvents(t *testing.T) {
	env := newTestEnv(t, "")

	wsURL := "ws" + strings.TrimPrefix(env.server.URL, "http") + "/api/events"
	conn, resp, err := websocket.DefaultDialer.Dial(wsURL, nil)
	if err != nil {
		t.Fatalf("dial websocket: %v", err)
	}
	if resp != nil {
		resp.Body.Close()
	}
	defer conn.Close()

	env.hub.Publish(events.Event{
		Type:      events.TypeProjectUpdated,
		ProjectID: "p-1",
		Status:    "bible_review",
	})

	_ = conn.SetReadDeadline(time.Now().Add(5 * time.Second))
	var evt events.Event
	if err := conn.ReadJSON(&evt); err != nil {
		t.Fatalf("read event: %v", err)
	}
	if evt.Type != events.TypeProjectUpdated || evt.ProjectID != "p-1" {
		t.Fatalf("event = %+v", evt)
	}
}
