package admission_test

import (
	"context"
	"errors"
	"testing"

	"reelsmith/internal/admission"
	"reelsmith/internal/config"
	"reelsmith/internal/events"
	"reelsmith/internal/records"
	"reelsmith/internal/services"
	"reelsmith/internal/storage"
	"reelsmith/internal/testsupport"
	"reelsmith/internal/webhook"
)

type fixture struct {
	cfg     *config.Config
	store   *records.Store
	blobs   *testsupport.MemoryBlobStore
	gateway *testsupport.FakeGenerationGateway
	queue   *admission.Queue
}

func newFixture(t *testing.T, cap int) *fixture {
	t.Helper()
	cfg := testsupport.NewConfig(t, testsupport.WithAdmissionCap(cap))
	store := testsupport.MustOpenStore(t, cfg)
	blobs := testsupport.NewMemoryBlobStore()
	gateway := &testsupport.FakeGenerationGateway{}
	queue := admission.NewQueue(cfg, store, blobs, gateway, events.NewHub(64), nil, nil)
	return &fixture{cfg: cfg, store: store, blobs: blobs, gateway: gateway, queue: queue}
}

// seedScene creates a scene holding a selected image variant, the minimum
// readiness for video admission.
func (f *fixture) seedScene(t *testing.T, projectID string, number int) *records.Scene {
	t.Helper()
	scene := testsupport.NewScene(t, f.store, projectID, number)
	testsupport.NewVariant(t, f.store, &records.Variant{
		ProjectID:  projectID,
		ParentKind: records.ParentSceneImage,
		ParentID:   scene.ID,
		Model:      "flux-pro",
		Status:     records.VariantSelected,
		IsSelected: true,
		ImageURL:   "https://blobs.test/variants/" + scene.ID + "/image.png",
		Prompt:     "wide shot",
	})
	return scene
}

func TestRequestAdmitsUnderCap(t *testing.T) {
	f := newFixture(t, 3)
	project := testsupport.NewProject(t, f.store, "P")
	scene := f.seedScene(t, project.ID, 1)

	decision, err := f.queue.Request(context.Background(), scene.ID, "")
	if err != nil {
		t.Fatalf("Request: %v", err)
	}
	if decision.Queued || decision.Shot == nil {
		t.Fatalf("expected admission, got %#v", decision)
	}
	if decision.State != records.ShotGenerating {
		t.Fatalf("expected generating, got %q", decision.State)
	}
	if len(f.gateway.Submitted()) != 1 {
		t.Fatalf("expected 1 submission, got %d", len(f.gateway.Submitted()))
	}
}

func TestRequestIsIdempotentPerScene(t *testing.T) {
	f := newFixture(t, 3)
	project := testsupport.NewProject(t, f.store, "P")
	scene := f.seedScene(t, project.ID, 1)

	ctx := context.Background()
	first, err := f.queue.Request(ctx, scene.ID, "")
	if err != nil {
		t.Fatalf("Request: %v", err)
	}
	second, err := f.queue.Request(ctx, scene.ID, "")
	if err != nil {
		t.Fatalf("Request again: %v", err)
	}
	if second.Shot == nil || second.Shot.ID != first.Shot.ID {
		t.Fatalf("expected existing shot returned, got %#v", second)
	}

	shots, _ := f.store.ShotsByScene(ctx, scene.ID)
	if len(shots) != 1 {
		t.Fatalf("expected no duplicate shot, got %d", len(shots))
	}
}

func TestRequestOverCapDropsSilently(t *testing.T) {
	f := newFixture(t, 1)
	project := testsupport.NewProject(t, f.store, "P")
	first := f.seedScene(t, project.ID, 1)
	second := f.seedScene(t, project.ID, 2)

	ctx := context.Background()
	if _, err := f.queue.Request(ctx, first.ID, ""); err != nil {
		t.Fatalf("Request: %v", err)
	}

	decision, err := f.queue.Request(ctx, second.ID, "")
	if err != nil {
		t.Fatalf("Request over cap: %v", err)
	}
	if !decision.Queued || decision.Shot != nil {
		t.Fatalf("expected queued drop, got %#v", decision)
	}

	// No record was created for the dropped request.
	shots, _ := f.store.ShotsByScene(ctx, second.ID)
	if len(shots) != 0 {
		t.Fatalf("queued request must not create a record, got %d", len(shots))
	}
}

func TestRequestWithoutSelectedImage(t *testing.T) {
	f := newFixture(t, 3)
	project := testsupport.NewProject(t, f.store, "P")
	scene := testsupport.NewScene(t, f.store, project.ID, 1)

	_, err := f.queue.Request(context.Background(), scene.ID, "")
	if !errors.Is(err, services.ErrPrecondition) {
		t.Fatalf("expected precondition error, got %v", err)
	}
}

func TestSweepStopsAtCap(t *testing.T) {
	f := newFixture(t, 2)
	project := testsupport.NewProject(t, f.store, "P")
	for i := 1; i <= 4; i++ {
		f.seedScene(t, project.ID, i)
	}

	admitted, err := f.queue.Sweep(context.Background(), project.ID)
	if err != nil {
		t.Fatalf("Sweep: %v", err)
	}
	if admitted != 2 {
		t.Fatalf("expected 2 admissions at cap 2, got %d", admitted)
	}

	count, _ := f.store.CountGeneratingShots(context.Background())
	if count != 2 {
		t.Fatalf("expected 2 in-flight shots, got %d", count)
	}
}

func TestSweepSkipsScenesWithoutReadiness(t *testing.T) {
	f := newFixture(t, 4)
	project := testsupport.NewProject(t, f.store, "P")
	f.seedScene(t, project.ID, 1)
	testsupport.NewScene(t, f.store, project.ID, 2)

	admitted, err := f.queue.Sweep(context.Background(), project.ID)
	if err != nil {
		t.Fatalf("Sweep: %v", err)
	}
	if admitted != 1 {
		t.Fatalf("expected only the ready scene admitted, got %d", admitted)
	}
}

func TestCancelFreesSlotForNextRequest(t *testing.T) {
	f := newFixture(t, 1)
	project := testsupport.NewProject(t, f.store, "P")
	first := f.seedScene(t, project.ID, 1)
	second := f.seedScene(t, project.ID, 2)

	ctx := context.Background()
	decision, err := f.queue.Request(ctx, first.ID, "")
	if err != nil {
		t.Fatalf("Request: %v", err)
	}

	if blocked, _ := f.queue.Request(ctx, second.ID, ""); !blocked.Queued {
		t.Fatalf("expected second request queued, got %#v", blocked)
	}

	if err := f.queue.Cancel(ctx, decision.Shot.ID); err != nil {
		t.Fatalf("Cancel: %v", err)
	}

	after, err := f.queue.Request(ctx, second.ID, "")
	if err != nil {
		t.Fatalf("Request after cancel: %v", err)
	}
	if after.Queued || after.Shot == nil {
		t.Fatalf("expected freed slot to admit, got %#v", after)
	}
}

func TestCancelRejectsFinishedShots(t *testing.T) {
	f := newFixture(t, 3)
	project := testsupport.NewProject(t, f.store, "P")
	scene := f.seedScene(t, project.ID, 1)

	ctx := context.Background()
	decision, err := f.queue.Request(ctx, scene.ID, "")
	if err != nil {
		t.Fatalf("Request: %v", err)
	}
	shot := decision.Shot
	shot.Status = records.ShotReady
	shot.VideoURL = "https://blobs.test/shots/x/video.mp4"
	if err := f.store.UpdateShot(ctx, shot); err != nil {
		t.Fatalf("UpdateShot: %v", err)
	}

	if err := f.queue.Cancel(ctx, shot.ID); !errors.Is(err, services.ErrPrecondition) {
		t.Fatalf("expected precondition error, got %v", err)
	}
}

func TestApplyCompletionRehostsAndSweeps(t *testing.T) {
	f := newFixture(t, 1)
	project := testsupport.NewProject(t, f.store, "P")
	first := f.seedScene(t, project.ID, 1)
	second := f.seedScene(t, project.ID, 2)

	ctx := context.Background()
	decision, err := f.queue.Request(ctx, first.ID, "")
	if err != nil {
		t.Fatalf("Request: %v", err)
	}

	result := webhook.CompletionResult{Ready: true, VideoURL: "https://transient.test/video.mp4"}
	for i := 0; i < 2; i++ {
		if err := f.queue.ApplyCompletion(ctx, decision.Shot.ID, result); err != nil {
			t.Fatalf("ApplyCompletion #%d: %v", i+1, err)
		}
	}

	shot, _ := f.store.GetShot(ctx, decision.Shot.ID)
	if shot.Status != records.ShotReady {
		t.Fatalf("expected ready, got %q", shot.Status)
	}
	wantURL := "https://blobs.test/" + storage.ShotVideoKey(shot.ID)
	if shot.VideoURL != wantURL {
		t.Fatalf("expected re-hosted URL %q, got %q", wantURL, shot.VideoURL)
	}

	// Completion freed a slot; the follow-up sweep admitted the next scene.
	next, _ := f.store.ShotsByScene(ctx, second.ID)
	if len(next) != 1 || next[0].Status != records.ShotGenerating {
		t.Fatalf("expected post-completion sweep to admit the next scene, got %#v", next)
	}
}

func TestApplyCompletionFailure(t *testing.T) {
	f := newFixture(t, 3)
	project := testsupport.NewProject(t, f.store, "P")
	scene := f.seedScene(t, project.ID, 1)

	ctx := context.Background()
	decision, err := f.queue.Request(ctx, scene.ID, "")
	if err != nil {
		t.Fatalf("Request: %v", err)
	}

	err = f.queue.ApplyCompletion(ctx, decision.Shot.ID,
		webhook.CompletionResult{Ready: false, ErrorMessage: "render timeout"})
	if err != nil {
		t.Fatalf("ApplyCompletion: %v", err)
	}

	shot, _ := f.store.GetShot(ctx, decision.Shot.ID)
	if shot.Status != records.ShotFailed || shot.ErrorMessage != "render timeout" {
		t.Fatalf("unexpected shot after failure: %#v", shot)
	}
}

func TestRegenerateResetsAndResubmits(t *testing.T) {
	f := newFixture(t, 3)
	project := testsupport.NewProject(t, f.store, "P")
	scene := f.seedScene(t, project.ID, 1)

	ctx := context.Background()
	decision, err := f.queue.Request(ctx, scene.ID, "")
	if err != nil {
		t.Fatalf("Request: %v", err)
	}
	if err := f.queue.ApplyCompletion(ctx, decision.Shot.ID,
		webhook.CompletionResult{Ready: false, ErrorMessage: "render timeout"}); err != nil {
		t.Fatalf("ApplyCompletion: %v", err)
	}

	redo, err := f.queue.Regenerate(ctx, decision.Shot.ID)
	if err != nil {
		t.Fatalf("Regenerate: %v", err)
	}
	if redo.Queued || redo.Shot == nil {
		t.Fatalf("expected re-admission, got %#v", redo)
	}
	if redo.Shot.Status != records.ShotGenerating || redo.Shot.ErrorMessage != "" || redo.Shot.VideoURL != "" {
		t.Fatalf("expected reset shot, got %#v", redo.Shot)
	}
	if len(f.gateway.Submitted()) != 2 {
		t.Fatalf("expected 2 submissions, got %d", len(f.gateway.Submitted()))
	}
}

func TestRegenerateRejectsInFlightShot(t *testing.T) {
	f := newFixture(t, 3)
	project := testsupport.NewProject(t, f.store, "P")
	scene := f.seedScene(t, project.ID, 1)

	ctx := context.Background()
	decision, err := f.queue.Request(ctx, scene.ID, "")
	if err != nil {
		t.Fatalf("Request: %v", err)
	}

	if _, err := f.queue.Regenerate(ctx, decision.Shot.ID); !errors.Is(err, services.ErrPrecondition) {
		t.Fatalf("expected precondition error, got %v", err)
	}
}
