package variants_test

import (
	"context"
	"errors"
	"strings"
	"testing"

	"reelsmith/internal/catalog"
	"reelsmith/internal/config"
	"reelsmith/internal/events"
	"reelsmith/internal/records"
	"reelsmith/internal/services"
	"reelsmith/internal/storage"
	"reelsmith/internal/testsupport"
	"reelsmith/internal/variants"
	"reelsmith/internal/webhook"
)

type engineFixture struct {
	cfg     *config.Config
	store   *records.Store
	blobs   *testsupport.MemoryBlobStore
	gateway *testsupport.FakeGenerationGateway
	hub     *events.Hub
	engine  *variants.Engine
}

func newEngineFixture(t *testing.T) *engineFixture {
	t.Helper()
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)
	blobs := testsupport.NewMemoryBlobStore()
	gateway := &testsupport.FakeGenerationGateway{}
	hub := events.NewHub(64)
	engine := variants.NewEngine(cfg, store, blobs, gateway, catalog.Builtin(), hub, nil)
	return &engineFixture{cfg: cfg, store: store, blobs: blobs, gateway: gateway, hub: hub, engine: engine}
}

func (f *engineFixture) seedAsset(t *testing.T) (*records.Project, *records.BibleAsset) {
	t.Helper()
	project := testsupport.NewProject(t, f.store, "P")
	asset := testsupport.NewAsset(t, f.store, project.ID, records.AssetCharacter, "Mara")
	return project, asset
}

func imageModels(t *testing.T, names ...string) []catalog.Model {
	t.Helper()
	models, err := catalog.Builtin().Resolve(catalog.KindImage, names)
	if err != nil {
		t.Fatalf("resolve models: %v", err)
	}
	return models
}

func TestGenerateFansOutPerModel(t *testing.T) {
	f := newEngineFixture(t)
	_, asset := f.seedAsset(t)

	ctx := context.Background()
	created, err := f.engine.Generate(ctx,
		variants.ParentRef{Kind: records.ParentCharacter, ID: asset.ID},
		imageModels(t, "flux-pro", "sdxl"))
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}
	if len(created) != 2 {
		t.Fatalf("expected 2 variants, got %d", len(created))
	}
	for _, v := range created {
		if v.Status != records.VariantGenerating {
			t.Fatalf("expected generating variant, got %#v", v)
		}
	}

	submitted := f.gateway.Submitted()
	if len(submitted) != 2 {
		t.Fatalf("expected 2 gateway submissions, got %d", len(submitted))
	}
	for i, req := range submitted {
		if !strings.Contains(req.CallbackURL, "variant_id="+created[i].ID) {
			t.Fatalf("callback URL does not embed variant id: %q", req.CallbackURL)
		}
	}

	// The parent asset reflects the in-flight fan-out.
	refreshed, err := f.store.GetAsset(ctx, asset.ID)
	if err != nil {
		t.Fatalf("GetAsset: %v", err)
	}
	if refreshed.ImageStatus != records.ImageGenerating {
		t.Fatalf("expected asset generating, got %q", refreshed.ImageStatus)
	}
}

func TestGenerateIsolatesPerModelFailure(t *testing.T) {
	f := newEngineFixture(t)
	f.gateway.FailFor = map[string]error{"sdxl": errors.New("model offline")}
	_, asset := f.seedAsset(t)

	ctx := context.Background()
	created, err := f.engine.Generate(ctx,
		variants.ParentRef{Kind: records.ParentCharacter, ID: asset.ID},
		imageModels(t, "flux-pro", "sdxl"))
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}

	byModel := map[string]records.VariantStatus{}
	for _, v := range created {
		current, err := f.store.GetVariant(ctx, v.ID)
		if err != nil {
			t.Fatalf("GetVariant: %v", err)
		}
		byModel[current.Model] = current.Status
	}
	if byModel["flux-pro"] != records.VariantGenerating {
		t.Fatalf("healthy model should stay generating, got %q", byModel["flux-pro"])
	}
	if byModel["sdxl"] != records.VariantFailed {
		t.Fatalf("failed model should be failed, got %q", byModel["sdxl"])
	}
}

func TestGenerateUnknownParent(t *testing.T) {
	f := newEngineFixture(t)

	_, err := f.engine.Generate(context.Background(),
		variants.ParentRef{Kind: records.ParentCharacter, ID: "missing"}, nil)
	if !errors.Is(err, services.ErrNotFound) {
		t.Fatalf("expected not-found, got %v", err)
	}
}

func TestApplyCompletionRehostsAndIsIdempotent(t *testing.T) {
	f := newEngineFixture(t)
	project, asset := f.seedAsset(t)

	ctx := context.Background()
	variant := testsupport.NewVariant(t, f.store, &records.Variant{
		ProjectID: project.ID, ParentKind: records.ParentCharacter,
		ParentID: asset.ID, Model: "flux-pro", Status: records.VariantGenerating,
	})

	result := webhook.CompletionResult{Ready: true, ImageURL: "https://transient.test/a.png"}
	for i := 0; i < 2; i++ {
		if err := f.engine.ApplyCompletion(ctx, variant.ID, result); err != nil {
			t.Fatalf("ApplyCompletion #%d: %v", i+1, err)
		}
	}

	current, err := f.store.GetVariant(ctx, variant.ID)
	if err != nil {
		t.Fatalf("GetVariant: %v", err)
	}
	if current.Status != records.VariantReady {
		t.Fatalf("expected ready, got %q", current.Status)
	}
	wantURL := "https://blobs.test/" + storage.VariantImageKey(variant.ID)
	if current.ImageURL != wantURL {
		t.Fatalf("expected re-hosted URL %q, got %q", wantURL, current.ImageURL)
	}
	if current.SourceURL != "https://transient.test/a.png" {
		t.Fatalf("expected transient source retained, got %q", current.SourceURL)
	}
	if len(f.blobs.Objects) != 1 {
		t.Fatalf("expected exactly 1 stored object, got %d", len(f.blobs.Objects))
	}
}

func TestApplyCompletionRehostFailureKeepsTransientURL(t *testing.T) {
	f := newEngineFixture(t)
	f.blobs.RehostErr = errors.New("bucket gone")
	project, asset := f.seedAsset(t)

	ctx := context.Background()
	variant := testsupport.NewVariant(t, f.store, &records.Variant{
		ProjectID: project.ID, ParentKind: records.ParentCharacter,
		ParentID: asset.ID, Model: "flux-pro", Status: records.VariantGenerating,
	})

	err := f.engine.ApplyCompletion(ctx, variant.ID,
		webhook.CompletionResult{Ready: true, ImageURL: "https://transient.test/a.png"})
	if err != nil {
		t.Fatalf("ApplyCompletion: %v", err)
	}

	current, _ := f.store.GetVariant(ctx, variant.ID)
	if current.Status != records.VariantReady {
		t.Fatalf("expected ready despite re-host failure, got %q", current.Status)
	}
	if current.ImageURL != "https://transient.test/a.png" {
		t.Fatalf("expected transient fallback, got %q", current.ImageURL)
	}
}

func TestApplyCompletionFailure(t *testing.T) {
	f := newEngineFixture(t)
	project, asset := f.seedAsset(t)

	ctx := context.Background()
	variant := testsupport.NewVariant(t, f.store, &records.Variant{
		ProjectID: project.ID, ParentKind: records.ParentCharacter,
		ParentID: asset.ID, Model: "flux-pro", Status: records.VariantGenerating,
	})

	err := f.engine.ApplyCompletion(ctx, variant.ID,
		webhook.CompletionResult{Ready: false, ErrorMessage: "content filter"})
	if err != nil {
		t.Fatalf("ApplyCompletion: %v", err)
	}

	current, _ := f.store.GetVariant(ctx, variant.ID)
	if current.Status != records.VariantFailed || current.ErrorMessage != "content filter" {
		t.Fatalf("unexpected variant after failure: %#v", current)
	}
}

func TestSelectMirrorsOntoAsset(t *testing.T) {
	f := newEngineFixture(t)
	project, asset := f.seedAsset(t)

	ctx := context.Background()
	variant := testsupport.NewVariant(t, f.store, &records.Variant{
		ProjectID: project.ID, ParentKind: records.ParentCharacter,
		ParentID: asset.ID, Model: "flux-pro", Status: records.VariantReady,
		ImageURL: "https://blobs.test/variants/x/image.png",
	})

	selected, err := f.engine.Select(ctx, variant.ID)
	if err != nil {
		t.Fatalf("Select: %v", err)
	}
	if !selected.IsSelected || selected.Status != records.VariantSelected {
		t.Fatalf("unexpected selection: %#v", selected)
	}

	refreshed, _ := f.store.GetAsset(ctx, asset.ID)
	if refreshed.ImageURL != variant.ImageURL {
		t.Fatalf("expected image mirrored onto asset, got %q", refreshed.ImageURL)
	}
	if refreshed.ImageStatus != records.ImageReady {
		t.Fatalf("expected asset ready, got %q", refreshed.ImageStatus)
	}
}

func TestSelectRejectsUnselectable(t *testing.T) {
	f := newEngineFixture(t)
	project, asset := f.seedAsset(t)

	for _, status := range []records.VariantStatus{records.VariantGenerating, records.VariantFailed, records.VariantPending} {
		variant := testsupport.NewVariant(t, f.store, &records.Variant{
			ProjectID: project.ID, ParentKind: records.ParentCharacter,
			ParentID: asset.ID, Model: "flux-pro", Status: status,
		})
		if _, err := f.engine.Select(context.Background(), variant.ID); !errors.Is(err, services.ErrPrecondition) {
			t.Fatalf("status %q: expected precondition error, got %v", status, err)
		}
	}
}

func TestDeleteProtectsSelectedVariant(t *testing.T) {
	f := newEngineFixture(t)
	project, asset := f.seedAsset(t)

	ctx := context.Background()
	variant := testsupport.NewVariant(t, f.store, &records.Variant{
		ProjectID: project.ID, ParentKind: records.ParentCharacter,
		ParentID: asset.ID, Model: "flux-pro", Status: records.VariantReady,
	})
	if _, err := f.engine.Select(ctx, variant.ID); err != nil {
		t.Fatalf("Select: %v", err)
	}

	if err := f.engine.Delete(ctx, variant.ID); !errors.Is(err, services.ErrPrecondition) {
		t.Fatalf("expected precondition error deleting selection, got %v", err)
	}
}

func TestDeleteEscapeHatchForDuplicateSelections(t *testing.T) {
	f := newEngineFixture(t)
	project, asset := f.seedAsset(t)

	ctx := context.Background()
	a := testsupport.NewVariant(t, f.store, &records.Variant{
		ProjectID: project.ID, ParentKind: records.ParentCharacter,
		ParentID: asset.ID, Model: "flux-pro", Status: records.VariantSelected, IsSelected: true,
	})
	testsupport.NewVariant(t, f.store, &records.Variant{
		ProjectID: project.ID, ParentKind: records.ParentCharacter,
		ParentID: asset.ID, Model: "sdxl", Status: records.VariantSelected, IsSelected: true,
	})

	if err := f.engine.Delete(ctx, a.ID); err != nil {
		t.Fatalf("expected duplicate anomaly to allow deletion, got %v", err)
	}
	if got, _ := f.store.GetVariant(ctx, a.ID); got != nil {
		t.Fatal("expected variant removed")
	}
}

func TestRegenerateCarriesLineage(t *testing.T) {
	f := newEngineFixture(t)
	project, asset := f.seedAsset(t)

	ctx := context.Background()
	source := testsupport.NewVariant(t, f.store, &records.Variant{
		ProjectID: project.ID, ParentKind: records.ParentCharacter,
		ParentID: asset.ID, Model: "flux-pro", Status: records.VariantReady,
		ImageURL: "https://blobs.test/variants/src/image.png", Prompt: "original prompt",
	})

	successor, err := f.engine.Regenerate(ctx, source.ID, "tighter framing")
	if err != nil {
		t.Fatalf("Regenerate: %v", err)
	}
	if successor.ParentImageURL != source.ImageURL {
		t.Fatalf("expected lineage reference, got %q", successor.ParentImageURL)
	}
	if successor.Prompt != "tighter framing" || successor.Model != source.Model {
		t.Fatalf("unexpected successor: %#v", successor)
	}
	if successor.GenerationOrder <= source.GenerationOrder {
		t.Fatalf("expected successor ordered after source: %d vs %d",
			successor.GenerationOrder, source.GenerationOrder)
	}
	if len(f.gateway.Submitted()) != 1 {
		t.Fatalf("expected 1 submission, got %d", len(f.gateway.Submitted()))
	}
}

func TestAutoModeSelectsFirstReadyVariantOnce(t *testing.T) {
	f := newEngineFixture(t)

	ctx := context.Background()
	project, err := f.store.NewProject(ctx, "Auto", "", "source", true)
	if err != nil {
		t.Fatalf("NewProject: %v", err)
	}
	asset := testsupport.NewAsset(t, f.store, project.ID, records.AssetCharacter, "Mara")

	first := testsupport.NewVariant(t, f.store, &records.Variant{
		ProjectID: project.ID, ParentKind: records.ParentCharacter,
		ParentID: asset.ID, Model: "flux-pro", Status: records.VariantGenerating,
	})
	second := testsupport.NewVariant(t, f.store, &records.Variant{
		ProjectID: project.ID, ParentKind: records.ParentCharacter,
		ParentID: asset.ID, Model: "sdxl", Status: records.VariantGenerating,
	})

	for _, id := range []string{first.ID, second.ID} {
		err := f.engine.ApplyCompletion(ctx, id,
			webhook.CompletionResult{Ready: true, ImageURL: "https://transient.test/" + id + ".png"})
		if err != nil {
			t.Fatalf("ApplyCompletion: %v", err)
		}
	}

	selected, err := f.store.SelectedVariants(ctx, asset.ID, "")
	if err != nil {
		t.Fatalf("SelectedVariants: %v", err)
	}
	if len(selected) != 1 {
		t.Fatalf("auto mode must yield exactly one selection, got %d", len(selected))
	}
	if selected[0].ID != first.ID {
		t.Fatalf("expected first ready variant selected, got %q", selected[0].ID)
	}
}

func TestFixDuplicatesRepairs(t *testing.T) {
	f := newEngineFixture(t)
	project, asset := f.seedAsset(t)

	ctx := context.Background()
	for _, model := range []string{"flux-pro", "sdxl"} {
		testsupport.NewVariant(t, f.store, &records.Variant{
			ProjectID: project.ID, ParentKind: records.ParentCharacter,
			ParentID: asset.ID, Model: model, Status: records.VariantSelected, IsSelected: true,
		})
	}

	repaired, err := f.engine.FixDuplicates(ctx, asset.ID, "")
	if err != nil {
		t.Fatalf("FixDuplicates: %v", err)
	}
	if repaired != 1 {
		t.Fatalf("expected 1 repair, got %d", repaired)
	}
}
