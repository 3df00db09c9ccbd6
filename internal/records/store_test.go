package records_test

import (
	"context"
	"testing"

	"reelsmith/internal/records"
	"reelsmith/internal/testsupport"
)

func TestOpenCreatesSchemaAndProjectRoundTrip(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)

	ctx := context.Background()
	project, err := store.NewProject(ctx, "Night Harbor", "a fishing town mystery", "INT. DOCK - NIGHT", true)
	if err != nil {
		t.Fatalf("NewProject: %v", err)
	}
	if project.ID == "" {
		t.Fatal("expected project ID to be assigned")
	}
	if project.Status != records.ProjectParsing {
		t.Fatalf("expected parsing status, got %q", project.Status)
	}
	if !project.AutoMode {
		t.Fatal("expected auto mode to persist")
	}

	fetched, err := store.GetProject(ctx, project.ID)
	if err != nil {
		t.Fatalf("GetProject: %v", err)
	}
	if fetched == nil || fetched.Title != "Night Harbor" {
		t.Fatalf("unexpected fetched project: %#v", fetched)
	}
}

func TestGetProjectMissingReturnsNil(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)

	project, err := store.GetProject(context.Background(), "no-such-id")
	if err != nil {
		t.Fatalf("GetProject: %v", err)
	}
	if project != nil {
		t.Fatalf("expected nil for missing project, got %#v", project)
	}
}

func TestListProjectsExcludesFailedByDefault(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)

	ctx := context.Background()
	ok := testsupport.NewProject(t, store, "Keep")
	bad := testsupport.NewProject(t, store, "Broken")
	bad.Status = records.ProjectFailed
	bad.ErrorMessage = "decomposition failed"
	if err := store.UpdateProject(ctx, bad); err != nil {
		t.Fatalf("UpdateProject: %v", err)
	}

	visible, err := store.ListProjects(ctx, false)
	if err != nil {
		t.Fatalf("ListProjects: %v", err)
	}
	if len(visible) != 1 || visible[0].ID != ok.ID {
		t.Fatalf("expected only the healthy project, got %d", len(visible))
	}

	all, err := store.ListProjects(ctx, true)
	if err != nil {
		t.Fatalf("ListProjects all: %v", err)
	}
	if len(all) != 2 {
		t.Fatalf("expected 2 projects including failed, got %d", len(all))
	}
}

func TestAssetsByProjectFiltersKind(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)

	ctx := context.Background()
	project := testsupport.NewProject(t, store, "P")
	testsupport.NewAsset(t, store, project.ID, records.AssetCharacter, "Mara")
	testsupport.NewAsset(t, store, project.ID, records.AssetLocation, "The Dock")
	testsupport.NewAsset(t, store, project.ID, records.AssetProp, "Lantern")

	chars, err := store.AssetsByProject(ctx, project.ID, records.AssetCharacter)
	if err != nil {
		t.Fatalf("AssetsByProject: %v", err)
	}
	if len(chars) != 1 || chars[0].Name != "Mara" {
		t.Fatalf("unexpected characters: %#v", chars)
	}

	blocking, err := store.AssetsByProject(ctx, project.ID, records.AssetCharacter, records.AssetLocation)
	if err != nil {
		t.Fatalf("AssetsByProject: %v", err)
	}
	if len(blocking) != 2 {
		t.Fatalf("expected 2 blocking assets, got %d", len(blocking))
	}
}

func TestDeleteProjectCascades(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)

	ctx := context.Background()
	project := testsupport.NewProject(t, store, "Doomed")
	asset := testsupport.NewAsset(t, store, project.ID, records.AssetCharacter, "Mara")
	scene := testsupport.NewScene(t, store, project.ID, 1)
	testsupport.NewVariant(t, store, &records.Variant{
		ProjectID:  project.ID,
		ParentKind: records.ParentCharacter,
		ParentID:   asset.ID,
		Model:      "flux-pro",
		Status:     records.VariantGenerating,
	})

	removed, err := store.DeleteProject(ctx, project.ID)
	if err != nil {
		t.Fatalf("DeleteProject: %v", err)
	}
	if !removed {
		t.Fatal("expected project to be removed")
	}

	if got, _ := store.GetAsset(ctx, asset.ID); got != nil {
		t.Fatal("expected asset to cascade")
	}
	if got, _ := store.GetScene(ctx, scene.ID); got != nil {
		t.Fatal("expected scene to cascade")
	}
	variants, err := store.VariantsByParent(ctx, asset.ID, "")
	if err != nil {
		t.Fatalf("VariantsByParent: %v", err)
	}
	if len(variants) != 0 {
		t.Fatalf("expected variants to cascade, got %d", len(variants))
	}
}

func TestEnsureReelIsSingletonPerProject(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)

	ctx := context.Background()
	project := testsupport.NewProject(t, store, "P")

	first, err := store.EnsureReel(ctx, project.ID, 2)
	if err != nil {
		t.Fatalf("EnsureReel: %v", err)
	}
	first.Status = records.ReelFailed
	first.ErrorMessage = "gateway exploded"
	if err := store.UpdateReel(ctx, first); err != nil {
		t.Fatalf("UpdateReel: %v", err)
	}

	second, err := store.EnsureReel(ctx, project.ID, 3)
	if err != nil {
		t.Fatalf("EnsureReel again: %v", err)
	}
	if second.ID != first.ID {
		t.Fatalf("expected same reel record, got %q then %q", first.ID, second.ID)
	}
	if second.Status != records.ReelAssembling || second.ErrorMessage != "" {
		t.Fatalf("expected reset reel, got %#v", second)
	}
	if second.SegmentCount != 3 {
		t.Fatalf("expected updated segment count, got %d", second.SegmentCount)
	}
}

func TestCheckHealth(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)
	testsupport.NewProject(t, store, "P")

	health, err := store.CheckHealth(context.Background())
	if err != nil {
		t.Fatalf("CheckHealth: %v", err)
	}
	if !health.DatabaseExists || !health.DatabaseReadable || !health.IntegrityCheck {
		t.Fatalf("unexpected health: %#v", health)
	}
	if health.Projects != 1 {
		t.Fatalf("expected 1 project, got %d", health.Projects)
	}
}
