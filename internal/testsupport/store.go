package testsupport

import (
	"context"
	"testing"

	"reelsmith/internal/config"
	"reelsmith/internal/records"
)

// MustOpenStore opens a records.Store for tests and registers cleanup.
func MustOpenStore(t testing.TB, cfg *config.Config) *records.Store {
	t.Helper()

	store, err := records.Open(cfg)
	if err != nil {
		t.Fatalf("records.Open: %v", err)
	}
	t.Cleanup(func() {
		store.Close()
	})
	return store
}

// NewProject seeds a project for tests.
func NewProject(t testing.TB, store *records.Store, title string) *records.Project {
	t.Helper()

	project, err := store.NewProject(context.Background(), title, "", "source text", false)
	if err != nil {
		t.Fatalf("store.NewProject: %v", err)
	}
	return project
}

// NewAsset seeds a bible asset for tests.
func NewAsset(t testing.TB, store *records.Store, projectID string, kind records.AssetKind, name string) *records.BibleAsset {
	t.Helper()

	asset, err := store.NewAsset(context.Background(), projectID, kind, name, "")
	if err != nil {
		t.Fatalf("store.NewAsset: %v", err)
	}
	return asset
}

// NewScene seeds a scene for tests.
func NewScene(t testing.TB, store *records.Store, projectID string, number int) *records.Scene {
	t.Helper()

	scene, err := store.NewScene(context.Background(), projectID, number, "", "", "")
	if err != nil {
		t.Fatalf("store.NewScene: %v", err)
	}
	return scene
}

// NewVariant seeds a variant for tests.
func NewVariant(t testing.TB, store *records.Store, v *records.Variant) *records.Variant {
	t.Helper()

	created, err := store.NewVariant(context.Background(), v)
	if err != nil {
		t.Fatalf("store.NewVariant: %v", err)
	}
	return created
}
