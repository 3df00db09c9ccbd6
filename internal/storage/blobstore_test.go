package storage

import (
	"context"
	"strings"
	"testing"
)

func TestDeterministicObjectKeys(t *testing.T) {
	if got := VariantImageKey("v-1"); got != "variants/v-1/image.png" {
		t.Fatalf("VariantImageKey = %q", got)
	}
	if got := ShotVideoKey("s-1"); got != "shots/s-1/video.mp4" {
		t.Fatalf("ShotVideoKey = %q", got)
	}
	if got := ReelKey("p-1"); got != "reels/p-1/reel.mp4" {
		t.Fatalf("ReelKey = %q", got)
	}
}

func TestPassthroughKeepsTransientURL(t *testing.T) {
	store := Passthrough{}
	if store.Enabled() {
		t.Fatal("passthrough store should report disabled")
	}
	url, err := store.Rehost(context.Background(), "https://tmp.example.com/x.png", VariantImageKey("v-1"))
	if err != nil {
		t.Fatalf("Rehost: %v", err)
	}
	if url != "https://tmp.example.com/x.png" {
		t.Fatalf("expected transient URL back, got %q", url)
	}
}

func TestPassthroughRefusesDirectUpload(t *testing.T) {
	store := Passthrough{}
	if _, err := store.Upload(context.Background(), strings.NewReader("x"), "a/b.png", 1); err == nil {
		t.Fatal("expected error from passthrough upload")
	}
}

func TestContentTypeFor(t *testing.T) {
	cases := map[string]string{
		"variants/v/image.png": "image/png",
		"shots/s/video.mp4":    "video/mp4",
		"a/b.jpeg":             "image/jpeg",
		"a/b.bin":              "application/octet-stream",
	}
	for object, want := range cases {
		if got := contentTypeFor(object); got != want {
			t.Errorf("contentTypeFor(%q) = %q, want %q", object, got, want)
		}
	}
}
