package storage

import (
	"context"
	"io"
	"path"

	"reelsmith/internal/services"
)

// BlobStore re-hosts transient generation results into permanent storage.
// Object keys are deterministic per entity so repeated re-hosting after
// duplicate callbacks overwrites the same object instead of accumulating.
type BlobStore interface {
	// Upload stores the reader's contents under object and returns a URL.
	Upload(ctx context.Context, reader io.Reader, object string, size int64) (string, error)
	// Rehost downloads a transient URL and re-uploads it under object.
	Rehost(ctx context.Context, transientURL, object string) (string, error)
	// Enabled reports whether permanent storage is configured.
	Enabled() bool
}

// VariantImageKey returns the permanent object key for a variant's image.
func VariantImageKey(variantID string) string {
	return path.Join("variants", variantID, "image.png")
}

// ShotVideoKey returns the permanent object key for a shot's video.
func ShotVideoKey(shotID string) string {
	return path.Join("shots", shotID, "video.mp4")
}

// ReelKey returns the permanent object key for a project's assembled reel.
func ReelKey(projectID string) string {
	return path.Join("reels", projectID, "reel.mp4")
}

// Passthrough is the blob store used when no storage endpoint is configured:
// transient URLs are kept as-is and direct uploads are refused.
type Passthrough struct{}

func (Passthrough) Upload(context.Context, io.Reader, string, int64) (string, error) {
	return "", services.Wrap(services.ErrConfiguration, "storage", "upload", "no storage endpoint configured", nil)
}

func (Passthrough) Rehost(_ context.Context, transientURL, _ string) (string, error) {
	return transientURL, nil
}

func (Passthrough) Enabled() bool { return false }
