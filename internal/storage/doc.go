// Package storage adapts a MinIO bucket as Reelsmith's blob store. Generated
// results arrive on transient URLs from the generation gateway and are
// re-hosted here under deterministic per-entity keys; when storage is not
// configured a passthrough store keeps the transient URLs.
package storage
