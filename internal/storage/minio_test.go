package storage

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"reelsmith/internal/config"
)

const locationXML = `<?xml version="1.0" encoding="UTF-8"?><LocationConstraint xmlns="http://s3.amazonaws.com/doc/2006-03-01/">us-east-1</LocationConstraint>`

// fakeS3 answers just enough of the S3 wire protocol for the client: bucket
// location, bucket HEAD (scripted per call), bucket create, policy put, and
// object put.
type fakeS3 struct {
	mu         sync.Mutex
	headCodes  []int
	denyCreate bool

	heads      int
	policyPuts int
	objectPuts []string
}

func (f *fakeS3) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	f.mu.Lock()
	defer f.mu.Unlock()

	bucketPath := "/reelsmith-test"
	switch {
	case r.URL.Query().Has("location"):
		w.Header().Set("Content-Type", "application/xml")
		_, _ = w.Write([]byte(locationXML))
	case r.Method == http.MethodHead && r.URL.Path == bucketPath:
		code := http.StatusOK
		if f.heads < len(f.headCodes) {
			code = f.headCodes[f.heads]
		}
		f.heads++
		w.WriteHeader(code)
	case r.Method == http.MethodPut && r.URL.Path == bucketPath && r.URL.Query().Has("policy"):
		f.policyPuts++
		w.WriteHeader(http.StatusNoContent)
	case r.Method == http.MethodPut && r.URL.Path == bucketPath:
		if f.denyCreate {
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		w.WriteHeader(http.StatusOK)
	case r.Method == http.MethodPut:
		f.objectPuts = append(f.objectPuts, r.URL.Path)
		w.Header().Set("ETag", `"d41d8cd98f00b204e9800998ecf8427e"`)
		w.WriteHeader(http.StatusOK)
	default:
		w.WriteHeader(http.StatusNotFound)
	}
}

func newFakeStore(t *testing.T, backend *fakeS3) (BlobStore, string) {
	t.Helper()
	server := httptest.NewServer(backend)
	t.Cleanup(server.Close)

	cfg := config.Default()
	cfg.Storage.Endpoint = strings.TrimPrefix(server.URL, "http://")
	cfg.Storage.AccessKey = "test-access"
	cfg.Storage.SecretKey = "test-secret"
	cfg.Storage.Bucket = "reelsmith-test"

	store, err := New(&cfg)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return store, server.URL
}

func TestUploadReturnsStableObjectURL(t *testing.T) {
	backend := &fakeS3{headCodes: []int{http.StatusOK}}
	store, base := newFakeStore(t, backend)

	url, err := store.Upload(context.Background(), strings.NewReader("payload"), ShotVideoKey("s-1"), 7)
	if err != nil {
		t.Fatalf("Upload: %v", err)
	}
	if want := base + "/reelsmith-test/shots/s-1/video.mp4"; url != want {
		t.Fatalf("url = %q, want %q", url, want)
	}
	if strings.Contains(url, "X-Amz") {
		t.Fatalf("url carries signing parameters: %q", url)
	}
}

func TestUploadRetriesBucketEnsureAfterFailure(t *testing.T) {
	backend := &fakeS3{headCodes: []int{http.StatusNotFound, http.StatusOK}, denyCreate: true}
	store, _ := newFakeStore(t, backend)

	if _, err := store.Upload(context.Background(), strings.NewReader("x"), VariantImageKey("v-1"), 1); err == nil {
		t.Fatal("expected first upload to fail on bucket create")
	}

	// The bucket now exists server-side; the store must re-check rather
	// than replay the first failure.
	url, err := store.Upload(context.Background(), strings.NewReader("x"), VariantImageKey("v-1"), 1)
	if err != nil {
		t.Fatalf("second upload: %v", err)
	}
	if url == "" {
		t.Fatal("expected object URL from second upload")
	}
	if backend.heads != 2 {
		t.Fatalf("bucket checks = %d, want 2", backend.heads)
	}
}

func TestEnsureBucketAppliesPublicReadPolicyOnCreate(t *testing.T) {
	backend := &fakeS3{headCodes: []int{http.StatusNotFound}}
	store, _ := newFakeStore(t, backend)

	if _, err := store.Upload(context.Background(), strings.NewReader("x"), ReelKey("p-1"), 1); err != nil {
		t.Fatalf("Upload: %v", err)
	}
	if backend.policyPuts != 1 {
		t.Fatalf("policy puts = %d, want 1", backend.policyPuts)
	}
	if len(backend.objectPuts) != 1 || backend.objectPuts[0] != "/reelsmith-test/reels/p-1/reel.mp4" {
		t.Fatalf("object puts = %v", backend.objectPuts)
	}
}
