package catalog

import (
	"strings"
	"testing"
)

const sampleCatalog = `
models:
  - name: flux-pro
    kind: image
    label: Flux Pro
    default: true
  - name: sdxl
    kind: image
  - name: kling-v1
    kind: video
    default: true
`

func TestParseAndResolve(t *testing.T) {
	c, err := Parse([]byte(sampleCatalog))
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}

	images := c.ForKind(KindImage)
	if len(images) != 2 {
		t.Fatalf("expected 2 image models, got %d", len(images))
	}

	defaults := c.DefaultsFor(KindImage)
	if len(defaults) != 1 || defaults[0].Name != "flux-pro" {
		t.Fatalf("unexpected image defaults: %#v", defaults)
	}

	resolved, err := c.Resolve(KindImage, nil)
	if err != nil {
		t.Fatalf("Resolve defaults: %v", err)
	}
	if len(resolved) != 1 || resolved[0].Name != "flux-pro" {
		t.Fatalf("expected default fan-out, got %#v", resolved)
	}

	named, err := c.Resolve(KindImage, []string{"sdxl", "flux-pro"})
	if err != nil {
		t.Fatalf("Resolve named: %v", err)
	}
	if len(named) != 2 || named[0].Name != "sdxl" {
		t.Fatalf("expected requested order preserved, got %#v", named)
	}
}

func TestResolveRejectsWrongKind(t *testing.T) {
	c, err := Parse([]byte(sampleCatalog))
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}

	if _, err := c.Resolve(KindVideo, []string{"flux-pro"}); err == nil {
		t.Fatal("expected error resolving an image model as video")
	}
	if _, err := c.Resolve(KindImage, []string{"nonexistent"}); err == nil {
		t.Fatal("expected error for unknown model")
	}
}

func TestParseRejectsInvalidCatalogs(t *testing.T) {
	cases := map[string]string{
		"empty":        `models: []`,
		"unnamed":      "models:\n  - kind: image\n",
		"unknown kind": "models:\n  - name: x\n    kind: audio\n",
		"duplicate":    "models:\n  - name: x\n    kind: image\n    default: true\n  - name: x\n    kind: image\n",
		"no default":   "models:\n  - name: x\n    kind: image\n",
		"malformed":    `models: "nope"`,
	}
	for name, doc := range cases {
		if _, err := Parse([]byte(doc)); err == nil {
			t.Errorf("%s: expected parse error", name)
		}
	}
}

func TestLoadFallsBackToBuiltin(t *testing.T) {
	c, err := Load("")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	for _, kind := range []Kind{KindImage, KindVideo, KindParse} {
		if len(c.DefaultsFor(kind)) == 0 {
			t.Errorf("builtin catalog has no %s default", kind)
		}
	}

	if _, err := Load("/no/such/catalog.yaml"); err == nil ||
		!strings.Contains(err.Error(), "read model catalog") {
		t.Fatalf("expected read error for missing file, got %v", err)
	}
}
