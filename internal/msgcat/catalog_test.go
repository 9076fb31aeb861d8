package msgcat

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func writeMessages(t *testing.T, dir, name, body string) {
	t.Helper()
	if err := os.WriteFile(filepath.Join(dir, name), []byte(body), 0o644); err != nil {
		t.Fatalf("write %s: %v", name, err)
	}
}

func TestEmbeddedCatalogLoads(t *testing.T) {
	cat, err := New("")
	if err != nil {
		t.Fatalf("load embedded catalog: %v", err)
	}
	for _, key := range []string{
		"trainer.start",
		"trainer.mistake",
		"trainer.hint",
		"trainer.completed.success",
		"trainer.completed.failure",
		"verdict.win",
		"error.illegal_move",
		"error.no_session",
	} {
		if !cat.Has(key) {
			t.Fatalf("embedded catalog missing key %s", key)
		}
	}
}

func TestRenderWithData(t *testing.T) {
	cat, err := New("")
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	out, err := cat.Render("trainer.hint", map[string]any{"Move": "e5e6"})
	if err != nil {
		t.Fatalf("render: %v", err)
	}
	if !strings.Contains(out, "e5e6") {
		t.Fatalf("rendered hint %q does not carry the move", out)
	}
}

func TestRenderMissingKeyErrors(t *testing.T) {
	cat, err := New("")
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if _, err := cat.Render("no.such.key", nil); err == nil {
		t.Fatal("missing key rendered without error")
	}
	if _, err := cat.Render("trainer.hint", map[string]any{}); err == nil {
		t.Fatal("missing template data rendered without error")
	}
}

func TestRenderOrFallsBack(t *testing.T) {
	cat, err := New("")
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if got := cat.RenderOr("no.such.key", nil, "fallback"); got != "fallback" {
		t.Fatalf("RenderOr = %q, want fallback", got)
	}
	if got := cat.RenderOr("trainer.reset", nil, "fallback"); got == "fallback" || got == "" {
		t.Fatalf("RenderOr lost an existing message: %q", got)
	}
}

func TestOverrideDirReplacesKeys(t *testing.T) {
	dir := t.TempDir()
	writeMessages(t, dir, "en.yaml", `
trainer:
  reset: "back to the start"
  extra: "new key {{.N}}"
`)
	cat, err := New(dir)
	if err != nil {
		t.Fatalf("load with overrides: %v", err)
	}
	out, err := cat.Render("trainer.reset", nil)
	if err != nil {
		t.Fatalf("render: %v", err)
	}
	if out != "back to the start" {
		t.Fatalf("override not applied: %q", out)
	}
	out, err = cat.Render("trainer.extra", map[string]any{"N": 7})
	if err != nil {
		t.Fatalf("render new key: %v", err)
	}
	if out != "new key 7" {
		t.Fatalf("new key rendered %q", out)
	}
	// Untouched keys survive
	if !cat.Has("trainer.mistake") {
		t.Fatal("embedded key lost after override")
	}
}

func TestOverrideDuplicateKeyRejected(t *testing.T) {
	dir := t.TempDir()
	writeMessages(t, dir, "a.yaml", "trainer:\n  reset: \"one\"\n")
	writeMessages(t, dir, "b.yaml", "trainer:\n  reset: \"two\"\n")
	_, err := New(dir)
	if err == nil {
		t.Fatal("duplicate override key accepted")
	}
	if !strings.Contains(err.Error(), "duplicate override key") {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestBrokenTemplateFailsLoad(t *testing.T) {
	dir := t.TempDir()
	writeMessages(t, dir, "bad.yaml", "trainer:\n  reset: \"{{.Unclosed\"\n")
	if _, err := New(dir); err == nil {
		t.Fatal("broken template accepted at load")
	}
}

func TestNonStringLeafRejected(t *testing.T) {
	dir := t.TempDir()
	writeMessages(t, dir, "num.yaml", "trainer:\n  retries: 3\n")
	_, err := New(dir)
	if err == nil {
		t.Fatal("numeric leaf accepted")
	}
	if !strings.Contains(err.Error(), "unsupported value") {
		t.Fatalf("unexpected error: %v", err)
	}
}
