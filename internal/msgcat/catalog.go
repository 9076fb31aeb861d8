// Package msgcat holds the user-facing feedback strings of the trainer.
// The defaults ship embedded as a Korean catalog; deployments may replace
// individual keys through an override directory.
package msgcat

import (
	"embed"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"text/template"

	yaml "gopkg.in/yaml.v3"
)

//go:embed messages.ko.yaml
var defaultFiles embed.FS

// Catalog maps flattened dot-keys to compiled text templates. Templates are
// parsed once at load time, so a broken message fails startup instead of the
// first render.
type Catalog struct {
	mu  sync.RWMutex
	tpl map[string]*template.Template
}

// New loads the embedded default messages and then applies overrides from
// dir when it is non-empty. Override files are applied in name order; the
// same key appearing in two override files is an error.
func New(overrideDir string) (*Catalog, error) {
	c := &Catalog{tpl: make(map[string]*template.Template)}

	raw, err := fs.ReadFile(defaultFiles, "messages.ko.yaml")
	if err != nil {
		return nil, fmt.Errorf("read embedded messages: %w", err)
	}
	flat, err := parseYAMLToFlat(raw)
	if err != nil {
		return nil, fmt.Errorf("parse embedded messages: %w", err)
	}
	if err := c.compile(flat); err != nil {
		return nil, err
	}

	if strings.TrimSpace(overrideDir) != "" {
		if err := c.applyDir(overrideDir); err != nil {
			return nil, err
		}
	}
	return c, nil
}

func (c *Catalog) applyDir(dir string) error {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return fmt.Errorf("read message dir: %w", err)
	}
	files := make([]string, 0, len(entries))
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		ext := strings.ToLower(filepath.Ext(e.Name()))
		if ext == ".yaml" || ext == ".yml" {
			files = append(files, e.Name())
		}
	}
	sort.Strings(files)

	seen := make(map[string]string) // key -> filename
	for _, name := range files {
		b, err := os.ReadFile(filepath.Join(dir, name))
		if err != nil {
			return fmt.Errorf("read %s: %w", name, err)
		}
		flat, err := parseYAMLToFlat(b)
		if err != nil {
			return fmt.Errorf("parse %s: %w", name, err)
		}
		for k := range flat {
			if prev, ok := seen[k]; ok {
				return fmt.Errorf("duplicate override key %q in %s and %s", k, prev, name)
			}
			seen[k] = name
		}
		if err := c.compile(flat); err != nil {
			return fmt.Errorf("%s: %w", name, err)
		}
	}
	return nil
}

// compile parses every template body and replaces existing keys.
func (c *Catalog) compile(flat map[string]string) error {
	compiled := make(map[string]*template.Template, len(flat))
	for k, body := range flat {
		t, err := template.New(k).Option("missingkey=error").Parse(body)
		if err != nil {
			return fmt.Errorf("template %s: %w", k, err)
		}
		compiled[k] = t
	}
	c.mu.Lock()
	for k, t := range compiled {
		c.tpl[k] = t
	}
	c.mu.Unlock()
	return nil
}

func parseYAMLToFlat(b []byte) (map[string]string, error) {
	var m map[string]any
	if err := yaml.Unmarshal(b, &m); err != nil {
		return nil, err
	}
	flat := make(map[string]string)
	if err := flattenStrings(m, "", flat); err != nil {
		return nil, err
	}
	return flat, nil
}

func flattenStrings(src any, prefix string, out map[string]string) error {
	switch v := src.(type) {
	case map[string]any:
		for k, vv := range v {
			key := k
			if prefix != "" {
				key = prefix + "." + k
			}
			if err := flattenStrings(vv, key, out); err != nil {
				return err
			}
		}
		return nil
	case map[any]any:
		tmp := make(map[string]any)
		for kk, vv := range v {
			tmp[fmt.Sprint(kk)] = vv
		}
		return flattenStrings(tmp, prefix, out)
	case string:
		if prefix == "" {
			return errors.New("string value without key prefix")
		}
		out[prefix] = v
		return nil
	case nil:
		return nil
	default:
		return fmt.Errorf("unsupported value at %s: %T", prefix, v)
	}
}

// Render executes the template at key with the provided data map.
func (c *Catalog) Render(key string, data any) (string, error) {
	c.mu.RLock()
	t, ok := c.tpl[strings.TrimSpace(key)]
	c.mu.RUnlock()
	if !ok {
		return "", fmt.Errorf("message not found: %s", key)
	}
	var b strings.Builder
	if err := t.Execute(&b, data); err != nil {
		return "", fmt.Errorf("render %s: %w", key, err)
	}
	return b.String(), nil
}

// RenderOr renders key and falls back to the given text on any failure.
// User-visible paths should never error out over a message string.
func (c *Catalog) RenderOr(key string, data any, fallback string) string {
	out, err := c.Render(key, data)
	if err != nil {
		return fallback
	}
	return out
}

// Has reports whether a key is present.
func (c *Catalog) Has(key string) bool {
	c.mu.RLock()
	_, ok := c.tpl[strings.TrimSpace(key)]
	c.mu.RUnlock()
	return ok
}
