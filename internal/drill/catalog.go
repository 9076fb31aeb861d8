// Package drill loads the endgame drill catalog: curated positions with a
// target result the trainee must reach against the reference opponent.
package drill

import (
	"embed"
	"errors"
	"fmt"
	"io/fs"
	"math/rand"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	yaml "gopkg.in/yaml.v3"

	"github.com/park285/Cheese-Endgame-Trainer/internal/rules"
)

//go:embed drills.yaml
var defaultFiles embed.FS

// Drill is one playable exercise. The trainee always owns the side to move
// in the starting position.
type Drill struct {
	ID           string   `yaml:"id" json:"id"`
	Name         string   `yaml:"name" json:"name"`
	FEN          string   `yaml:"fen" json:"fen"`
	PlayerColor  string   `yaml:"player_color" json:"player_color"`   // "white" | "black"
	TargetResult string   `yaml:"target_result" json:"target_result"` // "1-0" | "0-1" | "1/2-1/2"
	Rating       int      `yaml:"rating" json:"rating"`
	Themes       []string `yaml:"themes" json:"themes,omitempty"`
	Hint         string   `yaml:"hint" json:"hint,omitempty"`
}

type catalogFile struct {
	Drills []Drill `yaml:"drills"`
}

// Catalog is the loaded drill set. Entries are immutable after Load; lookups
// are safe for concurrent use.
type Catalog struct {
	entries []Drill
	byID    map[string]int
	byName  map[string]int

	randMu sync.Mutex
	rand   *rand.Rand
}

const defaultRating = 1200

var errEmptyCatalog = errors.New("drill catalog is empty")

// Load reads the embedded default catalog and then applies override files
// from dir when it is non-empty. Overrides may replace embedded drills by ID;
// the same ID appearing in two override files is an error.
func Load(overrideDir string) (*Catalog, error) {
	merged := make(map[string]Drill)
	order := make([]string, 0, 16)

	raw, err := fs.ReadFile(defaultFiles, "drills.yaml")
	if err != nil {
		return nil, fmt.Errorf("read embedded drills: %w", err)
	}
	base, err := parseCatalogFile(raw, "drills.yaml")
	if err != nil {
		return nil, err
	}
	for _, d := range base {
		if _, ok := merged[d.ID]; ok {
			return nil, fmt.Errorf("duplicate drill id %q in embedded catalog", d.ID)
		}
		merged[d.ID] = d
		order = append(order, d.ID)
	}

	if strings.TrimSpace(overrideDir) != "" {
		if err := applyOverrides(overrideDir, merged, &order); err != nil {
			return nil, err
		}
	}
	if len(merged) == 0 {
		return nil, errEmptyCatalog
	}

	entries := make([]Drill, 0, len(merged))
	for _, id := range order {
		entries = append(entries, merged[id])
	}
	sort.Slice(entries, func(i, j int) bool {
		if entries[i].Rating != entries[j].Rating {
			return entries[i].Rating < entries[j].Rating
		}
		return entries[i].ID < entries[j].ID
	})

	cat := &Catalog{
		entries: entries,
		byID:    make(map[string]int, len(entries)),
		byName:  make(map[string]int, len(entries)),
		rand:    rand.New(rand.NewSource(time.Now().UnixNano())),
	}
	for i := range entries {
		cat.byID[normalizeToken(entries[i].ID)] = i
		cat.byName[normalizeToken(entries[i].Name)] = i
	}
	return cat, nil
}

func applyOverrides(dir string, merged map[string]Drill, order *[]string) error {
	dirEntries, err := os.ReadDir(dir)
	if err != nil {
		return fmt.Errorf("read drill dir: %w", err)
	}
	files := make([]string, 0, len(dirEntries))
	for _, e := range dirEntries {
		if e.IsDir() {
			continue
		}
		ext := strings.ToLower(filepath.Ext(e.Name()))
		if ext == ".yaml" || ext == ".yml" {
			files = append(files, e.Name())
		}
	}
	sort.Strings(files)

	seen := make(map[string]string) // drill id -> filename
	for _, name := range files {
		b, err := os.ReadFile(filepath.Join(dir, name))
		if err != nil {
			return fmt.Errorf("read %s: %w", name, err)
		}
		drills, err := parseCatalogFile(b, name)
		if err != nil {
			return err
		}
		for _, d := range drills {
			if prev, ok := seen[d.ID]; ok {
				return fmt.Errorf("duplicate drill id %q in %s and %s", d.ID, prev, name)
			}
			seen[d.ID] = name
			if _, existed := merged[d.ID]; !existed {
				*order = append(*order, d.ID)
			}
			merged[d.ID] = d
		}
	}
	return nil
}

func parseCatalogFile(b []byte, source string) ([]Drill, error) {
	var file catalogFile
	if err := yaml.Unmarshal(b, &file); err != nil {
		return nil, fmt.Errorf("parse %s: %w", source, err)
	}
	for i := range file.Drills {
		if err := validateDrill(&file.Drills[i]); err != nil {
			return nil, fmt.Errorf("%s: drill %d: %w", source, i, err)
		}
	}
	return file.Drills, nil
}

// validateDrill checks a parsed entry and fills derivable defaults in place.
func validateDrill(d *Drill) error {
	d.ID = strings.TrimSpace(d.ID)
	d.Name = strings.TrimSpace(d.Name)
	d.FEN = strings.TrimSpace(d.FEN)
	if d.ID == "" {
		return errors.New("id is required")
	}
	if normalizeToken(d.ID) == "" {
		return fmt.Errorf("id %q has no lookup characters", d.ID)
	}
	if d.Name == "" {
		return fmt.Errorf("drill %s: name is required", d.ID)
	}
	if d.FEN == "" {
		return fmt.Errorf("drill %s: fen is required", d.ID)
	}
	if err := rules.ValidateFEN(d.FEN); err != nil {
		return fmt.Errorf("drill %s: %w", d.ID, err)
	}
	status, err := rules.Terminal(d.FEN)
	if err != nil {
		return fmt.Errorf("drill %s: %w", d.ID, err)
	}
	if status.Over {
		return fmt.Errorf("drill %s: starting position is already over (%s)", d.ID, status.Reason)
	}

	stm, err := rules.SideToMove(d.FEN)
	if err != nil {
		return fmt.Errorf("drill %s: %w", d.ID, err)
	}
	color := strings.ToLower(strings.TrimSpace(d.PlayerColor))
	switch color {
	case "":
		d.PlayerColor = stm
	case "white", "w":
		d.PlayerColor = "white"
	case "black", "b":
		d.PlayerColor = "black"
	default:
		return fmt.Errorf("drill %s: player_color must be white or black, got %q", d.ID, d.PlayerColor)
	}
	if d.PlayerColor != stm {
		return fmt.Errorf("drill %s: player_color %s but %s moves first", d.ID, d.PlayerColor, stm)
	}

	switch strings.TrimSpace(d.TargetResult) {
	case "":
		if d.PlayerColor == "white" {
			d.TargetResult = "1-0"
		} else {
			d.TargetResult = "0-1"
		}
	case "1-0", "0-1", "1/2-1/2":
		d.TargetResult = strings.TrimSpace(d.TargetResult)
	default:
		return fmt.Errorf("drill %s: target_result must be 1-0, 0-1 or 1/2-1/2, got %q", d.ID, d.TargetResult)
	}

	if d.Rating <= 0 {
		d.Rating = defaultRating
	}
	return nil
}

// Get resolves a drill by ID or name, ignoring case, spaces and punctuation.
func (c *Catalog) Get(token string) (Drill, bool) {
	key := normalizeToken(token)
	if key == "" {
		return Drill{}, false
	}
	if i, ok := c.byID[key]; ok {
		return c.entries[i], true
	}
	if i, ok := c.byName[key]; ok {
		return c.entries[i], true
	}
	return Drill{}, false
}

// List returns every drill ordered by rating, then ID.
func (c *Catalog) List() []Drill {
	out := make([]Drill, len(c.entries))
	copy(out, c.entries)
	return out
}

// Random picks one drill uniformly.
func (c *Catalog) Random() Drill {
	c.randMu.Lock()
	i := c.rand.Intn(len(c.entries))
	c.randMu.Unlock()
	return c.entries[i]
}

// SetRandomSeed pins the pick order for tests.
func (c *Catalog) SetRandomSeed(seed int64) {
	c.randMu.Lock()
	c.rand = rand.New(rand.NewSource(seed))
	c.randMu.Unlock()
}

// Len reports the number of loaded drills.
func (c *Catalog) Len() int {
	return len(c.entries)
}

// normalizeToken lowercases and strips everything outside [a-z0-9] so that
// "Lucena Bridge" and "lucena-bridge" resolve to the same entry.
func normalizeToken(s string) string {
	var b strings.Builder
	for _, r := range strings.ToLower(strings.TrimSpace(s)) {
		if (r >= 'a' && r <= 'z') || (r >= '0' && r <= '9') {
			b.WriteRune(r)
		}
	}
	return b.String()
}
