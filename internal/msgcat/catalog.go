package msgcat

import (
	"embed"
	"fmt"
	"io/fs"
	"math/rand"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	yaml "gopkg.in/yaml.v3"
)

//go:embed replies.yaml
var defaultFiles embed.FS

// Catalog holds the bot's canned chat replies, loaded from the embedded
// defaults and optionally extended from an override directory.
type Catalog struct {
	mu      sync.RWMutex
	replies []string
}

type repliesFile struct {
	Replies []string `yaml:"replies"`
}

// New loads the embedded replies and then appends any found in dir.
func New(overrideDir string) (*Catalog, error) {
	c := &Catalog{}
	if err := c.loadEmbedded(); err != nil {
		return nil, err
	}
	if strings.TrimSpace(overrideDir) != "" {
		if err := c.applyDir(overrideDir); err != nil {
			return nil, err
		}
	}
	return c, nil
}

func (c *Catalog) loadEmbedded() error {
	raw, err := fs.ReadFile(defaultFiles, "replies.yaml")
	if err != nil {
		return fmt.Errorf("read embedded replies: %w", err)
	}
	return c.applyYAML(raw)
}

func (c *Catalog) applyDir(dir string) error {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return fmt.Errorf("read replies dir: %w", err)
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
	// Sort for deterministic order
	sort.Strings(files)
	for _, name := range files {
		b, err := os.ReadFile(filepath.Join(dir, name))
		if err != nil {
			return fmt.Errorf("read %s: %w", name, err)
		}
		if err := c.applyYAML(b); err != nil {
			return fmt.Errorf("parse %s: %w", name, err)
		}
	}
	return nil
}

func (c *Catalog) applyYAML(b []byte) error {
	var f repliesFile
	if err := yaml.Unmarshal(b, &f); err != nil {
		return err
	}
	c.mu.Lock()
	for _, r := range f.Replies {
		if strings.TrimSpace(r) != "" {
			c.replies = append(c.replies, r)
		}
	}
	c.mu.Unlock()
	return nil
}

// Replies returns a copy of the loaded reply set.
func (c *Catalog) Replies() []string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return append([]string(nil), c.replies...)
}

// Random returns one reply chosen uniformly, or "" when none are loaded.
func (c *Catalog) Random() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if len(c.replies) == 0 {
		return ""
	}
	return c.replies[rand.Intn(len(c.replies))]
}
