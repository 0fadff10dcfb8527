package discovery

import (
	_ "embed"
	"fmt"
	"sync"

	"gopkg.in/yaml.v3"
)

//go:embed bundled.yaml
var bundledRawData []byte

// BundledEntry is one plugin shipped with the host.
type BundledEntry struct {
	Name        string `yaml:"name"`
	Description string `yaml:"description"`
}

type bundledFile struct {
	Entries []BundledEntry `yaml:"entries"`
}

// BundledCatalog provides lazy-loaded access to the embedded list of
// bundled plugins.
type BundledCatalog struct {
	once    sync.Once
	raw     []byte
	entries []BundledEntry
	err     error
}

// NewBundledCatalog creates a catalog that parses the embedded YAML on first
// access.
func NewBundledCatalog() *BundledCatalog {
	return &BundledCatalog{raw: bundledRawData}
}

// ParseBundledCatalog creates a catalog over raw YAML instead of the
// embedded file.
func ParseBundledCatalog(raw []byte) *BundledCatalog {
	return &BundledCatalog{raw: raw}
}

// Entries returns a copy of all bundled entries.
func (c *BundledCatalog) Entries() ([]BundledEntry, error) {
	c.once.Do(c.load)
	if c.err != nil {
		return nil, c.err
	}
	cp := make([]BundledEntry, len(c.entries))
	copy(cp, c.entries)
	return cp, nil
}

func (c *BundledCatalog) load() {
	var f bundledFile
	if err := yaml.Unmarshal(c.raw, &f); err != nil {
		c.err = fmt.Errorf("bundled catalog: parse yaml: %w", err)
		return
	}
	for i, e := range f.Entries {
		if e.Name == "" {
			c.err = fmt.Errorf("bundled catalog: entry %d has no name", i)
			return
		}
	}
	c.entries = f.Entries
}
