package trap

import (
	_ "embed"
	"fmt"
	"sort"
	"sync"

	"gopkg.in/yaml.v3"
)

//go:embed catalog.yaml
var catalogYAML []byte

// Entry describes one known BRK immediate.
type Entry struct {
	// Immediate is the 16-bit BRK operand
	Immediate uint16 `yaml:"immediate"`

	// Kind is the kind name as returned by Kind.String
	Kind string `yaml:"kind"`

	// Name is a short human-readable label
	Name string `yaml:"name"`

	// Description explains what the trap means
	Description string `yaml:"description"`

	// Resume states how the loop gets past the trap
	Resume string `yaml:"resume"`
}

// String returns "brk #0x69 - JIT map request".
func (e *Entry) String() string {
	return fmt.Sprintf("brk #0x%x - %s", e.Immediate, e.Name)
}

// Catalog holds the embedded descriptions of known immediates. It is
// informational; Classify does not consult it.
type Catalog struct {
	Entries []*Entry

	index map[uint16]*Entry
}

type catalogContainer struct {
	Breakpoints []*Entry `yaml:"breakpoints"`
}

var (
	globalCatalog     *Catalog
	globalCatalogOnce sync.Once
	globalCatalogErr  error
)

// LoadCatalog parses the embedded catalog. It is safe to call repeatedly;
// parsing happens once.
func LoadCatalog() (*Catalog, error) {
	globalCatalogOnce.Do(func() {
		globalCatalog, globalCatalogErr = parseCatalog(catalogYAML)
	})
	return globalCatalog, globalCatalogErr
}

func parseCatalog(data []byte) (*Catalog, error) {
	var container catalogContainer
	if err := yaml.Unmarshal(data, &container); err != nil {
		return nil, fmt.Errorf("failed to parse trap catalog: %w", err)
	}

	c := &Catalog{
		Entries: container.Breakpoints,
		index:   make(map[uint16]*Entry, len(container.Breakpoints)),
	}
	for _, e := range c.Entries {
		if _, dup := c.index[e.Immediate]; dup {
			return nil, fmt.Errorf("trap catalog lists immediate 0x%x twice", e.Immediate)
		}
		c.index[e.Immediate] = e
	}

	sort.Slice(c.Entries, func(i, j int) bool {
		return c.Entries[i].Immediate < c.Entries[j].Immediate
	})
	return c, nil
}

// Get returns the entry for imm.
func (c *Catalog) Get(imm uint16) (*Entry, bool) {
	e, ok := c.index[imm]
	return e, ok
}

// Count returns the number of known immediates.
func (c *Catalog) Count() int {
	return len(c.Entries)
}

// Describe returns a one-line description of a classification, using the
// catalog name when the immediate is known.
func Describe(cl Classification) string {
	if !cl.IsBreakpoint() {
		return "not a breakpoint"
	}
	if c, err := LoadCatalog(); err == nil {
		if e, ok := c.Get(cl.Immediate); ok {
			return e.String()
		}
	}
	return fmt.Sprintf("brk #0x%x - unrecognised immediate", cl.Immediate)
}
