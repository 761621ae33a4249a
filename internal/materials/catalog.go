// Package materials provides the canonical material catalog used to resolve
// names, chemical formulas, and ids to physical properties.
package materials

import (
	_ "embed"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	lru "github.com/hashicorp/golang-lru/v2"
	"go.yaml.in/yaml/v2"

	"spherecore/pkg/domain"
)

// DefaultMemoSize bounds the number of memoized identifier resolutions.
const DefaultMemoSize = 512

// ErrInvalidRecord reports catalog data that cannot be accepted.
var ErrInvalidRecord = errors.New("invalid material record")

// Embedded default catalog.
//
//go:embed catalog.json
var embeddedCatalog []byte

type catalogDoc struct {
	Version   string                  `json:"version" yaml:"version"`
	Materials []domain.MaterialRecord `json:"materials" yaml:"materials"`
}

// Catalog is a concurrency-safe MaterialLookup. Identifiers are matched after
// trimming and lowercasing: canonical id first, then chemical formula, then
// display name.
type Catalog struct {
	mu        sync.RWMutex
	byID      map[string]domain.MaterialRecord
	byFormula map[string]string
	byName    map[string]string
	memo      *lru.Cache[string, domain.MaterialRecord]
}

var _ domain.MaterialLookup = (*Catalog)(nil)

var (
	defaultOnce sync.Once
	defaultCat  *Catalog
	defaultErr  error
)

// Default returns the shared catalog built from the embedded data.
func Default() (*Catalog, error) {
	defaultOnce.Do(func() {
		defaultCat, defaultErr = NewEmbedded(DefaultMemoSize)
	})
	return defaultCat, defaultErr
}

// NewEmbedded builds a fresh catalog from the embedded data.
func NewEmbedded(memoSize int) (*Catalog, error) {
	var doc catalogDoc
	if err := json.Unmarshal(embeddedCatalog, &doc); err != nil {
		return nil, fmt.Errorf("decode embedded catalog: %w", err)
	}
	return New(doc.Materials, memoSize)
}

// New builds a catalog from records.
func New(records []domain.MaterialRecord, memoSize int) (*Catalog, error) {
	if memoSize <= 0 {
		memoSize = DefaultMemoSize
	}
	memo, err := lru.New[string, domain.MaterialRecord](memoSize)
	if err != nil {
		return nil, err
	}
	c := &Catalog{
		byID:      make(map[string]domain.MaterialRecord, len(records)),
		byFormula: make(map[string]string, len(records)),
		byName:    make(map[string]string, len(records)),
		memo:      memo,
	}
	if err := c.Add(records...); err != nil {
		return nil, err
	}
	return c, nil
}

func normalize(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}

func validate(rec domain.MaterialRecord) error {
	if strings.TrimSpace(rec.ID) == "" {
		return fmt.Errorf("%w: id required", ErrInvalidRecord)
	}
	switch rec.Properties.StateAtRoomTemp {
	case domain.StateSolid, domain.StateLiquid, domain.StateGas:
	default:
		return fmt.Errorf("%w: %s has unknown state %q", ErrInvalidRecord, rec.ID, rec.Properties.StateAtRoomTemp)
	}
	if rec.Properties.MolarMass < 0 {
		return fmt.Errorf("%w: %s has negative molar mass", ErrInvalidRecord, rec.ID)
	}
	return nil
}

// Add validates and merges records, replacing entries with the same id. The
// resolution memo is purged.
func (c *Catalog) Add(records ...domain.MaterialRecord) error {
	for _, rec := range records {
		if err := validate(rec); err != nil {
			return err
		}
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, rec := range records {
		id := normalize(rec.ID)
		if prev, ok := c.byID[id]; ok {
			// Another record may have claimed the old formula or name since.
			if f := normalize(prev.ChemicalFormula); c.byFormula[f] == id {
				delete(c.byFormula, f)
			}
			if n := normalize(prev.Name); c.byName[n] == id {
				delete(c.byName, n)
			}
		}
		rec.ID = strings.TrimSpace(rec.ID)
		c.byID[id] = rec
		if f := normalize(rec.ChemicalFormula); f != "" {
			c.byFormula[f] = id
		}
		if n := normalize(rec.Name); n != "" {
			c.byName[n] = id
		}
	}
	c.memo.Purge()
	return nil
}

// LoadFile merges records from a JSON or YAML (.yaml, .yml) catalog file and
// returns how many were loaded.
func (c *Catalog) LoadFile(path string) (int, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return 0, err
	}
	var doc catalogDoc
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		err = yaml.Unmarshal(data, &doc)
	default:
		err = json.Unmarshal(data, &doc)
	}
	if err != nil {
		return 0, fmt.Errorf("decode %s: %w", path, err)
	}
	if err := c.Add(doc.Materials...); err != nil {
		return 0, fmt.Errorf("load %s: %w", path, err)
	}
	return len(doc.Materials), nil
}

// FindMaterial implements domain.MaterialLookup.
func (c *Catalog) FindMaterial(identifier string) (domain.MaterialRecord, bool) {
	key := normalize(identifier)
	if key == "" {
		return domain.MaterialRecord{}, false
	}
	if rec, ok := c.memo.Get(key); ok {
		return rec, true
	}
	// The memo is filled under the read lock so that Add, which purges under
	// the write lock, cannot interleave and leave a stale resolution behind.
	c.mu.RLock()
	defer c.mu.RUnlock()
	rec, ok := c.resolveLocked(key)
	if ok {
		c.memo.Add(key, rec)
	}
	return rec, ok
}

func (c *Catalog) resolveLocked(key string) (domain.MaterialRecord, bool) {
	if rec, ok := c.byID[key]; ok {
		return rec, true
	}
	if id, ok := c.byFormula[key]; ok {
		return c.byID[id], true
	}
	if id, ok := c.byName[key]; ok {
		return c.byID[id], true
	}
	return domain.MaterialRecord{}, false
}

// MolarMass returns the catalog molar mass in g/mol.
func (c *Catalog) MolarMass(identifier string) (float64, bool) {
	rec, ok := c.FindMaterial(identifier)
	if !ok {
		return 0, false
	}
	return rec.Properties.MolarMass, true
}

// Records returns every record sorted by id.
func (c *Catalog) Records() []domain.MaterialRecord {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make([]domain.MaterialRecord, 0, len(c.byID))
	for _, rec := range c.byID {
		out = append(out, rec)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// Len returns the number of records.
func (c *Catalog) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.byID)
}

// Memoized returns the number of cached resolutions.
func (c *Catalog) Memoized() int { return c.memo.Len() }
