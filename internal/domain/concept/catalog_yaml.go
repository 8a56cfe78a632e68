package concept

import (
	"context"
	"fmt"
	"io"
	"os"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"
)

// catalogFile is the on-disk YAML layout. Answers and set members reference
// other entries by uuid so shared answers (Positive, Negative, ...) are
// declared once.
type catalogFile struct {
	Concepts []catalogEntry `yaml:"concepts"`
}

type catalogEntry struct {
	UUID         string   `yaml:"uuid"`
	Display      string   `yaml:"display"`
	Datatype     Datatype `yaml:"datatype"`
	Units        *string  `yaml:"units,omitempty"`
	LowAbsolute  *float64 `yaml:"lowAbsolute,omitempty"`
	HiAbsolute   *float64 `yaml:"hiAbsolute,omitempty"`
	AllowDecimal *bool    `yaml:"allowDecimal,omitempty"`
	Answers      []string `yaml:"answers,omitempty"`
	SetMembers   []string `yaml:"setMembers,omitempty"`
}

// StaticCatalog is an in-memory Repository, loaded from YAML for offline
// reconciliation and development setups without a seeded database.
type StaticCatalog struct {
	byUUID map[string]*Concept
}

func LoadCatalogFile(path string) (*StaticCatalog, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open concept catalog: %w", err)
	}
	defer f.Close()
	return LoadCatalog(f)
}

func LoadCatalog(r io.Reader) (*StaticCatalog, error) {
	var file catalogFile
	if err := yaml.NewDecoder(r).Decode(&file); err != nil {
		return nil, fmt.Errorf("decode concept catalog: %w", err)
	}
	return newStaticCatalog(file.Concepts)
}

func newStaticCatalog(entries []catalogEntry) (*StaticCatalog, error) {
	cat := &StaticCatalog{byUUID: make(map[string]*Concept, len(entries))}
	for _, e := range entries {
		if e.UUID == "" {
			return nil, fmt.Errorf("concept %q has no uuid", e.Display)
		}
		if _, dup := cat.byUUID[e.UUID]; dup {
			return nil, fmt.Errorf("duplicate concept uuid %s", e.UUID)
		}
		cat.byUUID[e.UUID] = &Concept{
			UUID: e.UUID, Display: e.Display, Datatype: e.Datatype, Units: e.Units,
			LowAbsolute: e.LowAbsolute, HiAbsolute: e.HiAbsolute, AllowDecimal: e.AllowDecimal,
		}
	}
	for _, e := range entries {
		c := cat.byUUID[e.UUID]
		for _, ref := range e.Answers {
			a, ok := cat.byUUID[ref]
			if !ok {
				return nil, fmt.Errorf("concept %s: unknown answer %s", e.UUID, ref)
			}
			c.Answers = append(c.Answers, a)
		}
		for _, ref := range e.SetMembers {
			m, ok := cat.byUUID[ref]
			if !ok {
				return nil, fmt.Errorf("concept %s: unknown set member %s", e.UUID, ref)
			}
			c.SetMembers = append(c.SetMembers, m)
		}
	}
	return cat, nil
}

func (s *StaticCatalog) GetByUUID(_ context.Context, uuid string) (*Concept, error) {
	c, ok := s.byUUID[uuid]
	if !ok {
		return nil, ErrNotFound
	}
	return c, nil
}

func (s *StaticCatalog) Search(_ context.Context, query string, limit int) ([]*Concept, error) {
	q := strings.ToLower(query)
	var out []*Concept
	for _, c := range s.byUUID {
		if c.UUID == query || strings.Contains(strings.ToLower(c.Display), q) {
			out = append(out, c)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Display < out[j].Display })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}
