package concept

import (
	"context"
	"fmt"
	"strings"

	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/ehr/labimport/internal/platform/db"
)

const DefaultCacheSize = 512

// Service fronts the catalog with an LRU cache keyed by tenant and uuid.
// Concepts are read-only for this system, so cached trees are never
// invalidated by local writes.
type Service struct {
	repo  Repository
	cache *lru.Cache[string, *Concept]
}

func NewService(repo Repository, cacheSize int) (*Service, error) {
	if cacheSize <= 0 {
		cacheSize = DefaultCacheSize
	}
	cache, err := lru.New[string, *Concept](cacheSize)
	if err != nil {
		return nil, fmt.Errorf("create concept cache: %w", err)
	}
	return &Service{repo: repo, cache: cache}, nil
}

func (s *Service) GetConcept(ctx context.Context, uuid string) (*Concept, error) {
	uuid = strings.TrimSpace(uuid)
	if uuid == "" {
		return nil, fmt.Errorf("concept uuid is required")
	}
	key := db.TenantFromContext(ctx) + "/" + uuid
	if c, ok := s.cache.Get(key); ok {
		return c, nil
	}
	c, err := s.repo.GetByUUID(ctx, uuid)
	if err != nil {
		return nil, err
	}
	s.cache.Add(key, c)
	return c, nil
}

func (s *Service) SearchConcepts(ctx context.Context, query string, limit int) ([]*Concept, error) {
	query = strings.TrimSpace(query)
	if query == "" {
		return nil, fmt.Errorf("search query is required")
	}
	return s.repo.Search(ctx, query, limit)
}

// Purge drops every cached concept. The server calls it on SIGHUP.
func (s *Service) Purge() {
	s.cache.Purge()
}
