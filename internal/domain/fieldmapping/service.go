package fieldmapping

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"

	"github.com/ehr/labimport/internal/domain/concept"
	"github.com/ehr/labimport/internal/platform/spreadsheet"
)

// ConceptSource resolves catalog concepts; *concept.Service satisfies it.
type ConceptSource interface {
	GetConcept(ctx context.Context, uuid string) (*concept.Concept, error)
}

type Service struct {
	repo     Repository
	concepts ConceptSource
}

func NewService(repo Repository, concepts ConceptSource) *Service {
	return &Service{repo: repo, concepts: concepts}
}

// FieldTree loads a concept and classifies it into a fresh field tree.
func (s *Service) FieldTree(ctx context.Context, conceptUUID string) (Field, error) {
	c, err := s.concepts.GetConcept(ctx, conceptUUID)
	if err != nil {
		return nil, err
	}
	return BuildFieldTree(c), nil
}

// Validate checks fm against the field tree of its root concept. A non-nil
// error means the concept could not be loaded.
func (s *Service) Validate(ctx context.Context, fm FieldMapping) (ValidationErrors, error) {
	if fm.Mapping == nil || strings.TrimSpace(fm.Mapping.Concept) == "" {
		return ValidationErrors{{Path: "mapping", Message: "mapping concept is required"}}, nil
	}
	field, err := s.FieldTree(ctx, fm.Mapping.Concept)
	if err != nil {
		return nil, err
	}
	return Validate(field, fm), nil
}

// Save validates fm against field and stores it under the header hash of
// fm.Headers, replacing any mapping saved earlier for the same shape.
func (s *Service) Save(ctx context.Context, field Field, fm FieldMapping, createdBy *string) (*Record, error) {
	if err := Validate(field, fm).Err(); err != nil {
		return nil, err
	}
	rec := &Record{
		ConceptUUID:  field.Concept().UUID,
		HeaderHash:   spreadsheet.HeaderHash(fm.Headers),
		FieldMapping: fm,
		CreatedBy:    createdBy,
	}
	if err := s.repo.Save(ctx, rec); err != nil {
		return nil, fmt.Errorf("save field mapping: %w", err)
	}
	return rec, nil
}

// FindPrior returns the mapping saved for this concept and header shape, or
// nil when there is none.
func (s *Service) FindPrior(ctx context.Context, conceptUUID string, headers []spreadsheet.HeaderDescriptor) (*Record, error) {
	rec, err := s.repo.GetByConceptAndHash(ctx, conceptUUID, spreadsheet.HeaderHash(headers))
	if errors.Is(err, ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("find prior mapping: %w", err)
	}
	return rec, nil
}

func (s *Service) GetMapping(ctx context.Context, id uuid.UUID) (*Record, error) {
	return s.repo.GetByID(ctx, id)
}

func (s *Service) ListMappings(ctx context.Context, conceptUUID string, limit, offset int) ([]*Record, int, error) {
	if conceptUUID != "" {
		return s.repo.ListByConcept(ctx, conceptUUID, limit, offset)
	}
	return s.repo.List(ctx, limit, offset)
}

func (s *Service) DeleteMapping(ctx context.Context, id uuid.UUID) error {
	return s.repo.Delete(ctx, id)
}
