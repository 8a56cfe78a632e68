package fieldmapping

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ehr/labimport/internal/domain/concept"
	"github.com/ehr/labimport/internal/platform/spreadsheet"
)

type mockRepo struct {
	records map[uuid.UUID]*Record
}

func newMockRepo() *mockRepo {
	return &mockRepo{records: make(map[uuid.UUID]*Record)}
}

func (m *mockRepo) Save(_ context.Context, rec *Record) error {
	for _, existing := range m.records {
		if existing.ConceptUUID == rec.ConceptUUID && existing.HeaderHash == rec.HeaderHash {
			existing.FieldMapping = rec.FieldMapping
			existing.UpdatedAt = time.Now()
			*rec = *existing
			return nil
		}
	}
	rec.ID = uuid.New()
	rec.CreatedAt = time.Now()
	rec.UpdatedAt = rec.CreatedAt
	stored := *rec
	m.records[rec.ID] = &stored
	return nil
}

func (m *mockRepo) GetByConceptAndHash(_ context.Context, conceptUUID, headerHash string) (*Record, error) {
	for _, r := range m.records {
		if r.ConceptUUID == conceptUUID && r.HeaderHash == headerHash {
			return r, nil
		}
	}
	return nil, ErrNotFound
}

func (m *mockRepo) GetByID(_ context.Context, id uuid.UUID) (*Record, error) {
	r, ok := m.records[id]
	if !ok {
		return nil, ErrNotFound
	}
	return r, nil
}

func (m *mockRepo) ListByConcept(_ context.Context, conceptUUID string, limit, offset int) ([]*Record, int, error) {
	var out []*Record
	for _, r := range m.records {
		if r.ConceptUUID == conceptUUID {
			out = append(out, r)
		}
	}
	return out, len(out), nil
}

func (m *mockRepo) List(_ context.Context, limit, offset int) ([]*Record, int, error) {
	var out []*Record
	for _, r := range m.records {
		out = append(out, r)
	}
	return out, len(out), nil
}

func (m *mockRepo) Delete(_ context.Context, id uuid.UUID) error {
	if _, ok := m.records[id]; !ok {
		return ErrNotFound
	}
	delete(m.records, id)
	return nil
}

type staticConcepts map[string]*concept.Concept

func (s staticConcepts) GetConcept(_ context.Context, uuid string) (*concept.Concept, error) {
	c, ok := s[uuid]
	if !ok {
		return nil, concept.ErrNotFound
	}
	return c, nil
}

func newTestService() (*Service, *mockRepo) {
	repo := newMockRepo()
	concepts := staticConcepts{"chem": panelConcept(), "glucose": glucoseConcept()}
	return NewService(repo, concepts), repo
}

func TestService_SaveUpsertsByHeaderShape(t *testing.T) {
	svc, repo := newTestService()
	ctx := context.Background()
	field, err := svc.FieldTree(ctx, "chem")
	require.NoError(t, err)

	fm := validFieldMapping()
	first, err := svc.Save(ctx, field, fm, nil)
	require.NoError(t, err)
	assert.Equal(t, spreadsheet.HeaderHash(fm.Headers), first.HeaderHash)

	// Same columns in another order map to the same record.
	fm.Headers = headers("Note", "HIV", "GLU", "Sample")
	fm.Mapping.SetMembers[0].Scale = "10"
	second, err := svc.Save(ctx, field, fm, nil)
	require.NoError(t, err)
	assert.Equal(t, first.ID, second.ID)
	assert.Len(t, repo.records, 1)
	assert.Equal(t, Scale("10"), repo.records[first.ID].FieldMapping.Mapping.SetMembers[0].Scale)
}

func TestService_SaveRejectsInvalid(t *testing.T) {
	svc, repo := newTestService()
	ctx := context.Background()
	field, _ := svc.FieldTree(ctx, "chem")

	fm := validFieldMapping()
	fm.SampleID = ""
	_, err := svc.Save(ctx, field, fm, nil)

	var verrs ValidationErrors
	require.True(t, errors.As(err, &verrs))
	assert.Empty(t, repo.records)
}

func TestService_FindPrior(t *testing.T) {
	svc, _ := newTestService()
	ctx := context.Background()

	rec, err := svc.FindPrior(ctx, "chem", headers("Sample"))
	require.NoError(t, err)
	assert.Nil(t, rec)

	field, _ := svc.FieldTree(ctx, "chem")
	_, err = svc.Save(ctx, field, validFieldMapping(), nil)
	require.NoError(t, err)

	rec, err = svc.FindPrior(ctx, "chem", headers("HIV", "Sample", "Note", "GLU"))
	require.NoError(t, err)
	require.NotNil(t, rec)
	assert.Equal(t, "Sample", rec.FieldMapping.SampleID)
}

func TestService_Validate(t *testing.T) {
	svc, _ := newTestService()
	ctx := context.Background()

	verrs, err := svc.Validate(ctx, validFieldMapping())
	require.NoError(t, err)
	assert.Empty(t, verrs)

	verrs, err = svc.Validate(ctx, FieldMapping{})
	require.NoError(t, err)
	assert.Len(t, verrs, 1)

	fm := validFieldMapping()
	fm.Mapping.Concept = "unknown"
	_, err = svc.Validate(ctx, fm)
	assert.ErrorIs(t, err, concept.ErrNotFound)
}
