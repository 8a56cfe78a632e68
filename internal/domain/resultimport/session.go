package resultimport

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/ehr/labimport/internal/domain/fieldmapping"
	"github.com/ehr/labimport/internal/platform/spreadsheet"
)

var (
	ErrSessionNotFound  = errors.New("import session not found")
	ErrImportInProgress = errors.New("an import is already running for this session")
)

const DefaultSessionTTL = 30 * time.Minute

// Session is an upload waiting for its mapping to be confirmed. It keeps
// every parsed row so the reconciliation pass runs against exactly the file
// the operator mapped.
type Session struct {
	ID                string                         `json:"id"`
	ConceptUUID       string                         `json:"conceptUuid"`
	WorksheetID       uuid.UUID                      `json:"worksheetId"`
	FileName          string                         `json:"fileName"`
	Separator         string                         `json:"separator"`
	Quote             string                         `json:"quote"`
	Charset           string                         `json:"charset,omitempty"`
	Headers           []spreadsheet.HeaderDescriptor `json:"headers"`
	Rows              [][]string                     `json:"rows"`
	Mapping           *fieldmapping.ConceptMapping   `json:"mapping"`
	SampleID          string                         `json:"sampleId"`
	PreviousMappingID *uuid.UUID                     `json:"previousMappingId,omitempty"`
	TenantID          string                         `json:"tenantId,omitempty"`
	CreatedBy         string                         `json:"createdBy,omitempty"`
	CreatedAt         time.Time                      `json:"createdAt"`
	ExpiresAt         time.Time                      `json:"expiresAt"`
}

// SessionStore keeps import sessions between upload and submit. Acquire
// marks a session busy so only one reconciliation pass runs at a time and
// returns the token that Release must present. Get returns a copy; callers
// persist changes with Save.
type SessionStore interface {
	Save(ctx context.Context, s *Session) error
	Get(ctx context.Context, id string) (*Session, error)
	Delete(ctx context.Context, id string) error
	Acquire(ctx context.Context, id string) (string, error)
	Release(ctx context.Context, id, token string) error
}

type memoryStore struct {
	mu       sync.Mutex
	ttl      time.Duration
	now      func() time.Time
	sessions map[string]*Session
	busy     map[string]string
}

// NewMemoryStore returns a process-local store. Expired sessions are
// dropped lazily on access.
func NewMemoryStore(ttl time.Duration) SessionStore {
	if ttl <= 0 {
		ttl = DefaultSessionTTL
	}
	return &memoryStore{
		ttl:      ttl,
		now:      time.Now,
		sessions: make(map[string]*Session),
		busy:     make(map[string]string),
	}
}

func (m *memoryStore) Save(_ context.Context, s *Session) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sweep()
	s.ExpiresAt = m.now().Add(m.ttl)
	stored := *s
	m.sessions[s.ID] = &stored
	return nil
}

func (m *memoryStore) Get(_ context.Context, id string) (*Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.sessions[id]
	if !ok || m.now().After(s.ExpiresAt) {
		delete(m.sessions, id)
		return nil, ErrSessionNotFound
	}
	cp := *s
	return &cp, nil
}

func (m *memoryStore) Delete(_ context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.sessions[id]; !ok {
		return ErrSessionNotFound
	}
	delete(m.sessions, id)
	delete(m.busy, id)
	return nil
}

func (m *memoryStore) Acquire(_ context.Context, id string) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.busy[id]; ok {
		return "", ErrImportInProgress
	}
	token := uuid.NewString()
	m.busy[id] = token
	return token, nil
}

func (m *memoryStore) Release(_ context.Context, id, token string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.busy[id] == token {
		delete(m.busy, id)
	}
	return nil
}

// sweep must be called with mu held.
func (m *memoryStore) sweep() {
	now := m.now()
	for id, s := range m.sessions {
		if _, busy := m.busy[id]; now.After(s.ExpiresAt) && !busy {
			delete(m.sessions, id)
		}
	}
}
