package middleware

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"sync"
	"testing"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"

	"github.com/ehr/labimport/internal/platform/auth"
)

// mockRecorder collects audit entries for assertions.
type mockRecorder struct {
	mu      sync.Mutex
	entries []AuditEntry
	err     error // if set, RecordAccess returns this error
}

func (m *mockRecorder) RecordAccess(entry AuditEntry) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.entries = append(m.entries, entry)
	return m.err
}

func (m *mockRecorder) last() AuditEntry {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.entries[len(m.entries)-1]
}

func (m *mockRecorder) count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.entries)
}

// newTestContext creates an echo context with optional request modifiers.
func newTestContext(method, path string, opts ...func(*http.Request)) (echo.Context, *httptest.ResponseRecorder) {
	e := echo.New()
	req := httptest.NewRequest(method, path, nil)
	for _, opt := range opts {
		opt(req)
	}
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)
	return c, rec
}

func withAuth(userID string, roles []string) func(*http.Request) {
	return func(req *http.Request) {
		ctx := req.Context()
		ctx = context.WithValue(ctx, auth.UserIDKey, userID)
		ctx = context.WithValue(ctx, auth.UserRolesKey, roles)
		*req = *req.WithContext(ctx)
	}
}

func okHandler(c echo.Context) error {
	return c.String(http.StatusOK, "ok")
}

func TestAudit_WorksheetRead(t *testing.T) {
	logger := zerolog.New(os.Stderr)
	rec := &mockRecorder{}
	wsID := uuid.New().String()

	c, _ := newTestContext(http.MethodGet,
		"/api/v1/worksheets/"+wsID+"/items",
		withAuth("user-1", []string{auth.RoleLabTechnician}),
	)
	c.Set("request_id", "req-abc")
	c.Set("tenant_id", "lab_a")

	err := Audit(logger, rec)(okHandler)(c)

	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if rec.count() != 1 {
		t.Fatalf("expected 1 audit entry, got %d", rec.count())
	}
	entry := rec.last()
	if entry.UserID != "user-1" {
		t.Errorf("expected user_id 'user-1', got %q", entry.UserID)
	}
	if entry.Resource != "worksheets" {
		t.Errorf("expected resource 'worksheets', got %q", entry.Resource)
	}
	if entry.ResourceID != wsID {
		t.Errorf("expected resource_id %q, got %q", wsID, entry.ResourceID)
	}
	if entry.Action != "read" {
		t.Errorf("expected action 'read', got %q", entry.Action)
	}
	if entry.RequestID != "req-abc" {
		t.Errorf("expected request_id 'req-abc', got %q", entry.RequestID)
	}
	if entry.TenantID != "lab_a" {
		t.Errorf("expected tenant_id 'lab_a', got %q", entry.TenantID)
	}
	if entry.StatusCode != http.StatusOK {
		t.Errorf("expected status 200, got %d", entry.StatusCode)
	}
}

func TestAudit_MappingSubmitIsImport(t *testing.T) {
	logger := zerolog.New(os.Stderr)
	rec := &mockRecorder{}

	c, _ := newTestContext(http.MethodPost,
		"/api/v1/result-imports/sess-1/mapping",
		withAuth("user-2", []string{auth.RoleLabTechnician}),
	)

	if err := Audit(logger, rec)(okHandler)(c); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	entry := rec.last()
	if entry.Action != "import" {
		t.Errorf("expected action 'import', got %q", entry.Action)
	}
	if entry.Resource != "result-imports" || entry.ResourceID != "sess-1" {
		t.Errorf("unexpected resource %q/%q", entry.Resource, entry.ResourceID)
	}
}

func TestAudit_StatusFromHTTPError(t *testing.T) {
	logger := zerolog.New(os.Stderr)
	rec := &mockRecorder{}

	c, _ := newTestContext(http.MethodGet, "/api/v1/result-imports/missing")
	h := Audit(logger, rec)(func(c echo.Context) error {
		return echo.NewHTTPError(http.StatusNotFound, "import session not found")
	})

	if err := h(c); err == nil {
		t.Fatal("expected handler error to propagate")
	}
	if got := rec.last().StatusCode; got != http.StatusNotFound {
		t.Errorf("expected status 404, got %d", got)
	}
}

func TestAudit_SkipsNonAuditablePaths(t *testing.T) {
	logger := zerolog.New(os.Stderr)
	rec := &mockRecorder{}

	paths := []string{"/health", "/health/ready", "/", "/other/path"}
	for _, path := range paths {
		c, _ := newTestContext(http.MethodGet, path)
		if err := Audit(logger, rec)(okHandler)(c); err != nil {
			t.Fatalf("unexpected error for path %s: %v", path, err)
		}
	}

	if rec.count() != 0 {
		t.Errorf("expected 0 audit entries for non-auditable paths, got %d", rec.count())
	}
}

func TestAudit_RecorderError_DoesNotBreakRequest(t *testing.T) {
	logger := zerolog.New(os.Stderr)
	rec := &mockRecorder{err: errors.New("database connection failed")}

	c, _ := newTestContext(http.MethodDelete,
		"/api/v1/field-mappings/abc",
		withAuth("user-6", []string{auth.RoleAdmin}),
	)

	if err := Audit(logger, rec)(okHandler)(c); err != nil {
		t.Fatalf("expected no error even when recorder fails, got: %v", err)
	}
	if rec.last().Action != "delete" {
		t.Errorf("expected action 'delete', got %q", rec.last().Action)
	}
}

func TestAudit_NoRecorder_LogOnly(t *testing.T) {
	logger := zerolog.New(os.Stderr)
	c, _ := newTestContext(http.MethodGet, "/api/v1/concepts")

	if err := Audit(logger)(okHandler)(c); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestAudit_CapturesIPAndUserAgent(t *testing.T) {
	logger := zerolog.New(os.Stderr)
	rec := &mockRecorder{}

	c, _ := newTestContext(http.MethodGet,
		"/api/v1/concepts",
		func(req *http.Request) {
			req.Header.Set("User-Agent", "Analyzer-Bridge/2.1")
		},
	)

	if err := Audit(logger, rec)(okHandler)(c); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	entry := rec.last()
	if entry.UserAgent != "Analyzer-Bridge/2.1" {
		t.Errorf("expected user_agent 'Analyzer-Bridge/2.1', got %q", entry.UserAgent)
	}
	if entry.IPAddress == "" {
		t.Error("expected non-empty IP address")
	}
}

func TestIsAuditablePath(t *testing.T) {
	tests := []struct {
		path string
		want bool
	}{
		{"/api/v1/worksheets", true},
		{"/api/v1/result-imports/abc", true},
		{"/health", false},
		{"/", false},
		{"/api/v1", false},
	}
	for _, tt := range tests {
		if got := isAuditablePath(tt.path); got != tt.want {
			t.Errorf("isAuditablePath(%q) = %v, want %v", tt.path, got, tt.want)
		}
	}
}

func TestAuditAction(t *testing.T) {
	tests := []struct {
		method string
		path   string
		want   string
	}{
		{http.MethodGet, "/api/v1/worksheets", "read"},
		{http.MethodHead, "/api/v1/worksheets", "read"},
		{http.MethodPost, "/api/v1/worksheets", "create"},
		{http.MethodPost, "/api/v1/result-imports", "create"},
		{http.MethodPost, "/api/v1/result-imports/abc/mapping", "import"},
		{http.MethodGet, "/api/v1/result-imports/abc/mapping", "read"},
		{http.MethodPut, "/api/v1/worksheets/1", "update"},
		{http.MethodPatch, "/api/v1/worksheets/1", "update"},
		{http.MethodDelete, "/api/v1/result-imports/abc", "delete"},
		{http.MethodOptions, "/api/v1/worksheets", "read"},
	}
	for _, tt := range tests {
		if got := auditAction(tt.method, tt.path); got != tt.want {
			t.Errorf("auditAction(%q, %q) = %q, want %q", tt.method, tt.path, got, tt.want)
		}
	}
}

func TestSplitResource(t *testing.T) {
	tests := []struct {
		path     string
		resource string
		id       string
	}{
		{"/api/v1/worksheets", "worksheets", ""},
		{"/api/v1/worksheets/123", "worksheets", "123"},
		{"/api/v1/worksheets/123/items", "worksheets", "123"},
		{"/api/v1/", "unknown", ""},
	}
	for _, tt := range tests {
		resource, id := splitResource(tt.path)
		if resource != tt.resource || id != tt.id {
			t.Errorf("splitResource(%q) = %q, %q; want %q, %q", tt.path, resource, id, tt.resource, tt.id)
		}
	}
}

func TestAuditRecorderFunc(t *testing.T) {
	var called bool
	fn := AuditRecorderFunc(func(entry AuditEntry) error {
		called = true
		return nil
	})

	if err := fn.RecordAccess(AuditEntry{}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !called {
		t.Error("expected function to be called")
	}
}
