package concept

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/labstack/echo/v4"

	"github.com/ehr/labimport/internal/platform/db"
)

type countingRepo struct {
	Repository
	gets int
}

func (r *countingRepo) GetByUUID(ctx context.Context, uuid string) (*Concept, error) {
	r.gets++
	return r.Repository.GetByUUID(ctx, uuid)
}

func newCountingService(t *testing.T) (*Service, *countingRepo) {
	t.Helper()
	cat, err := LoadCatalog(strings.NewReader(testCatalog))
	if err != nil {
		t.Fatal(err)
	}
	repo := &countingRepo{Repository: cat}
	svc, err := NewService(repo, 2)
	if err != nil {
		t.Fatal(err)
	}
	return svc, repo
}

func TestService_GetConcept_Caches(t *testing.T) {
	svc, repo := newCountingService(t)
	ctx := context.Background()

	for range 3 {
		if _, err := svc.GetConcept(ctx, " hiv "); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
	}
	if repo.gets != 1 {
		t.Errorf("expected 1 repository read, got %d", repo.gets)
	}

	svc.Purge()
	svc.GetConcept(ctx, "hiv")
	if repo.gets != 2 {
		t.Errorf("expected purge to force a reload, got %d reads", repo.gets)
	}
}

func TestService_GetConcept_CachePerTenant(t *testing.T) {
	svc, repo := newCountingService(t)
	labA := context.WithValue(context.Background(), db.TenantIDKey, "lab_a")
	labB := context.WithValue(context.Background(), db.TenantIDKey, "lab_b")

	svc.GetConcept(labA, "hiv")
	svc.GetConcept(labB, "hiv")
	svc.GetConcept(labA, "hiv")
	if repo.gets != 2 {
		t.Errorf("expected one read per tenant, got %d", repo.gets)
	}
}

func TestService_GetConcept_NotCachedOnError(t *testing.T) {
	svc, repo := newCountingService(t)
	for range 2 {
		if _, err := svc.GetConcept(context.Background(), "nope"); !errors.Is(err, ErrNotFound) {
			t.Fatalf("expected ErrNotFound, got %v", err)
		}
	}
	if repo.gets != 2 {
		t.Errorf("expected misses to hit the repository each time, got %d", repo.gets)
	}
}

func TestService_RequiresInput(t *testing.T) {
	svc, _ := newCountingService(t)
	if _, err := svc.GetConcept(context.Background(), "  "); err == nil {
		t.Error("expected error for blank uuid")
	}
	if _, err := svc.SearchConcepts(context.Background(), "", 10); err == nil {
		t.Error("expected error for blank query")
	}
}

func TestHandler_GetConcept(t *testing.T) {
	svc, _ := newCountingService(t)
	h := NewHandler(svc)
	e := echo.New()

	tests := []struct {
		uuid string
		code int
	}{
		{"glucose", http.StatusOK},
		{"missing", http.StatusNotFound},
	}
	for _, tt := range tests {
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		rec := httptest.NewRecorder()
		c := e.NewContext(req, rec)
		c.SetParamNames("uuid")
		c.SetParamValues(tt.uuid)

		err := h.GetConcept(c)
		if tt.code == http.StatusOK {
			if err != nil || rec.Code != http.StatusOK {
				t.Errorf("%s: expected 200, got %d (%v)", tt.uuid, rec.Code, err)
			}
			continue
		}
		he, ok := err.(*echo.HTTPError)
		if !ok || he.Code != tt.code {
			t.Errorf("%s: expected %d, got %v", tt.uuid, tt.code, err)
		}
	}
}

func TestHandler_SearchConcepts(t *testing.T) {
	svc, _ := newCountingService(t)
	h := NewHandler(svc)
	e := echo.New()
	req := httptest.NewRequest(http.MethodGet, "/?q=glu", nil)
	rec := httptest.NewRecorder()

	if err := h.SearchConcepts(e.NewContext(req, rec)); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !strings.Contains(rec.Body.String(), `"glucose"`) {
		t.Errorf("expected glucose in results, got %s", rec.Body.String())
	}
}
