package api

import (
	"context"
	"encoding/json"
	"net/http"
	"path/filepath"
	"testing"
	"time"

	"github.com/nerrad567/foxbridge/internal/eventlog"
	"github.com/nerrad567/foxbridge/internal/infrastructure/database"
	_ "github.com/nerrad567/foxbridge/migrations"
)

func newEventRepo(t *testing.T) (*eventlog.SQLiteRepository, *database.DB) {
	t.Helper()
	ctx := context.Background()
	db, err := database.Open(ctx, database.Config{Path: filepath.Join(t.TempDir(), "api.db"), WALMode: true, BusyTimeout: 5})
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	t.Cleanup(func() { db.Close() }) //nolint:errcheck // test cleanup
	if err := db.Migrate(ctx); err != nil {
		t.Fatalf("Migrate() error = %v", err)
	}
	return eventlog.NewSQLiteRepository(db.DB), db
}

func TestListTenants(t *testing.T) {
	env := newTestEnv(t, nil)
	env.makeReady(t, "r2", "Two")
	if rec := env.do(t, http.MethodPost, "/initialize/r1", nil, nil); rec.Code != http.StatusOK {
		t.Fatalf("initialize status = %d", rec.Code)
	}

	rec := env.do(t, http.MethodGet, "/api/v1/tenants", nil, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	var body struct {
		Tenants []TenantView `json:"tenants"`
		Count   int          `json:"count"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if body.Count != 2 || body.Tenants[0].TenantID != "r1" || body.Tenants[1].TenantID != "r2" {
		t.Fatalf("tenants = %+v", body.Tenants)
	}
	if body.Tenants[1].State != "ready" || body.Tenants[1].User != "Two" || !body.Tenants[1].EngineAttached {
		t.Errorf("r2 = %+v", body.Tenants[1])
	}
}

func TestListTenantsScoped(t *testing.T) {
	env := newTestEnv(t, withAuth)
	for _, id := range []string{"r1", "r2"} {
		if rec := env.do(t, http.MethodPost, "/initialize/"+id, nil, bearer(t, "")); rec.Code != http.StatusOK {
			t.Fatalf("initialize %s status = %d", id, rec.Code)
		}
	}

	rec := env.do(t, http.MethodGet, "/api/v1/tenants", nil, bearer(t, "r2"))
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	body := decode(t, rec)
	if body["count"] != 1.0 {
		t.Errorf("count = %v, want 1", body["count"])
	}

	if rec := env.do(t, http.MethodGet, "/api/v1/tenants/r1", nil, bearer(t, "r2")); rec.Code != http.StatusForbidden {
		t.Errorf("other tenant status = %d, want 403", rec.Code)
	}
}

func TestGetTenant(t *testing.T) {
	env := newTestEnv(t, nil)

	if rec := env.do(t, http.MethodGet, "/api/v1/tenants/r1", nil, nil); rec.Code != http.StatusNotFound {
		t.Errorf("unknown tenant status = %d, want 404", rec.Code)
	}
	if rec := env.do(t, http.MethodGet, "/api/v1/tenants/bad!id", nil, nil); rec.Code != http.StatusBadRequest {
		t.Errorf("invalid id status = %d, want 400", rec.Code)
	}

	env.makeReady(t, "r1", "One")
	rec := env.do(t, http.MethodGet, "/api/v1/tenants/r1", nil, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	body := decode(t, rec)
	st, _ := body["status"].(map[string]any)
	if st["status"] != "connected" || st["online"] != true {
		t.Errorf("status = %v", st)
	}
}

func TestTenantEvents(t *testing.T) {
	repo, _ := newEventRepo(t)
	env := newTestEnv(t, func(d *Deps) { d.Events = repo })
	ctx := context.Background()
	base := time.Date(2026, 10, 1, 9, 0, 0, 0, time.UTC)

	for i, ev := range []*eventlog.Event{
		{TenantID: "r1", Kind: eventlog.KindTransition, Reason: "initialize", FromState: "uninitialized", ToState: "creating"},
		{TenantID: "r1", Kind: eventlog.KindDelivery, Reason: "sent"},
		{TenantID: "r2", Kind: eventlog.KindTransition, Reason: "initialize"},
	} {
		ev.CreatedAt = base.Add(time.Duration(i) * time.Second)
		if err := repo.Record(ctx, ev); err != nil {
			t.Fatalf("Record() error = %v", err)
		}
	}

	rec := env.do(t, http.MethodGet, "/api/v1/tenants/r1/events", nil, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	var page eventlog.ListResult
	if err := json.Unmarshal(rec.Body.Bytes(), &page); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if page.Total != 2 || page.Events[0].Kind != eventlog.KindDelivery {
		t.Errorf("page = %+v", page)
	}

	rec = env.do(t, http.MethodGet, "/api/v1/tenants/r1/events?kind=transition&limit=1", nil, nil)
	if err := json.Unmarshal(rec.Body.Bytes(), &page); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if page.Total != 1 || page.Limit != 1 || page.Events[0].ToState != "creating" {
		t.Errorf("filtered page = %+v", page)
	}

	for _, q := range []string{"?kind=bogus", "?limit=x", "?offset=-1"} {
		if rec := env.do(t, http.MethodGet, "/api/v1/tenants/r1/events"+q, nil, nil); rec.Code != http.StatusBadRequest {
			t.Errorf("%s status = %d, want 400", q, rec.Code)
		}
	}
}

func TestTenantEventsWithoutRepository(t *testing.T) {
	env := newTestEnv(t, nil)
	if rec := env.do(t, http.MethodGet, "/api/v1/tenants/r1/events", nil, nil); rec.Code != http.StatusServiceUnavailable {
		t.Errorf("status = %d, want 503", rec.Code)
	}
}

func TestMetricsIncludeDatabase(t *testing.T) {
	_, db := newEventRepo(t)
	env := newTestEnv(t, func(d *Deps) { d.Database = db })

	rec := env.do(t, http.MethodGet, "/api/v1/metrics", nil, nil)
	var m SystemMetrics
	if err := json.Unmarshal(rec.Body.Bytes(), &m); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if m.Database.OpenConnections < 1 {
		t.Errorf("open connections = %d, want >= 1", m.Database.OpenConnections)
	}
}
