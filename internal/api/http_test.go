package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/bher20/ebill/internal/storage"
)

type stubReloader struct {
	changed bool
	err     error
	calls   int
}

func (s *stubReloader) RunOnce(ctx context.Context) (bool, error) {
	s.calls++
	return s.changed, s.err
}

// downStorage fails every ping.
type downStorage struct {
	*storage.MemoryStorage
}

func (downStorage) Ping(ctx context.Context) error { return errors.New("connection refused") }

func get(t *testing.T, mux *http.ServeMux, method, path string) *httptest.ResponseRecorder {
	t.Helper()
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, httptest.NewRequest(method, path, nil))
	return rec
}

func TestProbes(t *testing.T) {
	mux := NewMux(storage.NewMemory(), nil, nil)
	for path, body := range map[string]string{"/healthz": "ok", "/livez": "live", "/readyz": "ready"} {
		rec := get(t, mux, http.MethodGet, path)
		if rec.Code != http.StatusOK || rec.Body.String() != body {
			t.Errorf("%s = %d %q", path, rec.Code, rec.Body.String())
		}
	}
	if rec := get(t, mux, http.MethodPost, "/reload"); rec.Code != http.StatusNotFound {
		t.Errorf("/reload without a reloader = %d, want 404", rec.Code)
	}
}

func TestReadyz_StorageDown(t *testing.T) {
	mux := NewMux(downStorage{storage.NewMemory()}, nil, nil)
	if rec := get(t, mux, http.MethodGet, "/readyz"); rec.Code != http.StatusServiceUnavailable {
		t.Fatalf("/readyz = %d, want 503", rec.Code)
	}
}

func TestMetricsEndpoint(t *testing.T) {
	rec := get(t, NewMux(nil, nil, nil), http.MethodGet, "/metrics")
	if rec.Code != http.StatusOK || !strings.Contains(rec.Body.String(), "go_goroutines") {
		t.Fatalf("/metrics = %d", rec.Code)
	}
}

func TestReload(t *testing.T) {
	r := &stubReloader{changed: true}
	mux := NewMux(nil, r, nil)

	if rec := get(t, mux, http.MethodGet, "/reload"); rec.Code != http.StatusMethodNotAllowed {
		t.Fatalf("GET /reload = %d, want 405", rec.Code)
	}

	rec := get(t, mux, http.MethodPost, "/reload")
	var resp ReloadResponse
	if err := json.NewDecoder(rec.Body).Decode(&resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if rec.Code != http.StatusOK || resp.Status != "ok" || !resp.Changed || r.calls != 1 {
		t.Fatalf("POST /reload = %d %+v (calls %d)", rec.Code, resp, r.calls)
	}

	r.err = errors.New("tariff file missing")
	rec = get(t, mux, http.MethodPost, "/reload")
	resp = ReloadResponse{}
	if err := json.NewDecoder(rec.Body).Decode(&resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if rec.Code != http.StatusInternalServerError || resp.Status != "error" || resp.Error != "tariff file missing" {
		t.Fatalf("failed reload = %d %+v", rec.Code, resp)
	}
}
