package scraper

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gorilla/mux"
	"github.com/sneakly/catalog/pkg/staging"
)

func newTestServer(s *Scheduler) *httptest.Server {
	router := mux.NewRouter()
	NewHandler(s).Register(router)
	return httptest.NewServer(router)
}

func post(t *testing.T, url, actor, body string) *http.Response {
	t.Helper()
	req, err := http.NewRequest(http.MethodPost, url, strings.NewReader(body))
	if err != nil {
		t.Fatalf("failed to build request: %v", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if actor != "" {
		req.Header.Set("X-Actor", actor)
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("request failed: %v", err)
	}
	t.Cleanup(func() { resp.Body.Close() })
	return resp
}

func TestStartRunEndpoint(t *testing.T) {
	store := newMemRunStore()
	adapter := &fakeAdapter{domain: "fnac.com", records: records("fnac.com", 1)}
	s := newTestScheduler(store, adapter, &stubResolver{outcome: staging.OutcomeStagedNew}, &stubCatalog{}, stubRobots{}, &stubAudit{})
	server := newTestServer(s)
	defer server.Close()

	resp := post(t, server.URL+"/runs", "ops@sneakly", `{"source_domain":"fnac.com"}`)
	if resp.StatusCode != http.StatusAccepted {
		t.Fatalf("expected 202, got %d", resp.StatusCode)
	}
}

func TestStartRunEndpointMissingActor(t *testing.T) {
	store := newMemRunStore()
	adapter := &fakeAdapter{domain: "fnac.com"}
	s := newTestScheduler(store, adapter, &stubResolver{}, &stubCatalog{}, stubRobots{}, &stubAudit{})
	server := newTestServer(s)
	defer server.Close()

	resp := post(t, server.URL+"/runs", "", `{"source_domain":"fnac.com"}`)
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("expected 400 without actor, got %d", resp.StatusCode)
	}
}

func TestStartRunEndpointConflict(t *testing.T) {
	store := newMemRunStore()
	adapter := &fakeAdapter{domain: "fnac.com", block: make(chan struct{})}
	s := newTestScheduler(store, adapter, &stubResolver{outcome: staging.OutcomeStagedNew}, &stubCatalog{}, stubRobots{}, &stubAudit{})
	server := newTestServer(s)
	defer server.Close()

	first := post(t, server.URL+"/runs", "ops@sneakly", `{"source_domain":"fnac.com"}`)
	if first.StatusCode != http.StatusAccepted {
		t.Fatalf("expected 202, got %d", first.StatusCode)
	}

	second := post(t, server.URL+"/runs", "ops@sneakly", `{"source_domain":"fnac.com"}`)
	if second.StatusCode != http.StatusConflict {
		t.Fatalf("expected 409 for duplicate run, got %d", second.StatusCode)
	}

	close(adapter.block)
}

func TestStartRunEndpointUnknownSource(t *testing.T) {
	store := newMemRunStore()
	adapter := &fakeAdapter{domain: "fnac.com"}
	s := newTestScheduler(store, adapter, &stubResolver{}, &stubCatalog{}, stubRobots{}, &stubAudit{})
	server := newTestServer(s)
	defer server.Close()

	resp := post(t, server.URL+"/runs", "ops@sneakly", `{"source_domain":"zalando.fr"}`)
	if resp.StatusCode != http.StatusNotFound {
		t.Fatalf("expected 404 for unknown source, got %d", resp.StatusCode)
	}
}

func TestGetRunEndpointNotFound(t *testing.T) {
	store := newMemRunStore()
	adapter := &fakeAdapter{domain: "fnac.com"}
	s := newTestScheduler(store, adapter, &stubResolver{}, &stubCatalog{}, stubRobots{}, &stubAudit{})
	server := newTestServer(s)
	defer server.Close()

	resp, err := http.Get(server.URL + "/runs/does-not-exist")
	if err != nil {
		t.Fatalf("request failed: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", resp.StatusCode)
	}
}

func TestRefreshEndpointValidation(t *testing.T) {
	store := newMemRunStore()
	adapter := &fakeAdapter{domain: "fnac.com"}
	s := newTestScheduler(store, adapter, &stubResolver{}, &stubCatalog{}, stubRobots{}, &stubAudit{})
	server := newTestServer(s)
	defer server.Close()

	resp := post(t, server.URL+"/refresh", "ops@sneakly", `{"source_domain":"fnac.com","product_ids":[],"fields":"price"}`)
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("expected 400 for empty ids, got %d", resp.StatusCode)
	}
}
