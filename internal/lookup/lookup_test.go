// Tests for [Lookup] covering cache hits, HTTP success/failure, and the
// insert-only, never-cache-failures contract.
package lookup

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
)

// withTestServer points apiBaseURL at srv for the duration of the test.
func withTestServer(t *testing.T, handler http.HandlerFunc) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	orig := apiBaseURL
	apiBaseURL = srv.URL
	t.Cleanup(func() { apiBaseURL = orig })

	return srv
}

// resetCache clears the package-level cache so tests don't see each other's
// entries.
func resetCache(t *testing.T) {
	t.Helper()
	cacheMu.Lock()
	cache = map[string]Application{}
	cacheMu.Unlock()
}

func TestLookup_Success(t *testing.T) {
	resetCache(t)
	withTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/oauth2/applications/123456/rpc" {
			t.Errorf("unexpected path: %s", r.URL.Path)
		}
		_ = json.NewEncoder(w).Encode(map[string]string{"name": "Test App"})
	})

	app, err := Lookup(t.Context(), "123456")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if app.Name != "Test App" {
		t.Fatalf("Name = %q, want %q", app.Name, "Test App")
	}
}

func TestLookup_CacheHit(t *testing.T) {
	resetCache(t)
	var calls atomic.Int32
	withTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		_ = json.NewEncoder(w).Encode(map[string]string{"name": "Cached App"})
	})

	for range 3 {
		app, err := Lookup(t.Context(), "999")
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if app.Name != "Cached App" {
			t.Fatalf("Name = %q", app.Name)
		}
	}

	if calls.Load() != 1 {
		t.Fatalf("expected exactly 1 HTTP call, got %d", calls.Load())
	}
}

func TestLookup_HTTPError(t *testing.T) {
	resetCache(t)
	withTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	})

	if _, err := Lookup(t.Context(), "missing"); err == nil {
		t.Fatal("expected error for 404 response")
	}
}

func TestLookup_MissingNameField(t *testing.T) {
	resetCache(t)
	withTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(map[string]string{"description": "no name here"})
	})

	if _, err := Lookup(t.Context(), "noname"); err == nil {
		t.Fatal("expected error when name field is missing")
	}
}

func TestLookup_FailureNotCached(t *testing.T) {
	resetCache(t)
	var fail atomic.Bool
	fail.Store(true)

	withTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		if fail.Load() {
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
		_ = json.NewEncoder(w).Encode(map[string]string{"name": "Recovered App"})
	})

	if _, err := Lookup(t.Context(), "flaky"); err == nil {
		t.Fatal("expected first lookup to fail")
	}

	fail.Store(false)
	app, err := Lookup(t.Context(), "flaky")
	if err != nil {
		t.Fatalf("expected second lookup to succeed, got error: %v", err)
	}
	if app.Name != "Recovered App" {
		t.Fatalf("Name = %q, want %q", app.Name, "Recovered App")
	}
}
