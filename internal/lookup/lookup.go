// Package lookup resolves a Discord OAuth2 client_id to a human-readable
// application name via Discord's public web API, behind a process-wide,
// insert-only cache.
package lookup

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"sync"
	"time"

	"github.com/hashicorp/go-retryablehttp"
)

// apiBaseURL is the Discord API root. Overridden by tests to point at an
// httptest.Server instead of discord.com.
var apiBaseURL = "https://discord.com/api/v9"

// ///////////////////////////////////////////////
// HTTP Client
// ///////////////////////////////////////////////

var (
	httpClient     *retryablehttp.Client
	httpClientOnce sync.Once
)

// getHTTPClient returns the shared retryable HTTP client, initializing it on
// first call.
func getHTTPClient() *retryablehttp.Client {
	httpClientOnce.Do(func() {
		httpClient = retryablehttp.NewClient()
		httpClient.RetryMax = 2
		httpClient.HTTPClient.Timeout = 5 * time.Second
		httpClient.Logger = nil // suppress retryablehttp's default logging
	})
	return httpClient
}

// ///////////////////////////////////////////////
// Cache
// ///////////////////////////////////////////////

// Application holds metadata resolved for a client_id.
type Application struct {
	Name string
}

// cacheMu guards cache. Multiple readers, single writer: lookups race to
// populate an entry, and the last writer wins, since entries for the same
// client_id are equivalent values.
var (
	cacheMu sync.RWMutex
	cache   = map[string]Application{}
)

func cached(clientID string) (Application, bool) {
	cacheMu.RLock()
	defer cacheMu.RUnlock()
	app, ok := cache[clientID]
	return app, ok
}

func store(clientID string, app Application) {
	cacheMu.Lock()
	cache[clientID] = app
	cacheMu.Unlock()
}

// ///////////////////////////////////////////////
// Public API
// ///////////////////////////////////////////////

// Lookup resolves clientID to an Application, consulting the cache first.
// On cache miss it issues a GET against Discord's public RPC application
// endpoint. Failures (network, HTTP status, decode) are returned and never
// cached, so a transient failure doesn't poison future lookups.
func Lookup(ctx context.Context, clientID string) (Application, error) {
	if app, ok := cached(clientID); ok {
		return app, nil
	}

	app, err := fetch(ctx, clientID)
	if err != nil {
		return Application{}, err
	}

	store(clientID, app)
	return app, nil
}

// fetch performs the uncached HTTPS round trip.
func fetch(ctx context.Context, clientID string) (Application, error) {
	url := fmt.Sprintf("%s/oauth2/applications/%s/rpc", apiBaseURL, clientID)

	req, err := retryablehttp.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return Application{}, fmt.Errorf("building request: %w", err)
	}

	resp, err := getHTTPClient().Do(req)
	if err != nil {
		return Application{}, fmt.Errorf("GET %s: %w", url, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return Application{}, fmt.Errorf("GET %s: status %d", url, resp.StatusCode)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, 64<<10))
	if err != nil {
		return Application{}, fmt.Errorf("reading response: %w", err)
	}

	var parsed struct {
		Name string `json:"name"`
	}
	if err := json.Unmarshal(body, &parsed); err != nil {
		return Application{}, fmt.Errorf("parsing response: %w", err)
	}
	if parsed.Name == "" {
		return Application{}, fmt.Errorf("response for %s has no name field", clientID)
	}

	return Application{Name: parsed.Name}, nil
}
