package routes

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/FLAMiNGPHYtON1/outlet-locator/app"
	"github.com/FLAMiNGPHYtON1/outlet-locator/config"
)

func newTestRouter(t *testing.T, mutate func(cfg *config.Config)) (http.Handler, *app.Dependencies) {
	t.Helper()

	cfg := &config.Config{
		Environment:    "development",
		StorageBackend: config.StorageMemory,
	}
	cfg.Server.RequestTimeout = 5 * time.Second
	cfg.Server.ShutdownTimeout = time.Second
	cfg.Redis.CacheTTL = time.Hour
	cfg.Providers.OpenAI = config.OpenAIConfig{
		BaseURL:             "http://127.0.0.1:1",
		Timeout:             time.Second,
		ChatModel:           "gpt-4o-mini",
		EmbeddingModel:      "text-embedding-3-small",
		EmbeddingDimensions: 512,
	}
	cfg.Retrieval.TopK = 5
	cfg.Auth.JWTIssuer = "outlet-locator"
	if mutate != nil {
		mutate(cfg)
	}

	deps, err := app.NewDependencies(context.Background(), cfg, zap.NewNop())
	require.NoError(t, err)
	t.Cleanup(func() { _ = deps.Close(context.Background()) })

	return SetupRoutes(deps), deps
}

func serve(router http.Handler, method, path, body string, header http.Header) *httptest.ResponseRecorder {
	var req *http.Request
	if body == "" {
		req = httptest.NewRequest(method, path, nil)
	} else {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	}
	for k, v := range header {
		req.Header[k] = v
	}
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	return rec
}

func TestSetupRoutes_Public(t *testing.T) {
	router, _ := newTestRouter(t, nil)

	tests := []struct {
		name   string
		method string
		path   string
		body   string
		status int
	}{
		{"banner", http.MethodGet, "/", "", http.StatusOK},
		{"liveness", http.MethodGet, "/healthz", "", http.StatusOK},
		{"readiness without database", http.MethodGet, "/readyz", "", http.StatusOK},
		{"list outlets", http.MethodGet, "/api/v1/outlets", "", http.StatusOK},
		{"list outlets bad page", http.MethodGet, "/api/v1/outlets?page=zero", "", http.StatusBadRequest},
		{"outlet stats", http.MethodGet, "/api/v1/outlets/stats", "", http.StatusOK},
		{"get outlet bad id", http.MethodGet, "/api/v1/outlets/not-a-uuid", "", http.StatusBadRequest},
		{"get outlet unknown id", http.MethodGet, "/api/v1/outlets/" + uuid.NewString(), "", http.StatusNotFound},
		{"search terms", http.MethodGet, "/api/v1/outlets/search-terms", "", http.StatusOK},
		{"search blank query", http.MethodPost, "/api/v1/search", `{"query":"   "}`, http.StatusBadRequest},
		{"rescrape stats", http.MethodGet, "/api/v1/scrape/jobs/stats", "", http.StatusOK},
		{"unknown rescrape job", http.MethodGet, "/api/v1/scrape/jobs/" + uuid.NewString(), "", http.StatusNotFound},
		{"unknown route", http.MethodGet, "/api/v1/nope", "", http.StatusNotFound},
		{"wrong method", http.MethodPut, "/api/v1/outlets", "", http.StatusMethodNotAllowed},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := serve(router, tt.method, tt.path, tt.body, nil)
			assert.Equal(t, tt.status, rec.Code, rec.Body.String())
			assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))
		})
	}
}

func TestSetupRoutes_Banner(t *testing.T) {
	router, _ := newTestRouter(t, nil)

	rec := serve(router, http.MethodGet, "/", "", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var body struct {
		Data struct {
			Service     string `json:"service"`
			Environment string `json:"environment"`
			Endpoints   []struct {
				Path  string `json:"path"`
				Admin bool   `json:"admin"`
			} `json:"endpoints"`
		} `json:"data"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, ServiceName, body.Data.Service)
	assert.Equal(t, "development", body.Data.Environment)
	assert.Len(t, body.Data.Endpoints, len(endpoints))
}

func TestSetupRoutes_AdminOpenInDevelopment(t *testing.T) {
	router, _ := newTestRouter(t, nil)

	rec := serve(router, http.MethodDelete, "/api/v1/outlets", "", nil)
	assert.Equal(t, http.StatusOK, rec.Code)

	// the queue was never started
	rec = serve(router, http.MethodPost, "/api/v1/scrape/rescrape-all", "", nil)
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

func TestSetupRoutes_AdminUnconfiguredInProduction(t *testing.T) {
	router, _ := newTestRouter(t, func(cfg *config.Config) {
		cfg.Environment = "production"
	})

	rec := serve(router, http.MethodDelete, "/api/v1/outlets", "", nil)
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)

	rec = serve(router, http.MethodGet, "/api/v1/outlets", "", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestSetupRoutes_AdminToken(t *testing.T) {
	router, deps := newTestRouter(t, func(cfg *config.Config) {
		cfg.Auth.JWTSecret = "0123456789abcdef0123456789abcdef"
	})
	require.NotNil(t, deps.TokenService)

	rec := serve(router, http.MethodDelete, "/api/v1/outlets", "", nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	viewer, err := deps.TokenService.IssueToken("viewer", "viewer", time.Hour)
	require.NoError(t, err)
	rec = serve(router, http.MethodDelete, "/api/v1/outlets", "", http.Header{"Authorization": {"Bearer " + viewer}})
	assert.Equal(t, http.StatusForbidden, rec.Code)

	admin, err := deps.TokenService.IssueToken("ops", "admin", time.Hour)
	require.NoError(t, err)
	rec = serve(router, http.MethodDelete, "/api/v1/outlets", "", http.Header{"Authorization": {"Bearer " + admin}})
	assert.Equal(t, http.StatusOK, rec.Code)
}
