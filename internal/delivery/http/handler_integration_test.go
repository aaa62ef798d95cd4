package http

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/truecost/backend/config"
	"github.com/truecost/backend/internal/domain"
	"github.com/truecost/backend/internal/observability"
	"github.com/truecost/backend/internal/usecase"
)

// TestMain sets up test environment before running tests
func TestMain(m *testing.M) {
	// Set Gin to test mode once for all tests
	gin.SetMode(gin.TestMode)
	os.Exit(m.Run())
}

// fakeRetriever records the last request and answers with a canned result or error
type fakeRetriever struct {
	last   usecase.RetrieveRequest
	result *usecase.RetrieveResult
	err    error
}

func (f *fakeRetriever) Retrieve(ctx context.Context, req usecase.RetrieveRequest, progress usecase.ProgressFunc) (*usecase.RetrieveResult, error) {
	f.last = req
	return f.result, f.err
}

func testConfig() *config.Config {
	return &config.Config{
		Server: config.ServerConfig{
			Port:           "8080",
			Environment:    "test",
			AllowedOrigins: []string{"chrome-extension://*", "http://localhost:3000"},
		},
		Cache: config.CacheConfig{Type: "memory"},
	}
}

// setupTestRouter creates a test router around retriever (which may be nil)
func setupTestRouter(retriever CatalogRetriever) *gin.Engine {
	handler := NewHandler(retriever, usecase.DefaultSortEngineConfig(), observability.Nop())
	return SetupRouter(testConfig(), handler, observability.Nop())
}

func postJSON(router *gin.Engine, path, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodPost, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	return w
}

func decodeBody(t *testing.T, w *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var response map[string]any
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &response), w.Body.String())
	return response
}

func TestHealthCheckEndpoint(t *testing.T) {
	t.Run("returns healthy status", func(t *testing.T) {
		router := setupTestRouter(nil)

		req := httptest.NewRequest(http.MethodGet, "/health", nil)
		w := httptest.NewRecorder()
		router.ServeHTTP(w, req)

		assert.Equal(t, http.StatusOK, w.Code)
		response := decodeBody(t, w)
		assert.Equal(t, "healthy", response["status"])
		assert.Equal(t, "truecost-backend", response["service"])
		assert.NotEmpty(t, response["version"])
	})

	t.Run("accepts GET requests only", func(t *testing.T) {
		router := setupTestRouter(nil)

		for _, method := range []string{"POST", "PUT", "DELETE", "PATCH"} {
			req := httptest.NewRequest(method, "/health", nil)
			w := httptest.NewRecorder()
			router.ServeHTTP(w, req)

			if w.Code != http.StatusNotFound {
				t.Errorf("Method %s: Status = %d, want %d", method, w.Code, http.StatusNotFound)
			}
		}
	})
}

func TestRetrieveCatalogEndpoint(t *testing.T) {
	t.Run("returns service unavailable without retrieval service", func(t *testing.T) {
		router := setupTestRouter(nil)

		w := postJSON(router, "/api/v1/catalog/retrieve", `{"pageUrl":"https://shop.example/almacen/_/N-1"}`)

		assert.Equal(t, http.StatusServiceUnavailable, w.Code)
		assert.Contains(t, decodeBody(t, w)["error"], "not configured")
	})

	t.Run("passes page url, timeline and category to the service", func(t *testing.T) {
		fake := &fakeRetriever{result: &usecase.RetrieveResult{
			Dialect:  domain.DialectA,
			Total:    1,
			Products: []*domain.Product{domain.NewProduct(domain.ProductFields{Name: "Yerba 1kg", DisplayedPrice: 1000})},
		}}
		router := setupTestRouter(fake)

		body := `{
			"pageUrl": "https://shop.example/almacen/_/N-1",
			"category": "weight",
			"timeline": [
				{"url": "https://shop.example/almacen/_/N-1?format=json", "startedAt": "2026-01-02T10:00:00Z", "initiator": "fetch"}
			]
		}`
		w := postJSON(router, "/api/v1/catalog/retrieve", body)

		require.Equal(t, http.StatusOK, w.Code, w.Body.String())
		assert.Equal(t, "https://shop.example/almacen/_/N-1", fake.last.PageURL)
		assert.Equal(t, domain.CategoryWeight, fake.last.Category)

		entries, err := fake.last.Timeline.Entries(context.Background())
		require.NoError(t, err)
		require.Len(t, entries, 1)
		assert.Equal(t, "fetch", entries[0].Initiator)

		response := decodeBody(t, w)
		assert.Equal(t, "dialect-a", response["dialect"])
		assert.Len(t, response["products"], 1)
	})

	t.Run("rejects missing page url", func(t *testing.T) {
		router := setupTestRouter(&fakeRetriever{})

		w := postJSON(router, "/api/v1/catalog/retrieve", `{"timeline":[]}`)
		assert.Equal(t, http.StatusBadRequest, w.Code)
	})

	t.Run("rejects unknown category", func(t *testing.T) {
		router := setupTestRouter(&fakeRetriever{})

		w := postJSON(router, "/api/v1/catalog/retrieve", `{"pageUrl":"https://shop.example/x","category":"furlongs"}`)
		assert.Equal(t, http.StatusBadRequest, w.Code)
	})

	errorCases := []struct {
		name string
		err  error
		want int
	}{
		{"invalid request", fmt.Errorf("%w: page url must be absolute", domain.ErrInvalidRequest), http.StatusBadRequest},
		{"no endpoint", fmt.Errorf("%w: nothing observed", domain.ErrNoEndpoint), http.StatusNotFound},
		{"network", domain.NetworkError(domain.DialectB, "https://x", 503, nil), http.StatusBadGateway},
		{"structural", domain.StructuralError(domain.DialectB, "https://x", fmt.Errorf("bad shape")), http.StatusBadGateway},
		{"unexpected", fmt.Errorf("boom"), http.StatusInternalServerError},
	}
	for _, tc := range errorCases {
		t.Run("maps "+tc.name+" error", func(t *testing.T) {
			router := setupTestRouter(&fakeRetriever{err: tc.err})

			w := postJSON(router, "/api/v1/catalog/retrieve", `{"pageUrl":"https://shop.example/almacen/_/N-1"}`)
			assert.Equal(t, tc.want, w.Code)
		})
	}
}

func TestSortEntriesEndpoint(t *testing.T) {
	entry := func(id, name, unitPrice string) string {
		markup := fmt.Sprintf(`<li class="product-card" data-product-id="%s"><h3>%s</h3><p>Precio x 1 kg: $%s</p><h2>$1.000</h2></li>`,
			id, name, unitPrice)
		b, _ := json.Marshal(markup)
		return fmt.Sprintf(`{"id":%q,"markup":%s}`, id, b)
	}

	t.Run("orders entries by unit price", func(t *testing.T) {
		router := setupTestRouter(nil)

		body := fmt.Sprintf(`{"category":"weight","entries":[%s,%s,%s]}`,
			entry("a", "Arroz", "3.000"),
			entry("b", "Azúcar", "1.200"),
			entry("c", "Harina", "900"),
		)
		w := postJSON(router, "/api/v1/catalog/sort", body)

		require.Equal(t, http.StatusOK, w.Code, w.Body.String())
		response := decodeBody(t, w)
		assert.Equal(t, "weight", response["category"])
		assert.Equal(t, []any{"c", "b", "a"}, response["order"])
		assert.Len(t, response["products"], 3)
	})

	t.Run("rejects none category", func(t *testing.T) {
		router := setupTestRouter(nil)

		w := postJSON(router, "/api/v1/catalog/sort", fmt.Sprintf(`{"category":"none","entries":[%s]}`, entry("a", "Arroz", "1")))
		assert.Equal(t, http.StatusBadRequest, w.Code)
	})

	t.Run("rejects malformed body", func(t *testing.T) {
		router := setupTestRouter(nil)

		w := postJSON(router, "/api/v1/catalog/sort", `{"category":`)
		assert.Equal(t, http.StatusBadRequest, w.Code)
	})

	t.Run("rejects entries without id", func(t *testing.T) {
		router := setupTestRouter(nil)

		body := `{"category":"weight","entries":[{"markup":"<li><h2>$1</h2></li>"},{"markup":"<li><h2>$2</h2></li>"}]}`
		w := postJSON(router, "/api/v1/catalog/sort", body)

		assert.Equal(t, http.StatusBadRequest, w.Code, w.Body.String())
		assert.Contains(t, decodeBody(t, w)["error"], "entry 0 has no id")
	})

	t.Run("rejects repeated ids", func(t *testing.T) {
		router := setupTestRouter(nil)

		body := fmt.Sprintf(`{"category":"weight","entries":[%s,%s]}`,
			entry("x", "Arroz", "3.000"),
			entry("x", "Azúcar", "1.200"),
		)
		w := postJSON(router, "/api/v1/catalog/sort", body)

		assert.Equal(t, http.StatusBadRequest, w.Code, w.Body.String())
		assert.Contains(t, decodeBody(t, w)["error"], `share id "x"`)
	})
}

func TestParsePricesEndpoint(t *testing.T) {
	router := setupTestRouter(nil)

	w := postJSON(router, "/api/v1/prices/parse", `{"texts":["$ 1.348,47","gratis"]}`)

	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	var response struct {
		Results []ParsedPrice `json:"results"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &response))
	require.Len(t, response.Results, 2)

	require.NotNil(t, response.Results[0].Value)
	assert.InDelta(t, 1348.47, *response.Results[0].Value, 1e-9)
	assert.Equal(t, "$1.348,47", response.Results[0].Formatted)

	assert.Nil(t, response.Results[1].Value)
	assert.Equal(t, "-", response.Results[1].Formatted)
}

func TestClassifyUnitEndpoint(t *testing.T) {
	router := setupTestRouter(nil)

	tests := []struct {
		name string
		body string
		want string
	}{
		{"label", `{"label":"Kilogramo"}`, "weight"},
		{"grams per hundred", `{"label":"gramos","quantity":"100"}`, "per100g"},
		{"raw format", `{"format":"1.5 Litros"}`, "volume"},
		{"unknown", `{"label":"docena"}`, "none"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := postJSON(router, "/api/v1/units/classify", tt.body)
			require.Equal(t, http.StatusOK, w.Code, w.Body.String())
			assert.Equal(t, tt.want, decodeBody(t, w)["category"])
		})
	}

	t.Run("requires a label", func(t *testing.T) {
		w := postJSON(router, "/api/v1/units/classify", `{}`)
		assert.Equal(t, http.StatusBadRequest, w.Code)
	})
}

// TestCORSIntegration tests CORS headers work end-to-end with full router
func TestCORSIntegration(t *testing.T) {
	t.Run("health endpoint has CORS for browser extension", func(t *testing.T) {
		router := setupTestRouter(nil)

		req := httptest.NewRequest(http.MethodGet, "/health", nil)
		req.Header.Set("Origin", "chrome-extension://abcdefghijklmnop")
		w := httptest.NewRecorder()
		router.ServeHTTP(w, req)

		assert.Equal(t, http.StatusOK, w.Code)
		assert.Equal(t, "chrome-extension://abcdefghijklmnop", w.Header().Get("Access-Control-Allow-Origin"))
		assert.Equal(t, "true", w.Header().Get("Access-Control-Allow-Credentials"))
	})

	t.Run("catalog endpoint has CORS for localhost", func(t *testing.T) {
		router := setupTestRouter(nil)

		req := httptest.NewRequest(http.MethodPost, "/api/v1/prices/parse", strings.NewReader(`{"texts":[]}`))
		req.Header.Set("Origin", "http://localhost:3000")
		req.Header.Set("Content-Type", "application/json")
		w := httptest.NewRecorder()
		router.ServeHTTP(w, req)

		assert.Equal(t, "http://localhost:3000", w.Header().Get("Access-Control-Allow-Origin"))
	})
}

// TestRecoveryMiddleware tests panic recovery
func TestRecoveryMiddleware(t *testing.T) {
	router := setupTestRouter(nil)
	router.GET("/panic", func(c *gin.Context) {
		panic("test panic")
	})

	req := httptest.NewRequest(http.MethodGet, "/panic", nil)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	// Gin's default recovery returns 500
	assert.Equal(t, http.StatusInternalServerError, w.Code)
}

// TestAPIVersioning tests that API v1 routes are correctly versioned
func TestAPIVersioning(t *testing.T) {
	router := setupTestRouter(nil)

	for _, path := range []string{
		"/api/catalog/retrieve",
		"/catalog/retrieve",
		"/api/v2/catalog/retrieve",
		"/api/v1/catalog",
	} {
		req := httptest.NewRequest(http.MethodPost, path, nil)
		w := httptest.NewRecorder()
		router.ServeHTTP(w, req)

		if w.Code != http.StatusNotFound {
			t.Errorf("Path %s: Status = %d, want %d", path, w.Code, http.StatusNotFound)
		}
	}
}
