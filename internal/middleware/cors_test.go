package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
)

func corsRecorder(cfg CORSConfig, method, origin string) *httptest.ResponseRecorder {
	h := CORS(cfg)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	req := httptest.NewRequest(method, "/portal/environments/DEFAULT/apis", nil)
	if origin != "" {
		req.Header.Set("Origin", origin)
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func portalCORS(origins ...string) CORSConfig {
	cfg := DefaultCORSConfig()
	cfg.AllowedOrigins = origins
	return cfg
}

func TestCORS_Origins(t *testing.T) {
	tests := []struct {
		name       string
		origins    []string
		method     string
		origin     string
		wantStatus int
		wantAllow  string
	}{
		{"nothing configured", nil, http.MethodGet, "https://portal.example.com", http.StatusOK, ""},
		{"exact match", []string{"https://portal.example.com"}, http.MethodGet, "https://portal.example.com", http.StatusOK, "https://portal.example.com"},
		{"match ignores case", []string{"HTTPS://Portal.Example.com"}, http.MethodGet, "https://portal.example.com", http.StatusOK, "https://portal.example.com"},
		{"same-origin request", []string{"https://portal.example.com"}, http.MethodGet, "", http.StatusOK, ""},
		{"preflight allowed", []string{"https://portal.example.com"}, http.MethodOptions, "https://portal.example.com", http.StatusNoContent, "https://portal.example.com"},
		{"preflight rejected", []string{"https://portal.example.com"}, http.MethodOptions, "https://attacker.test", http.StatusForbidden, ""},
		{"simple request from unknown origin", []string{"https://portal.example.com"}, http.MethodGet, "https://attacker.test", http.StatusOK, ""},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			rec := corsRecorder(portalCORS(tt.origins...), tt.method, tt.origin)

			assert.Equal(t, tt.wantStatus, rec.Code)
			assert.Equal(t, tt.wantAllow, rec.Header().Get("Access-Control-Allow-Origin"))
		})
	}
}

func TestCORS_PreflightAdvertisesPolicy(t *testing.T) {
	rec := corsRecorder(portalCORS("https://console.example.com"), http.MethodOptions, "https://console.example.com")

	h := rec.Header()
	assert.Contains(t, h.Get("Access-Control-Allow-Methods"), "PATCH")
	assert.Contains(t, h.Get("Access-Control-Allow-Headers"), "If-None-Match")
	assert.Contains(t, h.Get("Access-Control-Allow-Headers"), TokenHeader)
	assert.Equal(t, "86400", h.Get("Access-Control-Max-Age"))
	assert.Contains(t, h.Values("Vary"), "Origin")
}

func TestCORS_ExposesPortalHeaders(t *testing.T) {
	cfg := portalCORS("https://console.example.com")
	cfg.AllowCredentials = true
	rec := corsRecorder(cfg, http.MethodGet, "https://console.example.com")

	exposed := rec.Header().Get("Access-Control-Expose-Headers")
	assert.Contains(t, exposed, "ETag")
	assert.Contains(t, exposed, RequestIDHeader)
	assert.Equal(t, "true", rec.Header().Get("Access-Control-Allow-Credentials"))
	assert.Empty(t, rec.Header().Get("Access-Control-Allow-Methods"))
}

func TestCORS_WildcardSubdomain(t *testing.T) {
	cfg := portalCORS("*.apim.example.com")

	for origin, want := range map[string]bool{
		"https://portal.apim.example.com":    true,
		"https://eu.portal.apim.example.com": true,
		"https://apim.example.com":           false,
		"https://evilapim.example.com":       false,
	} {
		rec := corsRecorder(cfg, http.MethodGet, origin)
		got := rec.Header().Get("Access-Control-Allow-Origin") != ""
		assert.Equal(t, want, got, origin)
	}
}
