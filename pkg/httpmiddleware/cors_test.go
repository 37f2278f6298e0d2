package httpmiddleware

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestCORS(t *testing.T) {
	restricted := CORSConfig{
		Origins: []string{"https://shop.example.com"},
		Headers: []string{"Authorization", "Content-Type"},
		Expose:  []string{HeaderRequestID},
		MaxAge:  600,
	}

	tests := []struct {
		name       string
		cfg        CORSConfig
		method     string
		origin     string
		preflight  bool
		wantStatus int
		wantOrigin string
		wantCreds  string
		wantNext   bool
	}{
		{name: "no origin", cfg: restricted, method: http.MethodGet, wantStatus: http.StatusOK, wantNext: true},
		{name: "allowed origin", cfg: restricted, method: http.MethodGet, origin: "https://SHOP.example.com", wantStatus: http.StatusOK, wantOrigin: "https://SHOP.example.com", wantCreds: "true", wantNext: true},
		{name: "foreign origin", cfg: restricted, method: http.MethodGet, origin: "https://evil.example.com", wantStatus: http.StatusOK, wantNext: true},
		{name: "allowed preflight", cfg: restricted, method: http.MethodOptions, origin: "https://shop.example.com", preflight: true, wantStatus: http.StatusNoContent, wantOrigin: "https://shop.example.com", wantCreds: "true"},
		{name: "foreign preflight", cfg: restricted, method: http.MethodOptions, origin: "https://evil.example.com", preflight: true, wantStatus: http.StatusNoContent},
		{name: "wildcard", cfg: CORSConfig{Origins: []string{"*"}}, method: http.MethodPost, origin: "https://any.example.com", wantStatus: http.StatusOK, wantOrigin: "*", wantNext: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			called := false
			h := CORS(tt.cfg)(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
				called = true
				w.WriteHeader(http.StatusOK)
			}))
			req := httptest.NewRequest(tt.method, "/api/checkout", nil)
			if tt.origin != "" {
				req.Header.Set("Origin", tt.origin)
			}
			if tt.preflight {
				req.Header.Set("Access-Control-Request-Method", http.MethodPost)
			}
			w := httptest.NewRecorder()
			h.ServeHTTP(w, req)

			assert.Equal(t, tt.wantStatus, w.Code)
			assert.Equal(t, tt.wantNext, called)
			assert.Equal(t, tt.wantOrigin, w.Header().Get("Access-Control-Allow-Origin"))
			assert.Equal(t, tt.wantCreds, w.Header().Get("Access-Control-Allow-Credentials"))
			if tt.preflight && tt.wantOrigin != "" {
				assert.Equal(t, "Authorization, Content-Type", w.Header().Get("Access-Control-Allow-Headers"))
				assert.Equal(t, "600", w.Header().Get("Access-Control-Max-Age"))
			}
		})
	}
}
