package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/EmmanuelGava/SincroGoo-sub006/internal/config"
	"github.com/EmmanuelGava/SincroGoo-sub006/internal/core"
)

// ownerEcho writes the owner resolved by APIKeyAuth.
var ownerEcho = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
	w.Write([]byte(core.OwnerFromContext(r.Context())))
})

func TestAPIKeyAuth(t *testing.T) {
	cfg := &config.SecurityConfig{
		RequireAPIKey: true,
		APIKeys:       []string{"alice:k1", "bob:k2"},
	}
	h := APIKeyAuth(cfg)(ownerEcho)

	tests := []struct {
		name       string
		key        string
		wantStatus int
		wantOwner  string
	}{
		{"first key", "k1", http.StatusOK, "alice"},
		{"second key", "k2", http.StatusOK, "bob"},
		{"missing key", "", http.StatusUnauthorized, ""},
		{"unknown key", "k3", http.StatusUnauthorized, ""},
		{"owner is not a key", "alice", http.StatusUnauthorized, ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/api/jobs/1", nil)
			if tt.key != "" {
				req.Header.Set("X-API-Key", tt.key)
			}
			rec := httptest.NewRecorder()
			h.ServeHTTP(rec, req)

			if rec.Code != tt.wantStatus {
				t.Errorf("status = %d, want %d", rec.Code, tt.wantStatus)
			}
			if tt.wantStatus == http.StatusOK && rec.Body.String() != tt.wantOwner {
				t.Errorf("owner = %q, want %q", rec.Body.String(), tt.wantOwner)
			}
		})
	}
}

func TestAPIKeyAuth_DisabledUsesDefaultOwner(t *testing.T) {
	cfg := &config.SecurityConfig{RequireAPIKey: false, DefaultOwner: "local"}
	rec := httptest.NewRecorder()
	APIKeyAuth(cfg)(ownerEcho).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))

	if rec.Code != http.StatusOK || rec.Body.String() != "local" {
		t.Errorf("got %d %q, want 200 \"local\"", rec.Code, rec.Body.String())
	}
}

func TestTrustedRealIP(t *testing.T) {
	tests := []struct {
		name    string
		trusted []string
		remote  string
		realIP  string
		xff     string
		want    string
	}{
		{"untrusted proxy keeps remote", []string{"10.0.0.0/8"}, "203.0.113.7:4000", "1.2.3.4", "", "203.0.113.7:4000"},
		{"trusted proxy uses X-Real-IP", []string{"10.0.0.0/8"}, "10.1.2.3:4000", "1.2.3.4", "", "1.2.3.4"},
		{"trusted proxy uses first XFF hop", []string{"10.0.0.0/8"}, "10.1.2.3:4000", "", "5.6.7.8, 10.1.2.3", "5.6.7.8"},
		{"bare IP entry", []string{"127.0.0.1"}, "127.0.0.1:80", "9.9.9.9", "", "9.9.9.9"},
		{"invalid header ignored", []string{"10.0.0.0/8"}, "10.1.2.3:4000", "not-an-ip", "", "10.1.2.3:4000"},
		{"no trusted proxies", nil, "10.1.2.3:4000", "1.2.3.4", "", "10.1.2.3:4000"},
		{"invalid CIDR skipped", []string{"bogus"}, "10.1.2.3:4000", "1.2.3.4", "", "10.1.2.3:4000"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var got string
			h := TrustedRealIP(tt.trusted)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				got = r.RemoteAddr
			}))

			req := httptest.NewRequest(http.MethodGet, "/", nil)
			req.RemoteAddr = tt.remote
			if tt.realIP != "" {
				req.Header.Set("X-Real-IP", tt.realIP)
			}
			if tt.xff != "" {
				req.Header.Set("X-Forwarded-For", tt.xff)
			}
			h.ServeHTTP(httptest.NewRecorder(), req)

			if got != tt.want {
				t.Errorf("RemoteAddr = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestLoggerCapturesStatus(t *testing.T) {
	h := Logger(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTeapot)
		w.WriteHeader(http.StatusOK) // ignored
	}))
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))

	if rec.Code != http.StatusTeapot {
		t.Errorf("status = %d, want %d", rec.Code, http.StatusTeapot)
	}
}
