package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestCORS(t *testing.T) {
	next := http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusTeapot)
	})

	tests := []struct {
		name       string
		allowed    []string
		origin     string
		method     string
		wantOrigin string
		wantCreds  string
		wantStatus int
	}{
		{"wildcard", []string{"*"}, "https://shop.example", http.MethodGet, "https://shop.example", "", http.StatusTeapot},
		{"explicit", []string{"https://shop.example"}, "https://shop.example", http.MethodPost, "https://shop.example", "true", http.StatusTeapot},
		{"rejected", []string{"https://shop.example"}, "https://evil.example", http.MethodGet, "", "", http.StatusTeapot},
		{"preflight", []string{"*"}, "https://shop.example", http.MethodOptions, "https://shop.example", "", http.StatusNoContent},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(tt.method, "/api/categories", nil)
			req.Header.Set("Origin", tt.origin)
			rec := httptest.NewRecorder()

			CORS(tt.allowed)(next).ServeHTTP(rec, req)

			if rec.Code != tt.wantStatus {
				t.Errorf("status = %d, want %d", rec.Code, tt.wantStatus)
			}
			if got := rec.Header().Get("Access-Control-Allow-Origin"); got != tt.wantOrigin {
				t.Errorf("Allow-Origin = %q, want %q", got, tt.wantOrigin)
			}
			if got := rec.Header().Get("Access-Control-Allow-Credentials"); got != tt.wantCreds {
				t.Errorf("Allow-Credentials = %q, want %q", got, tt.wantCreds)
			}
		})
	}
}

func TestAllowOrigin(t *testing.T) {
	if !AllowOrigin([]string{"https://a.example"}, "") {
		t.Error("expected empty origin to be allowed")
	}
	if AllowOrigin([]string{"https://a.example"}, "https://b.example") {
		t.Error("expected unknown origin to be rejected")
	}
	if !AllowOrigin([]string{"*"}, "https://b.example") {
		t.Error("expected wildcard to allow any origin")
	}
}
