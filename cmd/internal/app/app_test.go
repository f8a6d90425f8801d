package app

import (
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

func TestRegisterHTTP_HealthEndpoints(t *testing.T) {
	log := slog.New(slog.NewTextHandler(io.Discard, nil))
	mux := http.NewServeMux()
	registerHTTP(mux, log, Config{}, nil, false, nil, nil)

	w := httptest.NewRecorder()
	mux.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	if w.Code != http.StatusOK {
		t.Fatalf("healthz: status %d", w.Code)
	}

	w = httptest.NewRecorder()
	mux.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/readyz", nil))
	if w.Code != http.StatusOK {
		t.Fatalf("readyz (memory mode): status %d", w.Code)
	}
}

func TestRegisterHTTP_ReadinessRequiresDB(t *testing.T) {
	log := slog.New(slog.NewTextHandler(io.Discard, nil))
	mux := http.NewServeMux()
	registerHTTP(mux, log, Config{ReadinessRequireDB: true}, nil, false, nil, nil)

	w := httptest.NewRecorder()
	mux.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/readyz", nil))
	if w.Code != http.StatusServiceUnavailable {
		t.Fatalf("readyz without db: status %d", w.Code)
	}
}

func TestRegisterHTTP_MetricsExposed(t *testing.T) {
	log := slog.New(slog.NewTextHandler(io.Discard, nil))
	mux := http.NewServeMux()
	registerHTTP(mux, log, Config{}, nil, false, nil, nil)

	w := httptest.NewRecorder()
	mux.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	if w.Code != http.StatusOK {
		t.Fatalf("metrics: status %d", w.Code)
	}
	if !strings.Contains(w.Body.String(), "go_goroutines") {
		t.Fatalf("metrics body missing runtime collectors")
	}
}

func TestValidateSecurityConfig(t *testing.T) {
	t.Setenv("WREN_TOKEN_HMAC_KEY", "")
	if err := ValidateSecurityConfig(Config{RequireTokenHMAC: false}); err != nil {
		t.Fatalf("policy disabled: %v", err)
	}
	if err := ValidateSecurityConfig(Config{RequireTokenHMAC: true}); err == nil {
		t.Fatalf("expected error with missing key")
	}

	t.Setenv("WREN_TOKEN_HMAC_KEY", "short")
	if err := ValidateSecurityConfig(Config{RequireTokenHMAC: true}); err == nil {
		t.Fatalf("expected error with short key")
	}

	t.Setenv("WREN_TOKEN_HMAC_KEY", strings.Repeat("k", 32))
	if err := ValidateSecurityConfig(Config{RequireTokenHMAC: true}); err != nil {
		t.Fatalf("valid key rejected: %v", err)
	}
}
