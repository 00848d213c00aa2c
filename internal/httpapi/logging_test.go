package httpapi

import (
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestParseLevel(t *testing.T) {
	cases := map[string]LogLevel{
		"":        LevelOff,
		"off":     LevelOff,
		"error":   LevelError,
		"info":    LevelInfo,
		"debug":   LevelDebug,
		"bogus":   LevelInfo,
		"unknown": LevelInfo,
	}
	for in, want := range cases {
		if got := parseLevel(in); got != want {
			t.Errorf("parseLevel(%q) = %d, want %d", in, got, want)
		}
	}
}

func TestRequestLogLevelOverrides(t *testing.T) {
	r := httptest.NewRequest(http.MethodGet, "/status?log=1", nil)
	if got := requestLogLevel(r); got != LevelDebug {
		t.Fatalf("query log=1: got %d", got)
	}
	r = httptest.NewRequest(http.MethodGet, "/status?log=error", nil)
	if got := requestLogLevel(r); got != LevelError {
		t.Fatalf("query log=error: got %d", got)
	}
	r = httptest.NewRequest(http.MethodGet, "/status", nil)
	r.Header.Set("X-Log-Level", "debug")
	if got := requestLogLevel(r); got != LevelDebug {
		t.Fatalf("header: got %d", got)
	}
}
