package config

import "testing"

func TestLoadDoesNotInjectWeakAuthDefaults(t *testing.T) {
	t.Setenv("AUTH_SECRET", "")

	cfg := Load()
	if cfg.AuthSecret != "" {
		t.Fatalf("expected empty AUTH_SECRET when unset, got %q", cfg.AuthSecret)
	}
}

func TestLoadClampsInvalidCacheTTL(t *testing.T) {
	t.Setenv("JOBSHEET_CACHE_TTL_SECONDS", "-5")

	cfg := Load()
	if cfg.JobsheetCacheTTLSeconds != 30 {
		t.Fatalf("expected TTL fallback 30, got %d", cfg.JobsheetCacheTTLSeconds)
	}
}
