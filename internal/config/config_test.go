package config

import "testing"

func TestLoadDefaults(t *testing.T) {
	t.Setenv("PORT", "")
	t.Setenv("PULL_INTERVAL_SECONDS", "")
	t.Setenv("PUSH_INTERVAL_SECONDS", "")
	t.Setenv("SYNC_TIMEOUT_SECONDS", "")

	cfg := Load()
	if cfg.Port != "8080" {
		t.Fatalf("expected default port 8080, got %q", cfg.Port)
	}
	if cfg.Address() != ":8080" {
		t.Fatalf("unexpected address %q", cfg.Address())
	}
	if cfg.PullIntervalSeconds != 300 || cfg.PushIntervalSeconds != 60 {
		t.Fatalf("unexpected sync intervals: pull=%d push=%d", cfg.PullIntervalSeconds, cfg.PushIntervalSeconds)
	}
}

func TestLoadRejectsNonPositiveIntervals(t *testing.T) {
	t.Setenv("PULL_INTERVAL_SECONDS", "0")
	t.Setenv("PUSH_INTERVAL_SECONDS", "-5")
	t.Setenv("SYNC_TIMEOUT_SECONDS", "bogus")

	cfg := Load()
	if cfg.PullIntervalSeconds != 300 {
		t.Fatalf("zero pull interval not defaulted: %d", cfg.PullIntervalSeconds)
	}
	if cfg.PushIntervalSeconds != 60 {
		t.Fatalf("negative push interval not defaulted: %d", cfg.PushIntervalSeconds)
	}
	if cfg.SyncTimeoutSeconds != 30 {
		t.Fatalf("malformed timeout not defaulted: %d", cfg.SyncTimeoutSeconds)
	}
}
