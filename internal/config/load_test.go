package config

import "testing"

func TestLoadWithoutFileReturnsDefaults(t *testing.T) {
	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	want := Default()
	if cfg != want {
		t.Fatalf("got %+v, want %+v", cfg, want)
	}
}

func TestLoadAppliesEnvironmentOverride(t *testing.T) {
	t.Setenv("ENTIDB_SYNC_ON_COMMIT", "false")
	t.Setenv("ENTIDB_LOG_LEVEL", "DEBUG")

	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.SyncOnCommit {
		t.Fatal("expected ENTIDB_SYNC_ON_COMMIT=false to be honored")
	}
	if cfg.LogLevel != "DEBUG" {
		t.Fatalf("got log level %q", cfg.LogLevel)
	}
}
