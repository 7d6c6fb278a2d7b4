package config

import (
	"os"
	"path/filepath"
	"testing"
)

func TestDefaultsAreDevSecret(t *testing.T) {
	cfg := Defaults()
	if !cfg.Auth.DevSecret {
		t.Fatalf("expected DevSecret true by default")
	}
}

func TestLoadRejectsProductionWithDevSecret(t *testing.T) {
	os.Unsetenv("VAULT_AUTH_SECRET")
	os.Setenv("VAULT_PRODUCTION", "true")
	defer os.Unsetenv("VAULT_PRODUCTION")

	if _, err := Load(""); err == nil {
		t.Fatalf("expected error when production=true with the default secret")
	}
}

func TestLoadAcceptsProductionWithCustomSecret(t *testing.T) {
	os.Setenv("VAULT_PRODUCTION", "true")
	os.Setenv("VAULT_AUTH_SECRET", "a-real-secret")
	defer os.Unsetenv("VAULT_PRODUCTION")
	defer os.Unsetenv("VAULT_AUTH_SECRET")

	cfg, err := Load("")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.Auth.DevSecret {
		t.Fatalf("expected DevSecret false once a custom secret is set")
	}
}

func TestLoadFromTOMLFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.toml")
	contents := `
vault_base_dir = "/tmp/vaults"
http_addr = ":9090"

[oracle]
model = "claude-sonnet-4-5"
max_turns = 10
`
	if err := os.WriteFile(path, []byte(contents), 0o644); err != nil {
		t.Fatal(err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.VaultBaseDir != "/tmp/vaults" {
		t.Fatalf("VaultBaseDir = %q", cfg.VaultBaseDir)
	}
	if cfg.HTTPAddr != ":9090" {
		t.Fatalf("HTTPAddr = %q", cfg.HTTPAddr)
	}
	if cfg.Oracle.MaxTurns != 10 {
		t.Fatalf("MaxTurns = %d", cfg.Oracle.MaxTurns)
	}
}
