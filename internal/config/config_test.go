package config

import (
	"os"
	"path/filepath"
	"testing"

	"credrelay/internal/ident"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(body), 0600); err != nil {
		t.Fatalf("write config failed: %v", err)
	}
	return path
}

func TestLoadAppliesDefaults(t *testing.T) {
	op := ident.PrincipalFromSeed("operator")
	path := writeConfig(t, "operator: "+op.Hex()+"\n")

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("load failed: %v", err)
	}
	if cfg.Shards != 4 {
		t.Fatalf("default shards = %d", cfg.Shards)
	}
	if cfg.Fees.Message != 100 || cfg.Fees.Withdrawal != 250 {
		t.Fatalf("default fees = %+v", cfg.Fees)
	}
	if cfg.Registry.MaxEntriesPerOwner != 16 {
		t.Fatalf("default entry cap = %d", cfg.Registry.MaxEntriesPerOwner)
	}
	if cfg.OperatorPrincipal() != op {
		t.Fatalf("operator principal mismatch")
	}
}

func TestLoadOverrides(t *testing.T) {
	op := ident.PrincipalFromSeed("operator")
	path := writeConfig(t, `
operator: `+op.Hex()+`
shards: 8
max_payload: 1024
fees:
  message: 5
  per_byte: 1
  withdrawal: 10
  registration: 50
  max: 500
registry:
  max_entries_per_owner: 2
`)
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("load failed: %v", err)
	}
	if cfg.Shards != 8 || cfg.MaxPayload != 1024 {
		t.Fatalf("overrides not applied: %+v", cfg)
	}
	if cfg.Fees.PerByte != 1 || cfg.Fees.Max != 500 {
		t.Fatalf("fee overrides not applied: %+v", cfg.Fees)
	}
	if cfg.Registry.MaxEntriesPerOwner != 2 {
		t.Fatalf("registry override not applied: %+v", cfg.Registry)
	}
}

func TestValidateRejections(t *testing.T) {
	op := ident.PrincipalFromSeed("operator").Hex()
	cases := []struct {
		name string
		body string
	}{
		{"missing operator", "shards: 4\n"},
		{"bad operator", "operator: nothex\n"},
		{"zero shards", "operator: " + op + "\nshards: 0\n"},
		{"zero message fee", "operator: " + op + "\nfees:\n  message: 0\n  withdrawal: 10\n  max: 100\n"},
		{"fee over max", "operator: " + op + "\nfees:\n  message: 200\n  withdrawal: 10\n  max: 100\n"},
		{"per-byte over max", "operator: " + op + "\nfees:\n  message: 10\n  per_byte: 101\n  withdrawal: 10\n  max: 100\n"},
	}
	for _, c := range cases {
		path := writeConfig(t, c.body)
		if _, err := Load(path); err == nil {
			t.Fatalf("%s: expected error", c.name)
		}
	}
}

func TestLoadMissingFileUsesDefaults(t *testing.T) {
	// Defaults alone fail validation because the operator is unset.
	if _, err := Load(filepath.Join(t.TempDir(), "absent.yaml")); err == nil {
		t.Fatalf("expected error for defaults without operator")
	}
}
