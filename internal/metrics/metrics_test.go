package metrics

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
)

func TestMetricsCounters(t *testing.T) {
	m := New()
	m.IncDeposit()
	m.IncDeposit()
	m.IncMessage()
	m.IncWithdrawal()
	m.IncBatch()
	m.IncRegistration()
	m.IncLookup()
	m.IncRotation()
	m.IncRejectValidation()
	m.IncRejectEconomic()
	m.IncRejectUnauthorized()
	m.IncRejectPaused()

	snap := m.Snapshot()
	if snap.Ledger.Deposits != 2 {
		t.Fatalf("expected deposits=2, got %d", snap.Ledger.Deposits)
	}
	if snap.Ledger.Messages != 1 || snap.Ledger.Withdrawals != 1 || snap.Ledger.Batches != 1 {
		t.Fatalf("unexpected ledger counts: %+v", snap.Ledger)
	}
	if snap.Registry.Registrations != 1 || snap.Registry.Lookups != 1 || snap.Registry.Rotations != 1 {
		t.Fatalf("unexpected registry counts: %+v", snap.Registry)
	}
	if snap.Rejects.Validation != 1 || snap.Rejects.Economic != 1 || snap.Rejects.Unauthorized != 1 || snap.Rejects.Paused != 1 {
		t.Fatalf("unexpected reject counts: %+v", snap.Rejects)
	}
	if snap.GeneratedAt.IsZero() {
		t.Fatalf("missing generated_at")
	}
}

func TestWriteSnapshot(t *testing.T) {
	m := New()
	m.IncMessage()
	path := filepath.Join(t.TempDir(), "metrics.json")
	if err := m.WriteSnapshot(path); err != nil {
		t.Fatalf("write snapshot failed: %v", err)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read snapshot failed: %v", err)
	}
	var snap Snapshot
	if err := json.Unmarshal(data, &snap); err != nil {
		t.Fatalf("decode snapshot failed: %v", err)
	}
	if snap.Ledger.Messages != 1 {
		t.Fatalf("expected messages=1, got %d", snap.Ledger.Messages)
	}
	// Empty path is a no-op.
	if err := m.WriteSnapshot(""); err != nil {
		t.Fatalf("empty path should be a no-op: %v", err)
	}
}
