package payout

import (
	"path/filepath"
	"testing"
)

func TestJournalAppendAndList(t *testing.T) {
	j, err := NewJournal(filepath.Join(t.TempDir(), "payouts.jsonl"))
	if err != nil {
		t.Fatalf("new journal failed: %v", err)
	}
	if err := j.Append("cafe01", 75); err != nil {
		t.Fatalf("append failed: %v", err)
	}
	if err := j.Append("cafe02", 10); err != nil {
		t.Fatalf("append failed: %v", err)
	}

	got, err := j.List(0)
	if err != nil {
		t.Fatalf("list failed: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("expected 2 entries, got %d", len(got))
	}
	if got[0].To != "cafe01" || got[0].Amount != 75 {
		t.Fatalf("first entry: %+v", got[0])
	}
	if got[0].ID == got[1].ID {
		t.Fatalf("entry ids must be unique")
	}
	if got[0].CreatedAt.IsZero() {
		t.Fatalf("missing timestamp")
	}
}

func TestJournalRejectsBadInput(t *testing.T) {
	j, err := NewJournal(filepath.Join(t.TempDir(), "payouts.jsonl"))
	if err != nil {
		t.Fatalf("new journal failed: %v", err)
	}
	if err := j.Append("", 10); err == nil {
		t.Fatalf("expected error for missing recipient")
	}
	if err := j.Append("cafe01", 0); err == nil {
		t.Fatalf("expected error for zero amount")
	}
	got, err := j.List(0)
	if err != nil || len(got) != 0 {
		t.Fatalf("rejected appends must not persist: %v %v", got, err)
	}
}

func TestJournalListMissingFile(t *testing.T) {
	j, err := NewJournal(filepath.Join(t.TempDir(), "payouts.jsonl"))
	if err != nil {
		t.Fatalf("new journal failed: %v", err)
	}
	got, err := j.List(10)
	if err != nil || got != nil {
		t.Fatalf("missing file should list empty: %v %v", got, err)
	}
}
