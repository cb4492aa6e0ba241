// Package payout records external value payouts. The relay core only
// needs a Sink; the journal is the node's default implementation, an
// append-only JSONL file the operator reconciles against the real value
// substrate.
package payout

import (
	"bufio"
	"crypto/rand"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"
)

type Entry struct {
	ID        string    `json:"id"`
	To        string    `json:"to"`
	Amount    uint64    `json:"amount"`
	CreatedAt time.Time `json:"created_at"`
}

type Journal struct {
	mu   sync.Mutex
	path string
}

func NewJournal(path string) (*Journal, error) {
	if path == "" {
		return nil, fmt.Errorf("missing path")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
		return nil, err
	}
	return &Journal{path: path}, nil
}

// Pay appends one payout record. Satisfies the ledger and registry Sink
// interfaces via the node's adapter.
func (j *Journal) Append(to string, amount uint64) error {
	if to == "" {
		return fmt.Errorf("missing recipient")
	}
	if amount == 0 {
		return fmt.Errorf("amount must be non-zero")
	}
	var id [16]byte
	if _, err := rand.Read(id[:]); err != nil {
		return err
	}
	e := Entry{
		ID:        hex.EncodeToString(id[:]),
		To:        to,
		Amount:    amount,
		CreatedAt: time.Now().UTC(),
	}
	j.mu.Lock()
	defer j.mu.Unlock()
	f, err := os.OpenFile(j.path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0600)
	if err != nil {
		return err
	}
	defer f.Close()
	if err := json.NewEncoder(f).Encode(e); err != nil {
		return err
	}
	return f.Sync()
}

func (j *Journal) List(limit int) ([]Entry, error) {
	j.mu.Lock()
	defer j.mu.Unlock()
	f, err := os.Open(j.path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}
	defer f.Close()
	if limit <= 0 {
		limit = 100
	}
	out := make([]Entry, 0, limit)
	sc := bufio.NewScanner(f)
	for sc.Scan() {
		var e Entry
		if err := json.Unmarshal(sc.Bytes(), &e); err != nil {
			continue
		}
		out = append(out, e)
		if len(out) >= limit {
			break
		}
	}
	if err := sc.Err(); err != nil {
		return out, err
	}
	return out, nil
}
