// Package batch wraps multiple ledger operations against one shard into
// a single all-or-nothing unit, amortizing per-call overhead. It holds
// no state of its own; atomicity comes from the shard.
package batch

import (
	"credrelay/internal/ident"
	"credrelay/internal/ledger"
)

// Deposit applies every credit or none. Arrays must be equal length.
func Deposit(shard *ledger.Ledger, ids []ident.Hash, amounts []uint64) ([]uint64, error) {
	if len(ids) != len(amounts) {
		return nil, ledger.ErrLengthMismatch
	}
	return shard.ApplyDeposits(ids, amounts)
}

// Send admits every message or none. If any element fails its
// precondition the whole batch aborts with that element's error.
func Send(shard *ledger.Ledger, sender ident.Principal, ids []ident.Hash, payloads [][]byte) ([]uint64, error) {
	if len(ids) != len(payloads) {
		return nil, ledger.ErrLengthMismatch
	}
	return shard.ApplySends(sender, ids, payloads)
}
