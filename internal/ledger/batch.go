package ledger

import (
	"credrelay/internal/events"
	"credrelay/internal/ident"
)

// Atomic batch application. Both methods run two phases under one lock:
// every element is checked against the state the batch started from
// plus the elements before it, then every element is applied. Any
// failed check aborts before the first apply, so a batch never commits
// partially.

// ApplyDeposits credits every id by the matching amount, or none of
// them. Events are emitted under the lock, in apply order, and only
// once every check has passed.
func (l *Ledger) ApplyDeposits(ids []ident.Hash, amounts []uint64) ([]uint64, error) {
	if len(ids) != len(amounts) {
		return nil, ErrLengthMismatch
	}
	l.mu.Lock()
	if err := l.gate(); err != nil {
		l.mu.Unlock()
		return nil, err
	}
	// Duplicate ids within one batch accumulate, so checks run against
	// a scratch view, not the committed balances.
	scratch := make(map[ident.Hash]uint64, len(ids))
	for i, id := range ids {
		bal, ok := scratch[id]
		if !ok {
			bal = l.balances[id]
		}
		if err := checkDeposit(id, amounts[i], bal); err != nil {
			l.mu.Unlock()
			return nil, err
		}
		scratch[id] = bal + amounts[i]
	}
	newBals := make([]uint64, len(ids))
	for i, id := range ids {
		newBals[i] = l.applyDeposit(id, amounts[i])
		l.emit.Emit(events.Record{
			Kind:       events.KindCreditDeposited,
			Shard:      l.shard,
			ID:         id.Hex(),
			Amount:     amounts[i],
			NewBalance: newBals[i],
		})
	}
	l.mu.Unlock()
	return newBals, nil
}

// ApplySends admits every message or none. The scratch view makes
// repeated sends to one identity within the batch pay each fee from the
// balance left by the previous element.
func (l *Ledger) ApplySends(sender ident.Principal, ids []ident.Hash, payloads [][]byte) ([]uint64, error) {
	if len(ids) != len(payloads) {
		return nil, ErrLengthMismatch
	}
	l.mu.Lock()
	if err := l.gate(); err != nil {
		l.mu.Unlock()
		return nil, err
	}
	scratch := make(map[ident.Hash]uint64, len(ids))
	fees := make([]uint64, len(ids))
	for i, id := range ids {
		if id.IsZero() {
			l.mu.Unlock()
			return nil, ErrInvalidIdentity
		}
		if len(payloads[i]) == 0 || len(payloads[i]) > l.maxPayload {
			l.mu.Unlock()
			return nil, ErrInvalidPayload
		}
		bal, ok := scratch[id]
		if !ok {
			bal = l.balances[id]
		}
		fee := l.msgFee + l.perByte*uint64(len(payloads[i]))
		if bal < fee {
			l.mu.Unlock()
			return nil, ErrInsufficientCredit
		}
		scratch[id] = bal - fee
		fees[i] = fee
	}
	seqs := make([]uint64, len(ids))
	newBals := make([]uint64, len(ids))
	for i, id := range ids {
		seqs[i], newBals[i] = l.applySend(id, fees[i])
		l.emit.Emit(events.Record{
			Kind:       events.KindMessageSent,
			Shard:      l.shard,
			ID:         id.Hex(),
			MsgSeq:     seqs[i],
			Sender:     sender.Hex(),
			Payload:    payloads[i],
			NewBalance: newBals[i],
		})
	}
	l.mu.Unlock()
	return seqs, nil
}
