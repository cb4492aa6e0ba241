// Package ledger implements one shard of the credit engine: per-identity
// balances, fee-gated message admission, and the withdrawal-authorization
// state machine. A shard is an independent accounting domain; operations
// against it are serialized and all-or-nothing.
package ledger

import (
	"fmt"
	"math"
	"sync"

	"credrelay/internal/events"
	"credrelay/internal/ident"
)

// Sink receives external value payouts. Implementations may call back
// into the ledger; the reentrancy latch rejects such nested mutations.
type Sink interface {
	Pay(to ident.Principal, amount uint64) error
}

// FeeSchedule is the fee configuration a shard starts with. Message fee
// scales linearly with payload size via PerByte. MaxFee bounds later
// administrative updates.
type FeeSchedule struct {
	Message    uint64
	PerByte    uint64
	Withdrawal uint64
	MaxFee     uint64
}

type Config struct {
	Shard      int
	Operator   ident.Principal
	Fees       FeeSchedule
	MaxPayload int
	Sink       Sink
	Events     events.Emitter
}

// Stats is a read-only snapshot of one shard.
type Stats struct {
	Shard     int    `json:"shard"`
	Messages  uint64 `json:"messages"`
	Deposited uint64 `json:"deposited"`
	Accounts  int    `json:"accounts"`
	Retained  uint64 `json:"retained"`
	Paused    bool   `json:"paused"`
}

// Ledger holds the credit state for the identities routed to one shard.
// One mutex serializes every operation; no partial state ever escapes.
type Ledger struct {
	mu sync.Mutex

	shard    int
	operator ident.Principal
	sink     Sink
	emit     events.Emitter

	balances    map[ident.Hash]uint64
	withdrawers map[ident.Hash]ident.Principal

	msgFee     uint64
	perByte    uint64
	wFee       uint64
	maxFee     uint64
	maxPayload int

	paused   bool
	inPayout bool

	seq       uint64
	deposited uint64
	retained  uint64
}

func New(cfg Config) (*Ledger, error) {
	if cfg.Operator.IsZero() {
		return nil, fmt.Errorf("missing operator principal")
	}
	if cfg.Sink == nil {
		return nil, fmt.Errorf("missing payout sink")
	}
	if cfg.Fees.MaxFee == 0 {
		return nil, fmt.Errorf("missing max fee bound")
	}
	if cfg.Fees.Message == 0 || cfg.Fees.Message > cfg.Fees.MaxFee {
		return nil, fmt.Errorf("message fee out of range")
	}
	if cfg.Fees.Withdrawal == 0 || cfg.Fees.Withdrawal > cfg.Fees.MaxFee {
		return nil, fmt.Errorf("withdrawal fee out of range")
	}
	if cfg.MaxPayload <= 0 {
		return nil, fmt.Errorf("missing max payload")
	}
	// The fee for a max-size payload must fit in uint64 or checkSend
	// could wrap and admit a message for less than its real fee. The
	// message fee can later be raised up to MaxFee, so bound against
	// that.
	if cfg.Fees.PerByte != 0 && cfg.Fees.PerByte > (math.MaxUint64-cfg.Fees.MaxFee)/uint64(cfg.MaxPayload) {
		return nil, fmt.Errorf("per-byte fee overflows at max payload")
	}
	emit := cfg.Events
	if emit == nil {
		emit = events.Nop{}
	}
	return &Ledger{
		shard:       cfg.Shard,
		operator:    cfg.Operator,
		sink:        cfg.Sink,
		emit:        emit,
		balances:    make(map[ident.Hash]uint64),
		withdrawers: make(map[ident.Hash]ident.Principal),
		msgFee:      cfg.Fees.Message,
		perByte:     cfg.Fees.PerByte,
		wFee:        cfg.Fees.Withdrawal,
		maxFee:      cfg.Fees.MaxFee,
		maxPayload:  cfg.MaxPayload,
	}, nil
}

// Deposit credits an identity. Permissionless: anyone may fund any
// identity, which is what keeps funding anonymous.
func (l *Ledger) Deposit(id ident.Hash, amount uint64) (uint64, error) {
	l.mu.Lock()
	if err := l.gate(); err != nil {
		l.mu.Unlock()
		return 0, err
	}
	if err := checkDeposit(id, amount, l.balances[id]); err != nil {
		l.mu.Unlock()
		return 0, err
	}
	newBal := l.applyDeposit(id, amount)
	// Emitted under the lock so log order matches apply order. The log
	// serializes appends with its own lock; no deadlock.
	l.emit.Emit(events.Record{
		Kind:       events.KindCreditDeposited,
		Shard:      l.shard,
		ID:         id.Hex(),
		Amount:     amount,
		NewBalance: newBal,
	})
	l.mu.Unlock()
	return newBal, nil
}

// Send admits one message for delivery, deducting the fee from the
// target identity's balance. The payload is opaque; encryption is the
// client's concern.
func (l *Ledger) Send(sender ident.Principal, id ident.Hash, payload []byte) (uint64, error) {
	l.mu.Lock()
	if err := l.gate(); err != nil {
		l.mu.Unlock()
		return 0, err
	}
	fee, err := l.checkSend(id, payload)
	if err != nil {
		l.mu.Unlock()
		return 0, err
	}
	seq, newBal := l.applySend(id, fee)
	l.emit.Emit(events.Record{
		Kind:       events.KindMessageSent,
		Shard:      l.shard,
		ID:         id.Hex(),
		MsgSeq:     seq,
		Sender:     sender.Hex(),
		Payload:    payload,
		NewBalance: newBal,
	})
	l.mu.Unlock()
	return seq, nil
}

// Authorize binds a withdrawer principal to an identity. Only the
// holder of the secret behind the identity hash can do this; a later
// valid authorization replaces the previous one (single slot).
func (l *Ledger) Authorize(id ident.Hash, withdrawer ident.Principal, secretProof string) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if err := l.gate(); err != nil {
		return err
	}
	if id.IsZero() {
		return ErrInvalidIdentity
	}
	if withdrawer.IsZero() {
		return ErrUnauthorized
	}
	if !ident.Verify(secretProof, id) {
		return ErrInvalidSecret
	}
	l.withdrawers[id] = withdrawer
	return nil
}

// Withdraw extracts credit for the authorized withdrawer. All internal
// state is finalized before the external payout is issued; a payout
// failure rolls the mutation back as a unit.
func (l *Ledger) Withdraw(caller ident.Principal, id ident.Hash, amount uint64) (uint64, error) {
	l.mu.Lock()
	if err := l.gate(); err != nil {
		l.mu.Unlock()
		return 0, err
	}
	if id.IsZero() {
		l.mu.Unlock()
		return 0, ErrInvalidIdentity
	}
	if w, ok := l.withdrawers[id]; !ok || w != caller {
		l.mu.Unlock()
		return 0, ErrUnauthorized
	}
	if amount > l.balances[id] {
		l.mu.Unlock()
		return 0, ErrInsufficientBalance
	}
	if amount <= l.wFee {
		l.mu.Unlock()
		return 0, ErrAmountBelowFee
	}

	fee := l.wFee
	net := amount - fee
	l.balances[id] -= amount
	l.retained += fee
	newBal := l.balances[id]
	l.inPayout = true
	sink := l.sink
	l.mu.Unlock()

	payErr := sink.Pay(caller, net)

	l.mu.Lock()
	l.inPayout = false
	if payErr != nil {
		l.balances[id] += amount
		l.retained -= fee
		l.mu.Unlock()
		return 0, fmt.Errorf("%w: %v", ErrTransferFailed, payErr)
	}
	l.emit.Emit(events.Record{
		Kind:       events.KindCreditWithdrawn,
		Shard:      l.shard,
		ID:         id.Hex(),
		Withdrawer: caller.Hex(),
		NetAmount:  net,
		NewBalance: newBal,
	})
	l.mu.Unlock()
	return newBal, nil
}

// Balance reads an identity's current balance. Zero for unknown ids.
func (l *Ledger) Balance(id ident.Hash) uint64 {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.balances[id]
}

// Withdrawer reports the currently authorized withdrawer, if any.
func (l *Ledger) Withdrawer(id ident.Hash) (ident.Principal, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	w, ok := l.withdrawers[id]
	return w, ok
}

func (l *Ledger) Stats() Stats {
	l.mu.Lock()
	defer l.mu.Unlock()
	return Stats{
		Shard:     l.shard,
		Messages:  l.seq,
		Deposited: l.deposited,
		Accounts:  len(l.balances),
		Retained:  l.retained,
		Paused:    l.paused,
	}
}

// Fee reports the admission fee a payload of the given size would pay.
func (l *Ledger) Fee(payloadSize int) uint64 {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.msgFee + l.perByte*uint64(payloadSize)
}

// gate is the common front door for mutating operations: it rejects
// while paused and while an external payout is in flight.
func (l *Ledger) gate() error {
	if l.inPayout {
		return ErrReentrantCall
	}
	if l.paused {
		return ErrPaused
	}
	return nil
}

func checkDeposit(id ident.Hash, amount, balance uint64) error {
	if id.IsZero() {
		return ErrInvalidIdentity
	}
	if amount == 0 {
		return ErrInvalidAmount
	}
	if balance+amount < balance {
		return ErrInvalidAmount
	}
	return nil
}

func (l *Ledger) applyDeposit(id ident.Hash, amount uint64) uint64 {
	l.balances[id] += amount
	l.deposited += amount
	return l.balances[id]
}

func (l *Ledger) checkSend(id ident.Hash, payload []byte) (uint64, error) {
	if id.IsZero() {
		return 0, ErrInvalidIdentity
	}
	if len(payload) == 0 || len(payload) > l.maxPayload {
		return 0, ErrInvalidPayload
	}
	fee := l.msgFee + l.perByte*uint64(len(payload))
	if l.balances[id] < fee {
		return 0, ErrInsufficientCredit
	}
	return fee, nil
}

func (l *Ledger) applySend(id ident.Hash, fee uint64) (uint64, uint64) {
	l.balances[id] -= fee
	l.retained += fee
	l.seq++
	return l.seq, l.balances[id]
}
