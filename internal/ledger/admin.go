package ledger

import (
	"fmt"

	"credrelay/internal/events"
	"credrelay/internal/ident"
)

// Administrative operations. Every one is gated on the single operator
// principal the shard was configured with.

func (l *Ledger) SetMessageFee(caller ident.Principal, fee uint64) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if caller != l.operator {
		return ErrUnauthorized
	}
	if fee == 0 || fee > l.maxFee {
		return ErrFeeOutOfRange
	}
	l.msgFee = fee
	return nil
}

func (l *Ledger) SetWithdrawalFee(caller ident.Principal, fee uint64) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if caller != l.operator {
		return ErrUnauthorized
	}
	if fee == 0 || fee > l.maxFee {
		return ErrFeeOutOfRange
	}
	l.wFee = fee
	return nil
}

// Pause halts every mutating operation until Unpause. Reads stay
// available.
func (l *Ledger) Pause(caller ident.Principal) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if caller != l.operator {
		return ErrUnauthorized
	}
	l.paused = true
	return nil
}

func (l *Ledger) Unpause(caller ident.Principal) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if caller != l.operator {
		return ErrUnauthorized
	}
	l.paused = false
	return nil
}

// CollectFees pays accumulated fees out to the operator. Same ordering
// discipline as Withdraw: state first, payout second, rollback on a
// failed transfer.
func (l *Ledger) CollectFees(caller ident.Principal, amount uint64) error {
	l.mu.Lock()
	if l.inPayout {
		l.mu.Unlock()
		return ErrReentrantCall
	}
	if caller != l.operator {
		l.mu.Unlock()
		return ErrUnauthorized
	}
	if amount == 0 {
		l.mu.Unlock()
		return ErrInvalidAmount
	}
	if amount > l.retained {
		l.mu.Unlock()
		return ErrInsufficientBalance
	}
	l.retained -= amount
	l.inPayout = true
	sink := l.sink
	l.mu.Unlock()

	payErr := sink.Pay(caller, amount)

	l.mu.Lock()
	l.inPayout = false
	if payErr != nil {
		l.retained += amount
		l.mu.Unlock()
		return fmt.Errorf("%w: %v", ErrTransferFailed, payErr)
	}
	l.emit.Emit(events.Record{
		Kind:      events.KindFeesCollected,
		Shard:     l.shard,
		Owner:     caller.Hex(),
		NetAmount: amount,
	})
	l.mu.Unlock()
	return nil
}
