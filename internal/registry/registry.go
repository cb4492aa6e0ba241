// Package registry maps identity hashes to an owner, a visibility mode
// and an optional alias. It provides public discovery by owner and
// access-controlled discovery by alias; it never mediates message
// delivery or credit flow.
package registry

import (
	"fmt"
	"sync"
	"time"

	"credrelay/internal/events"
	"credrelay/internal/ident"
)

const (
	MinAliasLen = 3
	MaxAliasLen = 32
)

// Sink receives the operator's retained-fee payouts.
type Sink interface {
	Pay(to ident.Principal, amount uint64) error
}

// Entry binds an owner, visibility mode and alias to an identity hash.
type Entry struct {
	Owner     ident.Principal
	IsPublic  bool
	Alias     string
	CreatedAt time.Time
}

type Config struct {
	Operator           ident.Principal
	RegistrationFee    uint64
	MaxFee             uint64
	MaxEntriesPerOwner int
	Sink               Sink
	Events             events.Emitter
}

type Registry struct {
	mu sync.Mutex

	operator    ident.Principal
	fee         uint64
	maxFee      uint64
	maxPerOwner int
	sink        Sink
	emit        events.Emitter

	entries       map[ident.Hash]Entry
	aliasToID     map[string]ident.Hash
	publicByOwner map[ident.Principal]ident.Hash
	ownerCount    map[ident.Principal]int

	retained uint64
	inPayout bool
}

func New(cfg Config) (*Registry, error) {
	if cfg.Operator.IsZero() {
		return nil, fmt.Errorf("missing operator principal")
	}
	if cfg.Sink == nil {
		return nil, fmt.Errorf("missing payout sink")
	}
	if cfg.MaxFee == 0 || cfg.RegistrationFee > cfg.MaxFee {
		return nil, fmt.Errorf("registration fee out of range")
	}
	if cfg.MaxEntriesPerOwner <= 0 {
		return nil, fmt.Errorf("missing per-owner entry cap")
	}
	emit := cfg.Events
	if emit == nil {
		emit = events.Nop{}
	}
	return &Registry{
		operator:      cfg.Operator,
		fee:           cfg.RegistrationFee,
		maxFee:        cfg.MaxFee,
		maxPerOwner:   cfg.MaxEntriesPerOwner,
		sink:          cfg.Sink,
		emit:          emit,
		entries:       make(map[ident.Hash]Entry),
		aliasToID:     make(map[string]ident.Hash),
		publicByOwner: make(map[ident.Principal]ident.Hash),
		ownerCount:    make(map[ident.Principal]int),
	}, nil
}

// Register derives the identity hash from the secret proof and stores a
// new entry for the caller. Payment must cover the registration fee;
// the whole payment is retained.
func (r *Registry) Register(caller ident.Principal, secretProof string, isPublic bool, alias string, payment uint64) (ident.Hash, error) {
	if caller.IsZero() {
		return ident.Hash{}, ErrUnauthorized
	}
	id, err := ident.Derive(secretProof)
	if err != nil {
		return ident.Hash{}, ErrInvalidSecretFormat
	}
	if alias != "" && !aliasFormatOK(alias) {
		return ident.Hash{}, ErrInvalidAliasFormat
	}
	if !isPublic && alias == "" {
		return ident.Hash{}, ErrAliasRequired
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.entries[id]; ok {
		return ident.Hash{}, ErrAlreadyRegistered
	}
	if alias != "" {
		if _, ok := r.aliasToID[alias]; ok {
			return ident.Hash{}, ErrAliasTaken
		}
	}
	if r.ownerCount[caller] >= r.maxPerOwner {
		return ident.Hash{}, ErrTooManyRegistrations
	}
	if isPublic {
		if _, ok := r.publicByOwner[caller]; ok {
			return ident.Hash{}, ErrAlreadyHasPublicEntry
		}
	}
	if payment < r.fee {
		return ident.Hash{}, ErrInsufficientPayment
	}

	e := Entry{Owner: caller, IsPublic: isPublic, Alias: alias, CreatedAt: time.Now().UTC()}
	r.entries[id] = e
	r.ownerCount[caller]++
	r.retained += payment
	if alias != "" {
		r.aliasToID[alias] = id
	}
	if isPublic {
		r.publicByOwner[caller] = id
	}

	r.emit.Emit(events.Record{
		Kind:     events.KindReceiverHashRegistered,
		ID:       id.Hex(),
		Owner:    caller.Hex(),
		IsPublic: isPublic,
		Alias:    alias,
	})
	return id, nil
}

// ByOwner returns the owner's public identity hash, or the zero hash if
// the owner has no public entry.
func (r *Registry) ByOwner(owner ident.Principal) ident.Hash {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.publicByOwner[owner]
}

// ByAlias resolves an alias to its identity hash. Private entries are
// resolvable only by their owner; public ones by anyone.
func (r *Registry) ByAlias(caller ident.Principal, alias string) (ident.Hash, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	id, ok := r.aliasToID[alias]
	if !ok {
		return ident.Hash{}, ErrAliasNotFound
	}
	e := r.entries[id]
	if !e.IsPublic && caller != e.Owner {
		return ident.Hash{}, ErrUnauthorized
	}
	return id, nil
}

// UpdateVisibility toggles an entry between public and private,
// applying the same alias rules as registration and keeping the lookup
// indexes coherent.
func (r *Registry) UpdateVisibility(caller ident.Principal, id ident.Hash, isPublic bool, alias string) error {
	if alias != "" && !aliasFormatOK(alias) {
		return ErrInvalidAliasFormat
	}
	if !isPublic && alias == "" {
		return ErrAliasRequired
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	e, ok := r.entries[id]
	if !ok || e.Owner != caller {
		return ErrNotOwner
	}
	if alias != "" {
		if cur, ok := r.aliasToID[alias]; ok && cur != id {
			return ErrAliasTaken
		}
	}
	if isPublic && !e.IsPublic {
		if _, ok := r.publicByOwner[caller]; ok {
			return ErrAlreadyHasPublicEntry
		}
	}

	if e.Alias != "" && e.Alias != alias {
		delete(r.aliasToID, e.Alias)
	}
	if alias != "" {
		r.aliasToID[alias] = id
	}
	if e.IsPublic && !isPublic {
		delete(r.publicByOwner, caller)
	}
	if isPublic {
		r.publicByOwner[caller] = id
	}
	e.IsPublic = isPublic
	e.Alias = alias
	r.entries[id] = e

	r.emit.Emit(events.Record{
		Kind:     events.KindVisibilityChanged,
		ID:       id.Hex(),
		Owner:    caller.Hex(),
		IsPublic: isPublic,
		Alias:    alias,
	})
	return nil
}

// UpdateReceiverHash rotates the identity hash of an existing entry,
// preserving alias, visibility and registration metadata. Any credit
// held on the old hash stays where it is; moving it is the caller's
// separate, non-atomic responsibility.
func (r *Registry) UpdateReceiverHash(caller ident.Principal, oldID ident.Hash, newSecretProof string) (ident.Hash, error) {
	newID, err := ident.Derive(newSecretProof)
	if err != nil {
		return ident.Hash{}, ErrInvalidSecretFormat
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	e, ok := r.entries[oldID]
	if !ok || e.Owner != caller {
		return ident.Hash{}, ErrNotOwner
	}
	if _, ok := r.entries[newID]; ok {
		return ident.Hash{}, ErrAlreadyRegistered
	}

	delete(r.entries, oldID)
	r.entries[newID] = e
	if e.Alias != "" {
		r.aliasToID[e.Alias] = newID
	}
	if e.IsPublic {
		r.publicByOwner[caller] = newID
	}

	r.emit.Emit(events.Record{
		Kind:     events.KindReceiverHashUpdated,
		OldID:    oldID.Hex(),
		NewID:    newID.Hex(),
		Owner:    caller.Hex(),
		IsPublic: e.IsPublic,
	})
	return newID, nil
}

// IsAliasAvailable validates the format first, then checks the
// uniqueness index.
func (r *Registry) IsAliasAvailable(alias string) (bool, error) {
	if !aliasFormatOK(alias) {
		return false, ErrInvalidAliasFormat
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	_, taken := r.aliasToID[alias]
	return !taken, nil
}

// Entry reads one registry record. Mainly for the node surface and
// tests; resolution goes through ByOwner/ByAlias.
func (r *Registry) Entry(id ident.Hash) (Entry, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	e, ok := r.entries[id]
	return e, ok
}

// Retained reports the accumulated registration fees.
func (r *Registry) Retained() uint64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.retained
}

func (r *Registry) SetRegistrationFee(caller ident.Principal, fee uint64) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if caller != r.operator {
		return ErrUnauthorized
	}
	if fee > r.maxFee {
		return ErrFeeOutOfRange
	}
	r.fee = fee
	return nil
}

// CollectFees pays retained registration fees out to the operator.
// State first, payout second, rollback on failure.
func (r *Registry) CollectFees(caller ident.Principal, amount uint64) error {
	r.mu.Lock()
	if r.inPayout {
		r.mu.Unlock()
		return ErrReentrantCall
	}
	if caller != r.operator {
		r.mu.Unlock()
		return ErrUnauthorized
	}
	if amount == 0 {
		r.mu.Unlock()
		return ErrInvalidAmount
	}
	if amount > r.retained {
		r.mu.Unlock()
		return ErrInsufficientBalance
	}
	r.retained -= amount
	r.inPayout = true
	sink := r.sink
	r.mu.Unlock()

	payErr := sink.Pay(caller, amount)

	r.mu.Lock()
	r.inPayout = false
	if payErr != nil {
		r.retained += amount
		r.mu.Unlock()
		return fmt.Errorf("%w: %v", ErrTransferFailed, payErr)
	}
	r.emit.Emit(events.Record{
		Kind:      events.KindFeesCollected,
		Owner:     caller.Hex(),
		NetAmount: amount,
	})
	r.mu.Unlock()
	return nil
}

// Aliases are 3-32 chars of [A-Za-z0-9_]. Rejected at the boundary, not
// sanitized.
func aliasFormatOK(alias string) bool {
	if len(alias) < MinAliasLen || len(alias) > MaxAliasLen {
		return false
	}
	for i := 0; i < len(alias); i++ {
		c := alias[i]
		switch {
		case c >= 'a' && c <= 'z':
		case c >= 'A' && c <= 'Z':
		case c >= '0' && c <= '9':
		case c == '_':
		default:
			return false
		}
	}
	return true
}
