// Package router assigns every identity hash to exactly one shard
// ledger and tracks the live shard set. Assignment is the stable hash
// of the identity modulo the shard count in effect at first use; adding
// shards never migrates identities that are already pinned.
package router

import (
	"encoding/binary"
	"fmt"
	"sync"

	"credrelay/internal/events"
	"credrelay/internal/ident"
	"credrelay/internal/ledger"
)

// Factory builds the ledger instance for a new shard index.
type Factory func(shard int) (*ledger.Ledger, error)

type Router struct {
	mu       sync.Mutex
	operator ident.Principal
	shards   []*ledger.Ledger
	pinned   map[ident.Hash]int
	factory  Factory
	emit     events.Emitter
}

// Aggregate is a best-effort sum over every shard's stats.
type Aggregate struct {
	Shards    int    `json:"shards"`
	Messages  uint64 `json:"messages"`
	Deposited uint64 `json:"deposited"`
	Accounts  int    `json:"accounts"`
	Retained  uint64 `json:"retained"`
}

func New(operator ident.Principal, shardCount int, factory Factory, emit events.Emitter) (*Router, error) {
	if operator.IsZero() {
		return nil, fmt.Errorf("missing operator principal")
	}
	if shardCount <= 0 {
		return nil, fmt.Errorf("shard count must be positive")
	}
	if factory == nil {
		return nil, fmt.Errorf("missing shard factory")
	}
	if emit == nil {
		emit = events.Nop{}
	}
	r := &Router{
		operator: operator,
		pinned:   make(map[ident.Hash]int),
		factory:  factory,
		emit:     emit,
	}
	for i := 0; i < shardCount; i++ {
		l, err := factory(i)
		if err != nil {
			return nil, fmt.Errorf("shard %d: %w", i, err)
		}
		r.shards = append(r.shards, l)
	}
	return r, nil
}

// Index computes the modulo assignment for the current shard count.
// Pure: no pinning, no side effects.
func (r *Router) Index(id ident.Hash) int {
	r.mu.Lock()
	n := len(r.shards)
	r.mu.Unlock()
	return index(id, n)
}

func index(id ident.Hash, n int) int {
	return int(binary.BigEndian.Uint64(id[:8]) % uint64(n))
}

// Route resolves the shard that owns id, pinning the assignment on
// first use. An identity keeps its shard even if shards are added
// later; only identities routed for the first time see the new count.
func (r *Router) Route(id ident.Hash) (*ledger.Ledger, int, error) {
	if id.IsZero() {
		return nil, 0, ledger.ErrInvalidIdentity
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	idx, ok := r.pinned[id]
	if !ok {
		idx = index(id, len(r.shards))
		r.pinned[id] = idx
	}
	return r.shards[idx], idx, nil
}

// AddShard grows the shard set by one. Operator-only. Existing pinned
// assignments are deliberately not rebalanced; see the routing note in
// the package comment.
func (r *Router) AddShard(caller ident.Principal) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if caller != r.operator {
		return 0, ledger.ErrUnauthorized
	}
	idx := len(r.shards)
	l, err := r.factory(idx)
	if err != nil {
		return 0, fmt.Errorf("shard %d: %w", idx, err)
	}
	r.shards = append(r.shards, l)
	r.emit.Emit(events.Record{
		Kind:  events.KindShardAdded,
		Shard: idx,
	})
	return idx, nil
}

// Shards returns the live shard set in index order.
func (r *Router) Shards() []*ledger.Ledger {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]*ledger.Ledger, len(r.shards))
	copy(out, r.shards)
	return out
}

func (r *Router) ShardCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.shards)
}

// AggregateStats queries each shard in turn. Best effort: shards are
// independent accounting domains, so the sums are not a consistent cut.
func (r *Router) AggregateStats() Aggregate {
	var agg Aggregate
	for _, l := range r.Shards() {
		st := l.Stats()
		agg.Shards++
		agg.Messages += st.Messages
		agg.Deposited += st.Deposited
		agg.Accounts += st.Accounts
		agg.Retained += st.Retained
	}
	return agg
}

// ShardStats returns per-shard snapshots in index order.
func (r *Router) ShardStats() []ledger.Stats {
	shards := r.Shards()
	out := make([]ledger.Stats, 0, len(shards))
	for _, l := range shards {
		out = append(out, l.Stats())
	}
	return out
}
