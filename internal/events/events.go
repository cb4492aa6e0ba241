// Package events carries the append-only event stream that off-chain
// indexers consume to reconstruct per-identity inboxes. Records are
// persisted as JSONL and fanned out to in-process subscribers.
package events

import "time"

type Kind string

const (
	KindCreditDeposited        Kind = "credit_deposited"
	KindMessageSent            Kind = "message_sent"
	KindCreditWithdrawn        Kind = "credit_withdrawn"
	KindFeesCollected          Kind = "fees_collected"
	KindReceiverHashRegistered Kind = "receiver_hash_registered"
	KindReceiverHashUpdated    Kind = "receiver_hash_updated"
	KindVisibilityChanged      Kind = "visibility_changed"
	KindShardAdded             Kind = "shard_added"
)

// Record is a single append-only event. ID is the indexed identity hash
// in hex where the event concerns one identity; numeric fields are only
// meaningful for the kinds that set them.
type Record struct {
	Seq  uint64    `json:"seq"`
	Kind Kind      `json:"kind"`
	At   time.Time `json:"at"`

	ID         string `json:"id,omitempty"`
	Shard      int    `json:"shard"`
	Amount     uint64 `json:"amount,omitempty"`
	NewBalance uint64 `json:"new_balance"`
	MsgSeq     uint64 `json:"msg_seq,omitempty"`
	Sender     string `json:"sender,omitempty"`
	Payload    []byte `json:"payload,omitempty"`
	Withdrawer string `json:"withdrawer,omitempty"`
	NetAmount  uint64 `json:"net_amount,omitempty"`
	Owner      string `json:"owner,omitempty"`
	IsPublic   bool   `json:"is_public,omitempty"`
	Alias      string `json:"alias,omitempty"`
	OldID      string `json:"old_id,omitempty"`
	NewID      string `json:"new_id,omitempty"`
}

// Emitter is what the ledger, registry and router publish through.
type Emitter interface {
	Emit(Record)
}

// Nop discards every record. Used in tests and in components that run
// without a log.
type Nop struct{}

func (Nop) Emit(Record) {}
