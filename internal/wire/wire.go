// Package wire defines the framed JSON envelopes the node speaks over
// QUIC: one request and one response per stream, each length-prefixed.
package wire

import (
	"encoding/binary"
	"fmt"
	"io"

	"github.com/google/uuid"
)

const MaxFrameSize = 1 << 20

type Op string

const (
	OpDeposit      Op = "deposit"
	OpSend         Op = "send"
	OpAuthorize    Op = "authorize"
	OpWithdraw     Op = "withdraw"
	OpBatchDeposit Op = "batch_deposit"
	OpBatchSend    Op = "batch_send"

	OpRegister   Op = "register"
	OpByOwner    Op = "by_owner"
	OpByAlias    Op = "by_alias"
	OpVisibility Op = "visibility"
	OpRotate     Op = "rotate"
	OpAliasFree  Op = "alias_free"

	OpStats              Op = "stats"
	OpSetMessageFee      Op = "set_message_fee"
	OpSetWithdrawalFee   Op = "set_withdrawal_fee"
	OpSetRegistrationFee Op = "set_registration_fee"
	OpPause              Op = "pause"
	OpUnpause            Op = "unpause"
	OpCollectFees        Op = "collect_fees"
	OpCollectRegFees     Op = "collect_reg_fees"
	OpAddShard           Op = "add_shard"
)

// Request carries one operation. Fields beyond ID/Op/Caller are set per
// op; unknown fields are ignored by the node.
type Request struct {
	ID     string `json:"id"`
	Op     Op     `json:"op"`
	Caller string `json:"caller,omitempty"`

	Identity    string   `json:"identity,omitempty"`
	Amount      uint64   `json:"amount,omitempty"`
	Payload     []byte   `json:"payload,omitempty"`
	SecretProof string   `json:"secret_proof,omitempty"`
	Withdrawer  string   `json:"withdrawer,omitempty"`
	Alias       string   `json:"alias,omitempty"`
	IsPublic    bool     `json:"is_public,omitempty"`
	Payment     uint64   `json:"payment,omitempty"`
	Owner       string   `json:"owner,omitempty"`
	Fee         uint64   `json:"fee,omitempty"`
	Identities  []string `json:"identities,omitempty"`
	Amounts     []uint64 `json:"amounts,omitempty"`
	Payloads    [][]byte `json:"payloads,omitempty"`
}

type Response struct {
	ID        string `json:"id"`
	OK        bool   `json:"ok"`
	ErrorKind string `json:"error_kind,omitempty"`
	Error     string `json:"error,omitempty"`

	Identity  string      `json:"identity,omitempty"`
	Balance   uint64      `json:"balance"`
	Seq       uint64      `json:"seq,omitempty"`
	Shard     int         `json:"shard"`
	Balances  []uint64    `json:"balances,omitempty"`
	Seqs      []uint64    `json:"seqs,omitempty"`
	Available bool        `json:"available,omitempty"`
	Stats     *StatsReply `json:"stats,omitempty"`
}

// StatsReply mirrors the router aggregate plus per-shard snapshots so
// clients need no internal types.
type StatsReply struct {
	Shards    int          `json:"shards"`
	Messages  uint64       `json:"messages"`
	Deposited uint64       `json:"deposited"`
	Accounts  int          `json:"accounts"`
	Retained  uint64       `json:"retained"`
	PerShard  []ShardStats `json:"per_shard,omitempty"`
}

type ShardStats struct {
	Shard     int    `json:"shard"`
	Messages  uint64 `json:"messages"`
	Deposited uint64 `json:"deposited"`
	Accounts  int    `json:"accounts"`
	Retained  uint64 `json:"retained"`
	Paused    bool   `json:"paused"`
}

func NewRequest(op Op) Request {
	return Request{ID: uuid.NewString(), Op: op}
}

func EncodeFrame(payload []byte) ([]byte, error) {
	if len(payload) == 0 {
		return nil, fmt.Errorf("empty payload")
	}
	if len(payload) > MaxFrameSize {
		return nil, fmt.Errorf("payload too large")
	}
	out := make([]byte, 4+len(payload))
	binary.BigEndian.PutUint32(out[:4], uint32(len(payload)))
	copy(out[4:], payload)
	return out, nil
}

func ReadFrame(r io.Reader) ([]byte, error) {
	var lenBuf [4]byte
	if _, err := io.ReadFull(r, lenBuf[:]); err != nil {
		return nil, err
	}
	n := binary.BigEndian.Uint32(lenBuf[:])
	if n == 0 || n > MaxFrameSize {
		return nil, fmt.Errorf("invalid frame size")
	}
	payload := make([]byte, int(n))
	if _, err := io.ReadFull(r, payload); err != nil {
		return nil, err
	}
	return payload, nil
}

func WriteFrame(w io.Writer, payload []byte) error {
	frame, err := EncodeFrame(payload)
	if err != nil {
		return err
	}
	total := 0
	for total < len(frame) {
		n, err := w.Write(frame[total:])
		if err != nil {
			return err
		}
		if n == 0 {
			return fmt.Errorf("short write")
		}
		total += n
	}
	return nil
}
