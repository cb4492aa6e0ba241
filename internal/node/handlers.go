package node

import (
	"errors"
	"fmt"

	"go.uber.org/zap"

	"credrelay/internal/batch"
	"credrelay/internal/ident"
	"credrelay/internal/ledger"
	"credrelay/internal/wire"
)

// Handle executes one wire request. The caller principal is
// self-declared; the substrate that would authenticate principals is
// outside this layer, so operator privilege is the only binding the
// node enforces (against the configured operator hash).
func (n *Node) Handle(req wire.Request) wire.Response {
	resp, err := n.dispatch(req)
	if err != nil {
		kind := wire.Kind(err)
		var we *wireError
		if errors.As(err, &we) {
			kind = we.kind
		}
		n.countReject(kind)
		n.log.Debug("op rejected",
			zap.String("op", string(req.Op)),
			zap.String("kind", kind))
		return wire.Response{OK: false, ErrorKind: kind, Error: err.Error()}
	}
	resp.OK = true
	return resp
}

func (n *Node) dispatch(req wire.Request) (wire.Response, error) {
	switch req.Op {
	case wire.OpDeposit:
		return n.handleDeposit(req)
	case wire.OpSend:
		return n.handleSend(req)
	case wire.OpAuthorize:
		return n.handleAuthorize(req)
	case wire.OpWithdraw:
		return n.handleWithdraw(req)
	case wire.OpBatchDeposit:
		return n.handleBatchDeposit(req)
	case wire.OpBatchSend:
		return n.handleBatchSend(req)
	case wire.OpRegister:
		return n.handleRegister(req)
	case wire.OpByOwner:
		return n.handleByOwner(req)
	case wire.OpByAlias:
		return n.handleByAlias(req)
	case wire.OpVisibility:
		return n.handleVisibility(req)
	case wire.OpRotate:
		return n.handleRotate(req)
	case wire.OpAliasFree:
		return n.handleAliasFree(req)
	case wire.OpStats:
		return n.handleStats(req)
	case wire.OpSetMessageFee, wire.OpSetWithdrawalFee, wire.OpSetRegistrationFee:
		return n.handleSetFee(req)
	case wire.OpPause, wire.OpUnpause:
		return n.handlePause(req)
	case wire.OpCollectFees:
		return n.handleCollectFees(req)
	case wire.OpCollectRegFees:
		return n.handleCollectRegFees(req)
	case wire.OpAddShard:
		return n.handleAddShard(req)
	default:
		return wire.Response{}, badRequest("unknown op %q", req.Op)
	}
}

type wireError struct {
	kind string
	msg  string
}

func (e *wireError) Error() string { return e.msg }

func badRequest(format string, args ...any) error {
	return &wireError{kind: wire.KindBadRequest, msg: fmt.Sprintf(format, args...)}
}

func (n *Node) handleDeposit(req wire.Request) (wire.Response, error) {
	id, err := ident.ParseHash(req.Identity)
	if err != nil {
		return wire.Response{}, badRequest("identity: %v", err)
	}
	shard, idx, err := n.router.Route(id)
	if err != nil {
		return wire.Response{}, err
	}
	newBal, err := shard.Deposit(id, req.Amount)
	if err != nil {
		return wire.Response{}, err
	}
	n.metrics.IncDeposit()
	return wire.Response{Balance: newBal, Shard: idx}, nil
}

func (n *Node) handleSend(req wire.Request) (wire.Response, error) {
	id, err := ident.ParseHash(req.Identity)
	if err != nil {
		return wire.Response{}, badRequest("identity: %v", err)
	}
	var sender ident.Principal
	if req.Caller != "" {
		sender, err = ident.ParsePrincipal(req.Caller)
		if err != nil {
			return wire.Response{}, badRequest("caller: %v", err)
		}
	}
	shard, idx, err := n.router.Route(id)
	if err != nil {
		return wire.Response{}, err
	}
	seq, err := shard.Send(sender, id, req.Payload)
	if err != nil {
		return wire.Response{}, err
	}
	n.metrics.IncMessage()
	return wire.Response{Seq: seq, Shard: idx}, nil
}

func (n *Node) handleAuthorize(req wire.Request) (wire.Response, error) {
	id, err := ident.ParseHash(req.Identity)
	if err != nil {
		return wire.Response{}, badRequest("identity: %v", err)
	}
	withdrawer, err := ident.ParsePrincipal(req.Withdrawer)
	if err != nil {
		return wire.Response{}, badRequest("withdrawer: %v", err)
	}
	shard, idx, err := n.router.Route(id)
	if err != nil {
		return wire.Response{}, err
	}
	if err := shard.Authorize(id, withdrawer, req.SecretProof); err != nil {
		return wire.Response{}, err
	}
	return wire.Response{Shard: idx}, nil
}

func (n *Node) handleWithdraw(req wire.Request) (wire.Response, error) {
	id, err := ident.ParseHash(req.Identity)
	if err != nil {
		return wire.Response{}, badRequest("identity: %v", err)
	}
	caller, err := ident.ParsePrincipal(req.Caller)
	if err != nil {
		return wire.Response{}, badRequest("caller: %v", err)
	}
	shard, idx, err := n.router.Route(id)
	if err != nil {
		return wire.Response{}, err
	}
	newBal, err := shard.Withdraw(caller, id, req.Amount)
	if err != nil {
		return wire.Response{}, err
	}
	n.metrics.IncWithdrawal()
	return wire.Response{Balance: newBal, Shard: idx}, nil
}

// batchShard resolves the single shard a batch addresses. A batch that
// spans shards is a client error: shards are independent atomicity
// domains.
func (n *Node) batchShard(hexIDs []string) ([]ident.Hash, *ledger.Ledger, int, error) {
	if len(hexIDs) == 0 {
		return nil, nil, 0, badRequest("empty batch")
	}
	ids := make([]ident.Hash, len(hexIDs))
	for i, s := range hexIDs {
		id, err := ident.ParseHash(s)
		if err != nil {
			return nil, nil, 0, badRequest("identity %d: %v", i, err)
		}
		ids[i] = id
	}
	shard, idx, err := n.router.Route(ids[0])
	if err != nil {
		return nil, nil, 0, err
	}
	for _, id := range ids[1:] {
		_, otherIdx, err := n.router.Route(id)
		if err != nil {
			return nil, nil, 0, err
		}
		if otherIdx != idx {
			return nil, nil, 0, badRequest("batch spans shards %d and %d", idx, otherIdx)
		}
	}
	return ids, shard, idx, nil
}

func (n *Node) handleBatchDeposit(req wire.Request) (wire.Response, error) {
	if len(req.Identities) != len(req.Amounts) {
		return wire.Response{}, ledger.ErrLengthMismatch
	}
	ids, shard, idx, err := n.batchShard(req.Identities)
	if err != nil {
		return wire.Response{}, err
	}
	newBals, err := batch.Deposit(shard, ids, req.Amounts)
	if err != nil {
		return wire.Response{}, err
	}
	n.metrics.IncBatch()
	return wire.Response{Balances: newBals, Shard: idx}, nil
}

func (n *Node) handleBatchSend(req wire.Request) (wire.Response, error) {
	if len(req.Identities) != len(req.Payloads) {
		return wire.Response{}, ledger.ErrLengthMismatch
	}
	var sender ident.Principal
	if req.Caller != "" {
		var err error
		sender, err = ident.ParsePrincipal(req.Caller)
		if err != nil {
			return wire.Response{}, badRequest("caller: %v", err)
		}
	}
	ids, shard, idx, err := n.batchShard(req.Identities)
	if err != nil {
		return wire.Response{}, err
	}
	seqs, err := batch.Send(shard, sender, ids, req.Payloads)
	if err != nil {
		return wire.Response{}, err
	}
	n.metrics.IncBatch()
	return wire.Response{Seqs: seqs, Shard: idx}, nil
}

func (n *Node) handleRegister(req wire.Request) (wire.Response, error) {
	caller, err := ident.ParsePrincipal(req.Caller)
	if err != nil {
		return wire.Response{}, badRequest("caller: %v", err)
	}
	id, err := n.registry.Register(caller, req.SecretProof, req.IsPublic, req.Alias, req.Payment)
	if err != nil {
		return wire.Response{}, err
	}
	n.metrics.IncRegistration()
	return wire.Response{Identity: id.Hex()}, nil
}

func (n *Node) handleByOwner(req wire.Request) (wire.Response, error) {
	owner, err := ident.ParsePrincipal(req.Owner)
	if err != nil {
		return wire.Response{}, badRequest("owner: %v", err)
	}
	n.metrics.IncLookup()
	id := n.registry.ByOwner(owner)
	if id.IsZero() {
		return wire.Response{}, nil
	}
	return wire.Response{Identity: id.Hex()}, nil
}

func (n *Node) handleByAlias(req wire.Request) (wire.Response, error) {
	var caller ident.Principal
	if req.Caller != "" {
		var err error
		caller, err = ident.ParsePrincipal(req.Caller)
		if err != nil {
			return wire.Response{}, badRequest("caller: %v", err)
		}
	}
	n.metrics.IncLookup()
	id, err := n.registry.ByAlias(caller, req.Alias)
	if err != nil {
		return wire.Response{}, err
	}
	return wire.Response{Identity: id.Hex()}, nil
}

func (n *Node) handleVisibility(req wire.Request) (wire.Response, error) {
	caller, err := ident.ParsePrincipal(req.Caller)
	if err != nil {
		return wire.Response{}, badRequest("caller: %v", err)
	}
	id, err := ident.ParseHash(req.Identity)
	if err != nil {
		return wire.Response{}, badRequest("identity: %v", err)
	}
	if err := n.registry.UpdateVisibility(caller, id, req.IsPublic, req.Alias); err != nil {
		return wire.Response{}, err
	}
	return wire.Response{Identity: id.Hex()}, nil
}

func (n *Node) handleRotate(req wire.Request) (wire.Response, error) {
	caller, err := ident.ParsePrincipal(req.Caller)
	if err != nil {
		return wire.Response{}, badRequest("caller: %v", err)
	}
	oldID, err := ident.ParseHash(req.Identity)
	if err != nil {
		return wire.Response{}, badRequest("identity: %v", err)
	}
	newID, err := n.registry.UpdateReceiverHash(caller, oldID, req.SecretProof)
	if err != nil {
		return wire.Response{}, err
	}
	n.metrics.IncRotation()
	return wire.Response{Identity: newID.Hex()}, nil
}

func (n *Node) handleAliasFree(req wire.Request) (wire.Response, error) {
	free, err := n.registry.IsAliasAvailable(req.Alias)
	if err != nil {
		return wire.Response{}, err
	}
	return wire.Response{Available: free}, nil
}

func (n *Node) handleStats(wire.Request) (wire.Response, error) {
	agg := n.router.AggregateStats()
	reply := &wire.StatsReply{
		Shards:    agg.Shards,
		Messages:  agg.Messages,
		Deposited: agg.Deposited,
		Accounts:  agg.Accounts,
		Retained:  agg.Retained + n.registry.Retained(),
	}
	for _, st := range n.router.ShardStats() {
		reply.PerShard = append(reply.PerShard, wire.ShardStats{
			Shard:     st.Shard,
			Messages:  st.Messages,
			Deposited: st.Deposited,
			Accounts:  st.Accounts,
			Retained:  st.Retained,
			Paused:    st.Paused,
		})
	}
	return wire.Response{Stats: reply}, nil
}

// Fee updates and pause apply to every shard. Each shard call is atomic
// on its own; a failure aborts the sweep and reports the shard reached.
func (n *Node) handleSetFee(req wire.Request) (wire.Response, error) {
	caller, err := ident.ParsePrincipal(req.Caller)
	if err != nil {
		return wire.Response{}, badRequest("caller: %v", err)
	}
	switch req.Op {
	case wire.OpSetRegistrationFee:
		return wire.Response{}, n.registry.SetRegistrationFee(caller, req.Fee)
	case wire.OpSetMessageFee:
		for _, shard := range n.router.Shards() {
			if err := shard.SetMessageFee(caller, req.Fee); err != nil {
				return wire.Response{}, err
			}
		}
	case wire.OpSetWithdrawalFee:
		for _, shard := range n.router.Shards() {
			if err := shard.SetWithdrawalFee(caller, req.Fee); err != nil {
				return wire.Response{}, err
			}
		}
	}
	return wire.Response{}, nil
}

func (n *Node) handlePause(req wire.Request) (wire.Response, error) {
	caller, err := ident.ParsePrincipal(req.Caller)
	if err != nil {
		return wire.Response{}, badRequest("caller: %v", err)
	}
	for _, shard := range n.router.Shards() {
		if req.Op == wire.OpPause {
			err = shard.Pause(caller)
		} else {
			err = shard.Unpause(caller)
		}
		if err != nil {
			return wire.Response{}, err
		}
	}
	return wire.Response{}, nil
}

// handleCollectFees sweeps retained fees from every shard to the
// operator.
func (n *Node) handleCollectFees(req wire.Request) (wire.Response, error) {
	caller, err := ident.ParsePrincipal(req.Caller)
	if err != nil {
		return wire.Response{}, badRequest("caller: %v", err)
	}
	var total uint64
	for _, shard := range n.router.Shards() {
		st := shard.Stats()
		if st.Retained == 0 {
			continue
		}
		if err := shard.CollectFees(caller, st.Retained); err != nil {
			return wire.Response{Balance: total}, err
		}
		total += st.Retained
	}
	return wire.Response{Balance: total}, nil
}

func (n *Node) handleCollectRegFees(req wire.Request) (wire.Response, error) {
	caller, err := ident.ParsePrincipal(req.Caller)
	if err != nil {
		return wire.Response{}, badRequest("caller: %v", err)
	}
	retained := n.registry.Retained()
	if retained == 0 {
		return wire.Response{}, nil
	}
	if err := n.registry.CollectFees(caller, retained); err != nil {
		return wire.Response{}, err
	}
	return wire.Response{Balance: retained}, nil
}

func (n *Node) handleAddShard(req wire.Request) (wire.Response, error) {
	caller, err := ident.ParsePrincipal(req.Caller)
	if err != nil {
		return wire.Response{}, badRequest("caller: %v", err)
	}
	idx, err := n.router.AddShard(caller)
	if err != nil {
		return wire.Response{}, err
	}
	n.log.Info("shard added", zap.Int("shard", idx))
	return wire.Response{Shard: idx}, nil
}

func (n *Node) countReject(kind string) {
	switch kind {
	case wire.KindInsufficientCredit, wire.KindInsufficientBalance,
		wire.KindAmountBelowFee, wire.KindInsufficientPayment:
		n.metrics.IncRejectEconomic()
	case wire.KindUnauthorized, wire.KindNotOwner, wire.KindInvalidSecret:
		n.metrics.IncRejectUnauthorized()
	case wire.KindPaused:
		n.metrics.IncRejectPaused()
	default:
		n.metrics.IncRejectValidation()
	}
}
