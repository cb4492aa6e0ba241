// Package metrics counts relay activity with lock-free counters and
// writes JSON snapshots for the status surface.
package metrics

import (
	"encoding/json"
	"os"
	"sync/atomic"
	"time"
)

type Snapshot struct {
	GeneratedAt time.Time     `json:"generated_at"`
	Ledger      LedgerMetrics `json:"ledger"`
	Registry    RegMetrics    `json:"registry"`
	Rejects     RejectMetrics `json:"rejects"`
}

type LedgerMetrics struct {
	Deposits    uint64 `json:"deposits"`
	Messages    uint64 `json:"messages"`
	Withdrawals uint64 `json:"withdrawals"`
	Batches     uint64 `json:"batches"`
}

type RegMetrics struct {
	Registrations uint64 `json:"registrations"`
	Lookups       uint64 `json:"lookups"`
	Rotations     uint64 `json:"rotations"`
}

type RejectMetrics struct {
	Validation   uint64 `json:"validation"`
	Economic     uint64 `json:"economic"`
	Unauthorized uint64 `json:"unauthorized"`
	Paused       uint64 `json:"paused"`
}

type Metrics struct {
	deposits    atomic.Uint64
	messages    atomic.Uint64
	withdrawals atomic.Uint64
	batches     atomic.Uint64

	registrations atomic.Uint64
	lookups       atomic.Uint64
	rotations     atomic.Uint64

	rejValidation   atomic.Uint64
	rejEconomic     atomic.Uint64
	rejUnauthorized atomic.Uint64
	rejPaused       atomic.Uint64
}

func New() *Metrics {
	return &Metrics{}
}

func (m *Metrics) IncDeposit()      { m.deposits.Add(1) }
func (m *Metrics) IncMessage()      { m.messages.Add(1) }
func (m *Metrics) IncWithdrawal()   { m.withdrawals.Add(1) }
func (m *Metrics) IncBatch()        { m.batches.Add(1) }
func (m *Metrics) IncRegistration() { m.registrations.Add(1) }
func (m *Metrics) IncLookup()       { m.lookups.Add(1) }
func (m *Metrics) IncRotation()     { m.rotations.Add(1) }

func (m *Metrics) IncRejectValidation()   { m.rejValidation.Add(1) }
func (m *Metrics) IncRejectEconomic()     { m.rejEconomic.Add(1) }
func (m *Metrics) IncRejectUnauthorized() { m.rejUnauthorized.Add(1) }
func (m *Metrics) IncRejectPaused()       { m.rejPaused.Add(1) }

func (m *Metrics) Snapshot() Snapshot {
	return Snapshot{
		GeneratedAt: time.Now().UTC(),
		Ledger: LedgerMetrics{
			Deposits:    m.deposits.Load(),
			Messages:    m.messages.Load(),
			Withdrawals: m.withdrawals.Load(),
			Batches:     m.batches.Load(),
		},
		Registry: RegMetrics{
			Registrations: m.registrations.Load(),
			Lookups:       m.lookups.Load(),
			Rotations:     m.rotations.Load(),
		},
		Rejects: RejectMetrics{
			Validation:   m.rejValidation.Load(),
			Economic:     m.rejEconomic.Load(),
			Unauthorized: m.rejUnauthorized.Load(),
			Paused:       m.rejPaused.Load(),
		},
	}
}

func (m *Metrics) WriteSnapshot(path string) error {
	if path == "" {
		return nil
	}
	data, err := json.MarshalIndent(m.Snapshot(), "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0600)
}
