// Package node assembles a relay node: the shard ledgers behind a
// router, the identity registry, the event log, and the two serving
// surfaces (QUIC operations, HTTP status).
package node

import (
	"context"
	"fmt"
	"net/http"
	"path/filepath"
	"time"

	"go.uber.org/zap"

	"credrelay/internal/config"
	"credrelay/internal/events"
	"credrelay/internal/ident"
	"credrelay/internal/ledger"
	"credrelay/internal/metrics"
	"credrelay/internal/network"
	"credrelay/internal/payout"
	"credrelay/internal/registry"
	"credrelay/internal/router"
)

type Node struct {
	cfg      config.Config
	log      *zap.Logger
	operator ident.Principal

	router   *router.Router
	registry *registry.Registry
	events   *events.Log
	metrics  *metrics.Metrics
	journal  *payout.Journal
}

// journalSink adapts the payout journal to the ledger/registry Sink
// shape.
type journalSink struct {
	j *payout.Journal
}

func (s journalSink) Pay(to ident.Principal, amount uint64) error {
	return s.j.Append(to.Hex(), amount)
}

func New(cfg config.Config, log *zap.Logger) (*Node, error) {
	if log == nil {
		log = zap.NewNop()
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	operator := cfg.OperatorPrincipal()

	evlog, err := events.NewLog(filepath.Join(cfg.DataDir, "events.jsonl"))
	if err != nil {
		return nil, fmt.Errorf("event log: %w", err)
	}
	journal, err := payout.NewJournal(filepath.Join(cfg.DataDir, "payouts.jsonl"))
	if err != nil {
		return nil, fmt.Errorf("payout journal: %w", err)
	}
	sink := journalSink{j: journal}

	reg, err := registry.New(registry.Config{
		Operator:           operator,
		RegistrationFee:    cfg.Fees.Registration,
		MaxFee:             cfg.Fees.Max,
		MaxEntriesPerOwner: cfg.Registry.MaxEntriesPerOwner,
		Sink:               sink,
		Events:             evlog,
	})
	if err != nil {
		return nil, fmt.Errorf("registry: %w", err)
	}

	factory := func(shard int) (*ledger.Ledger, error) {
		return ledger.New(ledger.Config{
			Shard:    shard,
			Operator: operator,
			Fees: ledger.FeeSchedule{
				Message:    cfg.Fees.Message,
				PerByte:    cfg.Fees.PerByte,
				Withdrawal: cfg.Fees.Withdrawal,
				MaxFee:     cfg.Fees.Max,
			},
			MaxPayload: cfg.MaxPayload,
			Sink:       sink,
			Events:     evlog,
		})
	}
	rt, err := router.New(operator, cfg.Shards, factory, evlog)
	if err != nil {
		return nil, fmt.Errorf("router: %w", err)
	}

	return &Node{
		cfg:      cfg,
		log:      log,
		operator: operator,
		router:   rt,
		registry: reg,
		events:   evlog,
		metrics:  metrics.New(),
		journal:  journal,
	}, nil
}

// Run serves QUIC operations and the HTTP status surface until ctx is
// cancelled.
func (n *Node) Run(ctx context.Context, ready chan<- struct{}) error {
	srv := network.NewServer(n.log, n.Handle)

	httpErr := make(chan error, 1)
	if n.cfg.ListenHTTP != "" {
		httpSrv := &http.Server{
			Addr:              n.cfg.ListenHTTP,
			Handler:           n.httpHandler(),
			ReadHeaderTimeout: 5 * time.Second,
		}
		go func() {
			n.log.Info("http listening", zap.String("addr", n.cfg.ListenHTTP))
			err := httpSrv.ListenAndServe()
			if err != nil && err != http.ErrServerClosed {
				httpErr <- err
			}
		}()
		go func() {
			<-ctx.Done()
			shutCtx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
			defer cancel()
			_ = httpSrv.Shutdown(shutCtx)
		}()
	}

	quicErr := make(chan error, 1)
	go func() {
		quicErr <- srv.ListenAndServe(ctx, n.cfg.ListenQUIC, ready)
	}()

	select {
	case err := <-quicErr:
		return err
	case err := <-httpErr:
		return fmt.Errorf("http: %w", err)
	}
}
