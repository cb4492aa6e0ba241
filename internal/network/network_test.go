package network

import (
	"context"
	"testing"
	"time"

	"go.uber.org/goleak"

	"credrelay/internal/wire"
)

func TestRequestResponseRoundTrip(t *testing.T) {
	defer goleak.VerifyNone(t, goleak.IgnoreCurrent())

	srv := NewServer(nil, func(req wire.Request) wire.Response {
		if req.Op != wire.OpDeposit || req.Amount != 42 {
			return wire.Response{OK: false, ErrorKind: wire.KindBadRequest}
		}
		return wire.Response{OK: true, Balance: 42}
	})

	ctx, cancel := context.WithCancel(context.Background())
	ready := make(chan struct{})
	done := make(chan error, 1)
	go func() {
		done <- srv.ListenAndServe(ctx, "127.0.0.1:0", ready)
	}()
	select {
	case <-ready:
	case <-time.After(5 * time.Second):
		t.Fatalf("server never became ready")
	}

	req := wire.NewRequest(wire.OpDeposit)
	req.Amount = 42
	resp, err := Do(context.Background(), srv.Addr().String(), req)
	if err != nil {
		t.Fatalf("request failed: %v", err)
	}
	if !resp.OK || resp.Balance != 42 {
		t.Fatalf("unexpected response: %+v", resp)
	}
	if resp.ID != req.ID {
		t.Fatalf("response id mismatch: %q vs %q", resp.ID, req.ID)
	}

	cancel()
	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("server exited with error: %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatalf("server did not shut down")
	}
}

func TestMalformedRequestGetsBadRequest(t *testing.T) {
	srv := NewServer(nil, func(req wire.Request) wire.Response {
		return wire.Response{OK: true}
	})
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	ready := make(chan struct{})
	go func() {
		_ = srv.ListenAndServe(ctx, "127.0.0.1:0", ready)
	}()
	select {
	case <-ready:
	case <-time.After(5 * time.Second):
		t.Fatalf("server never became ready")
	}

	// An unparseable op still travels as valid JSON, so the handler
	// decides; raw garbage is rejected at the envelope layer. Exercise
	// the handler path here with an empty op.
	resp, err := Do(context.Background(), srv.Addr().String(), wire.Request{ID: "x"})
	if err != nil {
		t.Fatalf("request failed: %v", err)
	}
	if !resp.OK {
		t.Fatalf("handler response expected, got %+v", resp)
	}
}
