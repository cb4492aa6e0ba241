package network

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	quic "github.com/quic-go/quic-go"

	"credrelay/internal/wire"
)

const requestTimeout = 8 * time.Second

// Do sends one request to a node and waits for its response. One
// connection and one stream per call; the CLI has no use for a pool.
func Do(ctx context.Context, addr string, req wire.Request) (wire.Response, error) {
	ctx, cancel := context.WithTimeout(ctx, requestTimeout)
	defer cancel()

	tlsConf, err := clientTLSConfig()
	if err != nil {
		return wire.Response{}, err
	}
	conn, err := quic.DialAddr(ctx, addr, tlsConf, nil)
	if err != nil {
		return wire.Response{}, fmt.Errorf("dial %s: %w", addr, err)
	}
	defer conn.CloseWithError(0, "")

	stream, err := conn.OpenStreamSync(ctx)
	if err != nil {
		return wire.Response{}, err
	}
	defer stream.Close()
	if deadline, ok := ctx.Deadline(); ok {
		_ = stream.SetDeadline(deadline)
	}

	data, err := json.Marshal(req)
	if err != nil {
		return wire.Response{}, err
	}
	if err := wire.WriteFrame(stream, data); err != nil {
		return wire.Response{}, err
	}

	respData, err := wire.ReadFrame(stream)
	if err != nil {
		return wire.Response{}, err
	}
	var resp wire.Response
	if err := json.Unmarshal(respData, &resp); err != nil {
		return wire.Response{}, fmt.Errorf("malformed response: %v", err)
	}
	if resp.ID != "" && resp.ID != req.ID {
		return wire.Response{}, fmt.Errorf("response id mismatch")
	}
	return resp, nil
}
