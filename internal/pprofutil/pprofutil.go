package pprofutil

import (
	"fmt"
	"net"
	"net/http"
	_ "net/http/pprof"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"
)

const defaultAddr = "127.0.0.1:6060"

var (
	startOnce sync.Once
	startErr  error
)

// Start starts an optional pprof HTTP server on a loopback address.
// An empty addr uses the default. Non-loopback binds are rejected so
// profiling never leaks onto a public interface by accident.
func Start(log *zap.Logger, addr string) error {
	startOnce.Do(func() {
		if addr == "" {
			addr = defaultAddr
		}
		if !isLoopbackBind(addr) {
			startErr = fmt.Errorf("pprof address must be loopback: %s", addr)
			return
		}
		ln, err := net.Listen("tcp", addr)
		if err != nil {
			startErr = fmt.Errorf("pprof listen failed: %w", err)
			return
		}
		actual := ln.Addr().String()
		if log != nil {
			log.Info("pprof enabled", zap.String("addr", actual))
		}
		srv := &http.Server{
			Addr:              actual,
			Handler:           http.DefaultServeMux,
			ReadHeaderTimeout: 5 * time.Second,
		}
		go func() {
			_ = srv.Serve(ln)
		}()
	})
	return startErr
}

func isLoopbackBind(addr string) bool {
	host, _, err := net.SplitHostPort(addr)
	if err != nil {
		return false
	}
	host = strings.TrimSpace(host)
	if strings.EqualFold(host, "localhost") {
		return true
	}
	ip := net.ParseIP(host)
	return ip != nil && ip.IsLoopback()
}
