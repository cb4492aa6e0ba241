package node

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
)

// Read-only status surface. Everything mutating goes over QUIC.
func (n *Node) httpHandler() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(10 * time.Second))

	r.Get("/status", n.handleHTTPStatus)
	r.Get("/metrics", n.handleHTTPMetrics)
	r.Get("/shards", n.handleHTTPShards)
	r.Get("/events/recent", n.handleHTTPRecentEvents)
	return r
}

func (n *Node) handleHTTPStatus(w http.ResponseWriter, r *http.Request) {
	agg := n.router.AggregateStats()
	writeJSON(w, map[string]any{
		"generated_at":      time.Now().UTC(),
		"shards":            agg.Shards,
		"messages":          agg.Messages,
		"deposited":         agg.Deposited,
		"accounts":          agg.Accounts,
		"retained":          agg.Retained,
		"registry_retained": n.registry.Retained(),
	})
}

func (n *Node) handleHTTPMetrics(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, n.metrics.Snapshot())
}

func (n *Node) handleHTTPShards(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, n.router.ShardStats())
}

func (n *Node) handleHTTPRecentEvents(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, n.events.Recent())
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	_ = enc.Encode(v)
}
