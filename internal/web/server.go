// Package web serves the node's status page, and the gateway's packet log
// when the embedded broker is running.
package web

import (
	"context"
	"encoding/json"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/sweeney/button-node/internal/broker"
	"github.com/sweeney/button-node/internal/status"
)

// Gateway is the packet log of an embedded gateway broker.
type Gateway interface {
	Heard() []broker.Heard
}

// HeardJSON is one gateway packet as served on /heard.json.
type HeardJSON struct {
	Received    string `json:"received"`
	Source      string `json:"source"`
	Dest        string `json:"dest"`
	Message     string `json:"message"`
	TimestampMs uint32 `json:"timestamp_ms"`
}

// Server serves node status over HTTP.
type Server struct {
	httpServer *http.Server
	tracker    *status.Tracker
	gateway    Gateway // nil without an embedded broker
}

// New creates a Server reading node state from tracker. gw may be nil.
func New(addr string, tracker *status.Tracker, gw Gateway) *Server {
	s := &Server{tracker: tracker, gateway: gw}

	routes := map[string]http.HandlerFunc{
		"/":           s.handleIndex,
		"/index.html": s.handleIndex,
		"/index.json": s.handleStatusJSON,
		"/heard.json": s.handleHeardJSON,
	}
	mux := http.NewServeMux()
	for path, h := range routes {
		mux.HandleFunc(path, getOnly(h))
	}

	s.httpServer = &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}
	return s
}

// ListenAndServe blocks until the server is shut down.
func (s *Server) ListenAndServe() error {
	return s.httpServer.ListenAndServe()
}

// Serve accepts connections on ln.
func (s *Server) Serve(ln net.Listener) error {
	return s.httpServer.Serve(ln)
}

// Shutdown stops the server, waiting for open requests up to ctx.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.httpServer.Shutdown(ctx)
}

func getOnly(h http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet && r.Method != http.MethodHead {
			w.Header().Set("Allow", "GET, HEAD")
			http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
			return
		}
		h(w, r)
	}
}

func (s *Server) handleIndex(w http.ResponseWriter, r *http.Request) {
	// "/" is the mux catch-all
	if r.URL.Path != "/" && r.URL.Path != "/index.html" {
		http.NotFound(w, r)
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	renderHTML(w, s.tracker.Snapshot(), s.heard())
}

func (s *Server) handleStatusJSON(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.Write(status.FormatJSON(s.tracker.Snapshot()))
}

func (s *Server) handleHeardJSON(w http.ResponseWriter, r *http.Request) {
	if s.gateway == nil {
		http.Error(w, "no embedded gateway", http.StatusNotFound)
		return
	}
	data, _ := json.MarshalIndent(s.heard(), "", "  ")
	w.Header().Set("Content-Type", "application/json")
	w.Write(data)
}

// heard returns the gateway log newest first, or nil without a gateway.
func (s *Server) heard() []HeardJSON {
	if s.gateway == nil {
		return nil
	}
	log := s.gateway.Heard()
	out := make([]HeardJSON, 0, len(log))
	for i := len(log) - 1; i >= 0; i-- {
		h := log[i]
		out = append(out, HeardJSON{
			Received:    h.Received.UTC().Format(time.RFC3339),
			Source:      fmt.Sprintf("%02x", h.Address.Source),
			Dest:        fmt.Sprintf("%02x", uint32(h.Address.Dest)),
			Message:     h.Message,
			TimestampMs: h.TimestampMs,
		})
	}
	return out
}
