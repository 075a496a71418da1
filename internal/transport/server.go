// ABOUTME: HTTP handlers for POST/GET/DELETE /mcp plus health/ready/info and the otelhttp-wrapped mux
// ABOUTME: net/http.Header canonicalizes header names, so the legacy lowercase Mcp-Session-Id variant is accepted for free

package transport

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/2389/skillserver/internal/mcpengine"
	"github.com/2389/skillserver/internal/session"
)

const sessionHeader = "Mcp-Session-Id"

const heartbeatInterval = 15 * time.Second

// ReadinessChecker reports whether the server is ready to serve traffic.
type ReadinessChecker func() error

// Info is the static payload served at GET /info.
type Info struct {
	Name             string   `json:"name"`
	Version          string   `json:"version"`
	ProtocolVersions []string `json:"protocol_versions"`
	StorageBackend   string   `json:"storage_backend"`
}

// Server wires the MCP HTTP surface.
type Server struct {
	engine   *mcpengine.Engine
	sessions *session.Registry
	logger   *slog.Logger
	info     Info
	ready    ReadinessChecker
}

// New creates a Server over the given engine and session registry.
func New(engine *mcpengine.Engine, sessions *session.Registry, info Info, ready ReadinessChecker) *Server {
	return &Server{
		engine:   engine,
		sessions: sessions,
		logger:   slog.Default().With("component", "transport"),
		info:     info,
		ready:    ready,
	}
}

// Handler builds the otelhttp-wrapped root mux.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/mcp", s.handleMCP)
	mux.HandleFunc("/health", s.handleHealth)
	mux.HandleFunc("/ready", s.handleReady)
	mux.HandleFunc("/info", s.handleInfo)
	mux.Handle("/metrics", promhttp.Handler())
	return otelhttp.NewHandler(mux, "skillserver")
}

func (s *Server) handleMCP(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodPost:
		s.handlePost(w, r)
	case http.MethodGet:
		s.handleGetStream(w, r)
	case http.MethodDelete:
		s.handleDelete(w, r)
	default:
		w.Header().Set("Allow", "GET, POST, DELETE")
		w.WriteHeader(http.StatusMethodNotAllowed)
	}
}

func (s *Server) handlePost(w http.ResponseWriter, r *http.Request) {
	var requests []mcpengine.Request
	if err := decodeOneOrMany(r, &requests); err != nil {
		writeJSONError(w, http.StatusBadRequest, "invalid JSON-RPC payload")
		return
	}
	if len(requests) == 0 {
		writeJSONError(w, http.StatusBadRequest, "empty JSON-RPC batch")
		return
	}

	sess, sessErr := s.resolveOrCreateSession(w, r, requests)
	if sessErr != nil {
		writeJSONError(w, http.StatusNotFound, sessErr.Error())
		return
	}

	wantsStream := acceptsEventStream(r)
	if wantsStream {
		s.streamResponses(w, r.Context(), sess, requests)
		return
	}

	responses := make([]*mcpengine.Response, 0, len(requests))
	for _, req := range requests {
		if resp := s.engine.Dispatch(r.Context(), sess, req); resp != nil {
			responses = append(responses, resp)
		}
	}

	w.Header().Set("Content-Type", "application/json")
	if len(responses) == 1 && len(requests) == 1 {
		json.NewEncoder(w).Encode(responses[0])
		return
	}
	json.NewEncoder(w).Encode(responses)
}

// resolveOrCreateSession resolves the session header against the registry,
// unless the batch contains a bare "initialize" call, in which case no
// session header is required yet — one is minted after the handshake in
// Dispatch's caller via the engine's InitializeResult, and the transport
// creates the registry entry here so it can attach the response header.
func (s *Server) resolveOrCreateSession(w http.ResponseWriter, r *http.Request, requests []mcpengine.Request) (*session.Session, error) {
	id := r.Header.Get(sessionHeader)
	if id != "" {
		sess, err := s.sessions.Get(id)
		if err != nil {
			return nil, fmt.Errorf("session-not-found")
		}
		return sess, nil
	}

	if len(requests) == 1 && requests[0].Method == "initialize" {
		var params mcpengine.InitializeParams
		json.Unmarshal(requests[0].Params, &params)
		sess := s.sessions.Create(params.ProtocolVersion, params.ClientInfo, params.Capabilities, mcpengine.ServerCapabilities)
		w.Header().Set(sessionHeader, sess.ID)
		return sess, nil
	}

	return nil, fmt.Errorf("session-not-found")
}

func (s *Server) streamResponses(w http.ResponseWriter, ctx context.Context, sess *session.Session, requests []mcpengine.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		writeJSONError(w, http.StatusInternalServerError, "streaming not supported")
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no")
	w.WriteHeader(http.StatusOK)

	for _, req := range requests {
		resp := s.engine.Dispatch(ctx, sess, req)
		if resp == nil {
			continue
		}
		writeSSEMessage(w, resp)
		flusher.Flush()
	}
	fmt.Fprint(w, ": end\n\n")
	flusher.Flush()
}

func (s *Server) handleGetStream(w http.ResponseWriter, r *http.Request) {
	id := r.Header.Get(sessionHeader)
	sess, err := s.sessions.Get(id)
	if err != nil {
		writeJSONError(w, http.StatusNotFound, "session-not-found")
		return
	}

	flusher, ok := w.(http.Flusher)
	if !ok {
		writeJSONError(w, http.StatusInternalServerError, "streaming not supported")
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no")
	w.WriteHeader(http.StatusOK)

	for _, n := range sess.DrainPending() {
		writeSSEMessage(w, map[string]any{"method": n.Method, "params": n.Params})
		flusher.Flush()
	}

	ticker := time.NewTicker(heartbeatInterval)
	defer ticker.Stop()

	ctx := r.Context()
	for {
		select {
		case <-ctx.Done():
			sess.Cancel()
			return
		case <-ticker.C:
			fmt.Fprint(w, ": ping\n\n")
			flusher.Flush()
		}
	}
}

func (s *Server) handleDelete(w http.ResponseWriter, r *http.Request) {
	id := r.Header.Get(sessionHeader)
	s.sessions.Close(id)
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
}

func (s *Server) handleReady(w http.ResponseWriter, r *http.Request) {
	if s.ready != nil {
		if err := s.ready(); err != nil {
			writeJSONError(w, http.StatusServiceUnavailable, err.Error())
			return
		}
	}
	w.WriteHeader(http.StatusOK)
}

func (s *Server) handleInfo(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(s.info)
}

func writeJSONError(w http.ResponseWriter, status int, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(map[string]string{"error": message})
}

func writeSSEMessage(w http.ResponseWriter, payload any) {
	data, err := json.Marshal(payload)
	if err != nil {
		return
	}
	fmt.Fprintf(w, "event: message\ndata: %s\n\n", data)
}

func acceptsEventStream(r *http.Request) bool {
	return r.Header.Get("Accept") == "text/event-stream"
}

// decodeOneOrMany decodes the request body as either a single JSON-RPC
// request object or a batched array, normalizing to a slice either way.
func decodeOneOrMany(r *http.Request, out *[]mcpengine.Request) error {
	dec := json.NewDecoder(r.Body)
	dec.UseNumber()

	var raw json.RawMessage
	if err := dec.Decode(&raw); err != nil {
		return err
	}

	trimmed := trimLeadingSpace(raw)
	if len(trimmed) > 0 && trimmed[0] == '[' {
		return json.Unmarshal(raw, out)
	}

	var single mcpengine.Request
	if err := json.Unmarshal(raw, &single); err != nil {
		return err
	}
	*out = []mcpengine.Request{single}
	return nil
}

func trimLeadingSpace(b []byte) []byte {
	i := 0
	for i < len(b) && (b[i] == ' ' || b[i] == '\t' || b[i] == '\n' || b[i] == '\r') {
		i++
	}
	return b[i:]
}
