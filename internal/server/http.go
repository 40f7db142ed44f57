package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/morezero/ableton-bridge/pkg/commsutil"
	"github.com/morezero/ableton-bridge/pkg/db"
	"github.com/morezero/ableton-bridge/pkg/dispatcher"
	"github.com/morezero/ableton-bridge/pkg/protocol"
	"github.com/morezero/ableton-bridge/pkg/registry"
	"github.com/morezero/ableton-bridge/pkg/stubs"
)

const httpLogPrefix = "server:http"

// maxBodySize bounds request bodies on the HTTP API.
const maxBodySize = 1 << 20

// Health statuses.
const (
	StatusHealthy  = "healthy"
	StatusDegraded = "degraded"
)

// HealthChecks holds per-dependency results. Database and Comms are absent
// when the dependency is not configured.
type HealthChecks struct {
	Host      bool   `json:"host"`
	HostError string `json:"hostError,omitempty"`
	Database  *bool  `json:"database,omitempty"`
	Comms     *bool  `json:"comms,omitempty"`
}

// StubsStatus summarizes the server-side stub store.
type StubsStatus struct {
	Enabled bool `json:"enabled"`
	Count   int  `json:"count"`
}

// HealthOutput is the /health document.
type HealthOutput struct {
	Status      string             `json:"status"`
	Backend     string             `json:"backend"`
	Checks      HealthChecks       `json:"checks"`
	Queue       dispatcher.Stats   `json:"queue"`
	Connections int                `json:"connections"`
	Served      uint64             `json:"served"`
	Stubs       StubsStatus        `json:"stubs"`
	Journal     *db.JournalSummary `json:"journal,omitempty"`
	Uptime      string             `json:"uptime"`
	Timestamp   string             `json:"timestamp"`
}

// Health probes the host backend, database and NATS connection.
func (s *Server) Health(ctx context.Context) *HealthOutput {
	h := &HealthOutput{
		Status:      StatusHealthy,
		Backend:     s.cfg.Backend,
		Queue:       s.executor.Stats(),
		Connections: s.Connections(),
		Served:      s.served.Load(),
		Stubs:       StubsStatus{Enabled: s.stubs.Enabled(), Count: s.stubs.Len()},
		Uptime:      time.Since(s.startedAt).Round(time.Second).String(),
		Timestamp:   time.Now().UTC().Format(time.RFC3339),
	}

	h.Checks.Host = true
	if err := s.executor.Ping(ctx); err != nil {
		h.Checks.Host = false
		h.Checks.HostError = protocol.MessageOf(err)
	}
	if s.journal != nil {
		ok := s.journal.Ping(ctx) == nil
		h.Checks.Database = &ok
		if ok {
			if sum, err := s.journal.Summary(ctx); err == nil {
				h.Journal = sum
			}
		}
	}
	if s.nc != nil {
		ok := s.nc.IsConnected()
		h.Checks.Comms = &ok
	}

	if !h.Checks.Host || (h.Checks.Database != nil && !*h.Checks.Database) || (h.Checks.Comms != nil && !*h.Checks.Comms) {
		h.Status = StatusDegraded
	}
	return h
}

// Handler returns the HTTP surface: health, status pages, the command API and
// stub management.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /{$}", s.handleHome())
	mux.HandleFunc("GET /command/{name}", s.handleCommandDetail())
	mux.HandleFunc("GET /docs", s.handleDocs())
	mux.HandleFunc("GET /health", s.handleHealth)
	mux.HandleFunc("GET /ready", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ready"})
	})

	mux.HandleFunc("GET /api/openapi.json", s.handleOpenAPI)
	mux.HandleFunc("GET /api/commands", s.handleListCommands)
	mux.HandleFunc("POST /api/commands/{name}", s.handleSendCommand)

	mux.HandleFunc("GET /api/stubs", s.handleListStubs)
	mux.HandleFunc("PUT /api/stubs/{name}", s.handlePutStub)
	mux.HandleFunc("DELETE /api/stubs/{name}", s.handleDeleteStub)
	mux.HandleFunc("DELETE /api/stubs", s.handleClearStubs)
	mux.HandleFunc("POST /api/stubs/enabled", s.handleSetStubsEnabled)
	mux.HandleFunc("POST /api/stubs/toggle", s.handleToggleStubs)
	return mux
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), s.cfg.HealthCheckTimeout)
	defer cancel()
	h := s.Health(ctx)
	status := http.StatusOK
	if h.Status != StatusHealthy {
		status = http.StatusServiceUnavailable
	}
	writeJSON(w, status, h)
}

// CommandInfo is one entry of GET /api/commands.
type CommandInfo struct {
	Name        string                 `json:"name"`
	Kind        registry.Kind          `json:"kind"`
	Description string                 `json:"description,omitempty"`
	Signature   string                 `json:"signature"`
	Params      []registry.Param       `json:"params"`
	Schema      map[string]interface{} `json:"schema"`
}

func commandInfo(e *registry.Entry) CommandInfo {
	params := e.Params
	if params == nil {
		params = []registry.Param{}
	}
	return CommandInfo{
		Name:        e.Name,
		Kind:        e.Kind,
		Description: e.Description,
		Signature:   e.Signature(),
		Params:      params,
		Schema:      e.Schema(),
	}
}

func (s *Server) handleListCommands(w http.ResponseWriter, _ *http.Request) {
	entries := s.reg.Entries()
	out := make([]CommandInfo, len(entries))
	for i, e := range entries {
		out[i] = commandInfo(e)
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"commands": out, "count": len(out)})
}

// handleSendCommand runs one command; the body is its params object. The
// reply is the same envelope the TCP transport sends, with an HTTP status
// derived from the error kind.
func (s *Server) handleSendCommand(w http.ResponseWriter, r *http.Request) {
	name := r.PathValue("name")
	params, err := readParams(r)
	if errors.Is(err, commsutil.ErrNotObject) {
		writeJSON(w, http.StatusUnprocessableEntity, protocol.Failure("", protocol.KindInvalidParams, err.Error()))
		return
	}
	if err != nil {
		writeJSON(w, http.StatusBadRequest, protocol.Failure("", protocol.KindProtocol, err.Error()))
		return
	}
	cmd := &protocol.Command{ID: r.Header.Get("X-Command-Id"), Name: name, Params: params}
	resp := s.disp.Dispatch(r.Context(), cmd)
	writeJSON(w, statusFor(resp), resp)
}

func statusFor(resp *protocol.Response) int {
	if resp.OK() || resp.Error == nil {
		return http.StatusOK
	}
	switch resp.Error.Kind {
	case protocol.KindUnknownCommand:
		return http.StatusNotFound
	case protocol.KindInvalidParams:
		return http.StatusUnprocessableEntity
	case protocol.KindProtocol:
		return http.StatusBadRequest
	default:
		return http.StatusBadGateway
	}
}

func readParams(r *http.Request) (map[string]interface{}, error) {
	raw, err := io.ReadAll(io.LimitReader(r.Body, maxBodySize))
	if err != nil {
		return nil, fmt.Errorf("failed to read body: %w", err)
	}
	params, err := commsutil.DecodeParams(raw)
	if err != nil {
		return nil, fmt.Errorf("invalid JSON params: %w", err)
	}
	return params, nil
}

type stubsOutput struct {
	Enabled bool          `json:"enabled"`
	Count   int           `json:"count"`
	Stubs   []stubs.Entry `json:"stubs"`
}

func (s *Server) stubsState() stubsOutput {
	list := s.stubs.List()
	return stubsOutput{Enabled: s.stubs.Enabled(), Count: len(list), Stubs: list}
}

func (s *Server) handleListStubs(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, s.stubsState())
}

func (s *Server) handlePutStub(w http.ResponseWriter, r *http.Request) {
	name := r.PathValue("name")
	raw, err := io.ReadAll(io.LimitReader(r.Body, maxBodySize))
	if err != nil {
		writeError(w, http.StatusBadRequest, fmt.Sprintf("failed to read body: %v", err))
		return
	}
	var result interface{}
	if err := commsutil.DecodePayload(raw, &result); err != nil {
		writeError(w, http.StatusBadRequest, fmt.Sprintf("body must be the JSON result to return: %v", err))
		return
	}
	s.stubs.Add(name, result)
	if _, known := s.reg.Lookup(name); !known {
		slog.Info(fmt.Sprintf("%s - Stub added for unregistered command %s", httpLogPrefix, name))
	} else {
		slog.Info(fmt.Sprintf("%s - Stub added for %s", httpLogPrefix, name))
	}
	writeJSON(w, http.StatusOK, s.stubsState())
}

func (s *Server) handleDeleteStub(w http.ResponseWriter, r *http.Request) {
	name := r.PathValue("name")
	removed := s.stubs.Remove(name)
	writeJSON(w, http.StatusOK, map[string]interface{}{"command": name, "removed": removed})
}

func (s *Server) handleClearStubs(w http.ResponseWriter, _ *http.Request) {
	s.stubs.Clear()
	slog.Info(fmt.Sprintf("%s - Stubs cleared", httpLogPrefix))
	writeJSON(w, http.StatusOK, s.stubsState())
}

func (s *Server) handleSetStubsEnabled(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Enabled *bool `json:"enabled"`
	}
	if err := json.NewDecoder(io.LimitReader(r.Body, maxBodySize)).Decode(&body); err != nil || body.Enabled == nil {
		writeError(w, http.StatusBadRequest, `body must be {"enabled": true|false}`)
		return
	}
	s.stubs.SetEnabled(*body.Enabled)
	writeJSON(w, http.StatusOK, s.stubsState())
}

func (s *Server) handleToggleStubs(w http.ResponseWriter, _ *http.Request) {
	s.stubs.Toggle()
	writeJSON(w, http.StatusOK, s.stubsState())
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	data, err := json.Marshal(v)
	if err != nil {
		slog.Error(fmt.Sprintf("%s - response encode: %v", httpLogPrefix, err))
		status = http.StatusBadGateway
		data, _ = json.Marshal(protocol.Failure("", protocol.KindHost, "result cannot be encoded as JSON"))
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	w.Write(append(data, '\n'))
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
