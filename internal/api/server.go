package api

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"path/filepath"
	"strings"

	"github.com/pi-agent/pi-exthost/internal/config"
	"github.com/pi-agent/pi-exthost/internal/domain"
	"github.com/pi-agent/pi-exthost/internal/hostcall"
	"github.com/pi-agent/pi-exthost/internal/logging"
	"github.com/pi-agent/pi-exthost/internal/manager"
	"github.com/pi-agent/pi-exthost/internal/metrics"
	"github.com/pi-agent/pi-exthost/internal/observability"
)

// ServerConfig holds the dependencies StartHTTPServer wires into the
// handler.
type ServerConfig struct {
	Manager *manager.Manager
	VFS     config.VFSConfig
	Runtime config.RuntimeConfig
}

// Handler implements the HTTP control surface.
type Handler struct {
	manager *manager.Manager
	loader  *ExtensionLoader
}

// StartHTTPServer builds the mux, wraps it in the tracing middleware, and
// starts listening. The caller owns the returned *http.Server's lifecycle
// (Shutdown on signal).
func StartHTTPServer(addr string, cfg ServerConfig) *http.Server {
	h := &Handler{
		manager: cfg.Manager,
		loader: &ExtensionLoader{
			Manager: cfg.Manager,
			VFS:     cfg.VFS,
			Runtime: cfg.Runtime,
		},
	}

	mux := http.NewServeMux()
	h.RegisterRoutes(mux)

	var handler http.Handler = mux
	handler = observability.HTTPMiddleware(handler)

	srv := &http.Server{Addr: addr, Handler: handler}
	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logging.Op().Error("http server stopped", "error", err)
		}
	}()
	return srv
}

// RegisterRoutes attaches the control surface to mux.
func (h *Handler) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("/healthz", h.handleHealthz)
	mux.HandleFunc("/v1/extensions/load", h.handleLoadExtension)
	mux.HandleFunc("/v1/capabilities", h.handleCapabilities)
	mux.HandleFunc("/v1/events/", h.handleDispatchEvent)
	mux.Handle("/metrics", metrics.Global().JSONHandler())
	mux.Handle("/metrics/prometheus", metrics.PrometheusHandler())
}

func (h *Handler) handleHealthz(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (h *Handler) handleCapabilities(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.manager.Snapshot())
}

type loadExtensionRequest struct {
	EntryPath   string `json:"entry_path"`
	ExtensionID string `json:"extension_id,omitempty"`
}

func (h *Handler) handleLoadExtension(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	var req loadExtensionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid JSON", http.StatusBadRequest)
		return
	}
	if req.EntryPath == "" {
		http.Error(w, "entry_path is required", http.StatusBadRequest)
		return
	}
	extID := req.ExtensionID
	if extID == "" {
		base := filepath.Base(req.EntryPath)
		extID = strings.TrimSuffix(base, filepath.Ext(base))
	}

	payload, err := h.loader.LoadFromPath(r.Context(), extID, req.EntryPath)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, payload)
}

// handleDispatchEvent routes POST /v1/events/{name} to the typed dispatch
// method matching the event decision table. The body is the raw
// event payload; the correlation carries only the event name as its
// event_id, since the HTTP surface has no caller-supplied session/run
// context of its own.
func (h *Handler) handleDispatchEvent(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	name := strings.TrimPrefix(r.URL.Path, "/v1/events/")
	if name == "" {
		http.Error(w, "missing event name", http.StatusBadRequest)
		return
	}
	var raw json.RawMessage
	if err := json.NewDecoder(r.Body).Decode(&raw); err != nil && !errors.Is(err, io.EOF) {
		http.Error(w, "invalid JSON", http.StatusBadRequest)
		return
	}

	ctx := r.Context()
	corr := hostcall.Correlation{EventID: name}
	result, err := h.dispatch(ctx, domain.EventName(name), raw, corr)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

func (h *Handler) dispatch(ctx context.Context, name domain.EventName, raw json.RawMessage, corr hostcall.Correlation) (any, error) {
	switch name {
	case domain.EventToolCall:
		var payload domain.ToolCallPayload
		if err := json.Unmarshal(raw, &payload); err != nil {
			return nil, err
		}
		return h.manager.DispatchToolCall(ctx, payload, corr)
	case domain.EventToolResult:
		var payload domain.ToolResultPayload
		if err := json.Unmarshal(raw, &payload); err != nil {
			return nil, err
		}
		return h.manager.DispatchToolResult(ctx, payload, corr)
	case domain.EventInput:
		var payload domain.InputPayload
		if err := json.Unmarshal(raw, &payload); err != nil {
			return nil, err
		}
		return h.manager.DispatchInput(ctx, payload, corr)
	case domain.EventTurnStart, domain.EventSessionBeforeSwitch, domain.EventSessionBeforeFork:
		cancelled, reason, err := h.manager.DispatchCancellableEvent(ctx, name, raw, corr)
		if err != nil {
			return nil, err
		}
		return map[string]any{"cancelled": cancelled, "reason": reason}, nil
	default:
		errs := h.manager.DispatchEvent(ctx, name, raw, corr)
		if len(errs) > 0 {
			return nil, errs[0]
		}
		return map[string]any{"dispatched": true}, nil
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}
