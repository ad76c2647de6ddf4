package api

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/pi-agent/pi-exthost/internal/config"
	"github.com/pi-agent/pi-exthost/internal/manager"
	"github.com/stretchr/testify/require"
)

func newTestHandler(t *testing.T) (*Handler, *manager.Manager) {
	t.Helper()
	mgr := manager.New(nil, nil)
	h := &Handler{
		manager: mgr,
		loader: &ExtensionLoader{
			Manager: mgr,
			Runtime: config.RuntimeConfig{DefaultTimeout: 2 * time.Second},
		},
	}
	return h, mgr
}

func TestHandleHealthz(t *testing.T) {
	h, _ := newTestHandler(t)
	mux := http.NewServeMux()
	h.RegisterRoutes(mux)

	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	var body map[string]string
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	require.Equal(t, "ok", body["status"])
}

func TestHandleLoadExtensionAndDispatchEvent(t *testing.T) {
	h, _ := newTestHandler(t)
	mux := http.NewServeMux()
	h.RegisterRoutes(mux)

	dir := t.TempDir()
	entryPath := filepath.Join(dir, "ext.js")
	require.NoError(t, os.WriteFile(entryPath, []byte(`
function init(pi) {
  pi.on("tool_call", function(payload) {
    return { block: true, reason: "blocked by test extension" };
  });
}
`), 0o644))

	loadBody, _ := json.Marshal(loadExtensionRequest{EntryPath: entryPath, ExtensionID: "ext-http"})
	req := httptest.NewRequest(http.MethodPost, "/v1/extensions/load", bytes.NewReader(loadBody))
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	dispatchBody := []byte(`{"toolName":"danger","toolCallId":"call-1"}`)
	req = httptest.NewRequest(http.MethodPost, "/v1/events/tool_call", bytes.NewReader(dispatchBody))
	rec = httptest.NewRecorder()
	mux.ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var result struct {
		Block  bool   `json:"block"`
		Reason string `json:"reason"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &result))
	require.True(t, result.Block)
	require.Equal(t, "blocked by test extension", result.Reason)
}

func TestHandleCapabilitiesReturnsSnapshot(t *testing.T) {
	h, _ := newTestHandler(t)
	mux := http.NewServeMux()
	h.RegisterRoutes(mux)

	req := httptest.NewRequest(http.MethodGet, "/v1/capabilities", nil)
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	var snap map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &snap))
	require.Contains(t, snap, "commands")
}
