// ABOUTME: HTTP-level tests for the /mcp initialize handshake and session header handling

package transport

import (
	"archive/zip"
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/2389/skillserver/internal/invocationlog"
	"github.com/2389/skillserver/internal/mcpengine"
	"github.com/2389/skillserver/internal/metastore"
	"github.com/2389/skillserver/internal/objectstore"
	"github.com/2389/skillserver/internal/session"
	"github.com/2389/skillserver/internal/skillcatalog"
)

const sampleSkillMD = `---
name: echo
description: echoes the provided message back to the caller
---

Echo body.
`

func buildZip(t *testing.T) []byte {
	t.Helper()
	var buf bytes.Buffer
	w := zip.NewWriter(&buf)
	f, err := w.Create("SKILL.md")
	require.NoError(t, err)
	_, err = f.Write([]byte(sampleSkillMD))
	require.NoError(t, err)
	require.NoError(t, w.Close())
	return buf.Bytes()
}

func newTestServer(t *testing.T) *Server {
	t.Helper()
	objects, err := objectstore.NewLocalStore(filepath.Join(t.TempDir(), "objects"))
	require.NoError(t, err)
	t.Cleanup(func() { objects.Close() })

	meta, err := metastore.NewSQLiteStore(filepath.Join(t.TempDir(), "meta.db"))
	require.NoError(t, err)
	t.Cleanup(func() { meta.Close() })

	invLog, err := invocationlog.NewSQLiteStore(filepath.Join(t.TempDir(), "log.db"))
	require.NoError(t, err)
	t.Cleanup(func() { invLog.Close() })

	cat := skillcatalog.New(objects, meta)
	_, err = cat.Publish(context.Background(), "echo", buildZip(t))
	require.NoError(t, err)

	registry := session.NewRegistry(15*time.Minute, 24*time.Hour)
	queue := invocationlog.NewQueue(invLog, 0, time.Hour)
	engine := mcpengine.New(cat, registry, objects, meta, queue, 30*time.Second)

	return New(engine, registry, Info{Name: "skillserver"}, func() error { return nil })
}

func TestServer_InitializeAssignsSessionHeader(t *testing.T) {
	s := newTestServer(t)
	handler := s.Handler()

	body, err := json.Marshal(mcpengine.Request{
		JSONRPC: "2.0", ID: json.RawMessage("1"), Method: "initialize",
		Params: json.RawMessage(`{"protocolVersion":"2025-06-18"}`),
	})
	require.NoError(t, err)
	req := httptest.NewRequest(http.MethodPost, "/mcp", bytes.NewReader(body))
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.NotEmpty(t, rec.Header().Get(sessionHeader), "expected Mcp-Session-Id response header to be set")
}

func TestServer_LowercaseSessionHeaderAccepted(t *testing.T) {
	s := newTestServer(t)
	handler := s.Handler()

	initBody, err := json.Marshal(mcpengine.Request{
		JSONRPC: "2.0", ID: json.RawMessage("1"), Method: "initialize",
		Params: json.RawMessage(`{"protocolVersion":"2025-06-18"}`),
	})
	require.NoError(t, err)
	initReq := httptest.NewRequest(http.MethodPost, "/mcp", bytes.NewReader(initBody))
	initRec := httptest.NewRecorder()
	handler.ServeHTTP(initRec, initReq)
	sessionID := initRec.Header().Get(sessionHeader)

	pingBody, err := json.Marshal(mcpengine.Request{JSONRPC: "2.0", ID: json.RawMessage("2"), Method: "ping"})
	require.NoError(t, err)
	pingReq := httptest.NewRequest(http.MethodPost, "/mcp", bytes.NewReader(pingBody))
	pingReq.Header.Set("mcp-session-id", sessionID)
	pingRec := httptest.NewRecorder()
	handler.ServeHTTP(pingRec, pingReq)

	assert.Equal(t, http.StatusOK, pingRec.Code, pingRec.Body.String())
}

func TestServer_UnknownSessionReturnsNotFound(t *testing.T) {
	s := newTestServer(t)
	handler := s.Handler()

	body, err := json.Marshal(mcpengine.Request{JSONRPC: "2.0", ID: json.RawMessage("1"), Method: "ping"})
	require.NoError(t, err)
	req := httptest.NewRequest(http.MethodPost, "/mcp", bytes.NewReader(body))
	req.Header.Set(sessionHeader, "does-not-exist")
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestServer_DeleteClosesSession(t *testing.T) {
	s := newTestServer(t)
	handler := s.Handler()

	sess := s.sessions.Create("2025-06-18", nil, nil, nil)

	req := httptest.NewRequest(http.MethodDelete, "/mcp", nil)
	req.Header.Set(sessionHeader, sess.ID)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusNoContent, rec.Code)
	_, err := s.sessions.Get(sess.ID)
	assert.Error(t, err, "expected session to be closed after DELETE")
}

func TestServer_HealthAndReady(t *testing.T) {
	s := newTestServer(t)
	handler := s.Handler()

	for _, path := range []string{"/health", "/ready", "/info"} {
		req := httptest.NewRequest(http.MethodGet, path, nil)
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, req)
		assert.Equal(t, http.StatusOK, rec.Code, path)
	}
}
