// ABOUTME: HTTP-level tests for the /admin REST surface

package admin

import (
	"archive/zip"
	"bytes"
	"context"
	"encoding/json"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/2389/skillserver/internal/auth"
	"github.com/2389/skillserver/internal/invocationlog"
	"github.com/2389/skillserver/internal/metastore"
	"github.com/2389/skillserver/internal/objectstore"
	"github.com/2389/skillserver/internal/skillcatalog"
)

const sampleSkillMD = `---
name: echo
description: echoes the provided message back to the caller
---

Echo body.
`

const adminTestToken = "test-token"

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

	verifier := auth.NewStaticVerifier(adminTestToken)

	return New(cat, objects, invLog, verifier)
}

func authedRequest(method, path string, body []byte) *http.Request {
	req := httptest.NewRequest(method, path, bytes.NewReader(body))
	req.Header.Set("Authorization", "Bearer "+adminTestToken)
	return req
}

func TestAdmin_ListSkills(t *testing.T) {
	s := newTestServer(t)
	handler := s.Handler()

	req := authedRequest(http.MethodGet, "/admin/skills", nil)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var out struct {
		Skills []map[string]any `json:"skills"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out))
	assert.Len(t, out.Skills, 1)
}

func TestAdmin_MissingTokenRejected(t *testing.T) {
	s := newTestServer(t)
	handler := s.Handler()

	req := httptest.NewRequest(http.MethodGet, "/admin/skills", nil)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestAdmin_InvalidTokenRejected(t *testing.T) {
	s := newTestServer(t)
	handler := s.Handler()

	req := httptest.NewRequest(http.MethodGet, "/admin/skills", nil)
	req.Header.Set("Authorization", "Bearer wrong-token")
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestAdmin_GetSkillAndInstructions(t *testing.T) {
	s := newTestServer(t)
	handler := s.Handler()

	req := authedRequest(http.MethodGet, "/admin/skills/echo", nil)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	req2 := authedRequest(http.MethodGet, "/admin/skills/echo/instructions", nil)
	rec2 := httptest.NewRecorder()
	handler.ServeHTTP(rec2, req2)
	assert.Equal(t, http.StatusOK, rec2.Code, rec2.Body.String())
}

func TestAdmin_GetUnknownSkillReturnsNotFound(t *testing.T) {
	s := newTestServer(t)
	handler := s.Handler()

	req := authedRequest(http.MethodGet, "/admin/skills/does-not-exist", nil)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestAdmin_VersionsListsPublishedVersion(t *testing.T) {
	s := newTestServer(t)
	handler := s.Handler()

	req := authedRequest(http.MethodGet, "/admin/skills/echo/versions", nil)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var out struct {
		Versions []int `json:"versions"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out))
	assert.Equal(t, []int{1}, out.Versions)
}

func TestAdmin_ReloadUnknownSkillReturnsNotFound(t *testing.T) {
	s := newTestServer(t)
	handler := s.Handler()

	req := authedRequest(http.MethodPost, "/admin/skills/does-not-exist/reload", nil)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestAdmin_RollbackUnknownVersionReturnsNotFound(t *testing.T) {
	s := newTestServer(t)
	handler := s.Handler()

	body, err := json.Marshal(map[string]int{"version": 99})
	require.NoError(t, err)
	req := authedRequest(http.MethodPost, "/admin/skills/echo/rollback", body)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusNotFound, rec.Code, rec.Body.String())
}

func TestAdmin_DeleteThenListOmitsSkill(t *testing.T) {
	s := newTestServer(t)
	handler := s.Handler()

	req := authedRequest(http.MethodDelete, "/admin/skills/echo", nil)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	listReq := authedRequest(http.MethodGet, "/admin/skills", nil)
	listRec := httptest.NewRecorder()
	handler.ServeHTTP(listRec, listReq)
	var out struct {
		Skills []map[string]any `json:"skills"`
	}
	require.NoError(t, json.Unmarshal(listRec.Body.Bytes(), &out))
	assert.Empty(t, out.Skills)
}

func multipartUpload(t *testing.T, id string, archive []byte) (*bytes.Buffer, string) {
	t.Helper()
	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)
	require.NoError(t, w.WriteField("id", id))
	fw, err := w.CreateFormFile("file", "skill.zip")
	require.NoError(t, err)
	_, err = fw.Write(archive)
	require.NoError(t, err)
	require.NoError(t, w.Close())
	return &buf, w.FormDataContentType()
}

func TestAdmin_UploadPublishesNewSkill(t *testing.T) {
	s := newTestServer(t)
	handler := s.Handler()

	body, contentType := multipartUpload(t, "greeter", buildZip(t))
	req := httptest.NewRequest(http.MethodPost, "/admin/skills/upload", body)
	req.Header.Set("Authorization", "Bearer "+adminTestToken)
	req.Header.Set("Content-Type", contentType)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var out struct {
		ID      string `json:"id"`
		Version int    `json:"version"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out))
	assert.Equal(t, "greeter", out.ID)
	assert.Equal(t, 1, out.Version)
}

func TestAdmin_ValidateDoesNotMutateCatalog(t *testing.T) {
	s := newTestServer(t)
	handler := s.Handler()

	body, contentType := multipartUpload(t, "never-published", buildZip(t))
	req := httptest.NewRequest(http.MethodPost, "/admin/skills/validate", body)
	req.Header.Set("Authorization", "Bearer "+adminTestToken)
	req.Header.Set("Content-Type", contentType)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var out struct {
		Valid bool `json:"valid"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out))
	assert.True(t, out.Valid, rec.Body.String())

	getReq := authedRequest(http.MethodGet, "/admin/skills/never-published", nil)
	getRec := httptest.NewRecorder()
	handler.ServeHTTP(getRec, getReq)
	assert.Equal(t, http.StatusNotFound, getRec.Code, "validate must not publish")
}

func TestAdmin_ReloadAllReloadsEveryActiveSkill(t *testing.T) {
	s := newTestServer(t)
	handler := s.Handler()

	req := authedRequest(http.MethodPost, "/admin/skills/reload-all", nil)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var out struct {
		Reloaded int `json:"reloaded"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out))
	assert.Equal(t, 1, out.Reloaded)
}

func TestAdmin_LogsEndpointReturnsEmptyForUninvokedSkill(t *testing.T) {
	s := newTestServer(t)
	handler := s.Handler()

	req := authedRequest(http.MethodGet, "/admin/skills/echo/logs?limit=10", nil)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var out struct {
		Logs []map[string]any `json:"logs"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out))
	assert.Empty(t, out.Logs)
}
