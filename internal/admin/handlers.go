// ABOUTME: REST handlers for the /admin skill management surface
// ABOUTME: Bearer-token gated via auth.TokenVerifier, using net/http's r.PathValue route parameters

package admin

import (
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"strings"

	"github.com/2389/skillserver/internal/auth"
	"github.com/2389/skillserver/internal/catalog"
	"github.com/2389/skillserver/internal/invocationlog"
	"github.com/2389/skillserver/internal/objectstore"
	"github.com/2389/skillserver/internal/skillcatalog"
)

const maxUploadBytes = 10*1024*1024 + 4096 // package limit plus headroom for zip overhead

// Server implements the /admin REST surface.
type Server struct {
	catalog  *skillcatalog.Catalog
	objects  objectstore.ObjectStore
	logs     invocationlog.Store
	verifier auth.TokenVerifier
	logger   *slog.Logger
}

// New creates an admin Server gated by verifier.
func New(cat *skillcatalog.Catalog, objects objectstore.ObjectStore, logs invocationlog.Store, verifier auth.TokenVerifier) *Server {
	return &Server{
		catalog:  cat,
		objects:  objects,
		logs:     logs,
		verifier: verifier,
		logger:   slog.Default().With("component", "admin"),
	}
}

// Handler builds the /admin mux, each route wrapped by bearer auth.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /admin/skills", s.requireAuth(s.handleList))
	mux.HandleFunc("GET /admin/skills/{id}", s.requireAuth(s.handleGet))
	mux.HandleFunc("GET /admin/skills/{id}/instructions", s.requireAuth(s.handleInstructions))
	mux.HandleFunc("GET /admin/skills/{id}/logs", s.requireAuth(s.handleLogs))
	mux.HandleFunc("GET /admin/skills/{id}/versions", s.requireAuth(s.handleVersions))
	mux.HandleFunc("POST /admin/skills/{id}/reload", s.requireAuth(s.handleReload))
	mux.HandleFunc("POST /admin/skills/{id}/rollback", s.requireAuth(s.handleRollback))
	mux.HandleFunc("DELETE /admin/skills/{id}", s.requireAuth(s.handleDelete))
	mux.HandleFunc("POST /admin/skills/upload", s.requireAuth(s.handleUpload))
	mux.HandleFunc("POST /admin/skills/validate", s.requireAuth(s.handleValidate))
	mux.HandleFunc("POST /admin/skills/reload-all", s.requireAuth(s.handleReloadAll))
	return mux
}

func (s *Server) requireAuth(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		token := strings.TrimPrefix(r.Header.Get("Authorization"), "Bearer ")
		if token == "" || token == r.Header.Get("Authorization") {
			writeError(w, http.StatusUnauthorized, "missing bearer token")
			return
		}
		if _, err := s.verifier.Verify(token); err != nil {
			writeError(w, http.StatusUnauthorized, "invalid bearer token")
			return
		}
		next(w, r)
	}
}

func (s *Server) handleList(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"skills": s.catalog.List()})
}

func (s *Server) handleGet(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	skill, err := s.catalog.Get(id)
	if err != nil {
		writeError(w, http.StatusNotFound, "skill not found")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"skill": skill})
}

func (s *Server) handleInstructions(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	skill, err := s.catalog.Get(id)
	if err != nil {
		writeError(w, http.StatusNotFound, "skill not found")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"instructions": skill.Instructions})
}

func (s *Server) handleLogs(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	limit := 100
	if raw := r.URL.Query().Get("limit"); raw != "" {
		if n, err := strconv.Atoi(raw); err == nil && n > 0 {
			limit = n
		}
	}
	events, err := s.logs.Query(r.Context(), id, nil, limit)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "fetching logs failed")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"logs": events})
}

func (s *Server) handleVersions(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	versions, err := s.objects.ListVersions(r.Context(), id)
	if err != nil {
		writeError(w, http.StatusNotFound, "skill not found")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"versions": versions})
}

func (s *Server) handleReload(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if _, err := s.catalog.Reload(r.Context(), id); err != nil {
		writeError(w, http.StatusNotFound, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"ok": true})
}

func (s *Server) handleRollback(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	var body struct {
		Version int `json:"version"`
	}
	if err := json.NewDecoder(io.LimitReader(r.Body, 4096)).Decode(&body); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if _, err := s.catalog.Rollback(r.Context(), id, body.Version); err != nil {
		if errors.Is(err, skillcatalog.ErrVersionNotFound) {
			writeError(w, http.StatusNotFound, "version not found")
			return
		}
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"ok": true})
}

func (s *Server) handleDelete(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if err := s.catalog.Unload(r.Context(), id); err != nil {
		writeError(w, http.StatusNotFound, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"ok": true})
}

func (s *Server) handleUpload(w http.ResponseWriter, r *http.Request) {
	id, archive, ok := s.parseUpload(w, r)
	if !ok {
		return
	}
	skill, err := s.catalog.Publish(r.Context(), id, archive)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"id": skill.ID, "version": skill.Version})
}

func (s *Server) handleValidate(w http.ResponseWriter, r *http.Request) {
	id, archive, ok := s.parseUpload(w, r)
	if !ok {
		return
	}
	skill, err := s.catalog.Validate(id, archive)
	if err != nil {
		writeJSON(w, http.StatusOK, map[string]any{"valid": false, "errors": []string{err.Error()}})
		return
	}
	if skill.Status == catalog.StatusError {
		writeJSON(w, http.StatusOK, map[string]any{"valid": false, "errors": []string{skill.LoadError}})
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"valid": true, "errors": []string{}})
}

func (s *Server) handleReloadAll(w http.ResponseWriter, r *http.Request) {
	reloaded := 0
	for _, skill := range s.catalog.List() {
		if _, err := s.catalog.Reload(r.Context(), skill.ID); err == nil {
			reloaded++
		} else {
			s.logger.Warn("reload-all failed for skill", "skill_id", skill.ID, "error", err)
		}
	}
	writeJSON(w, http.StatusOK, map[string]any{"reloaded": reloaded})
}

func (s *Server) parseUpload(w http.ResponseWriter, r *http.Request) (id string, archive []byte, ok bool) {
	r.Body = http.MaxBytesReader(w, r.Body, maxUploadBytes)
	if err := r.ParseMultipartForm(maxUploadBytes); err != nil {
		writeError(w, http.StatusBadRequest, "invalid multipart upload")
		return "", nil, false
	}

	id = r.FormValue("id")
	if id == "" {
		writeError(w, http.StatusBadRequest, "missing id field")
		return "", nil, false
	}

	file, _, err := r.FormFile("file")
	if err != nil {
		writeError(w, http.StatusBadRequest, "missing file field")
		return "", nil, false
	}
	defer file.Close()

	data, err := io.ReadAll(file)
	if err != nil {
		writeError(w, http.StatusBadRequest, "reading uploaded file failed")
		return "", nil, false
	}
	return id, data, true
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}
