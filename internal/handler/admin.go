package handler

import (
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/awsl-project/appforge/internal/domain"
	"github.com/awsl-project/appforge/internal/jsonx"
	"github.com/awsl-project/appforge/internal/service"
)

// AdminHandler handles admin API requests over HTTP
// Delegates business logic to AdminService
type AdminHandler struct {
	svc     *service.AdminService
	logPath string
}

// NewAdminHandler creates a new admin handler
func NewAdminHandler(svc *service.AdminService, logPath string) *AdminHandler {
	return &AdminHandler{
		svc:     svc,
		logPath: logPath,
	}
}

// ServeHTTP routes admin requests mounted under /api
func (h *AdminHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	path := strings.TrimPrefix(r.URL.Path, "/api")
	path = strings.TrimSuffix(path, "/")

	parts := strings.Split(path, "/")
	if len(parts) < 2 {
		writeJSON(w, http.StatusNotFound, map[string]string{"error": "not found"})
		return
	}

	switch parts[1] {
	case "models":
		h.handleModels(w, r)
	case "generations":
		h.handleGenerations(w, r, parts)
	case "projects":
		h.handleProjects(w, r, parts)
	case "sandboxes":
		h.handleSandboxes(w, r, parts)
	case "cooldowns":
		h.handleCooldowns(w, r, parts)
	case "logs":
		h.handleLogs(w, r)
	default:
		writeJSON(w, http.StatusNotFound, map[string]string{"error": "not found"})
	}
}

// GET /api/models
func (h *AdminHandler) handleModels(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeJSON(w, http.StatusMethodNotAllowed, map[string]string{"error": "method not allowed"})
		return
	}
	writeJSON(w, http.StatusOK, h.svc.GetModels())
}

// Generation handlers
// GET /api/generations?limit=&offset=
// GET /api/generations/{id}
// GET /api/generations?conversationId=
func (h *AdminHandler) handleGenerations(w http.ResponseWriter, r *http.Request, parts []string) {
	if r.Method != http.MethodGet {
		writeJSON(w, http.StatusMethodNotAllowed, map[string]string{"error": "method not allowed"})
		return
	}

	if len(parts) > 2 && parts[2] != "" {
		id, err := strconv.ParseUint(parts[2], 10, 64)
		if err != nil {
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid generation id"})
			return
		}
		detail, err := h.svc.GetGeneration(id)
		if err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, detail)
		return
	}

	q := r.URL.Query()
	limit, _ := strconv.Atoi(q.Get("limit"))
	if conv := q.Get("conversationId"); conv != "" {
		items, err := h.svc.GetConversationGenerations(conv, limit)
		if err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, items)
		return
	}

	offset, _ := strconv.Atoi(q.Get("offset"))
	page, err := h.svc.GetGenerations(limit, offset)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, page)
}

// Project handlers
// GET    /api/projects
// GET    /api/projects/{conversationId}
// DELETE /api/projects/{conversationId}
// GET    /api/projects/{conversationId}/snapshots
// GET    /api/projects/{conversationId}/snapshots/{snapshotId}
func (h *AdminHandler) handleProjects(w http.ResponseWriter, r *http.Request, parts []string) {
	if len(parts) < 3 || parts[2] == "" {
		if r.Method != http.MethodGet {
			writeJSON(w, http.StatusMethodNotAllowed, map[string]string{"error": "method not allowed"})
			return
		}
		projects, err := h.svc.GetProjects()
		if err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, projects)
		return
	}

	conv := parts[2]
	if len(parts) > 3 && parts[3] == "snapshots" {
		h.handleSnapshots(w, r, conv, parts)
		return
	}

	switch r.Method {
	case http.MethodGet:
		project, err := h.svc.GetProject(conv)
		if err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, project)
	case http.MethodDelete:
		if err := h.svc.DeleteProject(r.Context(), conv); err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]string{"message": "project deleted"})
	default:
		writeJSON(w, http.StatusMethodNotAllowed, map[string]string{"error": "method not allowed"})
	}
}

func (h *AdminHandler) handleSnapshots(w http.ResponseWriter, r *http.Request, conv string, parts []string) {
	if r.Method != http.MethodGet {
		writeJSON(w, http.StatusMethodNotAllowed, map[string]string{"error": "method not allowed"})
		return
	}

	if len(parts) > 4 && parts[4] != "" {
		files, err := h.svc.GetSnapshotFiles(r.Context(), conv, parts[4])
		if err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, files)
		return
	}

	snapshots, err := h.svc.GetSnapshots(conv)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, snapshots)
}

// Sandbox handlers
// GET    /api/sandboxes
// DELETE /api/sandboxes/{key}
func (h *AdminHandler) handleSandboxes(w http.ResponseWriter, r *http.Request, parts []string) {
	switch r.Method {
	case http.MethodGet:
		writeJSON(w, http.StatusOK, h.svc.GetSandboxes())
	case http.MethodDelete:
		if len(parts) < 3 || parts[2] == "" {
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": "sandbox key required"})
			return
		}
		if err := h.svc.TeardownSandbox(r.Context(), parts[2]); err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]string{"message": "sandbox closed"})
	default:
		writeJSON(w, http.StatusMethodNotAllowed, map[string]string{"error": "method not allowed"})
	}
}

// Cooldowns handler
// GET /api/cooldowns - list all active cooldowns
// DELETE /api/cooldowns/{provider} - clear cooldown for a provider
func (h *AdminHandler) handleCooldowns(w http.ResponseWriter, r *http.Request, parts []string) {
	switch r.Method {
	case http.MethodGet:
		cooldowns := h.svc.GetCooldowns()
		if cooldowns == nil {
			writeJSON(w, http.StatusOK, []any{})
			return
		}
		writeJSON(w, http.StatusOK, cooldowns)

	case http.MethodDelete:
		if len(parts) < 3 || parts[2] == "" {
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": "provider required"})
			return
		}
		provider := domain.ProviderType(parts[2])
		if !provider.Valid() {
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": "unknown provider: " + parts[2]})
			return
		}
		h.svc.ClearCooldown(provider)
		writeJSON(w, http.StatusOK, map[string]string{"message": "cooldown cleared"})

	default:
		writeJSON(w, http.StatusMethodNotAllowed, map[string]string{"error": "method not allowed"})
	}
}

// Logs handler
func (h *AdminHandler) handleLogs(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeJSON(w, http.StatusMethodNotAllowed, map[string]string{"error": "method not allowed"})
		return
	}

	limit := 100
	q := r.URL.Query()
	if l := firstNonEmpty(q.Get("lines"), q.Get("limit")); l != "" {
		if parsed, err := strconv.Atoi(l); err == nil && parsed > 0 {
			limit = parsed
		}
	}
	if limit > 1000 {
		limit = 1000
	}

	lines, err := ReadLastNLines(h.logPath, limit)
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": err.Error()})
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"lines": lines,
		"count": len(lines),
	})
}

// writeError maps domain errors to HTTP status codes
func writeError(w http.ResponseWriter, err error) {
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, domain.ErrNotFound):
		status = http.StatusNotFound
	case errors.Is(err, domain.ErrInvalidInput):
		status = http.StatusBadRequest
	case errors.Is(err, domain.ErrSandboxDisabled):
		status = http.StatusServiceUnavailable
	}
	writeJSON(w, status, map[string]string{"error": err.Error()})
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if data != nil {
		body, err := jsonx.Marshal(data)
		if err != nil {
			return
		}
		w.Write(body)
	}
}
