package handlers

import (
	"context"
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/remote-agent-terminal/claude-terminal/internal/model"
)

const (
	defaultHistoryLimit = 50
	maxHistoryLimit     = 500
)

// SessionStore reads and prunes persisted session records.
type SessionStore interface {
	List(ctx context.Context, limit int) ([]*model.Session, error)
	GetByID(ctx context.Context, id string) (*model.Session, error)
	Delete(ctx context.Context, id string) error
}

// DirectoryPicker opens the native folder picker.
type DirectoryPicker interface {
	SelectDirectory(ctx context.Context) (path string, ok bool, err error)
}

// RecordsHandler serves persisted history and the directory dialog.
type RecordsHandler struct {
	store  SessionStore
	picker DirectoryPicker
}

// NewRecordsHandler creates a new RecordsHandler.
func NewRecordsHandler(store SessionStore, picker DirectoryPicker) *RecordsHandler {
	return &RecordsHandler{
		store:  store,
		picker: picker,
	}
}

// DirectoryResponse is the result of the folder picker. Path is null when
// the user cancelled.
type DirectoryResponse struct {
	Path *string `json:"path"`
}

// ListHistory handles GET /api/history - lists past and present sessions,
// newest first.
func (h *RecordsHandler) ListHistory(c *gin.Context) {
	limit := defaultHistoryLimit
	if raw := c.Query("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 {
			sendError(c, http.StatusBadRequest, "VALIDATION_ERROR", "limit must be a positive integer")
			return
		}
		limit = min(n, maxHistoryLimit)
	}

	records, err := h.store.List(c.Request.Context(), limit)
	if err != nil {
		sendError(c, http.StatusInternalServerError, "INTERNAL_ERROR", "Failed to list history: "+err.Error())
		return
	}

	response := make([]*SessionResponse, len(records))
	for i, rec := range records {
		response[i] = toSessionResponse(rec)
	}
	c.JSON(http.StatusOK, response)
}

// GetRecord handles GET /api/history/:id - returns one persisted record.
func (h *RecordsHandler) GetRecord(c *gin.Context) {
	id := c.Param("id")

	rec, err := h.store.GetByID(c.Request.Context(), id)
	if errors.Is(err, model.ErrSessionNotFound) {
		sendError(c, http.StatusNotFound, "SESSION_NOT_FOUND", "Session "+id+" not found")
		return
	}
	if err != nil {
		sendError(c, http.StatusInternalServerError, "INTERNAL_ERROR", "Failed to get record: "+err.Error())
		return
	}

	c.JSON(http.StatusOK, toSessionResponse(rec))
}

// DeleteRecord handles DELETE /api/history/:id - removes the record of an
// exited session. Records of running sessions are kept.
func (h *RecordsHandler) DeleteRecord(c *gin.Context) {
	id := c.Param("id")
	ctx := c.Request.Context()

	rec, err := h.store.GetByID(ctx, id)
	if errors.Is(err, model.ErrSessionNotFound) {
		sendError(c, http.StatusNotFound, "SESSION_NOT_FOUND", "Session "+id+" not found")
		return
	}
	if err != nil {
		sendError(c, http.StatusInternalServerError, "INTERNAL_ERROR", "Failed to get record: "+err.Error())
		return
	}
	if rec.State == model.SessionStateRunning {
		sendError(c, http.StatusConflict, "SESSION_RUNNING", "Session "+id+" is still running")
		return
	}

	if err := h.store.Delete(ctx, id); err != nil && !errors.Is(err, model.ErrSessionNotFound) {
		sendError(c, http.StatusInternalServerError, "INTERNAL_ERROR", "Failed to delete record: "+err.Error())
		return
	}
	c.Status(http.StatusNoContent)
}

// SelectDirectory handles POST /api/dialog/directory - asks the user for a
// working directory.
func (h *RecordsHandler) SelectDirectory(c *gin.Context) {
	path, ok, err := h.picker.SelectDirectory(c.Request.Context())
	if err != nil {
		sendError(c, http.StatusInternalServerError, "DIALOG_ERROR", "Failed to open directory dialog: "+err.Error())
		return
	}

	var resp DirectoryResponse
	if ok {
		resp.Path = &path
	}
	c.JSON(http.StatusOK, resp)
}

// RegisterRoutes registers the history and dialog routes.
func (h *RecordsHandler) RegisterRoutes(rg *gin.RouterGroup) {
	rg.GET("/history", h.ListHistory)
	rg.GET("/history/:id", h.GetRecord)
	rg.DELETE("/history/:id", h.DeleteRecord)
	rg.POST("/dialog/directory", h.SelectDirectory)
}
