// Package handlers provides HTTP API request handlers.
package handlers

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/remote-agent-terminal/claude-terminal/internal/config"
	"github.com/remote-agent-terminal/claude-terminal/internal/model"
)

// SessionService is the part of the session manager exposed over HTTP.
type SessionService interface {
	Create(ctx context.Context, opts model.CreateOptions) (*model.Session, error)
	List() []model.Session
	Get(id string) (model.Session, bool)
	Write(id string, data []byte)
	Resize(id string, cols, rows uint16)
	Kill(id string)
	History(id string) ([]byte, bool)
}

// SessionHandler handles HTTP requests for session management.
type SessionHandler struct {
	sessions SessionService
	settings func() config.Settings
}

// NewSessionHandler creates a new SessionHandler. settings supplies the
// stored preferences used when a create request omits them; nil means
// config.DefaultSettings.
func NewSessionHandler(sessions SessionService, settings func() config.Settings) *SessionHandler {
	if settings == nil {
		settings = config.DefaultSettings
	}
	return &SessionHandler{
		sessions: sessions,
		settings: settings,
	}
}

// CreateSessionRequest represents the request body for creating a session.
// Omitted fields fall back to the stored settings.
type CreateSessionRequest struct {
	BypassMode *bool   `json:"bypassMode"`
	WorkingDir *string `json:"workingDir"`
}

// WriteRequest represents the request body for writing to a session.
// Data is base64 in JSON so arbitrary bytes reach the pty unchanged.
type WriteRequest struct {
	Data []byte `json:"data"`
}

// ResizeRequest represents the request body for resizing a session.
type ResizeRequest struct {
	Cols uint16 `json:"cols"`
	Rows uint16 `json:"rows"`
}

// SessionResponse represents a session in API responses.
type SessionResponse struct {
	ID            string             `json:"id"`
	Mode          string             `json:"mode"`
	Shell         string             `json:"shell"`
	Args          []string           `json:"args"`
	Command       string             `json:"command"`
	WorkingDir    string             `json:"workingDir"`
	Size          model.TerminalSize `json:"size"`
	State         string             `json:"state"`
	ExitCode      *int               `json:"exitCode,omitempty"`
	PID           int                `json:"pid,omitempty"`
	RecordingPath string             `json:"recordingPath,omitempty"`
	Duration      string             `json:"duration"`
	CreatedAt     string             `json:"createdAt"`
	UpdatedAt     string             `json:"updatedAt"`
}

// ErrorResponse represents an error response.
type ErrorResponse struct {
	Error ErrorDetail `json:"error"`
}

// ErrorDetail contains error details.
type ErrorDetail struct {
	Code    string         `json:"code"`
	Message string         `json:"message"`
	Details map[string]any `json:"details,omitempty"`
}

// toSessionResponse converts a model.Session to SessionResponse.
func toSessionResponse(s *model.Session) *SessionResponse {
	return &SessionResponse{
		ID:            s.ID,
		Mode:          string(s.Mode),
		Shell:         s.Shell,
		Args:          s.Args,
		Command:       s.Command,
		WorkingDir:    s.WorkingDir,
		Size:          s.Size,
		State:         string(s.State),
		ExitCode:      s.ExitCode,
		PID:           s.PID,
		RecordingPath: s.RecordingPath,
		Duration:      formatDuration(s.Duration()),
		CreatedAt:     s.CreatedAt.Format(time.RFC3339),
		UpdatedAt:     s.UpdatedAt.Format(time.RFC3339),
	}
}

// formatDuration formats a duration as a human-readable string.
func formatDuration(d time.Duration) string {
	if d < 0 {
		d = 0
	}
	return d.Round(time.Second).String()
}

// sendError sends an error response with the appropriate status code.
func sendError(c *gin.Context, statusCode int, code, message string) {
	c.JSON(statusCode, ErrorResponse{
		Error: ErrorDetail{
			Code:    code,
			Message: message,
		},
	})
}

// Create handles POST /api/sessions - creates a new session.
func (h *SessionHandler) Create(c *gin.Context) {
	var req CreateSessionRequest
	if c.Request.ContentLength != 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			sendError(c, http.StatusBadRequest, "VALIDATION_ERROR", "Invalid request body: "+err.Error())
			return
		}
	}

	settings := h.settings()
	if req.BypassMode != nil {
		settings.BypassMode = *req.BypassMode
	}
	if req.WorkingDir != nil {
		settings.WorkingDir = *req.WorkingDir
	}

	sess, err := h.sessions.Create(c.Request.Context(), model.CreateOptions{
		Mode:       model.ModeFromBypass(settings.BypassMode),
		WorkingDir: settings.WorkingDir,
	})
	if err != nil {
		var spawnErr *model.SpawnError
		switch {
		case errors.As(err, &spawnErr):
			c.JSON(http.StatusUnprocessableEntity, ErrorResponse{
				Error: ErrorDetail{
					Code:    "SPAWN_ERROR",
					Message: err.Error(),
					Details: map[string]any{
						"shell":      spawnErr.Shell,
						"workingDir": spawnErr.Dir,
					},
				},
			})
		case errors.Is(err, model.ErrInvalidMode):
			sendError(c, http.StatusBadRequest, "VALIDATION_ERROR", err.Error())
		case errors.Is(err, model.ErrShuttingDown):
			sendError(c, http.StatusServiceUnavailable, "SHUTTING_DOWN", err.Error())
		default:
			sendError(c, http.StatusInternalServerError, "INTERNAL_ERROR", "Failed to create session: "+err.Error())
		}
		return
	}

	c.JSON(http.StatusCreated, toSessionResponse(sess))
}

// List handles GET /api/sessions - lists the live sessions.
func (h *SessionHandler) List(c *gin.Context) {
	sessions := h.sessions.List()

	response := make([]*SessionResponse, len(sessions))
	for i := range sessions {
		response[i] = toSessionResponse(&sessions[i])
	}

	c.JSON(http.StatusOK, response)
}

// Get handles GET /api/sessions/:id - gets a specific session.
func (h *SessionHandler) Get(c *gin.Context) {
	sessionID := c.Param("id")

	sess, ok := h.sessions.Get(sessionID)
	if !ok {
		sendError(c, http.StatusNotFound, "SESSION_NOT_FOUND", "Session "+sessionID+" not found")
		return
	}

	c.JSON(http.StatusOK, toSessionResponse(&sess))
}

// Write handles POST /api/sessions/:id/write - sends input to a session.
// Unknown sessions are ignored.
func (h *SessionHandler) Write(c *gin.Context) {
	var req WriteRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		sendError(c, http.StatusBadRequest, "VALIDATION_ERROR", "Invalid request body: "+err.Error())
		return
	}

	if len(req.Data) > 0 {
		h.sessions.Write(c.Param("id"), req.Data)
	}
	c.Status(http.StatusNoContent)
}

// Resize handles POST /api/sessions/:id/resize - changes the window size.
// Unknown sessions and zero dimensions are ignored.
func (h *SessionHandler) Resize(c *gin.Context) {
	var req ResizeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		sendError(c, http.StatusBadRequest, "VALIDATION_ERROR", "Invalid request body: "+err.Error())
		return
	}

	h.sessions.Resize(c.Param("id"), req.Cols, req.Rows)
	c.Status(http.StatusNoContent)
}

// Delete handles DELETE /api/sessions/:id - kills a session.
// Unknown sessions are ignored.
func (h *SessionHandler) Delete(c *gin.Context) {
	h.sessions.Kill(c.Param("id"))
	c.Status(http.StatusNoContent)
}

// History handles GET /api/sessions/:id/history - returns the buffered output.
func (h *SessionHandler) History(c *gin.Context) {
	sessionID := c.Param("id")

	history, ok := h.sessions.History(sessionID)
	if !ok {
		sendError(c, http.StatusNotFound, "SESSION_NOT_FOUND", "Session "+sessionID+" not found")
		return
	}

	c.Data(http.StatusOK, "application/octet-stream", history)
}

// RegisterRoutes registers the session handler routes on a Gin router group.
func (h *SessionHandler) RegisterRoutes(rg *gin.RouterGroup) {
	sessions := rg.Group("/sessions")
	{
		sessions.POST("", h.Create)
		sessions.GET("", h.List)
		sessions.GET("/:id", h.Get)
		sessions.DELETE("/:id", h.Delete)
		sessions.POST("/:id/write", h.Write)
		sessions.POST("/:id/resize", h.Resize)
		sessions.GET("/:id/history", h.History)
	}
}
