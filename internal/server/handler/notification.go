package handler

import (
	"log/slog"
	"net/http"

	"github.com/pilotdeskhq/pilotdesk/internal/service"
)

// NotificationHandler serves the caller's notification feed.
type NotificationHandler struct {
	directory *service.DirectoryService
	logger    *slog.Logger
}

// NewNotificationHandler creates a NotificationHandler.
func NewNotificationHandler(directory *service.DirectoryService, logger *slog.Logger) *NotificationHandler {
	return &NotificationHandler{
		directory: directory,
		logger:    logger.With(slog.String("handler", "notification")),
	}
}

// List returns the caller's notifications, newest first.
// GET /api/notifications
func (h *NotificationHandler) List(w http.ResponseWriter, r *http.Request) {
	actor, ok := requireActor(w, r)
	if !ok {
		return
	}
	ns, err := h.directory.ListNotifications(r.Context(), actor, parseListOpts(r))
	if err != nil {
		writeServiceError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"notifications": toNotificationResponses(ns)})
}
