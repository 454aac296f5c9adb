package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/sma-attendance-api/internal/models"
	"github.com/noah-isme/sma-attendance-api/pkg/response"
)

type notificationStatusProvider interface {
	Status() models.NotificationQueueStatus
}

// NotificationHandler reports guardian notification backlog.
type NotificationHandler struct {
	service notificationStatusProvider
}

// NewNotificationHandler constructs the handler.
func NewNotificationHandler(svc notificationStatusProvider) *NotificationHandler {
	return &NotificationHandler{service: svc}
}

// QueueStatus godoc
// @Summary Guardian notification queue status
// @Tags Notifications
// @Produce json
// @Success 200 {object} response.Envelope
// @Failure 403 {object} response.Envelope
// @Router /notifications/queue [get]
func (h *NotificationHandler) QueueStatus(c *gin.Context) {
	response.JSON(c, http.StatusOK, h.service.Status(), nil)
}
