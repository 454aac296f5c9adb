package handler

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/sma-attendance-api/internal/dto"
	"github.com/noah-isme/sma-attendance-api/internal/models"
	appErrors "github.com/noah-isme/sma-attendance-api/pkg/errors"
	"github.com/noah-isme/sma-attendance-api/pkg/response"
)

type qrSessionService interface {
	Create(ctx context.Context, actor *models.JWTClaims, req dto.CreateQRSessionRequest) (*dto.QRSessionResponse, error)
	Scan(ctx context.Context, actor *models.JWTClaims, req dto.ScanQRCodeRequest) (*dto.ScanQRCodeResponse, error)
	Deactivate(ctx context.Context, actor *models.JWTClaims, req dto.DeactivateQRSessionRequest) error
	ListActive(ctx context.Context, actor *models.JWTClaims) ([]dto.QRSessionResponse, error)
	History(ctx context.Context, actor *models.JWTClaims, req dto.QRSessionHistoryRequest) ([]dto.QRSessionResponse, error)
	Image(ctx context.Context, actor *models.JWTClaims, id string, size int) ([]byte, error)
}

// QRSessionHandler exposes QR self check-in endpoints.
type QRSessionHandler struct {
	service qrSessionService
}

// NewQRSessionHandler constructs the handler.
func NewQRSessionHandler(svc qrSessionService) *QRSessionHandler {
	return &QRSessionHandler{service: svc}
}

// Create godoc
// @Summary Open a QR check-in session
// @Description Generates a six character code for a classroom period, replacing any active session for the same slot
// @Tags QR Sessions
// @Accept json
// @Produce json
// @Param payload body dto.CreateQRSessionRequest true "Session payload"
// @Success 201 {object} response.Envelope
// @Failure 400 {object} response.Envelope
// @Failure 403 {object} response.Envelope
// @Failure 503 {object} response.Envelope
// @Router /qr-session [post]
func (h *QRSessionHandler) Create(c *gin.Context) {
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}
	var req dto.CreateQRSessionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid qr session payload"))
		return
	}
	res, err := h.service.Create(c.Request.Context(), claims, req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, res)
}

// Scan godoc
// @Summary Check in with a QR code
// @Tags QR Sessions
// @Accept json
// @Produce json
// @Param payload body dto.ScanQRCodeRequest true "Scanned code"
// @Success 200 {object} response.Envelope
// @Failure 400 {object} response.Envelope
// @Failure 403 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Failure 409 {object} response.Envelope
// @Failure 429 {object} response.Envelope
// @Router /qr-scan [post]
func (h *QRSessionHandler) Scan(c *gin.Context) {
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}
	var req dto.ScanQRCodeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid scan payload"))
		return
	}
	res, err := h.service.Scan(c.Request.Context(), claims, req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, res, nil)
}

// Deactivate godoc
// @Summary Close a QR session
// @Tags QR Sessions
// @Accept json
// @Produce json
// @Param payload body dto.DeactivateQRSessionRequest true "Session to close"
// @Success 200 {object} response.Envelope
// @Failure 403 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Router /qr-session/deactivate [put]
func (h *QRSessionHandler) Deactivate(c *gin.Context) {
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}
	var req dto.DeactivateQRSessionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid deactivate payload"))
		return
	}
	if err := h.service.Deactivate(c.Request.Context(), claims, req); err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, gin.H{"id": req.ID, "active": false}, nil)
}

// ListActive godoc
// @Summary List active QR sessions
// @Tags QR Sessions
// @Produce json
// @Success 200 {object} response.Envelope
// @Failure 403 {object} response.Envelope
// @Router /qr-sessions [get]
func (h *QRSessionHandler) ListActive(c *gin.Context) {
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}
	sessions, err := h.service.ListActive(c.Request.Context(), claims)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, sessions, nil)
}

// History godoc
// @Summary List a classroom's QR sessions for a day
// @Tags QR Sessions
// @Produce json
// @Param classroomId query string true "Classroom ID"
// @Param date query string false "Day (YYYY-MM-DD), defaults to today"
// @Success 200 {object} response.Envelope
// @Failure 400 {object} response.Envelope
// @Failure 403 {object} response.Envelope
// @Router /qr-sessions/history [get]
func (h *QRSessionHandler) History(c *gin.Context) {
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}
	req := dto.QRSessionHistoryRequest{ClassroomID: c.Query("classroomId"), Date: c.Query("date")}
	sessions, err := h.service.History(c.Request.Context(), claims, req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, sessions, nil)
}

// Image godoc
// @Summary Render a QR session code as PNG
// @Tags QR Sessions
// @Produce png
// @Param id path string true "Session ID"
// @Param size query int false "Image size in pixels"
// @Success 200 {file} binary
// @Failure 403 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Router /qr-session/{id}/image [get]
func (h *QRSessionHandler) Image(c *gin.Context) {
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}
	size, err := optionalInt(c, "size")
	if err != nil {
		response.Error(c, err)
		return
	}
	px := 0
	if size != nil {
		px = *size
	}
	png, err := h.service.Image(c.Request.Context(), claims, c.Param("id"), px)
	if err != nil {
		response.Error(c, err)
		return
	}
	c.Header("Cache-Control", "no-store")
	c.Data(http.StatusOK, "image/png", png)
}
