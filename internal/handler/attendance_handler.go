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

type attendanceService interface {
	Check(ctx context.Context, actor *models.JWTClaims, req dto.CheckAttendanceRequest) (*models.AttendanceRecordDetail, error)
	BulkCheck(ctx context.Context, actor *models.JWTClaims, req dto.BulkCheckAttendanceRequest) (*dto.BulkCheckAttendanceResponse, error)
	ListDaily(ctx context.Context, actor *models.JWTClaims, req dto.AttendanceListRequest) (*dto.AttendanceDayResponse, error)
	ListStudentDay(ctx context.Context, actor *models.JWTClaims, studentID, date string) (*dto.AttendanceDayResponse, error)
}

// AttendanceHandler exposes per-period attendance recording.
type AttendanceHandler struct {
	service attendanceService
}

// NewAttendanceHandler constructs the handler.
func NewAttendanceHandler(svc attendanceService) *AttendanceHandler {
	return &AttendanceHandler{service: svc}
}

// Check godoc
// @Summary Record attendance
// @Description Upsert one student's status for one period. Period 0 is the morning assembly.
// @Tags Attendance
// @Accept json
// @Produce json
// @Param payload body dto.CheckAttendanceRequest true "Attendance payload"
// @Success 200 {object} response.Envelope
// @Failure 400 {object} response.Envelope
// @Failure 403 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Router /attendance/check [post]
func (h *AttendanceHandler) Check(c *gin.Context) {
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}
	var req dto.CheckAttendanceRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid attendance payload"))
		return
	}
	record, err := h.service.Check(c.Request.Context(), claims, req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, record, nil)
}

// BulkCheck godoc
// @Summary Record attendance in bulk
// @Description Upsert many attendance slots atomically
// @Tags Attendance
// @Accept json
// @Produce json
// @Param payload body dto.BulkCheckAttendanceRequest true "Bulk payload"
// @Success 200 {object} response.Envelope
// @Failure 400 {object} response.Envelope
// @Failure 403 {object} response.Envelope
// @Router /attendance/bulk-check [post]
func (h *AttendanceHandler) BulkCheck(c *gin.Context) {
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}
	var req dto.BulkCheckAttendanceRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid bulk attendance payload"))
		return
	}
	res, err := h.service.BulkCheck(c.Request.Context(), claims, req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, res, nil)
}

// List godoc
// @Summary List classroom attendance
// @Tags Attendance
// @Produce json
// @Param classroomId query string true "Classroom ID"
// @Param date query string false "Day (YYYY-MM-DD), defaults to today"
// @Param period query int false "Period 0-8"
// @Success 200 {object} response.Envelope
// @Failure 400 {object} response.Envelope
// @Failure 403 {object} response.Envelope
// @Router /attendance [get]
func (h *AttendanceHandler) List(c *gin.Context) {
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}
	period, err := optionalInt(c, "period")
	if err != nil {
		response.Error(c, err)
		return
	}
	req := dto.AttendanceListRequest{
		ClassroomID: c.Query("classroomId"),
		Date:        c.Query("date"),
		Period:      period,
	}
	res, err := h.service.ListDaily(c.Request.Context(), claims, req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, res, nil)
}

// StudentDay godoc
// @Summary List one student's attendance for a day
// @Tags Attendance
// @Produce json
// @Param id path string true "Student ID"
// @Param date query string false "Day (YYYY-MM-DD), defaults to today"
// @Success 200 {object} response.Envelope
// @Failure 403 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Router /attendance/students/{id} [get]
func (h *AttendanceHandler) StudentDay(c *gin.Context) {
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}
	res, err := h.service.ListStudentDay(c.Request.Context(), claims, c.Param("id"), c.Query("date"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, res, nil)
}
