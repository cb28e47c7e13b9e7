package handler

import (
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/skillbridge/lms-api/internal/models"
	"github.com/skillbridge/lms-api/internal/service"
	appErrors "github.com/skillbridge/lms-api/pkg/errors"
	"github.com/skillbridge/lms-api/pkg/response"
)

// EnrollmentHandler exposes enrollment ledger endpoints.
type EnrollmentHandler struct {
	enrollments *service.EnrollmentService
}

// NewEnrollmentHandler constructs EnrollmentHandler.
func NewEnrollmentHandler(enrollments *service.EnrollmentService) *EnrollmentHandler {
	return &EnrollmentHandler{enrollments: enrollments}
}

// Create godoc
// @Summary Enroll student
// @Description Admins and the course instructor enroll a student by email
// @Tags Enrollments
// @Accept json
// @Produce json
// @Param slug path string true "Course slug"
// @Param payload body service.EnrollRequest true "Enrollment payload"
// @Success 201 {object} response.Envelope
// @Failure 403 {object} response.Envelope
// @Failure 409 {object} response.Envelope
// @Router /courses/{slug}/enrollments [post]
func (h *EnrollmentHandler) Create(c *gin.Context) {
	var req service.EnrollRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid payload"))
		return
	}

	enrollment, err := h.enrollments.Enroll(c.Request.Context(), claimsFromContext(c), c.Param("slug"), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, enrollment)
}

// SelfEnroll godoc
// @Summary Enroll self
// @Description A student enrolls themself onto a published course
// @Tags Enrollments
// @Accept json
// @Produce json
// @Param slug path string true "Course slug"
// @Success 201 {object} response.Envelope
// @Failure 409 {object} response.Envelope
// @Router /courses/{slug}/enroll [post]
func (h *EnrollmentHandler) SelfEnroll(c *gin.Context) {
	var payload struct {
		Kind string `json:"kind"`
	}
	_ = c.ShouldBindJSON(&payload)

	enrollment, err := h.enrollments.SelfEnroll(c.Request.Context(), claimsFromContext(c), c.Param("slug"), models.EnrollmentKind(strings.ToUpper(payload.Kind)))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, enrollment)
}

// List godoc
// @Summary List course ledger
// @Tags Enrollments
// @Produce json
// @Param slug path string true "Course slug"
// @Param status query string false "Filter by status"
// @Param page query int false "Page"
// @Param limit query int false "Page size"
// @Success 200 {object} response.Envelope
// @Failure 403 {object} response.Envelope
// @Router /courses/{slug}/enrollments [get]
func (h *EnrollmentHandler) List(c *gin.Context) {
	var filter models.EnrollmentFilter
	filter.Status = models.EnrollmentStatus(strings.ToUpper(c.Query("status")))
	if page, err := strconv.Atoi(c.DefaultQuery("page", "1")); err == nil {
		filter.Page = page
	}
	if size, err := strconv.Atoi(c.DefaultQuery("limit", "20")); err == nil {
		filter.PageSize = size
	}
	filter.SortBy = c.Query("sort")
	filter.SortOrder = c.Query("order")

	enrollments, pagination, err := h.enrollments.List(c.Request.Context(), claimsFromContext(c), c.Param("slug"), filter)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, enrollments, pagination)
}

// Update godoc
// @Summary Update ledger entry
// @Description Partial status/progress update. COMPLETED issues a certificate.
// @Tags Enrollments
// @Accept json
// @Produce json
// @Param slug path string true "Course slug"
// @Param id path string true "Enrollment ID"
// @Param payload body service.UpdateEnrollmentRequest true "Update payload"
// @Success 200 {object} response.Envelope
// @Failure 403 {object} response.Envelope
// @Router /courses/{slug}/enrollments/{id} [patch]
func (h *EnrollmentHandler) Update(c *gin.Context) {
	var req service.UpdateEnrollmentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid payload"))
		return
	}

	enrollment, err := h.enrollments.UpdateStatus(c.Request.Context(), claimsFromContext(c), c.Param("slug"), c.Param("id"), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, enrollment, nil)
}

// Export godoc
// @Summary Export course roster
// @Description Download the full ledger as CSV
// @Tags Enrollments
// @Produce text/csv
// @Param slug path string true "Course slug"
// @Success 200 {string} string "CSV content"
// @Failure 403 {object} response.Envelope
// @Router /courses/{slug}/enrollments/export [get]
func (h *EnrollmentHandler) Export(c *gin.Context) {
	content, filename, err := h.enrollments.ExportRoster(c.Request.Context(), claimsFromContext(c), c.Param("slug"))
	if err != nil {
		response.Error(c, err)
		return
	}

	c.Header("Content-Disposition", fmt.Sprintf("attachment; filename=%q", filename))
	c.Data(http.StatusOK, "text/csv", content)
}

// MyCourses godoc
// @Summary List my courses
// @Description The caller's enrolled courses, derived from the ledger
// @Tags Enrollments
// @Produce json
// @Success 200 {object} response.Envelope
// @Router /me/courses [get]
func (h *EnrollmentHandler) MyCourses(c *gin.Context) {
	courses, err := h.enrollments.MyCourses(c.Request.Context(), claimsFromContext(c))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, courses, nil)
}
