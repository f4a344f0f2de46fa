package handler

import (
	"encoding/json"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/kpawlowski/gradebook-api/internal/models"
	"github.com/kpawlowski/gradebook-api/internal/service"
	appErrors "github.com/kpawlowski/gradebook-api/pkg/errors"
	"github.com/kpawlowski/gradebook-api/pkg/response"
)

// GradeHandler exposes grade endpoints.
type GradeHandler struct {
	grades *service.GradeService
}

// NewGradeHandler constructs handler.
func NewGradeHandler(grades *service.GradeService) *GradeHandler {
	return &GradeHandler{grades: grades}
}

// Create godoc
// @Summary Create grade
// @Tags Grades
// @Accept json
// @Produce json
// @Param payload body service.CreateGradeRequest true "Grade payload"
// @Success 201 {object} response.Envelope
// @Router /grades [post]
func (h *GradeHandler) Create(c *gin.Context) {
	var req service.CreateGradeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid grade payload"))
		return
	}
	grade, err := h.grades.Create(c.Request.Context(), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, grade)
}

// Search godoc
// @Summary Search grades by criteria
// @Tags Grades
// @Produce json
// @Param valueFrom query int false "Minimum grade value"
// @Param valueTo query int false "Maximum grade value"
// @Param weightFrom query number false "Minimum grade weight"
// @Param weightTo query number false "Maximum grade weight"
// @Param dateFrom query string false "Earliest grade date (YYYY-MM-DD)"
// @Param dateTo query string false "Latest grade date (YYYY-MM-DD)"
// @Param gradeType query string false "Grade type (A-F)"
// @Param studentId query int false "Filter by student"
// @Param subjectId query int false "Filter by subject"
// @Success 200 {object} response.Envelope
// @Router /grades/search [get]
func (h *GradeHandler) Search(c *gin.Context) {
	var criteria models.GradeSearchCriteria
	var err error
	if criteria.ValueFrom, err = intQuery(c, "valueFrom"); err != nil {
		response.Error(c, err)
		return
	}
	if criteria.ValueTo, err = intQuery(c, "valueTo"); err != nil {
		response.Error(c, err)
		return
	}
	if criteria.WeightFrom, err = floatQuery(c, "weightFrom"); err != nil {
		response.Error(c, err)
		return
	}
	if criteria.WeightTo, err = floatQuery(c, "weightTo"); err != nil {
		response.Error(c, err)
		return
	}
	if criteria.DateFrom, err = dateQuery(c, "dateFrom"); err != nil {
		response.Error(c, err)
		return
	}
	if criteria.DateTo, err = dateQuery(c, "dateTo"); err != nil {
		response.Error(c, err)
		return
	}
	if raw := c.Query("gradeType"); raw != "" {
		gradeType := models.GradeType(raw)
		if !gradeType.Valid() {
			response.Error(c, appErrors.Clone(appErrors.ErrValidation, "query parameter gradeType must be one of A-F"))
			return
		}
		criteria.GradeType = &gradeType
	}
	if criteria.StudentID, err = int64Query(c, "studentId"); err != nil {
		response.Error(c, err)
		return
	}
	if criteria.SubjectID, err = int64Query(c, "subjectId"); err != nil {
		response.Error(c, err)
		return
	}

	grades, err := h.grades.Search(c.Request.Context(), criteria)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, grades, nil)
}

// Get godoc
// @Summary Get grade detail
// @Tags Grades
// @Produce json
// @Param id path int true "Grade ID"
// @Success 200 {object} response.Envelope
// @Router /grades/{id} [get]
func (h *GradeHandler) Get(c *gin.Context) {
	id, err := idParam(c, "id")
	if err != nil {
		response.Error(c, err)
		return
	}
	grade, err := h.grades.Get(c.Request.Context(), id)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, grade, nil)
}

// Patch godoc
// @Summary Partially update grade
// @Tags Grades
// @Accept json
// @Produce json
// @Param id path int true "Grade ID"
// @Param payload body object true "Sparse field map"
// @Success 200 {object} response.Envelope
// @Router /grades/{id} [patch]
func (h *GradeHandler) Patch(c *gin.Context) {
	id, err := idParam(c, "id")
	if err != nil {
		response.Error(c, err)
		return
	}
	var fields map[string]json.RawMessage
	if err := c.ShouldBindJSON(&fields); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid patch payload"))
		return
	}
	grade, err := h.grades.PartialUpdate(c.Request.Context(), id, fields)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, grade, nil)
}

// Delete godoc
// @Summary Delete grade
// @Tags Grades
// @Param id path int true "Grade ID"
// @Success 204
// @Router /grades/{id} [delete]
func (h *GradeHandler) Delete(c *gin.Context) {
	id, err := idParam(c, "id")
	if err != nil {
		response.Error(c, err)
		return
	}
	if err := h.grades.Delete(c.Request.Context(), id); err != nil {
		response.Error(c, err)
		return
	}
	response.NoContent(c)
}

// Average godoc
// @Summary Weighted average for a student in a subject
// @Tags Grades
// @Produce json
// @Param id path int true "Student ID"
// @Param subjectId path int true "Subject ID"
// @Success 200 {object} response.Envelope
// @Router /students/{id}/subjects/{subjectId}/average [get]
func (h *GradeHandler) Average(c *gin.Context) {
	studentID, err := idParam(c, "id")
	if err != nil {
		response.Error(c, err)
		return
	}
	subjectID, err := idParam(c, "subjectId")
	if err != nil {
		response.Error(c, err)
		return
	}
	average, err := h.grades.WeightedAverage(c.Request.Context(), studentID, subjectID)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, gin.H{"student_id": studentID, "subject_id": subjectID, "average": average}, nil)
}
