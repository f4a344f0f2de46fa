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

// StudentHandler wires student services to HTTP routes.
type StudentHandler struct {
	students *service.StudentService
}

// NewStudentHandler constructs a new StudentHandler.
func NewStudentHandler(students *service.StudentService) *StudentHandler {
	return &StudentHandler{students: students}
}

// Get godoc
// @Summary Get student detail
// @Tags Students
// @Produce json
// @Param id path int true "Student ID"
// @Success 200 {object} response.Envelope
// @Router /students/{id} [get]
func (h *StudentHandler) Get(c *gin.Context) {
	id, err := idParam(c, "id")
	if err != nil {
		response.Error(c, err)
		return
	}
	student, err := h.students.Get(c.Request.Context(), id)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, student, nil)
}

// Create godoc
// @Summary Create student
// @Tags Students
// @Accept json
// @Produce json
// @Param payload body service.CreateStudentRequest true "Student payload"
// @Success 201 {object} response.Envelope
// @Router /students [post]
func (h *StudentHandler) Create(c *gin.Context) {
	var req service.CreateStudentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid student payload"))
		return
	}
	student, err := h.students.Create(c.Request.Context(), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, student)
}

// Patch godoc
// @Summary Partially update student
// @Tags Students
// @Accept json
// @Produce json
// @Param id path int true "Student ID"
// @Param payload body object true "Sparse field map"
// @Success 200 {object} response.Envelope
// @Router /students/{id} [patch]
func (h *StudentHandler) Patch(c *gin.Context) {
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
	student, err := h.students.PartialUpdate(c.Request.Context(), id, fields)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, student, nil)
}

// Delete godoc
// @Summary Delete student
// @Tags Students
// @Param id path int true "Student ID"
// @Success 204
// @Router /students/{id} [delete]
func (h *StudentHandler) Delete(c *gin.Context) {
	id, err := idParam(c, "id")
	if err != nil {
		response.Error(c, err)
		return
	}
	if err := h.students.Delete(c.Request.Context(), id); err != nil {
		response.Error(c, err)
		return
	}
	response.NoContent(c)
}

// WithGradeF godoc
// @Summary List students holding an F on a given day
// @Tags Students
// @Produce json
// @Param day query string true "Day (YYYY-MM-DD)"
// @Success 200 {object} response.Envelope
// @Router /students/with-grade-f [get]
func (h *StudentHandler) WithGradeF(c *gin.Context) {
	day, err := dateQuery(c, "day")
	if err != nil {
		response.Error(c, err)
		return
	}
	if day == nil {
		response.Error(c, appErrors.Clone(appErrors.ErrValidation, "query parameter day is required"))
		return
	}
	students, err := h.students.ListByGradeContext(c.Request.Context(), models.GradeContext{
		GradeType:   models.GradeTypeF,
		DateOfGrade: *day,
	})
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, students, nil)
}

// Count godoc
// @Summary Count students holding a grade of a type on a date
// @Tags Students
// @Produce json
// @Param gradeType query string true "Grade type (A-F)"
// @Param date query string true "Date (YYYY-MM-DD)"
// @Success 200 {object} response.Envelope
// @Router /students/count [get]
func (h *StudentHandler) Count(c *gin.Context) {
	gradeType := models.GradeType(c.Query("gradeType"))
	if gradeType == "" {
		response.Error(c, appErrors.Clone(appErrors.ErrValidation, "query parameter gradeType is required"))
		return
	}
	date, err := dateQuery(c, "date")
	if err != nil {
		response.Error(c, err)
		return
	}
	if date == nil {
		response.Error(c, appErrors.Clone(appErrors.ErrValidation, "query parameter date is required"))
		return
	}
	count, err := h.students.CountByGradeContext(c.Request.Context(), models.GradeContext{
		GradeType:   gradeType,
		DateOfGrade: *date,
	})
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, gin.H{"count": count}, nil)
}
