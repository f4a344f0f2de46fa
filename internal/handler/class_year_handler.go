package handler

import (
	"encoding/json"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/kpawlowski/gradebook-api/internal/service"
	appErrors "github.com/kpawlowski/gradebook-api/pkg/errors"
	"github.com/kpawlowski/gradebook-api/pkg/response"
)

// ClassYearHandler wires class year services to HTTP routes.
type ClassYearHandler struct {
	years    *service.ClassYearService
	subjects *service.SubjectService
}

// NewClassYearHandler constructs a new ClassYearHandler.
func NewClassYearHandler(years *service.ClassYearService, subjects *service.SubjectService) *ClassYearHandler {
	return &ClassYearHandler{years: years, subjects: subjects}
}

// Get godoc
// @Summary Get class year detail
// @Tags ClassYears
// @Produce json
// @Param id path int true "Class year ID"
// @Success 200 {object} response.Envelope
// @Router /class-years/{id} [get]
func (h *ClassYearHandler) Get(c *gin.Context) {
	id, err := idParam(c, "id")
	if err != nil {
		response.Error(c, err)
		return
	}
	classYear, err := h.years.Get(c.Request.Context(), id)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, classYear, nil)
}

// Create godoc
// @Summary Create class year
// @Tags ClassYears
// @Accept json
// @Produce json
// @Param payload body service.CreateClassYearRequest true "Class year payload"
// @Success 201 {object} response.Envelope
// @Router /class-years [post]
func (h *ClassYearHandler) Create(c *gin.Context) {
	var req service.CreateClassYearRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid class year payload"))
		return
	}
	classYear, err := h.years.Create(c.Request.Context(), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, classYear)
}

// Patch godoc
// @Summary Partially update class year
// @Tags ClassYears
// @Accept json
// @Produce json
// @Param id path int true "Class year ID"
// @Param payload body object true "Sparse field map"
// @Success 200 {object} response.Envelope
// @Router /class-years/{id} [patch]
func (h *ClassYearHandler) Patch(c *gin.Context) {
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
	classYear, err := h.years.PartialUpdate(c.Request.Context(), id, fields)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, classYear, nil)
}

// Delete godoc
// @Summary Delete class year
// @Tags ClassYears
// @Param id path int true "Class year ID"
// @Success 204
// @Router /class-years/{id} [delete]
func (h *ClassYearHandler) Delete(c *gin.Context) {
	id, err := idParam(c, "id")
	if err != nil {
		response.Error(c, err)
		return
	}
	if err := h.years.Delete(c.Request.Context(), id); err != nil {
		response.Error(c, err)
		return
	}
	response.NoContent(c)
}

// ListSubjects godoc
// @Summary List subjects owned by a class year
// @Tags ClassYears
// @Produce json
// @Param id path int true "Class year ID"
// @Success 200 {object} response.Envelope
// @Router /class-years/{id}/subjects [get]
func (h *ClassYearHandler) ListSubjects(c *gin.Context) {
	id, err := idParam(c, "id")
	if err != nil {
		response.Error(c, err)
		return
	}
	subjects, err := h.subjects.ListByClassYear(c.Request.Context(), id)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, subjects, nil)
}
