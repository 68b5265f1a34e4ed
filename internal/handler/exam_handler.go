package handler

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/stemsi/exstem-proctor/internal/model"
	"github.com/stemsi/exstem-proctor/internal/response"
	"github.com/stemsi/exstem-proctor/internal/service"
	"github.com/stemsi/exstem-proctor/internal/validator"
)

// ExamHandler serves the exam lobby and opens exams.
type ExamHandler struct {
	kiosk *service.KioskService
}

// NewExamHandler creates a new ExamHandler.
func NewExamHandler(kiosk *service.KioskService) *ExamHandler {
	return &ExamHandler{kiosk: kiosk}
}

// GetToday godoc
// GET /api/v1/exams/today
// Lists today's exams for the student, proxied from the school backend.
func (h *ExamHandler) GetToday(c *gin.Context) {
	var q model.LobbyQuery
	if fields := validator.BindQuery(c, &q); fields != nil {
		response.FailWithFields(c, http.StatusBadRequest, response.ErrValidation, fields)
		return
	}

	page, err := h.kiosk.Lobby(c.Request.Context(), q)
	if err != nil {
		fail(c, err, nil)
		return
	}

	perPage := q.Limit
	if perPage == 0 {
		perPage = len(page.Data)
	}
	response.SuccessWithPagination(c, http.StatusOK, gin.H{"exams": page.Data},
		response.NewPagination(q.Page, perPage, page.Meta.Total))
}

// Open godoc
// POST /api/v1/exams/:exam_id/open
// Loads an exam into the kiosk. Replaces an opened exam that was never started.
func (h *ExamHandler) Open(c *gin.Context) {
	examID := strings.TrimSpace(c.Param("exam_id"))
	if examID == "" {
		response.Fail(c, http.StatusBadRequest, response.ErrInvalidID)
		return
	}

	view, err := h.kiosk.Open(c.Request.Context(), examID)
	if err != nil {
		fail(c, err, nil)
		return
	}

	response.Success(c, http.StatusOK, view)
}
