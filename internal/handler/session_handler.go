package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/stemsi/exstem-proctor/internal/model"
	"github.com/stemsi/exstem-proctor/internal/response"
	"github.com/stemsi/exstem-proctor/internal/service"
	"github.com/stemsi/exstem-proctor/internal/validator"
)

// SessionHandler drives the opened exam session for the shell.
type SessionHandler struct {
	kiosk *service.KioskService
}

// NewSessionHandler creates a new SessionHandler.
func NewSessionHandler(kiosk *service.KioskService) *SessionHandler {
	return &SessionHandler{kiosk: kiosk}
}

// Get godoc
// GET /api/v1/session
func (h *SessionHandler) Get(c *gin.Context) {
	view, err := h.kiosk.View()
	if err != nil {
		fail(c, err, nil)
		return
	}
	response.Success(c, http.StatusOK, view)
}

// Start godoc
// POST /api/v1/session/start
// Opens the backend session, then fullscreen, recording, countdown and monitoring.
func (h *SessionHandler) Start(c *gin.Context) {
	view, err := h.kiosk.Start(c.Request.Context())
	if err != nil {
		fail(c, err, viewOrNil(view.State != "", view))
		return
	}
	response.Success(c, http.StatusOK, view)
}

// SetAnswer godoc
// PUT /api/v1/session/answers/:question_id
func (h *SessionHandler) SetAnswer(c *gin.Context) {
	questionID := model.ID(c.Param("question_id"))
	if questionID == "" {
		response.Fail(c, http.StatusBadRequest, response.ErrInvalidID)
		return
	}

	var req model.SetAnswerRequest
	if fields := validator.Bind(c, &req); fields != nil {
		response.FailWithFields(c, http.StatusBadRequest, response.ErrValidation, fields)
		return
	}

	answer := model.Answer{Kind: req.Kind, Value: req.Value}
	if err := h.kiosk.SetAnswer(questionID, answer); err != nil {
		fail(c, err, nil)
		return
	}
	response.Success(c, http.StatusOK, gin.H{"question_id": questionID, "answer": answer})
}

// Submit godoc
// POST /api/v1/session/submit
// Blocks until the student answers the confirmation in the shell. Calling it
// again after a failed submission retries without asking.
func (h *SessionHandler) Submit(c *gin.Context) {
	view, err := h.kiosk.Submit(c.Request.Context())
	if err != nil {
		fail(c, err, viewOrNil(view.State != "", view))
		return
	}
	response.Success(c, http.StatusOK, view)
}

// Signal godoc
// POST /api/v1/session/signals
// Forwards fullscreen exit, blur, hidden and unload attempts.
func (h *SessionHandler) Signal(c *gin.Context) {
	var req model.SignalRequest
	if fields := validator.Bind(c, &req); fields != nil {
		response.FailWithFields(c, http.StatusBadRequest, response.ErrValidation, fields)
		return
	}
	response.Success(c, http.StatusOK, h.kiosk.Signal(req.Type))
}

func viewOrNil(ok bool, v any) any {
	if !ok {
		return nil
	}
	return v
}
