package handler

import (
	"context"
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/stemsi/exstem-proctor/internal/backend"
	"github.com/stemsi/exstem-proctor/internal/response"
	"github.com/stemsi/exstem-proctor/internal/service"
	"github.com/stemsi/exstem-proctor/internal/session"
	ws "github.com/stemsi/exstem-proctor/internal/websocket"
)

// classify maps a service or session error to a status and error code.
func classify(err error) (int, response.ErrCode) {
	switch {
	case errors.Is(err, service.ErrNoActiveExam):
		return http.StatusConflict, response.ErrNoActiveExam
	case errors.Is(err, service.ErrSessionBusy):
		return http.StatusConflict, response.ErrSessionBusy
	case errors.Is(err, session.ErrSubmitCancelled):
		return http.StatusConflict, response.ErrSubmitCancelled
	case errors.Is(err, ws.ErrNoShell):
		return http.StatusConflict, response.ErrShellDisconnected
	case errors.Is(err, ws.ErrConfirmPending):
		return http.StatusConflict, response.ErrConfirmPending
	case errors.Is(err, session.ErrInvalidTransition), errors.Is(err, session.ErrNotInProgress):
		return http.StatusConflict, response.ErrInvalidState
	case errors.Is(err, session.ErrUnknownQuestion):
		return http.StatusNotFound, response.ErrUnknownQuestion
	case errors.Is(err, session.ErrInvalidAnswer):
		return http.StatusUnprocessableEntity, response.ErrInvalidAnswer
	case errors.Is(err, session.ErrLoadFailed):
		if errors.Is(err, backend.ErrNotFound) {
			return http.StatusNotFound, response.ErrNotFound
		}
		return http.StatusBadGateway, response.ErrExamLoadFailed
	case errors.Is(err, backend.ErrUnauthorized):
		return http.StatusUnauthorized, response.ErrTokenInvalid
	case errors.Is(err, session.ErrStartFailed):
		return http.StatusBadGateway, response.ErrSessionStartFailed
	case errors.Is(err, session.ErrSubmitFailed):
		return http.StatusBadGateway, response.ErrSubmitFailed
	case errors.Is(err, backend.ErrRejected), errors.Is(err, backend.ErrNotFound):
		return http.StatusBadGateway, response.ErrBackendRejected
	case errors.Is(err, backend.ErrServer), errors.Is(err, backend.ErrTimeout), errors.Is(err, backend.ErrUnavailable):
		return http.StatusBadGateway, response.ErrBackendUnavailable
	case errors.Is(err, context.Canceled):
		// The shell dropped the request, typically while the confirmation
		// was open.
		return http.StatusConflict, response.ErrRequestCancelled
	default:
		return http.StatusInternalServerError, response.ErrInternal
	}
}

// fail writes err as an envelope. data, when non-nil, rides along so the
// shell can re-render from the current session view.
func fail(c *gin.Context, err error, data any) {
	status, code := classify(err)
	_ = c.Error(err)
	if data != nil {
		response.FailWithData(c, status, code, data)
		return
	}
	response.Fail(c, status, code)
}
