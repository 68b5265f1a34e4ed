package handler

import (
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
	"github.com/stemsi/exstem-proctor/internal/model"
	"github.com/stemsi/exstem-proctor/internal/response"
	"github.com/stemsi/exstem-proctor/internal/service"
	"github.com/stemsi/exstem-proctor/internal/session"
	ws "github.com/stemsi/exstem-proctor/internal/websocket"
)

// buildUpgrader creates a WebSocket upgrader with origin validation.
// allowedOrigins comes from config.Config.AllowedOrigins.
// An empty slice permits all origins (development mode).
func buildUpgrader(allowedOrigins []string) websocket.Upgrader {
	return websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin: func(r *http.Request) bool {
			if len(allowedOrigins) == 0 {
				return true
			}
			origin := r.Header.Get("Origin")
			for _, allowed := range allowedOrigins {
				if strings.EqualFold(allowed, origin) {
					return true
				}
			}
			return false
		},
	}
}

// WSHandler streams session events to the shell and takes its actions.
type WSHandler struct {
	hub      *ws.Hub
	kiosk    *service.KioskService
	log      zerolog.Logger
	upgrader websocket.Upgrader
}

// NewWSHandler creates a new WSHandler.
func NewWSHandler(hub *ws.Hub, kiosk *service.KioskService, log zerolog.Logger, allowedOrigins []string) *WSHandler {
	return &WSHandler{
		hub:      hub,
		kiosk:    kiosk,
		log:      log.With().Str("component", "ws_handler").Logger(),
		upgrader: buildUpgrader(allowedOrigins),
	}
}

// SessionStream godoc
// WS /ws/v1/session/stream
// Upgrades to WebSocket. The agent pushes state, ticks, notices, fullscreen
// and navigation commands; the shell answers confirmations, forwards
// signals and autosaves answers.
func (h *WSHandler) SessionStream(c *gin.Context) {
	conn, err := h.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		h.log.Error().Err(err).Msg("WebSocket upgrade failed")
		return
	}

	client := h.hub.Register(conn)
	defer h.hub.Unregister(client)

	ws.KeepAlive(conn)

	// Bring a reconnecting shell up to date.
	if view, err := h.kiosk.View(); err == nil {
		client.Send(ws.StateResponse{Event: ws.EventState, State: string(view.State)})
		if view.State == session.StateInProgress {
			client.Send(ws.TickResponse{Event: ws.EventTick, Remaining: view.Remaining, Display: view.RemainingDisplay})
		}
	}

	for {
		var msg ws.RequestPayload
		if err := ws.ReadJSON(conn, &msg); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				h.log.Warn().Err(err).Msg("Unexpected close")
			} else {
				h.log.Debug().Msg("Connection closed")
			}
			return
		}

		switch msg.Action {
		case ws.ActionConfirm, ws.ActionCancel:
			if !h.kiosk.Resolve(msg.Action == ws.ActionConfirm) {
				client.Send(ws.ErrorResponse{Event: ws.EventError, Error: "no confirmation pending"})
			}
		case ws.ActionSignal:
			h.handleSignal(client, msg)
		case ws.ActionAutosave:
			h.handleAutosave(client, msg)
		case ws.ActionPing:
			client.Send(ws.PongResponse{Event: ws.EventPong})
		default:
			h.log.Warn().Str("action", string(msg.Action)).Msg("Unknown action")
			client.Send(ws.ErrorResponse{Event: ws.EventError, Error: "unknown action: " + string(msg.Action)})
		}
	}
}

func (h *WSHandler) handleSignal(client *ws.Client, msg ws.RequestPayload) {
	switch msg.Type {
	case model.SignalFullscreenExit, model.SignalBlur, model.SignalHidden, model.SignalUnloadAttempt:
	default:
		client.Send(ws.ErrorResponse{Event: ws.EventError, Error: "invalid signal type"})
		return
	}
	verdict := h.kiosk.Signal(msg.Type)
	client.Send(ws.SuccessResponse{Event: ws.EventSuccess, Data: verdict})
}

func (h *WSHandler) handleAutosave(client *ws.Client, msg ws.RequestPayload) {
	if msg.QID == "" {
		client.Send(ws.ErrorResponse{Event: ws.EventError, Error: "q_id is required"})
		return
	}
	// A missing kind is filled in from the question type.
	err := h.kiosk.SetAnswer(model.ID(msg.QID), model.Answer{Kind: msg.Kind, Value: msg.Answer})
	if err != nil {
		_, code := classify(err)
		if !errors.Is(err, session.ErrNotInProgress) {
			h.log.Debug().Err(err).Str("q_id", msg.QID).Msg("Autosave rejected")
		}
		client.Send(ws.ErrorResponse{Event: ws.EventError, Error: response.GetMessage(code)})
		return
	}
	client.Send(ws.SuccessResponse{Event: ws.EventSuccess, Data: map[string]string{"status": "saved", "q_id": msg.QID}})
}
