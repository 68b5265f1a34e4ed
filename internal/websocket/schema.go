package websocket

import "github.com/stemsi/exstem-proctor/internal/model"

// ─── Actions (Shell → Agent) ────────────────────────────────────────

type Action string

const (
	ActionConfirm  Action = "confirm"
	ActionCancel   Action = "cancel"
	ActionSignal   Action = "signal"
	ActionAutosave Action = "autosave"
	ActionPing     Action = "ping"
)

// RequestPayload is every message the shell may send; fields not used by
// the action are left empty.
type RequestPayload struct {
	Action Action           `json:"action"`
	Type   model.SignalType `json:"type,omitempty"`
	QID    string           `json:"q_id,omitempty"`
	Kind   model.AnswerKind `json:"kind,omitempty"`
	Answer string           `json:"ans,omitempty"`
}

// ─── Events (Agent → Shell) ─────────────────────────────────────────

type Event string

const (
	EventState         Event = "state"
	EventTick          Event = "tick"
	EventNotice        Event = "notice"
	EventFullscreen    Event = "fullscreen"
	EventNavigate      Event = "navigate"
	EventConfirmSubmit Event = "confirm_submit"
	EventPong          Event = "pong"
	EventError         Event = "error"
	EventSuccess       Event = "success"
)

// FullscreenAction is the payload of a fullscreen event.
type FullscreenAction string

const (
	FullscreenEnter FullscreenAction = "enter"
	FullscreenExit  FullscreenAction = "exit"
)

type StateResponse struct {
	Event Event  `json:"event"`
	State string `json:"state"`
}

type TickResponse struct {
	Event     Event  `json:"event"`
	Remaining int    `json:"remaining"`
	Display   string `json:"display"`
}

type NoticeResponse struct {
	Event  Event        `json:"event"`
	Notice model.Notice `json:"notice"`
}

type FullscreenResponse struct {
	Event  Event            `json:"event"`
	Action FullscreenAction `json:"action"`
}

type NavigateResponse struct {
	Event  Event         `json:"event"`
	To     string        `json:"to"`
	Notice *model.Notice `json:"notice,omitempty"`
}

type ConfirmSubmitResponse struct {
	Event Event  `json:"event"`
	Title string `json:"title"`
	Text  string `json:"text"`
}

type SuccessResponse struct {
	Event Event `json:"event"`
	Data  any   `json:"data,omitempty"`
}

type ErrorResponse struct {
	Event Event  `json:"event"`
	Error string `json:"error"`
}

type PongResponse struct {
	Event Event `json:"event"`
}
