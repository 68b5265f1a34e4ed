package model

// SessionHandle is the opaque session id issued by the backend when a
// student starts an exam. It is required on every session-scoped call.
type SessionHandle = ID

// StartSessionResponse is the backend reply to a session start.
type StartSessionResponse struct {
	ID SessionHandle `json:"id"`
}

// SignalType enumerates the platform signals the shell forwards.
type SignalType string

const (
	SignalFullscreenExit SignalType = "fullscreen_exit"
	SignalBlur           SignalType = "blur"
	SignalHidden         SignalType = "hidden"
	SignalUnloadAttempt  SignalType = "unload_attempt"
)

// SignalRequest is the shell payload for a platform signal.
type SignalRequest struct {
	Type SignalType `json:"type" binding:"required,oneof=fullscreen_exit blur hidden unload_attempt"`
}

// NoticeLevel controls how the shell presents a notice.
type NoticeLevel string

const (
	NoticeInfo    NoticeLevel = "info"
	NoticeSuccess NoticeLevel = "success"
	NoticeWarning NoticeLevel = "warning"
	NoticeError   NoticeLevel = "error"
)

// Notice is a user-facing message pushed to the shell.
type Notice struct {
	Level     NoticeLevel `json:"level"`
	Title     string      `json:"title"`
	Message   string      `json:"message"`
	Retryable bool        `json:"retryable,omitempty"`
}
