package session

import "errors"

// Sentinel errors for session operations.
var (
	ErrInvalidTransition = errors.New("invalid session state transition")
	ErrNotInProgress     = errors.New("exam is not in progress")
	ErrUnknownQuestion   = errors.New("question is not part of this exam")
	ErrInvalidAnswer     = errors.New("answer does not fit the question")
	ErrSubmitCancelled   = errors.New("submission cancelled by student")
	ErrLoadFailed        = errors.New("exam could not be loaded")
	ErrStartFailed       = errors.New("exam session could not be started")
	ErrSubmitFailed      = errors.New("exam submission failed")
)
