package session

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"github.com/stemsi/exstem-proctor/internal/model"
)

// RecorderState enumerates the evidence recorder states.
type RecorderState string

const (
	RecorderIdle               RecorderState = "IDLE"
	RecorderCapturing          RecorderState = "CAPTURING"
	RecorderCaptureUnavailable RecorderState = "CAPTURE_UNAVAILABLE"
	RecorderStopped            RecorderState = "STOPPED"
	RecorderCaptureEmpty       RecorderState = "CAPTURE_EMPTY"
	RecorderUploading          RecorderState = "UPLOADING"
	RecorderDone               RecorderState = "DONE"
	RecorderUploadFailed       RecorderState = "UPLOAD_FAILED"
)

// ErrRecorderBusy is returned by Start on a recorder that already ran.
var ErrRecorderBusy = errors.New("recorder already started")

// Track is one acquired capture device (camera, microphone).
type Track interface {
	Kind() string
	Stop() error
}

// Stream is an open capture. Chunks is closed when capture ends, which
// happens at the latest once every track is stopped.
type Stream interface {
	Chunks() <-chan []byte
	Tracks() []Track
}

// Devices opens the camera and microphone.
type Devices interface {
	Open(ctx context.Context) (Stream, error)
}

// EvidenceRecorder captures one continuous recording per session and
// uploads it exactly once when stopped.
type EvidenceRecorder struct {
	devices      Devices
	uploader     EvidenceUploader
	drainTimeout time.Duration
	log          zerolog.Logger

	mu       sync.Mutex
	state    RecorderState
	handle   model.SessionHandle
	stream   Stream
	artifact model.RecordingArtifact
	drained  chan struct{}
	upload   sync.WaitGroup
}

// NewEvidenceRecorder creates a recorder. drainTimeout bounds the wait for
// the last chunks after the tracks are stopped.
func NewEvidenceRecorder(devices Devices, uploader EvidenceUploader, drainTimeout time.Duration, log zerolog.Logger) *EvidenceRecorder {
	return &EvidenceRecorder{
		devices:      devices,
		uploader:     uploader,
		drainTimeout: drainTimeout,
		log:          log.With().Str("component", "evidence_recorder").Logger(),
		state:        RecorderIdle,
	}
}

// State returns the current recorder state.
func (r *EvidenceRecorder) State() RecorderState {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.state
}

// Start requests device access and begins collecting chunks. A device
// failure moves the recorder to CAPTURE_UNAVAILABLE and is returned so the
// caller can warn the student; the exam itself goes on.
func (r *EvidenceRecorder) Start(ctx context.Context, handle model.SessionHandle) error {
	r.mu.Lock()
	if r.state != RecorderIdle {
		r.mu.Unlock()
		return ErrRecorderBusy
	}
	r.handle = handle
	r.mu.Unlock()

	var (
		stream Stream
		err    error
	)
	if r.devices == nil {
		err = errors.New("no capture devices configured")
	} else {
		stream, err = r.devices.Open(ctx)
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if err != nil {
		r.state = RecorderCaptureUnavailable
		r.log.Warn().Err(err).Str("session_id", handle.String()).Msg("Camera/microphone unavailable, exam continues without recording")
		return err
	}

	r.stream = stream
	r.state = RecorderCapturing
	r.drained = make(chan struct{})
	go r.collect(stream.Chunks(), r.drained)

	r.log.Info().Str("session_id", handle.String()).Int("tracks", len(stream.Tracks())).Msg("Recording started")
	return nil
}

func (r *EvidenceRecorder) collect(chunks <-chan []byte, drained chan<- struct{}) {
	defer close(drained)
	for chunk := range chunks {
		r.mu.Lock()
		r.artifact.Append(chunk)
		r.mu.Unlock()
	}
}

// Stop releases every device track, waits up to the drain timeout for the
// capture to flush its tail, coalesces the recording and launches the
// single upload. A cancelled ctx does not cut the drain short. Calling Stop again, or on a recorder that never
// captured, does nothing. An empty recording is not uploaded.
func (r *EvidenceRecorder) Stop(ctx context.Context) {
	r.mu.Lock()
	if r.state != RecorderCapturing {
		r.mu.Unlock()
		return
	}
	r.state = RecorderStopped
	stream, drained, handle := r.stream, r.drained, r.handle
	r.mu.Unlock()

	r.release(stream)

	select {
	case <-drained:
	case <-time.After(r.drainTimeout):
		r.log.Warn().Str("session_id", handle.String()).Msg("Capture did not finish in time, uploading what was collected")
	}

	r.mu.Lock()
	if r.artifact.Size() == 0 {
		r.state = RecorderCaptureEmpty
		r.mu.Unlock()
		r.log.Error().Str("session_id", handle.String()).Msg("Recording is empty, upload skipped")
		return
	}
	chunks := r.artifact.Chunks()
	ev := r.artifact.Coalesce()
	r.state = RecorderUploading
	r.upload.Add(1)
	r.mu.Unlock()

	r.log.Info().
		Str("session_id", handle.String()).
		Int("chunks", chunks).
		Int("bytes", len(ev.Data)).
		Msg("Recording stopped")

	go r.deliver(context.WithoutCancel(ctx), handle, ev)
}

// release stops every track; it must run whatever happens afterwards.
func (r *EvidenceRecorder) release(stream Stream) {
	for _, t := range stream.Tracks() {
		if err := t.Stop(); err != nil {
			r.log.Warn().Err(err).Str("track", t.Kind()).Msg("Failed stopping track")
		}
	}
}

func (r *EvidenceRecorder) deliver(ctx context.Context, handle model.SessionHandle, ev *model.Evidence) {
	defer r.upload.Done()

	err := r.uploader.UploadEvidence(ctx, handle, ev)

	r.mu.Lock()
	defer r.mu.Unlock()
	if err != nil {
		r.state = RecorderUploadFailed
		r.log.Error().Err(err).Str("session_id", handle.String()).Msg("Recording upload failed")
		return
	}
	r.state = RecorderDone
	r.log.Info().Str("session_id", handle.String()).Str("digest", ev.Digest).Msg("Recording uploaded")
}

// Wait blocks until an in-flight upload has finished.
func (r *EvidenceRecorder) Wait() {
	r.upload.Wait()
}
