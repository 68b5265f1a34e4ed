package model

import (
	"encoding/hex"

	"golang.org/x/crypto/blake2b"
)

const (
	RecordingMIMEType = "video/webm"
	RecordingFilename = "exam-recording.webm"
)

// RecordingArtifact accumulates captured media chunks in arrival order.
// It is not safe for concurrent use; the recorder guards it.
type RecordingArtifact struct {
	chunks [][]byte
	size   int
}

// Append adds a chunk. Empty chunks are dropped.
func (a *RecordingArtifact) Append(chunk []byte) {
	if len(chunk) == 0 {
		return
	}
	a.chunks = append(a.chunks, chunk)
	a.size += len(chunk)
}

// Chunks returns the number of accumulated chunks.
func (a *RecordingArtifact) Chunks() int { return len(a.chunks) }

// Size returns the total accumulated bytes.
func (a *RecordingArtifact) Size() int { return a.size }

// Coalesce joins the chunks into a single Evidence and empties the
// artifact; the chunk buffers are handed off, not copied twice.
func (a *RecordingArtifact) Coalesce() *Evidence {
	data := make([]byte, 0, a.size)
	for _, c := range a.chunks {
		data = append(data, c...)
	}
	a.chunks = nil
	a.size = 0

	sum := blake2b.Sum256(data)
	return &Evidence{
		Data:     data,
		MIMEType: RecordingMIMEType,
		Filename: RecordingFilename,
		Digest:   "blake2b-256:" + hex.EncodeToString(sum[:]),
	}
}

// Evidence is the single recording uploaded at the end of a session.
type Evidence struct {
	Data     []byte
	MIMEType string
	Filename string
	Digest   string
}
