package model

import (
	"strings"
	"testing"
)

func TestRecordingArtifactCoalesce(t *testing.T) {
	var a RecordingArtifact
	a.Append([]byte("web"))
	a.Append(nil)
	a.Append([]byte("m-data"))

	if a.Chunks() != 2 || a.Size() != 9 {
		t.Fatalf("chunks=%d size=%d", a.Chunks(), a.Size())
	}

	ev := a.Coalesce()
	if string(ev.Data) != "webm-data" {
		t.Fatalf("data: got %q", ev.Data)
	}
	if ev.Filename != RecordingFilename || ev.MIMEType != RecordingMIMEType {
		t.Fatalf("unexpected file metadata: %+v", ev)
	}
	if !strings.HasPrefix(ev.Digest, "blake2b-256:") || len(ev.Digest) != len("blake2b-256:")+64 {
		t.Fatalf("digest: got %q", ev.Digest)
	}
	if a.Size() != 0 || a.Chunks() != 0 {
		t.Fatal("artifact should be empty after coalesce")
	}
}
