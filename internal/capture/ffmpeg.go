// Package capture records camera and microphone through an ffmpeg process
// writing a WebM stream to stdout.
package capture

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os/exec"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"github.com/stemsi/exstem-proctor/internal/config"
	"github.com/stemsi/exstem-proctor/internal/session"
)

const (
	chunkSize    = 64 * 1024
	stopGrace    = 3 * time.Second
	chunkBacklog = 64
)

// FFmpegDevices opens the configured camera and microphone.
type FFmpegDevices struct {
	Binary      string
	VideoFormat string
	VideoDevice string
	AudioFormat string
	AudioDevice string

	log zerolog.Logger
}

// NewFFmpegDevices builds a device source from config.
func NewFFmpegDevices(cfg *config.Config, log zerolog.Logger) *FFmpegDevices {
	return &FFmpegDevices{
		Binary:      cfg.CaptureBinary,
		VideoFormat: cfg.CaptureVideoFormat,
		VideoDevice: cfg.CaptureVideoDevice,
		AudioFormat: cfg.CaptureAudioFormat,
		AudioDevice: cfg.CaptureAudioDevice,
		log:         log.With().Str("component", "capture").Logger(),
	}
}

// Args returns the ffmpeg command line, without the binary.
func (d *FFmpegDevices) Args() []string {
	return []string{
		"-hide_banner", "-loglevel", "error", "-nostats",
		"-f", d.VideoFormat, "-i", d.VideoDevice,
		"-f", d.AudioFormat, "-i", d.AudioDevice,
		"-c:v", "libvpx", "-deadline", "realtime", "-b:v", "1M",
		"-c:a", "libopus",
		"-f", "webm", "pipe:1",
	}
}

// Open starts the capture process.
func (d *FFmpegDevices) Open(ctx context.Context) (session.Stream, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	bin, err := exec.LookPath(d.Binary)
	if err != nil {
		return nil, fmt.Errorf("capture binary %q: %w", d.Binary, err)
	}
	// Not CommandContext: the process must outlive the request that started it.
	cmd := exec.Command(bin, d.Args()...)
	return startProcess(cmd, []string{"video", "audio"}, d.log)
}

// processStream is one capture process exposed as a session.Stream. Every
// track shares the process, so stopping any of them ends the capture.
type processStream struct {
	cmd    *exec.Cmd
	stdin  io.WriteCloser
	chunks chan []byte
	tracks []session.Track
	exited chan struct{}
	log    zerolog.Logger

	stopOnce sync.Once
	stopErr  error
}

func startProcess(cmd *exec.Cmd, kinds []string, log zerolog.Logger) (*processStream, error) {
	stdin, err := cmd.StdinPipe()
	if err != nil {
		return nil, err
	}
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, err
	}
	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("start capture: %w", err)
	}

	p := &processStream{
		cmd:    cmd,
		stdin:  stdin,
		chunks: make(chan []byte, chunkBacklog),
		exited: make(chan struct{}),
		log:    log,
	}
	for _, k := range kinds {
		p.tracks = append(p.tracks, &processTrack{kind: k, stream: p})
	}

	go p.read(stdout)
	log.Debug().Int("pid", cmd.Process.Pid).Strs("tracks", kinds).Msg("Capture process started")
	return p, nil
}

func (p *processStream) Chunks() <-chan []byte    { return p.chunks }
func (p *processStream) Tracks() []session.Track { return p.tracks }

func (p *processStream) read(stdout io.Reader) {
	defer close(p.exited)
	defer close(p.chunks)

	buf := make([]byte, chunkSize)
	for {
		n, err := stdout.Read(buf)
		if n > 0 {
			chunk := make([]byte, n)
			copy(chunk, buf[:n])
			p.chunks <- chunk
		}
		if err != nil {
			if !errors.Is(err, io.EOF) && !errors.Is(err, io.ErrClosedPipe) {
				p.log.Warn().Err(err).Msg("Capture read failed")
			}
			break
		}
	}
	if err := p.cmd.Wait(); err != nil {
		p.log.Debug().Err(err).Msg("Capture process exited")
	}
}

// stop asks ffmpeg to finish the file with "q" and kills it after a grace
// period.
func (p *processStream) stop() error {
	p.stopOnce.Do(func() {
		if _, err := io.WriteString(p.stdin, "q"); err != nil {
			p.log.Debug().Err(err).Msg("Capture stdin closed")
		}
		_ = p.stdin.Close()

		select {
		case <-p.exited:
		case <-time.After(stopGrace):
			p.log.Warn().Msg("Capture process did not stop, killing")
			p.stopErr = p.cmd.Process.Kill()
		}
	})
	return p.stopErr
}

type processTrack struct {
	kind   string
	stream *processStream
}

func (t *processTrack) Kind() string { return t.kind }
func (t *processTrack) Stop() error  { return t.stream.stop() }
