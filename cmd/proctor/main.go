package main

import (
	"bufio"
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/stemsi/exstem-proctor/internal/auth"
	"github.com/stemsi/exstem-proctor/internal/backend"
	"github.com/stemsi/exstem-proctor/internal/capture"
	"github.com/stemsi/exstem-proctor/internal/config"
	"github.com/stemsi/exstem-proctor/internal/handler"
	"github.com/stemsi/exstem-proctor/internal/logger"
	"github.com/stemsi/exstem-proctor/internal/router"
	"github.com/stemsi/exstem-proctor/internal/service"
	"github.com/stemsi/exstem-proctor/internal/session"
	"github.com/stemsi/exstem-proctor/internal/validator"
	ws "github.com/stemsi/exstem-proctor/internal/websocket"
	"golang.org/x/term"
)

func main() {
	// ─── Load Configuration ────────────────────────────────────────────
	cfg := config.Load()

	// ─── Initialize Logger ─────────────────────────────────────────────
	log := logger.Setup(cfg.LogLevel, cfg.LogFormat)
	log.Info().
		Str("port", cfg.ServerPort).
		Str("mode", cfg.GinMode).
		Str("backend", cfg.BackendURL).
		Bool("capture", cfg.CaptureEnabled).
		Msg("Starting ExStem Proctor")

	// ─── Initialize Validator ──────────────────────────────────────────
	validator.Setup()

	// ─── Student Token ─────────────────────────────────────────────────
	token := cfg.AuthToken
	if token == "" {
		t, err := promptToken()
		if err != nil {
			log.Fatal().Err(err).Msg("EXAM_TOKEN is not set and no token could be read")
		}
		token = t
	}
	authCtx, err := auth.NewContext(token)
	if err != nil {
		log.Fatal().Err(err).Msg("Invalid student token")
	}
	if err := authCtx.Valid(); err != nil {
		log.Fatal().Err(err).Time("expires_at", authCtx.ExpiresAt()).Msg("Student token rejected")
	}
	log.Info().
		Str("student", authCtx.Subject()).
		Str("role", authCtx.Role()).
		Msg("Student token loaded")

	// ─── Backend, Shell Hub, Capture ───────────────────────────────────
	client := backend.NewClient(cfg, authCtx, log)
	hub := ws.NewHub(cfg.ExamListPath, log)

	var devices session.Devices
	if cfg.CaptureEnabled {
		devices = capture.NewFFmpegDevices(cfg, log)
	} else {
		log.Warn().Msg("Capture disabled, sessions run without recording")
	}

	// ─── Initialize Services ──────────────────────────────────────────
	kiosk := service.NewKioskService(client, hub, devices, authCtx, service.KioskConfig{
		AutoSubmitOnExpiry: cfg.AutoSubmitOnExpiry,
		ReportTimeout:      cfg.RequestTimeout,
		DrainTimeout:       cfg.CaptureDrainTimeout,
	}, log)

	// ─── Initialize Handlers ──────────────────────────────────────────
	handlers := &router.Handlers{
		Exam:    handler.NewExamHandler(kiosk),
		Session: handler.NewSessionHandler(kiosk),
		WS:      handler.NewWSHandler(hub, kiosk, log, cfg.AllowedOrigins),
		System:  handler.NewSystemHandler(kiosk, hub),
	}

	// ─── Setup Router ──────────────────────────────────────────────────
	r := router.SetupRouter(authCtx, handlers, cfg)

	srv := &http.Server{
		Addr:              ":" + cfg.ServerPort,
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		log.Info().Str("addr", ":"+cfg.ServerPort).Msg("Shell API listening")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal().Err(err).Msg("Server error")
		}
	}()

	// ─── Graceful Shutdown ─────────────────────────────────────────────
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	sig := <-quit

	log.Info().Str("signal", sig.String()).Msg("Shutting down gracefully...")

	// 1. Stop accepting shell requests.
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("HTTP server shutdown error")
	}

	// 2. Tear down a live session and let the recording finish uploading.
	uploadCtx, uploadCancel := context.WithTimeout(context.Background(), cfg.UploadTimeout)
	defer uploadCancel()
	kiosk.Shutdown(uploadCtx)

	log.Info().Msg("Shutdown complete")
}

// promptToken reads the student token from an interactive terminal
// without echoing it.
func promptToken() (string, error) {
	fd := int(os.Stdin.Fd())
	if !term.IsTerminal(fd) {
		return "", fmt.Errorf("stdin is not a terminal")
	}
	fmt.Fprint(os.Stderr, "Student token: ")
	raw, err := term.ReadPassword(fd)
	fmt.Fprintln(os.Stderr)
	if err != nil {
		// Some terminals refuse raw mode; fall back to a plain read.
		line, rerr := bufio.NewReader(os.Stdin).ReadString('\n')
		if rerr != nil {
			return "", err
		}
		raw = []byte(line)
	}
	return strings.TrimSpace(string(raw)), nil
}

// init sets zerolog global defaults before main runs.
func init() {
	zerolog.TimeFieldFormat = time.RFC3339
}
