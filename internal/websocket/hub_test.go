package websocket

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
	"github.com/stemsi/exstem-proctor/internal/model"
)

func newHubServer(t *testing.T, h *Hub) *httptest.Server {
	t.Helper()
	up := websocket.Upgrader{CheckOrigin: func(*http.Request) bool { return true }}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := up.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		c := h.Register(conn)
		defer h.Unregister(c)
		for {
			var msg RequestPayload
			if err := ReadJSON(conn, &msg); err != nil {
				return
			}
			switch msg.Action {
			case ActionConfirm:
				h.Resolve(true)
			case ActionCancel:
				h.Resolve(false)
			case ActionPing:
				c.Send(PongResponse{Event: EventPong})
			}
		}
	}))
	t.Cleanup(srv.Close)
	return srv
}

func dial(t *testing.T, srv *httptest.Server) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(srv.URL, "http")
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	t.Cleanup(func() { conn.Close() })
	return conn
}

func waitClients(t *testing.T, h *Hub, n int) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for h.Clients() != n {
		if time.Now().After(deadline) {
			t.Fatalf("clients: %d, want %d", h.Clients(), n)
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func readEvent(t *testing.T, conn *websocket.Conn) map[string]any {
	t.Helper()
	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	var m map[string]any
	if err := conn.ReadJSON(&m); err != nil {
		t.Fatalf("read: %v", err)
	}
	return m
}

func TestHubBroadcastsNotices(t *testing.T) {
	h := NewHub("/student/exam", zerolog.Nop())
	srv := newHubServer(t, h)
	a, b := dial(t, srv), dial(t, srv)
	waitClients(t, h, 2)

	h.Notify(model.Notice{Level: model.NoticeWarning, Title: "Peringatan!", Message: "x"})

	for _, conn := range []*websocket.Conn{a, b} {
		ev := readEvent(t, conn)
		if ev["event"] != string(EventNotice) {
			t.Fatalf("event: %v", ev)
		}
		notice := ev["notice"].(map[string]any)
		if notice["title"] != "Peringatan!" || notice["level"] != "warning" {
			t.Fatalf("notice: %v", notice)
		}
	}
}

func TestHubNavigateAndFullscreen(t *testing.T) {
	h := NewHub("/student/exam", zerolog.Nop())
	srv := newHubServer(t, h)
	conn := dial(t, srv)
	waitClients(t, h, 1)

	if err := h.RequestFullscreen(context.Background()); err != nil {
		t.Fatal(err)
	}
	if ev := readEvent(t, conn); ev["event"] != "fullscreen" || ev["action"] != "enter" {
		t.Fatalf("fullscreen: %v", ev)
	}

	h.ToExamList(&model.Notice{Title: "Waktu Habis!"})
	ev := readEvent(t, conn)
	if ev["event"] != "navigate" || ev["to"] != "/student/exam" {
		t.Fatalf("navigate: %v", ev)
	}

	h.Tick(65, "1:05")
	if ev := readEvent(t, conn); ev["display"] != "1:05" || ev["remaining"] != float64(65) {
		t.Fatalf("tick: %v", ev)
	}
}

func TestHubConfirmRoundTrip(t *testing.T) {
	for _, tc := range []struct {
		action Action
		want   bool
	}{{ActionConfirm, true}, {ActionCancel, false}} {
		h := NewHub("/", zerolog.Nop())
		srv := newHubServer(t, h)
		conn := dial(t, srv)
		waitClients(t, h, 1)

		result := make(chan bool, 1)
		go func() {
			ok, err := h.ConfirmSubmit(context.Background())
			if err != nil {
				t.Errorf("confirm: %v", err)
			}
			result <- ok
		}()

		if ev := readEvent(t, conn); ev["event"] != string(EventConfirmSubmit) {
			t.Fatalf("event: %v", ev)
		}
		payload, _ := json.Marshal(RequestPayload{Action: tc.action})
		if err := conn.WriteMessage(websocket.TextMessage, payload); err != nil {
			t.Fatal(err)
		}

		select {
		case got := <-result:
			if got != tc.want {
				t.Fatalf("%s: got %v", tc.action, got)
			}
		case <-time.After(2 * time.Second):
			t.Fatalf("%s: confirmation not resolved", tc.action)
		}
	}
}

func TestHubConfirmWithoutShell(t *testing.T) {
	h := NewHub("/", zerolog.Nop())
	if _, err := h.ConfirmSubmit(context.Background()); !errors.Is(err, ErrNoShell) {
		t.Fatalf("err: %v", err)
	}
	if err := h.RequestFullscreen(context.Background()); !errors.Is(err, ErrNoShell) {
		t.Fatalf("fullscreen err: %v", err)
	}
	if h.Resolve(true) {
		t.Fatal("nothing was pending")
	}
}

func TestHubConfirmCancelledByContext(t *testing.T) {
	h := NewHub("/", zerolog.Nop())
	srv := newHubServer(t, h)
	dial(t, srv)
	waitClients(t, h, 1)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	if _, err := h.ConfirmSubmit(ctx); !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("err: %v", err)
	}

	// A new confirmation can be opened afterwards.
	done := make(chan error, 1)
	go func() {
		_, err := h.ConfirmSubmit(context.Background())
		done <- err
	}()
	deadline := time.Now().Add(time.Second)
	for !h.Resolve(true) {
		if time.Now().After(deadline) {
			t.Fatal("second confirmation never opened")
		}
		time.Sleep(time.Millisecond)
	}
	if err := <-done; err != nil {
		t.Fatalf("second confirm: %v", err)
	}
}

func TestHubPing(t *testing.T) {
	h := NewHub("/", zerolog.Nop())
	srv := newHubServer(t, h)
	conn := dial(t, srv)
	waitClients(t, h, 1)

	if err := conn.WriteJSON(RequestPayload{Action: ActionPing}); err != nil {
		t.Fatal(err)
	}
	if ev := readEvent(t, conn); ev["event"] != "pong" {
		t.Fatalf("event: %v", ev)
	}
}
