package websocket

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
	"github.com/stemsi/exstem-proctor/internal/model"
)

var (
	// ErrNoShell is returned when an interaction needs a connected shell.
	ErrNoShell = errors.New("no shell connected")
	// ErrConfirmPending is returned when a confirmation is already open.
	ErrConfirmPending = errors.New("a submit confirmation is already pending")
)

const sendBuffer = 32

// Hub fans session events out to connected shells and carries the submit
// confirmation round-trip. It is the agent side of the shell's fullscreen,
// navigation, notice and confirm APIs.
type Hub struct {
	examListPath string
	log          zerolog.Logger

	mu      sync.Mutex
	clients map[*Client]struct{}
	pending chan bool
}

// NewHub creates an empty hub. examListPath is where navigate events send
// the shell.
func NewHub(examListPath string, log zerolog.Logger) *Hub {
	return &Hub{
		examListPath: examListPath,
		log:          log.With().Str("component", "ws_hub").Logger(),
		clients:      make(map[*Client]struct{}),
	}
}

// Client is one connected shell.
type Client struct {
	hub  *Hub
	conn *websocket.Conn
	send chan any
	done chan struct{}
	once sync.Once
}

// Register adds a connection and starts its write pump.
func (h *Hub) Register(conn *websocket.Conn) *Client {
	c := &Client{
		hub:  h,
		conn: conn,
		send: make(chan any, sendBuffer),
		done: make(chan struct{}),
	}
	h.mu.Lock()
	h.clients[c] = struct{}{}
	n := len(h.clients)
	h.mu.Unlock()

	go c.writePump()
	h.log.Info().Int("clients", n).Msg("Shell connected")
	return c
}

// Unregister removes a client and stops its write pump.
func (h *Hub) Unregister(c *Client) {
	h.mu.Lock()
	_, ok := h.clients[c]
	delete(h.clients, c)
	n := len(h.clients)
	h.mu.Unlock()

	if ok {
		c.close()
		h.log.Info().Int("clients", n).Msg("Shell disconnected")
	}
}

// Clients returns the number of connected shells.
func (h *Hub) Clients() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.clients)
}

// Broadcast queues v for every client. A client whose buffer is full is
// dropped.
func (h *Hub) Broadcast(v any) {
	h.mu.Lock()
	var slow []*Client
	for c := range h.clients {
		select {
		case c.send <- v:
		default:
			slow = append(slow, c)
		}
	}
	h.mu.Unlock()

	for _, c := range slow {
		h.log.Warn().Msg("Shell too slow, dropping connection")
		h.Unregister(c)
	}
}

// RequestFullscreen asks the shell to enter fullscreen.
func (h *Hub) RequestFullscreen(context.Context) error {
	if h.Clients() == 0 {
		return ErrNoShell
	}
	h.Broadcast(FullscreenResponse{Event: EventFullscreen, Action: FullscreenEnter})
	return nil
}

// ExitFullscreen asks the shell to leave fullscreen.
func (h *Hub) ExitFullscreen(context.Context) error {
	if h.Clients() == 0 {
		return ErrNoShell
	}
	h.Broadcast(FullscreenResponse{Event: EventFullscreen, Action: FullscreenExit})
	return nil
}

// ToExamList sends the shell back to the exam list.
func (h *Hub) ToExamList(notice *model.Notice) {
	h.Broadcast(NavigateResponse{Event: EventNavigate, To: h.examListPath, Notice: notice})
}

// Notify shows a notice in the shell.
func (h *Hub) Notify(notice model.Notice) {
	h.Broadcast(NoticeResponse{Event: EventNotice, Notice: notice})
}

// Tick publishes the remaining time.
func (h *Hub) Tick(remaining int, display string) {
	h.Broadcast(TickResponse{Event: EventTick, Remaining: remaining, Display: display})
}

// State publishes a session state change.
func (h *Hub) State(state string) {
	h.Broadcast(StateResponse{Event: EventState, State: state})
}

// ConfirmSubmit opens the confirmation dialog in the shell and waits for
// Resolve or ctx.
func (h *Hub) ConfirmSubmit(ctx context.Context) (bool, error) {
	h.mu.Lock()
	if len(h.clients) == 0 {
		h.mu.Unlock()
		return false, ErrNoShell
	}
	if h.pending != nil {
		h.mu.Unlock()
		return false, ErrConfirmPending
	}
	answer := make(chan bool, 1)
	h.pending = answer
	h.mu.Unlock()

	defer func() {
		h.mu.Lock()
		if h.pending == answer {
			h.pending = nil
		}
		h.mu.Unlock()
	}()

	h.Broadcast(ConfirmSubmitResponse{
		Event: EventConfirmSubmit,
		Title: "Kirim Ujian?",
		Text:  "Pastikan semua jawaban sudah terisi. Jawaban tidak dapat diubah setelah dikirim.",
	})

	select {
	case ok := <-answer:
		return ok, nil
	case <-ctx.Done():
		return false, ctx.Err()
	}
}

// Resolve answers the pending confirmation. It reports whether one was
// pending.
func (h *Hub) Resolve(confirmed bool) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.pending == nil {
		return false
	}
	select {
	case h.pending <- confirmed:
	default:
	}
	h.pending = nil
	return true
}

// Close disconnects every client.
func (h *Hub) Close() {
	h.mu.Lock()
	clients := make([]*Client, 0, len(h.clients))
	for c := range h.clients {
		clients = append(clients, c)
	}
	h.mu.Unlock()
	for _, c := range clients {
		h.Unregister(c)
	}
}

// Send queues v for this client only.
func (c *Client) Send(v any) {
	select {
	case c.send <- v:
	case <-c.done:
	default:
		c.hub.log.Warn().Msg("Shell send buffer full, reply dropped")
	}
}

// Conn returns the underlying connection for reads.
func (c *Client) Conn() *websocket.Conn { return c.conn }

func (c *Client) close() {
	c.once.Do(func() { close(c.done) })
}

func (c *Client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case v := <-c.send:
			if err := WriteTyped(c.conn, v); err != nil {
				c.hub.log.Debug().Err(err).Msg("Shell write failed")
				c.hub.Unregister(c)
				return
			}
		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				c.hub.Unregister(c)
				return
			}
		case <-c.done:
			c.conn.WriteControl(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
				time.Now().Add(writeWait))
			return
		}
	}
}
