package session

import (
	"fmt"
	"sync"
	"time"
)

// Ticker abstracts time.Ticker so the countdown can be driven by hand.
type Ticker interface {
	C() <-chan time.Time
	Stop()
}

type realTicker struct{ t *time.Ticker }

func (r realTicker) C() <-chan time.Time { return r.t.C }
func (r realTicker) Stop()               { r.t.Stop() }

// NewRealTicker wraps time.NewTicker.
func NewRealTicker(d time.Duration) Ticker {
	return realTicker{t: time.NewTicker(d)}
}

// CountdownOption configures a Countdown.
type CountdownOption func(*Countdown)

// WithTicker replaces the ticker factory.
func WithTicker(f func(time.Duration) Ticker) CountdownOption {
	return func(c *Countdown) { c.newTicker = f }
}

// WithTickObserver registers a callback invoked after every effective tick
// with the new remaining seconds.
func WithTickObserver(f func(remaining int)) CountdownOption {
	return func(c *Countdown) { c.onTick = f }
}

// Countdown counts wall-clock seconds from duration*60 down to zero. There
// is no pause: blur and tab switches are violations, not breaks.
type Countdown struct {
	interval  time.Duration
	newTicker func(time.Duration) Ticker
	onTick    func(remaining int)

	mu        sync.Mutex
	remaining int
	stop      chan struct{}
	running   bool
	fired     bool
}

// NewCountdown creates a countdown ticking once per second.
func NewCountdown(opts ...CountdownOption) *Countdown {
	c := &Countdown{
		interval:  time.Second,
		newTicker: NewRealTicker,
	}
	for _, o := range opts {
		o(c)
	}
	return c
}

// Start begins counting. guard is consulted on every tick; a tick while
// guard reports false changes nothing. onExpire runs exactly once on its
// own goroutine when the count reaches zero. A non-positive duration
// expires immediately. Start on a running countdown is ignored.
func (c *Countdown) Start(durationMinutes int, guard func() bool, onExpire func()) {
	c.mu.Lock()
	if c.running || c.fired {
		c.mu.Unlock()
		return
	}
	c.remaining = durationMinutes * 60
	if c.remaining <= 0 {
		c.remaining = 0
		c.fired = true
		c.mu.Unlock()
		go onExpire()
		return
	}
	c.running = true
	c.stop = make(chan struct{})
	stop := c.stop
	ticker := c.newTicker(c.interval)
	c.mu.Unlock()

	go c.loop(ticker, stop, guard, onExpire)
}

func (c *Countdown) loop(ticker Ticker, stop <-chan struct{}, guard func() bool, onExpire func()) {
	defer ticker.Stop()
	for {
		select {
		case <-stop:
			return
		case <-ticker.C():
		}

		if guard != nil && !guard() {
			continue
		}

		c.mu.Lock()
		select {
		case <-stop:
			c.mu.Unlock()
			return
		default:
		}
		c.remaining--
		remaining := c.remaining
		expired := remaining <= 0 && !c.fired
		if expired {
			c.fired = true
			c.running = false
		}
		c.mu.Unlock()

		if c.onTick != nil {
			c.onTick(remaining)
		}
		if expired {
			go onExpire()
			return
		}
	}
}

// Stop ends the tick loop. It is safe to call more than once.
func (c *Countdown) Stop() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.running {
		close(c.stop)
		c.running = false
	}
}

// Remaining returns the seconds left.
func (c *Countdown) Remaining() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.remaining
}

// FormatRemaining renders seconds as m:ss.
func FormatRemaining(seconds int) string {
	if seconds < 0 {
		seconds = 0
	}
	return fmt.Sprintf("%d:%02d", seconds/60, seconds%60)
}
