// Package transport keeps the single realtime websocket connection to the
// backend alive and multiplexes pushed events and acknowledged requests on it.
package transport

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"kitchen-dashboard/internal/metrics"
)

var (
	ErrNotConnected = errors.New("socket not connected")
	ErrAckTimeout   = errors.New("ack timeout")
)

const (
	writeWait      = 10 * time.Second
	maxMessageSize = 512 * 1024
	sendBuffer     = 64
	eventBuffer    = 256
)

// Options configures a Manager.
type Options struct {
	URL          string
	Header       http.Header
	ReconnectMin time.Duration
	ReconnectMax time.Duration
	PingInterval time.Duration
	AckTimeout   time.Duration
	Dialer       *websocket.Dialer
	Metrics      *metrics.Metrics
}

// State is the connection indicator shown to operators.
type State struct {
	Connected       bool      `json:"connected"`
	Attempts        int       `json:"attempts"`
	LastConnectedAt time.Time `json:"lastConnectedAt,omitempty"`
}

// Manager owns the connection. Hooks must be registered before Run.
type Manager struct {
	opts   Options
	events chan Inbound

	onConnect    []func(ctx context.Context)
	onDisconnect []func()

	mu            sync.Mutex
	state         State
	everConnected bool
	send          chan []byte
	connDone      chan struct{}
	pending       map[string]chan json.RawMessage
}

// NewManager creates a disconnected manager.
func NewManager(opts Options) *Manager {
	if opts.ReconnectMin <= 0 {
		opts.ReconnectMin = 500 * time.Millisecond
	}
	if opts.ReconnectMax < opts.ReconnectMin {
		opts.ReconnectMax = opts.ReconnectMin
	}
	if opts.PingInterval <= 0 {
		opts.PingInterval = 25 * time.Second
	}
	if opts.AckTimeout <= 0 {
		opts.AckTimeout = 5 * time.Second
	}
	if opts.Dialer == nil {
		opts.Dialer = websocket.DefaultDialer
	}
	return &Manager{
		opts:    opts,
		events:  make(chan Inbound, eventBuffer),
		pending: make(map[string]chan json.RawMessage),
	}
}

// OnConnect registers fn to run on its own goroutine after every successful
// connect. ctx is cancelled when that connection drops, and the disconnect
// hooks wait for fn to return.
func (m *Manager) OnConnect(fn func(ctx context.Context)) {
	m.onConnect = append(m.onConnect, fn)
}

// OnDisconnect registers fn to run after every connection loss.
func (m *Manager) OnDisconnect(fn func()) {
	m.onDisconnect = append(m.onDisconnect, fn)
}

// Events returns the pushed frames in arrival order.
func (m *Manager) Events() <-chan Inbound {
	return m.events
}

// State returns a snapshot of the connection state.
func (m *Manager) State() State {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

// Run connects and reconnects with exponential backoff until ctx is done.
func (m *Manager) Run(ctx context.Context) {
	log.Printf("Starting socket manager for %s", m.opts.URL)
	backoff := m.opts.ReconnectMin

	for {
		if ctx.Err() != nil {
			log.Println("Socket manager shutting down.")
			return
		}

		conn, _, err := m.opts.Dialer.DialContext(ctx, m.opts.URL, m.opts.Header)
		if err != nil {
			m.mu.Lock()
			m.state.Attempts++
			attempts := m.state.Attempts
			m.mu.Unlock()
			log.Printf("Error connecting to socket (attempt %d, retry in %s): %v", attempts, backoff, err)

			select {
			case <-ctx.Done():
				log.Println("Socket manager shutting down.")
				return
			case <-time.After(backoff):
			}
			backoff *= 2
			if backoff > m.opts.ReconnectMax {
				backoff = m.opts.ReconnectMax
			}
			continue
		}

		backoff = m.opts.ReconnectMin
		m.serve(ctx, conn)
	}
}

// serve runs one connection until it drops.
func (m *Manager) serve(ctx context.Context, conn *websocket.Conn) {
	connCtx, cancel := context.WithCancel(ctx)
	send := make(chan []byte, sendBuffer)
	done := make(chan struct{})

	m.mu.Lock()
	reconnect := m.everConnected
	m.everConnected = true
	m.send = send
	m.connDone = done
	m.state = State{Connected: true, LastConnectedAt: time.Now()}
	m.mu.Unlock()

	m.opts.Metrics.SetConnected(true, reconnect)
	log.Printf("Socket connected to %s", m.opts.URL)

	go m.writePump(connCtx, conn, send)
	var hooks sync.WaitGroup
	for _, fn := range m.onConnect {
		fn := fn
		hooks.Add(1)
		go func() {
			defer hooks.Done()
			fn(connCtx)
		}()
	}

	m.readPump(connCtx, conn)

	cancel()
	conn.Close()

	m.mu.Lock()
	m.state.Connected = false
	m.send = nil
	m.connDone = nil
	close(done)
	for id, ch := range m.pending {
		close(ch)
		delete(m.pending, id)
	}
	m.mu.Unlock()

	// Connect hooks of this connection finish before its disconnect hooks run.
	hooks.Wait()

	m.opts.Metrics.SetConnected(false, false)
	log.Println("Socket disconnected")
	for _, fn := range m.onDisconnect {
		fn()
	}
}

// readPump pumps frames from the connection until it fails or ctx is done.
func (m *Manager) readPump(ctx context.Context, conn *websocket.Conn) {
	pongWait := 2 * m.opts.PingInterval
	conn.SetReadLimit(maxMessageSize)
	conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPongHandler(func(string) error {
		conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	// Unblock ReadMessage on shutdown.
	stop := context.AfterFunc(ctx, func() { conn.Close() })
	defer stop()

	for {
		_, message, err := conn.ReadMessage()
		if err != nil {
			if ctx.Err() == nil && websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				log.Printf("Socket read error: %v", err)
			}
			return
		}
		conn.SetReadDeadline(time.Now().Add(pongWait))
		m.handleMessage(ctx, message)
	}
}

func (m *Manager) handleMessage(ctx context.Context, message []byte) {
	var f Frame
	if err := json.Unmarshal(message, &f); err != nil {
		log.Printf("Warning: dropping unreadable socket frame: %v", err)
		return
	}

	if f.Event == AckEvent {
		m.mu.Lock()
		ch, ok := m.pending[f.ID]
		if ok {
			delete(m.pending, f.ID)
		}
		m.mu.Unlock()
		if ok {
			ch <- f.Data
		} else {
			log.Printf("Warning: ack for unknown request %q", f.ID)
		}
		return
	}

	select {
	case m.events <- Inbound{Frame: f, ReceivedAt: time.Now()}:
	case <-ctx.Done():
	}
}

// writePump is the only writer of the connection.
func (m *Manager) writePump(ctx context.Context, conn *websocket.Conn, send <-chan []byte) {
	ticker := time.NewTicker(m.opts.PingInterval)
	defer func() {
		ticker.Stop()
		conn.Close()
	}()

	for {
		select {
		case message := <-send:
			conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteMessage(websocket.TextMessage, message); err != nil {
				log.Printf("Socket write error: %v", err)
				return
			}
		case <-ticker.C:
			conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		case <-ctx.Done():
			conn.SetWriteDeadline(time.Now().Add(writeWait))
			conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
			return
		}
	}
}

// Request sends event with payload and waits for its ack.
func (m *Manager) Request(ctx context.Context, event string, payload any) (json.RawMessage, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal %s payload: %w", event, err)
	}
	id := uuid.NewString()
	raw, err := json.Marshal(Frame{Event: event, ID: id, Data: data})
	if err != nil {
		return nil, fmt.Errorf("failed to marshal %s frame: %w", event, err)
	}

	ch := make(chan json.RawMessage, 1)
	m.mu.Lock()
	send, done := m.send, m.connDone
	if send == nil {
		m.mu.Unlock()
		return nil, fmt.Errorf("%s: %w", event, ErrNotConnected)
	}
	m.pending[id] = ch
	m.mu.Unlock()

	defer func() {
		m.mu.Lock()
		delete(m.pending, id)
		m.mu.Unlock()
	}()

	timer := time.NewTimer(m.opts.AckTimeout)
	defer timer.Stop()

	select {
	case send <- raw:
	case <-done:
		return nil, fmt.Errorf("%s: %w", event, ErrNotConnected)
	case <-timer.C:
		return nil, fmt.Errorf("%s: %w", event, ErrAckTimeout)
	case <-ctx.Done():
		return nil, ctx.Err()
	}

	select {
	case resp, ok := <-ch:
		if !ok {
			return nil, fmt.Errorf("%s: %w", event, ErrNotConnected)
		}
		return resp, nil
	case <-timer.C:
		return nil, fmt.Errorf("%s: %w", event, ErrAckTimeout)
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}
