// Package room keeps the client joined to its branch's kitchen room on the
// realtime connection.
package room

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"kitchen-dashboard/internal/metrics"
)

// Socket events of the room protocol.
const (
	EventJoin        = "joinKitchen"
	EventCheck       = "check_room_status"
	EventForceRejoin = "force_rejoin_kitchen"

	ClientType = "kitchen"
)

var (
	ErrThrottled = errors.New("join throttled")
	ErrRejected  = errors.New("join rejected")
)

// Requester sends a request on the socket and returns its ack payload.
type Requester interface {
	Request(ctx context.Context, event string, payload any) (json.RawMessage, error)
}

// Options configures a Controller.
type Options struct {
	BranchID      string
	JoinThrottle  time.Duration
	RetryDelay    time.Duration
	CheckInterval time.Duration
	Metrics       *metrics.Metrics
}

// Status is the membership indicator.
type Status struct {
	InRoom          bool      `json:"inRoom"`
	BranchID        string    `json:"branchId"`
	LastJoinAttempt time.Time `json:"lastJoinAttempt,omitempty"`
	SocketCount     int       `json:"socketCount"`
	JoinAttempts    int       `json:"joinAttempts"`
}

type joinRequest struct {
	BranchID   string `json:"branchId"`
	ClientType string `json:"clientType,omitempty"`
}

type joinAck struct {
	Success     bool   `json:"success"`
	SocketCount int    `json:"socketCount"`
	Message     string `json:"message"`
}

type checkAck struct {
	Success            bool `json:"success"`
	InKitchenRooms     any  `json:"inKitchenRooms"`
	KitchenRoomClients int  `json:"kitchenRoomClients"`
}

// Controller joins the kitchen room on every connect, retries failed joins
// and checks membership periodically.
type Controller struct {
	req      Requester
	opts     Options
	limiter  *rate.Limiter
	onJoined []func(ctx context.Context)

	mu        sync.Mutex
	status    Status
	inFlight  bool
	connected bool
	connCtx   context.Context
	retry     *time.Timer
}

// NewController creates a controller for one branch.
func NewController(req Requester, opts Options) *Controller {
	if opts.JoinThrottle <= 0 {
		opts.JoinThrottle = 2 * time.Second
	}
	if opts.RetryDelay <= 0 {
		opts.RetryDelay = 3 * time.Second
	}
	if opts.CheckInterval <= 0 {
		opts.CheckInterval = 30 * time.Second
	}
	return &Controller{
		req:     req,
		opts:    opts,
		limiter: rate.NewLimiter(rate.Every(opts.JoinThrottle), 1),
		status:  Status{BranchID: opts.BranchID},
	}
}

// OnJoined registers fn to run on its own goroutine after every confirmed join.
func (c *Controller) OnJoined(fn func(ctx context.Context)) {
	c.onJoined = append(c.onJoined, fn)
}

// Status returns a snapshot of the membership state.
func (c *Controller) Status() Status {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.status
}

// HandleConnect marks the socket connected and joins. ctx lives as long as the
// connection.
func (c *Controller) HandleConnect(ctx context.Context) {
	if ctx.Err() != nil {
		return
	}
	c.mu.Lock()
	c.connected = true
	c.connCtx = ctx
	c.mu.Unlock()

	if err := c.JoinRoom(ctx); err != nil {
		log.Printf("Warning: kitchen room join failed: %v", err)
	}
}

// HandleDisconnect clears membership and cancels a pending retry.
func (c *Controller) HandleDisconnect() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.connected = false
	c.connCtx = nil
	c.status.InRoom = false
	c.stopRetryLocked()
}

// JoinRoom sends a throttled join request.
func (c *Controller) JoinRoom(ctx context.Context) error {
	return c.join(ctx, true)
}

func (c *Controller) join(ctx context.Context, throttled bool) error {
	c.mu.Lock()
	if c.inFlight {
		c.mu.Unlock()
		c.opts.Metrics.JoinAttempt("throttled")
		return fmt.Errorf("%w: a join is already in flight", ErrThrottled)
	}
	if throttled && !c.limiter.Allow() {
		c.scheduleRetryLocked()
		c.mu.Unlock()
		c.opts.Metrics.JoinAttempt("throttled")
		return fmt.Errorf("%w: at most one join per %s", ErrThrottled, c.opts.JoinThrottle)
	}
	c.inFlight = true
	c.status.JoinAttempts++
	c.status.LastJoinAttempt = time.Now()
	c.mu.Unlock()

	raw, err := c.req.Request(ctx, EventJoin, joinRequest{BranchID: c.opts.BranchID, ClientType: ClientType})

	var ack joinAck
	if err == nil {
		if uerr := json.Unmarshal(raw, &ack); uerr != nil {
			err = fmt.Errorf("unreadable join ack: %w", uerr)
		} else if !ack.Success {
			err = fmt.Errorf("%w: %s", ErrRejected, ack.Message)
		}
	}

	c.mu.Lock()
	c.inFlight = false
	if err != nil {
		c.scheduleRetryLocked()
		c.mu.Unlock()
		c.opts.Metrics.JoinAttempt("failed")
		return err
	}
	c.markJoinedLocked(ack.SocketCount)
	hookCtx := c.hookContextLocked(ctx)
	c.mu.Unlock()

	c.opts.Metrics.JoinAttempt("joined")
	log.Printf("Joined kitchen room for branch %s (%d sockets)", c.opts.BranchID, ack.SocketCount)
	c.fireJoined(hookCtx)
	return nil
}

// CheckRoomStatus asks the server whether this socket is still in the room
// and rejoins when it is not.
func (c *Controller) CheckRoomStatus(ctx context.Context) (bool, error) {
	raw, err := c.req.Request(ctx, EventCheck, joinRequest{BranchID: c.opts.BranchID})
	if err != nil {
		return false, fmt.Errorf("room status check: %w", err)
	}
	var ack checkAck
	if err := json.Unmarshal(raw, &ack); err != nil {
		return false, fmt.Errorf("unreadable room status: %w", err)
	}

	inRoom := ack.Success && truthy(ack.InKitchenRooms)
	c.mu.Lock()
	c.status.InRoom = inRoom
	c.mu.Unlock()

	if !inRoom {
		log.Printf("Not in kitchen room for branch %s, rejoining", c.opts.BranchID)
		return false, c.JoinRoom(ctx)
	}
	return true, nil
}

// ForceRejoin asks the server to re-add this socket, bypassing the throttle.
// A refused force rejoin falls back to a plain unthrottled join.
func (c *Controller) ForceRejoin(ctx context.Context) error {
	raw, err := c.req.Request(ctx, EventForceRejoin, joinRequest{BranchID: c.opts.BranchID})
	if err == nil {
		var ack joinAck
		if uerr := json.Unmarshal(raw, &ack); uerr == nil && ack.Success {
			c.mu.Lock()
			c.markJoinedLocked(c.status.SocketCount)
			c.stopRetryLocked()
			hookCtx := c.hookContextLocked(ctx)
			c.mu.Unlock()

			c.opts.Metrics.JoinAttempt("forced")
			log.Printf("Force rejoined kitchen room for branch %s", c.opts.BranchID)
			c.fireJoined(hookCtx)
			return nil
		}
	}
	if err != nil && errors.Is(err, context.Canceled) {
		return err
	}
	log.Printf("Warning: force rejoin refused (%v), falling back to a direct join", err)
	return c.join(ctx, false)
}

// Run checks membership every CheckInterval while connected.
func (c *Controller) Run(ctx context.Context) {
	ticker := time.NewTicker(c.opts.CheckInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			c.mu.Lock()
			c.stopRetryLocked()
			c.mu.Unlock()
			return
		case <-ticker.C:
			c.mu.Lock()
			connected, connCtx := c.connected, c.connCtx
			c.mu.Unlock()
			if !connected || connCtx == nil {
				continue
			}
			if _, err := c.CheckRoomStatus(connCtx); err != nil {
				log.Printf("Warning: %v", err)
			}
		}
	}
}

func (c *Controller) markJoinedLocked(socketCount int) {
	c.status.InRoom = true
	c.status.SocketCount = socketCount
	c.stopRetryLocked()
}

// hookContextLocked prefers the connection context so joined hooks outlive
// the request that triggered the join.
func (c *Controller) hookContextLocked(ctx context.Context) context.Context {
	if c.connCtx != nil {
		return c.connCtx
	}
	return ctx
}

func (c *Controller) fireJoined(ctx context.Context) {
	for _, fn := range c.onJoined {
		go fn(ctx)
	}
}

func (c *Controller) scheduleRetryLocked() {
	if !c.connected || c.retry != nil {
		return
	}
	c.retry = time.AfterFunc(c.opts.RetryDelay, func() {
		c.mu.Lock()
		c.retry = nil
		ok := c.connected && !c.status.InRoom
		ctx := c.connCtx
		c.mu.Unlock()
		if !ok || ctx == nil {
			return
		}
		if err := c.JoinRoom(ctx); err != nil {
			log.Printf("Warning: kitchen room join retry failed: %v", err)
		}
	})
}

func (c *Controller) stopRetryLocked() {
	if c.retry != nil {
		c.retry.Stop()
		c.retry = nil
	}
}

// truthy interprets inKitchenRooms, which servers report as a flag, a room
// count or the list of joined rooms.
func truthy(v any) bool {
	switch x := v.(type) {
	case bool:
		return x
	case float64:
		return x > 0
	case []any:
		return len(x) > 0
	case string:
		return x != ""
	}
	return false
}
