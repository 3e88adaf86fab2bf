package editor

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Surface is the embedded editor runtime the channel drives. Execute
// evaluates a script inside it; delivery of the surface's replies is
// the router's job.
type Surface interface {
	Execute(script string) error
}

// ErrTimeout is returned when the surface does not answer an Invoke in
// time. Callers treat it as a soft failure: the command may still have
// applied, only the confirmation is missing.
var ErrTimeout = errors.New("editor did not respond in time")

// DefaultTimeout bounds ordinary commands; ContentTimeout bounds
// content transfers, which carry whole documents and deserve more slack.
const (
	DefaultTimeout = 5 * time.Second
	ContentTimeout = 10 * time.Second
)

// Channel sends correlated commands into the surface. Every Invoke
// carries a fresh resolver id; the surface echoes it back through a
// TypeResult message and Resolve completes the call.
type Channel struct {
	surface Surface
	logger  *slog.Logger

	mu      sync.Mutex
	waiting map[string]chan json.RawMessage
}

// NewChannel creates a channel over the surface.
func NewChannel(surface Surface, logger *slog.Logger) *Channel {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Channel{
		surface: surface,
		logger:  logger,
		waiting: make(map[string]chan json.RawMessage),
	}
}

type invocation struct {
	ID   string `json:"id"`
	Op   string `json:"op"`
	Args any    `json:"args,omitempty"`
}

// Invoke runs a named operation inside the surface and waits up to
// timeout for its result. A timeout is logged and reported as
// ErrTimeout rather than treated as fatal.
func (c *Channel) Invoke(op string, args any, timeout time.Duration) (json.RawMessage, error) {
	id := uuid.NewString()
	payload, err := json.Marshal(invocation{ID: id, Op: op, Args: args})
	if err != nil {
		return nil, fmt.Errorf("encode %s invocation: %w", op, err)
	}

	done := make(chan json.RawMessage, 1)
	c.mu.Lock()
	c.waiting[id] = done
	c.mu.Unlock()
	defer func() {
		c.mu.Lock()
		delete(c.waiting, id)
		c.mu.Unlock()
	}()

	if err := c.surface.Execute("__invoke(" + string(payload) + ")"); err != nil {
		return nil, fmt.Errorf("execute %s: %w", op, err)
	}

	timer := time.NewTimer(timeout)
	defer timer.Stop()
	select {
	case result := <-done:
		return result, nil
	case <-timer.C:
		c.logger.Warn("editor command timed out", "op", op, "timeout", timeout)
		return nil, fmt.Errorf("%s: %w", op, ErrTimeout)
	}
}

// Send runs an operation without waiting for a result.
func (c *Channel) Send(op string, args any) error {
	payload, err := json.Marshal(invocation{Op: op, Args: args})
	if err != nil {
		return fmt.Errorf("encode %s invocation: %w", op, err)
	}
	return c.surface.Execute("__invoke(" + string(payload) + ")")
}

// Resolve completes a pending Invoke. Results for invocations nobody is
// waiting on (late replies after a timeout) are dropped.
func (c *Channel) Resolve(id string, result json.RawMessage) {
	c.mu.Lock()
	done, ok := c.waiting[id]
	c.mu.Unlock()
	if !ok {
		c.logger.Debug("dropping late editor result", "resolver", id)
		return
	}
	select {
	case done <- result:
	default:
	}
}
