package dispatcher

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/pdazone/engine/internal/gameerr"
	"github.com/pdazone/engine/internal/identity"
	"go.opentelemetry.io/otel/metric"
)

var (
	// ErrUnknownCommand is returned by Dispatch for unregistered commands.
	ErrUnknownCommand = errors.New("unknown command")
	// ErrQueueFull is returned by a non-blocking buffered handler whose queue is full.
	ErrQueueFull = errors.New("queue full")
)

// Event is one command addressed to the engine: the resolved caller, the
// route parameters and the raw JSON body.
type Event struct {
	Command   string
	Caller    identity.Identity
	Params    map[string]string
	Body      json.RawMessage
	Timestamp time.Time
}

// Param returns the route parameter name, or "".
func (e Event) Param(name string) string {
	return e.Params[name]
}

// HandlerFunc processes an event and returns a result.
type HandlerFunc func(ctx context.Context, e Event) (any, error)

// Logger interface for pluggable logging.
type Logger interface {
	Debug(msg string, keysAndValues ...any)
	Info(msg string, keysAndValues ...any)
	Error(msg string, keysAndValues ...any)
}

// Option configures handler registration.
type Option func(*config)

type config struct {
	bufferSize int
	blocking   bool
	logged     bool
}

// Buffered makes the handler async with a queue of the given size.
func Buffered(size int) Option {
	return func(c *config) {
		c.bufferSize = size
	}
}

// Blocking makes a buffered handler block when the queue is full instead of dropping.
func Blocking() Option {
	return func(c *config) {
		c.blocking = true
	}
}

// Logged logs every call and counts it by outcome.
func Logged() Option {
	return func(c *config) {
		c.logged = true
	}
}

type queued struct {
	ctx context.Context
	e   Event
}

// Dispatcher routes events to registered handlers. Handlers are registered
// before the first Dispatch; registration is not synchronized with dispatch.
type Dispatcher struct {
	handlers map[string]HandlerFunc
	logger   Logger

	metrics instruments

	mu      sync.RWMutex
	buffers map[string]chan queued
	wg      sync.WaitGroup
	closed  bool
}

// New creates a new Dispatcher with the given logger.
// Uses the global OTel meter for metrics (no-op if not configured).
func New(logger Logger) (*Dispatcher, error) {
	d := &Dispatcher{
		handlers: make(map[string]HandlerFunc),
		buffers:  make(map[string]chan queued),
		logger:   logger,
	}

	var err error
	if d.metrics, err = newInstruments(d); err != nil {
		return nil, err
	}
	return d, nil
}

// Register adds a handler for the given command with optional configuration.
func (d *Dispatcher) Register(command string, h HandlerFunc, opts ...Option) {
	cfg := &config{}
	for _, opt := range opts {
		opt(cfg)
	}

	handler := h

	if cfg.logged {
		handler = d.withLogging(command, handler)
	}

	if cfg.bufferSize > 0 {
		handler = d.withBuffer(command, cfg.bufferSize, cfg.blocking, handler)
	}

	d.handlers[command] = handler
}

// Dispatch routes an event to its registered handler.
func (d *Dispatcher) Dispatch(ctx context.Context, e Event) (any, error) {
	h, ok := d.handlers[e.Command]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownCommand, e.Command)
	}
	if e.Timestamp.IsZero() {
		e.Timestamp = time.Now().UTC()
	}
	return h(ctx, e)
}

// HasHandler returns true if a handler is registered for the command.
func (d *Dispatcher) HasHandler(command string) bool {
	_, ok := d.handlers[command]
	return ok
}

// Close stops accepting queued events and waits until every queue drains.
func (d *Dispatcher) Close() {
	d.mu.Lock()
	if d.closed {
		d.mu.Unlock()
		return
	}
	d.closed = true
	for _, buf := range d.buffers {
		close(buf)
	}
	d.mu.Unlock()
	d.wg.Wait()
}

func (d *Dispatcher) withBuffer(command string, size int, blocking bool, h HandlerFunc) HandlerFunc {
	buffer := make(chan queued, size)

	d.mu.Lock()
	d.buffers[command] = buffer
	d.mu.Unlock()

	cmdAttr := commandAttr(command)

	d.wg.Add(1)
	go func() {
		defer d.wg.Done()
		for q := range buffer {
			if _, err := h(q.ctx, q.e); err != nil {
				d.logger.Error("queued event failed", "command", command, "error", err)
			}
			d.metrics.processed.Add(context.Background(), 1, metric.WithAttributes(cmdAttr))
		}
	}()

	// Queued events outlive the request that produced them.
	enqueue := func(ctx context.Context, e Event) (any, error) {
		d.mu.RLock()
		defer d.mu.RUnlock()
		if d.closed {
			return nil, fmt.Errorf("%w: %s closed", ErrQueueFull, command)
		}
		q := queued{ctx: context.WithoutCancel(ctx), e: e}
		if blocking {
			buffer <- q
			return "queued", nil
		}
		select {
		case buffer <- q:
			return "queued", nil
		default:
			d.metrics.dropped.Add(ctx, 1, metric.WithAttributes(cmdAttr))
			return nil, fmt.Errorf("%w: %s", ErrQueueFull, command)
		}
	}
	return enqueue
}

func (d *Dispatcher) withLogging(command string, h HandlerFunc) HandlerFunc {
	return func(ctx context.Context, e Event) (any, error) {
		start := time.Now()
		d.logger.Debug("handling event", "command", command, "player", e.Caller.PlayerID, "bytes", len(e.Body))

		result, err := h(ctx, e)

		kind := gameerr.KindOf(err)
		switch {
		case err == nil:
			d.logger.Debug("event complete", "command", command, "duration", time.Since(start))
		case kind == gameerr.KindTransient || kind == gameerr.KindInternal:
			d.logger.Error("event failed", "command", command, "duration", time.Since(start), "error", err)
		default:
			d.logger.Info("event rejected", "command", command, "code", gameerr.CodeOf(err), "error", err)
		}
		d.metrics.countOutcome(ctx, command, err)
		return result, err
	}
}
