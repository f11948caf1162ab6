package dispatcher

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/pdazone/engine/internal/gameerr"
	"github.com/pdazone/engine/internal/identity"
)

// testLogger implements Logger for testing
type testLogger struct {
	mu       sync.Mutex
	messages []string
}

func (l *testLogger) Debug(msg string, keysAndValues ...any) {
	l.add("DEBUG", msg, keysAndValues)
}

func (l *testLogger) Info(msg string, keysAndValues ...any) {
	l.add("INFO", msg, keysAndValues)
}

func (l *testLogger) Error(msg string, keysAndValues ...any) {
	l.add("ERROR", msg, keysAndValues)
}

func (l *testLogger) add(level, msg string, kv []any) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.messages = append(l.messages, fmt.Sprintf("%s: %s %v", level, msg, kv))
}

func (l *testLogger) has(prefix string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	for _, msg := range l.messages {
		if strings.HasPrefix(msg, prefix) {
			return true
		}
	}
	return false
}

func newTestDispatcher(t *testing.T) (*Dispatcher, *testLogger) {
	logger := &testLogger{}

	d, err := New(logger)
	if err != nil {
		t.Fatalf("failed to create dispatcher: %v", err)
	}
	t.Cleanup(d.Close)

	return d, logger
}

func noop(context.Context, Event) (any, error) { return nil, nil }

func TestDispatcher_SyncHandler(t *testing.T) {
	d, _ := newTestDispatcher(t)

	var got Event
	d.Register("quest.accept", func(_ context.Context, e Event) (any, error) {
		got = e
		return "result", nil
	})

	result, err := d.Dispatch(context.Background(), Event{
		Command: "quest.accept",
		Caller:  identity.Identity{PlayerID: "p1"},
		Params:  map[string]string{"id": "q1"},
	})

	if err != nil {
		t.Errorf("unexpected error: %v", err)
	}
	if result != "result" {
		t.Errorf("expected 'result', got %v", result)
	}
	if got.Param("id") != "q1" || got.Caller.PlayerID != "p1" {
		t.Errorf("handler got %+v", got)
	}
	if got.Timestamp.IsZero() {
		t.Error("expected dispatch to stamp the event")
	}
}

func TestDispatcher_UnknownCommand(t *testing.T) {
	d, _ := newTestDispatcher(t)

	_, err := d.Dispatch(context.Background(), Event{Command: "nope"})

	if !errors.Is(err, ErrUnknownCommand) {
		t.Errorf("expected ErrUnknownCommand, got %v", err)
	}
}

func TestDispatcher_BufferedHandler(t *testing.T) {
	d, _ := newTestDispatcher(t)

	var processed atomic.Int32
	var wg sync.WaitGroup
	wg.Add(3)

	d.Register("janitor.sweep", func(context.Context, Event) (any, error) {
		processed.Add(1)
		wg.Done()
		return nil, nil
	}, Buffered(100))

	for i := 0; i < 3; i++ {
		result, err := d.Dispatch(context.Background(), Event{Command: "janitor.sweep"})
		if err != nil {
			t.Errorf("unexpected error: %v", err)
		}
		if result != "queued" {
			t.Errorf("expected 'queued', got %v", result)
		}
	}

	wg.Wait()

	if processed.Load() != 3 {
		t.Errorf("expected 3 processed, got %d", processed.Load())
	}
}

func TestDispatcher_BufferedSurvivesCancel(t *testing.T) {
	d, _ := newTestDispatcher(t)

	seen := make(chan error, 1)
	d.Register("janitor.sweep", func(ctx context.Context, _ Event) (any, error) {
		seen <- ctx.Err()
		return nil, nil
	}, Buffered(1))

	ctx, cancel := context.WithCancel(context.Background())
	if _, err := d.Dispatch(ctx, Event{Command: "janitor.sweep"}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	cancel()

	if err := <-seen; err != nil {
		t.Errorf("queued event saw a cancelled context: %v", err)
	}
}

func TestDispatcher_BufferedDropsWhenFull(t *testing.T) {
	d, _ := newTestDispatcher(t)

	block := make(chan struct{})
	d.Register("full", func(context.Context, Event) (any, error) {
		<-block
		return nil, nil
	}, Buffered(2))
	defer close(block)

	ctx := context.Background()
	d.Dispatch(ctx, Event{Command: "full"})
	d.Dispatch(ctx, Event{Command: "full"})
	d.Dispatch(ctx, Event{Command: "full"})

	_, err := d.Dispatch(ctx, Event{Command: "full"})
	if !errors.Is(err, ErrQueueFull) {
		t.Errorf("expected ErrQueueFull, got %v", err)
	}
}

func TestDispatcher_BufferedBlocking(t *testing.T) {
	d, _ := newTestDispatcher(t)

	block := make(chan struct{})
	d.Register("blocking", func(context.Context, Event) (any, error) {
		<-block
		return nil, nil
	}, Buffered(1), Blocking())

	ctx := context.Background()
	d.Dispatch(ctx, Event{Command: "blocking"})
	d.Dispatch(ctx, Event{Command: "blocking"})

	done := make(chan struct{})
	go func() {
		d.Dispatch(ctx, Event{Command: "blocking"})
		close(done)
	}()

	select {
	case <-done:
		t.Error("dispatch should have blocked")
	case <-time.After(50 * time.Millisecond):
	}

	close(block)
	<-done
}

func TestDispatcher_LoggedHandler(t *testing.T) {
	d, logger := newTestDispatcher(t)

	d.Register("location.report", func(context.Context, Event) (any, error) {
		return "ok", nil
	}, Logged())

	d.Dispatch(context.Background(), Event{Command: "location.report", Body: []byte(`{}`)})

	if !logger.has("DEBUG: handling event") || !logger.has("DEBUG: event complete") {
		t.Errorf("expected start and completion logs, got %v", logger.messages)
	}
}

func TestDispatcher_LoggedRejection(t *testing.T) {
	d, logger := newTestDispatcher(t)

	d.Register("trade.settle", func(context.Context, Event) (any, error) {
		return nil, gameerr.Precondition(gameerr.CodeInsufficientFunds, "balance too low")
	}, Logged())

	d.Dispatch(context.Background(), Event{Command: "trade.settle"})

	if !logger.has("INFO: event rejected") {
		t.Errorf("expected a rejection log, got %v", logger.messages)
	}
	if logger.has("ERROR") {
		t.Error("game errors must not be logged as failures")
	}
}

func TestDispatcher_LoggedHandlerError(t *testing.T) {
	d, logger := newTestDispatcher(t)

	d.Register("broken", func(context.Context, Event) (any, error) {
		return nil, fmt.Errorf("test error")
	}, Logged())

	d.Dispatch(context.Background(), Event{Command: "broken"})

	if !logger.has("ERROR: event failed") {
		t.Error("expected error log message")
	}
}

func TestDispatcher_HasHandler(t *testing.T) {
	d, _ := newTestDispatcher(t)

	d.Register("exists", noop)

	if !d.HasHandler("exists") {
		t.Error("expected handler to exist")
	}
	if d.HasHandler("missing") {
		t.Error("expected handler to not exist")
	}
}

func TestDispatcher_CloseDrainsQueues(t *testing.T) {
	d, _ := newTestDispatcher(t)

	var processed atomic.Int32
	d.Register("slow", func(context.Context, Event) (any, error) {
		time.Sleep(5 * time.Millisecond)
		processed.Add(1)
		return nil, nil
	}, Buffered(10), Logged())

	for i := 0; i < 5; i++ {
		if _, err := d.Dispatch(context.Background(), Event{Command: "slow"}); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
	}
	d.Close()

	if processed.Load() != 5 {
		t.Errorf("expected 5 processed after close, got %d", processed.Load())
	}
	if _, err := d.Dispatch(context.Background(), Event{Command: "slow"}); !errors.Is(err, ErrQueueFull) {
		t.Errorf("expected closed queue to refuse events, got %v", err)
	}
}

func TestOutcome(t *testing.T) {
	tests := []struct {
		err  error
		want string
	}{
		{nil, "ok"},
		{gameerr.NotFound(gameerr.CodeArtifactNotFound, "gone"), "not_found"},
		{gameerr.Conflict(gameerr.CodeAlreadyLooted, "twice"), "conflict"},
		{fmt.Errorf("wrapped: %w", gameerr.Precondition(gameerr.CodePlayerDead, "dead")), "precondition"},
		{errors.New("disk on fire"), "internal"},
	}
	for _, tt := range tests {
		if got := outcome(tt.err); got != tt.want {
			t.Errorf("outcome(%v) = %q, want %q", tt.err, got, tt.want)
		}
	}
}
