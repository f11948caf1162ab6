package logging

import (
	"context"
	"fmt"
	"log/slog"
	"maps"
	"sync"
)

// Sink is one named log destination: console, session file, graylog or otel.
type Sink struct {
	Name    string
	Handler slog.Handler
}

// sinkFailures counts Handle errors per sink name.
type sinkFailures struct {
	mu     sync.Mutex
	counts map[string]int
}

func (f *sinkFailures) add(name string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.counts == nil {
		f.counts = make(map[string]int)
	}
	f.counts[name]++
}

func (f *sinkFailures) snapshot() map[string]int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return maps.Clone(f.counts)
}

// sinkHandler writes each record to every sink that takes its level. A
// failing sink is counted and never blocks the others.
type sinkHandler struct {
	sinks    []Sink
	failures *sinkFailures
}

func newSinkHandler(sinks ...Sink) *sinkHandler {
	h := &sinkHandler{failures: &sinkFailures{}}
	for _, s := range sinks {
		if s.Handler != nil {
			h.sinks = append(h.sinks, s)
		}
	}
	return h
}

func (h *sinkHandler) Enabled(ctx context.Context, level slog.Level) bool {
	for _, s := range h.sinks {
		if s.Handler.Enabled(ctx, level) {
			return true
		}
	}
	return false
}

func (h *sinkHandler) Handle(ctx context.Context, r slog.Record) error {
	var first error
	for _, s := range h.sinks {
		if !s.Handler.Enabled(ctx, r.Level) {
			continue
		}
		if err := s.Handler.Handle(ctx, r.Clone()); err != nil {
			h.failures.add(s.Name)
			if first == nil {
				first = fmt.Errorf("log sink %s: %w", s.Name, err)
			}
		}
	}
	return first
}

func (h *sinkHandler) derive(fn func(slog.Handler) slog.Handler) *sinkHandler {
	out := &sinkHandler{sinks: make([]Sink, len(h.sinks)), failures: h.failures}
	for i, s := range h.sinks {
		out.sinks[i] = Sink{Name: s.Name, Handler: fn(s.Handler)}
	}
	return out
}

func (h *sinkHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	return h.derive(func(s slog.Handler) slog.Handler { return s.WithAttrs(attrs) })
}

func (h *sinkHandler) WithGroup(name string) slog.Handler {
	if name == "" {
		return h
	}
	return h.derive(func(s slog.Handler) slog.Handler { return s.WithGroup(name) })
}
