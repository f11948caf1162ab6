package dispatcher

import (
	"context"
	"fmt"

	"github.com/pdazone/engine/internal/gameerr"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// meterName scopes the zone server's command metrics.
const meterName = "github.com/pdazone/engine/zoneserver/commands"

// instruments count player and operator commands. With no meter provider
// installed they are no-ops.
type instruments struct {
	queueDepth metric.Int64ObservableGauge
	processed  metric.Int64Counter
	dropped    metric.Int64Counter
	outcomes   metric.Int64Counter
}

func newInstruments(d *Dispatcher) (instruments, error) {
	m := otel.Meter(meterName)
	var ins instruments
	var err error

	if ins.queueDepth, err = m.Int64ObservableGauge(
		"zoneserver.command.queue.depth",
		metric.WithDescription("Commands waiting in a queued handler"),
	); err != nil {
		return ins, fmt.Errorf("creating queue depth gauge: %w", err)
	}
	if _, err = m.RegisterCallback(func(_ context.Context, o metric.Observer) error {
		d.mu.RLock()
		defer d.mu.RUnlock()
		for cmd, buf := range d.buffers {
			o.ObserveInt64(ins.queueDepth, int64(len(buf)), metric.WithAttributes(commandAttr(cmd)))
		}
		return nil
	}, ins.queueDepth); err != nil {
		return ins, fmt.Errorf("registering queue depth callback: %w", err)
	}

	if ins.processed, err = m.Int64Counter(
		"zoneserver.command.queue.processed",
		metric.WithDescription("Queued commands run to completion"),
	); err != nil {
		return ins, fmt.Errorf("creating processed counter: %w", err)
	}
	if ins.dropped, err = m.Int64Counter(
		"zoneserver.command.queue.dropped",
		metric.WithDescription("Commands refused because their queue was full"),
	); err != nil {
		return ins, fmt.Errorf("creating dropped counter: %w", err)
	}
	if ins.outcomes, err = m.Int64Counter(
		"zoneserver.commands",
		metric.WithDescription("Commands handled, by game error kind"),
	); err != nil {
		return ins, fmt.Errorf("creating commands counter: %w", err)
	}
	return ins, nil
}

func commandAttr(command string) attribute.KeyValue {
	return attribute.String("command", command)
}

// outcome names the result of a command for metrics: ok or the error kind.
func outcome(err error) string {
	if err == nil {
		return "ok"
	}
	return string(gameerr.KindOf(err))
}

func (ins instruments) countOutcome(ctx context.Context, command string, err error) {
	ins.outcomes.Add(ctx, 1, metric.WithAttributes(commandAttr(command), attribute.String("outcome", outcome(err))))
}
