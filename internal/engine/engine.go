// internal/engine/engine.go
package engine

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/pdazone/engine/internal/cache"
	"github.com/pdazone/engine/internal/clock"
	"github.com/pdazone/engine/internal/config"
	"github.com/pdazone/engine/internal/extraction"
	"github.com/pdazone/engine/internal/gameerr"
	"github.com/pdazone/engine/internal/identity"
	"github.com/pdazone/engine/internal/loot"
	"github.com/pdazone/engine/internal/quest"
	"github.com/pdazone/engine/internal/storage"
	"github.com/pdazone/engine/internal/tick"
	"github.com/pdazone/engine/internal/trade"
	"github.com/pdazone/engine/pkg/core"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// Telemetry receives gameplay measurements. Implementations must not block.
type Telemetry interface {
	Record(measurement string, tags map[string]string, fields map[string]any, at time.Time)
}

type nopTelemetry struct{}

func (nopTelemetry) Record(string, map[string]string, map[string]any, time.Time) {}

// Engine composes the game components over one store. Every operation that
// touches a player record holds that player's key lock for its whole call,
// so calls for one player are linearizable while different players run in
// parallel.
type Engine struct {
	store storage.Store
	clock clock.Clock
	cfg   config.EngineConfig
	log   *slog.Logger

	locks *cache.KeyLock
	zones *cache.ZoneCache

	quests     *quest.Engine
	extraction *extraction.Coordinator
	trade      *trade.Manager
	ticks      *tick.Processor
	loot       loot.Policy
	roll       loot.Roller

	telemetry Telemetry
	ops       metric.Int64Counter
	retries   metric.Int64Counter
}

// Option configures an Engine.
type Option func(*Engine)

// WithClock replaces the wall clock.
func WithClock(c clock.Clock) Option {
	return func(e *Engine) { e.clock = c }
}

// WithLogger sets the logger used by the engine and its components.
func WithLogger(l *slog.Logger) Option {
	return func(e *Engine) { e.log = l }
}

// WithRoller replaces the dice used for item loss and looting.
func WithRoller(r loot.Roller) Option {
	return func(e *Engine) { e.roll = r }
}

// WithTelemetry sends gameplay measurements to t.
func WithTelemetry(t Telemetry) Option {
	return func(e *Engine) { e.telemetry = t }
}

// New creates an engine over store.
func New(store storage.Store, cfg config.EngineConfig, opts ...Option) (*Engine, error) {
	e := &Engine{
		store:     store,
		clock:     clock.Real{},
		cfg:       cfg,
		log:       slog.Default(),
		locks:     cache.NewKeyLock(),
		zones:     cache.NewZoneCache(),
		telemetry: nopTelemetry{},
		loot:      loot.PolicyFrom(cfg),
		roll:      loot.NewRoller(),
	}
	for _, opt := range opts {
		opt(e)
	}

	e.quests = quest.New(cfg.MaxActiveQuests, e.log.With("component", "quest"))
	e.extraction = extraction.New(cfg, e.quests, e.log.With("component", "extraction"))
	e.trade = trade.New(cfg.TradeSessionTTL, e.log.With("component", "trade"))
	var err error
	e.ticks, err = tick.New(cfg, e.quests, e.roll, e.log.With("component", "tick"))
	if err != nil {
		return nil, err
	}

	m := meter()
	e.ops, err = m.Int64Counter(
		"engine.operations",
		metric.WithDescription("Engine operations by name and outcome kind"),
	)
	if err != nil {
		return nil, err
	}
	e.retries, err = m.Int64Counter(
		"engine.store.retries",
		metric.WithDescription("Transactions retried after a version conflict"),
	)
	if err != nil {
		return nil, err
	}
	return e, nil
}

// Now returns the engine clock's current time.
func (e *Engine) Now() time.Time {
	return e.clock.Now()
}

// Store returns the underlying store.
func (e *Engine) Store() storage.Store {
	return e.store
}

// Config returns the game constants.
func (e *Engine) Config() config.EngineConfig {
	return e.cfg
}

// Extraction exposes the coordinator for background reaping.
func (e *Engine) Extraction() *extraction.Coordinator {
	return e.extraction
}

// Trade exposes the session manager for background sweeping.
func (e *Engine) Trade() *trade.Manager {
	return e.trade
}

// update runs fn in a transaction. An error for which gameerr.Committed
// holds is returned after the transaction commits. A version conflict
// retries the whole call once; a second one is reported as a conflict.
func (e *Engine) update(ctx context.Context, op string, fn func(tx storage.Tx) error) (err error) {
	defer func() { e.count(ctx, op, err) }()

	for attempt := 0; ; attempt++ {
		var gameErr error
		err = e.store.Update(ctx, func(tx storage.Tx) error {
			gameErr = fn(tx)
			if gameErr != nil && !gameerr.Committed(gameErr) {
				return gameErr
			}
			return nil
		})
		if err == nil && gameErr != nil {
			return gameErr
		}
		if !errors.Is(err, storage.ErrConflict) {
			return classify(err)
		}
		if attempt > 0 {
			e.log.Warn("store conflict persisted after retry", "op", op)
			return &gameerr.Error{
				Kind: gameerr.KindConflict, Code: gameerr.CodeConcurrentUpdate,
				Message: "concurrent update, re-fetch and try again", Err: err,
			}
		}
		e.retries.Add(ctx, 1, metric.WithAttributes(attribute.String("op", op)))
		e.log.Warn("store conflict, retrying", "op", op)
	}
}

// view runs fn in a read-only transaction.
func (e *Engine) view(ctx context.Context, op string, fn func(tx storage.Tx) error) (err error) {
	defer func() { e.count(ctx, op, err) }()
	return classify(e.store.View(ctx, fn))
}

// classify leaves game errors and context errors alone and turns anything
// else coming out of the store into a transient error.
func classify(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return err
	}
	var ge *gameerr.Error
	if errors.As(err, &ge) {
		return err
	}
	return gameerr.Transient(err)
}

func (e *Engine) count(ctx context.Context, op string, err error) {
	outcome := "ok"
	if err != nil {
		outcome = string(gameerr.KindOf(err))
		if gameerr.KindOf(err) == gameerr.KindTransient {
			e.log.Error("operation failed", "op", op, "error", err)
		}
	}
	e.ops.Add(ctx, 1, metric.WithAttributes(
		attribute.String("op", op),
		attribute.String("outcome", outcome),
	))
}

// lock holds the key lock of playerID until the returned func is called.
func (e *Engine) lock(playerID string) func() {
	return e.locks.Lock("player:" + playerID)
}

func (e *Engine) lockAll(playerIDs ...string) func() {
	keys := make([]string, 0, len(playerIDs))
	for _, id := range playerIDs {
		keys = append(keys, "player:"+id)
	}
	return e.locks.LockAll(keys...)
}

// caller checks that id names a player.
func caller(id identity.Identity) error {
	if id.PlayerID == "" {
		return gameerr.Forbidden(gameerr.CodeNotOwner, "caller has no player id")
	}
	return nil
}

func operator(id identity.Identity) error {
	if !id.Operator() {
		return gameerr.Forbidden(gameerr.CodeOperatorRequired, "operator role required")
	}
	return nil
}

func loadPlayer(tx storage.Tx, id string) (core.Player, error) {
	p, err := tx.Player(id)
	if errors.Is(err, storage.ErrNotFound) {
		return p, gameerr.NotFound(gameerr.CodePlayerNotFound, "player %s not found", id)
	}
	return p, err
}

// zoneSet returns the active zone set, reading the store on a cache miss.
// A zone write committed while the store is read wins over the read.
func (e *Engine) zoneSet(ctx context.Context) ([]core.Zone, error) {
	zs, gen, ok := e.zones.All()
	if ok {
		return zs, nil
	}
	err := e.store.View(ctx, func(tx storage.Tx) error {
		var err error
		zs, err = tx.Zones()
		return err
	})
	if err != nil {
		return nil, classify(err)
	}
	if !e.zones.Fill(gen, zs) {
		e.log.Debug("zone set changed while loading, not cached")
	}
	return zs, nil
}
