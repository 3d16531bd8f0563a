package mutate

import (
	"context"
	"errors"

	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/metric/noop"

	"github.com/jonwraymond/annosync/observe"
	"github.com/jonwraymond/annosync/store"
)

// ErrNoCall indicates a descriptor without a network call.
var ErrNoCall = errors.New("mutate: descriptor has no call")

// Descriptor declares one write operation. It is created per call,
// consumed synchronously for the optimistic phase, resolved on network
// completion, and discarded after commit or rollback.
type Descriptor struct {
	// Name identifies the operation in logs, e.g. "update_opinion".
	Name string

	// TargetKeys are the entries the optimistic transform touches. They
	// are snapshotted for rollback, and their in-flight reads are
	// cancelled so a concurrent background fetch cannot overwrite the
	// optimistic write.
	TargetKeys []store.Key

	// Optimistic applies the synchronous cache transform before the
	// network call. Nil skips the optimistic phase (rollback is then a
	// no-op restore).
	Optimistic func(*store.Store)

	// Call issues the write and returns the server's authoritative
	// result. Required.
	Call func(ctx context.Context) (any, error)

	// Commit writes the authoritative result into the cache. The
	// server's data always wins over the optimistic guess, because
	// derived fields are server-assigned. May be nil.
	Commit func(*store.Store, any)

	// Invalidates selects the key families that are stale after a
	// successful write. It receives the server result so ownership
	// learned from the response (e.g. which principle holds a sample)
	// can widen the selection. May be nil or return nil.
	Invalidates func(result any) store.KeyPredicate
}

// Config configures an Engine.
type Config struct {
	// Store is the backing entry store. Required.
	Store *store.Store

	// Logger receives mutation lifecycle events. If nil, logging is
	// disabled.
	Logger observe.Logger

	// Meter records commit/rollback counters. If nil, a no-op meter is
	// used.
	Meter metric.Meter
}

// Engine runs mutation descriptors.
type Engine struct {
	store  *store.Store
	logger observe.Logger

	commits   metric.Int64Counter
	rollbacks metric.Int64Counter
}

// New creates an Engine.
func New(cfg Config) *Engine {
	if cfg.Logger == nil {
		cfg.Logger = observe.NopLogger()
	}
	if cfg.Meter == nil {
		cfg.Meter = noop.NewMeterProvider().Meter("annosync")
	}
	e := &Engine{
		store:  cfg.Store,
		logger: cfg.Logger.WithComponent("mutate"),
	}
	e.commits, _ = cfg.Meter.Int64Counter("annosync.mutate.commits")
	e.rollbacks, _ = cfg.Meter.Int64Counter("annosync.mutate.rollbacks")
	return e
}

// Run executes one mutation descriptor.
//
// Invalidations take effect only when the network call succeeds; a failed
// mutation restores the snapshot and marks nothing stale.
func (e *Engine) Run(ctx context.Context, d Descriptor) (any, error) {
	if d.Call == nil {
		return nil, ErrNoCall
	}

	if len(d.TargetKeys) > 0 {
		e.store.CancelInFlight(store.MatchKeys(d.TargetKeys...))
	}
	snapshot := e.store.Snapshot(d.TargetKeys)

	if d.Optimistic != nil {
		d.Optimistic(e.store)
	}

	result, err := d.Call(ctx)
	if err != nil {
		e.store.Restore(snapshot)
		e.rollbacks.Add(ctx, 1)
		e.logger.Warn(ctx, "mutation rolled back",
			observe.F("mutation", d.Name),
			observe.F("error", err.Error()))
		return nil, err
	}

	if d.Commit != nil {
		d.Commit(e.store, result)
	}
	if d.Invalidates != nil {
		if pred := d.Invalidates(result); pred != nil {
			e.store.MarkStaleWhere(pred)
		}
	}
	e.commits.Add(ctx, 1)
	e.logger.Debug(ctx, "mutation committed", observe.F("mutation", d.Name))
	return result, nil
}
