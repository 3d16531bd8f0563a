package query

import (
	"context"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/jonwraymond/annosync/observe"
	"github.com/jonwraymond/annosync/store"
)

// DefaultStaleAfter is the freshness window applied when Options does not
// specify one.
const DefaultStaleAfter = 30 * time.Second

// FetchFunc produces the authoritative value for a key.
type FetchFunc func(ctx context.Context) (any, error)

// Options tune how an entry is fetched and kept.
type Options struct {
	// StaleAfter is how long a fetched entry counts as fresh.
	// Default: 30 seconds.
	StaleAfter time.Duration

	// Retention is how long an unobserved entry survives before the
	// store may evict it. Zero uses the store default.
	Retention time.Duration

	// Disabled suppresses fetching entirely; Get returns an empty,
	// non-loading result. Used while the dependent selection (e.g. the
	// current principle) does not exist yet.
	Disabled bool

	// KeepPrevious serves the previous key's data while a new key loads,
	// instead of an empty result.
	KeepPrevious bool
}

func (o Options) staleAfter() time.Duration {
	if o.StaleAfter <= 0 {
		return DefaultStaleAfter
	}
	return o.StaleAfter
}

// Result is the per-key read surface handed to UI collaborators.
type Result struct {
	Data    any
	Status  store.Status
	Err     error
	Stale   bool
	Loading bool
}

// Config configures a Controller.
type Config struct {
	// Store is the backing entry store. Required.
	Store *store.Store

	// Logger receives fetch lifecycle events. If nil, logging is disabled.
	Logger observe.Logger

	// Now is the clock used for staleness checks. Default: time.Now.
	Now func() time.Time
}

// Controller coordinates on-demand fetching for cached entries.
type Controller struct {
	store  *store.Store
	sf     singleflight.Group
	logger observe.Logger
	now    func() time.Time
}

// New creates a Controller.
func New(cfg Config) *Controller {
	if cfg.Logger == nil {
		cfg.Logger = observe.NopLogger()
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	return &Controller{
		store:  cfg.Store,
		logger: cfg.Logger.WithComponent("query"),
		now:    cfg.Now,
	}
}

// Fetch returns the entry for key, fetching first when it is missing or
// stale. Concurrent callers for the same key share one fetch. Data
// already displayed survives a failed fetch; the result then carries both
// the stale data and the error.
func (c *Controller) Fetch(ctx context.Context, key store.Key, fetch FetchFunc, opts Options) Result {
	if opts.Disabled {
		return Result{}
	}

	if e, ok := c.store.Get(key); ok && c.fresh(e, opts) {
		return resultOf(e)
	}

	c.runFetch(ctx, key, fetch)

	e, ok := c.store.Get(key)
	if !ok {
		return Result{}
	}
	return resultOf(e)
}

// Refresh revalidates key in the background. Used when an entry has been
// marked stale by an invalidation; the currently displayed data stays in
// place until the fetch lands.
func (c *Controller) Refresh(key store.Key, fetch FetchFunc, opts Options) {
	if opts.Disabled {
		return
	}
	go c.runFetch(context.Background(), key, fetch)
}

// runFetch executes fetch once per in-flight key, writing the outcome
// through the store's generation guard.
func (c *Controller) runFetch(ctx context.Context, key store.Key, fetch FetchFunc) {
	_, _, _ = c.sf.Do(key.String(), func() (any, error) {
		gen := c.store.Generation(key)
		c.store.SetLoading(key)

		data, err := fetch(ctx)
		if err != nil {
			if c.store.FailIfCurrent(key, gen, err) {
				c.logger.Warn(ctx, "fetch failed",
					observe.F("key", key.String()),
					observe.F("error", err.Error()))
			}
			return nil, nil
		}
		if !c.store.SetIfCurrent(key, gen, data) {
			c.logger.Debug(ctx, "fetch result superseded by a newer write",
				observe.F("key", key.String()))
		}
		return nil, nil
	})
}

func (c *Controller) fresh(e store.Entry, opts Options) bool {
	if e.Stale || e.Status != store.StatusReady {
		return false
	}
	return c.now().Sub(e.UpdatedAt) <= opts.staleAfter()
}

func resultOf(e store.Entry) Result {
	return Result{
		Data:    e.Data,
		Status:  e.Status,
		Err:     e.Err,
		Stale:   e.Stale,
		Loading: e.Status == store.StatusLoading,
	}
}
