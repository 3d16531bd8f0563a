package review

import (
	"context"
	"strconv"
	"time"

	"go.opentelemetry.io/otel/metric"

	"github.com/jonwraymond/annosync/mutate"
	"github.com/jonwraymond/annosync/observe"
	"github.com/jonwraymond/annosync/query"
	"github.com/jonwraymond/annosync/store"
)

// Config configures a Client.
type Config struct {
	// Service is the backend surface. Required.
	Service Service

	// Logger receives cache and mutation lifecycle events.
	// If nil, logging is disabled.
	Logger observe.Logger

	// Meter records cache and mutation counters. If nil, metrics are
	// disabled.
	Meter metric.Meter

	// StaleAfter is the freshness window for cached reads.
	// Default: 30 seconds.
	StaleAfter time.Duration

	// Retention is how long unobserved entries survive.
	// Default: 5 minutes.
	Retention time.Duration

	// OpinionDelay is the quiet window for coalesced opinion edits.
	// Default: 600ms.
	OpinionDelay time.Duration
}

// UpdatePrincipleArgs are the arguments of the update-principle mutation.
type UpdatePrincipleArgs struct {
	ID    string
	Patch PrinciplePatch
}

// UpdateOpinionArgs are the arguments of the update-opinion mutation.
type UpdateOpinionArgs struct {
	SampleID      string
	ExpertOpinion string
}

// SetRevisionArgs are the arguments of the toggle-revision mutation.
type SetRevisionArgs struct {
	SampleID    string
	IsRevised   bool
	ReviserName string
}

// ReassignArgs are the arguments of the reassign-sample mutation.
type ReassignArgs struct {
	SampleID          string
	TargetPrincipleID string
	ReviserName       string
}

// Client is the data-consistency facade for the annotation-review UI.
//
// The exported mutation handles form the per-operation write surface:
// Run, IsRunning, Err.
type Client struct {
	UpdatePrinciple *mutate.Mutation[UpdatePrincipleArgs, Principle]
	UpdateOpinion   *mutate.Mutation[UpdateOpinionArgs, Sample]
	SetRevision     *mutate.Mutation[SetRevisionArgs, Sample]
	Reassign        *mutate.Mutation[ReassignArgs, Sample]

	svc     Service
	store   *store.Store
	queries *query.Controller
	engine  *mutate.Engine
	logger  observe.Logger

	staleAfter   time.Duration
	retention    time.Duration
	opinionDelay time.Duration
}

// New creates a Client.
func New(cfg Config) *Client {
	if cfg.Logger == nil {
		cfg.Logger = observe.NopLogger()
	}
	if cfg.StaleAfter <= 0 {
		cfg.StaleAfter = query.DefaultStaleAfter
	}
	if cfg.Retention <= 0 {
		cfg.Retention = store.DefaultRetention
	}

	s := store.New(store.Config{
		Logger:           cfg.Logger,
		Meter:            cfg.Meter,
		DefaultRetention: cfg.Retention,
	})

	c := &Client{
		svc:          cfg.Service,
		store:        s,
		queries:      query.New(query.Config{Store: s, Logger: cfg.Logger}),
		engine:       mutate.New(mutate.Config{Store: s, Logger: cfg.Logger, Meter: cfg.Meter}),
		logger:       cfg.Logger.WithComponent("review"),
		staleAfter:   cfg.StaleAfter,
		retention:    cfg.Retention,
		opinionDelay: cfg.OpinionDelay,
	}

	c.UpdatePrinciple = mutate.NewMutation[UpdatePrincipleArgs, Principle](c.engine, c.updatePrincipleDescriptor)
	c.UpdateOpinion = mutate.NewMutation[UpdateOpinionArgs, Sample](c.engine, c.updateOpinionDescriptor)
	c.SetRevision = mutate.NewMutation[SetRevisionArgs, Sample](c.engine, c.setRevisionDescriptor)
	c.Reassign = mutate.NewMutation[ReassignArgs, Sample](c.engine, c.reassignDescriptor)
	return c
}

// Store exposes the backing entry store, e.g. for periodic Sweep calls.
func (c *Client) Store() *store.Store {
	return c.store
}

// readOptions builds query options for the client's defaults.
func (c *Client) readOptions(keepPrevious bool) query.Options {
	return query.Options{
		StaleAfter:   c.staleAfter,
		Retention:    c.retention,
		KeepPrevious: keepPrevious,
	}
}

// Principles returns the cached principle list, fetching when missing or
// stale.
func (c *Client) Principles(ctx context.Context) ([]Principle, query.Result) {
	r := c.queries.Fetch(ctx, PrinciplesKey(), c.principlesFetch, c.readOptions(false))
	principles, _ := r.Data.([]Principle)
	return principles, r
}

// Principle returns one principle's detail entry.
func (c *Client) Principle(ctx context.Context, id string) (Principle, query.Result) {
	key := PrincipleKey(id)
	r := c.queries.Fetch(ctx, key, func(ctx context.Context) (any, error) {
		p, err := c.svc.GetPrinciple(ctx, id)
		if err != nil {
			return nil, err
		}
		return p, nil
	}, c.readOptions(false))
	p, _ := r.Data.(Principle)
	return p, r
}

// Samples returns one principle's sample partition under the given
// revision-visibility filter.
func (c *Client) Samples(ctx context.Context, principleID string, showRevised bool) (SamplePage, query.Result) {
	key := SamplesKey(principleID, showRevised)
	r := c.queries.Fetch(ctx, key, c.samplesFetch(key), c.readOptions(false))
	page, _ := r.Data.(SamplePage)
	return page, r
}

// ObservePrinciples returns an observer over the principle list for a
// long-lived UI collaborator. Close it on teardown.
func (c *Client) ObservePrinciples(onChange func(query.Result)) *query.Observer {
	return c.queries.Observe(PrinciplesKey(), func(store.Key) query.FetchFunc {
		return c.principlesFetch
	}, c.readOptions(false), onChange)
}

// ObserveSamples returns an observer over a sample partition. It keeps
// serving the previous partition's data while a newly selected one loads.
// An empty principleID creates the observer disabled until a selection is
// made through SetKey.
func (c *Client) ObserveSamples(principleID string, showRevised bool, onChange func(query.Result)) *query.Observer {
	opts := c.readOptions(true)
	opts.Disabled = principleID == ""
	return c.queries.Observe(SamplesKey(principleID, showRevised), c.samplesFetch, opts, onChange)
}

func (c *Client) principlesFetch(ctx context.Context) (any, error) {
	principles, err := c.svc.ListPrinciples(ctx)
	if err != nil {
		return nil, err
	}
	return principles, nil
}

// samplesFetch binds a sample-partition key back to its backend query.
func (c *Client) samplesFetch(key store.Key) query.FetchFunc {
	params := key.Params()
	principleID := params[0]
	showRevised, _ := strconv.ParseBool(params[1])
	return func(ctx context.Context) (any, error) {
		page, err := c.svc.ListSamples(ctx, principleID, showRevised)
		if err != nil {
			return nil, err
		}
		return page, nil
	}
}

// updatePrincipleDescriptor: merge the patch optimistically into the list
// and detail entries; the server echo replaces both on success. Nothing
// beyond the touched entries is invalidated.
func (c *Client) updatePrincipleDescriptor(args UpdatePrincipleArgs) mutate.Descriptor {
	targets := []store.Key{PrinciplesKey(), PrincipleKey(args.ID)}
	return mutate.Descriptor{
		Name:       "update_principle",
		TargetKeys: targets,
		Optimistic: func(s *store.Store) {
			patchPrinciple(s, targets, args.ID, args.Patch.applyTo)
		},
		Call: func(ctx context.Context) (any, error) {
			return c.svc.UpdatePrinciple(ctx, args.ID, args.Patch)
		},
		Commit: func(s *store.Store, result any) {
			p := result.(Principle)
			patchPrinciple(s, targets, p.ID, func(Principle) Principle { return p })
		},
	}
}

// updateOpinionDescriptor: the mutation only carries a sample id, so the
// owning principle is found by scanning the cached partitions. When the
// sample is not cached anywhere the optimistic phase is skipped and the
// rollback is a no-op; the partition to invalidate is learned from the
// server result either way.
func (c *Client) updateOpinionDescriptor(args UpdateOpinionArgs) mutate.Descriptor {
	targets := c.partitionsHolding(args.SampleID)

	d := mutate.Descriptor{
		Name:       "update_opinion",
		TargetKeys: targets,
		Call: func(ctx context.Context) (any, error) {
			return c.svc.UpdateOpinion(ctx, args.SampleID, args.ExpertOpinion)
		},
		Commit: func(s *store.Store, result any) {
			mergeSample(s, result.(Sample))
		},
		Invalidates: func(result any) store.KeyPredicate {
			return SamplePartitions(result.(Sample).PrincipleID)
		},
	}
	if len(targets) > 0 {
		d.Optimistic = func(s *store.Store) {
			s.SetMany(store.MatchKeys(targets...), func(_ store.Key, data any) (any, bool) {
				page, ok := data.(SamplePage)
				if !ok {
					return data, false
				}
				idx := page.find(args.SampleID)
				if idx < 0 {
					return data, false
				}
				sample := page.Samples[idx]
				sample.ExpertOpinion = args.ExpertOpinion
				return page.withSample(idx, sample), true
			})
		}
	}
	return d
}

// setRevisionDescriptor: no optimistic phase. Toggling revision changes
// the aggregate stats, which depend on the full unfiltered set and may
// not be in cache under the current filter; the server result is the
// statistics source of truth, reached through invalidation.
func (c *Client) setRevisionDescriptor(args SetRevisionArgs) mutate.Descriptor {
	return mutate.Descriptor{
		Name: "set_revision",
		Call: func(ctx context.Context) (any, error) {
			return c.svc.SetRevision(ctx, args.SampleID, args.IsRevised, args.ReviserName)
		},
		Invalidates: func(result any) store.KeyPredicate {
			return SamplePartitions(result.(Sample).PrincipleID)
		},
	}
}

// reassignDescriptor: no optimistic phase, and the whole sample-partition
// family is invalidated rather than just the source and target principle.
func (c *Client) reassignDescriptor(args ReassignArgs) mutate.Descriptor {
	return mutate.Descriptor{
		Name: "reassign_sample",
		Call: func(ctx context.Context) (any, error) {
			return c.svc.ReassignSample(ctx, args.SampleID, args.TargetPrincipleID, args.ReviserName)
		},
		Invalidates: func(any) store.KeyPredicate {
			return AllSamplePartitions()
		},
	}
}

// partitionsHolding returns the cached sample partitions that currently
// contain the sample.
func (c *Client) partitionsHolding(sampleID string) []store.Key {
	var keys []store.Key
	c.store.Each(AllSamplePartitions(), func(key store.Key, data any) {
		if page, ok := data.(SamplePage); ok && page.find(sampleID) >= 0 {
			keys = append(keys, key)
		}
	})
	return keys
}

// patchPrinciple applies fn to the principle in the list and detail
// entries, copying the list slice so rollback snapshots never alias
// mutated data.
func patchPrinciple(s *store.Store, targets []store.Key, id string, fn func(Principle) Principle) {
	s.SetMany(store.MatchKeys(targets...), func(_ store.Key, data any) (any, bool) {
		switch v := data.(type) {
		case []Principle:
			for i := range v {
				if v[i].ID == id {
					next := make([]Principle, len(v))
					copy(next, v)
					next[i] = fn(next[i])
					return next, true
				}
			}
			return data, false
		case Principle:
			if v.ID != id {
				return data, false
			}
			return fn(v), true
		default:
			return data, false
		}
	})
}

// mergeSample replaces the server echo of a sample in every cached
// partition that contains it.
func mergeSample(s *store.Store, sample Sample) {
	s.SetMany(AllSamplePartitions(), func(_ store.Key, data any) (any, bool) {
		page, ok := data.(SamplePage)
		if !ok {
			return data, false
		}
		idx := page.find(sample.ID)
		if idx < 0 {
			return data, false
		}
		return page.withSample(idx, sample), true
	})
}
