package query

import (
	"sync"

	"github.com/jonwraymond/annosync/store"
)

// Observer is the per-UI-collaborator handle over one cache entry.
//
// It retains the entry while open, refetches in the background when the
// entry is marked stale, and optionally keeps serving the previous key's
// data while a new key loads. Close releases the retention; observers
// must be closed when the collaborator goes away.
type Observer struct {
	ctrl     *Controller
	fetch    func(key store.Key) FetchFunc
	opts     Options
	onChange func(Result)

	mu       sync.Mutex
	key      store.Key
	unsub    func()
	previous Result
	hasPrev  bool
	closed   bool
}

// Observe creates an Observer for key. fetch binds a key to its producer
// function. onChange, if non-nil, is called synchronously after every
// store notification for the observed key; it must not block.
func (c *Controller) Observe(key store.Key, fetch func(key store.Key) FetchFunc, opts Options, onChange func(Result)) *Observer {
	o := &Observer{
		ctrl:     c,
		fetch:    fetch,
		opts:     opts,
		onChange: onChange,
		key:      key,
	}
	o.attach(key)
	if !opts.Disabled {
		c.Refresh(key, fetch(key), opts)
	}
	return o
}

// Get returns the current result for the observed key. With KeepPrevious
// set, data from the previously observed key is served (flagged loading)
// while the current key has none.
func (o *Observer) Get() Result {
	o.mu.Lock()
	key := o.key
	opts := o.opts
	prev := o.previous
	hasPrev := o.hasPrev
	o.mu.Unlock()

	if opts.Disabled {
		return Result{}
	}

	e, ok := o.ctrl.store.Get(key)
	if ok && e.Data != nil {
		return resultOf(e)
	}

	if opts.KeepPrevious && hasPrev {
		r := prev
		r.Loading = true
		return r
	}
	if !ok {
		return Result{}
	}
	return resultOf(e)
}

// SetKey switches the observer to a new key, e.g. when the reviewer
// selects a different principle or flips the revision filter. The
// previous key's last data is remembered for KeepPrevious serving.
func (o *Observer) SetKey(key store.Key) {
	o.mu.Lock()
	if o.closed || key == o.key {
		o.mu.Unlock()
		return
	}

	if e, ok := o.ctrl.store.Get(o.key); ok && e.Data != nil {
		o.previous = resultOf(e)
		o.hasPrev = true
	}

	o.detachLocked()
	o.key = key
	o.opts.Disabled = false
	opts := o.opts
	o.mu.Unlock()

	o.attach(key)
	o.ctrl.Refresh(key, o.fetch(key), opts)
}

// SetDisabled toggles fetching. Enabling triggers an immediate background
// fetch for the current key.
func (o *Observer) SetDisabled(disabled bool) {
	o.mu.Lock()
	if o.closed || o.opts.Disabled == disabled {
		o.mu.Unlock()
		return
	}
	o.opts.Disabled = disabled
	key := o.key
	opts := o.opts
	o.mu.Unlock()

	if !disabled {
		o.ctrl.Refresh(key, o.fetch(key), opts)
	}
}

// Refresh forces a background revalidation of the current key.
func (o *Observer) Refresh() {
	o.mu.Lock()
	key := o.key
	opts := o.opts
	o.mu.Unlock()
	o.ctrl.Refresh(key, o.fetch(key), opts)
}

// Close releases the observed entry and removes the subscription.
// Idempotent.
func (o *Observer) Close() {
	o.mu.Lock()
	if o.closed {
		o.mu.Unlock()
		return
	}
	o.closed = true
	o.detachLocked()
	o.mu.Unlock()
}

func (o *Observer) attach(key store.Key) {
	o.ctrl.store.Retain(key, o.opts.Retention)
	unsub := o.ctrl.store.Subscribe(key, o.notified)

	o.mu.Lock()
	if o.closed {
		// Close won the race with a SetKey re-attach; roll back so the
		// retention count and subscription do not leak.
		o.mu.Unlock()
		unsub()
		o.ctrl.store.Release(key)
		return
	}
	o.unsub = unsub
	o.mu.Unlock()
}

func (o *Observer) detachLocked() {
	if o.unsub != nil {
		o.unsub()
		o.unsub = nil
	}
	o.ctrl.store.Release(o.key)
}

// notified handles store notifications for the observed key. A stale
// notification triggers a background refetch; the displayed data stays
// until the fresh result lands.
func (o *Observer) notified(key store.Key, e store.Entry) {
	o.mu.Lock()
	if o.closed || key != o.key {
		o.mu.Unlock()
		return
	}
	opts := o.opts
	fetch := o.fetch(key)
	onChange := o.onChange
	o.mu.Unlock()

	if e.Stale && !opts.Disabled {
		o.ctrl.Refresh(key, fetch, opts)
	}
	if onChange != nil {
		onChange(resultOf(e))
	}
}
