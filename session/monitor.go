package session

import "sync"

// Monitor forwards unauthorized failures to the external sign-out
// callback, firing it exactly once per distinct token value. After the
// session layer installs a new token, the next unauthorized failure fires
// again.
//
// The monitor does not itself prevent further requests; halting activity
// after sign-out is the session layer's responsibility.
type Monitor struct {
	source  TokenSource
	signOut func()

	mu       sync.Mutex
	fired    bool
	firedFor string
}

// NewMonitor creates a Monitor. signOut may be nil, in which case
// unauthorized notifications are recorded but trigger nothing.
func NewMonitor(source TokenSource, signOut func()) *Monitor {
	return &Monitor{source: source, signOut: signOut}
}

// NotifyUnauthorized reports a detected 401. The sign-out callback runs
// at most once until a different token is observed.
func (m *Monitor) NotifyUnauthorized() {
	token := ""
	if m.source != nil {
		token, _ = m.source.Token()
	}

	m.mu.Lock()
	if m.fired && m.firedFor == token {
		m.mu.Unlock()
		return
	}
	m.fired = true
	m.firedFor = token
	fn := m.signOut
	m.mu.Unlock()

	if fn != nil {
		fn()
	}
}
