package session

import (
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// TokenSource supplies the current bearer token.
//
// Contract:
// - Concurrency: implementations must be safe for concurrent use.
// - Token returns ok=false when no usable token exists; callers must not
//   send authenticated requests in that case.
type TokenSource interface {
	Token() (string, bool)
}

// StaticTokenSource holds a replaceable token value. The external session
// layer calls SetToken on login/refresh and Clear on sign-out.
type StaticTokenSource struct {
	mu    sync.RWMutex
	token string
}

// NewStaticTokenSource creates a token source seeded with token. An empty
// token means signed out.
func NewStaticTokenSource(token string) *StaticTokenSource {
	return &StaticTokenSource{token: token}
}

// Token returns the current token.
func (s *StaticTokenSource) Token() (string, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.token, s.token != ""
}

// SetToken replaces the current token.
func (s *StaticTokenSource) SetToken(token string) {
	s.mu.Lock()
	s.token = token
	s.mu.Unlock()
}

// Clear removes the current token.
func (s *StaticTokenSource) Clear() {
	s.SetToken("")
}

// ExpiryCheckedSource wraps a TokenSource and reports the token as absent
// once its JWT exp claim has passed. The claim is parsed without signature
// verification: this check exists only so the UI can sign out proactively
// instead of waiting for a request to fail. Authorization stays with the
// server.
type ExpiryCheckedSource struct {
	source TokenSource
	skew   time.Duration
	now    func() time.Time

	mu       sync.Mutex
	onExpiry func()
	firedFor string
}

// ExpiryOption configures an ExpiryCheckedSource.
type ExpiryOption func(*ExpiryCheckedSource)

// WithExpirySkew treats tokens expiring within skew as already expired.
func WithExpirySkew(skew time.Duration) ExpiryOption {
	return func(s *ExpiryCheckedSource) { s.skew = skew }
}

// WithExpiryCallback registers a callback fired once per token when the
// expiry check first rejects it.
func WithExpiryCallback(fn func()) ExpiryOption {
	return func(s *ExpiryCheckedSource) { s.onExpiry = fn }
}

// WithExpiryClock overrides the clock. For tests.
func WithExpiryClock(now func() time.Time) ExpiryOption {
	return func(s *ExpiryCheckedSource) { s.now = now }
}

// NewExpiryCheckedSource wraps source with a client-side expiry check.
func NewExpiryCheckedSource(source TokenSource, opts ...ExpiryOption) *ExpiryCheckedSource {
	s := &ExpiryCheckedSource{source: source, now: time.Now}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Token returns the wrapped token, or ok=false when it has expired.
// Tokens that are not parseable JWTs pass through unchecked; the server
// will reject them if they are invalid.
func (s *ExpiryCheckedSource) Token() (string, bool) {
	token, ok := s.source.Token()
	if !ok {
		return "", false
	}
	exp, found := expirationOf(token)
	if !found {
		return token, true
	}
	if s.now().Add(s.skew).Before(exp) {
		return token, true
	}

	s.mu.Lock()
	fire := s.onExpiry != nil && s.firedFor != token
	s.firedFor = token
	s.mu.Unlock()
	if fire {
		s.onExpiry()
	}
	return "", false
}

// expirationOf extracts the exp claim without verifying the signature.
func expirationOf(token string) (time.Time, bool) {
	claims := jwt.MapClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(token, claims); err != nil {
		return time.Time{}, false
	}
	exp, err := claims.GetExpirationTime()
	if err != nil || exp == nil {
		return time.Time{}, false
	}
	return exp.Time, true
}

var (
	_ TokenSource = (*StaticTokenSource)(nil)
	_ TokenSource = (*ExpiryCheckedSource)(nil)
)
