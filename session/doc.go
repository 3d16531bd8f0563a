// Package session defines the credential collaborator interface consumed
// by the annosync cache layer.
//
// The cache layer does not own the credential lifecycle. It consumes a
// current bearer token through TokenSource and reports unauthorized
// responses through Monitor, which triggers the external sign-out callback
// exactly once per token. ExpiryCheckedSource adds a client-side expiry
// check for proactive sign-out; it is a UX convenience, not a security
// boundary. The server remains the sole authority.
package session
