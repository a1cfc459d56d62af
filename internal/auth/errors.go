package auth

import "errors"

// Failure kinds surfaced by the gateway. Handlers map these onto HTTP
// statuses; beyond the kind itself no detail about why a credential or token
// was rejected is ever exposed.
var (
	// ErrNotInitialized: the panel has never been set up, no credential exists.
	ErrNotInitialized = errors.New("panel is not initialized")

	// ErrAuthDisabled: no password is configured, so there is nothing to log
	// in to. Hitting login in this state is a caller error.
	ErrAuthDisabled = errors.New("authentication is disabled")

	// ErrRateLimited: too many failed attempts from this address within the
	// window. Clients should back off and retry later.
	ErrRateLimited = errors.New("too many login attempts")

	// ErrInvalidCredential: wrong password.
	ErrInvalidCredential = errors.New("invalid credentials")

	// ErrUnauthenticated: protected resource accessed without a token while
	// a password is configured.
	ErrUnauthenticated = errors.New("not authenticated")

	// ErrInvalidToken: the presented token is unknown or expired.
	ErrInvalidToken = errors.New("invalid token")

	// ErrAlreadyInitialized: setup was attempted on a panel that already has
	// a credential provisioned.
	ErrAlreadyInitialized = errors.New("panel is already initialized")
)
