package sentinel

import "errors"

// Sentinel errors for infrastructure facts. Stores, codecs and upstream clients
// return these (optionally wrapped) so callers can decide how to degrade.
//
//   - ErrNotFound: cookie, record or session does not exist
//   - ErrExpired: sealed value or token is past its hard expiry
//   - ErrTampered: signature or binding check failed on a sealed value
//   - ErrRevoked: credential was explicitly revoked at logout
//   - ErrInvalidState: value is structurally wrong for the requested operation
//   - ErrUnavailable: upstream or store temporarily unreachable
//
// For client-facing failures (bad input, rejected credentials) use
// pkg/domain-errors.
var (
	ErrNotFound     = errors.New("not found")
	ErrExpired      = errors.New("expired")
	ErrTampered     = errors.New("tampered")
	ErrRevoked      = errors.New("revoked")
	ErrInvalidState = errors.New("invalid state")
	ErrUnavailable  = errors.New("unavailable")
)
