// Package poolerr centralizes the sentinel errors raised by pkg/sqlpool.
// Structural failures (out-of-range database index, invalid handle) and a
// slot's failure to open are defined here so callers can match with
// errors.Is; best-effort setup errors (post-open statements) are logged,
// not returned, per the pool's propagation policy.
package poolerr
