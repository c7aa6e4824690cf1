// Package sqlpool implements a multi-tenant SQL connection pool: a fixed
// set of named connection slots, partitioned across the configured
// databases, that application goroutines borrow with Acquire and return
// with Release.
//
// A slot migrates between three logical stores — an available stack of
// closed slot names, a cached stack of open idle slot names, and the
// borrowing goroutine itself while in use — never duplicated across
// stores. A background reaper periodically closes cached connections that
// have sat idle past a threshold, and a per-slot setup step applies
// driver-specific connection parameters and a list of post-open SQL
// statements exactly once per open cycle.
//
// The pool performs no query routing, load balancing, transaction
// coordination, prepared-statement caching, or connection health probing
// beyond whether the underlying handle reports itself open.
package sqlpool
