package sqlpool

import (
	"sync"

	"sqlpool/pkg/config"
	"sqlpool/pkg/health"
	"sqlpool/pkg/logger"
)

var (
	instanceOnce sync.Once
	instance     *Pool
)

// Instance lazily constructs the process-wide pool on first call, sizing
// it from the host's worker-thread count and pre-registering every slot
// name for every configured database, then returns the same *Pool on
// every subsequent call. Construction happens exactly once, behind
// sync.Once's memory-safe initialization barrier.
//
// The pool is intentionally non-copyable: it embeds the reaper's
// stop-once state (a sync.Once), so copying a *Pool's pointee would
// duplicate that synchronization state while still sharing the registry
// and per-database stacks. Callers should only ever hold the *Pool
// returned here.
func Instance() *Pool {
	instanceOnce.Do(func() {
		cfg, err := config.LoadConfig("")
		if err != nil {
			logger.Get().ErrorWithErr("failed to load configuration for sql pool", err)
			cfg = config.DefaultConfig()
		}
		logger.Init(logger.LogLevel(cfg.Logging.Level), cfg.Logging.Format)

		instance = NewPool(NewHostEnvironment(cfg), logger.Get(), health.NewMonitor())
	})
	return instance
}
