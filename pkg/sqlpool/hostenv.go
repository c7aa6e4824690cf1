package sqlpool

import (
	"time"

	"sqlpool/pkg/config"
)

// HostEnvironment is the host application's contract with the pool: the
// collaborator methods the pool needs at startup and on every acquire,
// plus its own tuning knobs.
type HostEnvironment interface {
	// IsSQLDatabaseAvailable reports whether the SQL subsystem should be
	// used at all; when false, Acquire always fails.
	IsSQLDatabaseAvailable() bool

	// SQLDatabaseSettingsCount returns N, the number of configured
	// database indices.
	SQLDatabaseSettingsCount() int

	// SQLDatabaseSettings returns the read-only configuration record for
	// database index d.
	SQLDatabaseSettings(d int) config.DatabaseConfig

	// MaxWorkersPerServer returns M, the number of slots registered per
	// enabled database.
	MaxWorkersPerServer() int

	// DatabaseEnvironment names the deployment environment, used only
	// for diagnostics.
	DatabaseEnvironment() string

	// WebRootPath is prepended to relative, colon-free embedded-file
	// database names at registration time.
	WebRootPath() string

	// ReaperInterval is how often the reaper sweeps each database's
	// cached stack for idle connections.
	ReaperInterval() time.Duration

	// IdleThreshold is how long a database's cached stack may go without
	// a new push before the reaper drains it.
	IdleThreshold() time.Duration
}

// configHostEnvironment adapts a *config.ServerConfig, read once at
// startup, to HostEnvironment. The configuration is assumed consistent
// for the pool's lifetime — this adapter never re-reads the file or
// re-applies environment overrides after construction.
type configHostEnvironment struct {
	cfg *config.ServerConfig
}

// NewHostEnvironment adapts cfg to HostEnvironment.
func NewHostEnvironment(cfg *config.ServerConfig) HostEnvironment {
	return &configHostEnvironment{cfg: cfg}
}

func (h *configHostEnvironment) IsSQLDatabaseAvailable() bool {
	return len(h.cfg.Databases) > 0
}

func (h *configHostEnvironment) SQLDatabaseSettingsCount() int {
	return len(h.cfg.Databases)
}

func (h *configHostEnvironment) SQLDatabaseSettings(d int) config.DatabaseConfig {
	if d < 0 || d >= len(h.cfg.Databases) {
		return config.DatabaseConfig{}
	}
	return h.cfg.Databases[d]
}

func (h *configHostEnvironment) MaxWorkersPerServer() int {
	return h.cfg.Pool.MaxWorkersPerServer
}

func (h *configHostEnvironment) DatabaseEnvironment() string {
	return h.cfg.Environment
}

func (h *configHostEnvironment) WebRootPath() string {
	return h.cfg.WebRootPath
}

func (h *configHostEnvironment) ReaperInterval() time.Duration {
	return time.Duration(h.cfg.Pool.ReaperIntervalSeconds) * time.Second
}

func (h *configHostEnvironment) IdleThreshold() time.Duration {
	return time.Duration(h.cfg.Pool.IdleThresholdSeconds) * time.Second
}
