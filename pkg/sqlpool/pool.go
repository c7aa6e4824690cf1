package sqlpool

import (
	"context"
	"database/sql"
	"fmt"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"sqlpool/pkg/health"
	"sqlpool/pkg/logger"
	"sqlpool/pkg/poolerr"
)

// connNameFormat is the deterministic slot name grammar: rdb{d:02}_{i}.
const connNameFormat = "rdb%02d_%d"

// databaseSlots holds the per-database slot stores: an available stack of
// closed slots, a cached stack of open idle slots, and the most recent
// return timestamp the reaper reads. signal replaces a busy-wait spin loop:
// release broadcasts on it after every push so a blocked acquire wakes
// immediately instead of spinning.
type databaseSlots struct {
	cached    *stack
	available *stack
	maxSlots  int

	lastCached atomic.Uint64

	signalMu sync.Mutex
	signal   chan struct{}
}

func newDatabaseSlots(maxSlots int) *databaseSlots {
	return &databaseSlots{
		cached:    newStack(),
		available: newStack(),
		maxSlots:  maxSlots,
		signal:    make(chan struct{}),
	}
}

// current returns the channel the next broadcast will close. Acquire takes
// it before looking at the stacks, so a Release that lands between those
// pops and the wait still wakes it.
func (d *databaseSlots) current() <-chan struct{} {
	d.signalMu.Lock()
	defer d.signalMu.Unlock()
	return d.signal
}

func (d *databaseSlots) wait(ctx context.Context, ch <-chan struct{}) error {
	select {
	case <-ch:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (d *databaseSlots) broadcast() {
	d.signalMu.Lock()
	close(d.signal)
	d.signal = make(chan struct{})
	d.signalMu.Unlock()
}

// Handle is a borrowed connection. It is conceptually owned by the
// borrowing goroutine until passed to Release; using it afterward is a
// programmer error, which is why Release clears its fields.
type Handle struct {
	mu       sync.Mutex
	name     string
	database int
	db       *sql.DB
}

// DB returns the borrowed *sql.DB. Calling this after Release returns nil.
func (h *Handle) DB() *sql.DB {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.db
}

// Name returns the slot name backing this handle, e.g. "rdb00_3".
func (h *Handle) Name() string {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.name
}

func (h *Handle) valid() bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.db != nil
}

func (h *Handle) invalidate() {
	h.mu.Lock()
	h.db = nil
	h.name = ""
	h.mu.Unlock()
}

// Pool services Acquire and Release against the registry and the
// per-database stacks. Construct one with NewPool, or reach the
// process-wide singleton with Instance.
type Pool struct {
	host HostEnvironment
	log  *logger.Logger
	mon  *health.Monitor

	registry  *registry
	databases []*databaseSlots

	reaperInterval time.Duration
	idleThreshold  time.Duration
	stopReaper     chan struct{}
	stopOnce       sync.Once
	reaperDone     chan struct{}
}

// NewPool constructs a pool against host, registering every slot for
// every enabled database and starting the reaper if at least one
// database was enabled. This is the constructor Instance's singleton
// barrier calls exactly once; tests call it directly against a fake
// HostEnvironment to avoid sharing global state across test cases.
func NewPool(host HostEnvironment, log *logger.Logger, mon *health.Monitor) *Pool {
	p := &Pool{
		host:           host,
		log:            log,
		mon:            mon,
		registry:       newRegistry(),
		reaperInterval: host.ReaperInterval(),
		idleThreshold:  host.IdleThreshold(),
		stopReaper:     make(chan struct{}),
		reaperDone:     make(chan struct{}),
	}

	if !host.IsSQLDatabaseAvailable() {
		p.log.WarnWith("sql database not available")
		close(p.reaperDone)
		return p
	}

	n := host.SQLDatabaseSettingsCount()
	maxConnects := host.MaxWorkersPerServer()
	p.databases = make([]*databaseSlots, n)

	anyEnabled := false
	for d := 0; d < n; d++ {
		cfg := host.SQLDatabaseSettings(d)
		p.databases[d] = newDatabaseSlots(maxConnects)

		if cfg.DriverType == "" {
			p.log.WarnWith("empty DriverType, database disabled", "database", d)
			p.reportStats(d)
			continue
		}

		for i := 0; i < maxConnects; i++ {
			name := fmt.Sprintf(connNameFormat, d, i)
			s := &slot{name: name, database: d}
			if err := applySetup(s, cfg, host.WebRootPath()); err != nil {
				p.log.WithSlot(name).ErrorWithErr("skipping slot, invalid database settings", err)
				continue
			}
			p.registry.add(s)
			p.databases[d].available.push(name)
			anyEnabled = true
		}
		p.reportStats(d)
	}

	if anyEnabled {
		go p.runReaper()
	} else {
		close(p.reaperDone)
	}

	return p
}

// Acquire borrows an open connection for database index d. It services
// the fast path (pop an already-open slot from cached), the slow path
// (pop a closed slot from available, open it, run post-open statements),
// and blocks — woken by a condition signal from Release rather than
// busy-waiting — when both stacks are momentarily empty.
func (p *Pool) Acquire(ctx context.Context, d int) (*Handle, error) {
	if !p.host.IsSQLDatabaseAvailable() {
		return nil, poolerr.ErrNoPooledConnection
	}
	if d < 0 || d >= len(p.databases) {
		return nil, poolerr.ErrNoPooledConnection
	}
	db := p.databases[d]
	// A disabled database, or one whose slots were all skipped at
	// registration, has no slot 0 and nothing a wait could ever receive.
	if _, registered := p.registry.lookup(fmt.Sprintf(connNameFormat, d, 0)); !registered {
		return nil, poolerr.ErrNoPooledConnection
	}

	for {
		ch := db.current()
		if name, ok := db.cached.pop(); ok {
			s, found := p.registry.lookup(name)
			if !found {
				continue
			}
			if s.isOpen(ctx) {
				p.log.WithSlot(name).DebugWith("acquired cached connection")
				p.reportStats(d)
				return &Handle{name: name, database: d, db: s.sqlDB()}, nil
			}
			p.log.WithSlot(name).ErrorWith("pooled connection reported closed")
			db.available.push(name)
			continue
		}

		if name, ok := db.available.pop(); ok {
			s, found := p.registry.lookup(name)
			if !found {
				continue
			}
			if s.isOpen(ctx) {
				p.log.WithSlot(name).WarnWith("available slot was already open")
				p.reportStats(d)
				return &Handle{name: name, database: d, db: s.sqlDB()}, nil
			}
			if err := s.open(ctx); err != nil {
				p.log.WithSlot(name).ErrorWithErr("sql database open error", err)
				db.available.push(name)
				return nil, poolerr.ErrOpenFailed
			}
			p.log.WithSlot(name).DebugWith("sql database opened", "environment", p.host.DatabaseEnvironment())
			s.runPostOpenStatements(ctx, func(statement string, err error) {
				p.log.WithSlot(name).WarnWith("post-open statement failed", "statement", statement, "error", err)
			})
			p.reportStats(d)
			return &Handle{name: name, database: d, db: s.sqlDB()}, nil
		}

		if err := db.wait(ctx, ch); err != nil {
			return nil, err
		}
	}
}

// Release returns a borrowed handle to the pool. forceClose true closes
// the connection and pushes the slot to available; otherwise the slot is
// pushed to cached and its database's last-cached timestamp is stamped,
// for the fast path and the reaper respectively. Release is always safe
// to call with an invalid or already-released handle.
func (p *Pool) Release(h *Handle, forceClose bool) {
	if h == nil || !h.valid() {
		return
	}
	name := h.Name()
	d, ok := parseSlotIndex(name)
	if !ok || d < 0 || d >= len(p.databases) {
		p.log.WithSlot(name).ErrorWith("release: could not determine database index")
		h.invalidate()
		return
	}

	db := p.databases[d]
	if forceClose {
		p.log.WithSlot(name).WarnWith("force close database")
		if s, found := p.registry.lookup(name); found {
			s.close()
		}
		db.available.push(name)
	} else {
		db.cached.push(name)
		db.lastCached.Store(uint64(time.Now().Unix()))
		p.log.WithSlot(name).DebugWith("pooled database")
	}
	db.broadcast()
	h.invalidate()
	p.reportStats(d)
}

// Stats reports the current occupancy of database index d, for the
// health surface: cached, available, and in-use (the remainder of
// maxSlots not accounted for by the two stacks).
func (p *Pool) Stats(d int) health.DatabasePoolStats {
	if d < 0 || d >= len(p.databases) {
		return health.DatabasePoolStats{}
	}
	db := p.databases[d]
	cached := db.cached.len()
	available := db.available.len()
	return health.DatabasePoolStats{
		DatabaseIndex: d,
		MaxSlots:      db.maxSlots,
		Cached:        cached,
		Available:     available,
		InUse:         db.maxSlots - cached - available,
	}
}

// reportStats publishes database index d's current occupancy to the
// health monitor as a component named "database:d", so an operator health
// endpoint built on p.mon can see per-database saturation without polling
// Stats itself. A database sitting at zero available and zero cached
// slots is reported degraded rather than unhealthy: every slot is merely
// borrowed, not broken.
func (p *Pool) reportStats(d int) {
	if p.mon == nil {
		return
	}
	stats := p.Stats(d)
	status := health.StatusHealthy
	if stats.MaxSlots > 0 && stats.Available == 0 && stats.Cached == 0 {
		status = health.StatusDegraded
	}
	component := fmt.Sprintf("database:%d", d)
	description := fmt.Sprintf("cached=%d available=%d in_use=%d of %d", stats.Cached, stats.Available, stats.InUse, stats.MaxSlots)
	p.mon.SetComponentStatusWithDetails(component, status, description, stats)
}

// DatabaseCount returns N, the number of configured database indices.
func (p *Pool) DatabaseCount() int {
	return len(p.databases)
}

// Close tears down the pool: stops the reaper and closes every open slot,
// then unregisters every slot name. Teardown errors are ignored.
func (p *Pool) Close() {
	p.stopOnce.Do(func() {
		close(p.stopReaper)
	})
	<-p.reaperDone

	for _, s := range p.registry.all() {
		s.close()
		p.registry.remove(s.name)
	}
}

// parseSlotIndex parses characters at offsets 3..4 of name as decimal,
// matching the rdb[0-9]{2}_[0-9]+ naming grammar. This avoids a lookup
// table on the hot return path and survives slots being renamed across
// process restarts.
func parseSlotIndex(name string) (int, bool) {
	if len(name) < 5 {
		return 0, false
	}
	d, err := strconv.Atoi(name[3:5])
	if err != nil {
		return 0, false
	}
	return d, true
}
