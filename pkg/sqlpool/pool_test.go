package sqlpool

import (
	"context"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"sqlpool/pkg/config"
	"sqlpool/pkg/health"
	"sqlpool/pkg/logger"
)

// testHostEnvironment is a HostEnvironment fixture for exercising the
// pool against real sqlite3 files in a temp directory, without a live
// MySQL or Postgres server — the concurrency and lifecycle invariants
// under test don't depend on which driver backs a slot.
type testHostEnvironment struct {
	available     bool
	databases     []config.DatabaseConfig
	maxWorkers    int
	webRoot       string
	environment   string
	reaperEvery   time.Duration
	idleThreshold time.Duration
}

func (h *testHostEnvironment) IsSQLDatabaseAvailable() bool    { return h.available }
func (h *testHostEnvironment) SQLDatabaseSettingsCount() int   { return len(h.databases) }
func (h *testHostEnvironment) MaxWorkersPerServer() int        { return h.maxWorkers }
func (h *testHostEnvironment) DatabaseEnvironment() string     { return h.environment }
func (h *testHostEnvironment) WebRootPath() string             { return h.webRoot }
func (h *testHostEnvironment) ReaperInterval() time.Duration   { return h.reaperEvery }
func (h *testHostEnvironment) IdleThreshold() time.Duration    { return h.idleThreshold }
func (h *testHostEnvironment) SQLDatabaseSettings(d int) config.DatabaseConfig {
	if d < 0 || d >= len(h.databases) {
		return config.DatabaseConfig{}
	}
	return h.databases[d]
}

func newTestPool(t *testing.T, maxWorkers int, databases []config.DatabaseConfig) *Pool {
	t.Helper()
	logger.Init(logger.DebugLevel, "text")
	host := &testHostEnvironment{
		available:     true,
		databases:     databases,
		maxWorkers:    maxWorkers,
		webRoot:       t.TempDir() + string(filepath.Separator),
		environment:   "test",
		reaperEvery:   10 * time.Second,
		idleThreshold: 30 * time.Second,
	}
	p := NewPool(host, logger.Get(), health.NewMonitor())
	t.Cleanup(p.Close)
	return p
}

func sqliteDatabase(t *testing.T, name string) config.DatabaseConfig {
	t.Helper()
	return config.DatabaseConfig{
		DriverType:   "sqlite3",
		DatabaseName: filepath.Join(t.TempDir(), name),
	}
}

// Scenario A — cold start: N=1, M=4, after init available[0] holds all 4
// slot names and cached[0] is empty.
func TestScenarioAColdStart(t *testing.T) {
	p := newTestPool(t, 4, []config.DatabaseConfig{sqliteDatabase(t, "test.db")})

	db := p.databases[0]
	if db.cached.len() != 0 {
		t.Fatalf("expected cached empty at cold start, got %d", db.cached.len())
	}

	names := db.available.snapshot()
	if len(names) != 4 {
		t.Fatalf("expected 4 available names, got %d", len(names))
	}
	want := map[string]bool{"rdb00_0": true, "rdb00_1": true, "rdb00_2": true, "rdb00_3": true}
	for _, n := range names {
		if !want[n] {
			t.Errorf("unexpected slot name %q", n)
		}
		delete(want, n)
	}
	if len(want) != 0 {
		t.Fatalf("missing expected slot names: %v", want)
	}
}

// Scenario B — fast path reuse: acquire, release, acquire on the same
// worker yields the same connection name both times.
func TestScenarioBFastPathReuse(t *testing.T) {
	p := newTestPool(t, 2, []config.DatabaseConfig{sqliteDatabase(t, "test.db")})
	ctx := context.Background()

	h1, err := p.Acquire(ctx, 0)
	if err != nil {
		t.Fatalf("first acquire: %v", err)
	}
	first := h1.Name()
	p.Release(h1, false)

	h2, err := p.Acquire(ctx, 0)
	if err != nil {
		t.Fatalf("second acquire: %v", err)
	}
	if h2.Name() != first {
		t.Fatalf("expected fast-path reuse of %q, got %q", first, h2.Name())
	}
	p.Release(h2, false)
}

// Scenario C — exhaustion: with M=2, two concurrent acquires succeed; a
// third blocks until one of the first two releases, then immediately
// obtains the returned name.
func TestScenarioCExhaustionUnblocksOnRelease(t *testing.T) {
	p := newTestPool(t, 2, []config.DatabaseConfig{sqliteDatabase(t, "test.db")})
	ctx := context.Background()

	h1, err := p.Acquire(ctx, 0)
	if err != nil {
		t.Fatalf("acquire 1: %v", err)
	}
	h2, err := p.Acquire(ctx, 0)
	if err != nil {
		t.Fatalf("acquire 2: %v", err)
	}

	third := make(chan *Handle, 1)
	go func() {
		h, err := p.Acquire(ctx, 0)
		if err != nil {
			t.Errorf("acquire 3: %v", err)
			return
		}
		third <- h
	}()

	select {
	case <-third:
		t.Fatal("third acquire should not succeed before a release")
	case <-time.After(100 * time.Millisecond):
	}

	releasedName := h1.Name()
	p.Release(h1, false)

	select {
	case h3 := <-third:
		if h3.Name() != releasedName {
			t.Fatalf("expected third acquire to win %q, got %q", releasedName, h3.Name())
		}
		p.Release(h3, false)
	case <-time.After(time.Second):
		t.Fatal("third acquire never unblocked after release")
	}

	p.Release(h2, false)
}

// Scenario D — force close recycles: release(h, forceClose=true) makes
// the slot's name observable in available and not in cached, and the
// slot's handle closed, so a subsequent acquire has to reopen it.
func TestScenarioDForceCloseRecycles(t *testing.T) {
	p := newTestPool(t, 2, []config.DatabaseConfig{sqliteDatabase(t, "test.db")})
	ctx := context.Background()

	h, err := p.Acquire(ctx, 0)
	if err != nil {
		t.Fatalf("acquire: %v", err)
	}
	name := h.Name()
	p.Release(h, true)

	db := p.databases[0]
	if db.cached.len() != 0 {
		t.Fatalf("expected cached empty after force close, got %d", db.cached.len())
	}
	found := false
	for _, n := range db.available.snapshot() {
		if n == name {
			found = true
		}
	}
	if !found {
		t.Fatalf("expected %q back in available after force close", name)
	}

	s, ok := p.registry.lookup(name)
	if !ok {
		t.Fatal("slot missing from registry")
	}
	if s.isOpen(ctx) {
		t.Fatal("expected slot to be closed after force close")
	}
}

// Scenario E — reaper sweep: push 3 names into cached[0], simulate 31s of
// quiet by backdating the last-cached timestamp, trigger one reaper tick
// -> cached[0] becomes empty and available[0] regains 3 names.
func TestScenarioEReaperSweep(t *testing.T) {
	p := newTestPool(t, 3, []config.DatabaseConfig{sqliteDatabase(t, "test.db")})
	ctx := context.Background()

	var handles []*Handle
	for i := 0; i < 3; i++ {
		h, err := p.Acquire(ctx, 0)
		if err != nil {
			t.Fatalf("acquire %d: %v", i, err)
		}
		handles = append(handles, h)
	}
	for _, h := range handles {
		p.Release(h, false)
	}

	db := p.databases[0]
	if db.cached.len() != 3 {
		t.Fatalf("expected 3 cached connections, got %d", db.cached.len())
	}

	// Backdate the last-cached timestamp to simulate 31s of quiet.
	db.lastCached.Store(uint64(time.Now().Unix()) - 31)

	p.reapOnce()

	if db.cached.len() != 0 {
		t.Fatalf("expected cached empty after reaper sweep, got %d", db.cached.len())
	}
	if db.available.len() != 3 {
		t.Fatalf("expected 3 available after reaper sweep, got %d", db.available.len())
	}
}

// Scenario F — disabled database: DriverType="" for d=1 -> no slots
// registered for 1; acquire(1) fails with the out-of-range error.
func TestScenarioFDisabledDatabase(t *testing.T) {
	p := newTestPool(t, 2, []config.DatabaseConfig{
		sqliteDatabase(t, "enabled.db"),
		{DriverType: ""},
	})

	db := p.databases[1]
	if db.available.len() != 0 || db.cached.len() != 0 {
		t.Fatalf("expected no slots registered for disabled database, got available=%d cached=%d",
			db.available.len(), db.cached.len())
	}

	// d=1 is in range (N=2) but has no slots, so acquire fails at once;
	// the short-lived context only bounds the test if it ever blocked.
	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	if _, err := p.Acquire(ctx, 1); err == nil {
		t.Fatal("expected acquire on a disabled database to never return a handle")
	}

	if _, err := p.Acquire(context.Background(), 2); err == nil {
		t.Fatal("expected out-of-range acquire to fail")
	}
}

// Invariant 1/2: name conservation and no duplicates across stacks.
func TestInvariantNameConservation(t *testing.T) {
	const maxWorkers = 5
	p := newTestPool(t, maxWorkers, []config.DatabaseConfig{sqliteDatabase(t, "test.db")})
	ctx := context.Background()

	var mu sync.Mutex
	var held []*Handle
	var wg sync.WaitGroup
	for i := 0; i < maxWorkers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			h, err := p.Acquire(ctx, 0)
			if err != nil {
				t.Errorf("acquire: %v", err)
				return
			}
			mu.Lock()
			held = append(held, h)
			mu.Unlock()
		}()
	}
	wg.Wait()

	for _, h := range held {
		p.Release(h, false)
	}

	db := p.databases[0]
	total := db.cached.len() + db.available.len()
	if total != maxWorkers {
		t.Fatalf("expected available+cached to equal M=%d at quiescence, got %d", maxWorkers, total)
	}

	seen := make(map[string]bool)
	for _, n := range db.cached.snapshot() {
		if seen[n] {
			t.Fatalf("duplicate name %q across stacks", n)
		}
		seen[n] = true
	}
	for _, n := range db.available.snapshot() {
		if seen[n] {
			t.Fatalf("duplicate name %q across stacks", n)
		}
		seen[n] = true
	}
}

// Invariant 4: at-most-M concurrent borrowers per database.
func TestInvariantAtMostMConcurrentBorrowers(t *testing.T) {
	const maxWorkers = 3
	p := newTestPool(t, maxWorkers, []config.DatabaseConfig{sqliteDatabase(t, "test.db")})
	ctx := context.Background()

	var inUse int64
	var mu sync.Mutex
	var maxObserved int64
	var wg sync.WaitGroup

	for i := 0; i < maxWorkers*4; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			h, err := p.Acquire(ctx, 0)
			if err != nil {
				t.Errorf("acquire: %v", err)
				return
			}

			mu.Lock()
			inUse++
			if inUse > maxObserved {
				maxObserved = inUse
			}
			mu.Unlock()

			time.Sleep(5 * time.Millisecond)

			mu.Lock()
			inUse--
			mu.Unlock()

			p.Release(h, false)
		}()
	}
	wg.Wait()

	if maxObserved > maxWorkers {
		t.Fatalf("observed %d concurrent borrowers, want at most %d", maxObserved, maxWorkers)
	}
}

// Invariant 5: slot index round-trip for every registered name.
func TestInvariantSlotIndexRoundTrip(t *testing.T) {
	p := newTestPool(t, 2, []config.DatabaseConfig{
		sqliteDatabase(t, "a.db"),
		sqliteDatabase(t, "b.db"),
	})

	for _, s := range p.registry.all() {
		d, ok := parseSlotIndex(s.name)
		if !ok {
			t.Fatalf("failed to parse slot index from %q", s.name)
		}
		if d != s.database {
			t.Fatalf("name %q parsed to database %d, want %d", s.name, d, s.database)
		}
	}
}

func TestReleaseWithInvalidHandleIsSafe(t *testing.T) {
	p := newTestPool(t, 1, []config.DatabaseConfig{sqliteDatabase(t, "test.db")})
	p.Release(nil, false)
	p.Release(&Handle{}, false)
}

// TestStatsReflectsAcquireAndRelease exercises Stats directly and
// confirms it tracks a borrow/return cycle correctly.
func TestStatsReflectsAcquireAndRelease(t *testing.T) {
	p := newTestPool(t, 2, []config.DatabaseConfig{sqliteDatabase(t, "test.db")})
	ctx := context.Background()

	stats := p.Stats(0)
	if stats.MaxSlots != 2 || stats.Available != 2 || stats.Cached != 0 || stats.InUse != 0 {
		t.Fatalf("unexpected cold-start stats: %+v", stats)
	}

	h, err := p.Acquire(ctx, 0)
	if err != nil {
		t.Fatalf("acquire: %v", err)
	}
	stats = p.Stats(0)
	if stats.InUse != 1 || stats.Available != 1 {
		t.Fatalf("expected one slot in use after acquire, got %+v", stats)
	}

	p.Release(h, false)
	stats = p.Stats(0)
	if stats.Cached != 1 || stats.InUse != 0 {
		t.Fatalf("expected one cached slot after release, got %+v", stats)
	}
}

// TestHealthMonitorReflectsPoolOccupancy confirms the pool actually
// publishes its per-database occupancy to the health monitor it was
// constructed with, rather than leaving mon disconnected from the
// stacks it is supposed to report on.
func TestHealthMonitorReflectsPoolOccupancy(t *testing.T) {
	p := newTestPool(t, 1, []config.DatabaseConfig{sqliteDatabase(t, "test.db")})
	ctx := context.Background()

	h, err := p.Acquire(ctx, 0)
	if err != nil {
		t.Fatalf("acquire: %v", err)
	}

	healthReport := p.mon.GetHealth(0)
	found := false
	for _, c := range healthReport.Components {
		if c.Name != "database:0" {
			continue
		}
		found = true
		if c.Status != health.StatusDegraded {
			t.Errorf("expected database:0 degraded while its only slot is borrowed, got %s", c.Status)
		}
		stats, ok := c.Details.(health.DatabasePoolStats)
		if !ok {
			t.Fatalf("expected Details to be health.DatabasePoolStats, got %T", c.Details)
		}
		if stats.InUse != 1 || stats.Available != 0 {
			t.Errorf("expected InUse=1 Available=0, got %+v", stats)
		}
	}
	if !found {
		t.Fatal("expected a database:0 component in the health report")
	}

	p.Release(h, false)
	healthReport = p.mon.GetHealth(0)
	for _, c := range healthReport.Components {
		if c.Name == "database:0" && c.Status != health.StatusHealthy {
			t.Errorf("expected database:0 healthy once a connection is cached, got %s", c.Status)
		}
	}
}

func TestParseSlotIndex(t *testing.T) {
	cases := []struct {
		name    string
		want    int
		wantOK  bool
	}{
		{"rdb00_0", 0, true},
		{"rdb07_12", 7, true},
		{"bad", 0, false},
		{"rdbxx_0", 0, false},
	}
	for _, tc := range cases {
		d, ok := parseSlotIndex(tc.name)
		if ok != tc.wantOK || (ok && d != tc.want) {
			t.Errorf("parseSlotIndex(%q) = (%d, %v), want (%d, %v)", tc.name, d, ok, tc.want, tc.wantOK)
		}
	}
}

