package sqlpool

import "time"

// runReaper drives the periodic idle-connection sweep on a dedicated
// goroutine, using a ticker rather than an event-loop timer callback.
func (p *Pool) runReaper() {
	defer close(p.reaperDone)

	ticker := time.NewTicker(p.reaperInterval)
	defer ticker.Stop()

	for {
		select {
		case <-p.stopReaper:
			return
		case <-ticker.C:
			p.reapOnce()
		}
	}
}

// reapOnce sweeps every database: skip if cached is empty; otherwise,
// while the database's last-cached timestamp is older than the idle
// threshold and cached still has a name to pop, close it and push it to
// available. The threshold is measured against the most recent push
// across the whole database, not per-slot — a deliberate coarse-grained
// policy, not a bug.
func (p *Pool) reapOnce() {
	now := uint64(time.Now().Unix())
	thresholdSeconds := uint64(p.idleThreshold.Seconds())

	for d, db := range p.databases {
		if db.cached.len() == 0 {
			continue
		}

		closed := 0
		for db.lastCached.Load() < now-thresholdSeconds {
			name, ok := db.cached.pop()
			if !ok {
				break
			}
			if s, found := p.registry.lookup(name); found {
				s.close()
				p.log.WithSlot(name).DebugWith("reaper closed idle connection")
			}
			db.available.push(name)
			closed++
		}
		if closed > 0 {
			p.reportStats(d)
		}
	}
}
