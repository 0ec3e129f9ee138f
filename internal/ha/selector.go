package ha

import (
	"context"
	"math/rand"
	"strings"
	"time"
)

// monotonicDeadline mirrors spec.md §5's "deadline computed from a
// monotonic clock; wall-clock changes must not affect it" — time.Time
// values produced by time.Now() carry a monotonic reading as long as they
// are never round-tripped through marshaling, which these never are.
func monotonicDeadline(timeoutMs int) time.Time {
	return time.Now().Add(time.Duration(timeoutMs) * time.Millisecond)
}

// GetAvailableDNWithWait implements spec.md §4.7's
// get_available_dn_with_wait. timeoutMs <= 0 means "one attempt, then
// return regardless" (spec.md §5 cancellation/timeouts).
func (m *Manager) GetAvailableDNWithWait(ctx context.Context, timeoutMs int, slaveOnly bool, applyDelay, slaveWeight int, algo string) (Endpoint, bool) {
	if timeoutMs <= 0 {
		return m.getDNInternal(ctx, slaveOnly, applyDelay, slaveWeight, algo)
	}

	deadline := monotonicDeadline(timeoutMs)
	for {
		if ep, ok := m.getDNInternal(ctx, slaveOnly, applyDelay, slaveWeight, algo); ok {
			return ep, true
		}
		remaining := time.Until(deadline)
		if remaining <= 0 {
			return m.getDNInternal(ctx, slaveOnly, applyDelay, slaveWeight, algo)
		}
		if m.waitOrDeadline(remaining) {
			return m.getDNInternal(ctx, slaveOnly, applyDelay, slaveWeight, algo)
		}
	}
}

// waitOrDeadline waits on the store's broadcast condition for at most d,
// or returns immediately (true) if the manager has been stopped.
func (m *Manager) waitOrDeadline(d time.Duration) bool {
	select {
	case <-m.stopCh:
		return true
	default:
	}
	done := make(chan struct{})
	go func() {
		m.store.waitTimeout(d)
		close(done)
	}()
	select {
	case <-done:
		return false
	case <-m.stopCh:
		return true
	}
}

// getDNInternal is spec.md §4.7's get_dn_internal.
func (m *Manager) getDNInternal(ctx context.Context, slaveOnly bool, applyDelay, slaveWeight int, algo string) (Endpoint, bool) {
	leader := m.store.leaderTag()
	if leader == "" {
		return "", false
	}
	if !slaveOnly {
		return leader, true
	}

	db, err := openShortLived(leader, m.cfg.ConnProperties, probeConnectTimeout)
	if err != nil {
		m.driverLog.Error("slave-only probe dial to leader %s failed: %v", leader, err)
		return "", false
	}
	defer db.Close()

	probeCtx, cancel := context.WithTimeout(ctx, probeConnectTimeout)
	defer cancel()

	rows, err := queryClusterHealth(probeCtx, db, applyDelay, slaveWeight)
	if err != nil {
		m.driverLog.Error("cluster-health probe failed: %v", err)
		return "", false
	}

	gap := m.store.globalPortGap()
	candidates := make(map[Endpoint]struct{})
	for _, r := range rows {
		if !roleEquals(r.Role, "Follower") {
			continue
		}
		host, paxosPort := parseHostPort(r.IPPort)
		sqlAddr := mergeHostPort(host, paxosPort+int(gap))
		candidates[sqlAddr] = struct{}{}
	}

	selected, ok := m.store.selectFrom(orderedKeys(candidates), algo)
	return selected, ok
}

// GetAvailableCNWithWait implements spec.md §4.7's
// get_available_cn_with_wait.
func (m *Manager) GetAvailableCNWithWait(ctx context.Context, timeoutMs int, zoneName string, minZoneNodes int, backupZoneName string, slaveRead bool, instanceName, mppRole, algo string) (Endpoint, bool) {
	if timeoutMs <= 0 {
		return m.getCNInternal(zoneName, minZoneNodes, backupZoneName, slaveRead, instanceName, mppRole, algo)
	}

	deadline := monotonicDeadline(timeoutMs)
	for {
		if ep, ok := m.getCNInternal(zoneName, minZoneNodes, backupZoneName, slaveRead, instanceName, mppRole, algo); ok {
			return ep, true
		}
		remaining := time.Until(deadline)
		if remaining <= 0 {
			return m.getCNInternal(zoneName, minZoneNodes, backupZoneName, slaveRead, instanceName, mppRole, algo)
		}
		if m.waitOrDeadline(remaining) {
			return m.getCNInternal(zoneName, minZoneNodes, backupZoneName, slaveRead, instanceName, mppRole, algo)
		}
	}
}

func zoneSet(names string) map[string]struct{} {
	out := make(map[string]struct{})
	for _, z := range strings.Split(names, ",") {
		z = strings.TrimSpace(z)
		if z != "" {
			out[z] = struct{}{}
		}
	}
	return out
}

func zoneOverlaps(nodeZones []string, want map[string]struct{}) bool {
	if len(want) == 0 {
		return true
	}
	for _, z := range nodeZones {
		if _, ok := want[z]; ok {
			return true
		}
	}
	return false
}

// cnRolePredicate implements spec.md §4.7's role predicate for CN
// candidates.
func cnRolePredicate(slaveRead bool, mppRole, nodeRole string) bool {
	if slaveRead {
		return !strings.EqualFold(mppRole, roleWriter) && !strings.EqualFold(nodeRole, roleWriter)
	}
	return (mppRole == "" || strings.EqualFold(mppRole, roleWriter)) && strings.EqualFold(nodeRole, roleWriter)
}

// getCNInternal implements spec.md §4.7's CN filter/select logic.
func (m *Manager) getCNInternal(zoneName string, minZoneNodes int, backupZoneName string, slaveRead bool, instanceName, mppRole, algo string) (Endpoint, bool) {
	nodes := m.store.cnSnapshot()

	wantZone := zoneSet(zoneName)
	wantBackup := zoneSet(backupZoneName)

	var validCn, backupCn []Endpoint
	for _, n := range nodes {
		if instanceName != "" && instanceName != n.InstanceName {
			continue
		}
		if !cnRolePredicate(slaveRead, mppRole, n.Role) {
			continue
		}
		if zoneOverlaps(n.ZoneList, wantZone) {
			validCn = append(validCn, n.Tag)
		}
		if zoneOverlaps(n.ZoneList, wantBackup) {
			backupCn = append(backupCn, n.Tag)
		}
	}

	if len(validCn) >= minZoneNodes && len(validCn) > 0 {
		return m.store.selectFrom(validCn, algo)
	}
	return m.store.selectFrom(backupCn, algo)
}

// orderedKeys renders a set's keys as a slice in Go's (unordered) map
// iteration order — spec.md explicitly tolerates this for the DN
// candidate set (§4.5 tie-break notes apply the same way here).
func orderedKeys(set map[Endpoint]struct{}) []Endpoint {
	out := make([]Endpoint, 0, len(set))
	for k := range set {
		out = append(out, k)
	}
	return out
}

// selectFrom is spec.md §4.7's selection algorithm, run under the store's
// exclusive lock so the read of "lowest count" and the increment of the
// winner happen atomically (spec.md §9's ambiguity note: "implementers
// must ensure counters are bumped inside the same critical section as the
// read").
func (s *topologyStore) selectFrom(candidates []Endpoint, algo string) (Endpoint, bool) {
	if len(candidates) == 0 {
		return "", false
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	var chosen Endpoint
	switch algo {
	case algoLeastConn, algoLeastConnAlias:
		best := int64(0)
		bestSet := false
		for _, c := range candidates {
			var n int64
			if cnt, ok := s.connCnt[c]; ok {
				n = cnt.n.Load()
			}
			if !bestSet || n < best {
				best = n
				bestSet = true
				chosen = c
				if n == 0 {
					break
				}
			}
		}
	case algoRandom:
		chosen = candidates[rand.Intn(len(candidates))]
	default:
		chosen = candidates[0]
	}

	s.addConnCountLocked(chosen)
	return chosen, true
}

// AddConnCount is the public entry point for a connection wrapper that
// needs to bump a counter outside of selection (rare; normally
// selectFrom already does this atomically).
func (m *Manager) AddConnCount(addr Endpoint) {
	m.store.mu.Lock()
	m.store.addConnCountLocked(addr)
	m.store.mu.Unlock()
}

// DropConnCount decrements addr's counter (spec.md §4.8's
// drop_conn_count), called by the connection wrapper when the
// application closes its connection.
func (m *Manager) DropConnCount(addr Endpoint) {
	m.store.mu.Lock()
	m.store.dropConnCountLocked(addr)
	m.store.mu.Unlock()
}
