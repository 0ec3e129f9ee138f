package ha

import (
	"context"
	"sync"

	"golang.org/x/sync/errgroup"
)

// runCNHealthLoop is the CN background worker (spec.md §4.6, C5): for
// every known address, re-run SHOW MPP and republish the union.
func (m *Manager) runCNHealthLoop() {
	defer m.wg.Done()
	ctx := context.Background()
	for {
		select {
		case <-m.stopCh:
			return
		default:
		}

		state := m.cnTick(ctx)
		stateName := "CN_ALIVE"
		if state != CNAlive {
			stateName = "CN_LOST"
		}
		m.recordTransition("cn", stateName, "")
		sleepMs := m.cfg.HaCheckInterval
		if state != CNAlive {
			sleepMs = minInt(500, m.cfg.HaCheckInterval)
		}
		if m.sleepOrStop(ctx, sleepMs) {
			return
		}
	}
}

func (m *Manager) cnTick(ctx context.Context) CNState {
	m.seedCNAddrListIfEmpty()
	addrs := m.store.addrList()
	if len(addrs) == 0 {
		return CNLost
	}

	var (
		mu      sync.Mutex
		results []MppInfo
	)
	g, gctx := errgroup.WithContext(ctx)
	for _, addr := range addrs {
		addr := addr
		g.Go(func() error {
			rows := m.probeOneCN(gctx, addr)
			if len(rows) > 0 {
				mu.Lock()
				results = append(results, rows...)
				mu.Unlock()
			}
			return nil
		})
	}
	_ = g.Wait()

	if len(results) == 0 {
		return CNLost
	}

	merged := make(map[Endpoint]MppInfo, len(results))
	for _, r := range results {
		merged[r.Tag] = r
	}
	flat := make([]MppInfo, 0, len(merged))
	for _, v := range merged {
		flat = append(flat, v)
	}

	if err := saveMppToFile(flat, m.cfg.JsonFile); err != nil {
		m.driverLog.Error("persisting cn topology failed: %v", err)
	}

	m.store.mu.Lock()
	m.store.cn = flat
	m.store.mu.Unlock()
	m.store.broadcast()
	return CNAlive
}

// probeOneCN runs Show MPP against addr and parses the rows into MppInfo,
// logging and dropping the address from this sweep on any failure
// (spec.md §7, probe_fail).
func (m *Manager) probeOneCN(ctx context.Context, addr string) []MppInfo {
	db, err := openShortLived(addr, m.cfg.ConnProperties, probeConnectTimeout)
	if err != nil {
		m.driverLog.Error("cn probe dial failed for %s: %v", addr, err)
		return nil
	}
	defer db.Close()

	probeCtx, cancel := context.WithTimeout(ctx, probeConnectTimeout)
	defer cancel()

	rows, err := queryShowMpp(probeCtx, db)
	if err != nil {
		m.driverLog.Error("show mpp failed for %s: %v", addr, err)
		return nil
	}

	out := make([]MppInfo, 0, len(rows))
	for _, r := range rows {
		out = append(out, MppInfo{
			Tag:          addressWithoutProtocol(r.Tag),
			Role:         r.Role,
			InstanceName: r.InstanceName,
			ZoneList:     getZoneList(r.ZoneNames),
			IsLeader:     r.IsLeader,
		})
	}
	return out
}

// seedCNAddrListIfEmpty seeds the connection-address list from the
// warm-start file's tags and cfg.Addr, same "seed once, never regrow"
// discipline as the DN path (spec.md §9).
func (m *Manager) seedCNAddrListIfEmpty() {
	if len(m.store.addrList()) > 0 {
		return
	}
	seen := make(map[string]bool)
	var addrs []string

	if mpps, err := loadMppFromFile(m.cfg.JsonFile); err == nil {
		for _, n := range mpps {
			if !seen[n.Tag] {
				seen[n.Tag] = true
				addrs = append(addrs, n.Tag)
			}
		}
	}
	for _, a := range splitAddrList(m.cfg.Addr) {
		a = addressWithoutProtocol(a)
		if !seen[a] {
			seen[a] = true
			addrs = append(addrs, a)
		}
	}
	m.store.seedAddrListIfEmpty(addrs)
}
