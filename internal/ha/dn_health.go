package ha

import (
	"context"
	"fmt"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"
)

// runDNHealthLoop is the DN background worker (spec.md §4.5, C4). It owns
// the pinned long connection and is the only goroutine allowed to mutate
// it; everything else reads the Topology Store under its shared lock.
func (m *Manager) runDNHealthLoop() {
	defer m.wg.Done()
	ctx := context.Background()
	for {
		select {
		case <-m.stopCh:
			return
		default:
		}

		state := m.dnTick(ctx)
		m.recordTransition("dn", state.String(), m.store.leaderTag())
		sleepMs := dnNextSleepMs(state, m.cfg.HaCheckInterval, m.cfg.CheckLeaderTransferringInterval)
		if m.sleepOrStop(ctx, sleepMs) {
			return
		}
	}
}

// dnNextSleepMs maps a tick's classification to the next sleep interval
// per spec.md §4.5's table.
func dnNextSleepMs(state DNState, haCheckInterval, transferInterval int) int {
	switch state {
	case LeaderAlive:
		return minInt(100, haCheckInterval)
	case LeaderTransferring:
		return transferInterval
	case LeaderTransferred:
		return 0
	case LeaderLost:
		return minInt(3000, haCheckInterval)
	default:
		return haCheckInterval
	}
}

// dnTick runs one iteration of the algorithm in spec.md §4.5.
func (m *Manager) dnTick(ctx context.Context) DNState {
	m.expireTransferMarkIfNeeded()

	m.store.mu.RLock()
	haveLeader := m.store.dn.Leader != nil
	longConn := m.store.dn.LongConnection
	m.store.mu.RUnlock()

	if haveLeader && longConn != nil {
		return m.dnPing(ctx, longConn)
	}
	return m.dnFullCheck(ctx)
}

// expireTransferMarkIfNeeded clears a stale LeaderTransferMark (spec.md
// §3.2 invariant 6).
func (m *Manager) expireTransferMarkIfNeeded() {
	timeout := time.Duration(m.cfg.LeaderTransferringWaitTimeout) * time.Millisecond
	m.store.mu.Lock()
	defer m.store.mu.Unlock()
	if m.store.dn.Transfer != nil && time.Since(m.store.dn.Transfer.At) > timeout {
		m.store.dn.Transfer = nil
	}
}

// dnPing is step 2 of spec.md §4.5's tick algorithm: keep the leader
// pinned via the already-open long connection.
func (m *Manager) dnPing(ctx context.Context, conn *pinnedConn) DNState {
	pingCtx, cancel := context.WithTimeout(ctx, time.Duration(m.cfg.HaCheckSocketTimeout)*time.Millisecond)
	defer cancel()

	local, err := queryClusterLocal(pingCtx, conn.conn)
	if err != nil {
		m.driverLog.Error("leader ping failed, dropping leader: %v", err)
		m.dropLeader()
		return LeaderLost
	}
	if !roleEquals(local.Role, "Leader") {
		m.driverLog.Info("pinned node is no longer leader (role=%s)", local.Role)
		m.dropLeader()
		return LeaderTransferred
	}

	transferring, err := queryLeaderTransferFlag(pingCtx, conn.conn)
	if err != nil {
		m.driverLog.Error("leader-transfer-flag probe failed, dropping leader: %v", err)
		m.dropLeader()
		return LeaderLost
	}
	if transferring {
		m.driverLog.Info("leader transfer in progress, tag=%s", m.store.leaderTag())
		m.store.mu.Lock()
		tag := m.store.dn.Leader.Tag
		m.store.dn.Leader = nil
		m.store.dn.Transfer = &LeaderTransferMark{Tag: tag, At: time.Now()}
		if m.store.dn.LongConnection != nil {
			m.store.dn.LongConnection.Close()
			m.store.dn.LongConnection = nil
		}
		m.store.mu.Unlock()
		return LeaderTransferring
	}
	return LeaderAlive
}

// dropLeader clears the leader and closes the pinned long connection.
func (m *Manager) dropLeader() {
	m.store.mu.Lock()
	defer m.store.mu.Unlock()
	m.store.dn.Leader = nil
	if m.store.dn.LongConnection != nil {
		m.store.dn.LongConnection.Close()
		m.store.dn.LongConnection = nil
	}
}

// dnFullCheck is step 3 of spec.md §4.5: a full concurrent re-probe of
// every known address.
func (m *Manager) dnFullCheck(ctx context.Context) DNState {
	m.seedDNAddrListIfEmpty()
	addrs := m.store.addrList()
	if len(addrs) == 0 {
		return LeaderLost
	}

	nodes := m.probeAllDN(ctx, addrs)

	merged := make(map[Endpoint]NodeInfo)
	for _, n := range nodes {
		merged[n.Tag] = n
		for _, p := range n.Peers {
			merged[p.Tag] = p
		}
	}

	var leader *NodeInfo
	for tag, n := range merged {
		if roleEquals(n.Role, "Leader") && (m.cfg.IgnoreVip.Load() || n.Tag == mergeHostPort(n.Host, n.Port)) {
			ln := n
			ln.Tag = tag
			leader = &ln
			break
		}
	}

	if leader == nil {
		m.store.mu.RLock()
		transferring := m.store.dn.Transfer != nil
		m.store.mu.RUnlock()
		if transferring {
			return LeaderTransferring
		}
		return LeaderLost
	}

	flat := make([]NodeInfo, 0, len(merged))
	now := fmt.Sprintf("%d", time.Now().UnixNano())
	for _, n := range merged {
		n.UpdateTime = now
		flat = append(flat, n)
	}
	if err := saveDNToFile(flat, m.cfg.JsonFile); err != nil {
		m.driverLog.Error("persisting dn topology failed: %v", err)
	}

	db, err := openShortLived(leader.Tag, m.cfg.ConnProperties, probeConnectTimeout)
	if err != nil {
		m.driverLog.Error("opening long connection to new leader %s failed: %v", leader.Tag, err)
		return LeaderLost
	}
	connCtx, cancel := context.WithTimeout(ctx, probeConnectTimeout)
	conn, err := db.Conn(connCtx)
	cancel()
	if err != nil {
		db.Close()
		m.driverLog.Error("pinning connection to new leader %s failed: %v", leader.Tag, err)
		return LeaderLost
	}
	pinned := &pinnedConn{db: db, conn: conn}

	checkCtx, cancel2 := context.WithTimeout(ctx, time.Duration(m.cfg.HaCheckSocketTimeout)*time.Millisecond)
	transferring, err := queryLeaderTransferFlag(checkCtx, conn)
	cancel2()
	if err != nil {
		m.driverLog.Error("post-elect transfer-flag check failed for %s: %v", leader.Tag, err)
		pinned.Close()
		return LeaderLost
	}
	if transferring {
		pinned.Close()
		m.store.mu.Lock()
		m.store.dn.Leader = nil
		m.store.dn.Transfer = &LeaderTransferMark{Tag: leader.Tag, At: time.Now()}
		m.store.mu.Unlock()
		return LeaderTransferring
	}

	m.store.mu.Lock()
	m.store.dn.Leader = leader
	m.store.dn.Transfer = nil
	if m.store.dn.LongConnection != nil {
		m.store.dn.LongConnection.Close()
	}
	m.store.dn.LongConnection = pinned
	m.store.mu.Unlock()
	m.store.broadcast()
	m.driverLog.Info("leader elected: %s", leader.Tag)
	return LeaderAlive
}

// seedDNAddrListIfEmpty implements spec.md §4.5's warm-start seeding: the
// union of the persisted file's Leader/Follower tags and cfg.Addr, only
// when the address list is still empty — and per §9, it never grows
// after that.
func (m *Manager) seedDNAddrListIfEmpty() {
	if len(m.store.addrList()) > 0 {
		return
	}
	seen := make(map[string]bool)
	var addrs []string

	if nodes, err := loadDNFromFile(m.cfg.JsonFile); err == nil {
		for _, n := range nodes {
			if !roleEquals(n.Role, "Leader") && !roleEquals(n.Role, "Follower") {
				continue
			}
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

// probeAllDN runs Get-DN-Info (spec.md §4.5) against every address in
// parallel, one worker per address, joined before returning (§5, §9
// "Concurrent fan-out of the probe"). A per-address failure is logged and
// that address is simply absent from the result — it never aborts the
// sweep for the others.
func (m *Manager) probeAllDN(ctx context.Context, addrs []string) []NodeInfo {
	var (
		mu  sync.Mutex
		out []NodeInfo
	)
	g, gctx := errgroup.WithContext(ctx)
	for _, addr := range addrs {
		addr := addr
		g.Go(func() error {
			n, ok := m.getDNInfo(gctx, addr)
			if ok {
				mu.Lock()
				out = append(out, n)
				mu.Unlock()
			}
			return nil
		})
	}
	_ = g.Wait()
	return out
}

// getDNInfo probes a single address (spec.md §4.5 "Get DN Info").
func (m *Manager) getDNInfo(ctx context.Context, addr string) (NodeInfo, bool) {
	db, err := openShortLived(addr, m.cfg.ConnProperties, probeConnectTimeout)
	if err != nil {
		m.driverLog.Error("probe dial failed for %s: %v", addr, err)
		return NodeInfo{}, false
	}
	defer db.Close()

	probeCtx, cancel := context.WithTimeout(ctx, probeConnectTimeout)
	defer cancel()

	local, err := queryClusterLocal(probeCtx, db)
	if err != nil {
		m.driverLog.Error("cluster-local probe failed for %s: %v", addr, err)
		return NodeInfo{}, false
	}

	host, port := parseHostPort(addr)
	node := NodeInfo{
		Tag:  mergeHostPort(host, port),
		Host: host,
		Port: port,
		Role: local.Role,
	}

	if !roleEquals(local.Role, "Leader") {
		leaderHost, leaderPaxosPort := parseHostPort(local.CurrentLeader)
		gap := m.store.globalPortGap()
		leaderSQLPort := leaderPaxosPort + int(gap)
		node.Peers = []NodeInfo{{
			Tag:  mergeHostPort(leaderHost, leaderSQLPort),
			Host: leaderHost,
			Port: leaderSQLPort,
			Role: "Leader",
		}}
		return node, true
	}

	_, leaderPaxosPort := parseHostPort(local.CurrentLeader)
	gap := port - leaderPaxosPort
	m.store.setGlobalPortGap(int32(gap))

	globalRows, err := queryClusterGlobal(probeCtx, db)
	if err != nil {
		m.driverLog.Error("cluster-global probe failed for leader %s: %v", addr, err)
		return node, true
	}
	for _, row := range globalRows {
		if roleEquals(row.Role, "Leader") {
			continue
		}
		peerHost, peerPaxosPort := parseHostPort(row.IPPort)
		peerSQLPort := peerPaxosPort + gap
		node.Peers = append(node.Peers, NodeInfo{
			Tag:  mergeHostPort(peerHost, peerSQLPort),
			Host: peerHost,
			Port: peerSQLPort,
			Role: row.Role,
		})
	}
	return node, true
}
