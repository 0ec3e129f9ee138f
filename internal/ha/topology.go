package ha

import (
	"sync"
	"time"
)

// topologyStore holds the full DN/CN topology plus the connection-address
// list and per-endpoint counters, all protected by a single
// reader-writer lock (spec.md §4.2: "Finer locking... is not worth the
// complexity because consistency across leader/connection/portGap is
// required"). A separate condition variable, paired with its own mutex,
// signals "new topology available" to Selector waiters.
type topologyStore struct {
	mu sync.RWMutex

	dn ClusterInfo
	cn []MppInfo

	connAddrs []string
	connCnt   map[Endpoint]*connCounter

	condMu sync.Mutex
	cond   *sync.Cond
}

func newTopologyStore() *topologyStore {
	s := &topologyStore{
		dn:      *newClusterInfo(),
		connCnt: make(map[Endpoint]*connCounter),
	}
	s.cond = sync.NewCond(&s.condMu)
	return s
}

// broadcast wakes every Selector currently waiting on this store.
func (s *topologyStore) broadcast() {
	s.condMu.Lock()
	s.cond.Broadcast()
	s.condMu.Unlock()
}

// waitTimeout blocks the calling goroutine on the broadcast condition for
// at most d. It always returns once awakened or once the timeout elapses;
// it never reports which.
func (s *topologyStore) waitTimeout(d time.Duration) {
	if d <= 0 {
		return
	}
	done := make(chan struct{})
	go func() {
		s.condMu.Lock()
		s.cond.Wait()
		s.condMu.Unlock()
		close(done)
	}()

	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-done:
	case <-timer.C:
		// Release the waiter goroutine by broadcasting until it returns: a
		// broadcast that lands before the goroutine has entered Wait wakes
		// nobody, so a single broadcast is not enough. Spurious wakeups of
		// other waiters are always legal for a condition variable.
		for {
			s.broadcast()
			select {
			case <-done:
				return
			case <-time.After(time.Millisecond):
			}
		}
	}
}

// leaderTag returns the current DN leader's tag under the shared lock, or
// "" if none.
func (s *topologyStore) leaderTag() Endpoint {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.dn.Leader == nil {
		return ""
	}
	return s.dn.Leader.Tag
}

// globalPortGap reads the learned SQL/Paxos port gap under the shared lock.
func (s *topologyStore) globalPortGap() int32 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.dn.GlobalPortGap
}

// setGlobalPortGap records a freshly learned SQL/Paxos port gap under the
// exclusive lock.
func (s *topologyStore) setGlobalPortGap(gap int32) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.dn.GlobalPortGap = gap
}

// cnSnapshot returns a copy of the current CN list under the shared lock.
func (s *topologyStore) cnSnapshot() []MppInfo {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]MppInfo, len(s.cn))
	copy(out, s.cn)
	return out
}

// addrList returns the seeded connection-address list under the shared
// lock.
func (s *topologyStore) addrList() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]string, len(s.connAddrs))
	copy(out, s.connAddrs)
	return out
}

// seedAddrListIfEmpty installs addrs as the connection-address list only if
// it is currently empty (spec.md §4.5/§9: "once seeded, the address list
// never grows" from later probes or file writes — intentional).
func (s *topologyStore) seedAddrListIfEmpty(addrs []string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.connAddrs) == 0 {
		s.connAddrs = addrs
	}
}
