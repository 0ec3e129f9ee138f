package ha

import "go.uber.org/atomic"

// connCounter is a monotonic per-endpoint counter (spec.md §4.8). It is not
// clamped at zero: a drop racing a topology change that removed the
// endpoint before the add can transiently go negative, and that is
// tolerated per spec.
type connCounter struct {
	n atomic.Int64
}

// connCount returns the current counter value for addr, treating an unseen
// endpoint as zero without creating an entry (use in read-only contexts;
// selection itself must create the entry inside the same critical section
// it reads from — see selector.go).
func (s *topologyStore) connCount(addr Endpoint) int64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if c, ok := s.connCnt[addr]; ok {
		return c.n.Load()
	}
	return 0
}

// addConnCountLocked increments addr's counter, creating it at 1 if unseen. Must
// be called under s.mu held for writing by the caller (selector.go) or
// independently under its own lock (AddConnCount, the public entry point).
func (s *topologyStore) addConnCountLocked(addr Endpoint) {
	c, ok := s.connCnt[addr]
	if !ok {
		c = &connCounter{}
		s.connCnt[addr] = c
	}
	c.n.Inc()
}

// dropConnCountLocked decrements addr's counter, creating it at -1 if
// unseen.
func (s *topologyStore) dropConnCountLocked(addr Endpoint) {
	c, ok := s.connCnt[addr]
	if !ok {
		c = &connCounter{}
		s.connCnt[addr] = c
	}
	c.n.Dec()
}
