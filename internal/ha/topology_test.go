package ha

import (
	"testing"
	"time"
)

func TestTopologyStore_LeaderTagEmpty(t *testing.T) {
	s := newTopologyStore()
	if tag := s.leaderTag(); tag != "" {
		t.Fatalf("expected empty leader tag on a fresh store, got %q", tag)
	}
}

func TestTopologyStore_GlobalPortGapDefault(t *testing.T) {
	s := newTopologyStore()
	if gap := s.globalPortGap(); gap != -8000 {
		t.Fatalf("expected default gap -8000, got %d", gap)
	}
	s.setGlobalPortGap(42)
	if gap := s.globalPortGap(); gap != 42 {
		t.Fatalf("expected learned gap 42, got %d", gap)
	}
}

func TestTopologyStore_SeedAddrListOnlyOnce(t *testing.T) {
	// spec.md §4.5/§9: once seeded, the address list never grows from later
	// probes or file writes.
	s := newTopologyStore()
	s.seedAddrListIfEmpty([]string{"a:1", "b:1"})
	s.seedAddrListIfEmpty([]string{"c:1"})
	got := s.addrList()
	if len(got) != 2 || got[0] != "a:1" || got[1] != "b:1" {
		t.Fatalf("expected first seed to stick, got %v", got)
	}
}

func TestTopologyStore_CnSnapshotIsACopy(t *testing.T) {
	s := newTopologyStore()
	s.mu.Lock()
	s.cn = []MppInfo{{Tag: "a:1"}}
	s.mu.Unlock()

	snap := s.cnSnapshot()
	snap[0].Tag = "mutated"

	if got := s.cnSnapshot(); got[0].Tag != "a:1" {
		t.Fatalf("mutating the snapshot must not affect the store, got %q", got[0].Tag)
	}
}

func TestTopologyStore_WaitTimeoutReturnsOnBroadcast(t *testing.T) {
	s := newTopologyStore()
	start := time.Now()
	go func() {
		time.Sleep(10 * time.Millisecond)
		s.broadcast()
	}()
	s.waitTimeout(2 * time.Second)
	if elapsed := time.Since(start); elapsed > time.Second {
		t.Fatalf("expected broadcast to wake the waiter promptly, took %v", elapsed)
	}
}

func TestTopologyStore_WaitTimeoutElapsesWithoutBroadcast(t *testing.T) {
	s := newTopologyStore()
	start := time.Now()
	s.waitTimeout(50 * time.Millisecond)
	if elapsed := time.Since(start); elapsed < 40*time.Millisecond {
		t.Fatalf("expected to block roughly until the deadline, took %v", elapsed)
	}
}

func TestTopologyStore_WaitTimeoutNonPositiveReturnsImmediately(t *testing.T) {
	s := newTopologyStore()
	start := time.Now()
	s.waitTimeout(0)
	if elapsed := time.Since(start); elapsed > 50*time.Millisecond {
		t.Fatalf("expected immediate return for non-positive duration, took %v", elapsed)
	}
}
