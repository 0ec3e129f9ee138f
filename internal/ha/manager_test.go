package ha

import (
	"context"
	"testing"
	"time"

	"go.uber.org/atomic"
	"go.uber.org/goleak"
)

func newTestManager(tag string) *Manager {
	return newManager(tag, &PolarConfig{
		IgnoreVip:             atomic.NewBool(true),
		HaCheckInterval:       50,
		HaCheckSocketTimeout:  500,
		HaCheckConnectTimeout: 500,
	}, false)
}

func TestGetAvailableDNWithWait_NoLeader_ZeroTimeout(t *testing.T) {
	// spec.md §8 boundary: timeoutMs <= 0 => exactly one attempt.
	m := newTestManager("t1")
	ep, ok := m.GetAvailableDNWithWait(context.Background(), 0, false, 3, 1, algoRandom)
	if ok || ep != "" {
		t.Fatalf("expected (\"\", false) with no leader, got (%q, %v)", ep, ok)
	}
}

func TestGetAvailableDNWithWait_NegativeTimeout(t *testing.T) {
	m := newTestManager("t1")
	ep, ok := m.GetAvailableDNWithWait(context.Background(), -5, false, 3, 1, algoRandom)
	if ok || ep != "" {
		t.Fatalf("expected (\"\", false) with negative timeout, got (%q, %v)", ep, ok)
	}
}

func TestGetAvailableDNWithWait_ReturnsLeaderImmediately(t *testing.T) {
	m := newTestManager("t1")
	m.store.dn.Leader = &NodeInfo{Tag: "10.0.0.1:3306", Role: "Leader"}

	ep, ok := m.GetAvailableDNWithWait(context.Background(), 1000, false, 3, 1, algoRandom)
	if !ok || ep != "10.0.0.1:3306" {
		t.Fatalf("expected immediate leader return, got (%q, %v)", ep, ok)
	}
}

func TestGetAvailableDNWithWait_TimesOutThenReturnsFalse(t *testing.T) {
	m := newTestManager("t1")
	start := time.Now()
	ep, ok := m.GetAvailableDNWithWait(context.Background(), 150, false, 3, 1, algoRandom)
	elapsed := time.Since(start)
	if ok || ep != "" {
		t.Fatalf("expected (\"\", false) timing out, got (%q, %v)", ep, ok)
	}
	if elapsed < 100*time.Millisecond {
		t.Fatalf("expected to block roughly until the deadline, only took %v", elapsed)
	}
}

func TestGetAvailableDNWithWait_WokenByBroadcast(t *testing.T) {
	m := newTestManager("t1")
	go func() {
		time.Sleep(20 * time.Millisecond)
		m.store.mu.Lock()
		m.store.dn.Leader = &NodeInfo{Tag: "10.0.0.9:3306", Role: "Leader"}
		m.store.mu.Unlock()
		m.store.broadcast()
	}()

	ep, ok := m.GetAvailableDNWithWait(context.Background(), 2000, false, 3, 1, algoRandom)
	if !ok || ep != "10.0.0.9:3306" {
		t.Fatalf("expected wakeup to surface new leader, got (%q, %v)", ep, ok)
	}
}

func TestManager_StartStop_NoLeak(t *testing.T) {
	defer goleak.VerifyNone(t)
	m := newTestManager("leak-check")
	m.Start()
	m.Stop()
}

func TestManager_StopPreemptsSleep(t *testing.T) {
	// spec.md §5: "Setting the manager's stop flag must cause the health
	// loop to exit before its next sleep elapses."
	m := newManager("stop-preempt", &PolarConfig{
		IgnoreVip:       atomic.NewBool(true),
		HaCheckInterval: 60_000, // no addresses => LEADER_LOST, which sleeps min(3000, 60000) ms if not preempted
		Addr:            "",
	}, false)
	m.Start()
	done := make(chan struct{})
	go func() {
		m.Stop()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Stop did not return promptly; sleep was not preempted")
	}
}

func TestProvisionalTag(t *testing.T) {
	if got := provisionalTag(5, "ignored"); got != "5" {
		t.Fatalf("expected tag '5' for clusterID>=0, got %q", got)
	}
	if got := provisionalTag(-1, "10.0.0.1:3306"); got != "10.0.0.1:3306#" {
		t.Fatalf("expected addr-based tag, got %q", got)
	}
}
