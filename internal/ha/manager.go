package ha

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/atomic"

	"github.com/polardbx/xcluster-ha/internal/eventlog"
	"github.com/polardbx/xcluster-ha/internal/xlog"
)

// Manager is the per-cluster HA router: a live topology cache kept fresh
// by a background health loop (DN or CN, decided once at construction),
// plus the Selector surface callers use to obtain a live endpoint
// (spec.md §1, §4).
type Manager struct {
	tag string
	cfg *PolarConfig
	isCN bool

	store *topologyStore

	driverLog  *xlog.Logger
	monitorLog *xlog.Logger

	stopped atomic.Bool
	stopCh  chan struct{}
	wg      sync.WaitGroup

	mu      sync.Mutex // serializes Start; guards started and ledger
	started bool

	// serverVersionRaw/serverVersionPacked are learned once, from the
	// Registry's bootstrap probe (spec.md §4.1 step 2). See
	// SPEC_FULL.md "Supplemented features" #3.
	serverVersionRaw    string
	serverVersionPacked uint32

	// ledger is optional: when set, every DN/CN classification is
	// appended as a TransitionEvent (SPEC_FULL.md "HA event ledger").
	// Purely observational — never read back into a routing decision.
	// Guarded by mu.
	ledger *eventlog.Ledger
}

// SetLedger attaches an event ledger. It may be called while the health
// loop is already running (the Registry starts a manager before returning
// it); mu guards the field against the loop's concurrent reads.
func (m *Manager) SetLedger(l *eventlog.Ledger) {
	m.mu.Lock()
	m.ledger = l
	m.mu.Unlock()
}

// recordTransition appends a TransitionEvent if a ledger is attached. It
// never returns an error to the health loop — a ledger write failure is
// logged and otherwise ignored, matching spec.md §7's "background loop
// never propagates errors" policy extended to this additive surface.
func (m *Manager) recordTransition(component, state, detail string) {
	m.mu.Lock()
	ledger := m.ledger
	m.mu.Unlock()
	if ledger == nil {
		return
	}
	err := ledger.Record(eventlog.TransitionEvent{
		Timestamp:     time.Now().UnixNano(),
		ClusterTag:    m.tag,
		Component:     component,
		State:         state,
		Detail:        detail,
		CorrelationID: uuid.NewString(),
	})
	if err != nil {
		m.monitorLog.Error("eventlog record failed: %v", err)
	}
}

// ServerVersion returns the raw version string and its packed integer form
// (versionString2Int32) learned at bootstrap.
func (m *Manager) ServerVersion() (string, uint32) {
	return m.serverVersionRaw, m.serverVersionPacked
}

// newManager constructs a Manager for tag. isCN decides which health loop
// Start spawns. Callers get managers exclusively through the Registry
// (registry.go), which owns the bootstrap probe and the singleton map.
func newManager(tag string, cfg *PolarConfig, isCN bool) *Manager {
	return &Manager{
		tag:        tag,
		cfg:        cfg,
		isCN:       isCN,
		store:      newTopologyStore(),
		driverLog:  xlog.New("driver", cfg.EnableLog),
		monitorLog: xlog.New("monitor", cfg.EnableLog),
		stopCh:     make(chan struct{}),
	}
}

// Start spawns the background health loop. Safe to call once; later
// calls are no-ops.
func (m *Manager) Start() {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.stopped.Load() || m.started {
		return
	}
	select {
	case <-m.stopCh:
		return
	default:
	}
	m.started = true
	m.wg.Add(1)
	if m.isCN {
		go m.runCNHealthLoop()
	} else {
		go m.runDNHealthLoop()
	}
}

// Stop signals the health loop to exit and waits for it to return. It
// preempts any in-progress sleep immediately via stopCh.
func (m *Manager) Stop() {
	if !m.stopped.CompareAndSwap(false, true) {
		return
	}
	close(m.stopCh)
	m.wg.Wait()
	m.store.broadcast() // release any Selector still waiting
	m.closeLongConnection()
}

func (m *Manager) closeLongConnection() {
	m.store.mu.Lock()
	defer m.store.mu.Unlock()
	if m.store.dn.LongConnection != nil {
		m.store.dn.LongConnection.Close()
		m.store.dn.LongConnection = nil
	}
}

// sleepOrStop blocks for d or until Stop is called, whichever comes
// first. Returns true if it was woken by Stop.
func (m *Manager) sleepOrStop(ctx context.Context, d int) bool {
	if d <= 0 {
		return false
	}
	timer := newMillisTimer(d)
	defer timer.Stop()
	select {
	case <-m.stopCh:
		return true
	case <-timer.C:
		return false
	case <-ctx.Done():
		return true
	}
}

// Tag returns the cluster tag this manager was registered under.
func (m *Manager) Tag() string { return m.tag }

// IsCN reports whether this manager routes a stateless compute-node pool
// rather than a Paxos-replicated data-node cluster.
func (m *Manager) IsCN() bool { return m.isCN }

// Status is a read-only snapshot of the current topology, suitable for
// JSON encoding by an observability surface (internal/statusapi). It
// takes the store's shared lock like any other reader and never mutates
// anything.
type Status struct {
	Tag       string    `json:"tag"`
	IsCN      bool      `json:"is_cn"`
	Leader    string    `json:"leader,omitempty"`
	Transfer  string    `json:"transfer,omitempty"`
	PortGap   int32     `json:"global_port_gap"`
	CNNodes   []MppInfo `json:"cn_nodes,omitempty"`
	Addresses []string  `json:"addresses"`
}

// Status returns the current snapshot for this manager.
func (m *Manager) Status() Status {
	m.store.mu.RLock()
	defer m.store.mu.RUnlock()

	s := Status{
		Tag:       m.tag,
		IsCN:      m.isCN,
		PortGap:   m.store.dn.GlobalPortGap,
		Addresses: append([]string(nil), m.store.connAddrs...),
	}
	if m.store.dn.Leader != nil {
		s.Leader = m.store.dn.Leader.Tag
	}
	if m.store.dn.Transfer != nil {
		s.Transfer = m.store.dn.Transfer.Tag
	}
	if len(m.store.cn) > 0 {
		s.CNNodes = append([]MppInfo(nil), m.store.cn...)
	}
	return s
}
