package ha

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
)

// Registry is the process-wide cluster-tag -> Manager map (spec.md §4.1,
// C7). One Registry is expected per process; Default is the package-level
// instance callers normally use.
type Registry struct {
	mu       sync.RWMutex
	managers map[string]*Manager

	// sqlFactoryMu serializes acquisition of the vendor SQL driver instance,
	// mirroring spec.md §5's "process-wide mutex... the vendored driver is
	// not required to be thread-safe for driver acquisition".
	sqlFactoryMu sync.Mutex
}

// Default is the package-level Registry singleton used by GetManager.
var Default = NewRegistry()

// NewRegistry constructs an empty registry. Most callers want the package
// singleton Default; a dedicated Registry is useful in tests that must not
// share state with other tests in the same process.
func NewRegistry() *Registry {
	return &Registry{managers: make(map[string]*Manager)}
}

// provisionalTag computes the registry key from (clusterID, addr) before
// the bootstrap probe has learned anything (spec.md §4.1 step 1, §3.2 I5).
func provisionalTag(clusterID int, addr string) string {
	if clusterID >= 0 {
		return strconv.Itoa(clusterID)
	}
	return addr + "#"
}

// GetManager returns the Manager for cfg, creating and starting one on
// first use (spec.md §4.1). It performs the three-stage lookup described
// there: provisional-tag fast path, bootstrap probe, then the
// learned-tag insert-if-absent under an exclusive lock.
func (r *Registry) GetManager(ctx context.Context, cfg *PolarConfig) (*Manager, error) {
	provTag := provisionalTag(cfg.ClusterID, cfg.Addr)

	r.mu.RLock()
	if m, ok := r.managers[provTag]; ok {
		r.mu.RUnlock()
		return m, nil
	}
	r.mu.RUnlock()

	addr, ok := firstAddr(cfg.Addr)
	if !ok {
		return nil, fmt.Errorf("%w: empty Addr", ErrBootstrapFailed)
	}

	r.sqlFactoryMu.Lock()
	db, err := openShortLived(addr, cfg.ConnProperties, probeConnectTimeout)
	if err != nil {
		r.sqlFactoryMu.Unlock()
		return nil, fmt.Errorf("%w: %v", ErrBootstrapFailed, err)
	}
	bctx, cancel := context.WithTimeout(ctx, probeConnectTimeout)
	info, err := queryBasicInfo(bctx, db)
	cancel()
	db.Close()
	r.sqlFactoryMu.Unlock()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrBootstrapFailed, err)
	}

	isCNCluster := isCN(info.Version)
	clusterID := cfg.ClusterID
	if isCNCluster {
		clusterID = -1
	} else if clusterID < 0 {
		clusterID = info.ClusterID
	}

	useIPv6 := containsIPv6(cfg.Addr)
	jsonFile := cfg.JsonFile
	if jsonFile == "" {
		jsonFile, err = synthesizeJSONFile(clusterID, cfg.Addr, useIPv6)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrBootstrapFailed, err)
		}
	}

	tag := provisionalTag(clusterID, cfg.Addr)

	r.mu.Lock()
	defer r.mu.Unlock()
	if m, ok := r.managers[tag]; ok {
		return m, nil
	}

	cfgCopy := *cfg
	cfgCopy.ClusterID = clusterID
	cfgCopy.JsonFile = jsonFile

	m := newManager(tag, &cfgCopy, isCNCluster)
	m.serverVersionRaw = info.Version
	m.serverVersionPacked = versionString2Int32(info.Version)
	m.Start()
	r.managers[tag] = m
	return m, nil
}

// GetManager delegates to the package-level Default registry.
func GetManager(ctx context.Context, cfg *PolarConfig) (*Manager, error) {
	return Default.GetManager(ctx, cfg)
}

// synthesizeJSONFile builds the warm-start path
// "<tmp>/XCluster-<id-or-addr>-{IPv4|IPv6}.json" (spec.md §4.1 step 3,
// §9 "Warm-start file path synthesis"), creating a file holding an empty
// JSON array if one does not already exist there.
func synthesizeJSONFile(clusterID int, addr string, useIPv6 bool) (string, error) {
	family := "IPv4"
	if useIPv6 {
		family = "IPv6"
	}
	var idPart string
	if clusterID >= 0 {
		idPart = strconv.Itoa(clusterID)
	} else {
		idPart = strings.NewReplacer(":", "_", ",", "_", "/", "_").Replace(addr)
	}
	name := fmt.Sprintf("XCluster-%s-%s.json", idPart, family)
	path := filepath.Join(os.TempDir(), name)

	if _, err := os.Stat(path); os.IsNotExist(err) {
		if err := os.WriteFile(path, []byte("[]"), 0644); err != nil {
			return "", err
		}
	} else if err != nil {
		return "", err
	}
	return path, nil
}

// All returns every currently registered Manager, for observability
// surfaces that want to enumerate clusters (internal/statusapi).
func (r *Registry) All() []*Manager {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]*Manager, 0, len(r.managers))
	for _, m := range r.managers {
		out = append(out, m)
	}
	return out
}

// Teardown stops every manager's background loop and waits for it to exit,
// then clears the registry. Intended for process shutdown / test cleanup.
func (r *Registry) Teardown() {
	r.mu.Lock()
	managers := make([]*Manager, 0, len(r.managers))
	for _, m := range r.managers {
		managers = append(managers, m)
	}
	r.managers = make(map[string]*Manager)
	r.mu.Unlock()

	for _, m := range managers {
		m.Stop()
	}
}
