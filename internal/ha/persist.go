package ha

import (
	"encoding/json"
	"os"
)

// saveDNToFile atomically persists nodes to path, per spec.md §4.3/§6.1.
// Each node is written at the top level with an empty Peers slice; nested
// peers are not added to the output, so the caller passes an already
// flattened list (dnFullCheck merges every peer into it). Best-effort:
// failures are reported, never fatal, and the temp file is removed on any
// I/O error.
func saveDNToFile(nodes []NodeInfo, path string) error {
	flat := make([]NodeInfo, 0, len(nodes))
	for _, n := range nodes {
		n.Peers = []NodeInfo{}
		flat = append(flat, n)
	}
	return atomicWriteJSON(path, flat)
}

// loadDNFromFile parses the DN warm-start file, reconstructing each
// NodeInfo with an empty Peers slice (spec.md §4.3 DN load).
func loadDNFromFile(path string) ([]NodeInfo, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var nodes []NodeInfo
	if err := json.Unmarshal(data, &nodes); err != nil {
		return nil, err
	}
	for i := range nodes {
		nodes[i].Peers = []NodeInfo{}
	}
	return nodes, nil
}

// saveMppToFile atomically persists the CN list to path.
func saveMppToFile(mpp []MppInfo, path string) error {
	return atomicWriteJSON(path, mpp)
}

// loadMppFromFile parses the CN warm-start file.
func loadMppFromFile(path string) ([]MppInfo, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var mpp []MppInfo
	if err := json.Unmarshal(data, &mpp); err != nil {
		return nil, err
	}
	return mpp, nil
}

// atomicWriteJSON writes v as indented JSON to path+".tmp" then renames it
// onto path. On any error the temp file is removed and the error returned.
func atomicWriteJSON(path string, v interface{}) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0644); err != nil {
		os.Remove(tmp)
		return err
	}
	if err := os.Rename(tmp, path); err != nil {
		os.Remove(tmp)
		return err
	}
	return nil
}
