package ha

import (
	"path/filepath"
	"testing"

	"github.com/google/go-cmp/cmp"
)

func TestSaveLoadDN_RoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "dn.json")
	nodes := []NodeInfo{
		{Tag: "10.0.0.1:3306", Host: "10.0.0.1", Port: 3306, Role: "Leader", UpdateTime: "1"},
		{
			Tag: "10.0.0.2:3306", Host: "10.0.0.2", Port: 3306, Role: "Follower", UpdateTime: "1",
			Peers: []NodeInfo{{Tag: "10.0.0.1:3306", Host: "10.0.0.1", Port: 3306, Role: "Leader"}},
		},
	}

	if err := saveDNToFile(nodes, path); err != nil {
		t.Fatalf("saveDNToFile: %v", err)
	}
	loaded, err := loadDNFromFile(path)
	if err != nil {
		t.Fatalf("loadDNFromFile: %v", err)
	}

	want := []NodeInfo{
		{Tag: "10.0.0.1:3306", Host: "10.0.0.1", Port: 3306, Role: "Leader", Peers: []NodeInfo{}, UpdateTime: "1"},
		{Tag: "10.0.0.2:3306", Host: "10.0.0.2", Port: 3306, Role: "Follower", Peers: []NodeInfo{}, UpdateTime: "1"},
	}
	if diff := cmp.Diff(want, loaded); diff != "" {
		t.Errorf("round-trip mismatch (-want +got):\n%s", diff)
	}
}

func TestSaveLoadMpp_RoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "mpp.json")
	mpp := []MppInfo{
		{Tag: "10.0.0.1:3306", Role: "W", InstanceName: "cn1", ZoneList: []string{"hz1"}, IsLeader: "Y"},
		{Tag: "10.0.0.2:3306", Role: "R", InstanceName: "cn2", ZoneList: []string{"hz2"}, IsLeader: "N"},
	}
	if err := saveMppToFile(mpp, path); err != nil {
		t.Fatalf("saveMppToFile: %v", err)
	}
	loaded, err := loadMppFromFile(path)
	if err != nil {
		t.Fatalf("loadMppFromFile: %v", err)
	}
	if diff := cmp.Diff(mpp, loaded); diff != "" {
		t.Errorf("round-trip mismatch (-want +got):\n%s", diff)
	}
}

func TestSaveDNToFile_AtomicOnError(t *testing.T) {
	// Writing to a directory that doesn't exist should report failure and
	// leave nothing loadable at the target path.
	badPath := filepath.Join(t.TempDir(), "missing-dir", "dn.json")
	if err := saveDNToFile(nil, badPath); err == nil {
		t.Fatal("expected error writing to nonexistent directory")
	}
	if _, err := loadDNFromFile(badPath); err == nil {
		t.Fatal("expected load of never-written path to fail")
	}
}

func TestLoadDNFromFile_MissingFile(t *testing.T) {
	_, err := loadDNFromFile(filepath.Join(t.TempDir(), "nope.json"))
	if err == nil {
		t.Fatal("expected error loading nonexistent file")
	}
}
