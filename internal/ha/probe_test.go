package ha

import (
	"strings"
	"testing"
	"time"
)

func TestBuildDSN_WithCredentials(t *testing.T) {
	dsn := buildDSN("10.0.0.1:3306", map[string]string{"user": "root", "password": "secret", "database": "polarx"}, 2*time.Second)
	want := "root:secret@tcp(10.0.0.1:3306)/polarx?timeout=2s"
	if dsn != want {
		t.Fatalf("got %q, want %q", dsn, want)
	}
}

func TestBuildDSN_NoPassword(t *testing.T) {
	dsn := buildDSN("10.0.0.1:3306", map[string]string{"user": "root"}, time.Second)
	if !strings.HasPrefix(dsn, "root@tcp(") {
		t.Fatalf("expected bare-user credential prefix, got %q", dsn)
	}
}

func TestBuildDSN_NoCredentials(t *testing.T) {
	dsn := buildDSN("10.0.0.1:3306", nil, time.Second)
	if !strings.HasPrefix(dsn, "tcp(10.0.0.1:3306)/") {
		t.Fatalf("expected no credential prefix, got %q", dsn)
	}
}

func TestIsCN_Unaffected(t *testing.T) {
	// isCN already covered in util_test.go; this checks that a plain DN
	// version string without the -TDDL- marker is not classified as CN.
	if isCN("5.7.21") {
		t.Fatal("a bare DN version string must not classify as CN")
	}
}

func TestProbeQueries_AreVerbatim(t *testing.T) {
	// Probe query text must stay byte-for-byte stable (spec.md §4.4): any
	// edit here is a wire-compat break, not a style choice.
	if !strings.Contains(basicInfoQuery, "select version(), @@cluster_id, @@port") {
		t.Fatal("basicInfoQuery text changed")
	}
	if !strings.Contains(clusterLocalQuery, "alisql_cluster_local") {
		t.Fatal("clusterLocalQuery text changed")
	}
	if !strings.Contains(clusterGlobalQuery, "alisql_cluster_global") {
		t.Fatal("clusterGlobalQuery text changed")
	}
	if !strings.Contains(showMppQuery, "show mpp") {
		t.Fatal("showMppQuery text changed")
	}
}
