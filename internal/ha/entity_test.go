package ha

import "testing"

func TestMergeHostPort(t *testing.T) {
	if got := mergeHostPort("10.0.0.1", 3306); got != "10.0.0.1:3306" {
		t.Fatalf("got %q", got)
	}
}

func TestParseHostPort(t *testing.T) {
	cases := []struct {
		addr     string
		wantHost string
		wantPort int
	}{
		{"10.0.0.1:3306", "10.0.0.1", 3306},
		{"mysql://10.0.0.1:3307", "10.0.0.1", 3307},
		{"10.0.0.1", "10.0.0.1", 3306},
	}
	for _, c := range cases {
		h, p := parseHostPort(c.addr)
		if h != c.wantHost || p != c.wantPort {
			t.Errorf("parseHostPort(%q) = (%q, %d), want (%q, %d)", c.addr, h, p, c.wantHost, c.wantPort)
		}
	}
}

func TestAddressWithoutProtocol(t *testing.T) {
	if got := addressWithoutProtocol("mysql://10.0.0.1:3307"); got != "10.0.0.1:3307" {
		t.Fatalf("got %q", got)
	}
}

func TestRoleEquals(t *testing.T) {
	if !roleEquals("leader", "Leader") {
		t.Fatal("expected case-insensitive match")
	}
	if roleEquals("follower", "Leader") {
		t.Fatal("expected mismatch")
	}
}

func TestNewClusterInfo_DefaultPortGap(t *testing.T) {
	ci := newClusterInfo()
	if ci.GlobalPortGap != -8000 {
		t.Fatalf("expected default port gap -8000, got %d", ci.GlobalPortGap)
	}
	if ci.Leader != nil || ci.Transfer != nil {
		t.Fatal("expected a fresh ClusterInfo to have no leader or transfer mark")
	}
}

func TestPinnedConn_CloseNil(t *testing.T) {
	var p *pinnedConn
	p.Close() // must not panic
}
