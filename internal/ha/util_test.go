package ha

import "testing"

func TestIsIPv6(t *testing.T) {
	cases := []struct {
		addr string
		want bool
	}{
		{"10.0.0.1", false},
		{"::1", true},
		{"2001:db8::1", true},
		{"not-an-ip", false},
		{"", false},
	}
	for _, c := range cases {
		if got := isIPv6(c.addr); got != c.want {
			t.Errorf("isIPv6(%q) = %v, want %v", c.addr, got, c.want)
		}
	}
}

func TestContainsIPv6(t *testing.T) {
	if containsIPv6("10.0.0.1:3306,10.0.0.2:3306") {
		t.Error("expected false for all-IPv4 address list")
	}
	if !containsIPv6("10.0.0.1:3306,[::1]:3306") {
		t.Error("expected true when an IPv6 literal is present")
	}
}

func TestVersionString2Int32(t *testing.T) {
	cases := []struct {
		in   string
		want uint32
	}{
		{"5.7.21-TDDL-1.0", 50721},
		{"8.0.26", 80026},
		{"", 0},
		{"garbage", 0},
	}
	for _, c := range cases {
		if got := versionString2Int32(c.in); got != c.want {
			t.Errorf("versionString2Int32(%q) = %d, want %d", c.in, got, c.want)
		}
	}
}

func TestSplitAddrList(t *testing.T) {
	got := splitAddrList(" a , b,,c ")
	want := []string{"a", "b", "c"}
	if len(got) != len(want) {
		t.Fatalf("got %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("got %v, want %v", got, want)
		}
	}
}

func TestFirstAddr(t *testing.T) {
	if a, ok := firstAddr(" 10.0.0.1:3306 ,10.0.0.2:3306"); !ok || a != "10.0.0.1:3306" {
		t.Fatalf("expected first addr, got (%q, %v)", a, ok)
	}
	if _, ok := firstAddr("   "); ok {
		t.Fatal("expected no address for blank input")
	}
}

func TestIsCN(t *testing.T) {
	if !isCN("5.7.21-TDDL-1.0.0") {
		t.Error("expected -TDDL- marker to classify as CN")
	}
	if isCN("5.7.21-polarx") {
		t.Error("expected DN version string to not classify as CN")
	}
}

func TestGetZoneList(t *testing.T) {
	got := getZoneList("hz1, hz2,hz3")
	want := []string{"hz1", "hz2", "hz3"}
	if len(got) != len(want) {
		t.Fatalf("got %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("got %v, want %v", got, want)
		}
	}
	if getZoneList("") != nil {
		t.Error("expected nil for empty zone string")
	}
}
