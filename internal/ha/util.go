package ha

import (
	"net"
	"strconv"
	"strings"
	"time"
)

// newMillisTimer starts a timer firing after ms milliseconds.
func newMillisTimer(ms int) *time.Timer {
	return time.NewTimer(time.Duration(ms) * time.Millisecond)
}

func minInt(a, b int) int {
	if a < b {
		return a
	}
	return b
}

// isIPv6 reports whether address parses as an IPv6 literal. Grounded on
// original_source/include/utils.hpp's isIPv6: parse, don't guess, via the
// address-family test rather than a regex.
func isIPv6(address string) bool {
	ip := net.ParseIP(strings.TrimSpace(address))
	if ip == nil {
		return false
	}
	return ip.To4() == nil
}

// containsIPv6 reports whether any comma-separated token in addresses is an
// IPv6 literal (host only, no port).
func containsIPv6(addresses string) bool {
	for _, tok := range strings.Split(addresses, ",") {
		tok = strings.TrimSpace(tok)
		if tok == "" {
			continue
		}
		host, _ := parseHostPort(tok)
		if isIPv6(host) {
			return true
		}
	}
	return false
}

// versionString2Int32 packs a "MAJOR.MINOR.PATCH[...]" prefix into
// 10000*MAJOR + 100*MINOR + PATCH, matching
// original_source/include/utils.hpp's versionString2Int32 exactly.
func versionString2Int32(versionStr string) uint32 {
	if versionStr == "" {
		return 0
	}
	limit := 0
	for limit < len(versionStr) {
		ch := versionStr[limit]
		if (ch < '0' || ch > '9') && ch != '.' {
			break
		}
		limit++
	}
	parts := strings.Split(versionStr[:limit], ".")
	if len(parts) < 3 {
		return 0
	}
	v1, err1 := strconv.Atoi(parts[0])
	v2, err2 := strconv.Atoi(parts[1])
	v3, err3 := strconv.Atoi(parts[2])
	if err1 != nil || err2 != nil || err3 != nil {
		return 0
	}
	return uint32(10000*v1 + 100*v2 + v3)
}

// splitAddrList trims and drops empty entries from a comma-separated
// address list, preserving order.
func splitAddrList(addr string) []string {
	var out []string
	for _, tok := range strings.Split(addr, ",") {
		tok = strings.TrimSpace(tok)
		if tok != "" {
			out = append(out, tok)
		}
	}
	return out
}

// firstAddr returns the first non-empty, trimmed token of a comma-separated
// address list.
func firstAddr(addr string) (string, bool) {
	for _, tok := range splitAddrList(addr) {
		return tok, true
	}
	return "", false
}
