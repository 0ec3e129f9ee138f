// Package ha implements the client-side high-availability router for
// PolarDB-X style data-node (DN) and compute-node (CN) clusters: it keeps a
// live, cached topology by periodic probing, detects leader loss and
// leader-transfer windows, and selects a live endpoint for each connection
// request according to read/write intent, zone affinity, load-balance
// policy, and replication-lag thresholds.
//
// This is NOT a connection pool and does not speak the MySQL wire protocol
// itself — routing decisions are handed to database/sql plus a vendor
// driver, which is treated throughout as an opaque SQL executor.
package ha

import (
	"database/sql"
	"net"
	"strconv"
	"strings"
	"time"
)

// Endpoint is a rendered "host:port" address. Equality is by string.
type Endpoint = string

func mergeHostPort(host string, port int) Endpoint {
	return host + ":" + strconv.Itoa(port)
}

// parseHostPort splits "host:port" (optionally prefixed with a
// "scheme://") into host and port, defaulting to port 3306 when absent.
func parseHostPort(addr string) (host string, port int) {
	path := addr
	if idx := strings.Index(path, "://"); idx >= 0 {
		path = path[idx+3:]
	}
	h, p, err := net.SplitHostPort(path)
	if err != nil {
		return path, 3306
	}
	n, err := strconv.Atoi(p)
	if err != nil {
		return h, 3306
	}
	return h, n
}

// addressWithoutProtocol normalizes "mysql://host:port" style addresses to
// the bare "host:port" tag used as a map key and Endpoint value.
func addressWithoutProtocol(addr string) Endpoint {
	h, p := parseHostPort(addr)
	return mergeHostPort(h, p)
}

// NodeInfo describes a single DN cluster member. Peers are one level deep
// only — a peer never carries its own Peers slice.
type NodeInfo struct {
	Tag        Endpoint   `json:"tag"`
	Host       string     `json:"host"`
	Port       int        `json:"port"`
	Role       string     `json:"role"`
	Peers      []NodeInfo `json:"peers"`
	UpdateTime string     `json:"update_time"`
}

func roleEquals(role, want string) bool {
	return strings.EqualFold(role, want)
}

// LeaderTransferMark records the instant a leader-transfer window was
// first observed. Elapsed time is measured with time.Since, which uses
// the runtime's monotonic clock reading and is safe across wall-clock
// adjustments.
type LeaderTransferMark struct {
	Tag Endpoint
	At  time.Time
}

// MppInfo describes a single CN cluster member.
type MppInfo struct {
	Tag          Endpoint `json:"tag"`
	Role         string   `json:"role"`
	InstanceName string   `json:"instance_name"`
	ZoneList     []string `json:"zone_list"`
	IsLeader     string   `json:"is_leader"`
}

// pinnedConn is a single long-lived SQL connection pinned to one address,
// used by the DN health loop's ping step. db is the pool it was drawn from
// (capacity 1 in practice); conn is the actual pinned session.
type pinnedConn struct {
	db   *sql.DB
	conn *sql.Conn
}

func (p *pinnedConn) Close() {
	if p == nil {
		return
	}
	if p.conn != nil {
		p.conn.Close()
	}
	if p.db != nil {
		p.db.Close()
	}
}

// ClusterInfo is the DN topology authoritative snapshot. GlobalPortGap and
// LongConnection are mutated only by the DN health loop, under the
// Topology Store's exclusive lock.
type ClusterInfo struct {
	Leader         *NodeInfo
	Transfer       *LeaderTransferMark
	GlobalPortGap  int32
	LongConnection *pinnedConn
}

func newClusterInfo() *ClusterInfo {
	return &ClusterInfo{GlobalPortGap: -8000}
}
