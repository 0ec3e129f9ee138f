package ha

// Probe query text is stable and must be preserved verbatim so that
// server-side audit tags match (spec.md §4.4). Grounded on
// original_source/include/const.hpp.
const (
	basicInfoQuery = "/* PolarDB-X-Driver HAMANAGER */ select version(), @@cluster_id, @@port;"

	clusterLocalQuery = "/* PolarDB-X-Driver HAMANAGER */ select CURRENT_LEADER, ROLE from information_schema.alisql_cluster_local limit 1;"

	clusterGlobalQuery = "/* PolarDB-X-Driver HAMANAGER */ select ROLE, IP_PORT from information_schema.alisql_cluster_global;"

	checkLeaderTransferQuery = "/* PolarDB-X-Driver HAMANAGER */ show global status like 'consensus_in_leader_transfer';"

	showMppQuery = "/* PolarDB-X-HA-Driver HAMANAGER */ show mpp;"

	// clusterHealthQueryFmt takes (applyDelayThreshold, slaveWeightThreshold).
	clusterHealthQueryFmt = "/* PolarDB-X-Driver HAMANAGER */ select a.Role, a.IP_PORT from information_schema.alisql_cluster_health a join information_schema.alisql_cluster_global b on a.IP_PORT=b.IP_PORT where a.APPLY_RUNNING='Yes' and a.APPLY_DELAY_SECONDS <= %d and b.ELECTION_WEIGHT > %d"

	// recordDsnQueryFmt takes the rendered jdbc-like URL string.
	recordDsnQueryFmt = "/* PolarDB-X-Driver HAMANAGER */ call dbms_conn.comment_connection('%s');"

	setFollowerReadTrue       = "/* PolarDB-X-Driver HAMANAGER */ set session enable_in_memory_follower_read = true;"
	setFollowerReadFalse      = "/* PolarDB-X-Driver HAMANAGER */ set session enable_in_memory_follower_read = false;"
	setReadWeight             = "/* PolarDB-X-Driver HAMANAGER */ set session FOLLOWER_READ_WEIGHT = 100;"
	enableConsistentReadTrue  = "/* PolarDB-X-Driver HAMANAGER */ set session ENABLE_CONSISTENT_REPLICA_READ = true;"
	enableConsistentReadFalse = "/* PolarDB-X-Driver HAMANAGER */ set session ENABLE_CONSISTENT_REPLICA_READ = false;"
)

// DNState is the DN health loop's tick classification (spec.md §4.5).
type DNState int

const (
	LeaderAlive DNState = iota
	LeaderTransferring
	LeaderTransferred
	LeaderLost
)

func (s DNState) String() string {
	switch s {
	case LeaderAlive:
		return "LEADER_ALIVE"
	case LeaderTransferring:
		return "LEADER_TRANSFERRING"
	case LeaderTransferred:
		return "LEADER_TRANSFERRED"
	case LeaderLost:
		return "LEADER_LOST"
	default:
		return "UNKNOWN"
	}
}

// CNState is the CN health loop's tick classification (spec.md §4.6).
type CNState int

const (
	CNAlive CNState = iota
	CNLost
)

const (
	roleWriter           = "W"
	roleReader           = "R"
	roleConsistentReader = "CR"

	algoRandom         = "random"
	algoLeastConn      = "least_connection"
	algoLeastConnAlias = "least_conn"
)

// Follower-read toggle states (spec.md §3.1 EnableFollowerRead).
const (
	FollowerReadNoOp             = -1
	FollowerReadDisable          = 0
	FollowerReadEnable           = 1
	FollowerReadEnableConsistent = 2
)
