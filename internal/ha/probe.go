package ha

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	_ "github.com/go-sql-driver/mysql"
	"github.com/google/uuid"
)

// sqlExecutor is the opaque "SQL executor" collaborator named in spec.md
// §1: *sql.DB and *sql.Conn both satisfy it, so probe helpers below work
// identically against a fresh, short-lived connection or the DN health
// loop's pinned long connection.
type sqlExecutor interface {
	QueryContext(ctx context.Context, query string, args ...interface{}) (*sql.Rows, error)
	ExecContext(ctx context.Context, query string, args ...interface{}) (sql.Result, error)
}

// buildDSN renders a go-sql-driver/mysql DSN for addr using the opaque
// connection properties map (credentials etc., spec.md §3.1 PolarConfig).
// Recognized keys: "user", "password", "database".
func buildDSN(addr string, props map[string]string, connectTimeout time.Duration) string {
	user := props["user"]
	pass := props["password"]
	db := props["database"]
	var cred string
	if user != "" {
		cred = user
		if pass != "" {
			cred += ":" + pass
		}
		cred += "@"
	}
	return fmt.Sprintf("%stcp(%s)/%s?timeout=%s", cred, addr, db, connectTimeout)
}

// openShortLived opens a fresh *sql.DB against addr, capped at one
// connection, for a single probe. Callers must Close() it when done.
func openShortLived(addr string, props map[string]string, connectTimeout time.Duration) (*sql.DB, error) {
	dsn := buildDSN(addr, props, connectTimeout)
	db, err := sql.Open("mysql", dsn)
	if err != nil {
		return nil, err
	}
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	return db, nil
}

// probeConnectTimeout is the fixed 2-second connect timeout spec.md §4.4
// mandates for every probe connection (except pings over the leader's
// already-open long connection).
const probeConnectTimeout = 2 * time.Second

// basicInfoResult is the parsed result of the Basic Info Query.
type basicInfoResult struct {
	Version   string
	ClusterID int
	Port      int
}

func queryBasicInfo(ctx context.Context, ex sqlExecutor) (basicInfoResult, error) {
	rows, err := ex.QueryContext(ctx, basicInfoQuery)
	if err != nil {
		return basicInfoResult{}, err
	}
	defer rows.Close()

	var res basicInfoResult
	for rows.Next() {
		if err := rows.Scan(&res.Version, &res.ClusterID, &res.Port); err != nil {
			return basicInfoResult{}, err
		}
	}
	return res, rows.Err()
}

// isCN reports whether a Basic Info Query's version string marks the
// probed target as a compute-node cluster (spec.md §4.1).
func isCN(version string) bool {
	return strings.Contains(version, "-TDDL-")
}

type clusterLocalResult struct {
	CurrentLeader string
	Role          string
}

func queryClusterLocal(ctx context.Context, ex sqlExecutor) (clusterLocalResult, error) {
	rows, err := ex.QueryContext(ctx, clusterLocalQuery)
	if err != nil {
		return clusterLocalResult{}, err
	}
	defer rows.Close()

	var res clusterLocalResult
	for rows.Next() {
		if err := rows.Scan(&res.CurrentLeader, &res.Role); err != nil {
			return clusterLocalResult{}, err
		}
	}
	return res, rows.Err()
}

type globalRoleAddr struct {
	Role   string
	IPPort string
}

func queryClusterGlobal(ctx context.Context, ex sqlExecutor) ([]globalRoleAddr, error) {
	rows, err := ex.QueryContext(ctx, clusterGlobalQuery)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []globalRoleAddr
	for rows.Next() {
		var r globalRoleAddr
		if err := rows.Scan(&r.Role, &r.IPPort); err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

func queryLeaderTransferFlag(ctx context.Context, ex sqlExecutor) (bool, error) {
	rows, err := ex.QueryContext(ctx, checkLeaderTransferQuery)
	if err != nil {
		return false, err
	}
	defer rows.Close()

	var transferring bool
	for rows.Next() {
		var varName string
		var val int
		if err := rows.Scan(&varName, &val); err != nil {
			return false, err
		}
		transferring = val != 0
	}
	return transferring, rows.Err()
}

func queryClusterHealth(ctx context.Context, ex sqlExecutor, applyDelayThreshold, slaveWeightThreshold int) ([]globalRoleAddr, error) {
	q := fmt.Sprintf(clusterHealthQueryFmt, applyDelayThreshold, slaveWeightThreshold)
	rows, err := ex.QueryContext(ctx, q)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []globalRoleAddr
	for rows.Next() {
		var r globalRoleAddr
		if err := rows.Scan(&r.Role, &r.IPPort); err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

type mppRow struct {
	InstanceName string
	Tag          string
	Role         string
	IsLeader     string
	ZoneNames    string
}

func queryShowMpp(ctx context.Context, ex sqlExecutor) ([]mppRow, error) {
	rows, err := ex.QueryContext(ctx, showMppQuery)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []mppRow
	for rows.Next() {
		var r mppRow
		if err := rows.Scan(&r.InstanceName, &r.Tag, &r.Role, &r.IsLeader, &r.ZoneNames); err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

// getZoneList splits a comma-separated zone string, trimming whitespace,
// mirroring original_source's get_zone_list.
func getZoneList(zoneNames string) []string {
	if zoneNames == "" {
		return nil
	}
	var out []string
	for _, z := range strings.Split(zoneNames, ",") {
		out = append(out, strings.TrimSpace(z))
	}
	return out
}

// recordConnection issues the optional RECORD_DSN_QUERY (spec.md §6.3),
// tagging it with a correlation id so the rendered jdbc-like URL can be
// grepped across server logs alongside application logs.
func recordConnection(ctx context.Context, ex sqlExecutor, props map[string]string, hostName string) error {
	id := uuid.NewString()
	var sb strings.Builder
	for k, v := range props {
		fmt.Fprintf(&sb, "%s=%s&", k, v)
	}
	fmt.Fprintf(&sb, "connId=%s&hostName=%s", id, hostName)
	q := fmt.Sprintf(recordDsnQueryFmt, sb.String())
	_, err := ex.ExecContext(ctx, q)
	return err
}

// RecordConnection is the public entry point for the (out-of-scope, per
// spec.md §1) connection wrapper: after it delegates a chosen endpoint to
// the vendor driver, it calls this when RecordJdbcURL is enabled (spec.md
// §6.2 recordJdbcUrl / §6.3) to tag the new session with a correlation id
// the operator can grep across server logs. A no-op when RecordJdbcURL is
// false, so callers can invoke it unconditionally after every connect.
func (m *Manager) RecordConnection(ctx context.Context, endpoint string) error {
	if !m.cfg.RecordJdbcURL {
		return nil
	}
	db, err := openShortLived(endpoint, m.cfg.ConnProperties, probeConnectTimeout)
	if err != nil {
		return fmt.Errorf("xcluster: record-connection dial %s: %w", endpoint, err)
	}
	defer db.Close()

	recCtx, cancel := context.WithTimeout(ctx, time.Duration(m.cfg.HaCheckSocketTimeout)*time.Millisecond)
	defer cancel()
	if err := recordConnection(recCtx, db, m.cfg.ConnProperties, endpoint); err != nil {
		return fmt.Errorf("xcluster: record-connection exec %s: %w", endpoint, err)
	}
	return nil
}
