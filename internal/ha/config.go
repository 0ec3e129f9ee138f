package ha

import (
	"fmt"
	"strings"

	"github.com/spf13/viper"
	"go.uber.org/atomic"
)

// Recognized configuration keys (spec.md §6.2). Exported so callers building
// an options map have a canonical reference instead of hand-typed strings.
const (
	OptClusterID                       = "clusterID"
	OptHaCheckConnectTimeout           = "haCheckConnectTimeout"
	OptHaCheckSocketTimeout            = "haCheckSocketTimeout"
	OptHaCheckInterval                 = "haCheckInterval"
	OptCheckLeaderTransferringInterval = "checkLeaderTransferringInterval"
	OptLeaderTransferringWaitTimeout   = "leaderTransferringWaitTimeout"
	OptSmoothSwitchover                = "smoothSwitchover"
	OptRecordJdbcUrl                   = "recordJdbcUrl"
	OptDirectMode                      = "directMode"
	OptIgnoreVip                       = "ignoreVip"
	OptJsonFile                        = "jsonFile"
	OptEnableLog                       = "enableLog"

	OptConnectTimeout       = "connectTimeout"
	OptSlaveRead            = "slaveRead"
	OptSlaveWeightThreshold = "slaveWeightThreshold"
	OptApplyDelayThreshold  = "applyDelayThreshold"
	OptLoadBalanceAlgorithm = "loadBalanceAlgorithm"
	OptZoneName             = "zoneName"
	OptMinZoneNodes         = "minZoneNodes"
	OptBackupZoneName       = "backupZoneName"
	OptInstanceName         = "instanceName"
	OptMppRole              = "mppRole"
	OptEnableFollowerRead   = "enableFollowerRead"
)

// Driver connection-property keys the manager supplies itself; stripped
// from a copied conn-props map so a caller's values can never override the
// health loop's own timeouts (spec.md §3.1, PolarConfig).
var managerOwnedConnProps = []string{
	"hostName", "port",
	"OPT_RECONNECT", "OPT_RETRY_COUNT",
	"OPT_CONNECT_TIMEOUT", "OPT_READ_TIMEOUT", "OPT_WRITE_TIMEOUT",
}

// PolarConfig is the immutable per-cluster tuning (spec.md §3.1).
type PolarConfig struct {
	Addr      string
	ClusterID int

	HaCheckInterval                 int
	CheckLeaderTransferringInterval int
	LeaderTransferringWaitTimeout   int
	HaCheckConnectTimeout           int
	HaCheckSocketTimeout            int

	SmoothSwitchover bool
	IgnoreVip        *atomic.Bool
	JsonFile         string
	EnableLog        bool
	RecordJdbcURL    bool
	DirectMode       bool

	ConnProperties map[string]string
}

// NewPolarConfig decodes a recognized-options map into a PolarConfig,
// applying the defaults from spec.md §6.2 via a dedicated viper instance
// (one per manager, so two clusters' configs never share state — the same
// isolation rationale as LoadTuningWithFile in the retrieval pack's config
// tuning loader). Decode failures become ErrInvalidOption.
func NewPolarConfig(hostName string, port int, opts map[string]interface{}, connProps map[string]string) (*PolarConfig, error) {
	v := viper.New()
	v.SetDefault(OptClusterID, -1)
	v.SetDefault(OptHaCheckConnectTimeout, 3000)
	v.SetDefault(OptHaCheckSocketTimeout, 3000)
	v.SetDefault(OptHaCheckInterval, 5000)
	v.SetDefault(OptCheckLeaderTransferringInterval, 100)
	v.SetDefault(OptLeaderTransferringWaitTimeout, 5000)
	v.SetDefault(OptSmoothSwitchover, false)
	v.SetDefault(OptRecordJdbcUrl, false)
	v.SetDefault(OptDirectMode, false)
	v.SetDefault(OptIgnoreVip, true)
	v.SetDefault(OptJsonFile, "")
	v.SetDefault(OptEnableLog, false)

	for k, val := range opts {
		v.Set(k, val)
	}

	var decoded struct {
		ClusterID                       int    `mapstructure:"clusterID"`
		HaCheckConnectTimeout           int    `mapstructure:"haCheckConnectTimeout"`
		HaCheckSocketTimeout            int    `mapstructure:"haCheckSocketTimeout"`
		HaCheckInterval                 int    `mapstructure:"haCheckInterval"`
		CheckLeaderTransferringInterval int    `mapstructure:"checkLeaderTransferringInterval"`
		LeaderTransferringWaitTimeout   int    `mapstructure:"leaderTransferringWaitTimeout"`
		SmoothSwitchover                bool   `mapstructure:"smoothSwitchover"`
		RecordJdbcURL                   bool   `mapstructure:"recordJdbcUrl"`
		DirectMode                      bool   `mapstructure:"directMode"`
		IgnoreVip                       bool   `mapstructure:"ignoreVip"`
		JsonFile                        string `mapstructure:"jsonFile"`
		EnableLog                       bool   `mapstructure:"enableLog"`
	}
	if err := v.Unmarshal(&decoded); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidOption, err)
	}

	cp := make(map[string]string, len(connProps))
	for k, val := range connProps {
		cp[k] = val
	}
	for _, owned := range managerOwnedConnProps {
		delete(cp, owned)
	}

	addr := buildAddr(hostName, port)

	return &PolarConfig{
		Addr:                            addr,
		ClusterID:                       decoded.ClusterID,
		HaCheckInterval:                 decoded.HaCheckInterval,
		CheckLeaderTransferringInterval: decoded.CheckLeaderTransferringInterval,
		LeaderTransferringWaitTimeout:   decoded.LeaderTransferringWaitTimeout,
		HaCheckConnectTimeout:           decoded.HaCheckConnectTimeout,
		HaCheckSocketTimeout:            decoded.HaCheckSocketTimeout,
		SmoothSwitchover:                decoded.SmoothSwitchover,
		IgnoreVip:                       atomic.NewBool(decoded.IgnoreVip),
		JsonFile:                        decoded.JsonFile,
		EnableLog:                       decoded.EnableLog,
		RecordJdbcURL:                   decoded.RecordJdbcURL,
		DirectMode:                      decoded.DirectMode,
		ConnProperties:                  cp,
	}, nil
}

// buildAddr renders a comma-joined, normalized address list from a single
// hostName (itself possibly comma-separated) and a fallback port,
// mirroring PolarDBXConfig::set_addr.
func buildAddr(hostName string, port int) string {
	if port < 0 {
		port = 3306
	}
	var parts []string
	for _, addr := range strings.Split(hostName, ",") {
		addr = strings.TrimSpace(addr)
		if addr == "" {
			continue
		}
		if !strings.Contains(addr, ":") {
			addr = fmt.Sprintf("%s:%d", addr, port)
		}
		parts = append(parts, addressWithoutProtocol(addr))
	}
	return strings.Join(parts, ",")
}

// ConnectionConfig is the per-request policy (spec.md §3.1).
type ConnectionConfig struct {
	ConnectTimeoutMillis int
	SlaveOnly            bool
	SlaveWeightThreshold int
	ApplyDelayThreshold  int
	LoadBalanceAlgorithm string
	ZoneName             string
	MinZoneNodes         int
	BackupZoneName       string
	InstanceName         string
	MppRole              string
	EnableFollowerRead   int
}

// NewConnectionConfig decodes a per-request options map with the defaults
// from spec.md §3.1, validating EnableFollowerRead against {-1,0,1,2}.
func NewConnectionConfig(opts map[string]interface{}) (*ConnectionConfig, error) {
	v := viper.New()
	v.SetDefault(OptConnectTimeout, 5000)
	v.SetDefault(OptSlaveRead, false)
	v.SetDefault(OptSlaveWeightThreshold, 1)
	v.SetDefault(OptApplyDelayThreshold, 3)
	v.SetDefault(OptLoadBalanceAlgorithm, algoRandom)
	v.SetDefault(OptZoneName, "")
	v.SetDefault(OptMinZoneNodes, 0)
	v.SetDefault(OptBackupZoneName, "")
	v.SetDefault(OptInstanceName, "")
	v.SetDefault(OptMppRole, "")
	v.SetDefault(OptEnableFollowerRead, FollowerReadNoOp)

	for k, val := range opts {
		v.Set(k, val)
	}

	var decoded struct {
		ConnectTimeoutMillis int    `mapstructure:"connectTimeout"`
		SlaveOnly            bool   `mapstructure:"slaveRead"`
		SlaveWeightThreshold int    `mapstructure:"slaveWeightThreshold"`
		ApplyDelayThreshold  int    `mapstructure:"applyDelayThreshold"`
		LoadBalanceAlgorithm string `mapstructure:"loadBalanceAlgorithm"`
		ZoneName             string `mapstructure:"zoneName"`
		MinZoneNodes         int    `mapstructure:"minZoneNodes"`
		BackupZoneName       string `mapstructure:"backupZoneName"`
		InstanceName         string `mapstructure:"instanceName"`
		MppRole              string `mapstructure:"mppRole"`
		EnableFollowerRead   int    `mapstructure:"enableFollowerRead"`
	}
	if err := v.Unmarshal(&decoded); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidOption, err)
	}

	switch decoded.EnableFollowerRead {
	case FollowerReadNoOp, FollowerReadDisable, FollowerReadEnable, FollowerReadEnableConsistent:
	default:
		return nil, fmt.Errorf("%w: enableFollowerRead=%d", ErrInvalidFollowerReadState, decoded.EnableFollowerRead)
	}

	return &ConnectionConfig{
		ConnectTimeoutMillis: decoded.ConnectTimeoutMillis,
		SlaveOnly:            decoded.SlaveOnly,
		SlaveWeightThreshold: decoded.SlaveWeightThreshold,
		ApplyDelayThreshold:  decoded.ApplyDelayThreshold,
		LoadBalanceAlgorithm: decoded.LoadBalanceAlgorithm,
		ZoneName:             decoded.ZoneName,
		MinZoneNodes:         decoded.MinZoneNodes,
		BackupZoneName:       decoded.BackupZoneName,
		InstanceName:         decoded.InstanceName,
		MppRole:              decoded.MppRole,
		EnableFollowerRead:   decoded.EnableFollowerRead,
	}, nil
}
