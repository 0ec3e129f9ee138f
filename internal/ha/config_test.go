package ha

import (
	"errors"
	"testing"
)

func TestNewPolarConfig_Defaults(t *testing.T) {
	cfg, err := NewPolarConfig("10.0.0.1,10.0.0.2:3307", 3306, nil, map[string]string{
		"user": "root", "hostName": "should-be-stripped", "OPT_RECONNECT": "1",
	})
	if err != nil {
		t.Fatalf("NewPolarConfig: %v", err)
	}
	if cfg.ClusterID != -1 {
		t.Errorf("expected default clusterID -1, got %d", cfg.ClusterID)
	}
	if cfg.HaCheckInterval != 5000 {
		t.Errorf("expected default haCheckInterval 5000, got %d", cfg.HaCheckInterval)
	}
	if !cfg.IgnoreVip.Load() {
		t.Error("expected default ignoreVip=true")
	}
	if cfg.Addr != "10.0.0.1:3306,10.0.0.2:3307" {
		t.Errorf("unexpected addr rendering: %q", cfg.Addr)
	}
	if _, ok := cfg.ConnProperties["hostName"]; ok {
		t.Error("expected manager-owned conn prop hostName to be stripped")
	}
	if _, ok := cfg.ConnProperties["OPT_RECONNECT"]; ok {
		t.Error("expected manager-owned conn prop OPT_RECONNECT to be stripped")
	}
	if cfg.ConnProperties["user"] != "root" {
		t.Error("expected user conn prop preserved")
	}
}

func TestNewPolarConfig_InvalidOption(t *testing.T) {
	_, err := NewPolarConfig("10.0.0.1", 3306, map[string]interface{}{
		"haCheckInterval": "not-a-number",
	}, nil)
	if !errors.Is(err, ErrInvalidOption) {
		t.Fatalf("expected ErrInvalidOption, got %v", err)
	}
}

func TestNewConnectionConfig_Defaults(t *testing.T) {
	cc, err := NewConnectionConfig(nil)
	if err != nil {
		t.Fatalf("NewConnectionConfig: %v", err)
	}
	if cc.ConnectTimeoutMillis != 5000 {
		t.Errorf("expected default connectTimeout 5000, got %d", cc.ConnectTimeoutMillis)
	}
	if cc.LoadBalanceAlgorithm != algoRandom {
		t.Errorf("expected default algo random, got %q", cc.LoadBalanceAlgorithm)
	}
	if cc.EnableFollowerRead != FollowerReadNoOp {
		t.Errorf("expected default enableFollowerRead -1, got %d", cc.EnableFollowerRead)
	}
}

func TestNewConnectionConfig_InvalidFollowerReadState(t *testing.T) {
	_, err := NewConnectionConfig(map[string]interface{}{"enableFollowerRead": 9})
	if !errors.Is(err, ErrInvalidFollowerReadState) {
		t.Fatalf("expected ErrInvalidFollowerReadState, got %v", err)
	}
}

func TestNewConnectionConfig_ValidFollowerReadStates(t *testing.T) {
	for _, v := range []int{-1, 0, 1, 2} {
		cc, err := NewConnectionConfig(map[string]interface{}{"enableFollowerRead": v})
		if err != nil {
			t.Fatalf("enableFollowerRead=%d: unexpected error %v", v, err)
		}
		if cc.EnableFollowerRead != v {
			t.Errorf("expected %d, got %d", v, cc.EnableFollowerRead)
		}
	}
}

func TestBuildAddr_MixedPorts(t *testing.T) {
	got := buildAddr(" 10.0.0.1 , 10.0.0.2:3307,,", 3306)
	want := "10.0.0.1:3306,10.0.0.2:3307"
	if got != want {
		t.Errorf("buildAddr: got %q, want %q", got, want)
	}
}
