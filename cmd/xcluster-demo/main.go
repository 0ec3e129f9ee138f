// Command xcluster-demo wires the HA Manager (internal/ha) to the two
// additive observability surfaces, internal/statusapi and internal/notify,
// the way the teacher's daemon wires internal/ha to HAHandler/MonitorHub
// in cmd/dplaned/main.go. internal/ha itself has no dependency on either
// package — both are optional here.
package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gorilla/mux"
	"github.com/gorilla/websocket"
	flag "github.com/spf13/pflag"

	"github.com/polardbx/xcluster-ha/internal/eventlog"
	"github.com/polardbx/xcluster-ha/internal/ha"
	"github.com/polardbx/xcluster-ha/internal/notify"
	"github.com/polardbx/xcluster-ha/internal/statusapi"
)

func main() {
	var (
		addr          = flag.String("addr", "", "comma-separated host:port list of the DN/CN cluster")
		clusterID     = flag.Int("cluster-id", -1, "pre-identify the cluster (skip learning it at bootstrap)")
		listen        = flag.String("listen", "127.0.0.1:9100", "status/notify HTTP listen address")
		jsonFile      = flag.String("json-file", "", "override warm-start JSON path (default: synthesized under the temp dir)")
		enableLog     = flag.Bool("enable-log", true, "enable the driver/monitor loggers")
		recordJdbcURL = flag.Bool("record-jdbc-url", false, "tag each selected connection with call dbms_conn.comment_connection(...)")
		ledgerPath    = flag.String("ledger-db", "", "path to the SQLite HA event ledger (empty disables it)")
		ledgerKey     = flag.String("ledger-key", "", "path to the ledger's HMAC chain key (empty disables chaining)")
		user          = flag.String("user", "", "SQL credential: user")
		password      = flag.String("password", "", "SQL credential: password")
		database      = flag.String("database", "", "SQL credential: database")
	)
	flag.Parse()

	if *addr == "" {
		fmt.Fprintln(os.Stderr, "xcluster-demo: --addr is required")
		os.Exit(2)
	}

	connProps := map[string]string{}
	if *user != "" {
		connProps["user"] = *user
	}
	if *password != "" {
		connProps["password"] = *password
	}
	if *database != "" {
		connProps["database"] = *database
	}

	cfg, err := ha.NewPolarConfig(*addr, 3306, map[string]interface{}{
		"clusterID":     *clusterID,
		"jsonFile":      *jsonFile,
		"enableLog":     *enableLog,
		"recordJdbcUrl": *recordJdbcURL,
	}, connProps)
	if err != nil {
		log.Fatalf("xcluster-demo: invalid config: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	mgr, err := ha.GetManager(ctx, cfg)
	cancel()
	if err != nil {
		log.Fatalf("xcluster-demo: bootstrap failed: %v", err)
	}
	log.Printf("xcluster-demo: manager ready, tag=%s isCN=%v", mgr.Tag(), mgr.IsCN())

	if *ledgerPath != "" {
		ledger, err := eventlog.Open(*ledgerPath, *ledgerKey, 100, 5*time.Second)
		if err != nil {
			log.Fatalf("xcluster-demo: opening event ledger: %v", err)
		}
		ledger.Start()
		defer ledger.Stop()
		mgr.SetLedger(ledger)
	}

	hub := notify.NewTopologyHub()
	go hub.Run()
	go publishStatusChanges(mgr, hub)
	if !mgr.IsCN() {
		go demoSelectLoop(mgr)
	}

	router := mux.NewRouter()
	statusapi.New(ha.Default).Register(router)
	router.HandleFunc("/notify/ws", func(w http.ResponseWriter, r *http.Request) {
		upgrader := websocket.Upgrader{CheckOrigin: func(*http.Request) bool { return true }}
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			log.Printf("xcluster-demo: websocket upgrade failed: %v", err)
			return
		}
		hub.Register(conn)
	})

	srv := &http.Server{Addr: *listen, Handler: router}
	go func() {
		log.Printf("xcluster-demo: listening on %s", *listen)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("xcluster-demo: http server: %v", err)
		}
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh

	log.Println("xcluster-demo: shutting down")
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()
	_ = srv.Shutdown(shutdownCtx)
	ha.Default.Teardown()
}

// demoSelectLoop stands in for the (out-of-scope, per spec.md §1) public
// connection wrapper: it periodically selects a DN endpoint the way an
// application's connect call would, then — mirroring what that wrapper is
// responsible for — calls RecordConnection and DropConnCount around the
// simulated connection's lifetime.
func demoSelectLoop(mgr *ha.Manager) {
	ticker := time.NewTicker(5 * time.Second)
	defer ticker.Stop()
	for range ticker.C {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		ep, ok := mgr.GetAvailableDNWithWait(ctx, 1500, false, 3, 1, "random")
		cancel()
		if !ok {
			log.Printf("xcluster-demo: no available dn endpoint")
			continue
		}
		recCtx, recCancel := context.WithTimeout(context.Background(), 2*time.Second)
		if err := mgr.RecordConnection(recCtx, ep); err != nil {
			log.Printf("xcluster-demo: record-connection failed for %s: %v", ep, err)
		}
		recCancel()
		mgr.DropConnCount(ep)
	}
}

// publishStatusChanges polls Manager.Status and republishes to the
// notify hub whenever the observed leader (DN) or CN node count changes.
// It does not read internal/ha's private state — only the same public
// snapshot internal/statusapi uses — so it introduces no coupling beyond
// that already paid for by statusapi.
func publishStatusChanges(mgr *ha.Manager, hub *notify.TopologyHub) {
	ticker := time.NewTicker(time.Second)
	defer ticker.Stop()

	var lastLeader string
	lastCNCount := -1
	for range ticker.C {
		st := mgr.Status()
		if st.IsCN {
			if len(st.CNNodes) != lastCNCount {
				lastCNCount = len(st.CNNodes)
				hub.Publish(mgr.Tag(), "cn", "CN_TOPOLOGY_CHANGED", fmt.Sprintf("nodes=%d", lastCNCount))
			}
			continue
		}
		if st.Leader != lastLeader {
			lastLeader = st.Leader
			state := "LEADER_LOST"
			if st.Leader != "" {
				state = "LEADER_ALIVE"
			}
			hub.Publish(mgr.Tag(), "dn", state, st.Leader)
		}
	}
}
