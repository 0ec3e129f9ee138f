// Package eventlog is a SQLite-backed, HMAC-hash-chained ledger of HA
// state transitions. It is purely observational: the DN/CN health loops
// (internal/ha) append a row for every classification they produce
// (LEADER_ALIVE/TRANSFERRING/TRANSFERRED/LOST, CN alive/lost); nothing
// ever reads it back into a routing decision, so it cannot violate any of
// spec.md's topology invariants.
//
// Adapted from the teacher's internal/audit package
// (logger.go/buffered_logger.go/chain.go/hmac_key.go): same batch-plus-
// periodic-flush design with a direct-write bypass for rows that must
// survive a crash, repurposed from "who did what to which file" to "what
// did the health loop observe and when".
package eventlog

import (
	"database/sql"
	"fmt"
	"log"
	"sync"
	"time"

	_ "github.com/mattn/go-sqlite3"
)

// TransitionEvent is one row: a DN or CN health-loop classification,
// observed at Timestamp (unix nanos) for cluster ClusterTag.
type TransitionEvent struct {
	Timestamp     int64
	ClusterTag    string
	Component     string // "dn" or "cn"
	State         string // e.g. "LEADER_ALIVE", "LEADER_LOST", "CN_ALIVE"
	Detail        string
	CorrelationID string
}

// criticalStates bypass the buffer and are written directly to SQLite so
// they cannot be lost on crash or SIGKILL — spec.md §7 singles out
// leader-lost and leader-transferring as the two classifications an
// operator must never lose track of.
var criticalStates = map[string]bool{
	"LEADER_LOST":         true,
	"LEADER_TRANSFERRING": true,
}

// Ledger batches TransitionEvent rows into SQLite, flushing on a timer or
// when the buffer fills, with synchronous direct writes for
// criticalStates. Mirrors the teacher's BufferedLogger.
type Ledger struct {
	db            *sql.DB
	buffer        []TransitionEvent
	bufferMutex   sync.Mutex
	flushTicker   *time.Ticker
	stopChan      chan struct{}
	maxBuffer     int
	flushInterval time.Duration
	hmacKey       []byte
}

// Open creates (or attaches to) a SQLite database at path and returns a
// Ledger ready to Start. hmacKeyPath, if non-empty, enables the hash
// chain via LoadOrCreateKey; an empty path disables chaining.
func Open(path, hmacKeyPath string, maxBuffer int, flushInterval time.Duration) (*Ledger, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("eventlog: open %s: %w", path, err)
	}
	if _, err := db.Exec(`CREATE TABLE IF NOT EXISTS transitions (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		timestamp INTEGER NOT NULL,
		cluster_tag TEXT NOT NULL,
		component TEXT NOT NULL,
		state TEXT NOT NULL,
		detail TEXT,
		correlation_id TEXT,
		prev_hash TEXT,
		row_hash TEXT
	)`); err != nil {
		db.Close()
		return nil, fmt.Errorf("eventlog: create table: %w", err)
	}

	var key []byte
	if hmacKeyPath != "" {
		key, err = LoadOrCreateKey(hmacKeyPath)
		if err != nil {
			db.Close()
			return nil, err
		}
	}

	if maxBuffer <= 0 {
		maxBuffer = 100
	}
	if flushInterval <= 0 {
		flushInterval = 5 * time.Second
	}

	return &Ledger{
		db:            db,
		buffer:        make([]TransitionEvent, 0, maxBuffer),
		maxBuffer:     maxBuffer,
		flushInterval: flushInterval,
		stopChan:      make(chan struct{}),
		hmacKey:       key,
	}, nil
}

// Start begins the background flush goroutine.
func (l *Ledger) Start() {
	l.flushTicker = time.NewTicker(l.flushInterval)
	go func() {
		for {
			select {
			case <-l.flushTicker.C:
				if err := l.Flush(); err != nil {
					log.Printf("eventlog: periodic flush: %v", err)
				}
			case <-l.stopChan:
				l.flushTicker.Stop()
				if err := l.Flush(); err != nil {
					log.Printf("eventlog: final flush: %v", err)
				}
				l.db.Close()
				return
			}
		}
	}()
}

// Stop flushes and closes the ledger.
func (l *Ledger) Stop() { close(l.stopChan) }

// Record appends event to the ledger, bypassing the buffer for
// criticalStates.
func (l *Ledger) Record(event TransitionEvent) error {
	if criticalStates[event.State] {
		return l.writeDirect([]TransitionEvent{event})
	}

	l.bufferMutex.Lock()
	l.buffer = append(l.buffer, event)
	needFlush := len(l.buffer) >= l.maxBuffer
	l.bufferMutex.Unlock()

	if needFlush {
		return l.Flush()
	}
	return nil
}

func (l *Ledger) writeDirect(events []TransitionEvent) error {
	tx, err := l.db.Begin()
	if err != nil {
		return fmt.Errorf("eventlog direct write: begin: %w", err)
	}
	defer tx.Rollback()

	var prevHash string
	if l.hmacKey != nil {
		_ = tx.QueryRow(`SELECT COALESCE(row_hash,'') FROM transitions ORDER BY id DESC LIMIT 1`).Scan(&prevHash)
	}

	stmt, err := tx.Prepare(`INSERT INTO transitions
		(timestamp, cluster_tag, component, state, detail, correlation_id, prev_hash, row_hash)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("eventlog direct write: prepare: %w", err)
	}
	defer stmt.Close()

	for _, e := range events {
		rowHash := computeRowHash(l.hmacKey, prevHash, e)
		if _, err := stmt.Exec(e.Timestamp, e.ClusterTag, e.Component, e.State, e.Detail, e.CorrelationID, prevHash, rowHash); err != nil {
			log.Printf("eventlog direct write: exec: %v", err)
			continue
		}
		prevHash = rowHash
	}
	return tx.Commit()
}

// Flush writes every buffered event to SQLite in one transaction.
func (l *Ledger) Flush() error {
	l.bufferMutex.Lock()
	if len(l.buffer) == 0 {
		l.bufferMutex.Unlock()
		return nil
	}
	events := make([]TransitionEvent, len(l.buffer))
	copy(events, l.buffer)
	l.buffer = l.buffer[:0]
	l.bufferMutex.Unlock()

	return l.writeDirect(events)
}
