// Package file is the standalone-mode AuditStore: one newline-delimited
// JSON file per run, written append-only, with in-memory counters
// backing Snapshot so a doctor check never has to re-read the file.
package file

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/nextlevelbuilder/relaybus/internal/store"
)

// record is one line of the audit log.
type record struct {
	Time          time.Time `json:"time"`
	Event         string    `json:"event"`
	ConnID        string    `json:"conn_id"`
	Role          string    `json:"role,omitempty"`
	Channel       string    `json:"channel,omitempty"`
	Reason        string    `json:"reason,omitempty"`
	OwnedChannels []string  `json:"owned_channels,omitempty"`
}

// AuditStore appends records to a file under dir, named by the run's
// start time so successive runs never clobber each other's history.
type AuditStore struct {
	mu   sync.Mutex
	f    *os.File
	enc  *json.Encoder
	path string

	connects    int64
	disconnects int64
	failures    int64
}

// Open creates dir if needed and opens a fresh audit log file inside
// it named relaybus-audit-<unix seconds>.jsonl.
func Open(dir string, startedAt time.Time) (*AuditStore, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create audit dir: %w", err)
	}
	path := filepath.Join(dir, fmt.Sprintf("relaybus-audit-%d.jsonl", startedAt.Unix()))
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return nil, fmt.Errorf("open audit log: %w", err)
	}
	return &AuditStore{f: f, enc: json.NewEncoder(f), path: path}, nil
}

func (s *AuditStore) append(r record) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.enc.Encode(r)
}

func (s *AuditStore) RecordConnect(ctx context.Context, connID, role string) error {
	s.mu.Lock()
	s.connects++
	s.mu.Unlock()
	return s.append(record{Time: time.Now(), Event: "connect", ConnID: connID, Role: role})
}

func (s *AuditStore) RecordDisconnect(ctx context.Context, connID string, ownedChannels []string) error {
	s.mu.Lock()
	s.disconnects++
	s.mu.Unlock()
	return s.append(record{Time: time.Now(), Event: "disconnect", ConnID: connID, OwnedChannels: ownedChannels})
}

func (s *AuditStore) RecordDeliveryFailure(ctx context.Context, connID, channel, reason string) error {
	s.mu.Lock()
	s.failures++
	s.mu.Unlock()
	return s.append(record{Time: time.Now(), Event: "delivery_failure", ConnID: connID, Channel: channel, Reason: reason})
}

// Snapshot returns the running counters. Channels is left empty: this
// package deliberately does not import the broker.
func (s *AuditStore) Snapshot(ctx context.Context) (store.AuditSnapshot, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return store.AuditSnapshot{
		TakenAt:          time.Now(),
		ConnectCount:     s.connects,
		DisconnectCount:  s.disconnects,
		DeliveryFailures: s.failures,
	}, nil
}

func (s *AuditStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.f.Close()
}

// Path returns the log file's location.
func (s *AuditStore) Path() string { return s.path }
