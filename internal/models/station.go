package models

import (
	"sort"
	"strings"
	"time"
)

// Display states of a client.
const (
	StateOnline  = "Online"
	StateOffline = "Offline"
)

// ClientRecord is one station entry of a snapshot. Records are values and
// must not be modified once they are part of a snapshot.
type ClientRecord struct {
	MAC           string
	Interface     string
	Associated    bool
	Authorized    bool
	Authenticated bool
	Signal        *int           // dBm, nil if not reported
	Attributes    map[string]any // int64, bool or string values
}

// State returns the display state derived from Associated.
func (r ClientRecord) State() string {
	if r.Associated {
		return StateOnline
	}
	return StateOffline
}

// NormalizeMAC returns mac in canonical upper-case colon form.
func NormalizeMAC(mac string) string {
	return strings.TrimSpace(strings.ToUpper(strings.ReplaceAll(mac, "-", ":")))
}

// Snapshot is an immutable point-in-time mapping of MAC address to record.
type Snapshot struct {
	TakenAt time.Time
	clients map[string]ClientRecord
}

// NewSnapshot builds a snapshot. A later record replaces an earlier one with the same MAC.
func NewSnapshot(takenAt time.Time, records []ClientRecord) *Snapshot {
	clients := make(map[string]ClientRecord, len(records))
	for _, rec := range records {
		clients[rec.MAC] = rec
	}
	return &Snapshot{TakenAt: takenAt, clients: clients}
}

// EmptySnapshot returns a snapshot with no clients.
func EmptySnapshot() *Snapshot {
	return &Snapshot{clients: map[string]ClientRecord{}}
}

// Get returns the record for mac.
func (s *Snapshot) Get(mac string) (ClientRecord, bool) {
	if s == nil {
		return ClientRecord{}, false
	}
	rec, ok := s.clients[mac]
	return rec, ok
}

// Has reports whether mac is part of the snapshot.
func (s *Snapshot) Has(mac string) bool {
	_, ok := s.Get(mac)
	return ok
}

// Len returns the number of clients.
func (s *Snapshot) Len() int {
	if s == nil {
		return 0
	}
	return len(s.clients)
}

// MACs returns all MAC addresses in ascending order.
func (s *Snapshot) MACs() []string {
	if s == nil {
		return []string{}
	}
	macs := make([]string, 0, len(s.clients))
	for mac := range s.clients {
		macs = append(macs, mac)
	}
	sort.Strings(macs)
	return macs
}

// Records returns all records ordered by MAC address.
func (s *Snapshot) Records() []ClientRecord {
	macs := s.MACs()
	out := make([]ClientRecord, 0, len(macs))
	for _, mac := range macs {
		out = append(out, s.clients[mac])
	}
	return out
}

// PollState is the lifecycle state of the poll scheduler.
type PollState int32

// Poll states. Every cycle moves Idle -> Fetching -> Parsing -> Reconciling -> Idle.
const (
	PollIdle PollState = iota
	PollFetching
	PollParsing
	PollReconciling
)

func (s PollState) String() string {
	switch s {
	case PollIdle:
		return "idle"
	case PollFetching:
		return "fetching"
	case PollParsing:
		return "parsing"
	case PollReconciling:
		return "reconciling"
	default:
		return "unknown"
	}
}
