package models

import (
	"sort"
	"time"
)

// EventKind names a reconciliation event.
type EventKind string

// Possible event kinds.
const (
	EventAppeared EventKind = "appeared"
	EventOnline   EventKind = "online"
	EventOffline  EventKind = "offline"
)

// Event describes one change detected between two snapshots.
type Event struct {
	Kind   EventKind    `json:"kind"`
	MAC    string       `json:"mac"`
	Name   string       `json:"name"`
	Old    bool         `json:"old"`
	New    bool         `json:"new"`
	Record ClientRecord `json:"-"` // last-known record for vanished clients
}

// Delta is the result of reconciling two snapshots. Every slice is ordered by MAC.
type Delta struct {
	Appeared []Event
	Vanished []Event
	Retained []string
	Changed  []Event
}

// Events returns appeared, vanished and changed events ordered by MAC.
func (d Delta) Events() []Event {
	out := make([]Event, 0, len(d.Appeared)+len(d.Vanished)+len(d.Changed))
	out = append(out, d.Appeared...)
	out = append(out, d.Vanished...)
	out = append(out, d.Changed...)
	// The three sets are disjoint, so MAC alone is a total order.
	sort.SliceStable(out, func(i, j int) bool { return out[i].MAC < out[j].MAC })
	return out
}

// Empty reports whether the delta carries no events.
func (d Delta) Empty() bool {
	return len(d.Appeared) == 0 && len(d.Vanished) == 0 && len(d.Changed) == 0
}

// Update is handed to subscribers after every completed poll cycle.
type Update struct {
	CycleID  string
	Snapshot *Snapshot
	Previous *Snapshot
	Delta    Delta
	Duration time.Duration
}
