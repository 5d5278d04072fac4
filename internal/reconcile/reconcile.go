// Package reconcile diffs two station snapshots into presence events.
package reconcile

import (
	"fmt"

	"github.com/fgeck/gostation-homelab/internal/alias"
	"github.com/fgeck/gostation-homelab/internal/models"
)

// Reconcile compares prev against cur. A nil snapshot counts as empty.
// Every slice of the result is ordered by ascending MAC.
func Reconcile(prev, cur *models.Snapshot, aliases alias.Resolver) models.Delta {
	if aliases == nil {
		aliases = alias.Map{}
	}

	delta := models.Delta{
		Appeared: []models.Event{},
		Vanished: []models.Event{},
		Retained: []string{},
		Changed:  []models.Event{},
	}

	for _, mac := range cur.MACs() {
		next := mustGet(cur, mac)
		old, seen := prev.Get(mac)
		if !seen {
			delta.Appeared = append(delta.Appeared, models.Event{
				Kind:   models.EventAppeared,
				MAC:    mac,
				Name:   aliases.Resolve(mac),
				New:    next.Associated,
				Record: next,
			})
			continue
		}

		mustMatch(mac, old)
		delta.Retained = append(delta.Retained, mac)
		if old.Associated == next.Associated {
			continue
		}
		kind := models.EventOffline
		if next.Associated {
			kind = models.EventOnline
		}
		delta.Changed = append(delta.Changed, models.Event{
			Kind:   kind,
			MAC:    mac,
			Name:   aliases.Resolve(mac),
			Old:    old.Associated,
			New:    next.Associated,
			Record: next,
		})
	}

	for _, mac := range prev.MACs() {
		if cur.Has(mac) {
			continue
		}
		last := mustGet(prev, mac)
		delta.Vanished = append(delta.Vanished, models.Event{
			Kind:   models.EventOffline,
			MAC:    mac,
			Name:   aliases.Resolve(mac),
			Old:    last.Associated,
			New:    false,
			Record: last,
		})
	}

	return delta
}

func mustGet(s *models.Snapshot, mac string) models.ClientRecord {
	rec, _ := s.Get(mac)
	mustMatch(mac, rec)
	return rec
}

// mustMatch panics when a record is keyed under a foreign MAC. Snapshots
// are built from their records, so this only fires on a programming error.
func mustMatch(key string, rec models.ClientRecord) {
	if rec.MAC != key {
		panic(fmt.Sprintf("reconcile: record %q stored under key %q", rec.MAC, key))
	}
}
