// Package alias maps client MAC addresses to configured display names.
package alias

import (
	"strings"

	"github.com/fgeck/gostation-homelab/internal/models"
)

// Resolver resolves a MAC address to a display name.
type Resolver interface {
	Resolve(mac string) string
}

// Map is an immutable MAC to name table. The zero value is an empty map.
type Map struct {
	names map[string]string
}

// New builds a Map from configured entries. An entry without a MAC is a ConfigError.
// Later entries win over earlier ones with the same MAC.
func New(entries []models.AliasEntry) (Map, error) {
	names := make(map[string]string, len(entries))
	for i, entry := range entries {
		mac := models.NormalizeMAC(entry.MAC)
		if mac == "" {
			return Map{}, &models.ConfigError{Field: "clients", Index: i, Reason: "mac is required"}
		}
		names[mac] = strings.TrimSpace(entry.Name)
	}
	return Map{names: names}, nil
}

// Lookup returns the configured name for mac, if any.
func (m Map) Lookup(mac string) (string, bool) {
	name, ok := m.names[models.NormalizeMAC(mac)]
	if !ok || name == "" {
		return "", false
	}
	return name, true
}

// Resolve returns the configured name for mac, falling back to the canonical MAC.
func (m Map) Resolve(mac string) string {
	if name, ok := m.Lookup(mac); ok {
		return name
	}
	return models.NormalizeMAC(mac)
}

// Len returns the number of configured entries.
func (m Map) Len() int {
	return len(m.names)
}
