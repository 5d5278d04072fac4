// Package models contains the data structures used throughout gostation-homelab.
package models

import "time"

// MonitorConfig holds the complete configuration for a monitor process.
type MonitorConfig struct {
	Station  StationConfig
	Clients  []AliasEntry
	HTTP     HTTPConfig
	Registry RegistryConfig
	MQTT     *MQTTConfig     // nil if not configured
	Telegram *TelegramConfig // nil if not configured
}

// StationConfig holds settings for fetching the station dump.
type StationConfig struct {
	ToolPath           string
	Interface          string
	PollInterval       time.Duration
	Timeout            time.Duration // must be shorter than PollInterval
	ParsePartialOutput bool          // parse stdout of a non-zero exit instead of failing the cycle
	Remote             *RemoteConfig // nil runs the tool locally
}

// RemoteConfig holds SSH settings for running the tool on a remote access point.
type RemoteConfig struct {
	Host       string
	Port       int
	Username   string
	KeyPath    string
	PrivateKey []byte // loaded from KeyPath when empty
}

// AliasEntry binds a MAC address to a display name.
type AliasEntry struct {
	MAC  string
	Name string
}

// HTTPConfig holds the read API settings. An empty Listen disables the API.
type HTTPConfig struct {
	Listen string
}

// RegistryConfig holds entity registry settings.
type RegistryConfig struct {
	Path       string
	StaleAfter time.Duration // 0 keeps offline entities forever
}

// MQTTConfig holds MQTT broker and discovery settings.
type MQTTConfig struct {
	Broker          string
	Username        string
	Password        string
	DiscoveryPrefix string
	DeviceName      string
}
