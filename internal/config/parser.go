// Package config provides configuration file parsing.
package config

import (
	"fmt"
	"net"
	"os"
	"strings"
	"time"

	"github.com/fgeck/gostation-homelab/internal/models"
	"github.com/spf13/viper"
)

// Defaults applied when a key is absent.
const (
	DefaultToolPath        = "/usr/bin/iw"
	DefaultInterface       = "wlan0"
	DefaultPollInterval    = 5 * time.Second
	DefaultTimeout         = 4 * time.Second
	DefaultSSHPort         = 22
	DefaultSSHUser         = "root"
	DefaultRegistryPath    = ":memory:"
	DefaultDiscoveryPrefix = "homeassistant"
	DefaultDeviceName      = "gostation"
)

// Parser handles configuration file parsing.
type Parser struct {
	v *viper.Viper
}

// NewParser creates a new configuration parser.
func NewParser() *Parser {
	v := viper.New()
	v.SetConfigType("yaml")
	return &Parser{v: v}
}

// LoadFile loads configuration from a file path.
func (p *Parser) LoadFile(path string) (*models.MonitorConfig, error) {
	p.v.SetConfigFile(path)

	if err := p.v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	return p.parse()
}

// LoadReader loads configuration from a reader (useful for testing).
func (p *Parser) LoadReader(content string) (*models.MonitorConfig, error) {
	if err := p.v.ReadConfig(strings.NewReader(content)); err != nil {
		return nil, fmt.Errorf("reading config: %w", err)
	}

	return p.parse()
}

type clientEntry struct {
	MAC  string `mapstructure:"mac"`
	Name string `mapstructure:"name"`
}

//nolint:gocognit,gocyclo // parsing config requires checking many fields
func (p *Parser) parse() (*models.MonitorConfig, error) {
	cfg := &models.MonitorConfig{}
	var err error

	// Parse station settings.
	cfg.Station = models.StationConfig{
		ToolPath:           p.v.GetString("station.tool_path"),
		Interface:          p.v.GetString("station.interface"),
		ParsePartialOutput: p.v.GetBool("station.parse_partial_output"),
	}
	if cfg.Station.ToolPath == "" {
		cfg.Station.ToolPath = DefaultToolPath
	}
	if cfg.Station.Interface == "" {
		cfg.Station.Interface = DefaultInterface
	}
	if cfg.Station.PollInterval, err = p.duration("station.poll_interval", DefaultPollInterval); err != nil {
		return nil, err
	}
	if cfg.Station.Timeout, err = p.duration("station.timeout", DefaultTimeout); err != nil {
		return nil, err
	}

	// Parse optional remote access point.
	if p.v.IsSet("station.remote") {
		cfg.Station.Remote = &models.RemoteConfig{
			Host:     p.v.GetString("station.remote.host"),
			Port:     p.v.GetInt("station.remote.port"),
			Username: p.v.GetString("station.remote.username"),
			KeyPath:  p.expandEnv(p.v.GetString("station.remote.key_path")),
		}
		if cfg.Station.Remote.Port == 0 {
			cfg.Station.Remote.Port = DefaultSSHPort
		}
		if cfg.Station.Remote.Username == "" {
			cfg.Station.Remote.Username = DefaultSSHUser
		}
	}

	// Parse client aliases.
	var entries []clientEntry
	if err := p.v.UnmarshalKey("clients", &entries); err != nil {
		return nil, &models.ConfigError{Field: "clients", Index: -1, Reason: err.Error()}
	}
	for _, e := range entries {
		cfg.Clients = append(cfg.Clients, models.AliasEntry{MAC: e.MAC, Name: e.Name})
	}

	// Parse HTTP and registry settings.
	cfg.HTTP = models.HTTPConfig{Listen: p.v.GetString("http.listen")}
	cfg.Registry = models.RegistryConfig{Path: p.v.GetString("registry.path")}
	if cfg.Registry.Path == "" {
		cfg.Registry.Path = DefaultRegistryPath
	}
	if cfg.Registry.StaleAfter, err = p.duration("registry.stale_after", 0); err != nil {
		return nil, err
	}

	// Parse optional MQTT config.
	if p.v.IsSet("mqtt") {
		cfg.MQTT = &models.MQTTConfig{
			Broker:          p.v.GetString("mqtt.broker"),
			Username:        p.expandEnv(p.v.GetString("mqtt.username")),
			Password:        p.expandEnv(p.v.GetString("mqtt.password")),
			DiscoveryPrefix: p.v.GetString("mqtt.discovery_prefix"),
			DeviceName:      p.v.GetString("mqtt.device_name"),
		}
		if cfg.MQTT.DiscoveryPrefix == "" {
			cfg.MQTT.DiscoveryPrefix = DefaultDiscoveryPrefix
		}
		if cfg.MQTT.DeviceName == "" {
			cfg.MQTT.DeviceName = DefaultDeviceName
		}
	}

	// Parse optional Telegram config.
	if p.v.IsSet("telegram") {
		cfg.Telegram = &models.TelegramConfig{
			BotToken: p.expandEnv(p.v.GetString("telegram.bot_token")),
			ChatID:   p.expandEnv(p.v.GetString("telegram.chat_id")),
		}
		for _, kind := range p.v.GetStringSlice("telegram.notify_on") {
			cfg.Telegram.NotifyOn = append(cfg.Telegram.NotifyOn, models.EventKind(strings.ToLower(kind)))
		}
	}

	if err := Validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// duration reads a duration key, returning def when the key is absent.
func (p *Parser) duration(key string, def time.Duration) (time.Duration, error) {
	if !p.v.IsSet(key) {
		return def, nil
	}
	raw := p.v.Get(key)
	if s, ok := raw.(string); ok {
		d, err := time.ParseDuration(strings.TrimSpace(s))
		if err != nil {
			return 0, &models.ConfigError{Field: key, Index: -1, Reason: fmt.Sprintf("%q is not a duration", s)}
		}
		return d, nil
	}
	return p.v.GetDuration(key), nil
}

// expandEnv expands environment variables in the format ${VAR} or $VAR.
func (p *Parser) expandEnv(s string) string {
	return os.ExpandEnv(s)
}

var validNotifyKinds = map[models.EventKind]bool{
	models.EventAppeared: true,
	models.EventOnline:   true,
	models.EventOffline:  true,
}

// Validate performs validation on the loaded configuration.
//
//nolint:gocognit,gocyclo // every section has its own required fields
func Validate(cfg *models.MonitorConfig) error {
	if cfg == nil {
		return fmt.Errorf("configuration is nil")
	}

	st := cfg.Station
	if st.ToolPath == "" {
		return scalarErr("station.tool_path", "is required")
	}
	if st.Interface == "" {
		return scalarErr("station.interface", "is required")
	}
	if st.PollInterval <= 0 {
		return scalarErr("station.poll_interval", "must be positive")
	}
	if st.Timeout <= 0 {
		return scalarErr("station.timeout", "must be positive")
	}
	if st.Timeout >= st.PollInterval {
		return scalarErr("station.timeout", fmt.Sprintf("%s must be shorter than station.poll_interval %s", st.Timeout, st.PollInterval))
	}

	if r := st.Remote; r != nil {
		if r.Host == "" {
			return scalarErr("station.remote.host", "is required when station.remote is configured")
		}
		if r.Port <= 0 || r.Port > 65535 {
			return scalarErr("station.remote.port", fmt.Sprintf("%d is out of range", r.Port))
		}
		if r.KeyPath == "" && len(r.PrivateKey) == 0 {
			return scalarErr("station.remote.key_path", "is required when station.remote is configured")
		}
	}

	for i, c := range cfg.Clients {
		if strings.TrimSpace(c.MAC) == "" {
			return &models.ConfigError{Field: "clients", Index: i, Reason: "mac is required"}
		}
		if _, err := net.ParseMAC(models.NormalizeMAC(c.MAC)); err != nil {
			return &models.ConfigError{Field: "clients", Index: i, Reason: fmt.Sprintf("%q is not a MAC address", c.MAC)}
		}
	}

	if cfg.Registry.StaleAfter < 0 {
		return scalarErr("registry.stale_after", "must not be negative")
	}

	if cfg.MQTT != nil && cfg.MQTT.Broker == "" {
		return scalarErr("mqtt.broker", "is required when mqtt is configured")
	}

	if t := cfg.Telegram; t != nil {
		if t.BotToken == "" {
			return scalarErr("telegram.bot_token", "is required when telegram is configured")
		}
		if t.ChatID == "" {
			return scalarErr("telegram.chat_id", "is required when telegram is configured")
		}
		for i, kind := range t.NotifyOn {
			if !validNotifyKinds[kind] {
				return &models.ConfigError{Field: "telegram.notify_on", Index: i, Reason: fmt.Sprintf("unknown event kind %q", kind)}
			}
		}
	}

	return nil
}

func scalarErr(field, reason string) *models.ConfigError {
	return &models.ConfigError{Field: field, Index: -1, Reason: reason}
}
