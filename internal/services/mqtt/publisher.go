// Package mqtt publishes client presence to Home Assistant over MQTT discovery.
package mqtt

import (
	"context"
	"crypto/tls"
	"encoding/json"
	"fmt"
	"net/url"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/eclipse/paho.golang/autopaho"
	"github.com/eclipse/paho.golang/paho"
	"github.com/fgeck/gostation-homelab/internal/alias"
	"github.com/fgeck/gostation-homelab/internal/models"
	"github.com/rs/zerolog"
)

const (
	publishTimeout  = 5 * time.Second
	payloadOnline   = "online"
	payloadOffline  = "offline"
	uniqueIDPrefix  = "gostation_"
	topicNamespace  = "gostation"
	defaultPrefix   = "homeassistant"
	defaultDeviceID = "gostation"
)

// Client is the subset of autopaho.ConnectionManager used for publishing.
type Client interface {
	Publish(ctx context.Context, p *paho.Publish) (*paho.PublishResponse, error)
}

type clientState struct {
	record models.ClientRecord
	online bool
}

// Publisher keeps one HA sensor entity per MAC in sync with the poll cycles.
type Publisher struct {
	cfg     models.MQTTConfig
	aliases alias.Resolver
	device  DeviceInfo
	logger  zerolog.Logger

	mu     sync.Mutex
	client Client
	known  map[string]clientState
}

// New creates a Publisher but does not connect. Call Start to connect.
func New(logger zerolog.Logger, cfg models.MQTTConfig, aliases alias.Resolver, version string) *Publisher {
	if cfg.DiscoveryPrefix == "" {
		cfg.DiscoveryPrefix = defaultPrefix
	}
	if cfg.DeviceName == "" {
		cfg.DeviceName = defaultDeviceID
	}
	if aliases == nil {
		aliases = alias.Map{}
	}
	return &Publisher{
		cfg:     cfg,
		aliases: aliases,
		device:  NewDeviceInfo(cfg.DeviceName, version),
		logger:  logger,
		known:   map[string]clientState{},
	}
}

// NewWithClient creates a Publisher that uses an already connected client (for testing).
func NewWithClient(logger zerolog.Logger, cfg models.MQTTConfig, aliases alias.Resolver, client Client) *Publisher {
	p := New(logger, cfg, aliases, "")
	p.client = client
	return p
}

// Start connects to the broker and blocks until ctx is cancelled. On every
// (re-)connect it republishes discovery and state for every known client.
func (p *Publisher) Start(ctx context.Context) error {
	brokerURL, err := url.Parse(p.cfg.Broker)
	if err != nil {
		return fmt.Errorf("parse mqtt broker URL: %w", err)
	}

	pahoCfg := autopaho.ClientConfig{
		ServerUrls:      []*url.URL{brokerURL},
		KeepAlive:       30,
		ConnectUsername: p.cfg.Username,
		ConnectPassword: []byte(p.cfg.Password),
		WillMessage: &paho.WillMessage{
			Topic:   p.availabilityTopic(),
			Payload: []byte(payloadOffline),
			QoS:     1,
			Retain:  true,
		},
		OnConnectionUp: func(cm *autopaho.ConnectionManager, _ *paho.Connack) {
			p.logger.Info().Str("broker", p.cfg.Broker).Msg("mqtt connected to broker")
			p.connected(ctx, cm)
		},
		OnConnectError: func(err error) {
			p.logger.Warn().Err(err).Msg("mqtt connection error")
		},
		ClientConfig: paho.ClientConfig{
			ClientID: topicNamespace + "-" + p.cfg.DeviceName,
		},
	}

	if brokerURL.Scheme == "mqtts" || brokerURL.Scheme == "ssl" {
		pahoCfg.TlsCfg = &tls.Config{
			MinVersion: tls.VersionTLS12,
		}
	}

	cm, err := autopaho.NewConnection(ctx, pahoCfg)
	if err != nil {
		return fmt.Errorf("mqtt connect: %w", err)
	}

	<-ctx.Done()

	stopCtx, cancel := context.WithTimeout(context.Background(), publishTimeout)
	defer cancel()
	p.publish(stopCtx, cm, p.availabilityTopic(), []byte(payloadOffline))
	p.mu.Lock()
	p.client = nil
	p.mu.Unlock()
	return cm.Disconnect(stopCtx)
}

// Seed adds entities persisted by a previous run so their retained sensors
// are republished on connect and flipped offline if they stay absent.
// MACs already tracked are left alone.
func (p *Publisher) Seed(entities []models.Entity) {
	p.mu.Lock()
	defer p.mu.Unlock()

	for _, e := range entities {
		mac := models.NormalizeMAC(e.MAC)
		if _, ok := p.known[mac]; ok {
			continue
		}
		p.known[mac] = clientState{
			record: models.ClientRecord{
				MAC:           mac,
				Associated:    e.Online,
				Authorized:    e.Authorized,
				Authenticated: e.Authenticated,
				Signal:        e.Signal,
			},
			online: e.Online,
		}
	}
}

// Notify publishes discovery for new clients and state for every change.
func (p *Publisher) Notify(ctx context.Context, update models.Update) {
	p.mu.Lock()
	defer p.mu.Unlock()

	var fresh, dirty []string
	if update.Snapshot != nil {
		for _, rec := range update.Snapshot.Records() {
			if _, ok := p.known[rec.MAC]; !ok {
				fresh = append(fresh, rec.MAC)
			}
			p.known[rec.MAC] = clientState{record: rec, online: rec.Associated}
			dirty = append(dirty, rec.MAC)
		}
	}
	for _, ev := range update.Delta.Vanished {
		p.known[ev.MAC] = clientState{record: ev.Record, online: false}
		dirty = append(dirty, ev.MAC)
	}
	// Seeded clients never show up in a Delta, so sweep against the snapshot.
	if update.Snapshot != nil {
		for _, mac := range p.knownMACs() {
			state := p.known[mac]
			if !state.online || update.Snapshot.Has(mac) {
				continue
			}
			state.online = false
			state.record.Associated = false
			p.known[mac] = state
			dirty = append(dirty, mac)
		}
	}

	if p.client == nil {
		return
	}
	for _, mac := range fresh {
		p.publishDiscovery(ctx, p.client, mac)
	}
	for _, mac := range dirty {
		p.publishState(ctx, p.client, mac)
	}
}

func (p *Publisher) connected(ctx context.Context, client Client) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.client = client

	for _, mac := range p.knownMACs() {
		p.publishDiscovery(ctx, client, mac)
	}
	p.publish(ctx, client, p.availabilityTopic(), []byte(payloadOnline))
	for _, mac := range p.knownMACs() {
		p.publishState(ctx, client, mac)
	}
}

func (p *Publisher) knownMACs() []string {
	macs := make([]string, 0, len(p.known))
	for mac := range p.known {
		macs = append(macs, mac)
	}
	sort.Strings(macs)
	return macs
}

// --- Topic helpers ---

func entityID(mac string) string {
	return strings.ToLower(strings.ReplaceAll(models.NormalizeMAC(mac), ":", ""))
}

func (p *Publisher) baseTopic() string {
	return topicNamespace + "/" + p.cfg.DeviceName
}

func (p *Publisher) availabilityTopic() string {
	return p.baseTopic() + "/availability"
}

func (p *Publisher) stateTopic(mac string) string {
	return p.baseTopic() + "/" + entityID(mac) + "/state"
}

func (p *Publisher) attributesTopic(mac string) string {
	return p.baseTopic() + "/" + entityID(mac) + "/attributes"
}

func (p *Publisher) discoveryTopic(mac string) string {
	return p.cfg.DiscoveryPrefix + "/sensor/" + p.cfg.DeviceName + "/" + entityID(mac) + "/config"
}

// --- Payloads ---

func (p *Publisher) sensorConfig(mac string) SensorConfig {
	id := uniqueIDPrefix + entityID(mac)
	return SensorConfig{
		Name:                p.aliases.Resolve(mac),
		UniqueID:            id,
		ObjectID:            id,
		StateTopic:          p.stateTopic(mac),
		AvailabilityTopic:   p.availabilityTopic(),
		JsonAttributesTopic: p.attributesTopic(mac),
		Device:              p.device,
		Icon:                "mdi:wifi",
	}
}

func (p *Publisher) attributes(state clientState) map[string]any {
	rec := state.record
	attrs := make(map[string]any, len(rec.Attributes)+6)
	for k, v := range rec.Attributes {
		attrs[k] = v
	}
	attrs["mac"] = rec.MAC
	attrs["name"] = p.aliases.Resolve(rec.MAC)
	attrs["authorized"] = rec.Authorized
	attrs["authenticated"] = rec.Authenticated
	if rec.Interface != "" {
		attrs["interface"] = rec.Interface
	}
	if rec.Signal != nil && state.online {
		attrs["signal"] = *rec.Signal
	} else {
		attrs["signal"] = nil
	}
	return attrs
}

// --- Publishing ---

func (p *Publisher) publishDiscovery(ctx context.Context, client Client, mac string) {
	payload, err := json.Marshal(p.sensorConfig(mac))
	if err != nil {
		p.logger.Error().Err(err).Str("mac", mac).Msg("mqtt marshal discovery payload")
		return
	}
	p.publish(ctx, client, p.discoveryTopic(mac), payload)
}

func (p *Publisher) publishState(ctx context.Context, client Client, mac string) {
	state, ok := p.known[mac]
	if !ok {
		return
	}

	value := models.StateOffline
	if state.online {
		value = models.StateOnline
	}
	p.publish(ctx, client, p.stateTopic(mac), []byte(value))

	payload, err := json.Marshal(p.attributes(state))
	if err != nil {
		p.logger.Error().Err(err).Str("mac", mac).Msg("mqtt marshal attributes payload")
		return
	}
	p.publish(ctx, client, p.attributesTopic(mac), payload)
}

func (p *Publisher) publish(ctx context.Context, client Client, topic string, payload []byte) {
	pubCtx, cancel := context.WithTimeout(ctx, publishTimeout)
	defer cancel()

	if _, err := client.Publish(pubCtx, &paho.Publish{
		Topic:   topic,
		Payload: payload,
		QoS:     1,
		Retain:  true,
	}); err != nil {
		p.logger.Warn().Err(err).Str("topic", topic).Msg("mqtt publish failed")
		return
	}
	p.logger.Debug().Str("topic", topic).Msg("mqtt published")
}
