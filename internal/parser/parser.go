// Package parser converts `iw dev <iface> station dump` output into snapshots.
package parser

import (
	"bufio"
	"bytes"
	"regexp"
	"strconv"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/fgeck/gostation-homelab/internal/models"
)

var (
	macPattern   = regexp.MustCompile(`(?i)\b([0-9a-f]{2}[:-]){5}[0-9a-f]{2}\b`)
	ifacePattern = regexp.MustCompile(`\(on ([^)\s]+)\)`)
	keyCleaner   = regexp.MustCompile(`[^a-z0-9]+`)
)

// integerKeys are coerced from the leading token of their value.
var integerKeys = map[string]bool{
	"inactive_time":   true,
	"rx_bytes":        true,
	"rx_packets":      true,
	"tx_bytes":        true,
	"tx_packets":      true,
	"tx_retries":      true,
	"tx_failed":       true,
	"rx_drop_misc":    true,
	"beacon_loss":     true,
	"beacon_rx":       true,
	"rx_duration":     true,
	"tx_duration":     true,
	"connected_time":  true,
	"dtim_period":     true,
	"beacon_interval": true,
	"associated_at":   true, // epoch ms
	"current_time":    true,
	"airtime_weight":  true,
}

// secondsKeys carry fractional seconds such as "1234.567s".
var secondsKeys = map[string]bool{
	"associated_at_boottime": true,
}

// signalKeys carry a signed dBm value, possibly followed by per-chain values.
var signalKeys = map[string]bool{
	"signal":            true,
	"signal_avg":        true,
	"last_ack_signal":   true,
	"avg_ack_signal":    true,
	"beacon_signal_avg": true,
}

// boolKeys carry yes/no values.
var boolKeys = map[string]bool{
	"authorized":      true,
	"authenticated":   true,
	"associated":      true,
	"preamble_short":  true,
	"wmm_wme":         true,
	"mfp":             true,
	"tdls_peer":       true,
	"short_preamble":  true,
	"short_slot_time": true,
}

type block struct {
	mac   string
	iface string
	attrs map[string]any
}

// Parse converts a raw station dump into a snapshot taken at takenAt.
// Malformed blocks yield partial records; only undecodable input is an error.
func Parse(raw []byte, takenAt time.Time) (*models.Snapshot, error) {
	if idx := bytes.IndexByte(raw, 0); idx >= 0 {
		return nil, &models.ParseError{Offset: idx, Reason: "unexpected NUL byte"}
	}
	if !utf8.Valid(raw) {
		return nil, &models.ParseError{Offset: invalidOffset(raw), Reason: "input is not valid UTF-8"}
	}

	var (
		records []models.ClientRecord
		current *block
	)
	flush := func() {
		if current != nil {
			records = append(records, current.record())
			current = nil
		}
	}

	scanner := bufio.NewScanner(bytes.NewReader(raw))
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		line := strings.TrimRight(scanner.Text(), "\r")
		if strings.TrimSpace(line) == "" {
			continue
		}

		if !isIndented(line) {
			mac := macPattern.FindString(line)
			if mac == "" {
				// Noise between blocks.
				continue
			}
			flush()
			current = &block{mac: models.NormalizeMAC(mac), attrs: map[string]any{}}
			if m := ifacePattern.FindStringSubmatch(line); m != nil {
				current.iface = m[1]
			}
			continue
		}

		if current == nil {
			continue
		}
		key, value, ok := splitField(line)
		if !ok {
			continue
		}
		current.set(key, value)
	}
	flush()

	if err := scanner.Err(); err != nil {
		return nil, &models.ParseError{Offset: len(raw), Reason: err.Error()}
	}
	return models.NewSnapshot(takenAt, records), nil
}

// NormalizeKey lower-cases key and collapses every run of other characters into '_'.
func NormalizeKey(key string) string {
	key = keyCleaner.ReplaceAllString(strings.ToLower(strings.TrimSpace(key)), "_")
	return strings.Trim(key, "_")
}

func (b *block) set(key, value string) {
	switch {
	case key == "flags":
		for _, flag := range strings.Fields(value) {
			if flag = NormalizeKey(flag); flag != "" {
				b.attrs[flag] = true
			}
		}
	case signalKeys[key], integerKeys[key]:
		if v, ok := leadingInt(value); ok {
			b.attrs[key] = v
		} else {
			b.attrs[key] = value
		}
	case secondsKeys[key]:
		if v, ok := leadingSeconds(value); ok {
			b.attrs[key] = v
		} else {
			b.attrs[key] = value
		}
	case boolKeys[key]:
		if v, ok := parseYesNo(value); ok {
			b.attrs[key] = v
		} else {
			b.attrs[key] = value
		}
	default:
		b.attrs[key] = value
	}
}

func (b *block) record() models.ClientRecord {
	rec := models.ClientRecord{
		MAC:        b.mac,
		Interface:  b.iface,
		Associated: true,
		Attributes: b.attrs,
	}
	if v, ok := b.attrs["authorized"].(bool); ok {
		rec.Authorized = v
	}
	if v, ok := b.attrs["authenticated"].(bool); ok {
		rec.Authenticated = v
	}
	if v, ok := b.attrs["signal"].(int64); ok {
		signal := int(v)
		rec.Signal = &signal
	}
	return rec
}

func isIndented(line string) bool {
	return line[0] == '\t' || line[0] == ' '
}

func splitField(line string) (string, string, bool) {
	rawKey, value, found := strings.Cut(strings.TrimSpace(line), ":")
	if !found {
		return "", "", false
	}
	key := NormalizeKey(rawKey)
	if key == "" {
		return "", "", false
	}
	return key, strings.TrimSpace(value), true
}

func leadingInt(value string) (int64, bool) {
	fields := strings.Fields(value)
	if len(fields) == 0 {
		return 0, false
	}
	v, err := strconv.ParseInt(fields[0], 10, 64)
	if err != nil {
		return 0, false
	}
	return v, true
}

func leadingSeconds(value string) (float64, bool) {
	fields := strings.Fields(value)
	if len(fields) == 0 {
		return 0, false
	}
	v, err := strconv.ParseFloat(strings.TrimSuffix(fields[0], "s"), 64)
	if err != nil {
		return 0, false
	}
	return v, true
}

func parseYesNo(value string) (bool, bool) {
	switch strings.ToLower(value) {
	case "yes", "true", "on", "1":
		return true, true
	case "no", "false", "off", "0":
		return false, true
	default:
		return false, false
	}
}

func invalidOffset(raw []byte) int {
	for i := 0; i < len(raw); {
		r, size := utf8.DecodeRune(raw[i:])
		if r == utf8.RuneError && size <= 1 {
			return i
		}
		i += size
	}
	return len(raw)
}
