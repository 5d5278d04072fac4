package parser

import (
	"errors"
	"testing"
	"time"

	"github.com/fgeck/gostation-homelab/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var takenAt = time.Date(2026, 10, 17, 12, 0, 0, 0, time.UTC)

const realDump = `Station 4c:32:75:aa:bb:01 (on wlan0)
	inactive time:	1320 ms
	rx bytes:	1893274
	rx packets:	12001
	tx bytes:	20938475
	tx packets:	15320
	tx retries:	41
	tx failed:	2
	rx drop misc:	7
	signal:  	-55 [-57, -58] dBm
	signal avg:	-54 [-56, -57] dBm
	tx bitrate:	144.4 MBit/s MCS 15 short GI
	rx bitrate:	130.0 MBit/s MCS 15
	rx duration:	84213 us
	last ack signal:-56 dBm
	authorized:	yes
	authenticated:	yes
	associated:	yes
	preamble:	short
	WMM/WME:	yes
	MFP:		no
	TDLS peer:	no
	DTIM period:	2
	beacon interval:100
	short preamble:	yes
	short slot time:yes
	connected time:	3612 seconds
	associated at [boottime]:	1234.567s
	associated at:	1760700000000 ms
	current time:	1760703612000 ms
Station 4c:32:75:aa:bb:02 (on wlan0)
	inactive time:	40 ms
	signal:  	-71 dBm
	authorized:	no
	authenticated:	yes
`

func TestParse_SyntheticTwoStations(t *testing.T) {
	raw := "Station AA:BB:CC:DD:EE:01\n" +
		"\tsignal: -42\n" +
		"\tflags: authorized authenticated\n" +
		"Station AA:BB:CC:DD:EE:02\n"

	snap, err := Parse([]byte(raw), takenAt)

	require.NoError(t, err)
	require.Equal(t, 2, snap.Len())

	first, ok := snap.Get("AA:BB:CC:DD:EE:01")
	require.True(t, ok)
	assert.True(t, first.Associated)
	require.NotNil(t, first.Signal)
	assert.Equal(t, -42, *first.Signal)
	assert.True(t, first.Authorized)
	assert.True(t, first.Authenticated)

	second, ok := snap.Get("AA:BB:CC:DD:EE:02")
	require.True(t, ok)
	assert.True(t, second.Associated)
	assert.Nil(t, second.Signal)
	assert.Empty(t, second.Attributes)
}

func TestParse_RealDump(t *testing.T) {
	snap, err := Parse([]byte(realDump), takenAt)

	require.NoError(t, err)
	assert.Equal(t, takenAt, snap.TakenAt)
	assert.Equal(t, []string{"4C:32:75:AA:BB:01", "4C:32:75:AA:BB:02"}, snap.MACs())

	rec, _ := snap.Get("4C:32:75:AA:BB:01")
	assert.Equal(t, "wlan0", rec.Interface)
	require.NotNil(t, rec.Signal)
	assert.Equal(t, -55, *rec.Signal)
	assert.True(t, rec.Authorized)
	assert.True(t, rec.Authenticated)

	attrs := rec.Attributes
	assert.Equal(t, int64(1320), attrs["inactive_time"])
	assert.Equal(t, int64(1893274), attrs["rx_bytes"])
	assert.Equal(t, int64(20938475), attrs["tx_bytes"])
	assert.Equal(t, int64(-54), attrs["signal_avg"])
	assert.Equal(t, int64(-56), attrs["last_ack_signal"])
	assert.Equal(t, int64(3612), attrs["connected_time"])
	assert.Equal(t, int64(100), attrs["beacon_interval"])
	assert.Equal(t, true, attrs["wmm_wme"])
	assert.Equal(t, false, attrs["mfp"])
	assert.Equal(t, true, attrs["associated"])
	assert.Equal(t, "144.4 MBit/s MCS 15 short GI", attrs["tx_bitrate"])
	assert.Equal(t, "short", attrs["preamble"])
	assert.InDelta(t, 1234.567, attrs["associated_at_boottime"], 1e-9)
	assert.Equal(t, int64(1760700000000), attrs["associated_at"])

	second, _ := snap.Get("4C:32:75:AA:BB:02")
	assert.False(t, second.Authorized)
	assert.True(t, second.Authenticated)
	require.NotNil(t, second.Signal)
	assert.Equal(t, -71, *second.Signal)
}

func TestParse_Deterministic(t *testing.T) {
	first, err := Parse([]byte(realDump), takenAt)
	require.NoError(t, err)
	second, err := Parse([]byte(realDump), takenAt)
	require.NoError(t, err)

	assert.Equal(t, first.MACs(), second.MACs())
	assert.Equal(t, first.Records(), second.Records())
}

func TestParse_HeaderOnlyBlock(t *testing.T) {
	raw := "Station aa:bb:cc:dd:ee:01 (on wlan0)\n" +
		"\tsignal: -60 dBm\n" +
		"\tauthorized: yes\n" +
		"Station aa:bb:cc:dd:ee:02 (on wlan0)\n"

	snap, err := Parse([]byte(raw), takenAt)

	require.NoError(t, err)
	require.Equal(t, 2, snap.Len())
	rec, _ := snap.Get("AA:BB:CC:DD:EE:02")
	assert.True(t, rec.Associated)
	assert.Empty(t, rec.Attributes)
}

func TestParse_EmptyInput(t *testing.T) {
	for _, raw := range []string{"", "\n\n", "   \n"} {
		snap, err := Parse([]byte(raw), takenAt)
		require.NoError(t, err)
		assert.Equal(t, 0, snap.Len())
	}
}

func TestParse_UnknownKeysRetained(t *testing.T) {
	raw := "Station aa:bb:cc:dd:ee:01\n\tfancy new field:\tsome value\n\tmesh plink:\tESTAB\n"

	snap, err := Parse([]byte(raw), takenAt)

	require.NoError(t, err)
	rec, _ := snap.Get("AA:BB:CC:DD:EE:01")
	assert.Equal(t, "some value", rec.Attributes["fancy_new_field"])
	assert.Equal(t, "ESTAB", rec.Attributes["mesh_plink"])
}

func TestParse_BadNumericKeptAsString(t *testing.T) {
	raw := "Station aa:bb:cc:dd:ee:01\n\tsignal: n/a\n\trx bytes: lots\n"

	snap, err := Parse([]byte(raw), takenAt)

	require.NoError(t, err)
	rec, _ := snap.Get("AA:BB:CC:DD:EE:01")
	assert.Nil(t, rec.Signal)
	assert.Equal(t, "n/a", rec.Attributes["signal"])
	assert.Equal(t, "lots", rec.Attributes["rx_bytes"])
}

func TestParse_AssociationTimestamps(t *testing.T) {
	tests := []struct {
		name string
		line string
		key  string
		want any
	}{
		{"boottime seconds", "associated at [boottime]:\t123.456s", "associated_at_boottime", 123.456},
		{"boottime whole seconds", "associated at [boottime]:\t42s", "associated_at_boottime", 42.0},
		{"boottime garbage", "associated at [boottime]:\tsoon", "associated_at_boottime", "soon"},
		{"epoch millis", "associated at:\t1760700000000 ms", "associated_at", int64(1760700000000)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			raw := "Station aa:bb:cc:dd:ee:01\n\t" + tt.line + "\n"

			snap, err := Parse([]byte(raw), takenAt)

			require.NoError(t, err)
			rec, _ := snap.Get("AA:BB:CC:DD:EE:01")
			assert.Equal(t, tt.want, rec.Attributes[tt.key])
		})
	}
}

func TestParse_SkipsNoiseAndOrphanLines(t *testing.T) {
	raw := "\torphan: 1\nsome banner line\nStation aa-bb-cc-dd-ee-01 (on wlan1)\n\tno separator here\n\ttx failed: 3\r\n"

	snap, err := Parse([]byte(raw), takenAt)

	require.NoError(t, err)
	require.Equal(t, 1, snap.Len())
	rec, _ := snap.Get("AA:BB:CC:DD:EE:01")
	assert.Equal(t, "wlan1", rec.Interface)
	assert.Equal(t, map[string]any{"tx_failed": int64(3)}, rec.Attributes)
}

func TestParse_DuplicateStationLastWins(t *testing.T) {
	raw := "Station aa:bb:cc:dd:ee:01\n\tsignal: -40\nStation aa:bb:cc:dd:ee:01\n\tsignal: -80\n"

	snap, err := Parse([]byte(raw), takenAt)

	require.NoError(t, err)
	require.Equal(t, 1, snap.Len())
	rec, _ := snap.Get("AA:BB:CC:DD:EE:01")
	assert.Equal(t, -80, *rec.Signal)
}

func TestParse_BinaryGarbage(t *testing.T) {
	tests := []struct {
		name string
		raw  []byte
	}{
		{name: "nul byte", raw: []byte("Station aa:bb:cc:dd:ee:01\x00\n")},
		{name: "invalid utf8", raw: []byte{'S', 't', 0xff, 0xfe, '\n'}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			snap, err := Parse(tt.raw, takenAt)

			assert.Nil(t, snap)
			var parseErr *models.ParseError
			require.True(t, errors.As(err, &parseErr))
		})
	}
}

func TestNormalizeKey(t *testing.T) {
	tests := map[string]string{
		"rx bytes":                 "rx_bytes",
		"WMM/WME":                  "wmm_wme",
		"associated at [boottime]": "associated_at_boottime",
		"  TDLS peer ":             "tdls_peer",
		"last ack signal":          "last_ack_signal",
	}
	for in, want := range tests {
		assert.Equal(t, want, NormalizeKey(in), in)
	}
}
