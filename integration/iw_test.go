//go:build integration

package integration

import (
	"context"
	"os"
	"os/exec"
	"testing"
	"time"

	"github.com/fgeck/gostation-homelab/internal/alias"
	"github.com/fgeck/gostation-homelab/internal/models"
	"github.com/fgeck/gostation-homelab/internal/services/poller"
	"github.com/fgeck/gostation-homelab/internal/services/registry"
	"github.com/fgeck/gostation-homelab/internal/services/stationdump"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func getStationConfig(t *testing.T) models.StationConfig {
	t.Helper()

	iface := os.Getenv("TEST_IW_INTERFACE")
	if iface == "" {
		t.Skip("TEST_IW_INTERFACE not set")
	}

	toolPath := os.Getenv("TEST_IW_PATH")
	if toolPath == "" {
		path, err := exec.LookPath("iw")
		if err != nil {
			t.Skip("iw not found in PATH")
		}
		toolPath = path
	}

	return models.StationConfig{
		ToolPath:     toolPath,
		Interface:    iface,
		PollInterval: 5 * time.Second,
		Timeout:      4 * time.Second,
	}
}

func testLogger() zerolog.Logger {
	return zerolog.New(os.Stdout).With().Timestamp().Logger()
}

func TestStationDumpFetch_Integration(t *testing.T) {
	cfg := getStationConfig(t)

	ctx, cancel := context.WithTimeout(context.Background(), cfg.Timeout)
	defer cancel()

	svc := stationdump.New(testLogger())
	raw, err := svc.Fetch(ctx, cfg.ToolPath, cfg.Interface)

	require.NoError(t, err)
	t.Logf("station dump returned %d bytes", len(raw))
}

func TestStationDumpUnknownInterface_Integration(t *testing.T) {
	cfg := getStationConfig(t)

	svc := stationdump.New(testLogger())
	_, err := svc.Fetch(context.Background(), cfg.ToolPath, "gostation-missing0")

	var fetchErr *models.FetchError
	require.ErrorAs(t, err, &fetchErr)
	assert.Equal(t, models.FetchNonZeroExit, fetchErr.Reason)
	assert.NotEmpty(t, fetchErr.Stderr)
}

func TestPollOnceWithRegistry_Integration(t *testing.T) {
	cfg := getStationConfig(t)
	ctx := context.Background()

	reg, err := registry.New(ctx, testLogger(), models.RegistryConfig{}, alias.Map{})
	require.NoError(t, err)
	defer reg.Close()

	p := poller.New(testLogger(), stationdump.New(testLogger()), alias.Map{}, cfg, reg)

	update, err := p.PollOnce(ctx)
	require.NoError(t, err)
	require.NotNil(t, update.Snapshot)

	// Every associated client of the first cycle appears.
	assert.Len(t, update.Delta.Appeared, update.Snapshot.Len())

	entities, err := reg.List(ctx)
	require.NoError(t, err)
	assert.Len(t, entities, update.Snapshot.Len())
	for _, e := range entities {
		assert.Equal(t, models.StateOnline, e.State)
	}

	status := p.Status()
	assert.Equal(t, uint64(1), status.Cycles)
	assert.Zero(t, status.Failures)
}
