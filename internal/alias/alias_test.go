package alias

import (
	"errors"
	"testing"

	"github.com/fgeck/gostation-homelab/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNew_ResolvesCaseInsensitive(t *testing.T) {
	m, err := New([]models.AliasEntry{
		{MAC: "aa:bb:cc:dd:ee:01", Name: "Phone"},
		{MAC: "AA-BB-CC-DD-EE-02", Name: " Laptop "},
	})
	require.NoError(t, err)

	assert.Equal(t, 2, m.Len())
	assert.Equal(t, "Phone", m.Resolve("AA:BB:CC:DD:EE:01"))
	assert.Equal(t, "Phone", m.Resolve("aa:bb:cc:dd:ee:01"))
	assert.Equal(t, "Laptop", m.Resolve("aa:bb:cc:dd:ee:02"))
}

func TestResolve_FallsBackToMAC(t *testing.T) {
	m, err := New([]models.AliasEntry{{MAC: "AA:BB:CC:DD:EE:01"}})
	require.NoError(t, err)

	assert.Equal(t, "AA:BB:CC:DD:EE:01", m.Resolve("aa:bb:cc:dd:ee:01"))
	assert.Equal(t, "AA:BB:CC:DD:EE:09", m.Resolve("aa:bb:cc:dd:ee:09"))

	_, ok := m.Lookup("AA:BB:CC:DD:EE:01")
	assert.False(t, ok)
}

func TestResolve_ZeroValue(t *testing.T) {
	var m Map
	assert.Equal(t, "AA:BB:CC:DD:EE:01", m.Resolve("aa:bb:cc:dd:ee:01"))
}

func TestNew_MissingMAC(t *testing.T) {
	_, err := New([]models.AliasEntry{
		{MAC: "AA:BB:CC:DD:EE:01", Name: "Phone"},
		{MAC: "  ", Name: "Ghost"},
	})
	require.Error(t, err)

	var cfgErr *models.ConfigError
	require.True(t, errors.As(err, &cfgErr))
	assert.Equal(t, "clients", cfgErr.Field)
	assert.Equal(t, 1, cfgErr.Index)
	assert.Contains(t, err.Error(), "clients[1]")
}
