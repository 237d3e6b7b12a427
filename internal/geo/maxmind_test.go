package geo

import (
	"path/filepath"
	"testing"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/customeros/eventstream/interfaces"
)

var _ interfaces.GeoLocator = &MaxMindLocator{}

func TestLookup_InvalidIP(t *testing.T) {
	locator := &MaxMindLocator{}

	testCases := []struct {
		name string
		ip   string
	}{
		{name: "empty string", ip: ""},
		{name: "whitespace only", ip: "   "},
		{name: "not an address", ip: "not-an-ip"},
		{name: "out of range octets", ip: "999.999.0.1"},
		{name: "hostname", ip: "example.com"},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			lat, lng, err := locator.Lookup(tc.ip)

			require.Error(t, err)
			assert.True(t, errors.Is(err, ErrInvalidIP))
			assert.Zero(t, lat)
			assert.Zero(t, lng)
		})
	}
}

func TestLookup_ValidIPWithoutDatabase(t *testing.T) {
	// A parseable address must not surface as ErrInvalidIP, even when the
	// database is missing.
	locator := &MaxMindLocator{}

	_, _, err := locator.Lookup("8.8.8.8")

	require.Error(t, err)
	assert.False(t, errors.Is(err, ErrInvalidIP))
}

func TestLookup_TrimsWhitespace(t *testing.T) {
	locator := &MaxMindLocator{}

	_, _, err := locator.Lookup("  8.8.8.8  ")

	// Parses fine after trimming, so the failure is the missing database.
	require.Error(t, err)
	assert.False(t, errors.Is(err, ErrInvalidIP))
}

func TestNewMaxMindLocator_MissingFile(t *testing.T) {
	locator, err := NewMaxMindLocator(filepath.Join(t.TempDir(), "missing.mmdb"))

	require.Error(t, err)
	assert.Nil(t, locator)
}

func TestClose_Idempotent(t *testing.T) {
	locator := &MaxMindLocator{}

	locator.Close()
	locator.Close()

	_, _, err := locator.Lookup("8.8.8.8")
	require.Error(t, err)
}
