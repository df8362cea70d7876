package catalog

import (
	"encoding/json"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadEmbeddedDatabase(t *testing.T) {
	c, err := Load("")
	require.NoError(t, err)
	assert.Greater(t, c.Count(), 5)
}

func TestEffectiveSkipsIncompleteAndFiltersPoolSafe(t *testing.T) {
	c, err := Load("")
	require.NoError(t, err)

	all := c.Effective(false)
	for _, e := range all {
		assert.Greater(t, e.CapacityLPD, 0.0, "entries without rated capacity must be skipped")
		assert.Equal(t, e.CapacityLPD*e.PerformanceFactor, e.EffectiveCapacityLPD)
	}

	poolOnly := c.Effective(true)
	assert.Less(t, len(poolOnly), len(all))
	for _, e := range poolOnly {
		assert.True(t, e.PoolSafe)
	}
}

func TestDetectPreferredTypes(t *testing.T) {
	assert.Equal(t, []string{"ducted"}, DetectPreferredTypes("I want a DUCTED system"))
	assert.Equal(t, []string{"wall_mount"}, DetectPreferredTypes("wall mounted please"))
	assert.Equal(t, []string{"ducted", "portable"}, DetectPreferredTypes("ducted or portable?"))
	assert.Empty(t, DetectPreferredTypes("just size my pool room"))
}

func TestContextMessageDeratesAndScopes(t *testing.T) {
	c, err := Load("")
	require.NoError(t, err)

	load := LoadInfo{
		LatentLoadL24h: 120,
		RoomAreaM2:     60,
		PoolAreaM2:     30,
		PoolRequired:   true,
		IndoorTemp:     28,
		CurrentRH:      75,
		TargetRH:       60,
	}
	msg := c.ContextMessage(load, []string{"ducted"})

	require.True(t, strings.HasPrefix(msg.Content, "AVAILABLE_PRODUCT_CATALOG_JSON = "))
	jsonPart := strings.TrimPrefix(msg.Content, "AVAILABLE_PRODUCT_CATALOG_JSON = ")
	jsonPart = jsonPart[:strings.Index(jsonPart, "\n")]

	var payload struct {
		RequiredLoadLPD float64  `json:"required_load_lpd"`
		PoolRequired    bool     `json:"pool_required"`
		PreferredTypes  []string `json:"preferred_types"`
		Catalog         []Entry  `json:"catalog"`
	}
	require.NoError(t, json.Unmarshal([]byte(jsonPart), &payload))

	assert.Equal(t, 120.0, payload.RequiredLoadLPD)
	assert.True(t, payload.PoolRequired)
	assert.Equal(t, []string{"ducted"}, payload.PreferredTypes)
	require.NotEmpty(t, payload.Catalog)
	for _, e := range payload.Catalog {
		assert.Equal(t, "ducted", e.Type)
		assert.True(t, e.PoolSafe)
		// Derated effective capacity must not exceed the rated effective capacity.
		assert.Less(t, e.EffectiveCapacityLPD, e.CapacityLPD*e.PerformanceFactor+0.001)
	}
}
