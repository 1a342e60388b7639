package daemon

import (
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nadira/kirin/internal/config"
	"github.com/nadira/kirin/pkg/provider"
)

func TestBuildCoordinatorConstructedWhenDefaultOff(t *testing.T) {
	cfg := config.DefaultConfig()
	cfg.Progressive.Enabled = false

	prov, err := provider.New(provider.Config{APIKey: "sk-test"})
	require.NoError(t, err)

	coordinator, err := buildCoordinator(cfg, prov, zerolog.Nop())
	require.NoError(t, err)
	require.NotNil(t, coordinator)

	// A request-level flag still decides activation either way.
	on := true
	off := false
	assert.True(t, coordinator.Active(&on))
	assert.False(t, coordinator.Active(&off))
	assert.False(t, coordinator.Active(nil))
}

func TestBuildCoordinatorHonorsDefaultOn(t *testing.T) {
	cfg := config.DefaultConfig()
	cfg.Progressive.Enabled = true

	prov, err := provider.New(provider.Config{APIKey: "sk-test"})
	require.NoError(t, err)

	coordinator, err := buildCoordinator(cfg, prov, zerolog.Nop())
	require.NoError(t, err)

	off := false
	assert.True(t, coordinator.Active(nil))
	assert.False(t, coordinator.Active(&off))
}
