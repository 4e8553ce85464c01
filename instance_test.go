package hephaestus

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestInstanceTiers(t *testing.T) {
	supported := []string{"VK_KHR_surface", "VK_KHR_xcb_surface", debugReportExtension, "VK_KHR_get_surface_capabilities2"}
	layers := []string{ValidationLayer, "VK_LAYER_MESA_overlay"}

	tiers, err := instanceTiers(
		[]string{"VK_KHR_surface", "VK_KHR_xcb_surface"},
		[]string{"VK_KHR_get_surface_capabilities2", "VK_EXT_missing"},
		supported, nil, layers, true)
	require.NoError(t, err)
	require.Len(t, tiers, 3)

	assert.Equal(t, supported, tiers[0].Extensions)
	assert.Equal(t, layers, tiers[0].Layers)
	assert.True(t, tiers[0].Validation)

	assert.Equal(t, []string{"VK_KHR_surface", "VK_KHR_xcb_surface", "VK_KHR_get_surface_capabilities2", debugReportExtension},
		tiers[1].Extensions, "unsupported requests are dropped")
	assert.Equal(t, []string{ValidationLayer}, tiers[1].Layers)
	assert.True(t, tiers[1].Validation)

	assert.Equal(t, []string{"VK_KHR_surface", "VK_KHR_xcb_surface"}, tiers[2].Extensions)
	assert.Empty(t, tiers[2].Layers)
	assert.False(t, tiers[2].Validation, "the last tier never validates")
}

func TestInstanceTiersWithoutValidation(t *testing.T) {
	tiers, err := instanceTiers([]string{"VK_KHR_surface"}, nil, []string{"VK_KHR_surface", debugReportExtension}, nil, nil, false)
	require.NoError(t, err)
	assert.Empty(t, tiers[0].Layers)
	assert.Equal(t, []string{"VK_KHR_surface"}, tiers[1].Extensions)
	assert.Empty(t, tiers[1].Layers)
	for _, tier := range tiers {
		assert.False(t, tier.Validation)
	}
}

func TestInstanceTiersMissingRequired(t *testing.T) {
	_, err := instanceTiers([]string{"VK_KHR_surface", "VK_KHR_wayland_surface"}, nil, []string{"VK_KHR_surface"}, nil, nil, true)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "VK_KHR_wayland_surface")
}

func TestVersion(t *testing.T) {
	assert.Equal(t, uint32(1<<22|2<<12|3), Version{Major: 1, Minor: 2, Patch: 3}.VKVersion())

	info := (&App{Name: "x"}).VKApplicationInfo()
	assert.Equal(t, Version{Major: 1, Minor: 1}.VKVersion(), info.ApiVersion)
	assert.Equal(t, "Hephaestus\x00", info.PEngineName)
}
