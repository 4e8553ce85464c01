package config

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/c2h5oh/datasize"
	"github.com/mitchellh/go-homedir"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultIsValid(t *testing.T) {
	c := Default()
	require.NoError(t, c.Validate())
	assert.Equal(t, 2, c.Render.FramesInFlight)
	assert.Equal(t, 16*datasize.MB, c.Memory.PoolSize)
	assert.Zero(t, c.Render.FenceTimeout.Duration)
}

func TestParseOverlaysDefaults(t *testing.T) {
	c, err := Parse([]byte(`
[window]
title = "triangle"
width = 1280

[render]
validation = true
frames_in_flight = 3
fence_timeout = "2s"
clear_color = [0.1, 0.2, 0.3, 1.0]

[memory]
pool_size = "64MB"
`))
	require.NoError(t, err)

	assert.Equal(t, "triangle", c.Window.Title)
	assert.Equal(t, 1280, c.Window.Width)
	assert.Equal(t, 600, c.Window.Height, "unset keys keep their defaults")
	assert.True(t, c.Render.Validation)
	assert.Equal(t, 3, c.Render.FramesInFlight)
	assert.Equal(t, 2*time.Second, c.Render.FenceTimeout.Duration)
	assert.Equal(t, [4]float32{0.1, 0.2, 0.3, 1}, c.Render.ClearColor)
	assert.Equal(t, 64*datasize.MB, c.Memory.PoolSize)
	assert.Equal(t, "shaders.meta", c.Shaders.Descriptor)
}

func TestParseRejectsInvalid(t *testing.T) {
	for name, src := range map[string]string{
		"unknown key":     "[window]\ncolour = 1\n",
		"zero width":      "[window]\nwidth = 0\n",
		"no frames":       "[render]\nframes_in_flight = 0\n",
		"bad color":       "[render]\nclear_color = [2.0, 0.0, 0.0, 1.0]\n",
		"bad duration":    "[render]\nfence_timeout = \"soon\"\n",
		"bad size":        "[memory]\npool_size = \"lots\"\n",
		"zero pool":       "[memory]\npool_size = \"0B\"\n",
		"bad version":     "[app]\nversion = \"1.2\"\n",
		"extra component": "[app]\nversion = \"1.2.3.4\"\n",
	} {
		_, err := Parse([]byte(src))
		assert.Error(t, err, name)
	}
}

func TestForeverTimeout(t *testing.T) {
	c, err := Parse([]byte("[render]\nfence_timeout = \"forever\"\n"))
	require.NoError(t, err)
	assert.Zero(t, c.Render.FenceTimeout.Duration)
}

func TestParseVersion(t *testing.T) {
	major, minor, patch, err := App{Version: "1.20.3"}.ParseVersion()
	require.NoError(t, err)
	assert.Equal(t, []uint32{1, 20, 3}, []uint32{major, minor, patch})
}

func TestLoadResolvesShaderDir(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.toml")
	require.NoError(t, os.WriteFile(path, []byte("[shaders]\ndir = \"assets/tri\"\nhot_reload = true\n"), 0o644))

	c, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(dir, "assets/tri"), c.Shaders.Dir)
	assert.True(t, c.Shaders.HotReload)
}

func TestLoadExpandsHome(t *testing.T) {
	c, err := Parse([]byte("[shaders]\ndir = \"~/shaders\"\n"))
	require.NoError(t, err)

	home, err := homedir.Dir()
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(home, "shaders"), c.Shaders.Dir)
}

func TestLoadOrDefault(t *testing.T) {
	c, err := LoadOrDefault(filepath.Join(t.TempDir(), "missing.toml"))
	require.NoError(t, err)
	assert.Equal(t, Default(), c)

	_, err = Load(filepath.Join(t.TempDir(), "missing.toml"))
	assert.Error(t, err)
}

func TestWriteRoundTrip(t *testing.T) {
	c := Default()
	c.Render.FenceTimeout.Duration = 500 * time.Millisecond
	c.Memory.PoolSize = 32 * datasize.MB

	var buf bytes.Buffer
	require.NoError(t, c.Write(&buf))
	assert.Contains(t, buf.String(), "32MB")

	back, err := Parse(buf.Bytes())
	require.NoError(t, err)
	assert.Equal(t, c, back)
}
