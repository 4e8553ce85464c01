package shaderpack

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// spirv returns n words of fake bytecode starting with the SPIR-V magic.
func spirv(n int) []byte {
	code := make([]byte, 4*n)
	copy(code, []byte{0x03, 0x02, 0x23, 0x07})
	return code
}

func writeFiles(t *testing.T, dir string, files map[string][]byte) {
	t.Helper()
	for name, data := range files {
		path := filepath.Join(dir, name)
		require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
		require.NoError(t, os.WriteFile(path, data, 0o644))
	}
}

func TestLoad(t *testing.T) {
	dir := t.TempDir()
	writeFiles(t, dir, map[string][]byte{
		DefaultDescriptor: []byte("vertex-shader;main: vert.spv\nfragment-shader;main: frag.spv\n"),
		"vert.spv":        spirv(4),
		"frag.spv":        spirv(8),
	})

	p, err := Load(context.Background(), dir, "", nil)
	require.NoError(t, err)

	require.Len(t, p.Stages, 2)
	assert.Equal(t, Vertex, p.Stages[0].Kind)
	assert.Len(t, p.Stages[0].Code, 16)
	assert.Equal(t, Fragment, p.Stages[1].Kind)
	assert.Len(t, p.Stages[1].Code, 32)
	assert.Equal(t, filepath.Join(dir, DefaultDescriptor), p.DescriptorPath())

	frag, ok := p.Stage(Fragment)
	require.True(t, ok)
	assert.Equal(t, "frag.spv", frag.File)
	_, ok = p.Stage(Geometry)
	assert.False(t, ok)
}

func TestLoadSkipsUnreadableStages(t *testing.T) {
	dir := t.TempDir()
	writeFiles(t, dir, map[string][]byte{
		"prog.meta": []byte("vertex-shader;main: missing.spv\n" +
			"geometry-shader;main: odd.spv\n" +
			"fragment-shader;main: frag.spv\n"),
		"odd.spv":  []byte{1, 2, 3},
		"frag.spv": spirv(2),
	})

	var logs bytes.Buffer
	p, err := Load(context.Background(), dir+"/", "prog.meta", testLogger(&logs))
	require.NoError(t, err)

	require.Len(t, p.Stages, 1)
	assert.Equal(t, Fragment, p.Stages[0].Kind)
	assert.Equal(t, dir, p.Dir)

	out := logs.String()
	assert.Contains(t, out, "trailing slash")
	assert.Contains(t, out, "missing.spv")
	assert.Contains(t, out, "SPIR-V")
}

func TestLoadMissingDescriptor(t *testing.T) {
	_, err := Load(context.Background(), t.TempDir(), "", nil)
	assert.Error(t, err)
}

func TestLoadCancelled(t *testing.T) {
	dir := t.TempDir()
	writeFiles(t, dir, map[string][]byte{
		DefaultDescriptor: []byte("vertex-shader;main: vert.spv\n"),
		"vert.spv":        spirv(1),
	})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := Load(ctx, dir, "", nil)
	assert.ErrorIs(t, err, context.Canceled)
}
