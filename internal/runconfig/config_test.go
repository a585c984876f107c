package runconfig

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseDefaults(t *testing.T) {
	cfg, err := parse("")
	require.NoError(t, err)
	assert.Equal(t, Default().Workers, cfg.Workers)
	assert.False(t, cfg.Ordered)
	assert.Empty(t, cfg.Paths)
}

func TestParseOverrides(t *testing.T) {
	content := `
root "testdata/corpus"
paths "a.conllu" "b.conllu.gz"
workers 8
depth 3
ordered true
`
	cfg, err := parse(content)
	require.NoError(t, err)

	assert.Equal(t, "testdata/corpus", cfg.Root)
	assert.Equal(t, []string{"a.conllu", "b.conllu.gz"}, cfg.Paths)
	assert.Equal(t, 8, cfg.Workers)
	assert.Equal(t, 3, cfg.DepthLimit)
	assert.True(t, cfg.Ordered)
}

func TestParseInvalidKDL(t *testing.T) {
	_, err := parse("root [[[")
	assert.Error(t, err)
}

func TestLoadMissingFileReturnsDefaults(t *testing.T) {
	cfg, err := Load(t.TempDir())
	require.NoError(t, err)
	assert.Equal(t, Default(), cfg)
}

func TestLoadExistingFile(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, FileName), []byte("workers 2\n"), 0o644))

	cfg, err := Load(dir)
	require.NoError(t, err)
	assert.Equal(t, 2, cfg.Workers)
}
