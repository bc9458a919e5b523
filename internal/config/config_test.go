package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_MissingFileReturnsDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	require.NoError(t, err)
	assert.Equal(t, "window", cfg.Chunker.Type)
	assert.Equal(t, 800, cfg.Chunker.Size)
	assert.Equal(t, 100, cfg.Chunker.Overlap)
	assert.Equal(t, 1024, cfg.Vectorizer.Dimension)
	assert.Equal(t, "openai", cfg.LLM.Provider)
	assert.Equal(t, "OPENAI_API_KEY", cfg.LLM.APIKeyEnv)
	assert.Equal(t, 3, cfg.Retrieval.TopK)
	assert.Equal(t, filepath.Join("data", "rentbot.db"), cfg.Storage.DBPath)
}

func TestLoad_AppliesDefaultsToPartialFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
chunker:
  type: sentence
llm:
  provider: extractive
storage:
  data_dir: /var/lib/rentbot
retrieval:
  top_k: 5
log:
  verbose: true
`), 0o644))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, 5, cfg.Chunker.SentencesPerChunk)
	assert.Zero(t, cfg.Chunker.Size)
	assert.Equal(t, "extractive", cfg.LLM.Provider)
	assert.Empty(t, cfg.LLM.Model)
	assert.Equal(t, 512, cfg.LLM.MaxTokens)
	assert.Equal(t, "/var/lib/rentbot/house_kb", cfg.Storage.UploadDir)
	assert.Equal(t, 5, cfg.Retrieval.TopK)
	assert.True(t, cfg.Log.Verbose)
}

func TestLoad_KeepsExplicitZeroOverlap(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("chunker:\n  size: 400\n  overlap: 0\n"), 0o644))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, 400, cfg.Chunker.Size)
	assert.Zero(t, cfg.Chunker.Overlap)

	require.NoError(t, os.WriteFile(path, []byte("chunker:\n  size: 400\n"), 0o644))
	cfg, err = Load(path)
	require.NoError(t, err)
	assert.Equal(t, 100, cfg.Chunker.Overlap)
}

func TestLoad_InvalidYAML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("chunker: [unterminated"), 0o644))
	_, err := Load(path)
	assert.Error(t, err)
}

func TestSaveRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "config.yaml")
	cfg := defaultConfig()
	cfg.LLM.Model = "gpt-4o"
	require.NoError(t, Save(path, cfg))

	loaded, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, cfg, loaded)
}

func TestLoadDefault_WritesUserConfig(t *testing.T) {
	home := t.TempDir()
	t.Setenv("HOME", home)
	t.Chdir(t.TempDir())

	cfg, path, err := LoadDefault()
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(home, ".config", "rentbot", "config.yaml"), path)
	assert.FileExists(t, path)
	assert.Equal(t, 1024, cfg.Vectorizer.Dimension)
}
