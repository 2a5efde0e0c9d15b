package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadProviderSeed_MissingPathIsNotAnError(t *testing.T) {
	seeds, err := LoadProviderSeed("")
	require.NoError(t, err)
	assert.Nil(t, seeds)
}

func TestLoadProviderSeed_MissingFileIsNotAnError(t *testing.T) {
	seeds, err := LoadProviderSeed(filepath.Join(t.TempDir(), "does-not-exist.yaml"))
	require.NoError(t, err)
	assert.Nil(t, seeds)
}

func TestLoadProviderSeed_ParsesEntries(t *testing.T) {
	path := filepath.Join(t.TempDir(), "providers.yaml")
	doc := `
- name: anthropic
  kind: external
  apiKeyEnv: ANTHROPIC_API_KEY
  modelName: claude-haiku
  maxTokens: 4096
  temperature: 0.3
  isActive: true
  priority: 10
  costPer1kTokens: 0.001
- name: local-template
  kind: local
  modelName: ""
  maxTokens: 1
  temperature: 0
  isActive: true
  priority: 0
`
	require.NoError(t, os.WriteFile(path, []byte(doc), 0o644))

	seeds, err := LoadProviderSeed(path)
	require.NoError(t, err)
	require.Len(t, seeds, 2)

	assert.Equal(t, "anthropic", seeds[0].Name)
	assert.Equal(t, "external", seeds[0].Kind)
	assert.Equal(t, "ANTHROPIC_API_KEY", seeds[0].APIKeyEnv)
	assert.Equal(t, 10, seeds[0].Priority)

	assert.Equal(t, "local-template", seeds[1].Name)
	assert.Equal(t, "local", seeds[1].Kind)
}

func TestLoadProviderSeed_InvalidYAMLErrors(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bad.yaml")
	require.NoError(t, os.WriteFile(path, []byte("not: [valid"), 0o644))

	_, err := LoadProviderSeed(path)
	assert.Error(t, err)
}
