package settings

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/mitchellh/go-homedir"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xkilldash9x/chartwise/api/schemas"
)

func TestMasked(t *testing.T) {
	tests := []struct {
		key  string
		want string
	}{
		{"", ""},
		{"short", "****"},
		{"AIzaSyExampleKey1234", "****1234"},
	}
	for _, tt := range tests {
		s := Settings{APIKey: tt.key, Model: "gpt-4o-mini"}
		got := s.Masked()
		assert.Equal(t, tt.want, got.APIKey)
		assert.Equal(t, "gpt-4o-mini", got.Model)
	}
}

func TestMerge(t *testing.T) {
	base := Settings{APIKey: "sk-original-key-value", Provider: "openai", Model: "gpt-4o-mini", MaxTokens: 500, Temperature: 0.7}

	t.Run("MaskedKeyIsIgnored", func(t *testing.T) {
		got := base.Merge(base.Masked())
		assert.Equal(t, base, got)
	})

	t.Run("Overrides", func(t *testing.T) {
		got := base.Merge(Settings{APIKey: " sk-new-key-value-123 ", Model: "o3-mini", MaxTokens: 1000})
		assert.Equal(t, Settings{APIKey: "sk-new-key-value-123", Provider: "openai", Model: "o3-mini", MaxTokens: 1000, Temperature: 0.7}, got)
	})
}

func TestParams(t *testing.T) {
	s := Settings{Model: "gemini-1.5-pro", MaxTokens: 800, Temperature: 0.2}
	assert.Equal(t, schemas.ModelParams{Model: "gemini-1.5-pro", MaxTokens: 800, Temperature: 0.2}, s.Params())
}

func TestFileStore_RoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "settings.yaml")
	store, err := NewFileStore(path)
	require.NoError(t, err)

	empty, err := store.Load()
	require.NoError(t, err)
	assert.Equal(t, Settings{}, empty, "a missing file loads as empty settings")

	want := Settings{APIKey: "AIzaSyExampleKey1234567890123456", Provider: "gemini", Model: "gemini-1.5-flash-latest", MaxTokens: 750, Temperature: 0.4}
	require.NoError(t, store.Save(want))

	info, err := os.Stat(path)
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0o600), info.Mode().Perm())

	got, err := store.Load()
	require.NoError(t, err)
	assert.Equal(t, want, got)
}

func TestFileStore_CorruptFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "settings.yaml")
	require.NoError(t, os.WriteFile(path, []byte("api_key: [unterminated"), 0o600))
	store, err := NewFileStore(path)
	require.NoError(t, err)

	_, err = store.Load()
	assert.Error(t, err)
}

func TestNewFileStore_DefaultPath(t *testing.T) {
	home := t.TempDir()
	t.Setenv("HOME", home)
	homedir.DisableCache = true
	t.Cleanup(func() { homedir.DisableCache = false })

	store, err := NewFileStore("")
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(home, DefaultRelativePath), store.Path())
}

func TestMemoryStore(t *testing.T) {
	var m MemoryStore
	require.NoError(t, m.Save(Settings{Model: "gpt-4o"}))
	got, err := m.Load()
	require.NoError(t, err)
	assert.Equal(t, "gpt-4o", got.Model)
}
