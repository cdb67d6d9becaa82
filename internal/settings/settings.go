// Package settings persists the user's assistant preferences between runs.
package settings

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/mitchellh/go-homedir"
	"github.com/spf13/viper"

	"github.com/xkilldash9x/chartwise/api/schemas"
)

// DefaultRelativePath is where settings live under the user's home directory.
const DefaultRelativePath = ".chartwise/settings.yaml"

// Settings are the values the popup lets the user change.
type Settings struct {
	APIKey      string  `mapstructure:"api_key" json:"apiKey"`
	Provider    string  `mapstructure:"provider" json:"provider,omitempty"`
	Model       string  `mapstructure:"model" json:"model,omitempty"`
	MaxTokens   int     `mapstructure:"max_tokens" json:"maxTokens,omitempty"`
	Temperature float64 `mapstructure:"temperature" json:"temperature,omitempty"`
}

// Masked returns a copy safe to display: all but the last four characters of
// the key are hidden.
func (s Settings) Masked() Settings {
	switch {
	case s.APIKey == "":
	case len(s.APIKey) <= 8:
		s.APIKey = "****"
	default:
		s.APIKey = "****" + s.APIKey[len(s.APIKey)-4:]
	}
	return s
}

// Params converts the stored preferences into per-request model parameters.
func (s Settings) Params() schemas.ModelParams {
	return schemas.ModelParams{Model: s.Model, MaxTokens: s.MaxTokens, Temperature: s.Temperature}
}

// Merge overlays the non-zero fields of update onto s. A masked key is
// treated as unchanged.
func (s Settings) Merge(update Settings) Settings {
	if update.APIKey != "" && !strings.HasPrefix(update.APIKey, "****") {
		s.APIKey = strings.TrimSpace(update.APIKey)
	}
	if update.Provider != "" {
		s.Provider = update.Provider
	}
	if update.Model != "" {
		s.Model = update.Model
	}
	if update.MaxTokens > 0 {
		s.MaxTokens = update.MaxTokens
	}
	if update.Temperature > 0 {
		s.Temperature = update.Temperature
	}
	return s
}

// Store loads and saves Settings.
type Store interface {
	Load() (Settings, error)
	Save(Settings) error
}

// FileStore keeps Settings in a YAML file.
type FileStore struct {
	mu   sync.Mutex
	path string
}

// NewFileStore returns a store at path, expanding a leading "~". An empty
// path selects ~/.chartwise/settings.yaml.
func NewFileStore(path string) (*FileStore, error) {
	if path == "" {
		home, err := homedir.Dir()
		if err != nil {
			return nil, fmt.Errorf("failed to locate home directory: %w", err)
		}
		path = filepath.Join(home, DefaultRelativePath)
	}
	expanded, err := homedir.Expand(path)
	if err != nil {
		return nil, fmt.Errorf("failed to expand settings path %q: %w", path, err)
	}
	return &FileStore{path: expanded}, nil
}

// Path is the file backing the store.
func (f *FileStore) Path() string { return f.path }

// Load reads the settings file. A missing file yields empty Settings.
func (f *FileStore) Load() (Settings, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if _, err := os.Stat(f.path); errors.Is(err, fs.ErrNotExist) {
		return Settings{}, nil
	}
	v := viper.New()
	v.SetConfigFile(f.path)
	v.SetConfigType("yaml")
	if err := v.ReadInConfig(); err != nil {
		return Settings{}, fmt.Errorf("failed to read settings from %s: %w", f.path, err)
	}
	var s Settings
	if err := v.Unmarshal(&s); err != nil {
		return Settings{}, fmt.Errorf("failed to decode settings: %w", err)
	}
	return s, nil
}

// Save replaces the settings file. The file is readable only by its owner.
func (f *FileStore) Save(s Settings) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	if err := os.MkdirAll(filepath.Dir(f.path), 0o700); err != nil {
		return fmt.Errorf("failed to create settings directory: %w", err)
	}
	v := viper.New()
	v.SetConfigType("yaml")
	v.Set("api_key", s.APIKey)
	v.Set("provider", s.Provider)
	v.Set("model", s.Model)
	v.Set("max_tokens", s.MaxTokens)
	v.Set("temperature", s.Temperature)
	if err := v.WriteConfigAs(f.path); err != nil {
		return fmt.Errorf("failed to write settings to %s: %w", f.path, err)
	}
	if err := os.Chmod(f.path, 0o600); err != nil {
		return fmt.Errorf("failed to restrict settings file: %w", err)
	}
	return nil
}

// MemoryStore is a Store for tests and ephemeral sessions.
type MemoryStore struct {
	mu sync.Mutex
	s  Settings
}

// Load returns the last saved settings.
func (m *MemoryStore) Load() (Settings, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.s, nil
}

// Save keeps s in memory.
func (m *MemoryStore) Save(s Settings) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.s = s
	return nil
}
