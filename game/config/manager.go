package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"gopkg.in/yaml.v3"
)

// Manager owns the settings loaded from one file and caches them.
type Manager struct {
	path    string
	current *Settings
	mu      sync.RWMutex
}

// NewManager loads path. An empty path yields the defaults.
func NewManager(path string) (*Manager, error) {
	m := &Manager{path: path}
	if path == "" {
		m.current = Default()
		return m, nil
	}

	settings, err := LoadFile(path)
	if err != nil {
		return nil, err
	}
	m.current = settings
	return m, nil
}

// Current returns a copy of the cached settings.
func (m *Manager) Current() *Settings {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.current.clone()
}

// Reload re-reads the file. The cached settings are kept if the new ones fail
// to load or validate.
func (m *Manager) Reload() error {
	if m.path == "" {
		return nil
	}
	settings, err := LoadFile(m.path)
	if err != nil {
		return err
	}

	m.mu.Lock()
	m.current = settings
	m.mu.Unlock()
	return nil
}

// LoadFile reads settings from a .json, .yaml or .yml file on top of the
// defaults.
func LoadFile(path string) (*Settings, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("%w: %s", ErrConfigNotFound, path)
		}
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}
	return Parse(data, path)
}

// Parse decodes data in the format implied by name's extension.
func Parse(data []byte, name string) (*Settings, error) {
	settings := Default()

	switch ext := strings.ToLower(filepath.Ext(name)); ext {
	case ".json":
		if err := json.Unmarshal(data, settings); err != nil {
			return nil, fmt.Errorf("failed to parse config: %w", err)
		}
	case ".yaml", ".yml":
		if err := yaml.Unmarshal(data, settings); err != nil {
			return nil, fmt.Errorf("failed to parse config: %w", err)
		}
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnsupportedFormat, ext)
	}

	if err := settings.Validate(); err != nil {
		return nil, err
	}
	return settings, nil
}

func (s *Settings) clone() *Settings {
	c := *s
	if s.Server.AllowedOrigins != nil {
		c.Server.AllowedOrigins = append([]string(nil), s.Server.AllowedOrigins...)
	}
	return &c
}
