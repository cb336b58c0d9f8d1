// Package config loads and persists the supervisor configuration: the two
// experimental value sets, their display metadata, the default network
// target and the condition duration.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/exolab/vrsupervisor/pkg/domain"
	"gopkg.in/yaml.v3"
)

// DefaultFileName is the config file name inside the config directory.
const DefaultFileName = "supervisor.yaml"

// Metadata names the two experimental factors for display purposes.
type Metadata struct {
	Variable1Name   string `yaml:"variable1_name"`
	Variable2Name   string `yaml:"variable2_name"`
	Variable1Plural string `yaml:"variable1_plural"`
	Variable2Plural string `yaml:"variable2_plural"`
	FirstTimeSetup  bool   `yaml:"is_first_time_setup"`
}

// Config is the full persisted configuration.
type Config struct {
	Metadata          Metadata             `yaml:"metadata"`
	ConditionTypes    []string             `yaml:"condition_types"`
	ObjectTypes       []string             `yaml:"object_types"`
	Network           domain.NetworkTarget `yaml:"network"`
	ConditionDuration time.Duration        `yaml:"condition_duration"`
}

// Default returns the first-time-setup configuration: empty value sets that
// the operator fills in through the control panel.
func Default() *Config {
	return &Config{
		Metadata: Metadata{
			Variable1Name:   "Condition Type",
			Variable2Name:   "Object Type",
			Variable1Plural: "Condition Types",
			Variable2Plural: "Object Types",
			FirstTimeSetup:  true,
		},
		Network:           domain.NetworkTarget{IP: "255.255.255.255", Port: 1221},
		ConditionDuration: 5 * time.Minute,
	}
}

// Manager owns the configuration file: it loads it at startup (creating the
// default on first run) and serializes updates.
type Manager struct {
	path string

	mu  sync.RWMutex
	cfg *Config
}

// NewManager loads (or initializes) the configuration under dir.
func NewManager(dir string) (*Manager, error) {
	if dir == "" {
		dir = "config"
	}
	path := filepath.Join(dir, DefaultFileName)

	cfg, err := load(path)
	if err != nil {
		return nil, err
	}
	if cfg == nil {
		cfg = Default()
		if err := save(path, cfg); err != nil {
			return nil, err
		}
	}

	return &Manager{path: path, cfg: cfg}, nil
}

// Get returns a copy of the current configuration.
func (m *Manager) Get() Config {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.snapshotLocked()
}

// ValueSets returns the currently registered value sets.
func (m *Manager) ValueSets() (domain.ValueSet, domain.ValueSet) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	conditions := make(domain.ValueSet, len(m.cfg.ConditionTypes))
	copy(conditions, m.cfg.ConditionTypes)
	objects := make(domain.ValueSet, len(m.cfg.ObjectTypes))
	copy(objects, m.cfg.ObjectTypes)
	return conditions, objects
}

// Update applies fn to the configuration and persists the result. A failed
// fn or a failed write leaves the in-memory configuration unchanged.
func (m *Manager) Update(fn func(*Config) error) (Config, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	next := m.snapshotLocked()
	if err := fn(&next); err != nil {
		return Config{}, err
	}
	if err := save(m.path, &next); err != nil {
		return Config{}, err
	}
	m.cfg = &next
	return m.snapshotLocked(), nil
}

func (m *Manager) snapshotLocked() Config {
	cp := *m.cfg
	cp.ConditionTypes = append([]string(nil), m.cfg.ConditionTypes...)
	cp.ObjectTypes = append([]string(nil), m.cfg.ObjectTypes...)
	return cp
}

func load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to read config: %w", err)
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	// Backfill anything an older or hand-edited file omits.
	def := Default()
	if cfg.Network.IP == "" {
		cfg.Network.IP = def.Network.IP
	}
	if cfg.Network.Port == 0 {
		cfg.Network.Port = def.Network.Port
	}
	if cfg.ConditionDuration <= 0 {
		cfg.ConditionDuration = def.ConditionDuration
	}
	if cfg.Metadata.Variable1Name == "" {
		cfg.Metadata = def.Metadata
		cfg.Metadata.FirstTimeSetup = false
	}

	return &cfg, nil
}

// save writes via temp file + rename so a crash never leaves a truncated
// config behind.
func save(path string, cfg *Config) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("failed to ensure config directory: %w", err)
	}

	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	tmpFile, err := os.CreateTemp(dir, "tmp-config-*.yaml")
	if err != nil {
		return fmt.Errorf("failed to create temp file: %w", err)
	}
	tmpPath := tmpFile.Name()
	defer func() {
		_ = tmpFile.Close()
		_ = os.Remove(tmpPath)
	}()

	if _, err := tmpFile.Write(data); err != nil {
		return fmt.Errorf("failed to write config: %w", err)
	}
	if err := tmpFile.Sync(); err != nil {
		return fmt.Errorf("failed to fsync config: %w", err)
	}
	if err := tmpFile.Close(); err != nil {
		return fmt.Errorf("failed to close config: %w", err)
	}
	if err := os.Rename(tmpPath, path); err != nil {
		return fmt.Errorf("failed to finalize config: %w", err)
	}
	return nil
}
