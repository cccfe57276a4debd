package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"

	"github.com/bryanchriswhite/ScreenRelay/internal/logger"
)

// EnvPrefix prefixes every environment override, e.g. SCREENRELAY_SERVER_ADDR.
const EnvPrefix = "SCREENRELAY"

// defaults maps every known key to its built-in value. The value's type
// decides how Set parses strings for that key.
var defaults = func() map[string]any {
	d := Defaults()
	return map[string]any{
		"capture.addr":           d.Capture.Addr,
		"capture.max_frame_size": d.Capture.MaxFrameSize,
		"server.addr":            d.Server.Addr,
		"server.stream_fps":      d.Server.StreamFPS,
		"device.serial":          d.Device.Serial,
		"device.adb_path":        d.Device.ADBPath,
		"device.forward":         d.Device.Forward,
		"device.forward_remote":  d.Device.ForwardRemote,
		"queue.url":              d.Queue.URL,
		"queue.timeout":          d.Queue.Timeout,
		"queue.cache_ttl":        d.Queue.CacheTTL,
		"log_level":              d.LogLevel,
		"log_pretty":             d.LogPretty,
	}
}()

// Keys returns every configuration key in sorted order.
func Keys() []string {
	keys := make([]string, 0, len(defaults))
	for k := range defaults {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// Manager layers defaults, the YAML file, SCREENRELAY_* environment
// variables and bound flags, in increasing precedence. file holds only
// defaults and the YAML file; Save writes from it.
type Manager struct {
	configPath string
	v          *viper.Viper
	file       *viper.Viper
	mu         sync.RWMutex
}

// DefaultConfigPath returns $HOME/.config/screenrelay/config.yaml.
func DefaultConfigPath() (string, error) {
	homeDir, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("failed to get home directory: %w", err)
	}
	return filepath.Join(homeDir, ".config", "screenrelay", "config.yaml"), nil
}

// NewManager creates a new configuration manager. configFile overrides
// the default path; a missing file is created with defaults.
func NewManager(configFile string) (*Manager, error) {
	path := configFile
	if path == "" {
		var err error
		if path, err = DefaultConfigPath(); err != nil {
			return nil, err
		}
	}

	v := newFileViper(path)
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	m := &Manager{configPath: path, v: v, file: newFileViper(path)}
	log := logger.WithComponent("config")

	if _, err := os.Stat(path); errors.Is(err, os.ErrNotExist) {
		log.Info().Str("path", path).Msg("Config file not found, creating new config")
		if err := m.write(Defaults()); err != nil {
			return nil, fmt.Errorf("failed to create default config: %w", err)
		}
	} else if err != nil {
		return nil, fmt.Errorf("failed to stat config: %w", err)
	}

	for _, fv := range []*viper.Viper{m.v, m.file} {
		if err := fv.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config: %w", err)
		}
	}

	log.Info().Str("path", path).Msg("Config loaded")
	return m, nil
}

func newFileViper(path string) *viper.Viper {
	v := viper.New()
	for key, value := range defaults {
		v.SetDefault(key, value)
	}
	v.SetConfigFile(path)
	v.SetConfigType("yaml")
	return v
}

func decode(v *viper.Viper) (*Config, error) {
	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to decode config: %w", err)
	}
	return &cfg, nil
}

// Get returns the merged configuration.
func (m *Manager) Get() (*Config, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return decode(m.v)
}

// GetViper exposes the underlying viper instance for key lookups.
func (m *Manager) GetViper() *viper.Viper {
	return m.v
}

// GetConfigPath returns the path of the backing YAML file.
func (m *Manager) GetConfigPath() string {
	return m.configPath
}

// BindFlag lets a command-line flag override key when the flag is set.
func (m *Manager) BindFlag(key string, flag *pflag.Flag) error {
	if _, ok := defaults[key]; !ok {
		return fmt.Errorf("configuration key not found: %s", key)
	}
	if flag == nil {
		return fmt.Errorf("no flag to bind for %s", key)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.v.BindPFlag(key, flag)
}

// Set parses value according to the key's type, validates the result and
// stores it in memory for both the merged view and the file layer. Call
// Save to persist.
func (m *Manager) Set(key, value string) error {
	def, ok := defaults[key]
	if !ok {
		return fmt.Errorf("configuration key not found: %s", key)
	}

	var parsed any
	var err error
	switch def.(type) {
	case int:
		parsed, err = strconv.Atoi(value)
	case uint32:
		var n uint64
		n, err = strconv.ParseUint(value, 10, 32)
		parsed = uint32(n)
	case bool:
		parsed, err = strconv.ParseBool(value)
	case time.Duration:
		parsed, err = time.ParseDuration(value)
	default:
		parsed = value
	}
	if err != nil {
		return fmt.Errorf("invalid value for %s: %q", key, value)
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	previous, previousFile := m.v.Get(key), m.file.Get(key)
	m.v.Set(key, parsed)
	m.file.Set(key, parsed)

	cfg, err := decode(m.v)
	if err == nil {
		err = cfg.Validate()
	}
	if err != nil {
		m.v.Set(key, previous)
		m.file.Set(key, previousFile)
		return err
	}
	return nil
}

// Save writes the file layer to the YAML file. Environment and flag
// overrides are never persisted.
func (m *Manager) Save() error {
	m.mu.RLock()
	cfg, err := decode(m.file)
	m.mu.RUnlock()
	if err != nil {
		return err
	}
	return m.write(cfg)
}

func (m *Manager) write(cfg *Config) error {
	if err := os.MkdirAll(filepath.Dir(m.configPath), 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	if err := os.WriteFile(m.configPath, data, 0644); err != nil {
		return fmt.Errorf("failed to write config: %w", err)
	}

	logger.WithComponent("config").Debug().Str("path", m.configPath).Msg("Config saved")
	return nil
}

// LoadDotEnv loads KEY=VALUE pairs from path into the environment without
// overriding variables that are already set. A missing file is not an error.
func LoadDotEnv(path string) error {
	if err := godotenv.Load(path); err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("failed to load %s: %w", path, err)
	}
	return nil
}
