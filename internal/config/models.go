package config

import (
	"errors"
	"fmt"
	"net/url"
	"time"

	"github.com/bryanchriswhite/ScreenRelay/internal/logger"
)

// CaptureConfig locates the capture daemon
type CaptureConfig struct {
	Addr         string `json:"addr" yaml:"addr" mapstructure:"addr"`
	MaxFrameSize uint32 `json:"max_frame_size" yaml:"max_frame_size" mapstructure:"max_frame_size"` // 0 disables the limit
}

// ServerConfig represents the HTTP gateway configuration
type ServerConfig struct {
	Addr      string `json:"addr" yaml:"addr" mapstructure:"addr"`
	StreamFPS int    `json:"stream_fps" yaml:"stream_fps" mapstructure:"stream_fps"`
}

// DeviceConfig selects the adb target used for input and port forwarding
type DeviceConfig struct {
	Serial        string `json:"serial" yaml:"serial" mapstructure:"serial"`
	ADBPath       string `json:"adb_path" yaml:"adb_path" mapstructure:"adb_path"`
	Forward       bool   `json:"forward" yaml:"forward" mapstructure:"forward"`
	ForwardRemote string `json:"forward_remote" yaml:"forward_remote" mapstructure:"forward_remote"`
}

// QueueConfig points at the automation queue service. An empty URL
// disables the relay.
type QueueConfig struct {
	URL      string        `json:"url" yaml:"url" mapstructure:"url"`
	Timeout  time.Duration `json:"timeout" yaml:"timeout" mapstructure:"timeout"`
	CacheTTL time.Duration `json:"cache_ttl" yaml:"cache_ttl" mapstructure:"cache_ttl"`
}

// Config represents the application configuration
type Config struct {
	Capture   CaptureConfig `json:"capture" yaml:"capture" mapstructure:"capture"`
	Server    ServerConfig  `json:"server" yaml:"server" mapstructure:"server"`
	Device    DeviceConfig  `json:"device" yaml:"device" mapstructure:"device"`
	Queue     QueueConfig   `json:"queue" yaml:"queue" mapstructure:"queue"`
	LogLevel  string        `json:"log_level" yaml:"log_level" mapstructure:"log_level"`
	LogPretty bool          `json:"log_pretty" yaml:"log_pretty" mapstructure:"log_pretty"`
}

// Defaults returns the built-in configuration
func Defaults() *Config {
	return &Config{
		Capture: CaptureConfig{
			Addr:         "127.0.0.1:1717",
			MaxFrameSize: 32 << 20,
		},
		Server: ServerConfig{
			Addr:      "127.0.0.1:3000",
			StreamFPS: 15,
		},
		Device: DeviceConfig{
			ADBPath:       "adb",
			ForwardRemote: "localabstract:minicap",
		},
		Queue: QueueConfig{
			Timeout:  5 * time.Second,
			CacheTTL: 2 * time.Second,
		},
		LogLevel:  "info",
		LogPretty: true,
	}
}

// Validate reports every invalid setting at once.
func (c *Config) Validate() error {
	var errs []error

	if c.Capture.Addr == "" {
		errs = append(errs, errors.New("capture.addr must not be empty"))
	}
	if c.Server.Addr == "" {
		errs = append(errs, errors.New("server.addr must not be empty"))
	}
	if c.Server.StreamFPS < 1 || c.Server.StreamFPS > 60 {
		errs = append(errs, fmt.Errorf("server.stream_fps must be between 1 and 60, got %d", c.Server.StreamFPS))
	}
	if c.Device.Forward && c.Device.ForwardRemote == "" {
		errs = append(errs, errors.New("device.forward_remote must be set when device.forward is enabled"))
	}
	if c.Queue.URL != "" {
		u, err := url.Parse(c.Queue.URL)
		if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
			errs = append(errs, fmt.Errorf("queue.url must be an http(s) URL, got %q", c.Queue.URL))
		}
	}
	if c.Queue.Timeout <= 0 {
		errs = append(errs, fmt.Errorf("queue.timeout must be positive, got %s", c.Queue.Timeout))
	}
	if c.Queue.CacheTTL < 0 {
		errs = append(errs, fmt.Errorf("queue.cache_ttl must not be negative, got %s", c.Queue.CacheTTL))
	}
	if !logger.ValidLevel(c.LogLevel) {
		errs = append(errs, fmt.Errorf("invalid log level: %s (use: debug, info, warn, error)", c.LogLevel))
	}

	return errors.Join(errs...)
}
