package config

import (
	"fmt"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/viper"
	"go.uber.org/zap"
)

// Scroll mode names persisted in the config file
const (
	ScrollNone      = "none"
	ScrollVertical  = "vertical"
	ScrollBoth      = "both"
	ScrollBothReset = "both-reset"
)

type Config struct {
	Bridge  BridgeConfig   `mapstructure:"bridge"`
	Devices []DeviceConfig `mapstructure:"devices"`
	Timing  TimingConfig   `mapstructure:"timing"`
}

type BridgeConfig struct {
	ScrollMode string `mapstructure:"scroll_mode"`
	Brightness int    `mapstructure:"brightness"` // default level 0-10
	DebugMode  bool   `mapstructure:"debug_mode"`
	HTTPPort   int    `mapstructure:"http_port"`
}

// DeviceConfig is one persisted record per physical device
type DeviceConfig struct {
	Serial       string `mapstructure:"serial"`
	DisplayOrder int    `mapstructure:"display_order"`
	HOffset      int    `mapstructure:"h_offset"` // initial horizontal scroll seed
}

type TimingConfig struct {
	LivenessTimeout  time.Duration `mapstructure:"liveness_timeout"`
	LivenessSweep    time.Duration `mapstructure:"liveness_sweep"`
	AnnounceInterval time.Duration `mapstructure:"announce_interval"`
	ConfigPush       time.Duration `mapstructure:"config_push_interval"`
	RefreshRetry     time.Duration `mapstructure:"refresh_retry"`
	PressFlash       time.Duration `mapstructure:"press_flash"`
	StopFlashPlaying time.Duration `mapstructure:"stop_flash_playing"`
	StopFlashIdle    time.Duration `mapstructure:"stop_flash_idle"`
	LongPress        time.Duration `mapstructure:"long_press"`
}

func Load(path string) (*Config, error) {
	viper.SetConfigFile(path)
	viper.SetConfigType("yaml")

	// Defaults setzen
	viper.SetDefault("bridge.scroll_mode", ScrollVertical)
	viper.SetDefault("bridge.brightness", 3)
	viper.SetDefault("bridge.debug_mode", false)
	viper.SetDefault("bridge.http_port", 8090)
	viper.SetDefault("timing.liveness_timeout", "2s")
	viper.SetDefault("timing.liveness_sweep", "500ms")
	viper.SetDefault("timing.announce_interval", "1s")
	viper.SetDefault("timing.config_push_interval", "3s")
	viper.SetDefault("timing.refresh_retry", "1500ms")
	viper.SetDefault("timing.press_flash", "200ms")
	viper.SetDefault("timing.stop_flash_playing", "4s")
	viper.SetDefault("timing.stop_flash_idle", "500ms")
	viper.SetDefault("timing.long_press", "600ms")

	viper.AutomaticEnv()
	viper.SetEnvPrefix("GRIDDECK")

	if err := viper.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("failed to read config: %w", err)
	}

	var config Config
	if err := viper.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := Validate(&config); err != nil {
		return nil, err
	}

	return &config, nil
}

// Watch reloads runtime-tunable settings when the config file changes.
// Only brightness and debug flag are hot; the device table and port
// layout require a restart.
func Watch(logger *zap.Logger, onChange func(*Config)) {
	viper.OnConfigChange(func(e fsnotify.Event) {
		var config Config
		if err := viper.Unmarshal(&config); err != nil {
			logger.Warn("Config reload failed", zap.String("file", e.Name), zap.Error(err))
			return
		}
		if err := Validate(&config); err != nil {
			logger.Warn("Config reload rejected", zap.String("file", e.Name), zap.Error(err))
			return
		}
		logger.Info("Config reloaded", zap.String("file", e.Name))
		onChange(&config)
	})
	viper.WatchConfig()
}

// Save rewrites the config file. Called only from explicit
// reconfiguration, never on shutdown.
func (c *Config) Save(path string) error {
	if err := Validate(c); err != nil {
		return err
	}

	viper.Set("bridge.scroll_mode", c.Bridge.ScrollMode)
	viper.Set("bridge.brightness", c.Bridge.Brightness)
	viper.Set("bridge.debug_mode", c.Bridge.DebugMode)
	viper.Set("bridge.http_port", c.Bridge.HTTPPort)

	devices := make([]map[string]any, 0, len(c.Devices))
	for _, d := range c.Devices {
		devices = append(devices, map[string]any{
			"serial":        d.Serial,
			"display_order": d.DisplayOrder,
			"h_offset":      d.HOffset,
		})
	}
	viper.Set("devices", devices)

	if err := viper.WriteConfigAs(path); err != nil {
		return fmt.Errorf("failed to write config: %w", err)
	}
	return nil
}

// DeviceByOrder looks up the persisted record for a display order
func (c *Config) DeviceByOrder(displayOrder int) (DeviceConfig, bool) {
	for _, d := range c.Devices {
		if d.DisplayOrder == displayOrder {
			return d, true
		}
	}
	return DeviceConfig{}, false
}
