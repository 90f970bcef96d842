// Package config loads platewatch configuration from file and environment.
package config

import (
	"fmt"
	"strings"

	"github.com/spf13/viper"
)

// Dedup window bounds in seconds, enforced both here and by the settings API.
const (
	MinDedupWindow = 5
	MaxDedupWindow = 300
)

// Config holds the full service configuration.
type Config struct {
	HTTP struct {
		Port string `mapstructure:"port"`
	} `mapstructure:"http"`

	Log struct {
		Level string `mapstructure:"level"`
	} `mapstructure:"log"`

	DB struct {
		Path string `mapstructure:"path"`
	} `mapstructure:"db"`

	// Cameras maps source identifiers to connection endpoints.
	// An endpoint is either a device index ("0") or a stream URL.
	Cameras map[string]string `mapstructure:"cameras"`

	Detector struct {
		ModelPath        string  `mapstructure:"model_path"`
		ConfidenceThresh float32 `mapstructure:"confidence_thresh"`
		NMSThresh        float32 `mapstructure:"nms_thresh"`
	} `mapstructure:"detector"`

	OCR struct {
		Endpoint string `mapstructure:"endpoint"`
	} `mapstructure:"ocr"`

	Capture struct {
		DedupWindowSeconds int    `mapstructure:"dedup_window_seconds"`
		SaveDir            string `mapstructure:"save_dir"`
		JPEGQuality        int    `mapstructure:"jpeg_quality"`
	} `mapstructure:"capture"`
}

// Load reads configuration from platewatch.yaml (working directory or /etc/platewatch)
// and PLATEWATCH_* environment variables. Missing file is not an error; missing keys
// fall back to defaults.
func Load() (*Config, error) {
	v := viper.New()
	v.SetConfigName("platewatch")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")
	v.AddConfigPath("/etc/platewatch")

	v.SetEnvPrefix("platewatch")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	v.SetDefault("http.port", "5000")
	v.SetDefault("log.level", "info")
	v.SetDefault("db.path", "data/platewatch.db")
	v.SetDefault("cameras", map[string]string{"webcam": "0"})
	v.SetDefault("detector.model_path", "models/license_plate_detector.onnx")
	v.SetDefault("detector.confidence_thresh", 0.35)
	v.SetDefault("detector.nms_thresh", 0.45)
	v.SetDefault("ocr.endpoint", "http://127.0.0.1:8089")
	v.SetDefault("capture.dedup_window_seconds", 30)
	v.SetDefault("capture.save_dir", "data/captured")
	v.SetDefault("capture.jpeg_quality", 75)

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("read config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) validate() error {
	if len(c.Cameras) == 0 {
		return fmt.Errorf("at least one camera source must be configured")
	}
	w := c.Capture.DedupWindowSeconds
	if w < MinDedupWindow || w > MaxDedupWindow {
		return fmt.Errorf("capture.dedup_window_seconds must be between %d and %d, got %d",
			MinDedupWindow, MaxDedupWindow, w)
	}
	return nil
}

// SourceNames returns the configured camera identifiers.
func (c *Config) SourceNames() []string {
	names := make([]string, 0, len(c.Cameras))
	for name := range c.Cameras {
		names = append(names, name)
	}
	return names
}
