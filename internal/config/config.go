// Package config loads the handmark configuration file.
package config

import (
	"errors"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// Config represents the complete handmark configuration.
type Config struct {
	LogLevel string        `yaml:"log_level"`
	Addr     string        `yaml:"addr"`
	DataDir  string        `yaml:"data_dir"` // sqlite history and prepared assets
	Model    ModelConfig   `yaml:"model"`
	Engine   EngineConfig  `yaml:"engine"`
	Publish  PublishConfig `yaml:"publish"`
	Camera   CameraConfig  `yaml:"camera"`
	Bypass   bool          `yaml:"bypass"` // start with the mode gate enabled
	Tray     bool          `yaml:"tray"`
}

// ModelConfig locates the hand landmarker model.
type ModelConfig struct {
	Path      string `yaml:"path"`
	AssetRoot string `yaml:"asset_root"` // source directory for PrepareAsset
}

// EngineConfig configures the inference engine process.
type EngineConfig struct {
	Script                     string  `yaml:"script"` // empty means search default locations
	Python                     string  `yaml:"python"`
	NumHands                   int     `yaml:"num_hands"`
	MinHandDetectionConfidence float64 `yaml:"min_hand_detection_confidence"`
	MinHandPresenceConfidence  float64 `yaml:"min_hand_presence_confidence"`
	MinTrackingConfidence      float64 `yaml:"min_tracking_confidence"`
	DispatchBuffer             int     `yaml:"dispatch_buffer"`
}

// PublishConfig configures the optional ZeroMQ result publisher.
type PublishConfig struct {
	Endpoint string `yaml:"endpoint"` // e.g. tcp://*:5556, empty disables
	Topic    string `yaml:"topic"`
	Format   string `yaml:"format"` // json or cbor
}

// CameraConfig configures the optional local camera feed.
type CameraConfig struct {
	Enabled  bool `yaml:"enabled"`
	DeviceID int  `yaml:"device_id"`
	FPS      int  `yaml:"fps"`
	Width    int  `yaml:"width"`
	Height   int  `yaml:"height"`
}

// Default returns a Config with the values used when no file is given.
func Default() *Config {
	return &Config{
		LogLevel: "info",
		Addr:     ":8080",
		DataDir:  defaultDataDir(),
		Model: ModelConfig{
			Path: "assets/models/hand_landmarker.task",
		},
		Engine: EngineConfig{
			NumHands:                   1,
			MinHandDetectionConfidence: 0.5,
			MinHandPresenceConfidence:  0.5,
			MinTrackingConfidence:      0.5,
			DispatchBuffer:             64,
		},
		Publish: PublishConfig{
			Topic:  "landmarks",
			Format: "json",
		},
		Camera: CameraConfig{
			FPS:    15,
			Width:  640,
			Height: 480,
		},
	}
}

func defaultDataDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ".handmark"
	}
	return home + "/.handmark"
}

// Load reads and parses a YAML configuration file on top of Default.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	cfg := Default()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	if err := Validate(cfg); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, nil
}

// Validate checks a configuration for values the pipeline cannot run with.
func Validate(cfg *Config) error {
	var errs []error

	if cfg.Model.Path == "" {
		errs = append(errs, errors.New("model.path is required"))
	}
	if cfg.Engine.NumHands < 1 {
		errs = append(errs, fmt.Errorf("engine.num_hands must be >= 1, got %d", cfg.Engine.NumHands))
	}
	for name, v := range map[string]float64{
		"min_hand_detection_confidence": cfg.Engine.MinHandDetectionConfidence,
		"min_hand_presence_confidence":  cfg.Engine.MinHandPresenceConfidence,
		"min_tracking_confidence":       cfg.Engine.MinTrackingConfidence,
	} {
		if v < 0 || v > 1 {
			errs = append(errs, fmt.Errorf("engine.%s must be within [0,1], got %v", name, v))
		}
	}
	if cfg.Engine.DispatchBuffer < 1 {
		errs = append(errs, fmt.Errorf("engine.dispatch_buffer must be >= 1, got %d", cfg.Engine.DispatchBuffer))
	}
	if f := cfg.Publish.Format; f != "json" && f != "cbor" {
		errs = append(errs, fmt.Errorf("publish.format must be json or cbor, got %q", f))
	}
	if cfg.Camera.Enabled && cfg.Camera.FPS <= 0 {
		errs = append(errs, fmt.Errorf("camera.fps must be > 0, got %d", cfg.Camera.FPS))
	}

	return errors.Join(errs...)
}
