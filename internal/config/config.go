// Package config handles viewer configuration loading and management.
package config

// Config holds all viewer settings.
type Config struct {
	Data    DataConfig    `yaml:"data"`
	Viewer  ViewerConfig  `yaml:"viewer"`
	Logging LoggingConfig `yaml:"logging"`
}

// DataConfig holds asset search locations. Loose directories are searched
// before volume archives.
type DataConfig struct {
	Paths   []string `yaml:"paths"`   // Loose file directories
	Volumes []string `yaml:"volumes"` // Paths to .vol archives
}

// ViewerConfig holds display settings used for detail selection.
type ViewerConfig struct {
	Width          int     `yaml:"width"`
	Height         int     `yaml:"height"`
	DetailDistance float32 `yaml:"detail_distance"`
}

// LoggingConfig holds logging settings.
type LoggingConfig struct {
	Level   string `yaml:"level"`
	LogFile string `yaml:"log_file"`
}

// Default returns a Config with sensible default values.
func Default() *Config {
	return &Config{
		Data: DataConfig{
			Paths:   []string{"."},
			Volumes: nil,
		},
		Viewer: ViewerConfig{
			Width:          1280,
			Height:         720,
			DetailDistance: 0,
		},
		Logging: LoggingConfig{
			Level:   "info",
			LogFile: "",
		},
	}
}
