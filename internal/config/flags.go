package config

import "flag"

var (
	flagConfig  = flag.String("config", "", "Path to config file")
	flagDebug   = flag.Bool("debug", false, "Enable debug logging")
	flagLogFile = flag.String("logfile", "", "Write logs to a file")
	flagPath    = flag.String("path", "", "Extra loose data directory")
	flagVolume  = flag.String("vol", "", "Extra volume archive")
)

// ParseFlags parses command-line flags. Call this early in main().
func ParseFlags() {
	flag.Parse()
}

// ConfigPath returns the explicit config path if provided via --config flag.
func ConfigPath() string {
	return *flagConfig
}

// applyFlags applies CLI flag overrides to the config.
func applyFlags(cfg *Config) {
	if *flagDebug {
		cfg.Logging.Level = "debug"
	}
	if *flagLogFile != "" {
		cfg.Logging.LogFile = *flagLogFile
	}
	if *flagPath != "" {
		cfg.Data.Paths = append(cfg.Data.Paths, *flagPath)
	}
	if *flagVolume != "" {
		cfg.Data.Volumes = append(cfg.Data.Volumes, *flagVolume)
	}
}
