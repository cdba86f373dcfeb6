package config

const (
	defaultConfigPath     = "~/.config/spikecurate/config.toml"
	defaultBaseDir        = "~/.local/share/spikecurate"
	baseDirEnv            = "SPIKECURATE_BASE_DIR"
	defaultToolkitBinary  = "si-bridge"
	defaultToolkitTimeout = 3600
	defaultWaveformParams = "default"
	defaultMetricParams   = "franklab_default"
	defaultAutoParams     = "default"
	defaultRounds         = 1
	defaultLogFormat      = "console"
	defaultLogLevel       = "info"
)

// Default returns a Config populated with repository defaults. Directory
// fields are left blank so normalization can derive them from the base
// directory.
func Default() Config {
	return Config{
		Toolkit: Toolkit{
			Binary:         defaultToolkitBinary,
			TimeoutSeconds: defaultToolkitTimeout,
		},
		Curation: Curation{
			ApplyMerges:    true,
			WaveformParams: defaultWaveformParams,
			MetricParams:   defaultMetricParams,
			AutoParams:     defaultAutoParams,
			Rounds:         defaultRounds,
		},
		Logging: Logging{
			Format: defaultLogFormat,
			Level:  defaultLogLevel,
		},
	}
}
