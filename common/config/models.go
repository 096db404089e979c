package config

type GeneralConfig struct {
	LogDirectory string `yaml:"logDirectory"`
	LogColors    bool   `yaml:"logColors"`
	JsonLogs     bool   `yaml:"jsonLogs"`
	LogLevel     string `yaml:"logLevel"`
}

type BackendConfig struct {
	Type    string            `yaml:"type"`
	Enabled bool              `yaml:"enabled"`
	Options map[string]string `yaml:"opts,flow"`
}

type FolderCacheConfig struct {
	FilePath    string `yaml:"filePath"`
	ExpiryHours int    `yaml:"expiryHours"`
}

type UploadsConfig struct {
	NumWorkers           int   `yaml:"numWorkers"`
	StallTimeoutSeconds  int   `yaml:"stallTimeoutSeconds"`
	SampleIntervalMillis int   `yaml:"sampleIntervalMillis"`
	MaxSizeBytes         int64 `yaml:"maxBytes"`
}

type TimeoutsConfig struct {
	ConnectSeconds int `yaml:"connect"`
	RemoteSeconds  int `yaml:"remote"`
}

type MetricsConfig struct {
	Enabled     bool   `yaml:"enabled"`
	BindAddress string `yaml:"bindAddress"`
	Port        int    `yaml:"port"`
}

type SentryConfig struct {
	Enabled bool   `yaml:"enabled"`
	Dsn     string `yaml:"dsn"`
	Debug   bool   `yaml:"debug"`
}
