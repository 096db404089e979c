package config

func NewDefaultConfig() *UploaderConfig {
	return &UploaderConfig{
		General: GeneralConfig{
			LogDirectory: "logs",
			LogColors:    false,
			JsonLogs:     false,
			LogLevel:     "info",
		},
		Backends: []BackendConfig{
			{
				Type:    "gofile",
				Enabled: true,
				Options: map[string]string{
					"apiToken":  "",
					"accountId": "",
					"region":    "auto",
				},
			},
			{
				Type:    "pixeldrain",
				Enabled: false,
				Options: map[string]string{
					"apiKey": "",
				},
			},
			{
				Type:    "buzzheavier",
				Enabled: false,
				Options: map[string]string{
					"accountId":  "",
					"locationId": "",
				},
			},
		},
		FolderCache: FolderCacheConfig{
			FilePath:    "folder_structure_cache.json",
			ExpiryHours: 24,
		},
		Uploads: UploadsConfig{
			NumWorkers:           12,
			StallTimeoutSeconds:  120,
			SampleIntervalMillis: 500,
			MaxSizeBytes:         0, // no limit
		},
		Timeouts: TimeoutsConfig{
			ConnectSeconds: 10,
			RemoteSeconds:  30,
		},
		Metrics: MetricsConfig{
			Enabled:     false,
			BindAddress: "127.0.0.1",
			Port:        9765,
		},
		Sentry: SentryConfig{
			Enabled: false,
			Dsn:     "",
			Debug:   false,
		},
	}
}
