package config

import (
	"fmt"
	"os"
	"sync"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
	"gopkg.in/yaml.v2"
)

var Path = "apkdrop.yaml"

var instance *UploaderConfig
var singletonLock = &sync.Once{}

type UploaderConfig struct {
	General     GeneralConfig     `yaml:"general"`
	Backends    []BackendConfig   `yaml:"backends"`
	FolderCache FolderCacheConfig `yaml:"folderCache"`
	Uploads     UploadsConfig     `yaml:"uploads"`
	Timeouts    TimeoutsConfig    `yaml:"timeouts"`
	Metrics     MetricsConfig     `yaml:"metrics"`
	Sentry      SentryConfig      `yaml:"sentry"`
}

func reloadConfig() (*UploaderConfig, error) {
	c := NewDefaultConfig()

	// Write a default config if the one given doesn't exist
	_, err := os.Stat(Path)
	exists := err == nil || !os.IsNotExist(err)
	if !exists {
		fmt.Println("Generating new configuration...")
		configBytes, err := yaml.Marshal(c)
		if err != nil {
			return nil, err
		}

		newFile, err := os.Create(Path)
		if err != nil {
			return nil, err
		}

		_, err = newFile.Write(configBytes)
		if err != nil {
			return nil, err
		}

		err = newFile.Close()
		if err != nil {
			return nil, err
		}
	}

	buffer, err := os.ReadFile(Path)
	if err != nil {
		return nil, errors.Wrap(err, "couldn't read "+Path)
	}
	err = yaml.Unmarshal(buffer, &c)
	if err != nil {
		return nil, errors.Wrap(err, "invalid yaml in "+Path)
	}

	return c, nil
}

func Get() *UploaderConfig {
	if instance == nil {
		singletonLock.Do(func() {
			c, err := reloadConfig()
			if err != nil {
				logrus.Fatal(err)
			}
			instance = c
		})
	}
	return instance
}

// Backend returns the block for a backend type, enabled or not.
func (c *UploaderConfig) Backend(backendType string) (BackendConfig, bool) {
	for _, b := range c.Backends {
		if b.Type == backendType {
			return b, true
		}
	}
	return BackendConfig{}, false
}

func (c *UploaderConfig) EnabledBackends() []BackendConfig {
	enabled := make([]BackendConfig, 0)
	for _, b := range c.Backends {
		if b.Enabled {
			enabled = append(enabled, b)
		}
	}
	return enabled
}

func PrintBackendInfo() {
	logrus.Info("Backends:")
	for _, b := range Get().Backends {
		state := "disabled"
		if b.Enabled {
			state = "enabled"
		}
		logrus.Info(fmt.Sprintf(" - %s (%s)", b.Type, state))
	}
}
