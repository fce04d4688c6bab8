package appconfig

import (
	"os"
	"path/filepath"
)

// Config is the top-level sandrun configuration.
type Config struct {
	ConfigVersion int              `mapstructure:"config_version" yaml:"config_version"`
	Runtime       string           `mapstructure:"runtime" yaml:"runtime"`
	Docker        DockerConfig     `mapstructure:"docker" yaml:"docker"`
	Containerd    ContainerdConfig `mapstructure:"containerd" yaml:"containerd"`
}

// CurrentConfigVersion marks the supported config version.
const CurrentConfigVersion = 1

// DockerConfig configures the Docker Engine endpoint. An empty address
// falls back to DOCKER_HOST and the standard socket paths.
type DockerConfig struct {
	Address string `mapstructure:"address" yaml:"address"`
}

// ContainerdConfig configures the containerd endpoint.
type ContainerdConfig struct {
	Address   string `mapstructure:"address" yaml:"address"`
	Namespace string `mapstructure:"namespace" yaml:"namespace"`
}

// DefaultConfig returns a config with sensible defaults.
func DefaultConfig() Config {
	return Config{
		ConfigVersion: CurrentConfigVersion,
		Runtime:       "docker",
		Containerd: ContainerdConfig{
			Namespace: "sandrun",
		},
	}
}

// DefaultConfigPath returns the per-user config file location.
func DefaultConfigPath() (string, error) {
	base, err := os.UserConfigDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(base, "sandrun", "config.yaml"), nil
}
