package appconfig

import (
	"errors"
	"fmt"
	"io/fs"

	"github.com/spf13/viper"
)

// Load reads configuration from the provided path. If path is empty, uses
// DefaultConfigPath; a missing file yields the defaults.
func Load(path string) (Config, error) {
	if path == "" {
		defaultPath, err := DefaultConfigPath()
		if err != nil {
			return Config{}, err
		}
		path = defaultPath
	}

	cfg := DefaultConfig()

	v := viper.New()
	v.SetConfigFile(path)
	v.SetConfigType("yaml")
	v.SetDefault("config_version", cfg.ConfigVersion)
	v.SetDefault("runtime", cfg.Runtime)
	v.SetDefault("docker.address", cfg.Docker.Address)
	v.SetDefault("containerd.address", cfg.Containerd.Address)
	v.SetDefault("containerd.namespace", cfg.Containerd.Namespace)

	configLoaded := false
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) && !errors.Is(err, fs.ErrNotExist) {
			return Config{}, err
		}
	} else {
		configLoaded = true
	}

	if configLoaded {
		// IsSet is always true here via SetDefault; check the file itself.
		if !v.InConfig("config_version") {
			return Config{}, fmt.Errorf("config_version is required; expected %d", CurrentConfigVersion)
		}
		if v.GetInt("config_version") != CurrentConfigVersion {
			return Config{}, fmt.Errorf("unsupported config_version %d; expected %d", v.GetInt("config_version"), CurrentConfigVersion)
		}
	}

	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, err
	}
	switch cfg.Runtime {
	case "docker", "containerd":
	default:
		return Config{}, fmt.Errorf("unsupported runtime %q", cfg.Runtime)
	}
	if cfg.Runtime == "containerd" && cfg.Containerd.Namespace == "" {
		return Config{}, fmt.Errorf("containerd.namespace is required")
	}
	return cfg, nil
}
