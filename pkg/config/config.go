// Package config handles loading the scheme and storage configuration
// from YAML files, environment variables and command-line flags.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/adrg/xdg"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"

	"github.com/CliForge/authflow/pkg/scheme"
	"github.com/CliForge/authflow/pkg/storage"
)

// Config is the on-disk configuration of an authflow application.
type Config struct {
	// Scheme configures the token lifecycle.
	Scheme scheme.Config `yaml:"scheme" json:"scheme"`
	// Storage configures the credential storage backend.
	Storage storage.Config `yaml:"storage" json:"storage"`
}

// Loader loads configuration for a named application.
// Priority: ENV > flags > user config file > defaults.
type Loader struct {
	appName   string
	envPrefix string
	v         *viper.Viper
}

// NewLoader creates a configuration loader for the given application name.
func NewLoader(appName string) *Loader {
	v := viper.New()
	envPrefix := strings.ToUpper(strings.ReplaceAll(appName, "-", "_"))
	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	return &Loader{
		appName:   appName,
		envPrefix: envPrefix,
		v:         v,
	}
}

// BindFlags registers the flag set so flag values participate in override
// resolution.
func (l *Loader) BindFlags(fs *pflag.FlagSet) error {
	return l.v.BindPFlags(fs)
}

// Load reads the configuration file (an explicit path, or the default
// XDG location when path is empty), then applies environment and flag
// overrides. A missing default file yields a default configuration.
func (l *Loader) Load(path string) (*Config, error) {
	config := &Config{
		Scheme:  *scheme.DefaultConfig(),
		Storage: storage.Config{Type: storage.TypeFile},
	}

	explicit := path != ""
	if path == "" {
		path = filepath.Join(xdg.ConfigHome, l.appName, "config.yaml")
	}

	data, err := os.ReadFile(path)
	switch {
	case os.IsNotExist(err) && !explicit:
		// User config is optional
	case err != nil:
		return nil, fmt.Errorf("failed to read config file: %w", err)
	default:
		if err := yaml.Unmarshal(data, config); err != nil {
			return nil, fmt.Errorf("failed to parse config file: %w", err)
		}
	}

	l.applyOverrides(config)

	if err := config.Scheme.Validate(); err != nil {
		return nil, fmt.Errorf("invalid scheme config: %w", err)
	}

	return config, nil
}

// applyOverrides applies the environment/flag values viper resolved for
// the keys that commonly vary between environments.
func (l *Loader) applyOverrides(config *Config) {
	if v := l.v.GetString("storage.type"); v != "" {
		config.Storage.Type = storage.Type(v)
	}
	if v := l.v.GetString("storage.path"); v != "" {
		config.Storage.Path = v
	}
	if v := l.v.GetString("storage.redis.addr"); v != "" {
		if config.Storage.Redis == nil {
			config.Storage.Redis = &storage.RedisConfig{}
		}
		config.Storage.Redis.Addr = v
	}
	if v := l.v.GetString("storage.redis.password"); v != "" {
		if config.Storage.Redis == nil {
			config.Storage.Redis = &storage.RedisConfig{}
		}
		config.Storage.Redis.Password = v
	}
	if v := l.v.GetString("scheme.endpoints.refresh.url"); v != "" {
		config.Scheme.Endpoints.Refresh = &scheme.Endpoint{URL: v}
	}
	if v := l.v.GetString("scheme.endpoints.login.url"); v != "" {
		config.Scheme.Endpoints.Login = &scheme.Endpoint{URL: v}
	}
	if v := l.v.GetString("scheme.endpoints.logout.url"); v != "" {
		config.Scheme.Endpoints.Logout = &scheme.Endpoint{URL: v}
	}
	if v := l.v.GetString("scheme.endpoints.user.url"); v != "" {
		config.Scheme.Endpoints.User = &scheme.Endpoint{URL: v}
	}
}
