package config

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/go-viper/mapstructure/v2"
	"github.com/spf13/viper"
)

// EnvPrefix is the prefix for all environment variable overrides.
const EnvPrefix = "GRIDHARVEST"

var (
	configMu  sync.RWMutex
	appConfig *Config
)

// envAliases maps short Workhorse-style env var names onto config paths,
// e.g. GRIDHARVEST_PORT instead of GRIDHARVEST_SERVER_PORT.
var envAliases = map[string]string{
	"server.host":             "GRIDHARVEST_HOST",
	"server.port":             "GRIDHARVEST_PORT",
	"server.read_timeout":     "GRIDHARVEST_READ_TIMEOUT",
	"server.write_timeout":    "GRIDHARVEST_WRITE_TIMEOUT",
	"server.idle_timeout":     "GRIDHARVEST_IDLE_TIMEOUT",
	"server.shutdown_timeout": "GRIDHARVEST_SHUTDOWN_TIMEOUT",
	"logging.level":           "GRIDHARVEST_LOG_LEVEL",
	"logging.profile":         "GRIDHARVEST_LOG_PROFILE",
	"data.dir":                "GRIDHARVEST_DATA_DIR",
	"data.workspace":          "GRIDHARVEST_WORKSPACE",
}

// Load resolves the configuration and caches it for GetConfig.
//
// Optional runtime overrides take precedence over environment variables
// and config files. Load may be called again to reload.
func Load(ctx context.Context, overrides ...map[string]any) (*Config, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	v := viper.New()
	setDefaults(v)

	// Config file is optional.
	v.SetConfigName("gridharvest")
	v.SetConfigType("yaml")
	v.AddConfigPath(defaultDataDir())
	v.AddConfigPath(".")
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("read config file: %w", err)
		}
	}

	// Environment variables: GRIDHARVEST_SERVER_PORT style plus the short
	// aliases above.
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	for path, envVar := range envAliases {
		if err := v.BindEnv(path, envVar); err != nil {
			return nil, fmt.Errorf("bind env %s: %w", envVar, err)
		}
	}

	// Runtime overrides win over everything, including bound env vars.
	// Set places them in viper's explicit layer; MergeConfigMap would
	// merge at config-file precedence, below the environment.
	for _, override := range overrides {
		for key, val := range flattenOverrides("", override) {
			v.Set(key, val)
		}
	}

	cfg := &Config{}
	decodeHook := viper.DecodeHook(mapstructure.ComposeDecodeHookFunc(
		mapstructure.StringToTimeDurationHookFunc(),
		mapstructure.StringToSliceHookFunc(","),
	))
	if err := v.Unmarshal(cfg, decodeHook); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	configMu.Lock()
	appConfig = cfg
	configMu.Unlock()

	return cfg, nil
}

// GetConfig returns the most recently loaded configuration, nil before the
// first Load.
func GetConfig() *Config {
	configMu.RLock()
	defer configMu.RUnlock()
	return appConfig
}

// flattenOverrides converts a nested override map into dotted viper keys,
// e.g. {"server": {"port": 5000}} -> {"server.port": 5000}.
func flattenOverrides(prefix string, m map[string]any) map[string]any {
	flat := map[string]any{}
	for key, val := range m {
		if prefix != "" {
			key = prefix + "." + key
		}
		if nested, ok := val.(map[string]any); ok {
			for k, v := range flattenOverrides(key, nested) {
				flat[k] = v
			}
			continue
		}
		flat[key] = val
	}
	return flat
}

// setDefaults registers built-in defaults on the viper instance.
func setDefaults(v *viper.Viper) {
	// Server defaults
	v.SetDefault("server.host", "localhost")
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.read_timeout", "30s")
	v.SetDefault("server.write_timeout", "30s")
	v.SetDefault("server.idle_timeout", "120s")
	v.SetDefault("server.shutdown_timeout", "10s")

	// Logging defaults
	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.profile", "structured")

	// Data defaults
	v.SetDefault("data.dir", defaultDataDir())
	v.SetDefault("data.workspace", "")
}
