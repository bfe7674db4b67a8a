package config

import (
	"os"
	"strings"

	"github.com/m-mizutani/goerr/v2"
	"github.com/spf13/viper"
)

// EnvPrefix is the prefix of environment overrides, e.g. NUTRIBOT_GEMINI_API_KEY.
const EnvPrefix = "NUTRIBOT"

// LoadConfig loads and validates configuration from:
// 1. Default values
// 2. the YAML file at path, when it exists
// 3. NUTRIBOT_* environment variables
func LoadConfig(path string) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		if _, err := os.Stat(path); err == nil {
			v.SetConfigFile(path)
			if err := v.ReadInConfig(); err != nil {
				return nil, goerr.Wrap(err, "failed to read config file", goerr.V("path", path))
			}
		} else if !os.IsNotExist(err) {
			return nil, goerr.Wrap(err, "failed to stat config file", goerr.V("path", path))
		}
		// A missing file is fine, defaults and env apply.
	}

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, goerr.Wrap(err, "failed to parse config")
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}
