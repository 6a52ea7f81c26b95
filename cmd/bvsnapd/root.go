package main

import (
	"fmt"
	"strings"

	"github.com/arkade-os/bvsnap/internal/config"
	"github.com/spf13/viper"
	"github.com/urfave/cli/v2"
)

// EnvReplacer replaces `-` to `_`.
// This is used to map flag like `--my-param` to environment variables like `MY_PARAM`.
var envReplacer = strings.NewReplacer("-", "_")

func init() {
	viper.SetEnvPrefix("BVSNAP")
	viper.AutomaticEnv()
	viper.SetEnvKeyReplacer(envReplacer)
}

// loadConfigFile fills the global flags that are set neither on the command
// line nor via env var with the values of the given config file.
func loadConfigFile(c *cli.Context) error {
	path := c.String(configFileFlagName)
	if path == "" {
		return nil
	}

	viper.SetConfigFile(path)
	if err := viper.ReadInConfig(); err != nil {
		return fmt.Errorf("failed to read config file: %s", err)
	}

	for _, flag := range config.Flags {
		name := flag.Names()[0]
		if c.IsSet(name) || !viper.InConfig(name) {
			continue
		}

		value := viper.GetString(name)
		if _, ok := flag.(*cli.StringSliceFlag); ok {
			value = strings.Join(viper.GetStringSlice(name), ",")
		}
		if err := c.Set(name, value); err != nil {
			return fmt.Errorf("invalid value for %s in config file: %s", name, err)
		}
	}
	return nil
}
