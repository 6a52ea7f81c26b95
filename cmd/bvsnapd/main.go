package main

import (
	"fmt"
	"os"

	"github.com/arkade-os/bvsnap/internal/config"
	log "github.com/sirupsen/logrus"
	"github.com/urfave/cli/v2"
)

// Version will be set during build time
var Version string

func main() {
	app := cli.NewApp()
	app.Version = Version
	app.Name = "bvsnapd"
	app.Usage = "point-in-time reconstruction of Sui BigVectors and DeepBook order books"
	app.Flags = append([]cli.Flag{configFileFlag}, config.Flags...)
	app.Before = func(c *cli.Context) error {
		if err := loadConfigFile(c); err != nil {
			return err
		}
		log.SetLevel(log.Level(c.Int(config.LogLevel.Name)))
		return nil
	}
	app.Commands = append(
		app.Commands,
		&importCmd,
		&reconstructCmd,
		&bookCmd,
		&statsCmd,
		&watchCmd,
	)

	if err := app.Run(os.Args); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func loadConfig(c *cli.Context) (*config.Config, error) {
	cfg, err := config.LoadConfig(c)
	if err != nil {
		return nil, fmt.Errorf("invalid config: %s", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %s", err)
	}
	log.Debugf("bvsnapd config: %s", cfg)
	return cfg, nil
}
