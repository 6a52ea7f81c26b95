package main

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/arkade-os/bvsnap/internal/config"
	"github.com/arkade-os/bvsnap/internal/infrastructure/export"
	"github.com/stretchr/testify/require"
	"github.com/urfave/cli/v2"
)

func TestParseFormat(t *testing.T) {
	for input, expected := range map[string]export.Format{
		"":       export.FormatAuto,
		"auto":   export.FormatAuto,
		"json":   export.FormatJSON,
		"jsonl":  export.FormatJSONL,
		"ndjson": export.FormatJSONL,
	} {
		format, err := parseFormat(input)
		require.NoError(t, err)
		require.Equal(t, expected, format)
	}

	_, err := parseFormat("csv")
	require.Error(t, err)
}

func TestLoadConfigFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "bvsnap.yaml")
	content := `db-type: sqlite
concurrency: 3
pool:
  - sui_usdc
  - deep_usdc
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))

	var (
		dbType      string
		concurrency int
		pools       []string
	)
	app := cli.NewApp()
	app.Flags = append([]cli.Flag{configFileFlag}, config.Flags...)
	app.Before = loadConfigFile
	app.Action = func(c *cli.Context) error {
		dbType = c.String(config.DbType.Name)
		concurrency = c.Int(config.Concurrency.Name)
		pools = c.StringSlice(config.Pools.Name)
		return nil
	}

	err := app.Run([]string{
		"bvsnapd", "--config", path, "--concurrency", "5", "--datadir", dir,
	})
	require.NoError(t, err)
	require.Equal(t, "sqlite", dbType)
	// Command line wins over the config file.
	require.Equal(t, 5, concurrency)
	require.Equal(t, []string{"sui_usdc", "deep_usdc"}, pools)
}
