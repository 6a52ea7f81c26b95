package config

import (
	"fmt"
	"os"
	"sort"
	"strings"

	"github.com/arkade-os/bvsnap/internal/core/application"
	"github.com/arkade-os/bvsnap/internal/core/domain"
	"github.com/goccy/go-yaml"
)

// poolPresets are the DeepBook v3 mainnet pools known out of the box.
var poolPresets = map[string]poolConfig{
	"sui_usdc": {
		Name:          "sui_usdc",
		Bids:          "0x090a8eae3204c76e36eebf3440cbde577e062953391760c37c363530fc1de246",
		Asks:          "0x5f8f0e3a2728a161e529ecacdfdface88b2fa669279aa699afd5d6b462c68466",
		BaseDecimals:  9,
		QuoteDecimals: 6,
	},
	"wal_usdc": {
		Name:          "wal_usdc",
		Bids:          "0x82ee32196ab12750268815e005fae4c4db23a4272e52610c0c25a8288f05515a",
		Asks:          "0x1bf5e16fcfb6c4d293c550bc1333ec7a6ed8323a929bb2db477f63ff0e9b6a4c",
		BaseDecimals:  9,
		QuoteDecimals: 6,
	},
	"deep_usdc": {
		Name:          "deep_usdc",
		Bids:          "0xd1fcd1d0a554150fa097508eabcd76f6dbb0d2ce4fdfeffb2f6a4469ac81fd42",
		Asks:          "0x0f9d6fc9de7a0ee0dd98f7326619cd5ff74cc0bc6485cce80014f766e437c4ae",
		BaseDecimals:  6,
		QuoteDecimals: 6,
	},
}

type poolConfig struct {
	Name          string `yaml:"name"`
	Bids          string `yaml:"bids"`
	Asks          string `yaml:"asks"`
	BaseDecimals  uint8  `yaml:"base_decimals"`
	QuoteDecimals uint8  `yaml:"quote_decimals"`
}

type poolsFile struct {
	Pools []poolConfig `yaml:"pools"`
}

func (p poolConfig) toPool() (application.Pool, error) {
	if p.Name == "" {
		return application.Pool{}, fmt.Errorf("missing pool name")
	}
	bids, err := domain.ParseObjectID(p.Bids)
	if err != nil {
		return application.Pool{}, fmt.Errorf("invalid bids handle for pool %s: %s", p.Name, err)
	}
	asks, err := domain.ParseObjectID(p.Asks)
	if err != nil {
		return application.Pool{}, fmt.Errorf("invalid asks handle for pool %s: %s", p.Name, err)
	}
	return application.Pool{
		Name:          p.Name,
		Bids:          bids,
		Asks:          asks,
		BaseDecimals:  p.BaseDecimals,
		QuoteDecimals: p.QuoteDecimals,
	}, nil
}

// loadPools returns the known pools, the built-in presets overridden by the
// ones defined in the given yaml file, if any.
func loadPools(path string) (map[string]application.Pool, error) {
	configs := make(map[string]poolConfig, len(poolPresets))
	for name, preset := range poolPresets {
		configs[name] = preset
	}

	if path != "" {
		buf, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read pools file: %s", err)
		}
		extra, err := parsePools(buf)
		if err != nil {
			return nil, err
		}
		for _, cfg := range extra {
			configs[cfg.Name] = cfg
		}
	}

	pools := make(map[string]application.Pool, len(configs))
	for name, cfg := range configs {
		pool, err := cfg.toPool()
		if err != nil {
			return nil, err
		}
		pools[name] = pool
	}
	return pools, nil
}

func parsePools(buf []byte) ([]poolConfig, error) {
	var file poolsFile
	if err := yaml.UnmarshalWithOptions(buf, &file, yaml.Strict()); err != nil {
		return nil, fmt.Errorf("invalid pools file: %s", err)
	}
	for i, cfg := range file.Pools {
		if cfg.Name == "" {
			return nil, fmt.Errorf("invalid pools file: pool %d has no name", i)
		}
	}
	return file.Pools, nil
}

// selectPools returns the pools with the given names, or all of them sorted
// by name if none is given.
func selectPools(pools map[string]application.Pool, names []string) ([]application.Pool, error) {
	if len(names) == 0 {
		all := make([]application.Pool, 0, len(pools))
		for _, pool := range pools {
			all = append(all, pool)
		}
		sort.Slice(all, func(i, j int) bool { return all[i].Name < all[j].Name })
		return all, nil
	}

	selected := make([]application.Pool, 0, len(names))
	for _, name := range names {
		pool, ok := pools[strings.TrimSpace(name)]
		if !ok {
			return nil, fmt.Errorf("unknown pool %s, please select one of: %s", name, poolNames(pools))
		}
		selected = append(selected, pool)
	}
	return selected, nil
}

func poolNames(pools map[string]application.Pool) string {
	names := make([]string, 0, len(pools))
	for name := range pools {
		names = append(names, name)
	}
	sort.Strings(names)
	return strings.Join(names, " | ")
}
