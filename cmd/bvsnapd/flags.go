package main

import (
	"github.com/urfave/cli/v2"
)

const (
	configFileFlagName    = "config"
	formatFlagName        = "format"
	noBigVectorsFlagName  = "no-bigvectors"
	handleFlagName        = "handle"
	checkpointFlagName    = "checkpoint"
	ownerFlagName         = "owner"
	poolFlagName          = "pool-name"
	bidsFlagName          = "bids"
	asksFlagName          = "asks"
	depthFlagName         = "depth"
	jsonFlagName          = "json"
	itemsFlagName         = "items"
	baseDecimalsFlagName  = "base-decimals"
	quoteDecimalsFlagName = "quote-decimals"
)

var (
	configFileFlag = &cli.StringFlag{
		Name:    configFileFlagName,
		Usage:   "yaml, toml or json file with values for the global flags",
		EnvVars: []string{"BVSNAP_CONFIG"},
	}
	formatFlag = &cli.StringFlag{
		Name:  formatFlagName,
		Usage: "export format (auto, json, jsonl)",
		Value: "auto",
	}
	noBigVectorsFlag = &cli.BoolFlag{
		Name:  noBigVectorsFlagName,
		Usage: "don't synthesize root records for embedded bigvectors",
	}
	handleFlag = &cli.StringFlag{
		Name:     handleFlagName,
		Usage:    "object id of the bigvector to reconstruct",
		Required: true,
	}
	checkpointFlag = &cli.Uint64Flag{
		Name:  checkpointFlagName,
		Usage: "target checkpoint, the latest one in store if unset",
	}
	ownerFlag = &cli.StringFlag{
		Name:  ownerFlagName,
		Usage: "restrict stats to the records owned by the given object",
	}
	poolFlag = &cli.StringFlag{
		Name:  poolFlagName,
		Usage: "name of the pool to build the book of",
	}
	bidsFlag = &cli.StringFlag{
		Name:  bidsFlagName,
		Usage: "bids bigvector handle, alternative to --pool-name",
	}
	asksFlag = &cli.StringFlag{
		Name:  asksFlagName,
		Usage: "asks bigvector handle, alternative to --pool-name",
	}
	baseDecimalsFlag = &cli.UintFlag{
		Name:  baseDecimalsFlagName,
		Usage: "base asset decimals when using --bids and --asks",
		Value: 9,
	}
	quoteDecimalsFlag = &cli.UintFlag{
		Name:  quoteDecimalsFlagName,
		Usage: "quote asset decimals when using --bids and --asks",
		Value: 6,
	}
	depthFlag = &cli.IntFlag{
		Name:  depthFlagName,
		Usage: "number of price levels to print per side",
		Value: 10,
	}
	jsonFlag = &cli.BoolFlag{
		Name:  jsonFlagName,
		Usage: "print the result as json",
	}
	itemsFlag = &cli.BoolFlag{
		Name:  itemsFlagName,
		Usage: "print the reconstructed items along with the report",
	}
)
