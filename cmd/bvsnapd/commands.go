package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/arkade-os/bvsnap/internal/config"
	"github.com/arkade-os/bvsnap/internal/core/application"
	"github.com/arkade-os/bvsnap/internal/core/domain"
	"github.com/arkade-os/bvsnap/internal/infrastructure/export"
	"github.com/arkade-os/bvsnap/internal/telemetry"
	log "github.com/sirupsen/logrus"
	"github.com/urfave/cli/v2"
)

var (
	importCmd = cli.Command{
		Name:      "import",
		Usage:     "Import one or more JSON/JSONL object exports into the object store",
		ArgsUsage: "<file>...",
		Flags:     []cli.Flag{formatFlag, noBigVectorsFlag},
		Action:    importAction,
	}
	reconstructCmd = cli.Command{
		Name:   "reconstruct",
		Usage:  "Reconstruct a bigvector at a given checkpoint",
		Flags:  []cli.Flag{handleFlag, checkpointFlag, itemsFlag, jsonFlag},
		Action: reconstructAction,
	}
	bookCmd = cli.Command{
		Name:  "book",
		Usage: "Build the order book snapshot of a DeepBook pool at a given checkpoint",
		Flags: []cli.Flag{
			poolFlag, bidsFlag, asksFlag, baseDecimalsFlag, quoteDecimalsFlag,
			checkpointFlag, depthFlag, jsonFlag,
		},
		Action: bookAction,
	}
	statsCmd = cli.Command{
		Name:   "stats",
		Usage:  "Show the content of the object store",
		Flags:  []cli.Flag{ownerFlag, jsonFlag},
		Action: statsAction,
	}
	watchCmd = cli.Command{
		Name:   "watch",
		Usage:  "Snapshot the order books of the configured pools as new checkpoints land",
		Flags:  []cli.Flag{depthFlag, jsonFlag},
		Action: watchAction,
	}
)

func importAction(ctx *cli.Context) error {
	files := ctx.Args().Slice()
	if len(files) <= 0 {
		return fmt.Errorf("missing export file")
	}
	format, err := parseFormat(ctx.String(formatFlagName))
	if err != nil {
		return err
	}

	cfg, err := loadConfig(ctx)
	if err != nil {
		return err
	}
	defer cfg.Close()

	repo, err := cfg.RepoManager()
	if err != nil {
		return err
	}
	importer, err := export.NewImporter(
		repo.Objects(),
		export.WithBatchSize(cfg.ImportBatch),
		export.WithBigVectorExtraction(!ctx.Bool(noBigVectorsFlagName)),
	)
	if err != nil {
		return err
	}

	total := &export.Stats{}
	for _, file := range files {
		stats, err := importFile(ctx.Context, importer, file, format)
		if err != nil {
			return err
		}
		total.Merge(stats)
	}

	return printImportStats(total)
}

func importFile(
	ctx context.Context, importer *export.Importer, path string, format export.Format,
) (*export.Stats, error) {
	if format == export.FormatAuto {
		return importer.ImportFile(ctx, path)
	}

	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open export %s: %s", path, err)
	}
	// nolint:all
	defer f.Close()

	stats, err := importer.Import(ctx, f, format)
	if err != nil {
		return nil, fmt.Errorf("failed to import %s: %w", path, err)
	}
	return stats, nil
}

func reconstructAction(ctx *cli.Context) error {
	handle, err := domain.ParseObjectID(ctx.String(handleFlagName))
	if err != nil {
		return fmt.Errorf("invalid handle: %s", err)
	}

	cfg, err := loadConfig(ctx)
	if err != nil {
		return err
	}
	defer cfg.Close()

	checkpoint, err := targetCheckpoint(ctx, cfg)
	if err != nil {
		return err
	}
	store, err := cfg.ObjectStore()
	if err != nil {
		return err
	}

	result, err := application.Reconstruct(
		ctx.Context, store, handle, checkpoint, application.DecodeRawItem,
		cfg.ReconstructionOptions()...,
	)
	if err != nil {
		return err
	}

	if ctx.Bool(jsonFlagName) {
		out := map[string]any{
			"handle": result.Handle.String(),
			"length": result.Meta.Length,
			"depth":  result.Meta.Depth,
			"report": result.Report,
		}
		if ctx.Bool(itemsFlagName) {
			out["items"] = result.Items
		}
		return printJSON(out)
	}

	printReconstruction(result, ctx.Bool(itemsFlagName))
	return nil
}

func bookAction(ctx *cli.Context) error {
	cfg, err := loadConfig(ctx)
	if err != nil {
		return err
	}
	defer cfg.Close()

	pool, err := bookPool(ctx, cfg)
	if err != nil {
		return err
	}
	checkpoint, err := targetCheckpoint(ctx, cfg)
	if err != nil {
		return err
	}
	books, err := cfg.BookService()
	if err != nil {
		return err
	}

	book, err := books.Snapshot(ctx.Context, pool, checkpoint)
	if err != nil {
		return err
	}

	if ctx.Bool(jsonFlagName) {
		return printJSON(book)
	}
	printBook(pool, book, ctx.Int(depthFlagName))
	return nil
}

func statsAction(ctx *cli.Context) error {
	var owner *domain.ObjectID
	if ownerStr := ctx.String(ownerFlagName); ownerStr != "" {
		id, err := domain.ParseObjectID(ownerStr)
		if err != nil {
			return fmt.Errorf("invalid owner: %s", err)
		}
		owner = &id
	}

	cfg, err := loadConfig(ctx)
	if err != nil {
		return err
	}
	defer cfg.Close()

	repo, err := cfg.RepoManager()
	if err != nil {
		return err
	}
	stats, err := repo.Objects().Stats(ctx.Context, owner)
	if err != nil {
		return err
	}

	if ctx.Bool(jsonFlagName) {
		return printJSON(stats)
	}
	printStoreStats(stats)
	return nil
}

func watchAction(ctx *cli.Context) error {
	cfg, err := loadConfig(ctx)
	if err != nil {
		return err
	}
	defer cfg.Close()

	if cfg.OtelCollectorEndpoint != "" {
		pushInterval := time.Duration(cfg.OtelPushInterval) * time.Second
		otelShutdown, err := telemetry.InitOtelSDK(
			ctx.Context, cfg.OtelCollectorEndpoint, pushInterval,
		)
		if err != nil {
			return err
		}
		log.AddHook(telemetry.NewOTelHook())
		defer func() {
			if err := otelShutdown(context.Background()); err != nil {
				log.Errorf("failed to shutdown otel: %s", err)
			}
		}()
	}

	depth := ctx.Int(depthFlagName)
	asJSON := ctx.Bool(jsonFlagName)
	watcher, err := cfg.Watcher(func(_ context.Context, pool application.Pool, book *application.OrderBook) {
		if asJSON {
			if err := printJSON(map[string]any{"pool": pool.Name, "book": book}); err != nil {
				log.WithError(err).Warn("failed to print snapshot")
			}
			return
		}
		printBook(pool, book, depth)
	})
	if err != nil {
		return err
	}

	log.Info("starting watcher...")
	if err := watcher.Start(); err != nil {
		return fmt.Errorf("failed to start watcher: %s", err)
	}

	sigChan := make(chan os.Signal, 1)
	signal.Notify(
		sigChan, syscall.SIGTERM, syscall.SIGINT, syscall.SIGQUIT, syscall.SIGHUP, os.Interrupt,
	)
	<-sigChan

	log.Info("shutting down watcher...")
	watcher.Stop()
	return nil
}

func targetCheckpoint(ctx *cli.Context, cfg *config.Config) (domain.Checkpoint, error) {
	if ctx.IsSet(checkpointFlagName) {
		return domain.Checkpoint(ctx.Uint64(checkpointFlagName)), nil
	}

	repo, err := cfg.RepoManager()
	if err != nil {
		return 0, err
	}
	checkpoint, err := repo.Objects().LatestCheckpoint(ctx.Context)
	if err != nil {
		return 0, err
	}
	if checkpoint == 0 {
		return 0, fmt.Errorf("object store is empty, import an export first")
	}
	return checkpoint, nil
}

func bookPool(ctx *cli.Context, cfg *config.Config) (application.Pool, error) {
	if name := ctx.String(poolFlagName); name != "" {
		return cfg.Pool(name)
	}

	bidsStr, asksStr := ctx.String(bidsFlagName), ctx.String(asksFlagName)
	if bidsStr == "" || asksStr == "" {
		return application.Pool{}, fmt.Errorf("either --%s or both --%s and --%s are required",
			poolFlagName, bidsFlagName, asksFlagName)
	}
	bids, err := domain.ParseObjectID(bidsStr)
	if err != nil {
		return application.Pool{}, fmt.Errorf("invalid bids handle: %s", err)
	}
	asks, err := domain.ParseObjectID(asksStr)
	if err != nil {
		return application.Pool{}, fmt.Errorf("invalid asks handle: %s", err)
	}
	return application.Pool{
		Name:          "custom",
		Bids:          bids,
		Asks:          asks,
		BaseDecimals:  uint8(ctx.Uint(baseDecimalsFlagName)),
		QuoteDecimals: uint8(ctx.Uint(quoteDecimalsFlagName)),
	}, nil
}

func parseFormat(format string) (export.Format, error) {
	switch format {
	case "", "auto":
		return export.FormatAuto, nil
	case "json":
		return export.FormatJSON, nil
	case "jsonl", "ndjson":
		return export.FormatJSONL, nil
	default:
		return 0, fmt.Errorf("unknown export format %s", format)
	}
}

func printJSON(v any) error {
	buf, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	fmt.Println(string(buf))
	return nil
}
