package main

import (
	"encoding/json"
	"fmt"
	"sort"
	"strings"

	"github.com/arkade-os/bvsnap/internal/core/application"
	"github.com/arkade-os/bvsnap/internal/core/domain"
	"github.com/arkade-os/bvsnap/internal/infrastructure/export"
	"github.com/fatih/color"
)

var (
	bidColor     = color.New(color.FgGreen)
	askColor     = color.New(color.FgRed)
	headerColor  = color.New(color.Bold)
	warningColor = color.New(color.FgYellow)
)

func printImportStats(stats *export.Stats) error {
	headerColor.Println("import completed")
	fmt.Printf("   records: %d\n", stats.TotalRecords)
	fmt.Printf("   bigvectors: %d\n", stats.BigVectors)
	fmt.Printf("   max checkpoint: %d\n", stats.MaxCheckpoint)
	fmt.Printf("   max version: %d\n", stats.MaxVersion)

	owners := make([]string, 0, len(stats.RecordsByOwner))
	for owner := range stats.RecordsByOwner {
		owners = append(owners, owner)
	}
	sort.Strings(owners)
	for _, owner := range owners {
		fmt.Printf("   %s: %d records\n", owner, stats.RecordsByOwner[owner])
	}
	return nil
}

func printStoreStats(stats *domain.ObjectStats) {
	headerColor.Println("object store")
	fmt.Printf("   records: %d\n", stats.TotalRecords)
	fmt.Printf("   objects: %d\n", stats.TotalObjects)
	fmt.Printf("   max checkpoint: %d\n", stats.MaxCheckpoint)
	fmt.Printf("   max version: %d\n", stats.MaxVersion)
}

func printReconstruction(result *application.Result[json.RawMessage], withItems bool) {
	headerColor.Printf("bigvector %s\n", result.Handle)
	fmt.Printf("   length: %d\n", result.Meta.Length)
	fmt.Printf("   depth: %d\n", result.Meta.Depth)
	fmt.Printf("   items: %d\n", len(result.Items))
	printReport("", result.Report)

	if withItems {
		for i, item := range result.Items {
			fmt.Printf("%d: %s\n", i, item)
		}
	}
}

func printReport(prefix string, report domain.ReconstructionReport) {
	status := report.Status.String()
	if report.IsComplete() {
		status = color.GreenString(status)
	} else {
		status = warningColor.Sprint(status)
	}
	fmt.Printf("   %sstatus: %s\n", prefix, status)
	fmt.Printf("   %scheckpoint: %d\n", prefix, report.TargetCheckpoint)
	fmt.Printf("   %sresolved nodes: %d\n", prefix, report.ResolvedNodes)
	if report.MaxNodeStaleness > 0 {
		fmt.Printf("   %smax node staleness: %d\n", prefix, report.MaxNodeStaleness)
	}
	if len(report.MissingKeys) > 0 {
		keys := make([]string, 0, len(report.MissingKeys))
		for _, key := range report.MissingKeys {
			reason := report.Misses[key]
			keys = append(keys, fmt.Sprintf("%d(%s)", key, reason))
		}
		warningColor.Printf("   %smissing: %s\n", prefix, strings.Join(keys, " "))
	}
	for _, finding := range report.Findings {
		c := warningColor
		if finding.Kind.IsFatal() {
			c = askColor
		}
		c.Printf("   %s%s key=%d %s\n", prefix, finding.Kind, finding.Key, finding.Detail)
	}
}

func printBook(pool application.Pool, book *application.OrderBook, depth int) {
	divisor := book.PriceDivisor()
	headerColor.Printf("%s @ checkpoint %d\n", pool.Name, book.Checkpoint)

	asks := book.Asks
	if depth > 0 && len(asks) > depth {
		asks = asks[:depth]
	}
	// Best ask right above the spread.
	for i := len(asks) - 1; i >= 0; i-- {
		askColor.Printf("   %16.6f  %20d  (%d)\n",
			float64(asks[i].Price)/divisor, asks[i].TotalQuantity, asks[i].OrderCount)
	}

	if mid, ok := book.MidPrice(); ok {
		spread := ""
		if bps, ok := book.SpreadBps(); ok {
			spread = fmt.Sprintf("  spread %d bps", bps)
		}
		fmt.Printf("   --- mid %.6f%s ---\n", mid, spread)
	} else {
		fmt.Println("   ---")
	}

	bids := book.Bids
	if depth > 0 && len(bids) > depth {
		bids = bids[:depth]
	}
	for _, level := range bids {
		bidColor.Printf("   %16.6f  %20d  (%d)\n",
			float64(level.Price)/divisor, level.TotalQuantity, level.OrderCount)
	}

	if !book.IsComplete() {
		printReport("bids ", book.BidsReport)
		printReport("asks ", book.AsksReport)
	}
}
