package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/JobDoesburg/landolfio-backend/config"
	"github.com/JobDoesburg/landolfio-backend/models"
	"github.com/JobDoesburg/landolfio-backend/moneybird"
	"github.com/JobDoesburg/landolfio-backend/utils"
)

func main() {
	full := flag.Bool("full", false, "Run a full pass over every resource type instead of an incremental one")
	migrate := flag.Bool("migrate", false, "Run schema migrations before syncing")
	timeout := flag.Duration("timeout", 30*time.Minute, "Abort the run after this long")
	flag.Parse()

	logger := config.GetLogger()

	settings, err := config.GetMoneybirdSettings()
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}

	config.ConnectDatabaseWithRetry()
	if config.GetDB() == nil {
		fmt.Fprintln(os.Stderr, "database not initialized")
		os.Exit(1)
	}
	config.ConnectRedisWithRetry()

	if *migrate {
		models.MigrateTable()
	}

	registry := moneybird.NewDefaultRegistry()
	client := moneybird.NewClient(settings)
	resolver := moneybird.NewResolver(registry, client, logger)
	engine := moneybird.NewEngine(resolver, settings, logger)

	ctx, cancel := context.WithTimeout(context.Background(), *timeout)
	defer cancel()

	run, err := engine.PerformSync(ctx, moneybird.SyncOptions{
		Full:        *full,
		TriggeredBy: models.SyncTriggeredManual,
	})
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	if run == nil {
		fmt.Fprintln(os.Stderr, "another sync is already running")
		os.Exit(1)
	}

	var stats map[string]int
	if len(run.StatsJSON) > 0 {
		_ = utils.UnmarshalFromJSON(run.StatsJSON, &stats)
	}
	for entityType, count := range stats {
		fmt.Printf("%s: %d\n", entityType, count)
	}
	fmt.Printf("run %d finished with status %s (%d records, %d errors)\n",
		run.ID, run.Status, run.RecordsSynced, run.ErrorCount)

	if run.ErrorCount > 0 {
		errs, listErr := models.ListSyncErrors(ctx, run.ID)
		if listErr == nil {
			for _, syncErr := range errs {
				ref := syncErr.EntityType
				if syncErr.RemoteId != "" {
					ref += "/" + syncErr.RemoteId
				}
				fmt.Fprintf(os.Stderr, "%s: %s: %s\n", ref, syncErr.ErrorCode, syncErr.Message)
			}
		}
	}

	if !strings.EqualFold(run.Status, models.SyncRunStatusSuccess) {
		os.Exit(1)
	}
}
