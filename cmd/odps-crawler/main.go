package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/pterm/pterm"

	"github.com/hyz2023/odps-crawler/internal/checkpoint"
	"github.com/hyz2023/odps-crawler/internal/config"
	"github.com/hyz2023/odps-crawler/internal/crawler"
	"github.com/hyz2023/odps-crawler/internal/logging"
	"github.com/hyz2023/odps-crawler/internal/metrics"
	"github.com/hyz2023/odps-crawler/internal/progress"
	"github.com/hyz2023/odps-crawler/internal/storage"
	"github.com/hyz2023/odps-crawler/internal/warehouse/maxcompute"
)

func main() {
	os.Exit(run())
}

func run() int {
	args := ParseArgs()

	cfg, err := config.Load(args.Config)
	if err != nil {
		pterm.Error.Printfln("config: %v", err)
		return 1
	}
	if args.Output != "" {
		cfg.Storage.Backend = "local"
		cfg.Storage.LocalDir = args.Output
	}
	if args.Concurrency > 0 {
		cfg.Crawl.Concurrency = args.Concurrency
	}
	if args.Verbose {
		cfg.Logging.Level = "debug"
	}

	logging.Setup(logging.Config{Format: cfg.Logging.Format, Level: cfg.Logging.Level})
	log := logging.Component("main")
	log.Info("odps-crawler starting", "version", Version, "project", cfg.Warehouse.Project)

	if cfg.Metrics.Enabled {
		metrics.Init("odps_crawler")
		go func() {
			if err := metrics.StartServer(cfg.Metrics.Address); err != nil {
				log.Error("metrics server failed", "error", err)
			}
		}()
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Graceful shutdown: first signal flushes a checkpoint and exits.
	go func() {
		ch := make(chan os.Signal, 1)
		signal.Notify(ch, syscall.SIGINT, syscall.SIGTERM)
		sig := <-ch
		log.Warn("received signal, stopping after checkpoint", "signal", sig.String())
		cancel()
	}()

	client, err := maxcompute.Open(ctx, maxcompute.Config{
		Endpoint:        cfg.Warehouse.Endpoint,
		Project:         cfg.Warehouse.Project,
		AccessKeyID:     cfg.Warehouse.AccessKeyID,
		AccessKeySecret: cfg.Warehouse.AccessKeySecret,
		FetchTimeout:    cfg.Warehouse.FetchTimeout.Std(),
		MaxConns:        cfg.Warehouse.MaxConns,
	})
	if err != nil {
		log.Error("warehouse connection failed", "error", err)
		return 1
	}
	defer client.Close()

	store, err := storage.Open(ctx, storage.Config{
		Backend:    cfg.Storage.Backend,
		LocalDir:   cfg.Storage.LocalDir,
		S3Bucket:   cfg.Storage.S3Bucket,
		S3Endpoint: cfg.Storage.S3Endpoint,
		S3Region:   cfg.Storage.S3Region,
		GCSBucket:  cfg.Storage.GCSBucket,
		Prefix:     cfg.Storage.Prefix,
		Compress:   cfg.Storage.Compress,
		Parquet:    cfg.Storage.Parquet,
	})
	if err != nil {
		log.Error("storage setup failed", "error", err)
		return 1
	}
	defer store.Close()

	ckpt, err := checkpoint.NewManager(checkpoint.Config{
		Enabled: cfg.Checkpoint.Enabled,
		Dir:     cfg.Checkpoint.Dir,
	})
	if err != nil {
		log.Error("checkpoint setup failed", "error", err)
		return 1
	}

	tracker := progress.NewTracker(cfg.Progress.Interval.Std(), progress.Multi(
		progress.SlogEmitter(logging.Component("progress")),
		progress.TermEmitter(),
		func(st progress.Status) {
			if m := metrics.Get(); m != nil {
				m.SetTablesPerMinute(st.PerMinute)
			}
		},
	))

	session := crawler.NewSession(client, store, ckpt, tracker, crawler.Options{
		Project:         cfg.Warehouse.Project,
		Full:            args.Full,
		SkipPartitions:  args.SkipPartitions,
		Concurrency:     cfg.Crawl.Concurrency,
		CheckpointEvery: cfg.Checkpoint.Every,
		Retry: crawler.RetryPolicy{
			Attempts: cfg.Crawl.RetryAttempts,
			Backoff:  cfg.Crawl.RetryBackoff.Std(),
		},
	})

	res, err := session.Run(ctx)
	if err != nil {
		log.Error("crawl failed", "state", string(res.State), "error", err)
		return 1
	}

	printSummary(res)
	return 0
}

func printSummary(res *crawler.Result) {
	c := res.Counts
	pterm.DefaultSection.Println("Crawl summary")
	_ = pterm.DefaultTable.WithData(pterm.TableData{
		{"Tables", fmt.Sprintf("%d", c.Total)},
		{"Inspected", fmt.Sprintf("%d", c.Inspected)},
		{"Skipped (unchanged)", fmt.Sprintf("%d", c.SkippedUnchanged)},
		{"Skipped (errored)", fmt.Sprintf("%d", c.SkippedErrored)},
		{"Duration", res.Duration.Round(time.Second).String()},
	}).Render()

	if res.Snapshot != nil && len(res.Snapshot.Failed) > 0 {
		pterm.Warning.Println("Tables not crawled:")
		for _, sk := range res.Snapshot.Failed {
			pterm.Warning.Printfln("  %s (%s)", sk.Name, sk.Reason)
		}
	}
	if res.Artifacts != nil {
		pterm.Success.Printfln("Snapshot published: %s", res.Artifacts.Metadata)
	}
}
