package main

import (
	"context"
	"flag"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"civimetre/api"
	"civimetre/config"
	"civimetre/etl"
	"civimetre/fetch"
	"civimetre/jurisdiction"
	"civimetre/logging"
	"civimetre/models"
	"civimetre/scheduler"
	"civimetre/scoring"
	"civimetre/storage"
	"civimetre/workers"
)

var (
	etlNow  = flag.Bool("etl", false, "Run one ETL pass and exit")
	dataset = flag.String("dataset", etl.DatasetAll, "Dataset for -etl (permits, contracts, requests311, promises, all)")
	mode    = flag.String("mode", "incremental", "Run mode for -etl (incremental or full)")
)

func main() {
	flag.Parse()
	log.SetFlags(log.LstdFlags | log.Lshortfile)

	logFile, err := logging.Setup("civimetre.log")
	if err != nil {
		log.Printf("Warning: could not set up file logging: %v", err)
	} else {
		defer logFile.Close()
	}

	log.Println("Starting civimetre...")

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	juris, err := jurisdiction.Get(cfg.Jurisdiction)
	if err != nil {
		log.Fatalf("Unknown jurisdiction %q: %v", cfg.Jurisdiction, err)
	}
	log.Printf("Jurisdiction: %s (%d datasets configured)", juris.Name, len(cfg.Datasets))
	for id, dc := range cfg.Datasets {
		log.Printf("  - %s (%s)", dc.Name, id)
	}

	ctx := context.Background()

	store, err := storage.NewSQLiteStore(cfg.DBPath)
	if err != nil {
		log.Fatalf("Failed to open SQLite: %v", err)
	}
	defer store.Close()
	log.Printf("SQLite database: %s", cfg.DBPath)

	var archiver etl.Archiver
	if cfg.Archive.Enabled() {
		s3, err := storage.NewS3Archiver(ctx, storage.S3Config{
			Bucket:          cfg.Archive.Bucket,
			Region:          cfg.Archive.Region,
			Endpoint:        cfg.Archive.Endpoint,
			AccessKeyID:     cfg.Archive.AccessKeyID,
			SecretAccessKey: cfg.Archive.SecretAccessKey,
		})
		if err != nil {
			log.Fatalf("Failed to set up snapshot archiver: %v", err)
		}
		archiver = s3
		log.Printf("Snapshot archiving to bucket %s", cfg.Archive.Bucket)
	}

	client := fetch.NewCKANClient(juris.Source.PortalBase)
	client.Delay = time.Duration(cfg.Fetch.DelayMS) * time.Millisecond
	pipelines := etl.BuildPipelines(cfg, store, client, archiver, fetch.NewCatalogProbe())
	gate := etl.NewTriggerGate(60 * time.Second)
	orchestrator := etl.NewOrchestrator(store, gate, pipelines, nil)

	// One-shot mode for cron jobs and manual backfills.
	if *etlNow {
		log.Printf("Running ETL (dataset=%s mode=%s)...", *dataset, *mode)
		result, err := orchestrator.Trigger(ctx, *dataset, models.RunMode(*mode))
		if err != nil {
			log.Fatalf("ETL failed: %v", err)
		}
		for name, outcome := range result.Results {
			if outcome.OK {
				log.Printf("  %s: %s", name, outcome.Output)
			} else {
				log.Printf("  %s: FAILED: %s", name, outcome.Error)
			}
		}
		if !result.OK {
			os.Exit(1)
		}
		log.Println("ETL complete!")
		return
	}

	engine := scoring.NewEngine(store, juris)

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	sched := scheduler.New(orchestrator)
	if err := sched.Start(cfg.ETLCron); err != nil {
		log.Fatalf("Failed to start scheduler: %v", err)
	}

	if cfg.Mirror.DBURL != "" {
		pgStore, err := storage.NewPostgresStore(ctx, cfg.Mirror.DBURL)
		if err != nil {
			log.Fatalf("Failed to connect to Postgres mirror: %v", err)
		}
		defer pgStore.Close()

		mirror := workers.NewMirrorWorker(store, pgStore, cfg.Mirror.Interval)
		go mirror.Run(ctx)
		log.Println("Mirror worker started")
	}

	evaluator := workers.NewPromiseEvaluator(store, promiseMeasurements(store), 6*time.Hour)
	go evaluator.Run(ctx)
	log.Println("Promise evaluator started")

	server := api.NewServer(engine, juris, orchestrator, store, store, store, cfg.ETLToken)
	go func() {
		log.Printf("API listening on %s", cfg.APIAddr)
		if err := server.Run(cfg.APIAddr); err != nil {
			log.Fatalf("API server failed: %v", err)
		}
	}()

	log.Println("Daemon running. Press Ctrl+C to stop.")

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh

	log.Println("Shutting down...")
	cancel()
	sched.Stop()
	log.Println("Goodbye!")
}

// promiseMeasurements wires the auto-trackable promises to the data that
// can measure them. Only promises with a measurement here ever move off
// their seeded status.
func promiseMeasurements(store *storage.SQLiteStore) map[string]workers.Measurement {
	return map[string]workers.Measurement{
		"housing-12500-units": func(ctx context.Context) (float64, error) {
			units, err := store.HousingUnitsSince(2025)
			if err != nil {
				return 0, err
			}
			return float64(units), nil
		},
	}
}
