package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/nightjar-data/gradient.report/internal/astro"
	"github.com/nightjar-data/gradient.report/internal/astro/fits"
	"github.com/nightjar-data/gradient.report/internal/astro/monitor"
	"github.com/nightjar-data/gradient.report/internal/astrodb"
	"github.com/nightjar-data/gradient.report/internal/config"
	"github.com/nightjar-data/gradient.report/internal/version"
)

var (
	listen        = flag.String("listen", ":8080", "Listen address for the monitor server")
	dbFile        = flag.String("db", "gradient_runs.db", "Path to the run archive database")
	configPath    = flag.String("config", "", "Path to a tuning config JSON file (default: "+config.DefaultConfigPath+" if present)")
	imagePath     = flag.String("image", "", "FITS image to attach to the extractor at startup")
	extractorName = flag.String("extractor", "default", "Name to register the extractor under")
	plotsDir      = flag.String("plots", "", "Directory for run plot artifacts (\"off\" to disable, empty for config default)")
	migrationsDir = flag.String("migrations", "internal/astrodb/migrations", "Directory containing migration files (for migrate subcommand)")
	logInterval   = flag.Int("log-interval", 30, "Interval in seconds for periodic stats logging")
	showVersion   = flag.Bool("version", false, "Print version information and exit")
)

func main() {
	flag.Parse()

	if *showVersion {
		fmt.Println(version.String())
		return
	}

	// Handle migrate subcommand before starting the service
	if flag.Arg(0) == "migrate" {
		astrodb.RunMigrateCommand(flag.Args()[1:], *dbFile, *migrationsDir)
		return
	}

	if *listen == "" {
		log.Fatal("Listen address is required")
	}

	var tuning *config.TuningConfig
	if *configPath != "" {
		var err error
		tuning, err = config.LoadTuningConfig(*configPath)
		if err != nil {
			log.Fatalf("Failed to load tuning config %s: %v", *configPath, err)
		}
		log.Printf("Loaded tuning config from %s", *configPath)
	} else {
		var err error
		tuning, err = config.LoadTuningConfig(config.DefaultConfigPath)
		if err != nil {
			log.Printf("No tuning config loaded (%v), using built-in defaults", err)
			tuning = config.EmptyTuningConfig()
		}
	}

	db, err := astrodb.New(*dbFile)
	if err != nil {
		log.Fatalf("Failed to open run archive: %v", err)
	}
	defer db.Close()

	if pruned, err := db.PruneRuns(tuning.GetRunRetention()); err != nil {
		log.Printf("Failed to prune run archive: %v", err)
	} else if pruned > 0 {
		log.Printf("Pruned %d archived runs beyond retention of %d", pruned, tuning.GetRunRetention())
	}

	extractor := astro.NewExtractor(*extractorName)
	astro.RegisterExtractor(extractor)
	extractor.SetRunStore(db)
	if last, err := db.LatestRun(*extractorName); err == nil {
		log.Printf("Last archived run for %q: %s (success=%t, rms=%.6f, %s)",
			*extractorName, last.RunID, last.Success, last.RMSError,
			last.FinishedAt.Format(time.RFC3339))
	}
	if err := extractor.SetSettings(tuning.ApplySettings(astro.DefaultSettings())); err != nil {
		log.Fatalf("Invalid tuning settings: %v", err)
	}

	if *imagePath != "" {
		img, err := fits.Load(*imagePath)
		if err != nil {
			log.Fatalf("Failed to load image %s: %v", *imagePath, err)
		}
		if err := extractor.SetImage(img); err != nil {
			log.Fatalf("Failed to attach image: %v", err)
		}
		log.Printf("Attached image %s (%dx%d, %d channel(s))", *imagePath, img.Width, img.Height, img.Channels)
	}

	ws := monitor.NewWebServer(monitor.WebServerConfig{
		Address:   *listen,
		Extractor: extractor,
		DB:        db,
		Tuning:    tuning,
	})

	if *plotsDir != "off" {
		dir := *plotsDir
		if dir == "" {
			dir = tuning.GetPlotOutputDir()
		}
		if err := ws.Plotter().Start(dir); err != nil {
			log.Fatalf("Failed to enable plot output: %v", err)
		}
		log.Printf("Plot artifacts will be written under %s", dir)
	}

	// Create a wait group for the HTTP server, stats logger, progress
	// drain, and watchdog routines
	var wg sync.WaitGroup
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// HTTP server goroutine
	wg.Add(1)
	go func() {
		defer wg.Done()
		log.Printf("Monitor server listening on %s (extractor %q)", *listen, extractor.Name())
		if err := ws.Start(ctx); err != nil {
			log.Printf("Web server error: %v", err)
		}
		ws.Close()
		log.Printf("HTTP server routine stopped")
	}()

	// Periodic stats logging goroutine
	wg.Add(1)
	go func() {
		defer wg.Done()
		ticker := time.NewTicker(time.Duration(*logInterval) * time.Second)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				ws.Stats().LogStats()
			case <-ctx.Done():
				log.Printf("Stats logging routine stopped")
				return
			}
		}
	}()

	// Drain extraction progress updates into the log
	wg.Add(1)
	go func() {
		defer wg.Done()
		for {
			select {
			case p := <-extractor.Progress():
				log.Printf("[%s] %d%% %s", extractor.Name(), p.Percent, p.Stage)
			case <-ctx.Done():
				log.Printf("Progress routine stopped")
				return
			}
		}
	}()

	// Watchdog cancels extractions that exceed the configured timeout
	if timeout := tuning.GetExtractionTimeout(); timeout > 0 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			ticker := time.NewTicker(time.Second)
			defer ticker.Stop()
			var runningSince time.Time
			for {
				select {
				case <-ticker.C:
					if !extractor.InFlight() {
						runningSince = time.Time{}
						continue
					}
					if runningSince.IsZero() {
						runningSince = time.Now()
						continue
					}
					if time.Since(runningSince) > timeout {
						log.Printf("Extraction exceeded %s timeout, cancelling", timeout)
						extractor.Cancel()
						runningSince = time.Time{}
					}
				case <-ctx.Done():
					log.Printf("Watchdog routine stopped")
					return
				}
			}
		}()
	}

	// Wait for all goroutines to finish
	wg.Wait()
	log.Printf("Graceful shutdown complete")
}
