package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"os"

	"github.com/nightjar-data/gradient.report/internal/astro"
	"github.com/nightjar-data/gradient.report/internal/astro/fits"
	"github.com/nightjar-data/gradient.report/internal/astro/monitor"
	"github.com/nightjar-data/gradient.report/internal/astrodb"
	"github.com/nightjar-data/gradient.report/internal/config"
)

func main() {
	var inPath string
	var outPath string
	var modelPath string
	var preset string
	var configPath string
	var dbPath string
	var plotsDir string
	var asJSON bool

	flag.StringVar(&inPath, "in", "", "input FITS image (required)")
	flag.StringVar(&outPath, "out", "", "write background-corrected image to this FITS path")
	flag.StringVar(&modelPath, "model", "", "write fitted background surface to this FITS path")
	flag.StringVar(&preset, "preset", "", "settings preset to start from (default, conservative, aggressive)")
	flag.StringVar(&configPath, "config", "", "tuning config JSON overlaid on the preset")
	flag.StringVar(&dbPath, "db", "", "archive the run into this sqlite database")
	flag.StringVar(&plotsDir, "plots", "", "write diagnostic plots under this directory")
	flag.BoolVar(&asJSON, "json", false, "print the full result as JSON instead of a summary")
	flag.Parse()

	if inPath == "" {
		log.Fatalf("input image must be provided with -in")
	}

	settings := astro.DefaultSettings()
	if preset != "" {
		s, ok := astro.PresetByName(preset)
		if !ok {
			log.Fatalf("unknown preset %q (have: %v)", preset, astro.PresetNames())
		}
		settings = s
	}
	if configPath != "" {
		tuning, err := config.LoadTuningConfig(configPath)
		if err != nil {
			log.Fatalf("load config: %v", err)
		}
		settings = tuning.ApplySettings(settings)
	}
	if outPath != "" {
		settings.ApplyCorrection = true
	}
	if modelPath != "" || plotsDir != "" {
		settings.DiscardModel = false
	}

	extractor := astro.NewExtractor("cli")
	if err := extractor.SetSettings(settings); err != nil {
		log.Fatalf("invalid settings: %v", err)
	}

	if dbPath != "" {
		db, err := astrodb.New(dbPath)
		if err != nil {
			log.Fatalf("open db: %v", err)
		}
		defer db.Close()
		extractor.SetRunStore(db)
	}

	img, err := fits.Load(inPath)
	if err != nil {
		log.Fatalf("load image: %v", err)
	}
	fmt.Printf("loaded %s (%dx%d, %d channel(s))\n", inPath, img.Width, img.Height, img.Channels)

	// relay progress updates while the blocking extraction runs
	done := make(chan struct{})
	go func() {
		for {
			select {
			case p := <-extractor.Progress():
				fmt.Printf("  %3d%% %s\n", p.Percent, p.Stage)
			case <-done:
				return
			}
		}
	}()

	ok := extractor.Extract(img)
	close(done)

	res := extractor.Result()
	if res == nil {
		log.Fatalf("extraction produced no result")
	}
	if !ok {
		log.Fatalf("%s", res.Summary())
	}

	if asJSON {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		if err := enc.Encode(res); err != nil {
			log.Fatalf("encode result: %v", err)
		}
	} else {
		fmt.Printf("run %s\n%s\n", res.RunID, res.Summary())
		for i, cm := range res.ChannelMetrics {
			fmt.Printf("channel %d: rms %.6f, mean dev %.6f, max dev %.6f\n",
				i, cm.RMSError, cm.MeanDeviation, cm.MaxDeviation)
		}
	}

	if outPath != "" {
		if res.Corrected == nil {
			log.Fatalf("no corrected image in result")
		}
		if err := fits.Write(outPath, res.Corrected); err != nil {
			log.Fatalf("write corrected image: %v", err)
		}
		fmt.Printf("wrote corrected image to %s\n", outPath)
	}

	if modelPath != "" {
		if !res.HasModel() {
			log.Fatalf("no model surface in result")
		}
		if err := fits.Write(modelPath, fits.SurfaceImage(res.Model)); err != nil {
			log.Fatalf("write model surface: %v", err)
		}
		fmt.Printf("wrote model surface to %s\n", modelPath)
	}

	if plotsDir != "" {
		p := monitor.NewRunPlotter()
		if err := p.Start(plotsDir); err != nil {
			log.Fatalf("enable plots: %v", err)
		}
		files, err := p.GeneratePlots(res)
		if err != nil {
			log.Fatalf("generate plots: %v", err)
		}
		for _, f := range files {
			fmt.Printf("wrote plot %s\n", f)
		}
	}
}
