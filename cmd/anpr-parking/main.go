package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/ironsheep/anpr-parking/internal/config"
	"github.com/ironsheep/anpr-parking/internal/detection"
	"github.com/ironsheep/anpr-parking/internal/logging"
	"github.com/ironsheep/anpr-parking/internal/mcp"
	"github.com/ironsheep/anpr-parking/internal/ocr"
	"github.com/ironsheep/anpr-parking/internal/ocr/tesseract"
	"github.com/ironsheep/anpr-parking/internal/parking"
	"github.com/ironsheep/anpr-parking/internal/server"
	"github.com/ironsheep/anpr-parking/internal/service"
	"github.com/ironsheep/anpr-parking/internal/source"
	"github.com/ironsheep/anpr-parking/internal/store"
	"github.com/ironsheep/anpr-parking/internal/tracker"
)

// Version information - set by ldflags during build
var (
	Version   = "dev"
	BuildTime = "unknown"
	GitCommit = "unknown"
)

func main() {
	// Handle --version and -v flags
	if len(os.Args) > 1 {
		switch os.Args[1] {
		case "--version", "-v", "version":
			fmt.Printf("anpr-parking %s\n", Version)
			fmt.Printf("  Build time: %s\n", BuildTime)
			fmt.Printf("  Git commit: %s\n", GitCommit)
			return
		case "--help", "-h", "help":
			printHelp()
			return
		}
	}

	fs := flag.NewFlagSet("anpr-parking", flag.ExitOnError)
	configPath := fs.String("config", "", "path to a YAML config file")
	mode := fs.String("mode", "serve", "serve (HTTP API and ingestion) or mcp (MCP over stdio)")
	fs.Parse(os.Args[1:])

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "config error: %v\n", err)
		os.Exit(1)
	}

	log := logging.New(cfg.Log.Level, cfg.Log.Format)
	log.Info().Str("version", Version).Str("commit", GitCommit).Str("mode", *mode).Msg("Starting anpr-parking")

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, *mode, log); err != nil {
		log.Error().Err(err).Msg("Exiting with error")
		os.Exit(1)
	}
}

func printHelp() {
	fmt.Println("anpr-parking - licence plate recognition and parking allocation")
	fmt.Println()
	fmt.Println("Usage: anpr-parking [--config file.yaml] [--mode serve|mcp]")
	fmt.Println()
	fmt.Println("Options:")
	fmt.Println("  --config FILE     YAML configuration (default ./anpr.yaml if present)")
	fmt.Println("  --mode MODE       serve: HTTP API plus frame ingestion (default)")
	fmt.Println("                    mcp: MCP tools over stdin/stdout")
	fmt.Println("  --version, -v     Print version information")
	fmt.Println("  --help, -h        Print this help message")
	fmt.Println()
	fmt.Println("Environment variables:")
	fmt.Println("  ANPR_LOG_LEVEL=debug                   Enable debug logging")
	fmt.Println("  ANPR_STORE_DRIVER=sqlite|postgres      Select the store")
	fmt.Println("  ANPR_DETECTOR_PLATES_API_KEY=...       Hosted detector key")
	fmt.Println("  ANPR_INGEST_DIR=/frames                Ingest frames from a directory")
	fmt.Println()
	fmt.Println("A .env file in the working directory is loaded first.")
}

func run(ctx context.Context, cfg *config.Config, mode string, log zerolog.Logger) error {
	gw, err := store.Open(ctx, cfg.Store)
	if err != nil {
		return err
	}
	defer gw.Close()

	detector, err := buildDetector(cfg.Detector, cfg.Recognition.MinConfidence)
	if err != nil {
		return err
	}

	engine := tesseract.New(cfg.OCR.Config)
	if info := engine.Info(); !info.Available {
		log.Warn().Msg("Tesseract is not available; no plate text will be read")
	} else {
		log.Info().Str("tesseract", info.Version).Msg("OCR engine ready")
	}

	allocator := parking.New(gw, cfg.Parking.GridSize, log.With().Str("component", "parking").Logger())
	tr := tracker.New(gw, allocator, log.With().Str("component", "tracker").Logger())
	svc := service.New(
		detector,
		ocr.NewGenerator(engine, cfg.OCR.Concurrency, log.With().Str("component", "ocr").Logger()),
		tr,
		allocator,
		gw,
		cfg.Recognition,
		log.With().Str("component", "service").Logger(),
	)

	switch strings.ToLower(mode) {
	case "mcp":
		return mcp.New(svc, Version, log).Run(ctx, os.Stdin, os.Stdout)
	case "serve":
	default:
		return fmt.Errorf("unknown mode %q", mode)
	}

	return serve(ctx, svc, cfg, log)
}

// serve runs the HTTP API and, when configured, directory ingestion until
// ctx is cancelled or either fails. The frame source is opened before
// anything starts.
func serve(ctx context.Context, svc *service.Service, cfg *config.Config, log zerolog.Logger) error {
	var src *source.Directory
	if cfg.Ingest.Dir != "" {
		var err error
		if src, err = source.NewDirectory(cfg.Ingest.Dir); err != nil {
			return err
		}
		log.Info().Str("dir", cfg.Ingest.Dir).Int("frames", src.Len()).Msg("Frame ingestion enabled")
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return server.New(svc, cfg.Server, log.With().Str("component", "http").Logger()).Run(gctx)
	})
	if src != nil {
		g.Go(func() error {
			return svc.Run(gctx, src)
		})
	}

	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	return nil
}

func buildDetector(cfg config.DetectorConfig, minConfidence float64) (detection.Detector, error) {
	switch strings.ToLower(cfg.Kind) {
	case "heuristic":
		return detection.NewHeuristic(minConfidence), nil
	case "roboflow":
		detectors := detection.Multi{detection.NewRoboflow(cfg.Plates)}
		if cfg.Spots.Endpoint != "" {
			detectors = append(detectors, detection.NewRoboflow(cfg.Spots))
		}
		return detectors, nil
	default:
		return nil, fmt.Errorf("unknown detector kind %q", cfg.Kind)
	}
}
