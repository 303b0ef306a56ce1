package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"sehatmap/internal/config"
	"sehatmap/internal/infrastructure"
	"sehatmap/internal/pipeline"
	"sehatmap/internal/store"
	"sehatmap/internal/validation"
	"sehatmap/pkg/contracts"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	code := run(ctx, os.Args[1:], os.Stdout, os.Stderr)
	stop()
	os.Exit(code)
}

// run executes one batch forecast and returns the process exit code
func run(ctx context.Context, args []string, stdout, stderr io.Writer) int {
	fs := flag.NewFlagSet("forecast", flag.ContinueOnError)
	fs.SetOutput(stderr)
	configFile := fs.String("config", "", "optional config.yaml; flags override it")
	input := fs.String("input_csv", "", "input dataset (.csv or .xlsx)")
	geojsonPath := fs.String("geojson", "", "geographic reference GeoJSON")
	output := fs.String("output_csv", "", "output predictions CSV")
	points := fs.String("points_geojson", "", "optional GeoJSON export of the output rows")
	modelPath := fs.String("model_path", "", "where the trained forest is saved and loaded")
	years := fs.Int("years", 0, "number of years to forecast past the last observed year")
	seed := fs.Int64("seed", 0, "seed for the train/test split, the forest and route tie-breaking")
	dbPath := fs.String("db", "", "optional SQLite store to import the output into")
	version := fs.Bool("version", false, "print version and exit")
	if err := fs.Parse(args); err != nil {
		return 2
	}

	if *version {
		fmt.Fprintln(stdout, contracts.GetFullVersionString())
		return 0
	}

	cfg := config.Default()
	if *configFile != "" {
		loaded, err := config.LoadFrom(*configFile)
		if err != nil {
			fmt.Fprintf(stderr, "failed to load config: %v\n", err)
			return 1
		}
		cfg = loaded
	}

	fs.Visit(func(f *flag.Flag) {
		switch f.Name {
		case "input_csv":
			cfg.Pipeline.InputPath = *input
		case "geojson":
			cfg.Pipeline.GeoJSONPath = *geojsonPath
		case "output_csv":
			cfg.Pipeline.OutputPath = *output
		case "model_path":
			cfg.Pipeline.ModelPath = *modelPath
		case "years":
			cfg.Pipeline.Years = *years
		case "seed":
			cfg.Pipeline.Seed = *seed
			cfg.Pipeline.TieBreakSeed = *seed
		}
	})

	logger := infrastructure.NewLogger(stderr, cfg.Logging.Level)
	ctx = infrastructure.EnsureTraceID(ctx)

	files := validation.NewFileValidator(logger)
	if err := files.ValidateDataset(cfg.Pipeline.InputPath); err != nil {
		logger.ErrorContext(ctx, "Forecast failed", slog.String("error", err.Error()))
		return 1
	}
	if err := files.ValidateOutputDirectory(filepath.Dir(cfg.Pipeline.OutputPath)); err != nil {
		logger.ErrorContext(ctx, "Forecast failed", slog.String("error", err.Error()))
		return 1
	}

	opts := pipeline.OptionsFromConfig(cfg.Pipeline)
	opts.PointsPath = *points

	out, err := pipeline.NewRunner(logger, nil, nil).Run(ctx, opts)
	if err != nil {
		logger.ErrorContext(ctx, "Forecast failed", slog.String("error", err.Error()))
		return 1
	}

	if *dbPath != "" {
		st, err := store.Open(ctx, *dbPath, logger)
		if err != nil {
			logger.ErrorContext(ctx, "Failed to open store", slog.String("error", err.Error()))
			return 1
		}
		defer st.Close()

		stats, err := st.Upsert(ctx, out.Rows)
		if err != nil {
			logger.ErrorContext(ctx, "Failed to import predictions", slog.String("error", err.Error()))
			return 1
		}
		logger.InfoContext(ctx, "Predictions imported",
			slog.String("db", *dbPath),
			slog.Int("inserted", stats.Inserted),
			slog.Int("updated", stats.Updated))
	}

	enc := json.NewEncoder(stdout)
	enc.SetIndent("", "  ")
	if err := enc.Encode(out.Summary); err != nil {
		logger.ErrorContext(ctx, "Failed to write summary", slog.String("error", err.Error()))
		return 1
	}
	return 0
}
