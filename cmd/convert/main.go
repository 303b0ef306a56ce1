package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"sehatmap/internal/exporter"
	"sehatmap/internal/infrastructure"
)

func main() {
	os.Exit(run(context.Background(), os.Args[1:], os.Stdout, os.Stderr))
}

func run(ctx context.Context, args []string, stdout, stderr io.Writer) int {
	fs := flag.NewFlagSet("convert", flag.ContinueOnError)
	fs.SetOutput(stderr)
	in := fs.String("in", "", "input .xlsx workbook")
	out := fs.String("out", "", "output CSV file (defaults to the input name with .csv)")
	level := fs.String("log_level", "info", "log level")
	if err := fs.Parse(args); err != nil {
		return 2
	}
	if *in == "" {
		fmt.Fprintln(stderr, "-in is required")
		fs.Usage()
		return 2
	}
	if *out == "" {
		*out = strings.TrimSuffix(*in, filepath.Ext(*in)) + ".csv"
	}

	logger := infrastructure.NewLogger(stderr, *level)
	ctx = infrastructure.EnsureTraceID(ctx)

	res, err := exporter.NewCSVWriter(logger).ConvertXLSX(ctx, *in, *out)
	if err != nil {
		logger.ErrorContext(ctx, "Conversion failed",
			slog.String("input", *in),
			slog.String("error", err.Error()))
		return 1
	}

	fmt.Fprintf(stdout, "%s -> %s: %s\n", *in, *out, res)
	return 0
}
