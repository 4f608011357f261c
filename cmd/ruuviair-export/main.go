package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"time"

	"ruuviair/internal/export"
	"ruuviair/internal/logger"
	"ruuviair/internal/store"
)

func main() {
	var (
		dbPath   = flag.String("db", "ruuvi_data.db", "path to the measurement database")
		device   = flag.String("device", "", "device address to export (default: all devices)")
		hours    = flag.Int("hours", 24, "how many hours back to export")
		format   = flag.String("format", "csv", "output format: csv or xlsx")
		output   = flag.String("o", "", "output file (default: stdout for csv)")
		logLevel = flag.String("log-level", "warn", "log level")
	)
	flag.Parse()

	zlog, err := logger.New(*logLevel, "console", "ruuviair-export")
	if err != nil {
		log.Fatalf("Failed to initialize logger: %v", err)
	}
	defer zlog.Sync()

	st, err := store.Open(*dbPath, zlog)
	if err != nil {
		log.Fatalf("Failed to open database: %v", err)
	}
	defer st.Close()

	to := time.Now().UTC()
	from := to.Add(-time.Duration(*hours) * time.Hour)

	out := os.Stdout
	if *output != "" {
		f, err := os.Create(*output)
		if err != nil {
			log.Fatalf("Failed to create output file: %v", err)
		}
		defer f.Close()
		out = f
	} else if *format == "xlsx" {
		log.Fatal("xlsx export requires -o")
	}

	exp := export.New(st)
	ctx := context.Background()

	var rows int
	switch *format {
	case "csv":
		rows, err = exp.WriteCSV(ctx, out, *device, from, to)
	case "xlsx":
		rows, err = exp.WriteXLSX(ctx, out, *device, from, to)
	default:
		log.Fatalf("Unknown format: %s", *format)
	}
	if err != nil {
		log.Fatalf("Export failed: %v", err)
	}

	fmt.Fprintf(os.Stderr, "Exported %d rows (%s to %s)\n",
		rows, from.Format(time.RFC3339), to.Format(time.RFC3339))
}
