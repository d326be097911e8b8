package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"strings"

	"github.com/google/uuid"
	"github.com/mmdatafocus/sales_insight_backend/config"
	"github.com/mmdatafocus/sales_insight_backend/ingest"
	"github.com/mmdatafocus/sales_insight_backend/models"
)

func main() {
	file := flag.String("file", "", "Required: export file to load (.csv or .xlsx)")
	batchId := flag.String("batch-id", "", "Optional: load batch id (default: new uuid)")
	chunkSize := flag.Int("chunk-size", 500, "Optional: insert chunk size")
	flag.Parse()

	if strings.TrimSpace(*file) == "" {
		fmt.Fprintln(os.Stderr, "--file is required")
		os.Exit(1)
	}
	if _, err := os.Stat(*file); err != nil {
		fmt.Fprintf(os.Stderr, "file not found: %s\n", *file)
		os.Exit(1)
	}
	if strings.TrimSpace(*batchId) == "" {
		*batchId = uuid.NewString()
	}

	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	mapping, err := config.LoadMapping(cfg.MappingPath)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	logger := config.NewLogger()

	db, err := cfg.Connect()
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	defer config.Close(db)

	if err := models.Migrate(db, mapping.RawTable); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}

	loader := ingest.NewLoader(db, logger, mapping.SourceSystem, mapping.RawTable, *chunkSize)
	result, err := loader.LoadFile(context.Background(), *file, *batchId)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}

	fmt.Printf("File: %s\n", result.FileName)
	fmt.Printf("Batch: %s\n", *batchId)
	fmt.Printf("Rows read: %d\n", result.RowsRead)
	fmt.Printf("Rows present in RAW for this batch/file: %d\n", result.RowsPresent)
	if result.DuplicatesSkipped > 0 {
		fmt.Printf("Skipped as duplicates: %d\n", result.DuplicatesSkipped)
	}
	if result.RowsRejected > 0 {
		fmt.Printf("Rejected (unfixable width): %d\n", result.RowsRejected)
	}
}
