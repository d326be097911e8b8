package main

import (
	"context"
	"flag"
	"fmt"
	"os"

	"github.com/mmdatafocus/sales_insight_backend/config"
	"github.com/mmdatafocus/sales_insight_backend/models"
	"github.com/mmdatafocus/sales_insight_backend/normalize"
)

func main() {
	batchId := flag.String("batch-id", "", "Optional: restrict the run to one load batch")
	skipReport := flag.String("skip-report", "skipped_rows.csv", "Where to write the skip report")
	flag.Parse()

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

	engine := normalize.NewEngine(db, mapping, logger)
	report, err := engine.Run(context.Background(), normalize.Options{BatchId: *batchId})
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}

	fmt.Println(report.Summary())
	if len(report.SkippedRows) > 0 {
		if err := report.WriteSkipReport(*skipReport); err != nil {
			fmt.Fprintln(os.Stderr, err)
			os.Exit(1)
		}
		fmt.Printf("Skipped rows written to %s (%d)\n", *skipReport, len(report.SkippedRows))
	}
}
