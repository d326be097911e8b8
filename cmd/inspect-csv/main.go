package main

import (
	"flag"
	"fmt"
	"os"
	"strings"

	"github.com/mmdatafocus/sales_insight_backend/ingest"
)

func main() {
	file := flag.String("file", "", "Required: export file to inspect")
	flag.Parse()

	if strings.TrimSpace(*file) == "" {
		fmt.Fprintln(os.Stderr, "--file is required")
		os.Exit(1)
	}

	report, err := ingest.Inspect(*file)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(2)
	}

	fmt.Print(report.String())
	if report.BadRows > 0 {
		os.Exit(1)
	}
}
