package main

import (
	"flag"
	"fmt"
	"os"
	"strings"

	"github.com/mmdatafocus/sales_insight_backend/api"
	"github.com/mmdatafocus/sales_insight_backend/config"
	"github.com/mmdatafocus/sales_insight_backend/models"
)

func main() {
	port := flag.String("port", "", "Listen port (default: PORT env or 8080)")
	flag.Parse()

	if strings.TrimSpace(*port) == "" {
		*port = os.Getenv("PORT")
	}
	if strings.TrimSpace(*port) == "" {
		*port = "8080"
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

	// Views are cheap to (re)create and the API is read-only otherwise.
	if err := models.Migrate(db, mapping.RawTable); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}

	router := api.NewRouter(db, logger, api.NewCacheFromEnv())
	logger.Infof("kpi api listening on :%s", *port)
	if err := router.Run(":" + *port); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
