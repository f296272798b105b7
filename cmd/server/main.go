package main

import (
	"context"
	"log"
	"os"

	"github.com/QKhanh04/innerg-api/internal/logging"
	"github.com/QKhanh04/innerg-api/internal/server"
	"github.com/QKhanh04/innerg-api/internal/server/config"
)

func main() {

	ctx := context.Background()
	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatalf("config: %v", err)
	}

	logger := logging.NewJSONLogger(os.Stdout, cfg.LogLevel)

	app, err := server.NewApp(ctx, cfg, logger)
	if err != nil {
		log.Fatalf("%v", err)
	}

	if err := app.Run(ctx); err != nil {
		log.Fatalf("%v", err)
	}
}
