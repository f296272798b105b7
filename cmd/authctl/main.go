package main

import (
	"context"
	"errors"
	"log"
	"os"

	"github.com/QKhanh04/innerg-api/internal/logging"
	"github.com/QKhanh04/innerg-api/internal/server"
	"github.com/QKhanh04/innerg-api/internal/server/admin"
	"github.com/QKhanh04/innerg-api/internal/server/config"
	"github.com/QKhanh04/innerg-api/internal/timex"
)

func main() {

	ctx := context.Background()
	cfg, err := config.LoadStorageConfig()
	if err != nil {
		log.Fatalf("config: %v", err)
	}

	logger := logging.NewJSONLogger(os.Stderr, cfg.LogLevel)

	store, err := server.OpenStore(ctx, cfg, logger, timex.SystemClock)
	if err != nil {
		log.Fatalf("%v", err)
	}

	err = admin.New(store, os.Stdout, logger).Run(ctx, os.Args[1:])
	_ = store.Close()

	if errors.Is(err, admin.ErrUsage) {
		os.Exit(2)
	}
	if err != nil {
		log.Fatalf("%v", err)
	}
}
