// Command service-attendance-go prepares a database for the API: it creates
// tables and indexes, seeds default business hours and the bootstrap admin,
// then exits.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/ovaphlow/pitchfork/service-attendance-go/internal/app"
	"github.com/ovaphlow/pitchfork/service-attendance-go/pkg/database"
	"github.com/ovaphlow/pitchfork/service-attendance-go/pkg/utilities"
)

func main() {
	_ = godotenv.Load()

	// init logger
	lg, err := utilities.Init(utilities.ConfigFromEnv())
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to init logger: %v\n", err)
		os.Exit(1)
	}
	defer lg.Sync()

	sugar := lg.Sugar()
	sugar.Info("preparing attendance schema")

	cfg, err := app.ConfigFromEnv()
	if err != nil {
		sugar.Fatalf("config: %v", err)
	}

	// init db
	dbCfg, err := database.ConfigFromEnv()
	if err != nil {
		sugar.Fatalf("db config: %v", err)
	}
	sqlxDB, err := database.Open(dbCfg)
	if err != nil {
		sugar.Fatalf("db connect: %v", err)
	}
	defer sqlxDB.Close()

	a, err := app.New(sqlxDB, cfg, sugar)
	if err != nil {
		sugar.Fatalf("init: %v", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	ctx, cancel := context.WithTimeout(ctx, time.Minute)
	defer cancel()

	if err := a.EnsureSchema(ctx); err != nil {
		sugar.Fatalf("ensure schema: %v", err)
	}
	if err := a.SeedAdmin(ctx); err != nil {
		sugar.Fatalf("%v", err)
	}

	sugar.Info("schema ready")
}
