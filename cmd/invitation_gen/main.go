package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"time"

	"spacewh/mis/internal/config"
	"spacewh/mis/internal/db"
	"spacewh/mis/internal/db/repositories"
	"spacewh/mis/internal/logging"
	"spacewh/mis/internal/metrics"
	"spacewh/mis/internal/services"
)

// Creates one invitation directly against the configured record store and
// prints its code and PIN.
func main() {
	name := flag.String("name", "", "name of the invited person")
	envFile := flag.String("env", ".env", "env file to load before the environment")
	flag.Parse()

	if *name == "" {
		log.Fatal("-name is required")
	}

	cfg, err := config.Load(*envFile)
	if err != nil {
		log.Fatalf("load config: %v", err)
	}
	if err := logging.Init(cfg.AppEnv); err != nil {
		log.Fatalf("init logger: %v", err)
	}
	defer logging.Close()

	store, err := db.OpenRecordStore(cfg, metrics.NewMetricsRegistry())
	if err != nil {
		log.Fatalf("open record store: %v", err)
	}

	svc := services.NewInvitationService(
		repositories.NewInvitationRepository(store),
		repositories.NewOnboardingRepository(store),
	)

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	inv, err := svc.Create(ctx, *name)
	if err != nil {
		log.Fatalf("create invitation: %v", err)
	}

	fmt.Println("Invitation code:", inv.Code)
	fmt.Println("PIN:", inv.Pin)
}
