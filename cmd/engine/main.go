package main

import (
	"log"
	"os"
	"strconv"

	"github.com/rawblock/barter-engine/internal/api"
	"github.com/rawblock/barter-engine/internal/collaborators"
	"github.com/rawblock/barter-engine/internal/orchestrator"
	"github.com/rawblock/barter-engine/internal/store"
	"github.com/rawblock/barter-engine/pkg/models"
)

func main() {
	log.Println("Starting Barter Discovery Engine...")

	settings := models.DefaultSettings()
	if v := os.Getenv("MAX_DEPTH"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			settings.MaxDepth = n
		}
	}
	if v := os.Getenv("TIMEOUT_MS"); v != "" {
		if n, err := strconv.ParseInt(v, 10, 64); err == nil {
			settings.TimeoutMs = n
		}
	}

	// Persistence is optional: without DATABASE_URL, cycles are ephemeral
	// per-process (spec.md §3 "Lifecycle").
	var cycleStore orchestrator.CycleStore
	if dbURL := os.Getenv("DATABASE_URL"); dbURL != "" {
		pgStore, err := store.Connect(dbURL)
		if err != nil {
			log.Printf("Warning: Failed to connect to PostgreSQL, continuing without cycle persistence. Error: %v", err)
		} else {
			defer pgStore.Close()
			if err := pgStore.InitSchema(); err != nil {
				log.Printf("Warning: cycle schema init failed: %v", err)
			}
			cycleStore = pgStore
		}
	} else {
		log.Println("DATABASE_URL not set — discovered cycles will not survive a restart")
	}

	// Collaborators default to empty in-memory reference implementations;
	// a real deployment wires these to the host application's wallet
	// ledger, collection registry and pricing service.
	ownership := collaborators.NewMemoryOwnershipOracle(nil)
	rejections := collaborators.NewMemoryRejectionStore(nil)

	var collectionOracle collaborators.CollectionOracle
	if getEnvOrDefault("ENABLE_COLLECTION_EXPANSION", "true") == "true" {
		collectionOracle = collaborators.NewMemoryCollectionOracle(nil)
	} else {
		settings.EnableCollectionExpansion = false
	}

	eng := orchestrator.New(ownership, collectionOracle, nil, rejections, cycleStore, settings)

	wsHub := api.NewHub()
	go wsHub.Run()

	r := api.SetupRouter(eng, wsHub)

	port := getEnvOrDefault("PORT", "5339")
	log.Printf("Engine running on :%s\n", port)
	if err := r.Run(":" + port); err != nil {
		log.Fatalf("Failed to start server: %v", err)
	}
}

// getEnvOrDefault returns the env var value or a safe default for non-secret settings.
func getEnvOrDefault(key, fallback string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return fallback
}
