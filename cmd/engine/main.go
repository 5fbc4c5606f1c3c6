package main

import (
	"log"
	"os"

	"github.com/joho/godotenv"
	"github.com/rawblock/allocation-engine/internal/api"
	"github.com/rawblock/allocation-engine/internal/db"
)

func main() {
	log.Println("Starting Cost Allocation Engine...")

	// Local development reads a .env file; in production the environment is
	// expected to be set by the deployment.
	if err := godotenv.Load(); err == nil {
		log.Println("Loaded configuration from .env")
	}

	// Persistence is optional: without DATABASE_URL the engine still solves,
	// it just cannot store run history.
	var store *db.Store
	if dbURL := os.Getenv("DATABASE_URL"); dbURL != "" {
		conn, err := db.Connect(dbURL)
		if err != nil {
			log.Printf("Warning: Failed to connect to PostgreSQL, continuing without run persistence. Error: %v", err)
		} else {
			store = conn
			defer store.Close()
			if err := store.InitSchema(); err != nil {
				log.Printf("Warning: DB schema init failed: %v", err)
			}
		}
	} else {
		log.Println("DATABASE_URL not set, run history disabled")
	}

	// Setup WebSocket Hub for progress streaming
	wsHub := api.NewHub()
	go wsHub.Run()

	// Setup the Gin Router
	r := api.SetupRouter(store, wsHub)

	port := getEnvOrDefault("PORT", "5340")

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
