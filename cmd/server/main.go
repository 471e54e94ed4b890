package main

import (
	"log"

	"visionguard/internal/app"
	"visionguard/internal/config"
)

func main() {
	application, err := app.NewApp(config.Load())
	if err != nil {
		log.Fatalf("Failed to initialize server: %v", err)
	}

	if err := application.Run(); err != nil {
		log.Fatalf("Server stopped with error: %v", err)
	}
}
