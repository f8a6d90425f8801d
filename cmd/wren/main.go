package main

import (
	"log"

	"wren/cmd/internal/app"

	"github.com/joho/godotenv"
)

func main() {
	// Optional .env for local development; absence is not an error.
	_ = godotenv.Load()

	if err := app.Run(); err != nil {
		log.Fatal(err)
	}
}
