package main

import (
	"errors"
	"log"
	"os"

	"github.com/ericogr/thermistor-to-mqtt/cmd"
	"github.com/joho/godotenv"
)

// set via -ldflags "-X 'main.version=1.2.3'"
var version = "dev"

func main() {
	// .env is optional; it only supplies MQTT_* credentials
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		log.Fatalf("failed to load .env file: %v", err)
	}
	if err := cmd.Execute(version); err != nil {
		log.Fatal(err)
	}
}
