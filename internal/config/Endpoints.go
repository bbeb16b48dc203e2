package config

import (
	"github.com/rs/zerolog/log"
)

// Endpoint configuration loaded from environment variables.
// These are populated at startup by the LoadConfig function.
var (
	// WebPort is the port the dashboard API listens on.
	WebPort string

	// DBHost, DBPort, DBUser, DBPassword, DBName and DBSSLMode locate the report database.
	// An empty DBHost runs the keeper with the in-memory report store.
	DBHost     string
	DBPort     int
	DBUser     string
	DBPassword string
	DBName     string
	DBSSLMode  string
)

// loadEndpointConfig loads endpoint configuration from environment variables.
// This function is called by LoadConfig() in General.go.
func loadEndpointConfig() error {
	log.Info().Msg("Loading endpoint configuration from environment variables...")

	var err error

	WebPort = getEnvOrDefault("WEB_PORT", "8080")

	DBHost = getEnvOrDefault("DB_HOST", "")
	if DBHost != "" {
		DBPort, err = getEnvAsIntOrDefault("DB_PORT", 5432)
		if err != nil {
			return err
		}
		DBUser, err = getEnv("DB_USER")
		if err != nil {
			return err
		}
		DBPassword, err = getEnv("DB_PASSWORD")
		if err != nil {
			return err
		}
		DBName, err = getEnv("DB_NAME")
		if err != nil {
			return err
		}
		DBSSLMode = getEnvOrDefault("DB_SSLMODE", "disable")
	}

	log.Debug().
		Str("WebPort", WebPort).
		Str("DBHost", DBHost).
		Str("DBName", DBName).
		Msg("Endpoint configuration loaded successfully.")

	return nil
}
