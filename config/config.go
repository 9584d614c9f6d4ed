package config

import (
	"fmt"
	"os"
	"strconv"

	"github.com/joho/godotenv"
)

// Config holds every runtime parameter of the server.
type Config struct {
	ServerPort   int
	JWTSecretKey string
	// DatabaseURL is optional; without it the tournament archive is disabled
	// and finished tournaments are simply dropped.
	DatabaseURL string
	// ModPasswordHash is the bcrypt hash required to obtain a moderator
	// token. Empty disables moderator logins.
	ModPasswordHash string
}

// Load reads the configuration from the environment. A .env file is loaded
// first when present, which keeps local development setups out of the shell
// profile.
func Load() (*Config, error) {
	_ = godotenv.Load()

	jwtKey := os.Getenv("JWT_SECRET_KEY")
	if jwtKey == "" {
		return nil, fmt.Errorf("JWT_SECRET_KEY environment variable is not set")
	}

	portStr := os.Getenv("SERVER_PORT")
	if portStr == "" {
		portStr = "8080"
	}
	port, err := strconv.Atoi(portStr)
	if err != nil {
		return nil, fmt.Errorf("invalid SERVER_PORT environment variable: %w", err)
	}
	if port <= 0 || port > 65535 {
		return nil, fmt.Errorf("SERVER_PORT must be between 1 and 65535, got %d", port)
	}

	return &Config{
		ServerPort:      port,
		JWTSecretKey:    jwtKey,
		DatabaseURL:     os.Getenv("DATABASE_URL"),
		ModPasswordHash: os.Getenv("MOD_PASSWORD_HASH"),
	}, nil
}
