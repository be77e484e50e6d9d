package main

import (
	"os"
	"os/signal"
	"strconv"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog/log"

	"github.com/harvest-move/harvest/internal/config"
	"github.com/harvest-move/harvest/internal/logger"
	"github.com/harvest-move/harvest/internal/movement"
	"github.com/harvest-move/harvest/internal/sponsor"
	"github.com/harvest-move/harvest/internal/state"
	"github.com/harvest-move/harvest/internal/web"
)

// main is the entry point for the harvest backend daemon: claim history,
// leaderboard and the gas sponsorship relay.
func main() {
	if err := godotenv.Load(); err != nil {
		log.Warn().Msg("Warning: .env file not found. Relying on OS environment variables.")
	}

	if err := config.LoadConfig(); err != nil {
		log.Fatal().Err(err).Msg("Failed to load configuration")
	}

	logger.Initialize(os.Getenv("LOG_LEVEL"))
	log.Info().Str("network", config.Network).Msg("Harvest daemon starting...")

	dbCfg := state.DBConfig{
		Host: os.Getenv("DB_HOST"), Port: mustAtoi(os.Getenv("DB_PORT"), 5432),
		User: os.Getenv("DB_USER"), Password: os.Getenv("DB_PASSWORD"),
		DBName: os.Getenv("DB_NAME"), SSLMode: os.Getenv("DB_SSLMODE"),
	}
	if err := state.InitDB(dbCfg); err != nil {
		log.Fatal().Err(err).Msg("Failed to initialize database")
	}
	defer state.CloseDB()
	if err := state.EnsureSchema(); err != nil {
		log.Fatal().Err(err).Msg("Failed to ensure database schema")
	}

	chainClient, err := movement.NewClient(config.Network, config.FullnodeURL)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to initialize Movement client")
	}

	station, err := sponsor.NewGasStation(chainClient, config.GasStationPrivateKey)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to initialize gas station")
	}
	if station == nil {
		log.Warn().Msg("No gas station key configured, sponsorship relay disabled")
	}

	webServer := web.NewWebServer(os.Getenv("WEB_PORT"), station, config.Network)
	go func() {
		if err := webServer.Start(); err != nil {
			log.Fatal().Err(err).Msg("Web server failed")
		}
	}()

	// Block until asked to stop.
	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	sig := <-stop
	log.Info().Str("signal", sig.String()).Msg("Shutting down")
}

// mustAtoi parses an integer with a fallback for empty or invalid input.
func mustAtoi(value string, fallback int) int {
	if value == "" {
		return fallback
	}
	parsed, err := strconv.Atoi(value)
	if err != nil {
		return fallback
	}
	return parsed
}
