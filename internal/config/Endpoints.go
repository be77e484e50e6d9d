package config

import (
	"os"

	"github.com/rs/zerolog/log"
)

// Endpoint configuration loaded from environment variables.
// These are populated at startup by the LoadConfig function.
var (
	// FullnodeURL overrides the default fullnode REST endpoint for the
	// selected network. Empty means "use the network default".
	FullnodeURL string
	// SponsorAPIURL is the base URL of the gas sponsorship relayer.
	SponsorAPIURL string
	// HistoryAPIURL is the base URL of the claim history backend.
	HistoryAPIURL string
	// PriceAPIURL is the CoinGecko-compatible price endpoint.
	PriceAPIURL string
)

// loadEndpointConfig loads endpoint configuration from environment variables.
// This function is called by LoadConfig() in General.go.
func loadEndpointConfig() error {
	log.Info().Msg("Loading endpoint configuration from environment variables...")

	FullnodeURL = os.Getenv("FULLNODE_URL")
	SponsorAPIURL = os.Getenv("SPONSOR_API_URL")
	HistoryAPIURL = os.Getenv("HISTORY_API_URL")
	PriceAPIURL = getEnvOr("PRICE_API_URL", "https://api.coingecko.com/api/v3")

	log.Debug().
		Str("FullnodeURL", FullnodeURL).
		Str("SponsorAPIURL", SponsorAPIURL).
		Str("HistoryAPIURL", HistoryAPIURL).
		Msg("Endpoint configuration loaded successfully.")

	return nil
}
