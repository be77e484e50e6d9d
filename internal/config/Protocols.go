package config

import (
	"os"

	"github.com/rs/zerolog/log"
)

// Per-protocol module addresses. An empty address means the protocol has no
// deployed contract on the selected network and must stay out of the active
// registry; adapters are never constructed for it.
var (
	JouleModuleAddress    string
	YuzuModuleAddress     string
	MeridianModuleAddress string
)

// loadProtocolConfig loads protocol module addresses from environment variables.
// This function is called by LoadConfig() in General.go.
func loadProtocolConfig() error {
	log.Info().Msg("Loading protocol configuration from environment variables...")

	JouleModuleAddress = os.Getenv("JOULE_MODULE_ADDRESS")
	YuzuModuleAddress = os.Getenv("YUZU_MODULE_ADDRESS")
	MeridianModuleAddress = os.Getenv("MERIDIAN_MODULE_ADDRESS")

	log.Debug().
		Bool("joule", JouleModuleAddress != "").
		Bool("yuzu", YuzuModuleAddress != "").
		Bool("meridian", MeridianModuleAddress != "").
		Msg("Protocol deployment configuration loaded.")

	return nil
}
