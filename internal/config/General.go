package config

import (
	"errors"
	"os"
	"strconv"
	"time"

	"github.com/rs/zerolog/log"
)

// AppConfig holds all application configuration loaded from environment variables.
// These are populated at startup by the LoadConfig function.
var (
	// Network is the Movement network to target ("mainnet" or "testnet").
	Network string

	// AdapterReadTimeout bounds every per-adapter chain read; a read that
	// exceeds it is treated as that adapter having failed.
	AdapterReadTimeout time.Duration

	// FinalityTimeout bounds how long a single finality wait may poll.
	FinalityTimeout time.Duration

	// WalletBackend selects the signing backend ("local" or "custodial").
	WalletBackend string
	// WalletPrivateKey is the hex ed25519 key for the local backend.
	WalletPrivateKey string

	// CustodialSignerURL is the remote raw-signing provider endpoint.
	CustodialSignerURL string
	// CustodialSignerToken authenticates against the signing provider.
	CustodialSignerToken string
	// CustodialAddress is the account address owned by the custodial key.
	CustodialAddress string
	// CustodialPublicKey is the provider-reported hex public key. May carry a
	// leading scheme byte; normalized before use.
	CustodialPublicKey string

	// GasStationPrivateKey funds sponsored transactions. Empty disables the
	// gas station.
	GasStationPrivateKey string

	// ClaimLogPath is where the capped local claim log is written.
	ClaimLogPath string
)

// LoadConfig loads configuration from environment variables and sets the global config vars.
func LoadConfig() error {
	log.Info().Msg("Loading application configuration from environment variables...")

	var err error

	Network, err = getEnv("MOVEMENT_NETWORK")
	if err != nil {
		return err
	}
	if Network != "mainnet" && Network != "testnet" {
		return errors.New("MOVEMENT_NETWORK must be 'mainnet' or 'testnet', got: " + Network)
	}

	AdapterReadTimeout = getEnvAsDuration("ADAPTER_READ_TIMEOUT", 15*time.Second)
	FinalityTimeout = getEnvAsDuration("FINALITY_TIMEOUT", 60*time.Second)

	WalletBackend = getEnvOr("WALLET_BACKEND", "local")
	WalletPrivateKey = os.Getenv("WALLET_PRIVATE_KEY")
	CustodialSignerURL = os.Getenv("CUSTODIAL_SIGNER_URL")
	CustodialSignerToken = os.Getenv("CUSTODIAL_SIGNER_TOKEN")
	CustodialAddress = os.Getenv("CUSTODIAL_ADDRESS")
	CustodialPublicKey = os.Getenv("CUSTODIAL_PUBLIC_KEY")

	GasStationPrivateKey = os.Getenv("GAS_STATION_PRIVATE_KEY")
	ClaimLogPath = getEnvOr("CLAIM_LOG_PATH", "claims.local.json")

	// Load endpoint and protocol configuration
	if err := loadEndpointConfig(); err != nil {
		return err
	}
	if err := loadProtocolConfig(); err != nil {
		return err
	}

	log.Debug().
		Str("Network", Network).
		Str("WalletBackend", WalletBackend).
		Dur("AdapterReadTimeout", AdapterReadTimeout).
		Msg("Configuration loaded successfully.")

	return nil
}

// getEnv retrieves a string environment variable. Returns error if not set.
func getEnv(key string) (string, error) {
	if value, exists := os.LookupEnv(key); exists {
		return value, nil
	}
	return "", errors.New("environment variable " + key + " is required but not set")
}

// getEnvOr retrieves a string environment variable with a default.
func getEnvOr(key, fallback string) string {
	if value, exists := os.LookupEnv(key); exists && value != "" {
		return value
	}
	return fallback
}

// getEnvAsDuration retrieves an environment variable as seconds with a default.
func getEnvAsDuration(key string, fallback time.Duration) time.Duration {
	valueStr, exists := os.LookupEnv(key)
	if !exists || valueStr == "" {
		return fallback
	}
	seconds, err := strconv.Atoi(valueStr)
	if err != nil || seconds <= 0 {
		log.Warn().Str("key", key).Str("value", valueStr).Msg("Invalid duration value, using default")
		return fallback
	}
	return time.Duration(seconds) * time.Second
}
