package movement

import (
	"errors"

	"github.com/aptos-labs/aptos-go-sdk"
)

// Movement runs the Aptos VM, so the node speaks the standard Aptos fullnode
// REST API; only the chain ids and endpoints differ.
var (
	// MainnetConfig targets Movement mainnet.
	MainnetConfig = aptos.NetworkConfig{
		Name:    "movement-mainnet",
		ChainId: 126,
		NodeUrl: "https://full.mainnet.movementinfra.xyz/v1",
	}

	// TestnetConfig targets Movement testnet.
	TestnetConfig = aptos.NetworkConfig{
		Name:    "movement-testnet",
		ChainId: 250,
		NodeUrl: "https://testnet.movementnetwork.xyz/v1",
	}
)

var ErrUnknownNetwork = errors.New("unknown movement network")

// NetworkConfigFor resolves a network name ("mainnet"/"testnet") to its
// config, applying an optional fullnode URL override.
func NetworkConfigFor(network, fullnodeOverride string) (aptos.NetworkConfig, error) {
	var cfg aptos.NetworkConfig
	switch network {
	case "mainnet":
		cfg = MainnetConfig
	case "testnet":
		cfg = TestnetConfig
	default:
		return aptos.NetworkConfig{}, errors.Join(ErrUnknownNetwork, errors.New(network))
	}
	if fullnodeOverride != "" {
		cfg.NodeUrl = fullnodeOverride
	}
	return cfg, nil
}

// ExplorerURL returns the Movement explorer link for a transaction or account.
func ExplorerURL(network, kind, hash string) string {
	if len(hash) < 2 || hash[:2] != "0x" {
		hash = "0x" + hash
	}
	return "https://explorer.movementnetwork.xyz/" + kind + "/" + hash + "?network=" + network
}
