package wallet

import (
	"fmt"

	"github.com/harvest-move/harvest/internal/config"
	"github.com/harvest-move/harvest/internal/movement"
)

// FromConfig resolves the configured signing backend.
func FromConfig(chain *movement.Client) (Signer, error) {
	switch config.WalletBackend {
	case "local":
		return NewLocalSigner(chain, config.WalletPrivateKey)
	case "custodial":
		provider := NewProviderClient(config.CustodialSignerURL, config.CustodialSignerToken, config.CustodialAddress)
		return NewCustodialSigner(chain, provider, config.CustodialAddress, config.CustodialPublicKey)
	default:
		return nil, fmt.Errorf("unknown wallet backend %q", config.WalletBackend)
	}
}
