package verifier

import (
	"fmt"

	"github.com/cruxstack/email-verifier-go/internal/config"
)

// Factory builds a verifier bound to one API key. The key is supplied per
// batch, so verifiers are constructed per batch as well.
type Factory func(apiKey string) EmailVerifier

func NewFactory(cfg *config.Config) (Factory, error) {
	switch cfg.AppVerifierProvider {
	case config.ProviderQuickEmail:
		return func(apiKey string) EmailVerifier {
			return NewQuickEmailVerifier(cfg, apiKey)
		}, nil
	case config.ProviderOffline:
		return func(string) EmailVerifier {
			return NewOfflineVerifier()
		}, nil
	default:
		return nil, fmt.Errorf("unknown email verification provider: %s", cfg.AppVerifierProvider)
	}
}
