package standx

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"standx-mm-bot/internal/config"
	"standx-mm-bot/internal/standx/auth"
	"standx-mm-bot/internal/standx/rest"
)

// Authenticate establishes a session for the configured auth mode and
// installs it on client.
func Authenticate(ctx context.Context, cfg *config.Config, client *rest.Client, log *zap.Logger) (*auth.Session, error) {
	if log == nil {
		log = zap.NewNop()
	}
	var (
		session *auth.Session
		err     error
	)
	switch cfg.Auth.Mode {
	case config.AuthPrivateKey:
		session, err = walletSession(ctx, cfg, client)
	case config.AuthAPIToken:
		session, err = tokenSession(cfg)
	default:
		err = fmt.Errorf("unsupported auth mode %q", cfg.Auth.Mode)
	}
	if err != nil {
		return nil, err
	}
	client.SetSession(session)
	log.Info("standx session ready", zap.String("mode", cfg.Auth.Mode), zap.String("address", session.Address))
	return session, nil
}

func walletSession(ctx context.Context, cfg *config.Config, client *rest.Client) (*auth.Session, error) {
	wallet, err := auth.NewWalletSigner(cfg.Auth.PrivateKey)
	if err != nil {
		return nil, err
	}
	signer, err := auth.GenerateRequestSigner()
	if err != nil {
		return nil, fmt.Errorf("generate request key: %w", err)
	}
	address := wallet.Address().Hex()
	token, err := client.WalletLogin(ctx, cfg.Venue.Chain, address, signer.RequestID(), wallet, cfg.Venue.TokenTTL)
	if err != nil {
		return nil, fmt.Errorf("wallet login: %w", err)
	}
	return &auth.Session{Token: token, Signer: signer, Address: address}, nil
}

func tokenSession(cfg *config.Config) (*auth.Session, error) {
	seed, err := auth.DecodeSigningKey(cfg.Auth.APIKey)
	if err != nil {
		return nil, fmt.Errorf("load signing key: %w", err)
	}
	signer, err := auth.NewRequestSigner(seed)
	if err != nil {
		return nil, err
	}
	return &auth.Session{Token: cfg.Auth.APIToken, Signer: signer, Address: "api_token"}, nil
}
