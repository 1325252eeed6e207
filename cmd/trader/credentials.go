package main

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/paralela17-sudo/volatile-trader-app-sub001/internal/binance"
	"github.com/paralela17-sudo/volatile-trader-app-sub001/internal/credentials"
	"github.com/paralela17-sudo/volatile-trader-app-sub001/internal/database"
)

// signingClient signs with the key pair userID saved from the dashboard.
// Without a stored pair the keys from the binance config section are used.
func signingClient(ctx context.Context, base *binance.RestClient, store database.Store, passphrase, userID string, log *zap.Logger) (*binance.RestClient, error) {
	cred, err := store.GetCredentials(ctx, userID)
	if errors.Is(err, database.ErrNotFound) {
		log.Info("No stored API credentials, using configured keys", zap.String("user_id", userID))
		return base, nil
	}
	if err != nil {
		return nil, fmt.Errorf("could not load credentials for %s: %w", userID, err)
	}

	cipher, err := credentials.NewCipher(passphrase)
	if err != nil {
		return nil, err
	}
	secret, err := cipher.Decrypt(cred.SecretKey)
	if err != nil {
		return nil, fmt.Errorf("could not decrypt credentials for %s: %w", userID, err)
	}

	client := base
	if cred.IsTestnet {
		client = client.WithBaseURL(binance.TestnetBaseURL())
	}
	log.Info("Using stored API credentials", zap.String("user_id", userID), zap.Bool("testnet", cred.IsTestnet))
	return client.WithCredentials(cred.APIKey, secret), nil
}
