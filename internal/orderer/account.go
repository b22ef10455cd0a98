package orderer

import (
	"context"
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"crypto/x509"
	"encoding/pem"
	"fmt"
	"time"

	"github.com/mholt/acmez/v3/acme"
	"go.uber.org/zap"

	"github.com/csssuf/envoy-acme-xds/internal/storage"
)

// Account bootstrap retry budget: the CA-facing registration call is
// retried with doubling backoff before the sidecar gives up and treats
// it as a fatal startup condition.
const (
	accountBootstrapAttempts = 5
	accountBootstrapDelay    = 1 * time.Second
)

// loadOrCreateAccount restores a previously persisted ACME account, or
// registers a new one and persists its credentials. Grounded on
// original_source's acme/account.rs AcmeAccount::load_or_create.
func loadOrCreateAccount(ctx context.Context, client *acme.Client, store *storage.Store, log *zap.Logger) (acme.Account, error) {
	creds, err := store.LoadAccount()
	if err != nil {
		return acme.Account{}, fmt.Errorf("loading stored account: %w", err)
	}

	if creds != nil {
		log.Info("restoring existing ACME account")
		key, err := decodeECKey(creds.Key)
		if err != nil {
			return acme.Account{}, fmt.Errorf("decoding stored account key: %w", err)
		}
		return acme.Account{
			PrivateKey: key,
			Location:   creds.ID,
			Status:     acme.StatusValid,
		}, nil
	}

	log.Info("creating new ACME account")
	key, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	if err != nil {
		return acme.Account{}, fmt.Errorf("generating account key: %w", err)
	}

	account := acme.Account{
		Contact:              nil,
		TermsOfServiceAgreed: true,
		PrivateKey:           key,
	}

	account, err = registerAccountWithRetry(ctx, client, account, log)
	if err != nil {
		return acme.Account{}, err
	}

	keyPEM, err := encodeECKey(key)
	if err != nil {
		return acme.Account{}, fmt.Errorf("encoding account key: %w", err)
	}
	if err := store.SaveAccount(&storage.AccountCredentials{
		ID:        account.Location,
		Key:       keyPEM,
		Directory: client.Directory,
	}); err != nil {
		return acme.Account{}, fmt.Errorf("saving account credentials: %w", err)
	}
	log.Info("ACME account created and saved")

	return account, nil
}

// registerAccountWithRetry registers account against the CA, retrying
// up to accountBootstrapAttempts times with delay doubling from
// accountBootstrapDelay on each failure. Exhausting the budget is a
// named fatal condition: account bootstrap exhausted retries.
func registerAccountWithRetry(ctx context.Context, client *acme.Client, account acme.Account, log *zap.Logger) (acme.Account, error) {
	delay := accountBootstrapDelay

	for attempt := 1; attempt <= accountBootstrapAttempts; attempt++ {
		registered, err := client.NewAccount(ctx, account)
		if err == nil {
			return registered, nil
		}

		if attempt == accountBootstrapAttempts {
			return acme.Account{}, fmt.Errorf("account bootstrap exhausted retries: %w", err)
		}

		log.Warn("registering ACME account failed, retrying",
			zap.Int("attempt", attempt),
			zap.Int("max_attempts", accountBootstrapAttempts),
			zap.Error(err))

		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return acme.Account{}, ctx.Err()
		}
		delay *= 2
	}

	return acme.Account{}, fmt.Errorf("account bootstrap exhausted retries")
}

func encodeECKey(key *ecdsa.PrivateKey) (string, error) {
	der, err := x509.MarshalECPrivateKey(key)
	if err != nil {
		return "", err
	}
	block := &pem.Block{Type: "EC PRIVATE KEY", Bytes: der}
	return string(pem.EncodeToMemory(block)), nil
}

func decodeECKey(keyPEM string) (*ecdsa.PrivateKey, error) {
	block, _ := pem.Decode([]byte(keyPEM))
	if block == nil {
		return nil, fmt.Errorf("no PEM block found in stored account key")
	}
	return x509.ParseECPrivateKey(block.Bytes)
}
