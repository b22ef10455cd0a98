// Package renewal drives startup issuance and periodic renewal of the
// certificates named in configuration (C5). Grounded on
// original_source's src/acme/renewal.rs RenewalManager, with the same
// fixed 30-day renewal threshold and per-certificate failure
// isolation (one certificate's renewal failure never blocks another's).
package renewal

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/csssuf/envoy-acme-xds/internal/challenge"
	"github.com/csssuf/envoy-acme-xds/internal/config"
	"github.com/csssuf/envoy-acme-xds/internal/envoybuild"
	"github.com/csssuf/envoy-acme-xds/internal/orderer"
	"github.com/csssuf/envoy-acme-xds/internal/storage"
	"github.com/csssuf/envoy-acme-xds/internal/xdsstate"
)

// renewalThresholdDays matches original_source's fixed 30-day
// renewal window: a certificate is renewed once fewer than this many
// whole days remain until expiry. At exactly the threshold, a
// certificate is NOT yet due (the check is strictly "<", never "<=").
const renewalThresholdDays = 30

// Manager owns the set of configured certificates and keeps them
// issued and fresh.
type Manager struct {
	store     *storage.Store
	orderer   *orderer.Orderer
	registry  *challenge.Registry
	xds       *xdsstate.Store
	certs     []config.Certificate
	log       *zap.Logger
}

// New constructs a renewal Manager for the given certificate set.
func New(store *storage.Store, ord *orderer.Orderer, registry *challenge.Registry, xds *xdsstate.Store, certs []config.Certificate, log *zap.Logger) *Manager {
	return &Manager{store: store, orderer: ord, registry: registry, xds: xds, certs: certs, log: log}
}

// InitialIssuance loads every configured certificate that already
// exists and hasn't expired into xDS state, and issues any that are
// missing or expired. Mirrors original_source's
// RenewalManager::initial_issuance.
func (m *Manager) InitialIssuance(ctx context.Context) {
	m.log.Info("performing initial certificate check/issuance")

	for _, cert := range m.certs {
		stored, err := m.store.LoadCert(cert.Name)
		if err == nil && stored != nil && time.Until(stored.NotAfter) > 0 {
			m.log.Info("loading existing certificate",
				zap.String("name", cert.Name),
				zap.Duration("time_until_expiry", time.Until(stored.NotAfter)))
			m.publish(cert.Name, stored.CertChainPEM, stored.PrivateKeyPEM)
			continue
		}

		m.log.Info("issuing new certificate", zap.String("name", cert.Name))
		if err := m.renew(ctx, cert); err != nil {
			m.log.Error("failed to issue certificate on startup", zap.String("name", cert.Name), zap.Error(err))
		}
	}
}

// Run loops forever, checking every certificate against the renewal
// threshold every checkInterval, until ctx is canceled.
func (m *Manager) Run(ctx context.Context, checkInterval time.Duration) {
	m.log.Info("starting certificate renewal manager",
		zap.Duration("check_interval", checkInterval),
		zap.Int("threshold_days", renewalThresholdDays))

	ticker := time.NewTicker(checkInterval)
	defer ticker.Stop()

	for {
		m.checkAndRenew(ctx)

		select {
		case <-ticker.C:
		case <-ctx.Done():
			return
		}
	}
}

func (m *Manager) checkAndRenew(ctx context.Context) {
	for _, cert := range m.certs {
		needsRenewal, err := m.needsRenewal(cert.Name)
		if err != nil {
			m.log.Warn("failed to check certificate", zap.String("name", cert.Name), zap.Error(err))
			needsRenewal = true
		}
		if !needsRenewal {
			continue
		}

		m.log.Info("certificate needs renewal", zap.String("name", cert.Name))
		if err := m.renew(ctx, cert); err != nil {
			m.log.Error("failed to renew certificate", zap.String("name", cert.Name), zap.Error(err))
		}
	}
}

// needsRenewal reports whether cert should be renewed: true if it
// doesn't exist on disk, or if fewer than renewalThresholdDays
// whole days remain before it expires.
func (m *Manager) needsRenewal(name string) (bool, error) {
	cert, err := m.store.LoadCert(name)
	if err != nil {
		return false, err
	}
	if cert == nil {
		return true, nil
	}

	daysUntilExpiry := int64(time.Until(cert.NotAfter).Hours() / 24)
	return daysUntilExpiry < renewalThresholdDays, nil
}

func (m *Manager) renew(ctx context.Context, cert config.Certificate) error {
	result, err := m.orderer.Order(ctx, cert.Name, cert.Domains, m.registry, func() {
		m.xds.RequestRebuild()
	})
	if err != nil {
		return err
	}

	notAfter, err := storage.ParseCertificateExpiry(result.CertChainPEM)
	if err != nil {
		return err
	}

	if err := m.store.SaveCert(cert.Name, &storage.Cert{
		CertChainPEM:  result.CertChainPEM,
		PrivateKeyPEM: result.PrivateKeyPEM,
		Domains:       cert.Domains,
		NotAfter:      notAfter,
	}); err != nil {
		return err
	}

	m.publish(cert.Name, result.CertChainPEM, result.PrivateKeyPEM)
	m.log.Info("certificate renewed successfully", zap.String("name", cert.Name))
	return nil
}

func (m *Manager) publish(name, chainPEM, keyPEM string) {
	m.xds.PutSecret(name, envoybuild.BuildTLSSecret(name, chainPEM, keyPEM))
}
