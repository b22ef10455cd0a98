// Package orderer drives the ACME HTTP-01 order workflow end to end
// (C4): create an order, present challenges, wait for the CA to
// validate them, finalize with a CSR, and retrieve the issued
// certificate. Grounded on original_source's
// src/acme/{order,account,challenge}.rs, re-expressed against
// github.com/mholt/acmez/v3/acme's lower-level RFC 8555 client rather
// than instant-acme, and against go.uber.org/zap for logging in place
// of tracing.
package orderer

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/mholt/acmez/v3/acme"
	"go.uber.org/zap"

	"github.com/csssuf/envoy-acme-xds/internal/apperr"
	"github.com/csssuf/envoy-acme-xds/internal/challenge"
	"github.com/csssuf/envoy-acme-xds/internal/storage"
)

// settlingDelay is how long we wait after publishing challenge routes
// to the data plane before telling the CA the challenges are ready,
// giving the xDS push time to propagate. Decided in Open Question
// "should the settling delay be configurable" to remain a fixed
// constant rather than a tunable.
const settlingDelay = 2 * time.Second

const (
	pollStart    = 1 * time.Second
	pollMax      = 30 * time.Second
	pollAttempts = 30
)

// Orderer issues and renews certificates against a single ACME
// directory using a single persistent account.
type Orderer struct {
	client  *acme.Client
	account acme.Account
	store   *storage.Store
	log     *zap.Logger
}

// New constructs an Orderer, loading or creating its ACME account
// against directoryURL using store for persistence.
func New(ctx context.Context, directoryURL string, store *storage.Store, log *zap.Logger) (*Orderer, error) {
	client := &acme.Client{
		Directory:  directoryURL,
		HTTPClient: http.DefaultClient,
		Logger:     log,
	}

	account, err := loadOrCreateAccount(ctx, client, store, log)
	if err != nil {
		return nil, apperr.WrapConfigError("initializing ACME account", err)
	}

	return &Orderer{client: client, account: account, store: store, log: log}, nil
}

// Result is an issued certificate ready for persistence and
// publication.
type Result struct {
	CertChainPEM  string
	PrivateKeyPEM string
	Domains       []string
}

// OnChallengesReady is called once HTTP-01 challenge routes have been
// registered in the shared challenge registry, so the caller can push
// them to the data plane before the CA is told to validate.
type OnChallengesReady func()

// Order runs the full seven-step certificate issuance workflow for
// certName across domains, publishing HTTP-01 challenges into
// registry as they're discovered and invoking onReady once they're
// all staged. Challenges for certName are always cleared before
// returning, on both the success and failure paths.
func (o *Orderer) Order(ctx context.Context, certName string, domains []string, registry *challenge.Registry, onReady OnChallengesReady) (*Result, error) {
	log := o.log.With(zap.String("cert_name", certName), zap.Strings("domains", domains))
	log.Info("starting certificate order")

	defer registry.ClearFor(certName)

	order, err := o.createOrder(ctx, domains)
	if err != nil {
		return nil, err
	}

	pendingChallengeURLs, err := o.processAuthorizations(ctx, order, certName, registry, log)
	if err != nil {
		return nil, err
	}

	if len(pendingChallengeURLs) > 0 {
		if onReady != nil {
			onReady()
		}

		select {
		case <-time.After(settlingDelay):
		case <-ctx.Done():
			return nil, ctx.Err()
		}

		for _, url := range pendingChallengeURLs {
			if _, err := o.client.InitiateChallenge(ctx, o.account, acme.Challenge{URL: url}); err != nil {
				return nil, apperr.NewChallengeFailed(fmt.Sprintf("signaling challenge ready at %s: %v", url, err))
			}
		}

		order, err = o.waitForOrder(ctx, order, log)
		if err != nil {
			return nil, err
		}
	}

	registry.ClearFor(certName)

	csrDER, certKeyPEM, _, err := generateCSR(domains)
	if err != nil {
		return nil, apperr.WrapConfigError("generating CSR", err)
	}

	order, err = o.client.FinalizeOrder(ctx, o.account, order, csrDER)
	if err != nil {
		return nil, apperr.NewChallengeFailed(fmt.Sprintf("finalizing order: %v", err))
	}

	order, err = o.waitForOrder(ctx, order, log)
	if err != nil {
		return nil, err
	}

	chains, err := o.client.GetCertificateChain(ctx, o.account, order.Certificate)
	if err != nil {
		return nil, apperr.NewChallengeFailed(fmt.Sprintf("downloading certificate: %v", err))
	}
	if len(chains) == 0 {
		return nil, apperr.NewChallengeFailed("no certificate returned")
	}

	log.Info("certificate issued successfully")

	return &Result{
		CertChainPEM:  string(chains[0].ChainPEM),
		PrivateKeyPEM: certKeyPEM,
		Domains:       domains,
	}, nil
}

func (o *Orderer) createOrder(ctx context.Context, domains []string) (acme.Order, error) {
	identifiers := make([]acme.Identifier, len(domains))
	for i, d := range domains {
		identifiers[i] = acme.Identifier{Type: "dns", Value: d}
	}

	order, err := o.client.NewOrder(ctx, o.account, acme.Order{Identifiers: identifiers})
	if err != nil {
		return acme.Order{}, apperr.WrapConfigError("creating ACME order", err)
	}
	return order, nil
}

// processAuthorizations walks every authorization on order: pending
// ones get their HTTP-01 challenge staged in registry and their
// challenge URL queued for readiness signaling; already-valid ones
// are left alone. Mirrors original_source's authorization-status match
// in CertificateOrder::order, with one addition: rather than bailing
// out on the first unexpected status, every authorization is still
// examined, and each failing one is logged with its own identifier and
// status before a single aggregate error covering all of them is
// returned, so a multi-domain order's log doesn't hide which of
// several bad authorizations caused the failure.
func (o *Orderer) processAuthorizations(ctx context.Context, order acme.Order, certName string, registry *challenge.Registry, log *zap.Logger) ([]string, error) {
	var pending []string
	var failures []string
	var lastStatus, lastProblem string

	for _, authzURL := range order.Authorizations {
		authz, err := o.client.GetAuthorization(ctx, o.account, authzURL)
		if err != nil {
			return nil, apperr.WrapConfigError("fetching authorization", err)
		}

		log.Debug("processing authorization",
			zap.String("identifier", authz.Identifier.Value),
			zap.String("status", string(authz.Status)))

		switch authz.Status {
		case acme.StatusPending:
			chal, ok := findHTTP01(authz.Challenges)
			if !ok {
				log.Warn("authorization has no HTTP-01 challenge",
					zap.String("identifier", authz.Identifier.Value),
					zap.String("status", string(authz.Status)))
				failures = append(failures, fmt.Sprintf("%s: no HTTP-01 challenge available", authz.Identifier.Value))
				continue
			}

			keyAuth, err := keyAuthorization(o.account.PrivateKey, chal.Token)
			if err != nil {
				return nil, apperr.WrapConfigError("computing key authorization", err)
			}

			registry.Add(challenge.Active{
				Token:            chal.Token,
				KeyAuthorization: keyAuth,
				Domain:           authz.Identifier.Value,
				CertName:         certName,
			})
			pending = append(pending, chal.URL)

		case acme.StatusValid:
			log.Debug("authorization already valid", zap.String("identifier", authz.Identifier.Value))

		default:
			problem := ""
			if authz.Error != nil {
				problem = authz.Error.Detail
			}
			log.Warn("authorization in unexpected status",
				zap.String("identifier", authz.Identifier.Value),
				zap.String("status", string(authz.Status)),
				zap.String("problem", problem))
			failures = append(failures, fmt.Sprintf("%s: unexpected status %s", authz.Identifier.Value, authz.Status))
			lastStatus = string(authz.Status)
			lastProblem = problem
		}
	}

	if len(failures) > 0 {
		return nil, apperr.NewChallengeFailedWithStatus(
			fmt.Sprintf("%d of %d authorizations failed: %s", len(failures), len(order.Authorizations), strings.Join(failures, "; ")),
			lastStatus, lastProblem)
	}

	return pending, nil
}

func findHTTP01(challenges []acme.Challenge) (acme.Challenge, bool) {
	for _, c := range challenges {
		if c.Type == "http-01" {
			return c, true
		}
	}
	return acme.Challenge{}, false
}

// waitForOrder polls order until it reaches ready/valid, fails on
// invalid, and times out after pollAttempts with exponentially
// backed-off delay capped at pollMax. Mirrors original_source's
// CertificateOrder::wait_for_order_ready.
func (o *Orderer) waitForOrder(ctx context.Context, order acme.Order, log *zap.Logger) (acme.Order, error) {
	delay := pollStart

	for attempt := 1; attempt <= pollAttempts; attempt++ {
		log.Debug("checking order status", zap.Int("attempt", attempt), zap.String("status", string(order.Status)))

		switch order.Status {
		case acme.StatusReady, acme.StatusValid:
			return order, nil
		case acme.StatusInvalid:
			summary := "order became invalid"
			if order.Error != nil {
				summary = order.Error.Detail
			}
			return acme.Order{}, apperr.NewChallengeFailedWithStatus(summary, string(order.Status), summary)
		}

		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return acme.Order{}, ctx.Err()
		}

		delay *= 2
		if delay > pollMax {
			delay = pollMax
		}

		refreshed, err := o.client.GetOrder(ctx, o.account, order.Location)
		if err != nil {
			return acme.Order{}, apperr.WrapConfigError("refreshing order status", err)
		}
		order = refreshed
	}

	problem := ""
	if order.Error != nil {
		problem = order.Error.Detail
	}
	return acme.Order{}, apperr.NewChallengeFailedWithStatus("order did not complete in time", string(order.Status), problem)
}
