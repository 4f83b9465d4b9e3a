package payments

import (
	"context"
	"fmt"
	"strings"

	"github.com/afribook/afribook-backend/pkg/enums"
)

// ChargeRequest asks a provider to collect money from a subscriber.
type ChargeRequest struct {
	Amount      int64
	Currency    enums.Currency
	PayerPhone  string
	ExternalRef string
	Description string
}

// PayoutRequest asks a provider to push money to a subscriber.
type PayoutRequest struct {
	Amount      int64
	Currency    enums.Currency
	PayeePhone  string
	ExternalRef string
	Description string
}

// Result is the normalized provider response for an initiated transfer.
type Result struct {
	ProviderRef string
	Status      enums.PaymentStatus
}

// Gateway is the uniform contract over mobile-money providers. It is a pure
// transport layer: it knows nothing about orders or wallets.
type Gateway interface {
	Provider() enums.PaymentProvider
	Charge(ctx context.Context, req ChargeRequest) (*Result, error)
	Payout(ctx context.Context, req PayoutRequest) (*Result, error)
}

// Resolver routes payment operations to the gateway for a provider.
type Resolver struct {
	gateways map[enums.PaymentProvider]Gateway
}

// NewResolver indexes the provided gateways by provider.
func NewResolver(gateways ...Gateway) (*Resolver, error) {
	indexed := make(map[enums.PaymentProvider]Gateway, len(gateways))
	for _, gw := range gateways {
		if gw == nil {
			return nil, fmt.Errorf("nil gateway provided")
		}
		provider := gw.Provider()
		if _, exists := indexed[provider]; exists {
			return nil, fmt.Errorf("duplicate gateway for provider %s", provider)
		}
		indexed[provider] = gw
	}
	return &Resolver{gateways: indexed}, nil
}

// Gateway returns the gateway registered for the provider.
func (r *Resolver) Gateway(provider enums.PaymentProvider) (Gateway, error) {
	gw, ok := r.gateways[provider]
	if !ok {
		return nil, fmt.Errorf("no gateway registered for provider %s", provider)
	}
	return gw, nil
}

// normalizeProviderStatus maps provider status strings onto the internal enum.
// Unknown values stay PENDING so a later webhook can still resolve them.
func normalizeProviderStatus(raw string) enums.PaymentStatus {
	switch strings.ToUpper(strings.TrimSpace(raw)) {
	case "SUCCESSFUL", "SUCCESS", "SUCCEEDED", "COMPLETED", "PAID":
		return enums.PaymentStatusSucceeded
	case "FAILED", "FAILURE", "REJECTED", "EXPIRED", "TIMEOUT", "CANCELLED", "CANCELED":
		return enums.PaymentStatusFailed
	default:
		return enums.PaymentStatusPending
	}
}
