// Package lnd creates and tracks Lightning invoices for plan purchases.
package lnd

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/lightningmodel/lnchat/internal/config"
)

var (
	// ErrInvalidPlanKind is returned when pricing an unknown plan.
	ErrInvalidPlanKind = errors.New("lnd: invalid plan type")
	// ErrInvoiceCreation wraps failures to create an invoice.
	ErrInvoiceCreation = errors.New("lnd: invoice creation failed")
	// ErrInvoiceStatus wraps failures to look up an invoice.
	ErrInvoiceStatus = errors.New("lnd: invoice status check failed")
	// ErrBelowMinimum is returned by the node provider for amounts it will not invoice.
	ErrBelowMinimum = errors.New("lnd: amount below provider minimum")
	// ErrNodeInfo wraps failures of the getinfo call.
	ErrNodeInfo = errors.New("lnd: node info unavailable")
)

// Invoice is one payment request.
type Invoice struct {
	PaymentRequest string        `json:"payment_request"`
	PaymentHash    string        `json:"payment_hash"` // hex
	AddIndex       string        `json:"add_index,omitempty"`
	AmountSats     int64         `json:"amount_sats"`
	Memo           string        `json:"memo"`
	CreatedAt      time.Time     `json:"created_at"`
	Expiry         time.Duration `json:"expiry"`
	Settled        bool          `json:"settled"`
}

// ExpiresAt is when the invoice stops being payable.
func (i Invoice) ExpiresAt() time.Time {
	return i.CreatedAt.Add(i.Expiry)
}

// Expired reports whether the invoice lapsed unpaid by now.
func (i Invoice) Expired(now time.Time) bool {
	return !i.Settled && i.Expiry > 0 && !now.Before(i.ExpiresAt())
}

// NodeInfo is the subset of getinfo shown to the user.
type NodeInfo struct {
	IdentityPubkey    string `json:"identity_pubkey"`
	Alias             string `json:"alias"`
	NumActiveChannels int    `json:"num_active_channels"`
	NumPeers          int    `json:"num_peers"`
	BlockHeight       int64  `json:"block_height"`
	SyncedToChain     bool   `json:"synced_to_chain"`
	Testnet           bool   `json:"testnet"`
}

// Provider is anything that can issue and look up invoices.
type Provider interface {
	CreateInvoice(ctx context.Context, amountSats int64, memo string) (*Invoice, error)
	CheckInvoiceStatus(ctx context.Context, paymentHash string) (bool, error)
	NodeInfo(ctx context.Context) (*NodeInfo, error)
}

// NewProvider builds the provider selected by cfg.Mode.
func NewProvider(cfg config.InvoiceConfig, log *slog.Logger) (Provider, error) {
	if log == nil {
		log = slog.Default()
	}
	expiry := time.Duration(cfg.ExpirySeconds) * time.Second
	dev := NewDevProvider(expiry)

	switch cfg.Mode {
	case config.InvoiceModeDev, "":
		log.Warn("using development invoice provider; invoices are mocks and always settle")
		return dev, nil
	case config.InvoiceModeLND, config.InvoiceModeLNDFallback:
		if cfg.RESTHost == "" {
			return nil, fmt.Errorf("lnd: rest_host is required in %s mode", cfg.Mode)
		}
		node := NewLNDProvider(cfg.RESTHost, cfg.Macaroon,
			WithExpiry(expiry), WithMinAmount(cfg.MinAmountSats))
		if cfg.Mode == config.InvoiceModeLND {
			return node, nil
		}
		log.Warn("invoice provider falls back to mocks when the node is unreachable")
		return &FallbackProvider{
			Primary:   node,
			Dev:       dev,
			MinAmount: cfg.MinAmountSats,
			FailOpen:  true,
			Log:       log,
		}, nil
	}
	return nil, fmt.Errorf("lnd: unknown invoice mode %q", cfg.Mode)
}
