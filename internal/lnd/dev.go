package lnd

import (
	"context"
	"time"
)

// MockPaymentHash identifies invoices issued by DevProvider.
const MockPaymentHash = "mock-payment-hash"

// MockNodeAlias is the alias DevProvider reports for its fake node.
const MockNodeAlias = "MockLightningNode"

const mockPaymentRequest = "lntb1u1pjg2u8upp5e7r4zcfm547037ugyzmv7nnwj0en28pigj9h7n00s60xhwr7zsdqqcqzpgxqyz5vqsp56pnqv3y943pl9umr8grvlz09p4vk4fnzplqltuljx428j3h5spq9qyyssqrtlj8vnqzzsst5qkyhpgztlrpzwofl0hendfkc9prvnmk7hlxd3g3cve93lrjt0fzsx6lv7w8lgmejv6spvmawgcgrzfusvra5zrptcpndwx9p"

// DevProvider is the development fallback: it never touches a node, issues a
// fixed mock invoice, and reports that invoice as paid. Never use it in a
// production build.
type DevProvider struct {
	expiry time.Duration
	now    func() time.Time
}

// NewDevProvider returns a DevProvider whose invoices carry the given expiry.
func NewDevProvider(expiry time.Duration) *DevProvider {
	if expiry <= 0 {
		expiry = defaultExpiry
	}
	return &DevProvider{expiry: expiry, now: time.Now}
}

// CreateInvoice returns the deterministic mock invoice.
func (d *DevProvider) CreateInvoice(_ context.Context, amountSats int64, memo string) (*Invoice, error) {
	return &Invoice{
		PaymentRequest: mockPaymentRequest,
		PaymentHash:    MockPaymentHash,
		AddIndex:       "12345",
		AmountSats:     amountSats,
		Memo:           memo,
		CreatedAt:      d.now(),
		Expiry:         d.expiry,
	}, nil
}

// CheckInvoiceStatus reports the mock invoice as settled and anything else as unpaid.
func (d *DevProvider) CheckInvoiceStatus(_ context.Context, paymentHash string) (bool, error) {
	return paymentHash == MockPaymentHash, nil
}

// NodeInfo describes a fake testnet node.
func (d *DevProvider) NodeInfo(context.Context) (*NodeInfo, error) {
	return &NodeInfo{
		IdentityPubkey:    "mock-pubkey-for-testing",
		Alias:             MockNodeAlias,
		NumActiveChannels: 5,
		NumPeers:          10,
		BlockHeight:       123456,
		SyncedToChain:     true,
		Testnet:           true,
	}, nil
}
