package lnd

import (
	"context"
	"log/slog"
)

// FallbackProvider fronts a real node with the development provider.
// Amounts under MinAmount and the mock hash always go to Dev. Node failures
// fall back to Dev only when FailOpen is set; a status-check failure then
// counts as paid, which unblocks local development and nothing else. A check
// cut short by its context is never reported as paid.
type FallbackProvider struct {
	Primary   Provider
	Dev       Provider
	MinAmount int64
	FailOpen  bool
	Log       *slog.Logger
}

func (f *FallbackProvider) logger() *slog.Logger {
	if f.Log == nil {
		return slog.Default()
	}
	return f.Log
}

// CreateInvoice implements Provider.
func (f *FallbackProvider) CreateInvoice(ctx context.Context, amountSats int64, memo string) (*Invoice, error) {
	if amountSats < f.MinAmount {
		f.logger().Info("amount below node minimum, issuing mock invoice",
			"amount_sats", amountSats, "min", f.MinAmount)
		return f.Dev.CreateInvoice(ctx, amountSats, memo)
	}

	inv, err := f.Primary.CreateInvoice(ctx, amountSats, memo)
	if err == nil {
		return inv, nil
	}
	if !f.FailOpen {
		return nil, err
	}
	f.logger().Warn("invoice creation failed, issuing mock invoice", "err", err)
	return f.Dev.CreateInvoice(ctx, amountSats, memo)
}

// CheckInvoiceStatus implements Provider.
func (f *FallbackProvider) CheckInvoiceStatus(ctx context.Context, paymentHash string) (bool, error) {
	if paymentHash == MockPaymentHash {
		return f.Dev.CheckInvoiceStatus(ctx, paymentHash)
	}

	settled, err := f.Primary.CheckInvoiceStatus(ctx, paymentHash)
	if err == nil {
		return settled, nil
	}
	if !f.FailOpen || ctx.Err() != nil {
		// A cancelled or timed-out check says nothing about the node.
		return false, err
	}
	f.logger().Warn("invoice status check failed, treating as paid", "hash", paymentHash, "err", err)
	return true, nil
}

// NodeInfo implements Provider.
func (f *FallbackProvider) NodeInfo(ctx context.Context) (*NodeInfo, error) {
	info, err := f.Primary.NodeInfo(ctx)
	if err == nil || !f.FailOpen {
		return info, err
	}
	return f.Dev.NodeInfo(ctx)
}
