package lnd

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

const (
	defaultExpiry  = 15 * time.Minute
	requestTimeout = 15 * time.Second
	maxBodySize    = 1 << 20 // 1 MB
	macaroonHeader = "Grpc-Metadata-macaroon"
)

// LNDProvider issues invoices on an LND node over its REST gateway.
type LNDProvider struct {
	host      string
	macaroon  string
	expiry    time.Duration
	minAmount int64
	http      *http.Client
	now       func() time.Time
}

// LNDOption configures an LNDProvider.
type LNDOption func(*LNDProvider)

// WithExpiry sets the expiry stamped on new invoices.
func WithExpiry(d time.Duration) LNDOption {
	return func(p *LNDProvider) {
		if d > 0 {
			p.expiry = d
		}
	}
}

// WithMinAmount makes CreateInvoice reject amounts below sats.
func WithMinAmount(sats int64) LNDOption {
	return func(p *LNDProvider) { p.minAmount = sats }
}

// WithNodeHTTPClient replaces the default http.Client, e.g. to trust a
// self-signed node certificate.
func WithNodeHTTPClient(hc *http.Client) LNDOption {
	return func(p *LNDProvider) { p.http = hc }
}

// NewLNDProvider creates a provider for host ("node:8080" or a full URL)
// authenticated with a hex-encoded invoice macaroon.
func NewLNDProvider(host, macaroon string, opts ...LNDOption) *LNDProvider {
	if !strings.HasPrefix(host, "http://") && !strings.HasPrefix(host, "https://") {
		host = "https://" + host
	}
	p := &LNDProvider{
		host:     strings.TrimRight(host, "/"),
		macaroon: macaroon,
		expiry:   defaultExpiry,
		http:     &http.Client{Timeout: requestTimeout},
		now:      time.Now,
	}
	for _, o := range opts {
		o(p)
	}
	return p
}

type addInvoiceRequest struct {
	Value  string `json:"value"`
	Memo   string `json:"memo"`
	Expiry string `json:"expiry"`
}

type addInvoiceResponse struct {
	RHash          string `json:"r_hash"`
	PaymentRequest string `json:"payment_request"`
	AddIndex       string `json:"add_index"`
}

type lookupInvoiceResponse struct {
	Settled bool   `json:"settled"`
	State   string `json:"state"`
}

// CreateInvoice implements Provider.
func (p *LNDProvider) CreateInvoice(ctx context.Context, amountSats int64, memo string) (*Invoice, error) {
	if amountSats < p.minAmount || amountSats <= 0 {
		return nil, fmt.Errorf("%w: %d sats (min %d)", ErrBelowMinimum, amountSats, p.minAmount)
	}

	req := addInvoiceRequest{
		Value:  fmt.Sprint(amountSats),
		Memo:   memo,
		Expiry: fmt.Sprint(int64(p.expiry / time.Second)),
	}
	var resp addInvoiceResponse
	if err := p.do(ctx, http.MethodPost, "/v1/invoices", req, &resp); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvoiceCreation, err)
	}
	if resp.PaymentRequest == "" || resp.RHash == "" {
		return nil, fmt.Errorf("%w: node returned an empty invoice", ErrInvoiceCreation)
	}

	hash, err := hashToHex(resp.RHash)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvoiceCreation, err)
	}

	return &Invoice{
		PaymentRequest: resp.PaymentRequest,
		PaymentHash:    hash,
		AddIndex:       resp.AddIndex,
		AmountSats:     amountSats,
		Memo:           memo,
		CreatedAt:      p.now(),
		Expiry:         p.expiry,
	}, nil
}

// CheckInvoiceStatus implements Provider.
func (p *LNDProvider) CheckInvoiceStatus(ctx context.Context, paymentHash string) (bool, error) {
	if _, err := hex.DecodeString(paymentHash); err != nil || paymentHash == "" {
		return false, fmt.Errorf("%w: payment hash %q is not hex", ErrInvoiceStatus, paymentHash)
	}
	var resp lookupInvoiceResponse
	if err := p.do(ctx, http.MethodGet, "/v1/invoice/"+paymentHash, nil, &resp); err != nil {
		return false, fmt.Errorf("%w: %w", ErrInvoiceStatus, err)
	}
	return resp.Settled || resp.State == "SETTLED", nil
}

// NodeInfo implements Provider.
func (p *LNDProvider) NodeInfo(ctx context.Context) (*NodeInfo, error) {
	var info NodeInfo
	if err := p.do(ctx, http.MethodGet, "/v1/getinfo", nil, &info); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrNodeInfo, err)
	}
	return &info, nil
}

func (p *LNDProvider) do(ctx context.Context, method, path string, in, out any) error {
	var body io.Reader
	if in != nil {
		data, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("encoding request: %w", err)
		}
		body = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, p.host+path, body)
	if err != nil {
		return fmt.Errorf("creating request: %w", err)
	}
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if p.macaroon != "" {
		req.Header.Set(macaroonHeader, p.macaroon)
	}

	resp, err := p.http.Do(req)
	if err != nil {
		return fmt.Errorf("fetching %s: %w", path, err)
	}
	defer func() { _ = resp.Body.Close() }()

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxBodySize))
	if err != nil {
		return fmt.Errorf("reading response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("unexpected status %d: %s", resp.StatusCode, nodeMessage(data))
	}
	if err := json.Unmarshal(data, out); err != nil {
		return fmt.Errorf("parsing response: %w", err)
	}
	return nil
}

const maxNodeMessage = 200 // runes

// nodeMessage extracts the gateway's error message, falling back to the raw body.
func nodeMessage(data []byte) string {
	var e struct {
		Message string `json:"message"`
		Error   string `json:"error"`
	}
	if json.Unmarshal(data, &e) == nil {
		if e.Message != "" {
			return e.Message
		}
		if e.Error != "" {
			return e.Error
		}
	}
	s := strings.TrimSpace(string(data))
	if r := []rune(s); len(r) > maxNodeMessage {
		s = string(r[:maxNodeMessage])
	}
	return s
}

// hashToHex converts the gateway's base64 r_hash to the hex form used in lookups.
func hashToHex(rHash string) (string, error) {
	raw, err := base64.StdEncoding.DecodeString(rHash)
	if err != nil {
		raw, err = base64.URLEncoding.DecodeString(rHash)
	}
	if err != nil {
		return "", fmt.Errorf("decoding r_hash: %w", err)
	}
	return hex.EncodeToString(raw), nil
}
