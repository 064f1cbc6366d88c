package cmd

import (
	"log/slog"
	"path/filepath"
	"testing"

	"github.com/lightningmodel/lnchat/internal/config"
)

func resetFlags(t *testing.T) {
	t.Helper()
	t.Cleanup(func() {
		flagConfig, flagAPIURL, flagStateDB = "", "", ""
		flagDev, flagQuiet, flagVerbose = false, false, false
	})
}

func TestParsePurchase(t *testing.T) {
	tests := []struct {
		args      []string
		wantPlan  config.PlanKind
		wantLimit int64
		wantErr   bool
	}{
		{[]string{"request", "100"}, config.PlanRequest, 100, false},
		{[]string{"tokens", "100,000"}, config.PlanToken, 100_000, false},
		{[]string{"monthly", "1"}, "", 0, true},
		{[]string{"token", "0"}, "", 0, true},
		{[]string{"token", "lots"}, "", 0, true},
	}
	for _, tt := range tests {
		plan, limit, err := parsePurchase(tt.args)
		if (err != nil) != tt.wantErr {
			t.Fatalf("parsePurchase(%v) err = %v, wantErr %v", tt.args, err, tt.wantErr)
		}
		if plan != tt.wantPlan || limit != tt.wantLimit {
			t.Fatalf("parsePurchase(%v) = %q, %d", tt.args, plan, limit)
		}
	}
}

func TestLoadConfigAppliesFlags(t *testing.T) {
	resetFlags(t)
	t.Setenv("LNCHAT_INVOICE_MODE", config.InvoiceModeLND)
	t.Setenv("LNCHAT_API_URL", "")

	flagConfig = filepath.Join(t.TempDir(), "config.toml")
	flagAPIURL = "http://chat.local/api/v1/"
	flagStateDB = filepath.Join(t.TempDir(), "state.db")
	flagDev = true

	cfg, err := loadConfig()
	if err != nil {
		t.Fatalf("loadConfig: %v", err)
	}
	if cfg.API.BaseURL != "http://chat.local/api/v1" {
		t.Fatalf("BaseURL = %q", cfg.API.BaseURL)
	}
	if cfg.Invoice.Mode != config.InvoiceModeDev {
		t.Fatalf("--dev did not win over env: mode = %q", cfg.Invoice.Mode)
	}
	if config.StatePath(cfg) != flagStateDB {
		t.Fatalf("StatePath = %q", config.StatePath(cfg))
	}
}

func TestLoadConfigRejectsInvalid(t *testing.T) {
	resetFlags(t)
	t.Setenv("LNCHAT_INVOICE_MODE", config.InvoiceModeLND)
	t.Setenv("LNCHAT_LND_HOST", "")
	flagConfig = filepath.Join(t.TempDir(), "config.toml")

	if _, err := loadConfig(); err == nil {
		t.Fatal("lnd mode without a host should not validate")
	}
}

func TestLogLevel(t *testing.T) {
	resetFlags(t)
	cfg := config.DefaultConfig()
	cfg.Log.Level = "warn"
	if got := logLevel(cfg); got != slog.LevelWarn {
		t.Fatalf("logLevel = %v, want warn", got)
	}
	cfg.Log.Level = "chatty"
	if got := logLevel(cfg); got != slog.LevelInfo {
		t.Fatalf("unknown level = %v, want info", got)
	}
	flagVerbose = true
	if got := logLevel(cfg); got != slog.LevelDebug {
		t.Fatalf("--verbose = %v, want debug", got)
	}
}

func TestMaskSecret(t *testing.T) {
	for in, want := range map[string]string{
		"":                         "not configured",
		"short":                    "****",
		"0201036c6e6402f801030a10": "020103...0a10",
	} {
		if got := maskSecret(in); got != want {
			t.Fatalf("maskSecret(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestParsePatch(t *testing.T) {
	patch, err := parsePatch([]string{"total_requests_limit=200", "stream=false", "model=gemini"})
	if err != nil {
		t.Fatalf("parsePatch: %v", err)
	}
	if patch["total_requests_limit"] != int64(200) || patch["stream"] != false || patch["model"] != "gemini" {
		t.Fatalf("patch = %#v", patch)
	}
	if _, err := parsePatch([]string{"novalue"}); err == nil {
		t.Fatal("expected error for missing '='")
	}
}
