package cmd

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/lightningmodel/lnchat/internal/api"
	"github.com/lightningmodel/lnchat/internal/chat"
	"github.com/lightningmodel/lnchat/internal/config"
	"github.com/lightningmodel/lnchat/internal/lnd"
	"github.com/lightningmodel/lnchat/internal/payment"
	"github.com/lightningmodel/lnchat/internal/session"
	"github.com/lightningmodel/lnchat/internal/store"
)

// deps is everything a command needs, built from config and flags.
type deps struct {
	cfg      config.Config
	log      *slog.Logger
	db       *store.DB
	tokens   *session.Store
	client   *api.Client
	provider lnd.Provider
	payment  *payment.Coordinator
	chat     *chat.Coordinator

	logFile *os.File
}

// loadConfig reads the config file and applies command-line overrides.
func loadConfig() (config.Config, error) {
	var (
		cfg config.Config
		err error
	)
	if flagConfig != "" {
		cfg, err = config.LoadFrom(flagConfig)
	} else {
		cfg, err = config.Load()
	}
	if err != nil {
		return cfg, err
	}

	if flagAPIURL != "" {
		cfg.API.BaseURL = strings.TrimRight(flagAPIURL, "/")
	}
	if flagStateDB != "" {
		cfg.General.StateDB = flagStateDB
	}
	if flagDev {
		cfg.Invoice.Mode = config.InvoiceModeDev
	}
	if err := cfg.Validate(); err != nil {
		return cfg, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, nil
}

func logLevel(cfg config.Config) slog.Level {
	switch {
	case flagVerbose:
		return slog.LevelDebug
	case flagQuiet:
		return slog.LevelError
	}
	var lvl slog.Level
	if err := lvl.UnmarshalText([]byte(cfg.Log.Level)); err != nil {
		return slog.LevelInfo
	}
	return lvl
}

func newLogger(w io.Writer, level slog.Level) *slog.Logger {
	return slog.New(slog.NewTextHandler(w, &slog.HandlerOptions{Level: level}))
}

// openDeps wires the client stack. When toFile is set, logs go to the log
// file instead of stderr so they do not draw over the TUI.
func openDeps(toFile bool) (*deps, error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, err
	}

	d := &deps{cfg: cfg}
	var out io.Writer = os.Stderr
	if toFile {
		path := cfg.Log.File
		if path == "" {
			path = filepath.Join(config.CacheDir(), "lnchat.log")
		}
		if err := os.MkdirAll(filepath.Dir(path), 0o750); err != nil {
			return nil, fmt.Errorf("creating log dir: %w", err)
		}
		f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_APPEND, 0o600) //nolint:gosec // user log path
		if err != nil {
			return nil, fmt.Errorf("opening log file: %w", err)
		}
		d.logFile = f
		out = f
	}
	d.log = newLogger(out, logLevel(cfg))
	slog.SetDefault(d.log)

	d.db, err = store.Open(config.StatePath(cfg))
	if err != nil {
		d.Close()
		return nil, err
	}
	d.tokens = session.NewStore(d.db)
	if err := d.tokens.Init(); err != nil {
		d.log.Warn("persisted session unreadable, starting fresh", "err", err)
	}

	d.client = api.NewClient(cfg.API.BaseURL, d.tokens,
		api.WithTimeout(time.Duration(cfg.API.TimeoutSeconds)*time.Second),
		api.WithLogger(d.log.With("component", "api")),
	)

	d.provider, err = lnd.NewProvider(cfg.Invoice, d.log.With("component", "lnd"))
	if err != nil {
		d.Close()
		return nil, err
	}
	d.payment = payment.NewCoordinator(d.provider, cfg.EffectiveRates(),
		payment.PollConfigFrom(cfg.Invoice), d.log.With("component", "payment"))
	d.chat = chat.NewCoordinator(d.client, d.log.With("component", "chat"))
	d.chat.SelectModel(cfg.General.DefaultModel)

	d.log.Debug("client ready", "api", cfg.API.BaseURL, "invoice_mode", cfg.Invoice.Mode,
		"state", config.StatePath(cfg))
	return d, nil
}

// Close releases the state database and the log file.
func (d *deps) Close() {
	if d.payment != nil {
		d.payment.ResetPayment()
	}
	if d.db != nil {
		if err := d.db.Close(); err != nil {
			d.log.Warn("closing state db", "err", err)
		}
	}
	if d.logFile != nil {
		_ = d.logFile.Close()
	}
}
