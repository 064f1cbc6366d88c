package tui

import (
	"errors"
	"net/url"
	"strings"

	"github.com/charmbracelet/huh"

	"github.com/lightningmodel/lnchat/internal/config"
	"github.com/lightningmodel/lnchat/internal/tui/theme"
)

// SetupValues backs the first-run form.
type SetupValues struct {
	APIURL   string
	Mode     string
	LNDHost  string
	Macaroon string
	Theme    string
}

// NewSetupValues seeds the form from cfg.
func NewSetupValues(cfg config.Config) *SetupValues {
	return &SetupValues{
		APIURL:   cfg.API.BaseURL,
		Mode:     cfg.Invoice.Mode,
		LNDHost:  cfg.Invoice.RESTHost,
		Macaroon: cfg.Invoice.Macaroon,
		Theme:    cfg.Appearance.Theme,
	}
}

// Apply copies the answers into cfg.
func (v *SetupValues) Apply(cfg *config.Config) {
	cfg.API.BaseURL = strings.TrimRight(strings.TrimSpace(v.APIURL), "/")
	cfg.Invoice.Mode = v.Mode
	if v.Mode == config.InvoiceModeDev {
		cfg.Invoice.RESTHost = ""
		cfg.Invoice.Macaroon = ""
	} else {
		cfg.Invoice.RESTHost = strings.TrimSpace(v.LNDHost)
		cfg.Invoice.Macaroon = strings.TrimSpace(v.Macaroon)
	}
	cfg.Appearance.Theme = v.Theme
}

func validateAPIURL(s string) error {
	u, err := url.Parse(strings.TrimSpace(s))
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return errors.New("enter an http(s) URL, e.g. http://localhost:8000/api/v1")
	}
	return nil
}

func validateMacaroon(s string) error {
	s = strings.TrimSpace(s)
	if s == "" {
		return errors.New("the macaroon is required to create invoices")
	}
	for _, r := range s {
		if !strings.ContainsRune("0123456789abcdefABCDEF", r) {
			return errors.New("paste the macaroon hex-encoded")
		}
	}
	return nil
}

// NewSetupForm builds the first-run form bound to v.
func NewSetupForm(v *SetupValues) *huh.Form {
	themes := make([]huh.Option[string], 0, len(theme.All))
	for _, name := range theme.Names() {
		themes = append(themes, huh.NewOption(name, name))
	}

	return huh.NewForm(
		huh.NewGroup(
			huh.NewNote().
				Title("Welcome to lnchat").
				Description("Pay for chat sessions with Lightning.\nA few settings and you're ready."),
			huh.NewInput().
				Title("Chat service URL").
				Value(&v.APIURL).
				Validate(validateAPIURL),
			huh.NewSelect[string]().
				Title("Invoices").
				Options(
					huh.NewOption("Development (mock invoices, always paid)", config.InvoiceModeDev),
					huh.NewOption("LND node", config.InvoiceModeLND),
					huh.NewOption("LND node, mock on failure", config.InvoiceModeLNDFallback),
				).
				Value(&v.Mode),
		),
		huh.NewGroup(
			huh.NewInput().
				Title("LND REST host").
				Placeholder("localhost:8080").
				Value(&v.LNDHost).
				Validate(func(s string) error {
					if strings.TrimSpace(s) == "" {
						return errors.New("the REST host is required")
					}
					return nil
				}),
			huh.NewInput().
				Title("Invoice macaroon (hex)").
				EchoMode(huh.EchoModePassword).
				Value(&v.Macaroon).
				Validate(validateMacaroon),
		).WithHideFunc(func() bool { return v.Mode == config.InvoiceModeDev }),
		huh.NewGroup(
			huh.NewSelect[string]().
				Title("Theme").
				Options(themes...).
				Value(&v.Theme),
		),
	).WithTheme(huh.ThemeCharm())
}
