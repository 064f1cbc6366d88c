package components

import (
	"strings"

	"github.com/mdp/qrterminal/v3"
)

// QRCode renders payload as a half-block QR code suitable for a terminal.
func QRCode(payload string) string {
	if payload == "" {
		return ""
	}
	var b strings.Builder
	qrterminal.GenerateHalfBlock(strings.ToUpper(payload), qrterminal.L, &b)
	return strings.TrimRight(b.String(), "\n")
}
