// Package cli provides formatting and rendering utilities for terminal output.
package cli

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// FormatTokens formats a token count with human-readable suffixes.
// e.g., 1234 -> "1.2K", 1234567 -> "1.2M", 1234567890 -> "1.2B"
func FormatTokens(n int64) string {
	abs := n
	if abs < 0 {
		abs = -abs
	}

	switch {
	case abs >= 1_000_000_000:
		return fmt.Sprintf("%.1fB", float64(n)/1_000_000_000)
	case abs >= 1_000_000:
		return fmt.Sprintf("%.1fM", float64(n)/1_000_000)
	case abs >= 1_000:
		return fmt.Sprintf("%.1fK", float64(n)/1_000)
	default:
		return strconv.FormatInt(n, 10)
	}
}

// FormatSats formats a satoshi amount, e.g. 50000 -> "50,000 sats".
func FormatSats(sats int64) string {
	if sats == 1 {
		return "1 sat"
	}
	return FormatNumber(sats) + " sats"
}

// FormatBTC formats a BTC amount with eight decimals, e.g. "₿0.00050000".
func FormatBTC(btc float64) string {
	return fmt.Sprintf("₿%.8f", btc)
}

// FormatSatsAsBTC formats a satoshi amount in BTC.
func FormatSatsAsBTC(sats int64) string {
	return FormatBTC(float64(sats) / 100_000_000)
}

// FormatRate formats a per-unit BTC rate without trailing zeros, e.g. "0.000005".
func FormatRate(btc float64) string {
	return "₿" + strconv.FormatFloat(btc, 'f', -1, 64)
}

// FormatCountdown formats a remaining duration as m:ss, e.g. 14m05s -> "14:05".
func FormatCountdown(d time.Duration) string {
	if d <= 0 {
		return "0:00"
	}
	secs := int64(d.Round(time.Second) / time.Second)
	return fmt.Sprintf("%d:%02d", secs/60, secs%60)
}

// FormatDuration formats seconds into a human-readable duration.
// e.g., 3725 -> "1h 2m", 125 -> "2m", 45 -> "45s"
func FormatDuration(secs int64) string {
	if secs <= 0 {
		return "0s"
	}

	hours := secs / 3600
	mins := (secs % 3600) / 60

	if hours > 0 {
		return fmt.Sprintf("%dh %dm", hours, mins)
	}
	if mins > 0 {
		return fmt.Sprintf("%dm", mins)
	}
	return fmt.Sprintf("%ds", secs)
}

// FormatNumber adds comma separators to an integer.
// e.g., 1234567 -> "1,234,567"
func FormatNumber(n int64) string {
	if n < 0 {
		return "-" + FormatNumber(-n)
	}

	s := strconv.FormatInt(n, 10)
	if len(s) <= 3 {
		return s
	}

	var result strings.Builder
	remainder := len(s) % 3
	if remainder > 0 {
		result.WriteString(s[:remainder])
	}
	for i := remainder; i < len(s); i += 3 {
		if result.Len() > 0 {
			result.WriteByte(',')
		}
		result.WriteString(s[i : i+3])
	}
	return result.String()
}

// FormatRemaining formats an optional remaining quota; nil means unlimited.
func FormatRemaining(p *int64) string {
	if p == nil {
		return "unlimited"
	}
	return FormatNumber(*p)
}
