package chat

import "unicode/utf8"

// EstimateTokens is a rough token count for text, about four characters a token.
func EstimateTokens(text string) int {
	n := utf8.RuneCountInString(text)
	return (n + 3) / 4
}
