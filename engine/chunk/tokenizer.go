package chunk

import "strings"

// The pipeline uses one fixed, deterministic tokenizer everywhere a token
// count matters: chunk bounds, overlap, and context budgets. A token is a
// maximal run of non-whitespace; detokenization joins with single spaces,
// so a window of tokens round-trips exactly and overlap equality between
// neighbouring chunks holds token-for-token.

// Tokenize splits text into tokens.
func Tokenize(text string) []string {
	return strings.Fields(text)
}

// Detokenize reassembles tokens into text.
func Detokenize(tokens []string) string {
	return strings.Join(tokens, " ")
}

// TokenCount returns the number of tokens in text.
func TokenCount(text string) int {
	return len(Tokenize(text))
}

// TruncateTokens clips text to at most n whole tokens, never splitting a
// token. Returns text unchanged when it already fits.
func TruncateTokens(text string, n int) string {
	if n <= 0 {
		return ""
	}
	tokens := Tokenize(text)
	if len(tokens) <= n {
		return text
	}
	return Detokenize(tokens[:n])
}
