package search

import "unicode"

// splitTokens splits text into alternating word and whitespace runs,
// preserving the whitespace runs as their own tokens. Concatenating the
// tokens reconstructs the input exactly, which the streaming path relies on
// when replaying a summary token by token.
func splitTokens(text string) []string {
	if text == "" {
		return nil
	}

	var tokens []string
	runes := []rune(text)
	start := 0
	inSpace := unicode.IsSpace(runes[0])

	for i, r := range runes {
		if unicode.IsSpace(r) == inSpace {
			continue
		}
		tokens = append(tokens, string(runes[start:i]))
		start = i
		inSpace = !inSpace
	}
	return append(tokens, string(runes[start:]))
}

// isWhitespaceToken reports whether the token is a pure whitespace run.
func isWhitespaceToken(tok string) bool {
	for _, r := range tok {
		if !unicode.IsSpace(r) {
			return false
		}
	}
	return len(tok) > 0
}
