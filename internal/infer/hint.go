package infer

import (
	"fmt"
	"strings"
	"unicode/utf8"
)

// Retry hint bounds, in bytes
const (
	maxHintErrors   = 5
	maxHintErrorLen = 200
	maxHintLen      = 1500
)

const (
	hintPrefix = "\n\nIMPORTANT: Your previous response was not valid JSON for the required schema. Errors: "
	hintSuffix = ". You MUST respond with ONLY a valid JSON object."
)

// retryHint builds the correction appended to the original prompt. Only the
// previous attempt's errors are listed, so hints never accumulate.
func retryHint(errs []string) string {
	if len(errs) == 0 {
		return ""
	}

	shown := errs
	if len(shown) > maxHintErrors {
		shown = shown[:maxHintErrors]
	}

	parts := make([]string, 0, len(shown)+1)
	for _, e := range shown {
		parts = append(parts, truncate(e, maxHintErrorLen))
	}
	if extra := len(errs) - len(shown); extra > 0 {
		parts = append(parts, fmt.Sprintf("and %d more", extra))
	}

	body := truncate(strings.Join(parts, "; "), maxHintLen-len(hintPrefix)-len(hintSuffix))
	return hintPrefix + body + hintSuffix
}

// truncate cuts s to at most n bytes without splitting a rune
func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	const ellipsis = "..."
	if n <= len(ellipsis) {
		return s[:0]
	}
	cut := n - len(ellipsis)
	for cut > 0 && !utf8.RuneStart(s[cut]) {
		cut--
	}
	return s[:cut] + ellipsis
}
