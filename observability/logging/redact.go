package logging

import (
	"log/slog"
	"sort"
	"strings"
)

// RedactedValue is the canonical placeholder used for sensitive fields in logs.
const RedactedValue = "[REDACTED]"

// Keys that carry public identifiers or diagnostics. Anything else passed
// through MaskField, such as bearer tokens or keystore paths, is masked.
var redactionAllowlist = map[string]struct{}{
	"service":   {},
	"env":       {},
	"message":   {},
	"severity":  {},
	"timestamp": {},
	"error":     {},
	"reason":    {},
	"component": {},
	"method":    {},
	"kind":      {},
	"signer":    {},
	"order":     {},
	"subject":   {},
	"required":  {},

	// committed event attributes
	"event":         {},
	"seller":        {},
	"buyer":         {},
	"referee":       {},
	"orderid":       {},
	"asset":         {},
	"amount":        {},
	"moved":         {},
	"vault":         {},
	"state":         {},
	"account":       {},
	"owner":         {},
	"mint":          {},
	"mintauthority": {},
	"symbol":        {},
	"decimals":      {},
	"supply":        {},
	"from":          {},
	"to":            {},
}

// IsAllowlisted reports whether the provided key is exempt from automatic redaction.
func IsAllowlisted(key string) bool {
	normalized := strings.ToLower(strings.TrimSpace(key))
	_, ok := redactionAllowlist[normalized]
	return ok
}

// RedactionAllowlist returns a sorted copy of the keys emitted without
// redaction.
func RedactionAllowlist() []string {
	keys := make([]string, 0, len(redactionAllowlist))
	for key := range redactionAllowlist {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	return keys
}

// MaskField returns a slog.Attr that redacts the supplied value unless the key is
// explicitly allowlisted. Empty values pass through unchanged.
func MaskField(key, value string) slog.Attr {
	if strings.TrimSpace(value) == "" || IsAllowlisted(key) {
		return slog.String(key, value)
	}
	return slog.String(key, RedactedValue)
}
