package phone

import "strings"

// CountryCode is the international dialling prefix collapsed by Normalize.
const CountryCode = "82"

// Normalize maps a phone number to the canonical join key used across calls,
// presence and agent registrations.
//
// Formatting characters are dropped and an international prefix
// ("+82 10-1111-2222", "8210...") is collapsed to the local leading zero
// ("01011112222"). Empty or non-numeric input yields "".
func Normalize(raw string) string {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return ""
	}

	var b strings.Builder
	b.Grow(len(raw))
	for _, r := range raw {
		if r >= '0' && r <= '9' {
			b.WriteRune(r)
		}
	}
	digits := b.String()
	if digits == "" {
		return ""
	}

	// Only collapse when the remainder is a plausible national number; a short
	// local number that happens to start with 82 is left alone.
	if strings.HasPrefix(digits, CountryCode) && len(digits) >= len(CountryCode)+8 {
		rest := strings.TrimPrefix(digits, CountryCode)
		if !strings.HasPrefix(rest, "0") {
			rest = "0" + rest
		}
		return rest
	}
	return digits
}
