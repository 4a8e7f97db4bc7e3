package phone

import (
	"strings"

	"github.com/nyaruka/phonenumbers"
)

// DefaultRegion is used when a number carries no country code.
const DefaultRegion = "US"

// Normalize returns the E.164 form of raw, or "" when raw is not a phone number.
// Lead natural keys and phone->tenant lookups must both go through this function.
func Normalize(raw, defaultRegion string) string {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return ""
	}
	if defaultRegion == "" {
		defaultRegion = DefaultRegion
	}

	if num, err := phonenumbers.Parse(raw, defaultRegion); err == nil && phonenumbers.IsPossibleNumber(num) {
		return phonenumbers.Format(num, phonenumbers.E164)
	}

	digits := digitsOnly(raw)
	if len(digits) < 7 {
		return ""
	}
	return "+" + digits
}

// Equal reports whether two raw numbers canonicalize to the same value.
func Equal(a, b, defaultRegion string) bool {
	na := Normalize(a, defaultRegion)
	return na != "" && na == Normalize(b, defaultRegion)
}

func digitsOnly(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	for _, r := range s {
		if r >= '0' && r <= '9' {
			b.WriteRune(r)
		}
	}
	return b.String()
}
