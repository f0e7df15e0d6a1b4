package mpesa

import "strings"

// CountryCode is the dialing prefix M-Pesa MSISDNs are expressed in.
const CountryCode = "254"

// NormalizePhoneNumber converts a user-supplied Kenyan number to the MSISDN form the
// gateway expects: a leading "+" is dropped, a leading "0" is replaced by 254, numbers
// already starting with 254 are kept, and anything else gets 254 prepended.
func NormalizePhoneNumber(phone string) string {
	cleaned := strings.Map(func(r rune) rune {
		if r == ' ' || r == '-' {
			return -1
		}
		return r
	}, strings.TrimSpace(phone))
	cleaned = strings.TrimPrefix(cleaned, "+")
	if cleaned == "" {
		return ""
	}

	switch {
	case strings.HasPrefix(cleaned, "0"):
		return CountryCode + cleaned[1:]
	case strings.HasPrefix(cleaned, CountryCode):
		return cleaned
	default:
		return CountryCode + cleaned
	}
}

// IsValidMSISDN reports whether msisdn is a normalized 12-digit Kenyan number.
func IsValidMSISDN(msisdn string) bool {
	if len(msisdn) != 12 || !strings.HasPrefix(msisdn, CountryCode) {
		return false
	}
	for _, r := range msisdn {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}
