package notify

import (
	"fmt"

	"github.com/nyaruka/phonenumbers"
)

// NormalizePhone parses a phone number and returns it in E.164 form.
// defaultRegion (ISO 3166-1 alpha-2) resolves numbers given without a
// country code.
func NormalizePhone(raw, defaultRegion string) (string, error) {
	num, err := phonenumbers.Parse(raw, defaultRegion)
	if err != nil {
		return "", fmt.Errorf("parsing phone number: %w", err)
	}
	if !phonenumbers.IsValidNumber(num) {
		return "", fmt.Errorf("not a valid phone number")
	}
	return phonenumbers.Format(num, phonenumbers.E164), nil
}

// IsPhoneNumber reports whether raw parses as a valid phone number.
func IsPhoneNumber(raw, defaultRegion string) bool {
	num, err := phonenumbers.Parse(raw, defaultRegion)
	if err != nil {
		return false
	}
	return phonenumbers.IsValidNumber(num)
}
