package assistant

import (
	"regexp"
	"strings"

	"github.com/nyaruka/phonenumbers"
)

// Redaction placeholders. Redaction happens at ingress, before anything is
// persisted or sent to the model.
const (
	emailPlaceholder = "[email]"
	phonePlaceholder = "[phone]"
)

var (
	emailRe = regexp.MustCompile(`[a-zA-Z0-9._%+\-]+@[a-zA-Z0-9.\-]+\.[a-zA-Z]{2,}`)
	// Candidate digit runs; each is validated with libphonenumber before
	// replacement so plain numbers ("order 12345678") survive.
	phoneCandidateRe = regexp.MustCompile(`\+?\d[\d\s().\-]{6,}\d`)
)

// Redact replaces email addresses and valid phone numbers with placeholders.
// region is the default phone parsing region for numbers without a country
// code.
func Redact(text, region string) string {
	if region == "" {
		region = "US"
	}
	text = emailRe.ReplaceAllString(text, emailPlaceholder)
	return phoneCandidateRe.ReplaceAllStringFunc(text, func(candidate string) string {
		num, err := phonenumbers.Parse(strings.TrimSpace(candidate), region)
		if err != nil || !phonenumbers.IsValidNumber(num) {
			return candidate
		}
		return phonePlaceholder
	})
}
