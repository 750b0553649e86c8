package sanitizer

import (
	"regexp"
	"strings"

	"github.com/nyaruka/phonenumbers"
)

type Strategy func(string) string

type Pipeline []Strategy

func (p Pipeline) Apply(s string) string {
	for _, fn := range p {
		s = fn(s)
	}
	return s
}

var (
	reCollapseSpace = regexp.MustCompile(`\s+`)
	reValidPhone    = regexp.MustCompile(`^\+?[0-9][0-9\s\-()]{6,17}$`)

	// Regions tried when a number arrives without a country prefix.
	supportedRegions = []string{
		"IN",
		"US",
	}
)

func trimSpace(s string) string {
	return strings.TrimSpace(s)
}

func collapseWhitespace(s string) string {
	return reCollapseSpace.ReplaceAllString(s, " ")
}

// SanitizeName normalizes free-text names and locations: trimmed, inner
// whitespace collapsed.
func SanitizeName(input string) string {
	p := Pipeline{
		collapseWhitespace,
		trimSpace,
	}
	return p.Apply(input)
}

// SanitizePhone returns the E.164 form of a phone number, or "" when the
// input cannot be parsed as a phone number at all.
func SanitizePhone(phone string) string {
	phone = strings.TrimSpace(phone)
	if phone == "" || !reValidPhone.MatchString(phone) {
		return ""
	}

	for _, region := range supportedRegions {
		parsed, err := phonenumbers.Parse(phone, region)
		if err == nil && phonenumbers.IsValidNumber(parsed) {
			return phonenumbers.Format(parsed, phonenumbers.E164)
		}
	}
	return ""
}

// SamePhone compares two phone numbers after normalization. Passenger
// matching during cancellation must not depend on formatting differences.
func SamePhone(a, b string) bool {
	na, nb := SanitizePhone(a), SanitizePhone(b)
	if na == "" || nb == "" {
		return strings.TrimSpace(a) != "" && strings.TrimSpace(a) == strings.TrimSpace(b)
	}
	return na == nb
}
