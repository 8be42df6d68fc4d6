package validation

import (
	"fmt"
	"net/url"
	"regexp"
	"strings"
)

// CNPJLength is the number of digits in a company registry identifier.
const CNPJLength = 14

var (
	nonDigit = regexp.MustCompile(`\D`)

	// TagPattern is the canonical correlation tag shape (case/process number).
	TagPattern = regexp.MustCompile(`^\d{3}\.\d{3}/\d{4}$`)
)

// ValidationError reports an identifier or field that does not have the
// required shape.
type ValidationError struct {
	Field  string
	Value  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s %q: %s", e.Field, e.Value, e.Reason)
}

// Digits strips every non-digit character.
func Digits(raw string) string {
	return nonDigit.ReplaceAllString(raw, "")
}

// CleanCNPJ strips non-digits and left-pads 12 or 13 digit values with zeros.
// Spreadsheet tools drop leading zeros from numeric cells, which is why the
// short forms are recovered. Other lengths are returned unpadded.
func CleanCNPJ(raw string) string {
	d := Digits(raw)
	if len(d) == 12 || len(d) == 13 {
		d = strings.Repeat("0", CNPJLength-len(d)) + d
	}
	return d
}

// FormatCNPJ renders 14 digits as XX.XXX.XXX/XXXX-XX. Anything else is
// returned as its stripped digits.
func FormatCNPJ(raw string) string {
	d := Digits(raw)
	if len(d) != CNPJLength {
		return d
	}
	return d[:2] + "." + d[2:5] + "." + d[5:8] + "/" + d[8:12] + "-" + d[12:]
}

// RequireCNPJ returns the digits of raw when it has exactly 14 of them.
// No padding is applied: entry points that query a single identifier expect
// the caller to type it in full.
func RequireCNPJ(raw string) (string, error) {
	d := Digits(raw)
	if len(d) != CNPJLength {
		return "", &ValidationError{
			Field:  "cnpj",
			Value:  raw,
			Reason: "must contain 14 digits",
		}
	}
	return d, nil
}

// FormatTag normalizes a correlation tag. Values already in DDD.DDD/DDDD form
// are returned trimmed, exactly ten digits are reformatted, blank input
// reports false and anything else is returned trimmed.
func FormatTag(raw string) (string, bool) {
	tag := strings.TrimSpace(raw)
	if tag == "" {
		return "", false
	}
	if TagPattern.MatchString(tag) {
		return tag, true
	}
	if d := Digits(tag); len(d) == 10 {
		return d[:3] + "." + d[3:6] + "/" + d[6:], true
	}
	return tag, true
}

// ValidateURL checks if a URL is valid and uses an allowed scheme (http/https only).
func ValidateURL(urlStr string) (bool, string) {
	if urlStr == "" {
		return false, "URL is required"
	}

	u, err := url.Parse(urlStr)
	if err != nil {
		return false, "Invalid URL format"
	}

	scheme := strings.ToLower(u.Scheme)
	if scheme != "http" && scheme != "https" {
		return false, "URL must use http:// or https:// scheme"
	}

	if u.Host == "" {
		return false, "URL must have a valid host"
	}

	return true, ""
}
