// Package ticketcode builds and parses the human-facing identifiers used for
// repair tickets and supplier purchases, e.g. TES-MAT-20240315-0042.
package ticketcode

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"
)

const (
	DefaultTicketPrefix   = "TES-MAT"
	DefaultPurchasePrefix = "TES-CMP"

	dateLayout = "20060102"
)

var (
	legacyPattern = regexp.MustCompile(`^TKT-\d{8}-\d{4}$`)
	codePattern   = regexp.MustCompile(`^[A-Z]{2,5}-[A-Z0-9]{2,4}-\d{8}-\d{4,6}$`)
	prefixPattern = regexp.MustCompile(`^[A-Z]{2,5}-[A-Z0-9]{2,4}$`)
)

// ValidPrefix reports whether prefix is a COMPANY-BRANCH pair accepted by Format.
func ValidPrefix(prefix string) bool {
	return prefixPattern.MatchString(prefix)
}

// Format renders prefix, day and sequence. The sequence is padded to four
// digits and grows wider past 9999.
func Format(prefix string, day time.Time, seq int64) string {
	return fmt.Sprintf("%s-%s-%04d", prefix, day.Format(dateLayout), seq)
}

// IsValidFormat accepts both the current layout and the legacy TKT-YYYYMMDD-NNNN one.
func IsValidFormat(code string) bool {
	if code == "" {
		return false
	}
	return legacyPattern.MatchString(code) || codePattern.MatchString(code)
}

// ExtractDate returns the calendar day encoded in the code.
func ExtractDate(code string) (time.Time, error) {
	if !IsValidFormat(code) {
		return time.Time{}, fmt.Errorf("invalid code format: %q", code)
	}
	parts := strings.Split(code, "-")
	return time.Parse(dateLayout, parts[len(parts)-2])
}

// ExtractSequence returns the trailing counter value.
func ExtractSequence(code string) (int64, error) {
	if !IsValidFormat(code) {
		return 0, fmt.Errorf("invalid code format: %q", code)
	}
	parts := strings.Split(code, "-")
	return strconv.ParseInt(parts[len(parts)-1], 10, 64)
}

// ExtractCompanyCode returns the leading segment ("TES" in TES-MAT-…).
func ExtractCompanyCode(code string) string {
	if !IsValidFormat(code) {
		return ""
	}
	return strings.Split(code, "-")[0]
}

// ExtractBranchCode returns the branch segment, empty for legacy codes.
func ExtractBranchCode(code string) string {
	if !codePattern.MatchString(code) {
		return ""
	}
	return strings.Split(code, "-")[1]
}

// DisplayForm spaces the segments out for printing on labels.
func DisplayForm(code string) string {
	if !IsValidFormat(code) {
		return code
	}
	return strings.ReplaceAll(code, "-", " ")
}

// Normalize trims and upper-cases user input before lookups.
func Normalize(code string) string {
	return strings.ToUpper(strings.TrimSpace(code))
}
