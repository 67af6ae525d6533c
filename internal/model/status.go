package model

import (
	"fmt"
	"strings"
)

// ListingStatus is the listing state of a property.
type ListingStatus string

const (
	StatusActive  ListingStatus = "Active"
	StatusPending ListingStatus = "Pending"
	StatusSold    ListingStatus = "Sold"
	StatusUnknown ListingStatus = "Unknown"
)

// ParseListingStatus maps free-form model output onto a known status.
// Anything unrecognised becomes StatusUnknown.
func ParseListingStatus(s string) ListingStatus {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "active", "for sale", "for_sale", "listed":
		return StatusActive
	case "pending", "under contract", "contingent":
		return StatusPending
	case "sold", "closed", "off market - sold":
		return StatusSold
	default:
		return StatusUnknown
	}
}

// StatusResult is the structured status judgment for one address.
type StatusResult struct {
	Status     ListingStatus `json:"status"`
	SoldDate   *string       `json:"sold_date"`
	Confidence *float64      `json:"confidence"`
	Summary    *string       `json:"summary"`

	// LocalFallback marks a synthetic result that did not come from a model.
	LocalFallback bool `json:"_local_fallback,omitempty"`
}

// ConfidenceValue returns the confidence or 0 when the model omitted it.
func (r StatusResult) ConfidenceValue() float64 {
	if r.Confidence == nil {
		return 0
	}
	return *r.Confidence
}

// FormatSummary renders a one-line human readable summary, used by the
// batch path and the CLI.
func (r StatusResult) FormatSummary() string {
	var b strings.Builder
	b.WriteString(string(r.Status))
	if r.SoldDate != nil && *r.SoldDate != "" {
		fmt.Fprintf(&b, " (sold %s)", *r.SoldDate)
	}
	if r.Confidence != nil {
		fmt.Fprintf(&b, " | confidence %.2f", *r.Confidence)
	}
	if r.Summary != nil && strings.TrimSpace(*r.Summary) != "" {
		b.WriteString(" | ")
		b.WriteString(strings.TrimSpace(*r.Summary))
	}
	return b.String()
}

// LocalFallbackResult builds the non-authoritative Unknown result returned
// alongside every terminal failure.
func LocalFallbackResult(summary string) StatusResult {
	zero := 0.0
	s := summary
	return StatusResult{
		Status:        StatusUnknown,
		Confidence:    &zero,
		Summary:       &s,
		LocalFallback: true,
	}
}
