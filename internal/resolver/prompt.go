package resolver

import (
	"fmt"
	"strings"
)

// BuildPrompt renders the status question for one address, optionally
// grounded in live search text.
func BuildPrompt(address, live string) string {
	return fmt.Sprintf(
		"Based on this search data: %s, what is the status of %s? "+
			"Return JSON only with keys: status (Sold|Active|Pending), sold_date (YYYY-MM-DD or null), "+
			"confidence (0.0-1.0), summary (provide references and summary of the property, "+
			"e.g. Sources [] A beautiful 3 bedroom estate located on a lake).",
		strings.TrimSpace(live), strings.TrimSpace(address),
	)
}
