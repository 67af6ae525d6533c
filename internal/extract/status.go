package extract

import (
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/sells-group/propstatus/internal/model"
)

var soldDateLayouts = []string{
	"2006-01-02",
	time.RFC3339,
	"2006-01-02 15:04:05",
	"01/02/2006",
	"1/2/2006",
	"January 2, 2006",
	"Jan 2, 2006",
	"2006/01/02",
}

// ToStatusResult coerces an extracted mapping into a fully populated
// StatusResult. Unrecognised status becomes Unknown; confidence is clamped
// to [0,1]; sold_date is normalised to YYYY-MM-DD or nil.
func ToStatusResult(obj map[string]any) model.StatusResult {
	var r model.StatusResult

	status, _ := obj["status"].(string)
	r.Status = model.ParseListingStatus(status)

	if c, ok := confidence(obj["confidence"]); ok {
		r.Confidence = &c
	}
	if d, ok := soldDate(obj["sold_date"]); ok {
		r.SoldDate = &d
	}
	if s, ok := obj["summary"].(string); ok && strings.TrimSpace(s) != "" {
		s = strings.TrimSpace(s)
		r.Summary = &s
	}
	return r
}

// Status extracts and coerces in one step.
func Status(raw string) (model.StatusResult, error) {
	obj, err := Extract(raw)
	if err != nil {
		return model.StatusResult{}, err
	}
	return ToStatusResult(obj), nil
}

func confidence(v any) (float64, bool) {
	var f float64
	switch t := v.(type) {
	case float64:
		f = t
	case string:
		t = strings.TrimSpace(t)
		pct := strings.HasSuffix(t, "%")
		parsed, err := strconv.ParseFloat(strings.TrimSpace(strings.TrimSuffix(t, "%")), 64)
		if err != nil {
			return 0, false
		}
		f = parsed
		if pct {
			f /= 100
		}
	default:
		return 0, false
	}
	if math.IsNaN(f) {
		return 0, false
	}
	return math.Max(0, math.Min(1, f)), true
}

func soldDate(v any) (string, bool) {
	s, ok := v.(string)
	if !ok {
		return "", false
	}
	s = strings.TrimSpace(s)
	if s == "" || strings.EqualFold(s, "null") || strings.EqualFold(s, "n/a") {
		return "", false
	}
	for _, layout := range soldDateLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t.Format("2006-01-02"), true
		}
	}
	return "", false
}
