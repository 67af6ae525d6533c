package model

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseListingStatus(t *testing.T) {
	t.Parallel()

	tests := []struct {
		in   string
		want ListingStatus
	}{
		{"Active", StatusActive},
		{"  sold ", StatusSold},
		{"PENDING", StatusPending},
		{"under contract", StatusPending},
		{"", StatusUnknown},
		{"demolished", StatusUnknown},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			t.Parallel()
			assert.Equal(t, tt.want, ParseListingStatus(tt.in))
		})
	}
}

func TestLocalFallbackResult(t *testing.T) {
	t.Parallel()

	r := LocalFallbackResult("no answer for 1 Main St")
	assert.Equal(t, StatusUnknown, r.Status)
	require.NotNil(t, r.Confidence)
	assert.InDelta(t, 0.0, *r.Confidence, 0.0001)
	assert.True(t, r.LocalFallback)
	assert.Nil(t, r.SoldDate)

	raw, err := json.Marshal(r)
	require.NoError(t, err)
	assert.Contains(t, string(raw), `"_local_fallback":true`)
	assert.Contains(t, string(raw), `"sold_date":null`)
}

func TestStatusResult_ModelAnswerOmitsMarker(t *testing.T) {
	t.Parallel()

	c := 0.1
	raw, err := json.Marshal(StatusResult{Status: StatusActive, Confidence: &c})
	require.NoError(t, err)
	assert.NotContains(t, string(raw), "_local_fallback")
}

func TestFormatSummary(t *testing.T) {
	t.Parallel()

	date := "2024-03-01"
	conf := 0.9
	summary := "  Sources [zillow] 3 bed lake house "
	r := StatusResult{Status: StatusSold, SoldDate: &date, Confidence: &conf, Summary: &summary}

	assert.Equal(t, "Sold (sold 2024-03-01) | confidence 0.90 | Sources [zillow] 3 bed lake house", r.FormatSummary())
	assert.Equal(t, "Unknown", StatusResult{Status: StatusUnknown}.FormatSummary())
}

func TestConfidenceValue(t *testing.T) {
	t.Parallel()

	assert.InDelta(t, 0.0, StatusResult{}.ConfidenceValue(), 0.0001)
	c := 0.42
	assert.InDelta(t, 0.42, StatusResult{Confidence: &c}.ConfidenceValue(), 0.0001)
}

func TestOutcomeKindString(t *testing.T) {
	t.Parallel()

	assert.Equal(t, "success", OutcomeSuccess.String())
	assert.Equal(t, "transient", OutcomeTransient.String())
	assert.Equal(t, "not_available", OutcomeNotAvailable.String())
	assert.Equal(t, "fatal", OutcomeFatal.String())
	assert.Equal(t, "unknown", OutcomeKind(99).String())
}

func TestResolutionOK(t *testing.T) {
	t.Parallel()

	assert.True(t, Resolution{Result: &StatusResult{}}.OK())
	assert.False(t, Resolution{Report: &ResolutionReport{}}.OK())
}
