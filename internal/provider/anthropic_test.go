package provider

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/propstatus/internal/resilience"
	"github.com/sells-group/propstatus/pkg/anthropic"
)

// MockAnthropicAPI implements anthropic.Client for testing.
type MockAnthropicAPI struct {
	mock.Mock
}

func (m *MockAnthropicAPI) CreateMessage(ctx context.Context, req anthropic.MessageRequest) (*anthropic.MessageResponse, error) {
	args := m.Called(ctx, req)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*anthropic.MessageResponse), args.Error(1)
}

func (m *MockAnthropicAPI) ListModels(ctx context.Context) ([]anthropic.ModelInfo, error) {
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]anthropic.ModelInfo), args.Error(1)
}

func textResponse(text string) *anthropic.MessageResponse {
	return &anthropic.MessageResponse{Content: []anthropic.ContentBlock{{Type: "text", Text: text}}}
}

func TestAnthropic_InvokeSingleBlock(t *testing.T) {
	api := new(MockAnthropicAPI)
	api.On("CreateMessage", mock.Anything, mock.MatchedBy(func(req anthropic.MessageRequest) bool {
		return req.Model == "claude-haiku-4-5-20251001" && len(req.System) == 0 &&
			len(req.Messages) == 1 && req.Messages[0].Content == "prompt"
	})).Return(textResponse(`{"status":"Pending"}`), nil)

	a := NewAnthropic("key", WithAnthropicAPI(api))
	text, err := a.Invoke(context.Background(), "claude-haiku-4-5-20251001", "prompt")
	require.NoError(t, err)
	assert.Equal(t, `{"status":"Pending"}`, text)
	api.AssertExpectations(t)
}

func TestAnthropic_AlternateShape(t *testing.T) {
	api := new(MockAnthropicAPI)
	api.On("CreateMessage", mock.Anything, mock.MatchedBy(func(req anthropic.MessageRequest) bool {
		return len(req.System) == 0
	})).Return(nil, &resilience.TransportError{StatusCode: 400, Err: assert.AnError}).Once()
	api.On("CreateMessage", mock.Anything, mock.MatchedBy(func(req anthropic.MessageRequest) bool {
		return len(req.System) == 1 && req.System[0].Text == jsonOnlyInstruction
	})).Return(textResponse(`{"status":"Sold"}`), nil).Once()

	text, err := NewAnthropic("key", WithAnthropicAPI(api)).Invoke(context.Background(), "m", "prompt")
	require.NoError(t, err)
	assert.Equal(t, `{"status":"Sold"}`, text)
	api.AssertExpectations(t)
}

func TestAnthropic_EmptyAnswer(t *testing.T) {
	api := new(MockAnthropicAPI)
	api.On("CreateMessage", mock.Anything, mock.Anything).Return(textResponse("  "), nil)

	_, err := NewAnthropic("key", WithAnthropicAPI(api)).Invoke(context.Background(), "m", "prompt")
	var pe *resilience.ParseError
	assert.ErrorAs(t, err, &pe)
}

func TestAnthropic_ListModels(t *testing.T) {
	api := new(MockAnthropicAPI)
	api.On("ListModels", mock.Anything).Return([]anthropic.ModelInfo{{ID: "a"}, {ID: "b"}}, nil)

	ids, err := NewAnthropic("key", WithAnthropicAPI(api)).ListModels(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "b"}, ids)
}

func TestAnthropic_NotConfigured(t *testing.T) {
	api := new(MockAnthropicAPI)
	a := NewAnthropic("", WithAnthropicAPI(api))

	_, err := a.Invoke(context.Background(), "m", "p")
	assert.True(t, resilience.IsConfiguration(err))
	api.AssertNotCalled(t, "CreateMessage", mock.Anything, mock.Anything)
}

func TestAnthropic_RateLimitOverHTTP(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Header().Set("Retry-After", "12")
		w.WriteHeader(http.StatusTooManyRequests)
		w.Write([]byte(`{"type":"error","error":{"type":"rate_limit_error","message":"Number of request tokens has exceeded your per-minute rate limit"}}`)) //nolint:errcheck
	}))
	defer ts.Close()

	_, err := NewAnthropic("key", WithAnthropicBaseURL(ts.URL)).Invoke(context.Background(), "claude-haiku-4-5-20251001", "p")
	var qe *resilience.QuotaExceededError
	require.ErrorAs(t, err, &qe)
	assert.Equal(t, 12*time.Second, qe.RetryAfter)
}

func TestAnthropic_NotFoundOverHTTP(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusNotFound)
		w.Write([]byte(`{"type":"error","error":{"type":"not_found_error","message":"model: claude-2.0"}}`)) //nolint:errcheck
	}))
	defer ts.Close()

	_, err := NewAnthropic("key", WithAnthropicBaseURL(ts.URL)).Invoke(context.Background(), "claude-2.0", "p")
	assert.True(t, resilience.IsModelUnavailable(err))
}
