package provider

import (
	"context"
	"errors"
	"strings"
	"time"

	sdk "github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
	"go.uber.org/zap"

	"github.com/sells-group/propstatus/internal/cost"
	"github.com/sells-group/propstatus/internal/resilience"
	"github.com/sells-group/propstatus/pkg/anthropic"
)

// jsonOnlyInstruction is the system block used by the alternate shape.
const jsonOnlyInstruction = "You classify real-estate listings. Respond with a single JSON object and nothing else."

// AnthropicOption configures the Anthropic client.
type AnthropicOption func(*anthropicOptions)

type anthropicOptions struct {
	baseURL   string
	maxTokens int
	timeout   time.Duration
	api       anthropic.Client
}

// WithAnthropicBaseURL overrides the API endpoint.
func WithAnthropicBaseURL(url string) AnthropicOption {
	return func(o *anthropicOptions) {
		o.baseURL = url
	}
}

// WithAnthropicMaxTokens caps the completion length. Zero keeps the default.
func WithAnthropicMaxTokens(n int) AnthropicOption {
	return func(o *anthropicOptions) {
		if n > 0 {
			o.maxTokens = n
		}
	}
}

// WithAnthropicTimeout bounds a single invocation. Zero keeps the default.
func WithAnthropicTimeout(d time.Duration) AnthropicOption {
	return func(o *anthropicOptions) {
		if d > 0 {
			o.timeout = d
		}
	}
}

// WithAnthropicAPI injects a prebuilt API client.
func WithAnthropicAPI(c anthropic.Client) AnthropicOption {
	return func(o *anthropicOptions) {
		o.api = c
	}
}

// Anthropic invokes Claude models through pkg/anthropic.
type Anthropic struct {
	api       anthropic.Client
	apiKey    string
	maxTokens int
	timeout   time.Duration
}

// NewAnthropic creates an Anthropic client.
func NewAnthropic(apiKey string, opts ...AnthropicOption) *Anthropic {
	o := anthropicOptions{
		maxTokens: defaultMaxTokens,
		timeout:   defaultTimeout,
	}
	for _, fn := range opts {
		fn(&o)
	}
	if o.api == nil {
		var sdkOpts []option.RequestOption
		if o.baseURL != "" {
			sdkOpts = append(sdkOpts, option.WithBaseURL(o.baseURL))
		}
		o.api = anthropic.NewClient(apiKey, sdkOpts...)
	}
	return &Anthropic{
		api:       o.api,
		apiKey:    apiKey,
		maxTokens: o.maxTokens,
		timeout:   o.timeout,
	}
}

// Name implements Client.
func (a *Anthropic) Name() string { return "anthropic" }

// Ready implements Client.
func (a *Anthropic) Ready() error {
	if strings.TrimSpace(a.apiKey) == "" {
		return &resilience.ConfigurationError{Reason: "ANTHROPIC_API_KEY is not set"}
	}
	return nil
}

// Invoke sends the prompt as a single user block. If the request body is
// rejected it retries once with a JSON-only system block ahead of the
// prompt.
func (a *Anthropic) Invoke(ctx context.Context, model, prompt string) (string, error) {
	if err := a.Ready(); err != nil {
		return "", err
	}

	ctx, cancel := context.WithTimeout(ctx, a.timeout)
	defer cancel()

	req := anthropic.MessageRequest{
		Model:     model,
		MaxTokens: int64(a.maxTokens),
		Messages:  []anthropic.Message{{Role: "user", Content: prompt}},
	}
	text, err := a.create(ctx, model, req)
	if err == nil || !shapeRejected(err) {
		return text, err
	}

	zap.L().Debug("anthropic: single block rejected, retrying with system block",
		zap.String("model", model),
		zap.Error(err),
	)
	req.System = []anthropic.SystemBlock{{Text: jsonOnlyInstruction}}
	return a.create(ctx, model, req)
}

func (a *Anthropic) create(ctx context.Context, model string, req anthropic.MessageRequest) (string, error) {
	resp, err := a.api.CreateMessage(ctx, req)
	if err != nil {
		return "", classifyAnthropic(model, err)
	}
	text := resp.Text()
	if strings.TrimSpace(text) == "" {
		return "", emptyAnswer("anthropic", model)
	}
	usd := cost.Default.RecordTokens("anthropic", model, resp.Usage.InputTokens, resp.Usage.OutputTokens)
	zap.L().Debug("anthropic: message usage",
		zap.String("model", model),
		zap.Int64("input_tokens", resp.Usage.InputTokens),
		zap.Int64("output_tokens", resp.Usage.OutputTokens),
		zap.Float64("estimated_usd", usd),
	)
	return text, nil
}

// ListModels implements Client.
func (a *Anthropic) ListModels(ctx context.Context) ([]string, error) {
	if err := a.Ready(); err != nil {
		return nil, err
	}

	ctx, cancel := context.WithTimeout(ctx, a.timeout)
	defer cancel()

	models, err := a.api.ListModels(ctx)
	if err != nil {
		return nil, classifyAnthropic("", err)
	}
	ids := make([]string, 0, len(models))
	for _, m := range models {
		ids = append(ids, m.ID)
	}
	return ids, nil
}

func classifyAnthropic(model string, err error) error {
	if classified(err) {
		return err
	}

	var apiErr *sdk.Error
	if !errors.As(err, &apiErr) {
		return &resilience.TransportError{Err: err}
	}

	var retryAfter time.Duration
	if apiErr.Response != nil {
		retryAfter, _ = resilience.ParseRetryAfterHeader(apiErr.Response.Header.Get("Retry-After"))
	}
	return classify(model, apiErr.StatusCode, "", apiErr.Error(), retryAfter, err)
}
