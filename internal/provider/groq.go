package provider

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	openai "github.com/sashabaranov/go-openai"
	"go.uber.org/zap"

	"github.com/sells-group/propstatus/internal/cost"
	"github.com/sells-group/propstatus/internal/resilience"
)

const (
	defaultGroqBaseURL = "https://api.groq.com/openai/v1"
	defaultMaxTokens   = 512
	defaultTimeout     = 30 * time.Second
)

// GroqOption configures the Groq client.
type GroqOption func(*groqOptions)

type groqOptions struct {
	baseURL   string
	maxTokens int
	timeout   time.Duration
	http      *http.Client
}

// WithGroqBaseURL overrides the OpenAI-compatible endpoint.
func WithGroqBaseURL(url string) GroqOption {
	return func(o *groqOptions) {
		o.baseURL = url
	}
}

// WithGroqMaxTokens caps the completion length. Zero keeps the default.
func WithGroqMaxTokens(n int) GroqOption {
	return func(o *groqOptions) {
		if n > 0 {
			o.maxTokens = n
		}
	}
}

// WithGroqTimeout bounds a single invocation. Zero keeps the default.
func WithGroqTimeout(d time.Duration) GroqOption {
	return func(o *groqOptions) {
		if d > 0 {
			o.timeout = d
		}
	}
}

// WithGroqHTTPClient overrides the default http.Client.
func WithGroqHTTPClient(hc *http.Client) GroqOption {
	return func(o *groqOptions) {
		o.http = hc
	}
}

// Groq talks to Groq's OpenAI-compatible chat completions API.
type Groq struct {
	client    *openai.Client
	apiKey    string
	maxTokens int
	timeout   time.Duration
}

// NewGroq creates a Groq client.
func NewGroq(apiKey string, opts ...GroqOption) *Groq {
	o := groqOptions{
		baseURL:   defaultGroqBaseURL,
		maxTokens: defaultMaxTokens,
		timeout:   defaultTimeout,
		http: &http.Client{
			Transport: &http.Transport{
				MaxIdleConnsPerHost: 20,
				IdleConnTimeout:     90 * time.Second,
			},
		},
	}
	for _, fn := range opts {
		fn(&o)
	}

	cfg := openai.DefaultConfig(apiKey)
	cfg.BaseURL = strings.TrimRight(o.baseURL, "/")
	cfg.HTTPClient = o.http

	return &Groq{
		client:    openai.NewClientWithConfig(cfg),
		apiKey:    apiKey,
		maxTokens: o.maxTokens,
		timeout:   o.timeout,
	}
}

// Name implements Client.
func (g *Groq) Name() string { return "groq" }

// Ready implements Client.
func (g *Groq) Ready() error {
	if strings.TrimSpace(g.apiKey) == "" {
		return &resilience.ConfigurationError{Reason: "GROQ_API_KEY is not set"}
	}
	return nil
}

// Invoke sends the prompt as plain string content first. If Groq rejects
// the request body it retries once with a structured content list.
func (g *Groq) Invoke(ctx context.Context, model, prompt string) (string, error) {
	if err := g.Ready(); err != nil {
		return "", err
	}

	ctx, cancel := context.WithTimeout(ctx, g.timeout)
	defer cancel()

	text, err := g.complete(ctx, model, openai.ChatCompletionMessage{
		Role:    openai.ChatMessageRoleUser,
		Content: prompt,
	})
	if err == nil || !shapeRejected(err) {
		return text, err
	}

	zap.L().Debug("groq: plain content rejected, retrying with content parts",
		zap.String("model", model),
		zap.Error(err),
	)
	return g.complete(ctx, model, openai.ChatCompletionMessage{
		Role: openai.ChatMessageRoleUser,
		MultiContent: []openai.ChatMessagePart{
			{Type: openai.ChatMessagePartTypeText, Text: prompt},
		},
	})
}

func (g *Groq) complete(ctx context.Context, model string, msg openai.ChatCompletionMessage) (string, error) {
	resp, err := g.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model:     model,
		Messages:  []openai.ChatCompletionMessage{msg},
		MaxTokens: g.maxTokens,
	})
	if err != nil {
		return "", classifyOpenAI(model, err)
	}
	if len(resp.Choices) == 0 || strings.TrimSpace(resp.Choices[0].Message.Content) == "" {
		return "", emptyAnswer("groq", model)
	}
	cost.Default.RecordTokens("groq", model, int64(resp.Usage.PromptTokens), int64(resp.Usage.CompletionTokens))
	return resp.Choices[0].Message.Content, nil
}

// ListModels implements Client.
func (g *Groq) ListModels(ctx context.Context) ([]string, error) {
	if err := g.Ready(); err != nil {
		return nil, err
	}

	ctx, cancel := context.WithTimeout(ctx, g.timeout)
	defer cancel()

	list, err := g.client.ListModels(ctx)
	if err != nil {
		return nil, classifyOpenAI("", err)
	}
	ids := make([]string, 0, len(list.Models))
	for _, m := range list.Models {
		ids = append(ids, m.ID)
	}
	return ids, nil
}

func classifyOpenAI(model string, err error) error {
	var apiErr *openai.APIError
	if errors.As(err, &apiErr) {
		code := apiErr.Type
		if apiErr.Code != nil {
			code += " " + fmt.Sprint(apiErr.Code)
		}
		return classify(model, apiErr.HTTPStatusCode, code, apiErr.Message, 0, err)
	}

	var reqErr *openai.RequestError
	if errors.As(err, &reqErr) {
		return classify(model, reqErr.HTTPStatusCode, "", string(reqErr.Body), 0, err)
	}

	return &resilience.TransportError{Err: err}
}
