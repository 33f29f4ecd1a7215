// Package assistant answers free-text parking questions through an
// OpenAI-compatible completion endpoint. Every failure is turned into a fixed
// reply so callers never see an error.
package assistant

import (
	"context"
	"errors"
	"net"
	"net/http"
	"strings"
	"time"

	"parking-lot/internal/logging"

	openai "github.com/sashabaranov/go-openai"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

const (
	promptPrefix   = "Answer this parking-related question concisely: "
	maxReplyLen    = 200
	defaultTimeout = 30 * time.Second
)

const (
	ReplyEmptyQuestion = "Ask a parking-related question."
	ReplyVague         = "I can help with parking questions. Could you be more specific?"
	ReplyModelLoading  = "The AI model is loading. Please try again in a moment."
	ReplyNotFound      = "The AI model endpoint was not found. Please check the API configuration."
	ReplyUnauthorized  = "Unauthorized access to AI model. Please check the API key."
	ReplyRateLimited   = "Rate limit exceeded. Please wait before making another request."
	ReplyUnavailable   = "AI service is temporarily unavailable. Please try again later."
	ReplyTimeout       = "The request timed out. Please try again."
	ReplyNoConnection  = "Could not connect to AI service. Please check your internet connection."
	ReplyFailed        = "AI assistant unavailable. Please try again later."
)

type Config struct {
	BaseURL string
	APIKey  string
	Model   string
	Timeout time.Duration
}

// Sampling parameters sent with every question.
type Sampling struct {
	MaxTokens   int
	Temperature float32
	TopP        float32
}

var DefaultSampling = Sampling{MaxTokens: 100, Temperature: 0.7, TopP: 0.9}

type Assistant struct {
	client   *openai.Client
	model    string
	sampling Sampling
	tracer   trace.Tracer
}

func New(cfg Config, tracer trace.Tracer) *Assistant {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = defaultTimeout
	}

	clientCfg := openai.DefaultConfig(cfg.APIKey)
	if cfg.BaseURL != "" {
		clientCfg.BaseURL = strings.TrimRight(cfg.BaseURL, "/")
	}
	clientCfg.HTTPClient = &http.Client{
		Timeout:   timeout,
		Transport: otelhttp.NewTransport(http.DefaultTransport),
	}

	return &Assistant{
		client:   openai.NewClientWithConfig(clientCfg),
		model:    cfg.Model,
		sampling: DefaultSampling,
		tracer:   tracer,
	}
}

// Reply answers question, or returns one of the fixed Reply* messages.
func (a *Assistant) Reply(ctx context.Context, question string) string {
	question = strings.TrimSpace(question)
	if question == "" {
		return ReplyEmptyQuestion
	}

	ctx, span := a.tracer.Start(ctx, "assistant.reply",
		trace.WithAttributes(
			attribute.String("gen_ai.request.model", a.model),
			attribute.Int("gen_ai.request.max_tokens", a.sampling.MaxTokens),
			attribute.Float64("gen_ai.request.temperature", float64(a.sampling.Temperature)),
		))
	defer span.End()

	prompt := promptPrefix + question
	resp, err := a.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model: a.model,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleUser, Content: prompt},
		},
		MaxTokens:   a.sampling.MaxTokens,
		Temperature: a.sampling.Temperature,
		TopP:        a.sampling.TopP,
	})
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		logging.WithContext(ctx).WithError(err).Warn("chat completion failed")
		return FailureReply(err)
	}

	text := ""
	if len(resp.Choices) > 0 {
		text = resp.Choices[0].Message.Content
	}
	span.SetAttributes(
		attribute.Int("gen_ai.usage.input_tokens", resp.Usage.PromptTokens),
		attribute.Int("gen_ai.usage.output_tokens", resp.Usage.CompletionTokens),
	)

	return CleanReply(prompt, text)
}

// CleanReply strips an echoed prompt, flattens newlines and caps the length
// at maxReplyLen characters.
func CleanReply(prompt, text string) string {
	text = strings.TrimPrefix(text, prompt)
	reply := strings.TrimSpace(strings.ReplaceAll(strings.TrimSpace(text), "\n", " "))

	runes := []rune(reply)
	if len(runes) > maxReplyLen {
		reply = string(runes[:maxReplyLen-3]) + "..."
	}
	if len(runes) < 2 {
		return ReplyVague
	}
	if strings.Contains(strings.ToLower(reply), "loading") {
		return ReplyModelLoading
	}
	return reply
}

// FailureReply maps a completion error to its user-facing message.
func FailureReply(err error) string {
	switch status := httpStatus(err); {
	case status == http.StatusNotFound:
		return ReplyNotFound
	case status == http.StatusUnauthorized:
		return ReplyUnauthorized
	case status == http.StatusTooManyRequests:
		return ReplyRateLimited
	case status >= http.StatusInternalServerError:
		return ReplyUnavailable
	}

	if errors.Is(err, context.DeadlineExceeded) {
		return ReplyTimeout
	}
	var netErr net.Error
	if errors.As(err, &netErr) {
		if netErr.Timeout() {
			return ReplyTimeout
		}
		return ReplyNoConnection
	}
	var opErr *net.OpError
	if errors.As(err, &opErr) {
		return ReplyNoConnection
	}
	return ReplyFailed
}

func httpStatus(err error) int {
	var apiErr *openai.APIError
	if errors.As(err, &apiErr) {
		return apiErr.HTTPStatusCode
	}
	var reqErr *openai.RequestError
	if errors.As(err, &reqErr) {
		return reqErr.HTTPStatusCode
	}
	return 0
}
