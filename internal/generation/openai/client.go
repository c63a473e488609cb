package openai

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	openai "github.com/sashabaranov/go-openai"

	"studyforge/internal/config"
	"studyforge/internal/generation"
)

// Client is a chat generator backed by the OpenAI API or a compatible server.
type Client struct {
	id     string
	model  string
	client *openai.Client
	now    func() time.Time
}

// Option customizes the client.
type Option func(*Client)

// WithClock overrides the time source used for quota recovery estimates.
func WithClock(now func() time.Time) Option {
	return func(c *Client) {
		if now != nil {
			c.now = now
		}
	}
}

func clientConfig(apiKey, baseURL string, timeoutSeconds int) openai.ClientConfig {
	cfg := openai.DefaultConfig(strings.TrimSpace(apiKey))
	if baseURL = strings.TrimSpace(baseURL); baseURL != "" {
		cfg.BaseURL = strings.TrimRight(baseURL, "/")
	}
	if timeoutSeconds > 0 {
		cfg.HTTPClient = &http.Client{Timeout: time.Duration(timeoutSeconds) * time.Second}
	}
	return cfg
}

// New constructs a chat generator for one configured generator.
func New(gen config.Generator, opts ...Option) *Client {
	c := &Client{
		id:     strings.TrimSpace(gen.ID),
		model:  strings.TrimSpace(gen.Model),
		client: openai.NewClientWithConfig(clientConfig(gen.APIKey, gen.BaseURL, gen.TimeoutSeconds)),
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// ID returns the generator id this client serves.
func (c *Client) ID() string {
	return c.id
}

func (c *Client) chatRequest(req generation.Request) openai.ChatCompletionRequest {
	messages := make([]openai.ChatCompletionMessage, 0, 2)
	if system := strings.TrimSpace(req.System); system != "" {
		messages = append(messages, openai.ChatCompletionMessage{Role: openai.ChatMessageRoleSystem, Content: system})
	}
	messages = append(messages, openai.ChatCompletionMessage{Role: openai.ChatMessageRoleUser, Content: strings.TrimSpace(req.Prompt)})
	out := openai.ChatCompletionRequest{
		Model:       c.model,
		Messages:    messages,
		Temperature: float32(req.Temperature),
	}
	if req.MaxTokens > 0 {
		out.MaxCompletionTokens = req.MaxTokens
	}
	if req.JSON {
		out.ResponseFormat = &openai.ChatCompletionResponseFormat{Type: openai.ChatCompletionResponseFormatTypeJSONObject}
	}
	return out
}

// Generate issues one chat completion request.
func (c *Client) Generate(ctx context.Context, req generation.Request) (generation.Completion, error) {
	if strings.TrimSpace(req.Prompt) == "" {
		return generation.Completion{}, &generation.ProviderError{Generator: c.id, Kind: generation.KindFatal, Message: "prompt required"}
	}
	resp, err := c.client.CreateChatCompletion(ctx, c.chatRequest(req))
	if err != nil {
		return generation.Completion{}, c.classify(ctx, err)
	}
	if len(resp.Choices) == 0 {
		return generation.Completion{}, generation.Transient(c.id, "empty choices")
	}
	choice := resp.Choices[0]
	text := strings.TrimSpace(choice.Message.Content)
	if text == "" {
		for _, call := range choice.Message.ToolCalls {
			if args := strings.TrimSpace(call.Function.Arguments); args != "" {
				text = args
				break
			}
		}
	}
	if text == "" {
		return generation.Completion{}, generation.Transient(c.id, fmt.Sprintf("empty content (finish_reason=%q, refusal=%q)", choice.FinishReason, choice.Message.Refusal))
	}
	return generation.Completion{Text: text, FinishReason: string(choice.FinishReason), Model: resp.Model}, nil
}

// Stream delivers tokens to onToken as they arrive. An error returned by
// onToken aborts the stream and is returned unchanged.
func (c *Client) Stream(ctx context.Context, req generation.Request, onToken func(token string) error) (generation.Completion, error) {
	if strings.TrimSpace(req.Prompt) == "" {
		return generation.Completion{}, &generation.ProviderError{Generator: c.id, Kind: generation.KindFatal, Message: "prompt required"}
	}
	chat := c.chatRequest(req)
	chat.Stream = true
	stream, err := c.client.CreateChatCompletionStream(ctx, chat)
	if err != nil {
		return generation.Completion{}, c.classify(ctx, err)
	}
	defer stream.Close()

	var (
		b            strings.Builder
		finishReason string
		model        = c.model
	)
	for {
		resp, err := stream.Recv()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return generation.Completion{Text: b.String(), Model: model}, c.classify(ctx, err)
		}
		if resp.Model != "" {
			model = resp.Model
		}
		for _, choice := range resp.Choices {
			if choice.FinishReason != "" {
				finishReason = string(choice.FinishReason)
			}
			token := choice.Delta.Content
			if token == "" {
				continue
			}
			b.WriteString(token)
			if onToken != nil {
				if err := onToken(token); err != nil {
					return generation.Completion{Text: b.String(), Model: model}, err
				}
			}
		}
	}
	if b.Len() == 0 {
		return generation.Completion{}, generation.Transient(c.id, "stream ended without content")
	}
	return generation.Completion{Text: b.String(), FinishReason: finishReason, Model: model}, nil
}

func (c *Client) classify(ctx context.Context, err error) error {
	return classifyError(ctx, c.id, err, c.now())
}

func classifyError(ctx context.Context, id string, err error, now time.Time) error {
	var apiErr *openai.APIError
	if errors.As(err, &apiErr) {
		body := apiErr.Message
		if apiErr.Type != "" {
			body += " type=" + apiErr.Type
		}
		if code, ok := apiErr.Code.(string); ok && code != "" {
			body += " code=" + code
		}
		status := apiErr.HTTPStatusCode
		if status == 0 {
			status = http.StatusBadGateway
		}
		perr := generation.ClassifyHTTP(id, status, body, 0, now)
		perr.Err = err
		return perr
	}
	var reqErr *openai.RequestError
	if errors.As(err, &reqErr) && reqErr.HTTPStatusCode > 0 {
		var body string
		if reqErr.Err != nil {
			body = reqErr.Err.Error()
		}
		perr := generation.ClassifyHTTP(id, reqErr.HTTPStatusCode, body, 0, now)
		perr.Err = err
		return perr
	}
	return generation.ClassifyTransport(ctx, id, err)
}

var (
	_ generation.Generator       = (*Client)(nil)
	_ generation.StreamGenerator = (*Client)(nil)
)
