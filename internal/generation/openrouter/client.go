package openrouter

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"studyforge/internal/config"
	"studyforge/internal/generation"
)

const (
	jsonResponseType   = "json_object"
	defaultHTTPTimeout = 60 * time.Second
	defaultBaseURL     = "https://openrouter.ai/api/v1/chat/completions"
)

// Client wraps an OpenAI-compatible chat completion endpoint.
type Client struct {
	id         string
	model      string
	apiKey     string
	baseURL    string
	referer    string
	title      string
	httpClient *http.Client
	now        func() time.Time
}

// Option customizes the client.
type Option func(*Client)

// WithHTTPClient overrides the default HTTP client.
func WithHTTPClient(client *http.Client) Option {
	return func(c *Client) {
		if client != nil {
			c.httpClient = client
		}
	}
}

// WithClock overrides the time source used for quota recovery estimates.
func WithClock(now func() time.Time) Option {
	return func(c *Client) {
		if now != nil {
			c.now = now
		}
	}
}

// New constructs a client for one configured generator.
func New(gen config.Generator, opts ...Option) *Client {
	timeout := defaultHTTPTimeout
	if gen.TimeoutSeconds > 0 {
		timeout = time.Duration(gen.TimeoutSeconds) * time.Second
	}
	c := &Client{
		id:         strings.TrimSpace(gen.ID),
		model:      strings.TrimSpace(gen.Model),
		apiKey:     strings.TrimSpace(gen.APIKey),
		baseURL:    strings.TrimSpace(gen.BaseURL),
		referer:    strings.TrimSpace(gen.Referer),
		title:      strings.TrimSpace(gen.Title),
		httpClient: &http.Client{Timeout: timeout},
		now:        time.Now,
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.baseURL == "" {
		c.baseURL = defaultBaseURL
	}
	return c
}

// ID returns the generator id this client serves.
func (c *Client) ID() string {
	return c.id
}

// Generate issues one chat completion request.
func (c *Client) Generate(ctx context.Context, req generation.Request) (generation.Completion, error) {
	if strings.TrimSpace(req.Prompt) == "" {
		return generation.Completion{}, &generation.ProviderError{Generator: c.id, Kind: generation.KindFatal, Message: "prompt required"}
	}
	if c.apiKey == "" {
		return generation.Completion{}, &generation.ProviderError{Generator: c.id, Kind: generation.KindFatal, Message: "api key required"}
	}
	payload := chatCompletionRequest{
		Model:       c.model,
		Temperature: req.Temperature,
		MaxTokens:   req.MaxTokens,
	}
	if system := strings.TrimSpace(req.System); system != "" {
		payload.Messages = append(payload.Messages, chatMessage{Role: "system", Content: system})
	}
	payload.Messages = append(payload.Messages, chatMessage{Role: "user", Content: strings.TrimSpace(req.Prompt)})
	if req.JSON {
		payload.ResponseFormat = map[string]string{"type": jsonResponseType}
	}

	completion, body, err := c.send(ctx, payload)
	if err != nil {
		return generation.Completion{}, err
	}
	content, finishReason := extractCompletionPayload(completion)
	if content == "" {
		if len(completion.Choices) == 0 {
			return generation.Completion{}, generation.Transient(c.id, "empty choices")
		}
		return generation.Completion{}, generation.Transient(c.id, fmt.Sprintf(
			"empty content (finish_reason=%q, refusal=%q, response_snippet=%s)",
			finishReason,
			extractCompletionRefusal(completion),
			summarizePayloadSnippet(string(body)),
		))
	}
	model := completion.Model
	if model == "" {
		model = c.model
	}
	return generation.Completion{Text: content, FinishReason: finishReason, Model: model}, nil
}

type chatCompletionRequest struct {
	Model          string            `json:"model"`
	Messages       []chatMessage     `json:"messages"`
	Temperature    float64           `json:"temperature"`
	MaxTokens      int               `json:"max_tokens,omitempty"`
	ResponseFormat map[string]string `json:"response_format,omitempty"`
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatCompletionResponse struct {
	Model   string `json:"model"`
	Choices []struct {
		Message chatCompletionMessage `json:"message"`
		// Some providers return the streaming schema (delta) even when
		// stream=false, so tolerate it as a fallback.
		Delta chatCompletionMessage `json:"delta"`
		// Legacy "text" field (completion-style responses).
		Text         string `json:"text"`
		FinishReason string `json:"finish_reason"`
	} `json:"choices"`
	Error *struct {
		Message string `json:"message"`
		Code    any    `json:"code"`
	} `json:"error"`
}

type chatCompletionMessage struct {
	Content      string        `json:"content"`
	ToolCalls    []toolCall    `json:"tool_calls"`
	FunctionCall *functionCall `json:"function_call"`
	Refusal      string        `json:"refusal"`
}

type toolCall struct {
	Type     string       `json:"type"`
	ID       string       `json:"id"`
	Index    int          `json:"index"`
	Function functionCall `json:"function"`
}

type functionCall struct {
	Name      string `json:"name"`
	Arguments string `json:"arguments"`
}

func (c *Client) send(ctx context.Context, payload chatCompletionRequest) (chatCompletionResponse, []byte, error) {
	var completion chatCompletionResponse
	encoded, err := json.Marshal(payload)
	if err != nil {
		return completion, nil, &generation.ProviderError{Generator: c.id, Kind: generation.KindFatal, Message: "encode body", Err: err}
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL, bytes.NewReader(encoded))
	if err != nil {
		return completion, nil, &generation.ProviderError{Generator: c.id, Kind: generation.KindFatal, Message: "new request", Err: err}
	}
	req.Header.Set("Authorization", "Bearer "+c.apiKey)
	req.Header.Set("Content-Type", "application/json")
	if c.referer != "" {
		req.Header.Set("HTTP-Referer", c.referer)
		req.Header.Set("Referer", c.referer)
	}
	if c.title != "" {
		req.Header.Set("X-Title", c.title)
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return completion, nil, generation.ClassifyTransport(ctx, c.id, fmt.Errorf("http error (timeout=%s): %w", c.httpClient.Timeout, err))
	}
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return completion, nil, generation.ClassifyTransport(ctx, c.id, fmt.Errorf("read body: %w", err))
	}
	if resp.StatusCode >= http.StatusMultipleChoices {
		retryAfter, _ := parseRetryAfter(resp.Header.Get("Retry-After"), c.now())
		return completion, body, generation.ClassifyHTTP(c.id, resp.StatusCode, string(body), retryAfter, c.now())
	}
	if err := json.Unmarshal(body, &completion); err != nil {
		return completion, body, generation.Transient(c.id, "decode response: "+err.Error()+" (snippet: "+summarizePayloadSnippet(string(body))+")")
	}
	if completion.Error != nil {
		// Error bodies delivered with a 2xx status still carry the provider's code.
		status := http.StatusBadGateway
		if code, ok := errorCode(completion.Error.Code); ok {
			status = code
		}
		return completion, body, generation.ClassifyHTTP(c.id, status, completion.Error.Message, 0, c.now())
	}
	return completion, body, nil
}

func errorCode(code any) (int, bool) {
	switch v := code.(type) {
	case float64:
		if v >= 400 && v < 600 {
			return int(v), true
		}
	case string:
		if n, err := strconv.Atoi(v); err == nil && n >= 400 && n < 600 {
			return n, true
		}
	}
	return 0, false
}

func extractCompletionPayload(completion chatCompletionResponse) (string, string) {
	var finishReason string
	for _, choice := range completion.Choices {
		if finishReason == "" {
			finishReason = strings.TrimSpace(choice.FinishReason)
		}
		if content := firstNonEmpty(
			choice.Message.Content,
			choice.Delta.Content,
			choice.Text,
		); content != "" {
			return content, finishReason
		}
		if args := firstNonEmpty(
			functionCallArguments(choice.Message.FunctionCall),
			functionCallArguments(choice.Delta.FunctionCall),
		); args != "" {
			return args, finishReason
		}
		if args := firstNonEmpty(
			toolCallArguments(choice.Message.ToolCalls),
			toolCallArguments(choice.Delta.ToolCalls),
		); args != "" {
			return args, finishReason
		}
	}
	return "", finishReason
}

func extractCompletionRefusal(completion chatCompletionResponse) string {
	for _, choice := range completion.Choices {
		if refusal := firstNonEmpty(choice.Message.Refusal, choice.Delta.Refusal); refusal != "" {
			return refusal
		}
	}
	return ""
}

func functionCallArguments(fc *functionCall) string {
	if fc == nil {
		return ""
	}
	return strings.TrimSpace(fc.Arguments)
}

func toolCallArguments(calls []toolCall) string {
	for _, call := range calls {
		if args := strings.TrimSpace(call.Function.Arguments); args != "" {
			return args
		}
	}
	return ""
}

func firstNonEmpty(values ...string) string {
	for _, value := range values {
		if trimmed := strings.TrimSpace(value); trimmed != "" {
			return trimmed
		}
	}
	return ""
}

func parseRetryAfter(value string, now time.Time) (time.Duration, bool) {
	value = strings.TrimSpace(value)
	if value == "" {
		return 0, false
	}
	if seconds, err := strconv.Atoi(value); err == nil {
		if seconds < 0 {
			return 0, false
		}
		return time.Duration(seconds) * time.Second, true
	}
	if when, err := http.ParseTime(value); err == nil {
		delay := when.Sub(now)
		if delay < 0 {
			return 0, false
		}
		return delay, true
	}
	return 0, false
}

func summarizePayloadSnippet(payload string) string {
	payload = strings.Join(strings.Fields(payload), " ")
	const limit = 200
	if len(payload) > limit {
		return payload[:limit] + "..."
	}
	return payload
}

var _ generation.Generator = (*Client)(nil)
