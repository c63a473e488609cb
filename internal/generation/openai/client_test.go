package openai

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"studyforge/internal/config"
	"studyforge/internal/generation"
	"studyforge/internal/services"
)

func newServer(t *testing.T, handler http.HandlerFunc) *httptest.Server {
	t.Helper()
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)
	return server
}

func testGenerator(url string) config.Generator {
	return config.Generator{ID: "realtime", Backend: config.BackendOpenAI, Model: "gpt-4o-mini", APIKey: "test", BaseURL: url + "/v1"}
}

func TestGenerate(t *testing.T) {
	server := newServer(t, func(w http.ResponseWriter, r *http.Request) {
		if !strings.HasSuffix(r.URL.Path, "/chat/completions") {
			t.Fatalf("unexpected path %s", r.URL.Path)
		}
		var body map[string]any
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			t.Fatalf("decode request: %v", err)
		}
		if body["model"] != "gpt-4o-mini" {
			t.Fatalf("unexpected model %v", body["model"])
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"id":"1","object":"chat.completion","model":"gpt-4o-mini-2024","choices":[{"index":0,"finish_reason":"stop","message":{"role":"assistant","content":"Chlorophyll absorbs light."}}]}`))
	})

	completion, err := New(testGenerator(server.URL)).Generate(context.Background(), generation.Request{System: "Be brief.", Prompt: "What absorbs light?"})
	if err != nil {
		t.Fatalf("Generate returned error: %v", err)
	}
	if completion.Text != "Chlorophyll absorbs light." || completion.Model != "gpt-4o-mini-2024" || completion.FinishReason != "stop" {
		t.Fatalf("unexpected completion %+v", completion)
	}
}

func TestGenerateClassifiesAPIErrors(t *testing.T) {
	tests := []struct {
		name   string
		status int
		body   string
		kind   generation.Kind
		check  func(t *testing.T, err error)
	}{
		{
			name:   "insufficient quota is terminal",
			status: 429,
			body:   `{"error":{"message":"You exceeded your current quota, please check your plan and billing details.","type":"insufficient_quota","code":"insufficient_quota"}}`,
			kind:   generation.KindFatal,
			check: func(t *testing.T, err error) {
				if !generation.IsTerminalQuota(err) || !errors.Is(err, services.ErrQuotaExceeded) {
					t.Fatalf("expected terminal quota, got %v", err)
				}
			},
		},
		{
			name:   "rpm limit is retryable",
			status: 429,
			body:   `{"error":{"message":"Rate limit reached on requests per min (RPM). Please try again in 2s.","type":"requests","code":"rate_limit_exceeded"}}`,
			kind:   generation.KindTransient,
		},
		{
			name:   "unknown model",
			status: 404,
			body:   `{"error":{"message":"The model gpt-9 does not exist","type":"invalid_request_error","code":"model_not_found"}}`,
			kind:   generation.KindModelUnavailable,
		},
		{
			name:   "server error",
			status: 500,
			body:   `{"error":{"message":"The server had an error","type":"server_error"}}`,
			kind:   generation.KindTransient,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			server := newServer(t, func(w http.ResponseWriter, r *http.Request) {
				w.Header().Set("Content-Type", "application/json")
				w.WriteHeader(tt.status)
				_, _ = w.Write([]byte(tt.body))
			})
			_, err := New(testGenerator(server.URL)).Generate(context.Background(), generation.Request{Prompt: "x"})
			if err == nil {
				t.Fatal("expected error")
			}
			if got := generation.KindFor(err); got != tt.kind {
				t.Fatalf("expected kind %s, got %s (%v)", tt.kind, got, err)
			}
			if tt.check != nil {
				tt.check(t, err)
			}
		})
	}
}

func TestStreamDeliversTokens(t *testing.T) {
	tokens := []string{"Photo", "synthesis ", "makes sugar."}
	server := newServer(t, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/event-stream")
		flusher, _ := w.(http.Flusher)
		for i, token := range tokens {
			finish := "null"
			if i == len(tokens)-1 {
				finish = `"stop"`
			}
			fmt.Fprintf(w, "data: {\"id\":\"s\",\"object\":\"chat.completion.chunk\",\"model\":\"gpt-4o-mini\",\"choices\":[{\"index\":0,\"delta\":{\"content\":%q},\"finish_reason\":%s}]}\n\n", token, finish)
			if flusher != nil {
				flusher.Flush()
			}
		}
		fmt.Fprint(w, "data: [DONE]\n\n")
	})

	var got []string
	completion, err := New(testGenerator(server.URL)).Stream(context.Background(), generation.Request{Prompt: "explain"}, func(token string) error {
		got = append(got, token)
		return nil
	})
	if err != nil {
		t.Fatalf("Stream returned error: %v", err)
	}
	if strings.Join(got, "|") != strings.Join(tokens, "|") {
		t.Fatalf("unexpected tokens %q", got)
	}
	if completion.Text != "Photosynthesis makes sugar." || completion.FinishReason != "stop" {
		t.Fatalf("unexpected completion %+v", completion)
	}
}

func TestStreamAbortsOnCallbackError(t *testing.T) {
	server := newServer(t, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/event-stream")
		fmt.Fprint(w, "data: {\"choices\":[{\"index\":0,\"delta\":{\"content\":\"a\"}}]}\n\n")
		fmt.Fprint(w, "data: {\"choices\":[{\"index\":0,\"delta\":{\"content\":\"b\"}}]}\n\n")
		fmt.Fprint(w, "data: [DONE]\n\n")
	})
	stop := errors.New("client went away")
	_, err := New(testGenerator(server.URL)).Stream(context.Background(), generation.Request{Prompt: "x"}, func(string) error { return stop })
	if !errors.Is(err, stop) {
		t.Fatalf("expected callback error, got %v", err)
	}
}

func TestEmbedPreservesOrder(t *testing.T) {
	server := newServer(t, func(w http.ResponseWriter, r *http.Request) {
		if !strings.HasSuffix(r.URL.Path, "/embeddings") {
			t.Fatalf("unexpected path %s", r.URL.Path)
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"object":"list","model":"text-embedding-3-small","data":[{"object":"embedding","index":1,"embedding":[0.5,0.5]},{"object":"embedding","index":0,"embedding":[1,0]}]}`))
	})
	embedder := NewEmbedder(config.Embedding{Model: "text-embedding-3-small", APIKey: "test", BaseURL: server.URL + "/v1"})
	vectors, err := embedder.Embed(context.Background(), []string{"first", "second"})
	if err != nil {
		t.Fatalf("Embed returned error: %v", err)
	}
	if len(vectors) != 2 || vectors[0][0] != 1 || vectors[1][0] != 0.5 {
		t.Fatalf("unexpected vectors %v", vectors)
	}
}
