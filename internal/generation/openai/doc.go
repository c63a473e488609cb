// Package openai implements generation and embedding backends on top of
// github.com/sashabaranov/go-openai. It provides plain and streaming chat
// completions plus embeddings, and converts SDK errors into
// *generation.ProviderError at the boundary.
package openai
