// Package openrouter implements a generation backend for OpenAI-compatible
// chat completion endpoints reached over plain HTTP, OpenRouter by default.
//
// Each Generate call issues exactly one request; retries and fallback belong
// to the generation Invoker. Response shape quirks (delta payloads, legacy
// text fields, tool-call arguments) are normalized here, and every failure is
// classified into a *generation.ProviderError before it leaves the package.
package openrouter
