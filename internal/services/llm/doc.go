// Package llm provides an OpenAI-compatible chat client used by the matching
// and title-cleaning stages.
//
// # Providers
//
// Provider is a closed set: deepseek (default), openrouter, and openai. Each
// carries a default endpoint and model; Config values override them. NewClient
// fails on an unknown provider or a missing API key.
//
// # Entry Points
//
// NewClient: construct client from Config.
// Client.Complete: send one user message in JSON mode, receive raw content and token usage.
// Client.Usage: cumulative request and token counts.
// DecodeLLMJSON / StripCodeFence: tolerate fenced or prose-wrapped JSON.
//
// # Retry Behaviour
//
// The client retries on HTTP 408/429/5xx errors, empty content, and network
// timeouts with exponential backoff (base 1s, max 10s, up to 3 attempts by
// default), honouring Retry-After. Context cancellation aborts retries
// immediately. Final failures are wrapped with services.ErrBackend, or
// services.ErrRateLimited when the backend kept answering 429.
package llm
