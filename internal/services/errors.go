package services

import "errors"

// Error categories surfaced by the import pipeline. Handlers and the
// orchestrator match these with errors.Is; wrapped detail stays in the
// message.
var (
	// ErrAINotConfigured is a configuration error: no provider credential.
	ErrAINotConfigured = errors.New("OPENAI_API_KEY is not configured")

	// ErrConnectivity covers transport failures, provider rate limits and
	// non-2xx provider responses, uniformly.
	ErrConnectivity = errors.New("could not reach the AI service")

	// ErrParse means the model response was not valid JSON.
	ErrParse = errors.New("could not parse the AI response")

	// ErrBadFormat means the model returned valid JSON that was not an array.
	ErrBadFormat = errors.New("unexpected AI response format")

	// ErrNotFound is returned for missing or already-consumed held results.
	ErrNotFound = errors.New("not found or expired")
)
