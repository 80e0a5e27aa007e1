// Package gemini implements generation.Generator on top of Google's Gemini
// API using the google.golang.org/genai client.
//
// The adapter sends the rendered prompt as a single user turn, retries
// transient failures (rate limits, server errors, network errors) through
// generation.Retry, maps safety blocks to generation.ErrContentBlocked and
// collects both text and inline image parts of the first candidate.
package gemini
