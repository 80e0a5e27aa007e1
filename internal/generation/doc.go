// Package generation defines the generation task run by the job queue. It
// abstracts the LLM provider behind the Generator interface so that the queue,
// the HTTP API and the tests never depend on a specific external service.
//
// NewExecuteFunc adapts a Generator into a job.ExecuteFunc that validates the
// request, renders the prompt and reports progress while the provider call is
// outstanding. Provider adapters live under internal/platform (gemini, openai)
// and share the retry loop in this package.
package generation
