// Package api exposes the job queue over HTTP. It validates requests,
// translates them into controller calls and maps job records and errors to
// JSON responses. Routing uses chi; the shared and middleware subpackages hold
// response helpers, tracing and bearer-token authentication.
package api
