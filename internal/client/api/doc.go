// Package api is the HTTP client for the food-ordering backend.
//
// Every call goes through the configured transport, normally the
// authorization gate, and is throttled by a client-side rate limiter.
// Responses use the backend envelope {code, msg, data}.
package api
