// Package credential holds the client session triple (identity,
// credential, expiry) and mirrors it to durable local storage.
package credential
