// Package tlsroots builds the TLS configuration used for backend calls:
// extra trusted roots on top of the system pool and an optional client
// certificate that is reloaded when it is rotated on disk.
package tlsroots
