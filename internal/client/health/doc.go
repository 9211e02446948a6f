// Package health tracks whether the backend is reachable.
package health
