package gate

import "strings"

// DefaultPublicPaths are the backend endpoints that never carry a credential.
var DefaultPublicPaths = []string{
	"/users/login",
	"/users/register",
	"/users/check/",
	"/merchants/active",
	"/merchants/",
	"/dishes",
	"/categories/",
}

// PublicPaths is an allow-list of endpoint fragments. A request path is
// public when it contains any fragment.
type PublicPaths []string

// Match reports whether path is public.
func (p PublicPaths) Match(path string) bool {
	for _, fragment := range p {
		if fragment != "" && strings.Contains(path, fragment) {
			return true
		}
	}
	return false
}
