package navguard

import (
	"context"
	"net/url"
	"sort"
	"strings"

	"github.com/yndnr/dinegate/internal/auth/lifecycle"
	"github.com/yndnr/dinegate/internal/core/domain"
	"github.com/yndnr/dinegate/internal/telemetry/logger"
)

// RedirectParam is the login query parameter holding the resume target.
const RedirectParam = "redirect"

// Notice messages.
const (
	MsgLoginRequired = "Please sign in first."
	MsgNotPermitted  = "You do not have permission to access this page."
)

const maxRedirects = 8

// Session is the view of the lifecycle manager the guard needs.
type Session interface {
	IsAuthenticated() bool
	CurrentIdentity() (domain.Identity, bool)
	State() lifecycle.State
	Expire(ctx context.Context, cause string)
}

// Decision is the outcome of a transition request.
type Decision struct {
	// Allow is true when the requested view may be shown as-is.
	Allow bool
	// Path is the view to show: the resolved target, or the redirect.
	Path string
	// Query is attached to Path (the login resume target).
	Query url.Values
	// Redirected is true when Path differs from the requested view.
	Redirected bool
	// Title of the view at Path.
	Title string
	// NotFound is true when no route declares the view.
	NotFound bool
	// Notice to surface, if any.
	Notice domain.Notice
}

// URL returns Path with Query encoded.
func (d Decision) URL() string {
	if len(d.Query) == 0 {
		return d.Path
	}
	return d.Path + "?" + d.Query.Encode()
}

// Guard resolves view transitions against a route table.
type Guard struct {
	routes    []Route
	session   Session
	loginPath string
	logger    logger.Logger
}

// Option configures a Guard.
type Option func(*Guard)

// WithRoutes replaces the route table.
func WithRoutes(routes []Route) Option {
	return func(g *Guard) { g.routes = append([]Route(nil), routes...) }
}

// WithLoginPath sets the login view. Default: /auth/login.
func WithLoginPath(path string) Option {
	return func(g *Guard) { g.loginPath = path }
}

// WithLogger sets the logger.
func WithLogger(l logger.Logger) Option {
	return func(g *Guard) { g.logger = l }
}

// New creates a guard over session.
func New(session Session, opts ...Option) *Guard {
	g := &Guard{
		routes:    DefaultRoutes(),
		session:   session,
		loginPath: "/auth/login",
	}
	for _, opt := range opts {
		opt(g)
	}
	sort.SliceStable(g.routes, func(i, j int) bool {
		return len(g.routes[i].Path) > len(g.routes[j].Path)
	})
	g.logger = logger.OrDefault(g.logger).With("component", "navguard")
	return g
}

// Resolve decides the transition to target, a local path with optional
// query ("/customer/orders?page=2").
func (g *Guard) Resolve(ctx context.Context, target string) Decision {
	u, err := url.Parse(target)
	if err != nil || u.IsAbs() || u.Host != "" {
		g.logger.Warn("rejecting non-local navigation target", "target", target)
		return g.redirectTo(g.landing(), domain.Notice{})
	}

	path := cleanPath(u.Path)
	r := effective(g.routes, path)
	for hops := 0; r.redirect != "" && hops < maxRedirects; hops++ {
		path = cleanPath(r.redirect)
		r = effective(g.routes, path)
	}
	fullPath := path
	if u.RawQuery != "" {
		fullPath += "?" + u.RawQuery
	}
	if u.Fragment != "" {
		fullPath += "#" + u.Fragment
	}

	authed := g.session.IsAuthenticated()

	// The manager still believes in the session but the store disagrees.
	if !authed && g.session.State().Active() {
		g.logger.Info("session lapsed during navigation", "target", path)
		g.session.Expire(ctx, lifecycle.CauseExpired)
		return g.toLogin(fullPath, r, domain.Notice{})
	}

	if r.needsAuth() && !authed {
		g.logger.Debug("login required", "target", path)
		return g.toLogin(fullPath, r, domain.Notice{Level: domain.NoticeWarning, Message: MsgLoginRequired})
	}

	if authed {
		identity, _ := g.session.CurrentIdentity()

		if r.guestOnly {
			return g.redirectTo(g.landing(), domain.Notice{})
		}
		if r.role != domain.RoleUnknown && identity.Role != r.role {
			g.logger.Info("role not permitted", "target", path, "role", identity.Role.String(), "required", r.role.String())
			return g.redirectTo(g.landing(), domain.Notice{Level: domain.NoticeError, Message: MsgNotPermitted})
		}
	}

	return Decision{
		Allow:      true,
		Path:       path,
		Query:      u.Query(),
		Redirected: path != cleanPath(u.Path),
		Title:      r.title,
		NotFound:   !r.found,
	}
}

// Routes returns the route table sorted by path.
func (g *Guard) Routes() []Route {
	out := append([]Route(nil), g.routes...)
	sort.Slice(out, func(i, j int) bool { return out[i].Path < out[j].Path })
	return out
}

// landing returns the landing view of the current identity.
func (g *Guard) landing() string {
	identity, _ := g.session.CurrentIdentity()
	return identity.Role.LandingPath()
}

func (g *Guard) toLogin(fullPath string, r rules, notice domain.Notice) Decision {
	d := g.redirectTo(g.loginPath, notice)
	if r.needsAuth() {
		d.Query = url.Values{RedirectParam: []string{fullPath}}
	}
	return d
}

func (g *Guard) redirectTo(path string, notice domain.Notice) Decision {
	// Landing paths may themselves redirect ("/customer" -> "/customer/merchants").
	r := effective(g.routes, path)
	for hops := 0; r.redirect != "" && hops < maxRedirects; hops++ {
		path = r.redirect
		r = effective(g.routes, path)
	}
	return Decision{
		Path:       path,
		Redirected: true,
		Title:      r.title,
		Notice:     notice,
	}
}

// ResumeTarget returns the view to open after login: the preserved
// redirect target if it is a local path, else fallback.
func ResumeTarget(query url.Values, fallback string) string {
	target := query.Get(RedirectParam)
	if target == "" || !strings.HasPrefix(target, "/") ||
		strings.HasPrefix(target, "//") || strings.HasPrefix(target, "/\\") {
		return fallback
	}
	return target
}

func cleanPath(p string) string {
	if p == "" {
		return "/"
	}
	if len(p) > 1 {
		p = strings.TrimSuffix(p, "/")
	}
	return p
}
