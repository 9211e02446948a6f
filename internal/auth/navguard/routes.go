package navguard

import (
	"strings"

	"github.com/yndnr/dinegate/internal/core/domain"
)

// Route declares the access rules of a view. Flags of a route apply to
// every path beneath it.
type Route struct {
	Path         string
	Title        string
	RequiresAuth bool
	GuestOnly    bool
	Role         domain.Role // RoleUnknown: any role
	Redirect     string      // static redirect applied on an exact match
}

// DefaultRoutes returns the application's view table.
func DefaultRoutes() []Route {
	return []Route{
		{Path: "/", Redirect: "/customer"},

		{Path: "/customer", Redirect: "/customer/merchants"},
		{Path: "/customer/merchants", Title: "Choose a merchant"},
		{Path: "/customer/menu", Title: "Menu"},
		{Path: "/customer/cart", Title: "Cart", RequiresAuth: true, Role: domain.RoleCustomer},
		{Path: "/customer/orders", Title: "My orders", RequiresAuth: true, Role: domain.RoleCustomer},
		{Path: "/customer/profile", Title: "Profile", RequiresAuth: true, Role: domain.RoleCustomer},
		{Path: "/customer/address", Title: "Addresses", RequiresAuth: true, Role: domain.RoleCustomer},

		{Path: "/merchant", RequiresAuth: true, Role: domain.RoleMerchant, Redirect: "/merchant/orders"},
		{Path: "/merchant/orders", Title: "Order management"},
		{Path: "/merchant/menu", Title: "Menu management"},
		{Path: "/merchant/stats", Title: "Statistics"},

		{Path: "/admin", Title: "Administration", RequiresAuth: true, Role: domain.RoleAdmin},

		{Path: "/auth/login", Title: "Sign in", GuestOnly: true},
		{Path: "/auth/register", Title: "Register", GuestOnly: true},

		{Path: "/system-status", Title: "System status"},
	}
}

// rules is the effective rule set for one path.
type rules struct {
	requiresAuth bool
	guestOnly    bool
	role         domain.Role
	title        string
	redirect     string
	found        bool
}

func (r rules) needsAuth() bool {
	return r.requiresAuth || r.role != domain.RoleUnknown
}

// covers reports whether route path p is path itself or an ancestor of it.
func covers(p, path string) bool {
	if p == path {
		return true
	}
	if p == "/" {
		return false
	}
	return strings.HasPrefix(path, strings.TrimSuffix(p, "/")+"/")
}

// effective merges the rules of every route covering path. Boolean flags
// accumulate from ancestors; role and title come from the most specific
// route that sets them. routes must be sorted most specific first.
func effective(routes []Route, path string) rules {
	var r rules
	for _, route := range routes {
		if !covers(route.Path, path) {
			continue
		}
		r.found = true
		r.requiresAuth = r.requiresAuth || route.RequiresAuth
		r.guestOnly = r.guestOnly || route.GuestOnly
		if r.role == domain.RoleUnknown {
			r.role = route.Role
		}
		if r.title == "" {
			r.title = route.Title
		}
		if route.Path == path && r.redirect == "" {
			r.redirect = route.Redirect
		}
	}
	if !r.found {
		r.title = "Page not found"
	}
	return r
}
