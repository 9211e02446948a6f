package domain

import (
	"encoding/json"
	"strings"
)

// Role is the user role as encoded by the backend.
type Role int

// Backend role codes.
const (
	RoleUnknown  Role = 0
	RoleCustomer Role = 1
	RoleMerchant Role = 2
	RoleAdmin    Role = 3
)

// String returns the lowercase role name used in route metadata.
func (r Role) String() string {
	switch r {
	case RoleCustomer:
		return "customer"
	case RoleMerchant:
		return "merchant"
	case RoleAdmin:
		return "admin"
	default:
		return "unknown"
	}
}

// Valid reports whether r is one of the known roles.
func (r Role) Valid() bool {
	return r >= RoleCustomer && r <= RoleAdmin
}

// LandingPath returns the view a user of this role is sent to by default.
// Unknown roles fall back to the customer landing view.
func (r Role) LandingPath() string {
	switch r {
	case RoleMerchant:
		return "/merchant"
	case RoleAdmin:
		return "/admin"
	default:
		return "/customer"
	}
}

// ParseRole parses a role name or numeric code.
func ParseRole(s string) (Role, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "customer", "1":
		return RoleCustomer, nil
	case "merchant", "2":
		return RoleMerchant, nil
	case "admin", "3":
		return RoleAdmin, nil
	}
	return RoleUnknown, ErrInvalidArgument.WithDetails("unknown role " + s)
}

// Identity is the user record returned by the backend on login.
type Identity struct {
	ID       int64  `json:"id"`
	Username string `json:"username,omitempty"`
	Nickname string `json:"nickname,omitempty"`
	Phone    string `json:"phone,omitempty"`
	Email    string `json:"email,omitempty"`
	Role     Role   `json:"role"`
}

// DisplayName returns the nickname, falling back to the username.
func (i Identity) DisplayName() string {
	if i.Nickname != "" {
		return i.Nickname
	}
	if i.Username != "" {
		return i.Username
	}
	return "unknown user"
}

// Validate checks the fields the session relies on.
func (i Identity) Validate() error {
	if i.ID == 0 {
		return ErrSessionInvalid.WithDetails("identity id is required")
	}
	return nil
}

// MarshalIdentity serializes an identity for durable storage.
func MarshalIdentity(i Identity) (string, error) {
	data, err := json.Marshal(i)
	if err != nil {
		return "", err
	}
	return string(data), nil
}

// UnmarshalIdentity parses a stored identity record.
func UnmarshalIdentity(s string) (Identity, error) {
	var i Identity
	if err := json.Unmarshal([]byte(s), &i); err != nil {
		return Identity{}, ErrRestoreFailed.WithCause(err)
	}
	if err := i.Validate(); err != nil {
		return Identity{}, ErrRestoreFailed.WithCause(err)
	}
	return i, nil
}

// Credentials is what the user submits to log in.
type Credentials struct {
	Account  string `json:"account"`
	Password string `json:"password"`
}

// Validate checks that both fields are present.
func (c Credentials) Validate() error {
	if strings.TrimSpace(c.Account) == "" {
		return ErrMissingArgument.WithDetails("account is required")
	}
	if c.Password == "" {
		return ErrMissingArgument.WithDetails("password is required")
	}
	return nil
}
