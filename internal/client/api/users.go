package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/yndnr/dinegate/internal/core/domain"
)

// Millis is an instant the backend encodes as epoch milliseconds. It
// also accepts numeric strings and RFC 3339 timestamps.
type Millis int64

// UnmarshalJSON implements json.Unmarshaler.
func (m *Millis) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	if len(b) == 0 || string(b) == "null" {
		*m = 0
		return nil
	}
	if b[0] == '"' {
		var s string
		if err := json.Unmarshal(b, &s); err != nil {
			return err
		}
		if s == "" {
			*m = 0
			return nil
		}
		if n, err := strconv.ParseInt(s, 10, 64); err == nil {
			*m = Millis(n)
			return nil
		}
		t, err := time.Parse(time.RFC3339, s)
		if err != nil {
			return err
		}
		*m = Millis(t.UnixMilli())
		return nil
	}
	var f float64
	if err := json.Unmarshal(b, &f); err != nil {
		return err
	}
	*m = Millis(int64(f))
	return nil
}

// Time returns the instant, or the zero time when unset.
func (m Millis) Time() time.Time {
	if m <= 0 {
		return time.Time{}
	}
	return time.UnixMilli(int64(m))
}

// loginData is the login payload. The identity arrives as userInfo or
// user depending on the backend version; expiry as expiresAt or expires.
type loginData struct {
	Token     string           `json:"token"`
	ExpiresAt Millis           `json:"expiresAt"`
	Expires   Millis           `json:"expires"`
	UserInfo  *domain.Identity `json:"userInfo"`
	User      *domain.Identity `json:"user"`
}

// Login exchanges credentials for a grant. A grant without an expiry has
// a zero ExpiresAt; the caller decides the default lifetime.
func (c *Client) Login(ctx context.Context, creds domain.Credentials) (domain.Grant, error) {
	if err := creds.Validate(); err != nil {
		return domain.Grant{}, err
	}

	var data loginData
	if err := c.Post(ctx, "/users/login", creds, &data); err != nil {
		var se *StatusError
		if errors.As(err, &se) && se.Status < 500 {
			return domain.Grant{}, domain.ErrBadCredentials.WithDetails(se.Message).WithCause(err)
		}
		return domain.Grant{}, err
	}
	if data.Token == "" {
		return domain.Grant{}, domain.ErrBadResponse.WithDetails("login response carries no token")
	}

	identity := data.UserInfo
	if identity == nil {
		identity = data.User
	}
	if identity == nil {
		return domain.Grant{}, domain.ErrBadResponse.WithDetails("login response carries no user")
	}

	expires := data.ExpiresAt
	if expires == 0 {
		expires = data.Expires
	}

	return domain.Grant{
		Identity:   *identity,
		Credential: data.Token,
		ExpiresAt:  expires.Time(),
	}, nil
}

// Registration is the sign-up form.
type Registration struct {
	Username string      `json:"username"`
	Password string      `json:"password"`
	Nickname string      `json:"nickname,omitempty"`
	Phone    string      `json:"phone,omitempty"`
	Email    string      `json:"email,omitempty"`
	Role     domain.Role `json:"role"`
}

// Validate checks the required fields.
func (r Registration) Validate() error {
	if strings.TrimSpace(r.Username) == "" {
		return domain.ErrMissingArgument.WithDetails("username is required")
	}
	if r.Password == "" {
		return domain.ErrMissingArgument.WithDetails("password is required")
	}
	if r.Role != domain.RoleCustomer && r.Role != domain.RoleMerchant {
		return domain.ErrInvalidArgument.WithDetails("only customer and merchant accounts can be registered")
	}
	return nil
}

// Register creates an account and returns the new identity.
func (c *Client) Register(ctx context.Context, reg Registration) (domain.Identity, error) {
	if err := reg.Validate(); err != nil {
		return domain.Identity{}, err
	}
	var id domain.Identity
	if err := c.Post(ctx, "/users/register", reg, &id); err != nil {
		return domain.Identity{}, err
	}
	return id, nil
}

// CheckField is a uniqueness-checked account attribute.
type CheckField string

const (
	CheckUsername CheckField = "username"
	CheckPhone    CheckField = "phone"
	CheckEmail    CheckField = "email"
)

// Exists reports whether an account already uses value for field.
func (c *Client) Exists(ctx context.Context, field CheckField, value string) (bool, error) {
	switch field {
	case CheckUsername, CheckPhone, CheckEmail:
	default:
		return false, domain.ErrInvalidArgument.WithDetails("unknown field " + string(field))
	}
	if value == "" {
		return false, domain.ErrMissingArgument.WithDetails(string(field) + " is required")
	}

	var exists bool
	err := c.Get(ctx, "/users/check/"+string(field), url.Values{string(field): []string{value}}, &exists)
	return exists, err
}

// GetUser fetches a user record. The call requires a session.
func (c *Client) GetUser(ctx context.Context, id int64) (domain.Identity, error) {
	var identity domain.Identity
	if err := c.Get(ctx, "/users/"+strconv.FormatInt(id, 10), nil, &identity); err != nil {
		return domain.Identity{}, err
	}
	return identity, nil
}

// Health is the result of a backend probe.
type Health struct {
	Healthy bool
	Status  int
	Error   string
	Checked time.Time
}

// Health probes GET {base}/health directly, bypassing the gate and the
// rate limiter.
func (c *Client) Health(ctx context.Context) Health {
	h := Health{Checked: time.Now()}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.url("/health"), nil)
	if err != nil {
		h.Error = err.Error()
		return h
	}
	req.Header.Set("User-Agent", c.userAgent)

	resp, err := c.probe.Do(req)
	if err != nil {
		h.Error = err.Error()
		return h
	}
	defer resp.Body.Close()

	h.Status = resp.StatusCode
	h.Healthy = resp.StatusCode >= 200 && resp.StatusCode < 300
	if !h.Healthy {
		h.Error = http.StatusText(resp.StatusCode)
	}
	return h
}
