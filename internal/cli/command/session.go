package command

import (
	"fmt"
	"net/url"
	"time"

	"github.com/urfave/cli/v2"

	"github.com/yndnr/dinegate/internal/auth/lifecycle"
	"github.com/yndnr/dinegate/internal/auth/navguard"
	"github.com/yndnr/dinegate/internal/cli/output"
	"github.com/yndnr/dinegate/internal/core/domain"
	"github.com/yndnr/dinegate/internal/telemetry/logger"
)

// LoginCommand signs in and opens the role's landing view, or the view
// that sent the user to the login page.
func LoginCommand() *cli.Command {
	return &cli.Command{
		Name:  "login",
		Usage: "Sign in",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:     "account",
				Aliases:  []string{"a", "u"},
				Usage:    "Username, phone or email",
				Required: true,
			},
			&cli.StringFlag{
				Name:    "password",
				Aliases: []string{"p"},
				Usage:   "Password (prompted when omitted)",
				EnvVars: []string{"DINEGATE_PASSWORD"},
			},
			&cli.StringFlag{
				Name:  "redirect",
				Usage: "View to open after signing in",
			},
		},
		Action: loginAction,
	}
}

func loginAction(c *cli.Context) error {
	m, release, err := openSession(c)
	if err != nil {
		return err
	}
	defer release()

	if d := m.Guard.Resolve(c.Context, getConfig(c).Auth.LoginPath); !d.Allow {
		id, _ := m.Session.CurrentIdentity()
		fmt.Fprintf(stdout(c), "Already signed in as %s.\n", id.DisplayName())
		return nil
	}

	password := c.String("password")
	if password == "" {
		if password, err = readSecret(c, "Password: "); err != nil {
			return err
		}
	}

	var spin *output.Spinner
	if isTerminal(stderr(c)) {
		spin = output.NewSpinner(stderr(c), "Signing in")
		spin.Start()
	}
	err = m.Session.Login(c.Context, domain.Credentials{Account: c.String("account"), Password: password})
	if spin != nil {
		if err != nil {
			spin.Fail("Sign in failed")
		} else {
			spin.Stop()
		}
	}
	if err != nil {
		return err
	}

	id, _ := m.Session.CurrentIdentity()
	target := navguard.ResumeTarget(url.Values{navguard.RedirectParam: []string{c.String("redirect")}}, id.Role.LandingPath())
	return show(c, m, m.Guard.Resolve(c.Context, target))
}

// LogoutCommand signs out.
func LogoutCommand() *cli.Command {
	return &cli.Command{
		Name:   "logout",
		Usage:  "Sign out and clear the stored credential",
		Action: logoutAction,
	}
}

func logoutAction(c *cli.Context) error {
	m, release, err := openSession(c)
	if err != nil {
		return err
	}
	defer release()

	if !m.Session.IsAuthenticated() {
		fmt.Fprintln(stdout(c), "Not signed in.")
		return nil
	}
	return m.Session.Logout(c.Context, lifecycle.CauseUser)
}

// identityView is the printable identity.
type identityView struct {
	ID       int64  `json:"id"`
	Username string `json:"username"`
	Nickname string `json:"nickname,omitempty"`
	Role     string `json:"role"`
	Phone    string `json:"phone,omitempty" table:"wide"`
	Email    string `json:"email,omitempty" table:"wide"`
}

func newIdentityView(id domain.Identity) identityView {
	return identityView{
		ID:       id.ID,
		Username: id.Username,
		Nickname: id.Nickname,
		Role:     id.Role.String(),
		Phone:    id.Phone,
		Email:    id.Email,
	}
}

// WhoamiCommand prints the signed-in identity.
func WhoamiCommand() *cli.Command {
	return &cli.Command{
		Name:   "whoami",
		Usage:  "Show the signed-in user",
		Action: whoamiAction,
	}
}

func whoamiAction(c *cli.Context) error {
	m, release, err := openSession(c)
	if err != nil {
		return err
	}
	defer release()

	id, ok := m.Session.CurrentIdentity()
	if !ok {
		return domain.ErrNoSession
	}
	return formatter(c).Format(stdout(c), newIdentityView(id))
}

// statusView summarizes the client session.
type statusView struct {
	State         string        `json:"state"`
	User          string        `json:"user,omitempty"`
	Role          string        `json:"role,omitempty"`
	Credential    string        `json:"credential,omitempty" table:"wide"`
	ExpiresAt     time.Time     `json:"expires_at"`
	Remaining     time.Duration `json:"remaining_ns"`
	WarningIssued bool          `json:"warning_issued"`
	View          string        `json:"view,omitempty"`
	Backend       string        `json:"backend"`
	Healthy       *bool         `json:"healthy,omitempty"`
	HealthError   string        `json:"health_error,omitempty" table:"wide"`
}

// StatusCommand prints the session state.
func StatusCommand() *cli.Command {
	return &cli.Command{
		Name:  "status",
		Usage: "Show the session state",
		Flags: []cli.Flag{
			&cli.BoolFlag{
				Name:  "health",
				Usage: "Probe the backend",
			},
			&cli.BoolFlag{
				Name:  "metrics",
				Usage: "Print client metrics in Prometheus text format",
			},
		},
		Action: statusAction,
	}
}

func statusAction(c *cli.Context) error {
	m, release, err := openSession(c)
	if err != nil {
		return err
	}
	defer release()

	snap := m.Store.Snapshot()
	view := statusView{
		State:         m.Session.State().String(),
		ExpiresAt:     snap.Expiry(),
		Remaining:     m.Session.TimeRemaining(),
		WarningIssued: snap.WarningIssued,
		View:          m.Terminal.CurrentPath(),
		Backend:       m.API.BaseURL(),
	}
	if id, ok := m.Session.CurrentIdentity(); ok {
		view.User = id.DisplayName()
		view.Role = id.Role.String()
	}
	if m.Store.HasCredential() {
		view.Credential = logger.RedactCredential(m.Store.Credential())
	}
	if c.Bool("health") {
		st := m.Health.Check(c.Context)
		view.Healthy = &st.Healthy
		view.HealthError = st.LastError
	}

	if err := formatter(c).Format(stdout(c), view); err != nil {
		return err
	}
	if c.Bool("metrics") {
		fmt.Fprintln(stdout(c))
		return m.Metrics.WriteText(stdout(c))
	}
	return nil
}
