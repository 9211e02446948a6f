package command

import (
	"fmt"

	"github.com/urfave/cli/v2"

	"github.com/yndnr/dinegate/internal/auth/navguard"
	"github.com/yndnr/dinegate/internal/cli/connection"
	"github.com/yndnr/dinegate/internal/cli/output"
	"github.com/yndnr/dinegate/internal/core/domain"
)

// NavigateCommand opens a view through the navigation guard.
func NavigateCommand() *cli.Command {
	return &cli.Command{
		Name:      "navigate",
		Aliases:   []string{"go"},
		Usage:     "Open a view, subject to the session and role rules",
		ArgsUsage: "PATH",
		Flags: []cli.Flag{
			&cli.BoolFlag{
				Name:    "list",
				Aliases: []string{"l"},
				Usage:   "List the known views",
			},
		},
		Action: navigateAction,
	}
}

func navigateAction(c *cli.Context) error {
	m, release, err := openSession(c)
	if err != nil {
		return err
	}
	defer release()

	if c.Bool("list") {
		return listRoutes(c, m.Guard.Routes())
	}

	target := c.Args().First()
	if target == "" {
		return domain.ErrMissingArgument.WithDetails("view path required")
	}
	return show(c, m, m.Guard.Resolve(c.Context, target))
}

// decisionView is the printable outcome of a navigation.
type decisionView struct {
	Path       string `json:"path"`
	Title      string `json:"title"`
	Allowed    bool   `json:"allowed"`
	Redirected bool   `json:"redirected"`
	NotFound   bool   `json:"not_found,omitempty" table:"wide"`
}

// show applies a guard decision: surfaces its notice, moves the terminal
// to the resulting view and prints where the user ended up.
func show(c *cli.Context, m *connection.Manager, d navguard.Decision) error {
	if !d.Notice.Empty() {
		m.Terminal.Notify(d.Notice)
	}
	if err := m.Terminal.Navigate(d.URL()); err != nil {
		return err
	}

	if structured(c) {
		return formatter(c).Format(stdout(c), decisionView{
			Path:       d.URL(),
			Title:      d.Title,
			Allowed:    d.Allow,
			Redirected: d.Redirected,
			NotFound:   d.NotFound,
		})
	}
	if d.Title != "" {
		fmt.Fprintf(stdout(c), "%s (%s)\n", d.Title, d.URL())
	}
	return nil
}

func listRoutes(c *cli.Context, routes []navguard.Route) error {
	table := output.NewTable("PATH", "TITLE", "AUTH", "GUEST", "ROLE", "REDIRECT")
	for _, r := range routes {
		role := "-"
		if r.Role != domain.RoleUnknown {
			role = r.Role.String()
		}
		table.AddRow(r.Path, dash(r.Title), yesNo(r.RequiresAuth), yesNo(r.GuestOnly), role, dash(r.Redirect))
	}
	return formatter(c).Format(stdout(c), table)
}

func dash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}

func yesNo(b bool) string {
	if b {
		return "yes"
	}
	return "no"
}
