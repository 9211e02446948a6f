package command

import (
	"fmt"
	"strconv"

	"github.com/urfave/cli/v2"

	"github.com/yndnr/dinegate/internal/client/api"
	"github.com/yndnr/dinegate/internal/core/domain"
)

// AccountCommand returns the account subcommand group.
func AccountCommand() *cli.Command {
	return &cli.Command{
		Name:    "account",
		Aliases: []string{"acct"},
		Usage:   "Register and look up accounts",
		Subcommands: []*cli.Command{
			{
				Name:  "register",
				Usage: "Create a customer or merchant account",
				Flags: []cli.Flag{
					&cli.StringFlag{Name: "username", Aliases: []string{"u"}, Usage: "Username", Required: true},
					&cli.StringFlag{Name: "password", Aliases: []string{"p"}, Usage: "Password (prompted when omitted)", EnvVars: []string{"DINEGATE_PASSWORD"}},
					&cli.StringFlag{Name: "nickname", Usage: "Display name"},
					&cli.StringFlag{Name: "phone", Usage: "Phone number"},
					&cli.StringFlag{Name: "email", Usage: "Email address"},
					&cli.StringFlag{Name: "role", Value: "customer", Usage: "customer or merchant"},
				},
				Action: accountRegister,
			},
			{
				Name:      "check",
				Usage:     "Check whether a username, phone or email is taken",
				ArgsUsage: "FIELD VALUE",
				Action:    accountCheck,
			},
			{
				Name:      "show",
				Usage:     "Show a user record (requires a session)",
				ArgsUsage: "USER_ID",
				Action:    accountShow,
			},
		},
	}
}

func accountRegister(c *cli.Context) error {
	role, err := domain.ParseRole(c.String("role"))
	if err != nil {
		return err
	}
	password := c.String("password")
	if password == "" {
		if password, err = readSecret(c, "Password: "); err != nil {
			return err
		}
	}

	reg := api.Registration{
		Username: c.String("username"),
		Password: password,
		Nickname: c.String("nickname"),
		Phone:    c.String("phone"),
		Email:    c.String("email"),
		Role:     role,
	}
	if err := reg.Validate(); err != nil {
		return err
	}

	m, release, err := openSession(c)
	if err != nil {
		return err
	}
	defer release()

	id, err := m.API.Register(c.Context, reg)
	if err != nil {
		return err
	}
	if structured(c) {
		return formatter(c).Format(stdout(c), newIdentityView(id))
	}
	fmt.Fprintf(stdout(c), "✓ Registered %s. Sign in with: dinegate-cli login -a %s\n", reg.Username, reg.Username)
	return nil
}

func accountCheck(c *cli.Context) error {
	if c.NArg() < 2 {
		return domain.ErrMissingArgument.WithDetails("usage: account check FIELD VALUE")
	}
	field := api.CheckField(c.Args().Get(0))
	value := c.Args().Get(1)

	m, release, err := openSession(c)
	if err != nil {
		return err
	}
	defer release()

	exists, err := m.API.Exists(c.Context, field, value)
	if err != nil {
		return err
	}

	if structured(c) {
		return formatter(c).Format(stdout(c), map[string]any{"field": string(field), "value": value, "taken": exists})
	}
	if exists {
		fmt.Fprintf(stdout(c), "%s %q is taken\n", field, value)
	} else {
		fmt.Fprintf(stdout(c), "%s %q is available\n", field, value)
	}
	return nil
}

func accountShow(c *cli.Context) error {
	id, err := strconv.ParseInt(c.Args().First(), 10, 64)
	if err != nil || id <= 0 {
		return domain.ErrInvalidArgument.WithDetails("USER_ID must be a positive number")
	}

	m, release, err := openSession(c)
	if err != nil {
		return err
	}
	defer release()

	user, err := m.API.GetUser(c.Context, id)
	if err != nil {
		return err
	}
	return formatter(c).Format(stdout(c), newIdentityView(user))
}
