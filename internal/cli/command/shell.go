package command

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/urfave/cli/v2"

	"github.com/yndnr/dinegate/internal/cli/connection"
	"github.com/yndnr/dinegate/internal/cli/repl"
	"github.com/yndnr/dinegate/internal/core/domain"
	"github.com/yndnr/dinegate/internal/infra/shutdown"
	"github.com/yndnr/dinegate/internal/telemetry/logger"
)

// ShellCommand runs commands against one open session. Unlike single
// commands, the session stays live between lines: the expiry poll runs
// and the continue prompt appears in the shell.
func ShellCommand() *cli.Command {
	return &cli.Command{
		Name:  "shell",
		Usage: "Run commands interactively in one session",
		Flags: []cli.Flag{
			&cli.BoolFlag{
				Name:  "no-history",
				Usage: "Do not read or write the history file",
			},
		},
		Action: shellAction,
	}
}

func shellAction(c *cli.Context) error {
	if sharedManager(c) != nil {
		return domain.ErrInvalidArgument.WithDetails("already inside the shell")
	}

	m, release, err := openSession(c)
	if err != nil {
		return err
	}
	defer release()

	historyFile := ""
	if !c.Bool("no-history") {
		historyFile = filepath.Join(filepath.Dir(c.String("config")), "history")
	}
	hist := repl.NewHistory(historyFile, repl.DefaultHistorySize)
	if err := hist.Load(); err != nil {
		logger.Default().Warn("load shell history", "error", err)
	}
	defer func() {
		if err := hist.Save(); err != nil {
			logger.Default().Warn("save shell history", "error", err)
		}
	}()

	stopVisible := shutdown.Notify(c.Context, func(os.Signal) {
		m.Session.OnVisible(c.Context)
	}, visibilitySignals()...)
	defer stopVisible()

	fmt.Fprintln(stdout(c), `Type "help" for commands, "exit" to leave.`)

	r := repl.New(m.Terminal, stdout(c), shellExecutor(c, m),
		repl.WithPrompt(func() string { return shellPrompt(m) }),
		repl.WithCompleter(repl.NewCompleter(commandNames(c.App.Commands)...)),
		repl.WithHistory(hist),
		repl.WithHistoryFilter(withoutSecrets),
	)
	return r.Run(c.Context)
}

// shellExecutor runs one line as a full CLI invocation bound to m.
func shellExecutor(c *cli.Context, m *connection.Manager) repl.Executor {
	overrides, _ := c.App.Metadata[metaOverrides].(map[string]any)

	return func(ctx context.Context, args []string) error {
		app := App()
		app.Reader = c.App.Reader
		app.Writer = c.App.Writer
		app.ErrWriter = c.App.ErrWriter
		app.ExitErrHandler = func(*cli.Context, error) {}
		app.Metadata = map[string]any{
			metaManager:   m,
			metaOverrides: overrides,
		}
		app.Action = func(line *cli.Context) error {
			if line.NArg() > 0 {
				return domain.ErrInvalidArgument.WithDetails("unknown command " + line.Args().First())
			}
			return cli.ShowAppHelp(line)
		}

		argv := append([]string{c.App.Name, "--config", c.String("config")}, args...)
		return app.RunContext(ctx, argv)
	}
}

// shellPrompt shows who is signed in and the current view.
func shellPrompt(m *connection.Manager) string {
	who := "guest"
	if id, ok := m.Session.CurrentIdentity(); ok {
		who = id.Username
		if who == "" {
			who = id.DisplayName()
		}
	}
	view := m.Terminal.CurrentPath()
	if view == "" {
		view = "/"
	}
	return fmt.Sprintf("%s@%s> ", who, view)
}

// commandNames lists commands and their subcommands as typed in the shell.
func commandNames(cmds []*cli.Command) []string {
	var names []string
	for _, cmd := range cmds {
		if cmd.Name == "shell" || cmd.Name == "watch" || cmd.Hidden {
			continue
		}
		names = append(names, cmd.Name)
		for _, sub := range cmd.Subcommands {
			names = append(names, cmd.Name+" "+sub.Name)
		}
	}
	return names
}

var secretFlags = []string{"-p", "--password", "--passphrase"}

// withoutSecrets reports whether a line is safe to keep in history.
func withoutSecrets(args []string) bool {
	for _, a := range args {
		for _, f := range secretFlags {
			if a == f || strings.HasPrefix(a, f+"=") {
				return false
			}
		}
	}
	return true
}
