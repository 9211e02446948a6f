package command

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/urfave/cli/v2"
	"golang.org/x/term"

	"github.com/yndnr/dinegate/internal/cli/config"
	"github.com/yndnr/dinegate/internal/cli/connection"
	"github.com/yndnr/dinegate/internal/cli/output"
	"github.com/yndnr/dinegate/internal/core/domain"
	"github.com/yndnr/dinegate/internal/infra/buildinfo"
	"github.com/yndnr/dinegate/internal/telemetry/logger"
)

// Metadata keys.
const (
	metaConfig    = "config"
	metaOverrides = "overrides"
	metaOptions   = "connOptions"
	metaManager   = "manager"
)

// App creates the CLI application.
func App() *cli.App {
	return &cli.App{
		Name:    "dinegate-cli",
		Usage:   "Sign in to the food-ordering backend and manage the client session",
		Version: buildinfo.String(),
		Flags:   globalFlags(),
		Commands: []*cli.Command{
			LoginCommand(),
			LogoutCommand(),
			WhoamiCommand(),
			StatusCommand(),
			CallCommand(),
			NavigateCommand(),
			AccountCommand(),
			WatchCommand(),
			ShellCommand(),
			ConfigCommand(),
		},
		Before: loadConfig,
	}
}

// globalFlags returns the global CLI flags.
func globalFlags() []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{
			Name:    "config",
			Aliases: []string{"c"},
			Usage:   "Configuration file",
			EnvVars: []string{"DINEGATE_CONFIG"},
			Value:   config.DefaultConfigPath(),
		},
		&cli.StringFlag{
			Name:    "server",
			Aliases: []string{"s"},
			Usage:   "Backend API base URL (e.g., http://localhost:8080/api)",
		},
		&cli.StringFlag{
			Name:    "output",
			Aliases: []string{"o"},
			Usage:   "Output format: table, json, yaml",
		},
		&cli.BoolFlag{
			Name:    "wide",
			Aliases: []string{"w"},
			Usage:   "Show wide output (more columns)",
		},
		&cli.BoolFlag{
			Name:    "verbose",
			Aliases: []string{"V"},
			Usage:   "Enable debug logging",
		},
		&cli.StringFlag{
			Name:  "storage",
			Usage: "Local storage engine: badger, memory",
		},
		&cli.StringFlag{
			Name:  "data-dir",
			Usage: "Local storage directory",
		},
		&cli.StringFlag{
			Name:    "passphrase",
			Usage:   "Passphrase sealing the stored credential",
			EnvVars: []string{"DINEGATE_PASSPHRASE"},
		},
	}
}

// flagOverrides maps explicitly set global flags onto config keys.
func flagOverrides(c *cli.Context) map[string]any {
	out := make(map[string]any)
	set := func(flag, key string) {
		if c.IsSet(flag) {
			out[key] = c.String(flag)
		}
	}
	set("server", "api.base_url")
	set("output", "output")
	set("storage", "storage.engine")
	set("data-dir", "storage.dir")
	set("passphrase", "storage.passphrase")
	if c.Bool("verbose") {
		out["log.level"] = "debug"
	}
	return out
}

// loadConfig merges configuration and installs the logger.
func loadConfig(c *cli.Context) error {
	overrides := flagOverrides(c)
	// Overrides inherited from an enclosing shell apply unless set again.
	if inherited, ok := c.App.Metadata[metaOverrides].(map[string]any); ok {
		for k, v := range inherited {
			if _, set := overrides[k]; !set {
				overrides[k] = v
			}
		}
	}
	cfg, err := config.Load(c.String("config"), overrides)
	if err != nil {
		return fmt.Errorf("load configuration: %w", err)
	}

	errOut := c.App.ErrWriter
	if errOut == nil {
		errOut = os.Stderr
	}
	log, err := logger.New(logger.Config{Level: cfg.Log.Level, Format: cfg.Log.Format, Output: errOut})
	if err != nil {
		return err
	}
	logger.SetDefault(log)

	if c.App.Metadata == nil {
		c.App.Metadata = make(map[string]any)
	}
	c.App.Metadata[metaConfig] = cfg
	c.App.Metadata[metaOverrides] = overrides
	return nil
}

// getConfig returns the loaded configuration.
func getConfig(c *cli.Context) *config.Config {
	if cfg, ok := c.App.Metadata[metaConfig].(*config.Config); ok {
		return cfg
	}
	return config.Default()
}

// openSession wires a session for the running command. Inside the shell
// the shell's session is reused and release leaves it open.
func openSession(c *cli.Context, tweaks ...func(*connection.Options)) (m *connection.Manager, release func(), err error) {
	if shared := sharedManager(c); shared != nil {
		return shared, func() {}, nil
	}

	opts, _ := c.App.Metadata[metaOptions].(connection.Options)
	if opts.In == nil {
		opts.In = c.App.Reader
	}
	if opts.Out == nil {
		opts.Out = c.App.Writer
	}
	if opts.Logger == nil {
		opts.Logger = logger.Default()
	}
	for _, tweak := range tweaks {
		tweak(&opts)
	}
	if m, err = connection.Open(c.Context, getConfig(c), opts); err != nil {
		return nil, nil, err
	}
	return m, func() {
		if err := m.Close(); err != nil {
			logger.Default().Warn("close session", "error", err)
		}
	}, nil
}

// sharedManager returns the shell's session, if running inside one.
func sharedManager(c *cli.Context) *connection.Manager {
	m, _ := c.App.Metadata[metaManager].(*connection.Manager)
	return m
}

// formatter returns the formatter selected by configuration and flags.
func formatter(c *cli.Context) output.Formatter {
	format, err := output.ParseFormat(getConfig(c).Output)
	if err != nil {
		format = output.FormatTable
	}
	return output.NewFormatter(format, c.Bool("wide"))
}

// structured reports whether the output is meant for machines.
func structured(c *cli.Context) bool {
	format, _ := output.ParseFormat(getConfig(c).Output)
	return format == output.FormatJSON || format == output.FormatYAML
}

func stdout(c *cli.Context) io.Writer {
	if c.App.Writer != nil {
		return c.App.Writer
	}
	return os.Stdout
}

func stderr(c *cli.Context) io.Writer {
	if c.App.ErrWriter != nil {
		return c.App.ErrWriter
	}
	return os.Stderr
}

// isTerminal reports whether r is an interactive terminal.
func isTerminal(r any) bool {
	f, ok := r.(*os.File)
	return ok && term.IsTerminal(int(f.Fd()))
}

// readSecret prompts for a secret. Terminal input is not echoed; other
// input is read as a single line.
func readSecret(c *cli.Context, prompt string) (string, error) {
	fmt.Fprint(stderr(c), prompt)

	// The shell owns the input; read through it.
	if m := sharedManager(c); m != nil {
		line, err := m.Terminal.ReadLine(c.Context)
		if err != nil {
			return "", fmt.Errorf("read password: %w", err)
		}
		return line, nil
	}

	if f, ok := c.App.Reader.(*os.File); ok && isTerminal(f) {
		secret, err := term.ReadPassword(int(f.Fd()))
		fmt.Fprintln(stderr(c))
		if err != nil {
			return "", fmt.Errorf("read password: %w", err)
		}
		return string(secret), nil
	}

	line, err := bufio.NewReader(c.App.Reader).ReadString('\n')
	if err != nil && (err != io.EOF || line == "") {
		return "", fmt.Errorf("read password: %w", err)
	}
	return strings.TrimRight(line, "\r\n"), nil
}

// ExitCode maps a command error to the process exit status: 0 on success,
// 2 for argument errors and 1 otherwise.
func ExitCode(err error) int {
	switch {
	case err == nil:
		return 0
	case strings.HasPrefix(domain.GetErrorCode(err), "DG-ARG-"):
		return 2
	default:
		return 1
	}
}
