package command

import (
	"errors"
	"fmt"
	"io/fs"
	"os"

	"github.com/urfave/cli/v2"
	"go.yaml.in/yaml/v3"

	"github.com/yndnr/dinegate/internal/cli/config"
	"github.com/yndnr/dinegate/internal/cli/output"
	"github.com/yndnr/dinegate/internal/core/domain"
)

// ConfigCommand returns the config command.
func ConfigCommand() *cli.Command {
	return &cli.Command{
		Name:  "config",
		Usage: "Inspect and create the CLI configuration",
		Subcommands: []*cli.Command{
			configShowCommand(),
			configValidateCommand(),
			configInitCommand(),
		},
	}
}

func configShowCommand() *cli.Command {
	return &cli.Command{
		Name:  "show",
		Usage: "Print the effective configuration",
		Action: func(c *cli.Context) error {
			cfg := getConfig(c).Redacted()
			if f, _ := output.ParseFormat(cfg.Output); f == output.FormatJSON {
				return output.NewFormatter(f, false).Format(stdout(c), cfg)
			}
			data, err := yaml.Marshal(cfg)
			if err != nil {
				return fmt.Errorf("encode config: %w", err)
			}
			_, err = stdout(c).Write(data)
			return err
		},
	}
}

func configValidateCommand() *cli.Command {
	return &cli.Command{
		Name:      "validate",
		Usage:     "Validate a configuration file",
		ArgsUsage: "[FILE]",
		Action: func(c *cli.Context) error {
			path := c.Args().First()
			if path == "" {
				path = c.String("config")
			}
			if _, err := os.Stat(path); err != nil {
				return fmt.Errorf("config file %s: %w", path, err)
			}
			if _, err := config.Load(path, nil); err != nil {
				return err
			}
			fmt.Fprintf(stdout(c), "%s: OK\n", path)
			return nil
		},
	}
}

func configInitCommand() *cli.Command {
	return &cli.Command{
		Name:  "init",
		Usage: "Write a default configuration file",
		Flags: []cli.Flag{
			&cli.BoolFlag{
				Name:  "force",
				Usage: "Overwrite an existing file",
			},
		},
		Action: func(c *cli.Context) error {
			path := c.String("config")
			if _, err := os.Stat(path); err == nil && !c.Bool("force") {
				return domain.ErrInvalidArgument.WithDetails(path + " already exists (use --force to overwrite)")
			} else if err != nil && !errors.Is(err, fs.ErrNotExist) {
				return fmt.Errorf("stat config %s: %w", path, err)
			}

			if err := config.Save(config.Default(), path); err != nil {
				return err
			}
			fmt.Fprintf(stdout(c), "Wrote %s\n", path)
			return nil
		},
	}
}
