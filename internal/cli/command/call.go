package command

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"

	"github.com/urfave/cli/v2"

	"github.com/yndnr/dinegate/internal/client/api"
	"github.com/yndnr/dinegate/internal/core/domain"
	"github.com/yndnr/dinegate/internal/telemetry/logger"
)

// CallCommand sends a raw request through the authorization gate.
func CallCommand() *cli.Command {
	return &cli.Command{
		Name:      "call",
		Usage:     "Call a backend endpoint with the session credential",
		ArgsUsage: "METHOD PATH",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "data",
				Aliases: []string{"d"},
				Usage:   "JSON request body",
			},
			&cli.StringFlag{
				Name:  "request-id",
				Usage: "Send this X-Request-ID instead of a generated one",
			},
		},
		Action: callAction,
	}
}

func callAction(c *cli.Context) error {
	if c.NArg() < 2 {
		return domain.ErrMissingArgument.WithDetails("usage: call METHOD PATH")
	}
	method := strings.ToUpper(c.Args().Get(0))
	path := c.Args().Get(1)

	var body []byte
	if data := c.String("data"); data != "" {
		if !json.Valid([]byte(data)) {
			return domain.ErrInvalidArgument.WithDetails("--data is not valid JSON")
		}
		body = []byte(data)
	}

	m, release, err := openSession(c)
	if err != nil {
		return err
	}
	defer release()

	ctx := c.Context
	if id := c.String("request-id"); id != "" {
		ctx = logger.WithRequestID(ctx, id)
	}

	status, payload, err := m.API.Call(ctx, method, path, body)
	if err != nil {
		return err
	}

	fmt.Fprintf(stderr(c), "HTTP %d %s\n", status, http.StatusText(status))
	var pretty bytes.Buffer
	if json.Indent(&pretty, payload, "", "  ") == nil {
		payload = pretty.Bytes()
	}
	if len(payload) > 0 {
		fmt.Fprintln(stdout(c), strings.TrimRight(string(payload), "\n"))
	}

	if status >= 400 {
		return &api.StatusError{Status: status, Message: http.StatusText(status)}
	}
	return nil
}
