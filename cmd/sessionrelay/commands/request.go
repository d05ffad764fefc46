package commands

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"slices"
	"strings"

	"github.com/urfave/cli/v3"

	"github.com/florianilch/sessionrelay/internal/app"
	"github.com/florianilch/sessionrelay/internal/client"
	"github.com/florianilch/sessionrelay/internal/session"
)

func requestCommand() *cli.Command {
	return &cli.Command{
		Name:      "request",
		Usage:     "send one authenticated request and print the response body",
		ArgsUsage: "METHOD PATH",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:  "data",
				Usage: "JSON request body",
			},
			&cli.StringSliceFlag{
				Name:  "query",
				Usage: "query parameter as key=value (repeatable)",
			},
			&cli.StringSliceFlag{
				Name:  "header",
				Usage: "request header as Key: value (repeatable)",
			},
			&cli.DurationFlag{
				Name:  "timeout",
				Usage: "request timeout",
			},
		},
		Action: requestAction,
	}
}

func requestAction(ctx context.Context, cmd *cli.Command) error {
	if cmd.Args().Len() != 2 {
		return fmt.Errorf("expected METHOD PATH, got %d arguments", cmd.Args().Len())
	}
	method := strings.ToUpper(cmd.Args().Get(0))
	path := cmd.Args().Get(1)
	if !slices.Contains(methods, method) {
		return fmt.Errorf("unsupported method %q", method)
	}

	opts, err := requestOptions(cmd)
	if err != nil {
		return err
	}

	return withApp(ctx, cmd, func(ctx context.Context, application *app.App) error {
		resp, err := application.Client().Request(ctx, method, path, opts...)
		if err != nil {
			var apiErr *client.APIError
			switch {
			case errors.Is(err, session.ErrRefreshFailed):
				return fmt.Errorf("session expired, run login again: %w", err)
			case errors.As(err, &apiErr):
				_, _ = writer(cmd).Write(apiErr.Body)
				return fmt.Errorf("request failed with status %d", apiErr.StatusCode)
			default:
				return err
			}
		}

		_, err = writer(cmd).Write(resp.Body)
		return err
	})
}

// requestOptions turns the request flags into client options.
func requestOptions(cmd *cli.Command) ([]client.RequestOption, error) {
	var opts []client.RequestOption

	for _, q := range cmd.StringSlice("query") {
		key, value, ok := strings.Cut(q, "=")
		if !ok {
			return nil, fmt.Errorf("invalid query %q, expected key=value", q)
		}
		opts = append(opts, client.WithQuery(key, value))
	}

	for _, h := range cmd.StringSlice("header") {
		key, value, ok := strings.Cut(h, ":")
		if !ok {
			return nil, fmt.Errorf("invalid header %q, expected Key: value", h)
		}
		opts = append(opts, client.WithHeader(strings.TrimSpace(key), strings.TrimSpace(value)))
	}

	if data := cmd.String("data"); data != "" {
		opts = append(opts, client.WithBody("application/json", []byte(data)))
	}

	if timeout := cmd.Duration("timeout"); timeout > 0 {
		opts = append(opts, client.WithTimeout(timeout))
	}

	return opts, nil
}

// methods accepted as the first argument, mostly to catch swapped arguments
var methods = []string{
	http.MethodGet, http.MethodHead, http.MethodPost, http.MethodPut,
	http.MethodPatch, http.MethodDelete, http.MethodOptions,
}
