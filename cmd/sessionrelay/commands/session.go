package commands

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/urfave/cli/v3"
	"golang.org/x/term"

	"github.com/florianilch/sessionrelay/internal/app"
)

func loginCommand() *cli.Command {
	return &cli.Command{
		Name:  "login",
		Usage: "store a refresh token, read from stdin or a hidden prompt",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:  "access-token",
				Usage: "access token issued together with the refresh token (optional)",
			},
		},
		Action: func(ctx context.Context, cmd *cli.Command) error {
			refresh, err := readSecret(cmd.Root().Reader, cmd.Root().ErrWriter, "Refresh token: ")
			if err != nil {
				return fmt.Errorf("reading refresh token: %w", err)
			}
			if refresh == "" {
				return errors.New("refresh token must not be empty")
			}

			return withApp(ctx, cmd, func(ctx context.Context, application *app.App) error {
				if err := application.Session().Login(ctx, cmd.String("access-token"), refresh); err != nil {
					return fmt.Errorf("login failed: %w", err)
				}
				_, err := fmt.Fprintln(writer(cmd), "logged in")
				return err
			})
		},
	}
}

func logoutCommand() *cli.Command {
	return &cli.Command{
		Name:  "logout",
		Usage: "delete the stored refresh token",
		Action: func(ctx context.Context, cmd *cli.Command) error {
			return withApp(ctx, cmd, func(ctx context.Context, application *app.App) error {
				if err := application.Session().Logout(ctx); err != nil {
					return fmt.Errorf("logout failed: %w", err)
				}
				_, err := fmt.Fprintln(writer(cmd), "logged out")
				return err
			})
		},
	}
}

func statusCommand() *cli.Command {
	return &cli.Command{
		Name:  "status",
		Usage: "show which tokens are present",
		Action: func(ctx context.Context, cmd *cli.Command) error {
			return withApp(ctx, cmd, func(ctx context.Context, application *app.App) error {
				status, err := application.Session().Status(ctx)
				if err != nil {
					return fmt.Errorf("reading status: %w", err)
				}
				enc := json.NewEncoder(writer(cmd))
				enc.SetIndent("", "  ")
				return enc.Encode(status)
			})
		},
	}
}

// readSecret reads one line from r. On a terminal the prompt goes to w and
// input is not echoed.
func readSecret(r io.Reader, w io.Writer, prompt string) (string, error) {
	if r == nil {
		r = os.Stdin
	}
	if w == nil {
		w = os.Stderr
	}

	if f, ok := r.(*os.File); ok && term.IsTerminal(int(f.Fd())) {
		_, _ = fmt.Fprint(w, prompt)
		secret, err := term.ReadPassword(int(f.Fd()))
		_, _ = fmt.Fprintln(w)
		if err != nil {
			return "", err
		}
		return strings.TrimSpace(string(secret)), nil
	}

	line, err := bufio.NewReader(r).ReadString('\n')
	if err != nil && !errors.Is(err, io.EOF) {
		return "", err
	}
	return strings.TrimSpace(line), nil
}

// writer returns the output stream of the command tree.
func writer(cmd *cli.Command) io.Writer {
	if w := cmd.Root().Writer; w != nil {
		return w
	}
	return os.Stdout
}
