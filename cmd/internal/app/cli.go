package app

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/Jerit-Baiju/caelium-admin/cmd/internal/livelogs"
)

// PasswordEnv supplies the login password non-interactively.
const PasswordEnv = "CAELIUM_PASSWORD"

// builder constructs the App for one command invocation.
type builder func(ctx context.Context, verbose bool) (*App, error)

func defaultBuilder(ctx context.Context, verbose bool) (*App, error) {
	cfg, err := LoadConfig()
	if err != nil {
		return nil, err
	}
	if err := ValidateSecurityConfig(cfg); err != nil {
		return nil, err
	}
	if verbose {
		cfg.LogLevel = "debug"
	}
	return New(ctx, cfg, NewLogger(cfg.LogLevel, cfg.LogFormat, cfg.LogColor))
}

type cli struct {
	build   builder
	verbose bool
	app     *App
}

// NewRootCmd returns the `caelium` command tree.
func NewRootCmd() *cobra.Command {
	return newRootCmd(defaultBuilder)
}

func newRootCmd(build builder) *cobra.Command {
	c := &cli{build: build}

	root := &cobra.Command{
		Use:           "caelium",
		Short:         "Caelium admin session client",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().BoolVarP(&c.verbose, "verbose", "v", false, "debug logging")

	root.AddCommand(
		c.loginCmd(),
		c.logoutCmd(),
		c.whoamiCmd(),
		c.getCmd(),
		c.logsCmd(),
		c.runCmd(),
		versionCmd(),
	)
	return root
}

// withApp builds the App, adopts any stored session, runs fn and closes
// the App whatever fn returns.
func (c *cli) withApp(fn func(*cobra.Command, []string) error) func(*cobra.Command, []string) error {
	return func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		a, err := c.build(ctx, c.verbose)
		if err != nil {
			return err
		}
		c.app = a
		defer func() {
			a.Close()
			c.app = nil
		}()

		if err := a.Restore(ctx); err != nil {
			return fmt.Errorf("restore session: %w", err)
		}
		return fn(cmd, args)
	}
}

func (c *cli) loginCmd() *cobra.Command {
	var password string
	cmd := &cobra.Command{
		Use:   "login <email>",
		Short: "Exchange credentials for a session",
		Args:  cobra.ExactArgs(1),
		RunE: c.withApp(func(cmd *cobra.Command, args []string) error {
			email := strings.TrimSpace(args[0])
			if password == "" {
				password = os.Getenv(PasswordEnv)
			}
			if password == "" {
				p, err := readLine(cmd.InOrStdin(), cmd.ErrOrStderr(), "password: ")
				if err != nil {
					return err
				}
				password = p
			}

			claims, err := c.app.Login(cmd.Context(), email, password)
			if err != nil {
				return err
			}
			_, _ = fmt.Fprintf(cmd.OutOrStdout(), "logged in as %s (user %s, expires %s)\n",
				email, claims.UserID, claims.ExpiresAt.Local().Format(time.RFC3339))
			return nil
		}),
	}
	cmd.Flags().StringVarP(&password, "password", "p", "", "password (default: $"+PasswordEnv+" or prompt)")
	return cmd
}

func (c *cli) logoutCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "logout",
		Short: "End the session and clear stored credentials",
		Args:  cobra.NoArgs,
		RunE: c.withApp(func(cmd *cobra.Command, _ []string) error {
			c.app.Logout(cmd.Context())
			_, _ = fmt.Fprintln(cmd.OutOrStdout(), "logged out")
			return nil
		}),
	}
}

func (c *cli) whoamiCmd() *cobra.Command {
	var asJSON bool
	cmd := &cobra.Command{
		Use:   "whoami",
		Short: "Show the logged-in account",
		Args:  cobra.NoArgs,
		RunE: c.withApp(func(cmd *cobra.Command, _ []string) error {
			acct, err := c.app.Whoami(cmd.Context())
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			if asJSON {
				enc := json.NewEncoder(out)
				enc.SetIndent("", "  ")
				return enc.Encode(acct)
			}
			_, _ = fmt.Fprintf(out, "%s <%s> id=%d staff=%t superuser=%t\n",
				acct.Username, acct.Email, acct.ID, acct.IsStaff, acct.IsSuperuser)
			return nil
		}),
	}
	cmd.Flags().BoolVar(&asJSON, "json", false, "print the account as JSON")
	return cmd
}

func (c *cli) getCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "get <path>",
		Short: "Authenticated GET against the API host",
		Args:  cobra.ExactArgs(1),
		RunE: c.withApp(func(cmd *cobra.Command, args []string) error {
			return c.app.Get(cmd.Context(), args[0], cmd.OutOrStdout())
		}),
	}
}

func (c *cli) logsCmd() *cobra.Command {
	var (
		capacity int
		utc      bool
	)
	cmd := &cobra.Command{
		Use:   "logs",
		Short: "Stream live backend logs over the realtime channel",
		Args:  cobra.NoArgs,
		RunE: c.withApp(func(cmd *cobra.Command, _ []string) error {
			loc := time.Local
			if utc {
				loc = time.UTC
			}
			return c.app.Logs(cmd.Context(), cmd.OutOrStdout(), LogsOptions{Capacity: capacity, Location: loc})
		}),
	}
	cmd.Flags().IntVar(&capacity, "buffer", livelogs.DefaultCapacity, "entries kept in memory")
	cmd.Flags().BoolVar(&utc, "utc", false, "print timestamps in UTC")
	return cmd
}

func (c *cli) runCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "run",
		Short: "Keep the session and channel alive and serve /healthz, /readyz and /metrics",
		Args:  cobra.NoArgs,
		RunE: c.withApp(func(cmd *cobra.Command, _ []string) error {
			return c.app.Serve(cmd.Context())
		}),
	}
}

func versionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the version",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, _ []string) {
			_, _ = fmt.Fprintf(cmd.OutOrStdout(), "caelium %s\n", Version)
		},
	}
}

func readLine(in io.Reader, prompt io.Writer, label string) (string, error) {
	_, _ = fmt.Fprint(prompt, label)
	line, err := bufio.NewReader(in).ReadString('\n')
	if err != nil && !errors.Is(err, io.EOF) {
		return "", err
	}
	line = strings.TrimRight(line, "\r\n")
	if line == "" {
		return "", errors.New("password required")
	}
	return line, nil
}
