package main

import (
	"cmp"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/jsamuelsen/go-cleanarch-kit/internal/bootstrap"
	"github.com/jsamuelsen/go-cleanarch-kit/internal/platform/config"
)

// cli carries the state shared by every subcommand.
type cli struct {
	profile string
	driver  string
	dsn     string

	out    io.Writer
	errOut io.Writer

	cfg    *config.Config
	logger *slog.Logger
}

func newRootCmd(out, errOut io.Writer) *cobra.Command {
	c := &cli{out: out, errOut: errOut}

	root := &cobra.Command{
		Use:   "kitctl",
		Short: "Manage the users store",
		Long: `kitctl runs schema migrations and user commands against the configured database.

Configuration is read the same way the service reads it: defaults, then
configs/base.yaml, then configs/{profile}.yaml, then APP_ environment variables.
Logs go to stderr; command results are printed to stdout as JSON.`,
		SilenceUsage:      true,
		PersistentPreRunE: c.load,
	}

	root.SetOut(out)
	root.SetErr(errOut)

	flags := root.PersistentFlags()
	flags.StringVarP(&c.profile, "profile", "p", cmp.Or(os.Getenv("APP_ENVIRONMENT"), "local"), "configuration profile")
	flags.StringVar(&c.driver, "driver", "", "override database.driver (sqlite, postgres, pgx, mysql)")
	flags.StringVar(&c.dsn, "dsn", "", "override database.dsn")

	root.AddCommand(newMigrateCmd(c), newUsersCmd(c), newTokenCmd(c))

	return root
}

func (c *cli) load(*cobra.Command, []string) error {
	cfg, err := config.Load(c.profile)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	if c.driver != "" {
		cfg.Database.Driver = c.driver
	}

	if c.dsn != "" {
		cfg.Database.DSN = c.dsn
	}

	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}

	c.cfg = cfg
	c.logger = bootstrap.NewLogger(cfg, c.errOut)

	return nil
}

// withApp wires the application for one command and closes it afterwards.
func (c *cli) withApp(ctx context.Context, fn func(*bootstrap.App) error) (err error) {
	a, err := bootstrap.New(ctx, c.cfg, c.logger)
	if err != nil {
		return err
	}

	defer func() {
		err = errors.Join(err, a.Close())
	}()

	return fn(a)
}

func (c *cli) printJSON(v any) error {
	enc := json.NewEncoder(c.out)
	enc.SetIndent("", "  ")

	return enc.Encode(v)
}
