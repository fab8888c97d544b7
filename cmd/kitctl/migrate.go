package main

import (
	"errors"

	"github.com/spf13/cobra"

	"github.com/jsamuelsen/go-cleanarch-kit/internal/adapters/persistence/sqlstore"
	"github.com/jsamuelsen/go-cleanarch-kit/internal/bootstrap"
)

type migrationStatus struct {
	Version uint `json:"version"`
	Dirty   bool `json:"dirty"`
}

func newMigrateCmd(c *cli) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Apply or revert schema migrations",
	}

	var steps int

	down := &cobra.Command{
		Use:   "down",
		Short: "Revert migrations",
		Long:  "Revert every applied migration, or only the last --steps of them.",
		Args:  cobra.NoArgs,
		RunE: func(*cobra.Command, []string) error {
			return c.migrate(func(m *sqlstore.Migrator) error {
				if steps > 0 {
					return m.Steps(-steps)
				}

				return m.Down()
			})
		},
	}
	down.Flags().IntVar(&steps, "steps", 0, "number of migrations to revert (0 reverts all)")

	cmd.AddCommand(
		&cobra.Command{
			Use:   "up",
			Short: "Apply pending migrations",
			Args:  cobra.NoArgs,
			RunE: func(*cobra.Command, []string) error {
				return c.migrate((*sqlstore.Migrator).Up)
			},
		},
		down,
		&cobra.Command{
			Use:   "version",
			Short: "Print the applied migration version",
			Args:  cobra.NoArgs,
			RunE: func(*cobra.Command, []string) error {
				return c.migrate(func(*sqlstore.Migrator) error { return nil })
			},
		},
	)

	return cmd
}

// migrate runs fn and prints the resulting version.
func (c *cli) migrate(fn func(*sqlstore.Migrator) error) (err error) {
	m, err := bootstrap.NewMigrator(c.cfg, c.logger)
	if err != nil {
		return err
	}

	defer func() {
		err = errors.Join(err, m.Close())
	}()

	if err := fn(m); err != nil {
		return err
	}

	version, dirty, err := m.Version()
	if err != nil {
		return err
	}

	return c.printJSON(migrationStatus{Version: version, Dirty: dirty})
}
