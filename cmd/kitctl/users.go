package main

import (
	"encoding/json"
	"fmt"
	"io"
	"maps"
	"os"
	"strconv"
	"time"

	"github.com/spf13/cobra"

	"github.com/jsamuelsen/go-cleanarch-kit/internal/app"
	"github.com/jsamuelsen/go-cleanarch-kit/internal/bootstrap"
	"github.com/jsamuelsen/go-cleanarch-kit/internal/domain"
	"github.com/jsamuelsen/go-cleanarch-kit/internal/ports"
)

const defaultPageSize = 20

type userView struct {
	ID        int64          `json:"id"`
	Name      string         `json:"name"`
	Email     string         `json:"email,omitempty"`
	CreatedAt time.Time      `json:"createdAt"`
	Extra     map[string]any `json:"extra,omitempty"`
}

func viewOf(u *domain.User) userView {
	id, _ := u.Identity()

	return userView{ID: id, Name: u.Name, Email: u.Email, CreatedAt: u.CreatedAt, Extra: u.Extra()}
}

func viewsOf(users []*domain.User) []userView {
	out := make([]userView, 0, len(users))
	for _, u := range users {
		out = append(out, viewOf(u))
	}

	return out
}

func newUsersCmd(c *cli) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "users",
		Short: "Create, inspect and import users",
	}

	cmd.AddCommand(
		newUsersAddCmd(c),
		newUsersGetCmd(c),
		newUsersListCmd(c),
		newUsersCountCmd(c),
		newUsersUpdateCmd(c),
		newUsersDeleteCmd(c),
		newUsersImportCmd(c),
	)

	return cmd
}

func newUsersAddCmd(c *cli) *cobra.Command {
	var (
		params app.CreateUserParams
		extra  map[string]string
	)

	cmd := &cobra.Command{
		Use:   "add",
		Short: "Create a user",
		Example: `  kitctl users add --name Ada
  kitctl users add --name "Grace Hopper" --email grace@example.com --extra team=navy`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			params.Extra = anyMap(extra)

			return c.withApp(cmd.Context(), func(a *bootstrap.App) error {
				u, err := app.Dispatch[app.CreateUserParams, *domain.User](cmd.Context(), a.Dispatcher, app.UseCaseCreateUser, params)
				if err != nil {
					return err
				}

				return c.printJSON(viewOf(u))
			})
		},
	}

	cmd.Flags().StringVar(&params.Name, "name", "", "user name")
	cmd.Flags().StringVar(&params.Email, "email", "", "user email")
	cmd.Flags().StringToStringVar(&extra, "extra", nil, "additional properties as key=value")
	_ = cmd.MarkFlagRequired("name")

	return cmd
}

func newUsersGetCmd(c *cli) *cobra.Command {
	return &cobra.Command{
		Use:   "get ID",
		Short: "Print one user",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseID(args[0])
			if err != nil {
				return err
			}

			return c.withApp(cmd.Context(), func(a *bootstrap.App) error {
				u, err := app.Dispatch[app.GetUserParams, *domain.User](cmd.Context(), a.Dispatcher, app.UseCaseGetUser, app.GetUserParams{ID: id})
				if err != nil {
					return err
				}

				return c.printJSON(viewOf(u))
			})
		},
	}
}

func newUsersListCmd(c *cli) *cobra.Command {
	var (
		name, namePrefix, email, sort string
		page, pageSize                int
	)

	cmd := &cobra.Command{
		Use:     "list",
		Short:   "List users",
		Example: `  kitctl users list --name-prefix A --sort name,-created_at --page 2 --page-size 10`,
		Args:    cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			var q ports.Query
			if name != "" {
				q = q.And(ports.Eq("name", name))
			}

			if namePrefix != "" {
				q = q.And(ports.Prefix("name", namePrefix))
			}

			if email != "" {
				q = q.And(ports.Eq("email", email))
			}

			q = q.OrderBy(ports.ParseSort(sort)...).Window(ports.PageNumber(page, pageSize))

			return c.withApp(cmd.Context(), func(a *bootstrap.App) error {
				users, err := app.Dispatch[app.ListUsersParams, []*domain.User](cmd.Context(), a.Dispatcher, app.UseCaseListUsers, app.ListUsersParams{Query: q})
				if err != nil {
					return err
				}

				return c.printJSON(viewsOf(users))
			})
		},
	}

	cmd.Flags().StringVar(&name, "name", "", "exact name")
	cmd.Flags().StringVar(&namePrefix, "name-prefix", "", "name prefix")
	cmd.Flags().StringVar(&email, "email", "", "exact email")
	cmd.Flags().StringVar(&sort, "sort", "", "comma separated fields, prefix with - for descending")
	cmd.Flags().IntVar(&page, "page", 1, "1-based page number")
	cmd.Flags().IntVar(&pageSize, "page-size", defaultPageSize, "page size")

	return cmd
}

func newUsersCountCmd(c *cli) *cobra.Command {
	return &cobra.Command{
		Use:   "count",
		Short: "Print the number of stored users",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return c.withApp(cmd.Context(), func(a *bootstrap.App) error {
				n, err := app.Dispatch[app.CountUsersParams, int64](cmd.Context(), a.Dispatcher, app.UseCaseCountUsers, app.CountUsersParams{})
				if err != nil {
					return err
				}

				return c.printJSON(map[string]int64{"count": n})
			})
		},
	}
}

func newUsersUpdateCmd(c *cli) *cobra.Command {
	var (
		name, email string
		extra       map[string]string
	)

	cmd := &cobra.Command{
		Use:   "update ID",
		Short: "Change a user's name, email or additional properties",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseID(args[0])
			if err != nil {
				return err
			}

			params := app.UpdateUserParams{ID: id, Extra: anyMap(extra)}
			if cmd.Flags().Changed("name") {
				params.Name = &name
			}

			if cmd.Flags().Changed("email") {
				params.Email = &email
			}

			return c.withApp(cmd.Context(), func(a *bootstrap.App) error {
				u, err := app.Dispatch[app.UpdateUserParams, *domain.User](cmd.Context(), a.Dispatcher, app.UseCaseUpdateUser, params)
				if err != nil {
					return err
				}

				return c.printJSON(viewOf(u))
			})
		},
	}

	cmd.Flags().StringVar(&name, "name", "", "new name")
	cmd.Flags().StringVar(&email, "email", "", "new email")
	cmd.Flags().StringToStringVar(&extra, "extra", nil, "additional properties to merge as key=value")

	return cmd
}

func newUsersDeleteCmd(c *cli) *cobra.Command {
	return &cobra.Command{
		Use:   "delete ID",
		Short: "Delete a user and print it",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseID(args[0])
			if err != nil {
				return err
			}

			return c.withApp(cmd.Context(), func(a *bootstrap.App) error {
				u, err := app.Dispatch[app.DeleteUserParams, *domain.User](cmd.Context(), a.Dispatcher, app.UseCaseDeleteUser, app.DeleteUserParams{ID: id})
				if err != nil {
					return err
				}

				return c.printJSON(viewOf(u))
			})
		},
	}
}

func newUsersImportCmd(c *cli) *cobra.Command {
	return &cobra.Command{
		Use:   "import FILE",
		Short: "Store a JSON array of users atomically",
		Long: `Read a JSON array of user objects from FILE, or stdin when FILE is "-".
Keys other than name and email become additional properties. Either every
user is stored or none is.`,
		Example: `  echo '[{"name":"Ada"},{"name":"Grace","team":"navy"}]' | kitctl users import -`,
		Args:    cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			params, err := readImport(cmd.InOrStdin(), args[0])
			if err != nil {
				return err
			}

			return c.withApp(cmd.Context(), func(a *bootstrap.App) error {
				res, err := app.Dispatch[app.ImportUsersParams, app.ImportResult](cmd.Context(), a.Dispatcher, app.UseCaseImportUsers, params)
				if err != nil {
					return err
				}

				return c.printJSON(viewsOf(res.Users))
			})
		},
	}
}

func readImport(stdin io.Reader, path string) (app.ImportUsersParams, error) {
	r := stdin
	if path != "-" {
		f, err := os.Open(path)
		if err != nil {
			return app.ImportUsersParams{}, fmt.Errorf("opening import file: %w", err)
		}
		defer f.Close()

		r = f
	}

	var records []map[string]any
	if err := json.NewDecoder(r).Decode(&records); err != nil {
		return app.ImportUsersParams{}, fmt.Errorf("decoding import file: %w", err)
	}

	params := app.ImportUsersParams{Users: make([]app.CreateUserParams, 0, len(records))}

	for i, rec := range records {
		name, ok := rec["name"].(string)
		if !ok {
			return app.ImportUsersParams{}, domain.NewValidationError(fmt.Sprintf("users[%d].name", i), "must be a string")
		}

		email, ok := rec["email"].(string)
		if _, present := rec["email"]; present && !ok {
			return app.ImportUsersParams{}, domain.NewValidationError(fmt.Sprintf("users[%d].email", i), "must be a string")
		}

		extra := maps.Clone(rec)
		delete(extra, "name")
		delete(extra, "email")

		if len(extra) == 0 {
			extra = nil
		}

		params.Users = append(params.Users, app.CreateUserParams{Name: name, Email: email, Extra: extra})
	}

	return params, nil
}

func parseID(s string) (int64, error) {
	id, err := strconv.ParseInt(s, 10, 64)
	if err != nil || id <= 0 {
		return 0, domain.NewValidationErrorWithValue("id", "must be a positive integer", s)
	}

	return id, nil
}

func anyMap(m map[string]string) map[string]any {
	if len(m) == 0 {
		return nil
	}

	out := make(map[string]any, len(m))
	for k, v := range m {
		out[k] = v
	}

	return out
}
