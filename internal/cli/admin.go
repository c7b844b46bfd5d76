package cli

import (
	"fmt"
	"os"
	"strings"

	"github.com/mark3labs/mcp-go/server"
	"github.com/spf13/cobra"

	"github.com/helpinghand/helpinghand/internal/auth"
	"github.com/helpinghand/helpinghand/internal/config"
	"github.com/helpinghand/helpinghand/internal/db"
	"github.com/helpinghand/helpinghand/internal/handler"
	"github.com/helpinghand/helpinghand/internal/manager"
	"github.com/helpinghand/helpinghand/internal/moderation"
)

// operator acts for commands run by whoever holds shell access to the
// database.
var operator = auth.Principal{ID: "cli", Role: db.RoleAdmin, Name: "operator"}

func (a *app) tokenCommand() *cobra.Command {
	var id, role, name string
	cmd := &cobra.Command{
		Use:   "token",
		Short: "Mint an access token signed with the configured secret",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, _, err := a.load()
			if err != nil {
				return err
			}
			r := db.Role(strings.TrimSpace(role))
			if !r.Valid() {
				return fmt.Errorf("--role: %q is invalid (valid values: help_seeker, volunteer, admin)", role)
			}
			if strings.TrimSpace(id) == "" {
				return fmt.Errorf("--id is required")
			}
			issuer := auth.NewIssuer(cfg.Auth.Secret, cfg.Auth.TokenTTL, cfg.Auth.Issuer)
			tok, err := issuer.Issue(auth.Principal{ID: id, Role: r, Name: name})
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), tok)
			return nil
		},
	}
	cmd.Flags().StringVar(&id, "id", "", "User id")
	cmd.Flags().StringVar(&role, "role", "", "help_seeker, volunteer or admin")
	cmd.Flags().StringVar(&name, "name", "", "Display name")
	return cmd
}

func (a *app) mcpCommand() *cobra.Command {
	var token string
	cmd := &cobra.Command{
		Use:   "mcp",
		Short: "Serve the request lifecycle as MCP tools over stdio",
		RunE: func(cmd *cobra.Command, args []string) error {
			if token == "" {
				token = os.Getenv(config.EnvPrefix + "_TOKEN")
			}
			if token == "" {
				return fmt.Errorf("--token or %s_TOKEN is required", config.EnvPrefix)
			}
			cfg, log, err := a.load()
			if err != nil {
				return err
			}
			issuer := auth.NewIssuer(cfg.Auth.Secret, cfg.Auth.TokenTTL, cfg.Auth.Issuer)
			if _, err := issuer.Verify(token); err != nil {
				return fmt.Errorf("token rejected: %w", err)
			}
			database, err := openDB(cmd.Context(), cfg, log)
			if err != nil {
				return err
			}
			defer func() { _ = db.Close(database) }()

			tools := handler.New(manager.New(database, manager.WithLogger(log)), issuer, token, log)
			return server.ServeStdio(handler.NewServer(tools, a.version))
		},
	}
	cmd.Flags().StringVar(&token, "token", "", "Access token of the user the tools act for")
	return cmd
}

func (a *app) usersCommand() *cobra.Command {
	users := &cobra.Command{
		Use:   "users",
		Short: "Manage accounts directly in the database",
	}

	var email, role string
	setRole := &cobra.Command{
		Use:   "set-role",
		Short: "Change a user's role, for example to create the first admin",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, log, err := a.load()
			if err != nil {
				return err
			}
			database, err := openDB(cmd.Context(), cfg, log)
			if err != nil {
				return err
			}
			defer func() { _ = db.Close(database) }()

			svc := moderation.New(database, log)
			u, err := svc.UserByEmail(cmd.Context(), email)
			if err != nil {
				return err
			}
			u, err = svc.SetUserRole(cmd.Context(), operator, u.ID, db.Role(strings.TrimSpace(role)))
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s is now %s\n", u.Email, u.Role)
			return nil
		},
	}
	setRole.Flags().StringVar(&email, "email", "", "Account email")
	setRole.Flags().StringVar(&role, "role", "", "help_seeker, volunteer or admin")
	_ = setRole.MarkFlagRequired("email")
	_ = setRole.MarkFlagRequired("role")

	users.AddCommand(setRole)
	return users
}
