package cli

import (
	"context"
	"fmt"
	"io"
	"os"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/helpinghand/helpinghand/internal/config"
	"github.com/helpinghand/helpinghand/internal/db"
	"github.com/helpinghand/helpinghand/internal/manager"
	"github.com/helpinghand/helpinghand/internal/webserver"
)

const defaultServer = "http://localhost:5000"

func envOr(key, fallback string) string {
	if v := os.Getenv(config.EnvPrefix + "_" + key); v != "" {
		return v
	}
	return fallback
}

func requestsCommand() *cobra.Command {
	var serverURL, token string
	cmd := &cobra.Command{
		Use:   "requests",
		Short: "Work with help requests on a running server",
	}
	cmd.PersistentFlags().StringVar(&serverURL, "server", "", "Server base URL (default $HELPINGHAND_SERVER or "+defaultServer+")")
	cmd.PersistentFlags().StringVar(&token, "token", "", "Access token (default $HELPINGHAND_TOKEN)")

	client := func(ctx context.Context) (*webserver.Client, error) {
		if serverURL == "" {
			serverURL = envOr("SERVER", defaultServer)
		}
		if token == "" {
			token = envOr("TOKEN", "")
		}
		if token == "" {
			return nil, fmt.Errorf("--token or %s_TOKEN is required", config.EnvPrefix)
		}
		c := webserver.NewClient(serverURL, token)
		if err := c.Ping(ctx); err != nil {
			return nil, err
		}
		return c, nil
	}

	list := func(use, short string, fetch func(*webserver.Client, context.Context) ([]manager.RequestView, error)) *cobra.Command {
		return &cobra.Command{
			Use:   use,
			Short: short,
			Args:  cobra.NoArgs,
			RunE: func(cmd *cobra.Command, args []string) error {
				c, err := client(cmd.Context())
				if err != nil {
					return err
				}
				reqs, err := fetch(c, cmd.Context())
				if err != nil {
					return err
				}
				printRequests(cmd.OutOrStdout(), reqs)
				return nil
			},
		}
	}

	action := func(name, short string) *cobra.Command {
		return &cobra.Command{
			Use:   name + " <id>",
			Short: short,
			Args:  cobra.ExactArgs(1),
			RunE: func(cmd *cobra.Command, args []string) error {
				c, err := client(cmd.Context())
				if err != nil {
					return err
				}
				msg, req, err := c.Transition(cmd.Context(), args[0], name)
				if err != nil {
					return err
				}
				fmt.Fprintln(cmd.OutOrStdout(), msg)
				if req != nil {
					printRequests(cmd.OutOrStdout(), []manager.RequestView{*req})
				}
				return nil
			},
		}
	}

	var in manager.CreateInput
	var category string
	create := &cobra.Command{
		Use:   "create",
		Short: "Ask for help",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := client(cmd.Context())
			if err != nil {
				return err
			}
			in.Category = db.Category(category)
			req, err := c.Create(cmd.Context(), in)
			if err != nil {
				return err
			}
			printRequests(cmd.OutOrStdout(), []manager.RequestView{*req})
			return nil
		},
	}
	create.Flags().StringVar(&in.Title, "title", "", "Short summary")
	create.Flags().StringVar(&in.Description, "description", "", "What you need")
	create.Flags().StringVar(&category, "category", "", "Groceries, Transport, Emotional Support, Errands or Other")

	var want string
	var every, timeout time.Duration
	wait := &cobra.Command{
		Use:   "wait <id>",
		Short: "Block until a request reaches a status",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			status := db.Status(want)
			if !status.Valid() {
				return fmt.Errorf("--status: %q is invalid", want)
			}
			ctx, cancel := context.WithTimeout(cmd.Context(), timeout)
			defer cancel()
			c, err := client(ctx)
			if err != nil {
				return err
			}
			req, err := c.WaitForStatus(ctx, args[0], status, every)
			if err != nil {
				return err
			}
			printRequests(cmd.OutOrStdout(), []manager.RequestView{*req})
			return nil
		},
	}
	wait.Flags().StringVar(&want, "status", string(db.StatusAccepted), "Status to wait for")
	wait.Flags().DurationVar(&every, "interval", 2*time.Second, "Polling interval")
	wait.Flags().DurationVar(&timeout, "timeout", 30*time.Minute, "Give up after this long")

	cmd.AddCommand(
		list("pending", "List requests waiting for a volunteer", (*webserver.Client).Pending),
		list("mine", "List your requests or the ones assigned to you", (*webserver.Client).Mine),
		action("accept", "Accept a pending request"),
		action("complete", "Mark an accepted request completed"),
		action("cancel", "Cancel one of your requests"),
		action("unassign", "Give an accepted request back"),
		create,
		wait,
	)
	return cmd
}

func printRequests(w io.Writer, reqs []manager.RequestView) {
	if len(reqs) == 0 {
		fmt.Fprintln(w, "no requests")
		return
	}
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tSTATUS\tCATEGORY\tREQUESTER\tVOLUNTEER\tTITLE")
	for _, r := range reqs {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\t%s\n", r.ID, r.Status, r.Category, name(r.Requester), name(r.AssignedVolunteer), r.Title)
	}
	_ = tw.Flush()
}

func name(u *manager.UserSummary) string {
	if u == nil {
		return "-"
	}
	return u.Name
}
