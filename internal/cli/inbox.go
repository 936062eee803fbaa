package cli

import (
	"fmt"
	"strconv"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/dukerupert/notifly/internal/inbox"
)

func newInboxCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "inbox",
		Short: "Read and manage the notification inbox",
	}
	cmd.AddCommand(newInboxListCmd(a))
	cmd.AddCommand(newInboxCountCmd(a))
	cmd.AddCommand(newInboxMutationCmd(a, "read <id>", "Mark a notification read", true, func(s *inbox.Store, cmd *cobra.Command, id int64) error {
		return s.MarkRead(cmd.Context(), id)
	}))
	cmd.AddCommand(newInboxMutationCmd(a, "read-all", "Mark every notification read", false, func(s *inbox.Store, cmd *cobra.Command, _ int64) error {
		return s.MarkAllRead(cmd.Context())
	}))
	cmd.AddCommand(newInboxMutationCmd(a, "delete <id>", "Delete a notification", true, func(s *inbox.Store, cmd *cobra.Command, id int64) error {
		return s.Delete(cmd.Context(), id)
	}))
	cmd.AddCommand(newInboxMutationCmd(a, "clear-read", "Delete every read notification", false, func(s *inbox.Store, cmd *cobra.Command, _ int64) error {
		return s.DeleteAllRead(cmd.Context())
	}))
	return cmd
}

func (a *app) inboxStore(cmd *cobra.Command) (*inbox.Store, error) {
	c, err := a.client()
	if err != nil {
		return nil, err
	}
	return inbox.NewStore(c, a.logger(cmd)), nil
}

func newInboxListCmd(a *app) *cobra.Command {
	var (
		page, pageSize int
		asJSON         bool
	)

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List notifications, newest first",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			st, err := a.inboxStore(cmd)
			if err != nil {
				return err
			}
			snap, err := st.FetchList(cmd.Context(), page, pageSize)
			if err != nil {
				return err
			}
			if asJSON {
				return printJSON(cmd.OutOrStdout(), snap)
			}

			tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(tw, "ID\tKIND\tREAD\tCREATED\tTITLE")
			for _, it := range snap.Items {
				fmt.Fprintf(tw, "%d\t%s\t%t\t%s\t%s\n", it.ID, it.Kind, it.Read, it.CreatedAt.Format("2006-01-02 15:04"), it.Title)
			}
			if err := tw.Flush(); err != nil {
				return err
			}
			p := snap.Pagination
			fmt.Fprintf(cmd.OutOrStdout(), "page %d/%d, %d total, %d unread\n", p.Page, p.TotalPages, p.Total, snap.TotalUnread)
			return nil
		},
	}

	cmd.Flags().IntVar(&page, "page", inbox.DefaultPage, "Page number")
	cmd.Flags().IntVar(&pageSize, "page-size", inbox.DefaultPageSize, "Items per page")
	cmd.Flags().BoolVar(&asJSON, "json", false, "Print the page as JSON")
	return cmd
}

func newInboxCountCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "count",
		Short: "Print the unread count",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			st, err := a.inboxStore(cmd)
			if err != nil {
				return err
			}
			n, err := st.RefreshCount(cmd.Context())
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), n)
			return nil
		},
	}
}

func newInboxMutationCmd(a *app, use, short string, needsID bool, run func(*inbox.Store, *cobra.Command, int64) error) *cobra.Command {
	args := cobra.NoArgs
	if needsID {
		args = cobra.ExactArgs(1)
	}
	return &cobra.Command{
		Use:   use,
		Short: short,
		Args:  args,
		RunE: func(cmd *cobra.Command, args []string) error {
			var id int64
			if needsID {
				var err error
				id, err = strconv.ParseInt(args[0], 10, 64)
				if err != nil || id <= 0 {
					return fmt.Errorf("invalid notification id %q", args[0])
				}
			}
			st, err := a.inboxStore(cmd)
			if err != nil {
				return err
			}
			if err := run(st, cmd, id); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), "ok")
			return nil
		},
	}
}
