package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/dukerupert/notifly/internal/apiclient"
)

func newEmitCmd(a *app) *cobra.Command {
	var req apiclient.EmitRequest

	cmd := &cobra.Command{
		Use:   "emit",
		Short: "Emit a notification for a user (admin token required)",
		Long:  "Create a notification record for a user and deliver it to every channel the user has verified and enabled for its category. A repeated --ref is reported as a duplicate and not delivered again.",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if req.UserID <= 0 {
				return fmt.Errorf("--user-id must be positive")
			}
			c, err := a.client()
			if err != nil {
				return err
			}
			res, err := c.Emit(cmd.Context(), req)
			if err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), res)
		},
	}

	cmd.Flags().Int64Var(&req.UserID, "user-id", 0, "Recipient user")
	cmd.Flags().StringVar(&req.Kind, "kind", "system", "Notification kind (order, promo, recipe, security, system, tracking, popup)")
	cmd.Flags().StringVar(&req.Category, "category", "", "Preference category; derived from kind when empty")
	cmd.Flags().StringVar(&req.Title, "title", "", "Title")
	cmd.Flags().StringVar(&req.Text, "text", "", "Body text")
	cmd.Flags().StringVar(&req.Details, "details", "", "Longer details shown in the inbox")
	cmd.Flags().StringVar(&req.URL, "url", "", "Page opened when the notification is clicked")
	cmd.Flags().StringVar(&req.ReferenceID, "ref", "", "Reference id used to drop duplicate events")
	_ = cmd.MarkFlagRequired("title")
	return cmd
}

func newPushCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "push",
		Short: "Web push utilities",
	}
	cmd.AddCommand(&cobra.Command{
		Use:   "test",
		Short: "Send a test push to every device of the token's user",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := a.client()
			if err != nil {
				return err
			}
			sent, err := c.SendTestPush(cmd.Context())
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "sent to %d device(s)\n", sent)
			return nil
		},
	})
	return cmd
}
