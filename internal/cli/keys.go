package cli

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/dukerupert/notifly/internal/auth"
	"github.com/dukerupert/notifly/internal/push"
)

func newVAPIDKeysCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "vapid-keys",
		Short: "Generate a VAPID key pair for web push",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			pub, priv, err := push.GenerateVAPIDKeys()
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "NOTIFLY_VAPID_PUBLIC_KEY=%s\nNOTIFLY_VAPID_PRIVATE_KEY=%s\n", pub, priv)
			return nil
		},
	}
}

func newTokenCmd(a *app) *cobra.Command {
	var (
		userID int64
		admin  bool
		ttl    time.Duration
	)

	cmd := &cobra.Command{
		Use:   "token",
		Short: "Mint a bearer token for a user",
		Long:  "Sign a bearer token with the server's JWT secret. Intended for development and operator scripts.",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			secret := a.v.GetString("jwt_secret")
			if secret == "" {
				return fmt.Errorf("no secret: pass --secret or set NOTIFLY_JWT_SECRET")
			}
			if userID <= 0 {
				return fmt.Errorf("--user-id must be positive")
			}
			role := auth.RoleUser
			if admin {
				role = auth.RoleAdmin
			}
			tok, err := auth.NewIssuer(secret, ttl).Issue(userID, role)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), tok)
			return nil
		},
	}

	cmd.Flags().Int64Var(&userID, "user-id", 0, "User the token is issued to")
	cmd.Flags().BoolVar(&admin, "admin", false, "Issue an admin token")
	cmd.Flags().DurationVar(&ttl, "ttl", 24*time.Hour, "Token lifetime")
	cmd.Flags().String("secret", "", "JWT secret (env NOTIFLY_JWT_SECRET)")
	a.bind(cmd, "jwt_secret", "secret")
	return cmd
}
