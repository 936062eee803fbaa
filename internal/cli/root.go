// Package cli implements notiflyctl, the operator and developer command line
// for a notifly server.
package cli

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/dukerupert/notifly/internal/apiclient"
	"github.com/dukerupert/notifly/internal/auth"
	"github.com/dukerupert/notifly/internal/logging"
)

const defaultServer = "http://localhost:8080"

// app carries settings shared by all commands. Flags win over NOTIFLY_*
// environment variables, which win over defaults.
type app struct {
	v *viper.Viper
}

func (a *app) bind(cmd *cobra.Command, key, flag string) {
	_ = a.v.BindPFlag(key, cmd.Flags().Lookup(flag))
	_ = a.v.BindEnv(key)
}

func (a *app) client() (*apiclient.Client, error) {
	token := a.v.GetString("token")
	if token == "" {
		return nil, errors.New("no token: pass --token or set NOTIFLY_TOKEN")
	}
	return apiclient.New(a.v.GetString("server"), a.session()), nil
}

func (a *app) session() auth.Session {
	return auth.StaticSession{BearerToken: a.v.GetString("token")}
}

func (a *app) logger(cmd *cobra.Command) *slog.Logger {
	return logging.New(cmd.ErrOrStderr(), a.v.GetString("log_level"), "text")
}

func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func newRootCmd() *cobra.Command {
	a := &app{v: viper.New()}
	a.v.SetEnvPrefix("NOTIFLY")

	cmd := &cobra.Command{
		Use:           "notiflyctl",
		Short:         "Manage a notifly server",
		Long:          "notiflyctl mints tokens and VAPID keys, emits events, and reads or changes a user's inbox and notification preferences.",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	cmd.PersistentFlags().String("server", defaultServer, "Server base URL (env NOTIFLY_SERVER)")
	cmd.PersistentFlags().String("token", "", "Bearer token (env NOTIFLY_TOKEN)")
	cmd.PersistentFlags().String("log-level", "warn", "Log level for client diagnostics")
	_ = a.v.BindPFlag("server", cmd.PersistentFlags().Lookup("server"))
	_ = a.v.BindPFlag("token", cmd.PersistentFlags().Lookup("token"))
	_ = a.v.BindPFlag("log_level", cmd.PersistentFlags().Lookup("log-level"))
	_ = a.v.BindEnv("server")
	_ = a.v.BindEnv("token")

	cmd.AddCommand(newVAPIDKeysCmd())
	cmd.AddCommand(newTokenCmd(a))
	cmd.AddCommand(newInboxCmd(a))
	cmd.AddCommand(newPrefsCmd(a))
	cmd.AddCommand(newEmitCmd(a))
	cmd.AddCommand(newPushCmd(a))
	cmd.AddCommand(newWatchCmd(a))
	cmd.AddCommand(newBackupCmd(a))
	return cmd
}

// NewRootCmdForTest returns the root command for testing.
func NewRootCmdForTest() *cobra.Command {
	return newRootCmd()
}

// Execute runs the command line until it finishes or the process is interrupted.
func Execute() error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	return newRootCmd().ExecuteContext(ctx)
}
