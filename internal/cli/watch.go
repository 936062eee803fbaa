package cli

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/spf13/cobra"

	"github.com/dukerupert/notifly/internal/events"
	"github.com/dukerupert/notifly/internal/inbox"
)

// websocketURL turns the server base URL into the /ws endpoint.
func websocketURL(server string) (string, error) {
	u, err := url.Parse(server)
	if err != nil {
		return "", fmt.Errorf("parse server url: %w", err)
	}
	switch u.Scheme {
	case "http":
		u.Scheme = "ws"
	case "https":
		u.Scheme = "wss"
	default:
		return "", fmt.Errorf("unsupported server scheme %q", u.Scheme)
	}
	u.Path = strings.TrimRight(u.Path, "/") + "/ws"
	return u.String(), nil
}

func newWatchCmd(a *app) *cobra.Command {
	var interval time.Duration

	cmd := &cobra.Command{
		Use:   "watch",
		Short: "Print the unread count whenever it changes",
		Long:  "Keep the inbox in sync over the websocket and a periodic count poll, printing the unread count each time it changes. Stops on interrupt.",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := a.client()
			if err != nil {
				return err
			}
			wsURL, err := websocketURL(a.v.GetString("server"))
			if err != nil {
				return err
			}
			logger := a.logger(cmd)
			ctx := cmd.Context()

			st := inbox.NewStore(c, logger)
			var (
				mu   sync.Mutex
				last = -1
			)
			st.OnChange(func(s inbox.Snapshot) {
				mu.Lock()
				defer mu.Unlock()
				if s.Loaded && s.TotalUnread != last {
					last = s.TotalUnread
					fmt.Fprintf(cmd.OutOrStdout(), "%s unread=%d\n", time.Now().Format(time.TimeOnly), last)
				}
			})

			bus := events.NewBus()
			syncer := inbox.NewSync(st, bus, interval, logger)
			if _, err := syncer.OpenPanel(ctx); err != nil {
				return err
			}
			syncer.Start(ctx)
			defer syncer.Stop()

			err = events.Listen(ctx, wsURL, a.v.GetString("token"), bus, logger)
			if errors.Is(err, context.Canceled) {
				return nil
			}
			return err
		},
	}

	cmd.Flags().DurationVar(&interval, "interval", inbox.DefaultCountInterval, "Unread count poll interval")
	return cmd
}
