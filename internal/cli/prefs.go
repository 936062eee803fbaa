package cli

import (
	"bufio"
	"fmt"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/dukerupert/notifly/internal/preference"
)

func newPrefsCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "prefs",
		Short: "Show and change notification preferences",
	}
	cmd.AddCommand(newPrefsShowCmd(a))
	cmd.AddCommand(newPrefsSetCmd(a))
	cmd.AddCommand(newPrefsContactCmd(a))
	cmd.AddCommand(newPrefsVerifyCmd(a))
	cmd.AddCommand(newPrefsResetCmd(a))
	return cmd
}

// engine builds a preference engine whose codes are delivered by the server.
func (a *app) engine(cmd *cobra.Command) (*preference.Engine, error) {
	c, err := a.client()
	if err != nil {
		return nil, err
	}
	return preference.NewEngine(c, c, a.session(), a.logger(cmd)), nil
}

func parseChannel(s string) (preference.Channel, error) {
	ch := preference.Channel(strings.ToLower(s))
	if !ch.Valid() {
		return "", fmt.Errorf("unknown channel %q (want email, phone or push)", s)
	}
	return ch, nil
}

func parseSwitch(s string) (bool, error) {
	switch strings.ToLower(s) {
	case "on", "true", "yes", "1":
		return true, nil
	case "off", "false", "no", "0":
		return false, nil
	}
	return false, fmt.Errorf("invalid value %q (want on or off)", s)
}

func writePrefs(cmd *cobra.Command, prefs preference.Preferences, asJSON bool) error {
	if asJSON {
		return printJSON(cmd.OutOrStdout(), prefs)
	}
	tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "CHANNEL\tCONTACT\tVERIFIED\tENABLED\tCATEGORIES")
	for _, ch := range preference.Channels {
		cp := prefs.Get(ch)
		var on []string
		for _, c := range preference.Categories {
			if cp.Categories[c] {
				on = append(on, string(c))
			}
		}
		cats := strings.Join(on, ",")
		if cats == "" {
			cats = "-"
		}
		contact := cp.Contact
		if contact == "" {
			contact = "-"
		}
		fmt.Fprintf(tw, "%s\t%s\t%t\t%t\t%s\n", ch, contact, cp.Verified, cp.Enabled, cats)
	}
	return tw.Flush()
}

func newPrefsShowCmd(a *app) *cobra.Command {
	var asJSON bool
	cmd := &cobra.Command{
		Use:   "show",
		Short: "Show preferences for every channel",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			eng, err := a.engine(cmd)
			if err != nil {
				return err
			}
			prefs, err := eng.Load(cmd.Context())
			if err != nil {
				return err
			}
			return writePrefs(cmd, prefs, asJSON)
		},
	}
	cmd.Flags().BoolVar(&asJSON, "json", false, "Print preferences as JSON")
	return cmd
}

func newPrefsSetCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "set <channel> <enabled|category> <on|off>",
		Short: "Turn a channel or one of its categories on or off",
		Long:  "Turn a channel's master switch (field \"enabled\") or a category on or off. Unverified channels cannot be turned on.",
		Args:  cobra.ExactArgs(3),
		RunE: func(cmd *cobra.Command, args []string) error {
			ch, err := parseChannel(args[0])
			if err != nil {
				return err
			}
			value, err := parseSwitch(args[2])
			if err != nil {
				return err
			}
			eng, err := a.engine(cmd)
			if err != nil {
				return err
			}
			prefs, err := eng.SetChannelValue(cmd.Context(), ch, args[1], value)
			if err != nil {
				return err
			}
			return writePrefs(cmd, prefs, false)
		},
	}
}

func newPrefsContactCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "contact <channel> <value>",
		Short: "Change the address a channel delivers to",
		Long:  "Change the contact value of a channel. A new value must be verified again before the channel can be turned on.",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			ch, err := parseChannel(args[0])
			if err != nil {
				return err
			}
			eng, err := a.engine(cmd)
			if err != nil {
				return err
			}
			prefs, err := eng.SetContact(cmd.Context(), ch, strings.TrimSpace(args[1]))
			if err != nil {
				return err
			}
			return writePrefs(cmd, prefs, false)
		},
	}
}

func newPrefsVerifyCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "verify <channel>",
		Short: "Verify a channel's contact with a one-time code",
		Long:  "Send a one-time code to the channel's contact and read it back from standard input.",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ch, err := parseChannel(args[0])
			if err != nil {
				return err
			}
			eng, err := a.engine(cmd)
			if err != nil {
				return err
			}

			c, err := eng.BeginVerification(cmd.Context(), ch)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Code sent to %s. Enter it: ", c.Contact)

			line, err := bufio.NewReader(cmd.InOrStdin()).ReadString('\n')
			if err != nil && line == "" {
				eng.CancelVerification(ch)
				return fmt.Errorf("read code: %w", err)
			}
			prefs, err := eng.CompleteVerification(cmd.Context(), ch, strings.TrimSpace(line))
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout())
			return writePrefs(cmd, prefs, false)
		},
	}
}

func newPrefsResetCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "reset <channel>",
		Short: "Restore a channel to its unverified default",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ch, err := parseChannel(args[0])
			if err != nil {
				return err
			}
			eng, err := a.engine(cmd)
			if err != nil {
				return err
			}
			prefs, err := eng.ResetChannel(cmd.Context(), ch)
			if err != nil {
				return err
			}
			return writePrefs(cmd, prefs, false)
		},
	}
}
