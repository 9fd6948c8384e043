package main

import (
	"context"
	"fmt"

	"receiptgen/cmd/receiptgen/ui"
	"receiptgen/internal/settings"
	"receiptgen/internal/store"

	"github.com/spf13/cobra"
)

var settingsCmd = &cobra.Command{
	Use:   "settings",
	Short: "Show or reset the saved school settings",
}

var settingsShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Print the saved settings",
	RunE: func(cmd *cobra.Command, args []string) error {
		return withStore(func(ctx context.Context, st *store.Store) error {
			s, err := settings.Load(ctx, st)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), settingsView(s))
			return nil
		})
	},
}

var settingsResetCmd = &cobra.Command{
	Use:   "reset",
	Short: "Clear saved settings and return to the defaults",
	RunE: func(cmd *cobra.Command, args []string) error {
		return withStore(func(ctx context.Context, st *store.Store) error {
			s, err := settings.Reset(ctx, st)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), ui.DefaultStyles().Success.Render("Settings reset to defaults."))
			fmt.Fprintln(cmd.OutOrStdout(), settingsView(s))
			return nil
		})
	},
}

func init() {
	settingsCmd.AddCommand(settingsShowCmd)
	settingsCmd.AddCommand(settingsResetCmd)
}

func withStore(fn func(ctx context.Context, st *store.Store) error) error {
	ctx, cancel := commandContext()
	defer cancel()
	st, err := store.Open(cfg.Store.DatabasePath)
	if err != nil {
		return err
	}
	defer st.Close()
	return fn(ctx, st)
}

func settingsView(s settings.Settings) string {
	styles := ui.DefaultStyles()
	return styles.Box.Render(styles.KeyValues([][2]string{
		{"School", s.SchoolName},
		{"Address", s.SchoolAddress},
		{"Contact", s.SchoolContact},
		{"Logo", s.LogoURL},
		{"Signatory", s.AccountantName},
	}))
}
