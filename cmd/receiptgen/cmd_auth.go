package main

import (
	"bufio"
	"fmt"
	"io"
	"strings"
	"time"

	"receiptgen/cmd/receiptgen/ui"
	"receiptgen/internal/access"

	"github.com/spf13/cobra"
)

var (
	loginUsername  string
	loginEmergency string
)

var loginCmd = &cobra.Command{
	Use:   "login",
	Short: "Log in to a running receiptgen server",
	Long: `Logs in with a Telegram username that belongs to the authorized group, or
with the emergency credential (--emergency USER, password read from stdin).
The session is kept in access.token_file and expires 24 hours after login.`,
	RunE: runLogin,
}

var logoutCmd = &cobra.Command{
	Use:   "logout",
	Short: "End the current session",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, cancel := commandContext()
		defer cancel()
		if err := newAccessClient().Logout(ctx); err != nil {
			fmt.Fprintln(cmd.ErrOrStderr(), ui.DefaultStyles().Warning.Render("server logout failed: "+err.Error()))
		}
		fmt.Fprintln(cmd.OutOrStdout(), "Logged out.")
		return nil
	},
}

var whoamiCmd = &cobra.Command{
	Use:   "whoami",
	Short: "Show the logged in user",
	RunE:  runWhoami,
}

var membersCmd = &cobra.Command{
	Use:   "members",
	Short: "List the authorized group's visible members",
	RunE:  runMembers,
}

func init() {
	loginCmd.Flags().StringVarP(&loginUsername, "username", "u", "", "Telegram username")
	loginCmd.Flags().StringVar(&loginEmergency, "emergency", "", "Emergency account name")
	loginCmd.MarkFlagsMutuallyExclusive("username", "emergency")
}

func newAccessClient() *access.Client {
	remote := access.NewRemoteMembership(cfg.Server.PublicURL, timeout)
	return access.NewClient(remote, cfg.Access.TokenFile)
}

func readPassword(r io.Reader) (string, error) {
	line, err := bufio.NewReader(r).ReadString('\n')
	if err != nil && err != io.EOF {
		return "", err
	}
	return strings.TrimRight(line, "\r\n"), nil
}

func runLogin(cmd *cobra.Command, args []string) error {
	ctx, cancel := commandContext()
	defer cancel()
	client := newAccessClient()
	styles := ui.DefaultStyles()

	var (
		resp access.LoginResponse
		err  error
	)
	switch {
	case loginEmergency != "":
		fmt.Fprint(cmd.ErrOrStderr(), "Password: ")
		password, perr := readPassword(cmd.InOrStdin())
		if perr != nil {
			return perr
		}
		resp, err = client.LoginEmergency(ctx, loginEmergency, password)
	case loginUsername != "":
		resp, err = client.LoginUsername(ctx, loginUsername)
	default:
		mode, tc := client.Mode(ctx)
		if mode == access.ModeEmergency {
			return fmt.Errorf("telegram login is unavailable; use --emergency")
		}
		return fmt.Errorf("use --username, or log in with the Telegram widget of @%s in the browser", tc.BotUsername)
	}
	if err != nil {
		return err
	}
	fmt.Fprintln(cmd.OutOrStdout(), styles.Success.Render("Logged in as "+resp.User.DisplayName()))
	fmt.Fprintln(cmd.OutOrStdout(), styles.Muted.Render("Session expires "+resp.ExpiresAt.Local().Format(time.RFC1123)))
	return nil
}

func runWhoami(cmd *cobra.Command, args []string) error {
	ctx, cancel := commandContext()
	defer cancel()
	client := newAccessClient()

	sess, ok := client.Session()
	if !ok {
		return fmt.Errorf("not logged in")
	}
	user, err := client.Me(ctx)
	if err != nil {
		return err
	}
	styles := ui.DefaultStyles()
	fmt.Fprintln(cmd.OutOrStdout(), styles.KeyValues([][2]string{
		{"User", user.DisplayName()},
		{"Method", sess.Method},
		{"Expires", sess.ExpiresAt.Local().Format(time.RFC1123)},
		{"Server", cfg.Server.PublicURL},
	}))
	return nil
}

func runMembers(cmd *cobra.Command, args []string) error {
	ctx, cancel := commandContext()
	defer cancel()
	client := newAccessClient()

	token := client.Token()
	if token == "" {
		return fmt.Errorf("not logged in")
	}
	remote := access.NewRemoteMembership(cfg.Server.PublicURL, timeout)
	members, err := remote.GroupMembers(ctx, token)
	if err != nil {
		return err
	}

	var b strings.Builder
	fmt.Fprintf(&b, "# Group members\n\n| Name | Username | Status |\n|---|---|---|\n")
	for _, m := range members {
		name := strings.TrimSpace(m.User.FirstName + " " + m.User.LastName)
		username := ""
		if m.User.Username != "" {
			username = "@" + m.User.Username
		}
		fmt.Fprintf(&b, "| %s | %s | %s |\n", name, username, m.Status)
	}
	fmt.Fprint(cmd.OutOrStdout(), ui.Markdown(b.String(), 80))
	return nil
}
