package cmd

import (
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"
	"github.com/tonimelisma/msgraph-client/internal/app"
	"github.com/tonimelisma/msgraph-client/internal/ui"
	"github.com/tonimelisma/msgraph-client/pkg/graph"
)

var authCmd = &cobra.Command{
	Use:   "auth",
	Short: "Manage authentication with Microsoft Graph",
	Long:  `Sign in, sign out and check the cached session.`,
}

var authLoginCmd = &cobra.Command{
	Use:   "login",
	Short: "Sign in to Microsoft Graph",
	Long: `Signs in with the device code flow by default. Visit the printed URL,
enter the code, then run any command (or 'auth login' again) to finish.

--interactive opens the system browser and listens on the loopback redirect
URI instead. --client-secret acquires an app-only token with the secret in
` + app.ClientSecretEnv + `.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := app.NewApp(cmd)
		if err != nil {
			return err
		}
		return authLoginLogic(a, cmd)
	},
}

var authLogoutCmd = &cobra.Command{
	Use:   "logout",
	Short: "Forget the cached session",
	Long:  `Removes cached tokens and any pending device code sign-in.`,
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := app.NewApp(cmd)
		if err != nil {
			return err
		}
		if err := a.Logout(); err != nil {
			return fmt.Errorf("logout failed: %w", err)
		}
		fmt.Fprintln(cmd.OutOrStdout(), "You have been logged out.")
		return nil
	},
}

var authStatusCmd = &cobra.Command{
	Use:   "status",
	Short: "Display the current authentication status",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := app.NewApp(cmd)
		if err != nil {
			return err
		}
		return authStatusLogic(a, cmd)
	},
}

func authLoginLogic(a *app.App, cmd *cobra.Command) error {
	ctx := cmd.Context()
	out := cmd.OutOrStdout()
	interactive, _ := cmd.Flags().GetBool("interactive")
	clientSecret, _ := cmd.Flags().GetBool("client-secret")
	wait, _ := cmd.Flags().GetBool("wait")

	switch {
	case interactive && clientSecret:
		return errors.New("--interactive and --client-secret are mutually exclusive")
	case clientSecret:
		secret := os.Getenv(app.ClientSecretEnv)
		if secret == "" {
			return fmt.Errorf("%s is not set", app.ClientSecretEnv)
		}
		tok, err := a.LoginClientSecret(ctx, secret)
		if err != nil {
			return fmt.Errorf("client secret sign-in failed: %w", err)
		}
		fmt.Fprintf(out, "Acquired an app-only token, valid until %s.\n", tok.ExpiresAt.Local().Format(time.RFC1123))
		return nil
	case interactive:
		tok, err := a.LoginInteractive(ctx)
		if err != nil {
			return fmt.Errorf("interactive sign-in failed: %w", err)
		}
		fmt.Fprintln(out, "Login successful!")
		ui.DisplayTokenStatus(out, tok, time.Now())
		return nil
	}

	pending, err := a.PendingLogin()
	if err != nil {
		return err
	}
	if pending == nil {
		if _, err := a.UserToken(); err == nil {
			fmt.Fprintln(out, "You are already logged in. Run 'msgraph-client auth logout' first to switch accounts.")
			return nil
		}
		auth, err := a.StartDeviceLogin(ctx)
		if err != nil {
			return fmt.Errorf("login initiation failed: %w", err)
		}
		ui.DisplayDeviceCode(out, auth)
		if !wait {
			return nil
		}
	}

	tok, err := a.CompleteDeviceLogin(ctx, wait)
	if err != nil {
		if errors.Is(err, app.ErrLoginPending) {
			fmt.Fprintln(out, err)
			return nil
		}
		return err
	}
	fmt.Fprintln(out, "Login successful!")
	ui.DisplayTokenStatus(out, tok, time.Now())
	return nil
}

func authStatusLogic(a *app.App, cmd *cobra.Command) error {
	out := cmd.OutOrStdout()
	pending, err := a.PendingLogin()
	if err != nil {
		return err
	}
	if pending != nil {
		fmt.Fprintf(out, "A login is pending. Go to %s and enter code %s.\n", pending.VerificationURI, pending.UserCode)
		return nil
	}
	tok, err := a.UserToken()
	if errors.Is(err, graph.ErrReauthRequired) {
		fmt.Fprintln(out, "You are not logged in. Run 'msgraph-client auth login'.")
		return nil
	}
	if err != nil {
		return err
	}
	ca, err := a.UserApplication()
	if err != nil {
		return err
	}
	if account, err := ca.Account(); err == nil {
		ui.DisplayAccount(out, account)
	}
	ui.DisplayTokenStatus(out, tok, time.Now())
	return nil
}

func init() {
	rootCmd.AddCommand(authCmd)
	authCmd.AddCommand(authLoginCmd)
	authCmd.AddCommand(authLogoutCmd)
	authCmd.AddCommand(authStatusCmd)

	addLoginFlags(authLoginCmd)
}

func addLoginFlags(c *cobra.Command) {
	c.Flags().Bool("interactive", false, "Sign in through the system browser")
	c.Flags().Bool("client-secret", false, "Acquire an app-only token with the secret in "+app.ClientSecretEnv)
	c.Flags().Bool("wait", false, "Poll until the device code sign-in completes")
}
