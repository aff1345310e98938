// Package cmd is the msgraph-client command line: sign-in, raw Graph
// requests, resumable uploads and client generation.
package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"github.com/tonimelisma/msgraph-client/internal/app"
	"github.com/tonimelisma/msgraph-client/pkg/graph"
)

var rootCmd = &cobra.Command{
	Use:   "msgraph-client",
	Short: "A command line client for Microsoft Graph",
	Long: `msgraph-client signs in to Microsoft Graph and talks to it from the shell.

  - auth: device code, browser or client secret sign-in
  - get: any Graph path, with OData options and paging
  - upload: resumable chunked uploads to OneDrive
  - generate: typed resource clients from the Graph OpenAPI document`,
	SilenceUsage:  true,
	SilenceErrors: true,
}

// Execute runs the root command and exits non-zero on failure.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		if !errors.Is(err, app.ErrLoginPending) {
			fmt.Fprintln(os.Stderr, "Error:", err)
		}
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().Bool("debug", false, "Enable debug logging, including request dumps")
}

// graphClient completes a pending device-code sign-in, if any, and returns
// the Graph client.
func graphClient(ctx context.Context, cmd *cobra.Command, a *app.App) (*graph.Client, error) {
	pending, err := a.PendingLogin()
	if err != nil {
		return nil, err
	}
	if pending != nil {
		if _, err := a.CompleteDeviceLogin(ctx, false); err != nil {
			if errors.Is(err, app.ErrLoginPending) {
				fmt.Fprintln(cmd.ErrOrStderr(), err)
			}
			return nil, err
		}
		fmt.Fprintln(cmd.OutOrStdout(), "Login successful!")
	}
	client, err := a.GraphClient()
	if errors.Is(err, graph.ErrReauthRequired) {
		return nil, fmt.Errorf("you are not logged in, run 'msgraph-client auth login': %w", err)
	}
	return client, err
}
