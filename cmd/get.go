package cmd

import (
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/spf13/cobra"
	"github.com/tonimelisma/msgraph-client/internal/app"
	"github.com/tonimelisma/msgraph-client/internal/ui"
	"github.com/tonimelisma/msgraph-client/pkg/graph"
)

var getCmd = &cobra.Command{
	Use:   "get <path>",
	Short: "GET a Graph path and print the JSON reply",
	Long: `Sends a GET to a path relative to the configured API version, for example
'/me' or '/me/messages'. Collections can be paged with --top and --next, or
fetched in full with --all, which prints the merged value array.`,
	Example: `  msgraph-client get /me --select displayName,mail
  msgraph-client get /me/messages --top 10 --filter "isRead eq false"
  msgraph-client get /users --all`,
	Args: cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := app.NewApp(cmd)
		if err != nil {
			return err
		}
		return getLogic(a, cmd, args)
	},
}

func getLogic(a *app.App, cmd *cobra.Command, args []string) error {
	paging, err := ui.ParsePagingFlags(cmd)
	if err != nil {
		return err
	}
	if len(args) == 0 && paging.NextLink == "" {
		return fmt.Errorf("a path or --next is required")
	}
	ctx := cmd.Context()
	client, err := graphClient(ctx, cmd, a)
	if err != nil {
		return err
	}

	path := paging.NextLink
	if path == "" {
		path = args[0]
	}
	req := client.Request(http.MethodGet, path)
	if paging.NextLink == "" {
		if err := applyODataFlags(cmd, req, paging); err != nil {
			return err
		}
	}
	out := cmd.OutOrStdout()

	if paging.FetchAll {
		pages, err := req.Paging().Collect(ctx)
		if err != nil {
			return err
		}
		values, err := graph.CollectValues[json.RawMessage](pages)
		if err != nil {
			return err
		}
		merged, err := json.Marshal(values)
		if err != nil {
			return err
		}
		return ui.PrintJSON(out, merged)
	}

	resp, err := req.Send(ctx)
	if err != nil {
		return err
	}
	if err := ui.PrintJSON(out, resp.Body); err != nil {
		return err
	}
	if hint := ui.NextPageHint(resp.NextLink(), false); hint != "" {
		fmt.Fprintln(cmd.ErrOrStderr(), hint)
	}
	return nil
}

func applyODataFlags(cmd *cobra.Command, req *graph.RequestHandler, paging ui.Paging) error {
	selectFields, err := cmd.Flags().GetStringSlice("select")
	if err != nil {
		return err
	}
	expand, err := cmd.Flags().GetStringSlice("expand")
	if err != nil {
		return err
	}
	filter, err := cmd.Flags().GetString("filter")
	if err != nil {
		return err
	}
	orderBy, err := cmd.Flags().GetStringSlice("orderby")
	if err != nil {
		return err
	}
	if len(selectFields) > 0 {
		req.Select(selectFields...)
	}
	if len(expand) > 0 {
		req.Expand(expand...)
	}
	if filter != "" {
		req.Filter(filter)
	}
	if len(orderBy) > 0 {
		req.OrderBy(orderBy...)
	}
	if paging.Top > 0 {
		req.Top(paging.Top)
	}
	return req.Err()
}

func addGetFlags(c *cobra.Command) {
	ui.AddPagingFlags(c)
	c.Flags().StringSlice("select", nil, "Properties to return ($select)")
	c.Flags().StringSlice("expand", nil, "Relationships to expand ($expand)")
	c.Flags().String("filter", "", "OData filter expression ($filter)")
	c.Flags().StringSlice("orderby", nil, "Sort clauses ($orderby)")
}

func init() {
	rootCmd.AddCommand(getCmd)
	addGetFlags(getCmd)
}
