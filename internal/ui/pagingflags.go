package ui

import (
	"fmt"

	"github.com/spf13/cobra"
)

// Paging is the pagination requested on the command line.
type Paging struct {
	Top      int
	FetchAll bool
	NextLink string
}

// AddPagingFlags adds the standard pagination flags to a command.
func AddPagingFlags(cmd *cobra.Command) {
	cmd.Flags().Int("top", 0, "Maximum number of items per page ($top)")
	cmd.Flags().Bool("all", false, "Fetch all items across all pages")
	cmd.Flags().String("next", "", "Continue from this next link URL")
}

// ParsePagingFlags extracts pagination settings from command flags.
func ParsePagingFlags(cmd *cobra.Command) (Paging, error) {
	top, err := cmd.Flags().GetInt("top")
	if err != nil {
		return Paging{}, fmt.Errorf("error parsing top flag: %w", err)
	}
	if top < 0 {
		return Paging{}, fmt.Errorf("--top must not be negative, got %d", top)
	}
	all, err := cmd.Flags().GetBool("all")
	if err != nil {
		return Paging{}, fmt.Errorf("error parsing all flag: %w", err)
	}
	next, err := cmd.Flags().GetString("next")
	if err != nil {
		return Paging{}, fmt.Errorf("error parsing next flag: %w", err)
	}
	return Paging{Top: top, FetchAll: all, NextLink: next}, nil
}

// NextPageHint returns the hint for continuing a listing, or "" when there
// is nothing more to fetch.
func NextPageHint(nextLink string, fetchAll bool) string {
	if nextLink == "" || fetchAll {
		return ""
	}
	return fmt.Sprintf("Next page available. Use --next '%s' to continue.", nextLink)
}
