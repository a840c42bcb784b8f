package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/lucasnoah/variantfactory/internal/cache"
)

var cacheCmd = &cobra.Command{
	Use:   "cache",
	Short: "Manage the .cache directory next to a .vast file",
}

var cacheListCmd = &cobra.Command{
	Use:   "list <dir>",
	Short: "List cached artifacts",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		store := cache.New(args[0], logger)
		names, err := store.Entries()
		if err != nil {
			return err
		}
		if len(names) == 0 {
			cmd.Printf("No cache entries in %s\n", store.Dir)
			return nil
		}
		for _, n := range names {
			fmt.Fprintln(cmd.OutOrStdout(), n)
		}
		return nil
	},
}

var cacheCleanCmd = &cobra.Command{
	Use:   "clean <dir>",
	Short: "Remove the cache directory",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		store := cache.New(args[0], logger)
		if err := store.Clean(); err != nil {
			return err
		}
		cmd.Printf("Removed %s\n", store.Dir)
		return nil
	},
}

func init() {
	cacheCmd.AddCommand(cacheListCmd)
	cacheCmd.AddCommand(cacheCleanCmd)
}
