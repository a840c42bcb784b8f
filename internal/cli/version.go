package cli

import (
	"fmt"
	"runtime"

	"github.com/spf13/cobra"

	"github.com/lucasnoah/variantfactory/internal/stage"
)

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the variantfactory version",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Fprintf(cmd.OutOrStdout(), "variantfactory version %s (%s %s/%s, %d stages)\n",
			version, runtime.Version(), runtime.GOOS, runtime.GOARCH, len(stage.Builtin().Names()))
	},
}
