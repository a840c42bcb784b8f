package cli

import (
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/lucasnoah/variantfactory/internal/stage"
)

var stagesCmd = &cobra.Command{
	Use:   "stages",
	Short: "Inspect the available variation stages",
}

var stagesListCmd = &cobra.Command{
	Use:   "list",
	Short: "List registered stage families",
	RunE: func(cmd *cobra.Command, args []string) error {
		reg := stage.Builtin()
		w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
		fmt.Fprintln(w, "NAME\tGUI\tDESCRIPTION")
		for _, name := range reg.Names() {
			def, _ := reg.Lookup(name)
			gui := "-"
			if def.GUI != nil {
				gui = def.GUI.Class + "/" + def.GUI.Renderer
			}
			fmt.Fprintf(w, "%s\t%s\t%s\n", def.Name, gui, def.Summary)
		}
		return w.Flush()
	},
}

func init() {
	stagesCmd.AddCommand(stagesListCmd)
}
