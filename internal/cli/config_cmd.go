package cli

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"
	"go.uber.org/multierr"
	"gopkg.in/yaml.v3"

	"github.com/lucasnoah/variantfactory/internal/config"
	"github.com/lucasnoah/variantfactory/internal/pipeline"
)

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Validate and inspect .vast files",
}

var configValidateCmd = &cobra.Command{
	Use:   "validate <file.vast|dir>",
	Short: "Validate a .vast file and the parameters of every stage",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		f, err := loadFile(args[0])
		if err != nil {
			return err
		}

		var problems []string
		for _, e := range config.Validate(f) {
			problems = append(problems, e.Error())
		}
		if len(problems) == 0 {
			runner := newRunner(f, "")
			for _, sc := range f.Configuration {
				for _, err := range multierr.Errors(runner.Validate(sc)) {
					problems = append(problems, describeStageProblem(sc.Name, err)...)
				}
			}
		}

		if len(problems) == 0 {
			cmd.Printf("%s is valid (%d scenarios).\n", f.Path, len(f.Configuration))
			return nil
		}
		cmd.Println("Validation errors:")
		for _, p := range problems {
			cmd.Printf("  - %s\n", p)
		}
		return fmt.Errorf("config has %d validation error(s)", len(problems))
	},
}

var configShowCmd = &cobra.Command{
	Use:   "show <file.vast|dir>",
	Short: "Show the parsed file",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		f, err := loadFile(args[0])
		if err != nil {
			return err
		}
		data, err := yaml.Marshal(f)
		if err != nil {
			return fmt.Errorf("marshalling config: %w", err)
		}
		cmd.Print(string(data))
		return nil
	},
}

func loadFile(arg string) (*config.File, error) {
	path, err := config.Resolve(arg)
	if err != nil {
		return nil, err
	}
	return config.Load(path)
}

func describeStageProblem(scenario string, err error) []string {
	var verr *pipeline.ValidationError
	if errors.As(err, &verr) {
		out := make([]string, len(verr.Errors))
		for i, e := range verr.Errors {
			out[i] = fmt.Sprintf("%s: %s: %s", scenario, verr.Stage, e)
		}
		return out
	}
	return []string{fmt.Sprintf("%s: %v", scenario, err)}
}

func init() {
	configCmd.AddCommand(configValidateCmd)
	configCmd.AddCommand(configShowCmd)
}
