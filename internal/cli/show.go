package cli

import (
	"fmt"
	"os"

	"github.com/fabworks/fab/internal/config"
	"github.com/fabworks/fab/internal/errors"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"
)

// showConfigCmd prints the effective configuration after the search and
// merge, useful when a run picks up a different file than expected.
var showConfigCmd = &cobra.Command{
	Use:   "config",
	Short: "Show the effective configuration",
	RunE: func(cmd *cobra.Command, args []string) error {
		path, err := config.Find(Config())
		if err != nil {
			return err
		}

		cfg := config.DefaultConfig()
		if path != "" {
			cfg, err = config.Load(path)
			if err != nil {
				return err
			}
			fmt.Printf("# %s\n", path)
		} else {
			fmt.Println("# no config file found, showing defaults")
		}

		// Never echo a secret into a terminal or a pipe.
		cfg.Password = ""

		out, err := yaml.Marshal(cfg)
		if err != nil {
			return errors.WrapWithCode(err, errors.ErrConfig,
				"Couldn't render the configuration", "")
		}
		os.Stdout.Write(out)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(showConfigCmd)
}
