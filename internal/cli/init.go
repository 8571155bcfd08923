package cli

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/charmbracelet/huh"
	"github.com/charmbracelet/lipgloss"
	"github.com/fabworks/fab/internal/config"
	"github.com/fabworks/fab/internal/errors"
	"github.com/fabworks/fab/internal/ui"
	"github.com/spf13/cobra"
)

var initForce bool

// initCmd creates a starter .fab.yaml in the current directory.
var initCmd = &cobra.Command{
	Use:   "init",
	Short: "Create a .fab.yaml configuration file",
	Long: `Write a starter .fab.yaml to the current directory with the
connection settings and an example command to edit.

Examples:
  fab init
  fab init --force`,
	RunE: func(cmd *cobra.Command, args []string) error {
		return Init(InitOptions{Force: initForce})
	},
}

func init() {
	initCmd.Flags().BoolVarP(&initForce, "force", "f", false, "overwrite existing config")
	rootCmd.AddCommand(initCmd)
}

// InitOptions holds options for the init command.
type InitOptions struct {
	// Force overwrites an existing config without asking.
	Force bool
}

// sampleConfig is the scaffold written by fab init.
const sampleConfig = `# fab configuration.
#
# Hosts may be plain names, user@host, or user@host:port. Settings left
# out fall back to your ssh_config and the built-in defaults.
hosts:
  - example.com
#  - deploy@other.example.com:2222

# user: deploy
# port: "22"
# mode: fanout          # or rolling, one host at a time
# host_key_policy: accept  # or strict, to verify against known_hosts
# key_file: ~/.ssh/id_ed25519

# Variables, usable in commands as $(name).
vars:
  app_dir: /srv/app

# Named command sequences. Run with: fab <name> or fab <name>:key=value
commands:
  uptime:
    description: Show uptime on every host
    steps:
      - run: uptime

  deploy:
    description: Upload the project and restart
    steps:
      - upload_project: true
      - sudo: systemctl restart app
`

// Init writes the starter config, asking before clobbering an existing
// file unless forced.
func Init(opts InitOptions) error {
	path := filepath.Join(".", config.ConfigFileName)

	if _, err := os.Stat(path); err == nil && !opts.Force {
		var overwrite bool
		form := huh.NewForm(
			huh.NewGroup(
				huh.NewConfirm().
					Title(fmt.Sprintf("Config file '%s' already exists. Overwrite?", config.ConfigFileName)).
					Value(&overwrite),
			),
		)
		if err := form.Run(); err != nil {
			return errors.WrapWithCode(err, errors.ErrConfig,
				"Failed to get user input",
				"Try running with --force to overwrite")
		}
		if !overwrite {
			fmt.Println("Cancelled.")
			return nil
		}
	}

	if err := os.WriteFile(path, []byte(sampleConfig), 0o644); err != nil {
		return errors.WrapWithCode(err, errors.ErrConfig,
			"Couldn't write "+path,
			"Check the directory is writable")
	}

	ok := lipgloss.NewStyle().Foreground(ui.ColorSuccess).Render(ui.SymbolSuccess)
	fmt.Printf("%s Created %s. Edit the hosts list, then try: fab uptime\n", ok, path)
	return nil
}
