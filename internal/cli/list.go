package cli

import (
	"fmt"
	"io"
	"os"
	"sort"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/fabworks/fab/internal/config"
	"github.com/fabworks/fab/internal/ui"
	"github.com/spf13/cobra"
)

// listCmd shows the commands defined in the config file.
var listCmd = &cobra.Command{
	Use:   "list",
	Short: "List the commands defined in the config file",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.LoadOrDefault(Config())
		if err != nil {
			return err
		}
		listCommands(os.Stdout, cfg)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(listCmd)
}

// listCommands prints the available command names with descriptions,
// sorted by name.
func listCommands(w io.Writer, cfg *config.Config) {
	fmt.Fprintln(w, "Available commands are:")
	if len(cfg.Commands) == 0 {
		fmt.Fprintln(w, "  (none defined)")
		return
	}

	names := make([]string, 0, len(cfg.Commands))
	width := 0
	for name := range cfg.Commands {
		names = append(names, name)
		if len(name) > width {
			width = len(name)
		}
	}
	sort.Strings(names)

	nameStyle := lipgloss.NewStyle().Foreground(ui.ColorPrimary).Bold(true)
	descStyle := lipgloss.NewStyle().Foreground(ui.ColorMuted)

	for _, name := range names {
		desc := cfg.Commands[name].Description
		if desc == "" {
			fmt.Fprintf(w, "  %s\n", nameStyle.Render(name))
			continue
		}
		fmt.Fprintf(w, "  %s%s  %s\n",
			nameStyle.Render(name),
			strings.Repeat(" ", width-len(name)),
			descStyle.Render(desc))
	}
}
