package cli

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/fabworks/fab/internal/config"
	"github.com/fabworks/fab/internal/env"
	"github.com/fabworks/fab/internal/logger"
	"github.com/fabworks/fab/internal/ops"
	"github.com/fabworks/fab/internal/pool"
	"github.com/fabworks/fab/pkg/sshutil"
	"github.com/spf13/cobra"
)

// shellCmd starts the interactive line loop against the configured hosts.
var shellCmd = &cobra.Command{
	Use:   "shell",
	Short: "Run commands interactively on the configured hosts",
	Long: `Start an interactive prompt. Each line is executed on every
configured host; lines starting with "sudo " run privileged. Type
"exit" or press ctrl-d to leave.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		return Shell(ShellOptions{ConfigPath: Config()})
	},
}

func init() {
	rootCmd.AddCommand(shellCmd)
}

// ShellOptions holds options for the interactive shell.
type ShellOptions struct {
	ConfigPath string

	// In and Out override the terminal streams. Nil means stdin/stdout.
	In  io.Reader
	Out io.Writer

	Dial   pool.Dialer
	Prompt pool.PasswordPrompt
}

// Shell reads lines and executes each across the pool until EOF or an
// explicit exit. Command errors are printed and the loop continues; only
// setup failures end the session.
func Shell(opts ShellOptions) error {
	in := opts.In
	if in == nil {
		in = os.Stdin
	}
	out := opts.Out
	if out == nil {
		out = os.Stdout
	}

	cfg, err := config.LoadOrDefault(opts.ConfigPath)
	if err != nil {
		return err
	}

	e := env.New()
	cfg.Apply(e)
	e.SetRaw(env.KeyCurCommand, "shell")

	p := pool.New(opts.Dial, opts.Prompt, logger.Default())
	stop := trapInterrupt(p)
	defer stop()
	defer func() {
		p.Disconnect()
		sshutil.CloseAgent()
	}()

	ctx := ops.NewContext(e, p, logger.Default(), out)

	scanner := bufio.NewScanner(in)
	for {
		fmt.Fprint(out, "fab> ")
		if !scanner.Scan() {
			fmt.Fprintln(out)
			break
		}
		line := strings.TrimSpace(scanner.Text())
		switch {
		case line == "":
			continue
		case line == "exit":
			return scanner.Err()
		case strings.HasPrefix(line, "sudo "):
			err = ctx.Sudo(strings.TrimPrefix(line, "sudo "))
		default:
			err = ctx.Run(line)
		}
		if err != nil {
			fmt.Fprintln(out, err.Error())
		}
	}
	return scanner.Err()
}
