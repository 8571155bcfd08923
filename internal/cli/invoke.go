package cli

import (
	"fmt"
	"io"
	"os"
	"os/signal"
	"sort"
	"strings"
	"syscall"

	"github.com/fabworks/fab/internal/config"
	"github.com/fabworks/fab/internal/env"
	"github.com/fabworks/fab/internal/errors"
	"github.com/fabworks/fab/internal/logger"
	"github.com/fabworks/fab/internal/ops"
	"github.com/fabworks/fab/internal/pool"
	"github.com/fabworks/fab/internal/util"
	"github.com/fabworks/fab/pkg/sshutil"
)

// InvokeOptions holds options for a command-line invocation.
type InvokeOptions struct {
	// Tokens are the raw command arguments: name or name:key=value,...
	Tokens []string

	// ConfigPath overrides the config search (from --config).
	ConfigPath string

	// Out receives all run output. Nil means stdout.
	Out io.Writer

	// Dial and Prompt override pool behavior. Nil means real SSH and an
	// interactive password prompt.
	Dial   pool.Dialer
	Prompt pool.PasswordPrompt
}

// token is one parsed command invocation.
type token struct {
	name string
	args [][2]string // ordered key=value pairs
}

// Invoke parses the command tokens, validates every one against the
// configured commands before running any, then executes them in order.
// The connection pool is torn down and "Done." printed whether or not a
// command fails, matching the run's completion notice contract.
func Invoke(opts InvokeOptions) error {
	out := opts.Out
	if out == nil {
		out = os.Stdout
	}
	log := logger.Default()

	cfg, err := config.LoadOrDefault(opts.ConfigPath)
	if err != nil {
		return err
	}

	e := env.New()
	cfg.Apply(e)

	if len(opts.Tokens) == 0 {
		fmt.Fprintln(out, "No commands given.")
		listCommands(out, cfg)
		return nil
	}

	tokens, err := parseTokens(opts.Tokens, cfg)
	if err != nil {
		return err
	}

	p := pool.New(opts.Dial, opts.Prompt, log)
	stop := trapInterrupt(p)
	defer stop()
	defer func() {
		p.Disconnect()
		sshutil.CloseAgent()
		fmt.Fprintln(out, "Done.")
	}()

	ctx := ops.NewContext(e, p, log, out)

	for _, tok := range tokens {
		if err := runCommand(ctx, cfg, tok, out); err != nil {
			return err
		}
	}
	return nil
}

// parseTokens splits and validates every token up front, so a typo in the
// third command is caught before the first one touches a host.
func parseTokens(raw []string, cfg *config.Config) ([]token, error) {
	tokens := make([]token, 0, len(raw))
	for _, r := range raw {
		tok, err := parseToken(r)
		if err != nil {
			return nil, err
		}
		if _, ok := cfg.Commands[tok.name]; !ok {
			return nil, errors.New(errors.ErrConfig,
				"No such command: "+tok.name,
				availableCommands(cfg))
		}
		tokens = append(tokens, tok)
	}
	return tokens, nil
}

// parseToken splits "name:key=value,key=value" on the first colon only, so
// values may themselves contain colons.
func parseToken(raw string) (token, error) {
	name, rest, found := strings.Cut(raw, ":")
	if name == "" {
		return token{}, errors.New(errors.ErrConfig,
			"Empty command name in '"+raw+"'",
			"Commands look like: name or name:key=value,key=value")
	}
	tok := token{name: name}
	if !found {
		return tok, nil
	}
	for _, pair := range strings.Split(rest, ",") {
		k, v, ok := strings.Cut(pair, "=")
		if !ok || k == "" {
			return token{}, errors.New(errors.ErrConfig,
				fmt.Sprintf("Malformed argument '%s' in '%s'", pair, raw),
				"Command arguments look like: key=value, separated by commas")
		}
		tok.args = append(tok.args, [2]string{k, v})
	}
	return tok, nil
}

// runCommand executes one command sequence. Argument and set variables
// persist in the environment after the command finishes, so later commands
// in the same invocation see them.
func runCommand(ctx *ops.Context, cfg *config.Config, tok token, out io.Writer) error {
	cmd := cfg.Commands[tok.name]

	ctx.Env.SetRaw(env.KeyCurCommand, tok.name)
	fmt.Fprintf(out, "Running %s...\n", tok.name)

	if len(cmd.Hosts) > 0 {
		ctx.Env.SetRaw(env.KeyHosts, append([]string(nil), cmd.Hosts...))
	}
	for _, kv := range tok.args {
		ctx.Env.Set(kv[0], kv[1])
	}

	for _, step := range cmd.Steps {
		if err := runStep(ctx, step); err != nil {
			return err
		}
	}
	return nil
}

func runStep(ctx *ops.Context, step config.Step) error {
	switch {
	case step.Run != "":
		return ctx.Run(step.Run)
	case step.Sudo != "":
		return ctx.Sudo(step.Sudo)
	case step.Local != "":
		return ctx.Local(step.Local)
	case step.LocalPerHost != "":
		return ctx.LocalPerHost(step.LocalPerHost)
	case step.Put != nil:
		return ctx.Put(step.Put.Local, step.Put.Remote)
	case step.UploadProject:
		return ctx.UploadProject()
	case len(step.Set) > 0:
		for k, v := range step.Set {
			ctx.Env.Set(k, v)
		}
		return nil
	case step.Require != nil:
		return ctx.Env.Require(step.Require.Var, step.Require.UsedFor, step.Require.ProvidedBy)
	default:
		// Validation rejects empty steps at load time.
		return nil
	}
}

// availableCommands renders the command names for error suggestions.
func availableCommands(cfg *config.Config) string {
	if len(cfg.Commands) == 0 {
		return "No commands are defined. Add a 'commands' section to .fab.yaml or run 'fab init'."
	}
	names := make([]string, 0, len(cfg.Commands))
	for name := range cfg.Commands {
		names = append(names, name)
	}
	sort.Strings(names)
	return "Available commands are: " + util.JoinOrDefault(names, "(none)")
}

// trapInterrupt tears down the pool on ctrl-c. An interrupted run is a
// deliberate stop, not a failure, so the process exits zero.
func trapInterrupt(p *pool.Pool) func() {
	sig := make(chan os.Signal, 1)
	signal.Notify(sig, os.Interrupt, syscall.SIGTERM)
	go func() {
		_, ok := <-sig
		if !ok {
			return
		}
		p.Disconnect()
		sshutil.CloseAgent()
		fmt.Println()
		os.Exit(0)
	}()
	return func() {
		signal.Stop(sig)
		close(sig)
	}
}
