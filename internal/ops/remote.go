package ops

import (
	"fmt"
	"io"

	"github.com/fabworks/fab/internal/env"
	"github.com/fabworks/fab/internal/pool"
	"github.com/fabworks/fab/internal/ui"
	"github.com/fabworks/fab/internal/util"
)

// Run executes cmd on every pooled host under the configured dispatch
// mode. The command is lazily resolved per host, wrapped in the fab_shell
// template, and its output streamed line by line with host prefixes. A
// non-zero remote exit status is not an error; only transport failures are.
func (c *Context) Run(cmd string) error {
	return c.onHosts(func(host string, conn *pool.Connection, henv *env.Env) error {
		return c.execRemote(host, conn, henv, cmd, false)
	})
}

// Sudo is Run with the command prefixed by "sudo -S" and the captured
// password written to the remote stdin.
func (c *Context) Sudo(cmd string) error {
	return c.onHosts(func(host string, conn *pool.Connection, henv *env.Env) error {
		return c.execRemote(host, conn, henv, cmd, true)
	})
}

func (c *Context) execRemote(host string, conn *pool.Connection, henv *env.Env, cmd string, sudo bool) error {
	resolved, err := henv.Resolve(cmd)
	if err != nil {
		return err
	}

	// Double quotes are escaped so the command survives the shell
	// template's own quoting; fab_shell has a single %s slot.
	inner := util.EscapeDoubleQuotes(resolved)
	verb := "run"
	if sudo {
		inner = "sudo -S " + inner
		verb = "sudo"
	}
	real := fmt.Sprintf(henv.GetString(env.KeyShell), inner)

	shown := resolved
	if henv.GetBool(env.KeyDebug) {
		shown = real
	}
	c.console.writeLine(fmt.Sprintf("%s %s: %s", ui.HostPrefix(host), verb, shown))

	proc, err := conn.Client.Start(real)
	if err != nil {
		return err
	}

	stdin := proc.Stdin()
	if sudo {
		if _, err := io.WriteString(stdin, henv.GetString(env.KeyPassword)+"\n"); err != nil {
			c.Log.Debug("write sudo password to %s: %v", host, err)
		}
	}
	if err := stdin.Close(); err != nil {
		c.Log.Debug("close stdin on %s: %v", host, err)
	}

	// Both streams must be drained before Wait so no trailing output is
	// lost when the session closes.
	c.console.drainStreams(host, proc.Stdout(), proc.Stderr())

	status, err := proc.Wait()
	if err != nil {
		return err
	}
	if status != 0 {
		c.Log.Debug("%s exited %d: %s", host, status, resolved)
	}
	return nil
}
