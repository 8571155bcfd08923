// Package ops implements the remote operations of a run: run, sudo, put,
// their local counterparts, and the upload_project composite. Operations
// hang off an explicit Context that carries the run's environment,
// connection pool, logger, and console. There is no package-level state,
// so independent runs can coexist in one process.
package ops

import (
	"io"
	"os"
	"slices"

	"github.com/fabworks/fab/internal/dispatch"
	"github.com/fabworks/fab/internal/env"
	"github.com/fabworks/fab/internal/logger"
	"github.com/fabworks/fab/internal/pool"
)

// Context is the run context threaded through every operation.
type Context struct {
	Env  *env.Env
	Pool *pool.Pool
	Log  logger.Logger

	console *console
}

// NewContext creates a run context writing remote output to out.
// A nil out writes to stdout.
func NewContext(e *env.Env, p *pool.Pool, log logger.Logger, out io.Writer) *Context {
	if out == nil {
		out = os.Stdout
	}
	if log == nil {
		log = logger.Default()
	}
	return &Context{
		Env:     e,
		Pool:    p,
		Log:     log,
		console: newConsole(out),
	}
}

// onHosts lazily populates the pool, then applies op to every connection
// under the configured dispatch mode and folds the per-host outcomes into
// a single error. A pool built for a different host list (a command-level
// hosts override, or a set step changing fab_hosts) is torn down and
// redialed so operations never run against stale targets.
func (c *Context) onHosts(op dispatch.Op) error {
	if c.Pool.Connected() && !slices.Equal(c.Pool.Hosts(), c.Env.Hosts()) {
		c.Log.Debug("host list changed, reconnecting pool")
		c.Pool.Disconnect()
	}
	if !c.Pool.Connected() {
		if err := c.Pool.Connect(c.Env); err != nil {
			return err
		}
	}

	results, err := dispatch.Dispatch(c.Env, c.Pool.Connections(), op)
	if err != nil {
		return err
	}
	return results.Err()
}
