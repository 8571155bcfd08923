package ops

import (
	"fmt"
	"io"
	"os"

	"github.com/fabworks/fab/internal/env"
	"github.com/fabworks/fab/internal/errors"
	"github.com/fabworks/fab/internal/pool"
	"github.com/fabworks/fab/internal/ui"
)

// Put uploads a local file to every pooled host. Both paths are lazily
// resolved per host, so a remote path may reference $(fab_host) or any
// other variable.
func (c *Context) Put(localPath, remotePath string) error {
	return c.onHosts(func(host string, conn *pool.Connection, henv *env.Env) error {
		return c.putFile(host, conn, henv, localPath, remotePath)
	})
}

func (c *Context) putFile(host string, conn *pool.Connection, henv *env.Env, localPath, remotePath string) error {
	local, err := henv.Resolve(localPath)
	if err != nil {
		return err
	}
	remote, err := henv.Resolve(remotePath)
	if err != nil {
		return err
	}

	src, err := os.Open(local)
	if err != nil {
		return errors.WrapWithCode(err, errors.ErrTransfer,
			"Couldn't read local file "+local,
			"Check the path exists and is readable.")
	}
	defer src.Close()

	ft, err := conn.Client.OpenTransfer()
	if err != nil {
		return err
	}
	defer ft.Close()

	c.console.writeLine(fmt.Sprintf("%s put: %s -> %s", ui.HostPrefix(host), local, remote))

	dst, err := ft.Create(remote)
	if err != nil {
		return err
	}
	if _, err := io.Copy(dst, src); err != nil {
		dst.Close()
		return errors.WrapWithCode(err, errors.ErrTransfer,
			fmt.Sprintf("Upload of %s to %s failed", local, host),
			"Check the connection and the remote disk space.")
	}
	if err := dst.Close(); err != nil {
		return errors.WrapWithCode(err, errors.ErrTransfer,
			fmt.Sprintf("Upload of %s to %s failed", local, host),
			"Check the connection and the remote disk space.")
	}
	return nil
}
