package ops

import (
	"fmt"
	"os"
	osexec "os/exec"
	"path/filepath"

	"github.com/fabworks/fab/internal/env"
	"github.com/fabworks/fab/internal/errors"
	"github.com/fabworks/fab/internal/ui"
	"github.com/fabworks/fab/internal/util"
)

const localHost = "localhost"

// Local runs cmd on the operator's machine through /bin/sh. Unlike remote
// execution, a non-zero exit status is an error, so composites like
// UploadProject stop at the first failed step.
func (c *Context) Local(cmd string) error {
	resolved, err := c.Env.Resolve(cmd)
	if err != nil {
		return err
	}
	c.console.writeLine(fmt.Sprintf("%s local: %s", ui.HostPrefix(localHost), resolved))
	return c.runLocal(resolved)
}

// LocalPerHost runs cmd locally once per configured host, with fab_host
// bound to each host in turn before resolution. The host list must be
// configured even though no connection is made.
func (c *Context) LocalPerHost(cmd string) error {
	if err := c.Env.Require(env.KeyHosts, "run a local command per host",
		[]string{"set the hosts list in .fab.yaml", "pass fab_hosts with a set step"}); err != nil {
		return err
	}

	for _, host := range c.Env.Hosts() {
		henv := c.Env.ForHost(host)
		resolved, err := henv.Resolve(cmd)
		if err != nil {
			return err
		}
		c.console.writeLine(fmt.Sprintf("%s local: %s", ui.HostPrefix(localHost), resolved))
		if err := c.runLocal(resolved); err != nil {
			return err
		}
	}
	return nil
}

func (c *Context) runLocal(cmd string) error {
	sh := osexec.Command("/bin/sh", "-c", cmd)

	stdout, err := sh.StdoutPipe()
	if err != nil {
		return errors.WrapWithCode(err, errors.ErrExec, "Couldn't set up the local command", "")
	}
	stderr, err := sh.StderrPipe()
	if err != nil {
		return errors.WrapWithCode(err, errors.ErrExec, "Couldn't set up the local command", "")
	}

	if err := sh.Start(); err != nil {
		return errors.WrapWithCode(err, errors.ErrExec,
			"Couldn't start local command: "+cmd,
			"Check that /bin/sh is available.")
	}

	c.console.drainStreams(localHost, stdout, stderr)

	if err := sh.Wait(); err != nil {
		return errors.WrapWithCode(err, errors.ErrExec,
			"Local command failed: "+cmd, "")
	}
	return nil
}

// UploadProject archives the current working directory, uploads the
// archive to every host, unpacks it remotely, and removes the archive on
// both ends. The remote archive is named after the project directory.
func (c *Context) UploadProject() error {
	wd, err := os.Getwd()
	if err != nil {
		return errors.WrapWithCode(err, errors.ErrExec,
			"Couldn't determine the project directory", "")
	}

	staging := fmt.Sprintf("/tmp/fab.%s.tar.gz", c.Env.GetString(env.KeyTimestamp))
	remote := filepath.Base(wd) + ".tar.gz"

	if err := c.Local(fmt.Sprintf("tar -czf %s .", staging)); err != nil {
		return err
	}
	if err := c.Put(staging, remote); err != nil {
		return err
	}
	if err := c.Local("rm -f " + staging); err != nil {
		return err
	}
	// The project directory name may contain shell metacharacters.
	if err := c.Run("tar -xzf " + util.ShellQuote(remote)); err != nil {
		return err
	}
	return c.Run("rm -f " + util.ShellQuote(remote))
}
