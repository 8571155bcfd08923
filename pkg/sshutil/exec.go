package sshutil

import (
	"io"

	"github.com/fabworks/fab/internal/errors"
	"golang.org/x/crypto/ssh"
)

// Start begins executing a command in a new session on the connection and
// returns the handle to its standard streams. The caller owns draining
// stdout/stderr and calling Wait, which also closes the session.
func (c *Client) Start(cmd string) (Process, error) {
	session, err := c.conn.NewSession()
	if err != nil {
		return nil, errors.Wrap(err, "Failed to create SSH session with "+c.Host)
	}

	stdin, err := session.StdinPipe()
	if err != nil {
		session.Close()
		return nil, errors.WrapWithCode(err, errors.ErrExec,
			"Failed to open remote stdin", "")
	}
	stdout, err := session.StdoutPipe()
	if err != nil {
		session.Close()
		return nil, errors.WrapWithCode(err, errors.ErrExec,
			"Failed to open remote stdout", "")
	}
	stderr, err := session.StderrPipe()
	if err != nil {
		session.Close()
		return nil, errors.WrapWithCode(err, errors.ErrExec,
			"Failed to open remote stderr", "")
	}

	if err := session.Start(cmd); err != nil {
		session.Close()
		return nil, errors.WrapWithCode(err, errors.ErrExec,
			"Failed to start command: "+cmd,
			"Check if the command exists on the remote host.")
	}

	return &sessionProcess{
		session: session,
		stdin:   stdin,
		stdout:  stdout,
		stderr:  stderr,
	}, nil
}

// sessionProcess adapts an *ssh.Session to the Process interface.
type sessionProcess struct {
	session *ssh.Session
	stdin   io.WriteCloser
	stdout  io.Reader
	stderr  io.Reader
}

func (p *sessionProcess) Stdin() io.WriteCloser { return p.stdin }
func (p *sessionProcess) Stdout() io.Reader     { return p.stdout }
func (p *sessionProcess) Stderr() io.Reader     { return p.stderr }

// Wait blocks until the remote command finishes and closes the session.
// A non-zero remote exit status is reported through the exit code with a
// nil error; only transport-level failures are errors.
func (p *sessionProcess) Wait() (int, error) {
	defer p.session.Close()

	err := p.session.Wait()
	if err == nil {
		return 0, nil
	}
	if exitErr, ok := err.(*ssh.ExitError); ok {
		return exitErr.ExitStatus(), nil
	}
	return -1, errors.WrapWithCode(err, errors.ErrExec,
		"Remote command did not complete",
		"The connection may have dropped mid-command.")
}
