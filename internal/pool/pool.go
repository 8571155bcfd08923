// Package pool manages the set of authenticated SSH sessions for one run:
// one connection per configured target host, created together before the
// first remote operation and torn down together on completion or interrupt.
package pool

import (
	"fmt"
	"os"
	"sync"

	"github.com/fabworks/fab/internal/env"
	"github.com/fabworks/fab/internal/errors"
	"github.com/fabworks/fab/internal/logger"
	"github.com/fabworks/fab/pkg/sshutil"
	"golang.org/x/term"
)

// Connection pairs a target host with its authenticated session.
// Usable for remote operations only between Connect and Disconnect;
// a failed connection is terminal for the run, never redialed.
type Connection struct {
	Host   string
	Client sshutil.RemoteClient
}

// Dialer opens an authenticated session to one host. Swapped for a fake in
// tests.
type Dialer func(host string, opts sshutil.Options) (sshutil.RemoteClient, error)

// PasswordPrompt obtains the authentication secret from the operator.
type PasswordPrompt func() (string, error)

// Pool is the ordered set of live connections for a run.
type Pool struct {
	mu     sync.Mutex
	conns  []*Connection
	dial   Dialer
	prompt PasswordPrompt
	log    logger.Logger
}

// New creates an empty pool. A nil dialer uses real SSH connections; a nil
// prompt reads the password from the terminal with echo disabled.
func New(dial Dialer, prompt PasswordPrompt, log logger.Logger) *Pool {
	if dial == nil {
		dial = func(host string, opts sshutil.Options) (sshutil.RemoteClient, error) {
			return sshutil.Dial(host, opts)
		}
	}
	if prompt == nil {
		prompt = TerminalPrompt
	}
	if log == nil {
		log = logger.Default()
	}
	return &Pool{dial: dial, prompt: prompt, log: log}
}

// TerminalPrompt reads the password from the controlling terminal with echo
// disabled. It blocks the whole run before any connection is made.
func TerminalPrompt() (string, error) {
	fmt.Fprint(os.Stderr, "Password: ")
	secret, err := term.ReadPassword(int(os.Stdin.Fd()))
	fmt.Fprintln(os.Stderr)
	if err != nil {
		return "", errors.WrapWithCode(err, errors.ErrConnect,
			"Couldn't read the password from the terminal",
			"Set fab_password in your config when running non-interactively.")
	}
	return string(secret), nil
}

// Connected reports whether the pool has been populated.
func (p *Pool) Connected() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.conns) > 0
}

// Connections returns the ordered connection list. The slice is only
// appended to during Connect and only iterated afterwards, so callers may
// range over it without locking.
func (p *Pool) Connections() []*Connection {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.conns
}

// Hosts returns the host list the pool is currently connected to, in pool
// order. Callers compare it against the effective fab_hosts value to decide
// whether the pool still targets the right machines.
func (p *Pool) Hosts() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	hosts := make([]string, len(p.conns))
	for i, conn := range p.conns {
		hosts[i] = conn.Host
	}
	return hosts
}

// Connect populates the pool from the environment's host list. The host
// list must be non-empty; a missing list is a configuration error distinct
// from any host being unreachable. When no password is configured and a key
// agent may not suffice, the prompt supplies the secret, which is stored in
// the environment for later sudo invocations. Any single connection failure
// closes the sessions opened so far and aborts the whole pool.
func (p *Pool) Connect(e *env.Env) error {
	hosts := e.Hosts()
	if len(hosts) == 0 {
		return errors.New(errors.ErrConfig,
			"No target hosts configured: the 'fab_hosts' variable is missing or empty",
			"Set the host list in .fab.yaml:\n    hosts:\n      - node1.example.com\n      - user@node2.example.com:2222")
	}

	if _, ok := e.Get(env.KeyPassword); !ok {
		secret, err := p.prompt()
		if err != nil {
			return err
		}
		e.SetRaw(env.KeyPassword, secret)
	}

	opts := sshutil.Options{
		User:          e.GetString(env.KeyUser),
		Port:          e.GetString(env.KeyPort),
		Password:      e.GetString(env.KeyPassword),
		KeyFile:       e.GetString(env.KeyKeyFile),
		HostKeyPolicy: e.GetString(env.KeyHostKeyPolicy),
	}

	// Dialing happens outside the pool lock so an interrupt can tear down
	// the sessions opened so far without waiting for an in-flight dial to
	// finish or time out.
	for _, host := range hosts {
		client, err := p.dial(host, opts)
		if err != nil {
			p.Disconnect()
			if errors.IsCode(err, errors.ErrConnect) || errors.IsCode(err, errors.ErrConfig) {
				return err
			}
			return errors.WrapWithCode(err, errors.ErrConnect,
				"Couldn't connect to "+host,
				"Check the host is reachable and the credentials are right.")
		}
		p.log.Debug("connected to %s", host)
		p.mu.Lock()
		p.conns = append(p.conns, &Connection{Host: host, Client: client})
		p.mu.Unlock()
	}

	// Unreachable while connection failures abort above; kept so the
	// contract holds if a dialer ever reports success without a session.
	if !p.Connected() {
		return errors.New(errors.ErrConnect,
			"Host list was non-empty but no connection could be established",
			"Check the hosts are reachable over SSH.")
	}

	return nil
}

// Disconnect closes every open session. It is idempotent and safe to call
// from a signal handler while operations are in flight; closing a session
// twice is tolerated.
func (p *Pool) Disconnect() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.closeAllLocked()
}

func (p *Pool) closeAllLocked() {
	for _, conn := range p.conns {
		if conn.Client == nil {
			continue
		}
		if err := conn.Client.Close(); err != nil {
			p.log.Debug("close %s: %v", conn.Host, err)
		}
	}
	p.conns = nil
}
