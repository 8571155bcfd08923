// Package sshutil establishes authenticated SSH connections and exposes a
// small interface for running remote commands and transferring files over
// them. Connection settings are resolved from the host string itself,
// ~/.ssh/config, and the caller-supplied Options, in that order.
package sshutil

import (
	stderrors "errors"
	"fmt"
	"net"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fabworks/fab/internal/errors"
	"golang.org/x/crypto/ssh"
	"golang.org/x/crypto/ssh/agent"
	"golang.org/x/crypto/ssh/knownhosts"
)

// Host-key verification policies.
const (
	// PolicyAccept accepts keys from hosts not present in known_hosts.
	PolicyAccept = "accept"
	// PolicyStrict verifies every host key against ~/.ssh/known_hosts.
	PolicyStrict = "strict"
)

// Options supplies connection defaults that the host string and
// ~/.ssh/config do not provide.
type Options struct {
	User          string
	Port          string
	Password      string
	KeyFile       string
	HostKeyPolicy string        // PolicyAccept or PolicyStrict
	Timeout       time.Duration // TCP dial timeout; zero means 10s
}

// Client wraps an authenticated SSH connection with its metadata.
type Client struct {
	conn    *ssh.Client
	Host    string // The original host string used to connect
	Address string // The resolved address (host:port)

	mu     sync.Mutex
	closed bool
}

// Dial establishes an SSH connection to the given host. The host can be a
// hostname, an SSH config alias, user@hostname, or hostname:port.
func Dial(host string, opts Options) (*Client, error) {
	s := resolveSettings(host, opts)

	config, err := buildClientConfig(s, opts)
	if err != nil {
		return nil, err
	}

	timeout := opts.Timeout
	if timeout == 0 {
		timeout = 10 * time.Second
	}

	address := s.address()
	conn, err := net.DialTimeout("tcp", address, timeout)
	if err != nil {
		return nil, errors.WrapWithCode(err, errors.ErrConnect,
			fmt.Sprintf("Can't reach '%s' at %s", host, address),
			suggestionForDialError(err))
	}

	sshConn, chans, reqs, err := ssh.NewClientConn(conn, address, config)
	if err != nil {
		conn.Close()
		return nil, errors.WrapWithCode(err, errors.ErrConnect,
			fmt.Sprintf("SSH handshake with '%s' didn't go through", host),
			suggestionForHandshakeError(err))
	}

	return &Client{
		conn:    ssh.NewClient(sshConn, chans, reqs),
		Host:    host,
		Address: address,
	}, nil
}

// Close closes the SSH connection. Closing twice is not an error.
func (c *Client) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed || c.conn == nil {
		return nil
	}
	c.closed = true
	return c.conn.Close()
}

// buildClientConfig assembles authentication methods and the host-key
// callback for one connection.
func buildClientConfig(s *settings, opts Options) (*ssh.ClientConfig, error) {
	var authMethods []ssh.AuthMethod

	if opts.Password != "" {
		authMethods = append(authMethods, ssh.Password(opts.Password))
	}

	if agentAuth := sshAgentAuth(); agentAuth != nil {
		authMethods = append(authMethods, agentAuth)
	}

	tried := map[string]bool{}
	tryKeyFile := func(keyPath string) {
		if keyPath == "" || tried[keyPath] {
			return
		}
		tried[keyPath] = true
		if keyAuth, err := keyFileAuth(keyPath); err == nil {
			authMethods = append(authMethods, keyAuth)
		}
	}

	tryKeyFile(opts.KeyFile)
	tryKeyFile(s.identityFile)
	for _, name := range []string{"id_ed25519", "id_rsa", "id_ecdsa"} {
		tryKeyFile(filepath.Join(homeDir(), ".ssh", name))
	}

	if len(authMethods) == 0 {
		return nil, errors.New(errors.ErrConnect,
			"No SSH auth methods available",
			"Set a password or key file in your config, or load a key: ssh-add -l")
	}

	hostKeyCallback, err := hostKeyCallbackFor(opts.HostKeyPolicy)
	if err != nil {
		return nil, err
	}

	return &ssh.ClientConfig{
		User:            s.user,
		Auth:            authMethods,
		HostKeyCallback: hostKeyCallback,
		Timeout:         10 * time.Second,
	}, nil
}

// hostKeyCallbackFor maps the configured policy onto a verification callback.
// The accept policy trusts unknown hosts, matching the behavior of adding
// new keys automatically; strict verifies against ~/.ssh/known_hosts.
func hostKeyCallbackFor(policy string) (ssh.HostKeyCallback, error) {
	switch policy {
	case PolicyStrict:
		knownHostsPath := filepath.Join(homeDir(), ".ssh", "known_hosts")
		callback, err := knownhosts.New(knownHostsPath)
		if err != nil {
			return nil, errors.WrapWithCode(err, errors.ErrConnect,
				"Failed to load known_hosts for strict host-key checking",
				"Create ~/.ssh/known_hosts or switch host_key_policy to 'accept'.")
		}
		return callback, nil
	case PolicyAccept, "":
		return ssh.InsecureIgnoreHostKey(), nil //nolint:gosec // Policy explicitly accepts unknown host keys
	default:
		return nil, errors.New(errors.ErrConfig,
			fmt.Sprintf("Unsupported host key policy: %s", policy),
			"Supported policies are: accept, strict")
	}
}

// agentConn holds the reusable SSH agent connection.
var (
	agentConn     net.Conn
	agentClient   agent.ExtendedAgent
	agentConnOnce sync.Once
)

// sshAgentAuth returns an auth method using the SSH agent if available.
// The agent connection is reused across multiple SSH connections.
// Returns nil if the agent has no keys loaded.
func sshAgentAuth() ssh.AuthMethod {
	socket := os.Getenv("SSH_AUTH_SOCK")
	if socket == "" {
		return nil
	}

	agentConnOnce.Do(func() {
		conn, err := net.Dial("unix", socket)
		if err != nil {
			return
		}
		agentConn = conn
		agentClient = agent.NewClient(conn)
	})

	if agentClient == nil {
		return nil
	}

	// An empty agent causes auth failures when placed before other methods.
	signers, err := agentClient.Signers()
	if err != nil || len(signers) == 0 {
		return nil
	}

	return ssh.PublicKeysCallback(agentClient.Signers)
}

// CloseAgent closes the SSH agent connection if one is open.
func CloseAgent() {
	if agentConn != nil {
		agentConn.Close()
	}
}

// keyFileAuth returns an auth method using a private key file.
func keyFileAuth(keyPath string) (ssh.AuthMethod, error) {
	key, err := os.ReadFile(keyPath)
	if err != nil {
		return nil, err
	}

	signer, err := ssh.ParsePrivateKey(key)
	if err != nil {
		return nil, err
	}

	return ssh.PublicKeys(signer), nil
}

func suggestionForDialError(err error) string {
	errStr := err.Error()
	if strings.Contains(errStr, "connection refused") {
		return "Is SSH running on that box? Try: ssh <host>"
	}
	if strings.Contains(errStr, "no route to host") || strings.Contains(errStr, "network is unreachable") {
		return "Can't route to the host. Check your network connection."
	}
	if strings.Contains(errStr, "timeout") || strings.Contains(errStr, "i/o timeout") {
		return "Connection timed out. Host might be offline or blocked by a firewall."
	}
	return "Make sure the host is reachable: ping <host>"
}

func suggestionForHandshakeError(err error) string {
	errStr := err.Error()
	if strings.Contains(errStr, "unable to authenticate") || strings.Contains(errStr, "no supported methods") {
		return "Auth failed. Check the configured user, password, and keys."
	}
	var keyErr *knownhosts.KeyError
	if stderrors.As(err, &keyErr) {
		return "Host key mismatch. Update known_hosts: ssh-keygen -R <host>"
	}
	return "Something went wrong during SSH setup. Try: ssh <host>"
}
