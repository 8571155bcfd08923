package sshutil

import (
	"bytes"
	"net"
	"os"
	"path/filepath"
	"strings"

	"github.com/kevinburke/ssh_config"
)

// settings holds the fully resolved connection parameters for one host.
type settings struct {
	hostname     string
	port         string
	user         string
	identityFile string
}

func (s *settings) address() string {
	return net.JoinHostPort(s.hostname, s.port)
}

// resolveSettings parses a host string and layers on values from
// ~/.ssh/config. The host string may embed user and port as
// user@hostname:port; embedded values take precedence, then ssh_config
// entries, then the supplied defaults.
func resolveSettings(host string, opts Options) *settings {
	s := &settings{
		port: "22",
		user: currentUser(),
	}
	if opts.User != "" {
		s.user = opts.User
	}
	if opts.Port != "" {
		s.port = opts.Port
	}

	explicitUser := false
	if atIdx := strings.Index(host, "@"); atIdx != -1 {
		s.user = host[:atIdx]
		host = host[atIdx+1:]
		explicitUser = true
	}

	explicitPort := false
	if colonIdx := strings.LastIndex(host, ":"); colonIdx != -1 {
		potential := host[colonIdx+1:]
		if isAllDigits(potential) {
			s.port = potential
			host = host[:colonIdx]
			explicitPort = true
		}
	}

	s.hostname = host

	cfg := loadSSHConfig()
	if cfg == nil {
		return s
	}

	if hostname, _ := cfg.Get(host, "HostName"); hostname != "" {
		s.hostname = hostname
	}
	if port, _ := cfg.Get(host, "Port"); port != "" && !explicitPort && opts.Port == "" {
		s.port = port
	}
	if user, _ := cfg.Get(host, "User"); user != "" && !explicitUser && opts.User == "" {
		s.user = user
	}
	if identity, _ := cfg.Get(host, "IdentityFile"); identity != "" {
		s.identityFile = expandPath(identity)
	}

	return s
}

// loadSSHConfig parses ~/.ssh/config, tolerating its absence. Content after
// the first Match directive is dropped because the parser doesn't support
// Match blocks.
func loadSSHConfig() *ssh_config.Config {
	path := filepath.Join(homeDir(), ".ssh", "config")
	content, err := os.ReadFile(path)
	if err != nil {
		return nil
	}

	lines := strings.Split(string(content), "\n")
	var kept []string
	for _, line := range lines {
		if strings.HasPrefix(strings.ToLower(strings.TrimSpace(line)), "match ") {
			break
		}
		kept = append(kept, line)
	}

	cfg, err := ssh_config.Decode(bytes.NewReader([]byte(strings.Join(kept, "\n"))))
	if err != nil {
		return nil
	}
	return cfg
}

func isAllDigits(s string) bool {
	if s == "" {
		return false
	}
	for _, c := range s {
		if c < '0' || c > '9' {
			return false
		}
	}
	return true
}

func homeDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return os.Getenv("HOME")
	}
	return home
}

func currentUser() string {
	if user := os.Getenv("USER"); user != "" {
		return user
	}
	if user := os.Getenv("LOGNAME"); user != "" {
		return user
	}
	return "root"
}

func expandPath(path string) string {
	if strings.HasPrefix(path, "~/") {
		return filepath.Join(homeDir(), path[2:])
	}
	return path
}
