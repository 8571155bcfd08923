package config

import (
	"fmt"
	"sort"

	"github.com/fabworks/fab/internal/env"
	"github.com/fabworks/fab/internal/errors"
)

// Config represents the complete .fab.yaml configuration file.
type Config struct {
	// Hosts are the default targets: hostname, user@hostname, or
	// user@hostname:port.
	Hosts []string `yaml:"hosts" mapstructure:"hosts"`

	// User is the login name when a host entry doesn't embed one.
	User string `yaml:"user" mapstructure:"user"`

	// Port is the SSH port when a host entry doesn't embed one.
	Port string `yaml:"port" mapstructure:"port"`

	// Mode selects the dispatch strategy: "fanout" or "rolling".
	Mode string `yaml:"mode" mapstructure:"mode"`

	// Shell is the remote wrapper template with a single %s slot.
	Shell string `yaml:"shell" mapstructure:"shell"`

	// Debug prints the fully wrapped command instead of the logical one.
	Debug bool `yaml:"debug" mapstructure:"debug"`

	// HostKeyPolicy is "accept" or "strict".
	HostKeyPolicy string `yaml:"host_key_policy" mapstructure:"host_key_policy"`

	// KeyFile is an explicit private key path.
	KeyFile string `yaml:"key_file" mapstructure:"key_file"`

	// Password, when set, skips the interactive prompt. Prefer keys or
	// an agent; this exists for non-interactive runs.
	Password string `yaml:"password" mapstructure:"password"`

	// Vars are user variables, referenced from commands as $(name) or
	// %(name)s.
	Vars map[string]interface{} `yaml:"vars" mapstructure:"vars"`

	// Commands are the named command sequences invokable from the CLI.
	Commands map[string]Command `yaml:"commands" mapstructure:"commands"`
}

// Command defines a named sequence of steps.
type Command struct {
	// Description shown by the list output.
	Description string `yaml:"description" mapstructure:"description"`

	// Hosts overrides the default host list for this command.
	Hosts []string `yaml:"hosts" mapstructure:"hosts"`

	// Steps run in order; the first failing step stops the command.
	Steps []Step `yaml:"steps" mapstructure:"steps"`
}

// Step is a single action in a command. Exactly one action field must be
// set.
type Step struct {
	Run           string                 `yaml:"run" mapstructure:"run"`
	Sudo          string                 `yaml:"sudo" mapstructure:"sudo"`
	Local         string                 `yaml:"local" mapstructure:"local"`
	LocalPerHost  string                 `yaml:"local_per_host" mapstructure:"local_per_host"`
	Put           *PutStep               `yaml:"put" mapstructure:"put"`
	UploadProject bool                   `yaml:"upload_project" mapstructure:"upload_project"`
	Set           map[string]interface{} `yaml:"set" mapstructure:"set"`
	Require       *RequireStep           `yaml:"require" mapstructure:"require"`
}

// PutStep uploads a local file to the hosts.
type PutStep struct {
	Local  string `yaml:"local" mapstructure:"local"`
	Remote string `yaml:"remote" mapstructure:"remote"`
}

// RequireStep aborts the command unless a variable is set.
type RequireStep struct {
	Var        string   `yaml:"var" mapstructure:"var"`
	UsedFor    string   `yaml:"used_for" mapstructure:"used_for"`
	ProvidedBy []string `yaml:"provided_by" mapstructure:"provided_by"`
}

// DefaultConfig returns an empty configuration. Connection and dispatch
// defaults live in the environment, not here, so an absent config file
// changes nothing.
func DefaultConfig() *Config {
	return &Config{
		Vars:     make(map[string]interface{}),
		Commands: make(map[string]Command),
	}
}

// Validate checks the parts of the config that can be wrong independent of
// any host being reachable.
func (c *Config) Validate() error {
	switch c.Mode {
	case "", env.ModeFanout, env.ModeRolling:
	default:
		return errors.New(errors.ErrConfig,
			fmt.Sprintf("Unsupported fab_mode: %s", c.Mode),
			"Supported modes are: fanout, rolling")
	}

	switch c.HostKeyPolicy {
	case "", "accept", "strict":
	default:
		return errors.New(errors.ErrConfig,
			fmt.Sprintf("Unsupported host key policy: %s", c.HostKeyPolicy),
			"Supported policies are: accept, strict")
	}

	for name, cmd := range c.Commands {
		for i, step := range cmd.Steps {
			if err := step.validate(name, i); err != nil {
				return err
			}
		}
	}
	return nil
}

func (s *Step) validate(command string, index int) error {
	actions := 0
	if s.Run != "" {
		actions++
	}
	if s.Sudo != "" {
		actions++
	}
	if s.Local != "" {
		actions++
	}
	if s.LocalPerHost != "" {
		actions++
	}
	if s.Put != nil {
		actions++
	}
	if s.UploadProject {
		actions++
	}
	if len(s.Set) > 0 {
		actions++
	}
	if s.Require != nil {
		actions++
	}

	where := fmt.Sprintf("step %d of command '%s'", index+1, command)
	if actions == 0 {
		return errors.New(errors.ErrConfig,
			"No action in "+where,
			"Each step needs one of: run, sudo, local, local_per_host, put, upload_project, set, require")
	}
	if actions > 1 {
		return errors.New(errors.ErrConfig,
			"More than one action in "+where,
			"Split the step so each one does a single thing.")
	}
	if s.Put != nil && (s.Put.Local == "" || s.Put.Remote == "") {
		return errors.New(errors.ErrConfig,
			"Incomplete put in "+where,
			"A put step needs both 'local' and 'remote' paths.")
	}
	if s.Require != nil && s.Require.Var == "" {
		return errors.New(errors.ErrConfig,
			"Incomplete require in "+where,
			"A require step needs the 'var' name to check.")
	}
	return nil
}

// Apply copies the configuration into a run environment. Connection
// settings use SetRaw so a literal %(x)s in a shell template survives;
// user variables go through Set and get their %(name)s references
// expanded eagerly against what is already stored. Vars apply in sorted
// key order so eager cross-references between them are deterministic;
// references that should track later changes use $(name) instead.
func (c *Config) Apply(e *env.Env) {
	if len(c.Hosts) > 0 {
		e.SetRaw(env.KeyHosts, append([]string(nil), c.Hosts...))
	}
	if c.User != "" {
		e.SetRaw(env.KeyUser, c.User)
	}
	if c.Port != "" {
		e.SetRaw(env.KeyPort, c.Port)
	}
	if c.Mode != "" {
		e.SetRaw(env.KeyMode, c.Mode)
	}
	if c.Shell != "" {
		e.SetRaw(env.KeyShell, c.Shell)
	}
	if c.Debug {
		e.SetRaw(env.KeyDebug, true)
	}
	if c.HostKeyPolicy != "" {
		e.SetRaw(env.KeyHostKeyPolicy, c.HostKeyPolicy)
	}
	if c.KeyFile != "" {
		e.SetRaw(env.KeyKeyFile, c.KeyFile)
	}
	if c.Password != "" {
		e.SetRaw(env.KeyPassword, c.Password)
	}

	names := make([]string, 0, len(c.Vars))
	for name := range c.Vars {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		e.Set(name, c.Vars[name])
	}
}
