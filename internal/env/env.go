// Package env implements the run environment: a mapping of variable names to
// values with two flavors of template substitution. Eager references of the
// form %(name)s are expanded once, when a value is stored. Lazy references of
// the form $(name) are expanded every time a string is resolved, recursively,
// so values may be defined in terms of variables that change later in the run
// (such as the active host).
//
// The environment is an explicit value threaded through the run, never a
// process global. Each dispatched host receives its own shallow copy with
// the active host name bound, so host-level goroutines never share a
// mutable map.
package env

import (
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/fabworks/fab/internal/errors"
)

// Well-known variable names.
const (
	KeyHosts         = "fab_hosts"
	KeyMode          = "fab_mode"
	KeyPort          = "fab_port"
	KeyUser          = "fab_user"
	KeyPassword      = "fab_password"
	KeyKeyFile       = "fab_key_filename"
	KeyHostKeyPolicy = "fab_new_host_key"
	KeyShell         = "fab_shell"
	KeyDebug         = "fab_debug"
	KeyTimestamp     = "fab_timestamp"
	KeyCurCommand    = "fab_cur_command"
	KeyHost          = "fab_host"
	KeyVersion       = "fab_version"
)

// Dispatch modes stored under KeyMode.
const (
	ModeFanout  = "fanout"
	ModeRolling = "rolling"
)

// Version is the tool version seeded into new environments.
var Version = "0.1.0"

var (
	eagerToken = regexp.MustCompile(`%\((\w+)\)s`)
	lazyToken  = regexp.MustCompile(`\$\((\w+)\)`)
)

// Env is a mutable variable store for one run.
type Env struct {
	vars map[string]interface{}
}

// New returns an environment seeded with the standard defaults.
func New() *Env {
	e := &Env{vars: make(map[string]interface{})}
	e.vars[KeyVersion] = Version
	e.vars[KeyMode] = ModeFanout
	e.vars[KeyPort] = 22
	e.vars[KeyHostKeyPolicy] = "accept"
	e.vars[KeyShell] = `/bin/bash -l -c "%s"`
	e.vars[KeyDebug] = false
	e.vars[KeyTimestamp] = time.Now().Format("2006-01-02_15-04-05")
	return e
}

// Set stores a value under key. String values are eagerly expanded against
// the current environment before storage: each %(name)s token is replaced
// with the string form of name's current value, in a single pass. Tokens
// naming absent variables are left verbatim. A later change to a referenced
// variable does not retroactively change an already-set value.
func (e *Env) Set(key string, value interface{}) {
	if s, ok := value.(string); ok {
		e.vars[key] = e.expandEager(s)
		return
	}
	e.vars[key] = value
}

// SetRaw stores a value without any expansion. Used for values that must
// never be interpreted as templates, such as passwords and host names.
func (e *Env) SetRaw(key string, value interface{}) {
	e.vars[key] = value
}

// Get returns the stored value and whether it was present. It never fails;
// absence is reported through the second return.
func (e *Env) Get(key string) (interface{}, bool) {
	v, ok := e.vars[key]
	return v, ok
}

// GetString returns the string form of the stored value, or "" when absent.
func (e *Env) GetString(key string) string {
	v, ok := e.vars[key]
	if !ok {
		return ""
	}
	return stringify(v)
}

// GetInt returns the value as an int, or def when absent or not numeric.
func (e *Env) GetInt(key string, def int) int {
	v, ok := e.vars[key]
	if !ok {
		return def
	}
	switch n := v.(type) {
	case int:
		return n
	case int64:
		return int(n)
	case float64:
		return int(n)
	case string:
		var parsed int
		if _, err := fmt.Sscanf(n, "%d", &parsed); err == nil {
			return parsed
		}
	}
	return def
}

// GetBool returns the value as a bool. Strings "true", "1", and "yes" count
// as true so the flag can be set from command arguments.
func (e *Env) GetBool(key string) bool {
	v, ok := e.vars[key]
	if !ok {
		return false
	}
	switch b := v.(type) {
	case bool:
		return b
	case string:
		switch strings.ToLower(b) {
		case "true", "1", "yes":
			return true
		}
	}
	return false
}

// Hosts returns the configured target host list, normalizing the slice types
// that YAML decoding and direct Set calls produce.
func (e *Env) Hosts() []string {
	v, ok := e.vars[KeyHosts]
	if !ok {
		return nil
	}
	switch hosts := v.(type) {
	case []string:
		return hosts
	case []interface{}:
		out := make([]string, 0, len(hosts))
		for _, h := range hosts {
			out = append(out, stringify(h))
		}
		return out
	case string:
		// Semicolon-separated form from command arguments, where commas
		// already delimit key=value pairs.
		var out []string
		for _, h := range strings.Split(hosts, ";") {
			if h = strings.TrimSpace(h); h != "" {
				out = append(out, h)
			}
		}
		return out
	}
	return nil
}

// Require checks that key is present. On absence it returns a CONFIG error
// naming the currently executing command, the purpose (when given), and the
// commands that would provide the variable. The error is a precondition
// failure and aborts the whole run.
func (e *Env) Require(key, usedFor string, providedBy []string) error {
	if _, ok := e.vars[key]; ok {
		return nil
	}

	cur := e.GetString(KeyCurCommand)
	if cur == "" {
		cur = "(unknown)"
	}

	var suggestion strings.Builder
	if usedFor != "" {
		suggestion.WriteString(fmt.Sprintf("This variable is used for %s", usedFor))
	}
	if len(providedBy) > 0 {
		if suggestion.Len() > 0 {
			suggestion.WriteString("\n  ")
		}
		suggestion.WriteString("Get the variable by running one of these commands:\n    ")
		suggestion.WriteString(strings.Join(providedBy, "\n    "))
	}

	return errors.New(errors.ErrConfig,
		fmt.Sprintf("The '%s' command requires a '%s' variable", cur, key),
		suggestion.String())
}

// Resolve expands text against the environment: one eager pass, then every
// $(name) token is replaced with the recursively resolved value of name.
// Tokens naming absent variables are left verbatim. Self-referential
// definitions are detected and reported as a distinct circular-reference
// configuration error instead of recursing without bound.
func (e *Env) Resolve(text string) (string, error) {
	return e.resolve(text, make(map[string]bool))
}

func (e *Env) resolve(text string, resolving map[string]bool) (string, error) {
	out := e.expandEager(text)

	var b strings.Builder
	for {
		loc := lazyToken.FindStringSubmatchIndex(out)
		if loc == nil {
			b.WriteString(out)
			break
		}

		b.WriteString(out[:loc[0]])
		name := out[loc[2]:loc[3]]

		val, ok := e.vars[name]
		if !ok {
			// Unmatched names stay verbatim.
			b.WriteString(out[loc[0]:loc[1]])
		} else {
			if resolving[name] {
				return "", errors.New(errors.ErrConfig,
					fmt.Sprintf("Circular reference while resolving '$(%s)'", name),
					"Check the variable definitions in your config for a reference cycle.")
			}
			resolving[name] = true
			resolved, err := e.resolve(stringify(val), resolving)
			delete(resolving, name)
			if err != nil {
				return "", err
			}
			b.WriteString(resolved)
		}

		out = out[loc[1]:]
	}

	return b.String(), nil
}

// expandEager substitutes %(name)s tokens with the current string form of
// each named variable. Absent names are left verbatim.
func (e *Env) expandEager(s string) string {
	return eagerToken.ReplaceAllStringFunc(s, func(tok string) string {
		name := tok[2 : len(tok)-2]
		if v, ok := e.vars[name]; ok {
			return stringify(v)
		}
		return tok
	})
}

// ForHost returns a shallow copy of the environment with the active host
// bound under fab_host. The copy is private to one dispatched host, so
// host-level goroutines never contend on a shared map.
func (e *Env) ForHost(host string) *Env {
	clone := &Env{vars: make(map[string]interface{}, len(e.vars)+1)}
	for k, v := range e.vars {
		clone.vars[k] = v
	}
	clone.vars[KeyHost] = host
	return clone
}

func stringify(v interface{}) string {
	if s, ok := v.(string); ok {
		return s
	}
	return fmt.Sprint(v)
}
