package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/fabworks/fab/internal/env"
	"github.com/fabworks/fab/internal/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), ConfigFileName)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestLoadFullConfig(t *testing.T) {
	path := writeConfig(t, `
hosts:
  - web1.example.com
  - deploy@web2.example.com:2222
user: deploy
mode: rolling
shell: /bin/sh -c "%s"
debug: true
host_key_policy: strict
vars:
  app_dir: /srv/app
commands:
  deploy:
    description: Ship the current build
    steps:
      - local: make build
      - put:
          local: build/app
          remote: $(app_dir)/app
      - sudo: systemctl restart app
  uptime:
    steps:
      - run: uptime
`)

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, []string{"web1.example.com", "deploy@web2.example.com:2222"}, cfg.Hosts)
	assert.Equal(t, "deploy", cfg.User)
	assert.Equal(t, "rolling", cfg.Mode)
	assert.Equal(t, `/bin/sh -c "%s"`, cfg.Shell)
	assert.True(t, cfg.Debug)
	assert.Equal(t, "strict", cfg.HostKeyPolicy)
	assert.Equal(t, "/srv/app", cfg.Vars["app_dir"])

	deploy := cfg.Commands["deploy"]
	assert.Equal(t, "Ship the current build", deploy.Description)
	require.Len(t, deploy.Steps, 3)
	assert.Equal(t, "make build", deploy.Steps[0].Local)
	require.NotNil(t, deploy.Steps[1].Put)
	assert.Equal(t, "build/app", deploy.Steps[1].Put.Local)
	assert.Equal(t, "$(app_dir)/app", deploy.Steps[1].Put.Remote)
	assert.Equal(t, "systemctl restart app", deploy.Steps[2].Sudo)
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "absent.yaml"))
	require.Error(t, err)
	assert.True(t, errors.IsCode(err, errors.ErrConfig))
}

func TestValidateRejectsUnknownMode(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Mode = "broadcast"

	err := cfg.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "Unsupported fab_mode: broadcast")
}

func TestValidateRejectsUnknownHostKeyPolicy(t *testing.T) {
	cfg := DefaultConfig()
	cfg.HostKeyPolicy = "ask"

	err := cfg.Validate()
	require.Error(t, err)
	assert.True(t, errors.IsCode(err, errors.ErrConfig))
}

func TestValidateSteps(t *testing.T) {
	tests := []struct {
		name string
		step Step
		want string
	}{
		{"empty step", Step{}, "No action"},
		{"two actions", Step{Run: "a", Local: "b"}, "More than one action"},
		{"put without remote", Step{Put: &PutStep{Local: "a"}}, "Incomplete put"},
		{"require without var", Step{Require: &RequireStep{}}, "Incomplete require"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			cfg.Commands["bad"] = Command{Steps: []Step{tt.step}}

			err := cfg.Validate()
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.want)
			assert.Contains(t, err.Error(), "step 1 of command 'bad'")
		})
	}
}

func TestValidateAcceptsGoodSteps(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Commands["ok"] = Command{Steps: []Step{
		{Run: "uptime"},
		{Sudo: "reboot"},
		{Local: "make"},
		{LocalPerHost: "ping -c1 $(fab_host)"},
		{Put: &PutStep{Local: "a", Remote: "b"}},
		{UploadProject: true},
		{Set: map[string]interface{}{"k": "v"}},
		{Require: &RequireStep{Var: "k"}},
	}}

	assert.NoError(t, cfg.Validate())
}

func TestApplySeedsEnvironment(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Hosts = []string{"a", "b"}
	cfg.User = "deploy"
	cfg.Port = "2222"
	cfg.Mode = "rolling"
	cfg.Debug = true
	cfg.Vars["app_dir"] = "/srv/app"

	e := env.New()
	cfg.Apply(e)

	assert.Equal(t, []string{"a", "b"}, e.Hosts())
	assert.Equal(t, "deploy", e.GetString(env.KeyUser))
	assert.Equal(t, "2222", e.GetString(env.KeyPort))
	assert.Equal(t, "rolling", e.GetString(env.KeyMode))
	assert.True(t, e.GetBool(env.KeyDebug))
	assert.Equal(t, "/srv/app", e.GetString("app_dir"))
}

func TestApplyVarsEagerReferencesAreDeterministic(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Vars["base"] = "/srv"
	cfg.Vars["site_dir"] = "%(base)s/site"

	// Vars apply in sorted key order, so the eager reference always sees
	// the value it names regardless of map iteration order.
	for i := 0; i < 20; i++ {
		e := env.New()
		cfg.Apply(e)
		assert.Equal(t, "/srv/site", e.GetString("site_dir"))
	}
}

func TestApplyEmptyConfigKeepsDefaults(t *testing.T) {
	e := env.New()
	DefaultConfig().Apply(e)

	assert.Equal(t, env.ModeFanout, e.GetString(env.KeyMode))
	assert.Equal(t, 22, e.GetInt(env.KeyPort, 0))
	assert.Empty(t, e.Hosts())
}

func TestFindExplicitMissing(t *testing.T) {
	_, err := Find(filepath.Join(t.TempDir(), "nope.yaml"))
	require.Error(t, err)
	assert.True(t, errors.IsCode(err, errors.ErrConfig))
}

func TestFindExplicit(t *testing.T) {
	path := writeConfig(t, "hosts: []\n")
	got, err := Find(path)
	require.NoError(t, err)
	assert.Equal(t, path, got)
}
