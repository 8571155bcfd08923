package ops

import (
	"bytes"
	"io"
	"os"
	"strings"
	"sync"
	"testing"

	"github.com/fabworks/fab/internal/env"
	"github.com/fabworks/fab/internal/errors"
	"github.com/fabworks/fab/internal/logger"
	"github.com/fabworks/fab/internal/pool"
	"github.com/fabworks/fab/pkg/sshutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// closeBuffer is an in-memory WriteCloser that records whether it was
// closed.
type closeBuffer struct {
	bytes.Buffer
	closed bool
}

func (b *closeBuffer) Close() error {
	b.closed = true
	return nil
}

type fakeProc struct {
	stdin  closeBuffer
	stdout io.Reader
	stderr io.Reader
	exit   int
}

func (p *fakeProc) Stdin() io.WriteCloser { return &p.stdin }
func (p *fakeProc) Stdout() io.Reader     { return p.stdout }
func (p *fakeProc) Stderr() io.Reader     { return p.stderr }
func (p *fakeProc) Wait() (int, error)    { return p.exit, nil }

// fakeRemote records started commands and serves canned output.
type fakeRemote struct {
	mu       sync.Mutex
	commands []string
	stdout   string
	stderr   string
	exit     int
	lastProc *fakeProc
	transfer *fakeTransfer
}

func (f *fakeRemote) Start(cmd string) (sshutil.Process, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.commands = append(f.commands, cmd)
	p := &fakeProc{
		stdout: strings.NewReader(f.stdout),
		stderr: strings.NewReader(f.stderr),
		exit:   f.exit,
	}
	f.lastProc = p
	return p, nil
}

func (f *fakeRemote) OpenTransfer() (sshutil.FileTransfer, error) {
	if f.transfer == nil {
		f.transfer = &fakeTransfer{files: make(map[string]*closeBuffer)}
	}
	return f.transfer, nil
}

func (f *fakeRemote) Close() error { return nil }

type fakeTransfer struct {
	files map[string]*closeBuffer
}

func (t *fakeTransfer) Create(path string) (io.WriteCloser, error) {
	b := &closeBuffer{}
	t.files[path] = b
	return b, nil
}

func (t *fakeTransfer) Close() error { return nil }

// newTestContext builds a context over fake connections, one per host,
// with the password preset so no prompt fires.
func newTestContext(hosts []string, remotes map[string]*fakeRemote, out io.Writer) (*Context, *env.Env) {
	e := env.New()
	e.SetRaw(env.KeyHosts, hosts)
	e.SetRaw(env.KeyPassword, "secret")
	e.SetRaw(env.KeyMode, env.ModeRolling)

	dial := func(host string, opts sshutil.Options) (sshutil.RemoteClient, error) {
		return remotes[host], nil
	}
	p := pool.New(dial, nil, logger.Noop())
	return NewContext(e, p, logger.Noop(), out), e
}

func TestRunWrapsCommandInShellTemplate(t *testing.T) {
	remote := &fakeRemote{}
	ctx, _ := newTestContext([]string{"web1"}, map[string]*fakeRemote{"web1": remote}, &bytes.Buffer{})

	require.NoError(t, ctx.Run(`echo "hello"`))

	require.Len(t, remote.commands, 1)
	assert.Equal(t, `/bin/bash -l -c "echo \"hello\""`, remote.commands[0])
}

func TestRunResolvesPerHost(t *testing.T) {
	remotes := map[string]*fakeRemote{"web1": {}, "web2": {}}
	ctx, e := newTestContext([]string{"web1", "web2"}, remotes, &bytes.Buffer{})
	e.SetRaw("log", "/var/log/$(fab_host).log")

	require.NoError(t, ctx.Run("tail $(log)"))

	assert.Equal(t, `/bin/bash -l -c "tail /var/log/web1.log"`, remotes["web1"].commands[0])
	assert.Equal(t, `/bin/bash -l -c "tail /var/log/web2.log"`, remotes["web2"].commands[0])
}

func TestSudoPrefixesAndSendsPassword(t *testing.T) {
	remote := &fakeRemote{}
	ctx, _ := newTestContext([]string{"web1"}, map[string]*fakeRemote{"web1": remote}, &bytes.Buffer{})

	require.NoError(t, ctx.Sudo("systemctl restart app"))

	require.Len(t, remote.commands, 1)
	assert.Equal(t, `/bin/bash -l -c "sudo -S systemctl restart app"`, remote.commands[0])

	proc := remote.lastProc
	assert.Equal(t, "secret\n", proc.stdin.String())
	assert.True(t, proc.stdin.closed)
}

func TestRunStdinClosedWithoutPassword(t *testing.T) {
	remote := &fakeRemote{}
	ctx, _ := newTestContext([]string{"web1"}, map[string]*fakeRemote{"web1": remote}, &bytes.Buffer{})

	require.NoError(t, ctx.Run("uptime"))

	proc := remote.lastProc
	assert.Empty(t, proc.stdin.String())
	assert.True(t, proc.stdin.closed)
}

func TestRunStreamsPrefixedOutput(t *testing.T) {
	remote := &fakeRemote{stdout: "hello\nworld\n", stderr: "oops\n"}
	var out bytes.Buffer
	ctx, _ := newTestContext([]string{"web1"}, map[string]*fakeRemote{"web1": remote}, &out)

	require.NoError(t, ctx.Run("greet"))

	got := out.String()
	assert.Contains(t, got, "out: hello")
	assert.Contains(t, got, "out: world")
	assert.Contains(t, got, "err: oops")
	assert.Contains(t, got, "web1")
}

func TestRunEchoesCommand(t *testing.T) {
	remote := &fakeRemote{}
	var out bytes.Buffer
	ctx, _ := newTestContext([]string{"web1"}, map[string]*fakeRemote{"web1": remote}, &out)

	require.NoError(t, ctx.Run("uptime"))
	assert.Contains(t, out.String(), "run: uptime")
}

func TestDebugEchoesWrappedCommand(t *testing.T) {
	remote := &fakeRemote{}
	var out bytes.Buffer
	ctx, e := newTestContext([]string{"web1"}, map[string]*fakeRemote{"web1": remote}, &out)
	e.SetRaw(env.KeyDebug, true)

	require.NoError(t, ctx.Run("uptime"))
	assert.Contains(t, out.String(), `run: /bin/bash -l -c "uptime"`)
}

func TestRunStreamsOverlongLines(t *testing.T) {
	long := strings.Repeat("a", maxLineSize+10)
	remote := &fakeRemote{stdout: long + "\nAFTER\n"}
	var out bytes.Buffer
	ctx, _ := newTestContext([]string{"web1"}, map[string]*fakeRemote{"web1": remote}, &out)

	require.NoError(t, ctx.Run("dump"))

	// The oversized line arrives in segments, and output after it still
	// reaches the console.
	got := out.String()
	assert.Contains(t, got, "out: AFTER")
	assert.Equal(t, maxLineSize+10, strings.Count(got, "a"))
}

func TestRunReconnectsWhenHostListChanges(t *testing.T) {
	remotes := map[string]*fakeRemote{"h1": {}, "h2": {}}
	var mu sync.Mutex
	var dialed []string
	dial := func(host string, opts sshutil.Options) (sshutil.RemoteClient, error) {
		mu.Lock()
		defer mu.Unlock()
		dialed = append(dialed, host)
		return remotes[host], nil
	}

	e := env.New()
	e.SetRaw(env.KeyHosts, []string{"h1"})
	e.SetRaw(env.KeyPassword, "secret")
	e.SetRaw(env.KeyMode, env.ModeRolling)
	p := pool.New(dial, nil, logger.Noop())
	ctx := NewContext(e, p, logger.Noop(), &bytes.Buffer{})

	require.NoError(t, ctx.Run("echo one"))
	e.SetRaw(env.KeyHosts, []string{"h2"})
	require.NoError(t, ctx.Run("echo two"))

	// The pool is redialed for the new host list; neither command leaks
	// onto the other's hosts.
	assert.Equal(t, []string{"h1", "h2"}, dialed)
	assert.Equal(t, []string{`/bin/bash -l -c "echo one"`}, remotes["h1"].commands)
	assert.Equal(t, []string{`/bin/bash -l -c "echo two"`}, remotes["h2"].commands)
}

func TestRunNonZeroExitIsNotAnError(t *testing.T) {
	remote := &fakeRemote{exit: 1}
	ctx, _ := newTestContext([]string{"web1"}, map[string]*fakeRemote{"web1": remote}, &bytes.Buffer{})

	require.NoError(t, ctx.Run("false"))
}

func TestPutUploadsToEveryHost(t *testing.T) {
	dir := t.TempDir()
	local := dir + "/app.conf"
	require.NoError(t, writeFile(local, "key=value\n"))

	remotes := map[string]*fakeRemote{"web1": {}, "web2": {}}
	var out bytes.Buffer
	ctx, _ := newTestContext([]string{"web1", "web2"}, remotes, &out)

	require.NoError(t, ctx.Put(local, "/etc/app/app.conf"))

	for host, remote := range remotes {
		require.NotNil(t, remote.transfer, host)
		f := remote.transfer.files["/etc/app/app.conf"]
		require.NotNil(t, f, host)
		assert.Equal(t, "key=value\n", f.String())
		assert.True(t, f.closed)
	}
	assert.Contains(t, out.String(), "put: "+local+" -> /etc/app/app.conf")
}

func TestPutMissingLocalFile(t *testing.T) {
	remote := &fakeRemote{}
	ctx, _ := newTestContext([]string{"web1"}, map[string]*fakeRemote{"web1": remote}, &bytes.Buffer{})

	err := ctx.Put(t.TempDir()+"/nope.txt", "/tmp/nope.txt")
	require.Error(t, err)
	assert.True(t, errors.IsCode(err, errors.ErrTransfer))
}

func TestLocalStreamsOutput(t *testing.T) {
	var out bytes.Buffer
	ctx, _ := newTestContext(nil, nil, &out)

	require.NoError(t, ctx.Local("echo hi"))

	got := out.String()
	assert.Contains(t, got, "local: echo hi")
	assert.Contains(t, got, "out: hi")
}

func TestLocalFailureIsAnError(t *testing.T) {
	ctx, _ := newTestContext(nil, nil, &bytes.Buffer{})

	err := ctx.Local("exit 3")
	require.Error(t, err)
	assert.True(t, errors.IsCode(err, errors.ErrExec))
}

func TestLocalPerHostRequiresHosts(t *testing.T) {
	ctx, _ := newTestContext(nil, nil, &bytes.Buffer{})

	err := ctx.LocalPerHost("echo $(fab_host)")
	require.Error(t, err)
	assert.True(t, errors.IsCode(err, errors.ErrConfig))
}

func TestLocalPerHostBindsEachHost(t *testing.T) {
	var out bytes.Buffer
	ctx, _ := newTestContext([]string{"web1", "web2"}, nil, &out)

	require.NoError(t, ctx.LocalPerHost("echo ping $(fab_host)"))

	got := out.String()
	assert.Contains(t, got, "out: ping web1")
	assert.Contains(t, got, "out: ping web2")
}

func TestRollingTwoHostScenario(t *testing.T) {
	remotes := map[string]*fakeRemote{
		"h1": {stdout: "hi\n"},
		"h2": {stdout: "hi\n"},
	}
	var out bytes.Buffer
	ctx, _ := newTestContext([]string{"h1", "h2"}, remotes, &out)

	require.NoError(t, ctx.Run("echo hi"))

	for _, remote := range remotes {
		require.Len(t, remote.commands, 1)
		assert.Equal(t, `/bin/bash -l -c "echo hi"`, remote.commands[0])
	}

	// Under rolling, h1's output is fully drained before h2 starts.
	got := out.String()
	first := strings.Index(got, "h1")
	second := strings.Index(got, "h2")
	require.GreaterOrEqual(t, first, 0)
	require.GreaterOrEqual(t, second, 0)
	assert.Less(t, first, second)
	assert.Contains(t, got, "out: hi")
}

func writeFile(path, content string) error {
	return os.WriteFile(path, []byte(content), 0o644)
}
