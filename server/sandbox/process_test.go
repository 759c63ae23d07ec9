//go:build unix

package sandbox

import (
	"context"
	"errors"
	"os"
	"os/exec"
	"path/filepath"
	"syscall"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func startShell(t *testing.T, script string) *Process {
	t.Helper()
	p, err := Start(exec.Command("sh", "-c", script))
	require.NoError(t, err)
	t.Cleanup(p.Kill)
	return p
}

func TestProcessEcho(t *testing.T) {
	p := startShell(t, `while read l; do echo "got $l"; done`)
	ctx := context.Background()
	for _, msg := range []string{"P 0", "C As Kd"} {
		require.NoError(t, p.WriteLine(msg))
		line, err := p.ReadLine(ctx, 2*time.Second)
		require.NoError(t, err)
		assert.Equal(t, "got "+msg, line)
	}
}

func TestReadLineTimeout(t *testing.T) {
	p := startShell(t, "sleep 30")
	_, err := p.ReadLine(context.Background(), 50*time.Millisecond)
	assert.ErrorIs(t, err, ErrReadTimeout)
}

func TestReadLineContextCancel(t *testing.T) {
	p := startShell(t, "sleep 30")
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := p.ReadLine(ctx, time.Second)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestReadAfterExit(t *testing.T) {
	p := startShell(t, "echo hi")
	line, err := p.ReadLine(context.Background(), 2*time.Second)
	require.NoError(t, err)
	assert.Equal(t, "hi", line)

	_, err = p.ReadLine(context.Background(), 2*time.Second)
	assert.ErrorIs(t, err, ErrExited)
	assert.False(t, errors.Is(err, ErrResourceLimit))
}

func TestWriteAfterExitFails(t *testing.T) {
	p := startShell(t, "exit 0")
	<-p.Done()
	var err error
	// the first write may land in the pipe buffer before EPIPE is observed
	for i := 0; i < 3 && err == nil; i++ {
		err = p.WriteLine("E")
	}
	assert.Error(t, err)
}

func TestKillIsIdempotentAndReapsGroup(t *testing.T) {
	marker := filepath.Join(t.TempDir(), "late")
	p := startShell(t, `(sleep 0.3; echo late > `+marker+`) & echo ready; wait`)
	line, err := p.ReadLine(context.Background(), 2*time.Second)
	require.NoError(t, err)
	require.Equal(t, "ready", line)

	pid := p.Pid()
	p.Kill()
	p.Kill()

	select {
	case <-p.Done():
	default:
		t.Fatal("process not reaped after Kill")
	}
	assert.ErrorIs(t, syscall.Kill(pid, 0), syscall.ESRCH)

	time.Sleep(600 * time.Millisecond)
	_, statErr := os.Stat(marker)
	assert.True(t, os.IsNotExist(statErr), "background child survived the group kill")
}

func TestAdapterRunSetsEnvironment(t *testing.T) {
	a, err := Lookup("python")
	require.NoError(t, err)
	dir := t.TempDir()

	var configured bool
	p, err := a.Run(context.Background(), RunConfig{Dir: dir, Command: `echo "$PYTHONUNBUFFERED $PYTHONPATH $(pwd)"`},
		func(cmd *exec.Cmd) { configured = true })
	require.NoError(t, err)
	defer p.Kill()
	require.True(t, configured)

	line, err := p.ReadLine(context.Background(), 2*time.Second)
	require.NoError(t, err)
	resolved, _ := filepath.EvalSymlinks(dir)
	assert.Contains(t, []string{"1 deps " + dir, "1 deps " + resolved}, line)
}

func TestRunHonoursCancelledContext(t *testing.T) {
	a, err := Lookup("go")
	require.NoError(t, err)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = a.Run(ctx, RunConfig{Dir: t.TempDir(), Command: "true"}, nil)
	assert.ErrorIs(t, err, context.Canceled)
}
