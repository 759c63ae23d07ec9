package sandbox

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"strings"
	"sync"
	"sync/atomic"
	"time"
)

var (
	ErrReadTimeout   = errors.New("read timed out")
	ErrExited        = errors.New("process exited")
	ErrResourceLimit = errors.New("process exceeded resource limit")
)

const defaultWriteTimeout = 5 * time.Second

// Process is a running bot speaking a line protocol over stdin/stdout. It is
// not safe for concurrent use except for Kill.
type Process struct {
	cmd    *exec.Cmd
	stdin  *os.File
	stdout io.ReadCloser

	WriteTimeout time.Duration

	lines  chan string
	closed chan struct{} // closed by Kill
	exited chan struct{} // closed once the process has been reaped

	killOnce sync.Once
	killed   atomic.Bool
	waitErr  error
}

// Start launches cmd in its own process group with stdin and stdout piped.
// Stderr and the environment are left as configured on cmd.
func Start(cmd *exec.Cmd) (*Process, error) {
	pr, pw, err := os.Pipe()
	if err != nil {
		return nil, fmt.Errorf("create stdin pipe: %w", err)
	}
	cmd.Stdin = pr
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		pr.Close()
		pw.Close()
		return nil, fmt.Errorf("create stdout pipe: %w", err)
	}
	setProcessGroup(cmd)

	if err := cmd.Start(); err != nil {
		pr.Close()
		pw.Close()
		stdout.Close()
		return nil, fmt.Errorf("start: %w", err)
	}
	pr.Close()

	p := &Process{
		cmd:          cmd,
		stdin:        pw,
		stdout:       stdout,
		WriteTimeout: defaultWriteTimeout,
		lines:        make(chan string),
		closed:       make(chan struct{}),
		exited:       make(chan struct{}),
	}
	go p.pump()
	return p, nil
}

func (p *Process) Pid() int { return p.cmd.Process.Pid }

// pump is the only reader of stdout. When the stream ends it reaps the
// process so the exit status is available to readers.
func (p *Process) pump() {
	r := bufio.NewReader(p.stdout)
	for {
		line, err := r.ReadString('\n')
		if line != "" {
			select {
			case p.lines <- strings.TrimRight(line, "\r\n"):
			case <-p.closed:
			}
		}
		if err != nil {
			break
		}
	}
	p.waitErr = p.cmd.Wait()
	close(p.lines)
	close(p.exited)
}

// WriteLine sends one newline-terminated message.
func (p *Process) WriteLine(msg string) error {
	if p.WriteTimeout > 0 {
		_ = p.stdin.SetWriteDeadline(time.Now().Add(p.WriteTimeout))
	}
	if _, err := io.WriteString(p.stdin, msg+"\n"); err != nil {
		return fmt.Errorf("write: %w", err)
	}
	return nil
}

// ReadLine waits up to timeout for the next line of output.
func (p *Process) ReadLine(ctx context.Context, timeout time.Duration) (string, error) {
	t := time.NewTimer(timeout)
	defer t.Stop()
	select {
	case line, ok := <-p.lines:
		if !ok {
			return "", p.exitError()
		}
		return line, nil
	case <-t.C:
		return "", ErrReadTimeout
	case <-ctx.Done():
		return "", ctx.Err()
	}
}

func (p *Process) exitError() error {
	if !p.killed.Load() && limitExceeded(p.cmd.ProcessState) {
		return fmt.Errorf("%w: %v", ErrResourceLimit, p.waitErr)
	}
	if p.waitErr != nil {
		return fmt.Errorf("%w: %v", ErrExited, p.waitErr)
	}
	return ErrExited
}

// Kill force-terminates the whole process group and waits for the process to
// be reaped. Only the first call has any effect.
func (p *Process) Kill() {
	p.killOnce.Do(func() {
		select {
		case <-p.exited:
		default:
			p.killed.Store(true)
		}
		close(p.closed)
		killProcessGroup(p.cmd)
		p.stdin.Close()
		p.stdout.Close()
		<-p.exited
	})
}

// Done is closed once the process has exited and been reaped.
func (p *Process) Done() <-chan struct{} { return p.exited }
