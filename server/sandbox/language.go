// Package sandbox knows how to build and launch bot programs for each
// supported language, and owns the resulting OS processes.
package sandbox

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"sort"
	"strings"
)

type Language string

const (
	Python Language = "python"
	Rust   Language = "rust"
	Go     Language = "go"
)

// Languages is the closed set of supported languages.
var Languages = []Language{Python, Rust, Go}

var ErrUnsupportedLanguage = errors.New("unsupported language")

type UnsupportedLanguageError struct {
	Name string
}

func (e *UnsupportedLanguageError) Error() string {
	return fmt.Sprintf("unsupported language %q", e.Name)
}

func (e *UnsupportedLanguageError) Is(target error) bool { return target == ErrUnsupportedLanguage }

// BuildResult reports whether a bot directory was prepared successfully.
// Log is the path of the captured build output.
type BuildResult struct {
	Success bool
	Log     string
}

// RunConfig describes one launch of a bot's declared entry point.
type RunConfig struct {
	Dir     string // unpacked bot directory, used as working directory
	Command string // shell command from the manifest
	Limits  Limits
}

// Limits are per-process quotas applied through the shell before exec.
// Zero means unlimited.
type Limits struct {
	CPUSeconds int
	MemoryMB   int
}

type Adapter interface {
	Language() Language
	Build(ctx context.Context, dir string) (BuildResult, error)
	// Run spawns the bot. configure is called on the command before it is
	// started so callers can wire stderr or extend the environment.
	Run(ctx context.Context, cfg RunConfig, configure func(*exec.Cmd)) (*Process, error)
}

var registry = func() map[Language]Adapter {
	m := make(map[Language]Adapter, len(Languages))
	for _, l := range Languages {
		m[l] = newAdapter(l)
	}
	return m
}()

func newAdapter(l Language) Adapter {
	switch l {
	case Python:
		return &adapter{
			lang: l,
			env:  []string{"PYTHONUNBUFFERED=1", "PYTHONPATH=deps"},
			steps: func(dir string) [][]string {
				var s [][]string
				if fileExists(filepath.Join(dir, "requirements.txt")) {
					s = append(s, []string{"python3", "-m", "pip", "install", "-q", "-r", "requirements.txt", "--target", "deps"})
				}
				return append(s, []string{"python3", "-m", "compileall", "-q", "."})
			},
		}
	case Rust:
		return &adapter{
			lang: l,
			steps: func(string) [][]string {
				return [][]string{{"cargo", "build", "--release", "--offline"}}
			},
		}
	case Go:
		return &adapter{
			lang: l,
			steps: func(string) [][]string {
				return [][]string{{"go", "build", "-o", "bot", "."}}
			},
		}
	}
	panic(fmt.Sprintf("sandbox: language %q has no adapter", l))
}

// Lookup resolves a manifest language name.
func Lookup(name string) (Adapter, error) {
	if a, ok := registry[Language(name)]; ok {
		return a, nil
	}
	return nil, &UnsupportedLanguageError{Name: name}
}

// Names lists the registered languages in sorted order.
func Names() []string {
	out := make([]string, 0, len(registry))
	for l := range registry {
		out = append(out, string(l))
	}
	sort.Strings(out)
	return out
}

type adapter struct {
	lang  Language
	env   []string
	steps func(dir string) [][]string
}

func (a *adapter) Language() Language { return a.lang }

// Build runs the language's preparation steps in dir, writing their combined
// output to dir/build.log. A step that exits non-zero is a failed build; a
// step that cannot be started at all is an error.
func (a *adapter) Build(ctx context.Context, dir string) (BuildResult, error) {
	logPath := filepath.Join(dir, "build.log")
	f, err := os.Create(logPath)
	if err != nil {
		return BuildResult{}, fmt.Errorf("create build log: %w", err)
	}
	defer f.Close()

	for _, argv := range a.steps(dir) {
		fmt.Fprintf(f, "$ %s\n", strings.Join(argv, " "))
		cmd := exec.CommandContext(ctx, argv[0], argv[1:]...)
		cmd.Dir = dir
		cmd.Env = append(os.Environ(), a.env...)
		cmd.Stdout = f
		cmd.Stderr = f
		if err := cmd.Run(); err != nil {
			var exitErr *exec.ExitError
			if errors.As(err, &exitErr) {
				fmt.Fprintf(f, "build failed: %v\n", err)
				return BuildResult{Success: false, Log: logPath}, nil
			}
			return BuildResult{Log: logPath}, fmt.Errorf("%s build: %w", a.lang, err)
		}
	}
	return BuildResult{Success: true, Log: logPath}, nil
}

func (a *adapter) Run(ctx context.Context, cfg RunConfig, configure func(*exec.Cmd)) (*Process, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	cmd := exec.Command("sh", "-c", cfg.Limits.wrap(cfg.Command))
	cmd.Dir = cfg.Dir
	cmd.Env = append(os.Environ(), a.env...)
	if configure != nil {
		configure(cmd)
	}
	p, err := Start(cmd)
	if err != nil {
		return nil, fmt.Errorf("%s run: %w", a.lang, err)
	}
	return p, nil
}

func (l Limits) wrap(command string) string {
	prefix := ""
	if l.CPUSeconds > 0 {
		prefix += fmt.Sprintf("ulimit -S -t %d; ", l.CPUSeconds)
	}
	if l.MemoryMB > 0 {
		prefix += fmt.Sprintf("ulimit -v %d; ", l.MemoryMB*1024)
	}
	if prefix == "" {
		return command
	}
	return prefix + command
}

func fileExists(p string) bool {
	st, err := os.Stat(p)
	return err == nil && !st.IsDir()
}
