// Package engine runs the external tools the pipeline delegates heavy
// computation to (deduplication, clustering). Commands are built from typed
// arguments and executed directly, never through a shell, and every
// invocation yields a Result describing how the process ended.
package engine

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/grailbio/base/errors"
	"github.com/grailbio/base/log"
	"v.io/x/lib/lookpath"
)

// Command is one invocation of an external tool.
type Command struct {
	// Name is the executable. A bare name is resolved against $PATH.
	Name string
	Args []string
	// Dir is the working directory. Empty means the current directory.
	Dir string
}

// String renders the command for logs, quoting arguments that need it.
func (c Command) String() string {
	parts := make([]string, 0, len(c.Args)+1)
	parts = append(parts, c.Name)
	for _, a := range c.Args {
		if a == "" || strings.ContainsAny(a, " \t\n'\"\\$") {
			a = strconv.Quote(a)
		}
		parts = append(parts, a)
	}
	return strings.Join(parts, " ")
}

// Result describes a finished invocation.
type Result struct {
	Command Command
	// Path is the resolved executable.
	Path string
	// ExitCode is the process exit status, or -1 if the process could not be
	// started or was killed by a signal.
	ExitCode int
	// Stdout and Stderr hold the trailing output of the process.
	Stdout, Stderr string
	Duration       time.Duration
	// StartErr is set when the process could not be run at all.
	StartErr error
}

// OK reports whether the process ran and exited with status 0.
func (r Result) OK() bool { return r.StartErr == nil && r.ExitCode == 0 }

// Err converts the result into an error, or nil on success.
func (r Result) Err() error {
	switch {
	case r.StartErr != nil:
		return errors.E(r.StartErr, fmt.Sprintf("engine: run %s", r.Command.Name))
	case r.ExitCode != 0:
		msg := fmt.Sprintf("engine: %s exited with status %d", r.Command, r.ExitCode)
		if tail := strings.TrimSpace(r.Stderr); tail != "" {
			msg += ": " + tail
		}
		return errors.E(errors.Remote, msg)
	}
	return nil
}

// Runner executes commands.
type Runner interface {
	Run(ctx context.Context, cmd Command) Result
}

// RunnerFunc adapts a function to the Runner interface.
type RunnerFunc func(ctx context.Context, cmd Command) Result

// Run implements Runner.
func (f RunnerFunc) Run(ctx context.Context, cmd Command) Result { return f(ctx, cmd) }

// DefaultTailSize is the number of trailing output bytes kept per stream.
const DefaultTailSize = 8 << 10

// ExecRunner runs commands as child processes.
type ExecRunner struct {
	// Env is the child environment. Nil means the current process environment.
	Env map[string]string
	// TailSize bounds the captured stdout/stderr. Zero means DefaultTailSize.
	TailSize int
}

// Run implements Runner.
func (e ExecRunner) Run(ctx context.Context, c Command) Result {
	res := Result{Command: c, ExitCode: -1}
	env := e.Env
	if env == nil {
		env = environ()
	}
	path, err := resolve(env, c.Name)
	if err != nil {
		res.StartErr = err
		return res
	}
	res.Path = path
	size := e.TailSize
	if size <= 0 {
		size = DefaultTailSize
	}
	var (
		stdout = &tail{max: size}
		stderr = &tail{max: size}
		cmd    = exec.CommandContext(ctx, path, c.Args...)
	)
	cmd.Dir = c.Dir
	cmd.Stdout = stdout
	cmd.Stderr = stderr
	cmd.Env = flatten(env)

	log.Debug.Printf("engine: exec %s", c)
	start := time.Now()
	err = cmd.Run()
	res.Duration = time.Since(start)
	res.Stdout, res.Stderr = stdout.String(), stderr.String()
	if ctx.Err() != nil {
		res.StartErr = errors.E(errors.Canceled, ctx.Err(), c.Name)
		return res
	}
	switch err := err.(type) {
	case nil:
		res.ExitCode = 0
	case *exec.ExitError:
		res.ExitCode = err.ExitCode()
	default:
		res.StartErr = err
	}
	log.Debug.Printf("engine: %s finished in %s, status %d", c.Name, res.Duration, res.ExitCode)
	return res
}

// Run runs cmd with r and converts the outcome into an error.
func Run(ctx context.Context, r Runner, cmd Command) error {
	res := r.Run(ctx, cmd)
	if err := res.Err(); err != nil {
		return err
	}
	log.Printf("engine: %s done in %s", cmd.Name, res.Duration)
	return nil
}

// Available reports whether the named executable can be found on $PATH.
func Available(name string) bool {
	_, err := resolve(environ(), name)
	return err == nil
}

func resolve(env map[string]string, name string) (string, error) {
	if name == "" {
		return "", errors.E(errors.Invalid, "engine: empty command name")
	}
	if strings.ContainsRune(name, filepath.Separator) {
		if _, err := os.Stat(name); err != nil {
			return "", errors.E(errors.NotExist, err, name)
		}
		return name, nil
	}
	path, err := lookpath.Look(env, name)
	if err != nil {
		return "", errors.E(errors.NotExist, err, name)
	}
	return path, nil
}

func environ() map[string]string {
	env := map[string]string{}
	for _, kv := range os.Environ() {
		if i := strings.IndexByte(kv, '='); i > 0 {
			env[kv[:i]] = kv[i+1:]
		}
	}
	return env
}

func flatten(env map[string]string) []string {
	out := make([]string, 0, len(env))
	for k, v := range env {
		out = append(out, k+"="+v)
	}
	return out
}

// tail keeps the last max bytes written to it.
type tail struct {
	max int
	buf []byte
}

func (t *tail) Write(p []byte) (int, error) {
	n := len(p)
	t.buf = append(t.buf, p...)
	if over := len(t.buf) - t.max; over > 0 {
		t.buf = append(t.buf[:0], t.buf[over:]...)
	}
	return n, nil
}

func (t *tail) String() string { return string(t.buf) }
