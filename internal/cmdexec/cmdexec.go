// Package cmdexec runs the external update hook: an arbitrary program that
// refreshes the local record tree in place of the built-in fetcher.
//
// The hook contract is simple: it is invoked with the data directory as its
// working directory, receives the mirror configuration through environment
// variables, and signals failure through its exit code. Anything it prints
// is captured for the run log.
package cmdexec

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"time"
)

// Result holds the output and exit status of a hook run.
type Result struct {
	Stdout   string
	Stderr   string
	ExitCode int
	Duration time.Duration
}

// Options configures hook execution.
type Options struct {
	// WorkingDir is the directory the hook runs in
	WorkingDir string

	// Env is appended to the current process environment. Values are
	// passed through to the child only; they are never logged.
	Env map[string]string

	// MaxRetries is how many times a failed hook is re-run
	MaxRetries int

	// RetryDelay is the pause between attempts
	RetryDelay time.Duration

	// StdoutWriter and StderrWriter, when set, receive the hook's output
	// in addition to the captured buffers
	StdoutWriter io.Writer
	StderrWriter io.Writer
}

// Option configures a hook invocation.
type Option func(*Options)

// WithWorkingDir sets the hook's working directory.
func WithWorkingDir(dir string) Option {
	return func(o *Options) {
		o.WorkingDir = dir
	}
}

// WithEnv adds environment variables for the hook.
func WithEnv(env map[string]string) Option {
	return func(o *Options) {
		if o.Env == nil {
			o.Env = make(map[string]string)
		}
		for k, v := range env {
			o.Env[k] = v
		}
	}
}

// WithRetry re-runs a failed hook up to maxRetries times.
func WithRetry(maxRetries int, delay time.Duration) Option {
	return func(o *Options) {
		o.MaxRetries = maxRetries
		o.RetryDelay = delay
	}
}

// WithStdoutWriter mirrors the hook's stdout to an extra writer.
func WithStdoutWriter(w io.Writer) Option {
	return func(o *Options) {
		o.StdoutWriter = w
	}
}

// WithStderrWriter mirrors the hook's stderr to an extra writer.
func WithStderrWriter(w io.Writer) Option {
	return func(o *Options) {
		o.StderrWriter = w
	}
}

// Hook is a runnable external command.
type Hook struct {
	program string
	args    []string
}

// New creates a hook for the given program and arguments.
func New(program string, args ...string) *Hook {
	return &Hook{
		program: program,
		args:    args,
	}
}

// Run executes the hook, retrying on failure when configured. The last
// attempt's result is returned alongside any error.
func (h *Hook) Run(ctx context.Context, opts ...Option) (*Result, error) {
	options := &Options{
		RetryDelay: time.Second,
	}
	for _, opt := range opts {
		opt(options)
	}

	attempts := options.MaxRetries + 1
	var result *Result
	var err error

	for attempt := 1; attempt <= attempts; attempt++ {
		result, err = h.runOnce(ctx, options)
		if err == nil {
			return result, nil
		}
		if attempt == attempts {
			break
		}

		select {
		case <-ctx.Done():
			return result, fmt.Errorf("context cancelled during retry: %w", ctx.Err())
		case <-time.After(options.RetryDelay):
		}
	}

	return result, err
}

// runOnce executes a single attempt.
func (h *Hook) runOnce(ctx context.Context, options *Options) (*Result, error) {
	cmd := exec.CommandContext(ctx, h.program, h.args...)

	if options.WorkingDir != "" {
		cmd.Dir = options.WorkingDir
	}
	if len(options.Env) > 0 {
		cmd.Env = os.Environ()
		for k, v := range options.Env {
			cmd.Env = append(cmd.Env, k+"="+v)
		}
	}

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	if options.StdoutWriter != nil {
		cmd.Stdout = io.MultiWriter(&stdout, options.StdoutWriter)
	}
	if options.StderrWriter != nil {
		cmd.Stderr = io.MultiWriter(&stderr, options.StderrWriter)
	}

	start := time.Now()
	err := cmd.Run()

	result := &Result{
		Stdout:   stdout.String(),
		Stderr:   stderr.String(),
		Duration: time.Since(start),
	}

	var exitErr *exec.ExitError
	switch {
	case err == nil:
		result.ExitCode = 0
	case errors.As(err, &exitErr):
		result.ExitCode = exitErr.ExitCode()
	default:
		result.ExitCode = -1
	}

	if err != nil {
		return result, fmt.Errorf("hook %s failed: %w", h.program, err)
	}
	return result, nil
}
