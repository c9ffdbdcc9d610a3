/*
Author: KleaSCM
Email: KleaSCM@gmail.com
File: client.go
Description: ADB client used by every part of the logcat pipeline. Runs bounded one-shot
invocations (devices, getprop, ps) under a timeout and spawns long-lived streaming children
(logcat) with stdout piped and stderr discarded. All invocation failures surface as ToolError.
*/

package adb

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os/exec"
	"strings"
	"time"
)

const (
	// DefaultPath is the tool name looked up on PATH when no explicit path is configured
	DefaultPath = "adb"

	// DefaultTimeout bounds one-shot invocations
	DefaultTimeout = 10 * time.Second

	// waitDelay bounds how long Wait keeps pipes open after the child was killed
	waitDelay = 2 * time.Second
)

// Runner runs a bounded one-shot invocation and returns its standard output
type Runner interface {
	Run(ctx context.Context, args ...string) ([]byte, error)
}

// Streamer spawns a long-lived child whose standard output is read incrementally
type Streamer interface {
	Stream(ctx context.Context, args ...string) (Process, error)
}

// Process is a spawned child. Stdout must be drained (or closed) before Wait.
type Process interface {
	Stdout() io.ReadCloser
	Wait() error
}

// ToolError reports that an external tool invocation could not be started
// or returned an unusable result
type ToolError struct {
	Tool   string
	Args   []string
	Err    error
	Stderr string
}

func (e *ToolError) Error() string {
	cmdline := strings.TrimSpace(e.Tool + " " + strings.Join(e.Args, " "))
	msg := fmt.Sprintf("%s: %v", cmdline, e.Err)
	if s := strings.TrimSpace(e.Stderr); s != "" {
		msg += ": " + s
	}
	return msg
}

func (e *ToolError) Unwrap() error { return e.Err }

// IsToolError reports whether err is, or wraps, a ToolError
func IsToolError(err error) bool {
	var te *ToolError
	return errors.As(err, &te)
}

// Client implements Runner and Streamer on top of os/exec
type Client struct {
	Path    string        // adb binary, resolved via PATH when relative
	Timeout time.Duration // bound applied to Run; zero disables it
}

// NewClient creates a client for the given adb binary
func NewClient(path string, timeout time.Duration) *Client {
	if path == "" {
		path = DefaultPath
	}
	return &Client{Path: path, Timeout: timeout}
}

func (c *Client) tool() string {
	if c.Path == "" {
		return DefaultPath
	}
	return c.Path
}

// Run executes the tool once and returns stdout. A non-zero exit, a spawn
// failure or the timeout elapsing all yield a ToolError.
func (c *Client) Run(ctx context.Context, args ...string) ([]byte, error) {
	if c.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.Timeout)
		defer cancel()
	}

	cmd := exec.CommandContext(ctx, c.tool(), args...)
	cmd.WaitDelay = waitDelay
	var stderr bytes.Buffer
	cmd.Stderr = &stderr

	output, err := cmd.Output()
	if err != nil {
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			err = fmt.Errorf("timed out after %s: %w", c.Timeout, ctx.Err())
		}
		return output, &ToolError{Tool: c.tool(), Args: args, Err: err, Stderr: stderr.String()}
	}
	return output, nil
}

// Stream spawns the tool with stdout piped and stderr discarded. The child is
// killed when ctx is cancelled.
func (c *Client) Stream(ctx context.Context, args ...string) (Process, error) {
	cmd := exec.CommandContext(ctx, c.tool(), args...)
	cmd.WaitDelay = waitDelay
	cmd.Stderr = nil

	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, &ToolError{Tool: c.tool(), Args: args, Err: err}
	}
	if err := cmd.Start(); err != nil {
		return nil, &ToolError{Tool: c.tool(), Args: args, Err: err}
	}
	return &execProcess{cmd: cmd, stdout: stdout}, nil
}

// Available reports whether the configured tool can be found
func (c *Client) Available() (string, error) {
	path, err := exec.LookPath(c.tool())
	if err != nil {
		return "", &ToolError{Tool: c.tool(), Args: nil, Err: err}
	}
	return path, nil
}

type execProcess struct {
	cmd    *exec.Cmd
	stdout io.ReadCloser
}

func (p *execProcess) Stdout() io.ReadCloser { return p.stdout }

func (p *execProcess) Wait() error { return p.cmd.Wait() }
