// Package runner runs external tools (docker, ssh, scp, hadolint) and logs
// them in a consistent way.
package runner

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os/exec"
	"strings"
	"time"

	"github.com/go-logr/logr"
)

// Runner runs commands. The zero value has no timeout and discards logs.
type Runner struct {
	log     logr.Logger
	timeout time.Duration
}

// New returns a Runner logging through log. A positive timeout bounds every
// command.
func New(log logr.Logger, timeout time.Duration) Runner {
	return Runner{log: log, timeout: timeout}
}

// Run runs command in cwd, returning the trimmed stdout and stderr.
func (r Runner) Run(ctx context.Context, cwd string, command string, args ...string) (string, string, error) {
	return r.run(ctx, cwd, nil, command, args...)
}

// RunWithStdin runs command feeding stdin to it.
func (r Runner) RunWithStdin(ctx context.Context, cwd string, stdin io.Reader, command string, args ...string) (string, string, error) {
	return r.run(ctx, cwd, stdin, command, args...)
}

// Available reports whether command is on PATH.
func (r Runner) Available(command string) bool {
	_, err := exec.LookPath(command)
	return err == nil
}

func (r Runner) run(ctx context.Context, cwd string, stdin io.Reader, command string, args ...string) (string, string, error) {
	if r.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, r.timeout)
		defer cancel()
	}

	cmdStr := cmdForLog(command, args...)
	r.log.V(5).Info("running command", "cwd", cwd, "cmd", cmdStr)

	cmd := exec.CommandContext(ctx, command, args...)
	if cwd != "" {
		cmd.Dir = cwd
	}
	var outbuf, errbuf bytes.Buffer
	cmd.Stdout = &outbuf
	cmd.Stderr = &errbuf
	if stdin != nil {
		cmd.Stdin = stdin
	}

	start := time.Now()
	err := cmd.Run()
	wallTime := time.Since(start)
	stdout := strings.TrimSpace(outbuf.String())
	stderr := strings.TrimSpace(errbuf.String())

	if errors.Is(ctx.Err(), context.DeadlineExceeded) {
		return stdout, stderr, fmt.Errorf("run %s: %w: { stdout: %q, stderr: %q }", cmdStr, ctx.Err(), stdout, stderr)
	}
	if err != nil {
		return stdout, stderr, fmt.Errorf("run %s: %w: { stdout: %q, stderr: %q }", cmdStr, err, stdout, stderr)
	}
	r.log.V(6).Info("command result", "stdout", stdout, "stderr", stderr, "time", wallTime)
	return stdout, stderr, nil
}

func cmdForLog(command string, args ...string) string {
	if strings.ContainsAny(command, " \t\n") {
		command = fmt.Sprintf("%q", command)
	}
	quoted := make([]string, len(args))
	for i, a := range args {
		if strings.ContainsAny(a, " \t\n") {
			a = fmt.Sprintf("%q", a)
		}
		quoted[i] = a
	}
	return strings.TrimSpace(command + " " + strings.Join(quoted, " "))
}
