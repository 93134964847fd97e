package runner

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/go-logr/logr"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRun(t *testing.T) {
	r := New(logr.Discard(), 0)
	stdout, _, err := r.Run(context.Background(), t.TempDir(), "sh", "-c", "echo hello; echo oops >&2")
	require.NoError(t, err)
	assert.Equal(t, "hello", stdout)
}

func TestRunFailureIncludesOutput(t *testing.T) {
	r := New(logr.Discard(), 0)
	_, stderr, err := r.Run(context.Background(), "", "sh", "-c", "echo bad >&2; exit 3")
	require.Error(t, err)
	assert.Equal(t, "bad", stderr)
	assert.Contains(t, err.Error(), `stderr: "bad"`)
}

func TestRunWithStdin(t *testing.T) {
	r := New(logr.Discard(), 0)
	stdout, _, err := r.RunWithStdin(context.Background(), "", strings.NewReader("piped"), "cat")
	require.NoError(t, err)
	assert.Equal(t, "piped", stdout)
}

func TestRunTimeout(t *testing.T) {
	r := New(logr.Discard(), 50*time.Millisecond)
	_, _, err := r.Run(context.Background(), "", "sleep", "5")
	require.Error(t, err)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestCmdForLog(t *testing.T) {
	assert.Equal(t, `docker build -t "a b" .`, cmdForLog("docker", "build", "-t", "a b", "."))
	assert.Equal(t, "ls", cmdForLog("ls"))
}
