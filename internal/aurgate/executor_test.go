package aurgate

import (
	"context"
	"os/exec"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestExecutorOutput(t *testing.T) {
	e := NewExecutor(context.Background())

	out, err := e.Output(exec.Command("sh", "-c", "echo hello"))
	require.NoError(t, err)
	assert.Equal(t, "hello\n", string(out))

	_, err = e.Output(exec.Command("sh", "-c", "echo broken >&2; exit 3"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "broken")
	code, ok := exitCode(err)
	assert.True(t, ok)
	assert.Equal(t, 3, code)
}

func TestExecutorCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	err := NewExecutor(ctx).Run(exec.Command("sleep", "5"))
	assert.Error(t, err)
}

func TestRunWithEnvFallback(t *testing.T) {
	dir := t.TempDir()
	e := NewExecutor(context.Background())

	t.Setenv("AURGATE_TEST_SHELL", "")
	// A shell that exits non-zero still returns control to the menu.
	require.NoError(t, e.RunWithEnvFallback(context.Background(), dir, "AURGATE_TEST_SHELL", "sh", []string{"-c", "exit 7"}))

	t.Setenv("AURGATE_TEST_SHELL", "/nonexistent/shell")
	assert.Error(t, e.RunWithEnvFallback(context.Background(), dir, "AURGATE_TEST_SHELL", "sh", nil))
}
