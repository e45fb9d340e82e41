package tool_test

import (
	"context"
	"errors"
	"runtime"
	"testing"
	"time"

	"github.com/illmade-knight/go-analytics-bridge/pkg/tool"
	"github.com/illmade-knight/go-analytics-bridge/pkg/types"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recordingRunner struct {
	name string
	args []string
	out  []byte
	err  error
}

func (r *recordingRunner) Run(_ context.Context, name string, args ...string) ([]byte, error) {
	r.name = name
	r.args = args
	return r.out, r.err
}

func TestExecutor_Invoke(t *testing.T) {
	ctx := context.Background()

	t.Run("Placeholders are substituted per argument", func(t *testing.T) {
		// Arrange
		runner := &recordingRunner{out: []byte("running")}
		exec := tool.NewExecutorWithRunner(time.Second, runner, zerolog.Nop())

		// Act
		out, err := exec.Invoke(ctx, "aud", []string{"curl", "-s", "http://localhost:5050/{request}"}, map[string]string{"request": "status"})

		// Assert
		require.NoError(t, err)
		assert.Equal(t, "running", out)
		assert.Equal(t, "curl", runner.name)
		assert.Equal(t, []string{"-s", "http://localhost:5050/status"}, runner.args)
	})

	t.Run("Runner failure is a transport error", func(t *testing.T) {
		runner := &recordingRunner{err: errors.New("exit status 7")}
		exec := tool.NewExecutorWithRunner(time.Second, runner, zerolog.Nop())

		_, err := exec.Invoke(ctx, "aud", []string{"curl"}, nil)

		var transportErr *types.TransportError
		require.ErrorAs(t, err, &transportErr)
		assert.Equal(t, "tool:aud", transportErr.Collaborator)
	})

	t.Run("Empty command", func(t *testing.T) {
		exec := tool.NewExecutorWithRunner(time.Second, &recordingRunner{}, zerolog.Nop())

		_, err := exec.Invoke(ctx, "aud", nil, nil)

		var transportErr *types.TransportError
		assert.ErrorAs(t, err, &transportErr)
	})
}

func TestOSRunner(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("relies on POSIX utilities")
	}
	ctx := context.Background()

	t.Run("Captures stdout", func(t *testing.T) {
		exec := tool.NewExecutor(5*time.Second, zerolog.Nop())
		out, err := exec.Invoke(ctx, "echo", []string{"echo", "{word}"}, map[string]string{"word": "hello"})
		require.NoError(t, err)
		assert.Equal(t, "hello\n", out)
	})

	t.Run("Non-zero exit fails", func(t *testing.T) {
		exec := tool.NewExecutor(5*time.Second, zerolog.Nop())
		_, err := exec.Invoke(ctx, "false", []string{"false"}, nil)
		var transportErr *types.TransportError
		assert.ErrorAs(t, err, &transportErr)
	})

	t.Run("Timeout fails", func(t *testing.T) {
		exec := tool.NewExecutor(50*time.Millisecond, zerolog.Nop())
		_, err := exec.Invoke(ctx, "sleep", []string{"sleep", "5"}, nil)
		require.Error(t, err)
		assert.ErrorIs(t, err, context.DeadlineExceeded)
	})
}

func TestExpand(t *testing.T) {
	got := tool.Expand([]string{"docker", "run", "--name", "{audio} x", "{unknown}"}, map[string]string{"audio": "a b.wav"})
	assert.Equal(t, []string{"docker", "run", "--name", "a b.wav x", "{unknown}"}, got)
	assert.Nil(t, tool.Expand(nil, nil))
}
