// cmd/oracle-worker/main_test.go
package main

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestRootCommand_Subcommands(t *testing.T) {
	root := newRootCommand()

	names := map[string]bool{}
	for _, c := range root.Commands() {
		names[c.Name()] = true
	}
	assert.True(t, names["run"])
	assert.True(t, names["migrate"])
	assert.True(t, names["enqueue"])
	assert.True(t, names["readings"])
	assert.NotNil(t, root.PersistentFlags().Lookup("config"))
}

func TestEnqueueCommand_RejectsBlankFields(t *testing.T) {
	root := newRootCommand()
	root.SetArgs([]string{"enqueue", "--user", "  ", "--message", "Pull a card"})

	err := root.Execute()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "must be non-empty")
}

func TestReadingsCommand_RejectsUnknownCard(t *testing.T) {
	root := newRootCommand()
	root.SetArgs([]string{"readings", "--user", "u1", "--card", "78"})

	err := root.Execute()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "between 0 and 77")
}

func TestMigrateCommand_RequiresDirection(t *testing.T) {
	root := newRootCommand()
	root.SetArgs([]string{"migrate"})

	assert.Error(t, root.Execute())
}

func TestRetryWithBackoff(t *testing.T) {
	log := zap.NewNop()

	t.Run("succeeds after failures", func(t *testing.T) {
		calls := 0
		err := retryWithBackoff(func() error {
			calls++
			if calls < 3 {
				return errors.New("connection refused")
			}
			return nil
		}, 5, time.Millisecond, log, "connect")
		require.NoError(t, err)
		assert.Equal(t, 3, calls)
	})

	t.Run("gives up", func(t *testing.T) {
		calls := 0
		err := retryWithBackoff(func() error {
			calls++
			return errors.New("connection refused")
		}, 2, time.Millisecond, log, "connect")
		require.Error(t, err)
		assert.Contains(t, err.Error(), "connect failed after 2 attempts")
		assert.Equal(t, 2, calls)
	})
}
