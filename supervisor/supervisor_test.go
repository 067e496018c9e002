package supervisor

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ayjayt/devtools-protocol/internal/log"
)

func TestLaunchCreatesTempDirAndPipes(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	sup, transp, err := Launch(ctx, Config{BrowserPath: "true"}, log.NopLogger())
	require.NoError(t, err)
	require.NotNil(t, transp)
	require.DirExists(t, sup.userDataDir)
	assert.NotZero(t, sup.PID())

	require.NoError(t, sup.Shutdown(ctx, nil))
	assert.NoDirExists(t, sup.userDataDir)
}

func TestShutdownCleansUpEvenWithoutGracefulClose(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	sup, _, err := Launch(ctx, Config{BrowserPath: "true"}, log.NopLogger())
	require.NoError(t, err)

	closeCalled := false
	err = sup.Shutdown(ctx, func(context.Context) error {
		closeCalled = true
		return nil
	})
	require.NoError(t, err)
	assert.True(t, closeCalled)
	assert.NoDirExists(t, sup.userDataDir)
}

func TestStateStringCoversAllStates(t *testing.T) {
	t.Parallel()

	for s, want := range map[state]string{
		stateRunning:           "Running",
		stateAwaitExit:         "AwaitExit",
		stateForceProcessGroup: "ForceProcessGroup",
		stateForceKill:         "ForceKill",
		stateCleanup:           "Cleanup",
		stateDone:              "Done",
	} {
		assert.Equal(t, want, s.String())
	}
}

func TestRemoveTempDirWithFallback(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	require.NoError(t, os.WriteFile(dir+"/f", []byte("x"), 0o644))

	require.NoError(t, removeTempDirWithFallback(dir))
	assert.NoDirExists(t, dir)
}
