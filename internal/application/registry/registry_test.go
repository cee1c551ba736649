package registry_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/watchdogstudios/cassandra-core/internal/application/registry"
)

func TestNewBuildsIndependentServices(t *testing.T) {
	a, err := registry.New(registry.Config{Secret: []byte("secret-a")})
	require.NoError(t, err)
	b, err := registry.New(registry.Config{Secret: []byte("secret-b")})
	require.NoError(t, err)

	require.NotNil(t, a.Auth())
	require.NotNil(t, a.Provisioning())
	require.NotNil(t, a.Orchestration())
	assert.NotSame(t, a.Storage(), b.Storage())
}

func TestNewRejectsEmptySecret(t *testing.T) {
	_, err := registry.New(registry.Config{})
	require.Error(t, err)
}

// TestGlobalLifecycle exercises Init/Global/SetGlobal together since they
// share one process-wide sync.Once: whichever runs first within this test
// binary wins, and every later call is a no-op returning that instance.
func TestGlobalLifecycle(t *testing.T) {
	before, hadBefore := registry.Global()

	fixture, err := registry.New(registry.Config{Secret: []byte("fixture-secret")})
	require.NoError(t, err)
	registry.SetGlobal(fixture)

	got, ok := registry.Global()
	require.True(t, ok)
	require.NotNil(t, got)

	again := registry.Init(registry.Config{Secret: []byte("ignored-secret")})
	assert.Same(t, got, again, "Init after SetGlobal must return the already-installed instance")

	if hadBefore {
		assert.Same(t, before, got, "global instance must not change once installed")
	}
}
