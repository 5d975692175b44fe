package host

import (
	"context"
	"io"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/reglet-dev/reglet-lua/domain/constraint"
	"github.com/reglet-dev/reglet-lua/domain/entities"
	"github.com/reglet-dev/reglet-lua/domain/errors"
	"github.com/reglet-dev/reglet-lua/internal/testutil"
)

func internalManager(t *testing.T) *Manager {
	t.Helper()
	hctx, err := NewContext()
	require.NoError(t, err)
	logger, _ := testutil.CaptureLogger()
	m := NewManager(WithLogger(logger), WithStdout(io.Discard))
	require.NoError(t, hctx.RegisterManager(m))
	return m
}

func namedManifest(name string) *entities.PluginManifest {
	v := constraint.MustParseVersion("1.0.0")
	return &entities.PluginManifest{Name: name, Version: &v, Author: "tests", Description: name}
}

func TestManager_ReserveClaimsName(t *testing.T) {
	m := internalManager(t)

	p, err := m.reserve(namedManifest("calc"))
	require.NoError(t, err)
	assert.Equal(t, entities.StateValidating, p.State())

	// A second load of the name between reserve and validation must not win.
	_, err = m.reserve(namedManifest("calc"))
	assert.ErrorIs(t, err, errors.ErrPluginLoaded)
	assert.Same(t, p, m.lookup("calc"))
}

func TestManager_PanicDropsLoadOrder(t *testing.T) {
	m := internalManager(t)
	ctx := context.Background()
	require.NoError(t, m.Load(ctx, entities.Bundle{Manifest: namedManifest("calc"), Source: `return {}`}))

	p := m.lookup("calc")
	_, err := m.call(ctx, p, func(context.Context) ([]entities.Value, error) {
		return nil, &errors.ScriptError{Phase: "call", Message: "engine panic", Panic: true}
	})
	require.Error(t, err)
	assert.Equal(t, entities.StateFailed, p.State())
	assert.Empty(t, m.order)

	require.NoError(t, m.Load(ctx, entities.Bundle{Manifest: namedManifest("calc"), Source: `return {}`}))
	assert.Equal(t, []string{"calc"}, m.order)

	_, err = m.call(ctx, m.lookup("calc"), func(context.Context) ([]entities.Value, error) {
		return nil, &errors.ScriptError{Phase: "call", Message: "engine panic", Panic: true}
	})
	require.Error(t, err)

	// The failed plugin is unloaded exactly once.
	require.NoError(t, m.Close(ctx))
	_, ok := m.Info("calc")
	assert.False(t, ok)
}
