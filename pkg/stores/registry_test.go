package stores

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestSQLiteRegistry(t *testing.T) *SQLiteRegistry {
	t.Helper()

	r, err := NewSQLiteRegistry(context.Background(), Config{
		Path: filepath.Join(t.TempDir(), "registry.db"),
	})
	require.NoError(t, err)
	t.Cleanup(func() { _ = r.Close() })

	// Deterministic, strictly increasing registration times.
	clock := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	r.now = func() time.Time {
		clock = clock.Add(time.Second)
		return clock
	}
	return r
}

func registries(t *testing.T) map[string]Registry {
	return map[string]Registry{
		"sqlite": newTestSQLiteRegistry(t),
		"memory": NewMemoryRegistry(),
	}
}

func TestRegistryAddAndResolve(t *testing.T) {
	for name, reg := range registries(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()

			host := &Host{Address: "10.0.0.5", RootPath: "/data/chain-a", Labels: map[string]string{"zone": "a"}}
			require.NoError(t, reg.AddHost(ctx, host))
			assert.NotEmpty(t, host.ID)
			assert.False(t, host.CreatedAt.IsZero())

			root, err := reg.RootPath(ctx, "10.0.0.5")
			require.NoError(t, err)
			assert.Equal(t, "/data/chain-a", root)

			got, err := reg.GetHost(ctx, "10.0.0.5")
			require.NoError(t, err)
			assert.Equal(t, map[string]string{"zone": "a"}, got.Labels)
		})
	}
}

func TestRegistryAddUpdatesExistingHost(t *testing.T) {
	for name, reg := range registries(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()

			first := &Host{Address: "10.0.0.5", RootPath: "/data/old"}
			require.NoError(t, reg.AddHost(ctx, first))

			second := &Host{Address: "10.0.0.5", RootPath: "/data/new"}
			require.NoError(t, reg.AddHost(ctx, second))

			assert.Equal(t, first.ID, second.ID)
			assert.Equal(t, "/data/new", second.RootPath)

			hosts, err := reg.ListHosts(ctx)
			require.NoError(t, err)
			assert.Len(t, hosts, 1)
		})
	}
}

func TestRegistryListOrder(t *testing.T) {
	for name, reg := range registries(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()

			for _, addr := range []string{"10.0.0.9", "10.0.0.1", "10.0.0.5"} {
				require.NoError(t, reg.AddHost(ctx, &Host{Address: addr, RootPath: "/data"}))
				// Keep memory registry timestamps distinct.
				time.Sleep(2 * time.Millisecond)
			}

			hosts, err := reg.ListHosts(ctx)
			require.NoError(t, err)

			var addrs []string
			for _, h := range hosts {
				addrs = append(addrs, h.Address)
			}
			assert.Equal(t, []string{"10.0.0.9", "10.0.0.1", "10.0.0.5"}, addrs)
		})
	}
}

func TestRegistryMissingHost(t *testing.T) {
	for name, reg := range registries(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()

			_, err := reg.RootPath(ctx, "10.0.0.7")
			assert.ErrorIs(t, err, ErrHostNotFound)

			err = reg.RemoveHost(ctx, "10.0.0.7")
			assert.ErrorIs(t, err, ErrHostNotFound)
		})
	}
}

func TestRegistryRemoveHost(t *testing.T) {
	for name, reg := range registries(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()

			require.NoError(t, reg.AddHost(ctx, &Host{Address: "10.0.0.5", RootPath: "/data"}))
			require.NoError(t, reg.RemoveHost(ctx, "10.0.0.5"))

			_, err := reg.GetHost(ctx, "10.0.0.5")
			assert.ErrorIs(t, err, ErrHostNotFound)
		})
	}
}

func TestRegistryRejectsIncompleteHost(t *testing.T) {
	for name, reg := range registries(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()

			assert.Error(t, reg.AddHost(ctx, &Host{RootPath: "/data"}))
			assert.Error(t, reg.AddHost(ctx, &Host{Address: "10.0.0.5"}))
		})
	}
}

func TestSQLiteRegistryPersistsAcrossReopen(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "registry.db")

	r, err := NewSQLiteRegistry(ctx, Config{Path: path})
	require.NoError(t, err)
	require.NoError(t, r.AddHost(ctx, &Host{Address: "node-1.internal", RootPath: "/srv/chain"}))
	require.NoError(t, r.Close())

	r, err = NewSQLiteRegistry(ctx, Config{Path: path})
	require.NoError(t, err)
	defer func() { _ = r.Close() }()

	require.NoError(t, r.HealthCheck(ctx))
	root, err := r.RootPath(ctx, "node-1.internal")
	require.NoError(t, err)
	assert.Equal(t, "/srv/chain", root)
}

func TestNewSQLiteRegistryRequiresPath(t *testing.T) {
	_, err := NewSQLiteRegistry(context.Background(), Config{})
	assert.Error(t, err)
}
