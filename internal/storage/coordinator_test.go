package storage

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bytebin-io/bytebin/internal/index"
)

func newCoordinator(t *testing.T) (*Coordinator, *LocalDiskBackend, *index.Database) {
	t.Helper()

	backend, err := NewLocalDiskBackend("local", filepath.Join(t.TempDir(), "content"))
	require.NoError(t, err)

	idx, err := index.Open(filepath.Join(t.TempDir(), "bytebin.db"))
	require.NoError(t, err)
	t.Cleanup(func() { idx.Close() })

	executor := NewExecutor(2)
	t.Cleanup(executor.Close)

	co := NewCoordinator(executor, []Backend{backend}, NewStaticSelector(backend), idx)
	return co, backend, idx
}

func TestCoordinatorSaveLoad(t *testing.T) {
	ctx := context.Background()
	co, _, idx := newCoordinator(t)

	c := testContent("sav1234")
	require.NoError(t, co.Save(ctx, c))
	assert.Equal(t, "local", c.BackendID)

	entry := idx.Get(ctx, "sav1234")
	require.NotNil(t, entry)
	assert.Equal(t, "local", entry.BackendID)
	assert.Equal(t, len(c.Data), entry.ContentLength)

	got, err := co.Load(ctx, "sav1234")
	require.NoError(t, err)
	assert.Equal(t, c.Data, got.Data)
}

func TestCoordinatorLoadUnknownKey(t *testing.T) {
	co, _, _ := newCoordinator(t)

	got, err := co.Load(context.Background(), "unknown")
	require.NoError(t, err)
	assert.True(t, got.IsEmpty())
}

func TestCoordinatorBulkDelete(t *testing.T) {
	ctx := context.Background()
	co, backend, idx := newCoordinator(t)

	require.NoError(t, co.Save(ctx, testContent("one1111")))
	require.NoError(t, co.Save(ctx, testContent("two2222")))

	deleted := co.BulkDelete(ctx, []string{"one1111", "two2222", "missing"}, false)
	assert.Equal(t, 2, deleted)
	assert.Nil(t, idx.Get(ctx, "one1111"))

	got, err := backend.Load(ctx, "one1111")
	require.NoError(t, err)
	assert.Nil(t, got)
}

func TestCoordinatorBulkDeleteForce(t *testing.T) {
	ctx := context.Background()
	co, backend, idx := newCoordinator(t)

	// content present in the backend but missing from the index
	orphan := testContent("orphan1")
	require.NoError(t, backend.Save(ctx, orphan))
	require.Nil(t, idx.Get(ctx, "orphan1"))

	assert.Equal(t, 0, co.BulkDelete(ctx, []string{"orphan1"}, false))

	got, err := backend.Load(ctx, "orphan1")
	require.NoError(t, err)
	require.NotNil(t, got, "non-force delete must not touch the backend")

	assert.Equal(t, 1, co.BulkDelete(ctx, []string{"orphan1"}, true))
	got, err = backend.Load(ctx, "orphan1")
	require.NoError(t, err)
	assert.Nil(t, got)
}

func TestCoordinatorResaveMovesBackend(t *testing.T) {
	ctx := context.Background()

	small, err := NewLocalDiskBackend("small", filepath.Join(t.TempDir(), "small"))
	require.NoError(t, err)
	big, err := NewLocalDiskBackend("big", filepath.Join(t.TempDir(), "big"))
	require.NoError(t, err)

	idx, err := index.Open(filepath.Join(t.TempDir(), "bytebin.db"))
	require.NoError(t, err)
	t.Cleanup(func() { idx.Close() })

	executor := NewExecutor(2)
	t.Cleanup(executor.Close)

	selector := NewIfSizeGtSelector(100, big, NewStaticSelector(small))
	co := NewCoordinator(executor, []Backend{small, big}, selector, idx)

	c := testContent("mov1234")
	c.Data = make([]byte, 10)
	require.NoError(t, co.Save(ctx, c))
	assert.Equal(t, "small", c.BackendID)

	// grow past the threshold: the re-save routes to the other backend and
	// must not strand the original copy
	c.Data = make([]byte, 200)
	require.NoError(t, co.Save(ctx, c))
	assert.Equal(t, "big", c.BackendID)

	entry := idx.Get(ctx, "mov1234")
	require.NotNil(t, entry)
	assert.Equal(t, "big", entry.BackendID)

	got, err := small.Load(ctx, "mov1234")
	require.NoError(t, err)
	assert.Nil(t, got, "superseded copy must be deleted from the previous backend")

	got, err = big.Load(ctx, "mov1234")
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Len(t, got.Data, 200)
}

func TestCoordinatorRunInvalidation(t *testing.T) {
	ctx := context.Background()
	co, backend, idx := newCoordinator(t)

	expired := testContent("expired")
	expired.Expiry = time.Now().Add(-time.Minute)
	require.NoError(t, co.Save(ctx, expired))

	fresh := testContent("fresh11")
	fresh.Expiry = time.Now().Add(time.Hour)
	require.NoError(t, co.Save(ctx, fresh))

	co.RunInvalidation(ctx)

	assert.Nil(t, idx.Get(ctx, "expired"))
	got, err := backend.Load(ctx, "expired")
	require.NoError(t, err)
	assert.Nil(t, got)

	assert.NotNil(t, idx.Get(ctx, "fresh11"))
}
