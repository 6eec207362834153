package store_test

import (
	"bytes"
	"crypto/rand"
	"os"
	"path/filepath"
	"runtime"
	"testing"

	"github.com/Kopano-dev/kopano-core-sub010/async"
	"github.com/Kopano-dev/kopano-core-sub010/mapi"
	"github.com/Kopano-dev/kopano-core-sub010/store"
	"github.com/Kopano-dev/kopano-core-sub010/store/fallback_v0"
	"github.com/stretchr/testify/require"
)

func TestStore_DecryptFailedOnFilesBiggerThanBlockSize(t *testing.T) {
	store, err := store.NewOnDiskStore(
		t.TempDir(),
		[]byte("pass"),
		store.WithSemaphore(store.NewSemaphore(runtime.NumCPU(), async.NoopPanicHandler{})),
	)
	require.NoError(t, err)

	data := make([]byte, 1024*1204)
	{
		_, err := rand.Read(data) //nolint:gosec
		require.NoError(t, err)
	}

	id := mapi.ObjectID(1)
	require.NoError(t, store.Set(id, data))
	read, err := store.Get(id)
	require.NoError(t, err)
	require.True(t, bytes.Equal(read, data))
	require.NoError(t, store.Delete(id))
}

func TestStoreReadFailsIfHeaderDoesNotMatch(t *testing.T) {
	storeDir := t.TempDir()
	store, err := store.NewOnDiskStore(
		storeDir,
		[]byte("pass"),
		store.WithSemaphore(store.NewSemaphore(runtime.NumCPU(), async.NoopPanicHandler{})),
	)
	require.NoError(t, err)

	id := mapi.ObjectID(42)
	// Generate dummy file
	{
		data := make([]byte, 15*1024)
		_, err := rand.Read(data) //nolint:gosec
		require.NoError(t, err)
		require.NoError(t, os.WriteFile(filepath.Join(storeDir, id.String()), data, 0o600))
	}

	_, err = store.Get(id)
	require.Error(t, err)
}

func TestStoreFallbackRead(t *testing.T) {
	fallbackStore := fallback_v0.NewOnDiskStoreV0WithCompressor(&fallback_v0.GZipCompressor{})

	storeDir := t.TempDir()

	password := []byte("pass")

	fileContents := []byte("attachment payload from the previous generation")

	id := mapi.ObjectID(7)

	{
		// create old store file on disk
		gcm, err := store.NewCipher(password)
		require.NoError(t, err)

		filepath := filepath.Join(storeDir, id.String())

		require.NoError(t, fallbackStore.Write(gcm, filepath, fileContents))
	}

	// Reading file without fallback should fail.
	{
		store, err := store.NewOnDiskStore(
			storeDir,
			[]byte("pass"),
			store.WithSemaphore(store.NewSemaphore(runtime.NumCPU(), async.NoopPanicHandler{})),
		)
		require.NoError(t, err)
		defer func() {
			require.NoError(t, store.Close())
		}()

		_, err = store.Get(id)
		require.Error(t, err)
	}

	{
		store, err := store.NewOnDiskStore(
			storeDir,
			[]byte("pass"),
			store.WithSemaphore(store.NewSemaphore(runtime.NumCPU(), async.NoopPanicHandler{})),
			store.WithFallback(fallbackStore),
		)
		require.NoError(t, err)
		defer func() {
			require.NoError(t, store.Close())
		}()

		b, err := store.Get(id)
		require.NoError(t, err)
		require.Equal(t, fileContents, b)
	}
}

func TestOnDiskStore(t *testing.T) {
	store, err := store.NewOnDiskStore(
		t.TempDir(),
		[]byte("pass"),
		store.WithSemaphore(store.NewSemaphore(runtime.NumCPU(), async.NoopPanicHandler{})),
		store.WithCompressor(store.ZLibCompressor{}),
	)
	require.NoError(t, err)

	testStore(t, store)
	testStoreList(t, store)
}

func TestInMemoryStore(t *testing.T) {
	store := store.NewInMemoryStore()

	testStore(t, store)
	testStoreList(t, store)
}

func testStore(t *testing.T, store store.Store) {
	require.NoError(t, store.Set(1, []byte("payload1")))
	require.NoError(t, store.Set(2, []byte("payload2")))
	require.NoError(t, store.Set(3, []byte("payload3")))

	require.Equal(t, []byte("payload1"), must(store.Get(1)))
	require.Equal(t, []byte("payload2"), must(store.Get(2)))
	require.Equal(t, []byte("payload3"), must(store.Get(3)))

	require.NoError(t, store.Delete(1, 2, 3))
}

func testStoreList(t *testing.T, store store.Store) {
	require.NoError(t, store.Set(1, []byte("payload1")))
	require.NoError(t, store.Set(2, []byte("payload2")))
	require.NoError(t, store.Set(3, []byte("payload3")))

	list, err := store.List()
	require.NoError(t, err)
	require.ElementsMatch(t, list, []mapi.ObjectID{1, 2, 3})

	require.NoError(t, store.Delete(1, 2, 3))
}

func must[T any](val T, err error) T {
	if err != nil {
		panic(err)
	}

	return val
}
