package uploader

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gocloud.dev/blob/memblob"

	"github.com/ligustah/haul/internal/store"
	"github.com/ligustah/haul/internal/transfer"
)

// failingStore wraps a Store and fails the keys in fail. Deletes fail while
// failDelete is set.
type failingStore struct {
	Store
	fail       map[string]bool
	failDelete bool
	calls      atomic.Int32
	deletes    atomic.Int32
}

func (s *failingStore) Put(ctx context.Context, key, path, contentType string) (transfer.Object, error) {
	s.calls.Add(1)
	if s.fail[key] {
		return transfer.Object{Key: key}, transfer.NewError(transfer.ErrUploadFailed, "put", key, errors.New("injected failure"))
	}
	return s.Store.Put(ctx, key, path, contentType)
}

func (s *failingStore) Delete(ctx context.Context, key string) error {
	s.deletes.Add(1)
	if s.failDelete {
		return errors.New("injected delete failure")
	}
	return s.Store.Delete(ctx, key)
}

func memStore(t *testing.T) *store.Bucket {
	t.Helper()
	b := store.NewBucket(memblob.OpenBucket(nil), "mem", store.Options{})
	t.Cleanup(func() { b.Close() })
	return b
}

func writeTree(t *testing.T, files map[string]string) string {
	t.Helper()
	root := t.TempDir()
	for name, body := range files {
		p := filepath.Join(root, filepath.FromSlash(name))
		require.NoError(t, os.MkdirAll(filepath.Dir(p), 0o755))
		require.NoError(t, os.WriteFile(p, []byte(body), 0o644))
	}
	return root
}

func TestUploadTree(t *testing.T) {
	ctx := context.Background()
	root := writeTree(t, map[string]string{
		"readme.txt":            "hello",
		"data/values.csv":       "a,b\n1,2\n",
		"data/nested/deep.json": `{"ok":true}`,
	})
	require.NoError(t, os.MkdirAll(filepath.Join(root, "empty"), 0o755))

	b := memStore(t)
	objects, err := New(b, Options{Workers: 2}).UploadTree(ctx, root, "raw/dataset-a/")
	require.NoError(t, err)

	keys := make([]string, len(objects))
	for i, o := range objects {
		keys[i] = o.Key
		assert.Equal(t, "mem", o.Bucket)
		assert.NotEmpty(t, o.ContentType)
	}
	assert.Equal(t, []string{
		"raw/dataset-a/data/nested/deep.json",
		"raw/dataset-a/data/values.csv",
		"raw/dataset-a/readme.txt",
	}, keys)
	assert.True(t, strings.HasPrefix(objects[2].ContentType, "text/plain"), objects[2].ContentType)

	ok, err := b.Exists(ctx, "raw/dataset-a/")
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestUploadTreePrefixWithoutSlash(t *testing.T) {
	root := writeTree(t, map[string]string{"x.bin": "x"})

	objects, err := New(memStore(t), Options{}).UploadTree(context.Background(), root, "raw/b")
	require.NoError(t, err)
	require.Len(t, objects, 1)
	assert.Equal(t, "raw/b/x.bin", objects[0].Key)
}

func TestUploadTreeOneFailureAmongFifty(t *testing.T) {
	files := make(map[string]string, 50)
	for i := 0; i < 50; i++ {
		files[fmt.Sprintf("part-%02d.dat", i)] = fmt.Sprintf("payload %d", i)
	}
	root := writeTree(t, files)

	b := memStore(t)
	s := &failingStore{
		Store: b,
		fail:  map[string]bool{"raw/c/part-17.dat": true},
	}
	_, err := New(s, Options{Workers: 10}).UploadTree(context.Background(), root, "raw/c/")
	require.Error(t, err)
	assert.True(t, errors.Is(err, transfer.ErrUploadFailed), "got %v", err)
	assert.Contains(t, err.Error(), "raw/c/part-17.dat")
	assert.Contains(t, err.Error(), "1 of 50")
	assert.Equal(t, int32(50), s.calls.Load(), "every upload must be attempted and awaited")

	assert.Equal(t, int32(49), s.deletes.Load())
	ok, err := b.Exists(context.Background(), "raw/c/")
	require.NoError(t, err)
	assert.False(t, ok, "the uploaded objects are removed again")
}

func TestUploadTreeRollbackFailure(t *testing.T) {
	root := writeTree(t, map[string]string{"a.txt": "a", "b.txt": "b"})

	b := memStore(t)
	s := &failingStore{
		Store:      b,
		fail:       map[string]bool{"raw/d/b.txt": true},
		failDelete: true,
	}
	_, err := New(s, Options{}).UploadTree(context.Background(), root, "raw/d/")
	require.Error(t, err)
	assert.True(t, errors.Is(err, transfer.ErrUploadFailed), "got %v", err)
	assert.Contains(t, err.Error(), "rollback left 1 objects")
	assert.Contains(t, err.Error(), "raw/d/a.txt")
}

func TestUploadTreeEmpty(t *testing.T) {
	objects, err := New(memStore(t), Options{}).UploadTree(context.Background(), t.TempDir(), "raw/empty/")
	require.NoError(t, err)
	assert.Empty(t, objects)
}

func TestUploadTreeMissingRoot(t *testing.T) {
	_, err := New(memStore(t), Options{}).UploadTree(context.Background(), filepath.Join(t.TempDir(), "nope"), "raw/x/")
	assert.True(t, errors.Is(err, transfer.ErrFilesystem), "got %v", err)
}
