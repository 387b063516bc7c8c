//go:build integration

package store

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ligustah/haul/internal/testutils"
)

func TestIntegrationMinio(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
	defer cancel()

	minio := testutils.StartMinioContainer(t, ctx, "store-test-bucket")
	defer func() {
		if err := minio.Close(ctx); err != nil {
			t.Logf("failed to terminate minio container: %v", err)
		}
	}()

	b, err := Open(ctx, minio.Bucket, Options{Endpoint: minio.EndpointURL(), PartSize: MinPartSize})
	require.NoError(t, err)
	defer b.Close()

	t.Run("verify_credentials", func(t *testing.T) {
		id, err := b.VerifyCredentials(ctx)
		require.NoError(t, err)
		assert.Equal(t, minio.AccessKey, id)
	})

	t.Run("exists_absent", func(t *testing.T) {
		ok, err := b.Exists(ctx, "raw/dataset-a/")
		require.NoError(t, err)
		assert.False(t, ok)
	})

	t.Run("multipart_put", func(t *testing.T) {
		data := testutils.GenerateTestData(t, 2*MinPartSize+17)
		src := filepath.Join(t.TempDir(), "values.bin")
		require.NoError(t, os.WriteFile(src, data, 0o644))

		obj, err := b.Put(ctx, "raw/dataset-a/values.bin", src, "application/octet-stream")
		require.NoError(t, err)
		assert.Equal(t, int64(len(data)), obj.Size)

		ok, err := b.Exists(ctx, "raw/dataset-a")
		require.NoError(t, err)
		assert.True(t, ok)

		r, err := b.bucket.NewReader(ctx, "raw/dataset-a/values.bin", nil)
		require.NoError(t, err)
		defer r.Close()
		testutils.CompareReaderToData(t, r, data)
	})

	t.Run("open_by_url", func(t *testing.T) {
		b2, err := Open(ctx, minio.BucketURL, Options{})
		require.NoError(t, err)
		defer b2.Close()

		ok, err := b2.Exists(ctx, "raw/dataset-a/")
		require.NoError(t, err)
		assert.True(t, ok)
	})

	t.Run("missing_bucket", func(t *testing.T) {
		b3, err := Open(ctx, "no-such-bucket", Options{Endpoint: minio.EndpointURL()})
		require.NoError(t, err)
		defer b3.Close()

		_, err = b3.Exists(ctx, "raw/")
		require.Error(t, err)
		assert.Contains(t, err.Error(), "NoSuchBucket")
	})

	t.Run("small_put", func(t *testing.T) {
		src := filepath.Join(t.TempDir(), "readme.txt")
		require.NoError(t, os.WriteFile(src, []byte("hello\n"), 0o644))

		_, err := b.Put(ctx, "raw/dataset-b/readme.txt", src, "text/plain")
		require.NoError(t, err)

		got, err := b.bucket.ReadAll(ctx, "raw/dataset-b/readme.txt")
		require.NoError(t, err)
		assert.True(t, bytes.Equal([]byte("hello\n"), got))
	})
}
