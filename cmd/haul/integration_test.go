//go:build integration

package main

import (
	"context"
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ligustah/haul/internal/testutils"
)

func TestCLIIntegration(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
	defer cancel()

	a, aValues := zipDataset(t, "dataset-a.zip", 3*1024*1024)
	b, _ := zipDataset(t, "dataset-b.zip", 2*1024*1024)
	c, cValues := zipDataset(t, "dataset-c.zip", 1024)

	t.Log("Starting HTTP origin...")
	origin := testutils.StartOrigin(t, a, b, c)
	origin.FailRange("dataset-b.zip", 1024*1024, http.StatusForbidden)

	t.Log("Starting Minio container...")
	minio := testutils.StartMinioContainer(t, ctx, "cli-test-bucket")
	defer func() {
		if err := minio.Close(ctx); err != nil {
			t.Logf("failed to terminate minio container: %v", err)
		}
	}()

	args := func(extra ...string) []string {
		return append([]string{
			"-origin", origin.Base(),
			"-dataset", "dataset-a.zip",
			"-dataset", "dataset-b.zip",
			"-dataset", "dataset-c.zip",
			"-bucket", minio.Bucket,
			"-endpoint", minio.EndpointURL(),
			"-local-dir", t.TempDir(),
			"-chunk-size", "1",
			"-log-level", "ERROR",
		}, extra...)
	}

	t.Run("transfer", func(t *testing.T) {
		code := run(append([]string{"transfer"}, args("-continue-on-error")...))
		assert.Equal(t, ExitFilesFailed, code, "dataset-b has a failing range")
	})

	t.Run("uploaded", func(t *testing.T) {
		bkt, err := minio.OpenBucket(ctx)
		require.NoError(t, err)
		defer bkt.Close()

		r, err := bkt.NewReader(ctx, "raw/dataset-a/values.csv", nil)
		require.NoError(t, err)
		testutils.CompareReaderToData(t, r, aValues)
		r.Close()

		r, err = bkt.NewReader(ctx, "raw/dataset-c/values.csv", nil)
		require.NoError(t, err)
		testutils.CompareReaderToData(t, r, cValues)
		r.Close()

		exists, err := bkt.Exists(ctx, "raw/dataset-b/values.csv")
		require.NoError(t, err)
		assert.False(t, exists)
	})

	t.Run("rerun_skips_completed", func(t *testing.T) {
		before := origin.RequestsFor("dataset-a.zip") + origin.RequestsFor("dataset-c.zip")
		code := run(append([]string{"transfer"}, args("-continue-on-error")...))
		assert.Equal(t, ExitFilesFailed, code)
		after := origin.RequestsFor("dataset-a.zip") + origin.RequestsFor("dataset-c.zip")
		assert.Equal(t, before, after)
	})

	t.Run("check", func(t *testing.T) {
		assert.Equal(t, ExitSuccess, run(append([]string{"check"}, args()...)))
	})
}
