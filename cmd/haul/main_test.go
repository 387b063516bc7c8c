package main

import (
	"bytes"
	"context"
	"errors"
	"flag"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/klauspost/compress/zip"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ligustah/haul/internal/config"
	"github.com/ligustah/haul/internal/pipeline"
	"github.com/ligustah/haul/internal/testutils"
	"github.com/ligustah/haul/internal/transfer"
)

// zipDataset returns a stored zip holding values.csv with n bytes.
func zipDataset(t *testing.T, name string, n int64) (testutils.TestFile, []byte) {
	t.Helper()
	values := testutils.GenerateTestData(t, n)

	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)
	w, err := zw.CreateHeader(&zip.FileHeader{Name: "values.csv", Method: zip.Store})
	require.NoError(t, err)
	_, err = w.Write(values)
	require.NoError(t, err)
	require.NoError(t, zw.Close())

	return testutils.TestFile{Name: name, Data: buf.Bytes()}, values
}

func transferArgs(origin *testutils.Origin, bucketDir string, extra ...string) []string {
	args := []string{
		"transfer",
		"-origin", origin.Base(),
		"-bucket", "file://" + bucketDir,
		"-local-dir", filepath.Dir(bucketDir),
		"-chunk-size", "1KiB",
		"-workers", "4",
		"-log-level", "ERROR",
	}
	return append(args, extra...)
}

func TestRunUsage(t *testing.T) {
	assert.Equal(t, ExitInvalidArgs, run(nil))
	assert.Equal(t, ExitInvalidArgs, run([]string{"sideways"}))
	assert.Equal(t, ExitSuccess, run([]string{"help"}))
	assert.Equal(t, ExitSuccess, run([]string{"transfer", "-h"}))
}

func TestTransferInvalidArgs(t *testing.T) {
	tests := []struct {
		name string
		args []string
	}{
		{"missing everything", []string{"transfer"}},
		{"missing bucket", []string{"transfer", "-origin", "http://localhost/", "-dataset", "a.7z"}},
		{"bad chunk size", []string{"transfer", "-origin", "http://localhost/", "-dataset", "a.7z", "-bucket", "b", "-chunk-size", "huge"}},
		{"overwrite conflict", []string{"transfer", "-origin", "http://localhost/", "-dataset", "a.7z", "-bucket", "b", "-overwrite", "-no-overwrite"}},
		{"bad log level", []string{"transfer", "-origin", "http://localhost/", "-dataset", "a.7z", "-bucket", "b", "-log-level", "LOUD"}},
		{"unknown flag", []string{"transfer", "-sideways"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, ExitInvalidArgs, run(tt.args))
		})
	}
}

func TestTransferEndToEnd(t *testing.T) {
	file, values := zipDataset(t, "dataset-a.zip", 5000)
	origin := testutils.StartOrigin(t, file)
	bucketDir := filepath.Join(t.TempDir(), "bucket")
	require.NoError(t, os.Mkdir(bucketDir, 0o755))

	code := run(transferArgs(origin, bucketDir, "-dataset", "dataset-a.zip"))
	require.Equal(t, ExitSuccess, code)

	got, err := os.ReadFile(filepath.Join(bucketDir, "raw", "dataset-a", "values.csv"))
	require.NoError(t, err)
	assert.Equal(t, values, got)

	// A second run skips the dataset without touching the origin.
	requests := origin.Requests()
	code = run(transferArgs(origin, bucketDir, "-dataset", "dataset-a.zip"))
	require.Equal(t, ExitSuccess, code)
	assert.Equal(t, requests, origin.Requests())
}

func TestTransferOriginNotAccessible(t *testing.T) {
	origin := testutils.StartOrigin(t)
	bucketDir := filepath.Join(t.TempDir(), "bucket")
	require.NoError(t, os.Mkdir(bucketDir, 0o755))

	code := run(transferArgs(origin, bucketDir, "-dataset", "missing.zip"))
	assert.Equal(t, ExitOriginNotAccess, code)
}

func TestTransferFilesFailed(t *testing.T) {
	a, _ := zipDataset(t, "dataset-a.zip", 5000)
	b, values := zipDataset(t, "dataset-b.zip", 100)
	origin := testutils.StartOrigin(t, a, b)
	origin.FailRange("dataset-a.zip", 0, http.StatusForbidden)

	bucketDir := filepath.Join(t.TempDir(), "bucket")
	require.NoError(t, os.Mkdir(bucketDir, 0o755))

	code := run(transferArgs(origin, bucketDir, "-dataset", "dataset-a.zip,dataset-b.zip", "-continue-on-error"))
	assert.Equal(t, ExitFilesFailed, code)

	got, err := os.ReadFile(filepath.Join(bucketDir, "raw", "dataset-b", "values.csv"))
	require.NoError(t, err)
	assert.Equal(t, values, got)
}

func TestTransferStorageError(t *testing.T) {
	origin := testutils.StartOrigin(t)
	code := run([]string{
		"transfer",
		"-origin", origin.Base(),
		"-dataset", "a.zip",
		"-bucket", "file://" + filepath.Join(t.TempDir(), "does-not-exist"),
		"-local-dir", t.TempDir(),
		"-log-level", "ERROR",
	})
	assert.Equal(t, ExitStorageError, code)
}

func TestTransferRequiresLocalDir(t *testing.T) {
	origin := testutils.StartOrigin(t)
	code := run([]string{
		"transfer",
		"-origin", origin.Base(),
		"-dataset", "a.zip",
		"-bucket", "file://" + t.TempDir(),
		"-log-level", "ERROR",
	})
	assert.Equal(t, ExitInvalidArgs, code)
	assert.Zero(t, origin.Requests())
}

func TestPlan(t *testing.T) {
	file, _ := zipDataset(t, "dataset-a.zip", 2500)
	origin := testutils.StartOrigin(t, file)

	cfg := config.Default()
	cfg.Origin = origin.Base()
	cfg.Datasets = []string{"dataset-a.zip", "notes.txt"}
	cfg.ChunkSize = 1024
	cfg.LogLevel = "ERROR"

	var out bytes.Buffer
	code := planDatasets(context.Background(), cfg, &out, true)
	assert.Equal(t, ExitFilesFailed, code)

	text := out.String()
	assert.Contains(t, text, "raw/dataset-a/")
	assert.Contains(t, text, "dataset-a_part1of3.zip")
	assert.Contains(t, text, "bytes=0-1023")
	assert.Contains(t, text, "notes.txt")
	assert.Equal(t, 1, origin.RequestsFor("dataset-a.zip"))
	assert.Zero(t, origin.RequestsFor("notes.txt"), "unsupported datasets are not sized")
}

func TestCheck(t *testing.T) {
	bucketDir := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(bucketDir, "raw", "dataset-a"), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(bucketDir, "raw", "dataset-a", "values.csv"), []byte("x"), 0o644))

	cfg := config.Default()
	cfg.Bucket = "file://" + bucketDir
	cfg.Datasets = []string{"dataset-a.7z", "dataset-b.7z"}
	cfg.LogLevel = "ERROR"

	var out bytes.Buffer
	require.Equal(t, ExitSuccess, checkDatasets(context.Background(), cfg, &out))

	lines := strings.Split(strings.TrimSpace(out.String()), "\n")
	require.Len(t, lines, 3)
	assert.Contains(t, lines[1], "raw/dataset-a/")
	assert.True(t, strings.HasSuffix(lines[1], "skip"), lines[1])
	assert.True(t, strings.HasSuffix(lines[2], "transfer"), lines[2])
}

func TestDatasetListFlag(t *testing.T) {
	fs := flag.NewFlagSet("test", flag.ContinueOnError)
	var opts options
	opts.register(fs)

	require.NoError(t, fs.Parse([]string{"-dataset", "a.7z", "-dataset", "b.7z, c.7z"}))
	assert.Equal(t, datasetList{"a.7z", "b.7z", "c.7z"}, opts.datasets)
}

func TestExitCode(t *testing.T) {
	sizeErr := transfer.NewError(transfer.ErrSizeUnavailable, "size", "a.7z", errors.New("404"))
	downloadErr := transfer.NewError(transfer.ErrDownloadFailed, "get", "b.7z", errors.New("403"))

	report := &pipeline.Report{Files: []pipeline.FileResult{
		{Name: "a.7z", State: pipeline.Failed, Err: sizeErr},
	}}
	assert.Equal(t, ExitOriginNotAccess, exitCode(report))

	report.Files = append(report.Files, pipeline.FileResult{Name: "b.7z", State: pipeline.Failed, Err: downloadErr})
	assert.Equal(t, ExitFilesFailed, exitCode(report))

	assert.Equal(t, ExitGeneralError, exitCode(&pipeline.Report{}))
}
