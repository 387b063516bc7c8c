package archive

import (
	"archive/tar"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/bodgit/sevenzip"
	"github.com/klauspost/compress/gzip"
	"github.com/klauspost/compress/zip"
	"github.com/klauspost/compress/zstd"
)

func newExtractor(ctx context.Context, targetDir string) (*extractor, error) {
	root, err := filepath.Abs(targetDir)
	if err != nil {
		return nil, err
	}
	return &extractor{ctx: ctx, root: root}, nil
}

func expandSevenZip(ctx context.Context, archivePath, targetDir string) error {
	x, err := newExtractor(ctx, targetDir)
	if err != nil {
		return err
	}

	r, err := sevenzip.OpenReader(archivePath)
	if err != nil {
		return fmt.Errorf("open 7z: %w", err)
	}
	defer r.Close()

	for _, f := range r.File {
		info := f.FileInfo()
		switch {
		case info.IsDir():
			if err := x.dir(f.Name); err != nil {
				return err
			}
		case info.Mode().IsRegular():
			if err := extractEntry(x, f.Name, info.Mode(), f.Open); err != nil {
				return err
			}
		}
	}
	return nil
}

func expandZip(ctx context.Context, archivePath, targetDir string) error {
	x, err := newExtractor(ctx, targetDir)
	if err != nil {
		return err
	}

	r, err := zip.OpenReader(archivePath)
	if err != nil {
		return fmt.Errorf("open zip: %w", err)
	}
	defer r.Close()

	for _, f := range r.File {
		mode := f.Mode()
		switch {
		case mode.IsDir():
			if err := x.dir(f.Name); err != nil {
				return err
			}
		case mode.IsRegular():
			if err := extractEntry(x, f.Name, mode, f.Open); err != nil {
				return err
			}
		}
	}
	return nil
}

// extractEntry opens one entry and writes it through x.
func extractEntry(x *extractor, name string, mode os.FileMode, open func() (io.ReadCloser, error)) error {
	rc, err := open()
	if err != nil {
		return fmt.Errorf("open entry %q: %w", name, err)
	}
	defer rc.Close()
	return x.file(name, mode, rc)
}

func expandTar(ctx context.Context, archivePath, targetDir string) error {
	f, err := os.Open(archivePath)
	if err != nil {
		return err
	}
	defer f.Close()
	return untar(ctx, f, targetDir)
}

func expandTarGzip(ctx context.Context, archivePath, targetDir string) error {
	f, err := os.Open(archivePath)
	if err != nil {
		return err
	}
	defer f.Close()

	zr, err := gzip.NewReader(f)
	if err != nil {
		return fmt.Errorf("open gzip: %w", err)
	}
	defer zr.Close()
	return untar(ctx, zr, targetDir)
}

func expandTarZstd(ctx context.Context, archivePath, targetDir string) error {
	f, err := os.Open(archivePath)
	if err != nil {
		return err
	}
	defer f.Close()

	zr, err := zstd.NewReader(f)
	if err != nil {
		return fmt.Errorf("open zstd: %w", err)
	}
	defer zr.Close()
	return untar(ctx, zr, targetDir)
}

// untar extracts directories and regular files. Links and special files are
// skipped.
func untar(ctx context.Context, r io.Reader, targetDir string) error {
	x, err := newExtractor(ctx, targetDir)
	if err != nil {
		return err
	}

	tr := tar.NewReader(r)
	for {
		hdr, err := tr.Next()
		if errors.Is(err, io.EOF) {
			return nil
		}
		if err != nil {
			return fmt.Errorf("read tar: %w", err)
		}

		switch hdr.Typeflag {
		case tar.TypeDir:
			if err := x.dir(hdr.Name); err != nil {
				return err
			}
		case tar.TypeReg:
			if err := x.file(hdr.Name, hdr.FileInfo().Mode(), tr); err != nil {
				return err
			}
		}
	}
}
