package chunked

import (
	"errors"
	"fmt"
	"io"
	"os"
	"sort"
)

// ErrIncomplete is returned by Reassemble when the supplied parts do not form
// a complete set.
var ErrIncomplete = errors.New("chunked: incomplete part set")

// copyBufferSize is the buffer used when streaming parts into the output.
const copyBufferSize = 4 * 1024 * 1024

type partFile struct {
	path string
	id   PartID
}

// Reassemble concatenates parts into output in ascending part index order.
//
// The set is validated before output is created: every name must decode with
// ParsePartName, all parts must agree on stem, extension and total, and the
// indices must be exactly 1..total. Each part is removed as soon as it has
// been copied. On a copy failure the partial output is removed.
//
// Returns the number of bytes written.
func Reassemble(output string, parts []string) (int64, error) {
	ordered, err := orderParts(parts)
	if err != nil {
		return 0, err
	}

	out, err := os.OpenFile(output, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, 0o644)
	if err != nil {
		return 0, fmt.Errorf("chunked: create output: %w", err)
	}

	written, err := appendParts(out, ordered)
	if cerr := out.Close(); err == nil && cerr != nil {
		err = fmt.Errorf("chunked: close output: %w", cerr)
	}
	if err != nil {
		os.Remove(output)
		return written, err
	}
	return written, nil
}

// orderParts decodes and validates parts and returns them sorted by index.
func orderParts(parts []string) ([]partFile, error) {
	if len(parts) == 0 {
		return nil, fmt.Errorf("%w: no parts", ErrIncomplete)
	}

	files := make([]partFile, 0, len(parts))
	for _, p := range parts {
		id, err := ParsePartName(p)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrIncomplete, err)
		}
		files = append(files, partFile{path: p, id: id})
	}

	sort.Slice(files, func(i, j int) bool {
		return files[i].id.Index < files[j].id.Index
	})

	first := files[0].id
	if len(files) != first.Total {
		return nil, fmt.Errorf("%w: have %d of %d parts of %s%s", ErrIncomplete, len(files), first.Total, first.Stem, first.Ext)
	}
	for i, f := range files {
		if f.id.Stem != first.Stem || f.id.Ext != first.Ext || f.id.Total != first.Total {
			return nil, fmt.Errorf("%w: %s does not belong to %s", ErrIncomplete, f.path, first.Name())
		}
		if f.id.Index != i+1 {
			return nil, fmt.Errorf("%w: missing part %d of %d", ErrIncomplete, i+1, first.Total)
		}
	}
	return files, nil
}

func appendParts(out io.Writer, files []partFile) (int64, error) {
	buf := make([]byte, copyBufferSize)
	var written int64

	for _, f := range files {
		in, err := os.Open(f.path)
		if err != nil {
			return written, fmt.Errorf("chunked: open part %d: %w", f.id.Index, err)
		}
		n, err := io.CopyBuffer(out, in, buf)
		in.Close()
		written += n
		if err != nil {
			return written, fmt.Errorf("chunked: copy part %d: %w", f.id.Index, err)
		}
		if err := os.Remove(f.path); err != nil {
			return written, fmt.Errorf("chunked: remove part %d: %w", f.id.Index, err)
		}
	}
	return written, nil
}
