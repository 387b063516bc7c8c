package chunked

import (
	"errors"
	"fmt"
	"path/filepath"
	"regexp"
	"strconv"
)

// ErrBadPartName is returned by ParsePartName for names that do not follow
// the part naming convention.
var ErrBadPartName = errors.New("chunked: not a part file name")

var partPattern = regexp.MustCompile(`^(.+)_part([0-9]+)of([0-9]+)((?:\..*)?)$`)

// PartID identifies one part file.
type PartID struct {
	Stem  string
	Index int // 1-based
	Total int
	Ext   string
}

// Name returns the part file name for id.
func (id PartID) Name() string {
	return PartName(id.Stem, id.Index, id.Total, id.Ext)
}

// PartName returns the file name of part index of total for a file split
// from stem+ext.
func PartName(stem string, index, total int, ext string) string {
	return fmt.Sprintf("%s_part%dof%d%s", stem, index, total, ext)
}

// ParsePartName decodes a part file name. Directory components are ignored.
func ParsePartName(name string) (PartID, error) {
	base := filepath.Base(name)
	m := partPattern.FindStringSubmatch(base)
	if m == nil {
		return PartID{}, fmt.Errorf("%w: %q", ErrBadPartName, base)
	}

	index, err := strconv.Atoi(m[2])
	if err != nil {
		return PartID{}, fmt.Errorf("%w: %q: index: %v", ErrBadPartName, base, err)
	}
	total, err := strconv.Atoi(m[3])
	if err != nil {
		return PartID{}, fmt.Errorf("%w: %q: total: %v", ErrBadPartName, base, err)
	}
	if total < 1 || index < 1 || index > total {
		return PartID{}, fmt.Errorf("%w: %q: part %d of %d", ErrBadPartName, base, index, total)
	}

	return PartID{
		Stem:  m[1],
		Index: index,
		Total: total,
		Ext:   m[4],
	}, nil
}
