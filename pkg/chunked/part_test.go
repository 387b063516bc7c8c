package chunked

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPartName(t *testing.T) {
	assert.Equal(t, "dataset_part2of3.7z", PartName("dataset", 2, 3, ".7z"))
	assert.Equal(t, "dataset_part10of12.tar.gz", PartName("dataset", 10, 12, ".tar.gz"))
	assert.Equal(t, "dataset_part1of1", PartName("dataset", 1, 1, ""))
}

func TestParsePartName(t *testing.T) {
	tests := []struct {
		name string
		want PartID
	}{
		{"dataset_part2of3.7z", PartID{Stem: "dataset", Index: 2, Total: 3, Ext: ".7z"}},
		{"/tmp/run/dataset_part10of12.tar.gz", PartID{Stem: "dataset", Index: 10, Total: 12, Ext: ".tar.gz"}},
		{"a_part1of2_part3of4.zip", PartID{Stem: "a_part1of2", Index: 3, Total: 4, Ext: ".zip"}},
		{"noext_part1of1", PartID{Stem: "noext", Index: 1, Total: 1}},
	}

	for _, tt := range tests {
		got, err := ParsePartName(tt.name)
		require.NoError(t, err, tt.name)
		assert.Equal(t, tt.want, got, tt.name)
	}
}

func TestParsePartNameRoundTrip(t *testing.T) {
	id := PartID{Stem: "mock-data", Index: 7, Total: 9, Ext: ".tar.zst"}
	got, err := ParsePartName(id.Name())
	require.NoError(t, err)
	assert.Equal(t, id, got)
}

func TestParsePartNameInvalid(t *testing.T) {
	names := []string{
		"dataset.7z",
		"dataset_part.7z",
		"dataset_partXof3.7z",
		"dataset_part0of3.7z",
		"dataset_part4of3.7z",
		"dataset_part1of0.7z",
		"dataset_part1of3x",
		"_part1of3.7z",
	}

	for _, name := range names {
		_, err := ParsePartName(name)
		assert.True(t, errors.Is(err, ErrBadPartName), "expected ErrBadPartName for %q, got %v", name, err)
	}
}
