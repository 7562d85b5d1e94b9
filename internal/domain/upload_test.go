package domain

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewUploadSession(t *testing.T) {
	s := NewUploadSession("upload-1", "docs/a.bin")

	assert.Equal(t, "upload-1", s.ID)
	assert.Equal(t, "docs/a.bin", s.Key)
	assert.Equal(t, SessionStateInitiated, s.State)
	assert.False(t, s.InitiatedAt.IsZero())
}

func TestSortParts(t *testing.T) {
	parts := []PartRecord{
		{PartNumber: 3, ETag: "c"},
		{PartNumber: 1, ETag: "a"},
		{PartNumber: 2, ETag: "b"},
	}
	SortParts(parts)

	assert.Equal(t, []PartRecord{
		{PartNumber: 1, ETag: "a"},
		{PartNumber: 2, ETag: "b"},
		{PartNumber: 3, ETag: "c"},
	}, parts)
}

func TestValidateParts(t *testing.T) {
	require.NoError(t, ValidateParts([]PartRecord{
		{PartNumber: 1}, {PartNumber: 2}, {PartNumber: 3},
	}))

	require.ErrorIs(t, ValidateParts(nil), ErrNoParts)

	require.ErrorIs(t, ValidateParts([]PartRecord{
		{PartNumber: 1}, {PartNumber: 3},
	}), ErrPartOrder, "gaps are rejected")

	require.ErrorIs(t, ValidateParts([]PartRecord{
		{PartNumber: 1}, {PartNumber: 1}, {PartNumber: 2},
	}), ErrPartOrder, "duplicates are rejected")

	require.ErrorIs(t, ValidateParts([]PartRecord{
		{PartNumber: 2}, {PartNumber: 3},
	}), ErrPartOrder, "numbering must start at 1")
}
