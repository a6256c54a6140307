package mmap

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/hexbee-net/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeTempFile(t *testing.T, data []byte) *os.File {
	t.Helper()

	path := filepath.Join(t.TempDir(), "region.bin")
	require.NoError(t, os.WriteFile(path, data, 0o600))

	f, err := os.Open(path)
	require.NoError(t, err)
	t.Cleanup(func() { _ = f.Close() })

	return f
}

func TestRegion(t *testing.T) {
	t.Run("Map", TestRegion_Map)
	t.Run("Map_Empty", TestRegion_Map_Empty)
	t.Run("Map_ClosedFile", TestRegion_Map_ClosedFile)
	t.Run("Slice", TestRegion_Slice)
	t.Run("Slice_OutOfBounds", TestRegion_Slice_OutOfBounds)
	t.Run("Buffer_HoldsReference", TestRegion_Buffer_HoldsReference)
	t.Run("Release_Unmaps", TestRegion_Release_Unmaps)
	t.Run("Contains", TestRegion_Contains)
}

func TestRegion_Map(t *testing.T) {
	t.Parallel()

	f := writeTempFile(t, []byte("0123456789"))

	r, err := Map(f)
	require.NoError(t, err)

	assert.Equal(t, []byte("0123456789"), r.Bytes())
	assert.Equal(t, int64(10), r.Len())
	assert.Equal(t, int64(1), r.RefCount())
	assert.NoError(t, r.Release())
	assert.True(t, r.Released())
}

func TestRegion_Map_Empty(t *testing.T) {
	t.Parallel()

	f := writeTempFile(t, nil)

	r, err := Map(f)
	require.NoError(t, err)

	assert.Equal(t, int64(0), r.Len())
	assert.NoError(t, r.Release())
}

func TestRegion_Map_ClosedFile(t *testing.T) {
	t.Parallel()

	f := writeTempFile(t, []byte("data"))
	require.NoError(t, f.Close())

	_, err := Map(f)

	assert.EqualError(t, errors.Cause(err), ErrMappingFailure.Error())
}

func TestRegion_Slice(t *testing.T) {
	t.Parallel()

	data := []byte("abcdefgh")
	r := NewRegion(data, nil, "mem")

	b, err := r.Slice(2, 3)
	require.NoError(t, err)

	assert.Equal(t, []byte("cde"), b)
	assert.Same(t, &data[2], &b[0], "slice must alias the region")
	assert.Equal(t, 3, cap(b))
}

func TestRegion_Slice_OutOfBounds(t *testing.T) {
	t.Parallel()

	r := NewRegion([]byte("abcdefgh"), nil, "mem")

	for _, tc := range [][2]int64{{-1, 2}, {0, 9}, {8, 1}, {4, -1}, {9, 0}} {
		_, err := r.Slice(tc[0], tc[1])
		assert.EqualError(t, errors.Cause(err), errOutOfBounds.Error(), "%v", tc)
	}
}

func TestRegion_Buffer_HoldsReference(t *testing.T) {
	t.Parallel()

	released := 0
	r := NewRegion([]byte("abcdefgh"), func([]byte) error {
		released++
		return nil
	}, "mem")

	buf, err := r.Buffer(0, 4)
	require.NoError(t, err)
	assert.Equal(t, int64(2), r.RefCount())

	require.NoError(t, r.Release())
	assert.Equal(t, 0, released, "buffer still holds the region")
	assert.Equal(t, []byte("abcd"), buf.Bytes())

	buf.Release()
	assert.Equal(t, 1, released)
	assert.True(t, r.Released())
}

func TestRegion_Release_Unmaps(t *testing.T) {
	t.Parallel()

	f := writeTempFile(t, []byte("mapped bytes"))

	r, err := Map(f)
	require.NoError(t, err)

	r.Retain()
	require.NoError(t, r.Release())
	assert.False(t, r.Released())

	require.NoError(t, r.Release())
	assert.True(t, r.Released())
	assert.Nil(t, r.Bytes())

	_, err = r.Slice(0, 1)
	assert.EqualError(t, errors.Cause(err), errReleased.Error())
}

func TestRegion_Contains(t *testing.T) {
	t.Parallel()

	data := []byte("abcdefgh")
	r := NewRegion(data, nil, "mem")

	assert.True(t, r.Contains(data[1:4]))
	assert.True(t, r.Contains(data))
	assert.False(t, r.Contains(append([]byte(nil), data...)))
	assert.False(t, r.Contains(nil))
}
