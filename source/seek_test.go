package source

import (
	"io"
	"testing"

	"github.com/hexbee-net/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSeek(t *testing.T) {
	t.Run("Positions", TestSeek_Positions)
	t.Run("InvalidOffset", TestSeek_InvalidOffset)
	t.Run("InvalidWhence", TestSeek_InvalidWhence)
}

func TestSeek_Positions(t *testing.T) {
	t.Parallel()

	testCases := []struct {
		current, offset int64
		whence          int
		expected        int64
	}{
		{0, 4, io.SeekStart, 4},
		{4, 3, io.SeekCurrent, 7},
		{7, -2, io.SeekCurrent, 5},
		{0, -3, io.SeekEnd, 7},
		{3, 0, io.SeekEnd, 10},
		{3, 10, io.SeekStart, 10},
	}

	for _, tc := range testCases {
		pos, err := Seek(tc.current, 10, tc.offset, tc.whence)
		require.NoError(t, err)
		assert.Equal(t, tc.expected, pos)
	}
}

func TestSeek_InvalidOffset(t *testing.T) {
	t.Parallel()

	for _, tc := range [][2]int64{{-1, io.SeekStart}, {11, io.SeekStart}, {-11, io.SeekEnd}, {1, io.SeekEnd}} {
		pos, err := Seek(5, 10, tc[0], int(tc[1]))
		assert.EqualError(t, errors.Cause(err), ErrInvalidOffset.Error())
		assert.Equal(t, int64(5), pos)
	}
}

func TestSeek_InvalidWhence(t *testing.T) {
	t.Parallel()

	_, err := Seek(0, 10, 0, 42)
	assert.EqualError(t, errors.Cause(err), ErrWhence.Error())
}
