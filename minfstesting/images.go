package minfstesting

import (
	"bytes"
	"io"
	"testing"

	"github.com/stretchr/testify/require"
	"github.com/xaionaro-go/bytesextra"

	minfs "github.com/block-fs/minfs"
	"github.com/block-fs/minfs/blockcache"
	"github.com/block-fs/minfs/compression"
)

// LoadDiskImage decompresses a gzipped, RLE8-encoded golden image and
// returns a stream over the result. Writes to the stream never touch
// compressedImageBytes; the stream's size is fixed to
// blockSize*totalBlocks, and a write past that bound fails.
func LoadDiskImage(
	t *testing.T, compressedImageBytes []byte, blockSize, totalBlocks uint,
) io.ReadWriteSeeker {
	require.Greater(t, len(compressedImageBytes), 0, "compressed image is empty")

	imageBytes, err := compression.DecompressImageToBytes(bytes.NewReader(compressedImageBytes))
	require.NoError(t, err)
	require.Equal(
		t, totalBlocks*blockSize, uint(len(imageBytes)),
		"uncompressed image is the wrong size")

	return bytesextra.NewReadWriteSeeker(imageBytes)
}

// CacheOverStream builds a blockcache.Cache whose fetch/flush callbacks seek
// within stream, letting a golden image loaded with LoadDiskImage (or any
// other ReadWriteSeeker) back a real Cache.
func CacheOverStream(
	t *testing.T, stream io.ReadWriteSeeker, blockSize, totalBlocks uint,
) *blockcache.Cache {
	fetch := func(block minfs.BlockNumber, buffer []byte) error {
		if _, err := stream.Seek(int64(uint(block)*blockSize), io.SeekStart); err != nil {
			return err
		}
		_, err := io.ReadFull(stream, buffer)
		return err
	}
	flush := func(block minfs.BlockNumber, buffer []byte) error {
		if _, err := stream.Seek(int64(uint(block)*blockSize), io.SeekStart); err != nil {
			return err
		}
		_, err := stream.Write(buffer)
		return err
	}
	return blockcache.New(blockSize, totalBlocks, fetch, flush)
}
