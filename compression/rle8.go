package compression

import (
	"bufio"
	"bytes"
	"errors"
	"fmt"
	"io"
	"math"
)

// byteRun is a single run of one repeated byte value, as produced by
// scanning a disk image byte-by-byte looking for the null runs that make up
// most of a mostly-empty image.
type byteRun struct {
	// value is the byte value for this run.
	value byte
	// runLength gives the number of times value occurs in the run. A valid
	// run always has this 1 or greater; a value less than 1 indicates EOF or
	// an error.
	runLength int
}

// invalidRun is returned by [runScanner.next] on EOF or error.
var invalidRun = byteRun{0, 0}

// runScanner wraps a byte stream and groups consecutive repeats of the same
// byte into a single byteRun, the way the `uniq` command line utility groups
// repeated lines. CompressRLE8 scans a disk image through this before
// applying the RLE8 escape encoding below.
type runScanner struct {
	rd io.ByteScanner
}

// newRunScanner wraps rd for run scanning.
func newRunScanner(rd io.Reader) runScanner {
	return runScanner{rd: bufio.NewReader(rd)}
}

// next returns the next run of repeated bytes in the stream. The length of a
// valid run is guaranteed to be in the range [1, math.MaxInt). If the
// returned run length is non-zero, the error is either nil or [io.EOF]; if
// it's zero, the error is [io.EOF] or another (non-nil) error.
func (s runScanner) next() (byteRun, error) {
	firstByte, err := s.rd.ReadByte()
	if err != nil {
		return invalidRun, err
	}

	runLength := 1
	for ; runLength < math.MaxInt; runLength++ {
		currentByte, err := s.rd.ReadByte()
		if err != nil {
			if errors.Is(err, io.EOF) {
				// The previous byte read was part of the current run, so
				// there's nothing to unread.
				return byteRun{value: firstByte, runLength: runLength}, io.EOF
			}
			return invalidRun, err
		}

		if currentByte != firstByte {
			s.rd.UnreadByte()
			return byteRun{value: firstByte, runLength: runLength}, nil
		}
	}

	// Bail out before overflowing runLength; this run will be picked back up
	// as a fresh run starting at the next byte.
	return byteRun{value: firstByte, runLength: runLength}, nil
}

// CompressRLE8 reads bytes from the input and writes compressed data from the
// output until the input is exhausted. The return value is the number of bytes
// written, only valid if no error occurred.
func CompressRLE8(input io.Reader, output io.Writer) (int64, error) {
	scanner := newRunScanner(input)

	totalBytesWritten := int64(0)
	for {
		run, getRunErr := scanner.next()
		if getRunErr != nil && !errors.Is(getRunErr, io.EOF) {
			// An error was encountered and it's *not* EOF.
			return totalBytesWritten, getRunErr
		}

		for run.runLength >= 2 {
			var repeatCount int
			if run.runLength > 257 {
				repeatCount = 255
			} else {
				repeatCount = run.runLength - 2
			}

			n, err := output.Write([]byte{run.value, run.value, byte(repeatCount)})
			if err != nil {
				return totalBytesWritten, err
			}
			totalBytesWritten += int64(n)
			run.runLength -= repeatCount + 2
		}

		if run.runLength == 1 {
			n, err := output.Write([]byte{run.value})
			if err != nil {
				return totalBytesWritten, err
			}
			totalBytesWritten += int64(n)
		}

		// We bail at the beginning of the loop if an error occurred and it's
		// *not* EOF, so if the error here is non-nil then that means it *must*
		// be EOF. That means we finished without errors.
		if getRunErr != nil {
			return totalBytesWritten, nil
		}
	}
}

func DecompressRLE8(input io.Reader, output io.Writer) (int64, error) {
	source := bufio.NewReader(input)
	lastByteRead := -1
	totalBytesWritten := int64(0)

	for {
		currentByte, err := source.ReadByte()
		if err != nil {
			if errors.Is(err, io.EOF) {
				return totalBytesWritten, nil
			}
			return totalBytesWritten, fmt.Errorf("error reading input: %w", err)
		}

		var currentOutput []byte
		if int(currentByte) == lastByteRead {
			// Got two bytes in a row that are the same. The next byte is a repeat
			// count.
			repeatCountByte, err := source.ReadByte()
			if err != nil {
				if errors.Is(err, io.EOF) {
					err = fmt.Errorf(
						"%w: missing repeat count after two %02x bytes",
						io.ErrUnexpectedEOF,
						uint(lastByteRead),
					)
				}
				return totalBytesWritten, fmt.Errorf("failed to read repeat count: %w", err)
			}

			// Note we're writing out repeatCount + 1 instead of +2. We do this
			// because on the previous iteration of the loop we already wrote it
			// out once.
			currentOutput = bytes.Repeat([]byte{currentByte}, int(repeatCountByte)+1)

			// Reset the last byte read since we're done with this group. If we
			// didn't do this, runs of 258+ bytes would be decompressed
			// incorrectly, adding in extra bytes.
			lastByteRead = -1
		} else {
			lastByteRead = int(currentByte)
			currentOutput = []byte{currentByte}
		}

		n, err := output.Write(currentOutput)
		if err != nil {
			return totalBytesWritten, fmt.Errorf("failed to write to output: %w", err)
		}
		totalBytesWritten += int64(n)
	}
}
