package graph

import (
	"errors"
	"fmt"
	"io"
	"iter"
	"os"
)

// UploadAlignment is the unit Graph requires upload chunk sizes to be a
// multiple of.
const UploadAlignment = 320 * 1024

// DefaultChunkSize is 20 alignment units (6.25 MiB).
const DefaultChunkSize = 20 * UploadAlignment

// ByteRange is an inclusive [Start, End] slice of a Total-byte file.
type ByteRange struct {
	Start int64
	End   int64
	Total int64
}

// Len returns the number of bytes in the range.
func (r ByteRange) Len() int64 { return r.End - r.Start + 1 }

// ContentRange renders the Content-Range header value.
func (r ByteRange) ContentRange() string {
	return fmt.Sprintf("bytes %d-%d/%d", r.Start, r.End, r.Total)
}

// Chunk is a range plus its bytes.
type Chunk struct {
	ByteRange
	Data []byte
}

// ByteRangeReader splits a file, or a sub-range of it, into ordered
// fixed-size chunks. Bytes are read on demand so a retried chunk is always
// read fresh.
type ByteRangeReader struct {
	src       io.ReaderAt
	closer    io.Closer
	fileSize  int64
	start     int64
	end       int64
	chunkSize int64
}

// OpenByteRangeReader opens path for chunked reading. Close releases the
// file handle.
func OpenByteRangeReader(path string, chunkSize int64) (*ByteRangeReader, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("%w: opening %s: %w", ErrIO, path, err)
	}
	info, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("%w: stat %s: %w", ErrIO, path, err)
	}
	if info.IsDir() {
		f.Close()
		return nil, fmt.Errorf("%w: %s is a directory", ErrInvalidArgument, path)
	}
	r, err := NewByteRangeReader(f, info.Size(), chunkSize)
	if err != nil {
		f.Close()
		return nil, err
	}
	r.closer = f
	return r, nil
}

// NewByteRangeReader reads size bytes from src.
func NewByteRangeReader(src io.ReaderAt, size, chunkSize int64) (*ByteRangeReader, error) {
	if chunkSize <= 0 {
		return nil, fmt.Errorf("%w: chunk size must be positive, got %d", ErrInvalidArgument, chunkSize)
	}
	if size <= 0 {
		return nil, fmt.Errorf("%w: nothing to read from an empty source", ErrInvalidArgument)
	}
	return &ByteRangeReader{
		src:       src,
		fileSize:  size,
		start:     0,
		end:       size,
		chunkSize: chunkSize,
	}, nil
}

// SubRange returns a reader over [start, end) of the same source. Offsets
// stay absolute, so Content-Range totals still refer to the whole file.
// The returned reader does not own the file handle.
func (r *ByteRangeReader) SubRange(start, end int64) (*ByteRangeReader, error) {
	if start < 0 || start >= end || end > r.fileSize {
		return nil, fmt.Errorf("%w: range [%d, %d) outside file of %d bytes", ErrInvalidArgument, start, end, r.fileSize)
	}
	return &ByteRangeReader{
		src:       r.src,
		fileSize:  r.fileSize,
		start:     start,
		end:       end,
		chunkSize: r.chunkSize,
	}, nil
}

// FileSize is the size of the whole source.
func (r *ByteRangeReader) FileSize() int64 { return r.fileSize }

// Len is the number of bytes this reader covers.
func (r *ByteRangeReader) Len() int64 { return r.end - r.start }

// ChunkSize is the uniform chunk length.
func (r *ByteRangeReader) ChunkSize() int64 { return r.chunkSize }

// Ranges lists every chunk range in ascending order.
func (r *ByteRangeReader) Ranges() []ByteRange {
	ranges, _ := r.RangesFrom(r.start)
	return ranges
}

// RangesFrom lists chunk ranges beginning at offset, used to resume after
// the server acknowledged a prefix.
func (r *ByteRangeReader) RangesFrom(offset int64) ([]ByteRange, error) {
	if offset < r.start || offset > r.end {
		return nil, fmt.Errorf("%w: offset %d outside [%d, %d]", ErrInvalidArgument, offset, r.start, r.end)
	}
	var ranges []ByteRange
	for s := offset; s < r.end; s += r.chunkSize {
		e := min(s+r.chunkSize, r.end) - 1
		ranges = append(ranges, ByteRange{Start: s, End: e, Total: r.fileSize})
	}
	return ranges, nil
}

// ReadRange reads the bytes of br.
func (r *ByteRangeReader) ReadRange(br ByteRange) ([]byte, error) {
	if br.Start < r.start || br.End >= r.end || br.Start > br.End {
		return nil, fmt.Errorf("%w: %s outside reader bounds", ErrInvalidArgument, br.ContentRange())
	}
	buf := make([]byte, br.Len())
	n, err := r.src.ReadAt(buf, br.Start)
	if err != nil && !(errors.Is(err, io.EOF) && int64(n) == br.Len()) {
		return nil, fmt.Errorf("%w: reading %s: %w", ErrIO, br.ContentRange(), err)
	}
	return buf, nil
}

// Chunks yields every chunk lazily. Iteration stops at the first I/O error,
// which is yielded with a zero chunk.
func (r *ByteRangeReader) Chunks() iter.Seq2[Chunk, error] {
	return func(yield func(Chunk, error) bool) {
		for _, br := range r.Ranges() {
			data, err := r.ReadRange(br)
			if err != nil {
				yield(Chunk{}, err)
				return
			}
			if !yield(Chunk{ByteRange: br, Data: data}, nil) {
				return
			}
		}
	}
}

// Close releases the file handle if this reader opened it.
func (r *ByteRangeReader) Close() error {
	if r.closer == nil {
		return nil
	}
	err := r.closer.Close()
	r.closer = nil
	return err
}
