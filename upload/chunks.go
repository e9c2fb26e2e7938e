package upload

import (
	"fmt"
	"io"
	"os"
)

// Chunk is one contiguous slice of the file, identified by its 0-based index.
// Every chunk is exactly PartSize bytes long except possibly the last, and no
// chunk is ever empty.
type Chunk struct {
	Index int
	Data  []byte
	Last  bool
}

// ChunkSource yields file chunks by index, on demand. Reads are deterministic:
// the same index always yields the same bytes for a given file on disk, so a
// retried part re-reads identical data.
type ChunkSource interface {
	ReadChunk(index int) (Chunk, error)
	Close() error
}

// FileChunkSource reads chunks from a file opened read-only. Chunk reads use
// independent positioned reads, so concurrent fetches need no mutual exclusion.
type FileChunkSource struct {
	file *os.File
	plan Plan
}

// OpenFileChunkSource opens the file backing the given plan.
func OpenFileChunkSource(path string, plan Plan) (*FileChunkSource, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open file: %w", err)
	}

	return &FileChunkSource{
		file: file,
		plan: plan,
	}, nil
}

// ReadChunk reads the chunk at the given index.
func (s *FileChunkSource) ReadChunk(index int) (Chunk, error) {
	if index < 0 || index >= s.plan.TotalParts {
		return Chunk{}, fmt.Errorf("part index %d out of range [0, %d)", index, s.plan.TotalParts)
	}

	last := index == s.plan.TotalParts-1
	size := s.plan.PartSize
	if last {
		size = s.plan.LastPartSize()
	}

	data := make([]byte, size)
	n, err := s.file.ReadAt(data, int64(index)*s.plan.PartSize)
	if err != nil && err != io.EOF {
		return Chunk{}, fmt.Errorf("read part %d: %w", index+1, err)
	}
	if n == 0 {
		return Chunk{}, fmt.Errorf("%w: part %d", ErrEmptyChunk, index+1)
	}

	return Chunk{Index: index, Data: data[:n], Last: last}, nil
}

// Close closes the underlying file.
func (s *FileChunkSource) Close() error {
	if s.file != nil {
		return s.file.Close()
	}
	return nil
}
