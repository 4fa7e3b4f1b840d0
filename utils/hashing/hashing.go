// Package hashing derives content digests from byte streams without
// buffering whole payloads in memory.
package hashing

import (
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"hash"
	"io"
	"os"
)

// DefaultWindowBytes is the read window used when none is configured.
const DefaultWindowBytes = 8 * 1024 * 1024

// Stream hashes everything read through it. Memory use is bounded by the
// caller's read buffer, not the payload size.
type Stream struct {
	src    io.Reader
	hasher hash.Hash
	read   int64
}

// NewStream wraps src so bytes are folded into a sha-256 accumulator as
// they pass through.
func NewStream(src io.Reader) *Stream {
	return &Stream{
		src:    src,
		hasher: sha256.New(),
	}
}

func (s *Stream) Read(p []byte) (int, error) {
	n, err := s.src.Read(p)
	if n > 0 {
		s.hasher.Write(p[:n])
		s.read += int64(n)
	}
	return n, err
}

// BytesRead reports how many bytes have passed through the stream.
func (s *Stream) BytesRead() int64 {
	return s.read
}

// Sum finalizes the digest as lowercase hex. The source must be fully
// drained first or the digest covers only what was read.
func (s *Stream) Sum() string {
	return hex.EncodeToString(s.hasher.Sum(nil))
}

// Copy drains src through a hashing stream into dst using a fixed-size
// window buffer. It returns the byte count and the finalized digest.
func Copy(dst io.Writer, src io.Reader, windowBytes int) (int64, string, error) {
	if windowBytes <= 0 {
		windowBytes = DefaultWindowBytes
	}
	stream := NewStream(src)
	buf := make([]byte, windowBytes)
	n, err := io.CopyBuffer(dst, stream, buf)
	if err != nil {
		return n, "", err
	}
	return n, stream.Sum(), nil
}

// SpillBuffer tees a stream into memory up to a threshold, then spills
// the remainder to a temp file. It exists so the ingest path can hash in
// one pass and replay the same bytes for the storage write in a second
// pass, keeping memory bounded regardless of payload size.
type SpillBuffer struct {
	threshold int64
	mem       bytes.Buffer
	file      *os.File
	size      int64
	closed    bool
}

// NewSpillBuffer returns a buffer that keeps at most threshold bytes in
// memory before switching to disk.
func NewSpillBuffer(threshold int64) *SpillBuffer {
	if threshold <= 0 {
		threshold = DefaultWindowBytes
	}
	return &SpillBuffer{threshold: threshold}
}

func (b *SpillBuffer) Write(p []byte) (int, error) {
	if b.closed {
		return 0, errors.New("spill buffer is closed")
	}
	if b.file == nil && b.size+int64(len(p)) > b.threshold {
		if err := b.spill(); err != nil {
			return 0, err
		}
	}
	var n int
	var err error
	if b.file != nil {
		n, err = b.file.Write(p)
	} else {
		n, err = b.mem.Write(p)
	}
	b.size += int64(n)
	return n, err
}

func (b *SpillBuffer) spill() error {
	f, err := os.CreateTemp("", "media-spill-*")
	if err != nil {
		return fmt.Errorf("create spill file: %w", err)
	}
	if _, err := f.Write(b.mem.Bytes()); err != nil {
		f.Close()
		os.Remove(f.Name())
		return fmt.Errorf("write spill file: %w", err)
	}
	b.mem.Reset()
	b.file = f
	return nil
}

// Size reports the number of buffered bytes.
func (b *SpillBuffer) Size() int64 {
	return b.size
}

// Reader rewinds the buffer and returns a reader over its full contents.
// Safe to call more than once; each call rewinds to the start.
func (b *SpillBuffer) Reader() (io.ReadSeeker, error) {
	if b.closed {
		return nil, errors.New("spill buffer is closed")
	}
	if b.file != nil {
		if _, err := b.file.Seek(0, io.SeekStart); err != nil {
			return nil, fmt.Errorf("rewind spill file: %w", err)
		}
		return b.file, nil
	}
	return bytes.NewReader(b.mem.Bytes()), nil
}

// Close releases the buffer and removes any spill file.
func (b *SpillBuffer) Close() error {
	if b.closed {
		return nil
	}
	b.closed = true
	b.mem.Reset()
	if b.file != nil {
		name := b.file.Name()
		err := b.file.Close()
		if rmErr := os.Remove(name); err == nil {
			err = rmErr
		}
		b.file = nil
		return err
	}
	return nil
}
