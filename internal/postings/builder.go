package postings

import (
	"bufio"
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
)

var (
	// ErrFinished is returned by a builder after Finish.
	ErrFinished = errors.New("postings: builder already finished")
	// ErrOutOfOrder is returned by InsertID when id is not the next term id.
	ErrOutOfOrder = errors.New("postings: term id out of order")
	// ErrNotMemory is returned by Bytes on a builder that streams to a writer.
	ErrNotMemory = errors.New("postings: builder does not buffer in memory")
)

const chunkEntries = 256

// Builder streams posting lists into the store layout. Lists must be
// inserted in ascending term-id order without gaps; the id of a list is the
// number of lists inserted before it. A Builder is not safe for concurrent use.
type Builder struct {
	dst      io.Writer
	w        *bufio.Writer
	mem      *bytes.Buffer
	ranges   []byte
	offset   uint64
	next     uint64
	written  int64
	err      error
	finished bool
	chunk    [chunkEntries * EntrySize]byte
}

// NewBuilder returns a builder writing to w.
func NewBuilder(w io.Writer) *Builder {
	return &Builder{dst: w, w: bufio.NewWriterSize(w, 64*1024)}
}

// NewMemoryBuilder returns a builder that accumulates the store in memory.
func NewMemoryBuilder() *Builder {
	mem := new(bytes.Buffer)
	b := NewBuilder(mem)
	b.mem = mem
	return b
}

// Len returns the number of lists inserted so far, which is also the id the
// next Insert will receive.
func (b *Builder) Len() uint64 { return b.next }

// Written returns the number of bytes emitted so far.
func (b *Builder) Written() int64 { return b.written }

// Insert appends the next posting list.
func (b *Builder) Insert(entries []Entry) error {
	if b.finished {
		return ErrFinished
	}
	if b.err != nil {
		return b.err
	}
	for len(entries) > 0 {
		n := min(len(entries), chunkEntries)
		for i, e := range entries[:n] {
			PutEntry(b.chunk[i*EntrySize:], e)
		}
		if err := b.write(b.chunk[:n*EntrySize]); err != nil {
			return err
		}
		entries = entries[n:]
		b.offset += uint64(n)
	}
	return b.closeRange()
}

// InsertRaw appends the next posting list from already encoded entries.
func (b *Builder) InsertRaw(encoded []byte) error {
	if b.finished {
		return ErrFinished
	}
	if b.err != nil {
		return b.err
	}
	if len(encoded)%EntrySize != 0 {
		return fmt.Errorf("postings: raw list of %d bytes is not a multiple of %d", len(encoded), EntrySize)
	}
	if err := b.write(encoded); err != nil {
		return err
	}
	b.offset += uint64(len(encoded) / EntrySize)
	return b.closeRange()
}

// InsertID appends the list of term id, which must equal Len().
func (b *Builder) InsertID(id uint64, entries []Entry) error {
	if b.finished {
		return ErrFinished
	}
	if id != b.next {
		return fmt.Errorf("%w: got %d, want %d", ErrOutOfOrder, id, b.next)
	}
	return b.Insert(entries)
}

func (b *Builder) closeRange() error {
	start := uint64(0)
	if n := len(b.ranges); n > 0 {
		start = readRange(b.ranges[n-RangeSize:]).End
	}
	var rb [RangeSize]byte
	putRange(rb[:], Range{Start: start, End: b.offset})
	b.ranges = append(b.ranges, rb[:]...)
	b.next++
	return nil
}

func (b *Builder) write(p []byte) error {
	n, err := b.w.Write(p)
	b.written += int64(n)
	if err != nil {
		b.err = fmt.Errorf("postings: writing entries: %w", err)
		return b.err
	}
	return nil
}

// Finish writes the ranges and the trailer and flushes the writer.
func (b *Builder) Finish() error {
	if b.finished {
		return ErrFinished
	}
	if b.err != nil {
		return b.err
	}
	var trailer [TrailerSize]byte
	binary.LittleEndian.PutUint64(trailer[:], uint64(len(b.ranges)))
	if err := b.write(b.ranges); err != nil {
		return err
	}
	if err := b.write(trailer[:]); err != nil {
		return err
	}
	if err := b.w.Flush(); err != nil {
		b.err = fmt.Errorf("postings: flushing: %w", err)
		return b.err
	}
	b.finished = true
	b.ranges = nil
	return nil
}

// IntoInner finishes the builder if needed and returns the underlying writer.
func (b *Builder) IntoInner() (io.Writer, error) {
	if !b.finished {
		if err := b.Finish(); err != nil {
			return nil, err
		}
	}
	return b.dst, nil
}

// Bytes finishes a memory builder if needed and returns the store buffer.
func (b *Builder) Bytes() ([]byte, error) {
	if b.mem == nil {
		return nil, ErrNotMemory
	}
	if _, err := b.IntoInner(); err != nil {
		return nil, err
	}
	return b.mem.Bytes(), nil
}
