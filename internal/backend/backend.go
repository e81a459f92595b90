// Copyright 2026 The JLS Authors
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
// http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package backend wraps a single OS file descriptor with the positioned
// I/O contract the chunk layer (package jls, Raw) is built on: a tracked
// file position, a tracked file-end offset, strict (non-partial) reads,
// and an exclusive-write share lock for writer-mode opens. Nothing above
// this layer ever calls os.File directly.
package backend

import (
	"io"
	"os"

	"github.com/edsrzf/mmap-go"
	"github.com/pkg/errors"
	"golang.org/x/sys/unix"
)

// Mode selects how the underlying file is opened.
type Mode int

const (
	// ModeRead opens an existing file read-only; no writers are locked out.
	ModeRead Mode = iota
	// ModeWrite truncates (or creates) the file for exclusive writing.
	ModeWrite
	// ModeAppend opens an existing file read/write, positioned at its end.
	ModeAppend
)

// Backend is a positioned byte-I/O abstraction over one host file. It is
// not safe for concurrent use; callers serialize access the way Raw does.
type Backend struct {
	f    *os.File
	mode Mode

	fpos int64 // current file position
	fend int64 // highest byte offset known to be valid

	mmap mmap.MMap // optional read-only mapping, ModeRead only
}

// Open opens path in the given mode. ModeWrite truncates an existing file;
// ModeAppend requires the file to already exist and positions at its end;
// ModeRead fails if the file does not exist.
func Open(path string, mode Mode) (*Backend, error) {
	var (
		f   *os.File
		err error
	)
	switch mode {
	case ModeWrite:
		f, err = os.OpenFile(path, os.O_RDWR|os.O_CREATE|os.O_TRUNC, 0644)
	case ModeAppend:
		f, err = os.OpenFile(path, os.O_RDWR, 0644)
	case ModeRead:
		f, err = os.Open(path)
	default:
		return nil, errors.Errorf("backend: invalid mode %d", mode)
	}
	if err != nil {
		return nil, errors.Wrapf(err, "backend: open %q", path)
	}

	b := &Backend{f: f, mode: mode}

	if mode == ModeWrite || mode == ModeAppend {
		if err := lockExclusive(f); err != nil {
			f.Close()
			return nil, errors.Wrapf(err, "backend: lock %q", path)
		}
	}

	fi, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, errors.Wrapf(err, "backend: stat %q", path)
	}
	b.fend = fi.Size()

	if mode == ModeAppend {
		if _, err := f.Seek(0, io.SeekEnd); err != nil {
			f.Close()
			return nil, errors.Wrap(err, "backend: seek to end")
		}
		b.fpos = b.fend
	}

	return b, nil
}

func lockExclusive(f *os.File) error {
	return unix.Flock(int(f.Fd()), unix.LOCK_EX|unix.LOCK_NB)
}

// Close releases the backend's file handle (and mapping, if any). It does
// not sync; callers wanting durability call Flush first.
func (b *Backend) Close() error {
	if b.mmap != nil {
		_ = b.mmap.Unmap()
		b.mmap = nil
	}
	return b.f.Close()
}

// Read fills buf completely or returns an error; short reads from the
// underlying file are an I/O error rather than a silently partial result,
// matching spec.md's "reads of fewer bytes than requested return an I/O
// error" rule.
func (b *Backend) Read(buf []byte) error {
	n, err := io.ReadFull(b.f, buf)
	b.fpos += int64(n)
	if err != nil {
		return errors.Wrapf(err, "backend: short read (%d of %d bytes)", n, len(buf))
	}
	return nil
}

// Write appends bytes at the current position, advancing fpos and
// extending fend if this write reaches past the previously known end.
func (b *Backend) Write(p []byte) error {
	n, err := b.f.Write(p)
	b.fpos += int64(n)
	if b.fpos > b.fend {
		b.fend = b.fpos
	}
	if err != nil {
		return errors.Wrapf(err, "backend: short write (%d of %d bytes)", n, len(p))
	}
	return nil
}

// Whence mirrors io.Seeker's constants so callers don't need to import os.
type Whence int

const (
	SeekStart   Whence = Whence(io.SeekStart)
	SeekCurrent Whence = Whence(io.SeekCurrent)
	SeekEnd     Whence = Whence(io.SeekEnd)
)

// Seek repositions the backend and resyncs its fpos bookkeeping.
func (b *Backend) Seek(offset int64, whence Whence) error {
	pos, err := b.f.Seek(offset, int(whence))
	if err != nil {
		return errors.Wrap(err, "backend: seek")
	}
	b.fpos = pos
	return nil
}

// Tell returns the current file position.
func (b *Backend) Tell() int64 { return b.fpos }

// End returns the highest byte offset known to be valid.
func (b *Backend) End() int64 { return b.fend }

// Flush pushes the file's data and metadata to stable storage.
func (b *Backend) Flush() error {
	return errors.Wrap(b.f.Sync(), "backend: sync")
}

// TruncateToCurrentPosition discards everything in the file past fpos,
// the primitive Repair uses to cut a file back to its last valid chunk.
func (b *Backend) TruncateToCurrentPosition() error {
	if err := b.f.Truncate(b.fpos); err != nil {
		return errors.Wrap(err, "backend: truncate")
	}
	b.fend = b.fpos
	return nil
}

// EnableMmap maps the whole file read-only so that ReadAt serves its reads
// from the mapping; Read and Seek do not use it. It is only ever used for
// ModeRead backends; it is an acceleration, not part of the read contract,
// so callers that skip it still get identical results from Read/Seek.
func (b *Backend) EnableMmap() error {
	if b.mode != ModeRead {
		return errors.New("backend: mmap is only supported for read-mode backends")
	}
	if b.fend == 0 {
		return nil
	}
	m, err := mmap.MapRegion(b.f, int(b.fend), mmap.RDONLY, 0, 0)
	if err != nil {
		return errors.Wrap(err, "backend: mmap")
	}
	b.mmap = m
	return nil
}

// ReadAt reads length bytes at an absolute offset without disturbing fpos,
// preferring the mmap if one is active. Repair uses it to read the file
// header and to scan the file tail for the last intact chunk.
func (b *Backend) ReadAt(offset int64, length int) ([]byte, error) {
	if offset < 0 || offset+int64(length) > b.fend {
		return nil, errors.Errorf("backend: read range [%d,%d) exceeds file end %d", offset, offset+int64(length), b.fend)
	}
	if b.mmap != nil {
		out := make([]byte, length)
		copy(out, b.mmap[offset:offset+int64(length)])
		return out, nil
	}
	out := make([]byte, length)
	n, err := b.f.ReadAt(out, offset)
	if err != nil && !(err == io.EOF && n == length) {
		return nil, errors.Wrapf(err, "backend: ReadAt(%d, %d)", offset, length)
	}
	return out, nil
}
