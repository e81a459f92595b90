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

package jls

import (
	"github.com/jlscore/jls/internal/backend"
	"github.com/jlscore/jls/internal/crc32c"
)

// raw wraps a Backend with chunk framing: the file header, the
// tag-length-value chunk header/payload/pad/footer-CRC layout, and
// forward/reverse/absolute chunk navigation. Nothing above raw ever
// touches byte offsets directly except to remember them as link targets.
type raw struct {
	be   *backend.Backend
	mode backend.Mode

	// length is the file header's length field: 0 means the file was
	// never closed cleanly and needs repair.
	length uint64

	cur       chunkHeader
	curOffset int64 // absolute offset of cur's header

	// lastPayloadLength is the payload_length of the most recently
	// *written* chunk, auto-filled into payload_prev_length of the next
	// chunk wr() writes so callers never have to track it themselves.
	lastPayloadLength uint32
}

func openRaw(path string, mode backend.Mode) (*raw, error) {
	be, err := backend.Open(path, mode)
	if err != nil {
		return nil, err
	}
	r := &raw{be: be, mode: mode}

	switch mode {
	case backend.ModeWrite:
		if err := r.writeFileHeader(0); err != nil {
			be.Close()
			return nil, err
		}
	case backend.ModeRead, backend.ModeAppend:
		if err := r.readFileHeader(); err != nil {
			be.Close()
			return nil, err
		}
	}
	return r, nil
}

func (r *raw) writeFileHeader(length uint64) error {
	b := newBuf(fileHeaderLen)
	b.WrBytes(fileIdent[:])
	b.WrU64(length)
	b.WrU32(fileVersion)
	crc := crc32c.Sum(b.Bytes())
	b.WrU32(crc)
	if err := r.be.Write(b.Bytes()); err != nil {
		return wrap(IO, err, "raw: write file header")
	}
	r.length = length
	return nil
}

func (r *raw) readFileHeader() error {
	hdr := make([]byte, fileHeaderLen)
	if err := r.be.Read(hdr); err != nil {
		return wrap(UnsupportedFile, err, "raw: read file header")
	}
	b := bufFromBytes(hdr)
	ident, _ := b.RdBytes(16)
	for i, want := range fileIdent {
		if ident[i] != want {
			return newErr(UnsupportedFile, "raw: bad file identification bytes")
		}
	}
	length, _ := b.RdU64()
	version, _ := b.RdU32()
	if version>>24 != fileVersion>>24 {
		return newErr(UnsupportedFile, "raw: unsupported major version %d", version>>24)
	}
	storedCRC, _ := b.RdU32()
	if crc32c.Sum(hdr[:28]) != storedCRC {
		return newErr(MessageIntegrity, "raw: file header CRC mismatch")
	}
	r.length = length
	return nil
}

func (r *raw) close() error {
	if r.mode == backend.ModeWrite || r.mode == backend.ModeAppend {
		if err := r.be.Seek(0, backend.SeekStart); err != nil {
			return err
		}
		if err := r.writeFileHeader(uint64(r.be.End())); err != nil {
			return err
		}
	}
	return r.be.Close()
}

// wr writes one chunk (header + payload + pad + footer CRC), 8-byte
// aligned, and returns the absolute offset its header was written at.
func (r *raw) wr(h chunkHeader, payload []byte) (int64, error) {
	offset := r.be.Tell()
	h.payloadLength = uint32(len(payload))
	h.payloadPrevLength = r.lastPayloadLength

	raw := h.encode()
	var crcInput [crc32c.HeaderLen]byte
	copy(crcInput[:], raw[:crc32c.HeaderLen])
	h.crc32 = crc32c.Header(crcInput)
	raw = h.encode()

	if err := r.be.Write(raw[:]); err != nil {
		return 0, wrap(IO, err, "raw: write chunk header")
	}
	if err := r.be.Write(payload); err != nil {
		return 0, wrap(IO, err, "raw: write chunk payload")
	}
	pad := int(paddedPayloadSize(h.payloadLength)) - len(payload)
	if pad > 0 {
		if err := r.be.Write(make([]byte, pad)); err != nil {
			return 0, wrap(IO, err, "raw: write chunk padding")
		}
	}
	footer := make([]byte, 4)
	putU32LE(footer, crc32c.Sum(payload))
	if err := r.be.Write(footer); err != nil {
		return 0, wrap(IO, err, "raw: write chunk footer CRC")
	}

	r.cur = h
	r.curOffset = offset
	r.lastPayloadLength = h.payloadLength
	return offset, nil
}

func putU32LE(b []byte, v uint32) {
	b[0] = byte(v)
	b[1] = byte(v >> 8)
	b[2] = byte(v >> 16)
	b[3] = byte(v >> 24)
}

func (r *raw) rdHeader() (chunkHeader, error) {
	offset := r.be.Tell()
	raw := make([]byte, chunkHeaderLen)
	if err := r.be.Read(raw); err != nil {
		return chunkHeader{}, wrap(IO, err, "raw: read chunk header")
	}
	h, err := decodeChunkHeader(raw)
	if err != nil {
		return chunkHeader{}, err
	}
	var crcInput [crc32c.HeaderLen]byte
	copy(crcInput[:], raw[:crc32c.HeaderLen])
	if crc32c.Header(crcInput) != h.crc32 {
		return chunkHeader{}, newErr(MessageIntegrity, "raw: chunk header CRC mismatch at offset %d", offset)
	}
	r.cur = h
	r.curOffset = offset
	return h, nil
}

// rdPayload reads the current chunk's payload (validating its footer CRC)
// assuming the cursor sits immediately after its header.
func (r *raw) rdPayload() ([]byte, error) {
	h := r.cur
	total := int(paddedPayloadSize(h.payloadLength)) + 4
	raw := make([]byte, total)
	if err := r.be.Read(raw); err != nil {
		return nil, wrap(IO, err, "raw: read chunk payload")
	}
	payload := raw[:h.payloadLength]
	footer := raw[len(raw)-4:]
	want := u32LE(footer)
	if crc32c.Sum(payload) != want {
		return nil, newErr(MessageIntegrity, "raw: payload CRC mismatch at offset %d", r.curOffset)
	}
	return payload, nil
}

func u32LE(b []byte) uint32 {
	return uint32(b[0]) | uint32(b[1])<<8 | uint32(b[2])<<16 | uint32(b[3])<<24
}

// rd reads header+payload of the chunk starting at the current position.
func (r *raw) rd() (chunkHeader, []byte, error) {
	h, err := r.rdHeader()
	if err != nil {
		return chunkHeader{}, nil, err
	}
	p, err := r.rdPayload()
	if err != nil {
		return chunkHeader{}, nil, err
	}
	return h, p, nil
}

// chunkSeek jumps to an absolute offset and reads its header.
func (r *raw) chunkSeek(offset int64) (chunkHeader, error) {
	if err := r.be.Seek(offset, backend.SeekStart); err != nil {
		return chunkHeader{}, wrap(IO, err, "raw: seek to %d", offset)
	}
	return r.rdHeader()
}

// chunkNext advances past the current chunk and reads the next header.
func (r *raw) chunkNext() (chunkHeader, error) {
	next := r.curOffset + chunkTotalSize(r.cur.payloadLength)
	if next >= r.be.End() {
		return chunkHeader{}, newErr(Empty, "raw: chunk_next at end of file")
	}
	if err := r.be.Seek(next, backend.SeekStart); err != nil {
		return chunkHeader{}, wrap(IO, err, "raw: seek to next chunk")
	}
	return r.rdHeader()
}

// chunkPrev steps back to the chunk physically preceding the current one,
// using payload_prev_length to compute its size.
func (r *raw) chunkPrev() (chunkHeader, error) {
	if r.curOffset == int64(fileHeaderLen) {
		return chunkHeader{}, newErr(Empty, "raw: chunk_prev at start of file")
	}
	prevSize := chunkTotalSize(r.cur.payloadPrevLength)
	prevOffset := r.curOffset - prevSize
	if prevOffset < int64(fileHeaderLen) {
		return chunkHeader{}, newErr(Truncated, "raw: chunk_prev offset underflow")
	}
	return r.chunkSeek(prevOffset)
}

// itemNext follows the current header's item_next link.
func (r *raw) itemNext() (chunkHeader, error) {
	if r.cur.itemNext == 0 {
		return chunkHeader{}, newErr(Empty, "raw: item_next is nil")
	}
	return r.chunkSeek(int64(r.cur.itemNext))
}

// itemPrev follows the current header's item_prev link.
func (r *raw) itemPrev() (chunkHeader, error) {
	if r.cur.itemPrev == 0 {
		return chunkHeader{}, newErr(Empty, "raw: item_prev is nil")
	}
	return r.chunkSeek(int64(r.cur.itemPrev))
}

// overwritePayloadAt rewrites the payload bytes of an already-written
// chunk at headerOffset in place, re-signing its footer CRC, then
// restores the prior file position. The caller is responsible for only
// using this on chunks whose payload length never changes (HEAD chunks).
func (r *raw) overwritePayloadAt(headerOffset int64, payload []byte) error {
	save := r.be.Tell()
	if err := r.be.Seek(headerOffset, backend.SeekStart); err != nil {
		return err
	}
	hdrRaw := make([]byte, chunkHeaderLen)
	if err := r.be.Read(hdrRaw); err != nil {
		return wrap(IO, err, "raw: read header before payload overwrite")
	}
	h, err := decodeChunkHeader(hdrRaw)
	if err != nil {
		return err
	}
	if int(h.payloadLength) != len(payload) {
		return newErr(ParameterInvalid, "raw: overwritePayloadAt length mismatch (%d != %d)", h.payloadLength, len(payload))
	}
	footer := make([]byte, 4)
	putU32LE(footer, crc32c.Sum(payload))
	if err := r.be.Write(payload); err != nil {
		return wrap(IO, err, "raw: overwrite payload")
	}
	pad := int(paddedPayloadSize(h.payloadLength)) - len(payload)
	if pad > 0 {
		if err := r.be.Write(make([]byte, pad)); err != nil {
			return wrap(IO, err, "raw: overwrite padding")
		}
	}
	if err := r.be.Write(footer); err != nil {
		return wrap(IO, err, "raw: overwrite footer CRC")
	}
	return r.be.Seek(save, backend.SeekStart)
}

// setLastPayloadLength primes the payload_prev_length auto-fill for
// ModeAppend sessions (repair), which reopen a file mid-stream and must
// tell raw what the physically last chunk's payload length was before the
// next wr() call.
func (r *raw) setLastPayloadLength(n uint32) { r.lastPayloadLength = n }

func (r *raw) seekEnd() error {
	return r.be.Seek(r.be.End(), backend.SeekStart)
}

// rewriteHeaderAt overwrites the 32-byte header of an already-written
// chunk in place (used to maintain item_next/item_prev linkage without
// rewriting the payload), then restores the prior file position. The
// chunk's on-disk payload_length and payload_prev_length are kept; every
// other header field comes from h.
func (r *raw) rewriteHeaderAt(offset int64, h chunkHeader) error {
	save := r.be.Tell()
	if err := r.be.Seek(offset, backend.SeekStart); err != nil {
		return err
	}
	old := make([]byte, chunkHeaderLen)
	if err := r.be.Read(old); err != nil {
		return wrap(IO, err, "raw: read chunk header at %d", offset)
	}
	oh, err := decodeChunkHeader(old)
	if err != nil {
		return err
	}
	h.payloadLength, h.payloadPrevLength = oh.payloadLength, oh.payloadPrevLength
	if err := r.be.Seek(offset, backend.SeekStart); err != nil {
		return err
	}
	raw := h.encode()
	var crcInput [crc32c.HeaderLen]byte
	copy(crcInput[:], raw[:crc32c.HeaderLen])
	h.crc32 = crc32c.Header(crcInput)
	raw = h.encode()
	if err := r.be.Write(raw[:]); err != nil {
		return wrap(IO, err, "raw: rewrite chunk header at %d", offset)
	}
	return r.be.Seek(save, backend.SeekStart)
}
