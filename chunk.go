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

// fileIdent is the 16-byte magic every JLS file starts with.
var fileIdent = [16]byte{
	0x6A, 0x6C, 0x73, 0x66, 0x6D, 0x74, 0x0D, 0x0A,
	0x20, 0x0A, 0x20, 0x1A, 0x20, 0x20, 0xB2, 0x1C,
}

// fileVersion is major|minor|patch16 packed into a u32, bumped only on a
// breaking change to the chunk or payload layouts below.
const fileVersion uint32 = 1<<24 | 0<<16 | 0

const fileHeaderLen = 32
const chunkHeaderLen = 32

// Tag identifies a chunk's family and, for track chunks, its role.
type Tag uint8

const (
	TagEnd       Tag = 0x00
	TagSourceDef Tag = 0x01
	TagSignalDef Tag = 0x02
	TagUserData  Tag = 0x03

	tagTrackBase Tag = 0x20 // 0x20 | (track_type<<3) | chunk_role
)

// TrackType selects which per-signal sub-stream a track chunk belongs to.
type TrackType uint8

const (
	TrackFSR TrackType = iota
	TrackVSR
	TrackAnnotation
	TrackUTC
	trackTypeCount
)

// ChunkRole distinguishes the chunks that make up one track.
type ChunkRole uint8

const (
	RoleDef ChunkRole = iota
	RoleHead
	RoleIndex
	RoleData
	RoleSummary
)

// TrackTag packs a track type and chunk role into the tag byte, per
// spec.md §3: tag = 0x20 | (track_type<<3) | chunk_role.
func TrackTag(tt TrackType, role ChunkRole) Tag {
	return tagTrackBase | Tag(tt)<<3 | Tag(role)
}

func (t Tag) isTrack() bool { return t&0xE0 == tagTrackBase }

func (t Tag) trackType() TrackType { return TrackType((t >> 3) & 0x3) }
func (t Tag) role() ChunkRole      { return ChunkRole(t & 0x7) }

// chunkMeta packs signal_id (bits 11:0) and summary level (bits 15:12) for
// track chunks; for SOURCE_DEF/SIGNAL_DEF it is simply the source/signal
// id; USER_DATA packs a storage-type tag into bits 15:12.
type chunkMeta uint16

func packTrackMeta(signalID uint16, level uint8) chunkMeta {
	return chunkMeta(signalID&0x0FFF) | chunkMeta(level&0xF)<<12
}

func (m chunkMeta) signalID() uint16 { return uint16(m) & 0x0FFF }
func (m chunkMeta) level() uint8     { return uint8(m>>12) & 0xF }

// StorageType tags the payload encoding of a USER_DATA chunk.
type StorageType uint8

const (
	StorageBinary StorageType = iota
	StorageString
	StorageJSON
)

func packUserDataMeta(st StorageType) chunkMeta { return chunkMeta(st) << 12 }
func (m chunkMeta) storageType() StorageType     { return StorageType(m >> 12) }

// maxLevels bounds the summary pyramid; the HEAD chunk always carries
// exactly this many offsets (0 = level unused).
const maxLevels = 16

// chunkHeader is the 32-byte on-disk chunk header, §3.
type chunkHeader struct {
	itemNext          uint64
	itemPrev          uint64
	tag               Tag
	reserved          uint8
	meta              chunkMeta
	payloadLength     uint32
	payloadPrevLength uint32
	crc32             uint32
}

// paddedPayloadSize returns the number of bytes the payload occupies on
// disk once 0-7 zero pad bytes are added so payload+pad ends at (8k-4)
// from the chunk start.
func paddedPayloadSize(payloadLength uint32) uint32 {
	// header(32) + payload + pad must leave exactly 4 bytes before the
	// next 8-byte boundary for the footer CRC.
	total := chunkHeaderLen + int(payloadLength)
	rem := total % 8
	pad := 0
	if rem != 4 {
		pad = (4 - rem + 8) % 8
	}
	return payloadLength + uint32(pad)
}

// chunkTotalSize is the full on-disk size of a chunk: header + padded
// payload + 4-byte footer CRC. Always a multiple of 8.
func chunkTotalSize(payloadLength uint32) int64 {
	return int64(chunkHeaderLen) + int64(paddedPayloadSize(payloadLength)) + 4
}

func (h *chunkHeader) encode() [chunkHeaderLen]byte {
	var out [chunkHeaderLen]byte
	b := bufFromBytes(out[:0])
	b.WrU64(h.itemNext)
	b.WrU64(h.itemPrev)
	b.WrU8(uint8(h.tag))
	b.WrU8(h.reserved)
	b.WrU16(uint16(h.meta))
	b.WrU32(h.payloadLength)
	b.WrU32(h.payloadPrevLength)
	b.WrU32(h.crc32)
	copy(out[:], b.Bytes())
	return out
}

func decodeChunkHeader(raw []byte) (chunkHeader, error) {
	if len(raw) != chunkHeaderLen {
		return chunkHeader{}, newErr(Truncated, "chunk: short header (%d bytes)", len(raw))
	}
	b := bufFromBytes(raw)
	var h chunkHeader
	h.itemNext, _ = b.RdU64()
	h.itemPrev, _ = b.RdU64()
	tag, _ := b.RdU8()
	h.tag = Tag(tag)
	h.reserved, _ = b.RdU8()
	meta, _ := b.RdU16()
	h.meta = chunkMeta(meta)
	h.payloadLength, _ = b.RdU32()
	h.payloadPrevLength, _ = b.RdU32()
	h.crc32, _ = b.RdU32()
	return h, nil
}

// payloadHeader is the small common envelope ({timestamp, entry_count,
// entry_size_bits, reserved}) that prefixes every INDEX/SUMMARY/DATA
// payload in §3.
type payloadHeader struct {
	timestamp     int64
	entryCount    uint32
	entrySizeBits uint16
	reserved      uint16
}

const payloadHeaderLen = 8 + 4 + 2 + 2

func (p payloadHeader) encode(b *buf) {
	b.WrI64(p.timestamp)
	b.WrU32(p.entryCount)
	b.WrU16(p.entrySizeBits)
	b.WrU16(p.reserved)
}

func decodePayloadHeader(b *buf) (payloadHeader, error) {
	var p payloadHeader
	var err error
	if p.timestamp, err = b.RdI64(); err != nil {
		return p, err
	}
	if p.entryCount, err = b.RdU32(); err != nil {
		return p, err
	}
	if p.entrySizeBits, err = b.RdU16(); err != nil {
		return p, err
	}
	if p.reserved, err = b.RdU16(); err != nil {
		return p, err
	}
	return p, nil
}
