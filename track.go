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

// itemListTail remembers the last chunk written in one per-tag-family
// linked list, so the next append can thread item_next/item_prev without
// a disk round trip. This is the bookkeeping update_item_head operates on.
type itemListTail struct {
	offset int64
	header chunkHeader
	valid  bool
}

// trackInfo is the shared per-track bookkeeping every track kind (FSR,
// VSR, ANNOTATION, UTC) builds on: the HEAD chunk's own location plus the
// tail of each level's DATA/INDEX/SUMMARY item list.
type trackInfo struct {
	trackType TrackType
	signalID  uint16

	headOffset int64      // offset of this track's HEAD chunk
	heads      [maxLevels]int64 // head offsets array stored in the HEAD chunk

	dataTail    itemListTail
	indexTails  [maxLevels]itemListTail
	summaryTails [maxLevels]itemListTail
}

// writeTrackDefHead writes the DEF chunk (empty payload, just identifies
// the track) immediately followed by the HEAD chunk (an array of
// maxLevels absolute offsets, all zero initially).
func (c *Core) writeTrackDefHead(signalID uint16, tt TrackType) (*trackInfo, error) {
	defTag := TrackTag(tt, RoleDef)
	meta := packTrackMeta(signalID, 0)
	if _, err := c.r.wr(chunkHeader{tag: defTag, meta: meta}, nil); err != nil {
		return nil, err
	}

	ti := &trackInfo{trackType: tt, signalID: signalID}
	headTag := TrackTag(tt, RoleHead)
	offset, err := c.r.wr(chunkHeader{tag: headTag, meta: meta}, encodeHeadPayload(ti.heads))
	if err != nil {
		return nil, err
	}
	ti.headOffset = offset
	return ti, nil
}

func encodeHeadPayload(heads [maxLevels]int64) []byte {
	b := newBuf(maxLevels * 8)
	for _, h := range heads {
		b.WrI64(h)
	}
	return b.Bytes()
}

func decodeHeadPayload(payload []byte) ([maxLevels]int64, error) {
	var heads [maxLevels]int64
	b := bufFromBytes(payload)
	for i := range heads {
		v, err := b.RdI64()
		if err != nil {
			return heads, err
		}
		heads[i] = v
	}
	return heads, nil
}

// setHeadOffset records that level's first chunk is at offset (if it
// isn't already set -- only the first DATA/INDEX chunk of a level ever
// populates the HEAD array) and rewrites the HEAD chunk in place.
func (c *Core) setHeadOffset(ti *trackInfo, level int, offset int64) error {
	if ti.heads[level] != 0 {
		return nil
	}
	ti.heads[level] = offset
	return c.rewriteHeadPayload(ti)
}

// rewriteHeadPayload rewrites the whole HEAD chunk's payload in place --
// used because head offsets live in the payload, not the header. HEAD
// chunks are fixed-size (maxLevels*8 bytes) so an in-place payload
// overwrite never changes the chunk's framing.
func (c *Core) rewriteHeadPayload(ti *trackInfo) error {
	return c.r.overwritePayloadAt(ti.headOffset, encodeHeadPayload(ti.heads))
}

// updateItemHead is the fundamental linked-list-maintenance primitive
// (spec.md §4.5): it threads item_next from the stored tail to next, and
// item_prev back from next to the stored tail, then replaces the stored
// tail with next. A family's first chunk keeps item_prev at 0 -- there is
// no predecessor to point to.
func (c *Core) updateItemHead(tail *itemListTail, nextOffset int64, nextHeader chunkHeader) error {
	if tail.valid {
		tail.header.itemNext = uint64(nextOffset)
		if err := c.r.rewriteHeaderAt(tail.offset, tail.header); err != nil {
			return err
		}
		nextHeader.itemPrev = uint64(tail.offset)
		if err := c.r.rewriteHeaderAt(nextOffset, nextHeader); err != nil {
			return err
		}
	}
	tail.offset = nextOffset
	tail.header = nextHeader
	tail.valid = true
	return nil
}
