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

// Repair recovers a file whose writer crashed: header length left at 0,
// no END chunk, and possibly a partially-written tail chunk. It truncates
// the file back to its last verifiably intact chunk, rebuilds every list's
// in-memory tail pointers, recomputes FSR level-1 summaries that never
// made it out of the crashed writer's RAM buffers, clears any on-disk
// item_next left dangling by the truncation, and finishes by appending a
// fresh END chunk and rewriting the file header length, per spec.md §4.11.
//
// A file that already closed cleanly is left untouched; Repair returns
// nil immediately.
func Repair(path string) error {
	be, err := backend.Open(path, backend.ModeAppend)
	if err != nil {
		return wrap(IO, err, "repair: open")
	}

	needsRepair, err := fileNeedsRepair(be)
	if err != nil {
		be.Close()
		return err
	}
	if !needsRepair {
		return be.Close()
	}

	cutoff, lastPayloadLen, err := coreRdChunkEnd(be)
	if err != nil {
		be.Close()
		return err
	}
	if err := be.Seek(cutoff, backend.SeekStart); err != nil {
		be.Close()
		return wrap(IO, err, "repair: seek to cutoff")
	}
	if err := be.TruncateToCurrentPosition(); err != nil {
		be.Close()
		return wrap(IO, err, "repair: truncate")
	}

	r := &raw{be: be, mode: backend.ModeAppend}
	r.setLastPayloadLength(lastPayloadLen)
	c := newCore(r)

	if err := c.locateListAnchors(); err != nil {
		be.Close()
		return err
	}
	if err := c.scanSources(); err != nil {
		be.Close()
		return err
	}
	if err := c.scanSignals(); err != nil {
		be.Close()
		return err
	}
	if err := c.scanFSRSampleID(); err != nil {
		be.Close()
		return err
	}

	c.sourceListTail, err = rebuildItemListTail(c, c.sourceHeadOffset, func() { c.sourceHeadOffset = 0 })
	if err != nil {
		be.Close()
		return err
	}
	c.signalListTail, err = rebuildItemListTail(c, c.signalHeadOffset, func() { c.signalHeadOffset = 0 })
	if err != nil {
		be.Close()
		return err
	}
	c.userDataTail, err = rebuildItemListTail(c, c.userDataHeadOffset, func() { c.userDataHeadOffset = 0 })
	if err != nil {
		be.Close()
		return err
	}

	for _, si := range c.signals {
		if si == nil {
			continue
		}
		for _, ti := range si.tracks {
			if ti == nil {
				continue
			}
			if err := trackRepairPointers(c, ti); err != nil {
				be.Close()
				return err
			}
		}

		if si.def.Type == SignalFSR {
			if err := repairFSR(c, si); err != nil {
				be.Close()
				return err
			}
		}
		si.tsAnno = newTSWriter(c, si, TrackAnnotation, si.def.AnnotationDecimateFactor, annotationSummarySize)
		if si.def.Type == SignalFSR {
			si.tsUTC = newTSWriter(c, si, TrackUTC, si.def.UTCDecimateFactor, utcSummarySize)
		}
	}

	if err := r.seekEnd(); err != nil {
		be.Close()
		return err
	}
	if _, err := r.wr(chunkHeader{tag: TagEnd}, nil); err != nil {
		be.Close()
		return err
	}
	return r.close()
}

// fileNeedsRepair reports whether path's header length is still 0, the
// one symptom Close() always clears on a clean shutdown (it is the last
// field rewritten, after the END chunk is appended).
func fileNeedsRepair(be *backend.Backend) (bool, error) {
	hdr, err := be.ReadAt(0, fileHeaderLen)
	if err != nil {
		return false, wrap(IO, err, "repair: read file header")
	}
	b := bufFromBytes(hdr[16:24])
	length, _ := b.RdU64()
	return length == 0, nil
}

// coreRdChunkEnd scans the tail of the file in <=1KiB windows, working
// backward from the end, looking for 8-byte-aligned chunk headers whose
// 28-byte CRC validates and whose full framed size still fits inside the
// file. It returns the end offset (for truncation) of the furthest such
// chunk found, plus that chunk's payload length (to seed payload_prev_length
// bookkeeping for the next chunk a writer appends).
func coreRdChunkEnd(be *backend.Backend) (cutoff int64, lastPayloadLen uint32, err error) {
	const window = 1024
	fend := be.End()
	end := fend

	for end > int64(fileHeaderLen) {
		start := end - window
		if start < int64(fileHeaderLen) {
			start = int64(fileHeaderLen)
		}
		if rem := (start - int64(fileHeaderLen)) % 8; rem != 0 {
			start += 8 - rem
		}

		bestOffset := int64(-1)
		var bestHeader chunkHeader
		for off := start; off+int64(chunkHeaderLen) <= end; off += 8 {
			hdrBytes, rerr := be.ReadAt(off, chunkHeaderLen)
			if rerr != nil {
				continue
			}
			h, derr := decodeChunkHeader(hdrBytes)
			if derr != nil {
				continue
			}
			var crcInput [crc32c.HeaderLen]byte
			copy(crcInput[:], hdrBytes[:crc32c.HeaderLen])
			if crc32c.Header(crcInput) != h.crc32 {
				continue
			}
			total := chunkTotalSize(h.payloadLength)
			if off+total > fend {
				continue
			}
			// A footer CRC mismatch means the payload itself is torn even
			// though the header framed cleanly; such a chunk cannot anchor
			// a trustworthy cutoff.
			payload, rerr := be.ReadAt(off+int64(chunkHeaderLen), int(paddedPayloadSize(h.payloadLength))+4)
			if rerr != nil {
				continue
			}
			body := payload[:h.payloadLength]
			footer := payload[len(payload)-4:]
			if crc32c.Sum(body) != u32LE(footer) {
				continue
			}
			if off > bestOffset {
				bestOffset = off
				bestHeader = h
			}
		}
		if bestOffset >= 0 {
			return bestOffset + chunkTotalSize(bestHeader.payloadLength), bestHeader.payloadLength, nil
		}
		end = start
	}
	return 0, 0, newErr(Truncated, "repair: no valid chunk found in file")
}

// rebuildItemListTail walks the item_next chain from headOffset to its
// last chunk, clearing a dangling item_next left by truncation (and
// invoking zeroHead if the truncation erased the entire list) as it goes.
func rebuildItemListTail(c *Core, headOffset int64, zeroHead func()) (itemListTail, error) {
	if headOffset == 0 {
		return itemListTail{}, nil
	}
	fend := c.r.be.End()
	if headOffset >= fend {
		zeroHead()
		return itemListTail{}, nil
	}

	offset := headOffset
	var prevOffset int64
	var prevHeader chunkHeader
	for {
		if offset >= fend {
			prevHeader.itemNext = 0
			if err := c.r.rewriteHeaderAt(prevOffset, prevHeader); err != nil {
				return itemListTail{}, err
			}
			return itemListTail{offset: prevOffset, header: prevHeader, valid: true}, nil
		}
		h, err := c.r.chunkSeek(offset)
		if err != nil {
			if prevOffset == 0 {
				zeroHead()
				return itemListTail{}, nil
			}
			prevHeader.itemNext = 0
			if rerr := c.r.rewriteHeaderAt(prevOffset, prevHeader); rerr != nil {
				return itemListTail{}, rerr
			}
			return itemListTail{offset: prevOffset, header: prevHeader, valid: true}, nil
		}
		if h.itemNext == 0 {
			return itemListTail{offset: offset, header: h, valid: true}, nil
		}
		prevOffset, prevHeader = offset, h
		offset = int64(h.itemNext)
	}
}

// trackRepairPointers rebuilds one track's level-0 (DATA) tail plus every
// populated level's INDEX and SUMMARY tails, per spec.md §4.11 step 3.
// Levels whose HEAD offset was truncated away are zeroed.
func trackRepairPointers(c *Core, ti *trackInfo) error {
	var err error
	ti.dataTail, err = rebuildItemListTail(c, ti.heads[0], func() { ti.heads[0] = 0 })
	if err != nil {
		return err
	}

	for l := 1; l < maxLevels; l++ {
		if ti.heads[l] == 0 {
			continue
		}
		indexHead := ti.heads[l]
		ti.indexTails[l], err = rebuildItemListTail(c, indexHead, func() { ti.heads[l] = 0 })
		if err != nil {
			return err
		}
		if ti.heads[l] == 0 {
			continue // the whole level was truncated away
		}

		summaryHead, ok := firstSummaryOffset(c, ti, indexHead, l)
		if !ok {
			continue
		}
		ti.summaryTails[l], err = rebuildItemListTail(c, summaryHead, func() {})
		if err != nil {
			return err
		}
	}

	if err := c.rewriteHeadPayload(ti); err != nil {
		return err
	}
	return nil
}

// firstSummaryOffset finds level l's first SUMMARY chunk: it is always
// the chunk physically immediately following level l's first INDEX chunk,
// since wrSummary/commit always write the pair back to back.
func firstSummaryOffset(c *Core, ti *trackInfo, indexHeadOffset int64, level int) (int64, bool) {
	h, err := c.r.chunkSeek(indexHeadOffset)
	if err != nil {
		return 0, false
	}
	next := indexHeadOffset + chunkTotalSize(h.payloadLength)
	if next >= c.r.be.End() {
		return 0, false
	}
	h2, err := c.r.chunkSeek(next)
	if err != nil {
		return 0, false
	}
	if h2.tag != TrackTag(ti.trackType, RoleSummary) || h2.meta.level() != uint8(level) {
		return 0, false
	}
	return next, true
}

// repairFSR reopens signal si's FSR writer state and recomputes any
// level-1 summary entries that were only ever buffered in the crashed
// writer's RAM: every DATA chunk on disk whose offset is not already
// referenced by a level-1 INDEX entry gets replayed through summarize1,
// per spec.md §4.11 step 2.
func repairFSR(c *Core, si *signalInfo) error {
	ti := si.tracks[TrackFSR]
	w := newFSRWriter(c, si)
	si.fsrWriter = w

	if ti.heads[0] == 0 {
		return nil
	}

	lastOffset, lastHeader, lastPayload, err := walkChainWithOffset(c, ti.heads[0])
	if err != nil {
		return err
	}
	ph, err := decodePayloadHeader(bufFromBytes(lastPayload))
	if err != nil {
		return err
	}
	w.started = true
	w.dataTimestamp = ph.timestamp + int64(ph.entryCount)
	w.nextExpected = w.dataTimestamp
	w.ti.dataTail = itemListTail{offset: lastOffset, header: lastHeader, valid: true}

	already := map[int64]bool{}
	if ti.heads[1] != 0 {
		offset := ti.heads[1]
		for offset != 0 {
			h, err := c.r.chunkSeek(offset)
			if err != nil {
				break
			}
			payload, err := c.r.rdPayload()
			if err != nil {
				break
			}
			iph, err := decodePayloadHeader(bufFromBytes(payload))
			if err == nil {
				b := bufFromBytes(payload)
				b.rpos = payloadHeaderLen
				for i := uint32(0); i < iph.entryCount; i++ {
					v, err := b.RdI64()
					if err != nil {
						break
					}
					already[v] = true
				}
			}
			offset = int64(h.itemNext)
		}
	}

	// Collect every not-yet-summarized DATA chunk's decoded payload first --
	// summarize1 may itself append INDEX/SUMMARY chunks, and interleaving
	// those appends with the chunkSeek reads below would leave the file
	// cursor somewhere other than the true end when a write happens.
	type pendingData struct {
		offset     int64
		samples    []byte
		entryCount int
		timestamp  int64
	}
	var pending []pendingData

	offset := ti.heads[0]
	for offset != 0 {
		h, err := c.r.chunkSeek(offset)
		if err != nil {
			break
		}
		payload, err := c.r.rdPayload()
		if err != nil {
			break
		}
		if !already[offset] {
			dph, derr := decodePayloadHeader(bufFromBytes(payload))
			if derr == nil {
				samples := append([]byte(nil), payload[payloadHeaderLen:]...)
				pending = append(pending, pendingData{offset, samples, int(dph.entryCount), dph.timestamp})
			}
		}
		offset = int64(h.itemNext)
	}

	if len(pending) == 0 {
		return nil
	}
	if err := c.r.seekEnd(); err != nil {
		return err
	}
	for _, p := range pending {
		if err := w.summarize1(p.offset, p.samples, p.entryCount, p.timestamp); err != nil {
			return err
		}
	}
	// Persist whatever the replay above folded into the summary-pyramid
	// buffers: w.data is always empty here (repair never reconstructs the
	// crashed writer's lost partial DATA buffer), so this only flushes the
	// recomputed level-1..N entries, as a partial INDEX/SUMMARY just like a
	// normal Close() would for a writer that never filled its last batch.
	return w.Close()
}

// walkChainWithOffset is walkToLastInChain plus the absolute offset of the
// chunk it stops at, which repair needs to seed a fresh itemListTail.
func walkChainWithOffset(c *Core, headOffset int64) (int64, chunkHeader, []byte, error) {
	offset := headOffset
	var h chunkHeader
	var payload []byte
	for {
		hh, err := c.r.chunkSeek(offset)
		if err != nil {
			return 0, chunkHeader{}, nil, err
		}
		pp, err := c.r.rdPayload()
		if err != nil {
			return 0, chunkHeader{}, nil, err
		}
		h, payload = hh, pp
		if h.itemNext == 0 {
			return offset, h, payload, nil
		}
		offset = int64(h.itemNext)
	}
}
