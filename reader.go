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

import "github.com/jlscore/jls/internal/backend"

// D is the read-only facade on top of Core: single-threaded, holds no
// cross-call state beyond its own file cursor and scratch buffers.
type D struct {
	core *Core
}

// Open opens path read-only and populates Core from the existing chunk
// graph. A file whose header length is 0 (never closed cleanly) cannot be
// safely traversed forward and must be repaired first.
func Open(path string) (*D, error) {
	r, err := openRaw(path, backend.ModeRead)
	if err != nil {
		return nil, err
	}
	c := newCore(r)
	if err := c.scanInitial(); err != nil {
		r.be.Close()
		return nil, err
	}
	if err := c.scanSources(); err != nil {
		r.be.Close()
		return nil, err
	}
	if err := c.scanSignals(); err != nil {
		r.be.Close()
		return nil, err
	}
	if err := c.scanFSRSampleID(); err != nil {
		r.be.Close()
		return nil, err
	}
	return &D{core: c}, nil
}

// Close releases the underlying file handle.
func (d *D) Close() error { return d.core.r.be.Close() }

// Sources returns every defined source descriptor.
func (d *D) Sources() []SourceDef {
	var out []SourceDef
	for _, si := range d.core.sources {
		if si != nil {
			out = append(out, si.def)
		}
	}
	return out
}

// Signals returns every defined signal descriptor.
func (d *D) Signals() []SignalDef {
	var out []SignalDef
	for _, si := range d.core.signals {
		if si != nil {
			out = append(out, si.def)
		}
	}
	return out
}

func (d *D) fsrSignal(signalID uint16) (*signalInfo, *trackInfo, error) {
	si := d.core.signals[signalID]
	if si == nil {
		return nil, nil, newErr(NotFound, "reader: signal_id %d not defined", signalID)
	}
	if si.def.Type != SignalFSR {
		return nil, nil, newErr(ParameterInvalid, "reader: signal_id %d is not FSR", signalID)
	}
	return si, si.tracks[TrackFSR], nil
}

// FSRLength returns the number of samples written to signal_id, 0-based
// from its sample_id_offset.
func (d *D) FSRLength(signalID uint16) (int64, error) {
	si, ti, err := d.fsrSignal(signalID)
	if err != nil {
		return 0, err
	}
	_, payload, err := d.core.fsrLastDataChunk(ti)
	if err != nil {
		if IsEmpty(err) {
			return 0, nil
		}
		return 0, err
	}
	ph, err := decodePayloadHeader(bufFromBytes(payload))
	if err != nil {
		return 0, err
	}
	return ph.timestamp + int64(ph.entryCount) - si.sampleIDOffset, nil
}

// fsrLastDataChunk finds the physically last DATA chunk of an FSR track,
// descending the highest populated summary level's last chunk and
// following its last entry down to level 0. Falls back to walking the
// level-0 item list directly when no summary level was ever built.
func (c *Core) fsrLastDataChunk(ti *trackInfo) (chunkHeader, []byte, error) {
	top := ti.highestLevel()
	if top == 0 {
		if ti.heads[0] == 0 {
			return chunkHeader{}, nil, newErr(Empty, "core: fsr track has no data")
		}
		return c.walkToLastInChain(ti.heads[0])
	}

	h, payload, err := c.walkToLastInChain(ti.heads[top])
	if err != nil {
		return chunkHeader{}, nil, err
	}
	for level := top; level > 0; level-- {
		ph, err := decodePayloadHeader(bufFromBytes(payload))
		if err != nil {
			return chunkHeader{}, nil, err
		}
		idx := int(ph.entryCount) - 1
		b := bufFromBytes(payload)
		b.rpos = payloadHeaderLen + idx*8
		entryOffset, err := b.RdI64()
		if err != nil {
			return chunkHeader{}, nil, err
		}
		if entryOffset == 0 {
			return chunkHeader{}, nil, newErr(NotSupported, "core: fsr_length of a track whose final chunk was omitted is not supported")
		}
		h, err = c.r.chunkSeek(entryOffset)
		if err != nil {
			return chunkHeader{}, nil, err
		}
		payload, err = c.r.rdPayload()
		if err != nil {
			return chunkHeader{}, nil, err
		}
	}
	return h, payload, nil
}

// walkToLastInChain follows item_next from offset to the last chunk in
// that per-level item list.
func (c *Core) walkToLastInChain(offset int64) (chunkHeader, []byte, error) {
	var h chunkHeader
	var payload []byte
	for offset != 0 {
		hh, err := c.r.chunkSeek(offset)
		if err != nil {
			return chunkHeader{}, nil, err
		}
		pp, err := c.r.rdPayload()
		if err != nil {
			return chunkHeader{}, nil, err
		}
		h, payload = hh, pp
		offset = int64(hh.itemNext)
	}
	return h, payload, nil
}

func (ti *trackInfo) highestLevel() int {
	for l := maxLevels - 1; l >= 1; l-- {
		if ti.heads[l] != 0 {
			return l
		}
	}
	return 0
}

// fsrSpan returns the number of samples one level-L INDEX entry covers:
// sample_decimate_factor at level 1, multiplied by summary_decimate_factor
// per additional level.
func fsrSpan(def SignalDef, level int) int64 {
	if level <= 0 {
		return 1
	}
	span := int64(def.SampleDecimateFactor)
	for l := 2; l <= level; l++ {
		span *= int64(def.SummaryDecimateFactor)
	}
	return span
}

// fsrBlock is one level-1 INDEX/SUMMARY entry resolved for a sample_id:
// either a real DATA chunk offset, or (Omitted) its reconstruction stats.
type fsrBlock struct {
	BlockTimestamp int64
	BlockLen       int64
	DataOffset     int64 // 0 if Omitted
	Omitted        bool
	Stats          stats4
}

// fsrSeek descends from the highest populated INDEX level to level 1,
// following spec.md §4.9's fsr_seek algorithm, and resolves the level-1
// entry covering sampleID.
func (c *Core) fsrSeek(ti *trackInfo, def SignalDef, sampleID int64) (fsrBlock, error) {
	top := ti.highestLevel()
	if top == 0 {
		// No summary pyramid built yet: sampleID must be served directly
		// from the DATA chain.
		return fsrBlock{}, newErr(NotSupported, "core: fsr_seek requires at least one summary level")
	}

	offset := ti.heads[top]
	level := top
	var payload []byte
	for {
		_, p, err := c.findChunkCoveringAtLevel(offset, level, sampleID, def)
		if err != nil {
			return fsrBlock{}, err
		}
		payload = p
		if level == 1 {
			break
		}
		ph, err := decodePayloadHeader(bufFromBytes(payload))
		if err != nil {
			return fsrBlock{}, err
		}
		span := fsrSpan(def, level)
		idx := (sampleID - ph.timestamp) / span
		if idx < 0 || idx >= int64(ph.entryCount) {
			return fsrBlock{}, newErr(IO, "core: fsr_seek index out of range at level %d", level)
		}
		b := bufFromBytes(payload)
		b.rpos = payloadHeaderLen + int(idx)*8
		next, err := b.RdI64()
		if err != nil {
			return fsrBlock{}, err
		}
		offset = next
		level--
	}

	ph, err := decodePayloadHeader(bufFromBytes(payload))
	if err != nil {
		return fsrBlock{}, err
	}
	span := fsrSpan(def, 1)
	idx := (sampleID - ph.timestamp) / span
	if idx < 0 || idx >= int64(ph.entryCount) {
		return fsrBlock{}, newErr(IO, "core: fsr_seek level-1 index out of range")
	}
	b := bufFromBytes(payload)
	b.rpos = payloadHeaderLen + int(idx)*8
	dataOffset, err := b.RdI64()
	if err != nil {
		return fsrBlock{}, err
	}
	blockStart := ph.timestamp + idx*span

	if dataOffset != 0 {
		return fsrBlock{BlockTimestamp: blockStart, BlockLen: span, DataOffset: dataOffset}, nil
	}

	// Omitted: the paired SUMMARY chunk immediately follows the INDEX
	// chunk we just read on disk.
	if _, err := c.r.chunkNext(); err != nil {
		return fsrBlock{}, err
	}
	summaryPayload, err := c.r.rdPayload()
	if err != nil {
		return fsrBlock{}, err
	}
	statSz := statSize(def.DataType)
	sb := bufFromBytes(summaryPayload)
	sb.rpos = payloadHeaderLen + int(idx)*4*statSz
	stats, err := decodeStats4(sb, statSz)
	if err != nil {
		return fsrBlock{}, err
	}
	return fsrBlock{BlockTimestamp: blockStart, BlockLen: span, Omitted: true, Stats: stats}, nil
}

// findChunkCoveringAtLevel walks a level's item-list chain starting at
// offset until it finds the chunk whose span covers sampleID.
func (c *Core) findChunkCoveringAtLevel(offset int64, level int, sampleID int64, def SignalDef) (chunkHeader, []byte, error) {
	span := fsrSpan(def, level)
	for offset != 0 {
		h, err := c.r.chunkSeek(offset)
		if err != nil {
			return chunkHeader{}, nil, err
		}
		payload, err := c.r.rdPayload()
		if err != nil {
			return chunkHeader{}, nil, err
		}
		ph, err := decodePayloadHeader(bufFromBytes(payload))
		if err != nil {
			return chunkHeader{}, nil, err
		}
		var chunkLen int64
		if level == 0 {
			chunkLen = int64(ph.entryCount)
		} else {
			chunkLen = span * int64(ph.entryCount)
		}
		if sampleID >= ph.timestamp && sampleID < ph.timestamp+chunkLen {
			return h, payload, nil
		}
		offset = int64(h.itemNext)
	}
	return chunkHeader{}, nil, newErr(NotFound, "core: sample_id %d not covered at level %d", sampleID, level)
}

// FSR reads packed samples for signal_id starting at start_sample_id
// (0-based; sample_id_offset is added internally), synthesizing any
// omitted chunks it crosses.
func (d *D) FSR(signalID uint16, startSampleID int64, length uint32) ([]byte, error) {
	si, ti, err := d.fsrSignal(signalID)
	if err != nil {
		return nil, err
	}
	sizeBits := int(si.def.DataType.SizeBits())
	out := packedBitWriter{}
	absolute := startSampleID + si.sampleIDOffset
	remaining := int(length)

	for remaining > 0 {
		blk, err := d.core.fsrSeek(ti, si.def, absolute)
		if err != nil {
			return nil, err
		}
		withinBlock := int(absolute - blk.BlockTimestamp)
		availInBlock := int(blk.BlockLen) - withinBlock
		take := availInBlock
		if take > remaining {
			take = remaining
		}

		if blk.Omitted {
			synth := synthesizeBlock(si.def.DataType, blk.Stats, absolute, take, sizeBits)
			out.appendFromPacked(synth, 0, take, sizeBits)
		} else {
			if _, err := d.core.r.chunkSeek(blk.DataOffset); err != nil {
				return nil, err
			}
			payload, err := d.core.r.rdPayload()
			if err != nil {
				return nil, err
			}
			ph, err := decodePayloadHeader(bufFromBytes(payload))
			if err != nil {
				return nil, err
			}
			chunkOff := int(absolute - ph.timestamp)
			out.appendFromPacked(payload[payloadHeaderLen:], chunkOff*sizeBits, take, sizeBits)
		}

		absolute += int64(take)
		remaining -= take
	}
	return out.buf, nil
}

// FSRStatistics returns length {mean,min,max,std} quadruples, one per
// increment-sized window starting at start_sample_id.
func (d *D) FSRStatistics(signalID uint16, startSampleID int64, increment int64, length uint32) ([]stats4, error) {
	si, ti, err := d.fsrSignal(signalID)
	if err != nil {
		return nil, err
	}
	out := make([]stats4, 0, length)
	absolute := startSampleID + si.sampleIDOffset

	if increment >= int64(si.def.SampleDecimateFactor) {
		for i := uint32(0); i < length; i++ {
			blk, err := d.core.fsrSeek(ti, si.def, absolute)
			if err != nil {
				return nil, err
			}
			if blk.Omitted {
				out = append(out, blk.Stats)
			} else {
				vals, err := d.readRawStats(ti, si.def, blk, absolute, increment)
				if err != nil {
					return nil, err
				}
				out = append(out, vals)
			}
			absolute += increment
		}
		return out, nil
	}

	for i := uint32(0); i < length; i++ {
		samples, err := d.FSR(signalID, absolute-si.sampleIDOffset, uint32(increment))
		if err != nil {
			return nil, err
		}
		vals := make([]float64, increment)
		for j := range vals {
			vals[j] = sampleToFloat64(samples, j, si.def.DataType)
		}
		out = append(out, computeStats4(vals))
		absolute += increment
	}
	return out, nil
}

// readRawStats computes one window's stats by reading raw samples when the
// window doesn't align with a pre-aggregated SUMMARY entry.
func (d *D) readRawStats(ti *trackInfo, def SignalDef, blk fsrBlock, absolute, increment int64) (stats4, error) {
	if _, err := d.core.r.chunkSeek(blk.DataOffset); err != nil {
		return stats4{}, err
	}
	payload, err := d.core.r.rdPayload()
	if err != nil {
		return stats4{}, err
	}
	ph, err := decodePayloadHeader(bufFromBytes(payload))
	if err != nil {
		return stats4{}, err
	}
	start := int(absolute - ph.timestamp)
	n := int(increment)
	if start+n > int(ph.entryCount) {
		n = int(ph.entryCount) - start
	}
	vals := make([]float64, n)
	for i := 0; i < n; i++ {
		vals[i] = sampleToFloat64(payload[payloadHeaderLen:], start+i, def.DataType)
	}
	return computeStats4(vals), nil
}

// AnnotationCallback receives each decoded annotation; returning false
// stops iteration.
type AnnotationCallback func(Annotation) bool

// Annotations iterates signal_id's ANNO DATA chunks in item_next order
// starting from the first one at or after timestamp_from.
func (d *D) Annotations(signalID uint16, timestampFrom int64, cb AnnotationCallback) error {
	si := d.core.signals[signalID]
	if si == nil {
		return newErr(NotFound, "reader: signal_id %d not defined", signalID)
	}
	ti := si.tracks[TrackAnnotation]
	if ti == nil || ti.heads[0] == 0 {
		return nil
	}
	offset := ti.heads[0]
	for offset != 0 {
		h, err := d.core.r.chunkSeek(offset)
		if err != nil {
			return err
		}
		payload, err := d.core.r.rdPayload()
		if err != nil {
			return err
		}
		a, err := decodeAnnotation(payload)
		if err != nil {
			return err
		}
		if a.Timestamp >= timestampFrom {
			if !cb(a) {
				return nil
			}
		}
		offset = int64(h.itemNext)
	}
	return nil
}

// UTCCallback receives each decoded {sample_id, utc} pair.
type UTCCallback func(sampleID, utc int64) bool

// UTC iterates signal_id's UTC track DATA records in item_next order
// starting at or after sample_id_from.
func (d *D) UTC(signalID uint16, sampleIDFrom int64, cb UTCCallback) error {
	si, _, err := d.fsrSignal(signalID)
	if err != nil {
		return err
	}
	utcTi := si.tracks[TrackUTC]
	if utcTi == nil || utcTi.heads[0] == 0 {
		return nil
	}
	offset := utcTi.heads[0]
	for offset != 0 {
		h, err := d.core.r.chunkSeek(offset)
		if err != nil {
			return err
		}
		payload, err := d.core.r.rdPayload()
		if err != nil {
			return err
		}
		sampleID, utc, err := decodeUTCRecord(payload)
		if err != nil {
			return err
		}
		if sampleID >= sampleIDFrom {
			if !cb(sampleID, utc) {
				return nil
			}
		}
		offset = int64(h.itemNext)
	}
	return nil
}

// UserDataCallback receives each user-data record's storage type and
// bytes; returning false stops iteration.
type UserDataCallback func(StorageType, []byte) bool

// UserData iterates every USER_DATA chunk in item_next order.
func (d *D) UserData(cb UserDataCallback) error {
	offset := d.core.userDataHeadOffset
	for offset != 0 {
		h, err := d.core.r.chunkSeek(offset)
		if err != nil {
			return err
		}
		payload, err := d.core.r.rdPayload()
		if err != nil {
			return err
		}
		if !cb(h.meta.storageType(), payload) {
			return nil
		}
		offset = int64(h.itemNext)
	}
	return nil
}
