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

import "math"

// fsrLevelBuf is one level (>=1) of the summary pyramid: an INDEX buffer
// of offsets and a SUMMARY buffer of stat quadruples, flushed together
// once the SUMMARY buffer reaches entries_per_summary entries.
type fsrLevelBuf struct {
	indexTimestamp   int64
	indexOffsets     []int64
	summaryTimestamp int64
	summaryStats     []stats4
}

// fsrFoldGroup accumulates level-l entries toward one level-(l+1) entry:
// entries_per_summary governs only when a level's buffer hits disk,
// independent of summary_decimate_factor, the number of level-l entries
// that must aggregate into each level-(l+1) entry (spec.md §3/§4.6).
type fsrFoldGroup struct {
	firstPos       int64
	firstTimestamp int64
	stats          []stats4
}

// fsrWriter is the per-signal streaming FSR writer: one level-0 sample
// buffer plus on-demand level buffers, and the bookkeeping append() needs
// to handle duplicate/gap sample ids, per spec.md §4.6.
type fsrWriter struct {
	core *Core
	si   *signalInfo
	ti   *trackInfo

	dt                DataType
	sizeBits          int
	samplesPerData    uint32
	sampleDecimate    uint32
	entriesPerSummary uint32
	summaryDecimate   uint32
	statSz            int

	started      bool
	dataTimestamp int64 // sample_id of the first sample in the in-progress DATA chunk
	nextExpected  int64
	data          packedBitWriter

	levels [maxLevels]*fsrLevelBuf
	folds  [maxLevels]*fsrFoldGroup

	omitArmed bool
	omitState uint8 // 2-bit delayed-omission shift register, spec.md §9
}

func newFSRWriter(c *Core, si *signalInfo) *fsrWriter {
	def := si.def
	return &fsrWriter{
		core:              c,
		si:                si,
		ti:                si.tracks[TrackFSR],
		dt:                def.DataType,
		sizeBits:          int(def.DataType.SizeBits()),
		samplesPerData:    def.SamplesPerData,
		sampleDecimate:    def.SampleDecimateFactor,
		entriesPerSummary: def.EntriesPerSummary,
		summaryDecimate:   def.SummaryDecimateFactor,
		statSz:            statSize(def.DataType),
	}
}

// SetOmitData toggles fsr_omit_data: whether constant-valued DATA chunks
// may be physically omitted (leaving a zero offset in the level-1 INDEX)
// once the omission-arming delay has elapsed.
func (w *fsrWriter) SetOmitData(v bool) { w.omitArmed = v }

// Append implements the fsr() writer operation: duplicate-skip, gap-fill,
// and normal appends, splitting across DATA-chunk boundaries as needed.
func (w *fsrWriter) Append(sampleID int64, data []byte, length uint32) error {
	if length == 0 {
		return nil
	}
	if !w.started {
		w.started = true
		w.si.sampleIDOffset = sampleID
		w.dataTimestamp = sampleID
		w.nextExpected = sampleID
	}

	srcBitOffset := 0
	n := int(length)

	if sampleID < w.nextExpected {
		skip := w.nextExpected - sampleID
		if skip >= int64(length) {
			return nil // fully covered by prior data; OK no-op
		}
		srcBitOffset = int(skip) * w.sizeBits
		n -= int(skip)
	} else if sampleID > w.nextExpected {
		gap := sampleID - w.nextExpected
		if err := w.appendFiller(gap); err != nil {
			return err
		}
	}

	return w.appendSamples(data, srcBitOffset, n)
}

// appendFiller synthesizes n gap-fill samples: NaN for floating-point
// signals, zero for integer signals (lossy but matches source behavior,
// spec.md §9).
func (w *fsrWriter) appendFiller(n int64) error {
	if n <= 0 {
		return nil
	}
	var fillVal uint64
	if w.dt.IsFloat() {
		fillVal = float64ToPackedBits(math.NaN(), w.dt)
	}
	filler := packedBitWriter{}
	for i := int64(0); i < n; i++ {
		filler.appendValue(fillVal, w.sizeBits)
	}
	return w.appendSamples(filler.buf, 0, int(n))
}

// appendSamples copies n packed samples from src (starting at srcBitOffset)
// into the active DATA buffer, splitting across samples_per_data
// boundaries by flushing wr_data whenever the buffer fills.
func (w *fsrWriter) appendSamples(src []byte, srcBitOffset, n int) error {
	for n > 0 {
		cur := w.data.entryCount(w.sizeBits)
		capacity := int(w.samplesPerData) - cur
		take := capacity
		if take > n {
			take = n
		}
		if take > 0 {
			w.data.appendFromPacked(src, srcBitOffset, take, w.sizeBits)
			srcBitOffset += take * w.sizeBits
			n -= take
			w.nextExpected += int64(take)
		}
		if w.data.entryCount(w.sizeBits) >= int(w.samplesPerData) {
			if err := w.wrData(); err != nil {
				return err
			}
		}
	}
	return nil
}

// allBytesEqual reports whether the packed buffer holds a single repeated
// byte value -- the detector spec.md §4.6 describes for constant-value
// DATA-chunk omission, valid for <=8-bit sample types.
func allBytesEqual(b []byte) bool {
	if len(b) == 0 {
		return true
	}
	first := b[0]
	for _, v := range b[1:] {
		if v != first {
			return false
		}
	}
	return true
}

// wrData flushes the in-progress level-0 sample buffer: either as a real
// DATA chunk, or (if constant-valued and omission has armed and delayed
// long enough) as an omitted entry whose INDEX offset is zero.
func (w *fsrWriter) wrData() error {
	entryCount := w.data.entryCount(w.sizeBits)
	if entryCount == 0 {
		return nil
	}
	samples := w.data.buf
	chunkTimestamp := w.dataTimestamp

	isConstant := w.sizeBits <= 8 && allBytesEqual(samples)
	w.omitState = ((w.omitState << 1) | boolToBit(isConstant)) & 0x3
	canOmit := w.omitArmed && w.ti.dataTail.valid && w.omitState == 0x3

	var offset int64
	if !canOmit {
		h := chunkHeader{tag: TrackTag(TrackFSR, RoleData), meta: packTrackMeta(w.si.def.SignalID, 0)}
		payload := newBuf(payloadHeaderLen + len(samples))
		payloadHeader{timestamp: chunkTimestamp, entryCount: uint32(entryCount), entrySizeBits: uint16(w.sizeBits)}.encode(payload)
		payload.WrBytes(samples)
		off, err := w.core.r.wr(h, payload.Bytes())
		if err != nil {
			return err
		}
		offset = off
		if err := w.core.setHeadOffset(w.ti, 0, offset); err != nil {
			return err
		}
		if err := w.core.updateItemHead(&w.ti.dataTail, offset, h); err != nil {
			return err
		}
	}

	if err := w.summarize1(offset, samples, entryCount, chunkTimestamp); err != nil {
		return err
	}

	w.dataTimestamp += int64(entryCount)
	w.data = packedBitWriter{}
	return nil
}

func boolToBit(b bool) uint8 {
	if b {
		return 1
	}
	return 0
}

// summarize1 decodes the just-flushed DATA chunk to float64 and computes
// one stats4 per sample_decimate_factor-sized block, handing each block to
// appendLevelEntry to buffer for disk and fold upward into level 2.
func (w *fsrWriter) summarize1(pos int64, samples []byte, entryCount int, chunkTimestamp int64) error {
	vals := make([]float64, entryCount)
	for i := 0; i < entryCount; i++ {
		vals[i] = sampleToFloat64(samples, i, w.dt)
	}

	dec := int(w.sampleDecimate)
	for start := 0; start < entryCount; start += dec {
		end := start + dec
		if end > entryCount {
			end = entryCount
		}
		stats := computeStats4(vals[start:end])
		if err := w.appendLevelEntry(1, pos, chunkTimestamp+int64(start), stats); err != nil {
			return err
		}
	}
	return nil
}

// appendLevelEntry appends one entry to level l's disk-write buffer,
// flushing it once entries_per_summary is reached, and independently folds
// the entry into level l's upward accumulator, recursing into level l+1
// once summary_decimate_factor entries have accumulated. The two thresholds
// are unrelated: entries_per_summary only paces disk flushes, while
// summary_decimate_factor fixes how many level-l entries one level-(l+1)
// entry aggregates (spec.md §3/§4.6).
func (w *fsrWriter) appendLevelEntry(l int, pos int64, timestamp int64, stats stats4) error {
	lvl := w.level(l)
	if len(lvl.summaryStats) == 0 {
		lvl.indexTimestamp = timestamp
		lvl.summaryTimestamp = timestamp
	}
	lvl.indexOffsets = append(lvl.indexOffsets, pos)
	lvl.summaryStats = append(lvl.summaryStats, stats)
	if uint32(len(lvl.summaryStats)) >= w.entriesPerSummary {
		if err := w.wrSummary(l); err != nil {
			return err
		}
	}

	if l+1 >= maxLevels {
		return nil
	}
	fold := w.folds[l]
	if fold == nil {
		fold = &fsrFoldGroup{firstPos: pos, firstTimestamp: timestamp}
		w.folds[l] = fold
	}
	fold.stats = append(fold.stats, stats)
	if uint32(len(fold.stats)) >= w.summaryDecimate {
		merged := mergeStats4(fold.stats)
		firstPos, firstTimestamp := fold.firstPos, fold.firstTimestamp
		w.folds[l] = nil
		return w.appendLevelEntry(l+1, firstPos, firstTimestamp, merged)
	}
	return nil
}

func (w *fsrWriter) level(l int) *fsrLevelBuf {
	if w.levels[l] == nil {
		w.levels[l] = &fsrLevelBuf{}
	}
	return w.levels[l]
}

// wrSummary writes level L's INDEX then SUMMARY chunk and resets its
// disk-write buffer. Upward aggregation into level L+1 is handled
// separately and independently by appendLevelEntry.
func (w *fsrWriter) wrSummary(l int) error {
	lvl := w.levels[l]
	if lvl == nil || len(lvl.summaryStats) == 0 {
		return nil
	}

	if _, err := w.writeIndexChunk(l, lvl); err != nil {
		return err
	}
	if _, err := w.writeSummaryChunk(l, lvl); err != nil {
		return err
	}

	w.levels[l] = &fsrLevelBuf{}
	return nil
}

func (w *fsrWriter) writeIndexChunk(l int, lvl *fsrLevelBuf) (int64, error) {
	h := chunkHeader{tag: TrackTag(TrackFSR, RoleIndex), meta: packTrackMeta(w.si.def.SignalID, uint8(l))}
	payload := newBuf(payloadHeaderLen + 8*len(lvl.indexOffsets))
	payloadHeader{timestamp: lvl.indexTimestamp, entryCount: uint32(len(lvl.indexOffsets)), entrySizeBits: 64}.encode(payload)
	for _, off := range lvl.indexOffsets {
		payload.WrI64(off)
	}
	offset, err := w.core.r.wr(h, payload.Bytes())
	if err != nil {
		return 0, err
	}
	if err := w.core.setHeadOffset(w.ti, l, offset); err != nil {
		return 0, err
	}
	if err := w.core.updateItemHead(&w.ti.indexTails[l], offset, h); err != nil {
		return 0, err
	}
	return offset, nil
}

func (w *fsrWriter) writeSummaryChunk(l int, lvl *fsrLevelBuf) (int64, error) {
	h := chunkHeader{tag: TrackTag(TrackFSR, RoleSummary), meta: packTrackMeta(w.si.def.SignalID, uint8(l))}
	entryBits := uint16(4 * w.statSz * 8)
	payload := newBuf(payloadHeaderLen + 4*w.statSz*len(lvl.summaryStats))
	payloadHeader{timestamp: lvl.summaryTimestamp, entryCount: uint32(len(lvl.summaryStats)), entrySizeBits: entryBits}.encode(payload)
	for _, s := range lvl.summaryStats {
		s.encode(payload, w.statSz)
	}
	offset, err := w.core.r.wr(h, payload.Bytes())
	if err != nil {
		return 0, err
	}
	if err := w.core.updateItemHead(&w.ti.summaryTails[l], offset, h); err != nil {
		return 0, err
	}
	return offset, nil
}

// flushPartialFold finalizes level l's leftover fold-accumulator entries
// (fewer than summary_decimate_factor of them) into one undersized
// level-(l+1) entry, the same way Close() force-flushes a disk buffer that
// never reached entries_per_summary.
func (w *fsrWriter) flushPartialFold(l int) error {
	fold := w.folds[l]
	if fold == nil || len(fold.stats) == 0 {
		return nil
	}
	merged := mergeStats4(fold.stats)
	w.folds[l] = nil
	return w.appendLevelEntry(l+1, fold.firstPos, fold.firstTimestamp, merged)
}

// Close flushes the partial DATA chunk (if any), folds every level's
// leftover accumulator upward, and drains every allocated level's disk
// buffers. Fold flushing runs ascending so an undersized level-1 fold
// lands in level 2's buffer before level 2 itself is drained.
func (w *fsrWriter) Close() error {
	if w.data.entryCount(w.sizeBits) > 0 {
		if err := w.wrData(); err != nil {
			return err
		}
	}
	for l := 1; l < maxLevels; l++ {
		if err := w.flushPartialFold(l); err != nil {
			return err
		}
	}
	for l := 1; l < maxLevels; l++ {
		if w.levels[l] != nil && len(w.levels[l].summaryStats) > 0 {
			if err := w.wrSummary(l); err != nil {
				return err
			}
		}
	}
	return nil
}

// Length returns the total sample count written so far (fsr_length minus
// the sample_id_offset adjustment is applied by the reader; the writer
// side simply reports how many samples have been accepted).
func (w *fsrWriter) Length() int64 {
	if !w.started {
		return 0
	}
	return w.nextExpected - w.si.sampleIDOffset
}
