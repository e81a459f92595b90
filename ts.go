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

// tsIndexEntry is one {timestamp, offset} INDEX entry: at level 1 it
// points at the caller-written DATA chunk; at level > 1 it points at the
// INDEX chunk one level below.
type tsIndexEntry struct {
	timestamp int64
	offset    int64
}

// tsLevelBuf buffers one level's pending INDEX entries alongside the
// matching compact SUMMARY records (annotation {type,group,y} or UTC
// {sample_id,utc} pairs, each summaryEntrySize bytes).
type tsLevelBuf struct {
	index   []tsIndexEntry
	summary [][]byte
}

// tsWriter is the timeseries-track writer shared by ANNOTATION and UTC
// tracks (spec.md §4.7). Every add_entry call supplies the DATA chunk it
// already wrote plus its compact summary record; commit(L) threads both
// upward once a level's INDEX buffer reaches its decimate factor.
type tsWriter struct {
	core            *Core
	si              *signalInfo
	tt              TrackType
	ti              *trackInfo
	decimate        uint32
	summaryEntrySize int

	levels [maxLevels]*tsLevelBuf
}

func newTSWriter(c *Core, si *signalInfo, tt TrackType, decimate uint32, summaryEntrySize int) *tsWriter {
	return &tsWriter{core: c, si: si, tt: tt, ti: si.tracks[tt], decimate: decimate, summaryEntrySize: summaryEntrySize}
}

// AddEntry registers one caller-written DATA chunk at level 1: index entry
// {timestamp, dataOffset} plus its compact summary record.
func (w *tsWriter) AddEntry(timestamp, dataOffset int64, summaryRecord []byte) error {
	lvl := w.level(1)
	lvl.index = append(lvl.index, tsIndexEntry{timestamp: timestamp, offset: dataOffset})
	lvl.summary = append(lvl.summary, summaryRecord)
	if uint32(len(lvl.index)) < w.decimate {
		return nil
	}
	return w.commit(1)
}

func (w *tsWriter) level(l int) *tsLevelBuf {
	if w.levels[l] == nil {
		w.levels[l] = &tsLevelBuf{}
	}
	return w.levels[l]
}

// commit writes level L's pending INDEX and SUMMARY chunks, then threads
// one new entry upward to level L+1: the INDEX chunk's own offset plus a
// copy of level L's first summary record, per spec.md §4.7.
func (w *tsWriter) commit(l int) error {
	lvl := w.levels[l]
	if lvl == nil || len(lvl.index) == 0 {
		return nil
	}
	indexOffset, err := w.writeIndexChunk(l, lvl)
	if err != nil {
		return err
	}
	if _, err := w.writeSummaryChunk(l, lvl); err != nil {
		return err
	}

	firstTimestamp := lvl.index[0].timestamp
	firstSummary := lvl.summary[0]
	w.levels[l] = &tsLevelBuf{}

	if l+1 >= maxLevels {
		return nil
	}
	next := w.level(l + 1)
	next.index = append(next.index, tsIndexEntry{timestamp: firstTimestamp, offset: indexOffset})
	next.summary = append(next.summary, firstSummary)
	if uint32(len(next.index)) >= w.decimate {
		return w.commit(l + 1)
	}
	return nil
}

func (w *tsWriter) writeIndexChunk(l int, lvl *tsLevelBuf) (int64, error) {
	h := chunkHeader{tag: TrackTag(w.tt, RoleIndex), meta: packTrackMeta(w.si.def.SignalID, uint8(l))}
	payload := newBuf(payloadHeaderLen + 16*len(lvl.index))
	payloadHeader{timestamp: lvl.index[0].timestamp, entryCount: uint32(len(lvl.index)), entrySizeBits: 128}.encode(payload)
	for _, e := range lvl.index {
		payload.WrI64(e.timestamp)
		payload.WrI64(e.offset)
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

func (w *tsWriter) writeSummaryChunk(l int, lvl *tsLevelBuf) (int64, error) {
	h := chunkHeader{tag: TrackTag(w.tt, RoleSummary), meta: packTrackMeta(w.si.def.SignalID, uint8(l))}
	payload := newBuf(payloadHeaderLen + w.summaryEntrySize*len(lvl.summary))
	payloadHeader{timestamp: lvl.index[0].timestamp, entryCount: uint32(len(lvl.summary)), entrySizeBits: uint16(w.summaryEntrySize * 8)}.encode(payload)
	for _, rec := range lvl.summary {
		payload.WrBytes(rec)
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

// Close commits every non-empty level's pending buffer as its own final
// INDEX+SUMMARY chunk pair, but suppresses upward propagation: there is no
// further entry to build once the file is closing.
func (w *tsWriter) Close() error {
	for l := 1; l < maxLevels; l++ {
		lvl := w.levels[l]
		if lvl == nil || len(lvl.index) == 0 {
			continue
		}
		if _, err := w.writeIndexChunk(l, lvl); err != nil {
			return err
		}
		if _, err := w.writeSummaryChunk(l, lvl); err != nil {
			return err
		}
		w.levels[l] = &tsLevelBuf{}
	}
	return nil
}
