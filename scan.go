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

// scanInitial checks whether the file header's length looks valid -- a
// zero length means the file was never closed cleanly and Repair must run
// before any scan below can trust forward chunk links -- then walks the
// chunk chain from the file start to locate the three list anchors
// (first SOURCE_DEF, first SIGNAL_DEF, first USER_DATA) that scanSources/
// scanSignals/the USER_DATA iterator need, per spec.md §4.5's
// scan_initial.
func (c *Core) scanInitial() error {
	if c.r.length == 0 {
		return newErr(Truncated, "core: file was not closed cleanly; run Repair first")
	}
	return c.locateListAnchors()
}

// locateListAnchors performs the forward anchor walk scanInitial needs,
// without scanInitial's clean-close precondition -- Repair calls this
// directly on a file whose header length is still 0.
func (c *Core) locateListAnchors() error {
	offset := int64(fileHeaderLen)
	haveSource, haveSignal, haveUserData := false, false, false
	for !haveSource || !haveSignal || !haveUserData {
		h, err := c.r.chunkSeek(offset)
		if err != nil {
			if IsEmpty(err) {
				return nil
			}
			return err
		}
		switch h.tag {
		case TagSourceDef:
			if !haveSource {
				c.sourceHeadOffset = offset
				haveSource = true
			}
		case TagSignalDef:
			if !haveSignal {
				c.signalHeadOffset = offset
				haveSignal = true
			}
		case TagUserData:
			if !haveUserData {
				c.userDataHeadOffset = offset
				haveUserData = true
			}
		case TagEnd:
			return nil
		}
		offset += chunkTotalSize(h.payloadLength)
	}
	return nil
}

// scanSources walks the SOURCE_DEF item list from sourceHeadOffset,
// populating c.sources.
func (c *Core) scanSources() error {
	offset := c.sourceHeadOffset
	for offset != 0 {
		h, err := c.r.chunkSeek(offset)
		if err != nil {
			return err
		}
		payload, err := c.r.rdPayload()
		if err != nil {
			return err
		}
		def, err := decodeSourceDef(payload)
		if err != nil {
			return err
		}
		c.sources[def.SourceID] = &sourceInfo{def: def}
		offset = int64(h.itemNext)
	}
	return nil
}

// scanSignals walks the SIGNAL_DEF item list, and for each signal scans
// forward across its per-track DEF+HEAD chunk pairs (written contiguously
// immediately after the SIGNAL_DEF chunk by DefineSignal) to rebuild each
// track's head-offset array.
func (c *Core) scanSignals() error {
	offset := c.signalHeadOffset
	for offset != 0 {
		h, err := c.r.chunkSeek(offset)
		if err != nil {
			return err
		}
		payload, err := c.r.rdPayload()
		if err != nil {
			return err
		}
		def, err := decodeSignalDef(payload)
		if err != nil {
			return err
		}
		si := &signalInfo{def: def}
		c.signals[def.SignalID] = si

		var trackTypes []TrackType
		if def.Type == SignalFSR {
			trackTypes = []TrackType{TrackFSR, TrackAnnotation, TrackUTC}
		} else {
			trackTypes = []TrackType{TrackVSR, TrackAnnotation}
		}
		for _, tt := range trackTypes {
			ti, err := c.scanTrack(tt, def.SignalID)
			if err != nil {
				return err
			}
			si.tracks[tt] = ti
		}

		offset = int64(h.itemNext)
	}
	return nil
}

// scanTrack reads the DEF chunk immediately following the cursor (already
// positioned at the end of the previous chunk) and the HEAD chunk after
// it, returning a trackInfo populated from the on-disk head-offset array.
func (c *Core) scanTrack(tt TrackType, signalID uint16) (*trackInfo, error) {
	if _, err := c.r.chunkNext(); err != nil { // DEF chunk
		return nil, err
	}
	headHeader, err := c.r.chunkNext() // HEAD chunk
	if err != nil {
		return nil, err
	}
	payload, err := c.r.rdPayload()
	if err != nil {
		return nil, err
	}
	heads, err := decodeHeadPayload(payload)
	if err != nil {
		return nil, err
	}
	ti := &trackInfo{trackType: tt, signalID: signalID, heads: heads, headOffset: c.r.curOffset}
	_ = headHeader
	return ti, nil
}

// scanFSRSampleID fills in sample_id_offset for every FSR signal from its
// first DATA chunk's payload-header timestamp, per the invariant that
// sample_id_offset equals that timestamp.
func (c *Core) scanFSRSampleID() error {
	for _, si := range c.signals {
		if si == nil || si.def.Type != SignalFSR {
			continue
		}
		ti := si.tracks[TrackFSR]
		if ti == nil || ti.heads[0] == 0 {
			continue
		}
		if _, err := c.r.chunkSeek(ti.heads[0]); err != nil {
			return err
		}
		payload, err := c.r.rdPayload()
		if err != nil {
			return err
		}
		ph, err := decodePayloadHeader(bufFromBytes(payload))
		if err != nil {
			return err
		}
		si.sampleIDOffset = ph.timestamp
	}
	return nil
}
