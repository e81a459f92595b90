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

// encodeSourceDef serializes a SourceDef payload: {source_id, 64 reserved
// bytes, name, vendor, model, version, serial_number} (NUL-terminated
// strings).
func encodeSourceDef(def SourceDef) []byte {
	b := newBuf(128)
	b.WrU16(def.SourceID)
	b.WrZero(sourceReservedBytes)
	b.WrStr(def.Name)
	b.WrStr(def.Vendor)
	b.WrStr(def.Model)
	b.WrStr(def.Version)
	b.WrStr(def.SerialNumber)
	return b.Bytes()
}

func decodeSourceDef(payload []byte) (SourceDef, error) {
	b := bufFromBytes(payload)
	var def SourceDef
	var err error
	if def.SourceID, err = b.RdU16(); err != nil {
		return def, err
	}
	if _, err = b.RdBytes(sourceReservedBytes); err != nil {
		return def, err
	}
	if def.Name, err = b.RdStr(); err != nil {
		return def, err
	}
	if def.Vendor, err = b.RdStr(); err != nil {
		return def, err
	}
	if def.Model, err = b.RdStr(); err != nil {
		return def, err
	}
	if def.Version, err = b.RdStr(); err != nil {
		return def, err
	}
	if def.SerialNumber, err = b.RdStr(); err != nil {
		return def, err
	}
	return def, nil
}

// encodeSignalDef serializes a SignalDef payload per spec.md §3.
func encodeSignalDef(def SignalDef) []byte {
	b := newBuf(160)
	b.WrU16(def.SignalID)
	b.WrU16(def.SourceID)
	b.WrU8(uint8(def.Type))
	b.WrU32(uint32(def.DataType))
	b.WrU32(def.SampleRate)
	b.WrU32(def.SamplesPerData)
	b.WrU32(def.SampleDecimateFactor)
	b.WrU32(def.EntriesPerSummary)
	b.WrU32(def.SummaryDecimateFactor)
	b.WrU32(def.AnnotationDecimateFactor)
	b.WrU32(def.UTCDecimateFactor)
	b.WrZero(signalReservedBytes)
	b.WrStr(def.Name)
	b.WrStr(def.Units)
	return b.Bytes()
}

func decodeSignalDef(payload []byte) (SignalDef, error) {
	b := bufFromBytes(payload)
	var def SignalDef
	var err error
	if def.SignalID, err = b.RdU16(); err != nil {
		return def, err
	}
	if def.SourceID, err = b.RdU16(); err != nil {
		return def, err
	}
	st, err := b.RdU8()
	if err != nil {
		return def, err
	}
	def.Type = SignalType(st)
	dt, err := b.RdU32()
	if err != nil {
		return def, err
	}
	def.DataType = DataType(dt)
	if def.SampleRate, err = b.RdU32(); err != nil {
		return def, err
	}
	if def.SamplesPerData, err = b.RdU32(); err != nil {
		return def, err
	}
	if def.SampleDecimateFactor, err = b.RdU32(); err != nil {
		return def, err
	}
	if def.EntriesPerSummary, err = b.RdU32(); err != nil {
		return def, err
	}
	if def.SummaryDecimateFactor, err = b.RdU32(); err != nil {
		return def, err
	}
	if def.AnnotationDecimateFactor, err = b.RdU32(); err != nil {
		return def, err
	}
	if def.UTCDecimateFactor, err = b.RdU32(); err != nil {
		return def, err
	}
	if _, err = b.RdBytes(signalReservedBytes); err != nil {
		return def, err
	}
	if def.Name, err = b.RdStr(); err != nil {
		return def, err
	}
	if def.Units, err = b.RdStr(); err != nil {
		return def, err
	}
	return def, nil
}

// DefineSource validates and writes a SOURCE_DEF chunk, interning its
// strings and threading it onto the source item list.
func (c *Core) DefineSource(def SourceDef, arena *stringArena) error {
	if def.SourceID >= 256 {
		return newErr(ParameterInvalid, "source_def: source_id %d out of range", def.SourceID)
	}
	if c.sources[def.SourceID] != nil {
		return newErr(AlreadyExists, "source_def: source_id %d already defined", def.SourceID)
	}
	def.Name = arena.Intern(def.Name)
	def.Vendor = arena.Intern(def.Vendor)
	def.Model = arena.Intern(def.Model)
	def.Version = arena.Intern(def.Version)
	def.SerialNumber = arena.Intern(def.SerialNumber)

	payload := encodeSourceDef(def)
	h := chunkHeader{tag: TagSourceDef, meta: chunkMeta(def.SourceID)}
	if c.sourceListTail.valid {
		h.itemPrev = uint64(c.sourceListTail.offset)
	}
	offset, err := c.r.wr(h, payload)
	if err != nil {
		return err
	}
	if c.sourceListTail.valid {
		c.sourceListTail.header.itemNext = uint64(offset)
		if err := c.r.rewriteHeaderAt(c.sourceListTail.offset, c.sourceListTail.header); err != nil {
			return err
		}
	} else {
		c.sourceHeadOffset = offset
	}
	c.sourceListTail = itemListTail{offset: offset, header: h, valid: true}
	c.sources[def.SourceID] = &sourceInfo{def: def}
	return nil
}

// DefineSignal validates+aligns, writes the SIGNAL_DEF chunk plus its
// per-type track DEF+HEAD chunks, and allocates the writer contexts.
func (c *Core) DefineSignal(def SignalDef, arena *stringArena) error {
	if def.SignalID >= 256 {
		return newErr(ParameterInvalid, "signal_def: signal_id %d out of range", def.SignalID)
	}
	if c.signals[def.SignalID] != nil {
		return newErr(AlreadyExists, "signal_def: signal_id %d already defined", def.SignalID)
	}
	if c.sources[def.SourceID] == nil {
		return newErr(ParameterInvalid, "signal_def: source_id %d not defined", def.SourceID)
	}
	if err := validateAndAlignSignalDef(&def); err != nil {
		return err
	}
	def.Name = arena.Intern(def.Name)
	def.Units = arena.Intern(def.Units)

	payload := encodeSignalDef(def)
	h := chunkHeader{tag: TagSignalDef, meta: chunkMeta(def.SignalID)}
	if c.signalListTail.valid {
		h.itemPrev = uint64(c.signalListTail.offset)
	}
	offset, err := c.r.wr(h, payload)
	if err != nil {
		return err
	}
	if c.signalListTail.valid {
		c.signalListTail.header.itemNext = uint64(offset)
		if err := c.r.rewriteHeaderAt(c.signalListTail.offset, c.signalListTail.header); err != nil {
			return err
		}
	} else {
		c.signalHeadOffset = offset
	}
	c.signalListTail = itemListTail{offset: offset, header: h, valid: true}

	si := &signalInfo{def: def}
	c.signals[def.SignalID] = si

	var trackTypes []TrackType
	if def.Type == SignalFSR {
		trackTypes = []TrackType{TrackFSR, TrackAnnotation, TrackUTC}
	} else {
		trackTypes = []TrackType{TrackVSR, TrackAnnotation}
	}
	for _, tt := range trackTypes {
		ti, err := c.writeTrackDefHead(def.SignalID, tt)
		if err != nil {
			return err
		}
		si.tracks[tt] = ti
	}

	if def.Type == SignalFSR {
		si.fsrWriter = newFSRWriter(c, si)
	}
	si.tsAnno = newTSWriter(c, si, TrackAnnotation, def.AnnotationDecimateFactor, annotationSummarySize)
	if def.Type == SignalFSR {
		si.tsUTC = newTSWriter(c, si, TrackUTC, def.UTCDecimateFactor, utcSummarySize)
	}
	return nil
}

// WriteUserData writes a USER_DATA chunk and threads it onto the
// user-data item list. STRING/JSON storage types compute their own length
// up to the first NUL.
func (c *Core) WriteUserData(st StorageType, data []byte) error {
	payload := data
	if st == StorageString || st == StorageJSON {
		for i, b := range data {
			if b == 0 {
				payload = data[:i]
				break
			}
		}
	}
	h := chunkHeader{tag: TagUserData, meta: packUserDataMeta(st)}
	if c.userDataTail.valid {
		h.itemPrev = uint64(c.userDataTail.offset)
	}
	offset, err := c.r.wr(h, payload)
	if err != nil {
		return err
	}
	if c.userDataTail.valid {
		c.userDataTail.header.itemNext = uint64(offset)
		if err := c.r.rewriteHeaderAt(c.userDataTail.offset, c.userDataTail.header); err != nil {
			return err
		}
	} else {
		c.userDataHeadOffset = offset
	}
	c.userDataTail = itemListTail{offset: offset, header: h, valid: true}
	return nil
}
