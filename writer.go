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

// W is the single-threaded writer facade: every call performs synchronous
// I/O on the caller's goroutine. ThreadedWriter wraps W to move that I/O
// onto a dedicated goroutine behind a message ring buffer.
type W struct {
	core  *Core
	arena *stringArena
}

// WriterOption configures Open/Create, mirroring the functional-options
// pattern the rest of the ecosystem (client constructors, backend opens)
// uses for optional behavior instead of telescoping parameter lists.
type WriterOption func(*writerConfig)

type writerConfig struct {
	appendExisting bool
}

// WithAppend opens an existing file in append mode instead of truncating
// it.
func WithAppend() WriterOption {
	return func(c *writerConfig) { c.appendExisting = true }
}

// Create opens path for writing, truncating any existing file, and writes
// the mandatory sentinel chunks: the global-annotation USER_DATA sentinel,
// SOURCE_DEF 0, and SIGNAL_DEF 0 (source/signal 0 are reserved for global,
// source-less VSR annotations), per spec.md §4.8.
func Create(path string, opts ...WriterOption) (*W, error) {
	cfg := writerConfig{}
	for _, o := range opts {
		o(&cfg)
	}
	mode := backend.ModeWrite
	if cfg.appendExisting {
		mode = backend.ModeAppend
	}
	r, err := openRaw(path, mode)
	if err != nil {
		return nil, err
	}
	w := &W{core: newCore(r), arena: newStringArena()}
	if cfg.appendExisting {
		return w, nil
	}

	if err := w.core.WriteUserData(StorageBinary, nil); err != nil {
		r.close()
		return nil, wrap(IO, err, "writer: global-annotation sentinel")
	}
	if err := w.SourceDef(SourceDef{SourceID: 0, Name: "global"}); err != nil {
		r.close()
		return nil, err
	}
	globalDef := SignalDef{
		SignalID: 0,
		SourceID: 0,
		Type:     SignalVSR,
		DataType: NewDataType(BasetypeUint, 8, 0),
		Name:     "global_annotations",
	}
	if err := w.SignalDef(globalDef); err != nil {
		r.close()
		return nil, err
	}
	return w, nil
}

// SourceDef defines a new data source.
func (w *W) SourceDef(def SourceDef) error { return w.core.DefineSource(def, w.arena) }

// SignalDef defines a new signal under an existing source.
func (w *W) SignalDef(def SignalDef) error { return w.core.DefineSignal(def, w.arena) }

// UserData writes an opaque user-data record.
func (w *W) UserData(st StorageType, data []byte) error { return w.core.WriteUserData(st, data) }

// FSR appends packed fixed-sample-rate data for signal_id starting at
// sample_id, routing to that signal's FSR writer.
func (w *W) FSR(signalID uint16, sampleID int64, data []byte, length uint32) error {
	si, err := w.fsrSignal(signalID)
	if err != nil {
		return err
	}
	return si.fsrWriter.Append(sampleID, data, length)
}

// FSROmitData toggles whether constant-valued DATA chunks for signal_id
// may be physically omitted once omission has armed.
func (w *W) FSROmitData(signalID uint16, omit bool) error {
	si, err := w.fsrSignal(signalID)
	if err != nil {
		return err
	}
	si.fsrWriter.SetOmitData(omit)
	return nil
}

func (w *W) fsrSignal(signalID uint16) (*signalInfo, error) {
	si := w.core.signals[signalID]
	if si == nil {
		return nil, newErr(NotFound, "writer: signal_id %d not defined", signalID)
	}
	if si.def.Type != SignalFSR || si.fsrWriter == nil {
		return nil, newErr(ParameterInvalid, "writer: signal_id %d is not FSR", signalID)
	}
	return si, nil
}

// Annotation writes an ANNO DATA chunk for signal_id and registers its
// compact summary record with the signal's annotation TS writer.
func (w *W) Annotation(signalID uint16, a Annotation) error {
	si := w.core.signals[signalID]
	if si == nil {
		return newErr(NotFound, "writer: signal_id %d not defined", signalID)
	}
	ti := si.tracks[TrackAnnotation]
	h := chunkHeader{tag: TrackTag(TrackAnnotation, RoleData), meta: packTrackMeta(signalID, 0)}
	offset, err := w.core.r.wr(h, encodeAnnotationData(a))
	if err != nil {
		return err
	}
	if err := w.core.setHeadOffset(ti, 0, offset); err != nil {
		return err
	}
	if err := w.core.updateItemHead(&ti.dataTail, offset, h); err != nil {
		return err
	}
	return si.tsAnno.AddEntry(a.Timestamp, offset, encodeAnnotationSummary(a))
}

// UTC records a sample_id to wall-clock-time mapping for an FSR signal.
func (w *W) UTC(signalID uint16, sampleID, utc int64) error {
	si, err := w.fsrSignal(signalID)
	if err != nil {
		return err
	}
	ti := si.tracks[TrackUTC]
	record := encodeUTCRecord(sampleID, utc)
	h := chunkHeader{tag: TrackTag(TrackUTC, RoleData), meta: packTrackMeta(signalID, 0)}
	offset, err := w.core.r.wr(h, record)
	if err != nil {
		return err
	}
	if err := w.core.setHeadOffset(ti, 0, offset); err != nil {
		return err
	}
	if err := w.core.updateItemHead(&ti.dataTail, offset, h); err != nil {
		return err
	}
	return si.tsUTC.AddEntry(sampleID, offset, record)
}

// Flush closes every per-signal writer's pending buffers without closing
// the file, used by the threaded writer's flush barrier; a plain W only
// ever needs it immediately before Close.
func (w *W) Flush() error {
	for _, si := range w.core.signals {
		if si == nil {
			continue
		}
		if si.fsrWriter != nil {
			if err := si.fsrWriter.Close(); err != nil {
				return err
			}
		}
		if si.tsAnno != nil {
			if err := si.tsAnno.Close(); err != nil {
				return err
			}
		}
		if si.tsUTC != nil {
			if err := si.tsUTC.Close(); err != nil {
				return err
			}
		}
	}
	return nil
}

// Close flushes every writer, appends the END chunk, and rewrites the
// file header's length field.
func (w *W) Close() error {
	if err := w.Flush(); err != nil {
		return err
	}
	if _, err := w.core.r.wr(chunkHeader{tag: TagEnd}, nil); err != nil {
		return err
	}
	return w.core.r.close()
}
