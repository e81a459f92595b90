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
	"github.com/go-kit/log"
	"github.com/go-kit/log/level"
)

// sourceInfo is the in-memory record of one SOURCE_DEF chunk.
type sourceInfo struct {
	def    SourceDef
	tail   itemListTail // list-maintenance state for the SOURCE_DEF chain
}

// signalInfo is the in-memory record of one SIGNAL_DEF chunk, plus its
// per-track-type bookkeeping.
type signalInfo struct {
	def  SignalDef
	tail itemListTail

	tracks [trackTypeCount]*trackInfo

	sampleIDOffset int64 // first sample id ever written to this FSR signal

	fsrWriter *fsrWriter
	tsAnno    *tsWriter
	tsUTC     *tsWriter
}

// Core owns the two id-indexed registries (source_info, signal_info) and
// the list-head anchors every scan/append operation threads through.
type Core struct {
	r *raw

	sources [256]*sourceInfo
	signals [256]*signalInfo

	sourceListTail   itemListTail
	sourceHeadOffset int64 // offset of the first SOURCE_DEF chunk
	signalListTail   itemListTail
	signalHeadOffset int64
	userDataTail     itemListTail
	userDataHeadOffset int64

	logger log.Logger
}

func newCore(r *raw) *Core {
	return &Core{r: r, logger: currentLogger()}
}

func (c *Core) logWarn(msg string, keyvals ...interface{}) {
	args := append([]interface{}{"msg", msg, "level", "warn"}, keyvals...)
	_ = level.Warn(c.logger).Log(args...)
}

// validateAndAlignSignalDef validates enums/data-type encoding, then
// rounds decimation parameters up to the floor (>=10), fills defaults for
// zero samples_per_data / entries_per_summary, and quantizes
// samples_per_data (below). entries_per_summary is not quantized: a
// nonzero value is kept as given and zero becomes 100.
func validateAndAlignSignalDef(def *SignalDef) error {
	if def.Type != SignalFSR && def.Type != SignalVSR {
		return newErr(ParameterInvalid, "signal_def: invalid signal_type %d", def.Type)
	}
	if err := def.DataType.validate(); err != nil {
		return err
	}

	roundUpMin := func(v uint32) uint32 {
		if v < minDecimateFactor {
			return minDecimateFactor
		}
		return v
	}
	def.SampleDecimateFactor = roundUpMin(def.SampleDecimateFactor)
	def.SummaryDecimateFactor = roundUpMin(def.SummaryDecimateFactor)
	def.AnnotationDecimateFactor = roundUpMin(def.AnnotationDecimateFactor)
	def.UTCDecimateFactor = roundUpMin(def.UTCDecimateFactor)

	sizeBits := int(def.DataType.SizeBits())
	if def.SamplesPerData == 0 {
		def.SamplesPerData = defaultSamplesPerData(sizeBits)
	}
	if def.EntriesPerSummary == 0 {
		def.EntriesPerSummary = 100
	}

	// Quantize samples_per_data so one DATA payload's packed sample bytes
	// end on a 32-byte boundary, and so it is a multiple of
	// sample_decimate_factor -- every DATA chunk then splits into a whole
	// number of level-1 SUMMARY entries with no short, out-of-rhythm entry
	// at a DATA-chunk boundary (spec.md §4.5).
	def.SamplesPerData = quantizeSamplesPerData(def.SamplesPerData, sizeBits, def.SampleDecimateFactor)
	if def.SamplesPerData < def.SampleDecimateFactor {
		def.SamplesPerData = quantizeSamplesPerData(def.SampleDecimateFactor, sizeBits, def.SampleDecimateFactor)
	}

	return nil
}

// defaultSamplesPerData picks a reasonable default DATA-chunk sample
// count per sample width: wider samples get smaller chunks so their
// packed byte size stays in a similar memory-footprint ballpark.
func defaultSamplesPerData(sizeBits int) uint32 {
	switch {
	case sizeBits <= 1:
		return 1 << 20
	case sizeBits <= 4:
		return 1 << 18
	case sizeBits <= 8:
		return 1 << 16
	case sizeBits <= 16:
		return 1 << 14
	case sizeBits <= 32:
		return 1 << 12
	default:
		return 1 << 11
	}
}

// quantizeSamplesPerData rounds n up to the smallest value that is both a
// multiple of sampleDecimate and, packed at sizeBits each, occupies a
// multiple of 32 bytes -- so samples_per_data satisfies the byte-packing
// boundary and sample_decimate_factor divides it evenly at the same time.
func quantizeSamplesPerData(n uint32, sizeBits int, sampleDecimate uint32) uint32 {
	if n == 0 {
		return 0
	}
	const bitsPerBoundary = uint64(32 * 8)
	byteBoundarySamples := bitsPerBoundary / gcdU64(bitsPerBoundary, uint64(sizeBits))
	step := lcmU64(uint64(sampleDecimate), byteBoundarySamples)
	if step == 0 {
		step = byteBoundarySamples
	}
	total := uint64(n)
	if rem := total % step; rem != 0 {
		total += step - rem
	}
	return uint32(total)
}

func gcdU64(a, b uint64) uint64 {
	for b != 0 {
		a, b = b, a%b
	}
	return a
}

func lcmU64(a, b uint64) uint64 {
	if a == 0 || b == 0 {
		return 0
	}
	return a / gcdU64(a, b) * b
}
