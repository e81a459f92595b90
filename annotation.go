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

// Annotation is one ANNO DATA-chunk record: a timestamp (sample id for
// FSR-attached annotations, UTC nanoseconds for VSR's global signal 0), a
// caller-defined type/group pairing, a scalar y value, and an optional
// opaque payload tagged with a StorageType.
type Annotation struct {
	Timestamp      int64
	AnnotationType uint8
	GroupID        uint16
	Y              float32
	Storage        StorageType
	Data           []byte
}

// annotationSummarySize is the fixed width of one ANNO SUMMARY record:
// {timestamp:i64, annotation_type:u8, storage_type:u8, group_id:u16,
// reserved:u16, y:f32}, per spec.md §3.
const annotationSummarySize = 8 + 1 + 1 + 2 + 2 + 4

// encodeAnnotationData serializes the full DATA-chunk record, blob
// included. The blob is stored whole for every storage type: unlike
// WriteUserData, STRING/JSON blobs are not cut at the first NUL.
func encodeAnnotationData(a Annotation) []byte {
	b := newBuf(annotationSummarySize + len(a.Data))
	encodeAnnotationSummaryFields(b, a)
	b.WrBytes(a.Data)
	return b.Bytes()
}

// encodeAnnotationSummary serializes only the compact record the SUMMARY
// chunk carries, with the blob dropped.
func encodeAnnotationSummary(a Annotation) []byte {
	b := newBuf(annotationSummarySize)
	encodeAnnotationSummaryFields(b, a)
	return b.Bytes()
}

func encodeAnnotationSummaryFields(b *buf, a Annotation) {
	b.WrI64(a.Timestamp)
	b.WrU8(a.AnnotationType)
	b.WrU8(uint8(a.Storage))
	b.WrU16(a.GroupID)
	b.WrU16(0)
	b.WrF32(a.Y)
}

func decodeAnnotation(payload []byte) (Annotation, error) {
	b := bufFromBytes(payload)
	var a Annotation
	var err error
	if a.Timestamp, err = b.RdI64(); err != nil {
		return a, err
	}
	at, err := b.RdU8()
	if err != nil {
		return a, err
	}
	a.AnnotationType = at
	st, err := b.RdU8()
	if err != nil {
		return a, err
	}
	a.Storage = StorageType(st)
	if a.GroupID, err = b.RdU16(); err != nil {
		return a, err
	}
	if _, err = b.RdU16(); err != nil {
		return a, err
	}
	if a.Y, err = b.RdF32(); err != nil {
		return a, err
	}
	a.Data = b.b[b.rpos:]
	return a, nil
}

// utcSummarySize is the fixed width of one UTC SUMMARY/DATA record:
// {sample_id:i64, timestamp:i64}, per spec.md §3.
const utcSummarySize = 8 + 8

func encodeUTCRecord(sampleID, utc int64) []byte {
	b := newBuf(utcSummarySize)
	b.WrI64(sampleID)
	b.WrI64(utc)
	return b.Bytes()
}

func decodeUTCRecord(payload []byte) (sampleID, utc int64, err error) {
	b := bufFromBytes(payload)
	if sampleID, err = b.RdI64(); err != nil {
		return 0, 0, err
	}
	if utc, err = b.RdI64(); err != nil {
		return 0, 0, err
	}
	return sampleID, utc, nil
}
