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

import "os"

// osOpenRW is a tiny test helper for directly corrupting bytes of a file
// on disk to exercise CRC validation paths.
func osOpenRW(path string) (*os.File, error) {
	return os.OpenFile(path, os.O_RDWR, 0644)
}

// testFSRDef returns a small, deterministically-quantized FSR SignalDef
// for tests: one byte per sample, 32 samples per DATA chunk, a level-1
// SUMMARY every 4 INDEX entries.
func testFSRDef(signalID, sourceID uint16) SignalDef {
	return SignalDef{
		SignalID:                 signalID,
		SourceID:                 sourceID,
		Type:                     SignalFSR,
		DataType:                 NewDataType(BasetypeUint, 8, 0),
		SamplesPerData:           32,
		SampleDecimateFactor:     32,
		EntriesPerSummary:        4,
		SummaryDecimateFactor:    10,
		AnnotationDecimateFactor: 10,
		UTCDecimateFactor:        10,
		Name:                     "temp",
		Units:                    "C",
	}
}

// writeTestFSRFile creates path with one source and one FSR signal,
// appends nSamples sequential byte-valued samples starting at sample id
// 0, and closes the writer. It returns the exact sample bytes written.
func writeTestFSRFile(path string, signalID uint16, nSamples int) ([]byte, error) {
	w, err := Create(path)
	if err != nil {
		return nil, err
	}
	if err := w.SourceDef(SourceDef{SourceID: 1, Name: "sensor"}); err != nil {
		return nil, err
	}
	if err := w.SignalDef(testFSRDef(signalID, 1)); err != nil {
		return nil, err
	}
	data := make([]byte, nSamples)
	for i := range data {
		data[i] = byte(i)
	}
	if err := w.FSR(signalID, 0, data, uint32(nSamples)); err != nil {
		return nil, err
	}
	if err := w.Close(); err != nil {
		return nil, err
	}
	return data, nil
}
