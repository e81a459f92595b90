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
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

// TestFSRItemPrevReverseTraversal writes enough DATA chunks to form a
// multi-entry item list, then walks it backward from the tail via
// item_prev alone and checks it reaches every chunk forward traversal
// found -- spec.md §8 universal invariant 2.
func TestFSRItemPrevReverseTraversal(t *testing.T) {
	path := filepath.Join(t.TempDir(), "f.jls")
	_, err := writeTestFSRFile(path, 1, 3*32)
	require.NoError(t, err)

	d, err := Open(path)
	require.NoError(t, err)
	defer d.Close()

	_, ti, err := d.fsrSignal(1)
	require.NoError(t, err)
	require.NotZero(t, ti.heads[0])

	var forward []int64
	offset := ti.heads[0]
	for offset != 0 {
		h, err := d.core.r.chunkSeek(offset)
		require.NoError(t, err)
		forward = append(forward, offset)
		offset = int64(h.itemNext)
	}
	require.Len(t, forward, 3)

	var backward []int64
	offset = forward[len(forward)-1]
	for offset != 0 {
		h, err := d.core.r.chunkSeek(offset)
		require.NoError(t, err)
		backward = append(backward, offset)
		offset = int64(h.itemPrev)
	}
	require.Len(t, backward, 3)
	for i, off := range backward {
		require.Equal(t, forward[len(forward)-1-i], off)
	}
}

// TestFSRLevel2Pyramid writes enough samples to force a level-2
// INDEX/SUMMARY pair and checks that summary_decimate_factor, not
// entries_per_summary, governs how many level-1 entries fold into one
// level-2 entry.
func TestFSRLevel2Pyramid(t *testing.T) {
	path := filepath.Join(t.TempDir(), "f.jls")
	w, err := Create(path)
	require.NoError(t, err)
	require.NoError(t, w.SourceDef(SourceDef{SourceID: 1, Name: "sensor"}))

	def := testFSRDef(1, 1)
	def.EntriesPerSummary = 8  // disk-flush batch size
	def.SummaryDecimateFactor = 10 // floor; aggregation ratio
	require.NoError(t, w.SignalDef(def))

	// Each DATA chunk (32 samples, decimate 32) yields exactly one level-1
	// entry. 10 DATA chunks fold into exactly one level-2 entry.
	data := make([]byte, 32)
	for i := range data {
		data[i] = byte(i)
	}
	for i := 0; i < 10; i++ {
		require.NoError(t, w.FSR(1, int64(i*32), data, 32))
	}
	require.NoError(t, w.Close())

	d, err := Open(path)
	require.NoError(t, err)
	defer d.Close()

	_, ti, err := d.fsrSignal(1)
	require.NoError(t, err)
	require.NotZero(t, ti.heads[2])

	h, err := d.core.r.chunkSeek(ti.heads[2])
	require.NoError(t, err)
	require.Equal(t, TrackTag(TrackFSR, RoleIndex), h.tag)
	payload, err := d.core.r.rdPayload()
	require.NoError(t, err)
	ph, err := decodePayloadHeader(bufFromBytes(payload))
	require.NoError(t, err)
	require.Equal(t, uint32(1), ph.entryCount)
}
