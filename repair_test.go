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
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

// crashWrite writes nSamples through a fresh FSR writer and then yanks the
// file handle shut without Flush/Close, leaving the header's length field
// at 0 (as writeFileHeader(0) left it on open) and any RAM-only buffered
// state (partial DATA chunk, partial summary levels) unwritten -- the same
// state a process crash would leave behind.
func crashWrite(t *testing.T, path string, signalID uint16, nSamples int) []byte {
	t.Helper()
	w, err := Create(path)
	require.NoError(t, err)
	require.NoError(t, w.SourceDef(SourceDef{SourceID: 1, Name: "sensor"}))
	require.NoError(t, w.SignalDef(testFSRDef(signalID, 1)))

	data := make([]byte, nSamples)
	for i := range data {
		data[i] = byte(i)
	}
	require.NoError(t, w.FSR(signalID, 0, data, uint32(nSamples)))
	require.NoError(t, w.core.r.be.Close())
	return data
}

func TestRepairRecoversUnclosedFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "f.jls")
	data := crashWrite(t, path, 1, 200)

	require.NoError(t, Repair(path))

	d, err := Open(path)
	require.NoError(t, err)
	defer d.Close()

	// Only the 6 fully-flushed 32-sample DATA chunks (192 samples) ever
	// reached disk; the remaining 8 samples were still buffered in RAM
	// when the writer was cut off and are unrecoverable.
	got, err := d.FSR(1, 0, 192)
	require.NoError(t, err)
	require.Equal(t, data[:192], got)

	length, err := d.FSRLength(1)
	require.NoError(t, err)
	require.Equal(t, int64(192), length)

	// Reading statistics across the whole recovered range exercises the
	// level-1 summary repairFSR recomputed for the two DATA chunks that
	// were never flushed into a SUMMARY chunk before the crash.
	stats, err := d.FSRStatistics(1, 0, 32, 6)
	require.NoError(t, err)
	require.Len(t, stats, 6)
}

func TestRepairOnAlreadyClosedFileIsNoop(t *testing.T) {
	path := filepath.Join(t.TempDir(), "f.jls")
	data, err := writeTestFSRFile(path, 1, 64)
	require.NoError(t, err)

	require.NoError(t, Repair(path))

	d, err := Open(path)
	require.NoError(t, err)
	defer d.Close()
	got, err := d.FSR(1, 0, 64)
	require.NoError(t, err)
	require.Equal(t, data, got)
}

func TestRepairTruncatesTornTailChunk(t *testing.T) {
	path := filepath.Join(t.TempDir(), "f.jls")
	data := crashWrite(t, path, 1, 64)

	fi, err := os.Stat(path)
	require.NoError(t, err)
	require.NoError(t, os.Truncate(path, fi.Size()-5))

	require.NoError(t, Repair(path))

	d, err := Open(path)
	require.NoError(t, err)
	defer d.Close()

	got, err := d.FSR(1, 0, 32)
	require.NoError(t, err)
	require.Equal(t, data[:32], got)
}
