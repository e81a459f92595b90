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

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/require"
)

func TestThreadedWriterRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "f.jls")
	w, err := Create(path)
	require.NoError(t, err)

	tw := NewThreadedWriter(w)
	require.NoError(t, tw.SourceDef(SourceDef{SourceID: 1, Name: "sensor"}))
	require.NoError(t, tw.SignalDef(testFSRDef(1, 1)))

	data := make([]byte, 32)
	for i := range data {
		data[i] = byte(i)
	}
	for i := 0; i < 5; i++ {
		require.NoError(t, tw.FSR(1, int64(i*32), data, 32))
	}
	require.NoError(t, tw.Flush())
	require.NoError(t, tw.Close())

	d, err := Open(path)
	require.NoError(t, err)
	defer d.Close()
	got, err := d.FSR(1, 0, 32)
	require.NoError(t, err)
	require.Equal(t, data, got)
}

// TestRingTryPushFullReturnsFalse exercises the mrb directly (no consumer
// draining it) so the full-ring case is deterministic, rather than racing
// a live consumer goroutine as in TestThreadedWriterDropOnOverflowFlag below.
func TestRingTryPushFullReturnsFalse(t *testing.T) {
	r := newMRB(2)
	require.True(t, r.tryPush(message{kind: msgUserData}))
	require.True(t, r.tryPush(message{kind: msgUserData}))
	require.False(t, r.tryPush(message{kind: msgUserData}))
	require.Equal(t, 2, r.occupancy())

	drained := r.drain()
	require.Len(t, drained, 2)
	require.Equal(t, 0, r.occupancy())
}

func TestThreadedWriterDropOnOverflowFlag(t *testing.T) {
	path := filepath.Join(t.TempDir(), "f.jls")
	w, err := Create(path)
	require.NoError(t, err)

	reg := prometheus.NewRegistry()
	tw := NewThreadedWriter(w, WithRingCapacity(1), WithMetricsRegisterer(reg))
	tw.FlagsSet(Flags{DropOnOverflow: true})
	require.Equal(t, Flags{DropOnOverflow: true}, tw.FlagsGet())

	require.NoError(t, tw.SourceDef(SourceDef{SourceID: 1, Name: "sensor"}))
	require.NoError(t, tw.SignalDef(testFSRDef(1, 1)))

	// With DropOnOverflow set, pushes either succeed or fail fast with
	// Busy -- they never block waiting for ring space.
	for i := 0; i < 50; i++ {
		if err := tw.UserData(StorageBinary, []byte("x")); err != nil {
			require.Equal(t, Busy, Of(err))
		}
	}

	require.NoError(t, tw.Close())
}

func TestThreadedWriterFlushWaitsForBarrier(t *testing.T) {
	path := filepath.Join(t.TempDir(), "f.jls")
	w, err := Create(path)
	require.NoError(t, err)

	tw := NewThreadedWriter(w)
	require.NoError(t, tw.SourceDef(SourceDef{SourceID: 1, Name: "sensor"}))
	require.NoError(t, tw.SignalDef(testFSRDef(1, 1)))
	require.NoError(t, tw.Annotation(1, Annotation{Timestamp: 0, Storage: StorageBinary, Data: []byte("start")}))

	require.NoError(t, tw.Flush())
	require.NoError(t, tw.Flush()) // a second barrier must also complete
	require.NoError(t, tw.Close())
}
