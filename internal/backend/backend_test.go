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

package backend

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestWriteReadRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "f.bin")

	w, err := Open(path, ModeWrite)
	require.NoError(t, err)
	require.NoError(t, w.Write([]byte("hello world")))
	require.Equal(t, int64(11), w.Tell())
	require.Equal(t, int64(11), w.End())
	require.NoError(t, w.Flush())
	require.NoError(t, w.Close())

	r, err := Open(path, ModeRead)
	require.NoError(t, err)
	defer r.Close()

	buf := make([]byte, 11)
	require.NoError(t, r.Read(buf))
	require.Equal(t, "hello world", string(buf))

	// Short reads are an error, not a silently partial result.
	require.NoError(t, r.Seek(0, SeekStart))
	short := make([]byte, 100)
	require.Error(t, r.Read(short))
}

func TestSeekAndReadAt(t *testing.T) {
	path := filepath.Join(t.TempDir(), "f.bin")
	w, err := Open(path, ModeWrite)
	require.NoError(t, err)
	require.NoError(t, w.Write([]byte("0123456789")))
	require.NoError(t, w.Close())

	r, err := Open(path, ModeRead)
	require.NoError(t, err)
	defer r.Close()

	b, err := r.ReadAt(3, 4)
	require.NoError(t, err)
	require.Equal(t, "3456", string(b))

	_, err = r.ReadAt(8, 10)
	require.Error(t, err)
}

func TestMmapReadAt(t *testing.T) {
	path := filepath.Join(t.TempDir(), "f.bin")
	w, err := Open(path, ModeWrite)
	require.NoError(t, err)
	require.NoError(t, w.Write([]byte("abcdefghij")))
	require.NoError(t, w.Close())

	r, err := Open(path, ModeRead)
	require.NoError(t, err)
	defer r.Close()
	require.NoError(t, r.EnableMmap())

	b, err := r.ReadAt(2, 3)
	require.NoError(t, err)
	require.Equal(t, "cde", string(b))
}

func TestTruncateToCurrentPosition(t *testing.T) {
	path := filepath.Join(t.TempDir(), "f.bin")
	w, err := Open(path, ModeWrite)
	require.NoError(t, err)
	require.NoError(t, w.Write([]byte("0123456789")))
	require.NoError(t, w.Seek(4, SeekStart))
	require.NoError(t, w.TruncateToCurrentPosition())
	require.Equal(t, int64(4), w.End())
	require.NoError(t, w.Close())

	r, err := Open(path, ModeRead)
	require.NoError(t, err)
	defer r.Close()
	require.Equal(t, int64(4), r.End())
}

func TestAppendModePositionsAtEnd(t *testing.T) {
	path := filepath.Join(t.TempDir(), "f.bin")
	w, err := Open(path, ModeWrite)
	require.NoError(t, err)
	require.NoError(t, w.Write([]byte("abc")))
	require.NoError(t, w.Close())

	a, err := Open(path, ModeAppend)
	require.NoError(t, err)
	defer a.Close()
	require.Equal(t, int64(3), a.Tell())
}
