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

	"github.com/jlscore/jls/internal/backend"
	"github.com/stretchr/testify/require"
)

func TestRawWriteReadChunks(t *testing.T) {
	path := filepath.Join(t.TempDir(), "f.jls")
	w, err := openRaw(path, backend.ModeWrite)
	require.NoError(t, err)

	off1, err := w.wr(chunkHeader{tag: TagSourceDef, meta: chunkMeta(1)}, []byte("hello"))
	require.NoError(t, err)
	off2, err := w.wr(chunkHeader{tag: TagSourceDef, meta: chunkMeta(2)}, []byte("world!!"))
	require.NoError(t, err)
	require.NoError(t, w.close())

	r, err := openRaw(path, backend.ModeRead)
	require.NoError(t, err)

	_, err = r.chunkSeek(off1)
	require.NoError(t, err)
	p, err := r.rdPayload()
	require.NoError(t, err)
	require.Equal(t, "hello", string(p))

	h2, err := r.chunkNext()
	require.NoError(t, err)
	require.Equal(t, off2, r.curOffset)
	p2, err := r.rdPayload()
	require.NoError(t, err)
	require.Equal(t, "world!!", string(p2))
	require.Equal(t, uint32(5), h2.payloadPrevLength)

	back, err := r.chunkPrev()
	require.NoError(t, err)
	require.Equal(t, off1, r.curOffset)
	_ = back
}

func TestChunkHeaderCRCDetectsCorruption(t *testing.T) {
	path := filepath.Join(t.TempDir(), "f.jls")
	w, err := openRaw(path, backend.ModeWrite)
	require.NoError(t, err)
	_, err = w.wr(chunkHeader{tag: TagUserData}, []byte("payload"))
	require.NoError(t, err)
	require.NoError(t, w.close())

	// Corrupt one byte of the chunk header (right after the file header).
	corruptByteAt(t, path, fileHeaderLen+5)

	r, err := openRaw(path, backend.ModeRead)
	require.NoError(t, err)
	_, err = r.rdHeader()
	require.Equal(t, MessageIntegrity, Of(err))
}

func TestPayloadCRCDetectsCorruption(t *testing.T) {
	path := filepath.Join(t.TempDir(), "f.jls")
	w, err := openRaw(path, backend.ModeWrite)
	require.NoError(t, err)
	_, err = w.wr(chunkHeader{tag: TagUserData}, []byte("payload-data"))
	require.NoError(t, err)
	require.NoError(t, w.close())

	corruptByteAt(t, path, fileHeaderLen+chunkHeaderLen+2)

	r, err := openRaw(path, backend.ModeRead)
	require.NoError(t, err)
	_, err = r.rdHeader()
	require.NoError(t, err)
	_, err = r.rdPayload()
	require.Equal(t, MessageIntegrity, Of(err))
}

func corruptByteAt(t *testing.T, path string, offset int64) {
	t.Helper()
	f, err := osOpenRW(path)
	require.NoError(t, err)
	defer f.Close()
	var b [1]byte
	_, err = f.ReadAt(b[:], offset)
	require.NoError(t, err)
	b[0] ^= 0xFF
	_, err = f.WriteAt(b[:], offset)
	require.NoError(t, err)
}
