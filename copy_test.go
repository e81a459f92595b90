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

func TestCopyReproducesReadableFile(t *testing.T) {
	dir := t.TempDir()
	src := filepath.Join(dir, "src.jls")
	dst := filepath.Join(dir, "dst.jls")

	want, err := writeTestFSRFile(src, 1, 160)
	require.NoError(t, err)

	var msgs []string
	var lastDone, lastTotal int64
	err = Copy(src, dst, func(m string) { msgs = append(msgs, m) }, func(done, total int64) {
		lastDone, lastTotal = done, total
	})
	require.NoError(t, err)
	require.Empty(t, msgs)
	require.Equal(t, lastTotal, lastDone)

	d, err := Open(dst)
	require.NoError(t, err)
	defer d.Close()

	got, err := d.FSR(1, 0, 160)
	require.NoError(t, err)
	require.Equal(t, want, got)
}

func TestCopyByteIdenticalOffsets(t *testing.T) {
	dir := t.TempDir()
	src := filepath.Join(dir, "src.jls")
	dst := filepath.Join(dir, "dst.jls")

	_, err := writeTestFSRFile(src, 1, 96)
	require.NoError(t, err)
	require.NoError(t, Copy(src, dst, nil, nil))

	srcBytes, err := os.ReadFile(src)
	require.NoError(t, err)
	dstBytes, err := os.ReadFile(dst)
	require.NoError(t, err)
	require.Equal(t, srcBytes, dstBytes)
}

func TestCopySkipsCorruptChunk(t *testing.T) {
	dir := t.TempDir()
	src := filepath.Join(dir, "src.jls")
	dst := filepath.Join(dir, "dst.jls")

	_, err := writeTestFSRFile(src, 1, 32)
	require.NoError(t, err)

	// Corrupt a payload byte of the SOURCE_DEF 0 chunk. The first chunk
	// after the file header is Create's empty USER_DATA sentinel, so the
	// SOURCE_DEF header starts chunkTotalSize(0) bytes later.
	corruptByteAt(t, src, fileHeaderLen+chunkTotalSize(0)+chunkHeaderLen+10)

	var msgs []string
	err = Copy(src, dst, func(m string) { msgs = append(msgs, m) }, nil)
	require.NoError(t, err)
	require.NotEmpty(t, msgs)
}
