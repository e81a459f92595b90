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

package crc32c

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestSumKnownVector(t *testing.T) {
	// "123456789" is the standard CRC32C test vector; its checksum is
	// well known (0xE3069283) across every Castagnoli implementation.
	require.Equal(t, uint32(0xE3069283), Sum([]byte("123456789")))
}

func TestSumEmpty(t *testing.T) {
	require.Equal(t, uint32(0), Sum(nil))
}

func TestHeaderMatchesSumOfPrefix(t *testing.T) {
	var hdr [HeaderLen]byte
	for i := range hdr {
		hdr[i] = byte(i * 7)
	}
	require.Equal(t, Sum(hdr[:]), Header(hdr))
}

func TestNewHashMatchesSum(t *testing.T) {
	b := []byte("the quick brown fox jumps over the lazy dog")
	h := NewHash()
	_, err := h.Write(b)
	require.NoError(t, err)
	require.Equal(t, Sum(b), h.Sum32())
}
