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

// Package crc32c is the only integrity primitive used by the chunk layer:
// standard CRC32 with the iSCSI (Castagnoli) polynomial, initial value
// all-ones, final XOR all-ones -- i.e. exactly hash/crc32's IEEE-shaped
// Castagnoli table, hardware accelerated by the runtime when SSE4.2 or
// an equivalent is available.
package crc32c

import (
	"hash"
	"hash/crc32"
)

// HeaderLen is the length of the chunk-header prefix that crc32c_header
// covers: the 32-byte header minus its own trailing crc32 field.
const HeaderLen = 28

var table = crc32.MakeTable(crc32.Castagnoli)

// Sum computes the CRC32C of b.
func Sum(b []byte) uint32 {
	return crc32.Checksum(b, table)
}

// Header computes the CRC32C over the first HeaderLen bytes of a chunk
// header. Callers must zero (or simply omit) the trailing crc32 field
// before calling this, since it is computed over the preceding bytes only.
func Header(header [HeaderLen]byte) uint32 {
	return crc32.Checksum(header[:], table)
}

// NewHash returns a streaming CRC32C hash, for callers that want to fold in
// bytes incrementally rather than checksum one contiguous buffer.
func NewHash() hash.Hash32 { return crc32.New(table) }
