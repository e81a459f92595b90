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
	"encoding/binary"
	"math"

	"github.com/cespare/xxhash/v2"
)

// synthesizeBlock deterministically reconstructs count omitted samples
// starting at sampleID: Box-Muller-derived pseudo-random values for
// floating-point types (matching the stored mean/std), a rounded-mean
// constant fill for integer/boolean types, per spec.md §4.9.
func synthesizeBlock(dt DataType, stats stats4, sampleID int64, count, sizeBits int) []byte {
	p := packedBitWriter{}
	if dt.IsFloat() {
		for i := 0; i < count; i++ {
			v := boxMullerSample(sampleID+int64(i), stats.mean, stats.std)
			p.appendValue(float64ToPackedBits(v, dt), sizeBits)
		}
		return p.buf
	}
	bits := float64ToPackedBits(stats.mean, dt)
	for i := 0; i < count; i++ {
		p.appendValue(bits, sizeBits)
	}
	return p.buf
}

// sampleSeed derives the 64-bit seed for per-sample reconstruction from
// sampleID: the xxhash of its little-endian encoding (the same hash family
// arena.go already uses for string interning). It is not a multiplicative
// hash.
func sampleSeed(sampleID int64) uint64 {
	var b [8]byte
	binary.LittleEndian.PutUint64(b[:], uint64(sampleID))
	return xxhash.Sum64(b[:])
}

// splitmix64Next advances a splitmix64 generator state and returns its
// next output word; used to derive the two independent uniforms a
// Box-Muller transform needs from a single 64-bit seed.
func splitmix64Next(state *uint64) uint64 {
	*state += 0x9E3779B97F4A7C15
	z := *state
	z = (z ^ (z >> 30)) * 0xBF58476D1CE4E5B9
	z = (z ^ (z >> 27)) * 0x94D049BB133111EB
	return z ^ (z >> 31)
}

func uniform01(x uint64) float64 {
	return float64(x>>11) * (1.0 / (1 << 53))
}

// boxMullerSample returns one normal(mean,std) deviate, deterministic in
// sampleID so the same omitted sample_id always reconstructs identically
// across reader instances.
func boxMullerSample(sampleID int64, mean, std float64) float64 {
	state := sampleSeed(sampleID)
	u1 := uniform01(splitmix64Next(&state))
	u2 := uniform01(splitmix64Next(&state))
	if u1 <= 0 {
		u1 = 1e-300
	}
	r := math.Sqrt(-2 * math.Log(u1))
	theta := 2 * math.Pi * u2
	return mean + r*math.Cos(theta)*std
}
