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

import "github.com/cespare/xxhash/v2"

// slabSize is the fixed size of each arena slab; a new slab is allocated
// whenever the current one cannot fit the next string.
const slabSize = 1 << 20 // 1 MiB

// slab is one link in the arena's chain of fixed-size byte buffers.
type slab struct {
	data []byte // len grows up to slabSize as strings are appended
	next *slab
}

// stringArena retains owned copies of caller-supplied strings (source and
// signal names, units, vendor/model/serial) for the lifetime of a writer,
// so definitions can be referenced by slice after the call that created
// them returns, without holding onto caller memory. Lookups are keyed by
// an xxhash of the string so re-interning an already-seen name is O(1)
// instead of a second 1MiB-slab scan.
type stringArena struct {
	head *slab
	tail *slab
	seen map[uint64]string
}

func newStringArena() *stringArena {
	first := &slab{data: make([]byte, 0, slabSize)}
	return &stringArena{head: first, tail: first, seen: make(map[uint64]string)}
}

// Intern copies s into the arena (unless an identical string was already
// interned) and returns the arena-owned copy.
func (a *stringArena) Intern(s string) string {
	if s == "" {
		return ""
	}
	h := xxhash.Sum64String(s)
	if existing, ok := a.seen[h]; ok && existing == s {
		return existing
	}
	if len(a.tail.data)+len(s) > slabSize {
		next := &slab{data: make([]byte, 0, slabSize)}
		a.tail.next = next
		a.tail = next
	}
	start := len(a.tail.data)
	a.tail.data = append(a.tail.data, s...)
	owned := string(a.tail.data[start : start+len(s)])
	a.seen[h] = owned
	return owned
}
